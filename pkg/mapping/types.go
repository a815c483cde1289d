// Package mapping holds the pure transformation layer between Jira source
// records and OpenProject-ready attribute maps. Nothing in this package does
// I/O; the same inputs always produce the same outputs.
package mapping

// MappedRecord is a sanitized attribute map ready for ActiveRecord
// instantiation on the remote side. Keys are OpenProject attribute names;
// values are primitives or foreign-key IDs. It never contains link objects
// or API envelope keys.
type MappedRecord map[string]any

// ProvenanceTag is the authoritative record of source identity, written as
// custom-field values on every migrated entity.
type ProvenanceTag struct {
	System string `json:"origin_system"`
	ID     string `json:"origin_id"`
	Key    string `json:"origin_key"`
	URL    string `json:"origin_url"`
}

// OriginSystem is the value written to the origin-system custom field.
const OriginSystem = "jira"

// Custom-field names carrying the provenance tag.
const (
	CFOriginSystem = "J2O Origin System"
	CFOriginID     = "J2O Origin ID"
	CFOriginKey    = "J2O Origin Key"
	CFOriginURL    = "J2O Origin URL"
)

// RefResolver resolves a source key to a target ID. Components back it with
// the work-package mapping file or the provenance store.
type RefResolver func(originKey string) (int, bool)

// User fallback strategies for unresolvable accounts.
const (
	FallbackSkip              = "skip"
	FallbackAssignAdmin       = "assign_admin"
	FallbackCreatePlaceholder = "create_placeholder"
)
