package mapping

import (
	"fmt"
	"strings"

	"github.com/j2o/migrate/pkg/jira"
	"github.com/j2o/migrate/pkg/markup"
)

// Language reduces a Jira locale such as "de_DE" to the two-letter language
// preference OpenProject expects.
func Language(locale string) string {
	if idx := strings.IndexByte(locale, '_'); idx >= 0 {
		return locale[:idx]
	}
	return locale
}

// SplitDisplayName splits a display name into first and last name. A single
// token becomes the first name with a "-" placeholder last name, since the
// target model requires both.
func SplitDisplayName(name string) (string, string) {
	name = strings.TrimSpace(name)
	idx := strings.LastIndexByte(name, ' ')
	if idx < 0 {
		if name == "" {
			return "-", "-"
		}
		return name, "-"
	}
	return name[:idx], name[idx+1:]
}

// MapUser transforms a Jira user into target attributes plus its provenance
// tag. The login and mail attributes are required.
func MapUser(u jira.User, baseURL string) (MappedRecord, ProvenanceTag, error) {
	if u.Name == "" {
		return nil, ProvenanceTag{}, &MappingError{Entity: "user", Key: "login", Message: "missing login"}
	}
	if u.Email == "" {
		return nil, ProvenanceTag{}, &MappingError{Entity: "user", Key: "mail", Message: fmt.Sprintf("user %s has no email address", u.Name)}
	}
	first, last := SplitDisplayName(u.DisplayName)
	record := MappedRecord{
		"login":     u.Name,
		"mail":      u.Email,
		"firstname": first,
		"lastname":  last,
	}
	if lang := Language(u.Locale); lang != "" {
		record["language"] = lang
	}
	tag := ProvenanceTag{
		System: OriginSystem,
		ID:     u.Key,
		Key:    u.Name,
		URL:    joinURL(baseURL, "/secure/ViewProfile.jspa?name="+u.Name),
	}
	return record, tag, nil
}

// MapGroup transforms a Jira group. Member resolution stays by login; the
// load script joins against existing users.
func MapGroup(g jira.Group) (MappedRecord, ProvenanceTag, error) {
	if g.Name == "" {
		return nil, ProvenanceTag{}, &MappingError{Entity: "group", Key: "name", Message: "missing group name"}
	}
	record := MappedRecord{
		"name":          g.Name,
		"member_logins": append([]string(nil), g.Members...),
	}
	tag := ProvenanceTag{System: OriginSystem, ID: g.Name, Key: g.Name}
	return record, tag, nil
}

// DefaultProjectModules are enabled on every migrated project.
var DefaultProjectModules = []string{"work_package_tracking", "wiki", "time_tracking", "costs"}

// MapProject transforms a Jira project. The identifier is the lowercased
// project key, which satisfies the target's identifier format for Jira keys.
func MapProject(p jira.Project) (MappedRecord, ProvenanceTag, error) {
	if p.Key == "" {
		return nil, ProvenanceTag{}, &MappingError{Entity: "project", Key: "identifier", Message: "missing project key"}
	}
	if p.Name == "" {
		return nil, ProvenanceTag{}, &MappingError{Entity: "project", Key: "name", Message: fmt.Sprintf("project %s has no name", p.Key)}
	}
	record := MappedRecord{
		"identifier":      strings.ToLower(p.Key),
		"name":            p.Name,
		"public":          false,
		"enabled_modules": append([]string(nil), DefaultProjectModules...),
	}
	if p.Description != "" {
		record["description"] = markup.ToMarkdown(p.Description)
	}
	if p.LeadName != "" {
		record["lead_login"] = p.LeadName
	}
	tag := ProvenanceTag{System: OriginSystem, ID: p.ID, Key: p.Key, URL: joinURL(p.URL, "")}
	return record, tag, nil
}

// MapWorkPackageSkeleton produces the minimal creation record for phase one:
// enough to instantiate the work package and tag it, nothing more. Rich
// content follows in the second phase once the full key mapping exists.
func MapWorkPackageSkeleton(issue *jira.Issue, baseURL string) (MappedRecord, ProvenanceTag, error) {
	if issue.Key == "" {
		return nil, ProvenanceTag{}, &MappingError{Entity: "work_package", Key: "origin_key", Message: "missing issue key"}
	}
	if issue.Summary == "" {
		return nil, ProvenanceTag{}, &MappingError{Entity: "work_package", Key: "subject", Message: fmt.Sprintf("issue %s has no summary", issue.Key)}
	}
	record := MappedRecord{
		"project_identifier": strings.ToLower(issue.ProjectKey),
		"subject":            issue.Summary,
		"type_name":          issue.TypeName,
		"status_name":        issue.StatusName,
		"priority_name":      issue.PriorityName,
		"author_login":       issue.ReporterName,
	}
	tag := ProvenanceTag{
		System: OriginSystem,
		ID:     issue.ID,
		Key:    issue.Key,
		URL:    joinURL(baseURL, "/browse/"+issue.Key),
	}
	return record, tag, nil
}

// MapWorkPackageContent produces the phase-two update record: converted
// description with cross-references rewritten, plus custom-field values.
func MapWorkPackageContent(issue *jira.Issue, resolve RefResolver) MappedRecord {
	record := MappedRecord{}
	if issue.Description != "" {
		description := markup.ToMarkdown(issue.Description)
		record["description"] = markup.RewriteIssueKeys(description, markup.Resolver(resolve))
	}
	if issue.AssigneeName != "" {
		record["assignee_login"] = issue.AssigneeName
	}
	if len(issue.Labels) > 0 {
		record["labels"] = strings.Join(issue.Labels, ", ")
	}
	if len(issue.CustomFields) > 0 {
		values := make(map[string]string, len(issue.CustomFields))
		for name, value := range issue.CustomFields {
			values[name] = value
		}
		record["custom_field_values"] = values
	}
	return record
}

// ProvenanceValues renders a tag as custom-field assignments keyed by the
// field names.
func ProvenanceValues(tag ProvenanceTag) map[string]string {
	return map[string]string{
		CFOriginSystem: tag.System,
		CFOriginID:     tag.ID,
		CFOriginKey:    tag.Key,
		CFOriginURL:    tag.URL,
	}
}

// UserFallback decides what happens when a referenced account cannot be
// resolved to a migrated user.
type UserFallback struct {
	Strategy string
	AdminID  int
}

// Resolve looks up login and applies the fallback strategy on a miss. The
// second return is false when the reference should be dropped (skip, or
// placeholder creation handled by the caller).
func (f UserFallback) Resolve(login string, lookup RefResolver) (int, bool, error) {
	if login != "" {
		if id, ok := lookup(login); ok {
			return id, true, nil
		}
	}
	switch f.Strategy {
	case FallbackSkip, FallbackCreatePlaceholder:
		return 0, false, nil
	case FallbackAssignAdmin:
		if f.AdminID <= 0 {
			return 0, false, &MappingError{Entity: "user", Key: "fallback_admin_user_id", Message: "assign_admin strategy requires a configured admin user id"}
		}
		return f.AdminID, true, nil
	default:
		return 0, false, &MappingError{Entity: "user", Key: "fallback_strategy", Message: fmt.Sprintf("unknown strategy %q", f.Strategy)}
	}
}

func joinURL(base, path string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + path
}
