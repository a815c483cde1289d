// Package provenance implements idempotency for migrated work packages. The
// provenance tag written to custom fields on the target is the authoritative
// record of identity; the local mapping cache is a disposable acceleration
// that can always be rebuilt from those tags.
package provenance

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/j2o/migrate/pkg/mapping"
	"github.com/j2o/migrate/pkg/railscript"
	"github.com/j2o/migrate/pkg/remote"
)

// Store answers identity questions about already-migrated work packages.
type Store interface {
	// FindByProvenance returns the target work package ID for a tag, or
	// false when the entity has not been migrated yet.
	FindByProvenance(ctx context.Context, tag mapping.ProvenanceTag) (int, bool, error)
	// EnsureTagged idempotently writes the four provenance custom-field
	// values onto a target work package.
	EnsureTagged(ctx context.Context, targetID int, tag mapping.ProvenanceTag) error
	// BuildMappingCache scans the target for every tagged work package and
	// returns the full origin-key to target-ID mapping.
	BuildMappingCache(ctx context.Context) (map[string]int, error)
}

// RemoteStore implements Store by issuing lookup scripts through the remote
// evaluator. Positive results are cached in memory for the process lifetime;
// misses are not, since a later component may have created the entity.
type RemoteStore struct {
	evaluator remote.Evaluator
	composer  *railscript.Composer
	timeout   time.Duration
	log       logr.Logger

	mu    sync.RWMutex
	byID  map[string]int
	byKey map[string]int
}

// NewRemoteStore creates a store over an evaluator and script composer.
func NewRemoteStore(evaluator remote.Evaluator, composer *railscript.Composer, timeout time.Duration, log logr.Logger) *RemoteStore {
	return &RemoteStore{
		evaluator: evaluator,
		composer:  composer,
		timeout:   timeout,
		log:       log.WithName("provenance"),
		byID:      make(map[string]int),
		byKey:     make(map[string]int),
	}
}

type lookupRow struct {
	OriginID  string `json:"origin_id"`
	OriginKey string `json:"origin_key"`
}

func (s *RemoteStore) FindByProvenance(ctx context.Context, tag mapping.ProvenanceTag) (int, bool, error) {
	s.mu.RLock()
	if id, ok := s.byID[tag.ID]; ok {
		s.mu.RUnlock()
		return id, true, nil
	}
	s.mu.RUnlock()

	script, err := s.composer.Compose("provenance_lookup", railscript.Params{Component: "provenance"})
	if err != nil {
		return 0, false, &StoreError{Op: "find", Message: "composing lookup script", Err: err}
	}
	input, err := json.Marshal([]lookupRow{{OriginID: tag.ID, OriginKey: tag.Key}})
	if err != nil {
		return 0, false, &StoreError{Op: "find", Message: "encoding lookup input", Err: err}
	}
	result, err := s.evaluator.Execute(ctx, script.Render, input, s.timeout)
	if err != nil {
		return 0, false, &StoreError{Op: "find", Message: "executing lookup script", Err: err}
	}
	for _, row := range result.Rows {
		if row.JiraKey == tag.Key && row.WPID > 0 {
			s.remember(tag.ID, tag.Key, row.WPID)
			return row.WPID, true, nil
		}
	}
	return 0, false, nil
}

func (s *RemoteStore) EnsureTagged(ctx context.Context, targetID int, tag mapping.ProvenanceTag) error {
	script, err := s.composer.Compose("provenance_tag", railscript.Params{Component: "provenance"})
	if err != nil {
		return &StoreError{Op: "tag", Message: "composing tag script", Err: err}
	}
	input, err := json.Marshal([]map[string]any{{
		"wp_id":         targetID,
		"origin_system": tag.System,
		"origin_id":     tag.ID,
		"origin_key":    tag.Key,
		"origin_url":    tag.URL,
	}})
	if err != nil {
		return &StoreError{Op: "tag", Message: "encoding tag input", Err: err}
	}
	result, err := s.evaluator.Execute(ctx, script.Render, input, s.timeout)
	if err != nil {
		return &StoreError{Op: "tag", Message: "executing tag script", Err: err}
	}
	for _, row := range result.Rows {
		if row.Error != nil {
			return &StoreError{Op: "tag", Message: *row.Error, Context: tag.Key}
		}
	}
	s.remember(tag.ID, tag.Key, targetID)
	return nil
}

func (s *RemoteStore) BuildMappingCache(ctx context.Context) (map[string]int, error) {
	script, err := s.composer.Compose("mapping_scan", railscript.Params{Component: "provenance"})
	if err != nil {
		return nil, &StoreError{Op: "scan", Message: "composing scan script", Err: err}
	}
	result, err := s.evaluator.Execute(ctx, script.Render, []byte("[]"), s.timeout)
	if err != nil {
		return nil, &StoreError{Op: "scan", Message: "executing scan script", Err: err}
	}
	cache := make(map[string]int, len(result.Rows))
	s.mu.Lock()
	for _, row := range result.Rows {
		if row.JiraKey == "" || row.WPID <= 0 {
			continue
		}
		cache[row.JiraKey] = row.WPID
		s.byKey[row.JiraKey] = row.WPID
	}
	s.mu.Unlock()
	s.log.V(1).Info("rebuilt mapping cache", "entries", len(cache))
	return cache, nil
}

func (s *RemoteStore) remember(originID, originKey string, targetID int) {
	s.mu.Lock()
	s.byID[originID] = targetID
	if originKey != "" {
		s.byKey[originKey] = targetID
	}
	s.mu.Unlock()
}

// ResolveKey consults only the in-memory cache.
func (s *RemoteStore) ResolveKey(originKey string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[originKey]
	return id, ok
}
