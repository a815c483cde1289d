package provenance

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j2o/migrate/pkg/mapping"
	"github.com/j2o/migrate/pkg/railscript"
	"github.com/j2o/migrate/pkg/remote"
)

func newStore(t *testing.T, evaluator *remote.MockEvaluator) *RemoteStore {
	t.Helper()
	composer, err := railscript.NewComposer()
	require.NoError(t, err)
	return NewRemoteStore(evaluator, composer, 30*time.Second, logr.Discard())
}

func TestRemoteStore_FindByProvenance(t *testing.T) {
	evaluator := remote.NewMockEvaluator()
	evaluator.Queue = []*remote.Result{
		{Rows: []remote.RowResult{{WPID: 455, JiraKey: "NRS-1", Created: 0}}},
	}
	store := newStore(t, evaluator)

	tag := mapping.ProvenanceTag{System: "jira", ID: "20001", Key: "NRS-1"}
	id, found, err := store.FindByProvenance(context.Background(), tag)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 455, id)

	// Positive results are cached: a second call issues no script.
	id, found, err = store.FindByProvenance(context.Background(), tag)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 455, id)
	assert.Len(t, evaluator.Scripts, 1)
}

func TestRemoteStore_FindMiss_NotCached(t *testing.T) {
	evaluator := remote.NewMockEvaluator()
	notFound := "not found"
	evaluator.Default = &remote.Result{Rows: []remote.RowResult{{WPID: 0, JiraKey: "NRS-9", Error: &notFound}}}
	store := newStore(t, evaluator)

	tag := mapping.ProvenanceTag{System: "jira", ID: "20009", Key: "NRS-9"}
	_, found, err := store.FindByProvenance(context.Background(), tag)
	require.NoError(t, err)
	assert.False(t, found)

	// A miss is re-checked next time, the entity may exist by then.
	_, _, err = store.FindByProvenance(context.Background(), tag)
	require.NoError(t, err)
	assert.Len(t, evaluator.Scripts, 2)
}

func TestRemoteStore_EnsureTagged(t *testing.T) {
	evaluator := remote.NewMockEvaluator()
	evaluator.Default = &remote.Result{Rows: []remote.RowResult{{WPID: 455, JiraKey: "NRS-1", Created: 1}}}
	store := newStore(t, evaluator)

	tag := mapping.ProvenanceTag{System: "jira", ID: "20001", Key: "NRS-1", URL: "https://j/browse/NRS-1"}
	require.NoError(t, store.EnsureTagged(context.Background(), 455, tag))

	// The tag payload carries all four provenance values.
	require.Len(t, evaluator.Inputs, 1)
	payload := string(evaluator.Inputs[0])
	assert.Contains(t, payload, `"origin_system":"jira"`)
	assert.Contains(t, payload, `"origin_id":"20001"`)
	assert.Contains(t, payload, `"origin_key":"NRS-1"`)
	assert.Contains(t, payload, `"origin_url":"https://j/browse/NRS-1"`)

	// Tagging warms the cache.
	id, found, err := store.FindByProvenance(context.Background(), tag)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 455, id)
	assert.Len(t, evaluator.Scripts, 1)
}

func TestRemoteStore_EnsureTagged_RowError(t *testing.T) {
	evaluator := remote.NewMockEvaluator()
	boom := "ActiveRecord::RecordNotFound: wp 7"
	evaluator.Default = &remote.Result{Rows: []remote.RowResult{{WPID: 7, JiraKey: "NRS-7", Error: &boom}}}
	store := newStore(t, evaluator)

	err := store.EnsureTagged(context.Background(), 7, mapping.ProvenanceTag{Key: "NRS-7"})
	require.Error(t, err)
	assert.True(t, IsStoreError(err))
	assert.Contains(t, err.Error(), "RecordNotFound")
}

func TestRemoteStore_BuildMappingCache(t *testing.T) {
	evaluator := remote.NewMockEvaluator()
	evaluator.Default = &remote.Result{Rows: []remote.RowResult{
		{WPID: 455, JiraKey: "NRS-1"},
		{WPID: 456, JiraKey: "NRS-2"},
		{WPID: 0, JiraKey: "NRS-3"}, // untagged rows are skipped
	}}
	store := newStore(t, evaluator)

	cache, err := store.BuildMappingCache(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"NRS-1": 455, "NRS-2": 456}, cache)

	id, ok := store.ResolveKey("NRS-2")
	assert.True(t, ok)
	assert.Equal(t, 456, id)
	_, ok = store.ResolveKey("NRS-3")
	assert.False(t, ok)
}

func TestRemoteStore_ExecuteFailure(t *testing.T) {
	evaluator := remote.NewMockEvaluator()
	evaluator.ExecuteErr = &remote.Error{Kind: remote.KindTimeout, Message: "marker never appeared"}
	store := newStore(t, evaluator)

	_, _, err := store.FindByProvenance(context.Background(), mapping.ProvenanceTag{ID: "1", Key: "NRS-1"})
	require.Error(t, err)
	assert.True(t, IsStoreError(err))
	assert.Equal(t, remote.KindTimeout, remote.KindOf(err))
}
