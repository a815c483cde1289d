package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j2o/migrate/pkg/checkpoint"
	"github.com/j2o/migrate/pkg/config"
	"github.com/j2o/migrate/pkg/migration"
	"github.com/j2o/migrate/pkg/remote"
)

func testEnv(t *testing.T) *migration.Env {
	t.Helper()
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	return &migration.Env{
		Cfg:         cfg,
		Log:         logr.Discard(),
		Checkpoints: checkpoint.NewMockStore(),
	}
}

func batchFor(component string, index int) *migration.Batch {
	return &migration.Batch{
		Component: component,
		Index:     index,
		Model:     component,
		Rows:      []map[string]any{{"name": "x"}},
	}
}

func TestOrchestrator_RunsComponentsAndWritesSummary(t *testing.T) {
	env := testEnv(t)
	resultsDir := t.TempDir()
	orch := &Orchestrator{Env: env, ResultsDir: resultsDir}

	users := migration.NewMockComponent("users", batchFor("users", 0))
	groups := migration.NewMockComponent("groups", batchFor("groups", 0))

	summary, err := orch.Run(context.Background(), []migration.Component{users, groups})
	require.NoError(t, err)
	require.Len(t, summary.Components, 2)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, []int{0}, users.LoadCalls)
	assert.Equal(t, []int{0}, groups.LoadCalls)

	require.NotEmpty(t, summary.ResultPath)
	data, err := os.ReadFile(summary.ResultPath)
	require.NoError(t, err)
	var stored Summary
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, "users", stored.Components[0].Component)
	assert.Equal(t, 1, stored.Components[0].Report.Created)
}

func TestOrchestrator_StopsOnFirstFailureByDefault(t *testing.T) {
	env := testEnv(t)
	orch := &Orchestrator{Env: env, ResultsDir: t.TempDir()}

	broken := migration.NewMockComponent("users", batchFor("users", 0))
	broken.LoadErrs[0] = &remote.Error{Kind: remote.KindScriptExecution, Message: "boom"}
	next := migration.NewMockComponent("groups", batchFor("groups", 0))

	summary, err := orch.Run(context.Background(), []migration.Component{broken, next})
	require.ErrorIs(t, err, ErrComponentsFailed)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Components, 1)
	assert.Empty(t, next.LoadCalls, "later components are not run after a failure")
}

func TestOrchestrator_ContinueOnErrorRunsTheRest(t *testing.T) {
	env := testEnv(t)
	orch := &Orchestrator{Env: env, ResultsDir: t.TempDir(), ContinueOnError: true}

	broken := migration.NewMockComponent("users", batchFor("users", 0))
	broken.LoadErrs[0] = &remote.Error{Kind: remote.KindScriptExecution, Message: "boom"}
	next := migration.NewMockComponent("groups", batchFor("groups", 0))

	summary, err := orch.Run(context.Background(), []migration.Component{broken, next})
	require.ErrorIs(t, err, ErrComponentsFailed)
	require.Len(t, summary.Components, 2)
	assert.Equal(t, []int{0}, next.LoadCalls)
	assert.NotEmpty(t, summary.Components[0].Error)
	assert.Empty(t, summary.Components[1].Error)
}

func TestOrchestrator_LockRejectsConcurrentRun(t *testing.T) {
	env := testEnv(t)
	lockPath := filepath.Join(t.TempDir(), "migration.lock")

	held := flock.New(lockPath)
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Unlock()

	orch := &Orchestrator{Env: env, LockPath: lockPath, ResultsDir: t.TempDir()}
	_, err = orch.Run(context.Background(), nil)
	require.ErrorIs(t, err, ErrLocked)
}

func TestOrchestrator_DryRunWritesNoSummaryFile(t *testing.T) {
	env := testEnv(t)
	env.DryRun = true
	resultsDir := t.TempDir()
	orch := &Orchestrator{Env: env, ResultsDir: resultsDir}

	users := migration.NewMockComponent("users", batchFor("users", 0))
	summary, err := orch.Run(context.Background(), []migration.Component{users})
	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.Empty(t, summary.ResultPath)

	entries, err := os.ReadDir(resultsDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOrchestrator_RecordsMetrics(t *testing.T) {
	env := testEnv(t)
	metrics := NewMetrics(prometheus.NewRegistry())
	orch := &Orchestrator{Env: env, ResultsDir: t.TempDir(), Metrics: metrics}

	users := migration.NewMockComponent("users", batchFor("users", 0), batchFor("users", 1))
	_, err := orch.Run(context.Background(), []migration.Component{users})
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.BatchesCompleted.WithLabelValues("users")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RowsCreated.WithLabelValues("users")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ComponentsFinished))
}
