package migration

import (
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/j2o/migrate/pkg/checkpoint"
	"github.com/j2o/migrate/pkg/config"
	"github.com/j2o/migrate/pkg/datadir"
	"github.com/j2o/migrate/pkg/jira"
	"github.com/j2o/migrate/pkg/provenance"
	"github.com/j2o/migrate/pkg/railscript"
	"github.com/j2o/migrate/pkg/remote"
)

func testEnv(t *testing.T) *Env {
	t.Helper()

	data, err := datadir.New(t.TempDir())
	require.NoError(t, err)
	composer, err := railscript.NewComposer()
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.Jira.URL = "https://jira.example.com"
	cfg.Jira.Projects = []string{"NRS"}

	return &Env{
		Cfg:         cfg,
		Log:         logr.Discard(),
		Jira:        jira.NewMockClient(),
		Evaluator:   remote.NewMockEvaluator(),
		Composer:    composer,
		Provenance:  provenance.NewMockStore(),
		Data:        data,
		Checkpoints: checkpoint.NewMockStore(),
	}
}

func mockJira(env *Env) *jira.MockClient {
	return env.Jira.(*jira.MockClient)
}

func mockEvaluator(env *Env) *remote.MockEvaluator {
	return env.Evaluator.(*remote.MockEvaluator)
}

func mockCheckpoints(env *Env) *checkpoint.MockStore {
	return env.Checkpoints.(*checkpoint.MockStore)
}

// queueLoadResult arranges the next Execute call to report one created row
// per pair, so loads produce a usable key mapping.
func queueLoadResult(env *Env, pairs map[string]int) {
	rows := make([]remote.RowResult, 0, len(pairs))
	for key, id := range pairs {
		rows = append(rows, remote.RowResult{WPID: id, JiraKey: key, Created: 1})
	}
	ev := mockEvaluator(env)
	ev.Queue = append(ev.Queue, &remote.Result{Status: "ok", Rows: rows})
}
