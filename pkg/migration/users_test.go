package migration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j2o/migrate/pkg/jira"
	"github.com/j2o/migrate/pkg/openproject"
	"github.com/j2o/migrate/pkg/remote"
)

func TestUsers_ExtractDeduplicatesAcrossProjects(t *testing.T) {
	env := testEnv(t)
	env.Cfg.Jira.Projects = []string{"NRS", "OPS"}
	jc := mockJira(env)
	jc.Users["NRS"] = []*jira.User{
		{Key: "u1", Name: "jdoe", Email: "jdoe@example.com", DisplayName: "John Doe"},
		{Key: "u2", Name: "asmith", Email: "asmith@example.com", DisplayName: "Alice Smith"},
	}
	jc.Users["OPS"] = []*jira.User{
		{Key: "u1", Name: "jdoe", Email: "jdoe@example.com", DisplayName: "John Doe"},
	}

	batches, err := NewUsers(env).Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Rows, 2)
	assert.Equal(t, "asmith", batches[0].Rows[0]["name"])
	assert.Equal(t, "jdoe", batches[0].Rows[1]["name"])
}

func TestUsers_ExtractServesCacheOnRerun(t *testing.T) {
	env := testEnv(t)
	jc := mockJira(env)
	jc.Users["NRS"] = []*jira.User{
		{Key: "u1", Name: "jdoe", Email: "jdoe@example.com", DisplayName: "John Doe"},
	}

	first, err := NewUsers(env).Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	// The source changing between runs must not change the cached extract.
	jc.Users["NRS"] = nil
	second, err := NewUsers(env).Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Rows, second[0].Rows)
}

func TestUsers_MapProducesLoadRecord(t *testing.T) {
	env := testEnv(t)
	comp := NewUsers(env)

	batch := &Batch{Component: "users", Index: 0, Model: "users", Rows: []map[string]any{
		{"key": "u1", "name": "jdoe", "email": "jdoe@example.com", "display_name": "John Doe", "locale": "de_DE"},
		{"key": "u2", "name": "noaddress", "display_name": "No Address"},
	}}
	mapped, err := comp.Map(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, mapped.Rows, 1, "users without email are skipped")

	row := mapped.Rows[0]
	assert.Equal(t, "jdoe", row["login"])
	assert.Equal(t, "John", row["firstname"])
	assert.Equal(t, "Doe", row["lastname"])
	assert.Equal(t, "de", row["language"])
	assert.Equal(t, "jdoe", row["origin_key"])

	values, ok := row["custom_field_values"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "jira", values["J2O Origin System"])
	assert.Equal(t, "u1", values["J2O Origin ID"])
}

func TestUsers_LoadPersistsMapping(t *testing.T) {
	env := testEnv(t)
	comp := NewUsers(env)
	queueLoadResult(env, map[string]int{"jdoe": 7, "asmith": 8})

	batch := &Batch{Component: "users", Index: 0, Model: "users", Rows: []map[string]any{
		{"login": "jdoe"}, {"login": "asmith"},
	}}
	report, err := comp.Load(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)

	stored, err := env.Data.ReadMapping("users")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"jdoe": 7, "asmith": 8}, stored)
}

func TestUsers_LoadUnchangedRowsCountNothing(t *testing.T) {
	env := testEnv(t)
	comp := NewUsers(env)

	// A find-or-create rerun reports rows that needed no work with neither
	// flag set. Only actual writes may show up in the tallies.
	ev := mockEvaluator(env)
	ev.Queue = append(ev.Queue, &remote.Result{Status: "ok", Rows: []remote.RowResult{
		{WPID: 7, JiraKey: "jdoe"},
		{WPID: 8, JiraKey: "asmith", Updated: 1},
	}})

	batch := &Batch{Component: "users", Index: 0, Model: "users", Rows: []map[string]any{
		{"login": "jdoe"}, {"login": "asmith"},
	}}
	report, err := comp.Load(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 1, report.Updated)

	stored, err := env.Data.ReadMapping("users")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"jdoe": 7, "asmith": 8}, stored)
}

func TestUsers_MapCarriesAvatarURLWhenEnabled(t *testing.T) {
	env := testEnv(t)
	env.Cfg.Migration.MigrateAvatars = true
	comp := NewUsers(env)

	batch := &Batch{Component: "users", Index: 0, Model: "users", Rows: []map[string]any{
		{"key": "u1", "name": "jdoe", "email": "jdoe@example.com", "display_name": "John Doe",
			"avatar_url": "https://jira.example.com/avatar/u1"},
	}}
	mapped, err := comp.Map(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, mapped.Rows, 1)
	assert.Equal(t, "https://jira.example.com/avatar/u1", mapped.Rows[0]["avatar_url"])
}

func TestUsers_LoadBackfillsAvatars(t *testing.T) {
	env := testEnv(t)
	env.Cfg.Migration.MigrateAvatars = true
	op := openproject.NewMockClient()
	env.OpenProject = op
	comp := NewUsers(env)

	jc := mockJira(env)
	jc.Avatars["https://jira.example.com/avatar/u1"] = []byte("png-bytes")
	queueLoadResult(env, map[string]int{"jdoe": 7, "asmith": 8})

	batch := &Batch{Component: "users", Index: 0, Model: "users", Rows: []map[string]any{
		{"login": "jdoe", "origin_key": "jdoe", "avatar_url": "https://jira.example.com/avatar/u1"},
		// Download failures are logged and skipped, never fatal.
		{"login": "asmith", "origin_key": "asmith", "avatar_url": "https://jira.example.com/avatar/missing"},
	}}
	report, err := comp.Load(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)

	assert.Equal(t, []byte("png-bytes"), op.AvatarUploads[7])
	_, uploaded := op.AvatarUploads[8]
	assert.False(t, uploaded)
}

func TestUsers_DryRunSkipsAvatarBackfill(t *testing.T) {
	env := testEnv(t)
	env.Cfg.Migration.MigrateAvatars = true
	env.DryRun = true
	op := openproject.NewMockClient()
	env.OpenProject = op
	comp := NewUsers(env)

	jc := mockJira(env)
	jc.Avatars["https://jira.example.com/avatar/u1"] = []byte("png-bytes")
	queueLoadResult(env, map[string]int{"jdoe": 7})

	batch := &Batch{Component: "users", Index: 0, Model: "users", Rows: []map[string]any{
		{"login": "jdoe", "origin_key": "jdoe", "avatar_url": "https://jira.example.com/avatar/u1"},
	}}
	_, err := comp.Load(context.Background(), batch)
	require.NoError(t, err)
	assert.Empty(t, op.AvatarUploads)
}
