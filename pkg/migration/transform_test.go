package migration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j2o/migrate/pkg/jira"
)

func seedWorkPackageMapping(t *testing.T, env *Env) {
	t.Helper()
	require.NoError(t, env.Data.WriteWorkPackageMapping(map[string]int{"NRS-1": 450, "NRS-2": 455}))
}

func TestTimeEntries_ExtractFlattensWorklogs(t *testing.T) {
	env := testEnv(t)
	seedIssues(env, 2)
	jc := mockJira(env)
	jc.Worklogs["NRS-1"] = []*jira.Worklog{
		{ID: "w1", AuthorName: "jdoe", Started: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), TimeSpentSeconds: 5400, Comment: "triage"},
	}

	batches, err := NewTimeEntries(env).Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Rows, 1)
	assert.Equal(t, "NRS-1#w1", batches[0].Rows[0]["origin_key"])
}

func TestTimeEntries_MapConvertsToHours(t *testing.T) {
	env := testEnv(t)
	seedWorkPackageMapping(t, env)
	require.NoError(t, env.Data.WriteMapping("users", map[string]int{"jdoe": 12}))
	comp := NewTimeEntries(env)

	batch := &Batch{Component: "time_entries", Index: 0, Model: "time_entries", Rows: []map[string]any{
		{"issue_key": "NRS-1", "user_login": "jdoe", "started": "2024-03-01T09:00:00Z", "seconds": 5400.0, "comments": "triage", "origin_key": "NRS-1#w1"},
		{"issue_key": "NRS-1", "user_login": "ghost", "started": "2024-03-01T09:00:00Z", "seconds": 3600.0, "origin_key": "NRS-1#w2"},
		{"issue_key": "NRS-9", "user_login": "jdoe", "started": "2024-03-01T09:00:00Z", "seconds": 3600.0, "origin_key": "NRS-9#w3"},
	}}
	mapped, err := comp.Map(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, mapped.Rows, 1, "unknown user and unmapped issue are skipped")

	row := mapped.Rows[0]
	assert.Equal(t, 450, row["wp_id"])
	assert.Equal(t, "2024-03-01", row["spent_on"])
	assert.Equal(t, 1.5, row["hours"])
}

func TestRelations_ExtractKeepsOutwardLinksOnly(t *testing.T) {
	env := testEnv(t)
	jc := mockJira(env)
	jc.Issues = []*jira.Issue{
		{
			ID: "10001", Key: "NRS-1", ProjectKey: "NRS", Summary: "a",
			TypeName: "Bug", StatusName: "Open", ReporterName: "jdoe",
			Links: []jira.IssueLink{
				{Type: "Blocks", Direction: "outward", IssueKey: "NRS-2"},
				{Type: "Blocks", Direction: "inward", IssueKey: "NRS-3"},
			},
		},
	}

	batches, err := NewRelations(env).Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Rows, 1)
	assert.Equal(t, "blocks", batches[0].Rows[0]["relation_type"])
	assert.Equal(t, "NRS-1>NRS-2", batches[0].Rows[0]["origin_key"])
}

func TestRelationType(t *testing.T) {
	assert.Equal(t, "blocks", relationType("Blocks"))
	assert.Equal(t, "duplicates", relationType("Duplicate"))
	assert.Equal(t, "parent", relationType("subtask"))
	assert.Equal(t, "relates", relationType("Something Custom"))
}

func TestRelations_MapDropsHalfMigratedPairs(t *testing.T) {
	env := testEnv(t)
	seedWorkPackageMapping(t, env)
	comp := NewRelations(env)

	batch := &Batch{Component: "relations", Index: 0, Model: "relations", Rows: []map[string]any{
		{"from_key": "NRS-1", "to_key": "NRS-2", "relation_type": "blocks", "origin_key": "NRS-1>NRS-2"},
		{"from_key": "NRS-1", "to_key": "NRS-9", "relation_type": "blocks", "origin_key": "NRS-1>NRS-9"},
	}}
	mapped, err := comp.Map(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, mapped.Rows, 1)
	assert.Equal(t, 450, mapped.Rows[0]["from_wp_id"])
	assert.Equal(t, 455, mapped.Rows[0]["to_wp_id"])
}

func TestWatchers_MapResolvesWorkPackage(t *testing.T) {
	env := testEnv(t)
	seedWorkPackageMapping(t, env)
	comp := NewWatchers(env)

	batch := &Batch{Component: "watchers", Index: 0, Model: "watchers", Rows: []map[string]any{
		{"issue_key": "NRS-1", "login": "jdoe", "origin_key": "NRS-1@jdoe"},
		{"issue_key": "NRS-9", "login": "jdoe", "origin_key": "NRS-9@jdoe"},
	}}
	mapped, err := comp.Map(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, mapped.Rows, 1)
	assert.Equal(t, 450, mapped.Rows[0]["wp_id"])
}

func TestAttachments_LoadStagesFilesBeforeScript(t *testing.T) {
	env := testEnv(t)
	jc := mockJira(env)
	jc.Attachments["900"] = []byte("file-bytes")
	comp := NewAttachments(env)

	batch := &Batch{Component: "attachments", Index: 0, Model: "attachments", Rows: []map[string]any{
		{
			"wp_id":         450,
			"attachment_id": "900",
			"filename":      "log.txt",
			"staged_path":   "/tmp/j2o_att_900_log.txt",
			"origin_key":    "NRS-1#900",
		},
	}}
	_, err := comp.Load(context.Background(), batch)
	require.NoError(t, err)

	ev := mockEvaluator(env)
	assert.Equal(t, []byte("file-bytes"), ev.TransferredIn["/tmp/j2o_att_900_log.txt"])
	require.Len(t, ev.Scripts, 1)
	assert.Contains(t, ev.Scripts[0], "Attachment")
}

func TestVersions_ExtractFlattensProjectVersions(t *testing.T) {
	env := testEnv(t)
	jc := mockJira(env)
	jc.Projects = []*jira.Project{
		{ID: "100", Key: "NRS", Name: "Norse", Versions: []jira.VersionMeta{
			{ID: "v1", Name: "1.0", Released: true, ReleaseDate: "2024-01-15"},
			{ID: "v2", Name: "2.0", Description: "next major"},
		}},
	}

	batches, err := NewVersions(env).Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Rows, 2)
	assert.Equal(t, "closed", batches[0].Rows[0]["status"])
	assert.Equal(t, "NRS/1.0", batches[0].Rows[0]["origin_key"])
	assert.Equal(t, "open", batches[0].Rows[1]["status"])
}

func TestVersions_MapResolvesProject(t *testing.T) {
	env := testEnv(t)
	require.NoError(t, env.Data.WriteMapping("projects", map[string]int{"NRS": 3}))
	comp := NewVersions(env)

	batch := &Batch{Component: "versions", Index: 0, Model: "versions", Rows: []map[string]any{
		{"project_key": "NRS", "name": "1.0", "status": "closed", "effective_date": "2024-01-15", "origin_key": "NRS/1.0"},
		{"project_key": "OPS", "name": "9.0", "status": "open", "origin_key": "OPS/9.0"},
	}}
	mapped, err := comp.Map(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, mapped.Rows, 1, "versions of unmapped projects are skipped")
	assert.Equal(t, 3, mapped.Rows[0]["project_id"])
	assert.Equal(t, "closed", mapped.Rows[0]["status"])
}

func TestProjectComponents_MapToCategories(t *testing.T) {
	env := testEnv(t)
	jc := mockJira(env)
	jc.Projects = []*jira.Project{
		{ID: "100", Key: "NRS", Name: "Norse", Components: []jira.ComponentMeta{
			{ID: "c1", Name: "Backend"},
		}},
	}
	require.NoError(t, env.Data.WriteMapping("projects", map[string]int{"NRS": 3}))
	comp := NewProjectComponents(env)

	batches, err := comp.Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "categories", batches[0].Model)

	mapped, err := comp.Map(context.Background(), batches[0])
	require.NoError(t, err)
	require.Len(t, mapped.Rows, 1)
	assert.Equal(t, 3, mapped.Rows[0]["project_id"])
	assert.Equal(t, "Backend", mapped.Rows[0]["name"])
	assert.Equal(t, "NRS/Backend", mapped.Rows[0]["origin_key"])
}

func TestLabels_ExtractSkipsUnlabeledIssues(t *testing.T) {
	env := testEnv(t)
	seedIssues(env, 2)
	jc := mockJira(env)
	jc.Issues[0].Labels = []string{"urgent", "infra"}

	batches, err := NewLabels(env).Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Rows, 1)
	assert.Equal(t, "NRS-1", batches[0].Rows[0]["issue_key"])
	assert.Equal(t, []string{"urgent", "infra"}, batches[0].Rows[0]["labels"])
}

func TestLabels_MapResolvesWorkPackage(t *testing.T) {
	env := testEnv(t)
	seedWorkPackageMapping(t, env)
	comp := NewLabels(env)

	batch := &Batch{Component: "labels", Index: 0, Model: "labels", Rows: []map[string]any{
		{"issue_key": "NRS-1", "labels": []any{"urgent"}, "origin_key": "NRS-1"},
		{"issue_key": "NRS-9", "labels": []any{"urgent"}, "origin_key": "NRS-9"},
	}}
	mapped, err := comp.Map(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, mapped.Rows, 1)
	assert.Equal(t, 450, mapped.Rows[0]["wp_id"])
}

func TestRemoteLinks_ExtractFetchesPerIssue(t *testing.T) {
	env := testEnv(t)
	seedIssues(env, 2)
	jc := mockJira(env)
	jc.RemoteLinks["NRS-1"] = []*jira.RemoteLink{
		{ID: 7, URL: "https://wiki.example.com/spec", Title: "Spec"},
	}

	batches, err := NewRemoteLinks(env).Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Rows, 1)
	assert.Equal(t, "NRS-1~7", batches[0].Rows[0]["origin_key"])
	assert.Equal(t, "https://wiki.example.com/spec", batches[0].Rows[0]["url"])
}

func TestRemoteLinks_MapResolvesWorkPackage(t *testing.T) {
	env := testEnv(t)
	seedWorkPackageMapping(t, env)
	comp := NewRemoteLinks(env)

	batch := &Batch{Component: "remote_links", Index: 0, Model: "remote_links", Rows: []map[string]any{
		{"issue_key": "NRS-1", "title": "Spec", "url": "https://wiki.example.com/spec", "origin_key": "NRS-1~7"},
		{"issue_key": "NRS-9", "title": "Gone", "url": "https://wiki.example.com/gone", "origin_key": "NRS-9~8"},
	}}
	mapped, err := comp.Map(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, mapped.Rows, 1)
	assert.Equal(t, 450, mapped.Rows[0]["wp_id"])
	assert.Equal(t, "Spec", mapped.Rows[0]["title"])
}

func TestTransformComponents_SkipWhenMappingMissing(t *testing.T) {
	env := testEnv(t)
	env.Cfg.Migration.TransformationRequireMapping = false

	batch := &Batch{Index: 0, Rows: []map[string]any{{"issue_key": "NRS-1"}}}
	mapped, err := NewWatchers(env).Map(context.Background(), batch)
	require.NoError(t, err)
	assert.Empty(t, mapped.Rows)
}

func TestTransformComponents_FailWhenMappingRequired(t *testing.T) {
	env := testEnv(t)

	batch := &Batch{Index: 0, Rows: []map[string]any{{"issue_key": "NRS-1"}}}
	_, err := NewWatchers(env).Map(context.Background(), batch)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMappingMissing)
}
