package journal

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j2o/migrate/pkg/jira"
)

var testStatuses = map[string]int{"Open": 1, "In Progress": 2, "Closed": 3}
var testUsers = map[string]int{"jdoe": 12, "asmith": 13}

func testBuilder() *Builder {
	return &Builder{
		Resolvers: Resolvers{
			User:     func(name string) (int, bool) { id, ok := testUsers[name]; return id, ok },
			Status:   func(name string) (int, bool) { id, ok := testStatuses[name]; return id, ok },
			Type:     func(name string) (int, bool) { return 0, false },
			Priority: func(name string) (int, bool) { return 0, false },
		},
		DeletedUserID:       999,
		TrackedCustomFields: map[string]bool{"Resolution": true},
	}
}

func testDefaults() Snapshot {
	return Snapshot{
		"author_id":   12,
		"project_id":  3,
		"type_id":     5,
		"status_id":   1,
		"priority_id": 8,
	}
}

func baseIssue() *jira.Issue {
	return &jira.Issue{
		ID:           "20182",
		Key:          "NRS-182",
		ProjectKey:   "NRS",
		Summary:      "Widget regression",
		ReporterName: "jdoe",
		Created:      time.Date(2023, 1, 10, 8, 0, 0, 0, time.UTC),
	}
}

func statusChange(author string, at time.Time, from, to string) jira.ChangelogEntry {
	return jira.ChangelogEntry{
		AuthorName: author,
		Created:    at,
		Items: []jira.ChangeItem{{
			Field: "status", FromString: from, ToString: to,
		}},
	}
}

func TestBuild_VersionsAndValidity(t *testing.T) {
	issue := baseIssue()
	base := issue.Created
	issue.Comments = []jira.Comment{
		{AuthorName: "asmith", Body: "first comment", Created: base.Add(time.Hour)},
	}
	issue.Changelog = []jira.ChangelogEntry{
		statusChange("jdoe", base.Add(2*time.Hour), "Open", "In Progress"),
		statusChange("jdoe", base.Add(3*time.Hour), "In Progress", "Closed"),
	}

	rows, err := testBuilder().Build(issue, testDefaults())
	require.NoError(t, err)
	require.Len(t, rows, 4)

	// Versions are 1..N contiguous.
	for i, row := range rows {
		assert.Equal(t, i+1, row.Version)
	}

	// Periods are time-ordered and non-overlapping; only the last is open.
	for i, row := range rows {
		if i+1 < len(rows) {
			require.NotNil(t, row.ValidityEnd, "row %d must be closed", i)
			assert.True(t, row.ValidityStart.Before(*row.ValidityEnd))
			assert.Equal(t, *row.ValidityEnd, rows[i+1].ValidityStart)
		} else {
			assert.Nil(t, row.ValidityEnd, "last row must be open-ended")
		}
	}
}

func TestBuild_TimestampCollisionBumpsByOneMicrosecond(t *testing.T) {
	issue := baseIssue()
	base := issue.Created
	collision := base.Add(time.Hour)
	for i := 0; i < 22; i++ {
		at := base.Add(time.Duration(i+1) * time.Minute)
		if i == 17 || i == 18 {
			at = collision
		}
		issue.Changelog = append(issue.Changelog,
			statusChange("jdoe", at, "Open", "In Progress"))
	}

	rows, err := testBuilder().Build(issue, testDefaults())
	require.NoError(t, err)
	require.Len(t, rows, 23) // creation + 22 events, no retracted placeholders

	// Strictly increasing begins; the colliding pair differs by exactly 1µs.
	var bumped int
	for i := 1; i < len(rows); i++ {
		delta := rows[i].ValidityStart.Sub(rows[i-1].ValidityStart)
		assert.Positive(t, delta, "row %d begin did not advance", i)
		if delta == time.Microsecond {
			bumped++
		}
	}
	assert.Equal(t, 1, bumped)
}

func TestBuild_UnmappedFieldPreservedAsNote(t *testing.T) {
	issue := baseIssue()
	issue.Changelog = []jira.ChangelogEntry{{
		AuthorName: "jdoe",
		Created:    issue.Created.Add(time.Hour),
		Items: []jira.ChangeItem{{
			Field: "labels", FromString: "", ToString: "backend, urgent",
		}},
	}}

	rows, err := testBuilder().Build(issue, testDefaults())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Jira: labels changed from '' to 'backend, urgent'", rows[1].Notes)
}

func TestBuild_EmptyOperationDroppedAfterRescue(t *testing.T) {
	issue := baseIssue()
	issue.Changelog = []jira.ChangelogEntry{{
		AuthorName: "jdoe",
		Created:    issue.Created.Add(time.Hour),
		Items:      nil, // nothing to map, nothing to rescue
	}}

	rows, err := testBuilder().Build(issue, testDefaults())
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestBuild_AttributionFallsBackToAuthor(t *testing.T) {
	issue := baseIssue()
	issue.Comments = []jira.Comment{{
		AuthorName: "deleted.user", // unresolvable
		Body:       "orphaned comment",
		Created:    issue.Created.Add(time.Hour),
	}}

	rows, err := testBuilder().Build(issue, testDefaults())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// Author, not the system deleted-user account.
	assert.Equal(t, 12, rows[1].UserID)
}

func TestBuild_AttributionDeletedUserLastResort(t *testing.T) {
	issue := baseIssue()
	issue.ReporterName = "also.gone"
	issue.Comments = []jira.Comment{{
		AuthorName: "deleted.user",
		Body:       "fully orphaned",
		Created:    issue.Created.Add(time.Hour),
	}}
	defaults := testDefaults()
	delete(defaults, "author_id")

	rows, err := testBuilder().Build(issue, defaults)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 999, rows[1].UserID)
}

func TestBuild_SnapshotsFollowTimestampOrder(t *testing.T) {
	issue := baseIssue()
	base := issue.Created
	// Changelog delivered out of order; snapshots must follow sorted time.
	issue.Changelog = []jira.ChangelogEntry{
		statusChange("jdoe", base.Add(3*time.Hour), "In Progress", "Closed"),
		statusChange("jdoe", base.Add(1*time.Hour), "Open", "In Progress"),
	}

	rows, err := testBuilder().Build(issue, testDefaults())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, 2, rows[1].Data["status_id"], "first transition is Open -> In Progress")
	assert.Equal(t, 3, rows[2].Data["status_id"], "second transition is In Progress -> Closed")
	assert.True(t, rows[1].ValidityStart.Before(rows[2].ValidityStart))
}

func TestBuild_RequiredFieldsInherited(t *testing.T) {
	issue := baseIssue()
	issue.Comments = []jira.Comment{{
		AuthorName: "asmith", Body: "note", Created: issue.Created.Add(time.Hour),
	}}

	rows, err := testBuilder().Build(issue, testDefaults())
	require.NoError(t, err)
	for _, row := range rows {
		assert.Equal(t, 3, row.Data["project_id"])
		assert.Equal(t, 5, row.Data["type_id"])
		assert.Equal(t, 8, row.Data["priority_id"])
		assert.NotNil(t, row.Data["status_id"])
		author, ok := row.Data["author_id"].(int)
		require.True(t, ok, "author_id must be set on every snapshot")
		assert.Positive(t, author)
	}
}

func TestBuild_TrackedCustomFieldHistory(t *testing.T) {
	issue := baseIssue()
	issue.Changelog = []jira.ChangelogEntry{{
		AuthorName: "jdoe",
		Created:    issue.Created.Add(time.Hour),
		Items: []jira.ChangeItem{{
			Field: "Resolution", FromString: "", ToString: "Fixed",
		}},
	}}

	rows, err := testBuilder().Build(issue, testDefaults())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Fixed", rows[1].CFValues["Resolution"])
	assert.Empty(t, rows[0].CFValues)
}

func TestBuild_UntouchedIssueStillGetsCreationJournal(t *testing.T) {
	rows, err := testBuilder().Build(baseIssue(), testDefaults())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Version)
	assert.Nil(t, rows[0].ValidityEnd)
	assert.Equal(t, 12, rows[0].UserID)
}

func TestBuild_ManyCollisionsStayOrdered(t *testing.T) {
	issue := baseIssue()
	at := issue.Created.Add(time.Hour)
	for i := 0; i < 50; i++ {
		issue.Comments = append(issue.Comments, jira.Comment{
			AuthorName: "jdoe",
			Body:       fmt.Sprintf("burst %d", i),
			Created:    at,
		})
	}

	rows, err := testBuilder().Build(issue, testDefaults())
	require.NoError(t, err)
	require.Len(t, rows, 51)
	for i := 1; i < len(rows); i++ {
		assert.True(t, rows[i-1].ValidityStart.Before(rows[i].ValidityStart))
	}
}

func TestBuild_EarlyRowsCarryHistoricalState(t *testing.T) {
	issue := baseIssue()
	base := issue.Created
	issue.Changelog = []jira.ChangelogEntry{
		statusChange("jdoe", base.Add(2*time.Hour), "Open", "Closed"),
	}

	// Defaults reflect the issue as it is today, after the close.
	defaults := testDefaults()
	defaults["status_id"] = 3

	rows, err := testBuilder().Build(issue, defaults)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 1, rows[0].Data["status_id"], "creation row shows the state at creation time, not today's")
	assert.Equal(t, 3, rows[1].Data["status_id"])
}

func TestBuild_CreationStateFromEarliestTransition(t *testing.T) {
	issue := baseIssue()
	base := issue.Created
	issue.Comments = []jira.Comment{
		{AuthorName: "asmith", Body: "still open here", Created: base.Add(30 * time.Minute)},
	}
	issue.Changelog = []jira.ChangelogEntry{
		statusChange("jdoe", base.Add(1*time.Hour), "Open", "In Progress"),
		statusChange("jdoe", base.Add(2*time.Hour), "In Progress", "Closed"),
	}

	defaults := testDefaults()
	defaults["status_id"] = 3

	rows, err := testBuilder().Build(issue, defaults)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	// Rows before the first transition rewind to the earliest from-value.
	assert.Equal(t, 1, rows[0].Data["status_id"])
	assert.Equal(t, 1, rows[1].Data["status_id"])
	assert.Equal(t, 2, rows[2].Data["status_id"])
	assert.Equal(t, 3, rows[3].Data["status_id"])
}
