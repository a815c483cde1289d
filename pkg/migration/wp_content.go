package migration

import (
	"context"

	"github.com/j2o/migrate/pkg/jira"
	"github.com/j2o/migrate/pkg/journal"
	"github.com/j2o/migrate/pkg/mapping"
	"github.com/j2o/migrate/pkg/markup"
)

// WorkPackagesContent is phase two: with the complete key mapping in hand,
// each work package receives its description (cross-references rewritten),
// custom-field values, and the reconstructed journal history.
type WorkPackagesContent struct {
	base
}

// NewWorkPackagesContent creates the content component.
func NewWorkPackagesContent(env *Env) *WorkPackagesContent {
	return &WorkPackagesContent{base{
		name: "work_packages_content",
		deps: []string{"work_packages_skeleton"},
		env:  env,
	}}
}

func (c *WorkPackagesContent) Extract(ctx context.Context) ([]*Batch, error) {
	if _, ok, err := c.wpMapping(); err != nil {
		return nil, err
	} else if !ok {
		return nil, nil
	}
	return c.skeletonIssueBatches(ctx, "journals")
}

// resolverSet bundles the name-to-ID lookups phase two depends on.
type resolverSet struct {
	users      map[string]int
	projects   map[string]int
	types      map[string]int
	statuses   map[string]int
	priorities map[string]int
	wp         map[string]int
}

func (c *WorkPackagesContent) resolvers() (*resolverSet, error) {
	set := &resolverSet{}
	for _, entry := range []struct {
		component string
		dst       *map[string]int
	}{
		{"users", &set.users},
		{"projects", &set.projects},
		{"issue_types", &set.types},
		{"statuses", &set.statuses},
		{"priorities", &set.priorities},
	} {
		m, err := c.env.Data.ReadMapping(entry.component)
		if err != nil {
			return nil, &ComponentError{Component: c.name, Batch: -1, Message: "reading " + entry.component + " mapping", Err: err}
		}
		*entry.dst = m
	}
	wp, err := c.env.Data.ReadWorkPackageMapping()
	if err != nil {
		return nil, &ComponentError{Component: c.name, Batch: -1, Message: "reading work package mapping", Err: err}
	}
	set.wp = wp
	return set, nil
}

func lookupIn(m map[string]int) func(string) (int, bool) {
	return func(name string) (int, bool) {
		id, ok := m[name]
		return id, ok
	}
}

func (c *WorkPackagesContent) Map(ctx context.Context, batch *Batch) (*Batch, error) {
	set, err := c.resolvers()
	if err != nil {
		return nil, err
	}
	builder := &journal.Builder{
		Resolvers: journal.Resolvers{
			User:     lookupIn(set.users),
			Status:   lookupIn(set.statuses),
			Type:     lookupIn(set.types),
			Priority: lookupIn(set.priorities),
		},
		DeletedUserID:       c.env.Cfg.Migration.FallbackAdminUserID,
		TrackedCustomFields: map[string]bool{"Resolution": true},
	}
	fallback := mapping.UserFallback{
		Strategy: c.env.Cfg.Migration.Mapping.FallbackStrategy,
		AdminID:  c.env.Cfg.Migration.FallbackAdminUserID,
	}
	keyResolver := lookupIn(set.wp)

	mapped := make([]map[string]any, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		var issue jira.Issue
		if err := decodeRow(row, &issue); err != nil {
			return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "decoding issue row", Err: err}
		}
		wpID, ok := set.wp[issue.Key]
		if !ok {
			if c.env.Cfg.Migration.TransformationRequireMapping {
				return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "no mapping for " + issue.Key, Err: ErrMappingMissing}
			}
			c.env.Log.Info("no work package for issue, skipping", "key", issue.Key)
			continue
		}

		// Comments become journal notes; convert and rewrite them the same
		// way as the description.
		for i := range issue.Comments {
			body := markup.ToMarkdown(issue.Comments[i].Body)
			issue.Comments[i].Body = markup.RewriteIssueKeys(body, markup.Resolver(keyResolver))
		}

		record := mapping.MapWorkPackageContent(&issue, keyResolver)
		out := map[string]any(record)
		out["wp_id"] = wpID
		out["origin_key"] = issue.Key
		if login, okAssignee := out["assignee_login"].(string); okAssignee {
			delete(out, "assignee_login")
			if id, resolved, err := fallback.Resolve(login, lookupIn(set.users)); err == nil && resolved {
				out["assignee_id"] = id
			}
		}

		rows, err := builder.Build(&issue, c.defaults(&issue, set))
		if err != nil {
			return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "building journals for " + issue.Key, Err: err}
		}
		out["journals"] = rows
		mapped = append(mapped, out)
	}
	return &Batch{Component: batch.Component, Index: batch.Index, Model: "journals", Rows: mapped, ResumeToken: batch.ResumeToken}, nil
}

// defaults is the current-state snapshot journal rows inherit missing
// required fields from.
func (c *WorkPackagesContent) defaults(issue *jira.Issue, set *resolverSet) journal.Snapshot {
	snapshot := journal.Snapshot{}
	if id, ok := set.users[issue.ReporterName]; ok {
		snapshot["author_id"] = id
	}
	if id, ok := set.projects[issue.ProjectKey]; ok {
		snapshot["project_id"] = id
	}
	if id, ok := set.types[issue.TypeName]; ok {
		snapshot["type_id"] = id
	}
	if id, ok := set.statuses[issue.StatusName]; ok {
		snapshot["status_id"] = id
	}
	if id, ok := set.priorities[issue.PriorityName]; ok {
		snapshot["priority_id"] = id
	}
	return snapshot
}

func (c *WorkPackagesContent) Load(ctx context.Context, batch *Batch) (*LoadReport, error) {
	contentRows := make([]map[string]any, 0, len(batch.Rows))
	journalRows := make([]map[string]any, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		content := make(map[string]any, len(row))
		for key, value := range row {
			if key == "journals" {
				continue
			}
			content[key] = value
		}
		contentRows = append(contentRows, content)
		journalRows = append(journalRows, map[string]any{
			"wp_id":      row["wp_id"],
			"origin_key": row["origin_key"],
			"journals":   row["journals"],
		})
	}

	report, err := c.loadViaScript(ctx, &Batch{
		Component: c.name, Index: batch.Index, Model: "work_package_content", Rows: contentRows,
	})
	if err != nil {
		return nil, err
	}
	journalReport, err := c.loadViaScript(ctx, &Batch{
		Component: c.name, Index: batch.Index, Model: "journals", Rows: journalRows,
	})
	if err != nil {
		return report, err
	}
	report.Created += journalReport.Created
	report.Failed += journalReport.Failed
	report.Errors = append(report.Errors, journalReport.Errors...)
	return report, nil
}
