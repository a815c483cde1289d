package migration

import (
	"context"
	"fmt"

	"github.com/j2o/migrate/pkg/jira"
	"github.com/j2o/migrate/pkg/jql"
	"github.com/j2o/migrate/pkg/mapping"
)

// WorkPackagesSkeleton is phase one of the two-phase work-package migration:
// one minimal work package per issue, plus the provenance tag. Its output is
// the complete issue-key to work-package-ID mapping that phase two needs to
// rewrite cross-references.
type WorkPackagesSkeleton struct {
	base
}

// NewWorkPackagesSkeleton creates the skeleton component.
func NewWorkPackagesSkeleton(env *Env) *WorkPackagesSkeleton {
	return &WorkPackagesSkeleton{base{
		name: "work_packages_skeleton",
		deps: []string{"projects", "custom_fields", "issue_types", "statuses", "priorities"},
		env:  env,
	}}
}

func (c *WorkPackagesSkeleton) Extract(ctx context.Context) ([]*Batch, error) {
	if !c.env.Force {
		if cached, ok := c.cachedBatches("work_packages"); ok {
			return cached, nil
		}
	}

	query := jql.ProjectsIssues(c.env.Cfg.Jira.Projects)
	size := c.env.batchSize()

	var batches []*Batch
	for startAt := 0; ; startAt += size {
		page, err := c.env.Jira.SearchIssuesPage(ctx, query, startAt, size)
		if err != nil {
			return nil, &ComponentError{Component: c.name, Batch: len(batches), Message: "searching issues", Err: err}
		}
		if len(page.Issues) == 0 {
			break
		}
		rows, err := asRows(page.Issues)
		if err != nil {
			return nil, &ComponentError{Component: c.name, Batch: len(batches), Message: "encoding issue page", Err: err}
		}
		batches = append(batches, &Batch{
			Component:   c.name,
			Index:       len(batches),
			Model:       "work_packages",
			Rows:        rows,
			ResumeToken: fmt.Sprintf("startAt=%d", startAt+len(page.Issues)),
		})
		if startAt+len(page.Issues) >= page.Total {
			break
		}
	}
	c.cacheBatches(batches)
	return batches, nil
}

func (c *WorkPackagesSkeleton) Map(ctx context.Context, batch *Batch) (*Batch, error) {
	mapped := make([]map[string]any, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		var issue jira.Issue
		if err := decodeRow(row, &issue); err != nil {
			return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "decoding issue row", Err: err}
		}
		record, tag, err := mapping.MapWorkPackageSkeleton(&issue, c.env.Cfg.Jira.URL)
		if err != nil {
			c.env.Log.Info("skipping unmappable issue", "key", issue.Key, "reason", err.Error())
			continue
		}
		if c.env.Cfg.Migration.SkipExisting {
			if _, found, err := c.env.Provenance.FindByProvenance(ctx, tag); err == nil && found {
				continue
			}
		}
		out := map[string]any(record)
		out["origin_id"] = tag.ID
		out["origin_key"] = tag.Key
		out["custom_field_values"] = mapping.ProvenanceValues(tag)
		mapped = append(mapped, out)
	}
	return &Batch{
		Component:   batch.Component,
		Index:       batch.Index,
		Model:       "work_packages",
		Rows:        mapped,
		ResumeToken: batch.ResumeToken,
	}, nil
}

func (c *WorkPackagesSkeleton) Load(ctx context.Context, batch *Batch) (*LoadReport, error) {
	report, err := c.loadViaScript(ctx, batch)
	if err != nil {
		return nil, err
	}
	if c.env.DryRun {
		return report, nil
	}

	existing, err := c.env.Data.ReadWorkPackageMapping()
	if err != nil {
		return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "reading work package mapping", Err: err}
	}
	for key, id := range report.Mapping {
		existing[key] = id
	}
	if err := c.env.Data.WriteWorkPackageMapping(existing); err != nil {
		return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "writing work package mapping", Err: err}
	}
	return report, nil
}
