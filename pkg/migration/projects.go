package migration

import (
	"context"

	"github.com/j2o/migrate/pkg/jira"
	"github.com/j2o/migrate/pkg/mapping"
)

// Projects migrates Jira projects, assigning the project lead as an admin
// member and enabling the core modules.
type Projects struct {
	base
}

// NewProjects creates the projects component.
func NewProjects(env *Env) *Projects {
	return &Projects{base{name: "projects", deps: []string{"users", "groups"}, env: env}}
}

func (c *Projects) Extract(ctx context.Context) ([]*Batch, error) {
	if !c.env.Force {
		if cached, ok := c.cachedBatches("projects"); ok {
			return cached, nil
		}
	}

	projects, err := c.env.Jira.GetProjects(ctx, c.env.Cfg.Jira.Projects)
	if err != nil {
		return nil, &ComponentError{Component: c.name, Batch: -1, Message: "fetching projects", Err: err}
	}
	rows, err := asRows(projects)
	if err != nil {
		return nil, &ComponentError{Component: c.name, Batch: -1, Message: "encoding extracted projects", Err: err}
	}

	batches := chunk(c.name, "projects", rows, c.env.batchSize())
	c.cacheBatches(batches)
	return batches, nil
}

func (c *Projects) Map(ctx context.Context, batch *Batch) (*Batch, error) {
	mapped := make([]map[string]any, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		var project jira.Project
		if err := decodeRow(row, &project); err != nil {
			return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "decoding project row", Err: err}
		}
		record, tag, err := mapping.MapProject(project)
		if err != nil {
			c.env.Log.Info("skipping unmappable project", "project", project.Key, "reason", err.Error())
			continue
		}
		out := map[string]any(record)
		out["origin_key"] = tag.Key
		out["custom_field_values"] = mapping.ProvenanceValues(tag)
		if parent := c.env.Cfg.Migration.ParentProject; parent != "" {
			out["parent_identifier"] = parent
		}
		mapped = append(mapped, out)
	}
	return &Batch{Component: batch.Component, Index: batch.Index, Model: "projects", Rows: mapped}, nil
}

func (c *Projects) Load(ctx context.Context, batch *Batch) (*LoadReport, error) {
	report, err := c.loadViaScript(ctx, batch)
	if err != nil || c.env.DryRun {
		return report, err
	}
	if err := c.mergeMapping(c.name, report.Mapping); err != nil {
		return report, &ComponentError{Component: c.name, Batch: batch.Index, Message: "persisting mapping", Err: err}
	}

	// The lead becomes an admin member in a follow-up script; membership
	// reconciliation is idempotent on its own.
	members := make([]map[string]any, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		lead, _ := row["lead_login"].(string)
		identifier, _ := row["identifier"].(string)
		if lead == "" || identifier == "" {
			continue
		}
		members = append(members, map[string]any{
			"project_identifier": identifier,
			"login":              lead,
			"role_names":         []string{"Project admin"},
			"origin_key":         row["origin_key"],
		})
	}
	if len(members) == 0 {
		return report, nil
	}
	memberBatch := &Batch{Component: c.name, Index: batch.Index, Model: "memberships", Rows: members}
	memberReport, err := c.loadViaScript(ctx, memberBatch)
	if err != nil {
		return report, err
	}
	report.Created += memberReport.Created
	report.Updated += memberReport.Updated
	report.Failed += memberReport.Failed
	report.Errors = append(report.Errors, memberReport.Errors...)
	return report, nil
}
