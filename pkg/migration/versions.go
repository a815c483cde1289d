package migration

import (
	"context"
)

// Versions migrates Jira fix versions into per-project target versions.
// Released versions arrive closed so backlogs filter them the same way the
// source did.
type Versions struct {
	base
}

// NewVersions creates the versions component.
func NewVersions(env *Env) *Versions {
	return &Versions{base{name: "versions", deps: []string{"projects"}, env: env}}
}

func (c *Versions) Extract(ctx context.Context) ([]*Batch, error) {
	if !c.env.Force {
		if cached, ok := c.cachedBatches("versions"); ok {
			return cached, nil
		}
	}

	projects, err := c.env.Jira.GetProjects(ctx, c.env.Cfg.Jira.Projects)
	if err != nil {
		return nil, &ComponentError{Component: c.name, Batch: -1, Message: "fetching projects", Err: err}
	}

	var rows []map[string]any
	for _, p := range projects {
		for _, v := range p.Versions {
			status := "open"
			if v.Released {
				status = "closed"
			}
			rows = append(rows, map[string]any{
				"project_key":    p.Key,
				"name":           v.Name,
				"description":    v.Description,
				"status":         status,
				"effective_date": v.ReleaseDate,
				"origin_key":     p.Key + "/" + v.Name,
			})
		}
	}

	batches := chunk(c.name, "versions", rows, c.env.batchSize())
	c.cacheBatches(batches)
	return batches, nil
}

func (c *Versions) Map(ctx context.Context, batch *Batch) (*Batch, error) {
	projects, err := c.env.Data.ReadMapping("projects")
	if err != nil {
		return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "reading projects mapping", Err: err}
	}

	mapped := make([]map[string]any, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		key, _ := row["project_key"].(string)
		id, ok := projects[key]
		if !ok {
			c.env.Log.Info("no target project for version, skipping", "project", key, "version", row["name"])
			continue
		}
		mapped = append(mapped, map[string]any{
			"project_id":     id,
			"name":           row["name"],
			"description":    row["description"],
			"status":         row["status"],
			"effective_date": row["effective_date"],
			"origin_key":     row["origin_key"],
		})
	}
	return &Batch{Component: batch.Component, Index: batch.Index, Model: "versions", Rows: mapped}, nil
}

func (c *Versions) Load(ctx context.Context, batch *Batch) (*LoadReport, error) {
	report, err := c.loadViaScript(ctx, batch)
	if err != nil {
		return nil, err
	}
	if err := c.mergeMapping(c.name, report.Mapping); err != nil {
		return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "persisting mapping", Err: err}
	}
	return report, nil
}
