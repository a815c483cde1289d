package migration

import (
	"context"
)

// ProjectComponents migrates Jira project components into target categories,
// the closest per-project grouping the target offers.
type ProjectComponents struct {
	base
}

// NewProjectComponents creates the components component.
func NewProjectComponents(env *Env) *ProjectComponents {
	return &ProjectComponents{base{name: "components", deps: []string{"projects"}, env: env}}
}

func (c *ProjectComponents) Extract(ctx context.Context) ([]*Batch, error) {
	if !c.env.Force {
		if cached, ok := c.cachedBatches("categories"); ok {
			return cached, nil
		}
	}

	projects, err := c.env.Jira.GetProjects(ctx, c.env.Cfg.Jira.Projects)
	if err != nil {
		return nil, &ComponentError{Component: c.name, Batch: -1, Message: "fetching projects", Err: err}
	}

	var rows []map[string]any
	for _, p := range projects {
		for _, cm := range p.Components {
			rows = append(rows, map[string]any{
				"project_key": p.Key,
				"name":        cm.Name,
				"origin_key":  p.Key + "/" + cm.Name,
			})
		}
	}

	batches := chunk(c.name, "categories", rows, c.env.batchSize())
	c.cacheBatches(batches)
	return batches, nil
}

func (c *ProjectComponents) Map(ctx context.Context, batch *Batch) (*Batch, error) {
	projects, err := c.env.Data.ReadMapping("projects")
	if err != nil {
		return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "reading projects mapping", Err: err}
	}

	mapped := make([]map[string]any, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		key, _ := row["project_key"].(string)
		id, ok := projects[key]
		if !ok {
			c.env.Log.Info("no target project for component, skipping", "project", key, "component", row["name"])
			continue
		}
		mapped = append(mapped, map[string]any{
			"project_id": id,
			"name":       row["name"],
			"origin_key": row["origin_key"],
		})
	}
	return &Batch{Component: batch.Component, Index: batch.Index, Model: "categories", Rows: mapped}, nil
}

func (c *ProjectComponents) Load(ctx context.Context, batch *Batch) (*LoadReport, error) {
	return c.loadViaScript(ctx, batch)
}
