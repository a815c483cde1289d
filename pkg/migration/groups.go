package migration

import (
	"context"

	"github.com/j2o/migrate/pkg/jira"
	"github.com/j2o/migrate/pkg/mapping"
)

// Groups migrates Jira groups and reconciles their memberships.
type Groups struct {
	base
}

// NewGroups creates the groups component.
func NewGroups(env *Env) *Groups {
	return &Groups{base{name: "groups", deps: []string{"users"}, env: env}}
}

func (c *Groups) Extract(ctx context.Context) ([]*Batch, error) {
	if !c.env.Force {
		if cached, ok := c.cachedBatches("groups"); ok {
			return cached, nil
		}
	}

	groups, err := c.env.Jira.GetGroups(ctx)
	if err != nil {
		return nil, &ComponentError{Component: c.name, Batch: -1, Message: "fetching groups", Err: err}
	}
	rows, err := asRows(groups)
	if err != nil {
		return nil, &ComponentError{Component: c.name, Batch: -1, Message: "encoding extracted groups", Err: err}
	}

	batches := chunk(c.name, "groups", rows, c.env.batchSize())
	c.cacheBatches(batches)
	return batches, nil
}

func (c *Groups) Map(ctx context.Context, batch *Batch) (*Batch, error) {
	mapped := make([]map[string]any, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		var group jira.Group
		if err := decodeRow(row, &group); err != nil {
			return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "decoding group row", Err: err}
		}
		record, tag, err := mapping.MapGroup(group)
		if err != nil {
			c.env.Log.Info("skipping unmappable group", "group", group.Name, "reason", err.Error())
			continue
		}
		out := map[string]any(record)
		out["origin_key"] = tag.Key
		mapped = append(mapped, out)
	}
	return &Batch{Component: batch.Component, Index: batch.Index, Model: "groups", Rows: mapped}, nil
}

func (c *Groups) Load(ctx context.Context, batch *Batch) (*LoadReport, error) {
	return c.loadViaScript(ctx, batch)
}
