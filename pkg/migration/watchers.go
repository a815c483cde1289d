package migration

import (
	"context"

	"github.com/j2o/migrate/pkg/jira"
)

// Watchers migrates issue watcher lists.
type Watchers struct {
	base
}

// NewWatchers creates the watchers component.
func NewWatchers(env *Env) *Watchers {
	return &Watchers{base{
		name: "watchers",
		deps: []string{"work_packages_skeleton", "users"},
		env:  env,
	}}
}

func (c *Watchers) Extract(ctx context.Context) ([]*Batch, error) {
	if !c.env.Force {
		if cached, ok := c.cachedBatches("watchers"); ok {
			return cached, nil
		}
	}

	issueBatches, err := c.skeletonIssueBatches(ctx, "watchers")
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	for _, batch := range issueBatches {
		for _, row := range batch.Rows {
			var issue jira.Issue
			if err := decodeRow(row, &issue); err != nil {
				return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "decoding issue row", Err: err}
			}
			watchers, err := c.env.Jira.GetWatchers(ctx, issue.Key)
			if err != nil {
				return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "fetching watchers for " + issue.Key, Err: err}
			}
			for _, login := range watchers {
				rows = append(rows, map[string]any{
					"issue_key":  issue.Key,
					"login":      login,
					"origin_key": issue.Key + "@" + login,
				})
			}
		}
	}

	batches := chunk(c.name, "watchers", rows, c.env.batchSize())
	c.cacheBatches(batches)
	return batches, nil
}

func (c *Watchers) Map(ctx context.Context, batch *Batch) (*Batch, error) {
	wp, ok, err := c.wpMapping()
	if err != nil || !ok {
		return &Batch{Component: batch.Component, Index: batch.Index, Model: "watchers"}, err
	}

	mapped := make([]map[string]any, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		issueKey, _ := row["issue_key"].(string)
		wpID, found := wp[issueKey]
		if !found {
			c.env.Log.Info("no work package for watcher, skipping", "issue", issueKey)
			continue
		}
		mapped = append(mapped, map[string]any{
			"wp_id":      wpID,
			"login":      row["login"],
			"origin_key": row["origin_key"],
		})
	}
	return &Batch{Component: batch.Component, Index: batch.Index, Model: "watchers", Rows: mapped}, nil
}

func (c *Watchers) Load(ctx context.Context, batch *Batch) (*LoadReport, error) {
	return c.loadViaScript(ctx, batch)
}
