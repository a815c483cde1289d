package migration

import (
	"context"

	"github.com/j2o/migrate/pkg/jira"
)

// Labels assigns Jira issue labels to migrated work packages through a
// shared multi-value list custom field maintained by the load script.
type Labels struct {
	base
}

// NewLabels creates the labels component.
func NewLabels(env *Env) *Labels {
	return &Labels{base{
		name: "labels",
		deps: []string{"work_packages_skeleton"},
		env:  env,
	}}
}

func (c *Labels) Extract(ctx context.Context) ([]*Batch, error) {
	if !c.env.Force {
		if cached, ok := c.cachedBatches("labels"); ok {
			return cached, nil
		}
	}

	issueBatches, err := c.skeletonIssueBatches(ctx, "labels")
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
			if len(issue.Labels) == 0 {
				continue
			}
			rows = append(rows, map[string]any{
				"issue_key":  issue.Key,
				"labels":     issue.Labels,
				"origin_key": issue.Key,
			})
		}
	}

	batches := chunk(c.name, "labels", rows, c.env.batchSize())
	c.cacheBatches(batches)
	return batches, nil
}

func (c *Labels) Map(ctx context.Context, batch *Batch) (*Batch, error) {
	wp, ok, err := c.wpMapping()
	if err != nil || !ok {
		return &Batch{Component: batch.Component, Index: batch.Index, Model: "labels"}, err
	}

	mapped := make([]map[string]any, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		issueKey, _ := row["issue_key"].(string)
		wpID, found := wp[issueKey]
		if !found {
			c.env.Log.Info("no work package for labels, skipping", "issue", issueKey)
			continue
		}
		mapped = append(mapped, map[string]any{
			"wp_id":      wpID,
			"labels":     row["labels"],
			"origin_key": row["origin_key"],
		})
	}
	return &Batch{Component: batch.Component, Index: batch.Index, Model: "labels", Rows: mapped}, nil
}

func (c *Labels) Load(ctx context.Context, batch *Batch) (*LoadReport, error) {
	return c.loadViaScript(ctx, batch)
}
