package migration

import (
	"context"
	"fmt"

	"github.com/j2o/migrate/pkg/jira"
)

// RemoteLinks appends Jira web links to the migrated work package
// descriptions. It runs after phase two so the appended section survives the
// description rewrite.
type RemoteLinks struct {
	base
}

// NewRemoteLinks creates the remote links component.
func NewRemoteLinks(env *Env) *RemoteLinks {
	return &RemoteLinks{base{
		name: "remote_links",
		deps: []string{"work_packages_content"},
		env:  env,
	}}
}

func (c *RemoteLinks) Extract(ctx context.Context) ([]*Batch, error) {
	if !c.env.Force {
		if cached, ok := c.cachedBatches("remote_links"); ok {
			return cached, nil
		}
	}

	issueBatches, err := c.skeletonIssueBatches(ctx, "remote_links")
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
			links, err := c.env.Jira.GetRemoteLinks(ctx, issue.Key)
			if err != nil {
				return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "fetching remote links for " + issue.Key, Err: err}
			}
			for _, link := range links {
				rows = append(rows, map[string]any{
					"issue_key":  issue.Key,
					"title":      link.Title,
					"url":        link.URL,
					"origin_key": fmt.Sprintf("%s~%d", issue.Key, link.ID),
				})
			}
		}
	}

	batches := chunk(c.name, "remote_links", rows, c.env.batchSize())
	c.cacheBatches(batches)
	return batches, nil
}

func (c *RemoteLinks) Map(ctx context.Context, batch *Batch) (*Batch, error) {
	wp, ok, err := c.wpMapping()
	if err != nil || !ok {
		return &Batch{Component: batch.Component, Index: batch.Index, Model: "remote_links"}, err
	}

	mapped := make([]map[string]any, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		issueKey, _ := row["issue_key"].(string)
		wpID, found := wp[issueKey]
		if !found {
			c.env.Log.Info("no work package for remote link, skipping", "issue", issueKey)
			continue
		}
		mapped = append(mapped, map[string]any{
			"wp_id":      wpID,
			"title":      row["title"],
			"url":        row["url"],
			"origin_key": row["origin_key"],
		})
	}
	return &Batch{Component: batch.Component, Index: batch.Index, Model: "remote_links", Rows: mapped}, nil
}

func (c *RemoteLinks) Load(ctx context.Context, batch *Batch) (*LoadReport, error) {
	return c.loadViaScript(ctx, batch)
}
