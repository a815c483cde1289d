package migration

import (
	"context"
	"strings"

	"github.com/j2o/migrate/pkg/jira"
)

// Relations migrates issue links once both endpoints exist as work packages.
type Relations struct {
	base
}

// NewRelations creates the relations component.
func NewRelations(env *Env) *Relations {
	return &Relations{base{
		name: "relations",
		deps: []string{"work_packages_content"},
		env:  env,
	}}
}

// relationType maps Jira link type names to target relation types. Unknown
// types degrade to "relates" so no link is dropped.
func relationType(jiraType string) string {
	switch strings.ToLower(jiraType) {
	case "blocks":
		return "blocks"
	case "cloners", "duplicate":
		return "duplicates"
	case "problem/incident", "causes":
		return "causes"
	case "subtask", "parent":
		return "parent"
	default:
		return "relates"
	}
}

func (c *Relations) Extract(ctx context.Context) ([]*Batch, error) {
	issueBatches, err := c.skeletonIssueBatches(ctx, "relations")
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
			for _, link := range issue.Links {
				// Each link appears on both endpoints; keep the outward side
				// so every relation is created exactly once.
				if link.Direction != "outward" {
					continue
				}
				rows = append(rows, map[string]any{
					"from_key":      issue.Key,
					"to_key":        link.IssueKey,
					"relation_type": relationType(link.Type),
					"origin_key":    issue.Key + ">" + link.IssueKey,
				})
			}
		}
	}
	return chunk(c.name, "relations", rows, c.env.batchSize()), nil
}

func (c *Relations) Map(ctx context.Context, batch *Batch) (*Batch, error) {
	wp, ok, err := c.wpMapping()
	if err != nil || !ok {
		return &Batch{Component: batch.Component, Index: batch.Index, Model: "relations"}, err
	}

	mapped := make([]map[string]any, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		fromKey, _ := row["from_key"].(string)
		toKey, _ := row["to_key"].(string)
		fromID, fromOK := wp[fromKey]
		toID, toOK := wp[toKey]
		if !fromOK || !toOK {
			c.env.Log.Info("relation endpoint not migrated, skipping", "from", fromKey, "to", toKey)
			continue
		}
		mapped = append(mapped, map[string]any{
			"from_wp_id":    fromID,
			"to_wp_id":      toID,
			"relation_type": row["relation_type"],
			"origin_key":    row["origin_key"],
		})
	}
	return &Batch{Component: batch.Component, Index: batch.Index, Model: "relations", Rows: mapped}, nil
}

func (c *Relations) Load(ctx context.Context, batch *Batch) (*LoadReport, error) {
	return c.loadViaScript(ctx, batch)
}
