package migration

import (
	"context"
	"fmt"
	"io"
	"path"

	"golang.org/x/sync/errgroup"

	"github.com/j2o/migrate/pkg/jira"
)

// Attachments downloads issue attachments from Jira with a bounded worker
// pool, stages them inside the target container, and attaches them through
// the evaluator so the original author and timestamp survive.
type Attachments struct {
	base
}

// NewAttachments creates the attachments component.
func NewAttachments(env *Env) *Attachments {
	return &Attachments{base{
		name: "attachments",
		deps: []string{"work_packages_content"},
		env:  env,
	}}
}

func (c *Attachments) Extract(ctx context.Context) ([]*Batch, error) {
	issueBatches, err := c.skeletonIssueBatches(ctx, "attachments")
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
			for _, meta := range issue.Attachments {
				rows = append(rows, map[string]any{
					"issue_key":     issue.Key,
					"attachment_id": meta.ID,
					"filename":      meta.Filename,
					"content_type":  meta.MimeType,
					"author_login":  meta.AuthorName,
					"created_at":    meta.Created,
					"origin_key":    issue.Key + "#" + meta.ID,
				})
			}
		}
	}
	return chunk(c.name, "attachments", rows, c.env.batchSize()), nil
}

func (c *Attachments) Map(ctx context.Context, batch *Batch) (*Batch, error) {
	wp, ok, err := c.wpMapping()
	if err != nil || !ok {
		return &Batch{Component: batch.Component, Index: batch.Index, Model: "attachments"}, err
	}

	temp := c.env.Cfg.OpenProject.RemoteTemp
	mapped := make([]map[string]any, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		issueKey, _ := row["issue_key"].(string)
		wpID, found := wp[issueKey]
		if !found {
			c.env.Log.Info("no work package for attachment, skipping", "issue", issueKey)
			continue
		}
		out := make(map[string]any, len(row)+2)
		for key, value := range row {
			out[key] = value
		}
		out["wp_id"] = wpID
		out["staged_path"] = path.Join(temp, fmt.Sprintf("j2o_att_%v_%v", row["attachment_id"], row["filename"]))
		mapped = append(mapped, out)
	}
	return &Batch{Component: batch.Component, Index: batch.Index, Model: "attachments", Rows: mapped}, nil
}

// downloadConcurrency bounds parallel Jira downloads per batch.
const downloadConcurrency = 4

func (c *Attachments) Load(ctx context.Context, batch *Batch) (*LoadReport, error) {
	if len(batch.Rows) == 0 || c.env.DryRun {
		return c.loadViaScript(ctx, batch)
	}

	// Stage every file in the container before the single script run.
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(downloadConcurrency)
	for _, row := range batch.Rows {
		group.Go(func() error {
			id := fmt.Sprintf("%v", row["attachment_id"])
			staged := fmt.Sprintf("%v", row["staged_path"])

			body, err := c.env.Jira.DownloadAttachment(groupCtx, id)
			if err != nil {
				return &ComponentError{Component: c.name, Batch: batch.Index, Message: "downloading attachment " + id, Err: err}
			}
			data, err := io.ReadAll(body)
			body.Close()
			if err != nil {
				return &ComponentError{Component: c.name, Batch: batch.Index, Message: "reading attachment " + id, Err: err}
			}
			if err := c.env.Evaluator.TransferFileIn(groupCtx, data, staged); err != nil {
				return &ComponentError{Component: c.name, Batch: batch.Index, Message: "staging attachment " + id, Err: err}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return c.loadViaScript(ctx, batch)
}
