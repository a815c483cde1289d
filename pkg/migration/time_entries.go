package migration

import (
	"context"

	"github.com/j2o/migrate/pkg/jira"
	"github.com/j2o/migrate/pkg/mapping"
)

// TimeEntries migrates worklogs into time entries.
type TimeEntries struct {
	base
}

// NewTimeEntries creates the time entries component.
func NewTimeEntries(env *Env) *TimeEntries {
	return &TimeEntries{base{
		name: "time_entries",
		deps: []string{"work_packages_skeleton", "users"},
		env:  env,
	}}
}

func (c *TimeEntries) Extract(ctx context.Context) ([]*Batch, error) {
	if !c.env.Force {
		if cached, ok := c.cachedBatches("time_entries"); ok {
			return cached, nil
		}
	}

	issueBatches, err := c.skeletonIssueBatches(ctx, "time_entries")
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
			worklogs, err := c.env.Jira.GetWorklogs(ctx, issue.Key)
			if err != nil {
				return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "fetching worklogs for " + issue.Key, Err: err}
			}
			for _, wl := range worklogs {
				rows = append(rows, map[string]any{
					"issue_key":  issue.Key,
					"user_login": wl.AuthorName,
					"started":    wl.Started,
					"seconds":    wl.TimeSpentSeconds,
					"comments":   wl.Comment,
					"origin_key": issue.Key + "#" + wl.ID,
				})
			}
		}
	}

	batches := chunk(c.name, "time_entries", rows, c.env.batchSize())
	c.cacheBatches(batches)
	return batches, nil
}

func (c *TimeEntries) Map(ctx context.Context, batch *Batch) (*Batch, error) {
	wp, ok, err := c.wpMapping()
	if err != nil || !ok {
		return &Batch{Component: batch.Component, Index: batch.Index, Model: "time_entries"}, err
	}
	users, err := c.env.Data.ReadMapping("users")
	if err != nil {
		return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "reading users mapping", Err: err}
	}
	fallback := mapping.UserFallback{
		Strategy: c.env.Cfg.Migration.Mapping.FallbackStrategy,
		AdminID:  c.env.Cfg.Migration.FallbackAdminUserID,
	}

	mapped := make([]map[string]any, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		var record struct {
			IssueKey  string  `json:"issue_key"`
			UserLogin string  `json:"user_login"`
			Started   string  `json:"started"`
			Seconds   float64 `json:"seconds"`
			Comments  string  `json:"comments"`
			OriginKey string  `json:"origin_key"`
		}
		if err := decodeRow(row, &record); err != nil {
			return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "decoding worklog row", Err: err}
		}
		wpID, found := wp[record.IssueKey]
		if !found {
			c.env.Log.Info("no work package for worklog, skipping", "issue", record.IssueKey)
			continue
		}
		login := record.UserLogin
		if _, resolved, err := fallback.Resolve(login, lookupIn(users)); err != nil {
			return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "resolving worklog user", Err: err}
		} else if !resolved {
			c.env.Log.Info("unresolvable worklog user, skipping", "login", login, "issue", record.IssueKey)
			continue
		}
		spentOn := record.Started
		if len(spentOn) >= 10 {
			spentOn = spentOn[:10]
		}
		mapped = append(mapped, map[string]any{
			"wp_id":      wpID,
			"user_login": login,
			"spent_on":   spentOn,
			"hours":      record.Seconds / 3600.0,
			"comments":   record.Comments,
			"origin_key": record.OriginKey,
		})
	}
	return &Batch{Component: batch.Component, Index: batch.Index, Model: "time_entries", Rows: mapped}, nil
}

func (c *TimeEntries) Load(ctx context.Context, batch *Batch) (*LoadReport, error) {
	return c.loadViaScript(ctx, batch)
}
