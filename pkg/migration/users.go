package migration

import (
	"context"
	"sort"

	"github.com/j2o/migrate/pkg/jira"
	"github.com/j2o/migrate/pkg/mapping"
)

// Users migrates Jira accounts into target users. Accounts are collected
// from the assignable-user search of every configured project, so only
// people who can actually appear in history are migrated.
type Users struct {
	base
}

// NewUsers creates the users component.
func NewUsers(env *Env) *Users {
	return &Users{base{name: "users", deps: nil, env: env}}
}

func (c *Users) Extract(ctx context.Context) ([]*Batch, error) {
	if !c.env.Force {
		if cached, ok := c.cachedBatches("users"); ok {
			return cached, nil
		}
	}

	seen := make(map[string]*jira.User)
	for _, project := range c.env.Cfg.Jira.Projects {
		users, err := c.env.Jira.GetAssignableUsers(ctx, project)
		if err != nil {
			return nil, &ComponentError{Component: c.name, Batch: -1, Message: "fetching assignable users for " + project, Err: err}
		}
		for _, user := range users {
			seen[user.Name] = user
		}
	}

	logins := make([]string, 0, len(seen))
	for login := range seen {
		logins = append(logins, login)
	}
	sort.Strings(logins)

	users := make([]*jira.User, 0, len(logins))
	for _, login := range logins {
		users = append(users, seen[login])
	}
	rows, err := asRows(users)
	if err != nil {
		return nil, &ComponentError{Component: c.name, Batch: -1, Message: "encoding extracted users", Err: err}
	}

	batches := chunk(c.name, "users", rows, c.env.batchSize())
	c.cacheBatches(batches)
	return batches, nil
}

func (c *Users) Map(ctx context.Context, batch *Batch) (*Batch, error) {
	mapped := make([]map[string]any, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		var user jira.User
		if err := decodeRow(row, &user); err != nil {
			return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "decoding user row", Err: err}
		}
		record, tag, err := mapping.MapUser(user, c.env.Cfg.Jira.URL)
		if err != nil {
			c.env.Log.Info("skipping unmappable user", "login", user.Name, "reason", err.Error())
			continue
		}
		out := map[string]any(record)
		out["origin_key"] = tag.Key
		out["custom_field_values"] = mapping.ProvenanceValues(tag)
		if c.env.Cfg.Migration.MigrateAvatars && user.AvatarURL != "" {
			out["avatar_url"] = user.AvatarURL
		}
		mapped = append(mapped, out)
	}
	return &Batch{Component: batch.Component, Index: batch.Index, Model: "users", Rows: mapped}, nil
}

func (c *Users) Load(ctx context.Context, batch *Batch) (*LoadReport, error) {
	report, err := c.loadViaScript(ctx, batch)
	if err != nil {
		return nil, err
	}
	if err := c.mergeMapping(c.name, report.Mapping); err != nil {
		return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "persisting mapping", Err: err}
	}
	if c.env.Cfg.Migration.MigrateAvatars && !c.env.DryRun {
		c.backfillAvatars(ctx, batch, report)
	}
	return report, nil
}

// backfillAvatars copies profile pictures for the users just loaded. The
// avatar plugin has no console API, so this is the one load step that goes
// through REST. Failures are logged and skipped, a missing picture never
// fails the batch.
func (c *Users) backfillAvatars(ctx context.Context, batch *Batch, report *LoadReport) {
	for _, row := range batch.Rows {
		avatarURL, _ := row["avatar_url"].(string)
		if avatarURL == "" {
			continue
		}
		login, _ := row["origin_key"].(string)
		userID, ok := report.Mapping[login]
		if !ok {
			continue
		}
		data, err := c.env.Jira.DownloadAvatar(ctx, avatarURL)
		if err != nil {
			c.env.Log.Info("avatar download failed, skipping", "login", login, "reason", err.Error())
			continue
		}
		if err := c.env.OpenProject.UploadUserAvatar(ctx, userID, data); err != nil {
			c.env.Log.Info("avatar upload failed, skipping", "login", login, "reason", err.Error())
		}
	}
}
