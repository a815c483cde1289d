package jira

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	gojira "github.com/andygrunwald/go-jira"
)

// Client defines the interface for Jira extraction operations.
// This enables dependency injection and testing with mock implementations.
type Client interface {
	Authenticate(ctx context.Context) error
	GetProjects(ctx context.Context, keys []string) ([]*Project, error)
	SearchIssuesPage(ctx context.Context, jql string, startAt, maxResults int) (*IssuePage, error)
	GetAssignableUsers(ctx context.Context, projectKey string) ([]*User, error)
	GetGroups(ctx context.Context) ([]*Group, error)
	GetIssueTypes(ctx context.Context) ([]*IssueTypeMeta, error)
	GetStatuses(ctx context.Context) ([]*StatusMeta, error)
	GetPriorities(ctx context.Context) ([]*PriorityMeta, error)
	GetWorklogs(ctx context.Context, issueKey string) ([]*Worklog, error)
	GetWatchers(ctx context.Context, issueKey string) ([]string, error)
	GetRemoteLinks(ctx context.Context, issueKey string) ([]*RemoteLink, error)
	DownloadAttachment(ctx context.Context, attachmentID string) (io.ReadCloser, error)
	DownloadAvatar(ctx context.Context, avatarURL string) ([]byte, error)
}

// jiraTimeLayout is the timestamp format Jira Server emits in changelogs,
// comments, and worklogs.
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

// APIClient implements Client using the go-jira library.
type APIClient struct {
	client  *gojira.Client
	http    *http.Client
	baseURL string
}

// NewClient creates a Jira client with bearer-token auth and retry handling.
// sslVerify false disables certificate verification for instances behind
// self-signed certificates.
func NewClient(baseURL, token string, sslVerify bool) (*APIClient, error) {
	var inner http.RoundTripper
	if !sslVerify {
		inner = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}
	httpClient := &http.Client{
		Transport: NewRetryTransport(token, inner),
		Timeout:   60 * time.Second,
	}
	jc, err := gojira.NewClient(httpClient, baseURL)
	if err != nil {
		return nil, &ClientError{
			Type:    "connection_error",
			Message: "failed to create Jira client",
			Err:     err,
		}
	}
	return &APIClient{client: jc, http: httpClient, baseURL: baseURL}, nil
}

// Authenticate verifies the connection and credentials.
func (c *APIClient) Authenticate(ctx context.Context) error {
	_, resp, err := c.client.User.GetSelfWithContext(ctx)
	if err != nil {
		return c.apiError(err, resp, "authentication")
	}
	return nil
}

// GetProjects fetches the projects for the given keys, or all visible
// projects when keys is empty.
func (c *APIClient) GetProjects(ctx context.Context, keys []string) ([]*Project, error) {
	if len(keys) == 0 {
		list, resp, err := c.client.Project.GetListWithContext(ctx)
		if err != nil {
			return nil, c.apiError(err, resp, "project list")
		}
		for _, p := range *list {
			keys = append(keys, p.Key)
		}
	}

	projects := make([]*Project, 0, len(keys))
	for _, key := range keys {
		p, resp, err := c.client.Project.GetWithContext(ctx, key)
		if err != nil {
			return nil, c.apiError(err, resp, key)
		}
		project := &Project{
			ID:          p.ID,
			Key:         p.Key,
			Name:        p.Name,
			Description: p.Description,
			LeadName:    p.Lead.Name,
			URL:         fmt.Sprintf("%s/projects/%s", c.baseURL, p.Key),
		}
		for _, v := range p.Versions {
			version := VersionMeta{
				ID:          v.ID,
				Name:        v.Name,
				Description: v.Description,
				ReleaseDate: v.ReleaseDate,
			}
			if v.Released != nil {
				version.Released = *v.Released
			}
			project.Versions = append(project.Versions, version)
		}
		for _, cm := range p.Components {
			project.Components = append(project.Components, ComponentMeta{
				ID:          cm.ID,
				Name:        cm.Name,
				Description: cm.Description,
			})
		}
		projects = append(projects, project)
	}
	return projects, nil
}

// SearchIssuesPage runs one page of a JQL search with the changelog expanded.
func (c *APIClient) SearchIssuesPage(ctx context.Context, jql string, startAt, maxResults int) (*IssuePage, error) {
	if jql == "" {
		return nil, &ClientError{Type: "invalid_input", Message: "JQL query cannot be empty"}
	}

	opts := &gojira.SearchOptions{
		StartAt:    startAt,
		MaxResults: maxResults,
		Expand:     "changelog",
		Fields:     []string{"*all"},
	}
	issues, resp, err := c.client.Issue.SearchWithContext(ctx, jql, opts)
	if err != nil {
		return nil, c.apiError(err, resp, jql)
	}

	page := &IssuePage{StartAt: startAt, Total: resp.Total}
	for i := range issues {
		page.Issues = append(page.Issues, convertIssue(&issues[i]))
	}
	return page, nil
}

// GetAssignableUsers fetches all users assignable in a project. go-jira has no
// wrapper for the Server assignable-search endpoint, so this goes through the
// raw request API.
func (c *APIClient) GetAssignableUsers(ctx context.Context, projectKey string) ([]*User, error) {
	endpoint := fmt.Sprintf("rest/api/2/user/assignable/search?project=%s&maxResults=1000", url.QueryEscape(projectKey))
	req, err := c.client.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &ClientError{Type: "invalid_input", Message: "failed to build user search request", Err: err}
	}

	var raw []gojira.User
	resp, err := c.client.Do(req, &raw)
	if err != nil {
		return nil, c.apiError(err, resp, projectKey)
	}

	users := make([]*User, 0, len(raw))
	for i := range raw {
		users = append(users, convertUser(&raw[i]))
	}
	return users, nil
}

// GetGroups fetches all groups and their member logins.
func (c *APIClient) GetGroups(ctx context.Context) ([]*Group, error) {
	req, err := c.client.NewRequestWithContext(ctx, http.MethodGet, "rest/api/2/groups/picker?maxResults=500", nil)
	if err != nil {
		return nil, &ClientError{Type: "invalid_input", Message: "failed to build group picker request", Err: err}
	}

	var picker struct {
		Groups []struct {
			Name string `json:"name"`
		} `json:"groups"`
	}
	resp, err := c.client.Do(req, &picker)
	if err != nil {
		return nil, c.apiError(err, resp, "group picker")
	}

	groups := make([]*Group, 0, len(picker.Groups))
	for _, g := range picker.Groups {
		members, resp, err := c.client.Group.GetWithContext(ctx, g.Name)
		if err != nil {
			return nil, c.apiError(err, resp, g.Name)
		}
		group := &Group{Name: g.Name}
		for _, m := range members {
			group.Members = append(group.Members, m.Name)
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// GetIssueTypes fetches the issue types defined on the server. go-jira has
// no service wrapper for this endpoint, so it goes through the raw request
// API.
func (c *APIClient) GetIssueTypes(ctx context.Context) ([]*IssueTypeMeta, error) {
	req, err := c.client.NewRequestWithContext(ctx, http.MethodGet, "rest/api/2/issuetype", nil)
	if err != nil {
		return nil, &ClientError{Type: "invalid_input", Message: "failed to build issue type request", Err: err}
	}

	var raw []struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Subtask bool   `json:"subtask"`
	}
	resp, err := c.client.Do(req, &raw)
	if err != nil {
		return nil, c.apiError(err, resp, "issue types")
	}
	out := make([]*IssueTypeMeta, 0, len(raw))
	for _, it := range raw {
		out = append(out, &IssueTypeMeta{ID: it.ID, Name: it.Name, Subtask: it.Subtask})
	}
	return out, nil
}

// GetStatuses fetches all workflow statuses.
func (c *APIClient) GetStatuses(ctx context.Context) ([]*StatusMeta, error) {
	list, resp, err := c.client.Status.GetAllStatusesWithContext(ctx)
	if err != nil {
		return nil, c.apiError(err, resp, "statuses")
	}
	out := make([]*StatusMeta, 0, len(list))
	for _, s := range list {
		out = append(out, &StatusMeta{ID: s.ID, Name: s.Name, CategoryKey: s.StatusCategory.Key})
	}
	return out, nil
}

// GetPriorities fetches the priority scheme.
func (c *APIClient) GetPriorities(ctx context.Context) ([]*PriorityMeta, error) {
	list, resp, err := c.client.Priority.GetListWithContext(ctx)
	if err != nil {
		return nil, c.apiError(err, resp, "priorities")
	}
	out := make([]*PriorityMeta, 0, len(list))
	for _, p := range list {
		out = append(out, &PriorityMeta{ID: p.ID, Name: p.Name})
	}
	return out, nil
}

// GetWorklogs fetches the worklog records of an issue.
func (c *APIClient) GetWorklogs(ctx context.Context, issueKey string) ([]*Worklog, error) {
	wl, resp, err := c.client.Issue.GetWorklogsWithContext(ctx, issueKey)
	if err != nil {
		return nil, c.apiError(err, resp, issueKey)
	}

	out := make([]*Worklog, 0, len(wl.Worklogs))
	for i := range wl.Worklogs {
		rec := &wl.Worklogs[i]
		w := &Worklog{
			ID:               rec.ID,
			Comment:          rec.Comment,
			TimeSpentSeconds: rec.TimeSpentSeconds,
		}
		if rec.Author != nil {
			w.AuthorName = rec.Author.Name
		}
		if rec.Started != nil {
			w.Started = time.Time(*rec.Started)
		}
		out = append(out, w)
	}
	return out, nil
}

// GetWatchers fetches the watcher logins of an issue.
func (c *APIClient) GetWatchers(ctx context.Context, issueKey string) ([]string, error) {
	endpoint := fmt.Sprintf("rest/api/2/issue/%s/watchers", url.PathEscape(issueKey))
	req, err := c.client.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &ClientError{Type: "invalid_input", Message: "failed to build watchers request", Err: err}
	}

	var raw struct {
		Watchers []struct {
			Name string `json:"name"`
		} `json:"watchers"`
	}
	resp, err := c.client.Do(req, &raw)
	if err != nil {
		return nil, c.apiError(err, resp, issueKey)
	}

	names := make([]string, 0, len(raw.Watchers))
	for _, w := range raw.Watchers {
		names = append(names, w.Name)
	}
	return names, nil
}

// GetRemoteLinks fetches the remote (web) links attached to an issue.
func (c *APIClient) GetRemoteLinks(ctx context.Context, issueKey string) ([]*RemoteLink, error) {
	endpoint := fmt.Sprintf("rest/api/2/issue/%s/remotelink", url.PathEscape(issueKey))
	req, err := c.client.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &ClientError{Type: "invalid_input", Message: "failed to build remote link request", Err: err}
	}

	var raw []struct {
		ID     int `json:"id"`
		Object struct {
			URL   string `json:"url"`
			Title string `json:"title"`
		} `json:"object"`
	}
	resp, err := c.client.Do(req, &raw)
	if err != nil {
		return nil, c.apiError(err, resp, issueKey)
	}

	links := make([]*RemoteLink, 0, len(raw))
	for _, l := range raw {
		if l.Object.URL == "" {
			continue
		}
		links = append(links, &RemoteLink{ID: l.ID, URL: l.Object.URL, Title: l.Object.Title})
	}
	return links, nil
}

// DownloadAvatar fetches an avatar image by its absolute URL, using the
// same authenticated transport as the API calls.
func (c *APIClient) DownloadAvatar(ctx context.Context, avatarURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, avatarURL, nil)
	if err != nil {
		return nil, &ClientError{Type: "invalid_input", Message: "failed to build avatar request", Err: err, Context: avatarURL}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ClientError{Type: "connection_error", Message: "avatar download failed", Err: err, Context: avatarURL}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &ClientError{Type: "api_error", Message: fmt.Sprintf("avatar download returned %d", resp.StatusCode), Context: avatarURL}
	}
	return io.ReadAll(resp.Body)
}

// DownloadAttachment streams an attachment's content. The caller owns the
// returned reader.
func (c *APIClient) DownloadAttachment(ctx context.Context, attachmentID string) (io.ReadCloser, error) {
	resp, err := c.client.Issue.DownloadAttachmentWithContext(ctx, attachmentID)
	if err != nil {
		return nil, c.apiError(err, resp, attachmentID)
	}
	return resp.Body, nil
}

// convertIssue converts a go-jira issue into the engine's source record.
func convertIssue(ji *gojira.Issue) *Issue {
	issue := &Issue{
		ID:          ji.ID,
		Key:         ji.Key,
		Summary:     ji.Fields.Summary,
		Description: ji.Fields.Description,
		Labels:      ji.Fields.Labels,
		Created:     time.Time(ji.Fields.Created),
		Updated:     time.Time(ji.Fields.Updated),
	}
	if ji.Fields.Project.Key != "" {
		issue.ProjectKey = ji.Fields.Project.Key
	}
	issue.TypeName = ji.Fields.Type.Name
	if ji.Fields.Status != nil {
		issue.StatusName = ji.Fields.Status.Name
	}
	if ji.Fields.Priority != nil {
		issue.PriorityName = ji.Fields.Priority.Name
	}
	if ji.Fields.Resolution != nil {
		issue.Resolution = ji.Fields.Resolution.Name
	}
	if ji.Fields.Reporter != nil {
		issue.ReporterKey = ji.Fields.Reporter.Key
		issue.ReporterName = ji.Fields.Reporter.Name
	}
	if ji.Fields.Assignee != nil {
		issue.AssigneeName = ji.Fields.Assignee.Name
	}

	if ji.Changelog != nil {
		for _, h := range ji.Changelog.Histories {
			entry := ChangelogEntry{
				ID:         h.Id,
				AuthorKey:  h.Author.Key,
				AuthorName: h.Author.Name,
				Created:    parseJiraTime(h.Created),
			}
			for _, item := range h.Items {
				entry.Items = append(entry.Items, ChangeItem{
					Field:      item.Field,
					FieldType:  item.FieldType,
					From:       stringify(item.From),
					FromString: item.FromString,
					To:         stringify(item.To),
					ToString:   item.ToString,
				})
			}
			issue.Changelog = append(issue.Changelog, entry)
		}
	}

	if ji.Fields.Comments != nil {
		for _, cm := range ji.Fields.Comments.Comments {
			issue.Comments = append(issue.Comments, Comment{
				ID:         cm.ID,
				AuthorKey:  cm.Author.Key,
				AuthorName: cm.Author.Name,
				Body:       cm.Body,
				Created:    parseJiraTime(cm.Created),
			})
		}
	}

	for _, att := range ji.Fields.Attachments {
		meta := AttachmentMeta{
			ID:         att.ID,
			Filename:   att.Filename,
			MimeType:   att.MimeType,
			Size:       att.Size,
			ContentURL: att.Content,
			Created:    parseJiraTime(att.Created),
		}
		if att.Author != nil {
			meta.AuthorName = att.Author.Name
		}
		issue.Attachments = append(issue.Attachments, meta)
	}

	for _, link := range ji.Fields.IssueLinks {
		if link == nil || link.Type.Name == "" {
			continue
		}
		if link.OutwardIssue != nil && link.OutwardIssue.Key != "" {
			issue.Links = append(issue.Links, IssueLink{
				Type:      link.Type.Name,
				Direction: "outward",
				IssueKey:  link.OutwardIssue.Key,
			})
		}
		if link.InwardIssue != nil && link.InwardIssue.Key != "" {
			issue.Links = append(issue.Links, IssueLink{
				Type:      link.Type.Name,
				Direction: "inward",
				IssueKey:  link.InwardIssue.Key,
			})
		}
	}

	return issue
}

func convertUser(ju *gojira.User) *User {
	return &User{
		Key:         ju.Key,
		Name:        ju.Name,
		Email:       ju.EmailAddress,
		DisplayName: ju.DisplayName,
		Locale:      ju.Locale,
		Active:      ju.Active,
		AvatarURL:   ju.AvatarUrls.Four8X48,
	}
}

func parseJiraTime(s string) time.Time {
	if t, err := time.Parse(jiraTimeLayout, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// apiError creates an appropriate typed error from an HTTP response.
func (c *APIClient) apiError(err error, resp *gojira.Response, context string) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return &ClientError{Type: "authentication_error", Message: "authentication failed - check Jira credentials", Err: err, Context: context}
		case http.StatusForbidden:
			return &ClientError{Type: "authorization_error", Message: "access denied - insufficient permissions", Err: err, Context: context}
		case http.StatusNotFound:
			return &ClientError{Type: "not_found", Message: "resource not found", Err: err, Context: context}
		case http.StatusTooManyRequests:
			return &ClientError{Type: "rate_limited", Message: "rate limit retries exhausted", Err: err, Context: context}
		}
		return &ClientError{
			Type:    "api_error",
			Message: fmt.Sprintf("HTTP %d error - %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
			Err:     err,
			Context: context,
		}
	}
	return &ClientError{Type: "api_error", Message: fmt.Sprintf("network/connection error: %v", err), Err: err, Context: context}
}
