package jira

import "time"

// The types in this file are the engine's source records: immutable once
// fetched, cached to the data directory, and never mutated downstream.

// User represents a Jira user account.
type User struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name"`
	Locale      string `json:"locale,omitempty"`
	Active      bool   `json:"active"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Group represents a Jira group and its member logins.
type Group struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// VersionMeta describes a Jira fix version of a project.
type VersionMeta struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Released    bool   `json:"released"`
	ReleaseDate string `json:"release_date,omitempty"`
}

// ComponentMeta describes a Jira project component.
type ComponentMeta struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Project represents a Jira project.
type Project struct {
	ID          string          `json:"id"`
	Key         string          `json:"key"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	LeadName    string          `json:"lead_name,omitempty"`
	URL         string          `json:"url,omitempty"`
	Versions    []VersionMeta   `json:"versions,omitempty"`
	Components  []ComponentMeta `json:"components,omitempty"`
}

// RemoteLink is a web link attached to an issue.
type RemoteLink struct {
	ID    int    `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// IssueTypeMeta describes a Jira issue type.
type IssueTypeMeta struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subtask bool   `json:"subtask"`
}

// StatusMeta describes a Jira workflow status.
type StatusMeta struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CategoryKey string `json:"category_key,omitempty"`
}

// PriorityMeta describes a Jira priority.
type PriorityMeta struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChangeItem is a single field transition inside a changelog entry.
type ChangeItem struct {
	Field      string `json:"field"`
	FieldType  string `json:"field_type,omitempty"`
	From       string `json:"from,omitempty"`
	FromString string `json:"from_string,omitempty"`
	To         string `json:"to,omitempty"`
	ToString   string `json:"to_string,omitempty"`
}

// ChangelogEntry is one event from an issue's changelog.
type ChangelogEntry struct {
	ID         string       `json:"id"`
	AuthorKey  string       `json:"author_key,omitempty"`
	AuthorName string       `json:"author_name,omitempty"`
	Created    time.Time    `json:"created"`
	Items      []ChangeItem `json:"items"`
}

// Comment is one issue comment.
type Comment struct {
	ID         string    `json:"id"`
	AuthorKey  string    `json:"author_key,omitempty"`
	AuthorName string    `json:"author_name,omitempty"`
	Body       string    `json:"body"`
	Created    time.Time `json:"created"`
}

// Worklog is one Tempo/Jira worklog record.
type Worklog struct {
	ID               string    `json:"id"`
	AuthorName       string    `json:"author_name,omitempty"`
	Comment          string    `json:"comment,omitempty"`
	Started          time.Time `json:"started"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
}

// AttachmentMeta describes an issue attachment without its content.
type AttachmentMeta struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	AuthorName string    `json:"author_name,omitempty"`
	MimeType   string    `json:"mime_type,omitempty"`
	Size       int       `json:"size"`
	ContentURL string    `json:"content_url"`
	Created    time.Time `json:"created"`
}

// IssueLink is a typed, directed link between two issues.
type IssueLink struct {
	Type      string `json:"type"`
	Direction string `json:"direction"` // "inward" or "outward"
	IssueKey  string `json:"issue_key"`
}

// Issue represents a Jira issue with everything the migration needs: the
// current state, the complete changelog, comments, and attachment metadata.
type Issue struct {
	ID           string            `json:"id"`
	Key          string            `json:"key"`
	ProjectKey   string            `json:"project_key"`
	Summary      string            `json:"summary"`
	Description  string            `json:"description,omitempty"`
	TypeName     string            `json:"type_name"`
	StatusName   string            `json:"status_name"`
	PriorityName string            `json:"priority_name,omitempty"`
	Resolution   string            `json:"resolution,omitempty"`
	ReporterKey  string            `json:"reporter_key,omitempty"`
	ReporterName string            `json:"reporter_name,omitempty"`
	AssigneeName string            `json:"assignee_name,omitempty"`
	Labels       []string          `json:"labels,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
	Created      time.Time         `json:"created"`
	Updated      time.Time         `json:"updated"`
	Changelog    []ChangelogEntry  `json:"changelog,omitempty"`
	Comments     []Comment         `json:"comments,omitempty"`
	Attachments  []AttachmentMeta  `json:"attachments,omitempty"`
	Links        []IssueLink       `json:"links,omitempty"`
}

// IssuePage is one page of a paginated issue search.
type IssuePage struct {
	Issues  []*Issue `json:"issues"`
	StartAt int      `json:"start_at"`
	Total   int      `json:"total"`
}
