package migration

import (
	"context"
	"sort"

	"github.com/j2o/migrate/pkg/jql"
)

// Metadata migrates one of the small lookup-table entity families. The kind
// selects both the extraction source and the load model; everything else is
// shared.
type Metadata struct {
	base
	kind string
}

// Metadata kinds.
const (
	MetadataCustomFields = "custom_fields"
	MetadataIssueTypes   = "issue_types"
	MetadataStatuses     = "statuses"
	MetadataPriorities   = "priorities"
	MetadataWorkflows    = "workflows"
)

// NewMetadata creates a metadata component of the given kind.
func NewMetadata(env *Env, kind string) *Metadata {
	deps := []string{"projects"}
	if kind == MetadataWorkflows {
		// Workflows join types and statuses, both must exist first.
		deps = []string{"issue_types", "statuses"}
	}
	return &Metadata{base: base{name: kind, deps: deps, env: env}, kind: kind}
}

func (c *Metadata) Extract(ctx context.Context) ([]*Batch, error) {
	if !c.env.Force {
		if cached, ok := c.cachedBatches(c.kind); ok {
			return cached, nil
		}
	}

	var rows []map[string]any
	var err error
	switch c.kind {
	case MetadataIssueTypes:
		rows, err = c.extractIssueTypes(ctx)
	case MetadataStatuses:
		rows, err = c.extractStatuses(ctx)
	case MetadataPriorities:
		rows, err = c.extractPriorities(ctx)
	case MetadataCustomFields:
		rows, err = c.extractCustomFields(ctx)
	case MetadataWorkflows:
		rows, err = c.extractWorkflows(ctx)
	default:
		return nil, &ComponentError{Component: c.name, Batch: -1, Message: "unknown metadata kind"}
	}
	if err != nil {
		return nil, err
	}

	batches := chunk(c.name, c.kind, rows, c.env.batchSize())
	c.cacheBatches(batches)
	return batches, nil
}

func (c *Metadata) extractIssueTypes(ctx context.Context) ([]map[string]any, error) {
	types, err := c.env.Jira.GetIssueTypes(ctx)
	if err != nil {
		return nil, &ComponentError{Component: c.name, Batch: -1, Message: "fetching issue types", Err: err}
	}
	rows := make([]map[string]any, 0, len(types))
	for _, t := range types {
		rows = append(rows, map[string]any{
			"name":         t.Name,
			"is_milestone": false,
			"origin_key":   t.Name,
		})
	}
	return rows, nil
}

func (c *Metadata) extractStatuses(ctx context.Context) ([]map[string]any, error) {
	statuses, err := c.env.Jira.GetStatuses(ctx)
	if err != nil {
		return nil, &ComponentError{Component: c.name, Batch: -1, Message: "fetching statuses", Err: err}
	}
	rows := make([]map[string]any, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, map[string]any{
			"name":       s.Name,
			"is_closed":  s.CategoryKey == "done",
			"origin_key": s.Name,
		})
	}
	return rows, nil
}

func (c *Metadata) extractPriorities(ctx context.Context) ([]map[string]any, error) {
	priorities, err := c.env.Jira.GetPriorities(ctx)
	if err != nil {
		return nil, &ComponentError{Component: c.name, Batch: -1, Message: "fetching priorities", Err: err}
	}
	rows := make([]map[string]any, 0, len(priorities))
	for _, p := range priorities {
		rows = append(rows, map[string]any{
			"name":       p.Name,
			"origin_key": p.Name,
		})
	}
	return rows, nil
}

// extractCustomFields samples the first issue page of the configured
// projects and collects every custom field that actually carries values.
// Fields nobody ever filled are not worth a column on the target.
func (c *Metadata) extractCustomFields(ctx context.Context) ([]map[string]any, error) {
	names := make(map[string]bool)
	query := jql.ProjectsIssues(c.env.Cfg.Jira.Projects)
	page, err := c.env.Jira.SearchIssuesPage(ctx, query, 0, c.env.batchSize())
	if err != nil {
		return nil, &ComponentError{Component: c.name, Batch: -1, Message: "sampling issues for custom fields", Err: err}
	}
	for _, issue := range page.Issues {
		for name := range issue.CustomFields {
			names[name] = true
		}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	rows := make([]map[string]any, 0, len(sorted))
	for _, name := range sorted {
		rows = append(rows, map[string]any{
			"name":         name,
			"field_format": "text",
			"origin_key":   name,
		})
	}
	return rows, nil
}

// extractWorkflows emits one row per (type, from-status, to-status). Jira
// workflow schemes do not survive the migration as-is; the target gets open
// transitions so historical journal states are always reachable.
func (c *Metadata) extractWorkflows(ctx context.Context) ([]map[string]any, error) {
	types, err := c.env.Jira.GetIssueTypes(ctx)
	if err != nil {
		return nil, &ComponentError{Component: c.name, Batch: -1, Message: "fetching issue types", Err: err}
	}
	statuses, err := c.env.Jira.GetStatuses(ctx)
	if err != nil {
		return nil, &ComponentError{Component: c.name, Batch: -1, Message: "fetching statuses", Err: err}
	}

	var rows []map[string]any
	for _, t := range types {
		for _, from := range statuses {
			for _, to := range statuses {
				if from.Name == to.Name {
					continue
				}
				rows = append(rows, map[string]any{
					"type_name":   t.Name,
					"from_status": from.Name,
					"to_status":   to.Name,
					"origin_key":  t.Name + ":" + from.Name + ">" + to.Name,
				})
			}
		}
	}
	return rows, nil
}

// Map is the identity for metadata: rows are shaped at extraction.
func (c *Metadata) Map(ctx context.Context, batch *Batch) (*Batch, error) {
	return batch, nil
}

func (c *Metadata) Load(ctx context.Context, batch *Batch) (*LoadReport, error) {
	report, err := c.loadViaScript(ctx, batch)
	if err != nil {
		return nil, err
	}
	if err := c.mergeMapping(c.name, report.Mapping); err != nil {
		return nil, &ComponentError{Component: c.name, Batch: batch.Index, Message: "persisting mapping", Err: err}
	}
	return report, nil
}
