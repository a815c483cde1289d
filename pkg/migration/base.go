package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/j2o/migrate/pkg/railscript"
)

// base carries what every component shares: identity, dependencies, and the
// environment.
type base struct {
	name string
	deps []string
	env  *Env
}

func (b *base) Name() string           { return b.name }
func (b *base) Dependencies() []string { return b.deps }

// loadViaScript ships a mapped batch through the evaluator and archives the
// raw result. This is the single write path to the target.
func (b *base) loadViaScript(ctx context.Context, batch *Batch) (*LoadReport, error) {
	if len(batch.Rows) == 0 {
		return &LoadReport{}, nil
	}
	if b.env.DryRun {
		b.env.Log.Info("dry run, skipping load", "component", b.name, "batch", batch.Index, "rows", len(batch.Rows))
		return &LoadReport{Created: 0, Updated: 0}, nil
	}

	script, err := b.env.Composer.Compose(batch.Model, composeParams(batch))
	if err != nil {
		return nil, &ComponentError{Component: b.name, Batch: batch.Index, Message: "composing load script", Err: err}
	}
	input, err := json.Marshal(batch.Rows)
	if err != nil {
		return nil, &ComponentError{Component: b.name, Batch: batch.Index, Message: "encoding batch payload", Err: err}
	}

	result, err := b.env.Evaluator.Execute(ctx, script.Render, input, b.executeTimeout())
	if err != nil {
		return nil, &ComponentError{Component: b.name, Batch: batch.Index, Message: "executing load script", Err: err}
	}

	report := &LoadReport{Mapping: make(map[string]int)}
	for _, row := range result.Rows {
		switch {
		case row.Error != nil:
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", row.JiraKey, *row.Error))
		case row.Created > 0:
			report.Created++
		case row.Updated > 0:
			report.Updated++
		}
		if row.Error == nil && row.JiraKey != "" && row.WPID > 0 {
			report.Mapping[row.JiraKey] = row.WPID
		}
	}

	path, err := b.env.Data.WriteBulkResult(b.name, time.Now(), result)
	if err != nil {
		b.env.Log.Error(err, "failed to archive bulk result", "component", b.name, "batch", batch.Index)
	} else {
		report.ResultPath = path
	}
	return report, nil
}

func (b *base) executeTimeout() time.Duration {
	if b.env.Cfg.Migration.ExecuteTimeout > 0 {
		return b.env.Cfg.Migration.ExecuteTimeout
	}
	return 120 * time.Second
}

// chunk splits rows into batch-sized pieces, preserving order.
func chunk(component, model string, rows []map[string]any, size int) []*Batch {
	if size <= 0 {
		size = 100
	}
	var batches []*Batch
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		batches = append(batches, &Batch{
			Component: component,
			Index:     len(batches),
			Model:     model,
			Rows:      rows[start:end],
		})
	}
	return batches
}

func composeParams(batch *Batch) railscript.Params {
	return railscript.Params{Component: batch.Component}
}

// skeletonIssueBatches serves the extracted issue set to the components that
// transform already-created work packages. Phase one's cache is reused when
// present so Jira is hit at most once per run.
func (b *base) skeletonIssueBatches(ctx context.Context, model string) ([]*Batch, error) {
	skeleton := base{name: "work_packages_skeleton", env: b.env}
	batches, ok := skeleton.cachedBatches(model)
	if !ok {
		var err error
		batches, err = NewWorkPackagesSkeleton(b.env).Extract(ctx)
		if err != nil {
			return nil, err
		}
	}
	for _, batch := range batches {
		batch.Component = b.name
		batch.Model = model
	}
	return batches, nil
}

// wpMapping loads the issue-key mapping phase one produced. The second
// return is false when the mapping is absent and the configuration allows a
// soft skip.
func (b *base) wpMapping() (map[string]int, bool, error) {
	if !b.env.Data.HasWorkPackageMapping() {
		if b.env.Cfg.Migration.TransformationRequireMapping {
			return nil, false, &ComponentError{Component: b.name, Batch: -1, Message: "cannot transform", Err: ErrMappingMissing}
		}
		b.env.Log.Info("work package mapping missing, skipping component", "component", b.name)
		return nil, false, nil
	}
	m, err := b.env.Data.ReadWorkPackageMapping()
	if err != nil {
		return nil, false, &ComponentError{Component: b.name, Batch: -1, Message: "reading work package mapping", Err: err}
	}
	return m, true, nil
}

// mergeMapping folds freshly produced origin-key pairs into a component's
// mapping file.
func (b *base) mergeMapping(component string, produced map[string]int) error {
	if len(produced) == 0 {
		return nil
	}
	existing, err := b.env.Data.ReadMapping(component)
	if err != nil {
		return err
	}
	for key, id := range produced {
		existing[key] = id
	}
	return b.env.Data.WriteMapping(component, existing)
}

// cachedBatches loads previously extracted batches from the data directory.
// The cache makes re-runs independent of the source system.
func (b *base) cachedBatches(model string) ([]*Batch, bool) {
	indexes, err := b.env.Data.ExtractBatches(b.name)
	if err != nil || len(indexes) == 0 {
		return nil, false
	}
	batches := make([]*Batch, 0, len(indexes))
	for _, idx := range indexes {
		var rows []map[string]any
		if err := b.env.Data.ReadExtract(b.name, idx, &rows); err != nil {
			b.env.Log.Error(err, "unreadable extract cache, re-extracting", "component", b.name, "batch", idx)
			return nil, false
		}
		batches = append(batches, &Batch{Component: b.name, Index: idx, Model: model, Rows: rows})
	}
	return batches, true
}

// cacheBatches persists extracted batches. Existing files survive unless the
// run was forced.
func (b *base) cacheBatches(batches []*Batch) {
	for _, batch := range batches {
		if err := b.env.Data.WriteExtract(b.name, batch.Index, batch.Rows, b.env.Force); err != nil {
			b.env.Log.Error(err, "failed to cache extract batch", "component", b.name, "batch", batch.Index)
		}
	}
}

// asRows converts typed source records into the generic row form batches
// carry, via a JSON round trip.
func asRows(v any) ([]map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// decodeRow converts one generic row back into a typed record.
func decodeRow(row map[string]any, v any) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
