// Package migration implements the component migrations and the
// Extract-Map-Load pipeline that drives them. Each component owns one entity
// family and is independently checkpointed and resumable.
package migration

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/j2o/migrate/pkg/checkpoint"
	"github.com/j2o/migrate/pkg/config"
	"github.com/j2o/migrate/pkg/datadir"
	"github.com/j2o/migrate/pkg/jira"
	"github.com/j2o/migrate/pkg/openproject"
	"github.com/j2o/migrate/pkg/provenance"
	"github.com/j2o/migrate/pkg/railscript"
	"github.com/j2o/migrate/pkg/remote"
)

// Batch is one unit of pipelined work: extracted rows on the way in, mapped
// rows ready for the load script on the way out.
type Batch struct {
	Component string           `json:"component"`
	Index     int              `json:"index"`
	Model     string           `json:"model"`
	Rows      []map[string]any `json:"rows"`
	// ResumeToken is persisted with the checkpoint so extraction can
	// continue mid-stream after a restart.
	ResumeToken string `json:"resume_token,omitempty"`
}

// LoadReport summarizes one batch load.
type LoadReport struct {
	Created    int      `json:"created"`
	Updated    int      `json:"updated"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
	ResultPath string   `json:"result_path,omitempty"`

	// Mapping carries the origin-key to target-ID pairs this load produced.
	Mapping map[string]int `json:"-"`
}

// Report aggregates a whole component run.
type Report struct {
	Component string `json:"component"`
	Batches   int    `json:"batches"`
	Skipped   int    `json:"skipped"`
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Failed    int    `json:"failed"`
}

// Component is the contract every migration implements. Extract pulls from
// the source and caches locally; Map is pure transformation; Load ships the
// batch to the target.
type Component interface {
	Name() string
	Dependencies() []string
	Extract(ctx context.Context) ([]*Batch, error)
	Map(ctx context.Context, batch *Batch) (*Batch, error)
	Load(ctx context.Context, batch *Batch) (*LoadReport, error)
}

// Env bundles the shared services components depend on.
type Env struct {
	Cfg         *config.Config
	Log         logr.Logger
	Jira        jira.Client
	OpenProject openproject.Client
	Evaluator   remote.Evaluator
	Composer    *railscript.Composer
	Provenance  provenance.Store
	Data        *datadir.Dir
	Checkpoints checkpoint.Store

	// DryRun maps everything but loads nothing.
	DryRun bool
	// Force re-extracts over existing caches.
	Force bool
}

// batchSize returns the component batch size, falling back through the
// layered defaults.
func (e *Env) batchSize() int {
	if e.Cfg.Migration.BatchSize > 0 {
		return e.Cfg.Migration.BatchSize
	}
	return 100
}
