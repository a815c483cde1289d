package migration

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/j2o/migrate/pkg/checkpoint"
	"github.com/j2o/migrate/pkg/remote"
)

// EventType labels pipeline progress events.
type EventType string

const (
	EventComponentStarted  EventType = "component_started"
	EventBatchCompleted    EventType = "batch_completed"
	EventComponentFinished EventType = "component_finished"
	EventError             EventType = "error"
)

// Event is one progress notification from a component run.
type Event struct {
	Type      EventType
	Component string
	Batch     int
	Report    *Report
	Err       error
}

// Sink receives pipeline events. Implementations must be fast; the runner
// calls them inline.
type Sink func(Event)

// defaultFreshness bounds how old a checkpoint may be and still fast-forward
// past completed batches. Older checkpoints are treated as stale because the
// source may have moved on.
const defaultFreshness = 24 * time.Hour

// Runner drives one component through Extract, Map, and Load. Mapping is
// concurrent; loading is serialized in batch order because the target console
// processes one script at a time.
type Runner struct {
	Env  *Env
	Sink Sink

	// Freshness overrides the checkpoint fast-forward window. Zero means the
	// default.
	Freshness time.Duration
}

func (r *Runner) emit(ev Event) {
	if r.Sink != nil {
		r.Sink(ev)
	}
}

func (r *Runner) freshness() time.Duration {
	if r.Freshness > 0 {
		return r.Freshness
	}
	return defaultFreshness
}

// Run executes a full component migration and returns its report. A non-nil
// report accompanies errors that occur after the first batch completes.
func (r *Runner) Run(ctx context.Context, component Component) (*Report, error) {
	name := component.Name()
	report := &Report{Component: name}
	r.emit(Event{Type: EventComponentStarted, Component: name})

	fail := func(batch int, err error) (*Report, error) {
		r.emit(Event{Type: EventError, Component: name, Batch: batch, Err: err})
		return report, err
	}

	batches, err := component.Extract(ctx)
	if err != nil {
		return fail(-1, err)
	}
	report.Batches = len(batches)

	cp, err := r.Env.Checkpoints.Get(ctx, name)
	if err != nil {
		return fail(-1, err)
	}
	if r.Env.Force && cp != nil && !r.Env.DryRun {
		if err := r.Env.Checkpoints.Reset(ctx, name, true); err != nil {
			return fail(-1, err)
		}
		cp = nil
	}
	fastForward := -1
	if cp.IsFresh(r.freshness(), time.Now()) {
		fastForward = cp.LastBatch
		r.Env.Log.Info("resuming from checkpoint",
			"component", name, "last_batch", cp.LastBatch, "updated_at", cp.UpdatedAt)
	}

	mapped, err := r.mapAll(ctx, component, batches)
	if err != nil {
		return fail(-1, err)
	}

	for _, batch := range mapped {
		if batch.Index <= fastForward {
			report.Skipped++
			continue
		}
		loaded, err := r.loadWithRetry(ctx, component, batch)
		if err != nil {
			return fail(batch.Index, err)
		}
		report.Created += loaded.Created
		report.Updated += loaded.Updated
		report.Failed += loaded.Failed

		if !r.Env.DryRun {
			err := r.Env.Checkpoints.Advance(ctx, name, batch.Index, batch.ResumeToken)
			// Replays past a stale checkpoint land behind the stored high-water
			// mark; the work is idempotent so only real store failures count.
			if err != nil && !errors.Is(err, checkpoint.ErrNotMonotonic) {
				return fail(batch.Index, err)
			}
		}
		r.emit(Event{Type: EventBatchCompleted, Component: name, Batch: batch.Index})
	}

	r.emit(Event{Type: EventComponentFinished, Component: name, Report: report})
	return report, nil
}

// mapAll transforms every batch concurrently and returns them in the original
// order.
func (r *Runner) mapAll(ctx context.Context, component Component, batches []*Batch) ([]*Batch, error) {
	concurrency := r.Env.Cfg.Migration.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(int64(concurrency))

	mapped := make([]*Batch, len(batches))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		if err := sem.Acquire(groupCtx, 1); err != nil {
			break
		}
		group.Go(func() error {
			defer sem.Release(1)
			out, err := component.Map(groupCtx, batch)
			if err != nil {
				return err
			}
			mapped[i] = out
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return mapped, nil
}

// loadWithRetry loads one batch, retrying once when the failure was in the
// transport or container layer rather than the script itself.
func (r *Runner) loadWithRetry(ctx context.Context, component Component, batch *Batch) (*LoadReport, error) {
	loaded, err := component.Load(ctx, batch)
	if err == nil {
		return loaded, nil
	}

	var re *remote.Error
	if !errors.As(err, &re) || !remote.IsRetryable(re) {
		return nil, err
	}
	r.Env.Log.Info("retrying batch after transient remote failure",
		"component", component.Name(), "batch", batch.Index, "kind", string(re.Kind))
	return component.Load(ctx, batch)
}
