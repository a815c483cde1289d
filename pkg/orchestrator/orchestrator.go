package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/j2o/migrate/pkg/migration"
)

// ErrComponentsFailed reports that at least one component ended in an error
// while continue-on-error kept the run going.
var ErrComponentsFailed = errors.New("one or more components failed")

// ErrLocked reports that another migration holds the lock file.
var ErrLocked = errors.New("another migration is already running")

// ComponentResult is one component's outcome in the run summary.
type ComponentResult struct {
	Component       string            `json:"component"`
	Report          *migration.Report `json:"report,omitempty"`
	Error           string            `json:"error,omitempty"`
	DurationSeconds float64           `json:"duration_seconds"`
}

// Summary is the whole-run record persisted under the results directory.
type Summary struct {
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	DryRun      bool              `json:"dry_run"`
	Interrupted bool              `json:"interrupted,omitempty"`
	Components  []ComponentResult `json:"components"`
	Failed      int               `json:"failed"`

	// ResultPath is where the summary was written, empty in dry runs.
	ResultPath string `json:"-"`
}

// Orchestrator runs an ordered component set serially. One migration per
// target: the lock file guards against concurrent runs touching the same
// console.
type Orchestrator struct {
	Env *migration.Env

	// ContinueOnError runs the remaining components after a failure instead
	// of stopping, so one broken entity family does not block the rest.
	ContinueOnError bool
	// LockPath overrides the lock file location (default: <data>/migration.lock).
	LockPath string
	// ResultsDir overrides where summaries are written (default: results).
	ResultsDir string
	// Metrics is optional; nil disables metric recording.
	Metrics *Metrics
	// Sink receives progress events, forwarded from the pipeline runner.
	Sink migration.Sink
}

func (o *Orchestrator) lockPath() string {
	if o.LockPath != "" {
		return o.LockPath
	}
	return filepath.Join(o.Env.Cfg.DataDir, "migration.lock")
}

func (o *Orchestrator) resultsDir() string {
	if o.ResultsDir != "" {
		return o.ResultsDir
	}
	return "results"
}

// Run executes the components in the given order. A SIGINT finishes the
// current component and skips the rest; a second SIGINT aborts immediately.
func (o *Orchestrator) Run(ctx context.Context, components []migration.Component) (*Summary, error) {
	lock := flock.New(o.lockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring migration lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock: %s)", ErrLocked, o.lockPath())
	}
	defer func() {
		_ = lock.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := make(chan struct{})
	done := make(chan struct{})
	defer close(done)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			o.Env.Log.Info("interrupt received, draining current component")
			close(stop)
		case <-done:
			return
		}
		select {
		case <-sigCh:
			o.Env.Log.Info("second interrupt, aborting")
			cancel()
		case <-done:
		}
	}()

	summary := &Summary{StartedAt: time.Now(), DryRun: o.Env.DryRun}
	runner := &migration.Runner{Env: o.Env, Sink: o.eventSink()}

	for _, component := range components {
		interrupted := false
		select {
		case <-stop:
			interrupted = true
		case <-ctx.Done():
			interrupted = true
		default:
		}
		if interrupted {
			summary.Interrupted = true
			break
		}

		name := component.Name()
		o.Env.Log.Info("running component", "component", name)
		began := time.Now()
		report, err := runner.Run(ctx, component)

		result := ComponentResult{
			Component:       name,
			Report:          report,
			DurationSeconds: time.Since(began).Seconds(),
		}
		if err != nil {
			result.Error = err.Error()
			summary.Failed++
			if o.Metrics != nil {
				o.Metrics.ComponentFailures.WithLabelValues(name).Inc()
			}
			o.Env.Log.Error(err, "component failed", "component", name)
			summary.Components = append(summary.Components, result)
			if !o.ContinueOnError {
				break
			}
			continue
		}
		if o.Metrics != nil {
			o.Metrics.ComponentsFinished.Inc()
			o.Metrics.RowsCreated.WithLabelValues(name).Add(float64(report.Created))
			o.Metrics.RowsFailed.WithLabelValues(name).Add(float64(report.Failed))
		}
		summary.Components = append(summary.Components, result)
	}

	summary.FinishedAt = time.Now()
	if !o.Env.DryRun {
		if path, err := o.writeSummary(summary); err != nil {
			o.Env.Log.Error(err, "failed to write run summary")
		} else {
			summary.ResultPath = path
		}
	}

	if summary.Failed > 0 {
		return summary, ErrComponentsFailed
	}
	return summary, nil
}

// eventSink forwards pipeline events to the configured sink and records the
// batch metrics as a side effect.
func (o *Orchestrator) eventSink() migration.Sink {
	lastBatch := make(map[string]time.Time)
	return func(ev migration.Event) {
		if o.Metrics != nil {
			switch ev.Type {
			case migration.EventComponentStarted:
				lastBatch[ev.Component] = time.Now()
			case migration.EventBatchCompleted:
				o.Metrics.BatchesCompleted.WithLabelValues(ev.Component).Inc()
				if began, ok := lastBatch[ev.Component]; ok {
					o.Metrics.BatchDuration.WithLabelValues(ev.Component).Observe(time.Since(began).Seconds())
				}
				lastBatch[ev.Component] = time.Now()
			}
		}
		if o.Sink != nil {
			o.Sink(ev)
		}
	}
}

func (o *Orchestrator) writeSummary(summary *Summary) (string, error) {
	dir := o.resultsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("run_%s.json", summary.StartedAt.Format("20060102T150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
