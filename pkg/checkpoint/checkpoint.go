// Package checkpoint persists per-component migration progress in an
// embedded SQL store, so an interrupted run resumes from the last completed
// batch instead of replaying work.
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Checkpoint records the last completed batch for one component.
type Checkpoint struct {
	Component   string
	LastBatch   int
	ResumeToken string
	UpdatedAt   time.Time
}

// IsFresh reports whether the checkpoint was updated within the freshness
// window, making its completed batches eligible for fast-forward.
func (c *Checkpoint) IsFresh(window time.Duration, now time.Time) bool {
	if c == nil || window <= 0 {
		return false
	}
	return now.Sub(c.UpdatedAt) <= window
}

// Store is the durable checkpoint contract.
type Store interface {
	// Get returns the checkpoint for a component, or nil when none exists.
	Get(ctx context.Context, component string) (*Checkpoint, error)
	// Advance moves a component's checkpoint forward. Regressions are
	// rejected; progress only ever grows.
	Advance(ctx context.Context, component string, batch int, resumeToken string) error
	// Reset removes a component's checkpoint. Requires the force flag, a
	// reset replays every batch on the next run.
	Reset(ctx context.Context, component string, force bool) error
	Close() error
}

// ErrNotMonotonic is returned when Advance would move a checkpoint backwards.
var ErrNotMonotonic = errors.New("checkpoint advance would regress")

// ErrResetNotForced is returned when Reset is called without the force flag.
var ErrResetNotForced = errors.New("checkpoint reset requires force")

// SQLiteStore implements Store over an embedded SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	component    TEXT PRIMARY KEY,
	last_batch   INTEGER NOT NULL,
	resume_token TEXT NOT NULL DEFAULT '',
	updated_at   TEXT NOT NULL
);
`

// NewSQLiteStore opens (creating if needed) the checkpoint database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, &StoreError{Op: "open", Path: path, Err: err}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &StoreError{Op: "migrate", Path: path, Err: err}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, component string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT last_batch, resume_token, updated_at FROM checkpoints WHERE component = ?`, component)

	var cp Checkpoint
	var updatedAt string
	err := row.Scan(&cp.LastBatch, &cp.ResumeToken, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "get", Component: component, Err: err}
	}
	cp.Component = component
	cp.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, &StoreError{Op: "get", Component: component, Err: fmt.Errorf("corrupt updated_at: %w", err)}
	}
	return &cp, nil
}

func (s *SQLiteStore) Advance(ctx context.Context, component string, batch int, resumeToken string) error {
	existing, err := s.Get(ctx, component)
	if err != nil {
		return err
	}
	if existing != nil && batch <= existing.LastBatch {
		return fmt.Errorf("%w: %s at %d, requested %d", ErrNotMonotonic, component, existing.LastBatch, batch)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (component, last_batch, resume_token, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(component) DO UPDATE SET
			last_batch = excluded.last_batch,
			resume_token = excluded.resume_token,
			updated_at = excluded.updated_at`,
		component, batch, resumeToken, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return &StoreError{Op: "advance", Component: component, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Reset(ctx context.Context, component string, force bool) error {
	if !force {
		return ErrResetNotForced
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE component = ?`, component); err != nil {
		return &StoreError{Op: "reset", Component: component, Err: err}
	}
	return nil
}

// List returns every stored checkpoint, ordered by component name.
func (s *SQLiteStore) List(ctx context.Context) ([]*Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT component, last_batch, resume_token, updated_at FROM checkpoints ORDER BY component`)
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var updatedAt string
		if err := rows.Scan(&cp.Component, &cp.LastBatch, &cp.ResumeToken, &updatedAt); err != nil {
			return nil, &StoreError{Op: "list", Err: err}
		}
		if cp.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, &StoreError{Op: "list", Component: cp.Component, Err: err}
		}
		out = append(out, &cp)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
