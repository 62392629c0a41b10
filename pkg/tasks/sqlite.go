package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// QueueOptions configures a SQLiteQueue.
type QueueOptions struct {
	// VisibilityTimeout is how long a claimed task stays hidden before it is
	// handed out again. Default: 5m.
	VisibilityTimeout time.Duration
	// BusyTimeout is SQLite's lock wait in milliseconds. Default: 10000.
	BusyTimeout int
}

func (o *QueueOptions) defaults() {
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = 5 * time.Minute
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 10_000
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS ndex_tasks (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	resource    TEXT NOT NULL,
	status      TEXT NOT NULL,
	visible_at  INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_ndex_tasks_visible ON ndex_tasks (visible_at);
`

// SQLiteQueue is a visibility-timeout queue stored in one SQLite table.
//
// Claiming a task hides it for VisibilityTimeout. Ack deletes it; a worker
// that never acks lets it reappear, which gives at-least-once delivery.
type SQLiteQueue struct {
	db   *sql.DB
	opts QueueOptions
}

// OpenSQLiteQueue opens (creating if needed) the queue database at path.
// ":memory:" gives a private in-memory queue.
func OpenSQLiteQueue(path string, opts QueueOptions) (*SQLiteQueue, error) {
	opts.defaults()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("task queue: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("task queue: open: %w", err)
	}
	if path == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeout),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("task queue: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("task queue: schema: %w", err)
	}
	return &SQLiteQueue{db: db, opts: opts}, nil
}

// Close closes the database.
func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}

// Submit inserts a task that is immediately visible.
func (q *SQLiteQueue) Submit(ctx context.Context, t Task) error {
	if err := t.check(); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO ndex_tasks (id, type, resource, status, visible_at, created_at) VALUES (?,?,?,?,?,?)`,
		t.ID.String(), string(t.Type), t.Resource, string(StatusQueued), int64(0), t.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("submitting %s: %w", t, err)
	}
	return nil
}

// Claim picks the oldest visible task, hides it for the visibility timeout
// and returns it. Returns nil, nil if none is visible.
func (q *SQLiteQueue) Claim(ctx context.Context) (*Task, error) {
	now := time.Now()
	hideUntil := now.Add(q.opts.VisibilityTimeout).UnixMilli()

	row := q.db.QueryRowContext(ctx, `
		UPDATE ndex_tasks
		SET visible_at = ?, attempts = attempts + 1, status = ?
		WHERE id = (
			SELECT id FROM ndex_tasks
			WHERE visible_at <= ?
			ORDER BY visible_at ASC, created_at ASC
			LIMIT 1
		)
		RETURNING id, type, resource, status, created_at, attempts`,
		hideUntil, string(StatusProcessing), now.UnixMilli(),
	)

	var (
		t        Task
		id       string
		typ      string
		status   string
		created  int64
		attempts int
	)
	err := row.Scan(&id, &typ, &t.Resource, &status, &created, &attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming task: %w", err)
	}
	if t.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("claiming task: bad id %q: %w", id, err)
	}
	t.Type = TaskType(typ)
	t.Status = Status(status)
	t.CreatedAt = time.UnixMilli(created)
	t.Attempts = attempts
	return &t, nil
}

// Ack deletes a processed task.
func (q *SQLiteQueue) Ack(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM ndex_tasks WHERE id = ?`, id.String())
	return err
}

// Nack makes a claimed task visible again immediately.
func (q *SQLiteQueue) Nack(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE ndex_tasks SET visible_at = 0, status = ? WHERE id = ?`, string(StatusQueued), id.String())
	return err
}

// Len returns the number of tasks, visible or not.
func (q *SQLiteQueue) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ndex_tasks`).Scan(&n)
	return n, err
}

// Pending lists every task in claim order, for inspection.
func (q *SQLiteQueue) Pending(ctx context.Context) ([]Task, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, type, resource, status, created_at, attempts FROM ndex_tasks ORDER BY visible_at ASC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var (
			t       Task
			id      string
			typ     string
			status  string
			created int64
		)
		if err := rows.Scan(&id, &typ, &t.Resource, &status, &created, &t.Attempts); err != nil {
			return nil, err
		}
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("bad task id %q: %w", id, err)
		}
		t.Type = TaskType(typ)
		t.Status = Status(status)
		t.CreatedAt = time.UnixMilli(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

var (
	_ Queue    = (*SQLiteQueue)(nil)
	_ Consumer = (*SQLiteQueue)(nil)
)
