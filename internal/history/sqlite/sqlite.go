package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/rtmon/internal/history"
)

// Sink writes history events to SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// a pool would give every connection its own :memory: database
	db.SetMaxOpenConns(1)

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS task_history(
			id TEXT PRIMARY KEY,
			occurred_at TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
			event TEXT NOT NULL,
			pid INTEGER NOT NULL,
			c_ms INTEGER NOT NULL,
			t_ms INTEGER NOT NULL,
			periods INTEGER NOT NULL DEFAULT 0,
			overruns INTEGER NOT NULL DEFAULT 0,
			reason TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_task_history_pid ON task_history(pid);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	t := e.Task
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_history(id, occurred_at, event, pid, c_ms, t_ms, periods, overruns, reason)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		e.ID, e.OccurredAt.UTC(), string(e.Type), t.PID, t.C, t.T, int64(t.Periods), int64(t.Overruns), nullable(t.Reason))
	return err
}

// Count returns the number of events stored for pid.
func (s *Sink) Count(ctx context.Context, pid int32) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_history WHERE pid = ?`, pid).Scan(&n)
	return n, err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
