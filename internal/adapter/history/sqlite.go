// Package history keeps a local log of finished dispatches.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"unisearch/internal/domain"
)

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Attempt is one provider attempt as stored.
type Attempt struct {
	Provider    string         `json:"provider"`
	Outcome     domain.Outcome `json:"outcome"`
	ErrorDetail string         `json:"error_detail,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
}

// Entry is one stored dispatch.
type Entry struct {
	ID         string           `json:"id"`
	Query      string           `json:"query"`
	Mode       domain.Mode      `json:"mode"`
	Selection  string           `json:"selection"`
	Status     string           `json:"status"`
	Provider   string           `json:"provider,omitempty"`
	ErrorCode  domain.ErrorCode `json:"error_code,omitempty"`
	Attempts   []Attempt        `json:"attempts"`
	DurationMS int64            `json:"duration_ms"`
	CreatedAt  time.Time        `json:"created_at"`
}

// SQLiteStore records dispatches in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs the
// schema migration. Parent directories are created as needed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, storeErr("open", fmt.Errorf("create history dir: %w", err))
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, storeErr("open", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, storeErr("open", fmt.Errorf("set WAL mode: %w", err))
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, storeErr("migrate", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dispatches (
			id          TEXT PRIMARY KEY,
			query       TEXT NOT NULL,
			mode        TEXT NOT NULL,
			selection   TEXT NOT NULL,
			status      TEXT NOT NULL,
			provider    TEXT NOT NULL DEFAULT '',
			error_code  TEXT NOT NULL DEFAULT '',
			attempts    TEXT NOT NULL DEFAULT '[]',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_dispatches_created ON dispatches(created_at)`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record stores a finished dispatch.
func (s *SQLiteStore) Record(ctx context.Context, result domain.DispatchResult) error {
	e := entryFromResult(result)
	attempts, err := json.Marshal(e.Attempts)
	if err != nil {
		return storeErr("record", fmt.Errorf("marshal attempts: %w", err))
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dispatches (id, query, mode, selection, status, provider, error_code, attempts, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Query, string(e.Mode), e.Selection, e.Status, e.Provider, string(e.ErrorCode),
		string(attempts), e.DurationMS, e.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return storeErr("record", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, mode, selection, status, provider, error_code, attempts, duration_ms, created_at
		 FROM dispatches ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, storeErr("recent", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                    Entry
			mode, code, attempts string
			createdAt            string
		)
		if err := rows.Scan(&e.ID, &e.Query, &mode, &e.Selection, &e.Status, &e.Provider,
			&code, &attempts, &e.DurationMS, &createdAt); err != nil {
			return nil, storeErr("recent", err)
		}
		e.Mode = domain.Mode(mode)
		e.ErrorCode = domain.ErrorCode(code)
		if err := json.Unmarshal([]byte(attempts), &e.Attempts); err != nil {
			return nil, storeErr("recent", fmt.Errorf("decode attempts for %s: %w", e.ID, err))
		}
		e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("recent", err)
	}
	return entries, nil
}

func entryFromResult(r domain.DispatchResult) Entry {
	e := Entry{
		ID:         r.ID,
		Query:      r.Query.Text,
		Mode:       r.Query.Mode,
		Selection:  r.Selection,
		Status:     "failure",
		ErrorCode:  domain.ErrorCodeOf(r.Err()),
		Attempts:   make([]Attempt, 0, len(r.Attempts)),
		DurationMS: r.Duration.Milliseconds(),
		CreatedAt:  r.StartedAt.UTC(),
	}
	if winner, ok := r.Winner(); ok {
		e.Status = "success"
		e.Provider = winner.Provider
	}
	for _, a := range r.Attempts {
		e.Attempts = append(e.Attempts, Attempt{
			Provider:    a.Provider,
			Outcome:     a.Outcome,
			ErrorDetail: a.Detail,
			DurationMS:  a.Duration.Milliseconds(),
		})
	}
	return e
}

func storeErr(op string, err error) error {
	return domain.NewDomainError("History."+op, domain.ErrHistoryStore, err.Error())
}
