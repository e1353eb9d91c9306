// SPDX-License-Identifier: MIT

// Package catalog persists a queryable record of every job the daemon
// has seen. The queue remains the source of truth while running; the
// catalog answers historical queries (incomplete jobs, past runs)
// across restarts.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/subwave-io/subwave/internal/log"
	"github.com/subwave-io/subwave/internal/types"
)

// ErrNotFound reports an unknown job id.
var ErrNotFound = errors.New("catalog: job not found")

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	source_path   TEXT NOT NULL,
	display_name  TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	phase         TEXT NOT NULL DEFAULT '',
	progress      REAL NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	settings_json TEXT NOT NULL DEFAULT '{}',
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL,
	completed_at  TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`

// Record is one catalog row.
type Record struct {
	ID           string          `json:"id"`
	SourcePath   string          `json:"source_path"`
	DisplayName  string          `json:"display_name"`
	Status       types.JobStatus `json:"status"`
	Phase        types.JobPhase  `json:"phase,omitempty"`
	Progress     float64         `json:"progress"`
	Error        string          `json:"error,omitempty"`
	SettingsJSON string          `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Catalog wraps the SQLite database.
type Catalog struct {
	db *sql.DB
}

// Open creates or opens the catalog database and applies the schema.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, types.E(types.KindIO, "catalog.open", err)
	}
	// SQLite serializes writers; one connection avoids lock churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, types.E(types.KindIO, "catalog.open", err)
	}
	logger := log.WithComponent("catalog")
	logger.Debug().Str("path", path).Msg("catalog opened")
	return &Catalog{db: db}, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Upsert writes or replaces the row for a job.
func (c *Catalog) Upsert(ctx context.Context, r Record) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO jobs (id, source_path, display_name, status, phase, progress, error, settings_json, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_path  = excluded.source_path,
			display_name = excluded.display_name,
			status       = excluded.status,
			phase        = excluded.phase,
			progress     = excluded.progress,
			error        = excluded.error,
			settings_json = excluded.settings_json,
			updated_at   = excluded.updated_at,
			completed_at = excluded.completed_at`,
		r.ID, r.SourcePath, r.DisplayName, string(r.Status), string(r.Phase),
		r.Progress, r.Error, r.SettingsJSON, r.CreatedAt.UTC(), r.UpdatedAt.UTC(), nullableTime(r.CompletedAt))
	if err != nil {
		return types.E(types.KindIO, "catalog.upsert", err)
	}
	return nil
}

// Get returns the row for one job id.
func (c *Catalog) Get(ctx context.Context, id string) (Record, error) {
	row := c.db.QueryRowContext(ctx, selectCols+` WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, types.E(types.KindIO, "catalog.get", err)
	}
	return r, nil
}

// Incomplete lists jobs that never reached a terminal state, newest
// first. These are restart candidates.
func (c *Catalog) Incomplete(ctx context.Context) ([]Record, error) {
	return c.query(ctx, selectCols+`
		WHERE status NOT IN (?, ?, ?)
		ORDER BY updated_at DESC`,
		string(types.JobStatusFinished), string(types.JobStatusCanceled), string(types.JobStatusFailed))
}

// List returns every row, newest first.
func (c *Catalog) List(ctx context.Context) ([]Record, error) {
	return c.query(ctx, selectCols+` ORDER BY created_at DESC`)
}

// Delete removes the row for a job id. Deleting an absent row is not
// an error.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return types.E(types.KindIO, "catalog.delete", err)
	}
	return nil
}

const selectCols = `
	SELECT id, source_path, display_name, status, phase, progress, error, settings_json, created_at, updated_at, completed_at
	FROM jobs`

func (c *Catalog) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, types.E(types.KindIO, "catalog.query", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, types.E(types.KindIO, "catalog.query", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, types.E(types.KindIO, "catalog.query", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		r           Record
		status      string
		phase       string
		completedAt sql.NullTime
	)
	err := s.Scan(&r.ID, &r.SourcePath, &r.DisplayName, &status, &phase,
		&r.Progress, &r.Error, &r.SettingsJSON, &r.CreatedAt, &r.UpdatedAt, &completedAt)
	if err != nil {
		return Record{}, err
	}
	r.Status = types.JobStatus(status)
	r.Phase = types.JobPhase(phase)
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return r, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
