// Package storage persists ingestion results in SQLite. The database is
// the durable side of the system: deduplicated candidates, project
// counters, the audit trail and job snapshots all live here.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/litsift/litsift/internal/normalize"
	"github.com/litsift/litsift/internal/pipeline"
	"github.com/litsift/litsift/internal/reference"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found in storage")

const schema = `
CREATE TABLE IF NOT EXISTS candidates (
	project_id     TEXT NOT NULL,
	canonical_hash TEXT NOT NULL,
	richness       INTEGER NOT NULL,
	payload        TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL,
	PRIMARY KEY (project_id, canonical_hash)
);

CREATE TABLE IF NOT EXISTS counters (
	project_id TEXT NOT NULL,
	name       TEXT NOT NULL,
	value      INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (project_id, name)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id TEXT NOT NULL,
	action     TEXT NOT NULL,
	detail     TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	state         TEXT NOT NULL,
	progress_step TEXT NOT NULL DEFAULT '',
	progress_pct  INTEGER NOT NULL DEFAULT 0,
	result        TEXT,
	error         TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);
`

// Storage wraps the SQLite database.
type Storage struct {
	db *sql.DB
}

// New opens (creating if needed) the database at dbPath.
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// modernc.org/sqlite serializes writers; a single connection avoids
	// SQLITE_BUSY under concurrent workers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// UpsertCandidates stores deduplicated records for a project, keyed by
// canonical hash. An incoming record replaces a stored one only when it
// is richer; re-ingesting the same corpus is a no-op.
func (s *Storage) UpsertCandidates(ctx context.Context, projectID string, records []reference.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding candidate: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO candidates (project_id, canonical_hash, richness, payload, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (project_id, canonical_hash) DO UPDATE SET
				richness   = excluded.richness,
				payload    = excluded.payload,
				updated_at = excluded.updated_at
			WHERE excluded.richness > candidates.richness`,
			projectID, normalize.CanonicalHash(rec), normalize.RichnessScore(rec), string(payload), now, now)
		if err != nil {
			return fmt.Errorf("upserting candidate: %w", err)
		}
	}
	return tx.Commit()
}

// Candidates returns the stored records for a project.
func (s *Storage) Candidates(ctx context.Context, projectID string) ([]reference.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM candidates WHERE project_id = ? ORDER BY created_at, canonical_hash`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}
	defer rows.Close()

	var records []reference.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		var rec reference.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("decoding candidate: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// IncrementCounter atomically adds delta to a named project counter.
func (s *Storage) IncrementCounter(ctx context.Context, projectID, name string, delta int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO counters (project_id, name, value) VALUES (?, ?, ?)
		ON CONFLICT (project_id, name) DO UPDATE SET value = value + excluded.value`,
		projectID, name, delta)
	if err != nil {
		return fmt.Errorf("incrementing counter %s: %w", name, err)
	}
	return nil
}

// GetCounter returns the counter value, zero if never incremented.
func (s *Storage) GetCounter(ctx context.Context, projectID, name string) (int, error) {
	var value int
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM counters WHERE project_id = ? AND name = ?`,
		projectID, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading counter %s: %w", name, err)
	}
	return value, nil
}

// AppendAudit appends an entry to the project's audit trail. The log is
// append-only; nothing in the codebase updates or deletes rows.
func (s *Storage) AppendAudit(ctx context.Context, projectID, action, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (project_id, action, detail, created_at) VALUES (?, ?, ?, ?)`,
		projectID, action, detail, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// SaveJob persists a job snapshot, replacing any previous snapshot for
// the same ID.
func (s *Storage) SaveJob(ctx context.Context, snap pipeline.JobSnapshot) error {
	var result sql.NullString
	if snap.Result != nil {
		encoded, err := json.Marshal(snap.Result)
		if err != nil {
			return fmt.Errorf("encoding job result: %w", err)
		}
		result = sql.NullString{String: string(encoded), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, kind, state, progress_step, progress_pct, result, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			state         = excluded.state,
			progress_step = excluded.progress_step,
			progress_pct  = excluded.progress_pct,
			result        = excluded.result,
			error         = excluded.error,
			updated_at    = excluded.updated_at`,
		snap.ID, string(snap.Kind), string(snap.State), snap.ProgressStep, snap.ProgressPct,
		result, snap.Error,
		snap.CreatedAt.UTC().Format(time.RFC3339), snap.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving job %s: %w", snap.ID, err)
	}
	return nil
}

// DeleteJob removes a job snapshot. Deleting an unknown ID is a no-op.
func (s *Storage) DeleteJob(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting job %s: %w", id, err)
	}
	return nil
}

// LoadJob returns the stored snapshot for a job ID.
func (s *Storage) LoadJob(ctx context.Context, id string) (pipeline.JobSnapshot, error) {
	var (
		snap             pipeline.JobSnapshot
		kind, state      string
		result           sql.NullString
		created, updated string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, state, progress_step, progress_pct, result, error, created_at, updated_at
		FROM jobs WHERE id = ?`, id).
		Scan(&snap.ID, &kind, &state, &snap.ProgressStep, &snap.ProgressPct, &result, &snap.Error, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return pipeline.JobSnapshot{}, ErrNotFound
	}
	if err != nil {
		return pipeline.JobSnapshot{}, fmt.Errorf("loading job %s: %w", id, err)
	}

	snap.Kind = pipeline.Kind(kind)
	snap.State = pipeline.State(state)
	if result.Valid {
		var outcome pipeline.Outcome
		if err := json.Unmarshal([]byte(result.String), &outcome); err != nil {
			return pipeline.JobSnapshot{}, fmt.Errorf("decoding job result: %w", err)
		}
		snap.Result = &outcome
	}
	if snap.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return pipeline.JobSnapshot{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if snap.UpdatedAt, err = time.Parse(time.RFC3339, updated); err != nil {
		return pipeline.JobSnapshot{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return snap, nil
}
