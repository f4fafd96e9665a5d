package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MikeSquared-Agency/cohort/internal/persona"
	"github.com/MikeSquared-Agency/cohort/internal/pipeline"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cohort_runs (
	run_id        TEXT PRIMARY KEY,
	started_at    TEXT NOT NULL,
	finished_at   TEXT NOT NULL,
	validity      TEXT NOT NULL,
	chunks        INTEGER NOT NULL,
	chunks_failed INTEGER NOT NULL,
	personas      INTEGER NOT NULL,
	report        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cohort_personas (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	persona_id   TEXT NOT NULL,
	batch_start  INTEGER NOT NULL,
	batch_end    INTEGER NOT NULL,
	source_agent TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cohort_personas_run ON cohort_personas(run_id, batch_start);

CREATE TABLE IF NOT EXISTS cohort_feedback (
	id         TEXT PRIMARY KEY,
	persona_id TEXT NOT NULL,
	copy       TEXT NOT NULL,
	source     TEXT NOT NULL,
	response   TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// SQLiteStore is the single-file archive for local runs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens or creates the database at path.
func NewSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Batches append concurrently; one connection keeps writers in line.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() {
	s.db.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, runID string, p persona.Persona) error {
	row, err := toRow(runID, p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cohort_personas (id, run_id, persona_id, batch_start, batch_end, source_agent, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.id, row.runID, row.personaID, row.batchStart, row.batchEnd, row.sourceAgent, string(row.body), timestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert persona: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, rep *pipeline.Report) error {
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cohort_runs (run_id, started_at, finished_at, validity, chunks, chunks_failed, personas, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			chunks_failed = excluded.chunks_failed,
			personas = excluded.personas,
			report = excluded.report`,
		rep.RunID, timestamp(rep.StartedAt), timestamp(rep.FinishedAt), rep.Validity, rep.Chunks, rep.ChunksFailed, rep.Accepted, string(body),
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*pipeline.Report, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM cohort_runs WHERE run_id = ?`, runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	var rep pipeline.Report
	if err := json.Unmarshal([]byte(body), &rep); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &rep, nil
}

func (s *SQLiteStore) RunPersonas(ctx context.Context, runID string) ([]persona.Persona, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM cohort_personas
		WHERE run_id = ?
		ORDER BY batch_start, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query personas: %w", err)
	}
	defer rows.Close()

	var out []persona.Persona
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan persona: %w", err)
		}
		p, err := fromBody([]byte(body))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveFeedback(ctx context.Context, fb Feedback) (string, error) {
	id := newID()
	created := fb.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cohort_feedback (id, persona_id, copy, source, response, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, fb.PersonaID, fb.Copy, fb.Source, fb.Response, timestamp(created),
	)
	if err != nil {
		return "", fmt.Errorf("insert feedback: %w", err)
	}
	return id, nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
