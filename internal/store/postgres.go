package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeSquared-Agency/cohort/internal/persona"
	"github.com/MikeSquared-Agency/cohort/internal/pipeline"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS cohort_runs (
	run_id        TEXT PRIMARY KEY,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL,
	validity      TEXT NOT NULL,
	chunks        INT NOT NULL,
	chunks_failed INT NOT NULL,
	personas      INT NOT NULL,
	report        JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS cohort_personas (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	persona_id   TEXT NOT NULL,
	batch_start  INT NOT NULL,
	batch_end    INT NOT NULL,
	source_agent TEXT NOT NULL DEFAULT '',
	body         JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_cohort_personas_run ON cohort_personas(run_id, batch_start);

CREATE TABLE IF NOT EXISTS cohort_feedback (
	id         TEXT PRIMARY KEY,
	persona_id TEXT NOT NULL,
	copy       TEXT NOT NULL,
	source     TEXT NOT NULL,
	response   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PGStore is the Postgres archive.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, pings and makes sure the tables exist.
func NewPostgres(ctx context.Context, databaseURL string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Close() {
	s.pool.Close()
}

func (s *PGStore) Append(ctx context.Context, runID string, p persona.Persona) error {
	row, err := toRow(runID, p)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO cohort_personas (id, run_id, persona_id, batch_start, batch_end, source_agent, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		row.id, row.runID, row.personaID, row.batchStart, row.batchEnd, row.sourceAgent, row.body,
	)
	if err != nil {
		return fmt.Errorf("insert persona: %w", err)
	}
	return nil
}

// SaveRun upserts the run summary; saving the same run twice keeps the latest.
func (s *PGStore) SaveRun(ctx context.Context, rep *pipeline.Report) error {
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO cohort_runs (run_id, started_at, finished_at, validity, chunks, chunks_failed, personas, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			chunks_failed = EXCLUDED.chunks_failed,
			personas = EXCLUDED.personas,
			report = EXCLUDED.report`,
		rep.RunID, rep.StartedAt, rep.FinishedAt, rep.Validity, rep.Chunks, rep.ChunksFailed, rep.Accepted, body,
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// GetRun returns the saved report of a run.
func (s *PGStore) GetRun(ctx context.Context, runID string) (*pipeline.Report, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT report FROM cohort_runs WHERE run_id = $1`, runID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	var rep pipeline.Report
	if err := json.Unmarshal(body, &rep); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &rep, nil
}

// RunPersonas returns a run's personas in batch order, then extraction order.
func (s *PGStore) RunPersonas(ctx context.Context, runID string) ([]persona.Persona, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT body FROM cohort_personas
		WHERE run_id = $1
		ORDER BY batch_start, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query personas: %w", err)
	}
	defer rows.Close()

	var out []persona.Persona
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan persona: %w", err)
		}
		p, err := fromBody(body)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PGStore) SaveFeedback(ctx context.Context, fb Feedback) (string, error) {
	id := newID()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cohort_feedback (id, persona_id, copy, source, response)
		VALUES ($1, $2, $3, $4, $5)`,
		id, fb.PersonaID, fb.Copy, fb.Source, fb.Response,
	)
	if err != nil {
		return "", fmt.Errorf("insert feedback: %w", err)
	}
	return id, nil
}
