// Package store archives runs, personas and feedback in Postgres or SQLite.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/MikeSquared-Agency/cohort/internal/persona"
	"github.com/MikeSquared-Agency/cohort/internal/pipeline"
)

var (
	// ErrUnsupportedURL is returned by Open for a URL with an unknown scheme.
	ErrUnsupportedURL = errors.New("unsupported database url")
	// ErrRunNotFound is returned by GetRun for a run that was never saved.
	ErrRunNotFound = errors.New("run not found")
)

// Store is the archive both backends implement. It doubles as a pipeline
// sink so personas are written as soon as they are accepted.
type Store interface {
	Append(ctx context.Context, runID string, p persona.Persona) error
	SaveRun(ctx context.Context, rep *pipeline.Report) error
	RunPersonas(ctx context.Context, runID string) ([]persona.Persona, error)
	GetRun(ctx context.Context, runID string) (*pipeline.Report, error)
	SaveFeedback(ctx context.Context, fb Feedback) (string, error)
	Close()
}

// Feedback is one persona's reaction to a piece of marketing copy.
type Feedback struct {
	ID        string
	PersonaID string
	Copy      string
	Source    string
	Response  string
	CreatedAt time.Time
}

// Open picks the backend from the URL: postgres:// or postgresql:// for
// Postgres, sqlite:<path> for a local file.
func Open(ctx context.Context, url string) (Store, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgres(ctx, url)
	case strings.HasPrefix(url, "sqlite:"):
		return NewSQLite(ctx, strings.TrimPrefix(strings.TrimPrefix(url, "sqlite:"), "//"))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, url)
	}
}

// newID returns a lexically sortable id, so rows read back in insert order.
func newID() string {
	return ulid.Make().String()
}

type personaRow struct {
	id          string
	runID       string
	personaID   string
	batchStart  int
	batchEnd    int
	sourceAgent string
	body        []byte
}

func toRow(runID string, p persona.Persona) (personaRow, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return personaRow{}, fmt.Errorf("marshal persona: %w", err)
	}
	return personaRow{
		id:          newID(),
		runID:       runID,
		personaID:   p.PersonaID,
		batchStart:  p.BatchStart,
		batchEnd:    p.BatchEnd,
		sourceAgent: p.SourceAgent,
		body:        body,
	}, nil
}

func fromBody(body []byte) (persona.Persona, error) {
	var p persona.Persona
	if err := json.Unmarshal(body, &p); err != nil {
		return persona.Persona{}, fmt.Errorf("unmarshal persona: %w", err)
	}
	return p, nil
}
