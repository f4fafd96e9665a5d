package pipeline

import (
	"context"
	"errors"

	"github.com/MikeSquared-Agency/cohort/internal/persona"
)

// Sink receives each persona the moment it is accepted. Batches run
// concurrently, so implementations must serialise their own writes.
type Sink interface {
	Append(ctx context.Context, runID string, p persona.Persona) error
}

// Observer is told about batch failures and the finished run.
type Observer interface {
	BatchFailed(ctx context.Context, runID string, f BatchFailure)
	RunCompleted(ctx context.Context, rep *Report)
}

// MultiSink fans a persona out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, runID string, p persona.Persona) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, runID, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
