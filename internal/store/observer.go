package store

import (
	"context"
	"log/slog"

	"github.com/MikeSquared-Agency/cohort/internal/pipeline"
)

// Observer saves the run report when a run completes. Failures are logged;
// the archive never fails a run.
type Observer struct {
	store  Store
	logger *slog.Logger
}

func NewObserver(s Store, logger *slog.Logger) *Observer {
	return &Observer{store: s, logger: logger}
}

func (o *Observer) BatchFailed(ctx context.Context, runID string, f pipeline.BatchFailure) {}

func (o *Observer) RunCompleted(ctx context.Context, rep *pipeline.Report) {
	if err := o.store.SaveRun(context.WithoutCancel(ctx), rep); err != nil {
		o.logger.Error("failed to archive run", "run_id", rep.RunID, "error", err)
	}
}
