package llm

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"
)

const defaultBackoff = 2 * time.Second

// Retrying re-issues calls that failed with a transient error.
type Retrying struct {
	model    Model
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// WithRetry wraps m so that rate limits, 5xx answers and transport errors are
// retried up to attempts times in total, doubling the pause each time.
func WithRetry(m Model, attempts int, logger *slog.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{model: m, attempts: attempts, backoff: defaultBackoff, logger: logger}
}

func (r *Retrying) Name() string { return r.model.Name() }

func (r *Retrying) Chat(ctx context.Context, system string, messages []Message) (Completion, error) {
	wait := r.backoff
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		out, err := r.model.Chat(ctx, system, messages)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == r.attempts || ctx.Err() != nil {
			break
		}
		r.logger.Warn("model call failed, retrying",
			"model", r.model.Name(),
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return Completion{}, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return Completion{}, lastErr
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	var ne net.Error
	return errors.As(err, &ne)
}
