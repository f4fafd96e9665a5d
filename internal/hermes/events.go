package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/cohort/internal/persona"
	"github.com/MikeSquared-Agency/cohort/internal/pipeline"
)

// Subjects cohort publishes on.
const (
	SubjectPersonaExtracted = "cohort.persona.extracted"
	SubjectBatchFailed      = "cohort.batch.failed"
	SubjectRunCompleted     = "cohort.run.completed"

	// SubjectAll matches every cohort event.
	SubjectAll = "cohort.>"
)

// PersonaExtracted is published for every accepted persona.
type PersonaExtracted struct {
	RunID   string          `json:"run_id"`
	Persona persona.Persona `json:"persona"`
}

// BatchFailed is published when a batch stops on an error.
type BatchFailed struct {
	RunID      string `json:"run_id"`
	BatchStart int    `json:"batch_start"`
	BatchEnd   int    `json:"batch_end"`
	Error      string `json:"error"`
}

// RunCompleted carries the run report.
type RunCompleted struct {
	RunID      string           `json:"run_id"`
	DurationMS int64            `json:"duration_ms"`
	Report     *pipeline.Report `json:"report"`
}

// Publisher is the part of Client the event emitter needs.
type Publisher interface {
	Publish(subject string, data any) error
}

// Emitter turns pipeline callbacks into NATS events. Publish failures are
// logged, never returned to the run, except from Append so the pipeline can
// count them.
type Emitter struct {
	pub    Publisher
	logger *slog.Logger
}

func NewEmitter(pub Publisher, logger *slog.Logger) *Emitter {
	return &Emitter{pub: pub, logger: logger}
}

func (e *Emitter) Append(ctx context.Context, runID string, p persona.Persona) error {
	return e.pub.Publish(SubjectPersonaExtracted, PersonaExtracted{RunID: runID, Persona: p})
}

func (e *Emitter) BatchFailed(ctx context.Context, runID string, f pipeline.BatchFailure) {
	ev := BatchFailed{RunID: runID, BatchStart: f.Start, BatchEnd: f.End, Error: f.Err.Error()}
	if err := e.pub.Publish(SubjectBatchFailed, ev); err != nil {
		e.logger.Warn("failed to publish batch failure", "run_id", runID, "error", err)
	}
}

func (e *Emitter) RunCompleted(ctx context.Context, rep *pipeline.Report) {
	ev := RunCompleted{RunID: rep.RunID, DurationMS: rep.Duration().Milliseconds(), Report: rep}
	if err := e.pub.Publish(SubjectRunCompleted, ev); err != nil {
		e.logger.Warn("failed to publish run completion", "run_id", rep.RunID, "error", err)
	}
}

// Describe renders one received event as a single log line. Payloads that do
// not decode are shown raw.
func Describe(subject string, data []byte) string {
	switch subject {
	case SubjectPersonaExtracted:
		var ev PersonaExtracted
		if json.Unmarshal(data, &ev) == nil {
			return fmt.Sprintf("%s run=%s persona=%s batch=%d-%d %q", subject, ev.RunID,
				ev.Persona.PersonaID, ev.Persona.BatchStart, ev.Persona.BatchEnd, ev.Persona.Description)
		}
	case SubjectBatchFailed:
		var ev BatchFailed
		if json.Unmarshal(data, &ev) == nil {
			return fmt.Sprintf("%s run=%s batch=%d-%d error=%q", subject, ev.RunID, ev.BatchStart, ev.BatchEnd, ev.Error)
		}
	case SubjectRunCompleted:
		var ev RunCompleted
		if json.Unmarshal(data, &ev) == nil && ev.Report != nil {
			return fmt.Sprintf("%s run=%s personas=%d batches=%d failed=%d duration=%dms", subject, ev.RunID,
				ev.Report.Accepted, ev.Report.Chunks, ev.Report.ChunksFailed, ev.DurationMS)
		}
	}
	return fmt.Sprintf("%s %s", subject, data)
}
