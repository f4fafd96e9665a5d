package pipeline

import (
	"context"
	"log/slog"

	"github.com/MikeSquared-Agency/cohort/internal/dataset"
	"github.com/MikeSquared-Agency/cohort/internal/persona"
	"github.com/MikeSquared-Agency/cohort/internal/team"
)

// TranscriptEntry is one conversation message tagged with its batch range.
type TranscriptEntry struct {
	BatchStart       int    `json:"batch_start"`
	BatchEnd         int    `json:"batch_end"`
	Source           string `json:"source"`
	Content          string `json:"content"`
	Type             string `json:"type"`
	PromptTokens     *int   `json:"prompt_tokens,omitempty"`
	CompletionTokens *int   `json:"completion_tokens,omitempty"`
}

// recorder consumes one batch's events: every event goes to the transcript,
// agent messages also go through the extractor.
type recorder struct {
	ctx    context.Context
	runID  string
	chunk  dataset.Chunk
	ext    *persona.Extractor
	sink   Sink
	logger *slog.Logger

	entries  []TranscriptEntry
	scan     persona.ScanResult
	repaired int
	sinkErrs int
}

func (rec *recorder) handle(ev team.Event) error {
	start, end := rec.chunk.StartIndex, rec.chunk.EndIndex()
	rec.entries = append(rec.entries, TranscriptEntry{
		BatchStart:       start,
		BatchEnd:         end,
		Source:           ev.Source,
		Content:          ev.Content,
		Type:             ev.Type,
		PromptTokens:     ev.PromptTokens,
		CompletionTokens: ev.CompletionTokens,
	})

	if ev.Source == team.TaskSource {
		return nil
	}

	res := rec.ext.Scan(ev.Content)
	for i := range res.Accepted {
		p := &res.Accepted[i]
		p.BatchStart, p.BatchEnd, p.SourceAgent = start, end, ev.Source
		if persona.Repair(p) {
			rec.repaired++
		}
		if rec.sink == nil {
			continue
		}
		if err := rec.sink.Append(rec.ctx, rec.runID, *p); err != nil {
			rec.sinkErrs++
			rec.logger.Warn("persona sink append failed",
				"batch_start", start,
				"batch_end", end,
				"persona_id", p.PersonaID,
				"error", err,
			)
		}
	}
	rec.scan.Add(res)
	return nil
}
