// Package pipeline runs one conversation per dataset batch, concurrently, and
// merges transcripts and personas back in batch order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/cohort/internal/config"
	"github.com/MikeSquared-Agency/cohort/internal/dataset"
	"github.com/MikeSquared-Agency/cohort/internal/llm"
	"github.com/MikeSquared-Agency/cohort/internal/persona"
	"github.com/MikeSquared-Agency/cohort/internal/team"
)

// ErrAllBatchesFailed is returned when there was work to do and no batch finished.
var ErrAllBatchesFailed = errors.New("all batches failed")

// BatchFailure is a batch that stopped on an error.
type BatchFailure struct {
	Start int
	End   int
	Err   error
}

func (f BatchFailure) Error() string {
	return fmt.Sprintf("batch %d-%d: %v", f.Start, f.End, f.Err)
}

func (f BatchFailure) Unwrap() error { return f.Err }

// Options configures a Runner.
type Options struct {
	Team         config.Team
	Model        llm.Model
	Termination  string
	MaxTurns     int
	ChunkTimeout time.Duration
	Concurrency  int
	Extractor    *persona.Extractor

	// Sinks see personas as they are accepted, Observers see failures and
	// the finished run. Both are optional.
	Sinks     []Sink
	Observers []Observer
}

// Input is what one run processes. With no survey records the documents
// are processed one per batch.
type Input struct {
	Dataset   *dataset.Dataset
	Documents []dataset.Document
	ChunkSize int
}

// Result is the merged output of a run, in batch order.
type Result struct {
	RunID      string
	Transcript []TranscriptEntry
	Personas   []persona.Persona
	Failures   []BatchFailure
	Report     *Report
}

// Runner orchestrates batch conversations.
type Runner struct {
	opts   Options
	logger *slog.Logger
}

// NewRunner checks opts and creates a Runner.
func NewRunner(opts Options, logger *slog.Logger) (*Runner, error) {
	if opts.Model == nil {
		return nil, errors.New("runner needs a model")
	}
	if opts.Extractor == nil {
		return nil, errors.New("runner needs an extractor")
	}
	if len(opts.Team.Agents) == 0 {
		opts.Team = config.DefaultTeam()
	}
	if opts.MaxTurns < 1 {
		return nil, fmt.Errorf("max turns must be positive, got %d", opts.MaxTurns)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Runner{opts: opts, logger: logger}, nil
}

type batchResult struct {
	entries  []TranscriptEntry
	scan     persona.ScanResult
	repaired int
	sinkErrs int
	stop     team.StopReason
	err      error
}

// Run processes every batch and merges the results. A failed batch does not
// stop its siblings; its partial transcript and personas are kept. The
// returned Result is non-nil even when err is, so callers can persist what
// was produced.
func (r *Runner) Run(ctx context.Context, in Input) (*Result, error) {
	runID := uuid.NewString()
	started := time.Now().UTC()

	var chunks []dataset.Chunk
	// A survey, even a header-only one, takes precedence over documents.
	if in.Dataset != nil {
		chunks = dataset.Partition(in.Dataset, in.ChunkSize)
	} else {
		chunks = dataset.DocumentChunks(in.Documents)
	}

	r.logger.Info("run started",
		"run_id", runID,
		"records", in.Dataset.Len(),
		"documents", len(in.Documents),
		"batches", len(chunks),
		"validity", r.opts.Extractor.Mode().String(),
	)

	var sink Sink
	if len(r.opts.Sinks) > 0 {
		sink = MultiSink(r.opts.Sinks)
	}

	results := make([]batchResult, len(chunks))
	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, c := range chunks {
		g.Go(func() error {
			results[i] = r.runBatch(ctx, runID, c, in.Documents, sink)
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{RunID: runID}
	rep := &Report{
		RunID:     runID,
		StartedAt: started,
		Validity:  r.opts.Extractor.Mode().String(),
		Chunks:    len(chunks),
		Failures:  []FailureReport{},
	}

	var total persona.ScanResult
	for i, br := range results {
		res.Transcript = append(res.Transcript, br.entries...)
		res.Personas = append(res.Personas, br.scan.Accepted...)
		total.Add(br.scan)
		rep.Repaired += br.repaired
		rep.SinkErrors += br.sinkErrs

		if br.err != nil {
			f := BatchFailure{Start: chunks[i].StartIndex, End: chunks[i].EndIndex(), Err: br.err}
			res.Failures = append(res.Failures, f)
			rep.Failures = append(rep.Failures, FailureReport{BatchStart: f.Start, BatchEnd: f.End, Error: br.err.Error()})
			r.logger.Warn("batch failed",
				"run_id", runID,
				"batch_start", f.Start,
				"batch_end", f.End,
				"messages", len(br.entries),
				"personas", len(br.scan.Accepted),
				"error", br.err,
			)
			for _, o := range r.opts.Observers {
				o.BatchFailed(ctx, runID, f)
			}
		}
	}

	rep.FinishedAt = time.Now().UTC()
	rep.ChunksFailed = len(res.Failures)
	rep.Messages = len(res.Transcript)
	rep.Accepted = len(total.Accepted)
	rep.Rejected = len(total.Rejected)
	rep.ParseFailures = total.ParseFailures
	rep.Unrecognized = total.Unrecognized
	rep.Coerced = total.Coerced
	rep.ExtraKeys = total.ExtraKeys
	rep.DroppedKeys = total.DroppedKeys
	res.Report = rep

	r.logger.Info("run complete",
		"run_id", runID,
		"batches", rep.Chunks,
		"batches_failed", rep.ChunksFailed,
		"messages", rep.Messages,
		"personas", rep.Accepted,
		"rejected", rep.Rejected,
		"parse_failures", rep.ParseFailures,
		"duration", rep.Duration().String(),
	)

	for _, o := range r.opts.Observers {
		o.RunCompleted(ctx, rep)
	}

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("run %s: %w", runID, err)
	}
	if len(chunks) > 0 && len(res.Failures) == len(chunks) {
		return res, ErrAllBatchesFailed
	}
	return res, nil
}

func (r *Runner) runBatch(ctx context.Context, runID string, c dataset.Chunk, docs []dataset.Document, sink Sink) batchResult {
	if r.opts.ChunkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.ChunkTimeout)
		defer cancel()
	}

	logger := r.logger.With("run_id", runID, "batch_start", c.StartIndex, "batch_end", c.EndIndex())

	rec := &recorder{
		ctx:    ctx,
		runID:  runID,
		chunk:  c,
		ext:    r.opts.Extractor,
		sink:   sink,
		logger: logger,
	}

	tm, err := team.New(team.FromRoster(r.opts.Team, r.opts.Model), team.TextMention(r.opts.Termination), r.opts.MaxTurns)
	if err != nil {
		return batchResult{err: err}
	}

	logger.Info("batch started", "records", len(c.Records), "document", c.Document)
	stop, err := tm.Run(ctx, persona.Compose(c, docs), rec.handle)

	br := batchResult{
		entries:  rec.entries,
		scan:     rec.scan,
		repaired: rec.repaired,
		sinkErrs: rec.sinkErrs,
		stop:     stop,
		err:      err,
	}
	if err == nil {
		logger.Info("batch complete",
			"stop", string(stop),
			"messages", len(rec.entries),
			"personas", len(rec.scan.Accepted),
			"rejected", len(rec.scan.Rejected),
		)
	}
	return br
}
