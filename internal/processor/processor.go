// Package processor wires one persona run end to end: inputs are loaded,
// the batch pipeline runs with every configured sink, and results land on
// disk and in the archive.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MikeSquared-Agency/cohort/internal/config"
	"github.com/MikeSquared-Agency/cohort/internal/dataset"
	"github.com/MikeSquared-Agency/cohort/internal/feedback"
	"github.com/MikeSquared-Agency/cohort/internal/hermes"
	"github.com/MikeSquared-Agency/cohort/internal/llm"
	"github.com/MikeSquared-Agency/cohort/internal/output"
	"github.com/MikeSquared-Agency/cohort/internal/persona"
	"github.com/MikeSquared-Agency/cohort/internal/pipeline"
	"github.com/MikeSquared-Agency/cohort/internal/slack"
	"github.com/MikeSquared-Agency/cohort/internal/store"
)

var (
	// ErrNoInput is returned for a job with neither a dataset nor documents.
	ErrNoInput = errors.New("no dataset or documents given")
	// ErrNoArchive is returned by archive lookups when no database is configured.
	ErrNoArchive = errors.New("no run archive configured")
	// ErrPersonaNotFound is returned when a run has no persona with the asked id.
	ErrPersonaNotFound = errors.New("persona not found")
)

// Deps are the collaborators a Processor runs with. Only Model is required.
type Deps struct {
	Model    llm.Model
	Team     config.Team
	Store    store.Store
	Events   *hermes.Emitter
	Notifier *slack.Notifier
}

// Job names the inputs of one run and where its files go.
type Job struct {
	DatasetPath   string
	DocumentPaths []string
	OutputDir     string
}

// Outcome is what a run produced.
type Outcome struct {
	Result *pipeline.Result
	Files  output.Files
	Stream string
	Report string
}

// Processor orchestrates persona runs and persona feedback.
type Processor struct {
	cfg    config.Config
	deps   Deps
	logger *slog.Logger
}

func New(cfg config.Config, deps Deps, logger *slog.Logger) *Processor {
	if len(deps.Team.Agents) == 0 {
		deps.Team = config.DefaultTeam()
	}
	return &Processor{cfg: cfg, deps: deps, logger: logger}
}

// Run executes job. Whatever the pipeline produced is persisted even when it
// reports an error, and the Outcome is returned alongside that error.
func (p *Processor) Run(ctx context.Context, job Job) (*Outcome, error) {
	if job.DatasetPath == "" && len(job.DocumentPaths) == 0 {
		return nil, ErrNoInput
	}
	mode, err := persona.ParseMode(p.cfg.Validity)
	if err != nil {
		return nil, err
	}
	format, err := output.ParseFormat(p.cfg.PersonaFormat)
	if err != nil {
		return nil, err
	}
	outDir := job.OutputDir
	if outDir == "" {
		outDir = p.cfg.OutputDir
	}

	var ds *dataset.Dataset
	if job.DatasetPath != "" {
		ds, err = dataset.LoadCSV(job.DatasetPath)
		if err != nil {
			return nil, fmt.Errorf("load dataset: %w", err)
		}
	}
	docs, err := dataset.LoadDocuments(job.DocumentPaths)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}

	var (
		sinks     []pipeline.Sink
		observers []pipeline.Observer
		out       Outcome
	)
	if p.cfg.StreamFile != "" {
		streamFormat, err := output.ParseFormat(p.cfg.StreamFormat)
		if err != nil {
			return nil, err
		}
		path := p.cfg.StreamFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(outDir, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir: %w", err)
		}
		fs, err := output.OpenFileSink(path, streamFormat)
		if err != nil {
			return nil, err
		}
		defer fs.Close()
		sinks = append(sinks, fs)
		out.Stream = fs.Name()
	}
	if p.deps.Store != nil {
		sinks = append(sinks, p.deps.Store)
		observers = append(observers, store.NewObserver(p.deps.Store, p.logger))
	}
	if p.deps.Events != nil {
		sinks = append(sinks, p.deps.Events)
		observers = append(observers, p.deps.Events)
	}
	if p.deps.Notifier != nil {
		observers = append(observers, p.deps.Notifier)
	}

	runner, err := pipeline.NewRunner(pipeline.Options{
		Team:         p.deps.Team,
		Model:        p.deps.Model,
		Termination:  p.cfg.Termination,
		MaxTurns:     p.cfg.MaxTurns,
		ChunkTimeout: p.cfg.ChunkTimeout,
		Concurrency:  p.cfg.Concurrency,
		Extractor:    persona.NewExtractor(mode, p.logger),
		Sinks:        sinks,
		Observers:    observers,
	}, p.logger)
	if err != nil {
		return nil, err
	}

	res, runErr := runner.Run(ctx, pipeline.Input{
		Dataset:   ds,
		Documents: docs,
		ChunkSize: p.cfg.ChunkSize,
	})
	if res == nil {
		return nil, runErr
	}
	out.Result = res

	files, err := output.Persist(outDir, format, res.Transcript, res.Personas)
	if err != nil {
		return &out, errors.Join(runErr, fmt.Errorf("persist run %s: %w", res.RunID, err))
	}
	out.Files = files

	res.Report.Outputs = map[string]string{
		"transcript": files.Transcript,
		"personas":   files.Personas,
	}
	if out.Stream != "" {
		res.Report.Outputs["stream"] = out.Stream
	}
	out.Report, err = res.Report.Save(outDir)
	if err != nil {
		p.logger.Warn("failed to save run report", "run_id", res.RunID, "error", err)
	}
	if p.deps.Store != nil {
		if err := p.deps.Store.SaveRun(context.WithoutCancel(ctx), res.Report); err != nil {
			p.logger.Warn("failed to archive run outputs", "run_id", res.RunID, "error", err)
		}
	}

	p.logger.Info("run persisted",
		"run_id", res.RunID,
		"personas", len(res.Personas),
		"transcript", files.Transcript,
		"personas_file", files.Personas,
	)
	return &out, runErr
}

// Feedback has p role-play a reader of marketingCopy.
func (p *Processor) Feedback(ctx context.Context, ps persona.Persona, marketingCopy string) (*feedback.Result, error) {
	opts := feedback.Options{
		Model:       p.deps.Model,
		Termination: p.cfg.Termination,
		MaxTurns:    p.cfg.MaxTurns,
	}
	if p.deps.Store != nil {
		opts.Archive = p.deps.Store
	}
	ev, err := feedback.NewEvaluator(opts, p.logger)
	if err != nil {
		return nil, err
	}
	return ev.Evaluate(ctx, ps, marketingCopy)
}

// ArchivedRun returns the report of a run saved in the archive.
func (p *Processor) ArchivedRun(ctx context.Context, runID string) (*pipeline.Report, error) {
	if p.deps.Store == nil {
		return nil, ErrNoArchive
	}
	return p.deps.Store.GetRun(ctx, runID)
}

// ArchivedPersonas returns the personas of a saved run in batch order.
func (p *Processor) ArchivedPersonas(ctx context.Context, runID string) ([]persona.Persona, error) {
	if _, err := p.ArchivedRun(ctx, runID); err != nil {
		return nil, err
	}
	ps, err := p.deps.Store.RunPersonas(ctx, runID)
	if err != nil {
		return nil, err
	}
	if ps == nil {
		ps = []persona.Persona{}
	}
	return ps, nil
}

// ArchivedPersona picks one persona of a saved run. Ids repeat across
// batches, so the first match wins; an empty id picks the first persona.
func (p *Processor) ArchivedPersona(ctx context.Context, runID, personaID string) (persona.Persona, error) {
	ps, err := p.ArchivedPersonas(ctx, runID)
	if err != nil {
		return persona.Persona{}, err
	}
	for _, ap := range ps {
		if personaID == "" || ap.PersonaID == personaID {
			return ap, nil
		}
	}
	return persona.Persona{}, fmt.Errorf("run %s, persona %q: %w", runID, personaID, ErrPersonaNotFound)
}
