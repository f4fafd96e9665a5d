// Package feedback has a persona role-play a reader of marketing copy and
// report how likely it is to buy.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/cohort/internal/llm"
	"github.com/MikeSquared-Agency/cohort/internal/persona"
	"github.com/MikeSquared-Agency/cohort/internal/store"
	"github.com/MikeSquared-Agency/cohort/internal/team"
)

// AgentName is the single seat in a feedback conversation.
const AgentName = "persona_assistant"

const systemMessage = "You are a helpful AI assistant. Stay in character as the persona you are given and answer every question. Reply TERMINATE when the task is done."

// ErrEmptyCopy is returned when there is no marketing copy to evaluate.
var ErrEmptyCopy = errors.New("marketing copy is empty")

// Archive stores feedback messages. store.Store satisfies it.
type Archive interface {
	SaveFeedback(ctx context.Context, fb store.Feedback) (string, error)
}

type Options struct {
	Model       llm.Model
	Termination string
	MaxTurns    int
	Archive     Archive
}

// Message is one line of the conversation.
type Message struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

type Result struct {
	PersonaID   string    `json:"persona_id"`
	Messages    []Message `json:"messages"`
	FeedbackIDs []string  `json:"feedback_ids,omitempty"`
}

// Text renders every message as a "source: / feedback:" pair.
func (r *Result) Text() string {
	var b strings.Builder
	for _, m := range r.Messages {
		fmt.Fprintf(&b, "source: %s\nfeedback: %s\n\n", m.Source, m.Content)
	}
	return b.String()
}

type Evaluator struct {
	opts   Options
	logger *slog.Logger
}

func NewEvaluator(opts Options, logger *slog.Logger) (*Evaluator, error) {
	if opts.Model == nil {
		return nil, errors.New("feedback needs a model")
	}
	if opts.MaxTurns < 1 {
		return nil, fmt.Errorf("max turns must be positive, got %d", opts.MaxTurns)
	}
	return &Evaluator{opts: opts, logger: logger}, nil
}

// Evaluate runs a one-agent conversation over the role-play prompt. Agent
// replies are archived when an Archive is set; archive errors are logged.
func (e *Evaluator) Evaluate(ctx context.Context, p persona.Persona, marketingCopy string) (*Result, error) {
	if strings.TrimSpace(marketingCopy) == "" {
		return nil, ErrEmptyCopy
	}

	agents := []team.Agent{{Name: AgentName, SystemMessage: systemMessage, Model: e.opts.Model}}
	tm, err := team.New(agents, team.TextMention(e.opts.Termination), e.opts.MaxTurns)
	if err != nil {
		return nil, fmt.Errorf("build feedback team: %w", err)
	}

	res := &Result{PersonaID: p.PersonaID}
	stop, err := tm.Run(ctx, persona.FeedbackPrompt(p, marketingCopy), func(ev team.Event) error {
		res.Messages = append(res.Messages, Message{Source: ev.Source, Content: ev.Content})
		if ev.Source == team.TaskSource || e.opts.Archive == nil {
			return nil
		}
		id, err := e.opts.Archive.SaveFeedback(ctx, store.Feedback{
			PersonaID: p.PersonaID,
			Copy:      marketingCopy,
			Source:    ev.Source,
			Response:  ev.Content,
		})
		if err != nil {
			e.logger.Warn("failed to archive feedback", "persona_id", p.PersonaID, "error", err)
			return nil
		}
		res.FeedbackIDs = append(res.FeedbackIDs, id)
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("feedback for persona %s: %w", p.PersonaID, err)
	}

	e.logger.Info("persona feedback complete",
		"persona_id", p.PersonaID,
		"messages", len(res.Messages),
		"stop", stop,
	)
	return res, nil
}
