// Package team runs a fixed roster of LLM agents in round-robin order until a
// termination marker shows up or the turn budget runs out.
package team

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/cohort/internal/config"
	"github.com/MikeSquared-Agency/cohort/internal/llm"
)

// TypeText tags plain text messages, the only kind this driver emits.
const TypeText = "TextMessage"

// TaskSource is the speaker recorded for the opening task message.
const TaskSource = "user"

// Event is one message emitted by a conversation, in emission order.
type Event struct {
	Source           string
	Content          string
	Type             string
	PromptTokens     *int
	CompletionTokens *int
}

// Handler consumes events as they are produced. Returning an error stops the run.
type Handler func(Event) error

// Termination decides whether an agent message ends the conversation.
type Termination interface {
	Done(ev Event) bool
}

// TextMention terminates once an agent message contains the marker text.
type TextMention string

func (t TextMention) Done(ev Event) bool {
	return t != "" && strings.Contains(ev.Content, string(t))
}

// StopReason says why Run returned without error.
type StopReason string

const (
	StopTermination StopReason = "termination"
	StopMaxTurns    StopReason = "max_turns"
)

// Agent is one seat at the table. Agents carry no conversation state of their
// own, so a fresh RoundRobin per batch keeps runs independent.
type Agent struct {
	Name          string
	SystemMessage string
	Model         llm.Model
}

// FromRoster builds agents for every roster entry, all backed by m.
func FromRoster(roster config.Team, m llm.Model) []Agent {
	agents := make([]Agent, 0, len(roster.Agents))
	for _, spec := range roster.Agents {
		agents = append(agents, Agent{Name: spec.Name, SystemMessage: spec.SystemMessage, Model: m})
	}
	return agents
}

type RoundRobin struct {
	agents   []Agent
	term     Termination
	maxTurns int
}

func New(agents []Agent, term Termination, maxTurns int) (*RoundRobin, error) {
	if len(agents) == 0 {
		return nil, errors.New("team needs at least one agent")
	}
	if maxTurns < 1 {
		return nil, fmt.Errorf("max turns must be positive, got %d", maxTurns)
	}
	for _, a := range agents {
		if a.Model == nil {
			return nil, fmt.Errorf("agent %q has no model", a.Name)
		}
	}
	return &RoundRobin{agents: agents, term: term, maxTurns: maxTurns}, nil
}

// Run emits the task, then lets agents speak in order, handing every event to
// handle before the next model call. The context is checked between turns.
func (r *RoundRobin) Run(ctx context.Context, task string, handle Handler) (StopReason, error) {
	history := []Event{{Source: TaskSource, Content: task, Type: TypeText}}
	if err := handle(history[0]); err != nil {
		return "", err
	}

	for turn := 0; turn < r.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		agent := r.agents[turn%len(r.agents)]
		out, err := agent.Model.Chat(ctx, agent.SystemMessage, viewFor(agent.Name, history))
		if err != nil {
			return "", fmt.Errorf("agent %s turn %d: %w", agent.Name, turn+1, err)
		}

		ev := Event{Source: agent.Name, Content: out.Text, Type: TypeText}
		if out.HasUsage {
			prompt, completion := out.PromptTokens, out.CompletionTokens
			ev.PromptTokens = &prompt
			ev.CompletionTokens = &completion
		}
		history = append(history, ev)

		if err := handle(ev); err != nil {
			return "", err
		}
		if r.term != nil && r.term.Done(ev) {
			return StopTermination, nil
		}
	}
	return StopMaxTurns, nil
}

// viewFor renders the shared history from one agent's seat: its own messages
// are assistant turns, everyone else's are user turns prefixed with the speaker.
func viewFor(name string, history []Event) []llm.Message {
	msgs := make([]llm.Message, 0, len(history))
	for _, ev := range history {
		switch ev.Source {
		case name:
			msgs = append(msgs, llm.Message{Role: "assistant", Content: ev.Content})
		case TaskSource:
			msgs = append(msgs, llm.Message{Role: "user", Content: ev.Content})
		default:
			msgs = append(msgs, llm.Message{Role: "user", Content: ev.Source + ": " + ev.Content})
		}
	}
	return msgs
}
