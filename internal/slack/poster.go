// Package slack posts run summaries to a Slack channel.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/cohort/internal/pipeline"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// maxListedFailures caps how many failed batches a summary spells out.
const maxListedFailures = 10

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostRunSummary posts the run summary and returns the message timestamp.
func (p *Poster) PostRunSummary(ctx context.Context, rep *pipeline.Report) (string, error) {
	text := FormatRunSummary(rep)

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": text},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{"type": "mrkdwn", "text": "run `" + rep.RunID + "`"},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	p.logger.Info("posted run summary to slack", "ts", ts, "run_id", rep.RunID)
	return ts, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

// FormatRunSummary renders a report as Slack mrkdwn.
func FormatRunSummary(rep *pipeline.Report) string {
	var sb strings.Builder

	status := "completed"
	switch {
	case rep.Chunks > 0 && rep.ChunksFailed == rep.Chunks:
		status = "failed"
	case rep.ChunksFailed > 0:
		status = "completed with failures"
	}
	fmt.Fprintf(&sb, "*Persona run %s* (%s, %s validity)\n", status, rep.Duration().Round(time.Second), rep.Validity)
	fmt.Fprintf(&sb, "*Batches:* %d (%d failed)\n", rep.Chunks, rep.ChunksFailed)
	fmt.Fprintf(&sb, "*Personas:* %d accepted, %d rejected\n", rep.Accepted, rep.Rejected)
	if rep.ParseFailures > 0 || rep.Unrecognized > 0 {
		fmt.Fprintf(&sb, "*Malformed blocks:* %d unparsable, %d unrecognized\n", rep.ParseFailures, rep.Unrecognized)
	}
	if rep.Repaired > 0 || rep.Coerced > 0 {
		fmt.Fprintf(&sb, "*Repaired:* %d blank, %d coerced\n", rep.Repaired, rep.Coerced)
	}

	if len(rep.Failures) > 0 {
		sb.WriteString("_Failed batches are listed in the thread._\n")
	}

	if rep.Chunks == 0 {
		sb.WriteString("_No records or documents to process._")
	}
	return sb.String()
}

// FormatFailures lists a run's failed batches as Slack mrkdwn, capped at
// maxListedFailures entries. It is empty for a run without failures.
func FormatFailures(rep *pipeline.Report) string {
	if len(rep.Failures) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("*Failed batches*\n")
	for i, f := range rep.Failures {
		if i == maxListedFailures {
			fmt.Fprintf(&sb, "  _...and %d more_\n", len(rep.Failures)-i)
			break
		}
		fmt.Fprintf(&sb, "  - records %d-%d: %s\n", f.BatchStart, f.BatchEnd, f.Error)
	}
	return sb.String()
}

// Notifier posts the summary when a run completes, with failed batches as a
// thread reply. Without a poster, or when posting fails, both are logged.
type Notifier struct {
	poster *Poster
	logger *slog.Logger
}

func NewNotifier(poster *Poster, logger *slog.Logger) *Notifier {
	return &Notifier{poster: poster, logger: logger}
}

func (n *Notifier) BatchFailed(ctx context.Context, runID string, f pipeline.BatchFailure) {}

func (n *Notifier) RunCompleted(ctx context.Context, rep *pipeline.Report) {
	if n.poster == nil {
		n.logger.Info("run summary (no Slack configured)",
			"summary", FormatRunSummary(rep),
			"failures", FormatFailures(rep),
		)
		return
	}
	ctx = context.WithoutCancel(ctx)
	ts, err := n.poster.PostRunSummary(ctx, rep)
	if err != nil {
		n.logger.Warn("failed to post run summary to Slack, logging instead",
			"error", err,
			"summary", FormatRunSummary(rep),
			"failures", FormatFailures(rep),
		)
		return
	}
	if failures := FormatFailures(rep); failures != "" {
		if err := n.poster.PostThread(ctx, ts, failures); err != nil {
			n.logger.Warn("failed to post batch failures to Slack", "run_id", rep.RunID, "error", err, "failures", failures)
		}
	}
}
