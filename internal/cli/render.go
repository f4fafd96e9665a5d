package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"

	"github.com/MikeSquared-Agency/cohort/internal/feedback"
	"github.com/MikeSquared-Agency/cohort/internal/processor"
)

const terminalWidth = 80

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81")).Width(12)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	sourceStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("147"))
	summaryStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func renderRunSummary(out *processor.Outcome) string {
	rep := out.Result.Report
	rows := []string{
		titleStyle.Render("Run " + rep.RunID),
		row("duration", rep.Duration().Round(time.Second).String()),
		row("batches", fmt.Sprintf("%d (%d failed)", rep.Chunks, rep.ChunksFailed)),
		row("messages", fmt.Sprint(rep.Messages)),
		row("personas", fmt.Sprintf("%d accepted, %d rejected (%s)", rep.Accepted, rep.Rejected, rep.Validity)),
	}
	if rep.ParseFailures > 0 || rep.Unrecognized > 0 {
		rows = append(rows, row("malformed", fmt.Sprintf("%d unparsable, %d unrecognized", rep.ParseFailures, rep.Unrecognized)))
	}
	if rep.Repaired > 0 || rep.Coerced > 0 {
		rows = append(rows, row("repaired", fmt.Sprintf("%d blank, %d coerced", rep.Repaired, rep.Coerced)))
	}
	if rep.ExtraKeys > 0 || rep.DroppedKeys > 0 {
		rows = append(rows, row("extra keys", fmt.Sprintf("%d kept, %d dropped", rep.ExtraKeys, rep.DroppedKeys)))
	}
	if rep.SinkErrors > 0 {
		rows = append(rows, warnStyle.Render(fmt.Sprintf("%d persona writes to sinks failed", rep.SinkErrors)))
	}
	for _, f := range rep.Failures {
		line := fmt.Sprintf("batch %d-%d failed: %s", f.BatchStart, f.BatchEnd, f.Error)
		rows = append(rows, warnStyle.Render(wordwrap.String(line, terminalWidth-4)))
	}

	if len(rep.Outputs) > 0 {
		keys := make([]string, 0, len(rep.Outputs))
		for k := range rep.Outputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rows = append(rows, "")
		for _, k := range keys {
			rows = append(rows, row(k, rep.Outputs[k]))
		}
	}
	if out.Report != "" {
		rows = append(rows, row("report", out.Report))
	}
	return summaryStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func renderFeedback(res *feedback.Result, width int) string {
	var b strings.Builder
	for _, m := range res.Messages {
		b.WriteString(sourceStyle.Render("source: " + m.Source))
		b.WriteString("\n")
		b.WriteString(indent.String(wordwrap.String(strings.TrimSpace(m.Content), width-2), 2))
		b.WriteString("\n\n")
	}
	return b.String()
}
