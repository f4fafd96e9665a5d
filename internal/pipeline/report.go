package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ReportFile is the name the run report is saved under.
const ReportFile = "run_report.json"

// Report summarises one run for operators.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Validity   string    `json:"validity"`

	Chunks        int `json:"chunks"`
	ChunksFailed  int `json:"chunks_failed"`
	Messages      int `json:"messages"`
	Accepted      int `json:"personas_accepted"`
	Rejected      int `json:"personas_rejected"`
	ParseFailures int `json:"parse_failures"`
	Unrecognized  int `json:"unrecognized_blocks"`
	Coerced       int `json:"coerced"`
	Repaired      int `json:"repaired"`
	ExtraKeys     int `json:"extra_keys"`
	DroppedKeys   int `json:"dropped_keys"`
	SinkErrors    int `json:"sink_errors"`

	Failures []FailureReport   `json:"failures"`
	Outputs  map[string]string `json:"outputs,omitempty"`
}

// FailureReport is the serialisable form of a BatchFailure.
type FailureReport struct {
	BatchStart int    `json:"batch_start"`
	BatchEnd   int    `json:"batch_end"`
	Error      string `json:"error"`
}

// Duration is how long the run took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Save writes the report into dir and returns the file path.
func (r *Report) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	path := filepath.Join(dir, ReportFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
