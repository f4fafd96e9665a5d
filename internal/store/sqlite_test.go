package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/cohort/internal/persona"
	"github.com/MikeSquared-Agency/cohort/internal/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestSQLite(t *testing.T) Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite:"+filepath.Join(t.TempDir(), "db", "cohort.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestOpen_UnsupportedURL(t *testing.T) {
	if _, err := Open(context.Background(), "mysql://localhost/x"); !errors.Is(err, ErrUnsupportedURL) {
		t.Errorf("expected ErrUnsupportedURL, got %v", err)
	}
}

func TestSQLite_PersonasInBatchOrder(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	// Later batch lands first, as it can when batches run concurrently.
	in := []persona.Persona{
		{PersonaID: "1", Description: "第二批", BatchStart: 10, BatchEnd: 19, SuggestedLearningResources: []persona.Resource{}},
		{PersonaID: "1", Description: "第一批 A", BatchStart: 0, BatchEnd: 9, SuggestedLearningResources: []persona.Resource{}},
		{PersonaID: "2", Description: "第一批 B", BatchStart: 0, BatchEnd: 9, SourceAgent: "report_generator", SuggestedLearningResources: []persona.Resource{{FeatureName: "讀書會"}},
			Extra: map[string]json.RawMessage{"name": json.RawMessage(`"小美"`)}},
	}
	for _, p := range in {
		if err := s.Append(ctx, "run-1", p); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := s.Append(ctx, "run-2", persona.Persona{PersonaID: "9"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.RunPersonas(ctx, "run-1")
	if err != nil {
		t.Fatalf("RunPersonas: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 personas, got %d", len(got))
	}
	want := []string{"第一批 A", "第一批 B", "第二批"}
	for i, p := range got {
		if p.Description != want[i] {
			t.Errorf("persona %d = %q, want %q", i, p.Description, want[i])
		}
	}
	if got[1].SourceAgent != "report_generator" || got[1].SuggestedLearningResources[0].FeatureName != "讀書會" {
		t.Errorf("persona body not preserved: %+v", got[1])
	}
	if string(got[1].Extra["name"]) != `"小美"` {
		t.Errorf("extra keys not preserved: %v", got[1].Extra)
	}
}

func TestSQLite_ConcurrentAppends(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Append(ctx, "run", persona.Persona{PersonaID: "1", BatchStart: i}); err != nil {
				t.Errorf("append: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.RunPersonas(ctx, "run")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 16 {
		t.Errorf("expected 16 personas, got %d", len(got))
	}
}

func TestSQLite_SaveRunUpserts(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	rep := &pipeline.Report{RunID: "run-1", StartedAt: started, FinishedAt: started.Add(time.Minute), Validity: "strict", Chunks: 3, Accepted: 4}
	if err := s.SaveRun(ctx, rep); err != nil {
		t.Fatalf("save: %v", err)
	}
	rep.ChunksFailed = 1
	rep.Failures = []pipeline.FailureReport{{BatchStart: 2, BatchEnd: 3, Error: "boom"}}
	if err := s.SaveRun(ctx, rep); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ChunksFailed != 1 || len(got.Failures) != 1 || !got.StartedAt.Equal(started) {
		t.Errorf("unexpected report: %+v", got)
	}

	if _, err := s.GetRun(ctx, "missing"); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestSQLite_GetRunNotFound(t *testing.T) {
	s := openTestSQLite(t)
	if _, err := s.GetRun(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestSQLite_SaveFeedback(t *testing.T) {
	s := openTestSQLite(t)
	a, err := s.SaveFeedback(context.Background(), Feedback{PersonaID: "1", Copy: "限時優惠", Source: "persona_assistant", Response: "7/10"})
	if err != nil {
		t.Fatalf("save feedback: %v", err)
	}
	b, err := s.SaveFeedback(context.Background(), Feedback{PersonaID: "2", Copy: "x", Source: "persona_assistant", Response: "3/10"})
	if err != nil {
		t.Fatal(err)
	}
	if a == "" || a == b {
		t.Errorf("feedback ids should be unique, got %q and %q", a, b)
	}
}

func TestObserver_SavesRun(t *testing.T) {
	s := openTestSQLite(t)
	obs := NewObserver(s, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	obs.BatchFailed(ctx, "run-9", pipeline.BatchFailure{Start: 0, End: 1, Err: errors.New("x")})
	obs.RunCompleted(ctx, &pipeline.Report{RunID: "run-9", Validity: "lenient"})

	got, err := s.GetRun(context.Background(), "run-9")
	if err != nil {
		t.Fatalf("run should be archived even after cancellation: %v", err)
	}
	if got.Validity != "lenient" {
		t.Errorf("unexpected report: %+v", got)
	}
}
