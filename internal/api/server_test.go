package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/cohort/internal/feedback"
	"github.com/MikeSquared-Agency/cohort/internal/output"
	"github.com/MikeSquared-Agency/cohort/internal/persona"
	"github.com/MikeSquared-Agency/cohort/internal/pipeline"
	"github.com/MikeSquared-Agency/cohort/internal/processor"
	"github.com/MikeSquared-Agency/cohort/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProcessor writes a transcript into the job directory and records what
// it was asked to do.
type fakeProcessor struct {
	job      processor.Job
	runErr   error
	noResult bool

	persona persona.Persona
	copy    string
	fbErr   error

	archive   map[string][]persona.Persona
	noArchive bool
}

func (f *fakeProcessor) Run(ctx context.Context, job processor.Job) (*processor.Outcome, error) {
	f.job = job
	if f.noResult {
		return nil, f.runErr
	}
	transcript := filepath.Join(job.OutputDir, output.TranscriptFile)
	if err := os.WriteFile(transcript, []byte("batch_start\n"), 0o644); err != nil {
		return nil, err
	}
	res := &pipeline.Result{
		RunID:    "run-1",
		Personas: []persona.Persona{{PersonaID: "1"}},
		Report:   &pipeline.Report{RunID: "run-1", Accepted: 1},
	}
	return &processor.Outcome{
		Result: res,
		Files:  output.Files{Transcript: transcript, Personas: filepath.Join(job.OutputDir, "personas.zip")},
	}, f.runErr
}

func (f *fakeProcessor) Feedback(ctx context.Context, p persona.Persona, marketingCopy string) (*feedback.Result, error) {
	f.persona, f.copy = p, marketingCopy
	if f.fbErr != nil {
		return nil, f.fbErr
	}
	if strings.TrimSpace(marketingCopy) == "" {
		return nil, feedback.ErrEmptyCopy
	}
	return &feedback.Result{
		PersonaID: p.PersonaID,
		Messages:  []feedback.Message{{Source: feedback.AgentName, Content: "7 分"}},
	}, nil
}

func (f *fakeProcessor) ArchivedRun(ctx context.Context, runID string) (*pipeline.Report, error) {
	if f.noArchive {
		return nil, processor.ErrNoArchive
	}
	ps, ok := f.archive[runID]
	if !ok {
		return nil, store.ErrRunNotFound
	}
	return &pipeline.Report{RunID: runID, Accepted: len(ps)}, nil
}

func (f *fakeProcessor) ArchivedPersonas(ctx context.Context, runID string) ([]persona.Persona, error) {
	if _, err := f.ArchivedRun(ctx, runID); err != nil {
		return nil, err
	}
	return f.archive[runID], nil
}

func (f *fakeProcessor) ArchivedPersona(ctx context.Context, runID, personaID string) (persona.Persona, error) {
	ps, err := f.ArchivedPersonas(ctx, runID)
	if err != nil {
		return persona.Persona{}, err
	}
	for _, p := range ps {
		if personaID == "" || p.PersonaID == personaID {
			return p, nil
		}
	}
	return persona.Persona{}, processor.ErrPersonaNotFound
}

func newTestServer(t *testing.T, token string, proc *fakeProcessor) *Server {
	t.Helper()
	return NewServer(8760, token, proc, t.TempDir(), discardLogger())
}

type upload struct {
	field, name, content string
}

func multipartBody(t *testing.T, files []upload, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(f.content))
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, "", &fakeProcessor{})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestFormPage(t *testing.T) {
	srv := newTestServer(t, "secret", &fakeProcessor{})

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `name="documents"`) {
		t.Error("form should offer multiple document uploads")
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := newTestServer(t, "", &fakeProcessor{})

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	srv := newTestServer(t, "secret", &fakeProcessor{})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"ok", "Bearer secret", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/feedback", strings.NewReader(`{"copy": ""}`))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			srv.router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestCreateRun(t *testing.T) {
	proc := &fakeProcessor{}
	srv := newTestServer(t, "", proc)

	body, ct := multipartBody(t, []upload{
		{"dataset", "survey.csv", "q\na\n"},
		{"documents", "訪談.md", "一"},
		{"documents", "訪談.md", "二"},
	}, nil)
	req := httptest.NewRequest("POST", "/api/v1/runs", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp RunResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.RunID != "run-1" || resp.Personas != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}

	if filepath.Base(proc.job.DatasetPath) != "survey.csv" {
		t.Errorf("dataset not saved: %q", proc.job.DatasetPath)
	}
	if len(proc.job.DocumentPaths) != 2 || proc.job.DocumentPaths[0] == proc.job.DocumentPaths[1] {
		t.Fatalf("same-named documents should both be kept: %v", proc.job.DocumentPaths)
	}
	data, _ := os.ReadFile(proc.job.DocumentPaths[1])
	if string(data) != "二" {
		t.Errorf("second document overwritten: %q", data)
	}

	link := resp.Files["transcript"]
	if link != "/api/v1/runs/"+resp.JobID+"/files/"+output.TranscriptFile {
		t.Fatalf("unexpected transcript link %q", link)
	}

	req = httptest.NewRequest("GET", link, nil)
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "batch_start\n" {
		t.Errorf("download failed: %d %q", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "attachment") {
		t.Errorf("expected attachment disposition, got %q", w.Header().Get("Content-Disposition"))
	}
}

func TestCreateRun_PartialFailure(t *testing.T) {
	proc := &fakeProcessor{runErr: pipeline.ErrAllBatchesFailed}
	srv := newTestServer(t, "", proc)

	body, ct := multipartBody(t, []upload{{"dataset", "survey.csv", "q\na\n"}}, nil)
	req := httptest.NewRequest("POST", "/api/v1/runs", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	var resp RunResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Error == "" || resp.Files["transcript"] == "" {
		t.Errorf("failed run should still link its outputs: %+v", resp)
	}
}

func TestCreateRun_NoInput(t *testing.T) {
	proc := &fakeProcessor{noResult: true, runErr: processor.ErrNoInput}
	srv := newTestServer(t, "", proc)

	body, ct := multipartBody(t, nil, map[string]string{"note": "empty"})
	req := httptest.NewRequest("POST", "/api/v1/runs", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if _, err := os.Stat(proc.job.OutputDir); !os.IsNotExist(err) {
		t.Errorf("job dir should be removed, stat err = %v", err)
	}
}

func TestCreateRun_NotMultipart(t *testing.T) {
	srv := newTestServer(t, "", &fakeProcessor{})

	req := httptest.NewRequest("POST", "/api/v1/runs", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestRunFile_Validation(t *testing.T) {
	srv := newTestServer(t, "", &fakeProcessor{})

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/runs/not-a-uuid/files/x.csv", http.StatusBadRequest},
		{"/api/v1/runs/6f1c1f43-8a5e-4f0e-9d2a-1b9d3c0e4a11/files/.hidden", http.StatusBadRequest},
		{"/api/v1/runs/6f1c1f43-8a5e-4f0e-9d2a-1b9d3c0e4a11/files/missing.csv", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", tt.path, nil)
		w := httptest.NewRecorder()
		srv.router.ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.want, w.Code)
		}
	}
}

func TestCreateFeedback_JSON(t *testing.T) {
	proc := &fakeProcessor{}
	srv := newTestServer(t, "", proc)

	req := httptest.NewRequest("POST", "/api/v1/feedback",
		strings.NewReader(`{"persona": {"persona_id": "2", "description": "退休教師"}, "copy": "終身學習"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		PersonaID string `json:"persona_id"`
		Text      string `json:"text"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.PersonaID != "2" || !strings.Contains(resp.Text, "feedback: 7 分") {
		t.Errorf("unexpected response: %+v", resp)
	}
	if proc.persona.Description != "退休教師" || proc.copy != "終身學習" {
		t.Errorf("processor got %+v / %q", proc.persona, proc.copy)
	}
}

func TestCreateFeedback_Multipart(t *testing.T) {
	proc := &fakeProcessor{}
	srv := newTestServer(t, "", proc)

	body, ct := multipartBody(t,
		[]upload{{"persona", "PERSONA-3.json", `{"persona_id": "3", "description": "大學生"}`}},
		map[string]string{"copy": "暑期特訓班"},
	)
	req := httptest.NewRequest("POST", "/api/v1/feedback", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if proc.persona.PersonaID != "3" || proc.copy != "暑期特訓班" {
		t.Errorf("processor got %+v / %q", proc.persona, proc.copy)
	}
}

func TestCreateFeedback_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"empty copy", `{"persona": {}, "copy": " "}`, nil, http.StatusBadRequest},
		{"model failure", `{"persona": {}, "copy": "x"}`, errors.New("api error 503"), http.StatusBadGateway},
		{"no persona", `{"copy": "x"}`, nil, http.StatusBadRequest},
		{"unknown run", `{"run_id": "run-9", "copy": "x"}`, nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, "", &fakeProcessor{fbErr: tt.err})
			req := httptest.NewRequest("POST", "/api/v1/feedback", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			srv.router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestCreateFeedback_FromArchivedRun(t *testing.T) {
	proc := &fakeProcessor{archive: map[string][]persona.Persona{
		"run-1": {{PersonaID: "1", Description: "上班族"}, {PersonaID: "2", Description: "研究生"}},
	}}
	srv := newTestServer(t, "", proc)

	req := httptest.NewRequest("POST", "/api/v1/feedback",
		strings.NewReader(`{"run_id": "run-1", "persona_id": "2", "copy": "夜間班"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if proc.persona.Description != "研究生" {
		t.Errorf("processor got %+v", proc.persona)
	}
}

func TestArchiveEndpoints(t *testing.T) {
	proc := &fakeProcessor{archive: map[string][]persona.Persona{
		"run-1": {{PersonaID: "1", Description: "上班族"}},
	}}
	srv := newTestServer(t, "", proc)

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/archive/runs/run-1", http.StatusOK},
		{"/api/v1/archive/runs/run-1/personas", http.StatusOK},
		{"/api/v1/archive/runs/run-9", http.StatusNotFound},
		{"/api/v1/archive/runs/run-9/personas", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		srv.router.ServeHTTP(w, httptest.NewRequest("GET", tt.path, nil))
		if w.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.want, w.Code)
		}
	}

	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/archive/runs/run-1/personas", nil))
	var body struct {
		Personas []persona.Persona `json:"personas"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Personas) != 1 || body.Personas[0].Description != "上班族" {
		t.Errorf("unexpected personas: %+v", body.Personas)
	}

	bare := newTestServer(t, "", &fakeProcessor{noArchive: true})
	w = httptest.NewRecorder()
	bare.router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/archive/runs/run-1", nil))
	if w.Code != http.StatusNotImplemented {
		t.Errorf("expected 501 without an archive, got %d", w.Code)
	}
}
