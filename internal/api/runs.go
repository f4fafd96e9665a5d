package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/cohort/internal/feedback"
	"github.com/MikeSquared-Agency/cohort/internal/output"
	"github.com/MikeSquared-Agency/cohort/internal/persona"
	"github.com/MikeSquared-Agency/cohort/internal/pipeline"
	"github.com/MikeSquared-Agency/cohort/internal/processor"
)

const (
	maxUploadBytes = 256 << 20
	maxMemoryBytes = 32 << 20
)

// RunResponse is returned by POST /api/v1/runs.
type RunResponse struct {
	JobID    string            `json:"job_id"`
	RunID    string            `json:"run_id"`
	Personas int               `json:"personas"`
	Report   *pipeline.Report  `json:"report"`
	Files    map[string]string `json:"files"`
	Error    string            `json:"error,omitempty"`
}

// FeedbackRequest is the JSON form of POST /api/v1/feedback. The persona is
// given inline, or picked from an archived run by RunID and PersonaID.
type FeedbackRequest struct {
	Persona   *persona.Persona `json:"persona,omitempty"`
	RunID     string           `json:"run_id,omitempty"`
	PersonaID string           `json:"persona_id,omitempty"`
	Copy      string           `json:"copy"`
}

// FeedbackResponse carries the conversation and its plain-text rendering.
type FeedbackResponse struct {
	*feedback.Result
	Text string `json:"text"`
}

// createRun handles POST /api/v1/runs. The multipart form carries an
// optional "dataset" CSV and any number of "documents".
func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	jobID := uuid.NewString()
	jobDir := filepath.Join(s.dataDir, jobID)
	job := processor.Job{OutputDir: jobDir}

	if fhs := r.MultipartForm.File["dataset"]; len(fhs) > 0 {
		path, err := saveUpload(filepath.Join(jobDir, "inputs"), fhs[0])
		if err != nil {
			s.failJob(w, jobDir, http.StatusInternalServerError, err)
			return
		}
		job.DatasetPath = path
	}
	for i, fh := range r.MultipartForm.File["documents"] {
		path, err := saveUpload(filepath.Join(jobDir, "inputs", "docs", strconv.Itoa(i)), fh)
		if err != nil {
			s.failJob(w, jobDir, http.StatusInternalServerError, err)
			return
		}
		job.DocumentPaths = append(job.DocumentPaths, path)
	}

	out, err := s.proc.Run(r.Context(), job)
	if out == nil {
		s.failJob(w, jobDir, http.StatusUnprocessableEntity, err)
		return
	}

	resp := RunResponse{
		JobID:    jobID,
		RunID:    out.Result.RunID,
		Personas: len(out.Result.Personas),
		Report:   out.Result.Report,
		Files:    map[string]string{},
	}
	for key, path := range map[string]string{
		"transcript": out.Files.Transcript,
		"personas":   out.Files.Personas,
		"report":     out.Report,
		"stream":     out.Stream,
	} {
		if path != "" && filepath.Dir(path) == jobDir {
			resp.Files[key] = fmt.Sprintf("/api/v1/runs/%s/files/%s", jobID, filepath.Base(path))
		}
	}

	status := http.StatusCreated
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrAllBatchesFailed) {
			status = http.StatusBadGateway
		}
		s.logger.Warn("run finished with error", "job_id", jobID, "run_id", resp.RunID, "error", err)
	}
	writeJSON(w, status, resp)
}

func (s *Server) failJob(w http.ResponseWriter, jobDir string, status int, err error) {
	os.RemoveAll(jobDir)
	if errors.Is(err, processor.ErrNoInput) {
		status = http.StatusBadRequest
	}
	writeError(w, status, err.Error())
}

func saveUpload(dir string, fh *multipart.FileHeader) (string, error) {
	name := filepath.Base(fh.Filename)
	if name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, "..") {
		name = "upload"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload %s: %w", name, err)
	}
	defer src.Close()

	path := filepath.Join(dir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("save upload %s: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("save upload %s: %w", name, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("save upload %s: %w", name, err)
	}
	return path, nil
}

// runFile handles GET /api/v1/runs/{jobID}/files/{name}.
func (s *Server) runFile(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, err := uuid.Parse(jobID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	name := chi.URLParam(r, "name")
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	path := filepath.Join(s.dataDir, jobID, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeFile(w, r, path)
}

// createFeedback handles POST /api/v1/feedback, either as JSON or as a
// multipart form with a "persona" JSON file and a "copy" field.
func (s *Server) createFeedback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMemoryBytes)

	var req FeedbackRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid form: %v", err))
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, _, err := r.FormFile("persona")
		if err != nil {
			writeError(w, http.StatusBadRequest, "persona file is required")
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("read persona: %v", err))
			return
		}
		p, err := output.DecodePersona(data)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Persona = &p
		req.Copy = r.FormValue("copy")
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	if req.Persona == nil {
		if req.RunID == "" {
			writeError(w, http.StatusBadRequest, "persona or run_id is required")
			return
		}
		p, err := s.proc.ArchivedPersona(r.Context(), req.RunID, req.PersonaID)
		if err != nil {
			writeArchiveError(w, err)
			return
		}
		req.Persona = &p
	}

	res, err := s.proc.Feedback(r.Context(), *req.Persona, req.Copy)
	if errors.Is(err, feedback.ErrEmptyCopy) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Warn("feedback failed", "persona_id", req.Persona.PersonaID, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, FeedbackResponse{Result: res, Text: res.Text()})
}
