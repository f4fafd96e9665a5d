// Package api serves the upload form and the HTTP endpoints for persona runs
// and persona feedback.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/cohort/internal/feedback"
	"github.com/MikeSquared-Agency/cohort/internal/persona"
	"github.com/MikeSquared-Agency/cohort/internal/pipeline"
	"github.com/MikeSquared-Agency/cohort/internal/processor"
)

// Processor is the work the API hands off.
type Processor interface {
	Run(ctx context.Context, job processor.Job) (*processor.Outcome, error)
	Feedback(ctx context.Context, p persona.Persona, marketingCopy string) (*feedback.Result, error)
	ArchivedRun(ctx context.Context, runID string) (*pipeline.Report, error)
	ArchivedPersonas(ctx context.Context, runID string) ([]persona.Persona, error)
	ArchivedPersona(ctx context.Context, runID, personaID string) (persona.Persona, error)
}

type Server struct {
	router  *chi.Mux
	port    int
	proc    Processor
	dataDir string
	logger  *slog.Logger
	http    *http.Server
}

// NewServer builds the router. Runs write under dataDir/<job id>/. An empty
// apiToken leaves the API open.
func NewServer(port int, apiToken string, proc Processor, dataDir string, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:  router,
		port:    port,
		proc:    proc,
		dataDir: dataDir,
		logger:  logger,
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	router.Get("/health", s.health)
	router.Get("/", s.form)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/runs", s.createRun)
		r.Get("/runs/{jobID}/files/{name}", s.runFile)
		r.Post("/feedback", s.createFeedback)
		r.Get("/archive/runs/{runID}", s.archivedRun)
		r.Get("/archive/runs/{runID}/personas", s.archivedPersonas)
	})

	return s
}

func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown stops accepting requests and waits for running ones to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// BearerAuthMiddleware rejects requests without the expected bearer token.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
