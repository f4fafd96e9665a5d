package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/cohort/internal/processor"
	"github.com/MikeSquared-Agency/cohort/internal/store"
)

// archivedRun handles GET /api/v1/archive/runs/{runID}.
func (s *Server) archivedRun(w http.ResponseWriter, r *http.Request) {
	rep, err := s.proc.ArchivedRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeArchiveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// archivedPersonas handles GET /api/v1/archive/runs/{runID}/personas.
func (s *Server) archivedPersonas(w http.ResponseWriter, r *http.Request) {
	ps, err := s.proc.ArchivedPersonas(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeArchiveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"personas": ps})
}

func writeArchiveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, processor.ErrNoArchive):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, store.ErrRunNotFound), errors.Is(err, processor.ErrPersonaNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
