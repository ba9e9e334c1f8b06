// Package api serves the operational HTTP surface: health, metrics, and job
// status lookups. It never mutates pipeline state.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/farmassist/harvester/internal/catalog"
	"github.com/farmassist/harvester/internal/metrics"
)

// Server is the read-only status server.
type Server struct {
	jobs   catalog.JobStore
	logger *zap.Logger
}

// NewServer creates a Server over the job store.
func NewServer(jobs catalog.JobStore, logger *zap.Logger) *Server {
	return &Server{jobs: jobs, logger: logger}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/jobs/latest", s.handleLatestJob)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleLatestJob returns the most recent job of the requested type. The
// type defaults to the full pipeline run.
func (s *Server) handleLatestJob(w http.ResponseWriter, r *http.Request) {
	jobType := catalog.JobType(r.URL.Query().Get("type"))
	if jobType == "" {
		jobType = catalog.JobTypePipeline
	}

	job, err := s.jobs.LatestJob(r.Context(), jobType)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such job"})
			return
		}
		s.logger.Error("Job lookup failed", zap.String("type", string(jobType)), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "job lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
