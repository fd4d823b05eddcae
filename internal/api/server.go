// Package api exposes the HTTP interface for the llms.txt service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/indexfox/llmstxt/internal/config"
	"github.com/indexfox/llmstxt/internal/controller"
	"github.com/indexfox/llmstxt/internal/llmstxt"
	"github.com/indexfox/llmstxt/internal/metrics"
)

// Server wires HTTP handlers to the controller and file store.
type Server struct {
	router chi.Router
	ctl    *controller.Controller
	files  llmstxt.FileStore
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	ctl *controller.Controller,
	files llmstxt.FileStore,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ctl:    ctl,
		files:  files,
		cfg:    cfg,
		logger: logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.startJob)
			r.Get("/", s.listJobs)
			r.Post("/fix-incomplete", s.fixIncomplete)
			r.Get("/stuck", s.stuckJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Post("/process", s.processJob)
				r.Post("/retry", s.retryJob)
				r.Post("/complete", s.completeJob)
				r.Post("/cancel", s.cancelJob)
				r.Get("/files", s.listFiles)
				r.Get("/files/*", s.downloadFile)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startJobRequest struct {
	Domain   string `json:"domain"`
	MaxPages int    `json:"max_pages"`
	UserID   string `json:"user_id"`
}

func (s *Server) startJob(w http.ResponseWriter, r *http.Request) {
	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Domain == "" {
		s.writeError(w, http.StatusBadRequest, "domain is required")
		return
	}

	job, err := s.ctl.Start(r.Context(), req.UserID, req.Domain, req.MaxPages)
	switch {
	case errors.Is(err, controller.ErrDuplicateJob):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, controller.ErrMappingFailed):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
		"job":    job,
	})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	jobs, err := s.ctl.ListJobs(r.Context(), userID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.ctl.GetJob(r.Context(), chi.URLParam(r, "job_id"))
	if errors.Is(err, llmstxt.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) processJob(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.ctl.Process(r.Context(), chi.URLParam(r, "job_id"))
	if errors.Is(err, llmstxt.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) retryJob(w http.ResponseWriter, r *http.Request) {
	s.recoveryAction(w, r, s.ctl.Retry)
}

func (s *Server) completeJob(w http.ResponseWriter, r *http.Request) {
	s.recoveryAction(w, r, s.ctl.ForceComplete)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	s.recoveryAction(w, r, s.ctl.Cancel)
}

func (s *Server) recoveryAction(
	w http.ResponseWriter,
	r *http.Request,
	action func(ctx context.Context, jobID string) (llmstxt.Job, error),
) {
	job, err := action(r.Context(), chi.URLParam(r, "job_id"))
	if errors.Is(err, llmstxt.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

type fixIncompleteRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) fixIncomplete(w http.ResponseWriter, r *http.Request) {
	var req fixIncompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	flipped, err := s.ctl.FixIncomplete(r.Context(), req.UserID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"fixed": len(flipped),
		"jobs":  flipped,
	})
}

func (s *Server) stuckJobs(w http.ResponseWriter, r *http.Request) {
	var threshold time.Duration
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid threshold")
			return
		}
		threshold = parsed
	}
	jobs, err := s.ctl.Stuck(r.Context(), threshold)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"stuck": jobs})
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	files, err := s.files.ListFiles(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Listings omit content; clients download individual files.
	summaries := make([]map[string]any, 0, len(files))
	for _, f := range files {
		summaries = append(summaries, map[string]any{
			"file_path":      f.FilePath,
			"file_type":      f.FileType,
			"size":           f.Size,
			"content_hash":   f.ContentHash,
			"created_at":     f.CreatedAt,
			"download_count": f.DownloadCount,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"files": summaries})
}

func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	filePath := chi.URLParam(r, "*")

	file, err := s.files.GetFile(r.Context(), jobID, filePath)
	if errors.Is(err, llmstxt.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.files.IncrementDownloadCount(r.Context(), jobID, filePath); err != nil {
		s.logger.Warn("download count increment failed",
			zap.String("job_id", jobID), zap.String("file", filePath), zap.Error(err))
	}
	metrics.ObserveDownload(string(file.FileType))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(file.Content)); err != nil {
		s.logger.Error("file write failed", zap.Error(err))
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unknown"
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
