// Package http is the thin request layer over the session Manager.
//
// It only (de)serializes requests and maps Manager outcomes to status codes;
// every consistency guarantee lives below it.
package http

import (
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/studyhall/attempts/internal/logging"
	"github.com/studyhall/attempts/internal/observability"
	"github.com/studyhall/attempts/pkg/domain"
	"github.com/studyhall/attempts/pkg/session"
)

//go:embed openapi.yaml
var openapiSpec []byte

// Server exposes the session Manager over HTTP.
type Server struct {
	manager *session.Manager
	logger  *slog.Logger
}

// Option configures the handler.
type Option func(*handlerConfig)

type handlerConfig struct {
	logger   *slog.Logger
	metrics  *observability.Metrics
	validate bool
}

// WithLogger configures a logger for the request layer.
func WithLogger(logger *slog.Logger) Option {
	return func(c *handlerConfig) {
		c.logger = logger
	}
}

// WithMetrics mounts /metrics and records per-route request metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *handlerConfig) {
		c.metrics = metrics
	}
}

// WithSpecValidation validates incoming requests against the embedded
// OpenAPI document before they reach a handler.
func WithSpecValidation() Option {
	return func(c *handlerConfig) {
		c.validate = true
	}
}

// NewHandler creates the HTTP handler for the service.
func NewHandler(manager *session.Manager, opts ...Option) (http.Handler, error) {
	cfg := &handlerConfig{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(cfg)
	}

	server := &Server{manager: manager, logger: cfg.logger}
	r := chi.NewRouter()

	if cfg.metrics != nil {
		r.Use(metricsMiddleware(cfg.metrics))
	}
	if cfg.validate {
		validator, err := newSpecValidator(openapiSpec)
		if err != nil {
			return nil, err
		}
		r.Use(validator)
	}

	r.Post("/sessions", server.createSession)
	r.Get("/sessions/{sessionID}", server.getSession)
	r.Put("/sessions/{sessionID}/progress", server.updateProgress)
	r.Post("/sessions/{sessionID}/complete", server.completeSession)
	r.Get("/subjects/{subjectID}/sessions", server.listSubjectSessions)
	r.Get("/subjects/{subjectID}/stats", server.subjectStats)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	if cfg.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.metrics.Registry, promhttp.HandlerOpts{}))
	}

	return r, nil
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Attempts API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

type createSessionRequest struct {
	SubjectID  string `json:"subject_id"`
	ActivityID string `json:"activity_id"`
}

type updateProgressRequest struct {
	StepID   int    `json:"step_id"`
	Response string `json:"response"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.SubjectID == "" || body.ActivityID == "" {
		respondError(w, http.StatusBadRequest, "subject_id and activity_id are required")
		return
	}

	attempt, err := s.manager.Create(r.Context(), body.SubjectID, body.ActivityID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			respondError(w, http.StatusNotFound, "unknown activity")
		case errors.Is(err, domain.ErrStoreUnavailable):
			respondError(w, http.StatusServiceUnavailable, "store unavailable")
		default:
			s.logger.Error("Failed to create session", "err", err)
			respondError(w, http.StatusInternalServerError, "failed to create session")
		}
		return
	}

	respondJSON(w, http.StatusCreated, attempt)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	attempt, err := s.manager.Get(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			respondError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, domain.ErrStoreUnavailable):
			respondError(w, http.StatusServiceUnavailable, "store unavailable")
		default:
			s.logger.Error("Failed to read session", "session_id", id, "err", err)
			respondError(w, http.StatusInternalServerError, "failed to read session")
		}
		return
	}

	respondJSON(w, http.StatusOK, attempt)
}

func (s *Server) updateProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var body updateProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.StepID < 0 {
		respondError(w, http.StatusBadRequest, "step_id must not be negative")
		return
	}

	accepted, err := s.manager.UpdateProgress(r.Context(), id, body.StepID, body.Response)
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			respondError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		s.logger.Error("Failed to update session", "session_id", id, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to update session")
		return
	}
	if accepted {
		respondJSON(w, http.StatusOK, map[string]bool{"accepted": true})
		return
	}

	// accepted=false covers three outcomes; one extra read tells them apart.
	current, getErr := s.manager.Get(r.Context(), id)
	switch {
	case errors.Is(getErr, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "session not found")
	case getErr == nil && current.Status.Terminal():
		respondError(w, http.StatusConflict, "session is closed")
	default:
		respondError(w, http.StatusConflict, "update conflict - session was modified concurrently")
	}
}

func (s *Server) completeSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	done, err := s.manager.Complete(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			respondError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		s.logger.Error("Failed to complete session", "session_id", id, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to complete session")
		return
	}
	if done {
		respondJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}

	if _, getErr := s.manager.Get(r.Context(), id); errors.Is(getErr, domain.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondError(w, http.StatusConflict, "session already closed")
}

func (s *Server) listSubjectSessions(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")

	summaries, err := s.manager.ListBySubject(r.Context(), subjectID)
	if err != nil {
		s.logger.Error("Failed to list sessions", "subject_id", subjectID, "err", err)
		respondError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	if summaries == nil {
		summaries = []domain.Summary{}
	}

	respondJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

func (s *Server) subjectStats(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")

	stats, err := s.manager.Stats(r.Context(), subjectID)
	if err != nil {
		s.logger.Error("Failed to aggregate stats", "subject_id", subjectID, "err", err)
		respondError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}
