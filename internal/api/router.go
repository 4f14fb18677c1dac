package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// defaultStreamPath is used when websocket.path is empty.
const defaultStreamPath = "/ws"

// healthCheckTimeout bounds the dependency checks behind GET /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(s.accessLog)
	r.Use(s.recoverPanics)
	r.Use(s.cors)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	streamPath := s.deps.WS.Path
	if streamPath == "" {
		streamPath = defaultStreamPath
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/stats", s.handleStats)

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", s.handleListMessages)
			r.Delete("/", s.handleClearMessages)
			r.Get("/archive", s.handleArchivedMessages)
		})

		r.Post("/journal/save", s.handleSaveJournal)
		r.Post("/publish", s.handlePublish)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", s.handleListSubscriptions)
			r.Post("/", s.handleSubscribe)
			r.Delete("/", s.handleUnsubscribe)
		})

		r.Get(streamPath, s.handleStream)
	})

	return r
}

// handleHealth reports liveness plus the broker connection. It always
// answers 200; "status" is "degraded" while the session is disconnected or
// the archive database fails its check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	checks := map[string]string{"mqtt": s.deps.Session.State().String()}
	if err := s.deps.Session.HealthCheck(ctx); err != nil {
		status = "degraded"
	}
	if s.deps.Archive != nil {
		checks["archive"] = "ok"
		if err := s.deps.Archive.HealthCheck(ctx); err != nil {
			checks["archive"] = err.Error()
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.deps.Version,
		"checks":  checks,
	})
}
