// SPDX-License-Identifier: MIT

// Package api exposes the daemon's HTTP surface: REST control
// endpoints for overlays and control panels, websocket push channels,
// health and metrics.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/scorecast/scorecast/internal/broadcast"
	"github.com/scorecast/scorecast/internal/library"
	"github.com/scorecast/scorecast/internal/log"
	"github.com/scorecast/scorecast/internal/recording"
	"github.com/scorecast/scorecast/internal/scoreboard"
	"github.com/scorecast/scorecast/internal/settings"
	"github.com/scorecast/scorecast/internal/videogen"
)

// Deps bundles the services the HTTP surface fronts.
type Deps struct {
	Board     *scoreboard.Store
	Hub       *broadcast.Hub
	Recorder  *recording.Recorder
	Generator *videogen.Generator
	Settings  *settings.Store
	Catalog   *library.Store
	Indexer   *library.Indexer
}

// Server wires handlers to the services.
type Server struct {
	deps     Deps
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	status   *statusFanout
}

// New builds a Server. Call RecordingStatusChanged from the recorder's
// observer to feed the recording websocket.
func New(deps Deps) *Server {
	return &Server{
		deps:   deps,
		logger: log.WithComponent("api"),
		upgrader: websocket.Upgrader{
			// Overlays load from OBS browser sources and file:// pages.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		status: newStatusFanout(),
	}
}

// RecordingStatusChanged pushes a recorder status to websocket
// subscribers. Safe for concurrent use.
func (s *Server) RecordingStatusChanged(st recording.Status) {
	s.status.publish(st)
}

// Router assembles the chi router with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(logContext)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/scoreboard", s.handleGetScoreboard)
		r.Get("/recording/status", s.handleRecordingStatus)
		r.Get("/recordings", s.handleListRecordings)
		r.Get("/settings/output-dir", s.handleGetOutputDir)

		// Mutations share a per-IP budget so a misbehaving control
		// panel cannot starve the daemon.
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(30, time.Second))
			r.Post("/scoreboard", s.handleUpdateScoreboard)
			r.Post("/scoreboard/reset", s.handleResetScoreboard)
			r.Post("/recording/start", s.handleStartRecording)
			r.Post("/recording/stop", s.handleStopRecording)
			r.Put("/settings/output-dir", s.handleSetOutputDir)
			r.Post("/video/generate", s.handleGenerateVideo)
			r.Post("/video/cancel", s.handleCancelVideo)
		})
	})

	r.Get("/ws/scoreboard", s.handleScoreboardWS)
	r.Get("/ws/recording", s.handleRecordingWS)
	r.Get("/ws/video", s.handleVideoWS)

	return r
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// logContext copies chi's request ID into the log correlation context,
// so anything logging through the request context downstream (the
// recorder's file writes, for one) carries request_id.
func logContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(log.ContextWithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
