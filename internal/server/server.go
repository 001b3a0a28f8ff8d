// Package server provides the HTTP API for the printwatch monitoring system.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/circuitbreakers/printwatch/internal/history"
	"github.com/circuitbreakers/printwatch/internal/monitor"
	"github.com/circuitbreakers/printwatch/internal/server/api"
)

// MonitorController is the scheduler surface the API drives.
type MonitorController interface {
	Start()
	Stop()
	Pause()
	Resume()
	SetInterval(seconds int) int
	Status() monitor.Status
	AnalyzeNow(ctx context.Context) error
}

// FramePublisher hands out preview frames, or nil when the camera is
// busy or unavailable.
type FramePublisher interface {
	CaptureStreamFrame() []byte
}

// CooldownResetter clears the alert cooldown window.
type CooldownResetter interface {
	ResetCooldown()
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Monitor   MonitorController
	Frames    FramePublisher
	Store     *history.Store
	Alerter   CooldownResetter
}

// Server represents the HTTP server for the printwatch application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	events *EventsHandler
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Monitor != nil {
		s.mux.HandleFunc("/api/status", s.handleStatus)
		s.mux.HandleFunc("/api/monitor/start", s.monitorAction(func(m MonitorController) { m.Start() }))
		s.mux.HandleFunc("/api/monitor/stop", s.monitorAction(func(m MonitorController) { m.Stop() }))
		s.mux.HandleFunc("/api/monitor/pause", s.monitorAction(func(m MonitorController) { m.Pause() }))
		s.mux.HandleFunc("/api/monitor/resume", s.monitorAction(func(m MonitorController) { m.Resume() }))
		s.mux.HandleFunc("/api/monitor/interval", s.handleInterval)
		s.mux.HandleFunc("/api/analyze", s.handleAnalyze)

		s.events = NewEventsHandler(s.config.Monitor)
		s.mux.Handle("/api/events", s.events)
	}

	if s.config.Store != nil {
		historyHandler := api.NewHistoryHandler(s.config.Store)
		s.mux.Handle("/api/history", historyHandler)
		s.mux.Handle("/api/history/", historyHandler)
	}

	if s.config.Alerter != nil {
		s.mux.HandleFunc("/api/alerts/reset", s.handleAlertsReset)
	}

	if s.config.Frames != nil {
		streamHandler := NewStreamHandler(s.config.Frames)
		s.mux.Handle("/api/stream", streamHandler)
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// handleStatus handles GET requests to /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.config.Monitor.Status())
}

// monitorAction wraps a POST-only scheduler control and responds with
// the snapshot after the change took effect.
func (s *Server) monitorAction(action func(MonitorController)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		action(s.config.Monitor)
		writeJSON(w, http.StatusOK, s.config.Monitor.Status())
	}
}

type intervalRequest struct {
	IntervalSeconds int `json:"interval_seconds"`
}

type intervalResponse struct {
	IntervalSeconds int `json:"interval_seconds"`
}

// handleInterval handles POST requests to /api/monitor/interval. The
// applied value may differ from the requested one because the period
// is clamped to the allowed range.
func (s *Server) handleInterval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req intervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.IntervalSeconds <= 0 {
		writeError(w, http.StatusBadRequest, "interval_seconds must be positive")
		return
	}

	applied := s.config.Monitor.SetInterval(req.IntervalSeconds)
	writeJSON(w, http.StatusOK, intervalResponse{IntervalSeconds: applied})
}

// handleAnalyze handles POST requests to /api/analyze and runs one
// analysis cycle immediately.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.config.Monitor.AnalyzeNow(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.config.Monitor.Status())
}

// handleAlertsReset handles POST requests to /api/alerts/reset.
func (s *Server) handleAlertsReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.config.Alerter.ResetCooldown()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cooldown reset"})
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// Close releases background resources, disconnecting event subscribers.
func (s *Server) Close() {
	if s.events != nil {
		s.events.Close()
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
