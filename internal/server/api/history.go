// Package api provides HTTP API handlers for the printwatch monitoring system.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/circuitbreakers/printwatch/internal/history"
)

const defaultListLimit = 50

// HistoryHandler handles HTTP requests for analysis history resources.
type HistoryHandler struct {
	store *history.Store
}

// NewHistoryHandler creates a new HistoryHandler with the given store.
func NewHistoryHandler(s *history.Store) *HistoryHandler {
	return &HistoryHandler{store: s}
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/history, /api/history/{id}, /api/history/{id}/image
	path := strings.TrimPrefix(r.URL.Path, "/api/history")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodDelete:
			h.clear(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	id, rest, _ := strings.Cut(path, "/")
	switch {
	case rest == "" && r.Method == http.MethodGet:
		h.get(w, r, id)
	case rest == "image" && r.Method == http.MethodGet:
		h.image(w, r, id)
	case rest == "":
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

type listHistoryResponse struct {
	Entries []*history.Entry `json:"entries"`
	Count   int              `json:"count"`
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

// list handles GET /api/history and returns entries newest first. An
// optional limit query parameter bounds the page size.
func (h *HistoryHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	entries, err := h.store.List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list history")
		return
	}
	if entries == nil {
		entries = []*history.Entry{}
	}

	writeJSON(w, http.StatusOK, listHistoryResponse{Entries: entries, Count: len(entries)})
}

// get handles GET /api/history/{id} and returns a single entry.
func (h *HistoryHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	entry, err := h.store.Get(id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Entry not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get entry")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// image handles GET /api/history/{id}/image and serves the stored JPEG.
func (h *HistoryHandler) image(w http.ResponseWriter, r *http.Request, id string) {
	entry, err := h.store.Get(id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Entry not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get entry")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, h.store.ImagePath(entry))
}

// clear handles DELETE /api/history and removes all entries and images.
func (h *HistoryHandler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clear history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
