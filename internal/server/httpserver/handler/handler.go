package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// StatusSource reports the node state shown by the admin endpoints.
type StatusSource interface {
	NodeStatus() NodeStatus
}

// StatusFunc adapts a function to StatusSource.
type StatusFunc func() NodeStatus

// NodeStatus calls f.
func (f StatusFunc) NodeStatus() NodeStatus { return f() }

// Handler serves the admin JSON endpoints.
type Handler struct {
	source  StatusSource
	version string
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New creates a Handler reading node state from source.
func New(source StatusSource, version string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		source:  source,
		version: version,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	h.mux.HandleFunc("GET /status", h.handleStatus)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := w.Header().Get("X-Request-ID")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewResponse(requestID, data)); err != nil {
		h.logger.Error("failed to encode response", "path", r.URL.Path, "error", err)
	}
}
