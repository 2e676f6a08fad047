package monitorservice

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sales-dashboard/internal/domain/health"
	"sales-dashboard/internal/shared/logger"
)

// StatusSource is the part of the monitor the HTTP API needs.
type StatusSource interface {
	Status() health.Snapshot
	Refresh(ctx context.Context) health.Snapshot
}

// MonitorHTTPHandler exposes the monitor state to dashboard consumers.
type MonitorHTTPHandler struct {
	logger *logger.Logger
	source StatusSource
}

// NewHandler wires an HTTP handler around the monitor.
func NewHandler(logger *logger.Logger, source StatusSource) *MonitorHTTPHandler {
	return &MonitorHTTPHandler{logger: logger, source: source}
}

// Register mounts the monitor routes on r.
func (handler *MonitorHTTPHandler) Register(r chi.Router) {
	r.Get("/monitor/status", handler.getStatus)
	r.Post("/monitor/refresh", handler.refresh)
	r.Get("/health", handler.health)
}

// getStatus handles GET /monitor/status.
func (handler *MonitorHTTPHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r)
	handler.logger.Debug(ctx, "request_received", "GET /monitor/status", nil)
	handler.writeJSON(w, http.StatusOK, handler.source.Status())
}

// refresh handles POST /monitor/refresh and answers with the state after the check.
func (handler *MonitorHTTPHandler) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r)
	handler.logger.Info(ctx, "manual_refresh", "Manual health check requested", nil)
	handler.writeJSON(w, http.StatusOK, handler.source.Refresh(ctx))
}

func (handler *MonitorHTTPHandler) health(w http.ResponseWriter, r *http.Request) {
	handler.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (handler *MonitorHTTPHandler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *MonitorHTTPHandler) withReqID(r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = uuid.NewString()
	}
	return handler.logger.WithRequestID(r.Context(), reqID)
}
