package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/akmatori/article73/internal/api"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Version  string `json:"version"`
	Database string `json:"database"`
}

// HTTPHandler serves the health check and the monitoring webhooks
type HTTPHandler struct {
	alertHandler *AlertHandler
	dbCheck      HealthCheck
}

// NewHTTPHandler creates a new HTTP handler. Either argument may be nil.
func NewHTTPHandler(alertHandler *AlertHandler, dbCheck HealthCheck) *HTTPHandler {
	return &HTTPHandler{
		alertHandler: alertHandler,
		dbCheck:      dbCheck,
	}
}

// SetupRoutes configures all HTTP routes
func (h *HTTPHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	if h.alertHandler != nil {
		h.alertHandler.SetupRoutes(mux)
	}
}

// handleHealth reports 503 when the incident store is unreachable
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "healthy",
		Service:  "article73",
		Version:  Version,
		Database: "unchecked",
	}
	status := http.StatusOK

	if h.dbCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.dbCheck(ctx); err != nil {
			log.Printf("Health: Database check failed: %v", err)
			resp.Status = "unhealthy"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}

	api.RespondJSON(w, status, resp)
}
