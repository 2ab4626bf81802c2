package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/yuvinraja/crm-backend/internal/logger"
)

const healthCheckTimeout = 5 * time.Second

// HealthChecker is a dependency probed by GET /health. *db.DB and queue.Client implement it.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	checkers map[string]HealthChecker
}

// NewHealthHandler creates a new health handler. Nil checkers are reported as not_configured.
func NewHealthHandler(checkers map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{checkers: checkers}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	log := logger.FromContext(r.Context())
	response := HealthResponse{
		Status:   "healthy",
		Services: make(map[string]string, len(h.checkers)),
	}

	for name, checker := range h.checkers {
		if checker == nil {
			response.Services[name] = "not_configured"
			continue
		}
		if err := checker.Health(ctx); err != nil {
			log.Error("health check failed", slog.String("service", name), slog.String("error", err.Error()))
			response.Status = "unhealthy"
			response.Services[name] = "unhealthy"
			continue
		}
		response.Services[name] = "healthy"
	}

	if response.Status == "healthy" {
		respondSuccess(w, r, response)
	} else {
		respondJSON(w, r, http.StatusServiceUnavailable, response)
	}
}
