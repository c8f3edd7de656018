package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/gatekeeper/internal/background"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

// StoreStatusInterface reports the last store health check
type StoreStatusInterface interface {
	Status() background.StoreStatus
	Check(ctx context.Context) background.StoreStatus
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status string                 `json:"status"`
	Store  background.StoreStatus `json:"store"`
}

// HealthHandler handles GET /health
type HealthHandler struct {
	monitor StoreStatusInterface
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(monitor StoreStatusInterface) *HealthHandler {
	return &HealthHandler{monitor: monitor}
}

// Health reports 200 while the store is reachable and 503 otherwise.
// Sessions fail closed during an outage, so the instance is not fully usable.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.monitor.Status()
	if status.CheckedAt.IsZero() {
		status = h.monitor.Check(r.Context())
	}

	if !status.Healthy {
		// The underlying error stays in the logs
		status.Error = ""
		pkghttp.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Store: status})
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Store: status})
}
