package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/scribehub/scribe/pkg/api/respond"
)

// Pinger reports whether one backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	deps map[string]Pinger
}

// NewHealthHandler creates a health handler over the named dependencies.
func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// Liveness handles GET /health. Always healthy while the process serves.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	respond.OK(w, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// Readiness handles GET /health/ready. Unready when any dependency fails
// its ping.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.deps))
	healthy := true
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
		} else {
			status[name] = "ok"
		}
	}

	if !healthy {
		respond.JSON(w, http.StatusServiceUnavailable, "unready", status)
		return
	}
	respond.OK(w, status)
}
