package api

import (
	"context"
	"net/http"
)

// Checker reports whether the service can reach its dependencies.
type Checker interface {
	Check(ctx context.Context) error
}

// HealthHandler serves the unauthenticated liveness endpoint.
type HealthHandler struct {
	Checker Checker
}

// Get handles GET /api/health.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	if err := h.Checker.Check(r.Context()); err != nil {
		jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

type pingChecker struct {
	db interface {
		PingContext(ctx context.Context) error
	}
}

func (p pingChecker) Check(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
