package handlers

import (
	"net/http"
	"time"

	"github.com/mightyiam/magic-nix-cache/pkg/session"
)

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the daemon process running?
//   - Readiness probe: Is the daemon ready to accept workflow operations?
type HealthHandler struct {
	session *session.Session
}

// NewHealthHandler creates a new health handler.
//
// The session parameter may be nil, in which case the readiness check
// reports not ready.
func NewHealthHandler(sess *session.Session) *HealthHandler {
	return &HealthHandler{session: sess}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK as long as the HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data:      map[string]string{"service": "magic-nix-cache"},
	})
}

// Readiness handles GET /health/ready - readiness probe.
//
// Returns 503 once the workflow has finished and the daemon is about to
// exit, so drivers stop routing requests to it.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:    "unhealthy",
			Timestamp: time.Now().UTC(),
			Error:     "session not initialized",
		})
		return
	}

	select {
	case <-h.session.ShutdownRequested():
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:    "unhealthy",
			Timestamp: time.Now().UTC(),
			Error:     "workflow finished, shutting down",
		})
		return
	default:
	}

	backends := h.session.Backends()
	names := make([]string, 0, len(backends))
	for _, b := range backends {
		names = append(names, b.Name())
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"backends": names},
	})
}
