package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mightyiam/magic-nix-cache/internal/logger"
	"github.com/mightyiam/magic-nix-cache/pkg/api/handlers"
	"github.com/mightyiam/magic-nix-cache/pkg/session"
	"github.com/mightyiam/magic-nix-cache/pkg/workflow"
)

// NewRouter creates and configures the chi router with all middleware and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//
// Routes:
//   - POST /api/workflow-start - Snapshot the store
//   - POST /api/workflow-finish - Diff, fan out, drain all backends
//   - POST /api/enqueue-paths - Fan a batch of paths out to all backends
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
func NewRouter(controller *workflow.Controller, sess *session.Session) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters. No request timeout here: a
	// workflow-finish blocks until the slowest backend drains, which can
	// legitimately take minutes.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	workflowHandler := handlers.NewWorkflowHandler(controller)
	healthHandler := handlers.NewHealthHandler(sess)

	r.Route("/api", func(r chi.Router) {
		r.Post("/workflow-start", workflowHandler.Start)
		r.Post("/workflow-finish", workflowHandler.Finish)
		r.Post("/enqueue-paths", workflowHandler.Enqueue)
	})

	// Health routes - unauthenticated
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		)
	})
}
