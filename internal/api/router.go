package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each component check on /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.corsMiddleware)

	// Health check (no auth, no rate limit)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)

		// Session endpoints resolve the cookie themselves
		r.Group(func(r chi.Router) {
			r.Use(bodySizeLimit(maxRequestBodySize))
			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)
			r.Get("/check-auth", s.handleCheckAuth)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.sessionMiddleware)

			// Uploads carry their own, larger body limit
			r.With(bodySizeLimit(s.maxUpload+multipartOverhead)).Post("/admin/upload", s.handleUpload)

			r.Group(func(r chi.Router) {
				r.Use(bodySizeLimit(maxRequestBodySize))

				r.Post("/change-password", s.handleChangePassword)

				// Media
				r.Get("/browse", s.handleBrowse)
				r.Get("/media/*", s.handleMedia)

				// Administration
				r.Get("/admin/users", s.handleListUsers)
				r.Post("/admin/users", s.handleCreateUser)
				r.Put("/admin/users/{id}", s.handleUpdateUser)
				r.Delete("/admin/users/{id}", s.handleDeleteUser)
				r.Post("/admin/users/{id}/reset-password", s.handleResetPassword)
				r.Get("/admin/audit-log", s.handleAuditLog)
				r.Post("/admin/folders", s.handleCreateFolder)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, ErrCodeNotFound, "")
	})

	return r
}

// handleHealth returns the server health status. Any failing component
// turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	components := make(map[string]string, len(s.health))

	for name, checker := range s.health {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := checker.HealthCheck(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("health check failed", "component", name, "error", err)
			components[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":     overall,
		"version":    s.version,
		"components": components,
	})
}
