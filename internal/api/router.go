package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hallgate/access-core/internal/identity"
	"github.com/hallgate/access-core/internal/policy"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Credential endpoints (no auth; strict login window)
		r.Group(func(r chi.Router) {
			r.Use(s.loginRateLimitMiddleware)

			r.Post("/auth/register", s.handleRegister)
			r.Post("/auth/login", s.handleLogin)
			r.Post("/auth/refresh", s.handleRefresh)
		})

		// Protected routes. Admission runs before authentication so
		// unauthenticated traffic cannot bypass the limiter; the
		// subject-keyed budget runs after it.
		r.Group(func(r chi.Router) {
			r.Use(s.admissionRateLimitMiddleware)
			r.Use(s.authMiddleware)
			r.Use(s.requestRateLimitMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/logout", s.handleLogout)
			r.Post("/auth/password", s.handleChangePassword)

			// Identity management. Collection routes gate on the
			// permission model; destructive per-identity routes stay
			// admin-only.
			r.Route("/users", func(r chi.Router) {
				r.With(s.requirePermission(policy.PermAccountRead)).
					Get("/", s.handleListUsers)
				r.With(s.requirePermission(policy.PermAccountManage)).
					Post("/", s.handleCreateUser)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetUser)
					r.Patch("/", s.handleUpdateUser)

					r.Group(func(r chi.Router) {
						r.Use(s.requireRole(identity.RoleAdmin))

						r.Delete("/", s.handleDeleteUser)
						r.Post("/deactivate", s.handleDeactivateUser)
						r.Post("/restore", s.handleRestoreUser)
					})
				})
			})
		})
	})

	return r
}

// healthCheckTimeout bounds each dependency check on the health endpoint.
const healthCheckTimeout = 2 * time.Second

// handleHealth returns the server health status with per-dependency checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	deps := make(map[string]string, len(s.checks))
	for name, checker := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		if err := checker.HealthCheck(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
		} else {
			deps[name] = "ok"
		}
		cancel()
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":       status,
		"version":      s.version,
		"dependencies": deps,
	})
}
