package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hallgate/access-core/internal/identity"
	"github.com/hallgate/access-core/internal/policy"
	"github.com/hallgate/access-core/internal/ratelimit"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	// ctxKeyRequestID is the context key for the request ID.
	ctxKeyRequestID contextKey = "request_id"

	// ctxKeyIdentity is the context key for the verified caller identity.
	ctxKeyIdentity contextKey = "identity"
)

// requestIDMiddleware generates a unique request ID for each request.
// If the client sends an X-Request-ID header, it is used; otherwise one is generated.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs each HTTP request with method, path, status, and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
	})
}

// recoveryMiddleware catches panics in handlers and returns a 500 response.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered in HTTP handler",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", r.Context().Value(ctxKeyRequestID),
				)
				writeInternalError(w, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles Cross-Origin Resource Sharing headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", joinOrDefault(s.cfg.CORS.AllowedMethods, "GET, POST, PUT, PATCH, DELETE, OPTIONS"))
			w.Header().Set("Access-Control-Allow-Headers", joinOrDefault(s.cfg.CORS.AllowedHeaders, "Authorization, Content-Type, X-Request-ID"))
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		// Handle preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

// bodySizeLimitMiddleware limits the size of incoming request bodies to prevent
// denial-of-service attacks via oversized payloads.
func (s *Server) bodySizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// loginRateLimitMiddleware admits credential-issuance requests keyed by
// client address. Rejected requests get a 429 with Retry-After and do not
// consume budget.
func (s *Server) loginRateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.loginLimiter != nil {
			if err := s.loginLimiter.Admit(clientIP(r)); err != nil {
				s.rejectRateLimited(w, r, err, "login")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// admissionRateLimitMiddleware admits protected-route traffic keyed by
// client address, ahead of authentication. A caller hammering the API
// with garbage credentials gets throttled here; verification work only
// happens for admitted requests. The "ip:" prefix keeps these keys
// disjoint from the subject-keyed budget applied after authentication.
func (s *Server) admissionRateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.reqLimiter != nil {
			if err := s.reqLimiter.Admit("ip:" + clientIP(r)); err != nil {
				s.rejectRateLimited(w, r, err, "admission")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requestRateLimitMiddleware admits general requests keyed by the
// authenticated subject when present, falling back to client address.
// It runs after authMiddleware so distinct accounts behind one NAT do
// not share a budget.
func (s *Server) requestRateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.reqLimiter != nil {
			key := clientIP(r)
			if id := identityFromContext(r.Context()); id != nil {
				key = id.SubjectID
			}
			if err := s.reqLimiter.Admit(key); err != nil {
				s.rejectRateLimited(w, r, err, "request")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// rejectRateLimited writes the 429 response and records the rejection.
func (s *Server) rejectRateLimited(w http.ResponseWriter, r *http.Request, err error, class string) {
	var rateErr *ratelimit.RateExceededError
	if !errors.As(err, &rateErr) {
		writeInternalError(w, "admission check failed")
		return
	}

	s.logger.Warn("rate limit exceeded",
		"class", class,
		"path", r.URL.Path,
		"retry_after", rateErr.RetryAfter,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)
	if s.metrics != nil {
		s.metrics.WriteRateLimitRejection(class, rateErr.RetryAfter)
	}
	writeRateLimited(w, rateErr)
}

// authMiddleware verifies the bearer access token on protected routes and
// places the caller's identity in the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			writeUnauthorized(w, "missing bearer token")
			return
		}

		id, err := s.tokens.VerifyAccess(r.Context(), tokenString)
		if err != nil {
			if s.metrics != nil {
				s.metrics.WriteAuthDecision("verify_access", outcomeFor(err))
			}
			writeCredentialError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyIdentity, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole gates a route group to callers holding one of the given roles.
// Must run after authMiddleware.
func (s *Server) requireRole(roles ...identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identityFromContext(r.Context())
			if err := policy.Authorize(id, roles...); err != nil {
				if s.metrics != nil {
					s.metrics.WriteAuthDecision("authorize", "forbidden")
				}
				writeForbidden(w, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requirePermission gates a route to callers whose role grants the given
// permission. Must run after authMiddleware.
func (s *Server) requirePermission(perm policy.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identityFromContext(r.Context())
			if id == nil || !policy.HasPermission(id.Role, perm) {
				if s.metrics != nil {
					s.metrics.WriteAuthDecision("authorize", "forbidden")
				}
				writeForbidden(w, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// identityFromContext returns the verified caller identity, or nil when
// the request did not pass authMiddleware.
func identityFromContext(ctx context.Context) *identity.Identity {
	id, _ := ctx.Value(ctxKeyIdentity).(*identity.Identity)
	return id
}

// bearerToken extracts the access token from the Authorization header,
// falling back to the access_token cookie for browser clients.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	if c, err := r.Cookie("access_token"); err == nil {
		return c.Value
	}
	return ""
}

// clientIP extracts the client's IP address, honouring X-Forwarded-For
// when the request came through a reverse proxy.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First address in the list is the originating client.
		if idx := strings.IndexByte(xff, ','); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// isAllowedOrigin checks if the origin is in the allowed list.
// An empty list allows all origins (dev mode).
func (s *Server) isAllowedOrigin(origin string) bool {
	if len(s.cfg.CORS.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.CORS.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// requestIDBytes is the number of random bytes used for request IDs.
const requestIDBytes = 8

// generateRequestID creates a random hex request ID.
func generateRequestID() string {
	b := make([]byte, requestIDBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// joinOrDefault joins a string slice with ", " or returns the default if empty.
func joinOrDefault(values []string, defaultVal string) string {
	if len(values) == 0 {
		return defaultVal
	}
	result := values[0]
	for _, v := range values[1:] {
		result += ", " + v
	}
	return result
}
