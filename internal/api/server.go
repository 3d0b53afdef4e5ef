// Package api provides the HTTP REST API server for Access Core.
//
// It exposes credential operations (register, login, refresh, logout,
// password change) and identity management endpoints to clients.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hallgate/access-core/internal/account"
	"github.com/hallgate/access-core/internal/infrastructure/config"
	"github.com/hallgate/access-core/internal/infrastructure/logging"
	"github.com/hallgate/access-core/internal/infrastructure/metrics"
	"github.com/hallgate/access-core/internal/ratelimit"
	"github.com/hallgate/access-core/internal/token"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker reports whether a dependency is alive. The health
// endpoint fans out to every registered checker.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	Security     config.SecurityConfig
	Logger       *logging.Logger
	Accounts     *account.Service
	Tokens       *token.Manager
	LoginLimiter *ratelimit.Limiter
	ReqLimiter   *ratelimit.Limiter
	Metrics      *metrics.Client // optional
	Checks       map[string]HealthChecker
	Version      string
}

// Server is the HTTP API server for Access Core.
//
// It manages the HTTP listener, routes, and middleware.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	secCfg       config.SecurityConfig
	logger       *logging.Logger
	accounts     *account.Service
	tokens       *token.Manager
	loginLimiter *ratelimit.Limiter
	reqLimiter   *ratelimit.Limiter
	metrics      *metrics.Client
	checks       map[string]HealthChecker
	version      string
	server       *http.Server
	cancel       context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, account service, token manager)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Accounts == nil {
		return nil, fmt.Errorf("account service is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token manager is required")
	}

	return &Server{
		cfg:          deps.Config,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		accounts:     deps.Accounts,
		tokens:       deps.Tokens,
		loginLimiter: deps.LoginLimiter,
		reqLimiter:   deps.ReqLimiter,
		metrics:      deps.Metrics,
		checks:       deps.Checks,
		version:      deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Periodically drop rate-limit keys whose windows have fully drained.
	go s.purgeLimitersLoop(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// limiterPurgeInterval is how often fully-drained rate-limit keys are
// removed from memory.
const limiterPurgeInterval = time.Minute

// purgeLimitersLoop periodically removes idle keys from the rate
// limiters until the context is cancelled.
func (s *Server) purgeLimitersLoop(ctx context.Context) {
	ticker := time.NewTicker(limiterPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.loginLimiter != nil {
				s.loginLimiter.PurgeIdle()
			}
			if s.reqLimiter != nil {
				s.reqLimiter.PurgeIdle()
			}
		}
	}
}
