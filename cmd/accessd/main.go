// Access Core - Session and Access Control Plane
//
// This is the main entry point for the Access Core daemon. It wires the
// identity store, token lifecycle, rate limiting, caching, and event bus
// behind a single HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/hallgate/access-core/migrations"

	"github.com/hallgate/access-core/internal/account"
	"github.com/hallgate/access-core/internal/api"
	"github.com/hallgate/access-core/internal/cache"
	"github.com/hallgate/access-core/internal/clock"
	"github.com/hallgate/access-core/internal/event"
	"github.com/hallgate/access-core/internal/identity"
	"github.com/hallgate/access-core/internal/infrastructure/config"
	"github.com/hallgate/access-core/internal/infrastructure/database"
	"github.com/hallgate/access-core/internal/infrastructure/logging"
	"github.com/hallgate/access-core/internal/infrastructure/metrics"
	"github.com/hallgate/access-core/internal/infrastructure/mqtt"
	"github.com/hallgate/access-core/internal/ratelimit"
	"github.com/hallgate/access-core/internal/token"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup wiring
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Access Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	clk := clock.System()
	checks := map[string]api.HealthChecker{
		"database": db,
	}

	// Connect to the MQTT event bus, or fall back to the in-process bus
	// when no broker is configured. Cache invalidation works either way;
	// MQTT additionally fans events out to external consumers.
	var bus event.Bus
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		bus = mqttClient
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled, using in-process event bus")
		bus = event.NewMemoryBus()
	}

	// Connect to the metrics sink (optional)
	var metricsClient *metrics.Client
	metricsClient, err = metrics.Connect(cfg.Metrics)
	switch {
	case errors.Is(err, metrics.ErrDisabled):
		log.Info("metrics sink disabled")
		metricsClient = nil
	case err != nil:
		return fmt.Errorf("connecting to metrics sink: %w", err)
	default:
		defer func() {
			log.Info("closing metrics connection")
			if closeErr := metricsClient.Close(); closeErr != nil {
				log.Error("error closing metrics client", "error", closeErr)
			}
		}()
		metricsClient.SetOnError(func(err error) {
			log.Error("metrics write error", "error", err)
		})
		checks["metrics"] = metricsClient
		log.Info("metrics sink connected",
			"url", cfg.Metrics.URL,
			"org", cfg.Metrics.Org,
			"bucket", cfg.Metrics.Bucket,
		)
	}

	// Identity store and token lifecycle
	repo := identity.NewRepository(db.DB, clk)
	tokens, err := token.NewManager(repo, clk, token.Config{
		AccessSecret:  cfg.Security.Tokens.AccessSecret,
		RefreshSecret: cfg.Security.Tokens.RefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL(),
		RefreshTTL:    cfg.RefreshTokenTTL(),
	})
	if err != nil {
		return fmt.Errorf("creating token manager: %w", err)
	}

	// Read-through cache with event-driven invalidation
	store := cache.NewStore(cfg.CacheTTL(), clk)
	if metricsClient != nil {
		store.SetObserver(func(key string, hit bool) {
			metricsClient.WriteCacheObservation(cache.KeyClass(key), hit)
		})
	}
	coordinator := cache.NewCoordinator(store, bus)
	coordinator.SetLogger(log)
	if startErr := coordinator.Start(ctx); startErr != nil {
		return fmt.Errorf("starting cache coordinator: %w", startErr)
	}
	log.Info("cache invalidation coordinator started", "ttl", cfg.CacheTTL())

	// Account service
	accounts := account.NewService(repo, tokens, store, bus, clk)
	accounts.SetLogger(log)

	// Rate limiters: a strict window for credential endpoints, a loose
	// one for authenticated traffic.
	loginLimiter := ratelimit.New(ratelimit.Config{
		Ceiling: cfg.Security.RateLimit.Login.Ceiling,
		Window:  cfg.Security.RateLimit.Login.WindowDuration(),
	}, clk)
	reqLimiter := ratelimit.New(ratelimit.Config{
		Ceiling: cfg.Security.RateLimit.Request.Ceiling,
		Window:  cfg.Security.RateLimit.Request.WindowDuration(),
	}, clk)

	// HTTP API server
	server, err := api.New(api.Deps{
		Config:       cfg.API,
		Security:     cfg.Security,
		Logger:       log,
		Accounts:     accounts,
		Tokens:       tokens,
		LoginLimiter: loginLimiter,
		ReqLimiter:   reqLimiter,
		Metrics:      metricsClient,
		Checks:       checks,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Metrics (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("Access Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ACCESSCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ACCESSCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, checker := range checks {
		if err := checker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
