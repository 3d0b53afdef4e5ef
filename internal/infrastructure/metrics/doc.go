// Package metrics provides the time-series decision-metrics sink for
// Access Core.
//
// It wraps the official influxdb-client-go v2 library with Access Core's
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package records operational signals for:
//   - Authentication and authorisation outcomes
//   - Rate-limit rejections
//   - Cache hit/miss effectiveness
//
// # Usage
//
//	cfg := config.MetricsConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "accesscore",
//	    Bucket: "metrics",
//	}
//
//	client, err := metrics.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Record an auth outcome
//	client.WriteAuthDecision("login", "ok")
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This keeps recording off the request path even under load.
package metrics
