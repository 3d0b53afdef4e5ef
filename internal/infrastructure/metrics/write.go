package metrics

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// emit queues one point on the batched write API. Dropped silently
// when the sink is not connected: metrics never block or fail a
// request.
func (c *Client) emit(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

// WriteAuthDecision records the outcome of a credential check or
// authorisation decision. operation is what was attempted ("login",
// "refresh", "verify_access", "authorize"), outcome the result class
// ("ok", "expired", "revoked", "stale", "inactive", "forbidden").
func (c *Client) WriteAuthDecision(operation string, outcome string) {
	c.emit("auth_decisions",
		map[string]string{"operation": operation, "outcome": outcome},
		map[string]interface{}{"count": int64(1)},
	)
}

// WriteRateLimitRejection records a request turned away by a limiter.
// class names which limiter fired ("login", "request", "admission"),
// retryAfter is the wait the caller was told.
func (c *Client) WriteRateLimitRejection(class string, retryAfter time.Duration) {
	c.emit("ratelimit_rejections",
		map[string]string{"class": class},
		map[string]interface{}{"retry_after_seconds": retryAfter.Seconds()},
	)
}

// WriteCacheObservation records one cache lookup. The hit ratio per
// key class ("identity", "listing") shows whether the read-through
// cache is pulling its weight.
func (c *Client) WriteCacheObservation(keyClass string, hit bool) {
	c.emit("cache_lookups",
		map[string]string{"key_class": keyClass},
		map[string]interface{}{"hit": hit},
	)
}
