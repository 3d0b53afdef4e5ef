// Package mqtt provides MQTT client connectivity for Access Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Access Core uses MQTT as the event fan-out between the identity write
// path and the cache invalidation coordinator. The broker decouples the
// two: a mutation publishes its event and returns; consumers evict
// affected cache entries asynchronously.
//
//	Write path → MQTT Broker → Cache invalidation coordinator
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Consume all identity mutation events
//	err = client.SubscribeIdentityEvents(func(ev event.IdentityEvent) {
//	    log.Printf("identity %s: %s", ev.SubjectID, ev.Type)
//	})
package mqtt
