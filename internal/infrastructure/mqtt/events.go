package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hallgate/access-core/internal/event"
)

// PublishIdentityEvent publishes an identity mutation event as JSON to
// its type-specific topic. Events are not retained: a late subscriber
// must not replay stale invalidations.
//
// This makes *Client satisfy event.Publisher.
func (c *Client) PublishIdentityEvent(ev event.IdentityEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding identity event: %w", err)
	}

	topic := Topics{}.IdentityEvent(string(ev.Type))
	return c.Publish(topic, payload, byte(c.cfg.QoS), false)
}

// SubscribeIdentityEvents registers a handler for all identity mutation
// events via the wildcard topic. Malformed payloads are dropped with an
// error return (logged by the subscription wrapper), never delivered.
//
// This makes *Client satisfy event.Subscriber, and therefore event.Bus.
func (c *Client) SubscribeIdentityEvents(handler event.Handler) error {
	return c.Subscribe(Topics{}.AllIdentityEvents(), byte(c.cfg.QoS), func(topic string, payload []byte) error {
		var ev event.IdentityEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decoding identity event on %s: %w", topic, err)
		}

		// The topic segment is authoritative for the event type: it is
		// what the broker routed on.
		if i := strings.LastIndexByte(topic, '/'); i >= 0 {
			ev.Type = event.Type(topic[i+1:])
		}

		handler(ev)
		return nil
	})
}
