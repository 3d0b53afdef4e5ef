package mqtt

import (
	"fmt"
)

// maxPayloadSize caps outgoing messages at 1MB. Identity events are a
// few hundred bytes; anything near this limit is a bug upstream, and
// most brokers reject oversized payloads anyway.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker to accept
// it. Identity mutation events publish with retained=false so a late
// subscriber does not replay stale invalidations; only the status
// topic retains.
//
// QoS 0 is fire and forget, 1 guarantees delivery but may duplicate,
// 2 guarantees exactly-once at higher cost. The invalidation feed runs
// at the configured default, normally 1: a duplicate eviction is
// harmless, a lost one is covered by the cache TTL.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishString publishes a string payload.
func (c *Client) PublishString(topic string, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}

// PublishRetained publishes a retained message at the configured
// default QoS. Used for state topics where a new subscriber should
// immediately see the current value.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}
