package mqtt

import "errors"

// Sentinel errors for broker operations; match with errors.Is. Wrapped
// variants carry the underlying paho error or timeout detail.
var (
	// ErrNotConnected: operation attempted without a live session.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed: the initial handshake with the broker
	// failed or timed out.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed: the broker did not acknowledge a publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed: the broker rejected a subscription.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed: the broker rejected an unsubscribe.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS: QoS outside 0..2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic: empty topic string.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrTimeout: a broker round-trip exceeded its deadline.
	ErrTimeout = errors.New("mqtt: operation timed out")
)
