package mqtt

import "fmt"

// Topic prefixes for Access Core.
//
// Identity mutation events use the flat scheme:
// accesscore/events/identity/{event_type}
const (
	// TopicPrefix is the base for all Access Core topics.
	TopicPrefix = "accesscore"

	// TopicPrefixEvents is the base for domain-event topics.
	TopicPrefixEvents = "accesscore/events"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "accesscore/system"
)

// Topics provides builders for Access Core MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	t := topics.IdentityEvent("password_changed")
//	// Returns: "accesscore/events/identity/password_changed"
type Topics struct{}

// IdentityEvent returns the topic for a specific identity mutation event.
//
// Example: accesscore/events/identity/created
func (Topics) IdentityEvent(eventType string) string {
	return fmt.Sprintf("%s/identity/%s", TopicPrefixEvents, eventType)
}

// AllIdentityEvents returns the wildcard subscription matching every
// identity mutation event.
//
// Example: accesscore/events/identity/+
func (Topics) AllIdentityEvents() string {
	return TopicPrefixEvents + "/identity/+"
}

// SystemStatus returns the topic for Access Core online/offline status.
// Used for the retained status message and the Last Will and Testament.
//
// Example: accesscore/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
