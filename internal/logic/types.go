// Package logic contains pure business logic for the gas monitor pipeline.
// This package has NO external dependencies (no serial, MQTT, OS, or time.Sleep).
package logic

// LinkState is the supervisor's view of the device link.
type LinkState string

const (
	LinkDisconnected LinkState = "DISCONNECTED"
	LinkConnecting   LinkState = "CONNECTING"
	LinkConnected    LinkState = "CONNECTED"
	LinkDemo         LinkState = "DEMO"
)

// LinkEvent drives a LinkState transition.
type LinkEvent string

const (
	EventAttempt       LinkEvent = "ATTEMPT"
	EventSuccess       LinkEvent = "SUCCESS"
	EventExhausted     LinkEvent = "EXHAUSTED"
	EventFailed        LinkEvent = "FAILED"
	EventLinkLost      LinkEvent = "LINK_LOST"
	EventFallback      LinkEvent = "FALLBACK"
	EventUserReconnect LinkEvent = "USER_RECONNECT"
)

// DeltaThreshold is the minimum absolute change in gas reading that is
// considered significant enough to log.
const DeltaThreshold = 10
