// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/gas-monitor/internal/protocol"
)

// Topic is the MQTT topic for accepted gas readings.
const Topic = "sensors/gas-monitor/telemetry"

// TopicSystem is the MQTT topic for lifecycle and link-state events.
const TopicSystem = "sensors/gas-monitor/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a gas reading to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(rec protocol.StatusRecord, source string) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, link change).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "LINK", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", or the new link state
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Gas GasPayload `json:"gas"`
}

// GasPayload contains the reading details.
type GasPayload struct {
	Timestamp string `json:"timestamp"`
	Value     int    `json:"value"`
	Threshold int    `json:"threshold"`
	LED       string `json:"led"`
	Buzzer    string `json:"buzzer"`
	Auto      string `json:"auto"`
	Alarm     bool   `json:"alarm"`
	Source    string `json:"source"`
}

// FormatPayload creates the JSON payload for a gas reading.
func FormatPayload(rec protocol.StatusRecord, source string) ([]byte, error) {
	payload := Payload{
		Gas: GasPayload{
			Timestamp: rec.Timestamp.UTC().Format(time.RFC3339),
			Value:     rec.Gas,
			Threshold: rec.Threshold,
			LED:       string(rec.LED),
			Buzzer:    string(rec.Buzzer),
			Auto:      string(rec.Auto),
			Alarm:     rec.Alarming(),
			Source:    source,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
