// Package protocol implements the text line protocol spoken by the gas sensor
// firmware: status lines from the device and command tokens to it.
// This package has NO external dependencies (no serial, MQTT, OS, or clock).
// Time is always injectable via time.Time parameters.
package protocol

import "time"

// Switch is the state of a device output or mode flag.
type Switch string

const (
	On  Switch = "ON"
	Off Switch = "OFF"
)

// SwitchOf converts a bool to a Switch.
func SwitchOf(on bool) Switch {
	if on {
		return On
	}
	return Off
}

// IsOn reports whether the switch is ON.
func (s Switch) IsOn() bool {
	return s == On
}

// Value ranges of the 10-bit ADC on the device.
const (
	MinGas       = 0
	MaxGas       = 1023
	MinThreshold = 1
	MaxThreshold = 1023

	// DefaultThreshold is the firmware's factory alarm threshold.
	DefaultThreshold = 400
)

// StatusRecord is one parsed telemetry line.
// It is a value type; copies are independent.
type StatusRecord struct {
	Gas       int
	LED       Switch
	Buzzer    Switch
	Auto      Switch
	Threshold int
	Timestamp time.Time
}

// Alarming reports whether the gas reading exceeds the alarm threshold.
func (r StatusRecord) Alarming() bool {
	return r.Gas > r.Threshold
}
