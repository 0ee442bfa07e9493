package protocol

import "fmt"

// ParseError reports a telemetry line that does not match the wire format.
// Callers drop the line and keep reading.
type ParseError struct {
	Line   string
	Field  string // field name, empty when the line shape itself is wrong
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("parse %q: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("parse %q: field %s: %s", e.Line, e.Field, e.Reason)
}

// ValidationError reports a command argument that cannot be sent to the device.
type ValidationError struct {
	Command string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid command %s: %s", e.Command, e.Reason)
}
