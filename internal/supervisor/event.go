package supervisor

import (
	"time"

	"github.com/sweeney/gas-monitor/internal/logic"
	"github.com/sweeney/gas-monitor/internal/protocol"
)

// EventKind identifies what an Event carries.
type EventKind string

const (
	KindStatus     EventKind = "STATUS"      // Record and Source are set
	KindState      EventKind = "STATE"       // State, Target and Cause are set
	KindMessage    EventKind = "MESSAGE"     // Line is a non-telemetry device message
	KindParseError EventKind = "PARSE_ERROR" // Line failed to parse, Err says why
)

// Source says where a status record came from.
type Source string

const (
	SourceDevice Source = "device"
	SourceDemo   Source = "demo"
)

// Event is published by the supervisor for the monitor pipeline.
type Event struct {
	Kind EventKind
	Time time.Time

	Record protocol.StatusRecord
	Source Source

	State  logic.LinkState
	Target string
	Cause  error

	Line string
	Err  error
}
