// Package serial owns the physical link to the sensor board.
// The real implementation uses go.bug.st/serial.
// The fake implementation allows testing without hardware.
package serial

import (
	"errors"
	"fmt"
)

// Port is an open serial connection. Read must return (0, nil) when no data
// arrives within the port's read timeout.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Opener opens ports by name (e.g. /dev/ttyUSB0, COM4).
type Opener interface {
	Open(target string) (Port, error)
}

// Releaser is implemented by openers that can force-release a handle left
// behind by a previous, improperly closed session. Best effort.
type Releaser interface {
	Release(target string) error
}

// Lister is implemented by openers that can enumerate available targets.
type Lister interface {
	List() ([]string, error)
}

var (
	// ErrWouldBlock means no complete line is available yet. It is not a failure.
	ErrWouldBlock = errors.New("serial: no data")
	// ErrClosed means the session has no open port.
	ErrClosed = errors.New("serial: not connected")
	// ErrNoTarget means no port was named and none could be discovered.
	ErrNoTarget = errors.New("serial: no port available")
)

// ConnectError reports that a target could not be opened after all attempts.
type ConnectError struct {
	Target   string
	Attempts int
	Reason   string // "busy", "not found", "permission denied" or "" when unknown
	Err      error
}

func (e *ConnectError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("connect %s: %s after %d attempts: %v", e.Target, e.Reason, e.Attempts, e.Err)
	}
	return fmt.Sprintf("connect %s: failed after %d attempts: %v", e.Target, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// LinkLostError reports an I/O failure on an established connection.
// The session is already closed when it is returned.
type LinkLostError struct {
	Target string
	Op     string // "read", "write" or "check"
	Err    error
}

func (e *LinkLostError) Error() string {
	return fmt.Sprintf("link to %s lost on %s: %v", e.Target, e.Op, e.Err)
}

func (e *LinkLostError) Unwrap() error {
	return e.Err
}
