package serial

import (
	"bytes"
	"context"
	"errors"
	"log"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/sweeney/gas-monitor/internal/logic"
)

// Defaults for Session.
const (
	DefaultAttempts = 3
	DefaultBackoff  = 3 * time.Second
	MinBackoff      = 3 * time.Second // lowest delay accepted from configuration
	DefaultMaxLine  = 1024
)

// Reasons a port could not be opened. Openers wrap their errors with these
// so that ConnectError can say why.
var (
	ErrPortBusy     = errors.New("port busy")
	ErrPortNotFound = errors.New("port not found")
	ErrPermission   = errors.New("permission denied")
)

// SessionOptions configures a Session.
type SessionOptions struct {
	Attempts int           // connect attempts per Connect call
	Backoff  time.Duration // fixed delay between attempts
	MaxLine  int           // longest partial line kept while waiting for '\n'
	// OnRetry, if set, is called after a failed attempt before the back-off.
	OnRetry func(err error, next time.Duration)
}

// Session is one logical connection to the device. It owns the port handle.
// Read must only be called from a single goroutine; Write and Close may be
// called from any goroutine and are serialized.
type Session struct {
	opener   Opener
	attempts int
	backoff  time.Duration
	maxLine  int
	onRetry  func(error, time.Duration)

	mu     sync.Mutex // guards port, target, state
	port   Port
	target string
	state  logic.LinkState

	wmu sync.Mutex // held across port writes and close

	// Reader-owned line assembly.
	pending []byte
	chunk   []byte
}

// NewSession creates a disconnected session.
func NewSession(opener Opener, opts SessionOptions) *Session {
	s := &Session{
		opener:   opener,
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
		maxLine:  opts.MaxLine,
		onRetry:  opts.OnRetry,
		state:    logic.LinkDisconnected,
	}
	if s.attempts <= 0 {
		s.attempts = DefaultAttempts
	}
	if s.backoff < 0 {
		s.backoff = DefaultBackoff
	}
	if s.maxLine <= 0 {
		s.maxLine = DefaultMaxLine
	}
	s.chunk = make([]byte, 256)
	return s
}

// Connect opens target, retrying with a fixed back-off. Each attempt first
// asks the opener to release any stale handle on the same target. Any
// existing connection is closed first.
func (s *Session) Connect(ctx context.Context, target string) error {
	s.Close()

	s.mu.Lock()
	s.state = logic.LinkConnecting
	s.target = target
	s.mu.Unlock()

	tried := 0
	open := func() (Port, error) {
		tried++
		if r, ok := s.opener.(Releaser); ok {
			if err := r.Release(target); err != nil && !errors.Is(err, ErrPortNotFound) {
				log.Printf("serial: release %s: %v", target, err)
			}
		}
		port, err := s.opener.Open(target)
		if err != nil {
			log.Printf("serial: attempt %d/%d on %s failed: %v", tried, s.attempts, target, err)
			return nil, err
		}
		return port, nil
	}

	port, err := backoff.Retry(ctx, open,
		backoff.WithBackOff(backoff.NewConstantBackOff(s.backoff)),
		backoff.WithMaxTries(uint(s.attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(s.onRetry),
	)
	if err == nil {
		s.mu.Lock()
		s.port = port
		s.state = logic.LinkConnected
		s.mu.Unlock()
		s.pending = s.pending[:0]
		log.Printf("serial: connected to %s (attempt %d)", target, tried)
		return nil
	}

	s.mu.Lock()
	s.state = logic.LinkDisconnected
	s.mu.Unlock()

	return &ConnectError{Target: target, Attempts: tried, Reason: reasonOf(err), Err: err}
}

// Read returns the next complete line with surrounding whitespace removed.
// It never blocks for longer than the port's read timeout: ErrWouldBlock
// means no full line has arrived yet. ErrClosed means there is no port.
// An I/O error closes the session and returns a *LinkLostError.
func (s *Session) Read() (string, error) {
	if line, ok := s.nextLine(); ok {
		return line, nil
	}

	s.mu.Lock()
	port, target := s.port, s.target
	s.mu.Unlock()
	if port == nil {
		return "", ErrClosed
	}

	n, err := port.Read(s.chunk)
	if n > 0 {
		s.pending = append(s.pending, s.chunk[:n]...)
	}
	if err != nil {
		s.drop(port)
		return "", &LinkLostError{Target: target, Op: "read", Err: err}
	}

	if line, ok := s.nextLine(); ok {
		return line, nil
	}
	if len(s.pending) > s.maxLine {
		log.Printf("serial: discarding %d bytes without newline from %s", len(s.pending), target)
		s.pending = s.pending[:0]
	}
	return "", ErrWouldBlock
}

func (s *Session) nextLine() (string, bool) {
	for {
		i := bytes.IndexByte(s.pending, '\n')
		if i < 0 {
			return "", false
		}
		line := strings.TrimSpace(string(s.pending[:i]))
		s.pending = append(s.pending[:0], s.pending[i+1:]...)
		if line != "" {
			return line, true
		}
	}
}

// Write sends text followed by a newline. Concurrent writers are serialized.
func (s *Session) Write(text string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	port, target := s.port, s.target
	s.mu.Unlock()
	if port == nil {
		return ErrClosed
	}

	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if _, err := port.Write([]byte(text)); err != nil {
		s.dropLocked(port)
		return &LinkLostError{Target: target, Op: "write", Err: err}
	}
	return nil
}

// Check probes whether the connected target is still present. It returns
// ErrClosed when not connected and a *LinkLostError (after closing the
// session) when the device has disappeared. Openers that cannot enumerate
// ports always pass.
func (s *Session) Check() error {
	s.mu.Lock()
	port, target := s.port, s.target
	s.mu.Unlock()
	if port == nil {
		return ErrClosed
	}

	lister, ok := s.opener.(Lister)
	if !ok {
		return nil
	}
	names, err := lister.List()
	if err != nil {
		// Enumeration trouble says nothing about this port.
		return nil
	}
	if present(target, names) {
		return nil
	}
	s.drop(port)
	return &LinkLostError{Target: target, Op: "check", Err: ErrPortNotFound}
}

// Close releases the port. It waits for an in-flight Write to finish.
func (s *Session) Close() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	port := s.port
	s.port = nil
	if s.state != logic.LinkConnecting {
		s.state = logic.LinkDisconnected
	}
	s.mu.Unlock()

	if port == nil {
		return nil
	}
	return port.Close()
}

// State returns DISCONNECTED, CONNECTING or CONNECTED.
func (s *Session) State() logic.LinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Target returns the last target passed to Connect.
func (s *Session) Target() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// present reports whether target is one of the enumerated names, either
// directly or through a symlink such as /dev/serial/by-id/usb-Arduino_...
// which udev removes when the device goes away.
func present(target string, names []string) bool {
	if slices.Contains(names, target) {
		return true
	}
	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		return false
	}
	for _, name := range names {
		if name == resolved {
			return true
		}
		if r, err := filepath.EvalSymlinks(name); err == nil && r == resolved {
			return true
		}
	}
	return false
}

func (s *Session) drop(port Port) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.dropLocked(port)
}

// dropLocked closes port if it is still current. Caller holds wmu.
func (s *Session) dropLocked(port Port) {
	s.mu.Lock()
	current := s.port == port
	if current {
		s.port = nil
		s.state = logic.LinkDisconnected
	}
	s.mu.Unlock()
	if current {
		port.Close()
	}
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, ErrPortBusy):
		return "busy"
	case errors.Is(err, ErrPortNotFound):
		return "not found"
	case errors.Is(err, ErrPermission):
		return "permission denied"
	}
	return ""
}
