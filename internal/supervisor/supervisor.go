// Package supervisor owns the device link state. A single control goroutine
// connects, falls back to demo telemetry, watches link health and handles
// reconnect requests, publishing everything it sees as Events.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/gas-monitor/internal/logic"
	"github.com/sweeney/gas-monitor/internal/protocol"
	"github.com/sweeney/gas-monitor/internal/serial"
)

// ErrNotConnected is returned by Send when there is neither a device link
// nor a demo generator to take the command.
var ErrNotConnected = errors.New("supervisor: not connected")

// Policy selects what happens after an established link is lost.
type Policy string

const (
	PolicyReconnect Policy = "reconnect"
	PolicyDemo      Policy = "demo"
)

// Config controls supervisor behavior.
type Config struct {
	Target         string        // port name; empty picks the first enumerated port
	DemoFallback   bool          // switch to demo telemetry when connecting fails
	OnLinkLost     Policy        // reconnect or demo
	HealthInterval time.Duration // how often the connected port is probed
	PollInterval   time.Duration // idle delay between empty reads
	RetryInterval  time.Duration // delay before retrying while DISCONNECTED; 0 waits for a reconnect request
}

// Session is the device link. *serial.Session implements it.
type Session interface {
	Connect(ctx context.Context, target string) error
	Read() (string, error)
	Write(text string) error
	Check() error
	Close() error
}

// Demo produces synthetic telemetry. *demo.Generator implements it.
type Demo interface {
	Next(now time.Time) protocol.StatusRecord
	Interval() time.Duration
	Apply(cmd protocol.Command) error
}

// Supervisor runs the link state machine.
type Supervisor struct {
	cfg     Config
	session Session
	lister  serial.Lister
	demo    Demo
	now     func() time.Time

	events    chan Event
	reconnect chan string

	mu     sync.RWMutex
	state  logic.LinkState
	target string
}

// New creates a supervisor. lister may be nil when Config.Target is set.
func New(cfg Config, session Session, lister serial.Lister, demo Demo) *Supervisor {
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.OnLinkLost == "" {
		cfg.OnLinkLost = PolicyDemo
	}
	return &Supervisor{
		cfg:       cfg,
		session:   session,
		lister:    lister,
		demo:      demo,
		now:       time.Now,
		events:    make(chan Event, 64),
		reconnect: make(chan string, 1),
		state:     logic.LinkDisconnected,
	}
}

// Events returns the event stream. It is closed when Run returns.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// State returns the current link state.
func (s *Supervisor) State() logic.LinkState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Target returns the port of the current or most recent connection.
func (s *Supervisor) Target() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target
}

// Reconnect asks the control loop to tear down the current link or demo and
// connect to target (empty re-resolves the configured target). It never
// blocks. It returns false when the request was dropped because a connect
// attempt is already running or another request is pending.
func (s *Supervisor) Reconnect(target string) bool {
	if s.State() == logic.LinkConnecting {
		return false
	}
	select {
	case s.reconnect <- target:
		return true
	default:
		return false
	}
}

// Send delivers a command to the device, or to the demo generator in DEMO.
// Invalid commands return a *protocol.ValidationError and are never written.
func (s *Supervisor) Send(cmd protocol.Command) error {
	token, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}
	switch s.State() {
	case logic.LinkDemo:
		log.Printf("supervisor: demo applied %s", token)
		return s.demo.Apply(cmd)
	case logic.LinkConnected:
		err := s.session.Write(token)
		if errors.Is(err, serial.ErrClosed) {
			return ErrNotConnected
		}
		if err == nil {
			log.Printf("supervisor: sent %s", token)
		}
		return err
	}
	return ErrNotConnected
}

type connectResult struct {
	target string
	err    error
}

// worker is the running read loop or demo loop.
type worker struct {
	stop chan struct{}
	done chan struct{}
	lost chan error // read loop only
}

func newWorker() *worker {
	return &worker{
		stop: make(chan struct{}),
		done: make(chan struct{}),
		lost: make(chan error, 1),
	}
}

func (w *worker) halt() {
	close(w.stop)
	<-w.done
}

// Run drives the link until ctx is cancelled. It returns a non-nil error
// only when the initial connection fails and demo fallback is disabled.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.events)

	results := make(chan connectResult, 1)
	connecting := false
	startup := true
	var w *worker
	var retry <-chan time.Time

	stopWorker := func() {
		if w != nil {
			w.halt()
			w = nil
		}
	}
	defer func() {
		stopWorker()
		if connecting {
			<-results
		}
		s.session.Close()
	}()

	// attempt resolves the target and starts a connect goroutine.
	attempt := func(requested string, ev logic.LinkEvent) error {
		target, err := s.resolve(requested)
		if err != nil {
			return err
		}
		s.transition(ctx, ev, target, nil)
		connecting = true
		go func() {
			results <- connectResult{target: target, err: s.session.Connect(ctx, target)}
		}()
		return nil
	}

	// giveUp handles a failed or impossible connection.
	giveUp := func(cause error) error {
		if s.cfg.DemoFallback {
			ev := logic.EventFallback
			if s.State() == logic.LinkConnecting {
				ev = logic.EventExhausted
			}
			s.transition(ctx, ev, "", cause)
			w = s.startDemo()
			return nil
		}
		if s.State() == logic.LinkConnecting {
			s.transition(ctx, logic.EventFailed, "", cause)
		}
		if startup {
			return cause
		}
		if s.cfg.RetryInterval > 0 {
			retry = time.After(s.cfg.RetryInterval)
		}
		return nil
	}

	afterLoss := func(cause error) error {
		if s.cfg.OnLinkLost == PolicyDemo {
			s.transition(ctx, logic.EventFallback, "", cause)
			w = s.startDemo()
			return nil
		}
		if err := attempt(s.Target(), logic.EventAttempt); err != nil {
			return giveUp(err)
		}
		return nil
	}

	if err := attempt(s.cfg.Target, logic.EventAttempt); err != nil {
		if err := giveUp(err); err != nil {
			return err
		}
		startup = false
	}

	health := time.NewTicker(s.cfg.HealthInterval)
	defer health.Stop()

	for {
		var lost <-chan error
		if w != nil {
			lost = w.lost
		}

		select {
		case <-ctx.Done():
			return nil

		case res := <-results:
			connecting = false
			if res.err == nil {
				s.transition(ctx, logic.EventSuccess, res.target, nil)
				startup = false
				w = s.startReader(res.target)
				continue
			}
			log.Printf("supervisor: %v", res.err)
			if ctx.Err() != nil {
				return nil
			}
			if err := giveUp(res.err); err != nil {
				return err
			}
			startup = false

		case req := <-s.reconnect:
			if _, ok := logic.NextLinkState(s.State(), logic.EventUserReconnect); !ok {
				log.Printf("supervisor: reconnect ignored in state %s", s.State())
				continue
			}
			target, err := s.resolve(req)
			if err != nil {
				log.Printf("supervisor: reconnect: %v", err)
				continue
			}
			stopWorker()
			s.session.Close()
			retry = nil
			attempt(target, logic.EventUserReconnect)

		case err := <-lost:
			stopWorker()
			s.session.Close()
			s.transition(ctx, logic.EventLinkLost, "", err)
			afterLoss(err)

		case <-health.C:
			if s.State() != logic.LinkConnected {
				continue
			}
			if err := s.session.Check(); err != nil {
				log.Printf("supervisor: health check failed: %v", err)
				stopWorker()
				s.session.Close()
				s.transition(ctx, logic.EventLinkLost, "", err)
				afterLoss(err)
			}

		case <-retry:
			retry = nil
			if s.State() != logic.LinkDisconnected {
				continue
			}
			if err := attempt(s.Target(), logic.EventAttempt); err != nil {
				giveUp(err)
			}
		}
	}
}

// resolve picks the port to connect to. Resolution failures are reported
// as a *serial.ConnectError with no attempts.
func (s *Supervisor) resolve(requested string) (string, error) {
	if requested == "" {
		requested = s.cfg.Target
	}
	if requested != "" {
		return requested, nil
	}
	if s.lister == nil {
		return "", &serial.ConnectError{Err: serial.ErrNoTarget}
	}
	target, err := serial.FirstPort(s.lister)
	if err != nil {
		return "", &serial.ConnectError{Err: err}
	}
	return target, nil
}

// transition applies ev and publishes the new state. Invalid events are
// logged and ignored.
func (s *Supervisor) transition(ctx context.Context, ev logic.LinkEvent, target string, cause error) {
	s.mu.Lock()
	from := s.state
	next, ok := logic.NextLinkState(from, ev)
	if ok {
		s.state = next
		if target != "" {
			s.target = target
		}
	}
	target = s.target
	s.mu.Unlock()

	if !ok {
		log.Printf("supervisor: ignoring %s in state %s", ev, from)
		return
	}
	if cause != nil {
		log.Printf("supervisor: %s -> %s (%s): %v", from, next, ev, cause)
	} else {
		log.Printf("supervisor: %s -> %s (%s) %s", from, next, ev, target)
	}

	select {
	case s.events <- Event{Kind: KindState, Time: s.now(), State: next, Target: target, Cause: cause}:
	case <-ctx.Done():
	}
}

func (s *Supervisor) startReader(target string) *worker {
	w := newWorker()
	go s.readLoop(w, target)
	return w
}

func (s *Supervisor) startDemo() *worker {
	w := newWorker()
	go s.demoLoop(w)
	return w
}

func (s *Supervisor) readLoop(w *worker, target string) {
	defer close(w.done)

	for {
		select {
		case <-w.stop:
			return
		default:
		}

		line, err := s.session.Read()
		switch {
		case err == nil:
			s.emit(w, s.lineEvent(line))
		case errors.Is(err, serial.ErrWouldBlock):
			select {
			case <-w.stop:
				return
			case <-time.After(s.cfg.PollInterval):
			}
		default:
			if errors.Is(err, serial.ErrClosed) {
				err = &serial.LinkLostError{Target: target, Op: "read", Err: err}
			}
			w.lost <- err
			return
		}
	}
}

func (s *Supervisor) lineEvent(line string) Event {
	now := s.now()
	if !protocol.IsTelemetry(line) {
		log.Printf("device: %s", line)
		return Event{Kind: KindMessage, Time: now, Line: line}
	}
	rec, err := protocol.Parse(line, now)
	if err != nil {
		return Event{Kind: KindParseError, Time: now, Line: line, Err: err}
	}
	return Event{Kind: KindStatus, Time: now, Record: rec, Source: SourceDevice}
}

func (s *Supervisor) demoLoop(w *worker) {
	defer close(w.done)
	log.Printf("supervisor: demo telemetry started")

	for {
		now := s.now()
		s.emit(w, Event{Kind: KindStatus, Time: now, Record: s.demo.Next(now), Source: SourceDemo})

		t := time.NewTimer(s.demo.Interval())
		select {
		case <-w.stop:
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (s *Supervisor) emit(w *worker, ev Event) {
	select {
	case s.events <- ev:
	case <-w.stop:
	}
}

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyReconnect, PolicyDemo:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown link-lost policy %q (want reconnect or demo)", s)
}
