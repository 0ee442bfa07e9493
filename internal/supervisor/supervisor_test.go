package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/gas-monitor/internal/logic"
	"github.com/sweeney/gas-monitor/internal/protocol"
	"github.com/sweeney/gas-monitor/internal/serial"
)

const line = "GAS:120,LED:OFF,BUZZER:OFF,AUTO:ON,THRESHOLD:400"

type fakeDemo struct {
	mu      sync.Mutex
	gas     int
	applied []protocol.Command
}

func (d *fakeDemo) Next(now time.Time) protocol.StatusRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gas += 20
	return protocol.StatusRecord{Gas: d.gas, LED: protocol.Off, Buzzer: protocol.Off, Auto: protocol.On, Threshold: 400, Timestamp: now}
}

func (d *fakeDemo) Interval() time.Duration { return time.Millisecond }

func (d *fakeDemo) Apply(cmd protocol.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.applied = append(d.applied, cmd)
	return nil
}

func (d *fakeDemo) Applied() []protocol.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]protocol.Command(nil), d.applied...)
}

func newSession(o *serial.FakeOpener) *serial.Session {
	return serial.NewSession(o, serial.SessionOptions{})
}

func testConfig() Config {
	return Config{
		Target:         "tty",
		DemoFallback:   true,
		OnLinkLost:     PolicyDemo,
		HealthInterval: time.Hour,
		PollInterval:   time.Millisecond,
	}
}

// start runs sup in the background and stops it when the test ends.
func start(t *testing.T, sup *Supervisor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
}

// waitFor discards events until one matches.
func waitFor(t *testing.T, sup *Supervisor, what string, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sup.Events():
			if !ok {
				t.Fatalf("event stream closed waiting for %s", what)
			}
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func waitState(t *testing.T, sup *Supervisor, want logic.LinkState) Event {
	t.Helper()
	return waitFor(t, sup, string(want), func(ev Event) bool {
		return ev.Kind == KindState && ev.State == want
	})
}

func waitStatus(t *testing.T, sup *Supervisor, src Source) Event {
	t.Helper()
	return waitFor(t, sup, "status from "+string(src), func(ev Event) bool {
		return ev.Kind == KindStatus && ev.Source == src
	})
}

func TestConnectAndRead(t *testing.T) {
	o := serial.NewFakeOpener()
	o.Add("tty", serial.NewFakePort(line, "THRESHOLD SET", "GAS:abc"))
	sup := New(testConfig(), newSession(o), o, &fakeDemo{})
	start(t, sup)

	want := []struct {
		kind  EventKind
		state logic.LinkState
	}{
		{KindState, logic.LinkConnecting},
		{KindState, logic.LinkConnected},
		{KindStatus, ""},
		{KindMessage, ""},
		{KindParseError, ""},
	}
	for i, w := range want {
		ev := waitFor(t, sup, string(w.kind), func(Event) bool { return true })
		if ev.Kind != w.kind || ev.State != w.state {
			t.Fatalf("event %d = %s %s, want %s %s", i, ev.Kind, ev.State, w.kind, w.state)
		}
		switch ev.Kind {
		case KindStatus:
			if ev.Source != SourceDevice || ev.Record.Gas != 120 || ev.Record.Threshold != 400 {
				t.Errorf("status = %+v", ev)
			}
		case KindMessage:
			if ev.Line != "THRESHOLD SET" {
				t.Errorf("message = %q", ev.Line)
			}
		case KindParseError:
			var pe *protocol.ParseError
			if !errors.As(ev.Err, &pe) {
				t.Errorf("parse error = %v, want *protocol.ParseError", ev.Err)
			}
		case KindState:
			if ev.Target != "tty" {
				t.Errorf("target = %q, want tty", ev.Target)
			}
		}
	}
	if sup.State() != logic.LinkConnected {
		t.Errorf("State() = %s", sup.State())
	}
}

func TestExhaustionFallsBackToDemoUntilReconnect(t *testing.T) {
	o := serial.NewFakeOpener()
	o.Add("tty", serial.NewFakePort(line))
	o.FailNext(3, serial.ErrPortBusy)
	sup := New(testConfig(), newSession(o), o, &fakeDemo{})
	start(t, sup)

	waitState(t, sup, logic.LinkConnecting)
	ev := waitState(t, sup, logic.LinkDemo)
	var ce *serial.ConnectError
	if !errors.As(ev.Cause, &ce) || ce.Attempts != 3 {
		t.Fatalf("cause = %v, want ConnectError after 3 attempts", ev.Cause)
	}

	first := waitStatus(t, sup, SourceDemo)
	second := waitStatus(t, sup, SourceDemo)
	if second.Record.Gas <= first.Record.Gas {
		t.Errorf("demo records not advancing: %d then %d", first.Record.Gas, second.Record.Gas)
	}

	if !sup.Reconnect("tty") {
		t.Fatal("Reconnect from DEMO was refused")
	}
	waitState(t, sup, logic.LinkConnecting)
	waitState(t, sup, logic.LinkConnected)
	rec := waitStatus(t, sup, SourceDevice)
	if rec.Record.Gas != 120 {
		t.Errorf("device gas = %d, want 120", rec.Record.Gas)
	}
}

func TestStartupFailureWithoutFallback(t *testing.T) {
	o := serial.NewFakeOpener()
	o.FailNext(3, serial.ErrPortBusy)
	cfg := testConfig()
	cfg.DemoFallback = false
	sup := New(cfg, newSession(o), o, &fakeDemo{})

	err := sup.Run(context.Background())

	var ce *serial.ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("Run = %v, want *serial.ConnectError", err)
	}
	if sup.State() != logic.LinkDisconnected {
		t.Errorf("state = %s, want DISCONNECTED", sup.State())
	}
	if _, ok := <-sup.Events(); !ok {
		t.Fatal("expected buffered events before close")
	}
}

func TestNoPorts(t *testing.T) {
	tests := []struct {
		name     string
		fallback bool
	}{
		{"fallback", true},
		{"terminal", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := serial.NewFakeOpener()
			cfg := testConfig()
			cfg.Target = ""
			cfg.DemoFallback = tt.fallback
			sup := New(cfg, newSession(o), o, &fakeDemo{})

			if !tt.fallback {
				err := sup.Run(context.Background())
				if !errors.Is(err, serial.ErrNoTarget) {
					t.Fatalf("Run = %v, want ErrNoTarget", err)
				}
				return
			}

			start(t, sup)
			ev := waitFor(t, sup, "first state", func(ev Event) bool { return ev.Kind == KindState })
			if ev.State != logic.LinkDemo {
				t.Fatalf("first state = %s, want DEMO without a connect attempt", ev.State)
			}
			if o.Opens() != 0 {
				t.Errorf("opens = %d, want 0", o.Opens())
			}
		})
	}
}

func TestEmptyTargetUsesFirstPort(t *testing.T) {
	o := serial.NewFakeOpener()
	o.Add("/dev/ttyACM0", serial.NewFakePort(line))
	cfg := testConfig()
	cfg.Target = ""
	sup := New(cfg, newSession(o), o, &fakeDemo{})
	start(t, sup)

	ev := waitState(t, sup, logic.LinkConnected)
	if ev.Target != "/dev/ttyACM0" {
		t.Errorf("target = %q, want /dev/ttyACM0", ev.Target)
	}
}

func TestReconnectIgnoredWhileConnecting(t *testing.T) {
	release := make(chan struct{})
	o := serial.NewFakeOpener()
	o.Add("tty", serial.NewFakePort())
	o.FailNext(3, serial.ErrPortBusy)
	session := serial.NewSession(o, serial.SessionOptions{
		OnRetry: func(error, time.Duration) { <-release },
	})
	sup := New(testConfig(), session, o, &fakeDemo{})
	start(t, sup)

	waitState(t, sup, logic.LinkConnecting)
	if sup.Reconnect("other") {
		t.Error("Reconnect accepted while CONNECTING")
	}

	close(release)
	waitState(t, sup, logic.LinkDemo)
	if got := sup.Target(); got != "tty" {
		t.Errorf("target = %q, want tty", got)
	}
}

func TestHealthCheckFailureLosesLink(t *testing.T) {
	o := serial.NewFakeOpener()
	o.Add("tty", serial.NewFakePort())
	cfg := testConfig()
	cfg.HealthInterval = 5 * time.Millisecond
	sup := New(cfg, newSession(o), o, &fakeDemo{})
	start(t, sup)

	waitState(t, sup, logic.LinkConnected)
	o.Remove("tty")

	ev := waitState(t, sup, logic.LinkDisconnected)
	var lle *serial.LinkLostError
	if !errors.As(ev.Cause, &lle) {
		t.Fatalf("cause = %v, want *serial.LinkLostError", ev.Cause)
	}
	waitState(t, sup, logic.LinkDemo)
	waitStatus(t, sup, SourceDemo)
}

func TestLinkLostReconnectPolicy(t *testing.T) {
	first := serial.NewFakePort()
	o := serial.NewFakeOpener()
	o.Add("tty", first)
	cfg := testConfig()
	cfg.OnLinkLost = PolicyReconnect
	sup := New(cfg, newSession(o), o, &fakeDemo{})
	start(t, sup)

	waitState(t, sup, logic.LinkConnected)
	o.Add("tty", serial.NewFakePort(line))
	first.FailReads(errors.New("input/output error"))

	waitState(t, sup, logic.LinkDisconnected)
	waitState(t, sup, logic.LinkConnecting)
	waitState(t, sup, logic.LinkConnected)
	waitStatus(t, sup, SourceDevice)
}

func TestRetryWhileDisconnected(t *testing.T) {
	first := serial.NewFakePort()
	o := serial.NewFakeOpener()
	o.Add("tty", first)
	cfg := testConfig()
	cfg.DemoFallback = false
	cfg.OnLinkLost = PolicyReconnect
	cfg.RetryInterval = 10 * time.Millisecond
	sup := New(cfg, newSession(o), o, &fakeDemo{})
	start(t, sup)

	waitState(t, sup, logic.LinkConnected)
	o.Add("tty", serial.NewFakePort(line))
	o.FailNext(3, serial.ErrPortBusy)
	first.FailReads(errors.New("input/output error"))

	waitState(t, sup, logic.LinkDisconnected)
	waitState(t, sup, logic.LinkConnecting)
	ev := waitState(t, sup, logic.LinkDisconnected)
	if ev.Cause == nil {
		t.Error("failed attempt should carry a cause")
	}
	waitState(t, sup, logic.LinkConnecting)
	waitState(t, sup, logic.LinkConnected)
	waitStatus(t, sup, SourceDevice)
}

func TestRetryUsesMostRecentTarget(t *testing.T) {
	second := serial.NewFakePort()
	o := serial.NewFakeOpener()
	o.Add("tty", serial.NewFakePort())
	o.Add("other", second)
	cfg := testConfig()
	cfg.DemoFallback = false
	cfg.OnLinkLost = PolicyReconnect
	cfg.RetryInterval = 10 * time.Millisecond
	sup := New(cfg, newSession(o), o, &fakeDemo{})
	start(t, sup)

	waitState(t, sup, logic.LinkConnected)
	if !sup.Reconnect("other") {
		t.Fatal("Reconnect refused")
	}
	waitState(t, sup, logic.LinkConnecting)
	waitState(t, sup, logic.LinkConnected)

	// Only the port picked by the user can come back.
	o.Remove("tty")
	o.Add("other", serial.NewFakePort(line))
	o.FailNext(3, serial.ErrPortBusy)
	second.FailReads(errors.New("input/output error"))

	waitState(t, sup, logic.LinkDisconnected)
	waitState(t, sup, logic.LinkConnecting)
	waitState(t, sup, logic.LinkDisconnected)
	waitState(t, sup, logic.LinkConnecting)
	ev := waitState(t, sup, logic.LinkConnected)
	if ev.Target != "other" {
		t.Errorf("retry connected to %q, want other", ev.Target)
	}
	waitStatus(t, sup, SourceDevice)
}

func TestSend(t *testing.T) {
	t.Run("disconnected", func(t *testing.T) {
		sup := New(testConfig(), newSession(serial.NewFakeOpener()), nil, &fakeDemo{})
		if err := sup.Send(protocol.SetLED(true)); !errors.Is(err, ErrNotConnected) {
			t.Errorf("err = %v, want ErrNotConnected", err)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		sup := New(testConfig(), newSession(serial.NewFakeOpener()), nil, &fakeDemo{})
		var ve *protocol.ValidationError
		if err := sup.Send(protocol.SetThreshold(1024)); !errors.As(err, &ve) {
			t.Errorf("err = %v, want *protocol.ValidationError", err)
		}
	})

	t.Run("connected", func(t *testing.T) {
		port := serial.NewFakePort()
		o := serial.NewFakeOpener()
		o.Add("tty", port)
		sup := New(testConfig(), newSession(o), o, &fakeDemo{})
		start(t, sup)
		waitState(t, sup, logic.LinkConnected)

		if err := sup.Send(protocol.SetThreshold(350)); err != nil {
			t.Fatalf("Send: %v", err)
		}
		got := port.Written()
		if len(got) != 1 || got[0] != "THRESHOLD_350\n" {
			t.Errorf("written = %q", got)
		}
	})

	t.Run("demo", func(t *testing.T) {
		d := &fakeDemo{}
		o := serial.NewFakeOpener()
		o.FailNext(3, serial.ErrPortNotFound)
		sup := New(testConfig(), newSession(o), o, d)
		start(t, sup)
		waitState(t, sup, logic.LinkDemo)

		if err := sup.Send(protocol.SetAuto(false)); err != nil {
			t.Fatalf("Send: %v", err)
		}
		applied := d.Applied()
		if len(applied) != 1 || applied[0].Kind != protocol.CmdAutoOff {
			t.Errorf("applied = %v", applied)
		}
	})
}

func TestParsePolicy(t *testing.T) {
	for _, s := range []string{"reconnect", "demo"} {
		if _, err := ParsePolicy(s); err != nil {
			t.Errorf("ParsePolicy(%q): %v", s, err)
		}
	}
	if _, err := ParsePolicy("panic"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
