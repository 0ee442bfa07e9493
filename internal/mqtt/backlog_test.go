package mqtt

import (
	"fmt"
	"testing"
)

func reading(gas int) message {
	return message{kind: KindTelemetry, topic: Topic, payload: []byte(fmt.Sprintf(`{"gas":{"value":%d}}`, gas))}
}

func linkEvent(state string) message {
	return message{kind: KindSystem, topic: TopicSystem, qos: 1, payload: []byte(`{"event":"LINK","reason":"` + state + `"}`)}
}

func payloads(msgs []message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.payload)
	}
	return out
}

func TestBacklogEmptyDrain(t *testing.T) {
	b := newBacklog(10, 10)
	if got := b.drain(); got != nil {
		t.Errorf("expected nil from empty drain, got %d messages", len(got))
	}
}

func TestBacklogReplaysInPublishOrder(t *testing.T) {
	b := newBacklog(10, 10)
	b.add(reading(120))
	b.add(linkEvent("DEMO"))
	b.add(reading(130))
	b.add(reading(145))
	b.add(linkEvent("CONNECTED"))

	got := payloads(b.drain())
	want := payloads([]message{reading(120), linkEvent("DEMO"), reading(130), reading(145), linkEvent("CONNECTED")})
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d: got %s, want %s", i, got[i], want[i])
		}
	}
	if b.len() != 0 {
		t.Errorf("len after drain = %d", b.len())
	}
	if again := b.drain(); again != nil {
		t.Errorf("second drain returned %d messages", len(again))
	}
}

func TestBacklogReadingsCannotEvictLinkEvents(t *testing.T) {
	b := newBacklog(3, 2)
	b.add(linkEvent("DISCONNECTED"))
	for gas := 100; gas < 110; gas++ {
		b.add(reading(gas))
	}

	got := payloads(b.drain())
	want := payloads([]message{linkEvent("DISCONNECTED"), reading(107), reading(108), reading(109)})
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d: got %s, want %s", i, got[i], want[i])
		}
	}
	if b.dropped[KindTelemetry] != 7 || b.dropped[KindSystem] != 0 {
		t.Errorf("dropped = %v, want [7 0]", b.dropped)
	}
}

func TestBacklogSystemOverflowDropsOldest(t *testing.T) {
	b := newBacklog(10, 2)
	for _, state := range []string{"CONNECTING", "CONNECTED", "DISCONNECTED", "DEMO"} {
		b.add(linkEvent(state))
	}

	got := payloads(b.drain())
	if len(got) != 2 || got[0] != string(linkEvent("DISCONNECTED").payload) || got[1] != string(linkEvent("DEMO").payload) {
		t.Errorf("got %v, want the two most recent LINK events", got)
	}
	if b.dropped[KindSystem] != 2 {
		t.Errorf("system dropped = %d, want 2", b.dropped[KindSystem])
	}
}

func TestBacklogDroppedSurvivesDrain(t *testing.T) {
	b := newBacklog(1, 1)
	b.add(reading(100))
	b.add(reading(200))
	b.drain()
	b.add(reading(300))
	b.add(reading(400))

	if b.dropped[KindTelemetry] != 2 {
		t.Errorf("dropped = %d, want 2", b.dropped[KindTelemetry])
	}
	if b.len() != 1 {
		t.Errorf("len = %d, want 1", b.len())
	}
}

func TestBacklogPreservesFields(t *testing.T) {
	b := newBacklog(5, 5)
	b.add(message{kind: KindSystem, topic: TopicSystem, payload: []byte(`{"event":"STARTUP"}`), qos: 1, retained: true})

	got := b.drain()
	if len(got) != 1 {
		t.Fatalf("got %d messages", len(got))
	}
	m := got[0]
	if m.topic != TopicSystem || m.qos != 1 || !m.retained || m.kind != KindSystem {
		t.Errorf("fields not preserved: %+v", m)
	}
}

func TestKindString(t *testing.T) {
	if KindTelemetry.String() != "telemetry" || KindSystem.String() != "system" {
		t.Errorf("got %s, %s", KindTelemetry, KindSystem)
	}
}
