package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/gas-monitor/internal/protocol"
)

func testRecord(gas int) protocol.StatusRecord {
	return protocol.StatusRecord{
		Gas:       gas,
		LED:       protocol.SwitchOf(gas > 400),
		Buzzer:    protocol.SwitchOf(gas > 400),
		Auto:      protocol.On,
		Threshold: 400,
		Timestamp: time.Date(2026, 2, 3, 10, 30, 0, 0, time.UTC),
	}
}

func TestFormatPayload(t *testing.T) {
	payload, err := FormatPayload(testRecord(450), "device")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"gas":{"timestamp":"2026-02-03T10:30:00Z","value":450,"threshold":400,"led":"ON","buzzer":"ON","auto":"ON","alarm":true,"source":"device"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatPayloadBelowThreshold(t *testing.T) {
	payload, err := FormatPayload(testRecord(400), "demo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Gas.Alarm {
		t.Error("gas equal to threshold should not alarm")
	}
	if parsed.Gas.LED != "OFF" {
		t.Errorf("LED: got %s, want OFF", parsed.Gas.LED)
	}
	if parsed.Gas.Source != "demo" {
		t.Errorf("Source: got %s, want demo", parsed.Gas.Source)
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("WIB", 7*60*60)
	rec := testRecord(100)
	rec.Timestamp = time.Date(2026, 2, 3, 17, 30, 0, 0, loc)

	payload, err := FormatPayload(rec, "device")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	json.Unmarshal(payload, &parsed)
	if parsed.Gas.Timestamp != "2026-02-03T10:30:00Z" {
		t.Errorf("timestamp not converted to UTC: %s", parsed.Gas.Timestamp)
	}
}

func TestTopics(t *testing.T) {
	if Topic != "sensors/gas-monitor/telemetry" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "sensors/gas-monitor/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T10:30:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload, got %s", payload)
	}
}

func TestFormatSystemPayloadReconnected(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.Publish(testRecord(120), "device"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Publish(testRecord(480), "device"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.Readings) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(f.Readings))
	}
	if f.Readings[0].Gas != 120 || f.Readings[1].Gas != 480 {
		t.Errorf("readings out of order: %d, %d", f.Readings[0].Gas, f.Readings[1].Gas)
	}
	if len(f.Payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(f.Payloads))
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")

	if err := f.Publish(testRecord(120), "device"); err == nil {
		t.Error("expected error")
	}
	if len(f.Readings) != 0 {
		t.Error("failed publish should not be recorded")
	}
}

func TestFakePublisherPublishSystem(t *testing.T) {
	f := NewFakePublisher()

	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "STARTUP", Retained: true})
	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "LINK", Reason: "DEMO"})

	if len(f.SystemEvents) != 2 {
		t.Fatalf("expected 2 system events, got %d", len(f.SystemEvents))
	}
	if !f.SystemEvents[0].Retained {
		t.Error("first event should have Retained=true")
	}
	if f.SystemEvents[1].Reason != "DEMO" {
		t.Errorf("second event reason: got %s", f.SystemEvents[1].Reason)
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(testRecord(120), "device")
	f.PublishSystem(SystemEvent{Event: "STARTUP"})
	f.Close()
	f.Connected = true

	f.Reset()

	if len(f.Readings) != 0 || len(f.SystemEvents) != 0 {
		t.Error("expected recorded events cleared")
	}
	if f.Closed || f.Connected {
		t.Error("expected flags cleared")
	}
}
