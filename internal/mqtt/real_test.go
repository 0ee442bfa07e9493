package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu      sync.Mutex
	open    bool
	err     error
	sent    []published
	stopped bool
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return doneToken{err: c.err}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}

func newTestPublisher(c *fakeClient) *RealPublisher {
	return &RealPublisher{
		client:    c,
		backlog:   newBacklog(telemetryBacklog, systemBacklog),
		online:    c.open,
		connected: c.open,
	}
}

func TestRealPublisherSendsWhenConnected(t *testing.T) {
	c := &fakeClient{open: true}
	p := newTestPublisher(c)

	if err := p.Publish(testRecord(300), "device"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("PublishSystem: %v", err)
	}

	if len(c.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(c.sent))
	}
	if c.sent[0].topic != Topic || c.sent[0].qos != 0 || c.sent[0].retained {
		t.Errorf("telemetry message: %+v", c.sent[0])
	}
	if c.sent[1].topic != TopicSystem || c.sent[1].qos != 1 || !c.sent[1].retained {
		t.Errorf("system message: %+v", c.sent[1])
	}
	if p.Buffered() != 0 {
		t.Errorf("expected nothing buffered, got %d", p.Buffered())
	}
}

func TestRealPublisherPublishError(t *testing.T) {
	c := &fakeClient{open: true, err: errors.New("not authorized")}
	p := newTestPublisher(c)

	if err := p.Publish(testRecord(300), "device"); err == nil {
		t.Error("expected publish error")
	}
}

func TestRealPublisherBuffersAndReplaysInOrder(t *testing.T) {
	c := &fakeClient{open: false}
	p := newTestPublisher(c)
	p.connected = true // lost after an earlier connection

	for _, gas := range []int{100, 120, 140} {
		if err := p.Publish(testRecord(gas), "device"); err != nil {
			t.Fatalf("Publish while offline: %v", err)
		}
	}
	p.PublishSystem(SystemEvent{Event: "LINK", Reason: "DEMO"})

	if len(c.sent) != 0 {
		t.Fatalf("nothing should be sent while offline, got %d", len(c.sent))
	}
	if p.Buffered() != 4 {
		t.Fatalf("expected 4 buffered, got %d", p.Buffered())
	}

	c.open = true
	p.onConnect()

	if len(c.sent) != 5 {
		t.Fatalf("expected 4 replayed + RECONNECTED, got %d", len(c.sent))
	}
	for i, gas := range []int{100, 120, 140} {
		want, _ := FormatPayload(testRecord(gas), "device")
		if string(c.sent[i].payload) != string(want) {
			t.Errorf("replay %d: got %s, want %s", i, c.sent[i].payload, want)
		}
	}
	if c.sent[3].topic != TopicSystem {
		t.Errorf("replay 3 topic: got %s", c.sent[3].topic)
	}
	if c.sent[4].topic != TopicSystem {
		t.Errorf("RECONNECTED topic: got %s", c.sent[4].topic)
	}
	if p.Buffered() != 0 {
		t.Errorf("buffer not drained: %d", p.Buffered())
	}
}

func TestRealPublisherFirstConnectIsQuiet(t *testing.T) {
	c := &fakeClient{open: true}
	p := newTestPublisher(c)
	p.connected = false

	p.onConnect()

	if len(c.sent) != 0 {
		t.Errorf("first connect should not announce RECONNECTED, sent %d", len(c.sent))
	}
}

func TestRealPublisherBuffersAfterConnectionLost(t *testing.T) {
	c := &fakeClient{open: true}
	p := newTestPublisher(c)

	// paho may still report the socket open while the lost handler runs.
	p.onConnectionLost(errors.New("EOF"))
	if err := p.Publish(testRecord(450), "device"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(c.sent) != 0 {
		t.Fatalf("sent %d messages after connection lost", len(c.sent))
	}
	if p.Buffered() != 1 {
		t.Fatalf("expected 1 buffered, got %d", p.Buffered())
	}

	p.onConnect()
	if p.Buffered() != 0 {
		t.Errorf("backlog not replayed: %d left", p.Buffered())
	}
	if err := p.Publish(testRecord(460), "device"); err != nil {
		t.Fatalf("Publish after reconnect: %v", err)
	}
	// reading 450, RECONNECTED, reading 460
	if len(c.sent) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(c.sent))
	}
	want, _ := FormatPayload(testRecord(460), "device")
	if string(c.sent[2].payload) != string(want) {
		t.Errorf("last message: got %s, want %s", c.sent[2].payload, want)
	}
}

func TestRealPublisherConcurrentPublishDuringReconnect(t *testing.T) {
	c := &fakeClient{open: false}
	p := newTestPublisher(c)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Publish(testRecord(100+i), "demo")
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.mu.Lock()
		c.open = true
		c.mu.Unlock()
		p.onConnect()
	}()
	wg.Wait()

	if p.Buffered() != 0 {
		t.Errorf("%d readings stranded in the backlog after connect", p.Buffered())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) != 50 {
		t.Errorf("sent %d readings, want 50", len(c.sent))
	}
}

func TestRealPublisherDropped(t *testing.T) {
	c := &fakeClient{open: false}
	p := &RealPublisher{client: c, backlog: newBacklog(2, 1)}

	for gas := range 5 {
		p.Publish(testRecord(gas), "device")
	}
	p.PublishSystem(SystemEvent{Event: "LINK", Reason: "DEMO"})
	p.PublishSystem(SystemEvent{Event: "LINK", Reason: "CONNECTED"})

	if got := p.Dropped(KindTelemetry); got != 3 {
		t.Errorf("telemetry dropped = %d, want 3", got)
	}
	if got := p.Dropped(KindSystem); got != 1 {
		t.Errorf("system dropped = %d, want 1", got)
	}
	if p.Buffered() != 3 {
		t.Errorf("buffered = %d, want 3", p.Buffered())
	}
}

func TestRealPublisherClose(t *testing.T) {
	c := &fakeClient{open: true}
	p := newTestPublisher(c)

	p.Close()

	if !c.stopped {
		t.Error("expected Disconnect")
	}
}
