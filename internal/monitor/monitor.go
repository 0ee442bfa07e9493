// Package monitor turns supervisor events into side effects: the delta gate
// decides what is logged, and every reading updates the status tracker,
// MQTT, the alarm line and metrics.
package monitor

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sweeney/gas-monitor/internal/gpio"
	"github.com/sweeney/gas-monitor/internal/logic"
	"github.com/sweeney/gas-monitor/internal/metrics"
	"github.com/sweeney/gas-monitor/internal/mqtt"
	"github.com/sweeney/gas-monitor/internal/status"
	"github.com/sweeney/gas-monitor/internal/store"
	"github.com/sweeney/gas-monitor/internal/supervisor"
)

// Options carries the optional outputs. Nil fields are skipped.
type Options struct {
	Publisher mqtt.Publisher
	Alarm     gpio.Alarm
	Metrics   *metrics.Metrics
	Retention time.Duration // age limit applied by prune requests; zero uses store.DefaultRetention
	// Network refreshes network info on each heartbeat. Nil leaves it unchanged.
	Network func() *status.NetworkInfo
}

// Monitor is the single writer of the status tracker.
type Monitor struct {
	store     *store.Store
	tracker   *status.Tracker
	publisher mqtt.Publisher
	mqttState mqtt.ConnectionStatus
	alarm     gpio.Alarm
	metrics   *metrics.Metrics
	retention time.Duration
	network   func() *status.NetworkInfo

	gate      logic.Gate
	alarmOn   bool
	prune     chan struct{}
	heartbeat chan struct{}
}

// New creates a monitor writing to st and tracker.
func New(st *store.Store, tracker *status.Tracker, opts Options) *Monitor {
	m := &Monitor{
		store:     st,
		tracker:   tracker,
		publisher: opts.Publisher,
		alarm:     opts.Alarm,
		metrics:   opts.Metrics,
		retention: opts.Retention,
		network:   opts.Network,
		prune:     make(chan struct{}, 1),
		heartbeat: make(chan struct{}, 1),
	}
	if m.retention <= 0 {
		m.retention = store.DefaultRetention
	}
	if cs, ok := opts.Publisher.(mqtt.ConnectionStatus); ok {
		m.mqttState = cs
	}
	tracker.SetLogEntries(st.Len())
	if m.metrics != nil {
		m.metrics.LogEntries.Set(float64(st.Len()))
	}
	return m
}

// RequestPrune asks the run loop to apply retention pruning. It never blocks;
// a request made while one is pending is merged with it.
func (m *Monitor) RequestPrune() {
	select {
	case m.prune <- struct{}{}:
	default:
	}
}

// RequestHeartbeat asks the run loop to publish a HEARTBEAT system event.
// It never blocks.
func (m *Monitor) RequestHeartbeat() {
	select {
	case m.heartbeat <- struct{}{}:
	default:
	}
}

// Run consumes events until the channel is closed or ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, events <-chan supervisor.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.Handle(ev)
		case <-m.prune:
			m.Prune()
		case <-m.heartbeat:
			m.Heartbeat(time.Now())
		}
	}
}

// Handle applies one event.
func (m *Monitor) Handle(ev supervisor.Event) {
	if m.mqttState != nil {
		m.tracker.SetMQTTConnected(m.mqttState.IsConnected())
	}

	switch ev.Kind {
	case supervisor.KindStatus:
		m.handleStatus(ev)
	case supervisor.KindState:
		m.handleState(ev)
	case supervisor.KindMessage:
		m.tracker.SetMessage(ev.Line)
		if m.metrics != nil {
			m.metrics.DeviceMessages.Inc()
		}
	case supervisor.KindParseError:
		log.Printf("monitor: dropped line: %v", ev.Err)
		m.tracker.CountParseError()
		if m.metrics != nil {
			m.metrics.ParseErrors.Inc()
		}
	}
}

func (m *Monitor) handleStatus(ev supervisor.Event) {
	rec := ev.Record
	accepted := m.gate.Offer(rec.Gas)

	if accepted {
		if err := m.store.Append(store.EntryFromStatus(rec)); err != nil {
			m.persistFailed(err)
		}
		if m.publisher != nil {
			if err := m.publisher.Publish(rec, string(ev.Source)); err != nil {
				log.Printf("monitor: publish error: %v", err)
				if m.metrics != nil {
					m.metrics.PublishFailures.Inc()
				}
			}
		}
	}

	m.tracker.SetReading(rec, string(ev.Source), accepted)
	m.tracker.SetLogEntries(m.store.Len())
	m.setAlarm(rec.Alarming())

	if m.metrics != nil {
		m.metrics.GasValue.Set(float64(rec.Gas))
		m.metrics.Threshold.Set(float64(rec.Threshold))
		m.metrics.Readings.WithLabelValues(string(ev.Source)).Inc()
		m.metrics.LogEntries.Set(float64(m.store.Len()))
		if accepted {
			m.metrics.ReadingsLogged.Inc()
		}
	}
}

func (m *Monitor) handleState(ev supervisor.Event) {
	m.tracker.SetLink(ev.State, ev.Target)

	// A new data source starts a fresh delta baseline.
	if ev.State == logic.LinkConnected || ev.State == logic.LinkDemo {
		m.gate.Reset()
	}

	if m.metrics != nil {
		m.metrics.SetLinkState(ev.State)
		m.metrics.LinkTransitions.WithLabelValues(string(ev.State)).Inc()
	}

	if m.publisher == nil {
		return
	}
	reason := string(ev.State)
	snap := m.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  ev.Time,
		Event:      "LINK",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "LINK", reason),
	}
	if err := m.publisher.PublishSystem(event); err != nil {
		log.Printf("monitor: publish link event: %v", err)
		if m.metrics != nil {
			m.metrics.PublishFailures.Inc()
		}
	}
}

func (m *Monitor) setAlarm(active bool) {
	if active == m.alarmOn {
		return
	}
	m.alarmOn = active
	if active {
		log.Printf("monitor: alarm on")
	} else {
		log.Printf("monitor: alarm off")
	}
	if m.metrics != nil {
		v := 0.0
		if active {
			v = 1
		}
		m.metrics.Alarm.Set(v)
	}
	if m.alarm == nil {
		return
	}
	if err := m.alarm.Set(active); err != nil {
		log.Printf("monitor: alarm output: %v", err)
	}
}

// Prune applies the retention limit to the log.
func (m *Monitor) Prune() {
	n, err := m.store.Prune(m.retention)
	if err != nil {
		m.persistFailed(err)
	}
	if n > 0 {
		log.Printf("monitor: pruned %d entries older than %v", n, m.retention)
	}
	m.tracker.SetLogEntries(m.store.Len())
	if m.metrics != nil {
		m.metrics.LogPruned.Add(float64(n))
		m.metrics.LogEntries.Set(float64(m.store.Len()))
	}
}

// Heartbeat refreshes connectivity in the tracker and publishes a HEARTBEAT
// event carrying the full status.
func (m *Monitor) Heartbeat(now time.Time) {
	if m.mqttState != nil {
		m.tracker.SetMQTTConnected(m.mqttState.IsConnected())
	}
	if m.network != nil {
		if info := m.network(); info != nil {
			m.tracker.SetNetwork(info)
		}
	}
	snap := m.tracker.Snapshot()
	log.Printf("heartbeat: uptime=%v link=%s readings=%d logged=%d entries=%d",
		snap.Uptime().Truncate(time.Second), snap.Link, snap.Counts.Readings, snap.Counts.Logged, snap.LogEntries)

	if m.publisher == nil {
		return
	}
	event := mqtt.SystemEvent{
		Timestamp:  now,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	}
	if err := m.publisher.PublishSystem(event); err != nil {
		log.Printf("monitor: heartbeat publish error: %v", err)
		if m.metrics != nil {
			m.metrics.PublishFailures.Inc()
		}
	}
}

func (m *Monitor) persistFailed(err error) {
	var pe *store.PersistenceError
	if errors.As(err, &pe) {
		log.Printf("monitor: log persistence: %v", pe)
	} else {
		log.Printf("monitor: log: %v", err)
	}
	if m.metrics != nil {
		m.metrics.PersistFailures.Inc()
	}
}

// Shutdown releases outputs and flushes the log. It must be called after Run
// has returned.
func (m *Monitor) Shutdown(reason string) error {
	if m.alarm != nil {
		m.setAlarm(false)
		if err := m.alarm.Close(); err != nil {
			log.Printf("monitor: close alarm: %v", err)
		}
	}
	if m.publisher != nil {
		snap := m.tracker.Snapshot()
		event := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "SHUTDOWN",
			Reason:     reason,
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
		}
		if err := m.publisher.PublishSystem(event); err != nil {
			log.Printf("monitor: publish shutdown event: %v", err)
		}
	}
	return m.store.Flush()
}
