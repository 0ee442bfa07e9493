// Package status provides a thread-safe status tracker for the gas-monitor daemon.
// It is written by the monitor pipeline and read by HTTP handlers and MQTT events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/gas-monitor/internal/logic"
	"github.com/sweeney/gas-monitor/internal/protocol"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Port           string
	Baud           int
	LogPath        string
	SaveEvery      int
	Retention      time.Duration
	DemoFallback   bool
	LinkLostPolicy string
	Broker         string
	HTTPAddr       string
}

// Counts are running totals since start.
type Counts struct {
	Readings    int // status records received
	Logged      int // readings accepted by the delta filter
	ParseErrors int
	Messages    int // non-telemetry device lines
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Reading       protocol.StatusRecord
	HasReading    bool
	Source        string // "device" or "demo"
	Link          logic.LinkState
	Target        string
	LastMessage   string
	LogEntries    int
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Alarming reports whether the last reading is above its threshold.
func (s Snapshot) Alarming() bool {
	return s.HasReading && s.Reading.Alarming()
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Link:      logic.LinkDisconnected,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetReading records the latest status record and whether it was logged.
func (t *Tracker) SetReading(rec protocol.StatusRecord, source string, logged bool) {
	t.mu.Lock()
	t.snap.Reading = rec
	t.snap.HasReading = true
	t.snap.Source = source
	t.snap.Counts.Readings++
	if logged {
		t.snap.Counts.Logged++
	}
	t.mu.Unlock()
}

// SetLink records the link state and target.
func (t *Tracker) SetLink(state logic.LinkState, target string) {
	t.mu.Lock()
	t.snap.Link = state
	t.snap.Target = target
	t.mu.Unlock()
}

// SetMessage records a device message.
func (t *Tracker) SetMessage(line string) {
	t.mu.Lock()
	t.snap.LastMessage = line
	t.snap.Counts.Messages++
	t.mu.Unlock()
}

// CountParseError increments the parse error counter.
func (t *Tracker) CountParseError() {
	t.mu.Lock()
	t.snap.Counts.ParseErrors++
	t.mu.Unlock()
}

// SetLogEntries records the number of entries in the log store.
func (t *Tracker) SetLogEntries(n int) {
	t.mu.Lock()
	t.snap.LogEntries = n
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
