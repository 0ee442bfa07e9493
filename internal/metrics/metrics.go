// Package metrics defines the Prometheus collectors exported by the daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/gas-monitor/internal/logic"
	"github.com/sweeney/gas-monitor/internal/mqtt"
)

const namespace = "gasmonitor"

var linkStates = []logic.LinkState{
	logic.LinkDisconnected,
	logic.LinkConnecting,
	logic.LinkConnected,
	logic.LinkDemo,
}

// Metrics holds every collector, registered on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	GasValue        prometheus.Gauge
	Threshold       prometheus.Gauge
	Alarm           prometheus.Gauge
	Readings        *prometheus.CounterVec // by source
	ReadingsLogged  prometheus.Counter
	ParseErrors     prometheus.Counter
	DeviceMessages  prometheus.Counter
	LinkState       *prometheus.GaugeVec // one series per state, 1 for the current
	LinkTransitions *prometheus.CounterVec
	LogEntries      prometheus.Gauge
	LogPruned       prometheus.Counter
	PersistFailures prometheus.Counter
	PublishFailures prometheus.Counter
	CommandsSent    *prometheus.CounterVec // by result
}

// New creates the collectors and registers them, along with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		GasValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gas_value",
			Help:      "Most recent gas reading (raw 0-1023)",
		}),
		Threshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threshold",
			Help:      "Alarm threshold reported by the device",
		}),
		Alarm: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alarm",
			Help:      "1 while the gas reading is above the threshold",
		}),
		Readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "readings",
			Name:      "total",
			Help:      "Status records received",
		}, []string{"source"}),
		ReadingsLogged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "readings",
			Name:      "logged_total",
			Help:      "Readings accepted by the delta filter and logged",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lines",
			Name:      "parse_errors_total",
			Help:      "Telemetry lines that failed to parse",
		}),
		DeviceMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lines",
			Name:      "messages_total",
			Help:      "Non-telemetry lines received from the device",
		}),
		LinkState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "state",
			Help:      "Current link state (1 for the active state, 0 otherwise)",
		}, []string{"state"}),
		LinkTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "transitions_total",
			Help:      "Link state transitions by destination state",
		}, []string{"state"}),
		LogEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "entries",
			Help:      "Entries in the reading log",
		}),
		LogPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "pruned_total",
			Help:      "Entries removed by retention pruning",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "persist_failures_total",
			Help:      "Failed snapshot writes",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "publish_failures_total",
			Help:      "MQTT publishes that returned an error",
		}),
		CommandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "total",
			Help:      "Commands submitted by result (ok, rejected, failed)",
		}, []string{"result"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.GasValue,
		m.Threshold,
		m.Alarm,
		m.Readings,
		m.ReadingsLogged,
		m.ParseErrors,
		m.DeviceMessages,
		m.LinkState,
		m.LinkTransitions,
		m.LogEntries,
		m.LogPruned,
		m.PersistFailures,
		m.PublishFailures,
		m.CommandsSent,
	)
	m.SetLinkState(logic.LinkDisconnected)
	return m
}

// SetLinkState marks state as the only active link state.
func (m *Metrics) SetLinkState(state logic.LinkState) {
	for _, s := range linkStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.LinkState.WithLabelValues(string(s)).Set(v)
	}
}

// Backlog is the offline queue of a publisher. *mqtt.RealPublisher
// implements it.
type Backlog interface {
	Buffered() int
	Dropped(kind mqtt.Kind) uint64
}

// WatchBacklog exports the size of b and the messages it has dropped.
// The values are read at scrape time.
func (m *Metrics) WatchBacklog(b Backlog) {
	m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "mqtt",
		Name:      "buffered",
		Help:      "Messages waiting for the broker connection",
	}, func() float64 { return float64(b.Buffered()) }))

	for _, kind := range []mqtt.Kind{mqtt.KindTelemetry, mqtt.KindSystem} {
		m.Registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "mqtt",
			Name:        "buffer_dropped_total",
			Help:        "Messages discarded because the offline backlog was full",
			ConstLabels: prometheus.Labels{"kind": kind.String()},
		}, func() float64 { return float64(b.Dropped(kind)) }))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
