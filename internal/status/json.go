package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Link          LinkJSON     `json:"link"`
	Reading       *ReadingJSON `json:"reading"`
	LastMessage   string       `json:"last_message,omitempty"`
	LogEntries    int          `json:"log_entries"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// LinkJSON reports the device link.
type LinkJSON struct {
	State  string `json:"state"`
	Target string `json:"target"`
	Source string `json:"source,omitempty"`
}

// ReadingJSON is the most recent sensor reading.
type ReadingJSON struct {
	Gas       int    `json:"gas"`
	Threshold int    `json:"threshold"`
	LED       string `json:"led"`
	Buzzer    string `json:"buzzer"`
	Auto      string `json:"auto"`
	Alarm     bool   `json:"alarm"`
	Timestamp string `json:"timestamp"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of running counts.
type CountsJSON struct {
	Readings    int `json:"readings"`
	Logged      int `json:"logged"`
	ParseErrors int `json:"parse_errors"`
	Messages    int `json:"messages"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Port             string `json:"port"`
	Baud             int    `json:"baud"`
	LogPath          string `json:"log_path"`
	SaveEvery        int    `json:"save_every"`
	RetentionSeconds int64  `json:"retention_seconds"`
	DemoFallback     bool   `json:"demo_fallback"`
	LinkLostPolicy   string `json:"link_lost_policy"`
	Broker           string `json:"broker,omitempty"`
	HTTPAddr         string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	link := string(snap.Link)
	if link == "" {
		link = "UNKNOWN"
	}

	inner := StatusInner{
		Link:          LinkJSON{State: link, Target: snap.Target, Source: snap.Source},
		LastMessage:   snap.LastMessage,
		LogEntries:    snap.LogEntries,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Readings:    snap.Counts.Readings,
			Logged:      snap.Counts.Logged,
			ParseErrors: snap.Counts.ParseErrors,
			Messages:    snap.Counts.Messages,
		},
		Config: ConfigJSON{
			Port:             snap.Config.Port,
			Baud:             snap.Config.Baud,
			LogPath:          snap.Config.LogPath,
			SaveEvery:        snap.Config.SaveEvery,
			RetentionSeconds: int64(snap.Config.Retention.Seconds()),
			DemoFallback:     snap.Config.DemoFallback,
			LinkLostPolicy:   snap.Config.LinkLostPolicy,
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
		},
	}

	if snap.HasReading {
		r := snap.Reading
		inner.Reading = &ReadingJSON{
			Gas:       r.Gas,
			Threshold: r.Threshold,
			LED:       string(r.LED),
			Buzzer:    string(r.Buzzer),
			Auto:      string(r.Auto),
			Alarm:     r.Alarming(),
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
