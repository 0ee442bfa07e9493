package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/gas-monitor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"switchClass": func(s string) string {
		switch s {
		case "ON":
			return "on"
		case "OFF":
			return "off"
		}
		return "unknown"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Gas Monitor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.alarm { color: red; font-weight: bold; }
.normal { color: green; }
form { display: inline; }
</style>
</head>
<body>
<h1>Gas Monitor</h1>

<h2>Reading</h2>
<table>
{{if .HasReading}}<tr><th>Gas</th><td id="gas" class="{{if .Alarming}}alarm{{else}}normal{{end}}">{{.Reading.Gas}} ppm{{if .Alarming}} WARNING{{end}}</td></tr>
<tr><th>Threshold</th><td>{{.Reading.Threshold}}</td></tr>
<tr><th>LED</th><td class="{{switchClass (printf "%s" .Reading.LED)}}">{{stateOrUnknown (printf "%s" .Reading.LED)}}</td></tr>
<tr><th>Buzzer</th><td class="{{switchClass (printf "%s" .Reading.Buzzer)}}">{{stateOrUnknown (printf "%s" .Reading.Buzzer)}}</td></tr>
<tr><th>Auto</th><td class="{{switchClass (printf "%s" .Reading.Auto)}}">{{stateOrUnknown (printf "%s" .Reading.Auto)}}</td></tr>
<tr><th>Updated</th><td>{{.Reading.Timestamp.Format "2006-01-02 15:04:05"}} ({{.Source}})</td></tr>
{{else}}<tr><th>Gas</th><td id="gas" class="unknown">no reading yet</td></tr>{{end}}
</table>

<h2>Device</h2>
<table>
<tr><th>Link</th><td id="link" class="{{if eq (printf "%s" .Link) "CONNECTED"}}connected{{else if eq (printf "%s" .Link) "DEMO"}}unknown{{else}}disconnected{{end}}">{{stateOrUnknown (printf "%s" .Link)}}</td></tr>
<tr><th>Port</th><td>{{.Target}}</td></tr>
{{if .LastMessage}}<tr><th>Last message</th><td>{{.LastMessage}}</td></tr>{{end}}
</table>
{{if .Controls}}
<p>
{{range .Commands}}<form method="post" action="/command"><input type="hidden" name="cmd" value="{{.}}"><button>{{.}}</button></form>
{{end}}</p>
<p>
<form method="post" action="/command"><input name="cmd" placeholder="THRESHOLD_400" size="16"><button>Send</button></form>
<form method="post" action="/reconnect"><input name="target" placeholder="{{.Config.Port}}" size="16"><button>Reconnect</button></form>
</p>
{{end}}
<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}: {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Log</h2>
<table>
<tr><th>Entries</th><td>{{.LogEntries}}</td></tr>
<tr><th>Readings</th><td>{{.Counts.Readings}}</td></tr>
<tr><th>Logged</th><td>{{.Counts.Logged}}</td></tr>
<tr><th>Parse errors</th><td>{{.Counts.ParseErrors}}</td></tr>
<tr><th>Device messages</th><td>{{.Counts.Messages}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Log file</th><td>{{.Config.LogPath}}</td></tr>
<tr><th>Retention</th><td>{{.Config.Retention}}</td></tr>
<tr><th>On link lost</th><td>{{.Config.LinkLostPolicy}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/logs.csv">CSV</a> | <a href="/metrics">Metrics</a></p>
</body>
</html>
`

var quickCommands = []string{"LED_ON", "LED_OFF", "BUZZER_ON", "BUZZER_OFF", "BOTH_OFF", "AUTO_ON", "AUTO_OFF"}

func renderHTML(w io.Writer, snap status.Snapshot, controls bool) {
	// Snapshot has Uptime() and Alarming() methods but the template needs fields.
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Alarming bool
		Controls bool
		Commands []string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Alarming: snap.Alarming(),
		Controls: controls,
		Commands: quickCommands,
	}
	indexTmpl.Execute(w, data)
}
