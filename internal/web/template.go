package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/status"
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
	"utc": func(t time.Time) string {
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Lightning Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.idle { color: #888; }
.warn { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Lightning Sensor{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Sensor</h2>
<table>
<tr><th>State</th><td class="{{if eq (stateOrUnknown .State) "IDLE"}}idle{{else}}warn{{end}}">{{stateOrUnknown .State}}</td></tr>
<tr><th>Calibrated</th><td class="{{if .Sensor.Calibrated}}ok{{else}}warn{{end}}">{{if .Sensor.Calibrated}}yes{{else}}no{{end}}</td></tr>
<tr><th>Profile</th><td>{{if .Sensor.Indoor}}indoor{{else}}outdoor{{end}}</td></tr>
<tr><th>Noise floor</th><td id="noise-floor">{{.Sensor.NoiseFloor}}</td></tr>
<tr><th>Disturbers</th><td>{{if .Sensor.MaskDisturber}}masked{{else}}reported{{end}}</td></tr>
<tr><th>Tuning</th><td>{{.Sensor.TuningCapPF}}pF</td></tr>
<tr><th>Bus</th><td>{{.Config.Bus}}</td></tr>
</table>

<h2>Last Strike</h2>
<table>
{{if .LastStrike}}<tr><th>Time</th><td id="strike-time">{{utc .LastStrike.Time}}</td></tr>
<tr><th>Distance</th><td id="strike-distance">{{if .LastStrike.InRange}}{{.LastStrike.DistanceKm}} km{{else}}out of range{{end}}</td></tr>
<tr><th>Energy</th><td id="strike-energy">{{.LastStrike.Energy}}</td></tr>
{{else}}<tr><th>Time</th><td id="strike-time">none yet</td></tr>
<tr><th>Distance</th><td id="strike-distance">-</td></tr>
<tr><th>Energy</th><td id="strike-energy">-</td></tr>
{{end}}</table>

<h2>Event Counts</h2>
<table>
<tr><th>Lightning</th><td>{{.Counts.Lightning}}</td></tr>
<tr><th>Disturber</th><td>{{.Counts.Disturber}}</td></tr>
<tr><th>Noise</th><td>{{.Counts.Noise}}</td></tr>
<tr><th>Unknown</th><td>{{.Counts.Unknown}}</td></tr>
<tr><th>Bus errors</th><td>{{.Counts.Errors}}</td></tr>
</table>

<h2>Delivery</h2>
<table>
<tr><th>Target</th><td>{{.Config.UploadTarget}}</td></tr>
<tr><th>Buffered</th><td>{{.Delivery.Buffered}}{{if .Delivery.Dropped}} ({{.Delivery.Dropped}} dropped){{end}}</td></tr>
<tr><th>Uploads</th><td>{{.Delivery.Succeeded}} ok, {{.Delivery.Failed}} failed</td></tr>
<tr><th>Strikes sent</th><td>{{.Delivery.Sent}}</td></tr>
{{if .Delivery.LastError}}<tr><th>Last error</th><td class="warn">{{.Delivery.LastError}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
{{if .Config.Broker}}<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{utc .StartTime}}</td></tr>
<tr><th>Upload every</th><td>{{.Config.UploadIntervalMs}}ms</td></tr>
<tr><th>Relax after</th><td>{{if eq .Config.RelaxAfterMs 0}}disabled{{else}}{{.Config.RelaxAfterMs}}ms{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .Config.WSBroker}}
<script src="/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "{{.Config.LiveTopic}}";
  var dot = document.getElementById("live-dot");
  var timeEl = document.getElementById("strike-time");
  var distEl = document.getElementById("strike-distance");
  var energyEl = document.getElementById("strike-energy");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (msg.lightnings && msg.lightnings.length) {
        var last = msg.lightnings[msg.lightnings.length - 1];
        var d = new Date(Date.now() - last.read_seconds_ago * 1000);
        timeEl.textContent = d.toISOString().replace(/\.\d+Z$/, "Z");
        distEl.textContent = last.distance === null ? "out of range" : last.distance + " km";
        energyEl.textContent = last.energy;
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
