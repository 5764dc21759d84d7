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
	State         string       `json:"state"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Sensor        SensorJSON   `json:"sensor"`
	Counts        CountsJSON   `json:"event_counts"`
	LastStrike    *StrikeJSON  `json:"last_strike,omitempty"`
	Delivery      DeliveryJSON `json:"delivery"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// SensorJSON is the JSON representation of the chip configuration.
type SensorJSON struct {
	Indoor        bool  `json:"indoor"`
	NoiseFloor    uint8 `json:"noise_floor"`
	MaskDisturber bool  `json:"mask_disturber"`
	TuningCapPF   int   `json:"tuning_cap_pf"`
	Calibrated    bool  `json:"calibrated"`
}

// CountsJSON is the JSON representation of interrupt counts.
type CountsJSON struct {
	Noise     int `json:"noise"`
	Disturber int `json:"disturber"`
	Lightning int `json:"lightning"`
	Unknown   int `json:"unknown"`
	Errors    int `json:"errors"`
}

// StrikeJSON is the JSON representation of the last strike. Distance is
// null when out of range.
type StrikeJSON struct {
	Timestamp  string `json:"timestamp"`
	DistanceKm *uint8 `json:"distance_km"`
	Energy     uint32 `json:"energy"`
}

// DeliveryJSON is the JSON representation of upload activity.
type DeliveryJSON struct {
	Target      string `json:"target"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	Sent        int    `json:"sent"`
	Buffered    int    `json:"buffered"`
	Dropped     int    `json:"dropped"`
	LastSuccess string `json:"last_success,omitempty"`
	LastError   string `json:"last_error,omitempty"`
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
	Bus              string `json:"bus"`
	UploadTarget     string `json:"upload_target"`
	UploadIntervalMs int64  `json:"upload_interval_ms"`
	HeartbeatMs      int64  `json:"heartbeat_ms"`
	RelaxAfterMs     int64  `json:"relax_after_ms"`
	Broker           string `json:"broker,omitempty"`
	HTTPPort         string `json:"http_port"`
	WSBroker         string `json:"ws_broker,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	state := snap.State
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		State:         state,
		Ready:         snap.Sensor.Calibrated,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Sensor: SensorJSON{
			Indoor:        snap.Sensor.Indoor,
			NoiseFloor:    snap.Sensor.NoiseFloor,
			MaskDisturber: snap.Sensor.MaskDisturber,
			TuningCapPF:   snap.Sensor.TuningCapPF,
			Calibrated:    snap.Sensor.Calibrated,
		},
		Counts: CountsJSON{
			Noise:     snap.Counts.Noise,
			Disturber: snap.Counts.Disturber,
			Lightning: snap.Counts.Lightning,
			Unknown:   snap.Counts.Unknown,
			Errors:    snap.Counts.Errors,
		},
		Delivery: DeliveryJSON{
			Target:    snap.Config.UploadTarget,
			Succeeded: snap.Delivery.Succeeded,
			Failed:    snap.Delivery.Failed,
			Sent:      snap.Delivery.Sent,
			Buffered:  snap.Delivery.Buffered,
			Dropped:   snap.Delivery.Dropped,
			LastError: snap.Delivery.LastError,
		},
		Config: ConfigJSON{
			Bus:              snap.Config.Bus,
			UploadTarget:     snap.Config.UploadTarget,
			UploadIntervalMs: snap.Config.UploadIntervalMs,
			HeartbeatMs:      snap.Config.HeartbeatMs,
			RelaxAfterMs:     snap.Config.RelaxAfterMs,
			Broker:           snap.Config.Broker,
			HTTPPort:         snap.Config.HTTPPort,
			WSBroker:         snap.Config.WSBroker,
		},
	}
	if !snap.Delivery.LastSuccess.IsZero() {
		inner.Delivery.LastSuccess = snap.Delivery.LastSuccess.UTC().Format(time.RFC3339)
	}
	inner.LastStrike = strikeJSON(snap.LastStrike)
	return inner
}

func strikeJSON(ls *Strike) *StrikeJSON {
	if ls == nil {
		return nil
	}
	sj := &StrikeJSON{
		Timestamp: ls.Time.UTC().Format(time.RFC3339),
		Energy:    ls.Energy,
	}
	if ls.InRange {
		km := ls.DistanceKm
		sj.DistanceKm = &km
	}
	return sj
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

// FormatLastStrike returns the JSON for the most recent strike, or nil if
// none has been captured since startup.
func FormatLastStrike(snap Snapshot) []byte {
	sj := strikeJSON(snap.LastStrike)
	if sj == nil {
		return nil
	}
	data, _ := json.Marshal(sj)
	return data
}
