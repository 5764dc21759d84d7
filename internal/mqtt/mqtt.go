// Package mqtt provides MQTT publishing with abstraction for testing.
//
// A Publisher doubles as a delivery.Uploader: strike batches go to the
// strikes topic, lifecycle events to the system topic.
package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/delivery"
)

// DefaultTopicPrefix is the topic root when none is configured.
const DefaultTopicPrefix = "weather/lightning"

// Topics holds the topics a publisher writes to.
type Topics struct {
	Strikes string
	System  string
}

// TopicsFor derives topics from a prefix, e.g. "weather/lightning" gives
// "weather/lightning/strikes" and "weather/lightning/system".
func TopicsFor(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Strikes: prefix + "/strikes",
		System:  prefix + "/system",
	}
}

// Publisher publishes to MQTT.
type Publisher interface {
	// Upload sends a strike batch to the broker.
	// Returns error if publishing fails (should not crash the process).
	Upload(ctx context.Context, batch delivery.Batch) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// FormatBatchPayload creates the JSON payload for a strike batch. It is
// the same envelope the HTTP endpoint receives.
func FormatBatchPayload(batch delivery.Batch) ([]byte, error) {
	return batch.Marshal()
}
