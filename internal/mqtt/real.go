package mqtt

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/delivery"
)

// DefaultClientID is used when no client id is configured.
const DefaultClientID = "lightning-sensor"

const (
	// publishTimeout bounds a publish when the caller's context has no deadline.
	publishTimeout = 5 * time.Second

	// connectRetryInterval paces background reconnects to the broker.
	connectRetryInterval = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Topics   Topics
	Username string
	Password string
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client    paho.Client
	topics    Topics
	connected atomic.Bool
	// connects counts successful connections so the first one is not
	// reported as a reconnect.
	connects atomic.Int32
}

// NewRealPublisher creates a publisher connected to the given broker.
// If the broker is unreachable the client keeps retrying in the
// background; publishes fail until it connects.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.ClientID == "" {
		o.ClientID = DefaultClientID
	}
	if o.Topics == (Topics{}) {
		o.Topics = TopicsFor(DefaultTopicPrefix)
	}
	p := &RealPublisher{topics: o.Topics}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval).
		SetBinaryWill(o.Topics.System, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)
	if o.Username != "" {
		opts.SetUsername(o.Username).SetPassword(o.Password)
	}

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, retrying in background", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.connected.Store(true)
	if p.connects.Add(1) == 1 {
		log.Printf("mqtt: connected")
		return
	}
	log.Printf("mqtt: reconnected")
	payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
	if err != nil {
		return
	}
	// Publish from a goroutine: paho must not block inside its handlers.
	go p.client.Publish(p.topics.System, 1, true, payload)
}

func (p *RealPublisher) onConnectionLost(c paho.Client, err error) {
	p.connected.Store(false)
	log.Printf("mqtt: connection lost: %v", err)
}

// IsConnected reports whether the client currently has a broker session.
func (p *RealPublisher) IsConnected() bool {
	return p.connected.Load()
}

// Upload publishes a strike batch with QoS 1.
func (p *RealPublisher) Upload(ctx context.Context, batch delivery.Batch) error {
	payload, err := FormatBatchPayload(batch)
	if err != nil {
		return fmt.Errorf("format batch: %w", err)
	}
	// QoS 1 (at-least-once), not retained
	return p.publish(ctx, p.topics.Strikes, 1, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	if err := p.publish(context.Background(), p.topics.System, 1, event.Retained, payload); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

func (p *RealPublisher) publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	timeout := publishTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
