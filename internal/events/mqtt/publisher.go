package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/ukydev/fleet-automation/internal/events"
)

const (
	defaultTopic = "fleet/alerts"
	// QoS 1: alerts are delivered at least once.
	qos = 1
)

// Publisher sends alert events to an MQTT broker, one topic per severity.
type Publisher struct {
	client  paho.Client
	topic   string
	timeout time.Duration
}

// New connects to broker, for example tcp://localhost:1883.
func New(broker, topic, clientID string) (*Publisher, error) {
	if topic == "" {
		topic = defaultTopic
	}
	if clientID == "" {
		clientID = "fleet-automation"
	}
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return &Publisher{client: client, topic: topic, timeout: 5 * time.Second}, nil
}

// Topic returns the topic an event is published on.
func Topic(base string, event events.Event) string {
	if event.Severity == "" {
		return base
	}
	return base + "/" + string(event.Severity)
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	token := p.client.Publish(Topic(p.topic, event), qos, false, data)
	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt publish %s timed out", event.ID)
	}
	return token.Error()
}

func (p *Publisher) Close() error {
	p.client.Disconnect(250)
	return nil
}

var _ events.Publisher = (*Publisher)(nil)
