package nats

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/ukydev/fleet-automation/internal/events"
)

const defaultSubject = "fleet.alerts"

type Publisher struct {
	nc      *nats.Conn
	subject string
}

func New(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("fleet-automation"))
	if err != nil {
		return nil, err
	}
	if subject == "" {
		subject = defaultSubject
	}
	return &Publisher{nc: nc, subject: subject}, nil
}

// Subject returns the subject an event is published on: the base subject
// suffixed with the alert severity.
func Subject(base string, event events.Event) string {
	if event.Severity == "" {
		return base
	}
	return base + "." + string(event.Severity)
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.nc.Publish(Subject(p.subject, event), data)
}

func (p *Publisher) Close() error {
	if p.nc != nil {
		return p.nc.Drain()
	}
	return nil
}

var _ events.Publisher = (*Publisher)(nil)
