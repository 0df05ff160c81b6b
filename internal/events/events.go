package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ukydev/fleet-automation/internal/models"
)

const EventAlertRaised = "alert.raised"

// Event is the envelope published to the alert broker.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Severity   models.Severity `json:"severity"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Publisher delivers events to subscribers outside the process.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

func NewEvent(eventType string, severity models.Severity, entityType, entityID string, payload any, occurredAt time.Time) Event {
	data, _ := json.Marshal(payload)
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Severity:   severity,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    data,
		OccurredAt: occurredAt,
	}
}

// NewAlertEvent wraps a freshly persisted alert.
func NewAlertEvent(alert *models.Alert) Event {
	payload := map[string]any{
		"alert_id":  alert.ID.Hex(),
		"kind":      alert.Kind,
		"title":     alert.Title,
		"message":   alert.Message,
		"dedup_key": alert.DedupKey,
	}
	return NewEvent(EventAlertRaised, alert.Severity, string(alert.EntityType), alert.EntityID, payload, alert.CreatedAt)
}
