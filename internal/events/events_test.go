package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-automation/internal/models"
)

func TestNewAlertEvent(t *testing.T) {
	alert := &models.Alert{
		ID:         primitive.NewObjectID(),
		Title:      "Vehicle In Shop",
		Message:    "Vehicle VAN-1 is in shop for Oil Change.",
		Severity:   models.SeverityWarning,
		Kind:       models.AlertVehicleInShop,
		EntityType: models.EntityVehicle,
		EntityID:   "v1",
		DedupKey:   "vehicle:v1:vehicle_in_shop",
		CreatedAt:  time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	event := NewAlertEvent(alert)
	_, err := uuid.Parse(event.ID)
	require.NoError(t, err)
	assert.Equal(t, EventAlertRaised, event.Type)
	assert.Equal(t, models.SeverityWarning, event.Severity)
	assert.Equal(t, "vehicle", event.EntityType)
	assert.Equal(t, alert.CreatedAt, event.OccurredAt)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, alert.ID.Hex(), payload["alert_id"])
	assert.Equal(t, "vehicle_in_shop", payload["kind"])
}
