package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ukydev/fleet-automation/internal/events"
	"github.com/ukydev/fleet-automation/internal/models"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "fleet.alerts.critical", Subject("fleet.alerts", events.Event{Severity: models.SeverityCritical}))
	assert.Equal(t, "fleet.alerts", Subject("fleet.alerts", events.Event{}))
}

func TestNew_Unreachable(t *testing.T) {
	_, err := New("nats://127.0.0.1:1", "")
	assert.Error(t, err)
}
