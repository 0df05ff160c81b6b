package automation

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-automation/internal/db"
	"github.com/ukydev/fleet-automation/internal/events"
	"github.com/ukydev/fleet-automation/internal/models"
)

func spec(kind models.AlertKind, entityID string) AlertSpec {
	return AlertSpec{
		Kind:       kind,
		Title:      string(kind),
		Message:    "message",
		Severity:   models.SeverityWarning,
		EntityType: models.EntityDriver,
		EntityID:   entityID,
	}
}

func TestCreateAlert_PersistsAndPublishes(t *testing.T) {
	f := newFixture(t)

	alert, err := f.engine.Alerts.CreateAlert(f.ctx, spec(models.AlertLowSafetyScore, "d1"))
	require.NoError(t, err)
	assert.False(t, alert.ID.IsZero())
	assert.Equal(t, "driver:d1:low_safety_score", alert.DedupKey)
	assert.True(t, alert.CreatedAt.Equal(testNow))
	assert.False(t, alert.Resolved)

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	assert.Equal(t, events.EventAlertRaised, event.Type)
	assert.Equal(t, "d1", event.EntityID)

	_, err = f.engine.Alerts.CreateAlert(f.ctx, AlertSpec{Severity: "urgent"})
	assert.Equal(t, []string{`Unknown severity "urgent".`}, validationErrors(t, err))
}

func TestCreateAlert_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")

	alert, err := f.engine.Alerts.CreateAlert(f.ctx, spec(models.AlertLowSafetyScore, "d1"))
	require.NoError(t, err)
	assert.Len(t, f.alerts(models.AlertLowSafetyScore), 1)
	assert.NotNil(t, alert)
	assert.True(t, f.logged(logrus.WarnLevel, "failed to publish alert event"))
}

func TestAlertWriteFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	v := f.vehicle("TRK-1", 8000)
	trip := f.trip(v, f.driver("Asha", "DL-1"), 100)
	f.store.insertAlertErr = errors.New("alerts collection unavailable")

	_, err := f.engine.Dispatch(f.ctx, trip.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.TripDispatched, f.reloadTrip(trip).Status)
	assert.Equal(t, models.VehicleOnTrip, f.reloadVehicle(v).Status)
	assert.True(t, f.logged(logrus.WarnLevel, "alert dropped"))
	assert.True(t, f.logged(logrus.ErrorLevel, "store operation failed"))
}

func TestResolveAlert(t *testing.T) {
	f := newFixture(t)
	alert, err := f.engine.Alerts.CreateAlert(f.ctx, spec(models.AlertLowSafetyScore, "d1"))
	require.NoError(t, err)
	id := alert.ID.Hex()

	resolved, err := f.engine.ResolveAlert(f.ctx, id, "coached")
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	assert.Equal(t, "coached", resolved.ResolutionNote)
	require.NotNil(t, resolved.ResolvedAt)
	assert.True(t, resolved.ResolvedAt.Equal(testNow))

	_, err = f.engine.ResolveAlert(f.ctx, id, "again")
	assert.Equal(t, []string{"Alert already resolved."}, validationErrors(t, err))
	assert.ErrorIs(t, err, db.ErrConflict)

	_, err = f.engine.ResolveAlert(f.ctx, "000000000000000000000000", "")
	assert.Equal(t, []string{"Alert not found."}, validationErrors(t, err))

	reopened, err := f.engine.UnresolveAlert(f.ctx, id)
	require.NoError(t, err)
	assert.False(t, reopened.Resolved)
	assert.Nil(t, reopened.ResolvedAt)
	assert.Empty(t, reopened.ResolutionNote)

	_, err = f.engine.UnresolveAlert(f.ctx, id)
	assert.Equal(t, []string{"Alert is not resolved."}, validationErrors(t, err))
}

func TestRaiseOnce(t *testing.T) {
	f := newFixture(t)
	s := spec(models.AlertMaintenanceDue, "v1")
	s.Qualifier = string(models.ServiceOilChange)

	assert.True(t, f.engine.Alerts.raiseOnce(f.ctx, s))
	assert.False(t, f.engine.Alerts.raiseOnce(f.ctx, s))

	other := s
	other.Qualifier = string(models.ServiceBrakeService)
	assert.True(t, f.engine.Alerts.raiseOnce(f.ctx, other))

	alerts := f.alerts(models.AlertMaintenanceDue)
	require.Len(t, alerts, 2)
	_, err := f.engine.ResolveAlert(f.ctx, alerts[1].ID.Hex(), "")
	require.NoError(t, err)
	assert.True(t, f.engine.Alerts.raiseOnce(f.ctx, s))
}

func TestListAlerts(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"d1", "d2", "d3"} {
		_, err := f.engine.Alerts.CreateAlert(f.ctx, spec(models.AlertLowSafetyScore, id))
		require.NoError(t, err)
	}

	page, total, err := f.engine.ListAlerts(f.ctx, db.AlertFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, "d3", page[0].EntityID)

	page, _, err = f.engine.ListAlerts(f.ctx, db.AlertFilter{EntityID: "d2"})
	require.NoError(t, err)
	require.Len(t, page, 1)
}

func TestGetFeed_MergesPersistedAndEphemeral(t *testing.T) {
	f := newFixture(t)

	// InShop while a trip is dispatched.
	v := f.vehicle("TRK-1", 8000)
	active := f.trip(v, f.driver("Asha", "DL-1"), 100)
	_, err := f.engine.Dispatch(f.ctx, active.ID.Hex())
	require.NoError(t, err)
	require.NoError(t, f.mem.UpdateVehicleStatus(f.ctx, v.ID.Hex(), nil, models.VehicleInShop))

	// Unassigned drafts, one due tomorrow and one next week.
	tomorrow := testNow.AddDate(0, 0, 1)
	nextWeek := testNow.AddDate(0, 0, 7)
	urgent, err := f.engine.CreateTrip(f.ctx, TripDraft{PickupLocation: "A", DeliveryLocation: "B", ExpectedDeliveryDate: &tomorrow})
	require.NoError(t, err)
	_, err = f.engine.CreateTrip(f.ctx, TripDraft{PickupLocation: "A", DeliveryLocation: "B", ExpectedDeliveryDate: &nextWeek})
	require.NoError(t, err)

	feed, err := f.engine.GetFeed(f.ctx)
	require.NoError(t, err)

	var persisted, live []models.FeedItem
	for _, item := range feed {
		if item.Ephemeral {
			live = append(live, item)
		} else {
			require.Empty(t, live, "persisted alerts come before ephemeral ones")
			persisted = append(persisted, item)
		}
	}
	require.Len(t, persisted, 1)
	assert.Equal(t, models.AlertTripDispatched, persisted[0].Kind)

	require.Len(t, live, 2)
	assert.Equal(t, models.AlertVehicleInShopAssigned, live[0].Kind)
	assert.Equal(t, models.SeverityCritical, live[0].Severity)
	assert.Equal(t, "Volvo FH (TRK-1) is In Shop but assigned to trip "+active.TripCode, live[0].Message)
	assert.Equal(t, models.AlertTripUnassignedDeadline, live[1].Kind)
	assert.Equal(t, urgent.ID.Hex(), live[1].EntityID)
	assert.Equal(t, "Trip "+urgent.TripCode+" is approaching deadline but still unassigned", live[1].Message)

	stored, err := f.mem.FindAlerts(f.ctx, db.AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, 1, "ephemeral alerts are never persisted")
}

func TestGetFeed_SkipsResolvedAndCollapsesDuplicates(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.FeedLimit = 10 })
	first, err := f.engine.Alerts.CreateAlert(f.ctx, spec(models.AlertLowSafetyScore, "d1"))
	require.NoError(t, err)
	_, err = f.engine.Alerts.CreateAlert(f.ctx, spec(models.AlertLowSafetyScore, "d1"))
	require.NoError(t, err)
	resolved, err := f.engine.Alerts.CreateAlert(f.ctx, spec(models.AlertLowSafetyScore, "d2"))
	require.NoError(t, err)
	_, err = f.engine.ResolveAlert(f.ctx, resolved.ID.Hex(), "")
	require.NoError(t, err)
	_, err = f.engine.Alerts.CreateAlert(f.ctx, spec(models.AlertCargoOverweight, "v1"))
	require.NoError(t, err)
	_, err = f.engine.Alerts.CreateAlert(f.ctx, spec(models.AlertCargoOverweight, "v1"))
	require.NoError(t, err)

	feed, err := f.engine.GetFeed(f.ctx)
	require.NoError(t, err)
	require.Len(t, feed, 3)
	assert.Equal(t, models.AlertCargoOverweight, feed[0].Kind)
	assert.Equal(t, models.AlertCargoOverweight, feed[1].Kind)
	assert.Equal(t, models.AlertLowSafetyScore, feed[2].Kind)
	assert.NotEqual(t, first.ID.Hex(), feed[2].ID, "the newest of the duplicates is kept")
}

func TestGetFeed_Limit(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.FeedLimit = 2 })
	for _, id := range []string{"v1", "v2", "v3"} {
		_, err := f.engine.Alerts.CreateAlert(f.ctx, spec(models.AlertCargoOverweight, id))
		require.NoError(t, err)
	}
	feed, err := f.engine.GetFeed(f.ctx)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, "v3", feed[0].EntityID)
}

func TestGetFeed_ScanOnRead(t *testing.T) {
	low := 60.0
	draft := DriverDraft{Name: "Asha", LicenseNumber: "DL-1", LicenseExpiryDate: testNow.AddDate(1, 0, 0), SafetyScorePct: &low}

	f := newFixture(t)
	_, err := f.engine.RegisterDriver(f.ctx, draft)
	require.NoError(t, err)
	feed, err := f.engine.GetFeed(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, feed, "reads only merge unless scan-on-read is enabled")

	f = newFixture(t, func(o *Options) { o.ScanOnRead = true })
	_, err = f.engine.RegisterDriver(f.ctx, draft)
	require.NoError(t, err)
	feed, err = f.engine.GetFeed(f.ctx)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, models.AlertLowSafetyScore, feed[0].Kind)

	feed, err = f.engine.GetFeed(f.ctx)
	require.NoError(t, err)
	assert.Len(t, feed, 1)
}
