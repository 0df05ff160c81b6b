package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-automation/internal/db"
	"github.com/ukydev/fleet-automation/internal/events"
	"github.com/ukydev/fleet-automation/internal/models"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// flakyStore fails selected writes.
type flakyStore struct {
	*db.MemoryStore
	insertAlertErr error
	tripStatusErr  error
}

func (s *flakyStore) InsertAlert(ctx context.Context, alert *models.Alert) error {
	if s.insertAlertErr != nil {
		return s.insertAlertErr
	}
	return s.MemoryStore.InsertAlert(ctx, alert)
}

func (s *flakyStore) UpdateTripStatus(ctx context.Context, id string, from, to models.TripStatus, ts db.TripTimestamps) error {
	if s.tripStatusErr != nil {
		return s.tripStatusErr
	}
	return s.MemoryStore.UpdateTripStatus(ctx, id, from, to, ts)
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	mem       *db.MemoryStore
	store     *flakyStore
	engine    *Engine
	hook      *test.Hook
	publisher *recordingPublisher
}

func newFixture(t *testing.T, configure ...func(*Options)) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	mem := db.NewMemoryStore()
	f := &fixture{
		t:         t,
		ctx:       context.Background(),
		mem:       mem,
		store:     &flakyStore{MemoryStore: mem},
		hook:      hook,
		publisher: &recordingPublisher{},
	}
	opts := Options{
		Logger:    logger,
		Publisher: f.publisher,
		Now:       func() time.Time { return testNow },
	}
	for _, c := range configure {
		c(&opts)
	}
	f.engine = New(f.store, opts)
	return f
}

func (f *fixture) vehicle(plate string, capacity float64) *models.Vehicle {
	f.t.Helper()
	v, err := f.engine.RegisterVehicle(f.ctx, VehicleDraft{
		NameModel:     "Volvo FH",
		LicensePlate:  plate,
		Type:          models.VehicleTruck,
		MaxCapacityKg: capacity,
	})
	require.NoError(f.t, err)
	return v
}

func (f *fixture) driver(name, license string) *models.Driver {
	f.t.Helper()
	d, err := f.engine.RegisterDriver(f.ctx, DriverDraft{
		Name:              name,
		LicenseNumber:     license,
		LicenseExpiryDate: testNow.AddDate(2, 0, 0),
		Status:            models.DriverOnDuty,
	})
	require.NoError(f.t, err)
	return d
}

func (f *fixture) trip(vehicle *models.Vehicle, driver *models.Driver, cargo float64) *models.Trip {
	f.t.Helper()
	draft := TripDraft{PickupLocation: "Depot", DeliveryLocation: "Harbour", CargoWeightKg: cargo}
	if vehicle != nil {
		draft.AssignedVehicle = vehicle.ID.Hex()
	}
	if driver != nil {
		draft.AssignedDriver = driver.ID.Hex()
	}
	trip, err := f.engine.CreateTrip(f.ctx, draft)
	require.NoError(f.t, err)
	return trip
}

func (f *fixture) reloadVehicle(v *models.Vehicle) *models.Vehicle {
	f.t.Helper()
	got, err := f.mem.FindVehicleByID(f.ctx, v.ID.Hex())
	require.NoError(f.t, err)
	return got
}

func (f *fixture) reloadDriver(d *models.Driver) *models.Driver {
	f.t.Helper()
	got, err := f.mem.FindDriverByID(f.ctx, d.ID.Hex())
	require.NoError(f.t, err)
	return got
}

func (f *fixture) reloadTrip(trip *models.Trip) *models.Trip {
	f.t.Helper()
	got, err := f.mem.FindTripByID(f.ctx, trip.ID.Hex())
	require.NoError(f.t, err)
	return got
}

func (f *fixture) alerts(kind models.AlertKind) []models.Alert {
	f.t.Helper()
	got, err := f.mem.FindAlerts(f.ctx, db.AlertFilter{Kind: kind})
	require.NoError(f.t, err)
	return got
}

// expireLicense moves a driver's licence expiry into the past without
// changing their status.
func (f *fixture) expireLicense(d *models.Driver, at time.Time) {
	f.t.Helper()
	_, err := f.mem.UpdateDriverProfile(f.ctx, d.ID.Hex(), db.DriverProfile{LicenseExpiryDate: &at})
	require.NoError(f.t, err)
}

func validationErrors(t *testing.T, err error) []string {
	t.Helper()
	var v *ValidationError
	require.True(t, errors.As(err, &v), "expected a validation error, got %v", err)
	return v.Errors
}

func (f *fixture) logged(level logrus.Level, message string) bool {
	for _, e := range f.hook.AllEntries() {
		if e.Level == level && e.Message == message {
			return true
		}
	}
	return false
}
