package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-automation/internal/db"
	"github.com/ukydev/fleet-automation/internal/models"
)

// hookedStore calls beforeFindTrips ahead of every FindTrips, letting a test
// act between the reads and writes of the engine under test.
type hookedStore struct {
	db.Store
	beforeFindTrips func() error
}

func (s *hookedStore) FindTrips(ctx context.Context, filter db.TripFilter) ([]models.Trip, error) {
	if s.beforeFindTrips != nil {
		if err := s.beforeFindTrips(); err != nil {
			return nil, err
		}
	}
	return s.Store.FindTrips(ctx, filter)
}

func (f *fixture) engineOver(store db.Store) *Engine {
	return New(store, Options{Now: func() time.Time { return testNow }})
}

func openMaintenance(f *fixture, v *models.Vehicle, service models.ServiceType) *models.Maintenance {
	f.t.Helper()
	record, err := f.engine.OpenMaintenance(f.ctx, MaintenanceDraft{Vehicle: v.ID.Hex(), ServiceType: service, Cost: 120})
	require.NoError(f.t, err)
	return record
}

func TestOpenMaintenance_SendsVehicleToShop(t *testing.T) {
	f := newFixture(t)
	v := f.vehicle("TRK-1", 8000)

	record := openMaintenance(f, v, models.ServiceOilChange)
	assert.Equal(t, models.MaintenanceOpen, record.Status)
	assert.True(t, record.ServiceDate.Equal(testNow))
	assert.Equal(t, models.VehicleInShop, f.reloadVehicle(v).Status)

	alerts := f.alerts(models.AlertVehicleInShop)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Vehicle In Shop", alerts[0].Title)
	assert.Equal(t, "Vehicle TRK-1 is in shop for Oil Change.", alerts[0].Message)
	assert.Equal(t, models.SeverityWarning, alerts[0].Severity)

	errs, err := f.engine.ValidateTrip(f.ctx, TripDraft{PickupLocation: "A", DeliveryLocation: "B", AssignedVehicle: v.ID.Hex()})
	require.NoError(t, err)
	assert.Equal(t, []string{"Vehicle 'TRK-1' is currently InShop and cannot be selected."}, errs)
}

func TestOpenMaintenance_RefusedWhileOnTrip(t *testing.T) {
	f := newFixture(t)
	v := f.vehicle("TRK-1", 8000)
	trip := f.trip(v, f.driver("Asha", "DL-1"), 100)
	_, err := f.engine.Dispatch(f.ctx, trip.ID.Hex())
	require.NoError(t, err)

	_, err = f.engine.OpenMaintenance(f.ctx, MaintenanceDraft{Vehicle: v.ID.Hex(), ServiceType: models.ServiceOilChange})
	assert.Equal(t, []string{"Cannot open maintenance while vehicle is On Trip. Mark trip Completed or Cancelled first."}, validationErrors(t, err))
	assert.Equal(t, models.VehicleOnTrip, f.reloadVehicle(v).Status)

	records, err := f.mem.FindMaintenance(f.ctx, db.MaintenanceFilter{Vehicle: v.ID.Hex()})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestOpenMaintenance_Validation(t *testing.T) {
	f := newFixture(t)
	v := f.vehicle("TRK-1", 8000)

	_, err := f.engine.OpenMaintenance(f.ctx, MaintenanceDraft{Vehicle: v.ID.Hex(), ServiceType: "Car Wash"})
	assert.Equal(t, []string{`Unknown service type "Car Wash".`}, validationErrors(t, err))

	_, err = f.engine.OpenMaintenance(f.ctx, MaintenanceDraft{Vehicle: "000000000000000000000000", ServiceType: models.ServiceOther})
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestOpenMaintenance_HistoricalRecordLeavesVehicleAlone(t *testing.T) {
	f := newFixture(t)
	v := f.vehicle("TRK-1", 8000)
	serviced := testNow.AddDate(0, -1, 0)

	record, err := f.engine.OpenMaintenance(f.ctx, MaintenanceDraft{
		Vehicle:     v.ID.Hex(),
		ServiceType: models.ServiceOilChange,
		ServiceDate: &serviced,
		Status:      models.MaintenanceCompleted,
	})
	require.NoError(t, err)
	require.NotNil(t, record.CompletedDate)
	assert.True(t, record.CompletedDate.Equal(serviced))
	assert.Equal(t, models.VehicleAvailable, f.reloadVehicle(v).Status)
	assert.Empty(t, f.alerts(models.AlertVehicleInShop))
}

func TestCompleteMaintenance(t *testing.T) {
	f := newFixture(t)
	v := f.vehicle("TRK-1", 8000)
	record := openMaintenance(f, v, models.ServiceBrakeService)

	done, err := f.engine.CompleteMaintenance(f.ctx, record.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.MaintenanceCompleted, done.Status)
	require.NotNil(t, done.CompletedDate)
	assert.Equal(t, models.VehicleAvailable, f.reloadVehicle(v).Status)

	alerts := f.alerts(models.AlertMaintenanceCompleted)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Maintenance completed for TRK-1. Cost: 120.00, Odometer: 0 km.", alerts[0].Message)

	_, err = f.engine.CompleteMaintenance(f.ctx, record.ID.Hex())
	assert.Equal(t, []string{"Already completed."}, validationErrors(t, err))
	assert.Len(t, f.alerts(models.AlertMaintenanceCompleted), 1)
}

func TestCompleteMaintenance_OtherOpenRecordKeepsVehicleInShop(t *testing.T) {
	f := newFixture(t)
	v := f.vehicle("TRK-1", 8000)
	first := openMaintenance(f, v, models.ServiceOilChange)
	second := openMaintenance(f, v, models.ServiceTireReplacement)

	_, err := f.engine.CompleteMaintenance(f.ctx, first.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.VehicleInShop, f.reloadVehicle(v).Status)

	_, err = f.engine.CompleteMaintenance(f.ctx, second.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.VehicleAvailable, f.reloadVehicle(v).Status)
}

func TestCompleteMaintenance_RecordOpenedDuringReleaseKeepsVehicleInShop(t *testing.T) {
	f := newFixture(t)
	v := f.vehicle("TRK-1", 8000)
	oil := openMaintenance(f, v, models.ServiceOilChange)

	var once sync.Once
	engine := f.engineOver(&hookedStore{Store: f.store, beforeFindTrips: func() error {
		once.Do(func() { openMaintenance(f, v, models.ServiceBrakeService) })
		return nil
	}})
	_, err := engine.CompleteMaintenance(f.ctx, oil.ID.Hex())
	require.NoError(t, err)

	open, err := f.mem.FindMaintenance(f.ctx, db.MaintenanceFilter{
		Vehicle:  v.ID.Hex(),
		Statuses: []models.MaintenanceStatus{models.MaintenanceOpen},
	})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.ServiceBrakeService, open[0].ServiceType)
	assert.Equal(t, models.VehicleInShop, f.reloadVehicle(v).Status)
}

func TestCompleteMaintenance_DispatchedTripKeepsVehicleInShop(t *testing.T) {
	f := newFixture(t)
	v := f.vehicle("TRK-1", 8000)
	trip := f.trip(v, f.driver("Asha", "DL-1"), 100)
	record := openMaintenance(f, v, models.ServiceOilChange)
	require.NoError(t, f.mem.UpdateTripStatus(f.ctx, trip.ID.Hex(), models.TripDraft, models.TripDispatched, db.TripTimestamps{}))

	_, err := f.engine.CompleteMaintenance(f.ctx, record.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.VehicleInShop, f.reloadVehicle(v).Status)

	_, err = f.engine.Complete(f.ctx, trip.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.VehicleAvailable, f.reloadVehicle(v).Status)
}

func TestCompleteMaintenance_FailedReleaseReopensRecord(t *testing.T) {
	f := newFixture(t)
	v := f.vehicle("TRK-1", 8000)
	record := openMaintenance(f, v, models.ServiceOilChange)

	engine := f.engineOver(&hookedStore{Store: f.store, beforeFindTrips: func() error {
		return errors.New("connection reset")
	}})
	_, err := engine.CompleteMaintenance(f.ctx, record.ID.Hex())
	var internal *InternalError
	require.ErrorAs(t, err, &internal)

	got, err := f.mem.FindMaintenanceByID(f.ctx, record.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.MaintenanceOpen, got.Status)
	assert.Nil(t, got.CompletedDate)
	assert.Equal(t, models.VehicleInShop, f.reloadVehicle(v).Status)
	assert.Empty(t, f.alerts(models.AlertMaintenanceCompleted))
}

func TestDeleteMaintenance_OpenRecordReleasesVehicle(t *testing.T) {
	f := newFixture(t)
	v := f.vehicle("TRK-1", 8000)
	record := openMaintenance(f, v, models.ServiceOilChange)

	require.NoError(t, f.engine.DeleteMaintenance(f.ctx, record.ID.Hex()))
	assert.Equal(t, models.VehicleAvailable, f.reloadVehicle(v).Status)
	assert.ErrorIs(t, f.engine.DeleteMaintenance(f.ctx, record.ID.Hex()), db.ErrNotFound)
}

func TestReleaseVehicle(t *testing.T) {
	f := newFixture(t)
	v := f.vehicle("TRK-1", 8000)
	id := v.ID.Hex()

	t.Run("idempotent when nothing references the vehicle", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			status, err := f.engine.Vehicles.ReleaseVehicle(f.ctx, id)
			require.NoError(t, err)
			assert.Equal(t, models.VehicleAvailable, status)
		}
	})

	t.Run("stale OnTrip is corrected", func(t *testing.T) {
		require.NoError(t, f.mem.UpdateVehicleStatus(f.ctx, id, nil, models.VehicleOnTrip))
		status, err := f.engine.Vehicles.ReleaseVehicle(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.VehicleAvailable, status)
		assert.Equal(t, models.VehicleAvailable, f.reloadVehicle(v).Status)
	})

	t.Run("open maintenance leaves status unchanged", func(t *testing.T) {
		require.NoError(t, f.mem.UpdateVehicleStatus(f.ctx, id, nil, models.VehicleOnTrip))
		require.NoError(t, f.mem.InsertMaintenance(f.ctx, &models.Maintenance{
			Vehicle: id, ServiceType: models.ServiceOther, ServiceDate: testNow, Status: models.MaintenanceOpen,
		}))
		status, err := f.engine.Vehicles.ReleaseVehicle(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.VehicleOnTrip, status)
		assert.Equal(t, models.VehicleOnTrip, f.reloadVehicle(v).Status)

		require.NoError(t, f.mem.UpdateVehicleStatus(f.ctx, id, nil, models.VehicleAvailable))
		open, err := f.mem.FindMaintenance(f.ctx, db.MaintenanceFilter{Vehicle: id})
		require.NoError(t, err)
		for _, m := range open {
			require.NoError(t, f.mem.DeleteMaintenance(f.ctx, m.ID.Hex()))
		}
	})

	t.Run("retired stays retired", func(t *testing.T) {
		_, err := f.engine.Roster.RetireVehicle(f.ctx, id)
		require.NoError(t, err)
		status, err := f.engine.Vehicles.ReleaseVehicle(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.VehicleRetired, status)
	})
}

func TestInShopTracksOpenMaintenance(t *testing.T) {
	f := newFixture(t)
	vehicles := []*models.Vehicle{f.vehicle("TRK-1", 8000), f.vehicle("TRK-2", 8000), f.vehicle("TRK-3", 8000)}
	a := openMaintenance(f, vehicles[0], models.ServiceOilChange)
	openMaintenance(f, vehicles[0], models.ServiceBrakeService)
	b := openMaintenance(f, vehicles[1], models.ServiceEngineRepair)
	_, err := f.engine.CompleteMaintenance(f.ctx, a.ID.Hex())
	require.NoError(t, err)
	require.NoError(t, f.engine.DeleteMaintenance(f.ctx, b.ID.Hex()))

	for _, v := range vehicles {
		open, err := f.mem.FindMaintenance(f.ctx, db.MaintenanceFilter{
			Vehicle:  v.ID.Hex(),
			Statuses: []models.MaintenanceStatus{models.MaintenanceOpen},
		})
		require.NoError(t, err)
		inShop := f.reloadVehicle(v).Status == models.VehicleInShop
		assert.Equal(t, len(open) > 0, inShop, v.LicensePlate)
	}
}
