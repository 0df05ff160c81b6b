package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-automation/internal/db"
	"github.com/ukydev/fleet-automation/internal/models"
)

// MaintenanceDraft is the input for opening a maintenance record.
type MaintenanceDraft struct {
	Vehicle     string             `json:"vehicle"`
	ServiceType models.ServiceType `json:"service_type"`
	// ServiceDate defaults to now.
	ServiceDate *time.Time `json:"service_date,omitempty"`
	// OdometerAtService defaults to the vehicle's odometer.
	OdometerAtService *float64 `json:"odometer_at_service,omitempty"`
	Description       string   `json:"description"`
	Cost              float64  `json:"cost"`
	// Status Completed records past service without touching the vehicle.
	Status models.MaintenanceStatus `json:"status,omitempty"`
}

// Synchronizer keeps vehicle status in line with open maintenance and
// dispatched trips.
type Synchronizer struct {
	base
	alerts *AlertFeed
}

// ReleaseVehicle makes a vehicle Available when no Open maintenance record
// and no Dispatched trip references it. Otherwise the status is left as it
// is, so an InShop vehicle with an active trip stays InShop and the conflict
// is reported by the feed. Calling it repeatedly is harmless.
func (s *Synchronizer) ReleaseVehicle(ctx context.Context, vehicleID string) (models.VehicleStatus, error) {
	vehicle, err := s.loadVehicle(ctx, vehicleID)
	if err != nil {
		return "", err
	}
	fields := logrus.Fields{"vehicle_id": vehicleID}
	inShop, err := s.hasOpenMaintenance(ctx, vehicleID)
	if err != nil {
		return "", s.fail("checking open maintenance", err, fields)
	}
	active, err := s.store.FindTrips(ctx, db.TripFilter{
		Statuses: []models.TripStatus{models.TripDispatched},
		Vehicle:  vehicleID,
		Limit:    1,
	})
	if err != nil {
		return "", s.fail("checking active trips", err, fields)
	}

	if models.DeriveVehicleStatus(vehicle.Status, inShop, len(active) > 0) != models.VehicleAvailable ||
		vehicle.Status == models.VehicleAvailable {
		return vehicle.Status, nil
	}
	err = s.store.UpdateVehicleStatus(ctx, vehicleID, []models.VehicleStatus{vehicle.Status}, models.VehicleAvailable)
	if errors.Is(err, db.ErrConflict) {
		// Someone else moved it; their write recomputes or claims it.
		s.log.WithFields(fields).Debug("vehicle status changed concurrently, skipping release")
		current, err := s.loadVehicle(ctx, vehicleID)
		if err != nil {
			return "", err
		}
		return current.Status, nil
	}
	if err != nil {
		return "", s.fail("updating vehicle status", err, fields)
	}

	// A record opened after the check above found the vehicle InShop and
	// left it there, so the write just made would hide it.
	inShop, err = s.hasOpenMaintenance(ctx, vehicleID)
	if err != nil {
		return "", s.fail("checking open maintenance", err, fields)
	}
	if inShop {
		err = s.store.UpdateVehicleStatus(ctx, vehicleID, []models.VehicleStatus{models.VehicleAvailable}, models.VehicleInShop)
		if errors.Is(err, db.ErrConflict) {
			current, err := s.loadVehicle(ctx, vehicleID)
			if err != nil {
				return "", err
			}
			if current.Status != models.VehicleInShop {
				s.log.WithFields(fields).WithField("status", current.Status).Warn("vehicle moved while maintenance was opened")
			}
			return current.Status, nil
		}
		if err != nil {
			return "", s.fail("returning vehicle to shop", err, fields)
		}
		s.log.WithFields(fields).Debug("maintenance opened during release, vehicle kept in shop")
		return models.VehicleInShop, nil
	}
	s.log.WithFields(fields).Debug("vehicle released")
	return models.VehicleAvailable, nil
}

func (b *base) hasOpenMaintenance(ctx context.Context, vehicleID string) (bool, error) {
	open, err := b.store.FindMaintenance(ctx, db.MaintenanceFilter{
		Vehicle:  vehicleID,
		Statuses: []models.MaintenanceStatus{models.MaintenanceOpen},
		Limit:    1,
	})
	return len(open) > 0, err
}

// OpenMaintenance records service for a vehicle and sends it to the shop.
func (s *Synchronizer) OpenMaintenance(ctx context.Context, d MaintenanceDraft) (*models.Maintenance, error) {
	if !d.ServiceType.Valid() {
		return nil, invalid(fmt.Sprintf("Unknown service type %q.", d.ServiceType))
	}
	if d.Cost < 0 {
		return nil, invalid("Cost cannot be negative.")
	}
	status := d.Status
	if status == "" {
		status = models.MaintenanceOpen
	}
	if status != models.MaintenanceOpen && status != models.MaintenanceCompleted {
		return nil, invalid(fmt.Sprintf("Unknown maintenance status %q.", d.Status))
	}

	vehicle, err := s.loadVehicle(ctx, d.Vehicle)
	if err != nil {
		return nil, err
	}
	if status == models.MaintenanceOpen {
		switch vehicle.Status {
		case models.VehicleOnTrip:
			return nil, invalid(MsgMaintenanceOnTrip)
		case models.VehicleRetired:
			return nil, invalid(fmt.Sprintf("Vehicle '%s' is Retired.", vehicle.LicensePlate))
		}
	}

	now := s.now()
	record := &models.Maintenance{
		Vehicle:           d.Vehicle,
		ServiceType:       d.ServiceType,
		ServiceDate:       now,
		OdometerAtService: vehicle.OdometerKm,
		Description:       d.Description,
		Cost:              d.Cost,
		Status:            status,
		CreatedAt:         now,
	}
	if d.ServiceDate != nil {
		record.ServiceDate = *d.ServiceDate
	}
	if d.OdometerAtService != nil {
		record.OdometerAtService = *d.OdometerAtService
	}
	if status == models.MaintenanceCompleted {
		record.CompletedDate = ptr(record.ServiceDate)
	}
	fields := logrus.Fields{"vehicle_id": d.Vehicle, "service_type": d.ServiceType}
	if err := s.store.InsertMaintenance(ctx, record); err != nil {
		return nil, s.fail("creating maintenance", err, fields)
	}
	if status == models.MaintenanceCompleted {
		return record, nil
	}

	err = s.store.UpdateVehicleStatus(ctx, d.Vehicle, []models.VehicleStatus{models.VehicleAvailable, models.VehicleInShop}, models.VehicleInShop)
	if err != nil {
		if derr := s.store.DeleteMaintenance(context.WithoutCancel(ctx), record.ID.Hex()); derr != nil {
			s.log.WithFields(fields).WithError(derr).Error("compensation failed, manual repair needed")
		}
		if errors.Is(err, db.ErrConflict) {
			return nil, conflict(MsgMaintenanceOnTrip)
		}
		return nil, s.fail("sending vehicle to shop", err, fields)
	}

	s.log.WithFields(fields).Info("maintenance opened")
	s.alerts.raise(ctx, AlertSpec{
		Kind:       models.AlertVehicleInShop,
		Title:      "Vehicle In Shop",
		Message:    fmt.Sprintf("Vehicle %s is in shop for %s.", vehicle.LicensePlate, d.ServiceType),
		Severity:   models.SeverityWarning,
		EntityType: models.EntityVehicle,
		EntityID:   d.Vehicle,
	})
	return record, nil
}

// MsgMaintenanceOnTrip is returned when maintenance is opened for a vehicle
// that is out on a trip.
const MsgMaintenanceOnTrip = "Cannot open maintenance while vehicle is On Trip. Mark trip Completed or Cancelled first."

// CompleteMaintenance closes an Open record once and releases the vehicle.
func (s *Synchronizer) CompleteMaintenance(ctx context.Context, id string) (*models.Maintenance, error) {
	record, err := s.loadMaintenance(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := record.Status.Apply(models.MaintenanceComplete); err != nil {
		return nil, invalid("Already completed.")
	}
	fields := logrus.Fields{"maintenance_id": id, "vehicle_id": record.Vehicle}

	now := s.now()
	err = s.store.UpdateMaintenanceStatus(ctx, id, models.MaintenanceOpen, models.MaintenanceCompleted, &now)
	if errors.Is(err, db.ErrConflict) {
		return nil, conflict("Already completed.")
	}
	if err != nil {
		return nil, s.fail("completing maintenance", err, fields)
	}
	record.Status = models.MaintenanceCompleted
	record.CompletedDate = &now

	if _, err := s.ReleaseVehicle(ctx, record.Vehicle); err != nil {
		if rerr := s.store.UpdateMaintenanceStatus(context.WithoutCancel(ctx), id, models.MaintenanceCompleted, models.MaintenanceOpen, nil); rerr != nil {
			s.log.WithFields(fields).WithError(rerr).Error("compensation failed, manual repair needed")
		}
		return nil, err
	}

	plate := "vehicle"
	if v, err := s.store.FindVehicleByID(ctx, record.Vehicle); err == nil {
		plate = v.LicensePlate
	}
	s.log.WithFields(fields).Info("maintenance completed")
	s.alerts.raise(ctx, AlertSpec{
		Kind:       models.AlertMaintenanceCompleted,
		Title:      "Maintenance Completed",
		Message:    fmt.Sprintf("Maintenance completed for %s. Cost: %.2f, Odometer: %s km.", plate, record.Cost, kg(record.OdometerAtService)),
		Severity:   models.SeverityInfo,
		EntityType: models.EntityVehicle,
		EntityID:   record.Vehicle,
	})
	return record, nil
}

// DeleteMaintenance removes a record, releasing the vehicle when the record
// was still open.
func (s *Synchronizer) DeleteMaintenance(ctx context.Context, id string) error {
	record, err := s.loadMaintenance(ctx, id)
	if err != nil {
		return err
	}
	err = s.store.DeleteMaintenance(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return notFound("Maintenance record not found.")
	}
	if err != nil {
		return s.fail("deleting maintenance", err, logrus.Fields{"maintenance_id": id})
	}
	if record.Status == models.MaintenanceOpen {
		if _, err := s.ReleaseVehicle(ctx, record.Vehicle); err != nil {
			return err
		}
	}
	return nil
}

// ListMaintenance returns records matching filter, most recent service first.
func (s *Synchronizer) ListMaintenance(ctx context.Context, filter db.MaintenanceFilter) ([]models.Maintenance, error) {
	records, err := s.store.FindMaintenance(ctx, filter)
	if err != nil {
		return nil, s.fail("listing maintenance", err, nil)
	}
	return records, nil
}
