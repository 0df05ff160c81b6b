package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-automation/internal/db"
	"github.com/ukydev/fleet-automation/internal/models"
)

// DriverDraft is the input for registering a driver.
type DriverDraft struct {
	Name              string              `json:"name"`
	LicenseNumber     string              `json:"license_number"`
	LicenseExpiryDate time.Time           `json:"license_expiry_date"`
	Contact           string              `json:"contact"`
	Status            models.DriverStatus `json:"status,omitempty"`
	SafetyScorePct    *float64            `json:"safety_score_pct,omitempty"`
}

// VehicleDraft is the input for registering a vehicle.
type VehicleDraft struct {
	NameModel       string             `json:"name_model"`
	LicensePlate    string             `json:"license_plate"`
	Type            models.VehicleType `json:"type"`
	MaxCapacityKg   float64            `json:"max_capacity_kg"`
	OdometerKm      float64            `json:"odometer_km"`
	AcquisitionCost float64            `json:"acquisition_cost"`
}

// Roster manages the driver and vehicle registries and the manual status
// changes operators make on them.
type Roster struct {
	base
}

// RegisterDriver stores a new driver. A driver whose licence has already
// expired is stored Suspended.
func (r *Roster) RegisterDriver(ctx context.Context, d DriverDraft) (*models.Driver, error) {
	var errs []string
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, "Name is required.")
	}
	if strings.TrimSpace(d.LicenseNumber) == "" {
		errs = append(errs, "License number is required.")
	}
	if d.LicenseExpiryDate.IsZero() {
		errs = append(errs, "License expiry date is required.")
	}
	status := d.Status
	if status == "" {
		status = models.DriverOffDuty
	}
	if status != models.DriverOnDuty && status != models.DriverOffDuty {
		errs = append(errs, "New drivers must start On Duty or Off Duty.")
	}
	score := 100.0
	if d.SafetyScorePct != nil {
		score = *d.SafetyScorePct
	}
	if score < 0 || score > 100 {
		errs = append(errs, "Safety score must be between 0 and 100.")
	}
	if len(errs) > 0 {
		return nil, invalid(errs...)
	}

	driver := &models.Driver{
		Name:              d.Name,
		LicenseNumber:     d.LicenseNumber,
		LicenseExpiryDate: d.LicenseExpiryDate,
		Contact:           d.Contact,
		Status:            status,
		SafetyScorePct:    score,
	}
	if driver.LicenseExpired(r.now()) {
		driver.Status = models.DriverSuspended
	}
	err := r.store.InsertDriver(ctx, driver)
	if errors.Is(err, db.ErrDuplicate) {
		return nil, invalid("License number already exists.")
	}
	if err != nil {
		return nil, r.fail("registering driver", err, nil)
	}
	r.log.WithFields(logrus.Fields{"driver_id": driver.ID.Hex(), "status": driver.Status}).Info("driver registered")
	return driver, nil
}

// UpdateDriverProfile edits a driver's profile fields.
func (r *Roster) UpdateDriverProfile(ctx context.Context, id string, p db.DriverProfile) (*models.Driver, error) {
	if p.SafetyScorePct != nil && (*p.SafetyScorePct < 0 || *p.SafetyScorePct > 100) {
		return nil, invalid("Safety score must be between 0 and 100.")
	}
	if p.Incidents != nil && *p.Incidents < 0 {
		return nil, invalid("Incidents cannot be negative.")
	}
	driver, err := r.store.UpdateDriverProfile(ctx, id, p)
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("Driver not found.")
	}
	if err != nil {
		return nil, r.fail("updating driver", err, logrus.Fields{"driver_id": id})
	}
	return driver, nil
}

// SetDuty moves a driver on or off duty.
func (r *Roster) SetDuty(ctx context.Context, id string, onDuty bool) (*models.Driver, error) {
	event := models.DriverGoOffDuty
	if onDuty {
		event = models.DriverGoOnDuty
	}
	return r.transition(ctx, id, event, 0)
}

// SuspendDriver suspends a driver and records a warning.
func (r *Roster) SuspendDriver(ctx context.Context, id string) (*models.Driver, error) {
	return r.transition(ctx, id, models.DriverSuspend, 1)
}

// BanDriver bans a driver permanently.
func (r *Roster) BanDriver(ctx context.Context, id string) (*models.Driver, error) {
	return r.transition(ctx, id, models.DriverBan, 0)
}

// ReinstateDriver returns a Suspended or OffDuty driver to duty. Banned
// drivers and drivers with an expired licence cannot be reinstated.
func (r *Roster) ReinstateDriver(ctx context.Context, id string) (*models.Driver, error) {
	driver, err := r.loadDriver(ctx, id)
	if err != nil {
		return nil, err
	}
	if driver.Status == models.DriverBanned {
		return nil, invalid("Banned drivers cannot be reinstated.")
	}
	if driver.LicenseExpired(r.now()) {
		return nil, invalid("Cannot reinstate: license is still expired.")
	}
	return r.transition(ctx, id, models.DriverReinstate, 0)
}

func (r *Roster) transition(ctx context.Context, id string, event models.DriverEvent, warnings int) (*models.Driver, error) {
	driver, err := r.loadDriver(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := driver.Status.Apply(event)
	if err != nil {
		return nil, invalid(fmt.Sprintf("Driver '%s' is %s; cannot %s.", driver.Name, driver.Status, event))
	}
	fields := logrus.Fields{"driver_id": id, "from": driver.Status, "to": next}
	err = r.store.UpdateDriverStatus(ctx, id, []models.DriverStatus{driver.Status}, next)
	if errors.Is(err, db.ErrConflict) {
		return nil, conflict(fmt.Sprintf("Driver '%s' changed status concurrently. Retry.", driver.Name))
	}
	if err != nil {
		return nil, r.fail("updating driver status", err, fields)
	}
	driver.Status = next
	if warnings > 0 {
		updated, err := r.store.IncrementDriverCounters(ctx, id, db.DriverCounters{Warnings: warnings})
		if err != nil {
			return nil, r.fail("adding driver warning", err, fields)
		}
		driver = updated
	}
	r.log.WithFields(fields).Info("driver status changed")
	return driver, nil
}

// EligibleDrivers lists OnDuty drivers whose licence is valid now.
func (r *Roster) EligibleDrivers(ctx context.Context) ([]models.Driver, error) {
	now := r.now()
	drivers, err := r.store.FindDrivers(ctx, db.DriverFilter{
		Statuses:       []models.DriverStatus{models.DriverOnDuty},
		LicenseValidAt: &now,
	})
	if err != nil {
		return nil, r.fail("listing eligible drivers", err, nil)
	}
	return drivers, nil
}

// ListDrivers returns drivers matching filter.
func (r *Roster) ListDrivers(ctx context.Context, filter db.DriverFilter) ([]models.Driver, error) {
	drivers, err := r.store.FindDrivers(ctx, filter)
	if err != nil {
		return nil, r.fail("listing drivers", err, nil)
	}
	return drivers, nil
}

// GetDriver returns one driver.
func (r *Roster) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	return r.loadDriver(ctx, id)
}

// DeleteDriver removes a driver that no Draft or Dispatched trip refers to.
func (r *Roster) DeleteDriver(ctx context.Context, id string) error {
	driver, err := r.loadDriver(ctx, id)
	if err != nil {
		return err
	}
	fields := logrus.Fields{"driver_id": id}
	trip, err := r.openTrip(ctx, db.TripFilter{Driver: id})
	if err != nil {
		return r.fail("checking driver trips", err, fields)
	}
	if trip != nil {
		return invalid(fmt.Sprintf("Driver %s is assigned to %s trip %s. Cancel or complete it first.", driver.Name, trip.Status, trip.TripCode))
	}
	err = r.store.DeleteDriver(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return notFound("Driver not found.")
	}
	if err != nil {
		return r.fail("deleting driver", err, fields)
	}
	r.log.WithFields(fields).Info("driver deleted")
	return nil
}

// RegisterVehicle stores a new Available vehicle.
func (r *Roster) RegisterVehicle(ctx context.Context, d VehicleDraft) (*models.Vehicle, error) {
	var errs []string
	if strings.TrimSpace(d.LicensePlate) == "" {
		errs = append(errs, "License plate is required.")
	}
	if !d.Type.Valid() {
		errs = append(errs, fmt.Sprintf("Vehicle type must be Truck, Van or Bike, got %q.", d.Type))
	}
	if d.MaxCapacityKg <= 0 {
		errs = append(errs, "Max capacity must be positive.")
	}
	if d.OdometerKm < 0 || d.AcquisitionCost < 0 {
		errs = append(errs, "Odometer and acquisition cost cannot be negative.")
	}
	if len(errs) > 0 {
		return nil, invalid(errs...)
	}

	vehicle := &models.Vehicle{
		NameModel:       d.NameModel,
		LicensePlate:    strings.ToUpper(strings.TrimSpace(d.LicensePlate)),
		Type:            d.Type,
		MaxCapacityKg:   d.MaxCapacityKg,
		OdometerKm:      d.OdometerKm,
		Status:          models.VehicleAvailable,
		AcquisitionCost: d.AcquisitionCost,
	}
	err := r.store.InsertVehicle(ctx, vehicle)
	if errors.Is(err, db.ErrDuplicate) {
		return nil, invalid("License plate already exists.")
	}
	if err != nil {
		return nil, r.fail("registering vehicle", err, nil)
	}
	r.log.WithField("vehicle_id", vehicle.ID.Hex()).Info("vehicle registered")
	return vehicle, nil
}

// UpdateVehicle edits a vehicle's details. The odometer never goes back.
func (r *Roster) UpdateVehicle(ctx context.Context, id string, details db.VehicleDetails) (*models.Vehicle, error) {
	current, err := r.loadVehicle(ctx, id)
	if err != nil {
		return nil, err
	}
	var errs []string
	if details.MaxCapacityKg != nil && *details.MaxCapacityKg <= 0 {
		errs = append(errs, "Max capacity must be positive.")
	}
	if details.OdometerKm != nil && *details.OdometerKm < current.OdometerKm {
		errs = append(errs, fmt.Sprintf("Odometer cannot go below %s km.", kg(current.OdometerKm)))
	}
	if details.AcquisitionCost != nil && *details.AcquisitionCost < 0 {
		errs = append(errs, "Acquisition cost cannot be negative.")
	}
	if len(errs) > 0 {
		return nil, invalid(errs...)
	}
	vehicle, err := r.store.UpdateVehicleDetails(ctx, id, details)
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("Vehicle not found.")
	}
	if err != nil {
		return nil, r.fail("updating vehicle", err, logrus.Fields{"vehicle_id": id})
	}
	return vehicle, nil
}

// RetireVehicle takes a vehicle out of service for good.
func (r *Roster) RetireVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	vehicle, err := r.loadVehicle(ctx, id)
	if err != nil {
		return nil, err
	}
	inShop, err := r.hasOpenMaintenance(ctx, id)
	if err != nil {
		return nil, r.fail("checking open maintenance", err, logrus.Fields{"vehicle_id": id})
	}
	if inShop {
		return nil, invalid(fmt.Sprintf("Vehicle '%s' has open maintenance. Complete it before retiring.", vehicle.LicensePlate))
	}
	err = r.store.UpdateVehicleStatus(ctx, id, []models.VehicleStatus{models.VehicleAvailable, models.VehicleInShop}, models.VehicleRetired)
	if errors.Is(err, db.ErrConflict) {
		return nil, invalid(fmt.Sprintf("Vehicle '%s' is currently %s and cannot be retired.", vehicle.LicensePlate, vehicle.Status))
	}
	if err != nil {
		return nil, r.fail("retiring vehicle", err, logrus.Fields{"vehicle_id": id})
	}
	vehicle.Status = models.VehicleRetired
	r.log.WithField("vehicle_id", id).Info("vehicle retired")
	return vehicle, nil
}

// AvailableVehicles lists vehicles that can be assigned to a trip.
func (r *Roster) AvailableVehicles(ctx context.Context) ([]models.Vehicle, error) {
	return r.ListVehicles(ctx, db.VehicleFilter{Statuses: []models.VehicleStatus{models.VehicleAvailable}})
}

// ListVehicles returns vehicles matching filter.
func (r *Roster) ListVehicles(ctx context.Context, filter db.VehicleFilter) ([]models.Vehicle, error) {
	vehicles, err := r.store.FindVehicles(ctx, filter)
	if err != nil {
		return nil, r.fail("listing vehicles", err, nil)
	}
	return vehicles, nil
}

// GetVehicle returns one vehicle.
func (r *Roster) GetVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	return r.loadVehicle(ctx, id)
}

// DeleteVehicle removes a vehicle that no open trip or maintenance record
// refers to. An Available vehicle is retired while the references are
// checked, so it can be neither dispatched nor sent to the shop meanwhile.
func (r *Roster) DeleteVehicle(ctx context.Context, id string) error {
	vehicle, err := r.loadVehicle(ctx, id)
	if err != nil {
		return err
	}
	fields := logrus.Fields{"vehicle_id": id}
	switch vehicle.Status {
	case models.VehicleOnTrip, models.VehicleInShop:
		return invalid(fmt.Sprintf("Vehicle '%s' is currently %s and cannot be deleted.", vehicle.LicensePlate, vehicle.Status))
	case models.VehicleAvailable:
		err := r.store.UpdateVehicleStatus(ctx, id, []models.VehicleStatus{models.VehicleAvailable}, models.VehicleRetired)
		if errors.Is(err, db.ErrConflict) {
			return conflict("Vehicle status changed during deletion. Retry.")
		}
		if errors.Is(err, db.ErrNotFound) {
			return notFound("Vehicle not found.")
		}
		if err != nil {
			return r.fail("locking vehicle", err, fields)
		}
	}
	restore := func() {
		if vehicle.Status != models.VehicleAvailable {
			return
		}
		err := r.store.UpdateVehicleStatus(context.WithoutCancel(ctx), id, []models.VehicleStatus{models.VehicleRetired}, models.VehicleAvailable)
		if err != nil {
			r.log.WithFields(fields).WithError(err).Error("compensation failed, manual repair needed")
		}
	}

	reason, err := r.vehicleInUse(ctx, vehicle)
	if err != nil {
		restore()
		return r.fail("checking vehicle references", err, fields)
	}
	if reason != "" {
		restore()
		return invalid(reason)
	}
	err = r.store.DeleteVehicle(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return notFound("Vehicle not found.")
	}
	if err != nil {
		restore()
		return r.fail("deleting vehicle", err, fields)
	}
	r.log.WithFields(fields).Info("vehicle deleted")
	return nil
}

func (r *Roster) vehicleInUse(ctx context.Context, vehicle *models.Vehicle) (string, error) {
	id := vehicle.ID.Hex()
	inShop, err := r.hasOpenMaintenance(ctx, id)
	if err != nil {
		return "", err
	}
	if inShop {
		return fmt.Sprintf("Vehicle '%s' has open maintenance. Complete or delete it first.", vehicle.LicensePlate), nil
	}
	trip, err := r.openTrip(ctx, db.TripFilter{Vehicle: id})
	if err != nil {
		return "", err
	}
	if trip != nil {
		return fmt.Sprintf("Vehicle '%s' is assigned to %s trip %s. Cancel or complete it first.", vehicle.LicensePlate, trip.Status, trip.TripCode), nil
	}
	return "", nil
}
