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

// TripDraft is the input for creating or validating a trip.
type TripDraft struct {
	PickupLocation       string     `json:"pickup_location"`
	DeliveryLocation     string     `json:"delivery_location"`
	CargoWeightKg        float64    `json:"cargo_weight_kg"`
	AssignedVehicle      string     `json:"assigned_vehicle,omitempty"`
	AssignedDriver       string     `json:"assigned_driver,omitempty"`
	ExpectedStartDate    *time.Time `json:"expected_start_date,omitempty"`
	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date,omitempty"`
	DistanceKm           float64    `json:"distance_km"`
	Revenue              float64    `json:"revenue"`
	EstimatedFuelCost    float64    `json:"estimated_fuel_cost"`
}

// TripPatch changes a Draft trip; nil fields are left alone. An empty
// AssignedVehicle or AssignedDriver clears the assignment.
type TripPatch struct {
	PickupLocation       *string    `json:"pickup_location"`
	DeliveryLocation     *string    `json:"delivery_location"`
	CargoWeightKg        *float64   `json:"cargo_weight_kg"`
	AssignedVehicle      *string    `json:"assigned_vehicle"`
	AssignedDriver       *string    `json:"assigned_driver"`
	ExpectedStartDate    *time.Time `json:"expected_start_date"`
	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date"`
	DistanceKm           *float64   `json:"distance_km"`
	Revenue              *float64   `json:"revenue"`
	EstimatedFuelCost    *float64   `json:"estimated_fuel_cost"`
}

func (p TripPatch) touchesAssignment() bool {
	return p.AssignedVehicle != nil || p.AssignedDriver != nil || p.CargoWeightKg != nil
}

func (p TripPatch) apply(t *models.Trip) {
	if p.PickupLocation != nil {
		t.PickupLocation = *p.PickupLocation
	}
	if p.DeliveryLocation != nil {
		t.DeliveryLocation = *p.DeliveryLocation
	}
	if p.CargoWeightKg != nil {
		t.CargoWeightKg = *p.CargoWeightKg
	}
	if p.AssignedVehicle != nil {
		t.AssignedVehicle = *p.AssignedVehicle
	}
	if p.AssignedDriver != nil {
		t.AssignedDriver = *p.AssignedDriver
	}
	if p.ExpectedStartDate != nil {
		t.ExpectedStartDate = p.ExpectedStartDate
	}
	if p.ExpectedDeliveryDate != nil {
		t.ExpectedDeliveryDate = p.ExpectedDeliveryDate
	}
	if p.DistanceKm != nil {
		t.DistanceKm = *p.DistanceKm
	}
	if p.Revenue != nil {
		t.Revenue = *p.Revenue
	}
	if p.EstimatedFuelCost != nil {
		t.EstimatedFuelCost = *p.EstimatedFuelCost
	}
}

func draftOf(t *models.Trip) TripDraft {
	return TripDraft{
		PickupLocation:       t.PickupLocation,
		DeliveryLocation:     t.DeliveryLocation,
		CargoWeightKg:        t.CargoWeightKg,
		AssignedVehicle:      t.AssignedVehicle,
		AssignedDriver:       t.AssignedDriver,
		ExpectedStartDate:    t.ExpectedStartDate,
		ExpectedDeliveryDate: t.ExpectedDeliveryDate,
		DistanceKm:           t.DistanceKm,
		Revenue:              t.Revenue,
		EstimatedFuelCost:    t.EstimatedFuelCost,
	}
}

// TripController owns the Draft, Dispatched, Completed and Cancelled
// lifecycle and the cross-entity writes each transition implies.
type TripController struct {
	base
	alerts     *AlertFeed
	vehicles   *Synchronizer
	compliance *ComplianceMonitor
}

func fieldErrors(d TripDraft) []string {
	var errs []string
	if strings.TrimSpace(d.PickupLocation) == "" || strings.TrimSpace(d.DeliveryLocation) == "" {
		errs = append(errs, "Pickup and delivery locations are required.")
	}
	if d.CargoWeightKg < 0 {
		errs = append(errs, "Cargo weight cannot be negative.")
	}
	if s, e := d.ExpectedStartDate, d.ExpectedDeliveryDate; s != nil && e != nil && e.Before(*s) {
		errs = append(errs, "Delivery date must be same or after start date.")
	}
	return errs
}

// Validate checks a draft against the current vehicle and driver and
// returns every failure, in check order. It has side effects: an overweight
// attempt raises a critical alert and a driver with an expired licence is
// suspended. The error is non-nil only when the store fails.
func (c *TripController) Validate(ctx context.Context, d TripDraft) ([]string, error) {
	errs := fieldErrors(d)

	if d.AssignedVehicle != "" {
		v, err := c.store.FindVehicleByID(ctx, d.AssignedVehicle)
		switch {
		case errors.Is(err, db.ErrNotFound):
			errs = append(errs, "Vehicle not found.")
		case err != nil:
			return nil, c.fail("validating vehicle", err, logrus.Fields{"vehicle_id": d.AssignedVehicle})
		default:
			if v.Status != models.VehicleAvailable {
				errs = append(errs, fmt.Sprintf("Vehicle '%s' is currently %s and cannot be selected.", v.LicensePlate, v.Status))
			}
			if d.CargoWeightKg > v.MaxCapacityKg {
				errs = append(errs, fmt.Sprintf("Overweight: selected vehicle capacity is %s kg. Reduce cargo or choose a larger vehicle.", kg(v.MaxCapacityKg)))
				c.alerts.raise(ctx, AlertSpec{
					Kind:       models.AlertCargoOverweight,
					Title:      "Cargo Overweight Attempt",
					Message:    fmt.Sprintf("Attempted to assign %s kg to vehicle %s (capacity %s kg).", kg(d.CargoWeightKg), v.LicensePlate, kg(v.MaxCapacityKg)),
					Severity:   models.SeverityCritical,
					EntityType: models.EntityVehicle,
					EntityID:   v.ID.Hex(),
				})
			}
		}
	}

	if d.AssignedDriver != "" {
		drv, err := c.store.FindDriverByID(ctx, d.AssignedDriver)
		switch {
		case errors.Is(err, db.ErrNotFound):
			errs = append(errs, "Driver not found.")
		case err != nil:
			return nil, c.fail("validating driver", err, logrus.Fields{"driver_id": d.AssignedDriver})
		default:
			if !drv.Selectable() {
				errs = append(errs, fmt.Sprintf("Driver '%s' is %s and cannot be selected.", drv.Name, drv.Status))
			}
			if drv.LicenseExpired(c.now()) {
				if _, err := c.compliance.suspendExpired(ctx, drv); err != nil {
					return nil, err
				}
				errs = append(errs, fmt.Sprintf("Driver '%s' license expired on %s. Update license to assign.", drv.Name, drv.LicenseExpiryDate.Format(time.DateOnly)))
			}
		}
	}
	return errs, nil
}

// Create validates the draft and stores it as a Draft trip with a fresh
// trip code.
func (c *TripController) Create(ctx context.Context, d TripDraft) (*models.Trip, error) {
	errs, err := c.Validate(ctx, d)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, invalid(errs...)
	}

	count, err := c.store.CountTrips(ctx)
	if err != nil {
		return nil, c.fail("counting trips", err, nil)
	}
	now := c.now()
	trip := &models.Trip{
		PickupLocation:       d.PickupLocation,
		DeliveryLocation:     d.DeliveryLocation,
		CargoWeightKg:        d.CargoWeightKg,
		AssignedVehicle:      d.AssignedVehicle,
		AssignedDriver:       d.AssignedDriver,
		Status:               models.TripDraft,
		ExpectedStartDate:    d.ExpectedStartDate,
		ExpectedDeliveryDate: d.ExpectedDeliveryDate,
		DistanceKm:           d.DistanceKm,
		Revenue:              d.Revenue,
		EstimatedFuelCost:    d.EstimatedFuelCost,
		CreatedAt:            now,
	}
	// Codes are count based, so deleted trips can leave a taken number
	// ahead of us.
	for n := count + 1; ; n++ {
		trip.TripCode = tripCode(now, n)
		err = c.store.InsertTrip(ctx, trip)
		if !errors.Is(err, db.ErrDuplicate) || n > count+20 {
			break
		}
	}
	if err != nil {
		return nil, c.fail("creating trip", err, nil)
	}
	c.log.WithFields(logrus.Fields{"trip_id": trip.ID.Hex(), "trip_code": trip.TripCode}).Info("trip created")
	return trip, nil
}

func tripCode(day time.Time, n int64) string {
	return fmt.Sprintf("T-%s-%03d", day.Format("20060102"), n)
}

// Update edits a Draft trip, re-validating when the assignment or the cargo
// changes.
func (c *TripController) Update(ctx context.Context, id string, p TripPatch) (*models.Trip, error) {
	trip, err := c.loadTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	if trip.Status != models.TripDraft {
		return nil, invalid(fmt.Sprintf("Only Draft trips can be edited; this trip is %s.", trip.Status))
	}
	p.apply(trip)

	var errs []string
	if p.touchesAssignment() {
		if errs, err = c.Validate(ctx, draftOf(trip)); err != nil {
			return nil, err
		}
	} else {
		errs = fieldErrors(draftOf(trip))
	}
	if len(errs) > 0 {
		return nil, invalid(errs...)
	}

	err = c.store.UpdateTripDetails(ctx, trip)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, notFound("Trip not found.")
	case errors.Is(err, db.ErrConflict):
		return nil, conflict("Trip is no longer a Draft.")
	case err != nil:
		return nil, c.fail("updating trip", err, logrus.Fields{"trip_id": id})
	}
	return c.loadTrip(ctx, id)
}

// Dispatch moves a Draft trip to Dispatched, taking its vehicle and driver.
// The vehicle is claimed with a conditional write so concurrent dispatches
// of one vehicle cannot both win; every later failure undoes earlier steps.
func (c *TripController) Dispatch(ctx context.Context, id string) (*models.Trip, error) {
	trip, err := c.loadTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := trip.Status.Apply(models.TripDispatch); err != nil {
		return nil, invalid(fmt.Sprintf("Cannot dispatch a trip with status %q.", trip.Status))
	}
	if trip.AssignedVehicle == "" || trip.AssignedDriver == "" {
		return nil, invalid("Vehicle and driver must be assigned before dispatch.")
	}
	errs, err := c.Validate(ctx, draftOf(trip))
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, invalid(errs...)
	}

	vehicle, err := c.loadVehicle(ctx, trip.AssignedVehicle)
	if err != nil {
		return nil, err
	}
	driver, err := c.loadDriver(ctx, trip.AssignedDriver)
	if err != nil {
		return nil, err
	}
	fields := logrus.Fields{"trip_id": id, "vehicle_id": trip.AssignedVehicle, "driver_id": trip.AssignedDriver}
	tx := newSaga(c.log, "dispatch", fields)

	err = c.store.UpdateVehicleStatus(ctx, trip.AssignedVehicle, []models.VehicleStatus{models.VehicleAvailable}, models.VehicleOnTrip)
	if errors.Is(err, db.ErrConflict) {
		return nil, c.blocked(ctx, trip, vehicle)
	}
	if err != nil {
		return nil, c.fail("claiming vehicle", err, fields)
	}
	tx.compensate(func(ctx context.Context) error {
		return c.store.UpdateVehicleStatus(ctx, trip.AssignedVehicle, []models.VehicleStatus{models.VehicleOnTrip}, models.VehicleAvailable)
	})

	next, err := driver.Status.Apply(models.DriverGoOnDuty)
	if err != nil {
		tx.rollback(ctx)
		return nil, invalid(fmt.Sprintf("Driver '%s' is %s and cannot be dispatched.", driver.Name, driver.Status))
	}
	err = c.store.UpdateDriverStatus(ctx, trip.AssignedDriver, []models.DriverStatus{driver.Status}, next)
	if err != nil {
		tx.rollback(ctx)
		if errors.Is(err, db.ErrConflict) {
			return nil, conflict(fmt.Sprintf("Driver '%s' changed status during dispatch. Retry.", driver.Name))
		}
		return nil, c.fail("assigning driver", err, fields)
	}
	previous := driver.Status
	tx.compensate(func(ctx context.Context) error {
		return c.store.UpdateDriverStatus(ctx, trip.AssignedDriver, []models.DriverStatus{next}, previous)
	})

	if _, err := c.store.IncrementDriverCounters(ctx, trip.AssignedDriver, db.DriverCounters{TotalTripsAssigned: 1}); err != nil {
		tx.rollback(ctx)
		return nil, c.fail("counting driver trip", err, fields)
	}
	tx.compensate(func(ctx context.Context) error {
		_, err := c.store.IncrementDriverCounters(ctx, trip.AssignedDriver, db.DriverCounters{TotalTripsAssigned: -1})
		return err
	})

	now := c.now()
	err = c.store.UpdateTripStatus(ctx, id, models.TripDraft, models.TripDispatched, db.TripTimestamps{ActualStartDate: &now})
	if err != nil {
		tx.rollback(ctx)
		if errors.Is(err, db.ErrConflict) || errors.Is(err, db.ErrNotFound) {
			return nil, conflict("Trip is no longer a Draft.")
		}
		return nil, c.fail("dispatching trip", err, fields)
	}

	trip.Status = models.TripDispatched
	trip.ActualStartDate = &now
	c.log.WithFields(fields).Info("trip dispatched")
	c.alerts.raise(ctx, AlertSpec{
		Kind:       models.AlertTripDispatched,
		Title:      "Trip Dispatched",
		Message:    fmt.Sprintf("Trip %s has been dispatched.", trip.TripCode),
		Severity:   models.SeverityInfo,
		EntityType: models.EntityTrip,
		EntityID:   id,
	})
	return trip, nil
}

// blocked reports a vehicle lost to a concurrent mutation between
// validation and the conditional claim.
func (c *TripController) blocked(ctx context.Context, trip *models.Trip, vehicle *models.Vehicle) error {
	status := vehicle.Status
	if current, err := c.store.FindVehicleByID(ctx, vehicle.ID.Hex()); err == nil {
		status = current.Status
	}
	c.alerts.raise(ctx, AlertSpec{
		Kind:       models.AlertDispatchBlocked,
		Title:      "Dispatch Blocked",
		Message:    fmt.Sprintf("Attempted to dispatch trip %s with vehicle %s in %s", trip.TripCode, vehicle.LicensePlate, status),
		Severity:   models.SeverityCritical,
		EntityType: models.EntityTrip,
		EntityID:   trip.ID.Hex(),
	})
	return conflict(fmt.Sprintf("Vehicle '%s' is currently %s and cannot be dispatched.", vehicle.LicensePlate, status))
}

// Complete finishes a Dispatched trip and releases its vehicle.
func (c *TripController) Complete(ctx context.Context, id string) (*models.Trip, error) {
	trip, err := c.loadTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := trip.Status.Apply(models.TripComplete); err != nil {
		return nil, invalid(fmt.Sprintf("Cannot complete a trip with status %q.", trip.Status))
	}
	fields := logrus.Fields{"trip_id": id, "vehicle_id": trip.AssignedVehicle, "driver_id": trip.AssignedDriver}
	tx := newSaga(c.log, "complete", fields)

	now := c.now()
	err = c.store.UpdateTripStatus(ctx, id, models.TripDispatched, models.TripCompleted, db.TripTimestamps{ActualDeliveryDate: &now})
	if errors.Is(err, db.ErrConflict) {
		return nil, conflict("Trip is no longer Dispatched.")
	}
	if err != nil {
		return nil, c.fail("completing trip", err, fields)
	}
	tx.compensate(func(ctx context.Context) error {
		return c.store.UpdateTripStatus(ctx, id, models.TripCompleted, models.TripDispatched, db.TripTimestamps{})
	})

	if trip.AssignedDriver != "" {
		if _, err := c.store.IncrementDriverCounters(ctx, trip.AssignedDriver, db.DriverCounters{TripsCompleted: 1}); err != nil {
			tx.rollback(ctx)
			return nil, c.fail("counting completed trip", err, fields)
		}
		tx.compensate(func(ctx context.Context) error {
			_, err := c.store.IncrementDriverCounters(ctx, trip.AssignedDriver, db.DriverCounters{TripsCompleted: -1})
			return err
		})
	}

	if trip.AssignedVehicle != "" {
		if _, err := c.vehicles.ReleaseVehicle(ctx, trip.AssignedVehicle); err != nil {
			tx.rollback(ctx)
			return nil, err
		}
	}

	trip.Status = models.TripCompleted
	trip.ActualDeliveryDate = &now
	c.log.WithFields(fields).Info("trip completed")
	c.alerts.raise(ctx, AlertSpec{
		Kind:       models.AlertTripCompleted,
		Title:      "Trip Completed",
		Message:    fmt.Sprintf("Trip %s has been completed successfully.", trip.TripCode),
		Severity:   models.SeverityInfo,
		EntityType: models.EntityTrip,
		EntityID:   id,
	})
	return trip, nil
}

// Cancel ends a Draft or Dispatched trip, releasing its vehicle and taking
// the driver off duty when they have no other active trip.
func (c *TripController) Cancel(ctx context.Context, id string) (*models.Trip, error) {
	trip, err := c.loadTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := trip.Status.Apply(models.TripCancel); err != nil {
		if trip.Status == models.TripCompleted {
			return nil, invalid("Cannot cancel a completed trip.")
		}
		return nil, invalid("Trip is already cancelled.")
	}
	fields := logrus.Fields{"trip_id": id, "vehicle_id": trip.AssignedVehicle, "driver_id": trip.AssignedDriver}
	tx := newSaga(c.log, "cancel", fields)

	from := trip.Status
	err = c.store.UpdateTripStatus(ctx, id, from, models.TripCancelled, db.TripTimestamps{})
	if errors.Is(err, db.ErrConflict) {
		return nil, conflict("Trip status changed during cancellation. Retry.")
	}
	if err != nil {
		return nil, c.fail("cancelling trip", err, fields)
	}
	tx.compensate(func(ctx context.Context) error {
		return c.store.UpdateTripStatus(ctx, id, models.TripCancelled, from, db.TripTimestamps{})
	})

	if trip.AssignedVehicle != "" {
		if _, err := c.vehicles.ReleaseVehicle(ctx, trip.AssignedVehicle); err != nil {
			tx.rollback(ctx)
			return nil, err
		}
	}
	if trip.AssignedDriver != "" {
		c.offDuty(ctx, trip.AssignedDriver)
	}

	trip.Status = models.TripCancelled
	c.log.WithFields(fields).Info("trip cancelled")
	c.alerts.raise(ctx, AlertSpec{
		Kind:       models.AlertTripCancelled,
		Title:      "Trip Cancelled",
		Message:    fmt.Sprintf("Trip %s has been cancelled.", trip.TripCode),
		Severity:   models.SeverityInfo,
		EntityType: models.EntityTrip,
		EntityID:   id,
	})
	return trip, nil
}

// offDuty moves an OnDuty driver with no remaining dispatched trip to
// OffDuty. Failures are logged only; duty state is advisory.
func (c *TripController) offDuty(ctx context.Context, driverID string) {
	log := c.log.WithField("driver_id", driverID)
	active, err := c.store.FindTrips(ctx, db.TripFilter{Statuses: []models.TripStatus{models.TripDispatched}, Driver: driverID, Limit: 1})
	if err != nil {
		log.WithError(err).Warn("could not check driver's active trips")
		return
	}
	if len(active) > 0 {
		return
	}
	err = c.store.UpdateDriverStatus(ctx, driverID, []models.DriverStatus{models.DriverOnDuty}, models.DriverOffDuty)
	if err != nil && !errors.Is(err, db.ErrConflict) {
		log.WithError(err).Warn("could not take driver off duty")
	}
}

// Delete removes a trip that is not currently Dispatched.
func (c *TripController) Delete(ctx context.Context, id string) error {
	err := c.store.DeleteTrip(ctx, id, []models.TripStatus{models.TripDraft, models.TripCompleted, models.TripCancelled})
	switch {
	case errors.Is(err, db.ErrNotFound):
		return notFound("Trip not found.")
	case errors.Is(err, db.ErrConflict):
		return invalid("Cannot delete an active trip. Cancel it first.")
	case err != nil:
		return c.fail("deleting trip", err, logrus.Fields{"trip_id": id})
	}
	return nil
}

// ListTrips returns trips matching filter, newest first.
func (c *TripController) ListTrips(ctx context.Context, filter db.TripFilter) ([]models.Trip, error) {
	trips, err := c.store.FindTrips(ctx, filter)
	if err != nil {
		return nil, c.fail("listing trips", err, nil)
	}
	return trips, nil
}

// Get returns one trip.
func (c *TripController) Get(ctx context.Context, id string) (*models.Trip, error) {
	return c.loadTrip(ctx, id)
}
