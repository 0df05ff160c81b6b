package db

import (
	"context"
	"errors"
	"time"

	"github.com/ukydev/fleet-automation/internal/models"
)

var (
	// ErrNotFound is returned when no document has the requested id. Malformed
	// ids are reported the same way.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by conditional updates whose precondition no
	// longer holds.
	ErrConflict = errors.New("conflict")
	// ErrDuplicate is returned when a unique field is already taken.
	ErrDuplicate = errors.New("duplicate key")
)

// VehicleFilter selects vehicles. Zero fields do not filter.
type VehicleFilter struct {
	Statuses        []models.VehicleStatus
	ExcludeStatuses []models.VehicleStatus
	Type            models.VehicleType
	Limit           int
}

// VehicleDetails holds the editable vehicle fields; nil means unchanged.
// Status is deliberately absent, it is derived.
type VehicleDetails struct {
	NameModel       *string  `json:"name_model"`
	MaxCapacityKg   *float64 `json:"max_capacity_kg"`
	OdometerKm      *float64 `json:"odometer_km"`
	AcquisitionCost *float64 `json:"acquisition_cost"`
}

// VehicleCollection defines the interface for vehicle data operations.
type VehicleCollection interface {
	InsertVehicle(ctx context.Context, vehicle *models.Vehicle) error
	FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error)
	FindVehicles(ctx context.Context, filter VehicleFilter) ([]models.Vehicle, error)
	UpdateVehicleDetails(ctx context.Context, id string, details VehicleDetails) (*models.Vehicle, error)
	// UpdateVehicleStatus sets the status only when the current status is one
	// of expected, returning ErrConflict otherwise. An empty expected list
	// makes the update unconditional.
	UpdateVehicleStatus(ctx context.Context, id string, expected []models.VehicleStatus, next models.VehicleStatus) error
	DeleteVehicle(ctx context.Context, id string) error
}

// DriverFilter selects drivers. Zero fields do not filter.
type DriverFilter struct {
	Statuses        []models.DriverStatus
	ExcludeStatuses []models.DriverStatus
	// LicenseValidAt keeps only drivers whose licence expires after it.
	LicenseValidAt *time.Time
	Limit          int
}

// DriverProfile holds the editable driver fields; nil means unchanged.
type DriverProfile struct {
	Name              *string    `json:"name"`
	Contact           *string    `json:"contact"`
	LicenseExpiryDate *time.Time `json:"license_expiry_date"`
	SafetyScorePct    *float64   `json:"safety_score_pct"`
	Incidents         *int       `json:"incidents"`
}

// DriverCounters are deltas applied atomically to a driver's counters.
type DriverCounters struct {
	TotalTripsAssigned int
	TripsCompleted     int
	Warnings           int
}

// DriverCollection defines the interface for driver data operations.
type DriverCollection interface {
	InsertDriver(ctx context.Context, driver *models.Driver) error
	FindDriverByID(ctx context.Context, id string) (*models.Driver, error)
	FindDrivers(ctx context.Context, filter DriverFilter) ([]models.Driver, error)
	UpdateDriverProfile(ctx context.Context, id string, profile DriverProfile) (*models.Driver, error)
	UpdateDriverStatus(ctx context.Context, id string, expected []models.DriverStatus, next models.DriverStatus) error
	IncrementDriverCounters(ctx context.Context, id string, delta DriverCounters) (*models.Driver, error)
	DeleteDriver(ctx context.Context, id string) error
}

// TripFilter selects trips, newest first. Zero fields do not filter.
type TripFilter struct {
	Statuses             []models.TripStatus
	Vehicle              string
	Driver               string
	ExpectedDeliveryFrom *time.Time
	ExpectedDeliveryTo   *time.Time
	Limit                int
}

// TripTimestamps are set alongside a status change when non-nil.
type TripTimestamps struct {
	ActualStartDate    *time.Time
	ActualDeliveryDate *time.Time
}

// TripCollection defines the interface for trip data operations.
type TripCollection interface {
	InsertTrip(ctx context.Context, trip *models.Trip) error
	FindTripByID(ctx context.Context, id string) (*models.Trip, error)
	FindTrips(ctx context.Context, filter TripFilter) ([]models.Trip, error)
	CountTrips(ctx context.Context) (int64, error)
	// UpdateTripDetails replaces the editable fields of a Draft trip.
	UpdateTripDetails(ctx context.Context, trip *models.Trip) error
	UpdateTripStatus(ctx context.Context, id string, from, to models.TripStatus, ts TripTimestamps) error
	// DeleteTrip removes the trip only while its status is one of allowed.
	DeleteTrip(ctx context.Context, id string, allowed []models.TripStatus) error
}

// MaintenanceFilter selects maintenance records, most recent service first.
type MaintenanceFilter struct {
	Vehicle     string
	Statuses    []models.MaintenanceStatus
	ServiceType models.ServiceType
	Limit       int
}

// MaintenanceCollection defines the interface for maintenance data operations.
type MaintenanceCollection interface {
	InsertMaintenance(ctx context.Context, maintenance *models.Maintenance) error
	FindMaintenanceByID(ctx context.Context, id string) (*models.Maintenance, error)
	FindMaintenance(ctx context.Context, filter MaintenanceFilter) ([]models.Maintenance, error)
	UpdateMaintenanceStatus(ctx context.Context, id string, from, to models.MaintenanceStatus, completedAt *time.Time) error
	DeleteMaintenance(ctx context.Context, id string) error
}

// AlertFilter selects alerts, newest first.
type AlertFilter struct {
	Resolved   *bool
	Severity   models.Severity
	EntityType models.EntityType
	EntityID   string
	Kind       models.AlertKind
	Skip       int
	Limit      int
}

// AlertCollection defines the interface for alert data operations.
type AlertCollection interface {
	InsertAlert(ctx context.Context, alert *models.Alert) error
	FindAlertByID(ctx context.Context, id string) (*models.Alert, error)
	FindAlerts(ctx context.Context, filter AlertFilter) ([]models.Alert, error)
	CountAlerts(ctx context.Context, filter AlertFilter) (int64, error)
	// HasUnresolved reports whether an unresolved alert with the key exists.
	HasUnresolved(ctx context.Context, dedupKey string) (bool, error)
	// SetAlertResolution flips the resolved flag, failing with ErrConflict
	// when the alert is already in the requested state.
	SetAlertResolution(ctx context.Context, id string, resolved bool, note string, at *time.Time) (*models.Alert, error)
}

// ExpenseFilter selects expenses, newest first.
type ExpenseFilter struct {
	Trip    string
	Vehicle string
	Limit   int
}

// ExpenseCollection defines the interface for expense data operations.
type ExpenseCollection interface {
	InsertExpense(ctx context.Context, expense *models.Expense) error
	FindExpenseByID(ctx context.Context, id string) (*models.Expense, error)
	FindExpenses(ctx context.Context, filter ExpenseFilter) ([]models.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
}

// UserCollection defines the interface for user database operations
type UserCollection interface {
	InsertUser(ctx context.Context, user models.User) error
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, id string, user models.User) error
	DeleteUser(ctx context.Context, id string) error
	UpdateLastLogin(ctx context.Context, id string) error
}

// Store is the full entity store consumed by the automation engine.
type Store interface {
	VehicleCollection
	DriverCollection
	TripCollection
	MaintenanceCollection
	AlertCollection
	ExpenseCollection
	UserCollection
}
