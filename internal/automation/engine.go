// Package automation keeps vehicles, drivers, trips and maintenance records
// consistent with each other and produces the operator alert feed.
package automation

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-automation/internal/db"
	"github.com/ukydev/fleet-automation/internal/events"
	"github.com/ukydev/fleet-automation/internal/models"
)

// base holds the collaborators every engine component shares.
type base struct {
	store db.Store
	log   logrus.FieldLogger
	now   func() time.Time
}

// Options configures New. Zero values fall back to sensible defaults.
type Options struct {
	Logger      logrus.FieldLogger
	Publisher   events.Publisher
	Now         func() time.Time
	DuePolicies map[models.ServiceType]models.DuePolicy
	FeedLimit   int
	// ScanOnRead makes GetFeed run the compliance and due scans before
	// merging, instead of relying on the Scheduler.
	ScanOnRead bool
}

// Engine wires the automation components around one store.
type Engine struct {
	Alerts     *AlertFeed
	Trips      *TripController
	Vehicles   *Synchronizer
	Compliance *ComplianceMonitor
	Due        *DueDetector
	Roster     *Roster
	Expenses   *ExpenseBook
}

// New builds an Engine backed by store.
func New(store db.Store, opts Options) *Engine {
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NoopPublisher{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DuePolicies == nil {
		opts.DuePolicies = models.DefaultDuePolicies
	}
	if opts.FeedLimit <= 0 {
		opts.FeedLimit = 50
	}

	b := base{store: store, log: opts.Logger, now: opts.Now}
	alerts := &AlertFeed{base: b, publisher: opts.Publisher, limit: opts.FeedLimit, scanOnRead: opts.ScanOnRead}
	compliance := &ComplianceMonitor{base: b, alerts: alerts}
	due := &DueDetector{base: b, alerts: alerts, policies: opts.DuePolicies}
	alerts.scanners = []Scanner{compliance, due}
	synchronizer := &Synchronizer{base: b, alerts: alerts}

	return &Engine{
		Alerts:     alerts,
		Trips:      &TripController{base: b, alerts: alerts, vehicles: synchronizer, compliance: compliance},
		Vehicles:   synchronizer,
		Compliance: compliance,
		Due:        due,
		Roster:     &Roster{base: b},
		Expenses:   &ExpenseBook{base: b},
	}
}

// Scanners returns the periodic checks, for use with a Scheduler.
func (e *Engine) Scanners() []Scanner {
	return []Scanner{e.Compliance, e.Due}
}

func (e *Engine) ValidateTrip(ctx context.Context, draft TripDraft) ([]string, error) {
	return e.Trips.Validate(ctx, draft)
}

func (e *Engine) CreateTrip(ctx context.Context, draft TripDraft) (*models.Trip, error) {
	return e.Trips.Create(ctx, draft)
}

func (e *Engine) UpdateTrip(ctx context.Context, id string, patch TripPatch) (*models.Trip, error) {
	return e.Trips.Update(ctx, id, patch)
}

func (e *Engine) Dispatch(ctx context.Context, tripID string) (*models.Trip, error) {
	return e.Trips.Dispatch(ctx, tripID)
}

func (e *Engine) Complete(ctx context.Context, tripID string) (*models.Trip, error) {
	return e.Trips.Complete(ctx, tripID)
}

func (e *Engine) Cancel(ctx context.Context, tripID string) (*models.Trip, error) {
	return e.Trips.Cancel(ctx, tripID)
}

func (e *Engine) DeleteTrip(ctx context.Context, tripID string) error {
	return e.Trips.Delete(ctx, tripID)
}

func (e *Engine) OpenMaintenance(ctx context.Context, draft MaintenanceDraft) (*models.Maintenance, error) {
	return e.Vehicles.OpenMaintenance(ctx, draft)
}

func (e *Engine) CompleteMaintenance(ctx context.Context, id string) (*models.Maintenance, error) {
	return e.Vehicles.CompleteMaintenance(ctx, id)
}

func (e *Engine) DeleteMaintenance(ctx context.Context, id string) error {
	return e.Vehicles.DeleteMaintenance(ctx, id)
}

func (e *Engine) GetFeed(ctx context.Context) ([]models.FeedItem, error) {
	return e.Alerts.GetFeed(ctx)
}

func (e *Engine) ListAlerts(ctx context.Context, filter db.AlertFilter) ([]models.Alert, int64, error) {
	return e.Alerts.List(ctx, filter)
}

func (e *Engine) ResolveAlert(ctx context.Context, id, note string) (*models.Alert, error) {
	return e.Alerts.Resolve(ctx, id, note)
}

func (e *Engine) UnresolveAlert(ctx context.Context, id string) (*models.Alert, error) {
	return e.Alerts.Unresolve(ctx, id)
}

func (e *Engine) RegisterDriver(ctx context.Context, draft DriverDraft) (*models.Driver, error) {
	return e.Roster.RegisterDriver(ctx, draft)
}

func (e *Engine) SuspendDriver(ctx context.Context, id string) (*models.Driver, error) {
	return e.Roster.SuspendDriver(ctx, id)
}

func (e *Engine) BanDriver(ctx context.Context, id string) (*models.Driver, error) {
	return e.Roster.BanDriver(ctx, id)
}

func (e *Engine) ReinstateDriver(ctx context.Context, id string) (*models.Driver, error) {
	return e.Roster.ReinstateDriver(ctx, id)
}

func (e *Engine) RegisterVehicle(ctx context.Context, draft VehicleDraft) (*models.Vehicle, error) {
	return e.Roster.RegisterVehicle(ctx, draft)
}

func (e *Engine) DeleteDriver(ctx context.Context, id string) error {
	return e.Roster.DeleteDriver(ctx, id)
}

func (e *Engine) DeleteVehicle(ctx context.Context, id string) error {
	return e.Roster.DeleteVehicle(ctx, id)
}

func (e *Engine) DeleteExpense(ctx context.Context, id string) error {
	return e.Expenses.DeleteExpense(ctx, id)
}

func (e *Engine) RecordExpense(ctx context.Context, draft ExpenseDraft) (*models.Expense, error) {
	return e.Expenses.RecordExpense(ctx, draft)
}

// RunScans runs every scanner once and returns their reports by name.
// A failing scanner does not stop the others; their errors are joined.
func (e *Engine) RunScans(ctx context.Context) (map[string]ScanReport, error) {
	reports := make(map[string]ScanReport)
	var errs []error
	for _, s := range e.Scanners() {
		report, err := s.Check(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		reports[s.Name()] = report
	}
	return reports, errors.Join(errs...)
}

func (b *base) loadTrip(ctx context.Context, id string) (*models.Trip, error) {
	trip, err := b.store.FindTripByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("Trip not found.")
	}
	if err != nil {
		return nil, b.fail("loading trip", err, logrus.Fields{"trip_id": id})
	}
	return trip, nil
}

func (b *base) loadVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	vehicle, err := b.store.FindVehicleByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("Vehicle not found.")
	}
	if err != nil {
		return nil, b.fail("loading vehicle", err, logrus.Fields{"vehicle_id": id})
	}
	return vehicle, nil
}

func (b *base) loadDriver(ctx context.Context, id string) (*models.Driver, error) {
	driver, err := b.store.FindDriverByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("Driver not found.")
	}
	if err != nil {
		return nil, b.fail("loading driver", err, logrus.Fields{"driver_id": id})
	}
	return driver, nil
}

// openTrip returns the first trip matching filter that is neither Completed
// nor Cancelled, or nil.
func (b *base) openTrip(ctx context.Context, filter db.TripFilter) (*models.Trip, error) {
	trips, err := b.store.FindTrips(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range trips {
		if !trips[i].Status.Terminal() {
			return &trips[i], nil
		}
	}
	return nil, nil
}

func (b *base) loadMaintenance(ctx context.Context, id string) (*models.Maintenance, error) {
	record, err := b.store.FindMaintenanceByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("Maintenance record not found.")
	}
	if err != nil {
		return nil, b.fail("loading maintenance", err, logrus.Fields{"maintenance_id": id})
	}
	return record, nil
}

// kg formats a weight without trailing zeros.
func kg(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func ptr[T any](v T) *T {
	return &v
}
