package db

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ukydev/fleet-automation/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore is a mutex-guarded Store kept entirely in process memory.
// Every conditional update is checked and applied under one lock, so it has
// the same per-document atomicity as the Mongo implementation.
type MemoryStore struct {
	mu          sync.Mutex
	vehicles    map[string]*models.Vehicle
	drivers     map[string]*models.Driver
	trips       map[string]*models.Trip
	maintenance map[string]*models.Maintenance
	alerts      map[string]*models.Alert
	expenses    map[string]*models.Expense
	users       map[string]*models.User
	order       map[string]int
	seq         int
	now         func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vehicles:    make(map[string]*models.Vehicle),
		drivers:     make(map[string]*models.Driver),
		trips:       make(map[string]*models.Trip),
		maintenance: make(map[string]*models.Maintenance),
		alerts:      make(map[string]*models.Alert),
		expenses:    make(map[string]*models.Expense),
		users:       make(map[string]*models.User),
		order:       make(map[string]int),
		now:         time.Now,
	}
}

// assignID gives a new record an id and remembers insertion order.
func (m *MemoryStore) assignID(id *primitive.ObjectID) string {
	if id.IsZero() {
		*id = primitive.NewObjectID()
	}
	hex := id.Hex()
	m.seq++
	m.order[hex] = m.seq
	return hex
}

func stamp(created, updated *time.Time, now time.Time) {
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

// newestFirst sorts by the given time descending, later inserts first on ties.
func newestFirst[T any](m *MemoryStore, items []T, at func(T) time.Time, id func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := at(items[i]), at(items[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return m.order[id(items[i])] > m.order[id(items[j])]
	})
}

func limit[T any](items []T, skip, n int) []T {
	if skip > 0 {
		if skip >= len(items) {
			return []T{}
		}
		items = items[skip:]
	}
	if n > 0 && len(items) > n {
		items = items[:n]
	}
	return items
}

func statusMatches[S comparable](s S, include, exclude []S) bool {
	if len(include) > 0 && !slices.Contains(include, s) {
		return false
	}
	return !slices.Contains(exclude, s)
}

// Vehicles

func (m *MemoryStore) InsertVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.vehicles {
		if v.LicensePlate != "" && v.LicensePlate == vehicle.LicensePlate {
			return ErrDuplicate
		}
	}
	id := m.assignID(&vehicle.ID)
	stamp(&vehicle.CreatedAt, &vehicle.UpdatedAt, m.now())
	cp := *vehicle
	m.vehicles[id] = &cp
	return nil
}

func (m *MemoryStore) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *MemoryStore) FindVehicles(ctx context.Context, f VehicleFilter) ([]models.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Vehicle{}
	for _, v := range m.vehicles {
		if !statusMatches(v.Status, f.Statuses, f.ExcludeStatuses) {
			continue
		}
		if f.Type != "" && v.Type != f.Type {
			continue
		}
		out = append(out, *v)
	}
	newestFirst(m, out, func(v models.Vehicle) time.Time { return v.CreatedAt }, func(v models.Vehicle) string { return v.ID.Hex() })
	return limit(out, 0, f.Limit), nil
}

func (m *MemoryStore) UpdateVehicleDetails(ctx context.Context, id string, d VehicleDetails) (*models.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	if d.NameModel != nil {
		v.NameModel = *d.NameModel
	}
	if d.MaxCapacityKg != nil {
		v.MaxCapacityKg = *d.MaxCapacityKg
	}
	if d.OdometerKm != nil {
		v.OdometerKm = *d.OdometerKm
	}
	if d.AcquisitionCost != nil {
		v.AcquisitionCost = *d.AcquisitionCost
	}
	v.UpdatedAt = m.now()
	cp := *v
	return &cp, nil
}

func (m *MemoryStore) UpdateVehicleStatus(ctx context.Context, id string, expected []models.VehicleStatus, next models.VehicleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return ErrNotFound
	}
	if len(expected) > 0 && !slices.Contains(expected, v.Status) {
		return ErrConflict
	}
	v.Status = next
	v.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) DeleteVehicle(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vehicles[id]; !ok {
		return ErrNotFound
	}
	delete(m.vehicles, id)
	return nil
}

// Drivers

func (m *MemoryStore) InsertDriver(ctx context.Context, driver *models.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.drivers {
		if d.LicenseNumber == driver.LicenseNumber {
			return ErrDuplicate
		}
	}
	id := m.assignID(&driver.ID)
	stamp(&driver.CreatedAt, &driver.UpdatedAt, m.now())
	cp := *driver
	m.drivers[id] = &cp
	return nil
}

func (m *MemoryStore) FindDriverByID(ctx context.Context, id string) (*models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) FindDrivers(ctx context.Context, f DriverFilter) ([]models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Driver{}
	for _, d := range m.drivers {
		if !statusMatches(d.Status, f.Statuses, f.ExcludeStatuses) {
			continue
		}
		if f.LicenseValidAt != nil && d.LicenseExpiryDate.Before(*f.LicenseValidAt) {
			continue
		}
		out = append(out, *d)
	}
	newestFirst(m, out, func(d models.Driver) time.Time { return d.CreatedAt }, func(d models.Driver) string { return d.ID.Hex() })
	return limit(out, 0, f.Limit), nil
}

func (m *MemoryStore) UpdateDriverProfile(ctx context.Context, id string, p DriverProfile) (*models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Name != nil {
		d.Name = *p.Name
	}
	if p.Contact != nil {
		d.Contact = *p.Contact
	}
	if p.LicenseExpiryDate != nil {
		d.LicenseExpiryDate = *p.LicenseExpiryDate
	}
	if p.SafetyScorePct != nil {
		d.SafetyScorePct = *p.SafetyScorePct
	}
	if p.Incidents != nil {
		d.Incidents = *p.Incidents
	}
	d.UpdatedAt = m.now()
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) UpdateDriverStatus(ctx context.Context, id string, expected []models.DriverStatus, next models.DriverStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return ErrNotFound
	}
	if len(expected) > 0 && !slices.Contains(expected, d.Status) {
		return ErrConflict
	}
	d.Status = next
	d.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) IncrementDriverCounters(ctx context.Context, id string, delta DriverCounters) (*models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	d.TotalTripsAssigned += delta.TotalTripsAssigned
	d.TripsCompleted += delta.TripsCompleted
	d.Warnings += delta.Warnings
	d.UpdatedAt = m.now()
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) DeleteDriver(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drivers[id]; !ok {
		return ErrNotFound
	}
	delete(m.drivers, id)
	return nil
}

// Trips

func (m *MemoryStore) InsertTrip(ctx context.Context, trip *models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trips {
		if t.TripCode != "" && t.TripCode == trip.TripCode {
			return ErrDuplicate
		}
	}
	id := m.assignID(&trip.ID)
	stamp(&trip.CreatedAt, &trip.UpdatedAt, m.now())
	cp := *trip
	m.trips[id] = &cp
	return nil
}

func (m *MemoryStore) FindTripByID(ctx context.Context, id string) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) FindTrips(ctx context.Context, f TripFilter) ([]models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Trip{}
	for _, t := range m.trips {
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
			continue
		}
		if f.Vehicle != "" && t.AssignedVehicle != f.Vehicle {
			continue
		}
		if f.Driver != "" && t.AssignedDriver != f.Driver {
			continue
		}
		if f.ExpectedDeliveryFrom != nil || f.ExpectedDeliveryTo != nil {
			if t.ExpectedDeliveryDate == nil {
				continue
			}
			if f.ExpectedDeliveryFrom != nil && t.ExpectedDeliveryDate.Before(*f.ExpectedDeliveryFrom) {
				continue
			}
			if f.ExpectedDeliveryTo != nil && t.ExpectedDeliveryDate.After(*f.ExpectedDeliveryTo) {
				continue
			}
		}
		out = append(out, *t)
	}
	newestFirst(m, out, func(t models.Trip) time.Time { return t.CreatedAt }, func(t models.Trip) string { return t.ID.Hex() })
	return limit(out, 0, f.Limit), nil
}

func (m *MemoryStore) CountTrips(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.trips)), nil
}

func (m *MemoryStore) UpdateTripDetails(ctx context.Context, trip *models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[trip.ID.Hex()]
	if !ok {
		return ErrNotFound
	}
	if t.Status != models.TripDraft {
		return ErrConflict
	}
	t.PickupLocation = trip.PickupLocation
	t.DeliveryLocation = trip.DeliveryLocation
	t.CargoWeightKg = trip.CargoWeightKg
	t.AssignedVehicle = trip.AssignedVehicle
	t.AssignedDriver = trip.AssignedDriver
	t.ExpectedStartDate = trip.ExpectedStartDate
	t.ExpectedDeliveryDate = trip.ExpectedDeliveryDate
	t.DistanceKm = trip.DistanceKm
	t.Revenue = trip.Revenue
	t.EstimatedFuelCost = trip.EstimatedFuelCost
	t.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) UpdateTripStatus(ctx context.Context, id string, from, to models.TripStatus, ts TripTimestamps) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status != from {
		return ErrConflict
	}
	t.Status = to
	if ts.ActualStartDate != nil {
		at := *ts.ActualStartDate
		t.ActualStartDate = &at
	}
	if ts.ActualDeliveryDate != nil {
		at := *ts.ActualDeliveryDate
		t.ActualDeliveryDate = &at
	}
	t.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) DeleteTrip(ctx context.Context, id string, allowed []models.TripStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return ErrNotFound
	}
	if len(allowed) > 0 && !slices.Contains(allowed, t.Status) {
		return ErrConflict
	}
	delete(m.trips, id)
	return nil
}

// Maintenance

func (m *MemoryStore) InsertMaintenance(ctx context.Context, maintenance *models.Maintenance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.assignID(&maintenance.ID)
	stamp(&maintenance.CreatedAt, &maintenance.UpdatedAt, m.now())
	cp := *maintenance
	m.maintenance[id] = &cp
	return nil
}

func (m *MemoryStore) FindMaintenanceByID(ctx context.Context, id string) (*models.Maintenance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.maintenance[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) FindMaintenance(ctx context.Context, f MaintenanceFilter) ([]models.Maintenance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Maintenance{}
	for _, rec := range m.maintenance {
		if f.Vehicle != "" && rec.Vehicle != f.Vehicle {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, rec.Status) {
			continue
		}
		if f.ServiceType != "" && rec.ServiceType != f.ServiceType {
			continue
		}
		out = append(out, *rec)
	}
	newestFirst(m, out, func(r models.Maintenance) time.Time { return r.ServiceDate }, func(r models.Maintenance) string { return r.ID.Hex() })
	return limit(out, 0, f.Limit), nil
}

func (m *MemoryStore) UpdateMaintenanceStatus(ctx context.Context, id string, from, to models.MaintenanceStatus, completedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.maintenance[id]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != from {
		return ErrConflict
	}
	rec.Status = to
	rec.CompletedDate = nil
	if completedAt != nil {
		at := *completedAt
		rec.CompletedDate = &at
	}
	rec.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) DeleteMaintenance(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.maintenance[id]; !ok {
		return ErrNotFound
	}
	delete(m.maintenance, id)
	return nil
}

// Alerts

func (m *MemoryStore) InsertAlert(ctx context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.assignID(&alert.ID)
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = m.now()
	}
	alert.UpdatedAt = alert.CreatedAt
	cp := *alert
	m.alerts[id] = &cp
	return nil
}

func (m *MemoryStore) FindAlertByID(ctx context.Context, id string) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func alertMatches(a *models.Alert, f AlertFilter) bool {
	switch {
	case f.Resolved != nil && a.Resolved != *f.Resolved:
		return false
	case f.Severity != "" && a.Severity != f.Severity:
		return false
	case f.EntityType != "" && a.EntityType != f.EntityType:
		return false
	case f.EntityID != "" && a.EntityID != f.EntityID:
		return false
	case f.Kind != "" && a.Kind != f.Kind:
		return false
	}
	return true
}

func (m *MemoryStore) FindAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Alert{}
	for _, a := range m.alerts {
		if alertMatches(a, f) {
			out = append(out, *a)
		}
	}
	newestFirst(m, out, func(a models.Alert) time.Time { return a.CreatedAt }, func(a models.Alert) string { return a.ID.Hex() })
	return limit(out, f.Skip, f.Limit), nil
}

func (m *MemoryStore) CountAlerts(ctx context.Context, f AlertFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.alerts {
		if alertMatches(a, f) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) HasUnresolved(ctx context.Context, dedupKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if !a.Resolved && a.DedupKey == dedupKey {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) SetAlertResolution(ctx context.Context, id string, resolved bool, note string, at *time.Time) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Resolved == resolved {
		return nil, ErrConflict
	}
	a.Resolved = resolved
	if resolved {
		a.ResolutionNote = note
		if at != nil {
			t := *at
			a.ResolvedAt = &t
		}
	} else {
		a.ResolutionNote = ""
		a.ResolvedAt = nil
	}
	a.UpdatedAt = m.now()
	cp := *a
	return &cp, nil
}

// Expenses

func (m *MemoryStore) InsertExpense(ctx context.Context, expense *models.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.assignID(&expense.ID)
	stamp(&expense.CreatedAt, &expense.UpdatedAt, m.now())
	cp := *expense
	m.expenses[id] = &cp
	return nil
}

func (m *MemoryStore) FindExpenseByID(ctx context.Context, id string) (*models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.expenses[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) FindExpenses(ctx context.Context, f ExpenseFilter) ([]models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Expense{}
	for _, e := range m.expenses {
		if f.Trip != "" && e.Trip != f.Trip {
			continue
		}
		if f.Vehicle != "" && e.Vehicle != f.Vehicle {
			continue
		}
		out = append(out, *e)
	}
	newestFirst(m, out, func(e models.Expense) time.Time { return e.ExpenseDate }, func(e models.Expense) string { return e.ID.Hex() })
	return limit(out, 0, f.Limit), nil
}

func (m *MemoryStore) DeleteExpense(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.expenses[id]; !ok {
		return ErrNotFound
	}
	delete(m.expenses, id)
	return nil
}

// Users

func (m *MemoryStore) InsertUser(ctx context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username || strings.EqualFold(u.Email, user.Email) {
			return ErrDuplicate
		}
	}
	id := m.assignID(&user.ID)
	stamp(&user.CreatedAt, &user.UpdatedAt, m.now())
	user.IsActive = true
	m.users[id] = &user
	return nil
}

func (m *MemoryStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) findUser(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return m.findUser(func(u *models.User) bool { return u.Username == username })
}

func (m *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.findUser(func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *MemoryStore) UpdateUser(ctx context.Context, id string, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	user.ID = existing.ID
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = m.now()
	m.users[id] = &user
	return nil
}

func (m *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *MemoryStore) UpdateLastLogin(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	now := m.now()
	u.LastLogin = &now
	u.UpdatedAt = now
	return nil
}
