package automation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-automation/internal/db"
	"github.com/ukydev/fleet-automation/internal/events"
	"github.com/ukydev/fleet-automation/internal/models"
)

// deadlineWindow is how close an unassigned Draft trip's delivery date must
// be before the feed flags it.
const deadlineWindow = 48 * time.Hour

// dedupedKinds are raised at most once while an unresolved alert with the
// same key exists; the feed collapses them by key.
var dedupedKinds = map[models.AlertKind]bool{
	models.AlertLicenseExpired: true,
	models.AlertLowSafetyScore: true,
	models.AlertMaintenanceDue: true,
}

// AlertSpec describes an alert to create.
type AlertSpec struct {
	Kind       models.AlertKind
	Title      string
	Message    string
	Severity   models.Severity
	EntityType models.EntityType
	EntityID   string
	// Qualifier narrows the dedup key, e.g. the service type for due alerts.
	Qualifier string
}

func (s AlertSpec) key() string {
	return models.DedupKey(s.EntityType, s.EntityID, s.Kind, s.Qualifier)
}

func (s AlertSpec) fields() logrus.Fields {
	return logrus.Fields{"alert_kind": s.Kind, "entity_type": s.EntityType, "entity_id": s.EntityID}
}

// AlertFeed persists alerts, fans them out to the broker and builds the
// operator feed.
type AlertFeed struct {
	base
	publisher  events.Publisher
	limit      int
	scanOnRead bool
	scanners   []Scanner
}

// CreateAlert appends an alert unconditionally. Callers that need
// deduplication check HasUnresolved first, see raiseOnce.
func (f *AlertFeed) CreateAlert(ctx context.Context, spec AlertSpec) (*models.Alert, error) {
	if !spec.Severity.Valid() {
		return nil, invalid(fmt.Sprintf("Unknown severity %q.", spec.Severity))
	}
	now := f.now()
	alert := &models.Alert{
		Title:      spec.Title,
		Message:    spec.Message,
		Severity:   spec.Severity,
		Kind:       spec.Kind,
		EntityType: spec.EntityType,
		EntityID:   spec.EntityID,
		DedupKey:   spec.key(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := f.store.InsertAlert(ctx, alert); err != nil {
		return nil, f.fail("creating alert", err, spec.fields())
	}
	if err := f.publisher.Publish(ctx, events.NewAlertEvent(alert)); err != nil {
		f.log.WithFields(spec.fields()).WithError(err).Warn("failed to publish alert event")
	}
	return alert, nil
}

// raise creates an alert on behalf of a mutation. Failures are logged and
// never reach the caller.
func (f *AlertFeed) raise(ctx context.Context, spec AlertSpec) bool {
	if _, err := f.CreateAlert(ctx, spec); err != nil {
		f.log.WithFields(spec.fields()).WithError(err).Warn("alert dropped")
		return false
	}
	return true
}

// raiseOnce is raise guarded by the dedup key.
func (f *AlertFeed) raiseOnce(ctx context.Context, spec AlertSpec) bool {
	exists, err := f.store.HasUnresolved(ctx, spec.key())
	if err != nil {
		f.log.WithFields(spec.fields()).WithError(err).Warn("alert dedup lookup failed, skipping")
		return false
	}
	if exists {
		return false
	}
	return f.raise(ctx, spec)
}

// Resolve marks an alert resolved with an operator note.
func (f *AlertFeed) Resolve(ctx context.Context, id, note string) (*models.Alert, error) {
	at := f.now()
	alert, err := f.store.SetAlertResolution(ctx, id, true, note, &at)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, notFound("Alert not found.")
	case errors.Is(err, db.ErrConflict):
		return nil, conflict("Alert already resolved.")
	case err != nil:
		return nil, f.fail("resolving alert", err, logrus.Fields{"alert_id": id})
	}
	return alert, nil
}

// Unresolve reopens a resolved alert.
func (f *AlertFeed) Unresolve(ctx context.Context, id string) (*models.Alert, error) {
	alert, err := f.store.SetAlertResolution(ctx, id, false, "", nil)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, notFound("Alert not found.")
	case errors.Is(err, db.ErrConflict):
		return nil, conflict("Alert is not resolved.")
	case err != nil:
		return nil, f.fail("reopening alert", err, logrus.Fields{"alert_id": id})
	}
	return alert, nil
}

// List returns one page of persisted alerts and the total matching count.
func (f *AlertFeed) List(ctx context.Context, filter db.AlertFilter) ([]models.Alert, int64, error) {
	alerts, err := f.store.FindAlerts(ctx, filter)
	if err != nil {
		return nil, 0, f.fail("listing alerts", err, nil)
	}
	total, err := f.store.CountAlerts(ctx, filter)
	if err != nil {
		return nil, 0, f.fail("counting alerts", err, nil)
	}
	return alerts, total, nil
}

// GetFeed returns unresolved persisted alerts, newest first, followed by
// alerts computed from current state.
func (f *AlertFeed) GetFeed(ctx context.Context) ([]models.FeedItem, error) {
	if f.scanOnRead {
		for _, s := range f.scanners {
			if _, err := s.Check(ctx); err != nil {
				f.log.WithField("scanner", s.Name()).WithError(err).Warn("scan before feed read failed")
			}
		}
	}

	unresolved := false
	alerts, err := f.store.FindAlerts(ctx, db.AlertFilter{Resolved: &unresolved, Limit: f.limit})
	if err != nil {
		return nil, f.fail("reading alert feed", err, nil)
	}
	items := make([]models.FeedItem, 0, len(alerts))
	seen := make(map[string]bool)
	for _, a := range alerts {
		if dedupedKinds[a.Kind] {
			if seen[a.DedupKey] {
				continue
			}
			seen[a.DedupKey] = true
		}
		items = append(items, models.FeedItemFromAlert(a))
	}

	live, err := f.ephemeral(ctx)
	if err != nil {
		return nil, err
	}
	return append(items, live...), nil
}

// ephemeral computes the feed entries that are never persisted.
func (f *AlertFeed) ephemeral(ctx context.Context) ([]models.FeedItem, error) {
	now := f.now()
	var items []models.FeedItem

	inShop, err := f.store.FindVehicles(ctx, db.VehicleFilter{Statuses: []models.VehicleStatus{models.VehicleInShop}})
	if err != nil {
		return nil, f.fail("reading in-shop vehicles", err, nil)
	}
	for _, v := range inShop {
		trips, err := f.store.FindTrips(ctx, db.TripFilter{
			Statuses: []models.TripStatus{models.TripDispatched},
			Vehicle:  v.ID.Hex(),
			Limit:    1,
		})
		if err != nil {
			return nil, f.fail("reading active trips", err, logrus.Fields{"vehicle_id": v.ID.Hex()})
		}
		if len(trips) == 0 {
			continue
		}
		items = append(items, liveItem(models.AlertVehicleInShopAssigned, models.SeverityCritical,
			models.EntityVehicle, v.ID.Hex(), "Vehicle In Shop On Active Trip",
			fmt.Sprintf("%s (%s) is In Shop but assigned to trip %s", v.NameModel, v.LicensePlate, trips[0].TripCode), now))
	}

	until := now.Add(deadlineWindow)
	drafts, err := f.store.FindTrips(ctx, db.TripFilter{
		Statuses:             []models.TripStatus{models.TripDraft},
		ExpectedDeliveryFrom: &now,
		ExpectedDeliveryTo:   &until,
	})
	if err != nil {
		return nil, f.fail("reading draft trips", err, nil)
	}
	for _, t := range drafts {
		if t.AssignedVehicle != "" && t.AssignedDriver != "" {
			continue
		}
		items = append(items, liveItem(models.AlertTripUnassignedDeadline, models.SeverityWarning,
			models.EntityTrip, t.ID.Hex(), "Trip Deadline Unassigned",
			fmt.Sprintf("Trip %s is approaching deadline but still unassigned", t.TripCode), now))
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Severity.Rank() > items[j].Severity.Rank()
	})
	return items, nil
}

func liveItem(kind models.AlertKind, severity models.Severity, entityType models.EntityType, entityID, title, message string, now time.Time) models.FeedItem {
	return models.FeedItem{
		ID:         "ephemeral:" + models.DedupKey(entityType, entityID, kind, ""),
		Kind:       kind,
		Title:      title,
		Message:    message,
		Severity:   severity,
		EntityType: entityType,
		EntityID:   entityID,
		CreatedAt:  now,
		Ephemeral:  true,
	}
}
