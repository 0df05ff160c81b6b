package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Severity ranks how urgently an alert needs attention.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities, critical highest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s == SeverityInfo || s == SeverityWarning || s == SeverityCritical
}

// EntityType names the collection an alert points at.
type EntityType string

const (
	EntityVehicle     EntityType = "vehicle"
	EntityDriver      EntityType = "driver"
	EntityTrip        EntityType = "trip"
	EntityMaintenance EntityType = "maintenance"
)

// AlertKind identifies the condition that produced an alert.
type AlertKind string

const (
	AlertTripDispatched       AlertKind = "trip_dispatched"
	AlertTripCompleted        AlertKind = "trip_completed"
	AlertTripCancelled        AlertKind = "trip_cancelled"
	AlertDispatchBlocked      AlertKind = "dispatch_blocked"
	AlertCargoOverweight      AlertKind = "cargo_overweight"
	AlertVehicleInShop        AlertKind = "vehicle_in_shop"
	AlertMaintenanceCompleted AlertKind = "maintenance_completed"
	AlertMaintenanceDue       AlertKind = "maintenance_due"
	AlertLicenseExpired       AlertKind = "license_expired"
	AlertLowSafetyScore       AlertKind = "low_safety_score"
	AlertDisciplineSuspension AlertKind = "discipline_suspension"

	// Computed on read, never persisted.
	AlertVehicleInShopAssigned  AlertKind = "vehicle_in_shop_assigned"
	AlertTripUnassignedDeadline AlertKind = "trip_unassigned_deadline"
)

// DedupKey builds the structured key used to find an existing unresolved
// alert for the same condition. qualifier narrows the key further, for
// example by service type; it may be empty.
func DedupKey(entityType EntityType, entityID string, kind AlertKind, qualifier string) string {
	parts := []string{string(entityType), entityID, string(kind)}
	if qualifier != "" {
		parts = append(parts, qualifier)
	}
	return strings.Join(parts, ":")
}

// Alert is a persisted operator notification.
type Alert struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title          string             `bson:"title" json:"title"`
	Message        string             `bson:"message" json:"message"`
	Severity       Severity           `bson:"severity" json:"severity"`
	Kind           AlertKind          `bson:"kind" json:"kind"`
	EntityType     EntityType         `bson:"entity_type" json:"entity_type"`
	EntityID       string             `bson:"entity_id" json:"entity_id"`
	DedupKey       string             `bson:"dedup_key" json:"dedup_key"`
	Resolved       bool               `bson:"resolved" json:"resolved"`
	ResolvedAt     *time.Time         `bson:"resolved_at,omitempty" json:"resolved_at,omitempty"`
	ResolutionNote string             `bson:"resolution_note,omitempty" json:"resolution_note,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

// FeedItem is one entry of the operator alert feed. Ephemeral items are
// computed at read time and have no stored counterpart.
type FeedItem struct {
	ID         string     `json:"id"`
	Kind       AlertKind  `json:"kind"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Severity   Severity   `json:"severity"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Resolved   bool       `json:"resolved"`
	CreatedAt  time.Time  `json:"created_at"`
	Ephemeral  bool       `json:"ephemeral"`
}

// FeedItemFromAlert converts a stored alert into a feed entry.
func FeedItemFromAlert(a Alert) FeedItem {
	return FeedItem{
		ID:         a.ID.Hex(),
		Kind:       a.Kind,
		Title:      a.Title,
		Message:    a.Message,
		Severity:   a.Severity,
		EntityType: a.EntityType,
		EntityID:   a.EntityID,
		Resolved:   a.Resolved,
		CreatedAt:  a.CreatedAt,
	}
}
