package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// DriverStatus is the duty state of a driver.
type DriverStatus string

const (
	DriverOnDuty    DriverStatus = "OnDuty"
	DriverOffDuty   DriverStatus = "OffDuty"
	DriverSuspended DriverStatus = "Suspended"
	DriverBanned    DriverStatus = "Banned"
)

// Valid reports whether s is a known driver status.
func (s DriverStatus) Valid() bool {
	switch s {
	case DriverOnDuty, DriverOffDuty, DriverSuspended, DriverBanned:
		return true
	}
	return false
}

// DriverEvent is something that moves a driver between statuses.
type DriverEvent string

const (
	DriverGoOnDuty  DriverEvent = "go on duty"
	DriverGoOffDuty DriverEvent = "go off duty"
	DriverSuspend   DriverEvent = "suspend"
	DriverBan       DriverEvent = "ban"
	DriverReinstate DriverEvent = "reinstate"
)

// Apply returns the status reached by applying e to s. Banned is terminal.
func (s DriverStatus) Apply(e DriverEvent) (DriverStatus, error) {
	switch e {
	case DriverGoOnDuty:
		if s == DriverOnDuty || s == DriverOffDuty {
			return DriverOnDuty, nil
		}
	case DriverGoOffDuty:
		if s == DriverOnDuty || s == DriverOffDuty {
			return DriverOffDuty, nil
		}
	case DriverSuspend:
		if s == DriverOnDuty || s == DriverOffDuty {
			return DriverSuspended, nil
		}
	case DriverBan:
		if s == DriverOnDuty || s == DriverOffDuty || s == DriverSuspended {
			return DriverBanned, nil
		}
	case DriverReinstate:
		if s == DriverOffDuty || s == DriverSuspended {
			return DriverOnDuty, nil
		}
	}
	return s, &TransitionError{Entity: "driver", From: string(s), Event: string(e)}
}

// Driver represents a fleet driver and their performance counters.
type Driver struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name               string             `bson:"name" json:"name"`
	LicenseNumber      string             `bson:"license_number" json:"license_number"`
	LicenseExpiryDate  time.Time          `bson:"license_expiry_date" json:"license_expiry_date"`
	Contact            string             `bson:"contact" json:"contact"`
	Status             DriverStatus       `bson:"status" json:"status"`
	TotalTripsAssigned int                `bson:"total_trips_assigned" json:"total_trips_assigned"`
	TripsCompleted     int                `bson:"trips_completed" json:"trips_completed"`
	SafetyScorePct     float64            `bson:"safety_score_pct" json:"safety_score_pct"` // 0-100
	Incidents          int                `bson:"incidents" json:"incidents"`
	Warnings           int                `bson:"warnings" json:"warnings"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at" json:"updated_at"`
}

// LicenseExpired reports whether the licence expiry date is before now.
func (d *Driver) LicenseExpired(now time.Time) bool {
	return d.LicenseExpiryDate.Before(now)
}

// Selectable reports whether the driver may be assigned to a new trip.
func (d *Driver) Selectable() bool {
	return d.Status != DriverSuspended && d.Status != DriverBanned
}

// CompletionRate is trips completed over trips assigned, as a percentage.
// A driver with no assigned trips has a rate of 100.
func (d *Driver) CompletionRate() float64 {
	if d.TotalTripsAssigned == 0 {
		return 100
	}
	return float64(d.TripsCompleted) / float64(d.TotalTripsAssigned) * 100
}
