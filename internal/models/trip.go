package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// TripStatus is the lifecycle stage of a trip.
type TripStatus string

const (
	TripDraft      TripStatus = "Draft"
	TripDispatched TripStatus = "Dispatched"
	TripCompleted  TripStatus = "Completed"
	TripCancelled  TripStatus = "Cancelled"
)

// TripEvent is an operator action on a trip.
type TripEvent string

const (
	TripDispatch TripEvent = "dispatch"
	TripComplete TripEvent = "complete"
	TripCancel   TripEvent = "cancel"
)

// Apply returns the status reached by applying e to s.
// Draft -> Dispatched -> Completed, and Cancelled from Draft or Dispatched.
func (s TripStatus) Apply(e TripEvent) (TripStatus, error) {
	switch {
	case e == TripDispatch && s == TripDraft:
		return TripDispatched, nil
	case e == TripComplete && s == TripDispatched:
		return TripCompleted, nil
	case e == TripCancel && (s == TripDraft || s == TripDispatched):
		return TripCancelled, nil
	}
	return s, &TransitionError{Entity: "trip", From: string(s), Event: string(e)}
}

// Terminal reports whether no further transitions are possible.
func (s TripStatus) Terminal() bool {
	return s == TripCompleted || s == TripCancelled
}

// Trip represents a delivery from a pickup to a delivery location.
// AssignedVehicle and AssignedDriver hold hex ids; empty means unassigned.
type Trip struct {
	ID                   primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TripCode             string             `json:"trip_code" bson:"trip_code"` // T-YYYYMMDD-NNN
	PickupLocation       string             `json:"pickup_location" bson:"pickup_location"`
	DeliveryLocation     string             `json:"delivery_location" bson:"delivery_location"`
	CargoWeightKg        float64            `json:"cargo_weight_kg" bson:"cargo_weight_kg"`
	AssignedVehicle      string             `json:"assigned_vehicle,omitempty" bson:"assigned_vehicle,omitempty"`
	AssignedDriver       string             `json:"assigned_driver,omitempty" bson:"assigned_driver,omitempty"`
	Status               TripStatus         `json:"status" bson:"status"`
	ExpectedStartDate    *time.Time         `json:"expected_start_date,omitempty" bson:"expected_start_date,omitempty"`
	ExpectedDeliveryDate *time.Time         `json:"expected_delivery_date,omitempty" bson:"expected_delivery_date,omitempty"`
	ActualStartDate      *time.Time         `json:"actual_start_date,omitempty" bson:"actual_start_date,omitempty"`
	ActualDeliveryDate   *time.Time         `json:"actual_delivery_date,omitempty" bson:"actual_delivery_date,omitempty"`
	DistanceKm           float64            `json:"distance_km" bson:"distance_km"`
	Revenue              float64            `json:"revenue" bson:"revenue"`
	EstimatedFuelCost    float64            `json:"estimated_fuel_cost" bson:"estimated_fuel_cost"`
	CreatedAt            time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at" bson:"updated_at"`
}
