package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// VehicleType is the body class of a fleet vehicle.
type VehicleType string

const (
	VehicleTruck VehicleType = "Truck"
	VehicleVan   VehicleType = "Van"
	VehicleBike  VehicleType = "Bike"
)

// Valid reports whether t is a known vehicle type.
func (t VehicleType) Valid() bool {
	switch t {
	case VehicleTruck, VehicleVan, VehicleBike:
		return true
	}
	return false
}

// VehicleStatus is the availability of a vehicle. Apart from Retired it is
// derived from trip and maintenance state, see DeriveVehicleStatus.
type VehicleStatus string

const (
	VehicleAvailable VehicleStatus = "Available"
	VehicleOnTrip    VehicleStatus = "OnTrip"
	VehicleInShop    VehicleStatus = "InShop"
	VehicleRetired   VehicleStatus = "Retired"
)

// Valid reports whether s is a known vehicle status.
func (s VehicleStatus) Valid() bool {
	switch s {
	case VehicleAvailable, VehicleOnTrip, VehicleInShop, VehicleRetired:
		return true
	}
	return false
}

// Vehicle represents a fleet vehicle.
type Vehicle struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	NameModel       string             `bson:"name_model" json:"name_model"`
	LicensePlate    string             `bson:"license_plate" json:"license_plate"`
	Type            VehicleType        `bson:"type" json:"type"`
	MaxCapacityKg   float64            `bson:"max_capacity_kg" json:"max_capacity_kg"`
	OdometerKm      float64            `bson:"odometer_km" json:"odometer_km"`
	Status          VehicleStatus      `bson:"status" json:"status"`
	AcquisitionCost float64            `bson:"acquisition_cost" json:"acquisition_cost"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}

// DeriveVehicleStatus computes what a vehicle's status should be given the
// facts held by other collections. Retired vehicles stay retired and an open
// maintenance record wins over an active dispatch.
func DeriveVehicleStatus(current VehicleStatus, openMaintenance, activeDispatch bool) VehicleStatus {
	switch {
	case current == VehicleRetired:
		return VehicleRetired
	case openMaintenance:
		return VehicleInShop
	case activeDispatch:
		return VehicleOnTrip
	default:
		return VehicleAvailable
	}
}
