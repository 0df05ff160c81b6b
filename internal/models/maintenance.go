package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// ServiceType is the kind of work performed by a maintenance record.
type ServiceType string

const (
	ServiceOilChange          ServiceType = "Oil Change"
	ServiceTireReplacement    ServiceType = "Tire Replacement"
	ServiceEngineRepair       ServiceType = "Engine Repair"
	ServiceBrakeService       ServiceType = "Brake Service"
	ServiceGeneralInspection  ServiceType = "General Inspection"
	ServiceGeneralService     ServiceType = "General Service"
	ServiceBatteryReplacement ServiceType = "Battery Replacement"
	ServiceTransmission       ServiceType = "Transmission"
	ServiceOther              ServiceType = "Other"
)

// Valid reports whether t is a known service type.
func (t ServiceType) Valid() bool {
	switch t {
	case ServiceOilChange, ServiceTireReplacement, ServiceEngineRepair, ServiceBrakeService,
		ServiceGeneralInspection, ServiceGeneralService, ServiceBatteryReplacement,
		ServiceTransmission, ServiceOther:
		return true
	}
	return false
}

// MaintenanceStatus is Open until the work is done, then Completed.
type MaintenanceStatus string

const (
	MaintenanceOpen      MaintenanceStatus = "Open"
	MaintenanceCompleted MaintenanceStatus = "Completed"
)

// MaintenanceEvent is an action on a maintenance record.
type MaintenanceEvent string

const MaintenanceComplete MaintenanceEvent = "complete"

// Apply returns the status reached by applying e to s.
func (s MaintenanceStatus) Apply(e MaintenanceEvent) (MaintenanceStatus, error) {
	if e == MaintenanceComplete && s == MaintenanceOpen {
		return MaintenanceCompleted, nil
	}
	return s, &TransitionError{Entity: "maintenance", From: string(s), Event: string(e)}
}

// Maintenance represents a vehicle service record.
type Maintenance struct {
	ID                primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Vehicle           string             `json:"vehicle" bson:"vehicle"`
	ServiceType       ServiceType        `json:"service_type" bson:"service_type"`
	ServiceDate       time.Time          `json:"service_date" bson:"service_date"`
	OdometerAtService float64            `json:"odometer_at_service" bson:"odometer_at_service"` // in kilometers
	Description       string             `json:"description" bson:"description"`
	Cost              float64            `json:"cost" bson:"cost"`
	Status            MaintenanceStatus  `json:"status" bson:"status"`
	CompletedDate     *time.Time         `json:"completed_date,omitempty" bson:"completed_date,omitempty"`
	CreatedAt         time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at" bson:"updated_at"`
}
