package models

import (
	"time"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ExpenseStatus tracks an expense through review.
type ExpenseStatus string

const (
	ExpensePending  ExpenseStatus = "Pending"
	ExpenseApproved ExpenseStatus = "Approved"
	ExpenseRecorded ExpenseStatus = "Recorded"
)

// Expense is the fuel and incidental cost of a completed trip.
type Expense struct {
	ID                primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Trip              string             `json:"trip" bson:"trip"`
	Vehicle           string             `json:"vehicle" bson:"vehicle"`
	Driver            string             `json:"driver" bson:"driver"`
	DistanceCoveredKm float64            `json:"distance_covered_km" bson:"distance_covered_km"`
	FuelLiters        float64            `json:"fuel_liters" bson:"fuel_liters"`
	FuelCost          float64            `json:"fuel_cost" bson:"fuel_cost"`
	MiscCost          float64            `json:"misc_cost" bson:"misc_cost"`
	ExpenseDate       time.Time          `json:"expense_date" bson:"expense_date"`
	Description       string             `json:"description" bson:"description"`
	Status            ExpenseStatus      `json:"status" bson:"status"`
	CreatedAt         time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at" bson:"updated_at"`
}

// Total is fuel plus misc cost.
func (e *Expense) Total() float64 {
	return e.FuelCost + e.MiscCost
}
