package automation

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-automation/internal/db"
	"github.com/ukydev/fleet-automation/internal/models"
)

// ExpenseDraft is the input for recording a trip expense. Vehicle and
// Driver may be left empty; they are filled from the trip.
type ExpenseDraft struct {
	Trip              string     `json:"trip"`
	Vehicle           string     `json:"vehicle,omitempty"`
	Driver            string     `json:"driver,omitempty"`
	DistanceCoveredKm float64    `json:"distance_covered_km"`
	FuelLiters        float64    `json:"fuel_liters"`
	FuelCost          float64    `json:"fuel_cost"`
	MiscCost          float64    `json:"misc_cost"`
	ExpenseDate       *time.Time `json:"expense_date,omitempty"`
	Description       string     `json:"description"`
}

// ExpenseBook records fuel and incidental costs against completed trips.
type ExpenseBook struct {
	base
}

const msgExpenseMismatch = "Expense vehicle/driver mismatch with the selected trip."

// RecordExpense stores an expense for a Completed trip.
func (b *ExpenseBook) RecordExpense(ctx context.Context, d ExpenseDraft) (*models.Expense, error) {
	if d.DistanceCoveredKm < 0 || d.FuelLiters < 0 || d.FuelCost < 0 || d.MiscCost < 0 {
		return nil, invalid("Expense amounts cannot be negative.")
	}
	trip, err := b.loadTrip(ctx, d.Trip)
	if err != nil {
		return nil, err
	}
	if trip.Status != models.TripCompleted {
		return nil, invalid("Expenses can only be recorded for Completed trips.")
	}
	if d.Vehicle != "" && d.Vehicle != trip.AssignedVehicle {
		return nil, invalid(msgExpenseMismatch)
	}
	if d.Driver != "" && d.Driver != trip.AssignedDriver {
		return nil, invalid(msgExpenseMismatch)
	}

	now := b.now()
	expense := &models.Expense{
		Trip:              d.Trip,
		Vehicle:           trip.AssignedVehicle,
		Driver:            trip.AssignedDriver,
		DistanceCoveredKm: d.DistanceCoveredKm,
		FuelLiters:        d.FuelLiters,
		FuelCost:          d.FuelCost,
		MiscCost:          d.MiscCost,
		ExpenseDate:       now,
		Description:       d.Description,
		Status:            models.ExpensePending,
		CreatedAt:         now,
	}
	if d.ExpenseDate != nil {
		expense.ExpenseDate = *d.ExpenseDate
	}
	if err := b.store.InsertExpense(ctx, expense); err != nil {
		return nil, b.fail("recording expense", err, logrus.Fields{"trip_id": d.Trip})
	}
	b.log.WithFields(logrus.Fields{"trip_id": d.Trip, "expense_id": expense.ID.Hex(), "total": expense.Total()}).Info("expense recorded")
	return expense, nil
}

// ListExpenses returns expenses matching filter, newest first.
func (b *ExpenseBook) ListExpenses(ctx context.Context, filter db.ExpenseFilter) ([]models.Expense, error) {
	expenses, err := b.store.FindExpenses(ctx, filter)
	if err != nil {
		return nil, b.fail("listing expenses", err, nil)
	}
	return expenses, nil
}

// GetExpense returns one expense.
func (b *ExpenseBook) GetExpense(ctx context.Context, id string) (*models.Expense, error) {
	expense, err := b.store.FindExpenseByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("Expense not found.")
	}
	if err != nil {
		return nil, b.fail("loading expense", err, logrus.Fields{"expense_id": id})
	}
	return expense, nil
}

// DeleteExpense removes an expense.
func (b *ExpenseBook) DeleteExpense(ctx context.Context, id string) error {
	err := b.store.DeleteExpense(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return notFound("Expense not found.")
	}
	if err != nil {
		return b.fail("deleting expense", err, logrus.Fields{"expense_id": id})
	}
	b.log.WithField("expense_id", id).Info("expense deleted")
	return nil
}
