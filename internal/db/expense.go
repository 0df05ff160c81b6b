package db

import (
	"context"
	"time"

	"github.com/ukydev/fleet-automation/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InsertExpense inserts an expense record and sets its ID.
func (s *MongoStore) InsertExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID.IsZero() {
		expense.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = now
	}
	expense.UpdatedAt = now
	_, err := s.expenses.InsertOne(ctx, expense)
	return mapMongoErr(err)
}

// FindExpenseByID finds an expense by its ID.
func (s *MongoStore) FindExpenseByID(ctx context.Context, id string) (*models.Expense, error) {
	return findByID[models.Expense](ctx, s.expenses, id)
}

// FindExpenses queries expenses, newest first.
func (s *MongoStore) FindExpenses(ctx context.Context, f ExpenseFilter) ([]models.Expense, error) {
	filter := bson.M{}
	if f.Trip != "" {
		filter["trip"] = f.Trip
	}
	if f.Vehicle != "" {
		filter["vehicle"] = f.Vehicle
	}
	return findAll[models.Expense](ctx, s.expenses, filter, findOptions("expense_date", 0, f.Limit))
}

// DeleteExpense deletes an expense by its ID.
func (s *MongoStore) DeleteExpense(ctx context.Context, id string) error {
	return deleteByID(ctx, s.expenses, id)
}
