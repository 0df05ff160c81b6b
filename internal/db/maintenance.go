package db

import (
	"context"
	"time"

	"github.com/ukydev/fleet-automation/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InsertMaintenance inserts a maintenance record and sets its ID.
func (s *MongoStore) InsertMaintenance(ctx context.Context, maintenance *models.Maintenance) error {
	if maintenance.ID.IsZero() {
		maintenance.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if maintenance.CreatedAt.IsZero() {
		maintenance.CreatedAt = now
	}
	maintenance.UpdatedAt = now
	_, err := s.maintenance.InsertOne(ctx, maintenance)
	return mapMongoErr(err)
}

// FindMaintenanceByID finds a maintenance record by its ID.
func (s *MongoStore) FindMaintenanceByID(ctx context.Context, id string) (*models.Maintenance, error) {
	return findByID[models.Maintenance](ctx, s.maintenance, id)
}

// FindMaintenance queries maintenance records, most recent service first.
func (s *MongoStore) FindMaintenance(ctx context.Context, f MaintenanceFilter) ([]models.Maintenance, error) {
	filter := bson.M{}
	if f.Vehicle != "" {
		filter["vehicle"] = f.Vehicle
	}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	if f.ServiceType != "" {
		filter["service_type"] = f.ServiceType
	}
	return findAll[models.Maintenance](ctx, s.maintenance, filter, findOptions("service_date", 0, f.Limit))
}

// UpdateMaintenanceStatus moves a record from one status to another. A nil
// completedAt clears the completion date.
func (s *MongoStore) UpdateMaintenanceStatus(ctx context.Context, id string, from, to models.MaintenanceStatus, completedAt *time.Time) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	set := bson.M{"status": to, "updated_at": time.Now()}
	update := bson.M{"$set": set}
	if completedAt != nil {
		set["completed_date"] = *completedAt
	} else {
		update["$unset"] = bson.M{"completed_date": ""}
	}
	return conditionalUpdate(ctx, s.maintenance, oid, bson.M{"status": from}, update)
}

// DeleteMaintenance deletes a maintenance record by its ID.
func (s *MongoStore) DeleteMaintenance(ctx context.Context, id string) error {
	return deleteByID(ctx, s.maintenance, id)
}
