package db

import (
	"context"
	"time"

	"github.com/ukydev/fleet-automation/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InsertVehicle inserts a vehicle record and sets its ID.
func (s *MongoStore) InsertVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	if vehicle.ID.IsZero() {
		vehicle.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if vehicle.CreatedAt.IsZero() {
		vehicle.CreatedAt = now
	}
	vehicle.UpdatedAt = now
	_, err := s.vehicles.InsertOne(ctx, vehicle)
	return mapMongoErr(err)
}

// FindVehicleByID finds a vehicle by its ID.
func (s *MongoStore) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	return findByID[models.Vehicle](ctx, s.vehicles, id)
}

// FindVehicles queries vehicle records, newest first.
func (s *MongoStore) FindVehicles(ctx context.Context, f VehicleFilter) ([]models.Vehicle, error) {
	filter := bson.M{}
	if sf := statusFilter(f.Statuses, f.ExcludeStatuses); sf != nil {
		filter["status"] = sf
	}
	if f.Type != "" {
		filter["type"] = f.Type
	}
	return findAll[models.Vehicle](ctx, s.vehicles, filter, findOptions("created_at", 0, f.Limit))
}

// UpdateVehicleDetails sets the non-nil fields of details.
func (s *MongoStore) UpdateVehicleDetails(ctx context.Context, id string, d VehicleDetails) (*models.Vehicle, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updated_at": time.Now()}
	if d.NameModel != nil {
		set["name_model"] = *d.NameModel
	}
	if d.MaxCapacityKg != nil {
		set["max_capacity_kg"] = *d.MaxCapacityKg
	}
	if d.OdometerKm != nil {
		set["odometer_km"] = *d.OdometerKm
	}
	if d.AcquisitionCost != nil {
		set["acquisition_cost"] = *d.AcquisitionCost
	}
	var vehicle models.Vehicle
	err = s.vehicles.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&vehicle)
	if err != nil {
		return nil, mapMongoErr(err)
	}
	return &vehicle, nil
}

// UpdateVehicleStatus conditionally sets the vehicle status.
func (s *MongoStore) UpdateVehicleStatus(ctx context.Context, id string, expected []models.VehicleStatus, next models.VehicleStatus) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	cond := bson.M{}
	if len(expected) > 0 {
		cond["status"] = bson.M{"$in": expected}
	}
	return conditionalUpdate(ctx, s.vehicles, oid, cond,
		bson.M{"$set": bson.M{"status": next, "updated_at": time.Now()}})
}

// DeleteVehicle deletes a vehicle by its ID.
func (s *MongoStore) DeleteVehicle(ctx context.Context, id string) error {
	return deleteByID(ctx, s.vehicles, id)
}
