package db

import (
	"context"
	"time"

	"github.com/ukydev/fleet-automation/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InsertTrip inserts a trip record and sets its ID.
func (s *MongoStore) InsertTrip(ctx context.Context, trip *models.Trip) error {
	if trip.ID.IsZero() {
		trip.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = now
	}
	trip.UpdatedAt = now
	_, err := s.trips.InsertOne(ctx, trip)
	return mapMongoErr(err)
}

// FindTripByID finds a trip by its ID.
func (s *MongoStore) FindTripByID(ctx context.Context, id string) (*models.Trip, error) {
	return findByID[models.Trip](ctx, s.trips, id)
}

// FindTrips queries trip records, newest first.
func (s *MongoStore) FindTrips(ctx context.Context, f TripFilter) ([]models.Trip, error) {
	filter := bson.M{}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	if f.Vehicle != "" {
		filter["assigned_vehicle"] = f.Vehicle
	}
	if f.Driver != "" {
		filter["assigned_driver"] = f.Driver
	}
	if f.ExpectedDeliveryFrom != nil || f.ExpectedDeliveryTo != nil {
		window := bson.M{}
		if f.ExpectedDeliveryFrom != nil {
			window["$gte"] = *f.ExpectedDeliveryFrom
		}
		if f.ExpectedDeliveryTo != nil {
			window["$lte"] = *f.ExpectedDeliveryTo
		}
		filter["expected_delivery_date"] = window
	}
	return findAll[models.Trip](ctx, s.trips, filter, findOptions("created_at", 0, f.Limit))
}

// CountTrips counts all trip records.
func (s *MongoStore) CountTrips(ctx context.Context) (int64, error) {
	return s.trips.CountDocuments(ctx, bson.M{})
}

// UpdateTripDetails replaces the editable fields of a Draft trip.
func (s *MongoStore) UpdateTripDetails(ctx context.Context, trip *models.Trip) error {
	set := bson.M{
		"pickup_location":     trip.PickupLocation,
		"delivery_location":   trip.DeliveryLocation,
		"cargo_weight_kg":     trip.CargoWeightKg,
		"distance_km":         trip.DistanceKm,
		"revenue":             trip.Revenue,
		"estimated_fuel_cost": trip.EstimatedFuelCost,
		"updated_at":          time.Now(),
	}
	unset := bson.M{}
	setOrUnset := func(field string, value any, present bool) {
		if present {
			set[field] = value
		} else {
			unset[field] = ""
		}
	}
	setOrUnset("assigned_vehicle", trip.AssignedVehicle, trip.AssignedVehicle != "")
	setOrUnset("assigned_driver", trip.AssignedDriver, trip.AssignedDriver != "")
	setOrUnset("expected_start_date", trip.ExpectedStartDate, trip.ExpectedStartDate != nil)
	setOrUnset("expected_delivery_date", trip.ExpectedDeliveryDate, trip.ExpectedDeliveryDate != nil)

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return conditionalUpdate(ctx, s.trips, trip.ID, bson.M{"status": models.TripDraft}, update)
}

// UpdateTripStatus moves a trip from one status to another.
func (s *MongoStore) UpdateTripStatus(ctx context.Context, id string, from, to models.TripStatus, ts TripTimestamps) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	set := bson.M{"status": to, "updated_at": time.Now()}
	if ts.ActualStartDate != nil {
		set["actual_start_date"] = *ts.ActualStartDate
	}
	if ts.ActualDeliveryDate != nil {
		set["actual_delivery_date"] = *ts.ActualDeliveryDate
	}
	return conditionalUpdate(ctx, s.trips, oid, bson.M{"status": from}, bson.M{"$set": set})
}

// DeleteTrip deletes a trip whose status is one of allowed.
func (s *MongoStore) DeleteTrip(ctx context.Context, id string, allowed []models.TripStatus) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	filter := bson.M{"_id": oid}
	if len(allowed) > 0 {
		filter["status"] = bson.M{"$in": allowed}
	}
	result, err := s.trips.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return missingOrConflict(ctx, s.trips, oid)
	}
	return nil
}
