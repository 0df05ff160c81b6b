package db

import (
	"context"
	"time"

	"github.com/ukydev/fleet-automation/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InsertDriver inserts a driver; a taken licence number yields ErrDuplicate.
func (s *MongoStore) InsertDriver(ctx context.Context, driver *models.Driver) error {
	if driver.ID.IsZero() {
		driver.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if driver.CreatedAt.IsZero() {
		driver.CreatedAt = now
	}
	driver.UpdatedAt = now
	_, err := s.drivers.InsertOne(ctx, driver)
	return mapMongoErr(err)
}

// FindDriverByID finds a driver by its ID.
func (s *MongoStore) FindDriverByID(ctx context.Context, id string) (*models.Driver, error) {
	return findByID[models.Driver](ctx, s.drivers, id)
}

// FindDrivers queries driver records, newest first.
func (s *MongoStore) FindDrivers(ctx context.Context, f DriverFilter) ([]models.Driver, error) {
	filter := bson.M{}
	if sf := statusFilter(f.Statuses, f.ExcludeStatuses); sf != nil {
		filter["status"] = sf
	}
	if f.LicenseValidAt != nil {
		filter["license_expiry_date"] = bson.M{"$gte": *f.LicenseValidAt}
	}
	return findAll[models.Driver](ctx, s.drivers, filter, findOptions("created_at", 0, f.Limit))
}

// UpdateDriverProfile sets the non-nil fields of p.
func (s *MongoStore) UpdateDriverProfile(ctx context.Context, id string, p DriverProfile) (*models.Driver, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updated_at": time.Now()}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.Contact != nil {
		set["contact"] = *p.Contact
	}
	if p.LicenseExpiryDate != nil {
		set["license_expiry_date"] = *p.LicenseExpiryDate
	}
	if p.SafetyScorePct != nil {
		set["safety_score_pct"] = *p.SafetyScorePct
	}
	if p.Incidents != nil {
		set["incidents"] = *p.Incidents
	}
	return s.findOneAndUpdateDriver(ctx, oid, bson.M{"$set": set})
}

// UpdateDriverStatus conditionally sets the driver status.
func (s *MongoStore) UpdateDriverStatus(ctx context.Context, id string, expected []models.DriverStatus, next models.DriverStatus) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	cond := bson.M{}
	if len(expected) > 0 {
		cond["status"] = bson.M{"$in": expected}
	}
	return conditionalUpdate(ctx, s.drivers, oid, cond,
		bson.M{"$set": bson.M{"status": next, "updated_at": time.Now()}})
}

// IncrementDriverCounters applies delta with $inc and returns the result.
func (s *MongoStore) IncrementDriverCounters(ctx context.Context, id string, delta DriverCounters) (*models.Driver, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	inc := bson.M{}
	if delta.TotalTripsAssigned != 0 {
		inc["total_trips_assigned"] = delta.TotalTripsAssigned
	}
	if delta.TripsCompleted != 0 {
		inc["trips_completed"] = delta.TripsCompleted
	}
	if delta.Warnings != 0 {
		inc["warnings"] = delta.Warnings
	}
	update := bson.M{"$set": bson.M{"updated_at": time.Now()}}
	if len(inc) > 0 {
		update["$inc"] = inc
	}
	return s.findOneAndUpdateDriver(ctx, oid, update)
}

func (s *MongoStore) findOneAndUpdateDriver(ctx context.Context, oid primitive.ObjectID, update bson.M) (*models.Driver, error) {
	var driver models.Driver
	err := s.drivers.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&driver)
	if err != nil {
		return nil, mapMongoErr(err)
	}
	return &driver, nil
}

// DeleteDriver deletes a driver by its ID.
func (s *MongoStore) DeleteDriver(ctx context.Context, id string) error {
	return deleteByID(ctx, s.drivers, id)
}
