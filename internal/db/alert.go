package db

import (
	"context"
	"time"

	"github.com/ukydev/fleet-automation/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InsertAlert inserts an alert and sets its ID.
func (s *MongoStore) InsertAlert(ctx context.Context, alert *models.Alert) error {
	if alert.ID.IsZero() {
		alert.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = alert.CreatedAt
	_, err := s.alerts.InsertOne(ctx, alert)
	return mapMongoErr(err)
}

// FindAlertByID finds an alert by its ID.
func (s *MongoStore) FindAlertByID(ctx context.Context, id string) (*models.Alert, error) {
	return findByID[models.Alert](ctx, s.alerts, id)
}

func alertQuery(f AlertFilter) bson.M {
	filter := bson.M{}
	if f.Resolved != nil {
		filter["resolved"] = *f.Resolved
	}
	if f.Severity != "" {
		filter["severity"] = f.Severity
	}
	if f.EntityType != "" {
		filter["entity_type"] = f.EntityType
	}
	if f.EntityID != "" {
		filter["entity_id"] = f.EntityID
	}
	if f.Kind != "" {
		filter["kind"] = f.Kind
	}
	return filter
}

// FindAlerts queries alerts, newest first.
func (s *MongoStore) FindAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, error) {
	return findAll[models.Alert](ctx, s.alerts, alertQuery(f), findOptions("created_at", f.Skip, f.Limit))
}

// CountAlerts counts alerts matching f, ignoring paging.
func (s *MongoStore) CountAlerts(ctx context.Context, f AlertFilter) (int64, error) {
	return s.alerts.CountDocuments(ctx, alertQuery(f))
}

// HasUnresolved reports whether an unresolved alert carries dedupKey.
func (s *MongoStore) HasUnresolved(ctx context.Context, dedupKey string) (bool, error) {
	n, err := s.alerts.CountDocuments(ctx, bson.M{"dedup_key": dedupKey, "resolved": false},
		options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetAlertResolution resolves or reopens an alert.
func (s *MongoStore) SetAlertResolution(ctx context.Context, id string, resolved bool, note string, at *time.Time) (*models.Alert, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	update := bson.M{}
	if resolved {
		update["$set"] = bson.M{"resolved": true, "resolved_at": at, "resolution_note": note, "updated_at": time.Now()}
	} else {
		update["$set"] = bson.M{"resolved": false, "updated_at": time.Now()}
		update["$unset"] = bson.M{"resolved_at": "", "resolution_note": ""}
	}
	var alert models.Alert
	err = s.alerts.FindOneAndUpdate(ctx, bson.M{"_id": oid, "resolved": !resolved}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&alert)
	if err != nil {
		if err = mapMongoErr(err); err == ErrNotFound {
			return nil, missingOrConflict(ctx, s.alerts, oid)
		}
		return nil, err
	}
	return &alert, nil
}
