package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/studysparkai/backend/internal/models"
)

// MongoStore persists user profiles and the study-aid history in MongoDB.
// Documents are namespaced by application id and user id.
type MongoStore struct {
	profiles *mongo.Collection
	history  *mongo.Collection
	appID    string
}

func NewMongoStore(db *mongo.Database, appID string) *MongoStore {
	return &MongoStore{
		profiles: db.Collection("profiles"),
		history:  db.Collection("study_aids"),
		appID:    appID,
	}
}

func (s *MongoStore) profileFilter(userID string) bson.M {
	return bson.M{"app_id": s.appID, "user_id": userID}
}

// GetProfile loads the user's study profile. On first access the default
// profile is written and returned.
func (s *MongoStore) GetProfile(ctx context.Context, userID string) (models.UserProfile, error) {
	var doc struct {
		Profile models.UserProfile `bson:"profile"`
	}
	err := s.profiles.FindOne(ctx, s.profileFilter(userID)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		def := models.DefaultProfile()
		if err := s.SaveProfile(ctx, userID, def); err != nil {
			return models.UserProfile{}, err
		}
		return def, nil
	}
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("mongo profile get: %w", err)
	}
	return doc.Profile, nil
}

// SaveProfile upserts the profile with merge semantics: only the profile
// fields are replaced, anything else on the document survives.
func (s *MongoStore) SaveProfile(ctx context.Context, userID string, p models.UserProfile) error {
	update := bson.M{"$set": bson.M{"profile": p}}
	_, err := s.profiles.UpdateOne(ctx, s.profileFilter(userID), update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo profile save: %w", err)
	}
	return nil
}

// Append inserts one history record. Records are append-only; nothing in the
// workflow updates or deletes them.
func (s *MongoStore) Append(ctx context.Context, rec *models.HistoryRecord) error {
	rec.AppID = s.appID
	if _, err := s.history.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("mongo history insert: %w", err)
	}
	return nil
}

// ListHistory returns the user's history, newest first.
func (s *MongoStore) ListHistory(ctx context.Context, userID string) ([]models.HistoryRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.history.Find(ctx, bson.M{"app_id": s.appID, "user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var recs []models.HistoryRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}
