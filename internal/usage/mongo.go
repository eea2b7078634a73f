package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

const usageCollection = "token_usage"

// MongoStore persists usage records in MongoDB.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore creates a store over db and ensures its indexes.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	coll := db.Collection(usageCollection)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "conversation_id", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("mongodb ensure usage indexes: %w", err)
	}
	return &MongoStore{coll: coll}, nil
}

// Insert appends a record.
func (s *MongoStore) Insert(ctx context.Context, rec *Record) error {
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("mongodb insert usage record: %w", err)
	}
	return nil
}

// TotalsByUser sums consumption for a user since the given time.
func (s *MongoStore) TotalsByUser(ctx context.Context, userID string, since time.Time) (*Totals, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"user_id":    userID,
			"created_at": bson.M{"$gte": since},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":               nil,
			"prompt_tokens":     bson.M{"$sum": "$prompt_tokens"},
			"completion_tokens": bson.M{"$sum": "$completion_tokens"},
			"total_tokens":      bson.M{"$sum": "$total_tokens"},
			"cost_usd":          bson.M{"$sum": "$cost_usd"},
			"invocations":       bson.M{"$sum": 1},
		}}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongodb usage totals for %s: %w", userID, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var out Totals
	if cursor.Next(ctx) {
		if err := cursor.Decode(&out); err != nil {
			return nil, fmt.Errorf("mongodb decode usage totals: %w", err)
		}
	}
	if err := cursor.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("mongodb usage totals cursor: %w", err)
	}
	return &out, nil
}
