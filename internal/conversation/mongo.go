package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const conversationsCollection = "conversations"

// MongoStore persists conversations in MongoDB. Messages live embedded in
// the conversation document; transcripts are read whole and appended with
// $push, never rewritten.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore creates a store over db and ensures its indexes.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	coll := db.Collection(conversationsCollection)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: -1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("mongodb ensure conversation indexes: %w", err)
	}
	return &MongoStore{coll: coll}, nil
}

// Insert creates a new conversation.
func (s *MongoStore) Insert(ctx context.Context, conv *Conversation) error {
	if _, err := s.coll.InsertOne(ctx, conv); err != nil {
		return fmt.Errorf("mongodb insert conversation %s: %w", conv.ID, err)
	}
	return nil
}

// Find returns a conversation by id.
func (s *MongoStore) Find(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mongodb find conversation %s: %w", id, err)
	}
	return &conv, nil
}

// AppendMessages atomically appends msgs and applies update.
func (s *MongoStore) AppendMessages(ctx context.Context, id string, msgs []Message, update FieldUpdate) error {
	set := bson.M{}
	if update.Title != "" {
		set["title"] = update.Title
	}
	if update.Preview != "" {
		set["preview"] = update.Preview
	}
	if update.Status != "" {
		set["status"] = update.Status
	}
	if !update.UpdatedAt.IsZero() {
		set["updated_at"] = update.UpdatedAt
	}

	mutation := bson.M{
		"$push": bson.M{"messages": bson.M{"$each": msgs}},
	}
	if len(set) > 0 {
		mutation["$set"] = set
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, mutation)
	if err != nil {
		return fmt.Errorf("mongodb append messages to %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus updates only the lifecycle status.
func (s *MongoStore) SetStatus(ctx context.Context, id string, status Status, updatedAt time.Time) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"status": status, "updated_at": updatedAt},
	})
	if err != nil {
		return fmt.Errorf("mongodb set status on %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUser returns the user's summaries, most recently updated first.
func (s *MongoStore) ListByUser(ctx context.Context, userID string, limit int) ([]Summary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user_id": userID}}},
		{{Key: "$sort", Value: bson.M{"updated_at": -1}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: limit}})
	}
	pipeline = append(pipeline, bson.D{{Key: "$project", Value: bson.M{
		"title":         1,
		"preview":       1,
		"status":        1,
		"updated_at":    1,
		"message_count": bson.M{"$size": "$messages"},
	}}})

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongodb list conversations for %s: %w", userID, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var out []Summary
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongodb decode conversation summaries: %w", err)
	}
	return out, nil
}

// ConnectMongo dials MongoDB and verifies the connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}
	return client, nil
}
