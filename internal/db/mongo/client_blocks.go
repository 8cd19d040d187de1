package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iamwavecut/emojibot/internal/db"
)

func (c *mongoClient) GetBlock(ctx context.Context, userID int64) (*db.UserBlock, error) {
	var doc struct {
		BlockedUntil int64 `bson:"blocked_until"`
	}
	opts := options.FindOne().SetProjection(bson.D{{Key: "blocked_until", Value: 1}})
	err := c.database.Collection(collUsers).FindOne(ctx, bson.D{{Key: "_id", Value: userID}}, opts).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return &db.UserBlock{UserID: userID}, nil
		}
		return nil, classify(fmt.Errorf("get user %d block: %w", userID, err))
	}
	return &db.UserBlock{UserID: userID, BlockedUntil: db.BlockedUntilFromUnixNano(doc.BlockedUntil)}, nil
}

func (c *mongoClient) SetBlock(ctx context.Context, userID int64, until time.Time) error {
	var ns int64
	if !until.IsZero() {
		ns = until.UnixNano()
	}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "blocked_until", Value: ns}}}}
	_, err := c.database.Collection(collUsers).UpdateOne(ctx, bson.D{{Key: "_id", Value: userID}}, update, options.Update().SetUpsert(true))
	if err != nil {
		return classify(fmt.Errorf("set user %d block: %w", userID, err))
	}
	return nil
}

func (c *mongoClient) GetKV(ctx context.Context, key string) (string, error) {
	var doc struct {
		Value string `bson:"value"`
	}
	err := c.database.Collection(collKV).FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return "", nil
		}
		return "", classify(fmt.Errorf("failed to get value for key %s: %w", key, err))
	}
	return doc.Value, nil
}

func (c *mongoClient) SetKV(ctx context.Context, key string, value string) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "value", Value: value},
		{Key: "updated_at", Value: time.Now()},
	}}}
	_, err := c.database.Collection(collKV).UpdateOne(ctx, bson.D{{Key: "_id", Value: key}}, update, options.Update().SetUpsert(true))
	if err != nil {
		return classify(fmt.Errorf("failed to set value for key %s: %w", key, err))
	}
	return nil
}
