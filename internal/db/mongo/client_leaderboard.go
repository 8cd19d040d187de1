package mongo

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iamwavecut/emojibot/internal/db"
	apperr "github.com/iamwavecut/emojibot/internal/errors"
)

func (c *mongoClient) TopUsers(ctx context.Context, scope db.Scope, day string, limit int) ([]db.LeaderboardEntry, error) {
	switch scope {
	case db.ScopeAllTime:
		return c.top(ctx, collUsers, "_id", bson.D{}, limit)
	case db.ScopeTodayGlobal:
		return c.top(ctx, collUserDaily, "user_id", bson.D{{Key: "day", Value: day}}, limit)
	default:
		return nil, errors.Wrapf(apperr.ErrInvalidInput, "unsupported users scope %q", scope)
	}
}

func (c *mongoClient) TopGroups(ctx context.Context, scope db.Scope, day string, limit int) ([]db.LeaderboardEntry, error) {
	switch scope {
	case db.ScopeAllTime:
		return c.top(ctx, collGroups, "_id", bson.D{}, limit)
	case db.ScopeTodayGlobal:
		return c.top(ctx, collGroupDaily, "group_id", bson.D{{Key: "day", Value: day}}, limit)
	default:
		return nil, errors.Wrapf(apperr.ErrInvalidInput, "unsupported groups scope %q", scope)
	}
}

func (c *mongoClient) TopUsersInGroup(ctx context.Context, groupID int64, day string, limit int) ([]db.LeaderboardEntry, error) {
	filter := bson.D{{Key: "group_id", Value: groupID}, {Key: "day", Value: day}}
	return c.top(ctx, collGroupUserDaily, "user_id", filter, limit)
}

func (c *mongoClient) top(ctx context.Context, coll, idField string, filter bson.D, limit int) ([]db.LeaderboardEntry, error) {
	entries := make([]db.LeaderboardEntry, 0)
	if limit <= 0 {
		return entries, nil
	}
	filter = append(filter, bson.E{Key: "points", Value: bson.D{{Key: "$gt", Value: 0}}})
	opts := options.Find().
		SetSort(bson.D{{Key: "points", Value: -1}, {Key: idField, Value: 1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.D{{Key: idField, Value: 1}, {Key: "points", Value: 1}})

	cur, err := c.database.Collection(coll).Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(fmt.Errorf("find top %s: %w", coll, err))
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s entry: %w", coll, err)
		}
		entries = append(entries, db.LeaderboardEntry{
			ID:     toInt64(raw[idField]),
			Points: toInt64(raw["points"]),
		})
	}
	if err := cur.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate top %s: %w", coll, err))
	}
	return entries, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
