package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/iamwavecut/emojibot/internal/db"
)

// DeleteStaleDaily removes daily documents whose day differs from day.
func (c *mongoClient) DeleteStaleDaily(ctx context.Context, day string) (*db.SweepResult, error) {
	res := &db.SweepResult{}
	filter := bson.D{{Key: "day", Value: bson.D{{Key: "$ne", Value: day}}}}
	targets := []struct {
		coll string
		dest *int64
	}{
		{collUserDaily, &res.UsersDeleted},
		{collGroupDaily, &res.GroupsDeleted},
		{collGroupUserDaily, &res.GroupUsersDeleted},
	}
	for _, target := range targets {
		deleted, err := c.database.Collection(target.coll).DeleteMany(ctx, filter)
		if err != nil {
			return nil, classify(fmt.Errorf("delete stale %s: %w", target.coll, err))
		}
		*target.dest = deleted.DeletedCount
	}
	return res, nil
}
