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

type pointsDoc struct {
	Points int64 `bson:"points"`
}

// Credit applies all five increments in one transaction.
func (c *mongoClient) Credit(ctx context.Context, credit db.Credit) (*db.CreditResult, error) {
	apply := func(ctx context.Context) (*db.CreditResult, error) {
		res := &db.CreditResult{}
		steps := []struct {
			coll   string
			filter bson.D
			dest   *int64
		}{
			{collUsers, bson.D{{Key: "_id", Value: credit.UserID}}, &res.User.AllTime},
			{collUserDaily, bson.D{{Key: "user_id", Value: credit.UserID}, {Key: "day", Value: credit.Day}}, &res.User.Today},
			{collGroups, bson.D{{Key: "_id", Value: credit.GroupID}}, &res.Group.AllTime},
			{collGroupDaily, bson.D{{Key: "group_id", Value: credit.GroupID}, {Key: "day", Value: credit.Day}}, &res.Group.Today},
			{collGroupUserDaily, bson.D{
				{Key: "group_id", Value: credit.GroupID},
				{Key: "user_id", Value: credit.UserID},
				{Key: "day", Value: credit.Day},
			}, &res.GroupToday},
		}
		for _, step := range steps {
			points, err := c.increment(ctx, step.coll, step.filter, credit.Points)
			if err != nil {
				return nil, err
			}
			*step.dest = points
		}
		return res, nil
	}

	session, err := c.client.StartSession()
	if err != nil {
		return nil, classify(fmt.Errorf("start session: %w", err))
	}
	defer session.EndSession(ctx)

	out, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return apply(sc)
	})
	if err != nil {
		return nil, classify(err)
	}
	return out.(*db.CreditResult), nil
}

func (c *mongoClient) increment(ctx context.Context, coll string, filter bson.D, points int64) (int64, error) {
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "points", Value: points}}}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc pointsDoc
	if err := c.database.Collection(coll).FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return 0, fmt.Errorf("increment %s points: %w", coll, err)
	}
	return doc.Points, nil
}

func (c *mongoClient) points(ctx context.Context, coll string, filter bson.D) (int64, error) {
	var doc pointsDoc
	err := c.database.Collection(coll).FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, nil
		}
		return 0, classify(fmt.Errorf("read %s points: %w", coll, err))
	}
	return doc.Points, nil
}

func (c *mongoClient) GetUserTotals(ctx context.Context, userID int64, day string) (db.Totals, error) {
	allTime, err := c.points(ctx, collUsers, bson.D{{Key: "_id", Value: userID}})
	if err != nil {
		return db.Totals{}, err
	}
	today, err := c.points(ctx, collUserDaily, bson.D{{Key: "user_id", Value: userID}, {Key: "day", Value: day}})
	if err != nil {
		return db.Totals{}, err
	}
	return db.Totals{AllTime: allTime, Today: today}, nil
}

func (c *mongoClient) GetGroupTotals(ctx context.Context, groupID int64, day string) (db.Totals, error) {
	allTime, err := c.points(ctx, collGroups, bson.D{{Key: "_id", Value: groupID}})
	if err != nil {
		return db.Totals{}, err
	}
	today, err := c.points(ctx, collGroupDaily, bson.D{{Key: "group_id", Value: groupID}, {Key: "day", Value: day}})
	if err != nil {
		return db.Totals{}, err
	}
	return db.Totals{AllTime: allTime, Today: today}, nil
}

func (c *mongoClient) GetGroupUserToday(ctx context.Context, groupID, userID int64, day string) (int64, error) {
	return c.points(ctx, collGroupUserDaily, bson.D{
		{Key: "group_id", Value: groupID},
		{Key: "user_id", Value: userID},
		{Key: "day", Value: day},
	})
}

func (c *mongoClient) RegisterUser(ctx context.Context, userID int64) error {
	return c.register(ctx, collUsers, userID)
}

func (c *mongoClient) RegisterGroup(ctx context.Context, groupID int64) error {
	return c.register(ctx, collGroups, groupID)
}

func (c *mongoClient) register(ctx context.Context, coll string, id int64) error {
	update := bson.D{{Key: "$setOnInsert", Value: bson.D{
		{Key: "points", Value: int64(0)},
		{Key: "created_at", Value: time.Now()},
	}}}
	_, err := c.database.Collection(coll).UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update, options.Update().SetUpsert(true))
	if err != nil {
		return classify(fmt.Errorf("register %s %d: %w", coll, id, err))
	}
	return nil
}

func (c *mongoClient) CountRegistered(ctx context.Context) (int64, int64, error) {
	users, err := c.database.Collection(collUsers).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, 0, classify(fmt.Errorf("count users: %w", err))
	}
	groups, err := c.database.Collection(collGroups).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, 0, classify(fmt.Errorf("count groups: %w", err))
	}
	return users, groups, nil
}
