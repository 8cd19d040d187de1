package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iamwavecut/emojibot/internal/db"
	apperr "github.com/iamwavecut/emojibot/internal/errors"
)

const (
	collUsers          = "users"
	collGroups         = "groups"
	collUserDaily      = "user_daily"
	collGroupDaily     = "group_daily"
	collGroupUserDaily = "group_user_daily"
	collKV             = "kv_store"

	connectTimeout = 10 * time.Second
)

// ErrNoTransactions is returned for standalone servers, credits need multi-document transactions.
var ErrNoTransactions = errors.New("mongo deployment does not support transactions, use a replica set or sharded cluster")

type mongoClient struct {
	client   *mongo.Client
	database *mongo.Database
}

var _ db.Client = (*mongoClient)(nil)

func NewMongoClient(ctx context.Context, uri, database string) (*mongoClient, error) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, classify(fmt.Errorf("ping mongo: %w", err))
	}

	c := &mongoClient{
		client:   client,
		database: client.Database(database),
	}
	hello, err := c.hello(connectCtx)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, classify(fmt.Errorf("hello command: %w", err))
	}
	if !hello.supportsTransactions() {
		_ = client.Disconnect(context.Background())
		return nil, ErrNoTransactions
	}
	c.getLogEntry().WithField("replica_set", hello.SetName).Info("connected to mongo")
	if err := c.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return c, nil
}

func (c *mongoClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return c.client.Disconnect(ctx)
}

func (c *mongoClient) Ping(ctx context.Context) error {
	return classify(c.client.Ping(ctx, nil))
}

type helloReply struct {
	SetName string `bson:"setName"`
	Msg     string `bson:"msg"`
}

// supportsTransactions is true for replica set members and mongos routers.
func (h helloReply) supportsTransactions() bool {
	return h.SetName != "" || h.Msg == "isdbgrid"
}

func (c *mongoClient) hello(ctx context.Context) (helloReply, error) {
	var reply helloReply
	err := c.database.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&reply)
	return reply, err
}

func (c *mongoClient) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collUsers: {
			{Keys: bson.D{{Key: "points", Value: -1}, {Key: "_id", Value: 1}}},
		},
		collGroups: {
			{Keys: bson.D{{Key: "points", Value: -1}, {Key: "_id", Value: 1}}},
		},
		collUserDaily: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "day", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "day", Value: 1}, {Key: "points", Value: -1}, {Key: "user_id", Value: 1}}},
		},
		collGroupDaily: {
			{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "day", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "day", Value: 1}, {Key: "points", Value: -1}, {Key: "group_id", Value: 1}}},
		},
		collGroupUserDaily: {
			{
				Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "day", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "day", Value: 1}, {Key: "points", Value: -1}, {Key: "user_id", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := c.database.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return classify(fmt.Errorf("create %s indexes: %w", coll, err))
		}
	}
	return nil
}

func (c *mongoClient) getLogEntry() *log.Entry {
	return log.WithField("object", "mongoClient")
}

// classify tags network and timeout failures as retryable store errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		errors.Is(err, context.DeadlineExceeded) {
		return apperr.StoreUnavailable(err)
	}
	return err
}
