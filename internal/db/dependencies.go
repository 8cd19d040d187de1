package db

import (
	"context"
	"time"
)

// Client is the persistence contract shared by the sqlite and mongo adapters.
type Client interface {
	Close() error
	Ping(ctx context.Context) error

	RegisterUser(ctx context.Context, userID int64) error
	RegisterGroup(ctx context.Context, groupID int64) error
	CountRegistered(ctx context.Context) (users int64, groups int64, err error)

	Credit(ctx context.Context, credit Credit) (*CreditResult, error)
	GetUserTotals(ctx context.Context, userID int64, day string) (Totals, error)
	GetGroupTotals(ctx context.Context, groupID int64, day string) (Totals, error)
	GetGroupUserToday(ctx context.Context, groupID, userID int64, day string) (int64, error)

	TopUsers(ctx context.Context, scope Scope, day string, limit int) ([]LeaderboardEntry, error)
	TopGroups(ctx context.Context, scope Scope, day string, limit int) ([]LeaderboardEntry, error)
	TopUsersInGroup(ctx context.Context, groupID int64, day string, limit int) ([]LeaderboardEntry, error)

	DeleteStaleDaily(ctx context.Context, day string) (*SweepResult, error)

	GetBlock(ctx context.Context, userID int64) (*UserBlock, error)
	SetBlock(ctx context.Context, userID int64, until time.Time) error

	GetKV(ctx context.Context, key string) (string, error)
	SetKV(ctx context.Context, key string, value string) error
}
