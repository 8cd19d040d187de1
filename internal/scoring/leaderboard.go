package scoring

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iamwavecut/emojibot/internal/db"
	apperr "github.com/iamwavecut/emojibot/internal/errors"
	"github.com/iamwavecut/emojibot/internal/observability"
)

const DefaultTopLimit = 10

type LeaderboardStore interface {
	TopUsers(ctx context.Context, scope db.Scope, day string, limit int) ([]db.LeaderboardEntry, error)
	TopGroups(ctx context.Context, scope db.Scope, day string, limit int) ([]db.LeaderboardEntry, error)
	TopUsersInGroup(ctx context.Context, groupID int64, day string, limit int) ([]db.LeaderboardEntry, error)
}

// Leaderboard is the read-only ranking view over the ledger.
type Leaderboard struct {
	store        LeaderboardStore
	clock        *Clock
	defaultLimit int
}

func NewLeaderboard(store LeaderboardStore, clock *Clock, defaultLimit int) *Leaderboard {
	if defaultLimit <= 0 {
		defaultLimit = DefaultTopLimit
	}
	return &Leaderboard{store: store, clock: clock, defaultLimit: defaultLimit}
}

// DefaultLimit is the ranking size used when callers pass a non-positive limit.
func (b *Leaderboard) DefaultLimit() int {
	return b.defaultLimit
}

func (b *Leaderboard) TopUsers(ctx context.Context, scope db.Scope, limit int) ([]db.LeaderboardEntry, error) {
	if err := checkGlobalScope(scope); err != nil {
		return nil, err
	}
	ctx, span := observability.Tracer().Start(ctx, "Leaderboard.TopUsers")
	defer span.End()
	day := b.dayFor(scope)
	span.SetAttributes(attribute.String("scope", string(scope)), attribute.String("day", day))

	return b.store.TopUsers(ctx, scope, day, b.limit(limit))
}

func (b *Leaderboard) TopGroups(ctx context.Context, scope db.Scope, limit int) ([]db.LeaderboardEntry, error) {
	if err := checkGlobalScope(scope); err != nil {
		return nil, err
	}
	ctx, span := observability.Tracer().Start(ctx, "Leaderboard.TopGroups")
	defer span.End()
	day := b.dayFor(scope)
	span.SetAttributes(attribute.String("scope", string(scope)), attribute.String("day", day))

	return b.store.TopGroups(ctx, scope, day, b.limit(limit))
}

// TopUsersInGroup ranks users by their points inside one group on day, today when day is empty.
func (b *Leaderboard) TopUsersInGroup(ctx context.Context, groupID int64, day string, limit int) ([]db.LeaderboardEntry, error) {
	if day == "" {
		day = b.clock.Today()
	}
	ctx, span := observability.Tracer().Start(ctx, "Leaderboard.TopUsersInGroup")
	defer span.End()
	span.SetAttributes(attribute.Int64("group_id", groupID), attribute.String("day", day))

	return b.store.TopUsersInGroup(ctx, groupID, day, b.limit(limit))
}

// dayFor returns today's stamp for daily scopes and empty for all-time.
func (b *Leaderboard) dayFor(scope db.Scope) string {
	if !scope.IsToday() {
		return ""
	}
	return b.clock.Today()
}

func (b *Leaderboard) limit(limit int) int {
	if limit <= 0 {
		return b.defaultLimit
	}
	return limit
}

func checkGlobalScope(scope db.Scope) error {
	switch scope {
	case db.ScopeAllTime, db.ScopeTodayGlobal:
		return nil
	default:
		return errors.Wrapf(apperr.ErrInvalidInput, "scope %q is not a global scope", scope)
	}
}
