package sqlite

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/iamwavecut/emojibot/internal/db"
	apperr "github.com/iamwavecut/emojibot/internal/errors"
)

func (c *sqliteClient) TopUsers(ctx context.Context, scope db.Scope, day string, limit int) ([]db.LeaderboardEntry, error) {
	switch scope {
	case db.ScopeAllTime:
		return c.selectTop(ctx, `
			SELECT id, points FROM users
			WHERE points > 0
			ORDER BY points DESC, id ASC
			LIMIT ?`, limit)
	case db.ScopeTodayGlobal:
		return c.selectTop(ctx, `
			SELECT user_id AS id, points FROM user_daily
			WHERE day = ? AND points > 0
			ORDER BY points DESC, user_id ASC
			LIMIT ?`, day, limit)
	default:
		return nil, errors.Wrapf(apperr.ErrInvalidInput, "unsupported users scope %q", scope)
	}
}

func (c *sqliteClient) TopGroups(ctx context.Context, scope db.Scope, day string, limit int) ([]db.LeaderboardEntry, error) {
	switch scope {
	case db.ScopeAllTime:
		return c.selectTop(ctx, `
			SELECT id, points FROM chats
			WHERE points > 0
			ORDER BY points DESC, id ASC
			LIMIT ?`, limit)
	case db.ScopeTodayGlobal:
		return c.selectTop(ctx, `
			SELECT chat_id AS id, points FROM chat_daily
			WHERE day = ? AND points > 0
			ORDER BY points DESC, chat_id ASC
			LIMIT ?`, day, limit)
	default:
		return nil, errors.Wrapf(apperr.ErrInvalidInput, "unsupported groups scope %q", scope)
	}
}

func (c *sqliteClient) TopUsersInGroup(ctx context.Context, groupID int64, day string, limit int) ([]db.LeaderboardEntry, error) {
	return c.selectTop(ctx, `
		SELECT user_id AS id, points FROM chat_user_daily
		WHERE chat_id = ? AND day = ? AND points > 0
		ORDER BY points DESC, user_id ASC
		LIMIT ?`, groupID, day, limit)
}

func (c *sqliteClient) selectTop(ctx context.Context, query string, args ...any) ([]db.LeaderboardEntry, error) {
	entries := make([]db.LeaderboardEntry, 0)
	if limit, ok := args[len(args)-1].(int); ok && limit <= 0 {
		return entries, nil
	}
	if err := c.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, classify(fmt.Errorf("select leaderboard: %w", err))
	}
	return entries, nil
}
