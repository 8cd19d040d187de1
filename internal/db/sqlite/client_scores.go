package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iamwavecut/emojibot/internal/db"
)

const (
	upsertUserPoints = `
		INSERT INTO users (id, points) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET points = points + excluded.points
		RETURNING points`
	upsertUserDaily = `
		INSERT INTO user_daily (user_id, day, points) VALUES (?, ?, ?)
		ON CONFLICT(user_id, day) DO UPDATE SET points = points + excluded.points
		RETURNING points`
	upsertChatPoints = `
		INSERT INTO chats (id, points) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET points = points + excluded.points
		RETURNING points`
	upsertChatDaily = `
		INSERT INTO chat_daily (chat_id, day, points) VALUES (?, ?, ?)
		ON CONFLICT(chat_id, day) DO UPDATE SET points = points + excluded.points
		RETURNING points`
	upsertChatUserDaily = `
		INSERT INTO chat_user_daily (chat_id, user_id, day, points) VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id, user_id, day) DO UPDATE SET points = points + excluded.points
		RETURNING points`
)

func (c *sqliteClient) Credit(ctx context.Context, credit db.Credit) (*db.CreditResult, error) {
	res := &db.CreditResult{}
	err := c.inTx(ctx, func(tx *sqlx.Tx) error {
		steps := []struct {
			name  string
			query string
			dest  *int64
			args  []any
		}{
			{"user", upsertUserPoints, &res.User.AllTime, []any{credit.UserID, credit.Points}},
			{"user daily", upsertUserDaily, &res.User.Today, []any{credit.UserID, credit.Day, credit.Points}},
			{"chat", upsertChatPoints, &res.Group.AllTime, []any{credit.GroupID, credit.Points}},
			{"chat daily", upsertChatDaily, &res.Group.Today, []any{credit.GroupID, credit.Day, credit.Points}},
			{"chat user daily", upsertChatUserDaily, &res.GroupToday, []any{credit.GroupID, credit.UserID, credit.Day, credit.Points}},
		}
		for _, step := range steps {
			if err := tx.GetContext(ctx, step.dest, step.query, step.args...); err != nil {
				return fmt.Errorf("increment %s points: %w", step.name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *sqliteClient) GetUserTotals(ctx context.Context, userID int64, day string) (db.Totals, error) {
	var totals db.Totals
	err := c.db.GetContext(ctx, &totals, `
		SELECT
			COALESCE((SELECT points FROM users WHERE id = ?), 0) AS all_time,
			COALESCE((SELECT points FROM user_daily WHERE user_id = ? AND day = ?), 0) AS today
	`, userID, userID, day)
	if err != nil {
		return db.Totals{}, classify(fmt.Errorf("get user %d totals: %w", userID, err))
	}
	return totals, nil
}

func (c *sqliteClient) GetGroupTotals(ctx context.Context, groupID int64, day string) (db.Totals, error) {
	var totals db.Totals
	err := c.db.GetContext(ctx, &totals, `
		SELECT
			COALESCE((SELECT points FROM chats WHERE id = ?), 0) AS all_time,
			COALESCE((SELECT points FROM chat_daily WHERE chat_id = ? AND day = ?), 0) AS today
	`, groupID, groupID, day)
	if err != nil {
		return db.Totals{}, classify(fmt.Errorf("get chat %d totals: %w", groupID, err))
	}
	return totals, nil
}

func (c *sqliteClient) GetGroupUserToday(ctx context.Context, groupID, userID int64, day string) (int64, error) {
	var points int64
	err := c.db.GetContext(ctx, &points, `
		SELECT COALESCE((SELECT points FROM chat_user_daily WHERE chat_id = ? AND user_id = ? AND day = ?), 0)
	`, groupID, userID, day)
	if err != nil {
		return 0, classify(fmt.Errorf("get chat %d user %d today: %w", groupID, userID, err))
	}
	return points, nil
}

func (c *sqliteClient) RegisterUser(ctx context.Context, userID int64) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO users (id) VALUES (?) ON CONFLICT(id) DO NOTHING`, userID)
	if err != nil {
		return classify(fmt.Errorf("register user %d: %w", userID, err))
	}
	return nil
}

func (c *sqliteClient) RegisterGroup(ctx context.Context, groupID int64) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO chats (id) VALUES (?) ON CONFLICT(id) DO NOTHING`, groupID)
	if err != nil {
		return classify(fmt.Errorf("register chat %d: %w", groupID, err))
	}
	return nil
}

func (c *sqliteClient) CountRegistered(ctx context.Context) (int64, int64, error) {
	var counts struct {
		Users  int64 `db:"users"`
		Groups int64 `db:"groups_count"`
	}
	err := c.db.GetContext(ctx, &counts, `
		SELECT (SELECT COUNT(*) FROM users) AS users, (SELECT COUNT(*) FROM chats) AS groups_count
	`)
	if err != nil {
		return 0, 0, classify(fmt.Errorf("count registered: %w", err))
	}
	return counts.Users, counts.Groups, nil
}
