package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iamwavecut/emojibot/internal/db"
)

func (c *sqliteClient) GetBlock(ctx context.Context, userID int64) (*db.UserBlock, error) {
	var blockedUntil int64
	err := c.db.GetContext(ctx, &blockedUntil, `SELECT blocked_until FROM users WHERE id = ?`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &db.UserBlock{UserID: userID}, nil
		}
		return nil, classify(fmt.Errorf("get user %d block: %w", userID, err))
	}
	return &db.UserBlock{
		UserID:       userID,
		BlockedUntil: db.BlockedUntilFromUnixNano(blockedUntil),
	}, nil
}

func (c *sqliteClient) SetBlock(ctx context.Context, userID int64, until time.Time) error {
	var ns int64
	if !until.IsZero() {
		ns = until.UnixNano()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO users (id, blocked_until) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET blocked_until = excluded.blocked_until
	`, userID, ns)
	if err != nil {
		return classify(fmt.Errorf("set user %d block: %w", userID, err))
	}
	return nil
}
