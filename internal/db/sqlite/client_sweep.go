package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iamwavecut/emojibot/internal/db"
)

// DeleteStaleDaily drops every daily row not stamped with day; all-time rows and blocks are untouched.
func (c *sqliteClient) DeleteStaleDaily(ctx context.Context, day string) (*db.SweepResult, error) {
	res := &db.SweepResult{}
	err := c.inTx(ctx, func(tx *sqlx.Tx) error {
		targets := []struct {
			table string
			dest  *int64
		}{
			{"user_daily", &res.UsersDeleted},
			{"chat_daily", &res.GroupsDeleted},
			{"chat_user_daily", &res.GroupUsersDeleted},
		}
		for _, target := range targets {
			result, err := tx.ExecContext(ctx, "DELETE FROM "+target.table+" WHERE day <> ?", day)
			if err != nil {
				return fmt.Errorf("delete stale %s: %w", target.table, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("count stale %s: %w", target.table, err)
			}
			*target.dest = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
