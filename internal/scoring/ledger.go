package scoring

import (
	"context"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/iamwavecut/emojibot/internal/db"
	"github.com/iamwavecut/emojibot/internal/infra"
	"github.com/iamwavecut/emojibot/internal/observability"
)

type LedgerStore interface {
	Credit(ctx context.Context, credit db.Credit) (*db.CreditResult, error)
	GetUserTotals(ctx context.Context, userID int64, day string) (db.Totals, error)
	GetGroupTotals(ctx context.Context, groupID int64, day string) (db.Totals, error)
	GetGroupUserToday(ctx context.Context, groupID, userID int64, day string) (int64, error)
}

// Ledger owns the all-time and daily point counters of users and groups.
type Ledger struct {
	store LedgerStore
	clock *Clock
	locks *infra.KeyedMutex
}

func NewLedger(store LedgerStore, clock *Clock) *Ledger {
	return &Ledger{
		store: store,
		clock: clock,
		locks: infra.NewKeyedMutex(),
	}
}

// Credit adds emojiCount points to the user and group counters for the day of now.
// A non-positive count is a no-op and yields a nil result.
func (l *Ledger) Credit(ctx context.Context, userID, groupID int64, emojiCount int, now time.Time) (*db.CreditResult, error) {
	if emojiCount <= 0 {
		return nil, nil
	}

	ctx, span := observability.Tracer().Start(ctx, "Ledger.Credit")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int64("group_id", groupID),
		attribute.Int("emoji_count", emojiCount),
	)

	unlock := l.locks.Lock(userKey(userID), groupKey(groupID))
	defer unlock()

	res, err := l.store.Credit(ctx, db.Credit{
		UserID:  userID,
		GroupID: groupID,
		Points:  int64(emojiCount),
		Day:     l.clock.DayStamp(now),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "credit failed")
		return nil, err
	}

	observability.RecordCredit(int64(emojiCount))
	l.getLogEntry().WithFields(log.Fields{
		"user_id":     userID,
		"group_id":    groupID,
		"points":      emojiCount,
		"user_total":  res.User.AllTime,
		"group_total": res.Group.AllTime,
	}).Trace("credited")
	return res, nil
}

func (l *Ledger) GetUserTotals(ctx context.Context, userID int64) (db.Totals, error) {
	return l.store.GetUserTotals(ctx, userID, l.clock.Today())
}

func (l *Ledger) GetGroupTotals(ctx context.Context, groupID int64) (db.Totals, error) {
	return l.store.GetGroupTotals(ctx, groupID, l.clock.Today())
}

// GetGroupUserTotals returns the points the user earned today inside one group.
func (l *Ledger) GetGroupUserTotals(ctx context.Context, groupID, userID int64) (int64, error) {
	return l.store.GetGroupUserToday(ctx, groupID, userID, l.clock.Today())
}

func (l *Ledger) getLogEntry() *log.Entry {
	return log.WithField("object", "Ledger")
}

func userKey(id int64) string {
	return "user:" + strconv.FormatInt(id, 10)
}

func groupKey(id int64) string {
	return "group:" + strconv.FormatInt(id, 10)
}
