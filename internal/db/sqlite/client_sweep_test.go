package sqlite

import (
	"context"
	"testing"

	"github.com/iamwavecut/emojibot/internal/db"
)

func TestDeleteStaleDailyKeepsAllTime(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)
	seedCredits(t, client,
		db.Credit{UserID: 42, GroupID: -100, Points: 3, Day: dayOne},
		db.Credit{UserID: 43, GroupID: -100, Points: 1, Day: dayTwo},
	)

	res, err := client.DeleteStaleDaily(ctx, dayTwo)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.UsersDeleted != 1 || res.GroupsDeleted != 1 || res.GroupUsersDeleted != 1 {
		t.Fatalf("unexpected sweep result: %#v", res)
	}

	totals, _ := client.GetUserTotals(ctx, 42, dayOne)
	if totals != (db.Totals{AllTime: 3, Today: 0}) {
		t.Fatalf("unexpected swept totals: %v", totals)
	}
	fresh, _ := client.GetUserTotals(ctx, 43, dayTwo)
	if fresh != (db.Totals{AllTime: 1, Today: 1}) {
		t.Fatalf("current day rows must survive: %v", fresh)
	}
	group, _ := client.GetGroupTotals(ctx, -100, dayTwo)
	if group != (db.Totals{AllTime: 4, Today: 1}) {
		t.Fatalf("unexpected group totals: %v", group)
	}

	again, err := client.DeleteStaleDaily(ctx, dayTwo)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again.Total() != 0 {
		t.Fatalf("second sweep must be a no-op: %#v", again)
	}
}
