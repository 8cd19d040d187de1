package db

// DayLayout formats day stamps that partition the "today" counters.
const DayLayout = "2006-01-02"

// Scope selects the counter partition a ranking query reads.
type Scope string

const (
	ScopeAllTime       Scope = "all_time"
	ScopeTodayGlobal   Scope = "today_global"
	ScopeTodayPerGroup Scope = "today_per_group"
)

type (
	// Totals is an (all-time, today) pair for one user or group.
	Totals struct {
		AllTime int64 `db:"all_time" bson:"all_time"`
		Today   int64 `db:"today" bson:"today"`
	}

	// Credit is one observed message worth Points for UserID in GroupID on Day.
	Credit struct {
		UserID  int64
		GroupID int64
		Points  int64
		Day     string
	}

	// CreditResult holds post-increment counters of one credit.
	CreditResult struct {
		User       Totals
		Group      Totals
		GroupToday int64
	}

	LeaderboardEntry struct {
		ID     int64 `db:"id" bson:"id"`
		Points int64 `db:"points" bson:"points"`
	}

	SweepResult struct {
		UsersDeleted      int64
		GroupsDeleted     int64
		GroupUsersDeleted int64
	}
)

// Total deleted rows across all daily partitions.
func (r SweepResult) Total() int64 {
	return r.UsersDeleted + r.GroupsDeleted + r.GroupUsersDeleted
}

// IsToday reports whether the scope reads a daily partition.
func (s Scope) IsToday() bool {
	return s == ScopeTodayGlobal || s == ScopeTodayPerGroup
}
