package db

import "time"

// UserBlock is the persisted half of the spam guard state: when a user may be credited again.
type UserBlock struct {
	UserID       int64     `db:"id"`
	BlockedUntil time.Time `db:"-"`
}

// Active reports whether the block still applies at now.
func (b UserBlock) Active(now time.Time) bool {
	return !b.BlockedUntil.IsZero() && now.Before(b.BlockedUntil)
}

// BlockedUntilFromUnixNano converts the stored column back to time; zero means not blocked.
func BlockedUntilFromUnixNano(ns int64) time.Time {
	if ns <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
