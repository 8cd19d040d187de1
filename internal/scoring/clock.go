package scoring

import (
	"time"

	"github.com/iamwavecut/emojibot/internal/db"
)

// Clock derives day stamps from wall-clock time in one fixed zone.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

func NewClock(loc *time.Location) *Clock {
	return NewClockWithNow(loc, time.Now)
}

func NewClockWithNow(loc *time.Location, now func() time.Time) *Clock {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &Clock{loc: loc, now: now}
}

func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

func (c *Clock) Location() *time.Location {
	return c.loc
}

// DayStamp returns the calendar day of t in the clock zone.
func (c *Clock) DayStamp(t time.Time) string {
	return t.In(c.loc).Format(db.DayLayout)
}

func (c *Clock) Today() string {
	return c.DayStamp(c.Now())
}

// NextMidnight returns the start of the day following t in the clock zone.
func (c *Clock) NextMidnight(t time.Time) time.Time {
	local := t.In(c.loc)
	year, month, day := local.Date()
	return time.Date(year, month, day+1, 0, 0, 0, 0, c.loc)
}
