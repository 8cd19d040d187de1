// Package sweeper purges stale daily counters once the day rolls over.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/emojibot/internal/db"
	apperr "github.com/iamwavecut/emojibot/internal/errors"
	"github.com/iamwavecut/emojibot/internal/observability"
	"github.com/iamwavecut/emojibot/internal/scoring"
)

const (
	kvKeyLastSweepDay = "last_sweep_day"

	sweepMaxRetries = 3
	sweepRetryStep  = 150 * time.Millisecond
)

type Store interface {
	DeleteStaleDaily(ctx context.Context, day string) (*db.SweepResult, error)
	GetKV(ctx context.Context, key string) (string, error)
	SetKV(ctx context.Context, key string, value string) error
}

// Sweeper deletes daily rows whose day stamp is not today.
// It runs once on start and then at every midnight of the clock zone.
type Sweeper struct {
	store Store
	clock *scoring.Clock

	runMutex  sync.Mutex
	started   bool
	runCancel context.CancelFunc
	workersWg sync.WaitGroup
}

func New(store Store, clock *scoring.Clock) *Sweeper {
	return &Sweeper{store: store, clock: clock}
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()
	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel

	s.workersWg.Add(1)
	go func() {
		defer s.workersWg.Done()
		s.run(runCtx)
	}()

	s.started = true
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.runMutex.Lock()
	if !s.started {
		s.runMutex.Unlock()
		return nil
	}
	s.started = false
	cancel := s.runCancel
	s.runMutex.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.workersWg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *Sweeper) run(ctx context.Context) {
	s.sweepLogged(ctx)

	for {
		now := s.clock.Now()
		wait := s.clock.NextMidnight(now).Sub(now)
		s.getLogEntry().WithField("next_sweep_in", wait.String()).Debug("scheduled sweep")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.sweepLogged(ctx)
		}
	}
}

func (s *Sweeper) sweepLogged(ctx context.Context) {
	if _, err := s.Sweep(ctx, s.clock.Now()); err != nil && !errors.Is(err, context.Canceled) {
		s.getLogEntry().WithField("error", err.Error()).Error("sweep failed")
	}
}

// Sweep removes every daily row not stamped with the day of now.
// All-time totals and user blocks are never touched.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (*db.SweepResult, error) {
	day := s.clock.DayStamp(now)
	entry := s.getLogEntry().WithFields(log.Fields{
		"run_id": uuid.New(),
		"day":    day,
	})

	lastDay, err := s.store.GetKV(ctx, kvKeyLastSweepDay)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("cant read last sweep day")
	}
	if lastDay != "" && lastDay != day {
		entry = entry.WithField("last_sweep_day", lastDay)
	}

	var res *db.SweepResult
	for attempt := range sweepMaxRetries {
		res, err = s.store.DeleteStaleDaily(ctx, day)
		if err == nil || !apperr.IsRetryable(err) {
			break
		}
		entry.WithFields(log.Fields{
			"attempt": attempt + 1,
			"error":   err.Error(),
		}).Warn("sweep attempt failed")
		if attempt == sweepMaxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * sweepRetryStep):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("delete stale daily rows: %w", err)
	}

	observability.RecordSweep("users", res.UsersDeleted)
	observability.RecordSweep("groups", res.GroupsDeleted)
	observability.RecordSweep("group_users", res.GroupUsersDeleted)

	if err := s.store.SetKV(ctx, kvKeyLastSweepDay, day); err != nil {
		entry.WithField("error", err.Error()).Warn("cant store last sweep day")
	}

	entry.WithFields(log.Fields{
		"users":       res.UsersDeleted,
		"groups":      res.GroupsDeleted,
		"group_users": res.GroupUsersDeleted,
	}).Info("sweep finished")
	return res, nil
}

func (s *Sweeper) getLogEntry() *log.Entry {
	return log.WithField("object", "Sweeper")
}
