// Package spamguard throttles users who post emoji bursts.
package spamguard

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/emojibot/internal/db"
	"github.com/iamwavecut/emojibot/internal/infra"
	"github.com/iamwavecut/emojibot/internal/observability"
)

const (
	DefaultWindowSize    = 5
	DefaultMaxGap        = 5 * time.Second
	DefaultBlockDuration = 600 * time.Second
	DefaultCacheSize     = 10000
)

type Decision int

const (
	Allow Decision = iota
	BlockTriggered
	AlreadyBlocked
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case BlockTriggered:
		return "block_triggered"
	case AlreadyBlocked:
		return "already_blocked"
	default:
		return "unknown"
	}
}

// Credited reports whether the message behind the decision may earn points.
func (d Decision) Credited() bool {
	return d == Allow
}

type Result struct {
	Decision     Decision
	BlockedUntil time.Time
}

type BlockStore interface {
	GetBlock(ctx context.Context, userID int64) (*db.UserBlock, error)
	SetBlock(ctx context.Context, userID int64, until time.Time) error
}

type Config struct {
	WindowSize    int
	MaxGap        time.Duration
	BlockDuration time.Duration
	CacheSize     int
}

type userState struct {
	window []time.Time
	block  db.UserBlock
}

// Guard keeps a sliding window of recent message times per user.
// Windows live in memory only, blocks are persisted through the store.
type Guard struct {
	store  BlockStore
	cfg    Config
	states *lru.Cache
	locks  *infra.KeyedMutex
}

func New(store BlockStore, cfg Config) (*Guard, error) {
	if cfg.WindowSize < 2 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.MaxGap <= 0 {
		cfg.MaxGap = DefaultMaxGap
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = DefaultBlockDuration
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	states, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create window cache: %w", err)
	}
	return &Guard{
		store:  store,
		cfg:    cfg,
		states: states,
		locks:  infra.NewKeyedMutex(),
	}, nil
}

// RecordAndCheck registers a message from userID at now and decides whether it may be credited.
// Block expiry is evaluated lazily on this call: a block set at T ends exactly at T+BlockDuration.
func (g *Guard) RecordAndCheck(ctx context.Context, userID int64, now time.Time) (Result, error) {
	unlock := g.locks.Lock(strconv.FormatInt(userID, 10))
	defer unlock()

	state, err := g.loadState(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	if state.block.Active(now) {
		observability.RecordSpamDecision(AlreadyBlocked.String())
		return Result{Decision: AlreadyBlocked, BlockedUntil: state.block.BlockedUntil}, nil
	}

	window := append(slices.Clone(state.window), now)
	if len(window) > g.cfg.WindowSize {
		window = window[len(window)-g.cfg.WindowSize:]
	}

	if len(window) == g.cfg.WindowSize && g.isBurst(window) {
		until := now.Add(g.cfg.BlockDuration)
		if err := g.store.SetBlock(ctx, userID, until); err != nil {
			return Result{}, err
		}
		state.block = db.UserBlock{UserID: userID, BlockedUntil: until}
		state.window = nil
		g.states.Add(userID, state)

		g.getLogEntry().WithFields(log.Fields{
			"user_id":       userID,
			"blocked_until": until.Format(time.RFC3339),
		}).Info("user blocked for emoji burst")
		observability.RecordSpamDecision(BlockTriggered.String())
		return Result{Decision: BlockTriggered, BlockedUntil: until}, nil
	}

	state.window = window
	g.states.Add(userID, state)
	observability.RecordSpamDecision(Allow.String())
	return Result{Decision: Allow}, nil
}

// BlockedUntil reports the current block deadline for userID, zero when not blocked at now.
func (g *Guard) BlockedUntil(ctx context.Context, userID int64, now time.Time) (time.Time, error) {
	unlock := g.locks.Lock(strconv.FormatInt(userID, 10))
	defer unlock()

	state, err := g.loadState(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	if state.block.Active(now) {
		return state.block.BlockedUntil, nil
	}
	return time.Time{}, nil
}

func (g *Guard) loadState(ctx context.Context, userID int64) (*userState, error) {
	if cached, ok := g.states.Get(userID); ok {
		return cached.(*userState), nil
	}
	block, err := g.store.GetBlock(ctx, userID)
	if err != nil {
		return nil, err
	}
	state := &userState{block: db.UserBlock{UserID: userID}}
	if block != nil {
		state.block = *block
	}
	g.states.Add(userID, state)
	return state, nil
}

// isBurst reports whether every consecutive gap in window is below MaxGap.
func (g *Guard) isBurst(window []time.Time) bool {
	for i := 1; i < len(window); i++ {
		if window[i].Sub(window[i-1]) >= g.cfg.MaxGap {
			return false
		}
	}
	return true
}

func (g *Guard) getLogEntry() *log.Entry {
	return log.WithField("object", "SpamGuard")
}
