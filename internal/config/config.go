package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

type (
	Config struct {
		TelegramAPIToken string   `env:"TOKEN,required"`
		DefaultLanguage  string   `env:"LANG,default=en"`
		EnabledHandlers  []string `env:"HANDLERS,default=scoring"`
		LogLevel         int      `env:"LOG_LEVEL,default=4"`
		DotPath          string   `env:"DOT_PATH,default=~/.emojibot"`
		TimeZone         string   `env:"TZ,default=Local"`
		MetricsAddr      string   `env:"METRICS_ADDR,default=:2112"`
		Store            Store
		SpamGuard        SpamGuard
		Leaderboard      Leaderboard
		Sender           Sender
	}

	Store struct {
		Type          string `env:"STORE,default=sqlite"`
		SQLiteFile    string `env:"SQLITE_FILE,default=emojibot.db"`
		MongoURI      string `env:"MONGO_URI"`
		MongoDatabase string `env:"MONGO_DATABASE,default=EmojiFight"`
	}

	SpamGuard struct {
		WindowSize     int           `env:"SPAM_WINDOW_SIZE,default=5"`
		MaxGap         time.Duration `env:"SPAM_MAX_GAP,default=5s"`
		BlockDuration  time.Duration `env:"SPAM_BLOCK_DURATION,default=10m"`
		WindowCacheCap int           `env:"SPAM_WINDOW_CACHE_SIZE,default=10000"`
	}

	Leaderboard struct {
		TopLimit int `env:"TOP_LIMIT,default=10"`
	}

	Sender struct {
		RatePerSecond float64 `env:"SEND_RATE,default=25"`
		Burst         int     `env:"SEND_BURST,default=5"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg, err := LoadFrom(context.Background(), envconfig.OsLookuper())
		if err != nil {
			globalErr = err
			return
		}
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

// LoadFrom reads NG_-prefixed settings from the given lookuper and normalizes them.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	envcfg := envconfig.Config{
		Lookuper: envconfig.PrefixLookuper("NG_", lookuper),
		Target:   cfg,
	}
	if err := envconfig.ProcessWith(ctx, &envcfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	dotPath, err := homedir.Expand(cfg.DotPath)
	if err != nil {
		return nil, fmt.Errorf("expand dot path: %w", err)
	}
	cfg.DotPath = dotPath
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location resolves the zone used for day stamps.
func (c Config) Location() (*time.Location, error) {
	if c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

func (c *Config) validate() error {
	switch c.Store.Type {
	case StoreSQLite:
	case StoreMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("NG_MONGO_URI is required for %s store", StoreMongo)
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	if c.SpamGuard.WindowSize < 2 {
		return fmt.Errorf("spam window size must be at least 2, got %d", c.SpamGuard.WindowSize)
	}
	if c.SpamGuard.MaxGap <= 0 || c.SpamGuard.BlockDuration <= 0 {
		return fmt.Errorf("spam guard durations must be positive")
	}
	if c.SpamGuard.WindowCacheCap <= 0 {
		c.SpamGuard.WindowCacheCap = 10000
	}
	if c.Leaderboard.TopLimit <= 0 {
		c.Leaderboard.TopLimit = 10
	}
	if c.Sender.RatePerSecond <= 0 {
		c.Sender.RatePerSecond = 25
	}
	if c.Sender.Burst <= 0 {
		c.Sender.Burst = 1
	}
	return nil
}
