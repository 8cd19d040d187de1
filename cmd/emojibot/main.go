package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iamwavecut/emojibot/internal/bot"
	"github.com/iamwavecut/emojibot/internal/config"
	"github.com/iamwavecut/emojibot/internal/db"
	"github.com/iamwavecut/emojibot/internal/db/mongo"
	"github.com/iamwavecut/emojibot/internal/db/sqlite"
	handlers "github.com/iamwavecut/emojibot/internal/handlers/chat"
	"github.com/iamwavecut/emojibot/internal/infra"
	"github.com/iamwavecut/emojibot/internal/lifecycle"
	"github.com/iamwavecut/emojibot/internal/observability"
	"github.com/iamwavecut/emojibot/internal/scoring"
	"github.com/iamwavecut/emojibot/internal/spamguard"
	"github.com/iamwavecut/emojibot/internal/sweeper"
)

var errExecutableModified = errors.New("executable file was modified")

func main() {
	cfg, err := config.Load()
	log.SetFormatter(&config.NbFormatter{})
	log.SetOutput(os.Stdout)
	if err != nil {
		log.WithField("error", err.Error()).Fatalln("cant load config")
	}
	log.SetLevel(log.Level(cfg.LogLevel))

	if err := run(cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithField("error", err.Error()).Errorln("exiting")
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Init(ctx)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.WithField("error", err.Error()).Warn("cant shutdown tracing")
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	clock := scoring.NewClock(loc)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithField("error", err.Error()).Warn("cant close store")
		}
	}()
	if users, groups, err := store.CountRegistered(ctx); err == nil {
		log.WithFields(log.Fields{"users": users, "groups": groups}).Info("store ready")
	}

	guard, err := spamguard.New(store, spamguard.Config{
		WindowSize:    cfg.SpamGuard.WindowSize,
		MaxGap:        cfg.SpamGuard.MaxGap,
		BlockDuration: cfg.SpamGuard.BlockDuration,
		CacheSize:     cfg.SpamGuard.WindowCacheCap,
	})
	if err != nil {
		return fmt.Errorf("create spam guard: %w", err)
	}

	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		return fmt.Errorf("cant initialize bot api: %w", err)
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}
	log.WithField("username", botAPI.Self.UserName).Info("authorized")

	reactor := handlers.NewReactor(
		bot.NewRateLimitedSender(botAPI, cfg.Sender.RatePerSecond, cfg.Sender.Burst),
		scoring.NewLedger(store, clock),
		scoring.NewLeaderboard(store, clock, cfg.Leaderboard.TopLimit),
		guard,
		store,
		handlers.Config{
			DefaultLanguage: cfg.DefaultLanguage,
			BotUserName:     botAPI.Self.UserName,
			Location:        clock.Location(),
		},
	)
	processor := bot.NewUpdateProcessor(map[string]bot.Handler{"scoring": reactor}, cfg.EnabledHandlers)

	runtime := lifecycle.NewRuntime(
		observability.NewMetricsServer(cfg.MetricsAddr, store),
		sweeper.New(store, clock),
		bot.NewService(botAPI, processor),
	)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancelCause(gctx)
	defer cancelRun(nil)

	g.Go(func() error {
		return runtime.Run(runCtx)
	})
	g.Go(func() error {
		if _, modified := <-infra.MonitorExecutable(runCtx); modified {
			log.Warn(errExecutableModified.Error())
			cancelRun(errExecutableModified)
		}
		return nil
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (db.Client, error) {
	switch cfg.Store.Type {
	case config.StoreMongo:
		client, err := mongo.NewMongoClient(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		return client, nil
	default:
		client, err := sqlite.NewSQLiteClient(ctx, cfg.DotPath, cfg.Store.SQLiteFile)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return client, nil
	}
}
