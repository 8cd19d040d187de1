package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/emojibot/internal/infra"
)

const (
	updatesBuffer    = 100
	pollTimeout      = 60
	pollRestartDelay = 3 * time.Second
	maxPollPanics    = -1
	pollJobName      = "process_updates"
)

// Service polls the transport for updates and feeds them to the processor.
type Service struct {
	bot       BotAPI
	processor *UpdateProcessor

	runMutex  sync.Mutex
	started   bool
	runCancel context.CancelFunc
	workersWg sync.WaitGroup
}

func NewService(bot BotAPI, processor *UpdateProcessor) *Service {
	return &Service{bot: bot, processor: processor}
}

func (s *Service) Start(ctx context.Context) error {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()
	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel

	// Done runs only when poll returns normally, a panicking poll is restarted in place.
	s.workersWg.Add(1)
	go infra.GoRecoverable(maxPollPanics, pollJobName, func() {
		s.poll(runCtx)
		s.workersWg.Done()
	})

	s.started = true
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
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

func (s *Service) poll(ctx context.Context) {
	updateConfig := api.NewUpdate(0)
	updateConfig.Timeout = pollTimeout

	for {
		updates, errs := GetUpdatesChans(ctx, s.bot, updateConfig)
		offset := s.consume(ctx, updates, errs)
		if offset > updateConfig.Offset {
			updateConfig.Offset = offset
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(pollRestartDelay):
			s.getLogEntry().Info("restarting updates polling")
		}
	}
}

// consume processes updates until the channel closes and returns the next offset.
func (s *Service) consume(ctx context.Context, updates api.UpdatesChannel, errs chan error) int {
	offset := 0
	for {
		select {
		case err, ok := <-errs:
			if ok && err != nil && !errors.Is(err, context.Canceled) {
				s.getLogEntry().WithField("error", err.Error()).Error("bot api get updates error")
			}
			errs = nil
		case update, ok := <-updates:
			if !ok {
				return offset
			}
			offset = update.UpdateID + 1
			s.handle(ctx, update)
		}
	}
}

func (s *Service) handle(ctx context.Context, update api.Update) {
	if err := s.processor.Process(ctx, &update); err != nil && !errors.Is(err, context.Canceled) {
		s.getLogEntry().WithFields(log.Fields{
			"update_id": update.UpdateID,
			"error":     err.Error(),
		}).Error("cant process update")
	}
}

func (s *Service) getLogEntry() *log.Entry {
	return log.WithField("object", "BotService")
}

// GetUpdatesChans long-polls the transport until ctx is done or a poll fails.
func GetUpdatesChans(ctx context.Context, bot BotAPI, config api.UpdateConfig) (api.UpdatesChannel, chan error) {
	ch := make(chan api.Update, updatesBuffer)
	chErr := make(chan error, 1)

	go func() {
		defer close(ch)
		defer close(chErr)
		for {
			select {
			case <-ctx.Done():
				chErr <- ctx.Err()
				return
			default:
				updates, err := bot.GetUpdates(config)
				if err != nil {
					chErr <- err
					return
				}

				for _, update := range updates {
					if update.UpdateID >= config.Offset {
						config.Offset = update.UpdateID + 1
						select {
						case ch <- update:
						case <-ctx.Done():
							chErr <- ctx.Err()
							return
						}
					}
				}
			}
		}
	}()

	return ch, chErr
}
