package bot

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// RateLimitedSender keeps outbound traffic under the transport flood limits.
type RateLimitedSender struct {
	bot     BotAPI
	limiter *rate.Limiter
}

func NewRateLimitedSender(bot BotAPI, perSecond float64, burst int) *RateLimitedSender {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedSender{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (s *RateLimitedSender) Send(ctx context.Context, c api.Chattable) (api.Message, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return api.Message{}, errors.WithMessage(err, "wait for send slot")
	}
	msg, err := s.bot.Send(c)
	if err != nil {
		return api.Message{}, errors.WithMessage(err, "cant send message")
	}
	return msg, nil
}
