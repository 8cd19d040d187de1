package bot

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
)

// Handler defines the interface for all update handlers in the system
type Handler interface {
	Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error)
}

// Sender delivers outbound messages to the chat transport.
type Sender interface {
	Send(ctx context.Context, c api.Chattable) (api.Message, error)
}

// BotAPI is the part of *api.BotAPI the gateway relies on.
type BotAPI interface {
	GetUpdates(config api.UpdateConfig) ([]api.Update, error)
	Send(c api.Chattable) (api.Message, error)
}
