package handlers

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/emojibot/internal/bot"
	"github.com/iamwavecut/emojibot/internal/db"
	"github.com/iamwavecut/emojibot/internal/i18n"
	"github.com/iamwavecut/emojibot/internal/spamguard"
)

type ledger interface {
	Credit(ctx context.Context, userID, groupID int64, emojiCount int, now time.Time) (*db.CreditResult, error)
	GetUserTotals(ctx context.Context, userID int64) (db.Totals, error)
	GetGroupUserTotals(ctx context.Context, groupID, userID int64) (int64, error)
}

type leaderboard interface {
	TopUsers(ctx context.Context, scope db.Scope, limit int) ([]db.LeaderboardEntry, error)
	TopGroups(ctx context.Context, scope db.Scope, limit int) ([]db.LeaderboardEntry, error)
	TopUsersInGroup(ctx context.Context, groupID int64, day string, limit int) ([]db.LeaderboardEntry, error)
	DefaultLimit() int
}

type spamGuard interface {
	RecordAndCheck(ctx context.Context, userID int64, now time.Time) (spamguard.Result, error)
	BlockedUntil(ctx context.Context, userID int64, now time.Time) (time.Time, error)
}

type registrar interface {
	RegisterUser(ctx context.Context, userID int64) error
	RegisterGroup(ctx context.Context, groupID int64) error
}

// Config tunes replies. Commands addressed to another bot than BotUserName are ignored.
type Config struct {
	DefaultLanguage string
	BotUserName     string
	Location        *time.Location
}

// Reactor routes commands and scores emoji messages.
type Reactor struct {
	sender    bot.Sender
	ledger    ledger
	board     leaderboard
	guard     spamGuard
	registrar registrar
	config    Config
	commands  map[string]commandHandler
	now       func() time.Time
}

func NewReactor(sender bot.Sender, ledger ledger, board leaderboard, guard spamGuard, registrar registrar, config Config) *Reactor {
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.DefaultLanguage == "" {
		config.DefaultLanguage = "en"
	}
	r := &Reactor{
		sender:    sender,
		ledger:    ledger,
		board:     board,
		guard:     guard,
		registrar: registrar,
		config:    config,
		now:       time.Now,
	}
	r.commands = r.commandRoutes()
	r.getLogEntry().Debug("created new reactor")
	return r
}

func (r *Reactor) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	if err := r.validateUpdate(u, chat, user); err != nil {
		return false, err
	}
	if u.Message == nil || user.IsBot {
		return true, nil
	}

	entry := r.getLogEntry().WithFields(log.Fields{
		"method":  "Handle",
		"chat_id": chat.ID,
		"user_id": user.ID,
	})

	if u.Message.IsCommand() {
		if err := r.handleCommand(ctx, u.Message, chat, user); err != nil {
			entry.WithField("error", err.Error()).Error("error handling command")
			return true, err
		}
		return true, nil
	}

	if err := r.handleMessage(ctx, u.Message, chat, user); err != nil {
		entry.WithField("error", err.Error()).Error("error handling message")
		return true, err
	}
	return true, nil
}

func (r *Reactor) validateUpdate(u *api.Update, chat *api.Chat, user *api.User) error {
	if u == nil {
		return errors.New("nil update")
	}
	if u.Message != nil && (chat == nil || user == nil) {
		return errors.New("nil chat or user")
	}
	return nil
}

func (r *Reactor) language(user *api.User) string {
	if user == nil {
		return r.config.DefaultLanguage
	}
	return i18n.Resolve(r.config.DefaultLanguage, user.LanguageCode)
}

// reply sends text back to the chat of msg, threaded to msg.
func (r *Reactor) reply(ctx context.Context, msg *api.Message, text string) error {
	out := api.NewMessage(msg.Chat.ID, text)
	out.ReplyParameters = api.ReplyParameters{
		ChatID:                   msg.Chat.ID,
		MessageID:                msg.MessageID,
		AllowSendingWithoutReply: true,
	}
	if msg.Chat.IsForum {
		out.MessageThreadID = msg.MessageThreadID
	}
	out.LinkPreviewOptions.IsDisabled = true
	if _, err := r.sender.Send(ctx, out); err != nil {
		return errors.WithMessage(err, "cant send reply")
	}
	return nil
}

func (r *Reactor) getLogEntry() *log.Entry {
	return log.WithField("object", "Reactor")
}
