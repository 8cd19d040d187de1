package handlers

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/emojibot/internal/bot"
	"github.com/iamwavecut/emojibot/internal/db"
	"github.com/iamwavecut/emojibot/internal/emoji"
	"github.com/iamwavecut/emojibot/internal/i18n"
	"github.com/iamwavecut/emojibot/internal/spamguard"
)

// MessageOutcome describes what the pipeline did with one group message.
type MessageOutcome struct {
	EmojiCount   int
	Decision     spamguard.Decision
	BlockedUntil time.Time
	Credit       *db.CreditResult
	Skipped      bool
}

// handleMessage scores a group message: count, gate through the spam guard, credit.
// Replies go out only after the guard or ledger mutation has completed.
func (r *Reactor) handleMessage(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	outcome, err := r.processMessage(ctx, msg, chat, user)
	if err != nil {
		return err
	}
	if outcome.Skipped || outcome.Decision != spamguard.BlockTriggered {
		return nil
	}
	return r.notifyBlocked(ctx, msg, user, outcome.BlockedUntil)
}

func (r *Reactor) processMessage(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) (*MessageOutcome, error) {
	if !bot.IsGroupChat(chat) {
		return &MessageOutcome{Skipped: true}, nil
	}

	count := emoji.Count(bot.ExtractText(msg))
	if count <= 0 {
		return &MessageOutcome{Skipped: true}, nil
	}

	receivedAt := time.Unix(int64(msg.Date), 0)
	if msg.Date == 0 {
		receivedAt = r.now()
	}
	entry := r.getLogEntry().WithFields(log.Fields{
		"method":      "processMessage",
		"chat_id":     chat.ID,
		"user_id":     user.ID,
		"emoji_count": count,
	})

	check, err := withRetry(ctx, "spam check", func(ctx context.Context) (spamguard.Result, error) {
		return r.guard.RecordAndCheck(ctx, user.ID, receivedAt)
	})
	if err != nil {
		return nil, err
	}

	outcome := &MessageOutcome{
		EmojiCount:   count,
		Decision:     check.Decision,
		BlockedUntil: check.BlockedUntil,
	}
	if !check.Decision.Credited() {
		entry.WithField("decision", check.Decision.String()).Debug("message not credited")
		return outcome, nil
	}

	res, err := withRetry(ctx, "credit", func(ctx context.Context) (*db.CreditResult, error) {
		return r.ledger.Credit(ctx, user.ID, chat.ID, count, receivedAt)
	})
	if err != nil {
		return nil, err
	}
	outcome.Credit = res
	entry.Trace("message credited")
	return outcome, nil
}

// notifyBlocked is sent once per block, repeated messages while blocked stay silent.
func (r *Reactor) notifyBlocked(ctx context.Context, msg *api.Message, user *api.User, until time.Time) error {
	lang := r.language(user)
	text := tool.ExecTemplate(
		i18n.Get("{{ .user_name }}, you are sending emojis too fast. Points are paused until {{ .until }}.", lang),
		map[string]any{
			"user_name": bot.GetUN(user),
			"until":     until.In(r.config.Location).Format("15:04:05"),
		},
	)
	return r.reply(ctx, msg, text)
}
