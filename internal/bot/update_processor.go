package bot

import (
	"context"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/emojibot/internal/infra"
	"github.com/iamwavecut/emojibot/internal/observability"
)

const (
	UpdateTimeout = 5 * time.Minute
)

type UpdateProcessor struct {
	updateHandlers []Handler
	now            func() time.Time
}

// NewUpdateProcessor picks the enabled handlers from the named set, in the enabled order.
func NewUpdateProcessor(available map[string]Handler, enabled []string) *UpdateProcessor {
	enabledHandlers := make([]Handler, 0, len(enabled))
	for _, handlerName := range enabled {
		handler, ok := available[handlerName]
		if !ok || handler == nil {
			log.WithField("object", "UpdateProcessor").Warnf("no registered handler: %s", handlerName)
			continue
		}
		enabledHandlers = append(enabledHandlers, handler)
	}

	return &UpdateProcessor{
		updateHandlers: enabledHandlers,
		now:            time.Now,
	}
}

func (up *UpdateProcessor) Process(ctx context.Context, u *api.Update) (err error) {
	if u == nil {
		return errors.New("update is nil")
	}
	done := observability.StartUpdateProcessing()
	status := "ok"
	defer func() {
		if err != nil {
			status = "error"
		}
		done(status)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if updateTime, ok := UpdateTime(u); ok && up.now().Sub(updateTime) > UpdateTimeout {
		log.WithFields(log.Fields{
			"object":      "UpdateProcessor",
			"update_time": updateTime,
			"age":         up.now().Sub(updateTime).String(),
		}).Debug("Skipping outdated update")
		status = "outdated"
		return nil
	}

	chat := u.FromChat()
	user := u.SentFrom()

	for _, handler := range up.updateHandlers {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		var proceed bool
		err := infra.SafeCall("update handler", func() error {
			var handleErr error
			proceed, handleErr = handler.Handle(ctx, u, chat, user)
			return handleErr
		})
		if err != nil {
			return errors.WithMessage(err, "handling error")
		}
		if !proceed {
			log.Trace("not proceeding")
			return nil
		}
	}
	return nil
}

// UpdateTime returns the send time of message-like updates.
func UpdateTime(u *api.Update) (time.Time, bool) {
	switch {
	case u.Message != nil:
		return time.Unix(int64(u.Message.Date), 0), true
	case u.EditedMessage != nil:
		return time.Unix(int64(u.EditedMessage.Date), 0), true
	case u.ChannelPost != nil:
		return time.Unix(int64(u.ChannelPost.Date), 0), true
	case u.EditedChannelPost != nil:
		return time.Unix(int64(u.EditedChannelPost.Date), 0), true
	default:
		return time.Time{}, false
	}
}

func GetUN(user *api.User) string {
	if user == nil {
		return ""
	}
	userName := user.UserName
	if len(userName) == 0 {
		userName = user.FirstName + " " + user.LastName
		userName = strings.TrimSpace(userName)
	}
	return userName
}

// ExtractText joins the text and caption of a message.
func ExtractText(msg *api.Message) string {
	if msg == nil {
		return ""
	}
	return strings.TrimSpace(msg.Text + " " + msg.Caption)
}

// IsGroupChat reports whether chat is a group or supergroup.
func IsGroupChat(chat *api.Chat) bool {
	return chat != nil && (chat.IsGroup() || chat.IsSuperGroup())
}
