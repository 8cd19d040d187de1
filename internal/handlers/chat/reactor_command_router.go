package handlers

import (
	"context"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/emojibot/internal/bot"
	"github.com/iamwavecut/emojibot/internal/db"
	apperr "github.com/iamwavecut/emojibot/internal/errors"
	"github.com/iamwavecut/emojibot/internal/i18n"
)

const todayArgument = "today"

type commandHandler func(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User, lang string) error

func (r *Reactor) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":     r.startCommand,
		"help":      r.helpCommand,
		"topusers":  r.topUsersCommand,
		"topgroups": r.topGroupsCommand,
		"top":       r.topCommand,
		"profile":   r.profileCommand,
	}
}

func (r *Reactor) handleCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	if !r.addressedToBot(msg) {
		return nil
	}
	command := strings.ToLower(msg.Command())
	handler, ok := r.commands[command]
	if !ok {
		r.getLogEntry().WithField("command", command).Trace("unknown command")
		return nil
	}

	lang := r.language(user)
	err := handler(ctx, msg, chat, user, lang)
	if err == nil {
		return nil
	}
	if errors.Is(err, apperr.ErrNotGroupChat) {
		return r.reply(ctx, msg, i18n.Get("This command is only supported in group chats.", lang))
	}
	if apperr.IsRetryable(err) {
		if replyErr := r.reply(ctx, msg, i18n.Get("Something went wrong, please try again later.", lang)); replyErr != nil {
			r.getLogEntry().WithField("error", replyErr.Error()).Warn("cant send failure notice")
		}
	}
	return err
}

func (r *Reactor) startCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User, lang string) error {
	if bot.IsGroupChat(chat) {
		if _, err := withRetry(ctx, "register group", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.registrar.RegisterGroup(ctx, chat.ID)
		}); err != nil {
			return err
		}
		return r.reply(ctx, msg, i18n.Get("This group is now counted. Send emojis to climb the leaderboard!", lang))
	}

	if _, err := withRetry(ctx, "register user", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.registrar.RegisterUser(ctx, user.ID)
	}); err != nil {
		return err
	}
	r.getLogEntry().WithField("user_id", user.ID).Info("user registered")
	return r.reply(ctx, msg, i18n.Get("Hello! I am EmojiFight bot. Use /help to see available commands.", lang))
}

func (r *Reactor) helpCommand(ctx context.Context, msg *api.Message, _ *api.Chat, _ *api.User, lang string) error {
	lines := []string{
		i18n.Get("Available commands:", lang),
		"/start - " + i18n.Get("register and greet", lang),
		"/help - " + i18n.Get("show this help", lang),
		"/topusers [today] - " + i18n.Get("top users, append today for the daily board", lang),
		"/topgroups [today] - " + i18n.Get("top groups, append today for the daily board", lang),
		"/top - " + i18n.Get("today's top users in this group", lang),
		"/profile - " + i18n.Get("your emoji points", lang),
	}
	return r.reply(ctx, msg, strings.Join(lines, "\n"))
}

func (r *Reactor) topUsersCommand(ctx context.Context, msg *api.Message, _ *api.Chat, _ *api.User, lang string) error {
	scope, header := db.ScopeAllTime, i18n.Get("Top {{ .limit }} users with most emojis overall:", lang)
	if wantsToday(msg) {
		scope, header = db.ScopeTodayGlobal, i18n.Get("Top {{ .limit }} users with most emojis today:", lang)
	}

	entries, err := withRetry(ctx, "top users", func(ctx context.Context) ([]db.LeaderboardEntry, error) {
		return r.board.TopUsers(ctx, scope, 0)
	})
	if err != nil {
		return err
	}
	return r.reply(ctx, msg, r.renderLeaderboard(header, entries, lang))
}

func (r *Reactor) topGroupsCommand(ctx context.Context, msg *api.Message, _ *api.Chat, _ *api.User, lang string) error {
	scope, header := db.ScopeAllTime, i18n.Get("Top {{ .limit }} groups with most emojis overall:", lang)
	if wantsToday(msg) {
		scope, header = db.ScopeTodayGlobal, i18n.Get("Top {{ .limit }} groups with most emojis today:", lang)
	}

	entries, err := withRetry(ctx, "top groups", func(ctx context.Context) ([]db.LeaderboardEntry, error) {
		return r.board.TopGroups(ctx, scope, 0)
	})
	if err != nil {
		return err
	}
	return r.reply(ctx, msg, r.renderLeaderboard(header, entries, lang))
}

func (r *Reactor) topCommand(ctx context.Context, msg *api.Message, chat *api.Chat, _ *api.User, lang string) error {
	if !bot.IsGroupChat(chat) {
		return errors.Wrap(apperr.ErrNotGroupChat, "top")
	}

	entries, err := withRetry(ctx, "top users in group", func(ctx context.Context) ([]db.LeaderboardEntry, error) {
		return r.board.TopUsersInGroup(ctx, chat.ID, "", 0)
	})
	if err != nil {
		return err
	}
	header := i18n.Get("Top {{ .limit }} users with most emojis today in this group:", lang)
	return r.reply(ctx, msg, r.renderLeaderboard(header, entries, lang))
}

func (r *Reactor) profileCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User, lang string) error {
	totals, err := withRetry(ctx, "user totals", func(ctx context.Context) (db.Totals, error) {
		return r.ledger.GetUserTotals(ctx, user.ID)
	})
	if err != nil {
		return err
	}

	lines := []string{
		tool.ExecTemplate(i18n.Get("Your profile: User ID - {{ .user_id }}", lang), map[string]any{"user_id": user.ID}),
		tool.ExecTemplate(i18n.Get("All time: {{ .all_time }}", lang), map[string]any{"all_time": totals.AllTime}),
		tool.ExecTemplate(i18n.Get("Today: {{ .today }}", lang), map[string]any{"today": totals.Today}),
	}

	if bot.IsGroupChat(chat) {
		groupToday, err := withRetry(ctx, "group user totals", func(ctx context.Context) (int64, error) {
			return r.ledger.GetGroupUserTotals(ctx, chat.ID, user.ID)
		})
		if err != nil {
			return err
		}
		lines = append(lines, tool.ExecTemplate(
			i18n.Get("Today in this group: {{ .group_today }}", lang),
			map[string]any{"group_today": groupToday},
		))
	}

	blockedUntil, err := withRetry(ctx, "blocked until", func(ctx context.Context) (time.Time, error) {
		return r.guard.BlockedUntil(ctx, user.ID, r.now())
	})
	if err != nil {
		return err
	}
	if !blockedUntil.IsZero() {
		lines = append(lines, tool.ExecTemplate(
			i18n.Get("Points paused until {{ .until }}", lang),
			map[string]any{"until": blockedUntil.In(r.config.Location).Format("15:04:05")},
		))
	}

	r.getLogEntry().WithFields(log.Fields{
		"user_id":  user.ID,
		"all_time": totals.AllTime,
		"today":    totals.Today,
	}).Debug("profile requested")
	return r.reply(ctx, msg, strings.Join(lines, "\n"))
}

func (r *Reactor) renderLeaderboard(header string, entries []db.LeaderboardEntry, lang string) string {
	if len(entries) == 0 {
		return i18n.Get("No data yet", lang)
	}

	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, tool.ExecTemplate(header, map[string]any{"limit": r.board.DefaultLimit()}))
	line := i18n.Get("{{ .position }}. {{ .id }} - {{ .points }} emojis", lang)
	for i, entry := range entries {
		lines = append(lines, tool.ExecTemplate(line, map[string]any{
			"position": i + 1,
			"id":       entry.ID,
			"points":   entry.Points,
		}))
	}
	return strings.Join(lines, "\n")
}

// addressedToBot rejects /cmd@OtherBot, bare commands are for everyone.
func (r *Reactor) addressedToBot(msg *api.Message) bool {
	_, target, found := strings.Cut(msg.CommandWithAt(), "@")
	if !found || r.config.BotUserName == "" {
		return true
	}
	return strings.EqualFold(target, r.config.BotUserName)
}

func wantsToday(msg *api.Message) bool {
	for _, arg := range strings.Fields(msg.CommandArguments()) {
		if strings.EqualFold(arg, todayArgument) {
			return true
		}
	}
	return false
}
