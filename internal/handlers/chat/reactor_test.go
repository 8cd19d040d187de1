package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/emojibot/internal/db"
	apperr "github.com/iamwavecut/emojibot/internal/errors"
	"github.com/iamwavecut/emojibot/internal/spamguard"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type senderStub struct {
	log   *eventLog
	texts []string
}

func (s *senderStub) Send(_ context.Context, c api.Chattable) (api.Message, error) {
	s.log.add("send")
	if msg, ok := c.(api.MessageConfig); ok {
		s.texts = append(s.texts, msg.Text)
	}
	return api.Message{}, nil
}

type creditCall struct {
	userID, groupID int64
	count           int
}

type ledgerStub struct {
	log        *eventLog
	credits    []creditCall
	creditErrs []error
	totals     db.Totals
	groupToday int64
}

func (l *ledgerStub) Credit(_ context.Context, userID, groupID int64, emojiCount int, _ time.Time) (*db.CreditResult, error) {
	l.log.add("credit")
	if len(l.creditErrs) > 0 {
		err := l.creditErrs[0]
		l.creditErrs = l.creditErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	l.credits = append(l.credits, creditCall{userID: userID, groupID: groupID, count: emojiCount})
	return &db.CreditResult{}, nil
}

func (l *ledgerStub) GetUserTotals(_ context.Context, _ int64) (db.Totals, error) {
	return l.totals, nil
}

func (l *ledgerStub) GetGroupUserTotals(_ context.Context, _, _ int64) (int64, error) {
	return l.groupToday, nil
}

type boardStub struct {
	entries []db.LeaderboardEntry
	err     error
	calls   int
	scope   db.Scope
	groupID int64
}

func (b *boardStub) TopUsers(_ context.Context, scope db.Scope, _ int) ([]db.LeaderboardEntry, error) {
	b.calls++
	b.scope = scope
	return b.entries, b.err
}

func (b *boardStub) TopGroups(_ context.Context, scope db.Scope, _ int) ([]db.LeaderboardEntry, error) {
	b.calls++
	b.scope = scope
	return b.entries, b.err
}

func (b *boardStub) DefaultLimit() int {
	return 10
}

func (b *boardStub) TopUsersInGroup(_ context.Context, groupID int64, _ string, _ int) ([]db.LeaderboardEntry, error) {
	b.calls++
	b.groupID = groupID
	return b.entries, b.err
}

type guardStub struct {
	log          *eventLog
	results      []spamguard.Result
	errs         []error
	calls        int
	blockedUntil time.Time
}

func (g *guardStub) BlockedUntil(_ context.Context, _ int64, _ time.Time) (time.Time, error) {
	return g.blockedUntil, nil
}

func (g *guardStub) RecordAndCheck(_ context.Context, _ int64, _ time.Time) (spamguard.Result, error) {
	g.log.add("guard")
	g.calls++
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return spamguard.Result{}, err
		}
	}
	if len(g.results) == 0 {
		return spamguard.Result{Decision: spamguard.Allow}, nil
	}
	res := g.results[0]
	g.results = g.results[1:]
	return res, nil
}

type registrarStub struct {
	users, groups []int64
}

func (r *registrarStub) RegisterUser(_ context.Context, userID int64) error {
	r.users = append(r.users, userID)
	return nil
}

func (r *registrarStub) RegisterGroup(_ context.Context, groupID int64) error {
	r.groups = append(r.groups, groupID)
	return nil
}

type fixture struct {
	log       *eventLog
	sender    *senderStub
	ledger    *ledgerStub
	board     *boardStub
	guard     *guardStub
	registrar *registrarStub
	reactor   *Reactor
}

func newFixture() *fixture {
	events := &eventLog{}
	f := &fixture{
		log:       events,
		sender:    &senderStub{log: events},
		ledger:    &ledgerStub{log: events},
		board:     &boardStub{},
		guard:     &guardStub{log: events},
		registrar: &registrarStub{},
	}
	f.reactor = NewReactor(f.sender, f.ledger, f.board, f.guard, f.registrar, Config{
		DefaultLanguage: "en",
		BotUserName:     "EmojiFightBot",
		Location:        time.UTC,
	})
	return f
}

var (
	groupChat   = api.Chat{ID: -100, Type: "supergroup", Title: "emoji club"}
	privateChat = api.Chat{ID: 42, Type: "private"}
	member      = &api.User{ID: 42, UserName: "emoji_fan"}
)

func textUpdate(chat api.Chat, text string) *api.Update {
	return &api.Update{Message: &api.Message{
		MessageID: 7,
		Date:      int(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Unix()),
		Chat:      chat,
		From:      member,
		Text:      text,
	}}
}

func commandUpdate(chat api.Chat, text string) *api.Update {
	u := textUpdate(chat, text)
	command := strings.Fields(text)[0]
	u.Message.Entities = []api.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command)}}
	return u
}

func (f *fixture) handle(t *testing.T, u *api.Update) error {
	t.Helper()
	chat := u.Message.Chat
	_, err := f.reactor.Handle(context.Background(), u, &chat, u.Message.From)
	return err
}

func TestMessageCreditsAllowedEmojis(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.handle(t, textUpdate(groupChat, "gg 🔥🔥 😀")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(f.ledger.credits) != 1 {
		t.Fatalf("expected one credit, got %d", len(f.ledger.credits))
	}
	if got := f.ledger.credits[0]; got != (creditCall{userID: 42, groupID: -100, count: 3}) {
		t.Fatalf("unexpected credit: %+v", got)
	}
	if len(f.sender.texts) != 0 {
		t.Fatalf("allowed messages are not answered: %v", f.sender.texts)
	}
}

func TestMessageWithoutEmojiSkipsGuard(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.handle(t, textUpdate(groupChat, "just words")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if f.guard.calls != 0 || len(f.ledger.credits) != 0 {
		t.Fatalf("plain text reached the guard or ledger")
	}
}

func TestPrivateMessagesAreNotScored(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.handle(t, textUpdate(privateChat, "🔥🔥")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if f.guard.calls != 0 || len(f.ledger.credits) != 0 {
		t.Fatalf("private message was scored")
	}
}

func TestBlockTriggeredNotifiesOnceAfterMutation(t *testing.T) {
	t.Parallel()

	f := newFixture()
	until := time.Date(2024, 3, 1, 12, 10, 0, 0, time.UTC)
	f.guard.results = []spamguard.Result{
		{Decision: spamguard.BlockTriggered, BlockedUntil: until},
		{Decision: spamguard.AlreadyBlocked, BlockedUntil: until},
		{Decision: spamguard.AlreadyBlocked, BlockedUntil: until},
	}

	for range 3 {
		if err := f.handle(t, textUpdate(groupChat, "🔥")); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}

	if len(f.ledger.credits) != 0 {
		t.Fatalf("blocked messages were credited: %+v", f.ledger.credits)
	}
	if len(f.sender.texts) != 1 {
		t.Fatalf("expected exactly one notice, got %v", f.sender.texts)
	}
	if want := "emoji_fan, you are sending emojis too fast. Points are paused until 12:10:00."; f.sender.texts[0] != want {
		t.Fatalf("unexpected notice %q", f.sender.texts[0])
	}
	events := f.log.snapshot()
	if len(events) < 2 || events[0] != "guard" || events[1] != "send" {
		t.Fatalf("notice must follow the guard decision, got %v", events)
	}
}

func TestMessageRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	f := newFixture()
	unavailable := apperr.StoreUnavailable(errors.New("database is locked"))
	f.guard.errs = []error{unavailable}
	f.ledger.creditErrs = []error{unavailable, unavailable}

	if err := f.handle(t, textUpdate(groupChat, "🔥")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if f.guard.calls != 2 {
		t.Fatalf("expected guard retry, got %d calls", f.guard.calls)
	}
	if len(f.ledger.credits) != 1 {
		t.Fatalf("expected credit after retries, got %d", len(f.ledger.credits))
	}
}

func TestMessageDoesNotRetryPermanentFailures(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.ledger.creditErrs = []error{errors.New("constraint failed")}

	if err := f.handle(t, textUpdate(groupChat, "🔥")); err == nil {
		t.Fatalf("expected error")
	}
	credits := 0
	for _, event := range f.log.snapshot() {
		if event == "credit" {
			credits++
		}
	}
	if credits != 1 {
		t.Fatalf("permanent failure retried %d times", credits)
	}
}

func TestTopUsersCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		text      string
		wantScope db.Scope
		header    string
	}{
		{"all time", "/topusers", db.ScopeAllTime, "Top 10 users with most emojis overall:"},
		{"today", "/topusers today", db.ScopeTodayGlobal, "Top 10 users with most emojis today:"},
		{"mention", "/topusers@EmojiFightBot today", db.ScopeTodayGlobal, "Top 10 users with most emojis today:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			f.board.entries = []db.LeaderboardEntry{{ID: 1, Points: 9}, {ID: 42, Points: 3}}
			if err := f.handle(t, commandUpdate(groupChat, tt.text)); err != nil {
				t.Fatalf("handle: %v", err)
			}
			if f.board.scope != tt.wantScope {
				t.Fatalf("unexpected scope %q", f.board.scope)
			}
			want := tt.header + "\n1. 1 - 9 emojis\n2. 42 - 3 emojis"
			if len(f.sender.texts) != 1 || f.sender.texts[0] != want {
				t.Fatalf("unexpected reply: %q", f.sender.texts)
			}
		})
	}
}

func TestTopGroupsEmptyRepliesNoData(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.board.entries = []db.LeaderboardEntry{}
	if err := f.handle(t, commandUpdate(privateChat, "/topgroups today")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if f.board.scope != db.ScopeTodayGlobal {
		t.Fatalf("unexpected scope %q", f.board.scope)
	}
	if len(f.sender.texts) != 1 || f.sender.texts[0] != "No data yet" {
		t.Fatalf("unexpected reply: %q", f.sender.texts)
	}
}

func TestTopCommandRequiresGroup(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.handle(t, commandUpdate(privateChat, "/top")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if f.board.calls != 0 {
		t.Fatalf("board queried from a private chat")
	}
	if len(f.sender.texts) != 1 || f.sender.texts[0] != "This command is only supported in group chats." {
		t.Fatalf("unexpected reply: %q", f.sender.texts)
	}

	g := newFixture()
	g.board.entries = []db.LeaderboardEntry{{ID: 42, Points: 4}}
	if err := g.handle(t, commandUpdate(groupChat, "/top")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if g.board.groupID != -100 {
		t.Fatalf("unexpected group %d", g.board.groupID)
	}
	if want := "Top 10 users with most emojis today in this group:\n1. 42 - 4 emojis"; g.sender.texts[0] != want {
		t.Fatalf("unexpected reply: %q", g.sender.texts[0])
	}
}

func TestProfileCommand(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.ledger.totals = db.Totals{AllTime: 12, Today: 5}
	f.ledger.groupToday = 4
	if err := f.handle(t, commandUpdate(groupChat, "/profile")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	want := "Your profile: User ID - 42\nAll time: 12\nToday: 5\nToday in this group: 4"
	if len(f.sender.texts) != 1 || f.sender.texts[0] != want {
		t.Fatalf("unexpected reply: %q", f.sender.texts)
	}
}

func TestStartCommandRegisters(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.handle(t, commandUpdate(privateChat, "/start")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := f.handle(t, commandUpdate(groupChat, "/start")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.registrar.users) != 1 || f.registrar.users[0] != 42 {
		t.Fatalf("unexpected users: %v", f.registrar.users)
	}
	if len(f.registrar.groups) != 1 || f.registrar.groups[0] != -100 {
		t.Fatalf("unexpected groups: %v", f.registrar.groups)
	}
	if len(f.sender.texts) != 2 || !strings.HasPrefix(f.sender.texts[0], "Hello! I am EmojiFight bot") {
		t.Fatalf("unexpected replies: %q", f.sender.texts)
	}
}

func TestCommandStoreOutageRepliesGenericFailure(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.board.err = apperr.StoreUnavailable(errors.New("connection refused"))
	err := f.handle(t, commandUpdate(groupChat, "/topusers"))
	if !apperr.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if f.board.calls != storeMaxRetries {
		t.Fatalf("expected %d attempts, got %d", storeMaxRetries, f.board.calls)
	}
	if len(f.sender.texts) != 1 || f.sender.texts[0] != "Something went wrong, please try again later." {
		t.Fatalf("unexpected reply: %q", f.sender.texts)
	}
}

func TestHelpAndUnknownCommands(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.handle(t, commandUpdate(groupChat, "/broadcast hi")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.sender.texts) != 0 {
		t.Fatalf("unknown command answered: %q", f.sender.texts)
	}

	if err := f.handle(t, commandUpdate(groupChat, "/help")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.sender.texts) != 1 || !strings.Contains(f.sender.texts[0], "/topusers [today]") {
		t.Fatalf("unexpected help: %q", f.sender.texts)
	}
}

func TestBotsAreIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture()
	u := textUpdate(groupChat, "🔥")
	u.Message.From = &api.User{ID: 99, IsBot: true}
	if err := f.handle(t, u); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if f.guard.calls != 0 {
		t.Fatalf("bot message reached the guard")
	}
}

func TestCommandsForOtherBotsAreIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.handle(t, commandUpdate(groupChat, "/topusers@SomeOtherBot")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if f.board.calls != 0 || len(f.sender.texts) != 0 {
		t.Fatalf("command for another bot was answered: %q", f.sender.texts)
	}

	if err := f.handle(t, commandUpdate(groupChat, "/topusers@emojifightbot")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if f.board.calls != 1 || len(f.sender.texts) != 1 {
		t.Fatalf("command for this bot was not answered: %q", f.sender.texts)
	}
}

func TestProfileShowsActiveBlock(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.ledger.totals = db.Totals{AllTime: 7, Today: 2}
	f.guard.blockedUntil = time.Date(2024, 3, 1, 12, 10, 0, 0, time.UTC)
	if err := f.handle(t, commandUpdate(privateChat, "/profile")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	want := "Your profile: User ID - 42\nAll time: 7\nToday: 2\nPoints paused until 12:10:00"
	if len(f.sender.texts) != 1 || f.sender.texts[0] != want {
		t.Fatalf("unexpected reply: %q", f.sender.texts)
	}
}
