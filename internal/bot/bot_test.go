package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
)

type recordingHandler struct {
	name    string
	proceed bool
	err     error
	panics  bool
	calls   *[]string
	mu      *sync.Mutex
}

func (h recordingHandler) Handle(_ context.Context, _ *api.Update, _ *api.Chat, _ *api.User) (bool, error) {
	h.mu.Lock()
	*h.calls = append(*h.calls, h.name)
	h.mu.Unlock()
	if h.panics {
		panic("handler exploded")
	}
	return h.proceed, h.err
}

func messageUpdate(id int, sent time.Time) *api.Update {
	return &api.Update{
		UpdateID: id,
		Message: &api.Message{
			MessageID: id,
			Date:      int(sent.Unix()),
			Chat:      api.Chat{ID: -100, Type: "supergroup"},
			From:      &api.User{ID: 42, UserName: "emoji_fan"},
			Text:      "🔥",
		},
	}
}

func TestUpdateProcessorRunsEnabledHandlersInOrder(t *testing.T) {
	t.Parallel()

	var calls []string
	mu := &sync.Mutex{}
	handlers := map[string]Handler{
		"first":  recordingHandler{name: "first", proceed: true, calls: &calls, mu: mu},
		"second": recordingHandler{name: "second", proceed: false, calls: &calls, mu: mu},
		"third":  recordingHandler{name: "third", proceed: true, calls: &calls, mu: mu},
	}
	processor := NewUpdateProcessor(handlers, []string{"first", "missing", "second", "third"})

	if err := processor.Process(context.Background(), messageUpdate(1, time.Now())); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("unexpected handler calls: %v", calls)
	}
}

func TestUpdateProcessorSkipsOutdatedUpdates(t *testing.T) {
	t.Parallel()

	var calls []string
	mu := &sync.Mutex{}
	processor := NewUpdateProcessor(map[string]Handler{
		"scoring": recordingHandler{name: "scoring", proceed: true, calls: &calls, mu: mu},
	}, []string{"scoring"})

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	processor.now = func() time.Time { return now }

	if err := processor.Process(context.Background(), messageUpdate(1, now.Add(-UpdateTimeout-time.Second))); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("outdated update reached handlers: %v", calls)
	}

	if err := processor.Process(context.Background(), messageUpdate(2, now.Add(-time.Minute))); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("fresh update was not handled: %v", calls)
	}
}

func TestUpdateProcessorReportsErrorsAndPanics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler recordingHandler
	}{
		{"error", recordingHandler{name: "failing", err: errors.New("store down")}},
		{"panic", recordingHandler{name: "panicking", panics: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls []string
			handler := tt.handler
			handler.calls = &calls
			handler.mu = &sync.Mutex{}
			processor := NewUpdateProcessor(map[string]Handler{"h": handler}, []string{"h"})

			if err := processor.Process(context.Background(), messageUpdate(1, time.Now())); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestUpdateProcessorRejectsNil(t *testing.T) {
	t.Parallel()

	if err := NewUpdateProcessor(nil, nil).Process(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil update")
	}
}

type fakeBotAPI struct {
	mu      sync.Mutex
	batches [][]api.Update
	offsets []int
	sent    []string
}

func (f *fakeBotAPI) GetUpdates(config api.UpdateConfig) ([]api.Update, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, config.Offset)
	if len(f.batches) > 0 {
		batch := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return batch, nil
	}
	f.mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	return nil, nil
}

func (f *fakeBotAPI) Send(c api.Chattable) (api.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(api.MessageConfig); ok {
		f.sent = append(f.sent, msg.Text)
	}
	return api.Message{}, nil
}

func TestServiceDeliversUpdates(t *testing.T) {
	t.Parallel()

	now := time.Now()
	fake := &fakeBotAPI{batches: [][]api.Update{
		{*messageUpdate(10, now), *messageUpdate(11, now)},
		{*messageUpdate(12, now)},
	}}

	var calls []string
	mu := &sync.Mutex{}
	processor := NewUpdateProcessor(map[string]Handler{
		"scoring": recordingHandler{name: "scoring", proceed: true, calls: &calls, mu: mu},
	}, []string{"scoring"})

	service := NewService(fake, processor)
	ctx := context.Background()
	if err := service.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(calls)
		mu.Unlock()
		if n == 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := service.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 3 {
		t.Fatalf("expected three handled updates, got %d", len(calls))
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.offsets) < 3 || fake.offsets[1] != 12 || fake.offsets[2] != 13 {
		t.Fatalf("unexpected poll offsets: %v", fake.offsets)
	}
}

func TestRateLimitedSenderHonorsContext(t *testing.T) {
	t.Parallel()

	fake := &fakeBotAPI{}
	sender := NewRateLimitedSender(fake, 1, 1)

	if _, err := sender.Send(context.Background(), api.NewMessage(1, "first")); err != nil {
		t.Fatalf("first send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := sender.Send(ctx, api.NewMessage(1, "second")); err == nil {
		t.Fatalf("expected the limiter to refuse a send before the next slot")
	}

	if len(fake.sent) != 1 || fake.sent[0] != "first" {
		t.Fatalf("unexpected sent messages: %v", fake.sent)
	}
}

func TestHelpers(t *testing.T) {
	t.Parallel()

	if got := GetUN(&api.User{FirstName: "Ann", LastName: "Lee"}); got != "Ann Lee" {
		t.Fatalf("unexpected name: %q", got)
	}
	if got := GetUN(&api.User{UserName: "ann"}); got != "ann" {
		t.Fatalf("unexpected username: %q", got)
	}
	if got := ExtractText(&api.Message{Text: "hi 🔥", Caption: "😀"}); got != "hi 🔥 😀" {
		t.Fatalf("unexpected text: %q", got)
	}
	if IsGroupChat(&api.Chat{ID: 1, Type: "private"}) || !IsGroupChat(&api.Chat{ID: -1, Type: "group"}) {
		t.Fatalf("unexpected group detection")
	}
}
