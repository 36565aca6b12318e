package telegram

import (
	"context"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"contestbot/internal/intake"
)

func TestEventFromMessage(t *testing.T) {
	from := &User{ID: 5, FirstName: "Ann", LastName: "Lee"}
	cases := []struct {
		name string
		msg  tgbotapi.Message
		kind intake.EventKind
	}{
		{"start", tgbotapi.Message{From: from, Chat: &tgbotapi.Chat{ID: 5}, Text: "/start"}, intake.EventStart},
		{"start with payload", tgbotapi.Message{From: from, Chat: &tgbotapi.Chat{ID: 5}, Text: "/start ref42"}, intake.EventStart},
		{"start addressed", tgbotapi.Message{From: from, Chat: &tgbotapi.Chat{ID: 5}, Text: "/start@contest_bot"}, intake.EventStart},
		{"text", tgbotapi.Message{From: from, Chat: &tgbotapi.Chat{ID: 5}, Text: "Alpha"}, intake.EventText},
		{"sticker", tgbotapi.Message{From: from, Chat: &tgbotapi.Chat{ID: 5}}, intake.EventOther},
	}
	for _, tc := range cases {
		msg := tc.msg
		ev, cb, ok := EventFromUpdate(Update{Message: &msg})
		if !ok || cb != "" {
			t.Fatalf("%s: ok=%v cb=%q", tc.name, ok, cb)
		}
		if ev.Kind != tc.kind || ev.ParticipantID != 5 || ev.ChatID != 5 || ev.DisplayName != "Ann Lee" {
			t.Errorf("%s: event = %+v", tc.name, ev)
		}
	}
}

func TestEventFromPhotoPicksLargest(t *testing.T) {
	msg := &tgbotapi.Message{
		From: &User{ID: 5, UserName: "ann"},
		Chat: &tgbotapi.Chat{ID: 5},
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", Width: 90},
			{FileID: "medium", Width: 320},
			{FileID: "large", Width: 1280},
		},
	}
	ev, _, ok := EventFromUpdate(Update{Message: msg})
	if !ok || ev.Kind != intake.EventPhoto || ev.PhotoRef != "large" || ev.DisplayName != "@ann" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestEventFromCallback(t *testing.T) {
	cases := map[string]intake.EventKind{
		intake.CallbackEntry:   intake.EventEntryRequested,
		intake.CallbackRecheck: intake.EventRecheckRequested,
		intake.CallbackConfirm: intake.EventConfirm,
		intake.CallbackEdit:    intake.EventEdit,
		"unknown":              intake.EventOther,
	}
	for data, want := range cases {
		u := Update{CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb",
			From:    &User{ID: 9, UserName: "bob"},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 99}},
			Data:    data,
		}}
		ev, cb, ok := EventFromUpdate(u)
		if !ok || cb != "cb" {
			t.Fatalf("%s: ok=%v cb=%q", data, ok, cb)
		}
		if ev.Kind != want || ev.ParticipantID != 9 || ev.ChatID != 99 {
			t.Errorf("%s: event = %+v", data, ev)
		}
	}
}

func TestEventFromUpdateSkips(t *testing.T) {
	skipped := []Update{
		{},
		{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Text: "no sender"}},
		{Message: &tgbotapi.Message{From: &User{ID: 2, IsBot: true}, Chat: &tgbotapi.Chat{ID: 2}, Text: "hi"}},
		{CallbackQuery: &tgbotapi.CallbackQuery{ID: "x", From: &User{ID: 3, IsBot: true}}},
		{CallbackQuery: &tgbotapi.CallbackQuery{ID: "y"}},
	}
	for i, u := range skipped {
		if _, _, ok := EventFromUpdate(u); ok {
			t.Errorf("update %d not skipped", i)
		}
	}
}

type sinkRecorder struct {
	mu     sync.Mutex
	events []intake.Event
}

func (s *sinkRecorder) Dispatch(ev intake.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return true
}

func TestHandleUpdateAnswersCallbacks(t *testing.T) {
	c, api := newTestClient(t, nil)
	sink := &sinkRecorder{}
	log := zerolog.Nop()

	HandleUpdate(context.Background(), c, sink, Update{UpdateID: 1, CallbackQuery: &tgbotapi.CallbackQuery{
		ID: "cb-7", From: &User{ID: 4}, Data: intake.CallbackConfirm,
	}}, &log)

	if len(sink.events) != 1 || sink.events[0].Kind != intake.EventConfirm {
		t.Fatalf("dispatched = %+v", sink.events)
	}
	if got := api.lastCall(t); got.Method != "answerCallbackQuery" || got.Form.Get("callback_query_id") != "cb-7" {
		t.Fatalf("call = %+v", got)
	}
}

func TestPollerDeliversUpdatesInOrder(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"getUpdates": `{"ok":true,"result":[` +
			`{"update_id":1,"message":{"message_id":1,"from":{"id":5,"first_name":"A"},"chat":{"id":5},"text":"/start"}},` +
			`{"update_id":2,"message":{"message_id":2,"from":{"id":5,"first_name":"A"},"chat":{"id":5},"text":"Alpha"}}]}`,
	})
	sink := &sinkRecorder{}
	log := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewPoller(c, cancelAfter(sink, 2, cancel), 0, &log).Run(ctx) }()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) < 2 || sink.events[0].Kind != intake.EventStart || sink.events[1].Text != "Alpha" {
		t.Fatalf("events = %+v", sink.events)
	}
}

// cancelAfter cancels once n events have been dispatched.
func cancelAfter(s *sinkRecorder, n int, cancel context.CancelFunc) Sink {
	return sinkFunc(func(ev intake.Event) bool {
		s.Dispatch(ev)
		s.mu.Lock()
		reached := len(s.events) >= n
		s.mu.Unlock()
		if reached {
			cancel()
		}
		return true
	})
}

type sinkFunc func(intake.Event) bool

func (f sinkFunc) Dispatch(ev intake.Event) bool { return f(ev) }
