package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"contestbot/internal/intake"
)

// EventFromUpdate maps a Bot API update onto an intake event. The second
// result is the callback query id to answer, if any. Updates without a
// sender, or from bots, are skipped.
func EventFromUpdate(u Update) (intake.Event, string, bool) {
	switch {
	case u.CallbackQuery != nil:
		cb := u.CallbackQuery
		if cb.From == nil || cb.From.IsBot {
			return intake.Event{}, "", false
		}
		ev := intake.Event{
			Kind:          callbackKind(cb.Data),
			ParticipantID: cb.From.ID,
			ChatID:        cb.From.ID,
			DisplayName:   DisplayName(*cb.From),
		}
		if cb.Message != nil && cb.Message.Chat != nil {
			ev.ChatID = cb.Message.Chat.ID
		}
		return ev, cb.ID, true

	case u.Message != nil:
		msg := u.Message
		if msg.From == nil || msg.From.IsBot {
			return intake.Event{}, "", false
		}
		ev := intake.Event{
			ParticipantID: msg.From.ID,
			ChatID:        msg.From.ID,
			DisplayName:   DisplayName(*msg.From),
		}
		if msg.Chat != nil {
			ev.ChatID = msg.Chat.ID
		}
		switch {
		case len(msg.Photo) > 0:
			ev.Kind = intake.EventPhoto
			ev.PhotoRef = largestPhoto(msg.Photo)
		case isStartCommand(msg.Text):
			ev.Kind = intake.EventStart
		case msg.Text != "":
			ev.Kind = intake.EventText
			ev.Text = msg.Text
		default:
			ev.Kind = intake.EventOther
		}
		return ev, "", true
	}
	return intake.Event{}, "", false
}

// DisplayName is "@username" when the user has one, the full name otherwise.
func DisplayName(u User) string {
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func callbackKind(data string) intake.EventKind {
	switch data {
	case intake.CallbackEntry:
		return intake.EventEntryRequested
	case intake.CallbackRecheck:
		return intake.EventRecheckRequested
	case intake.CallbackConfirm:
		return intake.EventConfirm
	case intake.CallbackEdit:
		return intake.EventEdit
	default:
		return intake.EventOther
	}
}

// largestPhoto picks the last size; the Bot API lists sizes ascending.
func largestPhoto(sizes []tgbotapi.PhotoSize) string {
	return sizes[len(sizes)-1].FileID
}

func isStartCommand(text string) bool {
	head, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	head, _, _ = strings.Cut(head, "@")
	return head == "/start"
}
