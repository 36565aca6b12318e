package rabbit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"contestbot/internal/dto"
	"contestbot/internal/model"
)

func TestEncodeEntry(t *testing.T) {
	committed := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	p := model.Participant{ParticipantID: 42, DisplayName: "@fan", TeamName: "Alpha", PhotoRef: "photo-1", TicketNumber: 7, CommittedAt: committed}

	first, err := encodeEntry(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	second, _ := encodeEntry(p)

	var a, b dto.EntryAcceptedMessage
	if err := json.Unmarshal(first, &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	_ = json.Unmarshal(second, &b)

	if a.ParticipantID != 42 || a.TicketNumber != 7 || a.TeamName != "Alpha" || !a.CommittedAt.Equal(committed) {
		t.Fatalf("message = %+v", a)
	}
	if _, err := uuid.Parse(a.EventID); err != nil {
		t.Fatalf("event id %q: %v", a.EventID, err)
	}
	if a.EventID == b.EventID {
		t.Fatal("event ids repeat across messages")
	}
}
