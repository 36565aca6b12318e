package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"contestbot/internal/metrics"
	"contestbot/internal/model"
)

const (
	RecipientParticipant = "participant"
	RecipientOperator    = "operator"
	RecipientAdmin       = "admin"
)

// Deliverer sends one message through the messaging platform.
type Deliverer interface {
	Deliver(ctx context.Context, msg model.OutboundMessage) error
}

type Options struct {
	OperatorChatID int64
	AdminChatID    int64
	// Footer is appended to every acknowledgment caption.
	Footer string
}

type Notifier struct {
	deliverer Deliverer
	opts      Options
	log       *zerolog.Logger
}

func New(d Deliverer, opts Options, log *zerolog.Logger) *Notifier {
	return &Notifier{deliverer: d, opts: opts, log: log}
}

// Send delivers a conversational reply. Failures are logged and returned;
// callers do not roll anything back on them.
func (n *Notifier) Send(ctx context.Context, msg model.OutboundMessage) error {
	return n.deliver(ctx, RecipientParticipant, msg)
}

// Caption renders the accepted-entry text shared by operator and participant.
func Caption(p model.Participant, footer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏆 %d_Ishtirokchimiz %s\n", p.TicketNumber, p.DisplayName)
	fmt.Fprintf(&b, "📌 Jamoa nomi : %s", p.TeamName)
	if footer = strings.TrimSpace(footer); footer != "" {
		b.WriteString("\n\n")
		b.WriteString(footer)
	}
	return b.String()
}

// Acknowledge announces a committed entry to the operator and then to the
// participant. It must only be called after the entry is durable. Delivery
// failures are reported to the admin chat where that is a different chat,
// and never undo the entry.
func (n *Notifier) Acknowledge(ctx context.Context, p model.Participant) error {
	caption := Caption(p, n.opts.Footer)

	opErr := n.deliver(ctx, RecipientOperator, model.OutboundMessage{
		ChatID:   n.opts.OperatorChatID,
		Text:     caption,
		PhotoRef: p.PhotoRef,
	})
	if opErr != nil {
		n.reportFailure(ctx, n.opts.OperatorChatID, p, opErr)
	}

	partErr := n.deliver(ctx, RecipientParticipant, model.OutboundMessage{
		ChatID:   p.ParticipantID,
		Text:     "✅ Qabul qilindi\n\n" + caption,
		PhotoRef: p.PhotoRef,
	})
	if partErr != nil {
		n.reportFailure(ctx, p.ParticipantID, p, partErr)
	}

	return errors.Join(opErr, partErr)
}

func (n *Notifier) reportFailure(ctx context.Context, failedChat int64, p model.Participant, cause error) {
	if n.opts.AdminChatID == 0 || n.opts.AdminChatID == failedChat {
		return
	}
	text := fmt.Sprintf("⚠️ %d-raqamli ishtirok (%s) tasdig‘i chat %d ga yetkazilmadi: %v",
		p.TicketNumber, p.DisplayName, failedChat, cause)
	_ = n.deliver(ctx, RecipientAdmin, model.OutboundMessage{ChatID: n.opts.AdminChatID, Text: text})
}

func (n *Notifier) deliver(ctx context.Context, recipient string, msg model.OutboundMessage) error {
	err := n.deliverer.Deliver(ctx, msg)
	metrics.RecordDelivery(recipient, err)
	if err != nil {
		n.log.Warn().Err(err).
			Str("recipient", recipient).
			Int64("chat_id", msg.ChatID).
			Msg("delivery failed")
		return fmt.Errorf("deliver to %s %d: %w", recipient, msg.ChatID, err)
	}
	return nil
}
