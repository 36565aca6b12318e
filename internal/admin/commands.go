package admin

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"contestbot/internal/intake"
	"contestbot/internal/model"
)

// Reply keyboard labels of the admin panel.
const (
	ButtonParticipants = "📋 Ishtirokchilar ro‘yxati"
	ButtonContest      = "⏳ Konkursni boshqarish"
	ButtonTicketFloor  = "🔢 Sozlash (raqam kiritish)"
	ButtonChannels     = "📢 Reklamalarni boshqarish"
)

const (
	textPanel        = "👑 Admin panel"
	textAccepted     = "✅ Qabul qilindi"
	textConfirmed    = "✅ Tasdiqlandi"
	textAskFloor     = "🔢 Yangi boshlang‘ich raqamni kiriting:"
	textDigitsOnly   = "❌ Faqat raqam"
	textAskDuration  = "⏳ Necha muddat? (masalan: 3 kun, 5 soat)"
	textBadDuration  = "❌ Masalan: 3 kun"
	textOpened       = "✅ Konkurs boshlandi"
	textClosed       = "⛔ Konkurs yopildi"
	textAskChannel   = "➕ Yangi kanal linkini yuboring"
	textBadChannel   = "❌ Kanal noto‘g‘ri. Masalan: @kanal yoki https://t.me/kanal"
	textNoChannel    = "❌ Bunday kanal ro‘yxatda yo‘q"
	textRemoved      = "🗑 Kanal o‘chirildi"
	textFailed       = "⚠️ Saqlashda xatolik yuz berdi, qayta urinib ko‘ring."
	textIndefinitely = "cheksiz"
	textHelp         = "Buyruqlar:\n" +
		"/list - ishtirokchilar\n" +
		"/contest - konkurs holati\n" +
		"/open 3 kun | /open cheksiz - konkursni ochish\n" +
		"/close - konkursni yopish\n" +
		"/setticket 100 - keyingi raqam\n" +
		"/channels - reklama kanallari\n" +
		"/addchannel @kanal [3 kun] - kanal qo‘shish\n" +
		"/removechannel @kanal - kanalni o‘chirish"
)

var digitsRe = regexp.MustCompile(`^[0-9]+$`)

type pending int

const (
	pendingNone pending = iota
	pendingDuration
	pendingTicketFloor
	pendingChannel
)

// Sender delivers replies to the admin chat.
type Sender interface {
	Send(ctx context.Context, msg model.OutboundMessage) error
}

// Commands drives the control plane from the admin's chat: the reply
// keyboard buttons, slash commands and the follow-up input some of them
// ask for.
type Commands struct {
	cp   *ControlPlane
	out  Sender
	log  *zerolog.Logger
	mu   sync.Mutex
	wait map[int64]pending
}

func NewCommands(cp *ControlPlane, out Sender, log *zerolog.Logger) *Commands {
	return &Commands{cp: cp, out: out, log: log, wait: make(map[int64]pending)}
}

// Handle processes one admin event. The returned state is always Idle;
// admins have no intake session.
func (c *Commands) Handle(ctx context.Context, ev intake.Event) (intake.State, error) {
	if ev.Kind == intake.EventStart {
		c.setPending(ev.ParticipantID, pendingNone)
		c.reply(ctx, ev, textPanel, panelKeyboard())
		return intake.Idle, nil
	}
	if ev.Kind != intake.EventText {
		return intake.Idle, nil
	}

	text := strings.TrimSpace(ev.Text)
	if cmd, args, ok := splitCommand(text); ok {
		c.setPending(ev.ParticipantID, pendingNone)
		return intake.Idle, c.command(ctx, ev, cmd, args)
	}

	switch text {
	case ButtonParticipants:
		c.setPending(ev.ParticipantID, pendingNone)
		return intake.Idle, c.listParticipants(ctx, ev)
	case ButtonContest:
		c.setPending(ev.ParticipantID, pendingNone)
		return intake.Idle, c.contest(ctx, ev)
	case ButtonTicketFloor:
		c.setPending(ev.ParticipantID, pendingTicketFloor)
		c.reply(ctx, ev, textAskFloor, nil)
		return intake.Idle, nil
	case ButtonChannels:
		c.setPending(ev.ParticipantID, pendingChannel)
		c.reply(ctx, ev, c.channelsText(ctx)+"\n"+textAskChannel, nil)
		return intake.Idle, nil
	}

	switch c.getPending(ev.ParticipantID) {
	case pendingDuration:
		return intake.Idle, c.openContest(ctx, ev, text)
	case pendingTicketFloor:
		return intake.Idle, c.resetFloor(ctx, ev, text)
	case pendingChannel:
		return intake.Idle, c.addChannel(ctx, ev, text)
	}
	c.reply(ctx, ev, textHelp, panelKeyboard())
	return intake.Idle, nil
}

func (c *Commands) command(ctx context.Context, ev intake.Event, cmd, args string) error {
	switch cmd {
	case "list":
		return c.listParticipants(ctx, ev)
	case "contest":
		return c.contest(ctx, ev)
	case "open":
		if args == "" {
			c.setPending(ev.ParticipantID, pendingDuration)
			c.reply(ctx, ev, textAskDuration, nil)
			return nil
		}
		return c.openContest(ctx, ev, args)
	case "close":
		if err := c.cp.CloseContest(ctx); err != nil {
			c.reply(ctx, ev, textFailed, nil)
			return err
		}
		c.reply(ctx, ev, textClosed, panelKeyboard())
		return nil
	case "setticket":
		if args == "" {
			c.setPending(ev.ParticipantID, pendingTicketFloor)
			c.reply(ctx, ev, textAskFloor, nil)
			return nil
		}
		return c.resetFloor(ctx, ev, args)
	case "channels":
		c.reply(ctx, ev, c.channelsText(ctx), nil)
		return nil
	case "addchannel":
		if args == "" {
			c.setPending(ev.ParticipantID, pendingChannel)
			c.reply(ctx, ev, textAskChannel, nil)
			return nil
		}
		return c.addChannel(ctx, ev, args)
	case "removechannel":
		return c.removeChannel(ctx, ev, args)
	default:
		c.reply(ctx, ev, textHelp, panelKeyboard())
		return nil
	}
}

func (c *Commands) listParticipants(ctx context.Context, ev intake.Event) error {
	list, err := c.cp.ListParticipants(ctx)
	if err != nil {
		c.reply(ctx, ev, textFailed, nil)
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Jami: %d ta\n\n", len(list))
	for i, p := range list {
		fmt.Fprintf(&b, "%d. %s — %s (#%d)\n", i+1, p.DisplayName, p.TeamName, p.TicketNumber)
	}
	c.reply(ctx, ev, b.String(), nil)
	return nil
}

func (c *Commands) contest(ctx context.Context, ev intake.Event) error {
	st, err := c.cp.Status(ctx)
	if err != nil {
		c.reply(ctx, ev, textFailed, nil)
		return err
	}
	if !st.Open {
		c.setPending(ev.ParticipantID, pendingDuration)
		c.reply(ctx, ev, textAskDuration, nil)
		return nil
	}
	end := textIndefinitely
	if st.EndsAt != nil {
		end = st.EndsAt.UTC().Format("2006-01-02 15:04 UTC")
	}
	c.reply(ctx, ev, fmt.Sprintf("📢 Konkurs davom etmoqda\n⏳ Tugash: %s\n👥 Ishtirokchilar: %d\n🔢 Keyingi raqam: %d",
		end, st.Participants, st.NextTicket), nil)
	return nil
}

func (c *Commands) openContest(ctx context.Context, ev intake.Event, text string) error {
	d, err := ParseDuration(text)
	if err != nil {
		c.reply(ctx, ev, textBadDuration, nil)
		return nil
	}
	if _, err := c.cp.OpenContest(ctx, d); err != nil {
		c.reply(ctx, ev, textFailed, nil)
		return err
	}
	c.setPending(ev.ParticipantID, pendingNone)
	c.reply(ctx, ev, textOpened, panelKeyboard())
	return nil
}

func (c *Commands) resetFloor(ctx context.Context, ev intake.Event, text string) error {
	if !digitsRe.MatchString(text) {
		c.reply(ctx, ev, textDigitsOnly, nil)
		return nil
	}
	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		c.reply(ctx, ev, textDigitsOnly, nil)
		return nil
	}
	if err := c.cp.ResetTicketFloor(ctx, value); err != nil {
		c.reply(ctx, ev, textFailed, nil)
		return err
	}
	c.setPending(ev.ParticipantID, pendingNone)
	c.reply(ctx, ev, textAccepted, panelKeyboard())
	return nil
}

// addChannel reads "<channel> [duration]".
func (c *Commands) addChannel(ctx context.Context, ev intake.Event, text string) error {
	channel, rest, _ := strings.Cut(strings.TrimSpace(text), " ")
	var ttl *time.Duration
	if rest = strings.TrimSpace(rest); rest != "" {
		d, err := ParseDuration(rest)
		if err != nil {
			c.reply(ctx, ev, textBadDuration, nil)
			return nil
		}
		ttl = d
	}

	if _, err := c.cp.AddPromoChannel(ctx, channel, ttl); err != nil {
		if errors.Is(err, ErrInvalidInput) {
			c.reply(ctx, ev, textBadChannel, nil)
			return nil
		}
		c.reply(ctx, ev, textFailed, nil)
		return err
	}
	c.setPending(ev.ParticipantID, pendingNone)
	c.reply(ctx, ev, textConfirmed, panelKeyboard())
	return nil
}

func (c *Commands) removeChannel(ctx context.Context, ev intake.Event, text string) error {
	err := c.cp.RemovePromoChannel(ctx, text)
	switch {
	case err == nil:
		c.reply(ctx, ev, textRemoved, nil)
		return nil
	case errors.Is(err, ErrInvalidInput):
		c.reply(ctx, ev, textBadChannel, nil)
		return nil
	case errors.Is(err, ErrChannelNotFound):
		c.reply(ctx, ev, textNoChannel, nil)
		return nil
	default:
		c.reply(ctx, ev, textFailed, nil)
		return err
	}
}

func (c *Commands) channelsText(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("📢 Reklama kanallari:\n\n")
	for _, ch := range c.cp.ListPromoChannels(ctx) {
		if ch.ExpiresAt != nil {
			fmt.Fprintf(&b, "• %s (%s gacha)\n", ch.Channel, ch.ExpiresAt.UTC().Format("2006-01-02 15:04"))
			continue
		}
		fmt.Fprintf(&b, "• %s\n", ch.Channel)
	}
	return b.String()
}

func (c *Commands) reply(ctx context.Context, ev intake.Event, text string, kb *model.Keyboard) {
	chat := ev.ChatID
	if chat == 0 {
		chat = ev.ParticipantID
	}
	_ = c.out.Send(ctx, model.OutboundMessage{ChatID: chat, Text: text, Keyboard: kb})
}

func (c *Commands) setPending(adminID int64, p pending) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p == pendingNone {
		delete(c.wait, adminID)
		return
	}
	c.wait[adminID] = p
}

func (c *Commands) getPending(adminID int64) pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wait[adminID]
}

func panelKeyboard() *model.Keyboard {
	return &model.Keyboard{Reply: [][]string{
		{ButtonParticipants},
		{ButtonContest},
		{ButtonTicketFloor},
		{ButtonChannels},
	}}
}

// splitCommand parses "/name args" and "/name@botname args".
func splitCommand(text string) (string, string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, args, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(args), true
}
