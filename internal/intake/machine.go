package intake

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"contestbot/internal/metrics"
	"contestbot/internal/model"
	"contestbot/internal/notifier"
	"contestbot/internal/repo"
	"contestbot/internal/settings"
)

// Config is the read side of the settings store plus the coupled ticket commit.
type Config interface {
	ContestOpen() bool
	Now() time.Time
	LiveChannels(ctx context.Context) []model.PromoChannel
	CommitNext(ctx context.Context, commit settings.CommitFunc) (int64, bool, error)
}

type SubmissionStore interface {
	HasParticipant(ctx context.Context, participantID int64) (bool, error)
	CheckAndInsert(ctx context.Context, p *model.Participant, s model.Settings) (repo.InsertResult, error)
}

type Gate interface {
	Check(ctx context.Context, participantID int64, channels []model.PromoChannel) []model.PromoChannel
}

// EntryPublisher announces accepted entries to downstream consumers.
type EntryPublisher interface {
	PublishEntry(ctx context.Context, p model.Participant) error
}

type Options struct {
	ContestTitle string
	// Publisher is optional.
	Publisher EntryPublisher
}

type Machine struct {
	mu       sync.Mutex
	sessions map[int64]*Session

	config    Config
	store     SubmissionStore
	gate      Gate
	notify    *notifier.Notifier
	publisher EntryPublisher
	title     string
	table     map[transitionKey]handler
	log       *zerolog.Logger
}

func NewMachine(cfg Config, store SubmissionStore, g Gate, n *notifier.Notifier, opts Options, log *zerolog.Logger) *Machine {
	return &Machine{
		sessions:  make(map[int64]*Session),
		config:    cfg,
		store:     store,
		gate:      g,
		notify:    n,
		publisher: opts.Publisher,
		title:     opts.ContestTitle,
		table:     newTable(),
		log:       log,
	}
}

// Handle applies ev to the participant's session and returns the state it
// ends in. Calls for the same participant must not overlap; Dispatcher
// provides that ordering.
func (m *Machine) Handle(ctx context.Context, ev Event) (State, error) {
	s := m.load(ev.ParticipantID)
	from := s.State

	h, ok := m.table[transitionKey{from, ev.Kind}]
	if !ok {
		h = (*Machine).reprompt
	}
	next, err := h(m, ctx, s, ev)
	m.save(s, next)

	m.log.Debug().
		Int64("participant_id", ev.ParticipantID).
		Str("event", ev.Kind.String()).
		Str("from", from.String()).
		Str("to", next.String()).
		Msg("intake transition")
	return next, err
}

// State reports the current state of a participant's session.
func (m *Machine) State(participantID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[participantID]; ok {
		return s.State
	}
	return Idle
}

// load returns a private copy of the participant's session; handlers edit
// the copy and save publishes it.
func (m *Machine) load(participantID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[participantID]; ok {
		c := *s
		return &c
	}
	return &Session{ParticipantID: participantID, State: Idle}
}

// save records next on s and keeps sessions that are mid-flow, dropping
// idle or finished ones.
func (m *Machine) save(s *Session, next State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.State = next
	if next == Idle || next.Terminal() {
		delete(m.sessions, s.ParticipantID)
		return
	}
	m.sessions[s.ParticipantID] = s
}

func (m *Machine) start(ctx context.Context, s *Session, ev Event) (State, error) {
	s.DraftPhoto, s.DraftTeamName = "", ""

	if !m.config.ContestOpen() {
		m.reply(ctx, ev, greeting(m.title, textClosed), nil)
		return Idle, nil
	}
	exists, err := m.store.HasParticipant(ctx, ev.ParticipantID)
	if err != nil {
		m.reply(ctx, ev, textTryLater, nil)
		return Idle, fmt.Errorf("check participant: %w", err)
	}
	if exists {
		m.reply(ctx, ev, greeting(m.title, textAlready), nil)
		return Idle, nil
	}
	body := textWelcome + promoFooter(m.config.LiveChannels(ctx))
	m.reply(ctx, ev, greeting(m.title, body), startKeyboard())
	return Idle, nil
}

func (m *Machine) enter(ctx context.Context, s *Session, ev Event) (State, error) {
	if !m.config.ContestOpen() {
		m.reply(ctx, ev, textClosed, nil)
		return Idle, nil
	}
	exists, err := m.store.HasParticipant(ctx, ev.ParticipantID)
	if err != nil {
		m.reply(ctx, ev, textTryLater, nil)
		return Idle, fmt.Errorf("check participant: %w", err)
	}
	if exists {
		m.reply(ctx, ev, textAlready, nil)
		return Idle, nil
	}

	unresolved := m.gate.Check(ctx, ev.ParticipantID, m.config.LiveChannels(ctx))
	if len(unresolved) > 0 {
		recheck := ev.Kind == EventRecheckRequested
		m.reply(ctx, ev, subscribeText(recheck, unresolved), subscribeKeyboard(unresolved))
		return Idle, nil
	}

	m.reply(ctx, ev, textAskPhoto, nil)
	return AwaitingPhoto, nil
}

func (m *Machine) takePhoto(ctx context.Context, s *Session, ev Event) (State, error) {
	if ev.PhotoRef == "" {
		return m.reprompt(ctx, s, ev)
	}
	s.DraftPhoto = ev.PhotoRef
	m.reply(ctx, ev, textAskTeam, nil)
	return AwaitingTeamName, nil
}

func (m *Machine) takeTeamName(ctx context.Context, s *Session, ev Event) (State, error) {
	team, err := ValidateTeamName(ctx, ev.Text)
	switch {
	case errors.Is(err, ErrEmptyTeamName):
		m.reply(ctx, ev, textEmptyTeam, nil)
		return AwaitingTeamName, nil
	case err != nil:
		m.reply(ctx, ev, textLongTeam, nil)
		return AwaitingTeamName, nil
	}

	s.DraftTeamName = team
	_ = m.notify.Send(ctx, model.OutboundMessage{
		ChatID:   chatOf(ev),
		PhotoRef: s.DraftPhoto,
		Text:     previewCaption(displayName(ev), team),
		Keyboard: confirmKeyboard(),
	})
	return AwaitingConfirmation, nil
}

func (m *Machine) edit(ctx context.Context, s *Session, ev Event) (State, error) {
	s.DraftTeamName = ""
	m.reply(ctx, ev, textAskNewTeam, nil)
	return AwaitingTeamName, nil
}

// confirm commits the entry and its ticket as one unit, then acknowledges.
// Nothing is sent that names a ticket before the commit returned.
func (m *Machine) confirm(ctx context.Context, s *Session, ev Event) (State, error) {
	entry := model.Participant{
		ParticipantID: ev.ParticipantID,
		DisplayName:   displayName(ev),
		TeamName:      s.DraftTeamName,
		PhotoRef:      s.DraftPhoto,
		CommittedAt:   m.config.Now().UTC(),
	}

	ticket, inserted, err := m.config.CommitNext(ctx, func(ctx context.Context, ticket int64, after model.Settings) (bool, error) {
		rec := entry
		rec.TicketNumber = ticket
		res, err := m.store.CheckAndInsert(ctx, &rec, after)
		if err != nil {
			return false, err
		}
		return res == repo.Inserted, nil
	})
	if err != nil {
		metrics.RecordEntry(metrics.OutcomeFailed)
		m.reply(ctx, ev, textRetryConfirm, confirmKeyboard())
		return AwaitingConfirmation, fmt.Errorf("commit entry: %w", err)
	}
	if !inserted {
		metrics.RecordEntry(metrics.OutcomeDuplicate)
		m.log.Info().Int64("participant_id", ev.ParticipantID).Msg("duplicate submission rejected at confirm")
		m.reply(ctx, ev, textDuplicate, nil)
		return Cancelled, nil
	}

	entry.TicketNumber = ticket
	metrics.RecordEntry(metrics.OutcomeAccepted)
	m.log.Info().
		Int64("participant_id", entry.ParticipantID).
		Int64("ticket", ticket).
		Str("team", entry.TeamName).
		Msg("entry accepted")

	if err := m.notify.Acknowledge(ctx, entry); err != nil {
		m.log.Warn().Err(err).Int64("ticket", ticket).Msg("entry committed but acknowledgment incomplete")
	}
	if m.publisher != nil {
		if err := m.publisher.PublishEntry(ctx, entry); err != nil {
			m.log.Warn().Err(err).Int64("ticket", ticket).Msg("failed to publish accepted entry")
		}
	}
	return Done, nil
}

func (m *Machine) reprompt(ctx context.Context, s *Session, ev Event) (State, error) {
	switch s.State {
	case AwaitingPhoto:
		m.reply(ctx, ev, textNeedPhoto, nil)
	case AwaitingTeamName:
		m.reply(ctx, ev, textAskTeam, nil)
	case AwaitingConfirmation:
		m.reply(ctx, ev, textNeedDecision, confirmKeyboard())
	default:
		m.reply(ctx, ev, textPressStart, nil)
	}
	return s.State, nil
}

func (m *Machine) reply(ctx context.Context, ev Event, text string, kb *model.Keyboard) {
	_ = m.notify.Send(ctx, model.OutboundMessage{ChatID: chatOf(ev), Text: text, Keyboard: kb})
}

func chatOf(ev Event) int64 {
	if ev.ChatID != 0 {
		return ev.ChatID
	}
	return ev.ParticipantID
}

func displayName(ev Event) string {
	if ev.DisplayName != "" {
		return ev.DisplayName
	}
	return strconv.FormatInt(ev.ParticipantID, 10)
}
