// Package admin is the contest control plane: opening and closing the
// contest, managing promo channels, resetting the ticket floor and reading
// participants. Every mutation goes through the settings store writer.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"contestbot/internal/metrics"
	"contestbot/internal/model"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrChannelNotFound = errors.New("promo channel not found")
)

// Settings is the writer side of the config store.
type Settings interface {
	Snapshot() model.Settings
	Now() time.Time
	LiveChannels(ctx context.Context) []model.PromoChannel
	Mutate(ctx context.Context, fn func(doc *model.Settings) error) (model.Settings, error)
	ResetFloor(ctx context.Context, next int64) error
}

type Participants interface {
	ListParticipants(ctx context.Context) ([]model.Participant, error)
	CountParticipants(ctx context.Context) (int, error)
}

// Status is a point-in-time view of the contest.
type Status struct {
	Open         bool                 `json:"open"`
	EndsAt       *time.Time           `json:"ends_at,omitempty"`
	NextTicket   int64                `json:"next_ticket"`
	Channels     []model.PromoChannel `json:"promo_channels"`
	Participants int                  `json:"participants"`
}

type ControlPlane struct {
	settings     Settings
	participants Participants
	log          *zerolog.Logger
}

func NewControlPlane(s Settings, p Participants, log *zerolog.Logger) *ControlPlane {
	return &ControlPlane{settings: s, participants: p, log: log}
}

// OpenContest opens the window for d, or indefinitely when d is nil.
func (c *ControlPlane) OpenContest(ctx context.Context, d *time.Duration) (model.ContestWindow, error) {
	if d != nil && *d <= 0 {
		return model.ContestWindow{}, fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
	}
	doc, err := c.settings.Mutate(ctx, func(doc *model.Settings) error {
		doc.Window = model.ContestWindow{Open: true}
		if d != nil {
			end := c.settings.Now().UTC().Add(*d)
			doc.Window.EndsAt = &end
		}
		return nil
	})
	metrics.RecordAdminMutation("open_contest", err)
	if err != nil {
		return model.ContestWindow{}, fmt.Errorf("open contest: %w", err)
	}

	ev := c.log.Info()
	if doc.Window.EndsAt != nil {
		ev = ev.Time("ends_at", *doc.Window.EndsAt)
	}
	ev.Msg("contest opened")
	return doc.Window, nil
}

func (c *ControlPlane) CloseContest(ctx context.Context) error {
	_, err := c.settings.Mutate(ctx, func(doc *model.Settings) error {
		doc.Window = model.ContestWindow{}
		return nil
	})
	metrics.RecordAdminMutation("close_contest", err)
	if err != nil {
		return fmt.Errorf("close contest: %w", err)
	}
	c.log.Info().Msg("contest closed")
	return nil
}

// AddPromoChannel adds a channel, or replaces the expiry of one already
// listed. A nil ttl never expires.
func (c *ControlPlane) AddPromoChannel(ctx context.Context, raw string, ttl *time.Duration) (model.PromoChannel, error) {
	channel, err := model.NormalizeChannel(raw)
	if err != nil {
		return model.PromoChannel{}, fmt.Errorf("%w: %q: %w", ErrInvalidInput, raw, err)
	}
	if ttl != nil && *ttl <= 0 {
		return model.PromoChannel{}, fmt.Errorf("%w: ttl must be positive", ErrInvalidInput)
	}

	added := model.PromoChannel{Channel: channel}
	if ttl != nil {
		exp := c.settings.Now().UTC().Add(*ttl)
		added.ExpiresAt = &exp
	}

	_, err = c.settings.Mutate(ctx, func(doc *model.Settings) error {
		for i, ch := range doc.PromoChannels {
			if ch.Channel == channel {
				doc.PromoChannels[i] = added
				return nil
			}
		}
		doc.PromoChannels = append(doc.PromoChannels, added)
		return nil
	})
	metrics.RecordAdminMutation("add_channel", err)
	if err != nil {
		return model.PromoChannel{}, fmt.Errorf("add promo channel: %w", err)
	}
	c.log.Info().Str("channel", channel).Msg("promo channel added")
	return added, nil
}

func (c *ControlPlane) RemovePromoChannel(ctx context.Context, raw string) error {
	channel, err := model.NormalizeChannel(raw)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidInput, raw, err)
	}
	_, err = c.settings.Mutate(ctx, func(doc *model.Settings) error {
		for i, ch := range doc.PromoChannels {
			if ch.Channel == channel {
				doc.PromoChannels = append(doc.PromoChannels[:i], doc.PromoChannels[i+1:]...)
				return nil
			}
		}
		return ErrChannelNotFound
	})
	if !errors.Is(err, ErrChannelNotFound) {
		metrics.RecordAdminMutation("remove_channel", err)
	}
	if err != nil {
		return fmt.Errorf("remove promo channel %s: %w", channel, err)
	}
	c.log.Info().Str("channel", channel).Msg("promo channel removed")
	return nil
}

// ResetTicketFloor makes value the next ticket issued. Already issued
// numbers are not checked.
func (c *ControlPlane) ResetTicketFloor(ctx context.Context, value int64) error {
	if value < 0 {
		return fmt.Errorf("%w: ticket floor must not be negative", ErrInvalidInput)
	}
	err := c.settings.ResetFloor(ctx, value)
	metrics.RecordAdminMutation("reset_ticket_floor", err)
	if err != nil {
		return fmt.Errorf("reset ticket floor: %w", err)
	}
	c.log.Info().Int64("next_ticket", value).Msg("ticket floor reset")
	return nil
}

func (c *ControlPlane) ListParticipants(ctx context.Context) ([]model.Participant, error) {
	list, err := c.participants.ListParticipants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return list, nil
}

// ListPromoChannels returns live channels only.
func (c *ControlPlane) ListPromoChannels(ctx context.Context) []model.PromoChannel {
	return c.settings.LiveChannels(ctx)
}

func (c *ControlPlane) Status(ctx context.Context) (Status, error) {
	channels := c.settings.LiveChannels(ctx)
	doc := c.settings.Snapshot()
	count, err := c.participants.CountParticipants(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("count participants: %w", err)
	}
	return Status{
		Open:         doc.Window.IsOpen(c.settings.Now()),
		EndsAt:       doc.Window.EndsAt,
		NextTicket:   doc.NextTicket,
		Channels:     channels,
		Participants: count,
	}, nil
}
