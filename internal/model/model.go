package model

import "time"

// Participant is an accepted contest entry. Exactly zero or one per
// ParticipantID; rows are never updated once written.
type Participant struct {
	ParticipantID int64     `db:"participant_id" json:"participant_id"`
	DisplayName   string    `db:"display_name" json:"display_name"`
	TeamName      string    `db:"team_name" json:"team_name"`
	PhotoRef      string    `db:"photo_ref" json:"photo_ref"`
	TicketNumber  int64     `db:"ticket_number" json:"ticket_number"`
	CommittedAt   time.Time `db:"committed_at" json:"committed_at"`
}

// PromoChannel is a channel participants must join before entering.
type PromoChannel struct {
	Channel   string     `db:"channel" json:"channel"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}

// Expired reports whether the channel has reached its expiry at now.
func (c PromoChannel) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// ContestWindow is open iff Open is set and EndsAt, when present, is in the future.
type ContestWindow struct {
	Open   bool       `json:"open"`
	EndsAt *time.Time `json:"ends_at,omitempty"`
}

func (w ContestWindow) IsOpen(now time.Time) bool {
	if !w.Open {
		return false
	}
	return w.EndsAt == nil || now.Before(*w.EndsAt)
}

// Settings is the admin-mutable configuration document.
type Settings struct {
	Window        ContestWindow  `json:"contest_open_or_end"`
	NextTicket    int64          `json:"next_ticket"`
	PromoChannels []PromoChannel `json:"promo_channels"`
}

// DefaultSettings matches a fresh deployment: contest closed, tickets start at 1.
func DefaultSettings() Settings {
	return Settings{NextTicket: 1}
}

// Clone returns a deep copy so a snapshot can be mutated without touching
// the published one.
func (s Settings) Clone() Settings {
	out := s
	if s.Window.EndsAt != nil {
		t := *s.Window.EndsAt
		out.Window.EndsAt = &t
	}
	out.PromoChannels = make([]PromoChannel, 0, len(s.PromoChannels))
	for _, ch := range s.PromoChannels {
		if ch.ExpiresAt != nil {
			t := *ch.ExpiresAt
			ch.ExpiresAt = &t
		}
		out.PromoChannels = append(out.PromoChannels, ch)
	}
	return out
}

// LiveChannels returns the channels not yet expired at now, in stored order.
func (s Settings) LiveChannels(now time.Time) []PromoChannel {
	live := make([]PromoChannel, 0, len(s.PromoChannels))
	for _, ch := range s.PromoChannels {
		if !ch.Expired(now) {
			live = append(live, ch)
		}
	}
	return live
}

// HasExpired reports whether any stored channel is expired at now.
func (s Settings) HasExpired(now time.Time) bool {
	for _, ch := range s.PromoChannels {
		if ch.Expired(now) {
			return true
		}
	}
	return false
}
