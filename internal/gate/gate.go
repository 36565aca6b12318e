// Package gate decides whether a participant has joined every live promo
// channel. A failed or timed-out membership query counts as not joined.
package gate

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"contestbot/internal/metrics"
	"contestbot/internal/model"
)

type Membership int

const (
	Unknown Membership = iota
	Member
	NotMember
)

func (m Membership) String() string {
	switch m {
	case Member:
		return "member"
	case NotMember:
		return "not_member"
	default:
		return "unknown"
	}
}

// MembershipQuerier asks the messaging platform about one channel.
type MembershipQuerier interface {
	QueryMembership(ctx context.Context, channel string, participantID int64) (Membership, error)
}

type Options struct {
	// Concurrency bounds parallel queries for one check. Zero means 4.
	Concurrency int
	// Timeout bounds each query. Zero means 5s.
	Timeout time.Duration
}

type Gate struct {
	querier     MembershipQuerier
	concurrency int
	timeout     time.Duration
	log         *zerolog.Logger
}

func New(q MembershipQuerier, opts Options, log *zerolog.Logger) *Gate {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Gate{querier: q, concurrency: opts.Concurrency, timeout: opts.Timeout, log: log}
}

// Check returns the channels the participant has not joined, in input
// order. An empty result means the gate passes. With no channels no query
// is issued.
func (g *Gate) Check(ctx context.Context, participantID int64, channels []model.PromoChannel) []model.PromoChannel {
	if len(channels) == 0 {
		return nil
	}

	joined := make([]bool, len(channels))
	var eg errgroup.Group
	eg.SetLimit(g.concurrency)
	for i, ch := range channels {
		eg.Go(func() error {
			joined[i] = g.joined(ctx, ch.Channel, participantID)
			return nil
		})
	}
	_ = eg.Wait()

	var unresolved []model.PromoChannel
	for i, ch := range channels {
		if !joined[i] {
			unresolved = append(unresolved, ch)
		}
	}
	return unresolved
}

func (g *Gate) joined(ctx context.Context, channel string, participantID int64) bool {
	qctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	m, err := g.querier.QueryMembership(qctx, channel, participantID)
	if err != nil {
		m = Unknown
		g.log.Warn().Err(err).
			Str("channel", channel).
			Int64("participant_id", participantID).
			Msg("membership query failed, treating as not joined")
	}
	metrics.RecordMembership(m.String())
	return m == Member
}
