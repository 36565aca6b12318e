// Package settings owns the admin-mutable contest configuration: the
// contest window, the promo-channel list and the ticket counter floor.
//
// Readers get whole snapshots through an atomic pointer; every mutation goes
// through one writer lock, is persisted first and only then published.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"contestbot/internal/model"
)

// ErrPersist wraps any storage failure while writing the document. The
// in-memory snapshot is unchanged when it is returned.
var ErrPersist = errors.New("settings: persist failed")

// Persister is the durable home of the document.
type Persister interface {
	LoadSettings(ctx context.Context) (model.Settings, bool, error)
	SaveSettings(ctx context.Context, s model.Settings) error
	PurgeExpiredChannels(ctx context.Context, now time.Time) (int64, error)
}

type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[model.Settings]
	persist Persister
	now     func() time.Time
	log     *zerolog.Logger
}

// Open loads the persisted document, seeding it with defaults on first run.
func Open(ctx context.Context, p Persister, defaults model.Settings, now func() time.Time, log *zerolog.Logger) (*Store, error) {
	if now == nil {
		now = time.Now
	}
	s := &Store{persist: p, now: now, log: log}

	doc, found, err := p.LoadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !found {
		doc = defaults.Clone()
		if err := p.SaveSettings(ctx, doc); err != nil {
			return nil, fmt.Errorf("%w: seed defaults: %w", ErrPersist, err)
		}
		log.Info().Int64("next_ticket", doc.NextTicket).Msg("contest settings seeded with defaults")
	}

	s.current.Store(&doc)
	return s, nil
}

// Snapshot returns a private copy of the current document.
func (s *Store) Snapshot() model.Settings {
	return s.current.Load().Clone()
}

// ContestOpen reports whether new sessions may start now.
func (s *Store) ContestOpen() bool {
	return s.current.Load().Window.IsOpen(s.now())
}

// LiveChannels returns the non-expired promo channels. Expired entries are
// purged from storage on the way; a purge failure only logs, the returned
// set excludes them regardless.
func (s *Store) LiveChannels(ctx context.Context) []model.PromoChannel {
	now := s.now()
	cur := s.current.Load()
	if cur.HasExpired(now) {
		if err := s.purgeExpired(ctx, now); err != nil {
			s.log.Warn().Err(err).Msg("lazy purge of expired promo channels failed")
		}
	}
	return cur.LiveChannels(now)
}

func (s *Store) purgeExpired(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if !cur.HasExpired(now) {
		return nil
	}
	if _, err := s.persist.PurgeExpiredChannels(ctx, now); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	next := cur.Clone()
	next.PromoChannels = cur.LiveChannels(now)
	s.current.Store(&next)
	return nil
}

// Mutate applies fn to a copy of the document, persists it and publishes
// it. If fn or the write fails, readers keep seeing the old snapshot.
func (s *Store) Mutate(ctx context.Context, fn func(doc *model.Settings) error) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Load().Clone()
	if err := fn(&next); err != nil {
		return model.Settings{}, err
	}
	if err := s.persist.SaveSettings(ctx, next); err != nil {
		return model.Settings{}, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.current.Store(&next)
	return next.Clone(), nil
}

// Now exposes the store clock so callers evaluate expiry consistently.
func (s *Store) Now() time.Time {
	return s.now()
}
