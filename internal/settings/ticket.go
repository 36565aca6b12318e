package settings

import (
	"context"
	"fmt"

	"contestbot/internal/model"
)

// CommitFunc durably writes a submission carrying ticket together with
// after (the document with the advanced floor). It reports false when the
// submission was not written, e.g. on a uniqueness conflict.
type CommitFunc func(ctx context.Context, ticket int64, after model.Settings) (bool, error)

// CommitNext hands out the current floor to commit and advances it. The
// floor only advances, in memory and on disk, when commit reports the
// submission written; commit is responsible for persisting after in the
// same unit. Tickets are unique and strictly increasing until ResetFloor.
func (s *Store) CommitNext(ctx context.Context, commit CommitFunc) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	ticket := cur.NextTicket
	after := cur.Clone()
	after.NextTicket = ticket + 1

	ok, err := commit(ctx, ticket, after)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if !ok {
		return 0, false, nil
	}
	s.current.Store(&after)
	return ticket, true, nil
}

// ResetFloor overwrites the next ticket value. Previously issued tickets
// are not consulted, so a lower floor can repeat numbers.
func (s *Store) ResetFloor(ctx context.Context, next int64) error {
	_, err := s.Mutate(ctx, func(doc *model.Settings) error {
		doc.NextTicket = next
		return nil
	})
	return err
}
