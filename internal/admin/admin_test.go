package admin

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"contestbot/internal/model"
	"contestbot/internal/repo"
	"contestbot/internal/settings"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	cp    *ControlPlane
	store *settings.Store
	repo  repo.Repository
	clock *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()

	r, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "contest.db"), &log)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	if err := r.MigrateUp(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := &testClock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	store, err := settings.Open(ctx, r, model.DefaultSettings(), clock.Now, &log)
	if err != nil {
		t.Fatalf("open settings: %v", err)
	}
	return &fixture{cp: NewControlPlane(store, r, &log), store: store, repo: r, clock: clock}
}

func hours(n int) *time.Duration {
	d := time.Duration(n) * time.Hour
	return &d
}

func TestOpenContestWithDuration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.cp.OpenContest(ctx, hours(72))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	want := f.clock.Now().Add(72 * time.Hour)
	if !w.Open || w.EndsAt == nil || !w.EndsAt.Equal(want) {
		t.Fatalf("window = %+v, want open until %v", w, want)
	}

	st, err := f.cp.Status(ctx)
	if err != nil || !st.Open {
		t.Fatalf("status = %+v, %v", st, err)
	}
	f.clock.Advance(72 * time.Hour)
	if st, _ := f.cp.Status(ctx); st.Open {
		t.Fatal("window still open after its end")
	}

	persisted, _, _ := f.repo.LoadSettings(ctx)
	if persisted.Window.EndsAt == nil || !persisted.Window.EndsAt.Equal(want) {
		t.Fatalf("persisted window = %+v", persisted.Window)
	}
}

func TestOpenContestIndefinitelyAndClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.cp.OpenContest(ctx, nil)
	if err != nil || !w.Open || w.EndsAt != nil {
		t.Fatalf("open = %+v, %v; want indefinite", w, err)
	}
	f.clock.Advance(365 * 24 * time.Hour)
	if !f.store.ContestOpen() {
		t.Fatal("indefinite window closed by time")
	}

	if err := f.cp.CloseContest(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if f.store.ContestOpen() {
		t.Fatal("contest still open after close")
	}
}

func TestOpenContestRejectsNonPositiveDuration(t *testing.T) {
	f := newFixture(t)
	zero := time.Duration(0)
	if _, err := f.cp.OpenContest(context.Background(), &zero); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if f.store.ContestOpen() {
		t.Fatal("contest opened on invalid input")
	}
}

func TestPromoChannelLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.cp.AddPromoChannel(ctx, "https://t.me/first", nil); err != nil {
		t.Fatalf("add first: %v", err)
	}
	added, err := f.cp.AddPromoChannel(ctx, "@second", hours(2))
	if err != nil {
		t.Fatalf("add second: %v", err)
	}
	if added.Channel != "@second" || added.ExpiresAt == nil {
		t.Fatalf("added = %+v", added)
	}

	// re-adding replaces the expiry instead of duplicating
	if _, err := f.cp.AddPromoChannel(ctx, "second", hours(5)); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	list := f.cp.ListPromoChannels(ctx)
	if len(list) != 2 || list[0].Channel != "@first" || list[1].Channel != "@second" {
		t.Fatalf("channels = %+v", list)
	}

	f.clock.Advance(3 * time.Hour)
	if got := f.cp.ListPromoChannels(ctx); len(got) != 2 {
		t.Fatalf("replaced expiry not honoured: %+v", got)
	}
	f.clock.Advance(3 * time.Hour)
	if got := f.cp.ListPromoChannels(ctx); len(got) != 1 || got[0].Channel != "@first" {
		t.Fatalf("expired channel listed: %+v", got)
	}

	if err := f.cp.RemovePromoChannel(ctx, "@first"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := f.cp.RemovePromoChannel(ctx, "@first"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("second remove err = %v, want ErrChannelNotFound", err)
	}
	if _, err := f.cp.AddPromoChannel(ctx, "not a channel", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad add err = %v, want ErrInvalidInput", err)
	}
}

func TestResetTicketFloor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.cp.ResetTicketFloor(ctx, -1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if err := f.cp.ResetTicketFloor(ctx, 0); err != nil {
		t.Fatalf("reset to zero: %v", err)
	}
	if st, _ := f.cp.Status(ctx); st.NextTicket != 0 {
		t.Fatalf("next ticket = %d, want 0", st.NextTicket)
	}
	if err := f.cp.ResetTicketFloor(ctx, 100); err != nil {
		t.Fatalf("reset: %v", err)
	}
	st, err := f.cp.Status(ctx)
	if err != nil || st.NextTicket != 100 {
		t.Fatalf("status = %+v, %v; want next ticket 100", st, err)
	}
	got, _, err := f.store.CommitNext(ctx, func(context.Context, int64, model.Settings) (bool, error) {
		return true, nil
	})
	if err != nil || got != 100 {
		t.Fatalf("assigned = %d, want 100", got)
	}
}

func TestListParticipantsAndStatusCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, team := range []string{"Alpha", "Beta"} {
		p := &model.Participant{ParticipantID: int64(i + 1), TeamName: team, TicketNumber: int64(i + 1), CommittedAt: f.clock.Now()}
		if _, err := f.repo.CheckAndInsert(ctx, p, model.Settings{NextTicket: int64(i + 2)}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	list, err := f.cp.ListParticipants(ctx)
	if err != nil || len(list) != 2 || list[0].TeamName != "Alpha" {
		t.Fatalf("list = %+v, %v", list, err)
	}
	st, err := f.cp.Status(ctx)
	if err != nil || st.Participants != 2 {
		t.Fatalf("status = %+v, %v", st, err)
	}
}
