package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"contestbot/internal/model"
)

type fakeQuerier struct {
	calls   atomic.Int32
	mu      sync.Mutex
	answers map[string]Membership
	errs    map[string]error
	block   map[string]bool
}

func (f *fakeQuerier) QueryMembership(ctx context.Context, channel string, _ int64) (Membership, error) {
	f.calls.Add(1)
	f.mu.Lock()
	m, err, block := f.answers[channel], f.errs[channel], f.block[channel]
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return Unknown, ctx.Err()
	}
	return m, err
}

func (f *fakeQuerier) set(channel string, m Membership) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[channel] = m
}

func newFake() *fakeQuerier {
	return &fakeQuerier{
		answers: map[string]Membership{},
		errs:    map[string]error{},
		block:   map[string]bool{},
	}
}

func newGate(q MembershipQuerier, timeout time.Duration) *Gate {
	log := zerolog.Nop()
	return New(q, Options{Concurrency: 2, Timeout: timeout}, &log)
}

func channels(names ...string) []model.PromoChannel {
	out := make([]model.PromoChannel, 0, len(names))
	for _, n := range names {
		out = append(out, model.PromoChannel{Channel: n})
	}
	return out
}

func names(chs []model.PromoChannel) []string {
	out := make([]string, 0, len(chs))
	for _, ch := range chs {
		out = append(out, ch.Channel)
	}
	return out
}

func TestCheckEmptySetPassesWithoutQueries(t *testing.T) {
	q := newFake()
	g := newGate(q, time.Second)

	for i := 0; i < 3; i++ {
		if got := g.Check(context.Background(), 1, nil); len(got) != 0 {
			t.Fatalf("unresolved = %v, want none", got)
		}
	}
	if n := q.calls.Load(); n != 0 {
		t.Fatalf("queries = %d, want 0", n)
	}
}

func TestCheckReportsEveryUnresolvedChannelInOrder(t *testing.T) {
	q := newFake()
	q.answers["@a"] = NotMember
	q.answers["@b"] = Member
	q.answers["@c"] = Unknown
	q.answers["@d"] = NotMember
	q.answers["@e"] = Member
	g := newGate(q, time.Second)

	got := names(g.Check(context.Background(), 1, channels("@a", "@b", "@c", "@d", "@e")))
	want := []string{"@a", "@c", "@d"}
	if len(got) != len(want) {
		t.Fatalf("unresolved = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unresolved = %v, want %v", got, want)
		}
	}
	if n := q.calls.Load(); n != 5 {
		t.Fatalf("queries = %d, want 5", n)
	}
}

func TestCheckFoldsErrorsAndTimeoutsToNotJoined(t *testing.T) {
	q := newFake()
	q.answers["@ok"] = Member
	q.answers["@err"] = Member
	q.errs["@err"] = errors.New("bad gateway")
	q.block["@slow"] = true
	g := newGate(q, 20*time.Millisecond)

	got := names(g.Check(context.Background(), 1, channels("@ok", "@err", "@slow")))
	if len(got) != 2 || got[0] != "@err" || got[1] != "@slow" {
		t.Fatalf("unresolved = %v, want [@err @slow]", got)
	}
}

func TestCheckIsIdempotentAndPassesAfterJoining(t *testing.T) {
	q := newFake()
	q.answers["@promo"] = NotMember
	g := newGate(q, time.Second)
	chs := channels("@promo")

	first := g.Check(context.Background(), 7, chs)
	second := g.Check(context.Background(), 7, chs)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("results differ without state change: %v vs %v", first, second)
	}

	q.set("@promo", Member)
	if got := g.Check(context.Background(), 7, chs); len(got) != 0 {
		t.Fatalf("unresolved after joining = %v", got)
	}
}

func TestMembershipString(t *testing.T) {
	cases := map[Membership]string{Member: "member", NotMember: "not_member", Unknown: "unknown"}
	for m, want := range cases {
		if got := m.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", m, got, want)
		}
	}
}
