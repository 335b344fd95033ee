package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/playmatatu/duels/internal/models"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	hit   chan struct{}
}

func newFakeRefresher() *fakeRefresher {
	return &fakeRefresher{hit: make(chan struct{}, 16)}
}

func (f *fakeRefresher) Refresh(ctx context.Context, userID, gameID string) []models.Challenge {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	f.hit <- struct{}{}
	return nil
}

func (f *fakeRefresher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAlerts struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (f *fakeAlerts) Alert(userID string, a models.Alert) {
	f.mu.Lock()
	f.alerts = append(f.alerts, a)
	f.mu.Unlock()
}

func (f *fakeAlerts) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, a := range f.alerts {
		out = append(out, a.Kind)
	}
	return out
}

func waitHit(t *testing.T, f *fakeRefresher) {
	t.Helper()
	select {
	case <-f.hit:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for refresh")
	}
}

func TestListenerFiltersEvents(t *testing.T) {
	ch := NewLocal()
	ref := newFakeRefresher()
	alerts := &fakeAlerts{}
	l := NewListener(ch, "bob", "", ref, alerts)
	ctx := context.Background()
	if err := l.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer l.Close()

	row := models.Challenge{ID: "c1", GameID: "trivia", InitiatorID: "alice", OpponentID: "bob", Status: models.StatusPending}

	// bob is the opponent: alert and refetch
	ch.Publish(ctx, EventInsert, row)
	waitHit(t, ref)

	// updates only matter to the initiator
	ch.Publish(ctx, EventUpdate, row)
	other := row
	other.OpponentID = "carol"
	ch.Publish(ctx, EventInsert, other)

	// bob as initiator of a completed challenge
	done := row
	done.ID = "c2"
	done.InitiatorID, done.OpponentID = "bob", "alice"
	done.Status = models.StatusCompleted
	ch.Publish(ctx, EventUpdate, done)
	waitHit(t, ref)

	if got := ref.count(); got != 2 {
		t.Errorf("refreshes = %d, want 2", got)
	}
	kinds := alerts.kinds()
	if len(kinds) != 2 || kinds[0] != "challenge_received" || kinds[1] != "challenge_completed" {
		t.Errorf("alerts = %v", kinds)
	}
}

func TestListenerResubscribeReplacesPrevious(t *testing.T) {
	ch := NewLocal()
	ref := newFakeRefresher()
	l := NewListener(ch, "bob", "", ref, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Subscribe(ctx); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}
	ch.mu.Lock()
	n := len(ch.subs)
	ch.mu.Unlock()
	if n != 1 {
		t.Fatalf("active subscriptions = %d, want 1", n)
	}

	ch.Publish(ctx, EventInsert, models.Challenge{ID: "c1", GameID: "trivia", InitiatorID: "alice", OpponentID: "bob"})
	waitHit(t, ref)

	l.Close()
	ch.mu.Lock()
	n = len(ch.subs)
	ch.mu.Unlock()
	if n != 0 {
		t.Errorf("subscriptions after Close = %d, want 0", n)
	}
	if ref.count() != 1 {
		t.Errorf("refreshes = %d, want 1", ref.count())
	}
}

type brokenChannel struct{}

func (brokenChannel) Subscribe(ctx context.Context) (Subscription, error) {
	return nil, errors.New("redis unavailable")
}

func TestListenerSubscribeError(t *testing.T) {
	l := NewListener(brokenChannel{}, "bob", "", newFakeRefresher(), nil)
	if err := l.Subscribe(context.Background()); err == nil {
		t.Fatal("expected subscribe error")
	}
	l.Close()
}

func TestListenerGameScope(t *testing.T) {
	ch := NewLocal()
	ref := newFakeRefresher()
	l := NewListener(ch, "bob", "typing", ref, nil)
	ctx := context.Background()
	if err := l.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ch.Publish(ctx, EventInsert, models.Challenge{ID: "c1", GameID: "trivia", InitiatorID: "alice", OpponentID: "bob"})
	ch.Publish(ctx, EventInsert, models.Challenge{ID: "c2", GameID: "typing", InitiatorID: "alice", OpponentID: "bob"})
	waitHit(t, ref)
	l.Close()

	if ref.count() != 1 {
		t.Errorf("refreshes = %d, want 1", ref.count())
	}
}
