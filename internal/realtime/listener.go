package realtime

import (
	"context"
	"log"
	"sync"

	"github.com/playmatatu/duels/internal/metrics"
	"github.com/playmatatu/duels/internal/models"
	"github.com/playmatatu/duels/internal/rules"
)

const (
	EventInsert = "insert"
	EventUpdate = "update"
)

// Refresher refetches a user's challenges.
type Refresher interface {
	Refresh(ctx context.Context, userID, gameID string) []models.Challenge
}

// Alerter shows a short-lived alert to a user.
type Alerter interface {
	Alert(userID string, alert models.Alert)
}

// Listener owns the single push subscription of one user session. Events
// are filtered here; the channel carries every row change.
type Listener struct {
	channel   Channel
	userID    string
	gameID    string
	refresher Refresher
	alerts    Alerter

	// OnSnapshot, if set, receives the refreshed snapshot after each
	// matching event.
	OnSnapshot func([]models.Challenge)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewListener(channel Channel, userID, gameID string, refresher Refresher, alerts Alerter) *Listener {
	return &Listener{
		channel:   channel,
		userID:    userID,
		gameID:    gameID,
		refresher: refresher,
		alerts:    alerts,
	}
}

// Subscribe starts listening, tearing down any previous subscription first.
func (l *Listener) Subscribe(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()

	sub, err := l.channel.Subscribe(ctx)
	if err != nil {
		return err
	}
	lctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel, l.done = cancel, done

	go func() {
		defer close(done)
		defer sub.Close()
		for {
			select {
			case <-lctx.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					log.Printf("[REALTIME] subscription for %s closed", l.userID)
					return
				}
				l.handle(lctx, ev)
			}
		}
	}()
	return nil
}

// Close ends the subscription and waits for the event loop to exit.
func (l *Listener) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

func (l *Listener) stopLocked() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.cancel, l.done = nil, nil
}

func (l *Listener) handle(ctx context.Context, ev Event) {
	row := ev.Row
	if l.gameID != "" && row.GameID != l.gameID {
		return
	}

	var alert models.Alert
	switch {
	case ev.Event == EventInsert && row.OpponentID == l.userID:
		alert = models.Alert{
			Kind:        "challenge_received",
			Message:     displayName(row.Initiator, "Someone") + " challenged you to " + gameName(row.GameID),
			ChallengeID: row.ID,
		}
	case ev.Event == EventUpdate && row.InitiatorID == l.userID && row.Status == models.StatusCompleted:
		alert = models.Alert{
			Kind:        "challenge_completed",
			Message:     displayName(row.Opponent, "Your opponent") + " finished your " + gameName(row.GameID) + " challenge",
			ChallengeID: row.ID,
		}
	default:
		return
	}

	metrics.RealtimeEvents.WithLabelValues(ev.Event).Inc()
	if l.alerts != nil {
		l.alerts.Alert(l.userID, alert)
	}
	snapshot := l.refresher.Refresh(ctx, l.userID, l.gameID)
	if ctx.Err() == nil && l.OnSnapshot != nil {
		l.OnSnapshot(snapshot)
	}
}

func displayName(p *models.Profile, fallback string) string {
	if p == nil || p.DisplayName == "" {
		return fallback
	}
	return p.DisplayName
}

func gameName(gameID string) string {
	if r, err := rules.Lookup(gameID); err == nil {
		return r.DisplayName
	}
	return gameID
}
