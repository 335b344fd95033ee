package challenge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/playmatatu/duels/internal/metrics"
	"github.com/playmatatu/duels/internal/models"
	"github.com/playmatatu/duels/internal/rules"
)

// Manager is the single entry point for challenge actions and the sole owner
// of cache mutation.
type Manager struct {
	gw           Gateway
	synth        Synthesizer
	alerts       Alerter
	cache        *Cache
	flights      singleflight.Group
	fetchTimeout time.Duration
}

// NewManager wires a manager. alerts may be nil.
func NewManager(gw Gateway, synth Synthesizer, alerts Alerter, fetchTimeout time.Duration) *Manager {
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	return &Manager{
		gw:           gw,
		synth:        synth,
		alerts:       alerts,
		cache:        NewCache(),
		fetchTimeout: fetchTimeout,
	}
}

// Close stops the cache goroutine.
func (m *Manager) Close() {
	m.cache.Close()
}

// ProposeChallenge creates a challenge from initiatorID to opponentID and
// returns its id.
func (m *Manager) ProposeChallenge(ctx context.Context, gameID, initiatorID, opponentID string) (string, error) {
	rule, err := rules.Lookup(gameID)
	if err != nil {
		return "", err
	}
	if initiatorID == "" || opponentID == "" {
		return "", ErrMissingParty
	}
	if initiatorID == opponentID {
		return "", ErrSelfChallenge
	}

	c, err := m.gw.Create(ctx, gameID, initiatorID, opponentID)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("create").Inc()
		log.Printf("[CHALLENGE] create %s by %s failed: %v", gameID, initiatorID, err)
		return "", err
	}
	metrics.ChallengesCreated.WithLabelValues(gameID).Inc()
	m.cache.Upsert(initiatorID, *c)

	m.alert(initiatorID, models.Alert{
		Kind:        "challenge_sent",
		Message:     rule.DisplayName + " challenge sent",
		ChallengeID: c.ID,
	})
	log.Printf("[CHALLENGE] %s created game=%s initiator=%s opponent=%s", c.ID, gameID, initiatorID, opponentID)
	return c.ID, nil
}

// RecordOutcome stores actingUserID's result. The role is resolved from the
// stored row, and the winner is computed when the opponent leg lands.
func (m *Manager) RecordOutcome(ctx context.Context, challengeID, actingUserID string, bag models.MetricBag) (*models.Challenge, error) {
	if len(bag) == 0 {
		return nil, ErrEmptyResult
	}
	c, err := m.gw.SubmitResult(ctx, challengeID, actingUserID, bag)
	if err != nil {
		if IsStoreError(err) {
			metrics.StoreErrors.WithLabelValues("submit").Inc()
		}
		log.Printf("[CHALLENGE] submit %s by %s failed: %v", challengeID, actingUserID, err)
		return nil, err
	}
	m.cache.Upsert(actingUserID, *c)

	if role, rerr := ResolveRole(c, actingUserID); rerr == nil {
		metrics.ResultsRecorded.WithLabelValues(c.GameID, string(role)).Inc()
	}
	if c.Phase() == models.PhaseResolved {
		log.Printf("[CHALLENGE] %s resolved outcome=%s winner=%s", c.ID, c.Outcome.Kind, c.Outcome.WinnerID)
	}
	return c, nil
}

// errAbandoned marks a shared fetch whose starting caller went away. Other
// callers sharing it retry under their own context.
var errAbandoned = errors.New("refresh abandoned by its caller")

// maxRefreshAttempts bounds how often a live caller rejoins after abandoned
// flights.
const maxRefreshAttempts = 3

// Refresh refetches userID's challenges, merges them into the cache and runs
// notification synthesis. Concurrent refreshes for the same user and game
// share one fetch. Store errors are logged and the previous snapshot is
// returned.
func (m *Manager) Refresh(ctx context.Context, userID, gameID string) []models.Challenge {
	key := userID + "|" + gameID
	for attempt := 1; ; attempt++ {
		ch := m.flights.DoChan(key, func() (any, error) {
			return nil, m.refresh(ctx, userID, gameID)
		})

		var res singleflight.Result
		select {
		case res = <-ch:
		case <-ctx.Done():
			metrics.Refreshes.WithLabelValues("cancelled").Inc()
			return m.cache.Snapshot(userID, gameID)
		}

		if errors.Is(res.Err, errAbandoned) && ctx.Err() == nil && attempt < maxRefreshAttempts {
			continue
		}
		switch {
		case res.Err != nil:
			metrics.Refreshes.WithLabelValues("error").Inc()
		case res.Shared:
			metrics.Refreshes.WithLabelValues("shared").Inc()
		default:
			metrics.Refreshes.WithLabelValues("ok").Inc()
		}
		return m.cache.Snapshot(userID, gameID)
	}
}

// refresh runs under the context of the caller that started the flight. When
// that context ends first the cache is left alone and errAbandoned is
// returned.
func (m *Manager) refresh(ctx context.Context, userID, gameID string) error {
	started := time.Now()
	fctx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	rows, err := m.gw.FetchForUser(fctx, userID, gameID)
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", errAbandoned, ctx.Err())
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues("fetch").Inc()
		log.Printf("[CHALLENGE] fetch for %s failed, keeping previous snapshot: %v", userID, err)
		return err
	}

	merged := m.cache.Merge(userID, gameID, rows, started)
	if m.synth == nil {
		return nil
	}
	for _, f := range m.synth.Synthesize(ctx, userID, merged) {
		m.cache.Acknowledge(userID, f.ChallengeID, f.Flag)
	}
	return nil
}

// Snapshot returns the cached view without fetching.
func (m *Manager) Snapshot(userID, gameID string) []models.Challenge {
	return m.cache.Snapshot(userID, gameID)
}

// RunIdleEviction drops cached views nobody has used for idle, checking
// every idle/2 until ctx is done. Views of HTTP-only users would otherwise
// live for the whole process.
func (m *Manager) RunIdleEviction(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()

	log.Printf("[CHALLENGE] idle view eviction started (idle=%s)", idle)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.cache.EvictIdle(idle); n > 0 {
				log.Printf("[CHALLENGE] evicted %d idle views", n)
			}
		}
	}
}

// Forget drops userID's cached view.
func (m *Manager) Forget(userID string) {
	m.cache.Forget(userID)
}

func (m *Manager) alert(userID string, a models.Alert) {
	if m.alerts == nil {
		return
	}
	m.alerts.Alert(userID, a)
}
