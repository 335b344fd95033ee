package challenge

import (
	"sort"
	"sync"
	"time"

	"github.com/playmatatu/duels/internal/models"
)

// cacheState is owned by the cache goroutine; nothing else touches it.
type cacheState struct {
	users   map[string]map[string]models.Challenge // userID -> challengeID -> row
	touched map[string]time.Time
	now     func() time.Time
}

func (s *cacheState) view(userID string) map[string]models.Challenge {
	s.touched[userID] = s.now()
	v, ok := s.users[userID]
	if !ok {
		v = make(map[string]models.Challenge)
		s.users[userID] = v
	}
	return v
}

// Cache is the per-user local view of challenges. Every mutation is an
// intent handed to a single goroutine.
type Cache struct {
	// now is the clock used for idle tracking; tests replace it before use.
	now       func() time.Time
	intents   chan func(*cacheState)
	done      chan struct{}
	closeOnce sync.Once
}

func NewCache() *Cache {
	c := &Cache{
		now:     time.Now,
		intents: make(chan func(*cacheState)),
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Cache) run() {
	state := &cacheState{
		users:   make(map[string]map[string]models.Challenge),
		touched: make(map[string]time.Time),
		now:     func() time.Time { return c.now() },
	}
	for {
		select {
		case fn := <-c.intents:
			fn(state)
		case <-c.done:
			return
		}
	}
}

// exec runs fn on the cache goroutine and waits for it. It returns false once
// the cache is closed.
func (c *Cache) exec(fn func(*cacheState)) bool {
	reply := make(chan struct{})
	select {
	case c.intents <- func(s *cacheState) { fn(s); close(reply) }:
	case <-c.done:
		return false
	}
	<-reply
	return true
}

func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Upsert merges a single row into userID's view.
func (c *Cache) Upsert(userID string, row models.Challenge) {
	row = row.Clone()
	c.exec(func(s *cacheState) {
		v := s.view(userID)
		if old, ok := v[row.ID]; ok {
			row = mergeChallenge(old, row)
		}
		v[row.ID] = row
	})
}

// Merge folds a fetched snapshot into userID's view and returns the merged
// form of every fetched row. Cached rows of the same game scope that the
// snapshot lacks are dropped, unless they were created after fetchStarted.
func (c *Cache) Merge(userID, gameID string, fetched []models.Challenge, fetchStarted time.Time) []models.Challenge {
	rows := make([]models.Challenge, len(fetched))
	for i := range fetched {
		rows[i] = fetched[i].Clone()
	}
	var merged []models.Challenge
	c.exec(func(s *cacheState) {
		v := s.view(userID)
		seen := make(map[string]struct{}, len(rows))
		merged = make([]models.Challenge, 0, len(rows))
		for _, row := range rows {
			seen[row.ID] = struct{}{}
			if old, ok := v[row.ID]; ok {
				row = mergeChallenge(old, row)
			}
			v[row.ID] = row
			merged = append(merged, row.Clone())
		}
		for id, old := range v {
			if _, ok := seen[id]; ok {
				continue
			}
			if gameID != "" && old.GameID != gameID {
				continue
			}
			if old.CreatedAt.After(fetchStarted) {
				continue
			}
			delete(v, id)
		}
	})
	return merged
}

// Acknowledge records locally that a trigger fired so a stale snapshot
// cannot bring it back before the store write lands.
func (c *Cache) Acknowledge(userID, challengeID string, flag models.AckFlag) {
	c.exec(func(s *cacheState) {
		v := s.view(userID)
		if row, ok := v[challengeID]; ok {
			row.SetAcknowledged(flag)
			v[challengeID] = row
		}
	})
}

// Snapshot returns userID's rows newest first, optionally filtered by game.
func (c *Cache) Snapshot(userID, gameID string) []models.Challenge {
	var out []models.Challenge
	c.exec(func(s *cacheState) {
		v := s.users[userID]
		if v != nil {
			s.touched[userID] = s.now()
		}
		out = make([]models.Challenge, 0, len(v))
		for _, row := range v {
			if gameID != "" && row.GameID != gameID {
				continue
			}
			out = append(out, row.Clone())
		}
	})
	sortNewestFirst(out)
	return out
}

// Forget drops userID's view when its session ends.
func (c *Cache) Forget(userID string) {
	c.exec(func(s *cacheState) {
		delete(s.users, userID)
		delete(s.touched, userID)
	})
}

// EvictIdle drops every view last used more than idle ago and reports how
// many went. A later refresh rebuilds an evicted view from the store.
func (c *Cache) EvictIdle(idle time.Duration) int {
	var n int
	c.exec(func(s *cacheState) {
		cutoff := s.now().Add(-idle)
		for userID, at := range s.touched {
			if at.Before(cutoff) {
				delete(s.users, userID)
				delete(s.touched, userID)
				n++
			}
		}
	})
	return n
}

func sortNewestFirst(rows []models.Challenge) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID > rows[j].ID
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
}

// mergeChallenge combines two snapshots of the same challenge without ever
// moving a leg, the completed status or an acknowledgment flag backwards.
func mergeChallenge(old, incoming models.Challenge) models.Challenge {
	out := incoming
	if out.InitiatorCompletedAt == nil && old.InitiatorCompletedAt != nil {
		out.InitiatorCompletedAt = old.InitiatorCompletedAt
		out.InitiatorResult = old.InitiatorResult
	}
	if out.OpponentCompletedAt == nil && old.OpponentCompletedAt != nil {
		out.OpponentCompletedAt = old.OpponentCompletedAt
		out.OpponentResult = old.OpponentResult
	}
	if old.Status == models.StatusCompleted && out.Status != models.StatusCompleted {
		out.Status = models.StatusCompleted
		out.Outcome = old.Outcome
	}
	if !out.Outcome.Computed() && old.Outcome.Computed() {
		out.Outcome = old.Outcome
	}
	out.NotifiedOpponentNew = out.NotifiedOpponentNew || old.NotifiedOpponentNew
	out.NotifiedInitiatorResult = out.NotifiedInitiatorResult || old.NotifiedInitiatorResult
	out.NotifiedOpponentResult = out.NotifiedOpponentResult || old.NotifiedOpponentResult
	if out.Initiator == nil {
		out.Initiator = old.Initiator
	}
	if out.Opponent == nil {
		out.Opponent = old.Opponent
	}
	return out
}
