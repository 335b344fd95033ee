package gateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playmatatu/duels/internal/challenge"
	"github.com/playmatatu/duels/internal/models"
)

// Memory keeps challenges in process memory. It backs CHALLENGE_STORE=memory
// and the package tests.
type Memory struct {
	mu       sync.Mutex
	rows     map[string]*models.Challenge
	profiles map[string]models.Profile
	ttl      time.Duration
	pub      Publisher

	// Now is the clock; tests replace it.
	Now func() time.Time
}

func NewMemory(ttl time.Duration, pub Publisher) *Memory {
	return &Memory{
		rows:     make(map[string]*models.Challenge),
		profiles: make(map[string]models.Profile),
		ttl:      ttl,
		pub:      pub,
		Now:      time.Now,
	}
}

// PutProfile registers the profile projection joined onto fetched rows.
func (m *Memory) PutProfile(p models.Profile) {
	m.mu.Lock()
	m.profiles[p.ID] = p
	m.mu.Unlock()
}

func (m *Memory) Create(ctx context.Context, gameID, initiatorID, opponentID string) (*models.Challenge, error) {
	now := m.Now().UTC()
	c := &models.Challenge{
		ID:          uuid.NewString(),
		GameID:      gameID,
		InitiatorID: initiatorID,
		OpponentID:  opponentID,
		Status:      models.StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
	}

	m.mu.Lock()
	m.rows[c.ID] = c
	out := m.withProfiles(*c)
	m.mu.Unlock()

	publish(ctx, m.pub, EventInsert, out)
	return &out, nil
}

func (m *Memory) FetchForUser(ctx context.Context, userID, gameID string) ([]models.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, &challenge.StoreError{Op: "fetch", Err: err}
	}
	m.mu.Lock()
	out := make([]models.Challenge, 0)
	for _, c := range m.rows {
		if c.InitiatorID != userID && c.OpponentID != userID {
			continue
		}
		if gameID != "" && c.GameID != gameID {
			continue
		}
		out = append(out, m.withProfiles(*c))
	}
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) SubmitResult(ctx context.Context, challengeID, userID string, bag models.MetricBag) (*models.Challenge, error) {
	m.mu.Lock()
	c, ok := m.rows[challengeID]
	if !ok {
		m.mu.Unlock()
		return nil, challenge.ErrNotFound
	}
	role, err := challenge.ResolveRole(c, userID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	changed, err := challenge.ApplyResult(c, role, bag, m.Now().UTC())
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	out := m.withProfiles(*c)
	m.mu.Unlock()

	if changed {
		publish(ctx, m.pub, EventUpdate, out)
	}
	return &out, nil
}

func (m *Memory) MarkAcknowledged(ctx context.Context, challengeID string, flag models.AckFlag) error {
	if _, err := ackColumn(flag); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[challengeID]
	if !ok {
		return challenge.ErrNotFound
	}
	c.SetAcknowledged(flag)
	return nil
}

// Get returns a copy of one row, for tests and tooling.
func (m *Memory) Get(challengeID string) (models.Challenge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[challengeID]
	if !ok {
		return models.Challenge{}, false
	}
	return c.Clone(), true
}

// withProfiles copies c and attaches profiles. Caller holds m.mu.
func (m *Memory) withProfiles(c models.Challenge) models.Challenge {
	out := c.Clone()
	if p, ok := m.profiles[c.InitiatorID]; ok {
		out.Initiator = &p
	}
	if p, ok := m.profiles[c.OpponentID]; ok {
		out.Opponent = &p
	}
	return out
}
