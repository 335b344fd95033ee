package inbox

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/playmatatu/duels/internal/models"
)

const defaultListLimit = 50

// Postgres stores messages in inbox_messages. The unique
// (recipient_id, dedupe_key) index makes AddMessage idempotent.
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) AddMessage(ctx context.Context, msg models.InboxMessage) (bool, error) {
	res, err := p.db.NamedExecContext(ctx, `
		INSERT INTO inbox_messages
			(id, recipient_id, sender, subject, body, kind, reward_hint, dedupe_key, challenge_id, created_at)
		VALUES
			(:id, :recipient_id, :sender, :subject, :body, :kind, :reward_hint, :dedupe_key, :challenge_id, :created_at)
		ON CONFLICT (recipient_id, dedupe_key) DO NOTHING`, msg)
	if err != nil {
		return false, fmt.Errorf("insert inbox message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert inbox message: %w", err)
	}
	return n == 1, nil
}

// List returns recipientID's newest messages first.
func (p *Postgres) List(ctx context.Context, recipientID string, limit int) ([]models.InboxMessage, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	out := []models.InboxMessage{}
	err := p.db.SelectContext(ctx, &out, `
		SELECT id, recipient_id, sender, subject, body, kind, reward_hint, dedupe_key, challenge_id, created_at
		FROM inbox_messages
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	return out, nil
}

// Memory is the in-process inbox used with CHALLENGE_STORE=memory and in tests.
type Memory struct {
	mu   sync.Mutex
	msgs map[string][]models.InboxMessage // recipient -> messages
	keys map[string]struct{}              // recipient + dedupe key
}

func NewMemory() *Memory {
	return &Memory{
		msgs: make(map[string][]models.InboxMessage),
		keys: make(map[string]struct{}),
	}
}

func (m *Memory) AddMessage(ctx context.Context, msg models.InboxMessage) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	k := msg.RecipientID + "\x00" + msg.DedupeKey
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.keys[k]; dup {
		return false, nil
	}
	m.keys[k] = struct{}{}
	m.msgs[msg.RecipientID] = append(m.msgs[msg.RecipientID], msg)
	return true, nil
}

func (m *Memory) List(ctx context.Context, recipientID string, limit int) ([]models.InboxMessage, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	m.mu.Lock()
	out := append([]models.InboxMessage(nil), m.msgs[recipientID]...)
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []models.InboxMessage{}
	}
	return out, nil
}
