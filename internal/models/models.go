package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ChallengeStatus is the persisted status column. It only flips to
// completed on the final result write; use Phase for UI decisions.
type ChallengeStatus string

const (
	StatusPending   ChallengeStatus = "pending"
	StatusCompleted ChallengeStatus = "completed"
	StatusExpired   ChallengeStatus = "expired"
)

// Phase is derived from which results are present, never stored.
type Phase string

const (
	PhaseCreated          Phase = "created"
	PhaseAwaitingOpponent Phase = "awaiting_opponent"
	PhaseResolved         Phase = "resolved"
)

// Role is the acting party's position in a challenge.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleOpponent  Role = "opponent"
)

// OutcomeKind separates "not computed yet" from "tie" so a null winner is
// never ambiguous.
type OutcomeKind string

const (
	OutcomeNotComputed OutcomeKind = ""
	OutcomeTie         OutcomeKind = "tie"
	OutcomeWinner      OutcomeKind = "winner"
)

type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	WinnerID string      `json:"winner_id,omitempty"`
}

func (o Outcome) Computed() bool { return o.Kind != OutcomeNotComputed }

// AckFlag names one of the three per-(recipient, event) acknowledgment columns.
type AckFlag string

const (
	AckOpponentNew      AckFlag = "notified_opponent_new"
	AckInitiatorOutcome AckFlag = "notified_initiator_result"
	AckOpponentOutcome  AckFlag = "notified_opponent_result"
)

// MetricBag is a game's opaque result payload: metric name -> number, string or bool.
type MetricBag map[string]any

// Value stores the bag as JSONB. lib/pq sends []byte as bytea, so the
// encoded document goes out as text.
func (b MetricBag) Value() (driver.Value, error) {
	if b == nil {
		return nil, nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan reads a JSONB column into the bag. NULL leaves the bag nil.
func (b *MetricBag) Scan(src any) error {
	if src == nil {
		*b = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("metric bag: unsupported column type")
	}
	out := MetricBag{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*b = out
	return nil
}

// Clone returns a shallow copy so cached challenges never share maps with callers.
func (b MetricBag) Clone() MetricBag {
	if b == nil {
		return nil
	}
	out := make(MetricBag, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Profile is the minimal user projection joined onto fetched challenges.
type Profile struct {
	ID          string `db:"id" json:"id"`
	DisplayName string `db:"display_name" json:"display_name"`
	AvatarURL   string `db:"avatar_url" json:"avatar_url,omitempty"`
}

// Challenge is one asynchronous two-party match record.
type Challenge struct {
	ID                   string          `json:"id"`
	GameID               string          `json:"game_id"`
	InitiatorID          string          `json:"initiator_id"`
	OpponentID           string          `json:"opponent_id"`
	InitiatorResult      MetricBag       `json:"initiator_result,omitempty"`
	InitiatorCompletedAt *time.Time      `json:"initiator_completed_at,omitempty"`
	OpponentResult       MetricBag       `json:"opponent_result,omitempty"`
	OpponentCompletedAt  *time.Time      `json:"opponent_completed_at,omitempty"`
	Status               ChallengeStatus `json:"status"`
	Outcome              Outcome         `json:"outcome"`

	NotifiedOpponentNew     bool `json:"notified_opponent_new"`
	NotifiedInitiatorResult bool `json:"notified_initiator_result"`
	NotifiedOpponentResult  bool `json:"notified_opponent_result"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	Initiator *Profile `json:"initiator,omitempty"`
	Opponent  *Profile `json:"opponent,omitempty"`
}

// WinnerID mirrors the legacy nullable winner column: nil for a tie or
// when no outcome has been computed.
func (c *Challenge) WinnerID() *string {
	if c.Outcome.Kind != OutcomeWinner {
		return nil
	}
	id := c.Outcome.WinnerID
	return &id
}

// Phase derives the lifecycle phase from result presence.
func (c *Challenge) Phase() Phase {
	switch {
	case c.InitiatorCompletedAt != nil && c.OpponentCompletedAt != nil && c.Status == StatusCompleted:
		return PhaseResolved
	case c.InitiatorCompletedAt != nil:
		return PhaseAwaitingOpponent
	default:
		return PhaseCreated
	}
}

// Acknowledged reports the value of one acknowledgment flag.
func (c *Challenge) Acknowledged(flag AckFlag) bool {
	switch flag {
	case AckOpponentNew:
		return c.NotifiedOpponentNew
	case AckInitiatorOutcome:
		return c.NotifiedInitiatorResult
	case AckOpponentOutcome:
		return c.NotifiedOpponentResult
	}
	return false
}

// SetAcknowledged flips one acknowledgment flag on.
func (c *Challenge) SetAcknowledged(flag AckFlag) {
	switch flag {
	case AckOpponentNew:
		c.NotifiedOpponentNew = true
	case AckInitiatorOutcome:
		c.NotifiedInitiatorResult = true
	case AckOpponentOutcome:
		c.NotifiedOpponentResult = true
	}
}

// Progress orders snapshots of the same challenge: completed legs, the final
// status flip and acknowledgment flags only ever move forward.
func (c *Challenge) Progress() int {
	p := 0
	if c.InitiatorCompletedAt != nil {
		p += 8
	}
	if c.OpponentCompletedAt != nil {
		p += 8
	}
	if c.Status == StatusCompleted {
		p += 8
	}
	for _, f := range []AckFlag{AckOpponentNew, AckInitiatorOutcome, AckOpponentOutcome} {
		if c.Acknowledged(f) {
			p++
		}
	}
	return p
}

// Clone deep-copies result bags, timestamps and profiles.
func (c Challenge) Clone() Challenge {
	out := c
	out.InitiatorResult = c.InitiatorResult.Clone()
	out.OpponentResult = c.OpponentResult.Clone()
	if c.InitiatorCompletedAt != nil {
		t := *c.InitiatorCompletedAt
		out.InitiatorCompletedAt = &t
	}
	if c.OpponentCompletedAt != nil {
		t := *c.OpponentCompletedAt
		out.OpponentCompletedAt = &t
	}
	if c.Initiator != nil {
		p := *c.Initiator
		out.Initiator = &p
	}
	if c.Opponent != nil {
		p := *c.Opponent
		out.Opponent = &p
	}
	return out
}

// MessageKind classifies inbox messages.
type MessageKind string

const (
	MessageChallengeNew    MessageKind = "challenge_new"
	MessageChallengeResult MessageKind = "challenge_result"
)

// InboxMessage is one entry in a user's persistent message center.
type InboxMessage struct {
	ID          string      `db:"id" json:"id"`
	RecipientID string      `db:"recipient_id" json:"recipient_id"`
	Sender      string      `db:"sender" json:"sender"`
	Subject     string      `db:"subject" json:"subject"`
	Body        string      `db:"body" json:"body"`
	Kind        MessageKind `db:"kind" json:"kind"`
	RewardHint  *int        `db:"reward_hint" json:"reward_hint,omitempty"`
	DedupeKey   string      `db:"dedupe_key" json:"-"`
	ChallengeID string      `db:"challenge_id" json:"challenge_id"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// Alert is a short-lived, fire-and-forget notice for a connected user.
type Alert struct {
	Kind        string `json:"kind"`
	Message     string `json:"message"`
	ChallengeID string `json:"challenge_id,omitempty"`
}
