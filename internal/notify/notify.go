// Package notify derives inbox messages from challenge snapshots. Each
// (challenge, trigger) pair produces at most one message per recipient; the
// acknowledgment flag write that retires a trigger runs in the background.
package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playmatatu/duels/internal/challenge"
	"github.com/playmatatu/duels/internal/metrics"
	"github.com/playmatatu/duels/internal/models"
	"github.com/playmatatu/duels/internal/rules"
)

// Trigger names a notification-worthy state.
type Trigger string

const (
	NewChallenge     Trigger = "new"              // opponent learns of a new challenge
	InitiatorOutcome Trigger = "initiator_result" // initiator learns the outcome
	OpponentOutcome  Trigger = "opponent_result"  // opponent learns the outcome
)

const SenderName = "Challenges"

// Inbox stores messages. AddMessage reports false when a message with the
// same recipient and dedupe key already exists.
type Inbox interface {
	AddMessage(ctx context.Context, msg models.InboxMessage) (bool, error)
}

// Acknowledger persists acknowledgment flags.
type Acknowledger interface {
	MarkAcknowledged(ctx context.Context, challengeID string, flag models.AckFlag) error
}

type trigger struct {
	name      Trigger
	flag      models.AckFlag
	recipient func(*models.Challenge) string
	due       func(*models.Challenge) bool
}

var triggers = []trigger{
	{
		name:      NewChallenge,
		flag:      models.AckOpponentNew,
		recipient: func(c *models.Challenge) string { return c.OpponentID },
		due: func(c *models.Challenge) bool {
			return c.Status == models.StatusPending && c.OpponentCompletedAt == nil && !c.NotifiedOpponentNew
		},
	},
	{
		name:      InitiatorOutcome,
		flag:      models.AckInitiatorOutcome,
		recipient: func(c *models.Challenge) string { return c.InitiatorID },
		due: func(c *models.Challenge) bool {
			return c.Status == models.StatusCompleted && !c.NotifiedInitiatorResult
		},
	},
	{
		name:      OpponentOutcome,
		flag:      models.AckOpponentOutcome,
		recipient: func(c *models.Challenge) string { return c.OpponentID },
		due: func(c *models.Challenge) bool {
			return c.Status == models.StatusCompleted && !c.NotifiedOpponentResult
		},
	},
}

// DedupeKey is the inbox key for one trigger of one challenge.
func DedupeKey(challengeID string, t Trigger) string {
	return fmt.Sprintf("%s:%s", challengeID, t)
}

type Synthesizer struct {
	inbox      Inbox
	acks       Acknowledger
	ackTimeout time.Duration
	pending    sync.WaitGroup
}

func NewSynthesizer(inbox Inbox, acks Acknowledger, ackTimeout time.Duration) *Synthesizer {
	if ackTimeout <= 0 {
		ackTimeout = 5 * time.Second
	}
	return &Synthesizer{inbox: inbox, acks: acks, ackTimeout: ackTimeout}
}

// Synthesize evaluates the triggers whose recipient is userID over batch.
// A trigger whose inbox write fails is skipped and fires again on the next
// batch.
func (s *Synthesizer) Synthesize(ctx context.Context, userID string, batch []models.Challenge) []challenge.Fired {
	var fired []challenge.Fired
	for i := range batch {
		c := &batch[i]
		for _, t := range triggers {
			if t.recipient(c) != userID || !t.due(c) {
				continue
			}
			msg, ok := s.compose(c, t, userID)
			if !ok {
				continue
			}
			inserted, err := s.inbox.AddMessage(ctx, msg)
			if err != nil {
				log.Printf("[NOTIFY] inbox write for %s failed: %v", msg.DedupeKey, err)
				continue
			}
			if inserted {
				metrics.NotificationsFired.WithLabelValues(string(t.name)).Inc()
				log.Printf("[NOTIFY] %s -> %s", msg.DedupeKey, userID)
			}
			s.acknowledge(c.ID, t.flag)
			fired = append(fired, challenge.Fired{ChallengeID: c.ID, Flag: t.flag})
		}
	}
	return fired
}

func (s *Synthesizer) compose(c *models.Challenge, t trigger, userID string) (models.InboxMessage, bool) {
	rule, err := rules.Lookup(c.GameID)
	if err != nil {
		log.Printf("[NOTIFY] skipping %s: %v", c.ID, err)
		return models.InboxMessage{}, false
	}

	var (
		other       *models.Profile
		mine, their models.MetricBag
	)
	if userID == c.InitiatorID {
		other, mine, their = c.Opponent, c.InitiatorResult, c.OpponentResult
	} else {
		other, mine, their = c.Initiator, c.OpponentResult, c.InitiatorResult
	}
	otherName := ""
	if other != nil {
		otherName = other.DisplayName
	}

	msg := models.InboxMessage{
		ID:          uuid.NewString(),
		RecipientID: userID,
		Sender:      SenderName,
		DedupeKey:   DedupeKey(c.ID, t.name),
		ChallengeID: c.ID,
		CreatedAt:   time.Now().UTC(),
	}

	variant := rules.VariantNew
	msg.Kind = models.MessageChallengeNew
	if t.name != NewChallenge {
		msg.Kind = models.MessageChallengeResult
		switch {
		case !c.Outcome.Computed():
			log.Printf("[NOTIFY] %s completed without an outcome, skipping", c.ID)
			return models.InboxMessage{}, false
		case c.Outcome.Kind == models.OutcomeTie:
			variant = rules.VariantTied
		case c.Outcome.WinnerID == userID:
			variant = rules.VariantWon
			hint := rule.WinRewardHint
			msg.RewardHint = &hint
		default:
			variant = rules.VariantLost
		}
	}
	msg.Subject, msg.Body = rule.NotificationText(variant, otherName, mine, their)
	return msg, true
}

// acknowledge writes the flag without blocking the caller. Failures are
// logged; the inbox dedupe absorbs the re-fire.
func (s *Synthesizer) acknowledge(challengeID string, flag models.AckFlag) {
	if s.acks == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.ackTimeout)
		defer cancel()
		if err := s.acks.MarkAcknowledged(ctx, challengeID, flag); err != nil {
			metrics.AckFailures.Inc()
			log.Printf("[NOTIFY] ack %s on %s failed: %v", flag, challengeID, err)
		}
	}()
}

// Wait blocks until every scheduled acknowledgment write has finished.
func (s *Synthesizer) Wait() {
	s.pending.Wait()
}
