package challenge

import (
	"context"
	"time"

	"github.com/playmatatu/duels/internal/models"
	"github.com/playmatatu/duels/internal/rules"
)

// Gateway is the only component that mutates challenge rows.
type Gateway interface {
	Create(ctx context.Context, gameID, initiatorID, opponentID string) (*models.Challenge, error)
	// FetchForUser returns every challenge where userID is a party, newest
	// first, optionally restricted to gameID.
	FetchForUser(ctx context.Context, userID, gameID string) ([]models.Challenge, error)
	SubmitResult(ctx context.Context, challengeID, userID string, bag models.MetricBag) (*models.Challenge, error)
	MarkAcknowledged(ctx context.Context, challengeID string, flag models.AckFlag) error
}

// Synthesizer turns a fresh batch into notifications for the viewing user and
// reports which acknowledgment flags it scheduled.
type Synthesizer interface {
	Synthesize(ctx context.Context, userID string, batch []models.Challenge) []Fired
}

// Fired names one trigger that produced (or re-produced) a notification.
type Fired struct {
	ChallengeID string
	Flag        models.AckFlag
}

// Alerter shows short-lived alerts to connected users.
type Alerter interface {
	Alert(userID string, alert models.Alert)
}

// ResolveRole maps userID to its role by identity. It never infers the role
// from which result is missing.
func ResolveRole(c *models.Challenge, userID string) (models.Role, error) {
	switch userID {
	case c.InitiatorID:
		return models.RoleInitiator, nil
	case c.OpponentID:
		return models.RoleOpponent, nil
	}
	return "", &RoleResolutionError{ChallengeID: c.ID, UserID: userID}
}

// Decide computes the outcome once both bags are present.
func Decide(rule rules.Rule, c *models.Challenge) models.Outcome {
	switch rule.Compare(c.InitiatorResult, c.OpponentResult) {
	case rules.FirstWins:
		return models.Outcome{Kind: models.OutcomeWinner, WinnerID: c.InitiatorID}
	case rules.SecondWins:
		return models.Outcome{Kind: models.OutcomeWinner, WinnerID: c.OpponentID}
	}
	return models.Outcome{Kind: models.OutcomeTie}
}

// ApplyResult is the in-memory form of the conditional result write. It
// mutates c and reports whether anything changed. A repeat write for a role
// already complete is a no-op.
func ApplyResult(c *models.Challenge, role models.Role, bag models.MetricBag, now time.Time) (bool, error) {
	switch role {
	case models.RoleInitiator:
		if c.InitiatorCompletedAt != nil {
			return false, nil
		}
		c.InitiatorResult = bag.Clone()
		c.InitiatorCompletedAt = &now
		return true, nil
	case models.RoleOpponent:
		if c.OpponentCompletedAt != nil {
			return false, nil
		}
		if c.InitiatorCompletedAt == nil {
			return false, &SequenceError{ChallengeID: c.ID}
		}
		rule, err := rules.Lookup(c.GameID)
		if err != nil {
			return false, err
		}
		c.OpponentResult = bag.Clone()
		c.OpponentCompletedAt = &now
		c.Outcome = Decide(rule, c)
		c.Status = models.StatusCompleted
		return true, nil
	}
	return false, &RoleResolutionError{ChallengeID: c.ID}
}
