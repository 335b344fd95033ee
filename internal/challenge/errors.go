package challenge

import (
	"errors"
	"fmt"

	"github.com/playmatatu/duels/internal/rules"
)

var (
	ErrNotFound      = errors.New("challenge not found")
	ErrSelfChallenge = errors.New("cannot challenge yourself")
	ErrMissingParty  = errors.New("initiator and opponent are required")
	ErrEmptyResult   = errors.New("result metrics are required")
)

// StoreError wraps a remote store failure. The store state is unchanged.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// RoleResolutionError means the acting user is neither party of the challenge.
type RoleResolutionError struct {
	ChallengeID string
	UserID      string
}

func (e *RoleResolutionError) Error() string {
	return fmt.Sprintf("user %s is not a party to challenge %s", e.UserID, e.ChallengeID)
}

// SequenceError is returned when the opponent submits before the initiator.
type SequenceError struct {
	ChallengeID string
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("challenge %s: initiator has not played yet", e.ChallengeID)
}

func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

func IsRoleError(err error) bool {
	var re *RoleResolutionError
	return errors.As(err, &re)
}

func IsSequenceError(err error) bool {
	var se *SequenceError
	return errors.As(err, &se)
}

func IsConfigError(err error) bool {
	var ce *rules.ConfigError
	return errors.As(err, &ce)
}
