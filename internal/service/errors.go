package service

import (
	"errors"
	"fmt"

	"levelup-engine/internal/repository"
)

// Error kinds. Every error returned by this package that callers are expected
// to branch on matches one of these with errors.Is.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrPersistence      = errors.New("persistence failure")
	ErrBadgePersistence = errors.New("badge persistence failure")
)

// Specific errors.
var (
	ErrInvalidAmount      = kind(ErrValidation, "xp amount out of range")
	ErrMissingField       = kind(ErrValidation, "required field missing")
	ErrUnknownRanking     = kind(ErrValidation, "unknown leaderboard type")
	ErrUnknownTimeframe   = kind(ErrValidation, "unknown leaderboard timeframe")
	ErrRewardInactive     = kind(ErrValidation, "reward is not active")
	ErrRequirementsNotMet = kind(ErrValidation, "reward requirements not met")
	ErrAlreadyClaimed     = kind(ErrValidation, "reward already claimed")
	ErrClaimCooldown      = kind(ErrValidation, "reward claimed too recently")

	ErrMemberNotFound = kindOf(ErrNotFound, repository.ErrMemberNotFound)
	ErrBadgeNotFound  = kindOf(ErrNotFound, repository.ErrBadgeNotFound)
	ErrRewardNotFound = kindOf(ErrNotFound, repository.ErrRewardNotFound)

	ErrUnknownRewardType = errors.New("no handler for reward type")
)

// kindError tags a specific error with its kind so both match errors.Is.
type kindError struct {
	kind error
	err  error
}

func kind(k error, msg string) error {
	return &kindError{kind: k, err: errors.New(msg)}
}

func kindOf(k, err error) error {
	return &kindError{kind: k, err: err}
}

func (e *kindError) Error() string { return e.err.Error() }

func (e *kindError) Unwrap() []error { return []error{e.kind, e.err} }

// missing reports a missing required field.
func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

// notFoundOr maps repository not-found errors to their service errors and
// everything else to a persistence failure.
func notFoundOr(err error, what string) error {
	switch {
	case errors.Is(err, repository.ErrMemberNotFound):
		return ErrMemberNotFound
	case errors.Is(err, repository.ErrBadgeNotFound):
		return ErrBadgeNotFound
	case errors.Is(err, repository.ErrRewardNotFound):
		return ErrRewardNotFound
	}
	return fmt.Errorf("%w: failed to %s: %w", ErrPersistence, what, err)
}
