package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every specific error below wraps exactly one of these so the
// HTTP boundary can classify it with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrAuthentication = errors.New("authentication required")
	ErrAuthorization  = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal server error")
)

// Domain errors
var (
	ErrInvalidRequest     = fmt.Errorf("%w: invalid request", ErrValidation)
	ErrMissingUserID      = fmt.Errorf("%w: user id is required", ErrValidation)
	ErrMissingLevelID     = fmt.Errorf("%w: level id is required", ErrValidation)
	ErrMissingSessionID   = fmt.Errorf("%w: session id is required", ErrValidation)
	ErrInvalidStatus      = fmt.Errorf("%w: status must be COMPLETED, ABANDONED or FAILED", ErrValidation)
	ErrNegativeAmount     = fmt.Errorf("%w: amount must be a non-negative number", ErrValidation)
	ErrCounterOverflow    = fmt.Errorf("%w: amount would overflow a profile counter", ErrValidation)
	ErrInvalidPeriod      = fmt.Errorf("%w: period must be ALLTIME, WEEKLY or DAILY", ErrValidation)
	ErrInvalidUsername    = fmt.Errorf("%w: username must be 3-32 characters", ErrValidation)
	ErrInvalidEmail       = fmt.Errorf("%w: email is invalid", ErrValidation)
	ErrWeakPassword       = fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	ErrUnknownCondition   = fmt.Errorf("%w: unknown achievement condition", ErrValidation)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", ErrAuthentication)
	ErrMissingToken       = fmt.Errorf("%w: missing bearer token", ErrAuthentication)
	ErrInvalidToken       = fmt.Errorf("%w: invalid or expired token", ErrAuthentication)
	ErrNotOwner           = fmt.Errorf("%w: caller does not own this resource", ErrAuthorization)
	ErrAdminOnly          = fmt.Errorf("%w: operator key required", ErrAuthorization)

	ErrUserNotFound        = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrProfileNotFound     = fmt.Errorf("%w: profile not found", ErrNotFound)
	ErrLevelNotFound       = fmt.Errorf("%w: level not found", ErrNotFound)
	ErrProgressNotFound    = fmt.Errorf("%w: level progress not found", ErrNotFound)
	ErrSessionNotFound     = fmt.Errorf("%w: session not found", ErrNotFound)
	ErrAchievementNotFound = fmt.Errorf("%w: achievement not found", ErrNotFound)
	ErrPlayerNotRanked     = fmt.Errorf("%w: player not found in leaderboard", ErrNotFound)

	ErrUserExists          = fmt.Errorf("%w: username or email already registered", ErrConflict)
	ErrLevelExists         = fmt.Errorf("%w: level number already exists", ErrConflict)
	ErrAlreadyUnlocked     = fmt.Errorf("%w: achievement already unlocked", ErrConflict)
	ErrSessionTerminal     = fmt.Errorf("%w: session already ended", ErrConflict)
	ErrRecomputeInProgress = fmt.Errorf("%w: leaderboard recompute already running", ErrConflict)
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is caused by malformed input
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflictError checks if an error is a duplicate or illegal-transition error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}
