package domain

import "errors"

// Domain errors
var (
	ErrProfileNotFound    = errors.New("profile not found")
	ErrGameNotFound       = errors.New("game not found")
	ErrContentNotFound    = errors.New("content not found")
	ErrGameLocked         = errors.New("game is locked")
	ErrAlreadyCompleted   = errors.New("content already completed")
	ErrAlreadyUnlocked    = errors.New("game already unlocked")
	ErrInsufficientFunds  = errors.New("insufficient coins")
	ErrActionInFlight     = errors.New("action already in progress")
	ErrInvariantViolation = errors.New("ledger totals violate invariants")
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInternalError      = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrProfileNotFound) ||
		errors.Is(err, ErrGameNotFound) ||
		errors.Is(err, ErrContentNotFound)
}

// IsBusinessOutcome reports whether err is an expected ledger outcome rather
// than a failure: the action was refused but nothing went wrong.
func IsBusinessOutcome(err error) bool {
	return errors.Is(err, ErrAlreadyCompleted) ||
		errors.Is(err, ErrAlreadyUnlocked) ||
		errors.Is(err, ErrInsufficientFunds)
}

// errorCodes are the stable wire names of the domain errors
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrProfileNotFound, "profile_not_found"},
	{ErrGameNotFound, "game_not_found"},
	{ErrContentNotFound, "content_not_found"},
	{ErrGameLocked, "game_locked"},
	{ErrAlreadyCompleted, "already_completed"},
	{ErrAlreadyUnlocked, "already_unlocked"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrActionInFlight, "action_in_flight"},
	{ErrInvariantViolation, "invariant_violation"},
	{ErrAccountExists, "account_exists"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrUnauthorized, "unauthorized"},
	{ErrRateLimited, "rate_limited"},
	{ErrInvalidRequest, "invalid_request"},
	{ErrInternalError, "internal_error"},
}

// ErrorCode returns the wire code of the domain error wrapped by err, or
// "internal_error" when err wraps none.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal_error"
}

// ErrorFromCode maps a wire code back to its domain error, or nil for an
// unknown code
func ErrorFromCode(code string) error {
	for _, ec := range errorCodes {
		if ec.code == code {
			return ec.err
		}
	}
	return nil
}
