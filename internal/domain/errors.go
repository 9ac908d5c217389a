package domain

import "github.com/cockroachdb/errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")

	ErrInvalidWindow          = errors.New("invalid booking window")
	ErrCapacityExceeded       = errors.New("guest count exceeds listing capacity")
	ErrAvailabilityConflict   = errors.New("availability conflict")
	ErrUpstreamUnavailable    = errors.New("upstream unavailable")
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrUnavailable is reported by the advisory check; ErrSlotTaken by a commit
	// that lost the race. Both match ErrAvailabilityConflict.
	ErrUnavailable = errors.Wrap(ErrAvailabilityConflict, "requested window is not available")
	ErrSlotTaken   = errors.Wrap(ErrAvailabilityConflict, "slot no longer available")

	ErrIntentExpired     = errors.New("booking intent expired")
	ErrIntentMismatch    = errors.New("booking intent belongs to another listing")
	ErrIntentConsumed    = errors.New("booking intent already committed")
	ErrNotReady          = errors.New("booking intent is not ready to commit")
	ErrCommitInProgress  = errors.New("commit in progress")
	ErrInvalidTransition = errors.New("invalid reservation status transition")

	// ErrHoldExpired matches ErrInvalidTransition.
	ErrHoldExpired = errors.Wrap(ErrInvalidTransition, "hold expired before confirmation")
)

// IsRetryable reports whether the caller may retry the same request unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrSerializationFailure)
}
