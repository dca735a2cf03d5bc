package lifecycle

import (
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned when the session does not exist for the user.
	ErrSessionNotFound = errors.New("lifecycle: session not found")

	// ErrInvalidTransition is returned when the session's current status
	// does not allow the requested transition.
	ErrInvalidTransition = errors.New("lifecycle: invalid session transition")

	// ErrInvalidSession is returned for an unknown session type or a
	// non-positive duration.
	ErrInvalidSession = errors.New("lifecycle: invalid session")

	// ErrRateLimited is returned when the user started too many sessions.
	ErrRateLimited = errors.New("lifecycle: too many session starts")

	// ErrDistractionLimited is returned when the user cancelled too many sessions.
	ErrDistractionLimited = errors.New("lifecycle: too many cancellations")
)

// LimitError reports a rejected call along with what is known about the limit.
// It wraps ErrRateLimited or ErrDistractionLimited.
type LimitError struct {
	Err        error
	Remaining  int
	RetryAfter time.Duration // zero when unknown
}

func (e *LimitError) Error() string {
	return e.Err.Error()
}

func (e *LimitError) Unwrap() error {
	return e.Err
}
