package session

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected   = errors.New("not connected")
	ErrNotJoined      = errors.New("no room joined")
	ErrJoinFailed     = errors.New("join failed")
	ErrCallInProgress = errors.New("a call is already in progress")
	ErrNoPendingOffer = errors.New("no pending offer")
	ErrMediaFailed    = errors.New("failed to acquire media")
	ErrClosed         = errors.New("session closed")
)

// SessionError annotates a failure with the operation that produced it.
type SessionError struct {
	Op      string
	Err     error
	Details string
}

func (e *SessionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func newError(op string, err error) *SessionError {
	return &SessionError{Op: op, Err: err}
}

func wrapError(op string, err error, details string) *SessionError {
	return &SessionError{Op: op, Err: err, Details: details}
}
