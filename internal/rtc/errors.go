package rtc

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRemoteDescription is returned for ICE candidates that arrive
	// before the remote description is set. Callers drop such candidates;
	// they are never buffered or retroactively applied.
	ErrNoRemoteDescription = errors.New("remote description not set")

	// ErrEmptyCandidate is returned for candidates with no candidate string.
	ErrEmptyCandidate = errors.New("empty ICE candidate")

	// ErrAlreadyStarted is returned when a start operation is invoked twice
	// on the same manager. A manager serves exactly one call attempt.
	ErrAlreadyStarted = errors.New("connection manager already started")

	// ErrClosed is returned for operations on a closed manager.
	ErrClosed = errors.New("connection manager closed")

	// ErrNoLocalMedia is returned for media toggles before local media has
	// been acquired.
	ErrNoLocalMedia = errors.New("no local media acquired")
)

// NegotiationError covers malformed or missing offers/answers and failures
// while generating local descriptions.
type NegotiationError struct {
	Reason string
	Err    error
}

func (e *NegotiationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("negotiation failed: %s", e.Reason)
	}
	return fmt.Sprintf("negotiation failed: %s: %v", e.Reason, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// ConnectivityError covers ICE/transport failures after negotiation succeeded.
type ConnectivityError struct {
	Reason string
	Err    error
}

func (e *ConnectivityError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connection failed: %s", e.Reason)
	}
	return fmt.Sprintf("connection failed: %s: %v", e.Reason, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }
