package media

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the closed taxonomy of media acquisition failures.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	ErrPermissionDenied
	ErrDeviceNotFound
	ErrDeviceBusy
	ErrConstraintsNotSatisfiable
)

func (k ErrorKind) String() string {
	switch k {
	case ErrPermissionDenied:
		return "permission_denied"
	case ErrDeviceNotFound:
		return "device_not_found"
	case ErrDeviceBusy:
		return "device_busy"
	case ErrConstraintsNotSatisfiable:
		return "constraints_not_satisfiable"
	default:
		return "unknown"
	}
}

// userMessages are the fixed user-facing strings surfaced by the UI layer.
var userMessages = map[ErrorKind]string{
	ErrPermissionDenied:          "Camera and microphone access was denied. Check your device permissions and try again.",
	ErrDeviceNotFound:            "No camera or microphone was found on this device.",
	ErrDeviceBusy:                "The camera or microphone is already in use by another application.",
	ErrConstraintsNotSatisfiable: "The camera does not support the requested video quality.",
	ErrUnknown:                   "Could not access the camera or microphone.",
}

// Error wraps a device-layer failure with its taxonomy kind.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("media: %s", e.Kind)
	}
	return fmt.Sprintf("media: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Message returns the fixed user-facing message for this error's kind.
func (e *Error) Message() string { return userMessages[e.Kind] }

// AsError returns err as a *media.Error when it is one.
func AsError(err error) (*Error, bool) {
	var me *Error
	ok := errors.As(err, &me)
	return me, ok
}

// classify maps a raw driver error onto the closed taxonomy. The drivers do
// not expose typed errors, so this goes by the failure text they emit.
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "not allowed"),
		strings.Contains(msg, "operation not permitted"):
		return &Error{Kind: ErrPermissionDenied, Err: err}
	case strings.Contains(msg, "no such device"),
		strings.Contains(msg, "no such file"),
		strings.Contains(msg, "device not found"),
		strings.Contains(msg, "no available device"):
		return &Error{Kind: ErrDeviceNotFound, Err: err}
	case strings.Contains(msg, "device or resource busy"),
		strings.Contains(msg, "in use"),
		strings.Contains(msg, "busy"):
		return &Error{Kind: ErrDeviceBusy, Err: err}
	case strings.Contains(msg, "failed to find the best driver"),
		strings.Contains(msg, "constraint"),
		strings.Contains(msg, "unsupported"):
		return &Error{Kind: ErrConstraintsNotSatisfiable, Err: err}
	default:
		return &Error{Kind: ErrUnknown, Err: err}
	}
}
