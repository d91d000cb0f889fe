// Package session holds the call session state machine: one current session,
// the transition table between its statuses and the ring-window timers that
// drive the Missed and auto-Declined outcomes.
package session

// Status is the call session lifecycle state. The Store is the single
// writer; other components only read snapshots.
type Status int

const (
	StatusIdle Status = iota
	StatusRinging
	StatusNegotiating
	StatusConnected
	StatusEnded
	StatusFailed
	StatusDeclined
	StatusMissed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRinging:
		return "ringing"
	case StatusNegotiating:
		return "negotiating"
	case StatusConnected:
		return "connected"
	case StatusEnded:
		return "ended"
	case StatusFailed:
		return "failed"
	case StatusDeclined:
		return "declined"
	case StatusMissed:
		return "missed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status ends the session. The only exit from a
// terminal status is Reset back to Idle on UI dismissal.
func (s Status) Terminal() bool {
	switch s {
	case StatusEnded, StatusFailed, StatusDeclined, StatusMissed:
		return true
	default:
		return false
	}
}

// Direction distinguishes calls we placed from calls we received.
type Direction int

const (
	DirectionOutgoing Direction = iota
	DirectionIncoming
)

func (d Direction) String() string {
	if d == DirectionIncoming {
		return "incoming"
	}
	return "outgoing"
}
