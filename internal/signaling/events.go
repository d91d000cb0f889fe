// Package signaling defines the call signaling event model and the transport
// that carries events between call participants. The wire framing is
// JSON-RPC notifications: method = event name, params = payload.
package signaling

import (
	"time"

	"github.com/pion/webrtc/v4"
)

// Event names. Present-tense names are requests we send; past-tense names
// are the server-surfaced counterparts delivered to the other side.
const (
	EventInitiate  = "call.initiate"
	EventIncoming  = "call.incoming"
	EventAnswer    = "call.answer"
	EventAnswered  = "call.answered"
	EventDecline   = "call.decline"
	EventDeclined  = "call.declined"
	EventEnd       = "call.end"
	EventEnded     = "call.ended"
	EventCandidate = "call.ice-candidate"
	EventMissed    = "call.missed"
)

// Event is one signaling message. Name selects which payload fields are
// meaningful; unused fields stay zero and are omitted on the wire.
type Event struct {
	Name           string                     `json:"-"`
	ConversationID string                     `json:"conversationId"`
	CallerID       string                     `json:"callerId,omitempty"`
	CallerName     string                     `json:"callerName,omitempty"`
	Offer          *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer         *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate      *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	RingDuration   int                        `json:"ringDuration,omitempty"`
	CallStartTime  *time.Time                 `json:"callStartTime,omitempty"`
	CallDuration   int                        `json:"callDuration,omitempty"`
}

// NewInitiate builds the caller's call request carrying the SDP offer.
func NewInitiate(conversationID, callerID, callerName string, offer webrtc.SessionDescription) Event {
	return Event{
		Name:           EventInitiate,
		ConversationID: conversationID,
		CallerID:       callerID,
		CallerName:     callerName,
		Offer:          &offer,
	}
}

// NewAnswer builds the callee's answer carrying the SDP answer.
func NewAnswer(conversationID string, answer webrtc.SessionDescription) Event {
	return Event{
		Name:           EventAnswer,
		ConversationID: conversationID,
		Answer:         &answer,
	}
}

// NewDecline builds a decline with the elapsed ring duration in seconds.
func NewDecline(conversationID string, ringSeconds int) Event {
	return Event{
		Name:           EventDecline,
		ConversationID: conversationID,
		RingDuration:   ringSeconds,
	}
}

// NewEnd builds a hang-up carrying the call start time and duration.
func NewEnd(conversationID string, startedAt time.Time, durationSeconds int) Event {
	ev := Event{
		Name:           EventEnd,
		ConversationID: conversationID,
		CallDuration:   durationSeconds,
	}
	if !startedAt.IsZero() {
		ev.CallStartTime = &startedAt
	}
	return ev
}

// NewCandidate builds a trickle ICE relay event.
func NewCandidate(conversationID string, candidate webrtc.ICECandidateInit) Event {
	return Event{
		Name:           EventCandidate,
		ConversationID: conversationID,
		Candidate:      &candidate,
	}
}

// NewMissed builds the best-effort missed-call report sent to the server
// when an outgoing ring window expires.
func NewMissed(conversationID, callerID string, ringSeconds int) Event {
	return Event{
		Name:           EventMissed,
		ConversationID: conversationID,
		CallerID:       callerID,
		RingDuration:   ringSeconds,
	}
}
