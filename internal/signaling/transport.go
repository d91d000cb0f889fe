package signaling

import "context"

// Transport carries signaling events to and from the other call participant.
// Delivery is at-least-once and unordered across event names; consumers must
// tolerate duplicates.
type Transport interface {
	// Send transmits an event. Best-effort: an error means the event was
	// not handed to the transport, not that the peer rejected it.
	Send(ctx context.Context, ev Event) error

	// Subscribe returns a channel of inbound events for one conversation,
	// plus a cancel function that must be called to release the
	// subscription. Events for other conversations are not delivered.
	Subscribe(conversationID string) (<-chan Event, func())

	// Close shuts the transport down and closes all subscription channels.
	Close() error
}
