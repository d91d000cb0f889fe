package signaling

import (
	"context"
	"errors"
	"sync"
)

// subscriberBuffer bounds each subscription channel; a slow consumer drops
// events rather than blocking the transport.
const subscriberBuffer = 32

// deliveredName maps an outbound event name to the name the other side
// receives, mirroring what the signaling server does.
func deliveredName(name string) (string, bool) {
	switch name {
	case EventInitiate:
		return EventIncoming, true
	case EventAnswer:
		return EventAnswered, true
	case EventDecline:
		return EventDeclined, true
	case EventEnd:
		return EventEnded, true
	case EventCandidate:
		return EventCandidate, true
	default:
		// call.missed and already-delivered names terminate at the
		// server; nothing reaches the other participant.
		return "", false
	}
}

// Loopback is an in-memory transport endpoint wired directly to a peer
// endpoint, standing in for the signaling server in tests and local demos.
type Loopback struct {
	mu     sync.Mutex
	peer   *Loopback
	subs   map[string]map[int]chan Event
	nextID int
	sent   []Event
	closed bool
}

// NewLoopbackPair returns two connected endpoints. Events sent on one are
// delivered to the other's subscribers under the server-translated name.
func NewLoopbackPair() (*Loopback, *Loopback) {
	a := &Loopback{subs: make(map[string]map[int]chan Event)}
	b := &Loopback{subs: make(map[string]map[int]chan Event)}
	a.peer = b
	b.peer = a
	return a, b
}

// Send records the event and delivers it to the peer endpoint.
func (l *Loopback) Send(_ context.Context, ev Event) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errors.New("loopback transport closed")
	}
	l.sent = append(l.sent, ev)
	peer := l.peer
	l.mu.Unlock()

	name, forwarded := deliveredName(ev.Name)
	if !forwarded {
		return nil
	}
	delivered := ev
	delivered.Name = name
	peer.dispatch(delivered)
	return nil
}

// Subscribe registers a consumer for one conversation's events.
func (l *Loopback) Subscribe(conversationID string) (<-chan Event, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if l.closed {
		close(ch)
		return ch, func() {}
	}

	id := l.nextID
	l.nextID++
	if l.subs[conversationID] == nil {
		l.subs[conversationID] = make(map[int]chan Event)
	}
	l.subs[conversationID][id] = ch

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if set, ok := l.subs[conversationID]; ok {
			if c, ok := set[id]; ok {
				delete(set, id)
				close(c)
			}
		}
	}
	return ch, cancel
}

// Close closes all subscription channels on this endpoint.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for _, set := range l.subs {
		for id, ch := range set {
			delete(set, id)
			close(ch)
		}
	}
	return nil
}

// SentEvents returns a copy of every event passed to Send, including events
// the server would not forward, such as call.missed.
func (l *Loopback) SentEvents() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.sent))
	copy(out, l.sent)
	return out
}

func (l *Loopback) dispatch(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	for _, ch := range l.subs[ev.ConversationID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
