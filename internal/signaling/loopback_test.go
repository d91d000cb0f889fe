package signaling

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("subscription channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestLoopbackTranslatesOutboundNames(t *testing.T) {
	a, b := NewLoopbackPair()
	ch, cancel := b.Subscribe("c1")
	defer cancel()

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}
	if err := a.Send(context.Background(), NewInitiate("c1", "u1", "Alice", offer)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ev := recvEvent(t, ch)
	if ev.Name != EventIncoming {
		t.Fatalf("delivered name = %q, want %q", ev.Name, EventIncoming)
	}
	if ev.CallerName != "Alice" || ev.Offer == nil {
		t.Fatalf("payload not carried through: %+v", ev)
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n"}
	chA, cancelA := a.Subscribe("c1")
	defer cancelA()
	if err := b.Send(context.Background(), NewAnswer("c1", answer)); err != nil {
		t.Fatalf("Send answer: %v", err)
	}
	if ev := recvEvent(t, chA); ev.Name != EventAnswered {
		t.Fatalf("delivered name = %q, want %q", ev.Name, EventAnswered)
	}
}

func TestLoopbackMissedTerminatesAtServer(t *testing.T) {
	a, b := NewLoopbackPair()
	ch, cancel := b.Subscribe("c1")
	defer cancel()

	if err := a.Send(context.Background(), NewMissed("c1", "u1", 30)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case ev := <-ch:
		t.Fatalf("call.missed leaked to the peer: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	sent := a.SentEvents()
	if len(sent) != 1 || sent[0].Name != EventMissed || sent[0].RingDuration != 30 {
		t.Fatalf("SentEvents = %+v, want one call.missed with ringDuration 30", sent)
	}
}

func TestLoopbackScopesByConversation(t *testing.T) {
	a, b := NewLoopbackPair()
	ch, cancel := b.Subscribe("other")
	defer cancel()

	if err := a.Send(context.Background(), NewDecline("c1", 5)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case ev := <-ch:
		t.Fatalf("event for c1 delivered to subscriber of other: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLoopbackSubscriptionCancelCloses(t *testing.T) {
	a, b := NewLoopbackPair()
	ch, cancel := b.Subscribe("c1")
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after cancel")
	}
	// cancelling twice must not panic
	cancel()

	// sends after cancel are dropped silently
	if err := a.Send(context.Background(), NewDecline("c1", 1)); err != nil {
		t.Fatalf("Send after cancel: %v", err)
	}
}

func TestEventWireFormat(t *testing.T) {
	cand := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 127.0.0.1 1 typ host"}
	raw, err := json.Marshal(NewCandidate("c1", cand))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := fields["conversationId"]; !ok {
		t.Fatalf("missing conversationId field: %s", raw)
	}
	if _, ok := fields["candidate"]; !ok {
		t.Fatalf("missing candidate field: %s", raw)
	}
	// the name rides as the JSON-RPC method, never in the payload
	if _, ok := fields["Name"]; ok {
		t.Fatalf("event name leaked into payload: %s", raw)
	}
}
