package rtc

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/tejassgg/teamlabs-calls/internal/config"
	"github.com/tejassgg/teamlabs-calls/internal/media"
)

// stubSource yields a deviceless media handle; the peer connection falls
// back to recvonly transceivers so negotiation still works.
type stubSource struct{}

func (stubSource) Acquire() (*media.Handle, error)       { return media.NewStubHandle(), nil }
func (stubSource) Selector() *mediadevices.CodecSelector { return nil }

func newTestManager(t *testing.T, events Events) *Manager {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.ICE.URLs = nil // host candidates only
	return NewManager(cfg, stubSource{}, clock.New(), zap.NewNop(), events)
}

func TestCandidateRejectedBeforeRemoteDescription(t *testing.T) {
	m := newTestManager(t, Events{})
	defer m.Close()

	cand := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 54321 typ host"}
	if err := m.AddRemoteCandidate(cand); !errors.Is(err, ErrNoRemoteDescription) {
		t.Fatalf("err = %v, want ErrNoRemoteDescription", err)
	}

	if err := m.AddRemoteCandidate(webrtc.ICECandidateInit{}); !errors.Is(err, ErrEmptyCandidate) {
		t.Fatalf("empty candidate err = %v, want ErrEmptyCandidate", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	m := newTestManager(t, Events{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := m.StartAsCaller(ctx); err != nil {
		t.Fatalf("StartAsCaller: %v", err)
	}

	for i := 0; i < 5; i++ {
		m.Close()
	}
	if got := m.Phase(); got != PhaseClosed {
		t.Fatalf("phase = %v, want closed", got)
	}
	if err := m.AddRemoteCandidate(webrtc.ICECandidateInit{Candidate: "candidate:x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("candidate after close err = %v, want ErrClosed", err)
	}
}

func TestStartTwiceRejected(t *testing.T) {
	m := newTestManager(t, Events{})
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := m.StartAsCaller(ctx); err != nil {
		t.Fatalf("StartAsCaller: %v", err)
	}
	if _, err := m.StartAsCaller(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start err = %v, want ErrAlreadyStarted", err)
	}
}

func TestCalleeRejectsInvalidOffer(t *testing.T) {
	m := newTestManager(t, Events{})
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := m.StartAsCallee(ctx, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"})
	var negErr *NegotiationError
	if !errors.As(err, &negErr) {
		t.Fatalf("err = %v, want NegotiationError", err)
	}
}

// Full offer/answer round trip between two managers in one process. The
// descriptions carry host candidates, so no trickle exchange is needed.
func TestOfferAnswerRoundTripConnects(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping networked round trip in short mode")
	}

	caller := newTestManager(t, Events{})
	callee := newTestManager(t, Events{})
	defer caller.Close()
	defer callee.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	offer, err := caller.StartAsCaller(ctx)
	if err != nil {
		t.Fatalf("StartAsCaller: %v", err)
	}
	answer, err := callee.StartAsCallee(ctx, offer)
	if err != nil {
		t.Fatalf("StartAsCallee: %v", err)
	}
	if err := caller.ApplyRemoteAnswer(answer); err != nil {
		t.Fatalf("ApplyRemoteAnswer: %v", err)
	}

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if caller.Phase() == PhaseConnected && callee.Phase() == PhaseConnected {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("phases = %v / %v, want connected on both sides", caller.Phase(), callee.Phase())
}

// outboundSender builds a real RTP sender bound to a static sample track so
// toggle behavior can be observed without capture devices.
func outboundSender(t *testing.T) (*webrtc.PeerConnection, *webrtc.RTPSender, webrtc.TrackLocal) {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "teamlabs")
	if err != nil {
		t.Fatalf("NewTrackLocalStaticSample: %v", err)
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	return pc, sender, track
}

func TestToggleAudioSwapsSenderTrack(t *testing.T) {
	pc, sender, track := outboundSender(t)
	defer pc.Close()

	m := newTestManager(t, Events{})
	defer m.Close()
	m.mu.Lock()
	m.local = media.NewStubHandle()
	m.audioOut = &outboundTrack{sender: sender, track: track}
	m.mu.Unlock()

	muted, err := m.ToggleAudio()
	if err != nil {
		t.Fatalf("ToggleAudio: %v", err)
	}
	if !muted {
		t.Fatal("first toggle should mute")
	}
	if got := sender.Track(); got != nil {
		t.Fatalf("sender track after mute = %v, want nil", got)
	}

	muted, err = m.ToggleAudio()
	if err != nil {
		t.Fatalf("ToggleAudio: %v", err)
	}
	if muted {
		t.Fatal("second toggle should unmute")
	}
	if got := sender.Track(); got != track {
		t.Fatalf("sender track after unmute = %v, want the capture track restored", got)
	}
}

func TestToggleVideoSwapsSenderTrack(t *testing.T) {
	pc, sender, track := outboundSender(t)
	defer pc.Close()

	m := newTestManager(t, Events{})
	defer m.Close()
	m.mu.Lock()
	m.local = media.NewStubHandle()
	m.videoOut = &outboundTrack{sender: sender, track: track}
	m.mu.Unlock()

	disabled, err := m.ToggleVideo()
	if err != nil {
		t.Fatalf("ToggleVideo: %v", err)
	}
	if !disabled {
		t.Fatal("first toggle should disable the camera")
	}
	if got := sender.Track(); got != nil {
		t.Fatalf("sender track after disable = %v, want nil", got)
	}
	if m.LocalMedia().VideoEnabled() {
		t.Fatal("handle flag should mirror the sender state")
	}
}

func TestToggleWithoutLocalMediaRejected(t *testing.T) {
	m := newTestManager(t, Events{})
	defer m.Close()

	if _, err := m.ToggleAudio(); !errors.Is(err, ErrNoLocalMedia) {
		t.Fatalf("ToggleAudio err = %v, want ErrNoLocalMedia", err)
	}
	if _, err := m.ToggleVideo(); !errors.Is(err, ErrNoLocalMedia) {
		t.Fatalf("ToggleVideo err = %v, want ErrNoLocalMedia", err)
	}
}

// failingReader always errors; the drain loop must treat that as terminal
// instead of spinning on the same failure.
type failingReader struct {
	calls int
	err   error
}

func (r *failingReader) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	r.calls++
	return nil, nil, r.err
}

func TestDrainStopsOnPersistentReadError(t *testing.T) {
	for name, readErr := range map[string]error{
		"eof":       io.EOF,
		"transport": errors.New("srtp: session closed"),
	} {
		t.Run(name, func(t *testing.T) {
			m := newTestManager(t, Events{})
			defer m.Close()

			r := &failingReader{err: readErr}
			done := make(chan struct{})
			go func() {
				m.drainRTP(r, "audio")
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("drain did not stop on a failing reader")
			}
			if r.calls != 1 {
				t.Fatalf("reads = %d, want 1", r.calls)
			}
		})
	}
}
