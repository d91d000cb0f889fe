// Package rtc owns the peer connection for a single call attempt: local
// description generation, remote description application, trickle ICE relay
// and periodic connection-quality sampling.
package rtc

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/tejassgg/teamlabs-calls/internal/config"
	"github.com/tejassgg/teamlabs-calls/internal/media"
	"github.com/tejassgg/teamlabs-calls/internal/validate"
)

const metricsRingCapacity = 120

// MediaSource provides the local capture stream and the codec selector that
// must be registered with the peer connection's media engine.
type MediaSource interface {
	Acquire() (*media.Handle, error)
	Selector() *mediadevices.CodecSelector
}

// Events are the manager's outward-facing hooks. All are optional; nil hooks
// are skipped. Hooks are invoked from pion callback goroutines and must not
// call back into the manager synchronously except for Close, which is safe.
type Events struct {
	// OnLocalCandidate relays a freshly gathered ICE candidate to the
	// signaling transport. Fires only after local description generation
	// has begun, so the ordering guarantee of signaling holds for free.
	OnLocalCandidate func(webrtc.ICECandidateInit)
	// OnPhase fires after every phase change.
	OnPhase func(Phase)
	// OnQuality fires after every recomputed quality sample.
	OnQuality func(Quality)
	// OnRemoteTrack fires once per inbound track.
	OnRemoteTrack func(*webrtc.TrackRemote)
}

// RemoteMedia holds the inbound tracks. Set at most once per kind; may stay
// empty when the remote side never sends tracks.
type RemoteMedia struct {
	mu    sync.Mutex
	audio *webrtc.TrackRemote
	video *webrtc.TrackRemote
}

// HasTracks reports whether any inbound track has arrived.
func (r *RemoteMedia) HasTracks() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.audio != nil || r.video != nil
}

// store keeps the first track per kind; later tracks of the same kind are
// ignored. Returns true when the track was the first of its kind.
func (r *RemoteMedia) store(track *webrtc.TrackRemote) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch track.Kind() {
	case webrtc.RTPCodecTypeAudio:
		if r.audio != nil {
			return false
		}
		r.audio = track
	case webrtc.RTPCodecTypeVideo:
		if r.video != nil {
			return false
		}
		r.video = track
	default:
		return false
	}
	return true
}

// outboundTrack pairs an RTP sender with the capture track it transmits, so
// the track can be detached and reattached for mute/camera toggles.
type outboundTrack struct {
	sender *webrtc.RTPSender
	track  webrtc.TrackLocal
}

// Manager handles the WebRTC connection for exactly one call attempt. It is
// never reused: a new attempt always constructs a new Manager.
type Manager struct {
	iceCfg          config.ICEConfig
	qualityInterval time.Duration
	source          MediaSource
	logger          *zap.Logger
	clk             clock.Clock
	events          Events
	metrics         *MetricsRing

	mu            sync.Mutex
	pc            *webrtc.PeerConnection
	local         *media.Handle
	audioOut      *outboundTrack
	videoOut      *outboundTrack
	remote        *RemoteMedia
	phase         Phase
	quality       Quality
	remoteDescSet bool
	started       bool
	closed        bool

	done chan struct{}
}

// NewManager creates a manager for one call attempt.
func NewManager(cfg *config.Config, source MediaSource, clk clock.Clock, logger *zap.Logger, events Events) *Manager {
	return &Manager{
		iceCfg:          cfg.ICE,
		qualityInterval: cfg.Timeouts.QualityInterval,
		source:          source,
		logger:          logger.Named("rtc"),
		clk:             clk,
		events:          events,
		metrics:         NewMetricsRing(metricsRingCapacity),
		remote:          &RemoteMedia{},
		phase:           PhaseUnstarted,
		quality:         QualityUnknown,
		done:            make(chan struct{}),
	}
}

// Phase returns the current connection phase.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Quality returns the most recent quality sample bucket.
func (m *Manager) Quality() Quality {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quality
}

// LocalMedia returns the owned local media handle, nil before start.
func (m *Manager) LocalMedia() *media.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.local
}

// Remote returns the inbound media holder.
func (m *Manager) Remote() *RemoteMedia {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remote
}

// Metrics returns the quality sample ring.
func (m *Manager) Metrics() *MetricsRing { return m.metrics }

// StartAsCaller acquires media, builds the peer connection and returns the
// local offer for transmission. The ring timeout for the unanswered call is
// owned by the session store, not armed here.
func (m *Manager) StartAsCaller(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := m.begin(); err != nil {
		return webrtc.SessionDescription{}, err
	}

	m.setPhase(PhaseOffering)

	m.mu.Lock()
	pc := m.pc
	m.mu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, m.failNegotiation("create offer", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, m.failNegotiation("set local description", err)
	}
	if err := m.waitGathering(ctx, pc); err != nil {
		return webrtc.SessionDescription{}, err
	}

	m.logger.Info("local offer created")
	return *pc.LocalDescription(), nil
}

// StartAsCallee acquires media, builds the peer connection, applies the
// remote offer and returns the local answer for transmission.
func (m *Manager) StartAsCallee(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := validate.ValidateSDP(&offer); err != nil {
		return webrtc.SessionDescription{}, &NegotiationError{Reason: "invalid offer", Err: err}
	}
	if err := m.begin(); err != nil {
		return webrtc.SessionDescription{}, err
	}

	m.setPhase(PhaseAnswering)

	m.mu.Lock()
	pc := m.pc
	m.mu.Unlock()

	if err := pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, m.failNegotiation("set remote offer", err)
	}
	m.mu.Lock()
	m.remoteDescSet = true
	m.mu.Unlock()

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, m.failNegotiation("create answer", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, m.failNegotiation("set local description", err)
	}
	if err := m.waitGathering(ctx, pc); err != nil {
		return webrtc.SessionDescription{}, err
	}

	m.setPhase(PhaseChecking)
	m.logger.Info("local answer created")
	return *pc.LocalDescription(), nil
}

// ApplyRemoteAnswer applies the callee's answer on the caller side. Receipt
// of the answer does not confirm establishment; only ICE state events do.
func (m *Manager) ApplyRemoteAnswer(answer webrtc.SessionDescription) error {
	if err := validate.ValidateSDP(&answer); err != nil {
		return &NegotiationError{Reason: "invalid answer", Err: err}
	}

	m.mu.Lock()
	pc := m.pc
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if pc == nil {
		return &NegotiationError{Reason: "no peer connection"}
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return m.failNegotiation("set remote answer", err)
	}

	m.mu.Lock()
	m.remoteDescSet = true
	m.mu.Unlock()

	m.setPhase(PhaseChecking)
	return nil
}

// AddRemoteCandidate applies a trickled candidate. Candidates arriving before
// the remote description are rejected with ErrNoRemoteDescription; the caller
// drops them and they are never replayed.
func (m *Manager) AddRemoteCandidate(cand webrtc.ICECandidateInit) error {
	if cand.Candidate == "" {
		return ErrEmptyCandidate
	}

	m.mu.Lock()
	pc := m.pc
	ready := m.remoteDescSet
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if pc == nil || !ready {
		return ErrNoRemoteDescription
	}
	if err := pc.AddICECandidate(cand); err != nil {
		return &ConnectivityError{Reason: "apply ICE candidate", Err: err}
	}
	return nil
}

// Close releases everything the attempt owns: local media tracks, the peer
// connection and the remote media reference. Idempotent; safe from any phase.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.done)
	pc := m.pc
	local := m.local
	m.pc = nil
	m.local = nil
	m.audioOut = nil
	m.videoOut = nil
	m.remote = &RemoteMedia{}
	m.phase = PhaseClosed
	m.quality = QualityUnknown
	m.mu.Unlock()

	if local != nil {
		local.Stop()
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			m.logger.Warn("peer connection close", zap.Error(err))
		}
	}

	if m.events.OnPhase != nil {
		m.events.OnPhase(PhaseClosed)
	}
	m.logger.Info("connection closed")
}

// begin acquires local media and constructs the peer connection. At most one
// successful begin per manager.
func (m *Manager) begin() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	m.setPhase(PhaseGatheringMedia)

	handle, err := m.source.Acquire()
	if err != nil {
		m.setPhase(PhaseFailed)
		return &NegotiationError{Reason: "media acquisition failed", Err: err}
	}

	pc, audioOut, videoOut, err := m.buildPeerConnection(handle)
	if err != nil {
		handle.Stop()
		m.setPhase(PhaseFailed)
		return &NegotiationError{Reason: "peer connection setup", Err: err}
	}

	m.mu.Lock()
	m.local = handle
	m.pc = pc
	m.audioOut = audioOut
	m.videoOut = videoOut
	m.mu.Unlock()

	go m.qualityLoop()
	return nil
}

func (m *Manager) buildPeerConnection(handle *media.Handle) (*webrtc.PeerConnection, *outboundTrack, *outboundTrack, error) {
	mediaEngine := webrtc.MediaEngine{}
	if selector := m.source.Selector(); selector != nil {
		selector.Populate(&mediaEngine)
	} else if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, nil, nil, err
	}

	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetICETimeouts(
		m.iceCfg.DisconnectedTimeout,
		m.iceCfg.FailedTimeout,
		m.iceCfg.KeepAliveInterval,
	)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(&mediaEngine),
		webrtc.WithSettingEngine(settingEngine),
	)

	pcConfig := webrtc.Configuration{
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
	}
	if len(m.iceCfg.URLs) > 0 {
		pcConfig.ICEServers = []webrtc.ICEServer{{
			URLs:       m.iceCfg.URLs,
			Username:   m.iceCfg.Username,
			Credential: m.iceCfg.Credential,
		}}
	}

	pc, err := api.NewPeerConnection(pcConfig)
	if err != nil {
		return nil, nil, nil, err
	}

	var audioOut, videoOut *outboundTrack
	tracks := handle.Tracks()
	if len(tracks) == 0 {
		// No capture devices: recvonly transceivers so the description
		// still carries valid m-lines with ICE credentials.
		if err := addRecvOnlyTransceivers(pc); err != nil {
			_ = pc.Close()
			return nil, nil, nil, err
		}
	} else {
		for _, track := range tracks {
			transceiver, err := pc.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionSendrecv,
			})
			if err != nil {
				_ = pc.Close()
				return nil, nil, nil, err
			}
			out := &outboundTrack{sender: transceiver.Sender(), track: track}
			switch track.Kind() {
			case webrtc.RTPCodecTypeAudio:
				audioOut = out
			case webrtc.RTPCodecTypeVideo:
				videoOut = out
			}
		}
	}

	m.setupCallbacks(pc)
	return pc, audioOut, videoOut, nil
}

func addRecvOnlyTransceivers(pc *webrtc.PeerConnection) error {
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}
	return nil
}

// register all callbacks in one place
func (m *Manager) setupCallbacks(pc *webrtc.PeerConnection) {
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			// nil candidate signals end of gathering
			return
		}
		m.logger.Debug("local ICE candidate", zap.String("candidate", candidate.String()))
		if m.events.OnLocalCandidate != nil {
			m.events.OnLocalCandidate(candidate.ToJSON())
		}
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		m.logger.Info("ICE connection state", zap.String("state", state.String()))
		switch state {
		case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
			m.setQuality(QualityGood)
			m.setPhase(PhaseConnected)
		case webrtc.ICEConnectionStateDisconnected:
			m.setQuality(QualityBad)
			m.setPhase(PhaseDisconnected)
		case webrtc.ICEConnectionStateFailed:
			m.setQuality(QualityBad)
			m.setPhase(PhaseFailed)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.logger.Info("remote track",
			zap.String("id", track.ID()),
			zap.String("kind", track.Kind().String()),
			zap.String("codec", track.Codec().MimeType))

		if !m.Remote().store(track) {
			return
		}
		if m.events.OnRemoteTrack != nil {
			m.events.OnRemoteTrack(track)
		}
		m.setPhase(PhaseConnected)
		go m.pumpRemoteTrack(track)
	})
}

// ToggleAudio pauses or resumes outbound audio by detaching the capture
// track from its RTP sender, so a muted microphone transmits nothing.
// Returns the new muted state.
func (m *Manager) ToggleAudio() (bool, error) {
	return m.toggleOutbound(func() *outboundTrack { return m.audioOut }, (*media.Handle).ToggleAudio, "audio")
}

// ToggleVideo pauses or resumes outbound video the same way. Returns the new
// disabled state.
func (m *Manager) ToggleVideo() (bool, error) {
	return m.toggleOutbound(func() *outboundTrack { return m.videoOut }, (*media.Handle).ToggleVideo, "video")
}

func (m *Manager) toggleOutbound(pick func() *outboundTrack, flip func(*media.Handle) bool, kind string) (bool, error) {
	m.mu.Lock()
	handle := m.local
	out := pick()
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return false, ErrClosed
	}
	if handle == nil {
		return false, ErrNoLocalMedia
	}

	paused := flip(handle)
	if out == nil {
		// deviceless attempt: nothing is transmitted either way
		return paused, nil
	}

	var err error
	if paused {
		err = out.sender.ReplaceTrack(nil)
	} else {
		err = out.sender.ReplaceTrack(out.track)
	}
	if err != nil {
		flip(handle) // keep the flag in step with what is actually sent
		return !paused, &ConnectivityError{Reason: "replace " + kind + " track", Err: err}
	}

	m.logger.Info("outbound media toggled",
		zap.String("kind", kind), zap.Bool("paused", paused))
	return paused, nil
}

// rtpReader is the readable side of an inbound track.
type rtpReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

func (m *Manager) pumpRemoteTrack(track *webrtc.TrackRemote) {
	m.drainRTP(track, track.Kind().String())
}

// drainRTP keeps inbound RTP flowing so the receiver stack does not stall;
// the embedding application taps the track via OnRemoteTrack for rendering.
// Any read error ends the pump: transport failures surface through the ICE
// state callbacks, not here.
func (m *Manager) drainRTP(r rtpReader, kind string) {
	for {
		select {
		case <-m.done:
			return
		default:
		}

		if _, _, err := r.ReadRTP(); err != nil {
			if !errors.Is(err, io.EOF) {
				m.logger.Debug("remote track read ended",
					zap.String("kind", kind), zap.Error(err))
			}
			return
		}
	}
}

// waitGathering blocks until ICE gathering completes or ctx expires. The
// description returned to signaling then carries every host candidate, which
// keeps slow trickle paths from mattering for the common case.
func (m *Manager) waitGathering(ctx context.Context, pc *webrtc.PeerConnection) error {
	select {
	case <-webrtc.GatheringCompletePromise(pc):
		return nil
	case <-ctx.Done():
		return &NegotiationError{Reason: "ICE gathering timed out", Err: ctx.Err()}
	case <-m.done:
		return ErrClosed
	}
}

func (m *Manager) setPhase(p Phase) {
	m.mu.Lock()
	if m.closed || m.phase == p || m.phase.Terminal() {
		m.mu.Unlock()
		return
	}
	m.phase = p
	m.mu.Unlock()

	m.logger.Info("phase", zap.String("phase", p.String()))
	if m.events.OnPhase != nil {
		m.events.OnPhase(p)
	}
}

func (m *Manager) setQuality(q Quality) {
	m.mu.Lock()
	if m.closed || m.quality == q {
		m.mu.Unlock()
		return
	}
	m.quality = q
	m.mu.Unlock()

	if m.events.OnQuality != nil {
		m.events.OnQuality(q)
	}
}

func (m *Manager) failNegotiation(reason string, err error) error {
	m.setPhase(PhaseFailed)
	return &NegotiationError{Reason: reason, Err: err}
}
