// Package controller wires the session store, the connection manager and the
// signaling transport together and exposes the call actions and the
// read-only projection the UI layer consumes.
package controller

import (
	"context"
	"errors"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/tejassgg/teamlabs-calls/internal/config"
	"github.com/tejassgg/teamlabs-calls/internal/media"
	"github.com/tejassgg/teamlabs-calls/internal/rtc"
	"github.com/tejassgg/teamlabs-calls/internal/session"
	"github.com/tejassgg/teamlabs-calls/internal/signaling"
)

// ErrNoConnection is returned by media toggles while no call attempt owns a
// connection.
var ErrNoConnection = errors.New("no active call connection")

// Connection is the per-attempt surface the controller drives. Satisfied by
// *rtc.Manager; tests substitute fakes.
type Connection interface {
	StartAsCaller(ctx context.Context) (webrtc.SessionDescription, error)
	StartAsCallee(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	ApplyRemoteAnswer(answer webrtc.SessionDescription) error
	AddRemoteCandidate(cand webrtc.ICECandidateInit) error
	Phase() rtc.Phase
	Quality() rtc.Quality
	Metrics() *rtc.MetricsRing
	ToggleAudio() (bool, error)
	ToggleVideo() (bool, error)
	LocalMedia() *media.Handle
	Remote() *rtc.RemoteMedia
	Close()
}

// ConnectionFactory builds one Connection per call attempt.
type ConnectionFactory func(events rtc.Events) Connection

// NewManagerFactory returns a factory producing real rtc Managers on the
// given media source.
func NewManagerFactory(cfg *config.Config, source rtc.MediaSource, clk clock.Clock, logger *zap.Logger) ConnectionFactory {
	return func(events rtc.Events) Connection {
		return rtc.NewManager(cfg, source, clk, logger, events)
	}
}

// Controller owns at most one call attempt at a time.
type Controller struct {
	cfg       *config.Config
	logger    *zap.Logger
	transport signaling.Transport
	factory   ConnectionFactory
	store     *session.Store

	mu             sync.Mutex
	conversationID string
	conn           Connection
	unsubscribe    func()
	pendingOffer   *webrtc.SessionDescription
	lastErr        string
	muted          bool
	cameraOff      bool
	speakerOn      bool
	closed         bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a controller. Attach must be called before placing or
// receiving calls.
func New(cfg *config.Config, transport signaling.Transport, factory ConnectionFactory, clk clock.Clock, logger *zap.Logger) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:       cfg,
		logger:    logger.Named("controller"),
		transport: transport,
		factory:   factory,
		speakerOn: true,
		ctx:       ctx,
		cancel:    cancel,
	}
	c.store = session.NewStore(clk, logger, cfg.Timeouts.OutgoingRing, cfg.Timeouts.IncomingRing, session.Hooks{
		OnTerminal:    c.onTerminal,
		OnMissed:      c.onMissed,
		OnAutoDecline: c.onAutoDecline,
	})
	return c
}

// Store exposes the session store for read-side consumers.
func (c *Controller) Store() *session.Store { return c.store }

// Attach subscribes the controller to one conversation's signaling events.
// Incoming calls on that conversation ring; calls placed locally use it too.
func (c *Controller) Attach(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conversationID == conversationID && c.unsubscribe != nil {
		return
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.conversationID = conversationID
	c.subscribeLocked()
}

func (c *Controller) subscribeLocked() {
	ch, cancel := c.transport.Subscribe(c.conversationID)
	c.unsubscribe = cancel
	go c.eventLoop(ch)
	c.logger.Info("attached to conversation", zap.String("conversation_id", c.conversationID))
}

// PlaceCall starts an outgoing call on the attached conversation: creates
// the session, generates the offer and sends call.initiate.
func (c *Controller) PlaceCall(ctx context.Context, peerID, peerName string) error {
	c.mu.Lock()
	conversationID := c.conversationID
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errors.New("controller closed")
	}
	if conversationID == "" {
		return errors.New("no conversation attached")
	}

	if _, err := c.store.StartOutgoing(conversationID, peerID, peerName); err != nil {
		return err
	}

	conn := c.newAttempt()

	offer, err := conn.StartAsCaller(ctx)
	if err != nil {
		c.failAttempt(err)
		return err
	}

	ev := signaling.NewInitiate(conversationID, c.cfg.Signaling.ClientID, c.cfg.Signaling.DisplayName, offer)
	if err := c.transport.Send(ctx, ev); err != nil {
		c.failAttempt(err)
		return err
	}
	return nil
}

// Answer accepts the ringing incoming call: applies the stored offer,
// generates the answer and sends call.answer. A second Answer after the
// first is a no-op.
func (c *Controller) Answer(ctx context.Context) error {
	if err := c.store.LocalAnswered(); err != nil {
		if errors.Is(err, session.ErrInvalidTransition) {
			c.logger.Debug("answer ignored", zap.String("status", c.store.Status().String()))
			return nil
		}
		return err
	}

	c.mu.Lock()
	offer := c.pendingOffer
	c.pendingOffer = nil
	conversationID := c.conversationID
	c.mu.Unlock()

	if offer == nil {
		err := errors.New("no pending offer for incoming call")
		c.failAttempt(err)
		return err
	}

	conn := c.newAttempt()

	answer, err := conn.StartAsCallee(ctx, *offer)
	if err != nil {
		c.failAttempt(err)
		return err
	}

	if err := c.transport.Send(ctx, signaling.NewAnswer(conversationID, answer)); err != nil {
		c.failAttempt(err)
		return err
	}
	return nil
}

// Decline rejects the ringing incoming call and notifies the caller with
// the elapsed ring duration.
func (c *Controller) Decline(ctx context.Context) error {
	ringSeconds := c.store.RingSeconds()
	snap, ok := c.store.Snapshot()
	if !ok {
		return session.ErrNoSession
	}
	if err := c.store.LocalDecline(); err != nil {
		return err
	}
	if err := c.transport.Send(ctx, signaling.NewDecline(snap.ConversationID, ringSeconds)); err != nil {
		c.logger.Warn("decline notification failed", zap.Error(err))
	}
	return nil
}

// End hangs up the current call and notifies the other side with the call
// start time and duration.
func (c *Controller) End(ctx context.Context) error {
	snap, ok := c.store.Snapshot()
	if !ok {
		return session.ErrNoSession
	}
	duration := c.store.ElapsedSeconds()
	if err := c.store.LocalEnd(); err != nil {
		return err
	}
	if err := c.transport.Send(ctx, signaling.NewEnd(snap.ConversationID, snap.ConnectedAt, duration)); err != nil {
		c.logger.Warn("end notification failed", zap.Error(err))
	}
	return nil
}

// ToggleMute pauses or resumes outbound audio on the current attempt.
// Returns the new muted state.
func (c *Controller) ToggleMute() (bool, error) {
	muted, err := c.toggleMedia(Connection.ToggleAudio)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
	return muted, nil
}

// ToggleCamera pauses or resumes outbound video on the current attempt.
// Returns the new camera-off state.
func (c *Controller) ToggleCamera() (bool, error) {
	off, err := c.toggleMedia(Connection.ToggleVideo)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.cameraOff = off
	c.mu.Unlock()
	return off, nil
}

func (c *Controller) toggleMedia(toggle func(Connection) (bool, error)) (bool, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return false, ErrNoConnection
	}
	state, err := toggle(conn)
	if err != nil {
		if errors.Is(err, rtc.ErrNoLocalMedia) || errors.Is(err, rtc.ErrClosed) {
			return false, ErrNoConnection
		}
		return false, err
	}
	return state, nil
}

// ToggleSpeaker flips the speaker flag. Playback routing itself belongs to
// the rendering layer; the core only tracks the state.
func (c *Controller) ToggleSpeaker() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speakerOn = !c.speakerOn
	return c.speakerOn
}

// Dismiss acknowledges a terminal session: resets the store to Idle and
// clears the attempt state so a new call can start.
func (c *Controller) Dismiss() error {
	if err := c.store.Reset(); err != nil {
		return err
	}
	c.mu.Lock()
	c.pendingOffer = nil
	c.lastErr = ""
	c.muted = false
	c.cameraOff = false
	if c.unsubscribe == nil && !c.closed && c.conversationID != "" {
		c.subscribeLocked()
	}
	c.mu.Unlock()
	return nil
}

// Close tears down the current attempt, the subscription and the event loop.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	c.cancel()
	if unsub != nil {
		unsub()
	}
	if conn != nil {
		conn.Close()
	}
}

// newAttempt builds the Connection for the session that was just created and
// installs it as the current attempt.
func (c *Controller) newAttempt() Connection {
	conn := c.factory(rtc.Events{
		OnLocalCandidate: c.relayCandidate,
		OnPhase:          c.onPhase,
	})
	c.mu.Lock()
	c.conn = conn
	c.lastErr = ""
	c.muted = false
	c.cameraOff = false
	c.mu.Unlock()
	return conn
}

func (c *Controller) relayCandidate(cand webrtc.ICECandidateInit) {
	c.mu.Lock()
	conversationID := c.conversationID
	c.mu.Unlock()

	if err := c.transport.Send(c.ctx, signaling.NewCandidate(conversationID, cand)); err != nil {
		c.logger.Warn("candidate relay failed", zap.Error(err))
	}
}

// failAttempt records the user-facing error and drives the session to
// Failed. Teardown of the connection happens through the terminal hook.
func (c *Controller) failAttempt(err error) {
	c.mu.Lock()
	c.lastErr = userMessage(err)
	c.mu.Unlock()

	c.logger.Error("call attempt failed", zap.Error(err))
	if terr := c.store.MarkFailed(); terr != nil && !errors.Is(terr, session.ErrInvalidTransition) && !errors.Is(terr, session.ErrNoSession) {
		c.logger.Warn("failed transition rejected", zap.Error(terr))
	}
}

// userMessage maps internal errors onto the fixed strings the UI shows.
func userMessage(err error) string {
	if mediaErr, ok := media.AsError(err); ok {
		return mediaErr.Message()
	}
	var negErr *rtc.NegotiationError
	if errors.As(err, &negErr) {
		return "failed to establish call connection"
	}
	var connErr *rtc.ConnectivityError
	if errors.As(err, &connErr) {
		if connErr.Reason != "" {
			return "connection failed: " + connErr.Reason
		}
		return "connection failed"
	}
	return "failed to establish call connection"
}
