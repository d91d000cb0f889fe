package session

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrCallActive is returned when a new call is started while the
	// current session is still non-terminal.
	ErrCallActive = errors.New("a call is already active")

	// ErrInvalidTransition is returned for triggers that do not apply to
	// the current status. Callers log and continue; racing timeouts and
	// remote events make such triggers routine, not fatal.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrNoSession is returned for triggers on an idle store.
	ErrNoSession = errors.New("no active call session")
)

// Session is one call attempt. The Store hands out copies; the canonical
// instance never leaves the store.
type Session struct {
	AttemptID      string
	ConversationID string
	PeerID         string
	PeerName       string
	Direction      Direction
	Status         Status
	RingStartedAt  time.Time
	ConnectedAt    time.Time
}

// Connected reports whether connectedAt has been recorded.
func (s *Session) connected() bool { return !s.ConnectedAt.IsZero() }

// Hooks are invoked on store transitions, always outside the store lock so
// they may call back into the store or into components that do.
type Hooks struct {
	// OnTerminal fires exactly once per session, on the transition into
	// any terminal status. Drives connection teardown.
	OnTerminal func(s Session)
	// OnMissed fires when an outgoing ring window expires, with the ring
	// duration in whole seconds.
	OnMissed func(s Session, ringSeconds int)
	// OnAutoDecline fires when an incoming ring window expires, with the
	// elapsed ring duration in whole seconds.
	OnAutoDecline func(s Session, ringSeconds int)
}

// Store owns the single current call session and its ring timer.
type Store struct {
	clk          clock.Clock
	logger       *zap.Logger
	hooks        Hooks
	outgoingRing time.Duration
	incomingRing time.Duration

	mu               sync.Mutex
	cur              *Session
	ringTimer        *clock.Timer
	terminalNotified bool
}

// NewStore creates a session store using the given clock for ring timers.
func NewStore(clk clock.Clock, logger *zap.Logger, outgoingRing, incomingRing time.Duration, hooks Hooks) *Store {
	return &Store{
		clk:          clk,
		logger:       logger.Named("session"),
		hooks:        hooks,
		outgoingRing: outgoingRing,
		incomingRing: incomingRing,
	}
}

// Snapshot returns a copy of the current session. ok is false while idle.
func (st *Store) Snapshot() (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cur == nil {
		return Session{}, false
	}
	return *st.cur, true
}

// Status returns the current status, StatusIdle when no session exists.
func (st *Store) Status() Status {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cur == nil {
		return StatusIdle
	}
	return st.cur.Status
}

// ElapsedSeconds reports whole seconds since connectedAt. Zero unless the
// session is Connected.
func (st *Store) ElapsedSeconds() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cur == nil || st.cur.Status != StatusConnected || !st.cur.connected() {
		return 0
	}
	return int(st.clk.Now().Sub(st.cur.ConnectedAt) / time.Second)
}

// StartOutgoing creates an outgoing session in Ringing and arms the caller
// ring window. Rejected with ErrCallActive while a non-terminal session
// exists.
func (st *Store) StartOutgoing(conversationID, peerID, peerName string) (Session, error) {
	return st.start(conversationID, peerID, peerName, DirectionOutgoing)
}

// StartIncoming creates an incoming session in Ringing and arms the callee
// ring window.
func (st *Store) StartIncoming(conversationID, callerID, callerName string) (Session, error) {
	return st.start(conversationID, callerID, callerName, DirectionIncoming)
}

func (st *Store) start(conversationID, peerID, peerName string, dir Direction) (Session, error) {
	st.mu.Lock()
	if st.cur != nil && !st.cur.Status.Terminal() {
		st.mu.Unlock()
		return Session{}, ErrCallActive
	}

	s := &Session{
		AttemptID:      uuid.NewString(),
		ConversationID: conversationID,
		PeerID:         peerID,
		PeerName:       peerName,
		Direction:      dir,
		Status:         StatusRinging,
		RingStartedAt:  st.clk.Now(),
	}
	st.cur = s
	st.terminalNotified = false

	window := st.outgoingRing
	if dir == DirectionIncoming {
		window = st.incomingRing
	}
	st.armRingTimerLocked(s.AttemptID, window)

	snap := *s
	st.mu.Unlock()

	st.logger.Info("session ringing",
		zap.String("attempt_id", snap.AttemptID),
		zap.String("conversation_id", snap.ConversationID),
		zap.String("direction", dir.String()))
	return snap, nil
}

// RemoteAnswered moves an outgoing ringing session to Negotiating and
// cancels the ring timer.
func (st *Store) RemoteAnswered() error {
	return st.toNegotiating(DirectionOutgoing)
}

// LocalAnswered moves an incoming ringing session to Negotiating and cancels
// the ring timer. A second answer is reported as ErrInvalidTransition, which
// callers treat as a no-op.
func (st *Store) LocalAnswered() error {
	return st.toNegotiating(DirectionIncoming)
}

func (st *Store) toNegotiating(want Direction) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cur == nil {
		return ErrNoSession
	}
	if st.cur.Status != StatusRinging || st.cur.Direction != want {
		return st.invalidLocked("negotiating")
	}
	st.cancelRingTimerLocked()
	st.cur.Status = StatusNegotiating
	st.logger.Info("session negotiating", zap.String("attempt_id", st.cur.AttemptID))
	return nil
}

// MarkConnected moves Negotiating to Connected, recording connectedAt on the
// first transition only.
func (st *Store) MarkConnected() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cur == nil {
		return ErrNoSession
	}
	if st.cur.Status == StatusConnected {
		return nil
	}
	if st.cur.Status != StatusNegotiating {
		return st.invalidLocked("connected")
	}
	st.cur.Status = StatusConnected
	if !st.cur.connected() {
		st.cur.ConnectedAt = st.clk.Now()
	}
	st.logger.Info("session connected", zap.String("attempt_id", st.cur.AttemptID))
	return nil
}

// MarkFailed ends a negotiating or connected session as Failed.
func (st *Store) MarkFailed() error {
	return st.terminate(StatusFailed, func(s *Session) bool {
		return s.Status == StatusRinging || s.Status == StatusNegotiating || s.Status == StatusConnected
	})
}

// LocalEnd ends a connected session as Ended. Also accepted while ringing or
// negotiating so the local user can abandon an attempt.
func (st *Store) LocalEnd() error {
	return st.terminate(StatusEnded, func(s *Session) bool {
		return !s.Status.Terminal() && s.Status != StatusIdle
	})
}

// RemoteEnded mirrors the remote side's Ended state onto any non-terminal
// session.
func (st *Store) RemoteEnded() error {
	return st.terminate(StatusEnded, func(s *Session) bool {
		return !s.Status.Terminal()
	})
}

// LocalDecline declines an incoming ringing call.
func (st *Store) LocalDecline() error {
	return st.terminate(StatusDeclined, func(s *Session) bool {
		return s.Status == StatusRinging && s.Direction == DirectionIncoming
	})
}

// RemoteDeclined mirrors the remote side's Declined state onto any
// non-terminal session.
func (st *Store) RemoteDeclined() error {
	return st.terminate(StatusDeclined, func(s *Session) bool {
		return !s.Status.Terminal()
	})
}

// RingSeconds reports whole seconds since ringStartedAt.
func (st *Store) RingSeconds() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cur == nil || st.cur.RingStartedAt.IsZero() {
		return 0
	}
	return int(st.clk.Now().Sub(st.cur.RingStartedAt) / time.Second)
}

// Reset clears a terminal session back to Idle. Rejected while the session
// is still live.
func (st *Store) Reset() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cur == nil {
		return nil
	}
	if !st.cur.Status.Terminal() {
		return st.invalidLocked("idle")
	}
	st.logger.Info("session reset", zap.String("attempt_id", st.cur.AttemptID))
	st.cur = nil
	st.terminalNotified = false
	return nil
}

// terminate applies a terminal transition when allowed permits it, firing
// the terminal hook exactly once per session, outside the lock.
func (st *Store) terminate(to Status, allowed func(*Session) bool) error {
	st.mu.Lock()
	if st.cur == nil {
		st.mu.Unlock()
		return ErrNoSession
	}
	if !allowed(st.cur) {
		err := st.invalidLocked(to.String())
		st.mu.Unlock()
		return err
	}
	st.cancelRingTimerLocked()
	st.cur.Status = to
	snap := *st.cur
	notify := !st.terminalNotified
	st.terminalNotified = true
	st.mu.Unlock()

	st.logger.Info("session terminal",
		zap.String("attempt_id", snap.AttemptID),
		zap.String("status", to.String()))
	if notify && st.hooks.OnTerminal != nil {
		st.hooks.OnTerminal(snap)
	}
	return nil
}

// armRingTimerLocked schedules the ring-window expiry for the given attempt.
// The fire path re-checks attempt identity and status, so a timer that races
// with its own cancellation is ignored.
func (st *Store) armRingTimerLocked(attemptID string, window time.Duration) {
	st.cancelRingTimerLocked()
	st.ringTimer = st.clk.AfterFunc(window, func() {
		st.ringExpired(attemptID)
	})
}

func (st *Store) cancelRingTimerLocked() {
	if st.ringTimer != nil {
		st.ringTimer.Stop()
		st.ringTimer = nil
	}
}

func (st *Store) ringExpired(attemptID string) {
	st.mu.Lock()
	if st.cur == nil || st.cur.AttemptID != attemptID || st.cur.Status != StatusRinging {
		st.mu.Unlock()
		return
	}

	st.cancelRingTimerLocked()
	dir := st.cur.Direction
	ringSeconds := int(st.clk.Now().Sub(st.cur.RingStartedAt) / time.Second)

	if dir == DirectionOutgoing {
		st.cur.Status = StatusMissed
	} else {
		st.cur.Status = StatusDeclined
	}
	snap := *st.cur
	notify := !st.terminalNotified
	st.terminalNotified = true
	st.mu.Unlock()

	st.logger.Info("ring window expired",
		zap.String("attempt_id", snap.AttemptID),
		zap.String("direction", dir.String()),
		zap.Int("ring_seconds", ringSeconds))

	if dir == DirectionOutgoing {
		if st.hooks.OnMissed != nil {
			st.hooks.OnMissed(snap, ringSeconds)
		}
	} else {
		if st.hooks.OnAutoDecline != nil {
			st.hooks.OnAutoDecline(snap, ringSeconds)
		}
	}
	if notify && st.hooks.OnTerminal != nil {
		st.hooks.OnTerminal(snap)
	}
}

func (st *Store) invalidLocked(to string) error {
	status := "idle"
	if st.cur != nil {
		status = st.cur.Status.String()
	}
	st.logger.Debug("ignored session transition",
		zap.String("from", status),
		zap.String("to", to))
	return ErrInvalidTransition
}
