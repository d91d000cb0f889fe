package controller

import (
	"errors"

	"go.uber.org/zap"

	"github.com/tejassgg/teamlabs-calls/internal/rtc"
	"github.com/tejassgg/teamlabs-calls/internal/session"
	"github.com/tejassgg/teamlabs-calls/internal/signaling"
)

// eventLoop consumes one subscription channel until it closes.
func (c *Controller) eventLoop(ch <-chan signaling.Event) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.handleEvent(ev)
		}
	}
}

func (c *Controller) handleEvent(ev signaling.Event) {
	switch ev.Name {
	case signaling.EventIncoming:
		c.handleIncoming(ev)
	case signaling.EventAnswered:
		c.handleAnswered(ev)
	case signaling.EventDeclined:
		c.handleRemoteTerminal(ev, c.store.RemoteDeclined)
	case signaling.EventEnded:
		c.handleRemoteTerminal(ev, c.store.RemoteEnded)
	case signaling.EventCandidate:
		c.handleCandidate(ev)
	default:
		c.logger.Debug("unhandled signaling event", zap.String("event", ev.Name))
	}
}

// handleIncoming rings a new incoming call. While another call is live the
// event is dropped; the remote side rings out to Missed on its own timer.
func (c *Controller) handleIncoming(ev signaling.Event) {
	if ev.Offer == nil {
		c.logger.Warn("incoming call without offer",
			zap.String("conversation_id", ev.ConversationID))
		return
	}

	if _, err := c.store.StartIncoming(ev.ConversationID, ev.CallerID, ev.CallerName); err != nil {
		if errors.Is(err, session.ErrCallActive) {
			c.logger.Info("busy, dropping incoming call",
				zap.String("conversation_id", ev.ConversationID),
				zap.String("caller_id", ev.CallerID))
			return
		}
		c.logger.Warn("incoming call rejected", zap.Error(err))
		return
	}

	c.mu.Lock()
	offer := *ev.Offer
	c.pendingOffer = &offer
	c.mu.Unlock()

	c.logger.Info("incoming call ringing",
		zap.String("conversation_id", ev.ConversationID),
		zap.String("caller_name", ev.CallerName))
}

// handleAnswered applies the callee's answer on the caller side. Duplicate
// answered events are ignored by the state machine guard.
func (c *Controller) handleAnswered(ev signaling.Event) {
	if ev.Answer == nil {
		c.logger.Warn("answered event without answer")
		return
	}
	if err := c.store.RemoteAnswered(); err != nil {
		c.logger.Debug("answered event ignored", zap.Error(err))
		return
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.failAttempt(errors.New("answered with no active connection"))
		return
	}
	if err := conn.ApplyRemoteAnswer(*ev.Answer); err != nil {
		c.failAttempt(err)
	}
}

func (c *Controller) handleRemoteTerminal(ev signaling.Event, transition func() error) {
	if err := transition(); err != nil {
		c.logger.Debug("remote terminal event ignored",
			zap.String("event", ev.Name), zap.Error(err))
	}
}

// handleCandidate applies a trickled remote candidate. Early candidates are
// dropped, never buffered for replay.
func (c *Controller) handleCandidate(ev signaling.Event) {
	if ev.Candidate == nil {
		return
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.logger.Debug("dropping candidate with no active connection")
		return
	}

	err := conn.AddRemoteCandidate(*ev.Candidate)
	switch {
	case err == nil:
	case errors.Is(err, rtc.ErrNoRemoteDescription):
		c.logger.Debug("dropping early ICE candidate")
	case errors.Is(err, rtc.ErrEmptyCandidate):
		c.logger.Debug("dropping empty ICE candidate")
	case errors.Is(err, rtc.ErrClosed):
	default:
		c.logger.Warn("ICE candidate rejected", zap.Error(err))
	}
}

// onPhase maps connection phases onto session transitions.
func (c *Controller) onPhase(p rtc.Phase) {
	switch p {
	case rtc.PhaseConnected:
		if err := c.store.MarkConnected(); err != nil &&
			!errors.Is(err, session.ErrInvalidTransition) && !errors.Is(err, session.ErrNoSession) {
			c.logger.Warn("connected transition rejected", zap.Error(err))
		}
	case rtc.PhaseFailed:
		c.mu.Lock()
		if c.lastErr == "" {
			c.lastErr = "connection failed"
		}
		c.mu.Unlock()
		if err := c.store.MarkFailed(); err != nil &&
			!errors.Is(err, session.ErrInvalidTransition) && !errors.Is(err, session.ErrNoSession) {
			c.logger.Warn("failed transition rejected", zap.Error(err))
		}
	}
}

// onTerminal releases the attempt's resources. Fired by the store exactly
// once per session.
func (c *Controller) onTerminal(s session.Session) {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.pendingOffer = nil
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if unsub != nil {
		unsub()
	}
	c.logger.Info("call attempt released",
		zap.String("attempt_id", s.AttemptID),
		zap.String("status", s.Status.String()))
}

// onMissed reports the expired outgoing ring window to the server.
// Best-effort: a send failure only logs.
func (c *Controller) onMissed(s session.Session, ringSeconds int) {
	ev := signaling.NewMissed(s.ConversationID, c.cfg.Signaling.ClientID, ringSeconds)
	if err := c.transport.Send(c.ctx, ev); err != nil {
		c.logger.Warn("missed-call notification failed", zap.Error(err))
	}
}

// onAutoDecline notifies the caller that the unanswered incoming call was
// auto-declined, carrying the elapsed ring duration.
func (c *Controller) onAutoDecline(s session.Session, ringSeconds int) {
	if err := c.transport.Send(c.ctx, signaling.NewDecline(s.ConversationID, ringSeconds)); err != nil {
		c.logger.Warn("auto-decline notification failed", zap.Error(err))
	}
}
