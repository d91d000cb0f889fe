package controller

import "github.com/tejassgg/teamlabs-calls/internal/rtc"

// Projection is the read-only call state the UI layer renders. All fields
// are snapshots; the UI polls rather than subscribes.
type Projection struct {
	CurrentStatus   string `json:"currentStatus"`
	Direction       string `json:"direction,omitempty"`
	ConversationID  string `json:"conversationId,omitempty"`
	PeerID          string `json:"peerId,omitempty"`
	PeerName        string `json:"peerName,omitempty"`
	ConnectionPhase string `json:"connectionPhase"`
	QualitySample   string `json:"qualitySample"`
	HasLocalMedia   bool   `json:"hasLocalMedia"`
	HasRemoteMedia  bool   `json:"hasRemoteMedia"`
	Muted           bool   `json:"muted"`
	CameraOff       bool   `json:"cameraOff"`
	SpeakerOn       bool   `json:"speakerOn"`
	RingSeconds     int    `json:"ringSeconds,omitempty"`
	ElapsedSeconds  int    `json:"elapsedSeconds"`
	LastError       string `json:"lastError,omitempty"`
}

// Projection assembles the current snapshot.
func (c *Controller) Projection() Projection {
	c.mu.Lock()
	conn := c.conn
	p := Projection{
		CurrentStatus:   "idle",
		ConnectionPhase: rtc.PhaseUnstarted.String(),
		QualitySample:   rtc.QualityUnknown.String(),
		Muted:           c.muted,
		CameraOff:       c.cameraOff,
		SpeakerOn:       c.speakerOn,
		LastError:       c.lastErr,
	}
	c.mu.Unlock()

	snap, ok := c.store.Snapshot()
	if ok {
		p.CurrentStatus = snap.Status.String()
		p.Direction = snap.Direction.String()
		p.ConversationID = snap.ConversationID
		p.PeerID = snap.PeerID
		p.PeerName = snap.PeerName
		p.RingSeconds = c.store.RingSeconds()
		p.ElapsedSeconds = c.store.ElapsedSeconds()
	}

	if conn != nil {
		p.ConnectionPhase = conn.Phase().String()
		p.QualitySample = conn.Quality().String()
		if handle := conn.LocalMedia(); handle != nil && !handle.Stopped() {
			p.HasLocalMedia = true
		}
		if remote := conn.Remote(); remote != nil {
			p.HasRemoteMedia = remote.HasTracks()
		}
	}
	return p
}

// QualitySamples returns the most recent quality measurements, newest first.
// Empty while no attempt is live.
func (c *Controller) QualitySamples(n int) []rtc.Sample {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	ring := conn.Metrics()
	if ring == nil {
		return nil
	}
	return ring.Recent(n)
}
