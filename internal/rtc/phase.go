package rtc

// Phase is the connection manager's lifecycle state. The Manager is the
// single writer; other components only read it.
type Phase int

const (
	PhaseUnstarted Phase = iota
	PhaseGatheringMedia
	PhaseOffering
	PhaseAnswering
	PhaseChecking
	PhaseConnected
	PhaseDisconnected
	PhaseFailed
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseUnstarted:
		return "unstarted"
	case PhaseGatheringMedia:
		return "gathering_media"
	case PhaseOffering:
		return "offering"
	case PhaseAnswering:
		return "answering"
	case PhaseChecking:
		return "checking"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnected:
		return "disconnected"
	case PhaseFailed:
		return "failed"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase can never transition again.
func (p Phase) Terminal() bool {
	return p == PhaseFailed || p == PhaseClosed
}

// Quality is the coarse connection-quality bucket shown in the call UI.
type Quality int

const (
	QualityUnknown Quality = iota
	QualityGood
	QualityPoor
	QualityBad
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityPoor:
		return "poor"
	case QualityBad:
		return "bad"
	default:
		return "unknown"
	}
}
