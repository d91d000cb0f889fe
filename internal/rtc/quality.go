package rtc

import (
	"time"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// Packet-loss thresholds per sampling window. Loss counts are deltas of the
// inbound packetsLost counters between two consecutive samples.
const (
	poorVideoLoss = 10
	poorAudioLoss = 5
	badVideoLoss  = 20
	badAudioLoss  = 10
)

// classifyLoss buckets a sampling window's inbound loss into a quality level.
func classifyLoss(videoLost, audioLost int64) Quality {
	switch {
	case videoLost > badVideoLoss || audioLost > badAudioLoss:
		return QualityBad
	case videoLost > poorVideoLoss || audioLost > poorAudioLoss:
		return QualityPoor
	default:
		return QualityGood
	}
}

// lossCounters carries the absolute inbound counters of the previous sample
// so the next one can be computed as a delta.
type lossCounters struct {
	videoLost int64
	audioLost int64
}

// sampleInbound walks a stats report and produces one quality sample plus the
// updated absolute counters.
func sampleInbound(report webrtc.StatsReport, prev lossCounters, now time.Time) (Sample, lossCounters) {
	var cur lossCounters
	var jitter float64

	for _, s := range report {
		stat, ok := s.(webrtc.InboundRTPStreamStats)
		if !ok {
			continue
		}
		switch stat.Kind {
		case "video":
			cur.videoLost += int64(stat.PacketsLost)
			jitter = stat.Jitter
		case "audio":
			cur.audioLost += int64(stat.PacketsLost)
		}
	}

	videoDelta := cur.videoLost - prev.videoLost
	audioDelta := cur.audioLost - prev.audioLost
	if videoDelta < 0 {
		videoDelta = 0
	}
	if audioDelta < 0 {
		audioDelta = 0
	}

	quality := classifyLoss(videoDelta, audioDelta)
	return Sample{
		Timestamp:     now,
		Quality:       quality,
		QualityLabel:  quality.String(),
		VideoLost:     videoDelta,
		AudioLost:     audioDelta,
		JitterSeconds: jitter,
	}, cur
}

// qualityLoop samples connection statistics on the configured interval while
// the connection is up. It exits when the manager closes.
func (m *Manager) qualityLoop() {
	ticker := m.clk.Ticker(m.qualityInterval)
	defer ticker.Stop()

	var prev lossCounters
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.mu.Lock()
			pc := m.pc
			phase := m.phase
			m.mu.Unlock()

			if pc == nil || phase != PhaseConnected {
				continue
			}

			sample, cur := sampleInbound(pc.GetStats(), prev, m.clk.Now())
			prev = cur
			m.metrics.Add(sample)
			m.setQuality(sample.Quality)

			if sample.Quality != QualityGood {
				m.logger.Warn("degraded connection quality",
					zap.String("quality", sample.Quality.String()),
					zap.Int64("video_lost", sample.VideoLost),
					zap.Int64("audio_lost", sample.AudioLost))
			}
		}
	}
}
