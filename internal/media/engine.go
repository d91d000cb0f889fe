// Package media acquires the local camera and microphone for a call attempt
// and maps device-layer failures onto a closed error taxonomy.
package media

import (
	"sync"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/mediadevices/pkg/prop"
	"go.uber.org/zap"

	_ "github.com/pion/mediadevices/pkg/driver/camera"     // This is required to register camera adapter - DON'T REMOVE
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // This is required to register microphone adapter  - DON'T REMOVE

	"github.com/tejassgg/teamlabs-calls/internal/config"
)

// Engine configures capture once and hands out at most one live Handle at a
// time. Acquiring again stops the previous handle first, so a retry after a
// failed attempt can never leak a device.
type Engine struct {
	cfg      config.MediaConfig
	logger   *zap.Logger
	selector *mediadevices.CodecSelector

	mu   sync.Mutex
	last *Handle
}

// NewEngine builds the VP8/Opus codec selector from the media config.
func NewEngine(cfg config.MediaConfig, logger *zap.Logger) (*Engine, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, &Error{Kind: ErrUnknown, Err: err}
	}
	vpxParams.BitRate = cfg.VideoBitRate
	vpxParams.KeyFrameInterval = 15
	vpxParams.RateControlEndUsage = vpx.RateControlVBR
	vpxParams.Deadline = 200 * time.Millisecond

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, &Error{Kind: ErrUnknown, Err: err}
	}
	opusParams.BitRate = cfg.AudioBitRate
	opusParams.Latency = opus.Latency20ms

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	return &Engine{
		cfg:      cfg,
		logger:   logger.Named("media"),
		selector: selector,
	}, nil
}

// Selector exposes the codec selector so the peer connection's MediaEngine
// can register the same codecs the capture tracks encode with.
func (e *Engine) Selector() *mediadevices.CodecSelector { return e.selector }

// Acquire requests a combined audio+video capture. Video constraints are
// ideals capped at the configured resolution; audio is mono 48kHz with 20ms
// latency, the closest driver-level equivalent of the echo-cancellation /
// noise-suppression hints a browser capture would request.
func (e *Engine) Acquire() (*Handle, error) {
	e.mu.Lock()
	if e.last != nil {
		e.last.Stop()
		e.last = nil
	}
	e.mu.Unlock()

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.Width = prop.IntRanged{Max: e.cfg.Width, Ideal: e.cfg.Width}
			c.Height = prop.IntRanged{Max: e.cfg.Height, Ideal: e.cfg.Height}
			c.FrameRate = prop.FloatRanged{Max: float32(e.cfg.Framerate), Ideal: float32(e.cfg.Framerate)}
		},
		Audio: func(c *mediadevices.MediaTrackConstraints) {
			c.SampleRate = prop.Int(48000)
			c.ChannelCount = prop.Int(1)
			c.SampleSize = prop.Int(16)
			c.Latency = prop.Duration(20 * time.Millisecond)
		},
		Codec: e.selector,
	})
	if err != nil {
		mediaErr := classify(err)
		e.logger.Warn("media acquisition failed",
			zap.String("kind", mediaErr.Kind.String()),
			zap.Error(err))
		return nil, mediaErr
	}

	h := newHandle(stream)
	e.mu.Lock()
	e.last = h
	e.mu.Unlock()

	e.logger.Info("local media acquired",
		zap.Int("audio_tracks", len(stream.GetAudioTracks())),
		zap.Int("video_tracks", len(stream.GetVideoTracks())))
	return h, nil
}
