package media

import (
	"sync"

	"github.com/pion/mediadevices"
)

// Handle is the owned local media for one call attempt. Exactly one component
// (the connection manager) holds it; Stop is the single release path and is
// safe to call any number of times.
type Handle struct {
	mu      sync.Mutex
	stream  mediadevices.MediaStream
	stopped bool
	audioOn bool
	videoOn bool
}

func newHandle(stream mediadevices.MediaStream) *Handle {
	return &Handle{
		stream:  stream,
		audioOn: true,
		videoOn: true,
	}
}

// NewStubHandle returns a handle with no underlying stream, for wiring the
// connection manager without capture devices.
func NewStubHandle() *Handle {
	return newHandle(nil)
}

// Tracks returns the local capture tracks, empty when no stream is held.
func (h *Handle) Tracks() []mediadevices.Track {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stream == nil || h.stopped {
		return nil
	}
	return h.stream.GetTracks()
}

// Stop releases every capture track. Idempotent; the device indicator light
// must be off after the first call returns.
func (h *Handle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	if h.stream == nil {
		return
	}
	for _, track := range h.stream.GetTracks() {
		_ = track.Close()
	}
}

// Stopped reports whether Stop has been called.
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// ToggleAudio flips local audio on/off. Returns the new muted state (true = muted).
func (h *Handle) ToggleAudio() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.audioOn = !h.audioOn
	return !h.audioOn
}

// ToggleVideo flips local video on/off. Returns the new disabled state (true = disabled).
func (h *Handle) ToggleVideo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.videoOn = !h.videoOn
	return !h.videoOn
}

// AudioEnabled reports whether the microphone is unmuted.
func (h *Handle) AudioEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.audioOn
}

// VideoEnabled reports whether the camera is enabled.
func (h *Handle) VideoEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.videoOn
}
