package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"

	"github.com/tejassgg/teamlabs-calls/internal/config"
)

// -----------------------------------------------------------------------------
// Top-level full-config validation
// -----------------------------------------------------------------------------

type Validator struct{ errors []string }

func (v *Validator) AddError(format string, args ...interface{}) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}
func (v *Validator) HasErrors() bool  { return len(v.errors) > 0 }
func (v *Validator) Errors() []string { return v.errors }

// ValidateConfig delegates to per-section validators.
func ValidateConfig(cfg *config.Config) error {
	v := &Validator{}

	validateSignalingConfig(v, &cfg.Signaling)
	validateICEConfig(v, &cfg.ICE)
	validateMediaConfig(v, &cfg.Media)
	validateTimeoutConfig(v, &cfg.Timeouts)

	if v.HasErrors() {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(v.Errors(), "\n"))
	}
	return nil
}

func validateSignalingConfig(v *Validator, cfg *config.SignalingConfig) {
	if strings.TrimSpace(cfg.URL) == "" {
		v.AddError("signaling URL cannot be empty")
		return
	}
	if !strings.HasPrefix(cfg.URL, "ws://") && !strings.HasPrefix(cfg.URL, "wss://") {
		v.AddError("signaling URL must use ws:// or wss:// scheme, got %q", cfg.URL)
	}
	if cfg.DialTimeout <= 0 {
		v.AddError("signaling dial timeout must be positive, got %v", cfg.DialTimeout)
	}
}

func validateICEConfig(v *Validator, cfg *config.ICEConfig) {
	if len(cfg.URLs) == 0 {
		v.AddError("at least one ICE server URL is required")
	}
	for _, u := range cfg.URLs {
		switch {
		case strings.HasPrefix(u, "stun:"), strings.HasPrefix(u, "stuns:"):
		case strings.HasPrefix(u, "turn:"), strings.HasPrefix(u, "turns:"):
			if cfg.Username == "" || cfg.Credential == "" {
				v.AddError("TURN server %q requires a username and credential", u)
			}
		default:
			v.AddError("unrecognized ICE server URL scheme: %q", u)
		}
	}
	if cfg.DisconnectedTimeout >= cfg.FailedTimeout {
		v.AddError("ICE disconnected timeout (%v) must be shorter than failed timeout (%v)",
			cfg.DisconnectedTimeout, cfg.FailedTimeout)
	}
}

func validateMediaConfig(v *Validator, cfg *config.MediaConfig) {
	if cfg.Width <= 0 || cfg.Width > 1280 {
		v.AddError("video width must be in (0, 1280], got %d", cfg.Width)
	}
	if cfg.Height <= 0 || cfg.Height > 720 {
		v.AddError("video height must be in (0, 720], got %d", cfg.Height)
	}
	if cfg.Framerate <= 0 || cfg.Framerate > 30 {
		v.AddError("framerate must be in (0, 30], got %d", cfg.Framerate)
	}
	if cfg.VideoBitRate <= 0 {
		v.AddError("video bitrate must be positive, got %d", cfg.VideoBitRate)
	}
	if cfg.AudioBitRate <= 0 {
		v.AddError("audio bitrate must be positive, got %d", cfg.AudioBitRate)
	}
}

func validateTimeoutConfig(v *Validator, cfg *config.TimeoutConfig) {
	if cfg.OutgoingRing <= 0 {
		v.AddError("outgoing ring window must be positive, got %v", cfg.OutgoingRing)
	}
	if cfg.IncomingRing <= 0 {
		v.AddError("incoming ring window must be positive, got %v", cfg.IncomingRing)
	}
	if cfg.QualityInterval <= 0 {
		v.AddError("quality sampling interval must be positive, got %v", cfg.QualityInterval)
	}
}

// -----------------------------------------------------------------------------
// STUN reachability probe
// -----------------------------------------------------------------------------

// ProbeSTUN sends a binding request to a stun: URL and waits for any response.
// Failures are reported to the caller as warnings, not configuration errors:
// a STUN server being down at startup does not make the config invalid.
func ProbeSTUN(rawURL string, timeout time.Duration) error {
	addr := strings.TrimPrefix(rawURL, "stun:")
	if addr == rawURL {
		return fmt.Errorf("not a stun: URL: %q", rawURL)
	}

	client, err := stun.Dial("udp4", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer client.Close()

	client.SetRTO(timeout)

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	var probeErr error
	if err := client.Do(msg, func(res stun.Event) {
		probeErr = res.Error
	}); err != nil {
		return fmt.Errorf("binding request to %s: %w", addr, err)
	}
	if probeErr != nil {
		return fmt.Errorf("binding response from %s: %w", addr, probeErr)
	}
	return nil
}

// -----------------------------------------------------------------------------
// SDP validation
// -----------------------------------------------------------------------------

type SDPValidationError struct {
	Field   string
	Message string
}

func (e *SDPValidationError) Error() string {
	return fmt.Sprintf("SDP validation error in %s: %s", e.Field, e.Message)
}

// ValidateSDP checks that a session description carries the pieces a call
// cannot work without: at least one audio/video media section, ICE credentials
// and a DTLS fingerprint.
func ValidateSDP(sd *webrtc.SessionDescription) error {
	if sd == nil || sd.SDP == "" {
		return &SDPValidationError{Field: "SessionDescription", Message: "is empty"}
	}

	var (
		hasAudio    bool
		hasVideo    bool
		hasICE      bool
		mediaCount  int
		fingerprint string
	)

	for _, line := range strings.Split(sd.SDP, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "m="):
			mediaCount++
			if strings.HasPrefix(line, "m=audio") {
				hasAudio = true
			}
			if strings.HasPrefix(line, "m=video") {
				hasVideo = true
			}
		case strings.HasPrefix(line, "a=ice-ufrag:"):
			hasICE = true
		case strings.HasPrefix(line, "a=fingerprint:"):
			fingerprint = strings.TrimPrefix(line, "a=fingerprint:")
		}
	}

	if mediaCount == 0 {
		return &SDPValidationError{Field: "Media", Message: "no media sections found"}
	}
	if !hasAudio && !hasVideo {
		return &SDPValidationError{Field: "Media", Message: "neither audio nor video sections found"}
	}
	if !hasICE {
		return &SDPValidationError{Field: "ICE", Message: "no ICE credentials found"}
	}
	if len(fingerprint) == 0 {
		return &SDPValidationError{Field: "DTLS", Message: "no DTLS fingerprint found"}
	}

	return nil
}
