// Package config holds all call-core configuration.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Signaling SignalingConfig
	ICE       ICEConfig
	Media     MediaConfig
	Timeouts  TimeoutConfig
	API       APIConfig
	LogLevel  string
}

// SignalingConfig configures the connection to the signaling service.
type SignalingConfig struct {
	URL         string
	ClientID    string
	DisplayName string
	DialTimeout time.Duration
}

// ICEConfig lists the STUN/TURN servers handed to the peer connection.
// The relay service itself is external; only its URLs are consumed here.
type ICEConfig struct {
	URLs       []string
	Username   string
	Credential string

	// ICE agent timeouts passed to the SettingEngine.
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepAliveInterval   time.Duration
}

// MediaConfig carries the capture quality hints. Width/Height/Framerate are
// ideals, not exact constraints; the driver picks the closest mode.
type MediaConfig struct {
	Width        int
	Height       int
	Framerate    int
	VideoBitRate int
	AudioBitRate int
}

// TimeoutConfig holds the ring windows and the quality sampling interval.
type TimeoutConfig struct {
	OutgoingRing    time.Duration // no answer within this window -> missed
	IncomingRing    time.Duration // no local action within this window -> auto-decline
	QualityInterval time.Duration
}

// APIConfig configures the local HTTP surface the UI layer polls.
type APIConfig struct {
	Addr string
}

// NewDefaultConfig returns a Config with default values
func NewDefaultConfig() *Config {
	return &Config{
		Signaling: SignalingConfig{
			URL:         "ws://localhost:7000/ws",
			DialTimeout: 10 * time.Second,
		},
		ICE: ICEConfig{
			URLs: []string{
				"stun:stun.l.google.com:19302",
				"stun:stun1.l.google.com:19302",
			},
			DisconnectedTimeout: 5 * time.Second,
			FailedTimeout:       10 * time.Second,
			KeepAliveInterval:   2 * time.Second,
		},
		Media: MediaConfig{
			Width:        1280,
			Height:       720,
			Framerate:    30,
			VideoBitRate: 500_000,
			AudioBitRate: 32_000,
		},
		Timeouts: TimeoutConfig{
			OutgoingRing:    30 * time.Second,
			IncomingRing:    60 * time.Second,
			QualityInterval: 5 * time.Second,
		},
		API: APIConfig{
			Addr: "localhost:7800",
		},
		LogLevel: "info",
	}
}

// Load returns the default config with environment overrides applied.
func Load() *Config {
	cfg := NewDefaultConfig()

	if v := os.Getenv("TEAMLABS_SIGNALING_URL"); v != "" {
		cfg.Signaling.URL = v
	}
	if v := os.Getenv("TEAMLABS_CLIENT_ID"); v != "" {
		cfg.Signaling.ClientID = v
	}
	if v := os.Getenv("TEAMLABS_DISPLAY_NAME"); v != "" {
		cfg.Signaling.DisplayName = v
	}
	if v := os.Getenv("TEAMLABS_ICE_URLS"); v != "" {
		cfg.ICE.URLs = splitAndTrim(v)
	}
	if v := os.Getenv("TEAMLABS_ICE_USERNAME"); v != "" {
		cfg.ICE.Username = v
	}
	if v := os.Getenv("TEAMLABS_ICE_CREDENTIAL"); v != "" {
		cfg.ICE.Credential = v
	}
	if v := os.Getenv("TEAMLABS_API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("TEAMLABS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TEAMLABS_VIDEO_BITRATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Media.VideoBitRate = n
		}
	}

	return cfg
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
