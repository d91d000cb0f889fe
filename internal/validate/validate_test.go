package validate

import (
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/tejassgg/teamlabs-calls/internal/config"
)

const validSDP = "v=0\r\n" +
	"o=- 123 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"a=ice-ufrag:someufrag\r\n" +
	"a=ice-pwd:somepassword\r\n" +
	"a=fingerprint:sha-256 AA:BB:CC\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n"

func TestValidateSDP(t *testing.T) {
	cases := []struct {
		name      string
		sdp       *webrtc.SessionDescription
		wantField string
	}{
		{"valid", &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: validSDP}, ""},
		{"nil description", nil, "SessionDescription"},
		{"empty body", &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer}, "SessionDescription"},
		{
			"no media sections",
			&webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\ns=-\r\n"},
			"Media",
		},
		{
			"no ice credentials",
			&webrtc.SessionDescription{
				Type: webrtc.SDPTypeOffer,
				SDP:  "v=0\r\nm=audio 9 UDP/TLS/RTP/SAVPF 111\r\na=fingerprint:sha-256 AA\r\n",
			},
			"ICE",
		},
		{
			"no fingerprint",
			&webrtc.SessionDescription{
				Type: webrtc.SDPTypeOffer,
				SDP:  "v=0\r\nm=audio 9 UDP/TLS/RTP/SAVPF 111\r\na=ice-ufrag:u\r\n",
			},
			"DTLS",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSDP(tc.sdp)
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateSDP = %v, want nil", err)
				}
				return
			}
			var sdpErr *SDPValidationError
			if !asSDPError(err, &sdpErr) {
				t.Fatalf("err = %v, want SDPValidationError", err)
			}
			if sdpErr.Field != tc.wantField {
				t.Fatalf("Field = %q, want %q", sdpErr.Field, tc.wantField)
			}
		})
	}
}

func asSDPError(err error, target **SDPValidationError) bool {
	e, ok := err.(*SDPValidationError)
	if ok {
		*target = e
	}
	return ok
}

func TestValidateConfigAccumulatesErrors(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Signaling.URL = ""
	cfg.Media.Width = -1
	cfg.Timeouts.OutgoingRing = 0

	err := ValidateConfig(cfg)
	if err == nil {
		t.Fatal("ValidateConfig accepted a broken config")
	}

	msg := err.Error()
	for _, fragment := range []string{"signaling", "width", "ring"} {
		if !strings.Contains(strings.ToLower(msg), fragment) {
			t.Fatalf("error %q does not mention %q", msg, fragment)
		}
	}
}

func TestValidateConfigAcceptsDefaults(t *testing.T) {
	if err := ValidateConfig(config.NewDefaultConfig()); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}

func TestProbeSTUNRejectsNonStunURL(t *testing.T) {
	if err := ProbeSTUN("turn:relay.example.com:3478", 0); err == nil {
		t.Fatal("ProbeSTUN accepted a non-stun URL")
	}
}
