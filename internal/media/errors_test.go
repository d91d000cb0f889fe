package media

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyDriverErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"permission denied", errors.New("v4l2: permission denied"), ErrPermissionDenied},
		{"not allowed", errors.New("capture Not Allowed by user"), ErrPermissionDenied},
		{"no such device", errors.New("open /dev/video0: no such device"), ErrDeviceNotFound},
		{"no available device", errors.New("no available device found"), ErrDeviceNotFound},
		{"device busy", errors.New("open /dev/video0: device or resource busy"), ErrDeviceBusy},
		{"in use", errors.New("microphone already in use"), ErrDeviceBusy},
		{"best driver", errors.New("failed to find the best driver that fits the constraints"), ErrConstraintsNotSatisfiable},
		{"unsupported", errors.New("unsupported pixel format"), ErrConstraintsNotSatisfiable},
		{"unknown", errors.New("something exploded"), ErrUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.err)
			if got.Kind != tc.want {
				t.Fatalf("classify(%q).Kind = %v, want %v", tc.err, got.Kind, tc.want)
			}
			if !errors.Is(got, tc.err) {
				t.Fatal("classified error does not wrap the original")
			}
		})
	}
}

func TestEveryKindHasUserMessage(t *testing.T) {
	kinds := []ErrorKind{ErrUnknown, ErrPermissionDenied, ErrDeviceNotFound, ErrDeviceBusy, ErrConstraintsNotSatisfiable}
	for _, k := range kinds {
		if (&Error{Kind: k}).Message() == "" {
			t.Fatalf("no user message for kind %v", k)
		}
	}
}

func TestAsErrorUnwrapsThroughWrapping(t *testing.T) {
	inner := &Error{Kind: ErrDeviceBusy, Err: errors.New("busy")}
	wrapped := fmt.Errorf("starting call: %w", inner)

	got, ok := AsError(wrapped)
	if !ok {
		t.Fatal("AsError failed through fmt.Errorf wrapping")
	}
	if got.Kind != ErrDeviceBusy {
		t.Fatalf("Kind = %v, want ErrDeviceBusy", got.Kind)
	}

	if _, ok := AsError(errors.New("plain")); ok {
		t.Fatal("AsError matched a non-media error")
	}
}

func TestStubHandleLifecycle(t *testing.T) {
	h := NewStubHandle()
	if h.Stopped() {
		t.Fatal("fresh handle reports stopped")
	}
	if got := len(h.Tracks()); got != 0 {
		t.Fatalf("stub handle has %d tracks, want 0", got)
	}

	if muted := h.ToggleAudio(); !muted {
		t.Fatal("first audio toggle should mute")
	}
	if muted := h.ToggleAudio(); muted {
		t.Fatal("second audio toggle should unmute")
	}

	h.Stop()
	h.Stop() // idempotent
	if !h.Stopped() {
		t.Fatal("handle not stopped after Stop")
	}
}
