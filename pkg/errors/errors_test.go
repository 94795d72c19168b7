package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestBridgeError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "with cause",
			err:  E(KindDrainScan, "scanning events", errors.New("connection reset")),
			want: "drain_scan: scanning events: connection reset",
		},
		{
			name: "without cause",
			err:  E(KindConfig, "buffer_size must be at least 1", nil),
			want: "config: buffer_size must be at least 1",
		},
	}

	for _, tc := range tests {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("%s: Error() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	cause := errors.New("broken pipe")
	err := E(KindSinkFlush, "publishing 3 records", cause)

	if got := KindOf(err); got != KindSinkFlush {
		t.Errorf("KindOf = %q, want %q", got, KindSinkFlush)
	}

	// Kind survives further wrapping.
	wrapped := fmt.Errorf("worker: %w", err)
	if got := KindOf(wrapped); got != KindSinkFlush {
		t.Errorf("KindOf(wrapped) = %q, want %q", got, KindSinkFlush)
	}

	if got := KindOf(errors.New("plain")); got != Kind("") {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
	if got := KindOf(nil); got != Kind("") {
		t.Errorf("KindOf(nil) = %q, want empty", got)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("no route to host")
	err := E(KindDrainConnect, "connecting", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause through Unwrap")
	}
}

func TestIsKind(t *testing.T) {
	err := E(KindMalformedNotification, "notification missing id", nil)

	if !IsKind(err, KindMalformedNotification) {
		t.Error("IsKind should match the error's own kind")
	}
	if IsKind(err, KindDrainScan) {
		t.Error("IsKind should not match a different kind")
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil", nil, false},
		{"transient", E(KindNotificationTransient, "read failed", nil), false},
		{"scan", E(KindDrainScan, "scan failed", nil), true},
		{"delete", E(KindDrainDelete, "delete failed", nil), true},
		{"unclassified", errors.New("anything"), true},
	}

	for _, tc := range tests {
		if got := IsFatal(tc.err); got != tc.fatal {
			t.Errorf("%s: IsFatal = %v, want %v", tc.name, got, tc.fatal)
		}
	}
}
