package diskspace

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckAvailableSpace(t *testing.T) {
	target := filepath.Join(t.TempDir(), "upload.tmp")

	t.Run("SmallFile", func(t *testing.T) {
		if err := CheckAvailableSpace(target, 1024, 1.1); err != nil {
			t.Errorf("Expected no error for small file, got: %v", err)
		}
	})

	t.Run("VeryLargeFile", func(t *testing.T) {
		// 100 PB
		err := CheckAvailableSpace(target, 100<<50, 1.1)
		if err == nil {
			t.Skip("filesystem reports no usable free space figure")
		}
		if !IsInsufficientSpaceError(err) {
			t.Errorf("Expected InsufficientSpaceError, got: %T", err)
		}
	})

	t.Run("SafetyMargin", func(t *testing.T) {
		available := GetAvailableSpace(target)
		if available == 0 {
			t.Skip("Could not determine available space")
		}
		if err := CheckAvailableSpace(target, available/2, 1.1); err != nil {
			t.Errorf("Expected space for half of available (%d bytes), got: %v", available/2, err)
		}
		if err := CheckAvailableSpace(target, available, 2); err == nil {
			t.Error("Expected margin to push the requirement past available space")
		}
	})
}

func TestCheckAvailableSpaceMissingDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "missing", "deeper", "file")
	if err := CheckAvailableSpace(target, 1<<60, 1); err != nil {
		t.Errorf("unknown free space should pass, got: %v", err)
	}
}

func TestIsInsufficientSpaceError(t *testing.T) {
	err := &InsufficientSpaceError{Path: "/store/x", RequiredBytes: 1000, AvailableBytes: 500}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"direct", err, true},
		{"wrapped", fmt.Errorf("upload: %w", err), true},
		{"other", fmt.Errorf("some other error"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		if got := IsInsufficientSpaceError(tt.err); got != tt.want {
			t.Errorf("%s: IsInsufficientSpaceError() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestInsufficientSpaceErrorMessage(t *testing.T) {
	err := &InsufficientSpaceError{
		Path:           "/store/x.bin",
		RequiredBytes:  100 << 20,
		AvailableBytes: 50 << 20,
	}
	msg := err.Error()
	for _, want := range []string{"/store/x.bin", "100 MiB", "50 MiB"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}
