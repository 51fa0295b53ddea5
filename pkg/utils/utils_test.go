package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

// --- CategorizeError Tests ---

func TestCategorizeError_NilError(t *testing.T) {
	result := CategorizeError(nil)
	if result != "None" {
		t.Errorf("CategorizeError(nil) = %q, want %q", result, "None")
	}
}

func TestCategorizeError_SentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"MissingTitle", ErrMissingTitle, "Structure_MissingTitle"},
		{"MissingCategory", ErrMissingCategory, "Structure_MissingCategory"},
		{"MissingListing", ErrMissingListing, "Structure_MissingListing"},
		{"UnparseableSize", ErrUnparseableSize, "Content_UnparseableSize"},
		{"MalformedURL", ErrMalformedURL, "Content_MalformedURL"},
		{"DestinationNotFound", ErrDestinationNotFound, "Config_DestinationNotFound"},
		{"RobotsDisallowed", ErrRobotsDisallowed, "Policy_Robots"},
		{"RequestCreation", ErrRequestCreation, "Internal_RequestCreation"},
		{"ResponseBodyRead", ErrResponseBodyRead, "Network_BodyRead"},
		{"ConfigValidation", ErrConfigValidation, "Config_Validation"},
		{"Database", ErrDatabase, "Database_Other"},
		{"Filesystem", ErrFilesystem, "Filesystem_Other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_FetchStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"404", fmt.Errorf("%w: status 404 Not Found for http://a.b.c/1", ErrFetch), "HTTP_404"},
		{"403", fmt.Errorf("%w: status 403 Forbidden for http://a.b.c/1", ErrFetch), "HTTP_403"},
		{"500", fmt.Errorf("%w: status 503 Service Unavailable for http://a.b.c/1", ErrFetch), "HTTP_5xx"},
		{"other", fmt.Errorf("%w: status 302 Found for http://a.b.c/1", ErrFetch), "HTTP_OtherStatus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestCategorizeError_Filesystem(t *testing.T) {
	err := fmt.Errorf("%w: create folder: %w", ErrFilesystem, os.ErrPermission)
	if got := CategorizeError(err); got != "Filesystem_Permission" {
		t.Errorf("CategorizeError() = %q, want Filesystem_Permission", got)
	}
}

func TestCategorizeError_ContextAndNetwork(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"Canceled", fmt.Errorf("crawl: %w", context.Canceled), "System_ContextCanceled"},
		{"Deadline", context.DeadlineExceeded, "System_ContextDeadlineExceeded"},
		{"Disconnect", fmt.Errorf("get image: %w", io.ErrUnexpectedEOF), "Network_RemoteDisconnected"},
		{"Refused", errors.New("dial tcp: connection refused"), "Network_ConnectionRefused"},
		{"DNS", errors.New("lookup x: no such host"), "Network_DNSLookup"},
		{"RetryDisconnect", fmt.Errorf("%w: %w", ErrRetryFailed, io.EOF), "RetryFailed_RemoteDisconnected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestCategorizeError_Unknown(t *testing.T) {
	if got := CategorizeError(errors.New("something odd")); got != "Unknown" {
		t.Errorf("CategorizeError() = %q, want Unknown", got)
	}
}

// --- IsRemoteDisconnect Tests ---

func TestIsRemoteDisconnect(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"EOF", io.EOF, true},
		{"wrapped unexpected EOF", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"sentinel", ErrRemoteDisconnected, true},
		{"idle close", errors.New("http: server closed idle connection"), true},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), false},
		{"status", fmt.Errorf("%w: status 500", ErrFetch), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRemoteDisconnect(tt.err); got != tt.want {
				t.Errorf("IsRemoteDisconnect(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// --- Sanitize Tests ---

func TestSanitizeSegment(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Re: Trip [2020]!", "Re Trip 2020"},
		{"  padded  ", "padded"},
		{"snake_case-name", "snake_case-name"},
		{"a/b\\c", "abc"},
		{"여행 사진 (1)", "여행 사진 1"},
		{"???", "untitled"},
		{"", "untitled"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SanitizeSegment(tt.input); got != tt.expected {
				t.Errorf("SanitizeSegment(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDestinationPath(t *testing.T) {
	got := DestinationPath("/data", "My Blog", "Trips: Asia", "Re: Trip [2020]!")
	want := filepath.Join("/data", "My Blog", "Trips Asia", "Re Trip 2020")
	if got != want {
		t.Errorf("DestinationPath() = %q, want %q", got, want)
	}
}

func TestDestinationPath_DoesNotCreate(t *testing.T) {
	root := t.TempDir()
	path := DestinationPath(root, "b", "c", "p")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("DestinationPath should not create %s", path)
	}
}

// --- Hash Tests ---

func TestCalculateFileSHA256(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	if err := os.WriteFile(path, []byte("hello world"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	got, err := CalculateFileSHA256(path)
	if err != nil {
		t.Fatalf("CalculateFileSHA256() error = %v", err)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Errorf("CalculateFileSHA256() = %q, want %q", got, want)
	}
}

func TestCalculateFileSHA256_NonExistentFile(t *testing.T) {
	if _, err := CalculateFileSHA256(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Expected error for non-existent file")
	}
}
