package sentry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// Sentry keeps global state, so these tests run sequentially.

func TestInitialize_EmptyDSN(t *testing.T) {
	if err := Initialize(Config{DSN: ""}); err != nil {
		t.Errorf("Expected nil error for empty DSN, got %v", err)
	}
}

func TestInitialize_InvalidDSN(t *testing.T) {
	if err := Initialize(Config{DSN: "::not-a-dsn"}); err == nil {
		t.Error("Expected error for malformed DSN")
	}
}

func TestInitialize_ValidConfig(t *testing.T) {
	err := Initialize(Config{
		DSN:         "https://public@errors.example.com/1",
		Environment: "test",
		Release:     "v0.0.0-test",
	})
	if err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}
	if !IsEnabled() {
		t.Error("Expected IsEnabled() to return true after initialization")
	}

	ctx := context.Background()
	CaptureWithTags(ctx, errors.New("handler failed"), map[string]string{"command": "approve"})
	CapturePanic(ctx, "boom", []byte("goroutine 1 [running]"), map[string]string{"command": "track"})
	CaptureExceptionWithContext(ctx, errors.New("delivery dropped"))

	Flush(time.Second)
}

func TestFlush_NoEvents(t *testing.T) {
	if !Flush(100 * time.Millisecond) {
		t.Error("Expected Flush to return true when no events pending")
	}
}
