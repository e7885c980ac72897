package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReconnect_SucceedsFirstAttempt(t *testing.T) {
	attempts := 0
	err := Reconnect(context.Background(), func() error {
		attempts++
		return nil
	}, DefaultReconnectConfig())

	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestReconnect_RetriesUntilSuccess(t *testing.T) {
	cfg := &ReconnectConfig{
		MaxAttempts: 5,
		Backoff:     5 * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  50 * time.Millisecond,
	}

	attempts := 0
	err := Reconnect(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	}, cfg)

	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestReconnect_ExhaustsAttempts(t *testing.T) {
	cfg := &ReconnectConfig{
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  10 * time.Millisecond,
	}

	attempts := 0
	err := Reconnect(context.Background(), func() error {
		attempts++
		return errors.New("always down")
	}, cfg)

	if err == nil {
		t.Error("Expected error after exhausting attempts")
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestReconnect_ContextCancellation(t *testing.T) {
	cfg := &ReconnectConfig{
		MaxAttempts: 10,
		Backoff:     100 * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := Reconnect(ctx, func() error {
		attempts++
		return errors.New("down")
	}, cfg)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if attempts > 2 {
		t.Errorf("Expected cancellation to stop retries early, got %d attempts", attempts)
	}
}

func TestReconnect_NilConfigUsesDefaults(t *testing.T) {
	err := Reconnect(context.Background(), func() error { return nil }, nil)
	if err != nil {
		t.Errorf("Expected nil error with default config, got %v", err)
	}
}
