package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/tutorstream/narration-gateway/internal/observability"
)

// ReconnectConfig holds configuration for reconnection logic
type ReconnectConfig struct {
	MaxAttempts int           // Maximum number of reconnection attempts
	Backoff     time.Duration // Initial backoff between attempts
	Multiplier  float64       // Backoff multiplier for exponential backoff
	MaxBackoff  time.Duration // Maximum backoff duration
}

// DefaultReconnectConfig returns a default reconnection configuration
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		MaxAttempts: 5,
		Backoff:     1 * time.Second,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
}

// ReconnectFunc is one reconnection attempt
type ReconnectFunc func() error

// Reconnect attempts fn with exponential backoff until it succeeds, the
// attempts are exhausted, or ctx is cancelled
func Reconnect(ctx context.Context, fn ReconnectFunc, config *ReconnectConfig) error {
	if config == nil {
		config = DefaultReconnectConfig()
	}

	logger := observability.WithComponent("resilience")
	backoff := config.Backoff

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			if attempt > 0 {
				logger.Info().Int("attempts", attempt+1).Msg("Reconnection successful")
			}
			return nil
		}

		// No sleep after the last attempt
		if attempt < config.MaxAttempts-1 {
			logger.Warn().Err(err).
				Int("attempt", attempt+1).
				Int("max_attempts", config.MaxAttempts).
				Dur("backoff", backoff).
				Msg("Reconnection attempt failed, retrying")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * config.Multiplier)
				if backoff > config.MaxBackoff {
					backoff = config.MaxBackoff
				}
			}
		}
	}

	return fmt.Errorf("failed to reconnect after %d attempts", config.MaxAttempts)
}
