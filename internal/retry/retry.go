// internal/retry/retry.go
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/law-makers/harvest/internal/fault"
	"github.com/rs/zerolog/log"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries     int           // Retries after the first attempt
	InitialBackoff time.Duration // Initial backoff duration
	MaxBackoff     time.Duration // Maximum backoff duration
	Multiplier     float64       // Backoff multiplier
}

// DefaultConfig returns a sensible default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
	}
}

// Do runs fn until it succeeds, returns a non-transient error, or runs out of
// retries. It returns the number of attempts made and the last error.
func Do(ctx context.Context, cfg Config, fn func(attempt int) error) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	maxAttempts := cfg.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn(attempt + 1)
		if err == nil {
			if attempt > 0 {
				log.Debug().
					Int("attempts", attempt+1).
					Msg("Retry succeeded")
			}
			return attempt + 1, nil
		}

		lastErr = err

		if !fault.IsTransient(err) {
			return attempt + 1, err
		}
		if ctx.Err() != nil {
			return attempt + 1, err
		}

		// Don't sleep after the last attempt
		if attempt < maxAttempts-1 {
			backoff := calculateBackoff(attempt, cfg)

			log.Debug().
				Int("attempt", attempt+1).
				Int("max_attempts", maxAttempts).
				Dur("backoff", backoff).
				Err(err).
				Msg("Retrying after backoff")

			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return attempt + 1, err
			}
		}
	}

	if maxAttempts > 1 {
		log.Warn().
			Int("attempts", maxAttempts).
			Err(lastErr).
			Msg("Max retry attempts exceeded")
		return maxAttempts, fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
	}
	return maxAttempts, lastErr
}

// calculateBackoff calculates the backoff duration for the given attempt
func calculateBackoff(attempt int, cfg Config) time.Duration {
	// Exponential backoff: initialBackoff * (multiplier ^ attempt)
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))

	// Cap at max backoff
	if cfg.MaxBackoff > 0 && backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}

	return time.Duration(backoff)
}
