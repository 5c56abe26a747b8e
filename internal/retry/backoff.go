package retry

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/appsec/internal/runerr"
)

// RetryConfig configures retry behavior with exponential backoff
type RetryConfig struct {
	MaxRetries int           `koanf:"max_retries"` // Maximum number of retry attempts
	BaseDelay  time.Duration `koanf:"base_delay"`  // Delay before the first retry
	MaxDelay   time.Duration `koanf:"max_delay"`   // Upper bound for any single delay
	Multiplier float64       `koanf:"multiplier"`  // Exponential backoff multiplier
	Jitter     bool          `koanf:"jitter"`      // Add up to 10% random jitter

	// ShouldRetry decides whether a failed attempt is worth repeating.
	// Nil means IsRetryableError.
	ShouldRetry func(error) bool `koanf:"-"`
}

// RetryResult contains information about the retry operation
type RetryResult struct {
	Attempts      int
	TotalDuration time.Duration
	LastError     error
	Success       bool
	RetryReasons  []string
}

// DefaultRetryConfig is used for hosting-service calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// LLMRetryConfig is used for reasoning calls, which are slower and rate limited.
func LLMRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2.5,
		Jitter:     true,
	}
}

// RetryWithBackoff runs operation until it succeeds, fails with a
// non-retryable error, runs out of attempts, or ctx is done.
func RetryWithBackoff(ctx context.Context, config RetryConfig, operation func(ctx context.Context) error, logger *zerolog.Logger) RetryResult {
	if logger == nil {
		logger = &log.Logger
	}
	shouldRetry := config.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRetryableError
	}

	startTime := time.Now()
	result := RetryResult{RetryReasons: make([]string, 0)}

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		err := operation(ctx)
		if err == nil {
			result.Success = true
			result.LastError = nil
			result.TotalDuration = time.Since(startTime)
			if attempt > 0 {
				logger.Debug().Int("retries", attempt).Dur("duration", result.TotalDuration).Msg("Operation succeeded after retries")
			}
			return result
		}

		result.LastError = err
		result.RetryReasons = append(result.RetryReasons, err.Error())

		if attempt >= config.MaxRetries || !shouldRetry(err) {
			result.TotalDuration = time.Since(startTime)
			return result
		}

		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		}

		delay := calculateDelay(config, attempt)
		logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", config.MaxRetries+1).
			Dur("delay", delay).
			Msg("Operation failed, retrying")

		select {
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		case <-time.After(delay):
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result
}

// calculateDelay calculates the delay for the next retry attempt using exponential backoff
func calculateDelay(config RetryConfig, attempt int) time.Duration {
	delay := float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt))

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(config.BaseDelay)
		}
	}

	return time.Duration(delay)
}

var retryableMessages = []string{
	"connection refused",
	"connection reset",
	"connection timeout",
	"timeout",
	"temporary failure",
	"service unavailable",
	"too many requests",
	"rate limit",
	"429",
	"502",
	"503",
	"504",
	"no such host",
	"network unreachable",
	"broken pipe",
}

// IsRetryableError reports whether err looks transient. Server-side
// transport errors are retryable; other tagged run errors never are.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if runerr.IsCategory(err, runerr.CategoryServerError) {
		return true
	}
	if _, tagged := runerr.KindOf(err); tagged {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, retryable := range retryableMessages {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}
	return false
}
