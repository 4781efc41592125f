// Package retry is a pure decision function: given the retry option
// group, the attempt number just made, and its outcome, it says whether
// to try again and how long to wait first. It never sleeps itself — the
// pipeline owns the sleep so it can honor context cancellation and
// shutdown.
package retry

import (
	"math"
	"time"

	"github.com/verjil-oss/httpsink-bridge/internal/config"
)

// Decision is the result of evaluating one attempt's outcome.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// StatusError wraps a non-2xx HTTP response so callers can distinguish
// it from a transport-level error (connection refused, timeout, etc.).
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "httpsink: endpoint returned non-2xx status"
}

// Next decides whether attempt (1-indexed, the attempt that just ran)
// should be retried. statusCode is the HTTP status of the attempt, or 0
// if the attempt failed before a response was received (transport
// error, in which case transportErr should be non-nil).
func Next(cfg config.RetryConfig, attempt int, statusCode int, transportErr error) Decision {
	if !cfg.Enabled {
		return Decision{Retry: false}
	}
	if attempt >= cfg.MaxAttempts {
		return Decision{Retry: false}
	}
	if !shouldRetry(cfg, statusCode, transportErr) {
		return Decision{Retry: false}
	}
	return Decision{Retry: true, Delay: backoff(cfg, attempt)}
}

func shouldRetry(cfg config.RetryConfig, statusCode int, transportErr error) bool {
	if transportErr != nil {
		return true
	}
	if statusCode == 0 {
		return false
	}
	for _, code := range cfg.RetryOnStatusCodes {
		if code == statusCode {
			return true
		}
	}
	return false
}

// backoff computes the delay before the next attempt: initial *
// multiplier^(attempt-1), capped at max.
func backoff(cfg config.RetryConfig, attempt int) time.Duration {
	factor := math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	delayMs := float64(cfg.BackoffInitialMs) * factor
	if maxMs := float64(cfg.BackoffMaxMs); delayMs > maxMs {
		delayMs = maxMs
	}
	return time.Duration(delayMs) * time.Millisecond
}
