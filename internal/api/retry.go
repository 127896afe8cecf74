// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"time"
)

// =============================================================================
// RETRY POLICY
// =============================================================================

// RetryPolicy bounds the retry loop. Immutable for the process lifetime.
type RetryPolicy struct {
	// MaxAttempts is the number of retries after the first attempt, so the
	// total attempt count is MaxAttempts+1.
	MaxAttempts int

	// BaseDelay is the first backoff delay; attempt n waits BaseDelay * 2^n.
	BaseDelay time.Duration
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
}

// Backoff returns the delay to wait after the given zero-based attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BaseDelay << attempt
}

// =============================================================================
// FAILURE CLASSIFICATION
// =============================================================================

// Retriable reports whether a failed attempt is worth repeating.
//
// Only rate limiting (429) and server-side errors (5xx) are retried; any
// other status is terminal so client errors like 400 are never hammered.
// A transport error with no response at all is treated as transient.
func Retriable(res AttemptResult) bool {
	if res.OK {
		return false
	}
	if res.Status == 0 {
		// Never got a response: connection refused, DNS failure, reset.
		// Cancellation is terminal, everything else is transient.
		return res.Err != nil && !IsCanceled(res.Err)
	}
	return res.Status == http.StatusTooManyRequests || res.Status >= 500
}

// =============================================================================
// RETRY CONTROLLER
// =============================================================================

// AttemptFunc performs one streaming attempt. The zero-based attempt number
// is passed so callers can label their status output.
type AttemptFunc func(attempt int) AttemptResult

// SleepFunc waits for the given backoff delay. Injectable so tests can run
// without wall-clock waits. It returns early with the context error when the
// wait is canceled.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc, a context-aware timer wait.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunWithRetry invokes attempt up to policy.MaxAttempts+1 times, waiting an
// exponentially growing delay between retriable failures. The final result,
// success or not, is returned to the caller; the controller never reaches
// inside an attempt.
func RunWithRetry(ctx context.Context, policy RetryPolicy, sleep SleepFunc, attempt AttemptFunc) AttemptResult {
	if sleep == nil {
		sleep = Sleep
	}

	var res AttemptResult
	for n := 0; n <= policy.MaxAttempts; n++ {
		res = attempt(n)
		if res.OK {
			return res
		}
		if !Retriable(res) || n == policy.MaxAttempts {
			return res
		}
		if err := sleep(ctx, policy.Backoff(n)); err != nil {
			return res
		}
	}
	return res
}
