// Package embedding contains the decorator chain around the raw embedding
// provider: retry with backoff, then vector validation. Caching wraps the
// chain from the outside (repository/embcache).
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/mailscope/mailscope/internal/domain"
	"github.com/mailscope/mailscope/internal/metrics"
)

// RetryPolicy controls how transient embedding failures are retried.
// Rate limits wait a fixed cooldown; timeouts and network failures follow
// the exponential schedule. Hard API errors abort immediately.
type RetryPolicy struct {
	MaxAttempts       int
	RateLimitCooldown time.Duration
	NewSchedule       func() backoff.BackOff
}

// DefaultRetryPolicy mirrors production settings: three attempts, five
// second cooldown after a rate limit, exponential backoff otherwise.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		RateLimitCooldown: 5 * time.Second,
		NewSchedule: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 4 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// RetryingEmbedder wraps an Embedder with the retry policy.
type RetryingEmbedder struct {
	inner    domain.Embedder
	policy   RetryPolicy
	provider string
	logger   *zap.Logger
}

// NewRetryingEmbedder creates the retry decorator.
func NewRetryingEmbedder(inner domain.Embedder, policy RetryPolicy, provider string, logger *zap.Logger) *RetryingEmbedder {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &RetryingEmbedder{inner: inner, policy: policy, provider: provider, logger: logger}
}

// Embed delegates to the inner embedder, retrying transient failures.
// The last error is returned when all attempts are exhausted.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	var schedule backoff.BackOff
	if r.policy.NewSchedule != nil {
		schedule = r.policy.NewSchedule()
	} else {
		schedule = backoff.NewExponentialBackOff()
	}

	var (
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		attempts = attempt
		result, err := r.inner.Embed(ctx, text)
		if err == nil {
			return result, nil
		}
		lastErr = err

		wait, reason, retryable := r.classify(err, schedule)
		if !retryable || attempt == r.policy.MaxAttempts {
			break
		}

		metrics.EmbeddingRetriesTotal.WithLabelValues(r.provider, reason).Inc()
		r.logger.Warn("Embedding attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.String("reason", reason),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		if err := sleepCtx(ctx, wait); err != nil {
			return domain.EmbeddingResult{}, fmt.Errorf("embedding retry interrupted: %w", err)
		}
	}

	return domain.EmbeddingResult{}, fmt.Errorf("embedding failed after %d attempts: %w", attempts, lastErr)
}

func (r *RetryingEmbedder) classify(err error, schedule backoff.BackOff) (time.Duration, string, bool) {
	switch {
	case errors.Is(err, domain.ErrEmbeddingRateLimited):
		return r.policy.RateLimitCooldown, "rate_limited", true
	case errors.Is(err, domain.ErrEmbeddingTimeout):
		wait := schedule.NextBackOff()
		if wait == backoff.Stop {
			return 0, "timeout", false
		}
		return wait, "timeout", true
	default:
		// hard API errors are not retried
		return 0, "api_error", false
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
