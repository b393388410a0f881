package embedding

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/mailscope/mailscope/internal/domain"
)

// mockEmbedder returns queued responses, one per call.
type mockEmbedder struct {
	responses []response
	calls     int
}

type response struct {
	result domain.EmbeddingResult
	err    error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	i := m.calls
	m.calls++
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	r := m.responses[i]
	return r.result, r.err
}

func testPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		RateLimitCooldown: time.Millisecond,
		NewSchedule: func() backoff.BackOff {
			return backoff.NewConstantBackOff(time.Millisecond)
		},
	}
}

func okVector() domain.EmbeddingResult {
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	inner := &mockEmbedder{responses: []response{{result: okVector()}}}
	re := NewRetryingEmbedder(inner, testPolicy(), "openai", zap.NewNop())

	result, err := re.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 2 {
		t.Errorf("unexpected vector: %v", result.Embedding)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
}

func TestRetry_RecoversFromTimeout(t *testing.T) {
	inner := &mockEmbedder{responses: []response{
		{err: domain.ErrEmbeddingTimeout},
		{err: domain.ErrEmbeddingTimeout},
		{result: okVector()},
	}}
	re := NewRetryingEmbedder(inner, testPolicy(), "openai", zap.NewNop())

	if _, err := re.Embed(context.Background(), "text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetry_RecoversFromRateLimit(t *testing.T) {
	inner := &mockEmbedder{responses: []response{
		{err: domain.ErrEmbeddingRateLimited},
		{result: okVector()},
	}}
	re := NewRetryingEmbedder(inner, testPolicy(), "openai", zap.NewNop())

	if _, err := re.Embed(context.Background(), "text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("expected 2 calls, got %d", inner.calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	inner := &mockEmbedder{responses: []response{{err: domain.ErrEmbeddingTimeout}}}
	re := NewRetryingEmbedder(inner, testPolicy(), "openai", zap.NewNop())

	_, err := re.Embed(context.Background(), "text")
	if !errors.Is(err, domain.ErrEmbeddingTimeout) {
		t.Fatalf("expected last error surfaced, got %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetry_APIErrorNotRetried(t *testing.T) {
	inner := &mockEmbedder{responses: []response{{err: domain.ErrEmbeddingProvider}}}
	re := NewRetryingEmbedder(inner, testPolicy(), "openai", zap.NewNop())

	_, err := re.Embed(context.Background(), "text")
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("hard API errors must not retry, got %d calls", inner.calls)
	}
	if !strings.Contains(err.Error(), "after 1 attempts") {
		t.Errorf("error should report the actual attempt count: %v", err)
	}
}

func TestRetry_ContextCancelDuringWait(t *testing.T) {
	inner := &mockEmbedder{responses: []response{{err: domain.ErrEmbeddingRateLimited}}}
	policy := testPolicy()
	policy.RateLimitCooldown = time.Minute
	re := NewRetryingEmbedder(inner, policy, "openai", zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := re.Embed(ctx, "text")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context error, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call before cancel, got %d", inner.calls)
	}
}

// --- validation ---

type staticEmbedder struct {
	result domain.EmbeddingResult
	err    error
}

func (s *staticEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return s.result, s.err
}

func TestValidate_AcceptsGoodVector(t *testing.T) {
	ve := NewValidatingEmbedder(&staticEmbedder{result: okVector()}, 2)

	result, err := ve.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 2 {
		t.Errorf("unexpected vector: %v", result.Embedding)
	}
}

func TestValidate_DimensionMismatch(t *testing.T) {
	ve := NewValidatingEmbedder(&staticEmbedder{result: okVector()}, 1536)

	_, err := ve.Embed(context.Background(), "text")
	if !errors.Is(err, domain.ErrEmbeddingInvalid) {
		t.Fatalf("expected ErrEmbeddingInvalid, got %v", err)
	}
}

func TestValidate_NonFinite(t *testing.T) {
	bad := domain.EmbeddingResult{Embedding: []float32{0.1, float32(math.NaN())}}
	ve := NewValidatingEmbedder(&staticEmbedder{result: bad}, 0)

	_, err := ve.Embed(context.Background(), "text")
	if !errors.Is(err, domain.ErrEmbeddingInvalid) {
		t.Fatalf("expected ErrEmbeddingInvalid, got %v", err)
	}
}

func TestValidate_ZeroVector(t *testing.T) {
	bad := domain.EmbeddingResult{Embedding: []float32{0, 0, 0}}
	ve := NewValidatingEmbedder(&staticEmbedder{result: bad}, 0)

	_, err := ve.Embed(context.Background(), "text")
	if !errors.Is(err, domain.ErrEmbeddingInvalid) {
		t.Fatalf("expected ErrEmbeddingInvalid, got %v", err)
	}
}

func TestValidate_EmptyVector(t *testing.T) {
	ve := NewValidatingEmbedder(&staticEmbedder{result: domain.EmbeddingResult{}}, 0)

	_, err := ve.Embed(context.Background(), "text")
	if !errors.Is(err, domain.ErrEmbeddingInvalid) {
		t.Fatalf("expected ErrEmbeddingInvalid, got %v", err)
	}
}

func TestValidate_PropagatesInnerError(t *testing.T) {
	ve := NewValidatingEmbedder(&staticEmbedder{err: domain.ErrEmbeddingTimeout}, 0)

	_, err := ve.Embed(context.Background(), "text")
	if !errors.Is(err, domain.ErrEmbeddingTimeout) {
		t.Fatalf("expected inner error, got %v", err)
	}
}
