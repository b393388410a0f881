package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/mailscope/mailscope/internal/domain"
)

// ValidatingEmbedder rejects malformed vectors before they can reach the
// cache or the search pipeline: wrong dimensionality, non-finite values,
// or all-zero vectors.
type ValidatingEmbedder struct {
	inner      domain.Embedder
	dimensions int
}

// NewValidatingEmbedder creates the validation decorator. dimensions of 0
// disables the length check.
func NewValidatingEmbedder(inner domain.Embedder, dimensions int) *ValidatingEmbedder {
	return &ValidatingEmbedder{inner: inner, dimensions: dimensions}
}

// Embed delegates and validates the returned vector.
func (v *ValidatingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	result, err := v.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}

	if len(result.Embedding) == 0 {
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding vector: %w", domain.ErrEmbeddingInvalid)
	}
	if v.dimensions > 0 && len(result.Embedding) != v.dimensions {
		return domain.EmbeddingResult{}, fmt.Errorf("embedding dimension mismatch: got %d, want %d: %w",
			len(result.Embedding), v.dimensions, domain.ErrEmbeddingInvalid)
	}

	allZero := true
	for _, f := range result.Embedding {
		f64 := float64(f)
		if math.IsNaN(f64) || math.IsInf(f64, 0) {
			return domain.EmbeddingResult{}, fmt.Errorf("embedding contains non-finite values: %w", domain.ErrEmbeddingInvalid)
		}
		if f != 0 {
			allZero = false
		}
	}
	if allZero {
		return domain.EmbeddingResult{}, fmt.Errorf("embedding is a zero vector: %w", domain.ErrEmbeddingInvalid)
	}

	return result, nil
}
