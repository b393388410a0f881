package domain

import "errors"

var (
	// ErrInvalidQuery signals a query that failed validation.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrRateLimited signals a client rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProvider signals an embedding provider failure.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrEmbeddingRateLimited signals a provider-side rate limit response.
	ErrEmbeddingRateLimited = errors.New("embedding provider rate limited")
	// ErrEmbeddingTimeout signals a timed-out embedding call.
	ErrEmbeddingTimeout = errors.New("embedding request timed out")
	// ErrEmbeddingInvalid signals a vector that failed dimension or finiteness checks.
	ErrEmbeddingInvalid = errors.New("invalid embedding")
	// ErrSearchBackend signals that every targeted collection failed.
	ErrSearchBackend = errors.New("search backend unavailable")
)
