package db

import "github.com/mailscope/mailscope/internal/domain/search/filter"

// KNNQuery is the input for vector similarity search on one collection index.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	Filters      filter.Filters
	K            int
	ReturnFields []string
}

// FilterQuery is the input for filter-only retrieval (no vector).
type FilterQuery struct {
	IndexName    string
	Filters      filter.Filters
	Limit        int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
