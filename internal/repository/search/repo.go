package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mailscope/mailscope/internal/db"
	"github.com/mailscope/mailscope/internal/domain"
	"github.com/mailscope/mailscope/internal/domain/search/filter"
	"github.com/mailscope/mailscope/internal/domain/search/match"
)

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchFilter(ctx context.Context, q *db.FilterQuery) (*db.SearchResult, error)
}

// Repo implements usecase/vector.Searcher over a single index per collection.
type Repo struct {
	store store
}

// New creates a search repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// returnFields limits FT.SEARCH payloads to what ranking needs; full
// documents come from the metadata repository afterwards.
var returnFields = []string{"__vector_score", "subject", "date", "has_attachments"}

// SearchKNN performs a KNN vector search on one collection with optional
// filter pre-filtering.
func (r *Repo) SearchKNN(
	ctx context.Context, collection string,
	vector []float32, filters filter.Filters, topK int,
) ([]match.Match, error) {
	q := &db.KNNQuery{
		IndexName:    indexName(collection),
		Vector:       vector,
		Filters:      filters,
		K:            topK,
		ReturnFields: returnFields,
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w", collection, err)
	}

	return parseMatches(sr, collection), nil
}

// SearchFilter retrieves documents matching the filters without vector
// scoring. Every match gets a raw score of 1.0 so downstream weighting
// and thresholding treat filter hits uniformly.
func (r *Repo) SearchFilter(
	ctx context.Context, collection string,
	filters filter.Filters, limit int,
) ([]match.Match, error) {
	q := &db.FilterQuery{
		IndexName:    indexName(collection),
		Filters:      filters,
		Limit:        limit,
		ReturnFields: returnFields[1:],
	}

	sr, err := r.store.SearchFilter(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search filter %s: %w", collection, err)
	}

	matches := parseMatches(sr, collection)
	for i := range matches {
		matches[i].Score = 1.0
	}
	return matches, nil
}

func indexName(collection string) string {
	return fmt.Sprintf("%s%s:idx", domain.KeyPrefix, collection)
}

func parseMatches(sr *db.SearchResult, collection string) []match.Match {
	if sr == nil || sr.Total == 0 {
		return nil
	}

	prefix := fmt.Sprintf("%s%s:", domain.KeyPrefix, collection)
	matches := make([]match.Match, 0, len(sr.Entries))

	for _, entry := range sr.Entries {
		m := match.Match{
			DocID:      strings.TrimPrefix(entry.Key, prefix),
			Collection: collection,
			Score:      entry.Score,
			Payload:    entry.Fields,
		}
		if v, ok := entry.Fields["date"]; ok {
			if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
				m.Timestamp = time.Unix(unix, 0).UTC()
			}
		}
		matches = append(matches, m)
	}

	return matches
}
