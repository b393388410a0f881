package query

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mailscope/mailscope/internal/domain"
	"github.com/mailscope/mailscope/internal/domain/search/filter"
	"github.com/mailscope/mailscope/internal/domain/search/mode"
)

// Query parameter limits.
const (
	// MinQueryLength is the minimum trimmed query length.
	MinQueryLength = 2
	// MaxQueryLength is the maximum allowed query length.
	MaxQueryLength        = 1000
	DefaultLimit          = 20
	MaxLimit              = 100
	DefaultScoreThreshold = 0.7
)

// Query is a validated, immutable search request.
type Query struct {
	text           string
	searchMode     mode.Mode
	strategy       mode.Strategy
	collections    []string
	filters        filter.Filters
	limit          int
	scoreThreshold float64
}

// New validates and normalizes search parameters.
// Defaults: mode=hybrid, strategy=single, limit=20.
func New(
	text string,
	m mode.Mode,
	strategy mode.Strategy,
	collections []string,
	filters filter.Filters,
	limit int,
	scoreThreshold float64,
) (Query, error) {
	if err := ValidateText(text); err != nil {
		return Query{}, err
	}
	if m == "" {
		m = mode.Hybrid
	}
	if !m.IsValid() {
		return Query{}, fmt.Errorf("%w: unknown search mode %q", domain.ErrInvalidQuery, m)
	}
	if strategy == "" {
		strategy = mode.StrategySingle
	}
	if !strategy.IsValid() {
		return Query{}, fmt.Errorf("%w: unknown collection strategy %q", domain.ErrInvalidQuery, strategy)
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 0 || limit > MaxLimit {
		return Query{}, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidQuery, MaxLimit)
	}
	if scoreThreshold < 0 || scoreThreshold > 1 {
		return Query{}, fmt.Errorf("%w: score threshold must be between 0 and 1", domain.ErrInvalidQuery)
	}
	if err := filters.Validate(); err != nil {
		return Query{}, fmt.Errorf("%w: %s", domain.ErrInvalidQuery, err)
	}

	collections = dedupeCollections(collections)

	return Query{
		text:           text,
		searchMode:     m,
		strategy:       strategy,
		collections:    collections,
		filters:        filters,
		limit:          limit,
		scoreThreshold: scoreThreshold,
	}, nil
}

// ValidateText checks the raw query text against the length bounds.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: query text is empty", domain.ErrInvalidQuery)
	}
	if utf8.RuneCountInString(text) > MaxQueryLength {
		return fmt.Errorf("%w: query text too long (max %d chars)", domain.ErrInvalidQuery, MaxQueryLength)
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < MinQueryLength {
		return fmt.Errorf("%w: query text too short (min %d chars)", domain.ErrInvalidQuery, MinQueryLength)
	}
	return nil
}

// Text returns the raw query text.
func (q *Query) Text() string { return q.text }

// Mode returns the search mode.
func (q *Query) Mode() mode.Mode { return q.searchMode }

// Strategy returns the collection selection strategy.
func (q *Query) Strategy() mode.Strategy { return q.strategy }

// Collections returns the caller-supplied target collections.
func (q *Query) Collections() []string { return q.collections }

// Filters returns the explicit structured filters.
func (q *Query) Filters() filter.Filters { return q.filters }

// Limit returns the maximum results to return.
func (q *Query) Limit() int { return q.limit }

// ScoreThreshold returns the minimum normalized score for returned matches.
func (q *Query) ScoreThreshold() float64 { return q.scoreThreshold }

func dedupeCollections(collections []string) []string {
	if len(collections) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(collections))
	out := make([]string, 0, len(collections))
	for _, c := range collections {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
