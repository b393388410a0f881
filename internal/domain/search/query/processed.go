package query

import "github.com/mailscope/mailscope/internal/domain/search/filter"

// Query type classifications produced by the processor.
const (
	TypeGeneral  = "general"
	TypeFiltered = "filtered_search"
	TypeExact    = "exact_search"
	TypeQuestion = "question"
)

// Processed is the result of normalizing and analyzing a raw query.
// It is owned by a single request and cached as a whole, so it stays a
// plain serializable struct.
type Processed struct {
	Original   string         `json:"original"`
	Normalized string         `json:"normalized"`
	Language   string         `json:"language"`
	QueryType  string         `json:"query_type"`
	Keywords   []string       `json:"keywords"`
	Filters    filter.Filters `json:"filters"`
}
