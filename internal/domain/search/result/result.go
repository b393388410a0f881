package result

import (
	"time"

	"github.com/mailscope/mailscope/internal/domain/search/mode"
)

// Span marks a highlighted [start, end) byte range within a snippet.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Result is one enriched search hit, final once constructed.
type Result struct {
	DocID            string    `json:"doc_id"`
	Title            string    `json:"title"`
	Snippet          string    `json:"snippet"`
	Highlights       []Span    `json:"highlights,omitempty"`
	Score            float64   `json:"score"`
	Relevance        float64   `json:"relevance"`
	SourceCollection string    `json:"source_collection"`
	Sender           string    `json:"sender,omitempty"`
	Recipients       []string  `json:"recipients,omitempty"`
	Date             time.Time `json:"date,omitzero"`
	HasAttachments   bool      `json:"has_attachments,omitempty"`
	ThreadID         string    `json:"thread_id,omitempty"`
	// Degraded marks results built without metadata (placeholder enrichment).
	Degraded bool `json:"degraded,omitempty"`
}

// Response is the final answer to one search request.
type Response struct {
	Query       string    `json:"query"`
	Results     []Result  `json:"results"`
	TotalCount  int       `json:"total_count"`
	ElapsedMS   int64     `json:"elapsed_ms"`
	RequestID   string    `json:"request_id"`
	Mode        mode.Mode `json:"mode"`
	Collections []string  `json:"collections_searched"`
	// Degraded marks a best-effort response assembled despite partial
	// upstream failure.
	Degraded bool `json:"degraded,omitempty"`
	CacheHit bool `json:"cache_hit,omitempty"`
}
