// Package searchlog persists per-request search analytics.
package searchlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mailscope/mailscope/internal/domain"
)

// Entry is one completed search request, recorded for analytics.
type Entry struct {
	RequestID   string    `json:"request_id"`
	Query       string    `json:"query"`
	Mode        string    `json:"mode"`
	Collections []string  `json:"collections"`
	ResultCount int       `json:"result_count"`
	ElapsedMS   int64     `json:"elapsed_ms"`
	CacheHit    bool      `json:"cache_hit"`
	Degraded    bool      `json:"degraded"`
	Timestamp   time.Time `json:"timestamp"`
}

// store is the consumer interface for log writes (ISP).
type store interface {
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

const defaultTTL = 7 * 24 * time.Hour

// Repo writes search log entries keyed by request ID.
type Repo struct {
	store store
	ttl   time.Duration
}

// New creates a search log repository. A non-positive ttl falls back to
// seven days.
func New(s store, ttl time.Duration) *Repo {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Repo{store: s, ttl: ttl}
}

// Record persists one entry. A zero timestamp is filled with now.
func (r *Repo) Record(ctx context.Context, e Entry) error {
	if e.RequestID == "" {
		return fmt.Errorf("search log entry requires a request id")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal search log entry: %w", err)
	}

	key := domain.KeyPrefix + "searchlog:" + e.RequestID
	if err := r.store.SetWithTTL(ctx, key, data, r.ttl); err != nil {
		return fmt.Errorf("write search log entry: %w", err)
	}
	return nil
}
