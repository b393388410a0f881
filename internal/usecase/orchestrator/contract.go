package orchestrator

import (
	"context"
	"time"

	"github.com/mailscope/mailscope/internal/domain/search/match"
	"github.com/mailscope/mailscope/internal/domain/search/query"
	"github.com/mailscope/mailscope/internal/domain/search/result"
	"github.com/mailscope/mailscope/internal/repository/searchlog"
	"github.com/mailscope/mailscope/internal/usecase/vector"
)

// Processor normalizes and analyzes raw query text.
type Processor interface {
	Process(ctx context.Context, text string) (query.Processed, error)
}

// Engine runs the multi-collection vector search.
type Engine interface {
	Search(ctx context.Context, q query.Query, processed query.Processed, vec []float32) (vector.Result, error)
}

// Enricher turns ranked matches into presentable results.
type Enricher interface {
	Enrich(ctx context.Context, matches []match.Match, processed query.Processed) []result.Result
}

// LogSink persists one search log entry.
type LogSink interface {
	Record(ctx context.Context, e searchlog.Entry) error
}

// StageRecorder collects per-stage latency samples.
type StageRecorder interface {
	Record(stage string, d time.Duration)
}
