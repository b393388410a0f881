// Package enrich joins ranked matches with document metadata and builds
// presentation fields: titles, snippets, highlights and final relevance.
package enrich

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mailscope/mailscope/internal/domain/search/match"
	"github.com/mailscope/mailscope/internal/domain/search/query"
	"github.com/mailscope/mailscope/internal/domain/search/result"
	"github.com/mailscope/mailscope/internal/logger"
	"github.com/mailscope/mailscope/internal/repository/metadata"
)

// Relevance boosts layered on top of the normalized vector score.
const (
	subjectBoost    = 0.2
	recentBoost     = 0.1  // younger than seven days
	monthBoost      = 0.05 // younger than thirty days
	attachmentBoost = 0.05
)

// MetadataLoader batch-loads document metadata per collection.
type MetadataLoader interface {
	GetMany(ctx context.Context, collection string, docIDs []string) (map[string]metadata.Metadata, error)
}

// Enricher converts matches into API results. Enrichment never fails a
// request: metadata problems produce degraded placeholder results.
type Enricher struct {
	loader MetadataLoader
	now    func() time.Time
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Enricher) { e.now = now }
}

// New creates an enricher.
func New(loader MetadataLoader, opts ...Option) *Enricher {
	e := &Enricher{loader: loader, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Enrich loads metadata for every match, batched per collection, and
// assembles final results in ranking order.
func (e *Enricher) Enrich(ctx context.Context, matches []match.Match, processed query.Processed) []result.Result {
	byColl := make(map[string][]string)
	for _, m := range matches {
		byColl[m.Collection] = append(byColl[m.Collection], m.DocID)
	}

	loaded := make(map[string]map[string]metadata.Metadata, len(byColl))
	for coll, ids := range byColl {
		mds, err := e.loader.GetMany(ctx, coll, ids)
		if err != nil {
			logger.FromContext(ctx).Warn("Metadata load failed, serving degraded results",
				zap.String("collection", coll), zap.Error(err))
			continue
		}
		loaded[coll] = mds
	}

	results := make([]result.Result, 0, len(matches))
	for _, m := range matches {
		md, ok := loaded[m.Collection][m.DocID]
		if !ok {
			results = append(results, placeholder(m))
			continue
		}
		results = append(results, e.build(m, md, processed))
	}
	return results
}

func (e *Enricher) build(m match.Match, md metadata.Metadata, processed query.Processed) result.Result {
	snippet, spans := buildSnippet(md.Body, processed.Keywords)

	return result.Result{
		DocID:            m.DocID,
		Title:            md.Subject,
		Snippet:          snippet,
		Highlights:       spans,
		Score:            m.Normalized,
		Relevance:        e.relevance(m, md, processed),
		SourceCollection: m.Collection,
		Sender:           md.Sender,
		Recipients:       md.Recipients,
		Date:             md.Date,
		HasAttachments:   md.HasAttachments(),
		ThreadID:         md.ThreadID,
	}
}

// relevance layers bounded boosts over the normalized score, capped at 1.
func (e *Enricher) relevance(m match.Match, md metadata.Metadata, processed query.Processed) float64 {
	rel := m.Normalized

	if subjectMatches(md.Subject, processed.Keywords) {
		rel += subjectBoost
	}

	if !md.Date.IsZero() {
		age := e.now().Sub(md.Date)
		switch {
		case age >= 0 && age < 7*24*time.Hour:
			rel += recentBoost
		case age >= 0 && age < 30*24*time.Hour:
			rel += monthBoost
		}
	}

	if md.HasAttachments() {
		rel += attachmentBoost
	}

	if rel > 1.0 {
		rel = 1.0
	}
	return rel
}

func subjectMatches(subject string, keywords []string) bool {
	if subject == "" {
		return false
	}
	lower := strings.ToLower(subject)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// placeholder stands in for a match whose metadata could not be loaded.
func placeholder(m match.Match) result.Result {
	return result.Result{
		DocID:            m.DocID,
		Title:            "(unavailable)",
		Score:            m.Normalized,
		Relevance:        m.Normalized,
		SourceCollection: m.Collection,
		Date:             m.Timestamp,
		Degraded:         true,
	}
}
