// Package queryproc turns raw query text into a normalized, analyzed form:
// language detection, keyword extraction, query classification and
// structured filters pulled out of natural-language phrases.
package queryproc

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/mailscope/mailscope/internal/cache"
	"github.com/mailscope/mailscope/internal/domain/search/filter"
	"github.com/mailscope/mailscope/internal/domain/search/query"
	"github.com/mailscope/mailscope/internal/logger"
)

const maxKeywords = 10

// Processor analyzes query text. Results are cached under the query
// namespace; processing is deterministic for a given day, so the cache
// key folds in the current date.
type Processor struct {
	cache *cache.Cache
	now   func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// New creates a query processor. The cache may be nil.
func New(c *cache.Cache, opts ...Option) *Processor {
	p := &Processor{cache: c, now: time.Now}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process validates and analyzes the query text.
func (p *Processor) Process(ctx context.Context, text string) (query.Processed, error) {
	if err := query.ValidateText(text); err != nil {
		return query.Processed{}, err
	}

	cacheKey := cache.Key(cache.NSQuery, p.now().UTC().Format("2006-01-02")+"\x00"+text)
	if p.cache != nil {
		var cached query.Processed
		if p.cache.GetJSON(ctx, cache.NSQuery, cacheKey, &cached) {
			return cached, nil
		}
	}

	normalized := normalize(text)
	filters, remainder := p.extractFilters(normalized)

	processed := query.Processed{
		Original:   text,
		Normalized: normalized,
		Language:   detectLanguage(text),
		Keywords:   extractKeywords(remainder),
		Filters:    filters,
	}
	processed.QueryType = classify(text, filters)

	if p.cache != nil {
		p.cache.SetJSON(ctx, cache.NSQuery, cacheKey, processed)
	}

	logger.FromContext(ctx).Debug("Processed query",
		zap.String("language", processed.Language),
		zap.String("query_type", processed.QueryType),
		zap.Int("keywords", len(processed.Keywords)),
	)

	return processed, nil
}

// normalize lowercases, drops control characters and collapses
// whitespace. Punctuation survives so filter patterns (quotes, colons,
// @) still match.
func normalize(text string) string {
	text = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// detectLanguage distinguishes Korean from Latin-script queries by
// character class majority.
func detectLanguage(text string) string {
	var hangul, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case unicode.IsLetter(r):
			latin++
		}
	}
	if hangul > 0 && hangul >= latin {
		return "ko"
	}
	return "en"
}

var questionWords = map[string]bool{
	"who": true, "what": true, "when": true, "where": true,
	"why": true, "how": true, "which": true, "did": true, "was": true,
}

// classify derives the query type. Order matters: quoted phrases win
// over extracted filters, filters win over question phrasing.
func classify(text string, filters filter.Filters) string {
	trimmed := strings.TrimSpace(text)
	if quotedRe.MatchString(trimmed) {
		return query.TypeExact
	}
	if !filters.IsEmpty() {
		return query.TypeFiltered
	}
	if strings.HasSuffix(trimmed, "?") {
		return query.TypeQuestion
	}
	if fields := strings.Fields(strings.ToLower(trimmed)); len(fields) > 0 && questionWords[fields[0]] {
		return query.TypeQuestion
	}
	return query.TypeGeneral
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"of": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "with": true, "about": true, "is": true, "are": true,
	"was": true, "were": true, "me": true, "my": true, "all": true,
	"any": true, "show": true, "find": true, "search": true,
	"emails": true, "email": true, "mail": true, "messages": true,
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}'._-]*`)

// extractKeywords picks up to maxKeywords content words from the
// remainder of the query after filter phrases were removed.
func extractKeywords(text string) []string {
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, maxKeywords)
	for _, w := range words {
		if stopwords[w] || len(w) < 2 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == maxKeywords {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
