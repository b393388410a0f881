package vector

import (
	"strings"

	"github.com/mailscope/mailscope/internal/domain/search/mode"
	"github.com/mailscope/mailscope/internal/domain/search/query"
)

// selectCollections resolves the collection set for a query. The result
// is never empty: every path falls back to the default collection.
func (e *Engine) selectCollections(q query.Query, processed query.Processed) []string {
	switch q.Strategy() {
	case mode.StrategyMultiple:
		if cs := q.Collections(); len(cs) > 0 {
			return cs
		}
		return []string{e.cfg.DefaultCollection}
	case mode.StrategyAuto:
		return e.routeByKeywords(processed)
	default: // single
		if cs := q.Collections(); len(cs) > 0 {
			return cs[:1]
		}
		return []string{e.cfg.DefaultCollection}
	}
}

func (e *Engine) allCollections() []string {
	if len(e.cfg.Collections) == 0 {
		return []string{e.cfg.DefaultCollection}
	}
	names := make([]string, len(e.cfg.Collections))
	for i, c := range e.cfg.Collections {
		names[i] = c.Name
	}
	return names
}

// routeByKeywords matches query keywords against each collection's
// routing keywords. No match routes to every collection.
func (e *Engine) routeByKeywords(processed query.Processed) []string {
	var selected []string
	for _, c := range e.cfg.Collections {
		if matchesKeywords(c.Keywords, processed.Keywords, processed.Normalized) {
			selected = append(selected, c.Name)
		}
	}
	if len(selected) == 0 {
		return e.allCollections()
	}
	return selected
}

func matchesKeywords(routing, keywords []string, normalized string) bool {
	for _, r := range routing {
		r = strings.ToLower(r)
		for _, kw := range keywords {
			if kw == r {
				return true
			}
		}
		if strings.Contains(normalized, r) {
			return true
		}
	}
	return false
}
