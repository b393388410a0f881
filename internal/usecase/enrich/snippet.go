package enrich

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/mailscope/mailscope/internal/domain/search/result"
)

// snippetRadius is the number of characters kept on each side of the
// first keyword hit.
const snippetRadius = 120

// buildSnippet cuts a window around the first keyword occurrence and
// marks every keyword hit inside it. Spans index into the returned
// snippet string. Without a keyword hit the snippet is the body head.
func buildSnippet(body string, keywords []string) (string, []result.Span) {
	body = stripMarkup(body)
	if body == "" {
		return "", nil
	}

	lower := strings.ToLower(body)
	first := -1
	for _, kw := range keywords {
		if idx := strings.Index(lower, kw); idx >= 0 && (first == -1 || idx < first) {
			first = idx
		}
	}

	start, end := 0, len(body)
	var prefix, suffix string
	if first >= 0 {
		start = first - snippetRadius
		if start < 0 {
			start = 0
		}
		end = first + snippetRadius
		if end > len(body) {
			end = len(body)
		}
	} else if end > 2*snippetRadius {
		end = 2 * snippetRadius
	}

	// never split a multi-byte rune at the window edges
	for start > 0 && !utf8.RuneStart(body[start]) {
		start--
	}
	for end < len(body) && !utf8.RuneStart(body[end]) {
		end++
	}

	if start > 0 {
		prefix = "…"
	}
	if end < len(body) {
		suffix = "…"
	}

	window := body[start:end]
	snippet := prefix + window + suffix

	return snippet, highlightSpans(window, len(prefix), keywords)
}

// stripMarkup drops HTML tags from stored bodies before windowing.
// Each tag becomes a space so adjacent words stay separated, and
// whitespace runs collapse afterwards. A bare "<" that does not open a
// tag passes through.
func stripMarkup(body string) string {
	if !strings.Contains(body, "<") {
		return body
	}

	var b strings.Builder
	b.Grow(len(body))
	inTag := false
	for i := 0; i < len(body); i++ {
		c := body[i]
		if inTag {
			if c == '>' {
				inTag = false
				b.WriteByte(' ')
			}
			continue
		}
		if c == '<' && i+1 < len(body) && isTagStart(body[i+1]) {
			inTag = true
			continue
		}
		b.WriteByte(c)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func isTagStart(c byte) bool {
	return c == '/' || c == '!' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// highlightSpans finds keyword occurrences in the window. Overlapping
// hits keep the earliest span.
func highlightSpans(window string, offset int, keywords []string) []result.Span {
	lower := strings.ToLower(window)

	var spans []result.Span
	for _, kw := range keywords {
		from := 0
		for {
			idx := strings.Index(lower[from:], kw)
			if idx < 0 {
				break
			}
			abs := from + idx
			spans = append(spans, result.Span{Start: offset + abs, End: offset + abs + len(kw)})
			from = abs + len(kw)
		}
	}
	if len(spans) == 0 {
		return nil
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return dedupeSpans(spans)
}

func dedupeSpans(spans []result.Span) []result.Span {
	out := spans[:1]
	for _, s := range spans[1:] {
		last := out[len(out)-1]
		if s.Start < last.End {
			continue
		}
		out = append(out, s)
	}
	return out
}
