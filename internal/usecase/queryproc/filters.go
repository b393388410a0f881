package queryproc

import (
	"regexp"
	"strings"
	"time"

	"github.com/mailscope/mailscope/internal/domain/search/filter"
)

// Filter extraction patterns. Matched phrases are removed from the text
// fed to keyword extraction so "emails from alice yesterday" keeps only
// meaningful content words.
var (
	quotedRe     = regexp.MustCompile(`"([^"]+)"`)
	emailAddrRe  = regexp.MustCompile(emailPat)
	fromRe       = regexp.MustCompile(`\bfrom[:\s]+(` + emailPat + `|[a-z][a-z0-9._-]*)`)
	toRe         = regexp.MustCompile(`\bto[:\s]+(` + emailPat + `|[a-z][a-z0-9._-]*)`)
	threadRe     = regexp.MustCompile(`\bthread[:\s]+([a-z0-9_-]+)`)
	attachmentRe = regexp.MustCompile(`\b(with|has|have|having)\s+(an\s+)?attachments?\b`)
	dateRangeRe  = regexp.MustCompile(`\b(?:between|from)\s+(\d{4}-\d{2}-\d{2})\s+(?:and|to|until)\s+(\d{4}-\d{2}-\d{2})\b`)
	sinceRe      = regexp.MustCompile(`\b(?:since|after)\s+(\d{4}-\d{2}-\d{2})\b`)
	beforeRe     = regexp.MustCompile(`\b(?:before|until)\s+(\d{4}-\d{2}-\d{2})\b`)
)

const emailPat = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`

// extractFilters pulls structured filters out of normalized text and
// returns the remaining free text.
func (p *Processor) extractFilters(text string) (filter.Filters, string) {
	var f filter.Filters
	remainder := text

	// explicit date range first, it contains "from" itself
	if m := dateRangeRe.FindStringSubmatch(remainder); m != nil {
		start, err1 := time.Parse("2006-01-02", m[1])
		end, err2 := time.Parse("2006-01-02", m[2])
		if err1 == nil && err2 == nil {
			f.DateRange = &filter.DateRange{Start: start, End: endOfDay(end)}
			remainder = strings.Replace(remainder, m[0], " ", 1)
		}
	}
	if f.DateRange == nil {
		if m := sinceRe.FindStringSubmatch(remainder); m != nil {
			if start, err := time.Parse("2006-01-02", m[1]); err == nil {
				f.DateRange = &filter.DateRange{Start: start}
				remainder = strings.Replace(remainder, m[0], " ", 1)
			}
		}
		if m := beforeRe.FindStringSubmatch(remainder); m != nil {
			if end, err := time.Parse("2006-01-02", m[1]); err == nil {
				if f.DateRange == nil {
					f.DateRange = &filter.DateRange{}
				}
				f.DateRange.End = endOfDay(end)
				remainder = strings.Replace(remainder, m[0], " ", 1)
			}
		}
	}
	if f.DateRange == nil {
		f.DateRange, remainder = p.relativeDateRange(remainder)
	}

	if m := fromRe.FindStringSubmatch(remainder); m != nil {
		f.Sender = m[1]
		remainder = strings.Replace(remainder, m[0], " ", 1)
	}
	if m := toRe.FindStringSubmatch(remainder); m != nil {
		f.Recipients = []string{m[1]}
		remainder = strings.Replace(remainder, m[0], " ", 1)
	}
	if m := threadRe.FindStringSubmatch(remainder); m != nil {
		f.ThreadID = m[1]
		remainder = strings.Replace(remainder, m[0], " ", 1)
	}

	// bare address without from:/to: counts as sender
	if f.Sender == "" {
		if m := emailAddrRe.FindString(remainder); m != "" {
			f.Sender = m
			remainder = strings.Replace(remainder, m, " ", 1)
		}
	}

	if attachmentRe.MatchString(remainder) {
		yes := true
		f.HasAttachments = &yes
		remainder = attachmentRe.ReplaceAllString(remainder, " ")
	}

	// quoted phrases become subject keywords for exact matching
	for _, m := range quotedRe.FindAllStringSubmatch(remainder, -1) {
		if kw := strings.TrimSpace(m[1]); kw != "" {
			f.SubjectKeywords = append(f.SubjectKeywords, kw)
		}
	}

	return f, remainder
}

// relativeDateRange resolves phrases like "today" or "last week" against
// the processor clock.
func (p *Processor) relativeDateRange(text string) (*filter.DateRange, string) {
	now := p.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	phrases := []struct {
		phrase string
		start  time.Time
		end    time.Time
	}{
		{"today", today, endOfDay(today)},
		{"yesterday", today.AddDate(0, 0, -1), endOfDay(today.AddDate(0, 0, -1))},
		{"this week", startOfWeek(today), endOfDay(today)},
		{"last week", startOfWeek(today).AddDate(0, 0, -7), startOfWeek(today).Add(-time.Second)},
		{"this month", time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), endOfDay(today)},
		{"last month", time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0),
			time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).Add(-time.Second)},
	}

	for _, ph := range phrases {
		if idx := strings.Index(text, ph.phrase); idx >= 0 {
			remainder := text[:idx] + " " + text[idx+len(ph.phrase):]
			return &filter.DateRange{Start: ph.start, End: ph.end}, remainder
		}
	}
	return nil, text
}

func endOfDay(day time.Time) time.Time {
	return day.Add(24*time.Hour - time.Second)
}

// startOfWeek treats Monday as the first day.
func startOfWeek(day time.Time) time.Time {
	wd := int(day.Weekday())
	if wd == 0 {
		wd = 7
	}
	return day.AddDate(0, 0, -(wd - 1))
}
