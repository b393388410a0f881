package filter

import (
	"fmt"
	"time"
)

// DateRange bounds a search to documents received within [Start, End].
// A zero boundary leaves that side open.
type DateRange struct {
	Start time.Time `json:"start,omitzero"`
	End   time.Time `json:"end,omitzero"`
}

// Validate checks that a bounded range is not inverted.
func (r DateRange) Validate() error {
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return fmt.Errorf("date range end %s before start %s",
			r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	return nil
}

// Filters holds the structured filter predicate for a search.
// Filters cross the cache and transport boundaries, so fields stay exported.
type Filters struct {
	DateRange       *DateRange `json:"date_range,omitempty"`
	Sender          string     `json:"sender,omitempty"`
	Recipients      []string   `json:"recipients,omitempty"`
	SubjectKeywords []string   `json:"subject_keywords,omitempty"`
	HasAttachments  *bool      `json:"has_attachments,omitempty"`
	ThreadID        string     `json:"thread_id,omitempty"`
}

// IsEmpty reports whether no condition is set.
func (f Filters) IsEmpty() bool {
	return f.DateRange == nil &&
		f.Sender == "" &&
		len(f.Recipients) == 0 &&
		len(f.SubjectKeywords) == 0 &&
		f.HasAttachments == nil &&
		f.ThreadID == ""
}

// Validate checks the nested date range.
func (f Filters) Validate() error {
	if f.DateRange != nil {
		if err := f.DateRange.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Merge combines explicit caller filters with filters extracted from the
// query text. Explicit values win; extracted values fill the gaps.
func Merge(explicit, extracted Filters) Filters {
	merged := explicit
	if merged.DateRange == nil {
		merged.DateRange = extracted.DateRange
	}
	if merged.Sender == "" {
		merged.Sender = extracted.Sender
	}
	if len(merged.Recipients) == 0 {
		merged.Recipients = extracted.Recipients
	}
	if len(merged.SubjectKeywords) == 0 {
		merged.SubjectKeywords = extracted.SubjectKeywords
	}
	if merged.HasAttachments == nil {
		merged.HasAttachments = extracted.HasAttachments
	}
	if merged.ThreadID == "" {
		merged.ThreadID = extracted.ThreadID
	}
	return merged
}
