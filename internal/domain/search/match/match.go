package match

import "time"

// Match is a single vector-search hit. Ownership transfers from the search
// engine to the enricher; nothing mutates a Match after the merge.
type Match struct {
	DocID      string
	Collection string
	// Score is the raw backend similarity on the collection-local scale.
	Score float64
	// Normalized is the score rescaled to [0,1] across collections.
	Normalized float64
	// Timestamp is the document time parsed from the payload, zero if unknown.
	Timestamp time.Time
	Payload   map[string]string
}
