package mode

// Mode is the search strategy.
type Mode string

// Search mode constants.
const (
	// Hybrid combines the structured filter predicate with vector search.
	Hybrid     Mode = "hybrid"
	VectorOnly Mode = "vector_only"
	FilterOnly Mode = "filter_only"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Hybrid || m == VectorOnly || m == FilterOnly
}

// NeedsEmbedding reports whether the mode requires a query vector.
func (m Mode) NeedsEmbedding() bool {
	return m == Hybrid || m == VectorOnly
}

// Strategy selects which collections a search targets.
type Strategy string

// Collection selection strategies.
const (
	// StrategySingle searches the default collection only.
	StrategySingle Strategy = "single"
	// StrategyMultiple searches the caller-supplied collection list.
	StrategyMultiple Strategy = "multiple"
	// StrategyAuto derives collections from the processed query's keyword signal.
	StrategyAuto Strategy = "auto"
)

// IsValid checks if the strategy is one of the supported values.
func (s Strategy) IsValid() bool {
	return s == StrategySingle || s == StrategyMultiple || s == StrategyAuto
}
