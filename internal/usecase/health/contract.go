package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// ResponseTimer exposes the running average search latency.
type ResponseTimer interface {
	AvgResponseMS() float64
}
