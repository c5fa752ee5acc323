package outbound

import (
	"context"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/messaging"
)

// JobDispatcher defines the outbound port for publishing job-start
// dispatches to the work queue.
type JobDispatcher interface {
	PublishJobStart(ctx context.Context, msg messaging.JobDispatchMessage) error
}

// JobDispatcherHealth defines health monitoring capabilities for
// dispatchers backed by a broker connection.
type JobDispatcherHealth interface {
	GetConnectionHealth() DispatcherHealthStatus
	GetMessageMetrics() DispatcherMetrics
}

// DispatcherHealthStatus represents the health of a dispatcher connection.
type DispatcherHealthStatus struct {
	Connected        bool   `json:"connected"`
	LastError        string `json:"last_error,omitempty"`
	Uptime           string `json:"uptime"`
	Reconnects       int    `json:"reconnects"`
	JetStreamEnabled bool   `json:"jetstream_enabled"`
	CircuitBreaker   string `json:"circuit_breaker"`
}

// DispatcherMetrics represents message publishing counters.
type DispatcherMetrics struct {
	PublishedCount int64  `json:"published_count"`
	FailedCount    int64  `json:"failed_count"`
	AverageLatency string `json:"average_latency"`
}
