package inbound

import (
	"context"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/messaging"
)

// WorkerService manages the consumers that turn queue dispatches into
// batch runs.
type WorkerService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() WorkerServiceHealthStatus
}

// Consumer interface for message consumption.
type Consumer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() ConsumerHealthStatus
	QueueGroup() string
	Subject() string
	DurableName() string
}

// JobRunner executes one dispatched batch job to a terminal or resumable
// state.
type JobRunner interface {
	Run(ctx context.Context, msg messaging.JobDispatchMessage) error
}

// WorkerServiceHealthStatus represents the health status of the worker service.
type WorkerServiceHealthStatus struct {
	IsRunning             bool                   `json:"is_running"`
	TotalConsumers        int                    `json:"total_consumers"`
	HealthyConsumers      int                    `json:"healthy_consumers"`
	ConsumerHealthDetails []ConsumerHealthStatus `json:"consumer_health_details"`
	LastHealthCheck       time.Time              `json:"last_health_check"`
	ServiceUptime         time.Duration          `json:"service_uptime"`
	LastError             string                 `json:"last_error,omitempty"`
}

// ConsumerHealthStatus represents the health status of a consumer.
type ConsumerHealthStatus struct {
	IsRunning       bool      `json:"is_running"`
	IsConnected     bool      `json:"is_connected"`
	LastMessageTime time.Time `json:"last_message_time"`
	MessagesHandled int64     `json:"messages_handled"`
	ErrorCount      int64     `json:"error_count"`
	LastError       string    `json:"last_error,omitempty"`
	QueueGroup      string    `json:"queue_group"`
	Subject         string    `json:"subject"`
}
