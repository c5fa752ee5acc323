package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/config"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/messaging"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/outbound"

	"github.com/nats-io/nats.go"
)

const (
	// NATS connection timeout.
	natsConnectionTimeoutSeconds = 5

	// Stream configuration.
	streamMaxAgeHours = 24

	// JobStreamName is the JetStream stream holding job dispatches.
	JobStreamName = "JOBS"

	// JobStreamSubjects is the subject space owned by the stream.
	JobStreamSubjects = "jobs.>"

	// JobStartSubject carries job-start dispatches to the workers.
	JobStartSubject = "jobs.start"
)

// ConnectionHealthStatus represents the health status of the NATS connection.
type ConnectionHealthStatus struct {
	Connected    bool          `json:"connected"`
	LastError    string        `json:"last_error,omitempty"`
	Uptime       time.Duration `json:"uptime"`
	Reconnects   int           `json:"reconnects"`
	LastPingTime time.Time     `json:"last_ping_time"`
}

// MessageMetrics tracks dispatch publishing metrics.
type MessageMetrics struct {
	PublishedCount    int64         `json:"published_count"`
	FailedCount       int64         `json:"failed_count"`
	AverageLatency    time.Duration `json:"average_latency"`
	LastPublishedTime time.Time     `json:"last_published_time"`
}

// NATSJobDispatcher publishes job-start dispatches to NATS JetStream. The
// stream uses work-queue retention, so each dispatch is consumed by exactly
// one worker in the queue group.
type NATSJobDispatcher struct {
	config           config.NATSConfig
	conn             *nats.Conn
	js               nats.JetStreamContext
	connectionHealth ConnectionHealthStatus
	messageMetrics   MessageMetrics
	mutex            sync.RWMutex
	connectedAt      time.Time
	reconnectCount   int
	lastError        error
	// Circuit breaker state
	circuitBreakerOpen bool
	lastFailureTime    time.Time
	failureCount       int
}

// NewNATSJobDispatcher creates a dispatcher from configuration. The
// connection is established separately with Connect.
func NewNATSJobDispatcher(cfg config.NATSConfig) (*NATSJobDispatcher, error) {
	if cfg.URL == "" {
		return nil, errors.New("NATS URL cannot be empty")
	}
	if !strings.HasPrefix(cfg.URL, "nats://") {
		return nil, errors.New("invalid NATS URL scheme")
	}
	if cfg.MaxReconnects < 0 {
		return nil, errors.New("max reconnects cannot be negative")
	}
	if cfg.ReconnectWait < 0 {
		return nil, errors.New("reconnect wait cannot be negative")
	}

	return &NATSJobDispatcher{
		config:           cfg,
		connectionHealth: ConnectionHealthStatus{},
		messageMetrics:   MessageMetrics{},
	}, nil
}

// Connect establishes the connection to the NATS server and opens a
// JetStream context.
func (d *NATSJobDispatcher) Connect() error {
	opts := []nats.Option{
		nats.MaxReconnects(d.config.MaxReconnects),
		nats.ReconnectWait(d.config.ReconnectWait),
		nats.Timeout(natsConnectionTimeoutSeconds * time.Second),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			d.mutex.Lock()
			d.reconnectCount++
			d.mutex.Unlock()
			d.updateConnectionHealth(true, nil)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, _ error) {
			d.updateConnectionHealth(false, errors.New("connection lost"))
		}),
	}

	conn, err := nats.Connect(d.config.URL, opts...)
	if err != nil {
		d.updateConnectionHealth(false, err)
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		d.updateConnectionHealth(false, err)
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	d.conn = conn
	d.js = js
	d.updateConnectionHealth(true, nil)
	return nil
}

// Disconnect closes the NATS connection.
func (d *NATSJobDispatcher) Disconnect() error {
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
		d.js = nil
	}
	d.updateConnectionHealth(false, nil)
	return nil
}

// EnsureStream creates the JOBS stream if it doesn't exist.
func (d *NATSJobDispatcher) EnsureStream() error {
	if d.js == nil {
		return errors.New("not connected to NATS server")
	}

	streamConfig := &nats.StreamConfig{
		Name:      JobStreamName,
		Subjects:  []string{JobStreamSubjects},
		Storage:   nats.FileStorage,
		Retention: nats.WorkQueuePolicy,
		MaxAge:    streamMaxAgeHours * time.Hour, // Undelivered dispatches expire after 1 day
		Replicas:  1,
	}

	if _, err := d.js.AddStream(streamConfig); err != nil {
		// Another process may have won the create race.
		if _, infoErr := d.js.StreamInfo(JobStreamName); infoErr == nil {
			return nil
		}
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// PublishJobStart publishes a dispatch for a persisted job.
func (d *NATSJobDispatcher) PublishJobStart(ctx context.Context, msg messaging.JobDispatchMessage) error {
	start := time.Now()

	select {
	case <-ctx.Done():
		d.updateMetrics(false, time.Since(start))
		return ctx.Err()
	default:
	}

	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid dispatch message: %w", err)
	}

	if d.isCircuitBreakerOpen() {
		d.updateMetrics(false, time.Since(start))
		return errors.New("circuit breaker open: too many recent failures")
	}

	if d.js == nil {
		d.updateMetrics(false, time.Since(start))
		return errors.New("publish failed: not connected to NATS")
	}

	data, err := msg.Marshal()
	if err != nil {
		d.updateMetrics(false, time.Since(start))
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := d.js.PublishAsync(JobStartSubject, data, nats.Context(ctx)); err != nil {
		d.updateMetrics(false, time.Since(start))
		return fmt.Errorf("failed to publish message: %w", err)
	}

	d.updateMetrics(true, time.Since(start))
	return nil
}

// GetConnectionHealth returns the current connection health status.
func (d *NATSJobDispatcher) GetConnectionHealth() outbound.DispatcherHealthStatus {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	status := outbound.DispatcherHealthStatus{
		Connected:        d.connectionHealth.Connected,
		JetStreamEnabled: d.js != nil,
		Reconnects:       d.reconnectCount,
	}

	if d.connectionHealth.Connected {
		status.Uptime = time.Since(d.connectedAt).String()
	} else {
		status.Uptime = "0s"
	}

	if d.lastError != nil {
		status.LastError = d.lastError.Error()
	}

	if d.circuitBreakerOpen {
		status.CircuitBreaker = "open"
	} else {
		status.CircuitBreaker = "closed"
	}

	return status
}

// GetMessageMetrics returns current publishing metrics.
func (d *NATSJobDispatcher) GetMessageMetrics() outbound.DispatcherMetrics {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return outbound.DispatcherMetrics{
		PublishedCount: d.messageMetrics.PublishedCount,
		FailedCount:    d.messageMetrics.FailedCount,
		AverageLatency: d.messageMetrics.AverageLatency.String(),
	}
}

func (d *NATSJobDispatcher) updateConnectionHealth(connected bool, err error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.connectionHealth.Connected = connected
	d.connectionHealth.LastPingTime = time.Now()

	if err != nil {
		d.connectionHealth.LastError = err.Error()
		d.lastError = err
	}

	if connected && d.connectedAt.IsZero() {
		d.connectedAt = time.Now()
		d.connectionHealth.Uptime = 0
	}
}

func (d *NATSJobDispatcher) updateMetrics(success bool, latency time.Duration) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if success {
		d.messageMetrics.PublishedCount++
		d.messageMetrics.LastPublishedTime = time.Now()

		// Exponential moving average with alpha = 0.1
		if d.messageMetrics.AverageLatency == 0 {
			d.messageMetrics.AverageLatency = latency
		} else {
			d.messageMetrics.AverageLatency = time.Duration(
				0.9*float64(d.messageMetrics.AverageLatency) + 0.1*float64(latency),
			)
		}
		d.updateCircuitBreaker(true)
	} else {
		d.messageMetrics.FailedCount++
		d.updateCircuitBreaker(false)
	}
}

func (d *NATSJobDispatcher) updateCircuitBreaker(success bool) {
	const maxFailures = 3
	const circuitOpenDuration = 30 * time.Second

	if success {
		d.failureCount = 0
		d.circuitBreakerOpen = false
	} else {
		d.failureCount++
		d.lastFailureTime = time.Now()

		if d.failureCount >= maxFailures {
			d.circuitBreakerOpen = true
		}
	}

	if d.circuitBreakerOpen && time.Since(d.lastFailureTime) > circuitOpenDuration {
		d.circuitBreakerOpen = false
		d.failureCount = 0
	}
}

func (d *NATSJobDispatcher) isCircuitBreakerOpen() bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if d.circuitBreakerOpen && time.Since(d.lastFailureTime) > 30*time.Second {
		return false
	}
	return d.circuitBreakerOpen
}
