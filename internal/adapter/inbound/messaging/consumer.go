// Package messaging provides the NATS JetStream consumer that feeds
// dispatched batch jobs to the job runner. Consumption is pull-based: every
// worker binds the same durable consumer, so the server load-balances
// dispatches across the queue group without extra coordination.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/application/common/logging"
	"github.com/opennotes-ai/opennotes-sub006/internal/application/common/slogger"
	"github.com/opennotes-ai/opennotes-sub006/internal/config"
	domainerrors "github.com/opennotes-ai/opennotes-sub006/internal/domain/errors/domain"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/messaging"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/inbound"

	"github.com/nats-io/nats.go"
)

const (
	// DefaultJobProcessingTimeout bounds a single batch run when the
	// configuration does not say otherwise.
	DefaultJobProcessingTimeout = 30 * time.Minute

	// fetchMaxWait is how long a pull request waits for a dispatch before
	// the loop re-checks for shutdown.
	fetchMaxWait = 5 * time.Second

	// minHeartbeatInterval floors the in-progress heartbeat period.
	minHeartbeatInterval = time.Second

	natsConnectionTimeoutSeconds = 5
)

// errMalformedDispatch marks payloads that can never be processed. They are
// acked so the server stops redelivering them.
var errMalformedDispatch = errors.New("malformed dispatch payload")

// ConsumerConfig holds the configuration for a batch job consumer.
type ConsumerConfig struct {
	StreamName    string        // JetStream stream holding dispatches
	Subject       string        // Subject to consume from
	QueueGroup    string        // Worker group sharing the durable
	DurableName   string        // Durable consumer name
	AckWait       time.Duration // Server-side redelivery window
	MaxDeliver    int           // Delivery attempts before the server gives up
	MaxAckPending int           // In-flight dispatches across the group
	JobTimeout    time.Duration // Upper bound for one batch run
}

func validateConsumerConfig(cfg ConsumerConfig) error {
	if cfg.StreamName == "" {
		return errors.New("stream name cannot be empty")
	}
	if cfg.Subject == "" {
		return errors.New("subject cannot be empty")
	}
	if cfg.QueueGroup == "" {
		return errors.New("queue group cannot be empty")
	}
	if cfg.DurableName == "" {
		return errors.New("durable name cannot be empty")
	}
	if cfg.AckWait <= 0 {
		return errors.New("ack wait duration must be positive")
	}
	if cfg.MaxDeliver <= 0 {
		return errors.New("max deliver count must be positive")
	}
	if cfg.MaxAckPending <= 0 {
		return errors.New("max ack pending must be positive")
	}
	return nil
}

// ConsumerStats tracks consumer message statistics.
type ConsumerStats struct {
	MessagesReceived   int64         `json:"messages_received"`
	MessagesProcessed  int64         `json:"messages_processed"`
	MessagesFailed     int64         `json:"messages_failed"`
	BytesReceived      int64         `json:"bytes_received"`
	AverageProcessTime time.Duration `json:"average_process_time"`
	LastProcessTime    time.Time     `json:"last_process_time"`
	ActiveSince        time.Time     `json:"active_since"`
}

// NATSConsumer pulls job dispatches from JetStream and hands them to the
// runner one at a time. Parallelism comes from running several consumers
// against the shared durable, not from batched fetches.
type NATSConsumer struct {
	config     ConsumerConfig
	natsConfig config.NATSConfig
	runner     inbound.JobRunner

	conn         *nats.Conn
	jsContext    nats.JetStreamContext
	subscription *nats.Subscription

	running bool
	mu      sync.RWMutex
	wg      sync.WaitGroup
	done    chan struct{}

	totalProcessTime time.Duration
	stats            ConsumerStats
	health           inbound.ConsumerHealthStatus
}

// NewNATSConsumer creates a consumer bound to a runner. The connection is
// established by Start.
func NewNATSConsumer(
	cfg ConsumerConfig,
	natsCfg config.NATSConfig,
	runner inbound.JobRunner,
) (*NATSConsumer, error) {
	if err := validateConsumerConfig(cfg); err != nil {
		return nil, err
	}
	if runner == nil {
		return nil, errors.New("job runner cannot be nil")
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobProcessingTimeout
	}

	return &NATSConsumer{
		config:     cfg,
		natsConfig: natsCfg,
		runner:     runner,
		health: inbound.ConsumerHealthStatus{
			QueueGroup: cfg.QueueGroup,
			Subject:    cfg.Subject,
		},
	}, nil
}

// Start connects to NATS, provisions the stream and durable consumer, and
// launches the processing loop.
func (c *NATSConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return errors.New("consumer is already running")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	opts := []nats.Option{
		nats.MaxReconnects(c.natsConfig.MaxReconnects),
		nats.ReconnectWait(c.natsConfig.ReconnectWait),
		nats.Timeout(natsConnectionTimeoutSeconds * time.Second),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.setConnected(true)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, _ error) {
			c.setConnected(false)
		}),
	}

	conn, err := nats.Connect(c.natsConfig.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := c.ensureStreamExists(js); err != nil {
		conn.Close()
		return err
	}

	if err := c.ensureDurableConsumer(js); err != nil {
		conn.Close()
		return err
	}

	sub, err := js.PullSubscribe(
		c.config.Subject,
		c.config.DurableName,
		nats.Bind(c.config.StreamName, c.config.DurableName),
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create pull subscription: %w", err)
	}

	c.conn = conn
	c.jsContext = js
	c.subscription = sub
	c.running = true
	c.done = make(chan struct{})
	now := time.Now()
	c.stats.ActiveSince = now
	c.health.IsRunning = true
	c.health.IsConnected = true
	c.health.LastError = ""

	c.wg.Add(1)
	go c.messageProcessingLoop(sub, c.done)

	slogger.Info(ctx, "Batch job consumer started", slogger.Fields{
		"stream":  c.config.StreamName,
		"subject": c.config.Subject,
		"durable": c.config.DurableName,
	})
	return nil
}

// ensureStreamExists provisions the dispatch stream when the consumer comes
// up before any publisher has. The configuration must match the publisher's.
func (c *NATSConsumer) ensureStreamExists(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(c.config.StreamName); err == nil {
		return nil
	}

	streamConfig := &nats.StreamConfig{
		Name:      c.config.StreamName,
		Subjects:  []string{"jobs.>"},
		Storage:   nats.FileStorage,
		Retention: nats.WorkQueuePolicy,
		MaxAge:    24 * time.Hour,
		Replicas:  1,
	}
	if _, err := js.AddStream(streamConfig); err != nil {
		if _, infoErr := js.StreamInfo(c.config.StreamName); infoErr == nil {
			return nil
		}
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// ensureDurableConsumer provisions the shared durable pull consumer. Workers
// binding the same durable split the dispatch load between them.
func (c *NATSConsumer) ensureDurableConsumer(js nats.JetStreamContext) error {
	if _, err := js.ConsumerInfo(c.config.StreamName, c.config.DurableName); err == nil {
		return nil
	}

	consumerConfig := &nats.ConsumerConfig{
		Durable:       c.config.DurableName,
		FilterSubject: c.config.Subject,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       c.config.AckWait,
		MaxDeliver:    c.config.MaxDeliver,
		MaxAckPending: c.config.MaxAckPending,
		DeliverPolicy: nats.DeliverAllPolicy,
		ReplayPolicy:  nats.ReplayInstantPolicy,
	}
	if _, err := js.AddConsumer(c.config.StreamName, consumerConfig); err != nil {
		if _, infoErr := js.ConsumerInfo(c.config.StreamName, c.config.DurableName); infoErr == nil {
			return nil
		}
		return fmt.Errorf("failed to create durable consumer: %w", err)
	}
	return nil
}

// messageProcessingLoop fetches dispatches one at a time until Stop. Batch
// runs are long, so each consumer works a single job; fetch timeouts are the
// idle heartbeat of the loop.
func (c *NATSConsumer) messageProcessingLoop(sub *nats.Subscription, done chan struct{}) {
	defer c.wg.Done()

	for {
		select {
		case <-done:
			return
		default:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(fetchMaxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			select {
			case <-done:
				return
			default:
			}
			c.recordLoopError(err)
			continue
		}

		for _, msg := range msgs {
			c.processMessage(msg)
		}
	}
}

// processMessage runs one dispatch and settles it with the server. Success
// and unrecoverable failures ack; infra failures nak for redelivery.
func (c *NATSConsumer) processMessage(msg *nats.Msg) {
	start := time.Now()
	stopHeartbeat := c.startHeartbeat(msg)
	err := c.handleMessage(msg)
	stopHeartbeat()
	elapsed := time.Since(start)

	if err == nil || isUnrecoverable(err) {
		if ackErr := msg.Ack(); ackErr != nil {
			slogger.ErrorNoCtx("Failed to ack dispatch", slogger.Field("error", ackErr.Error()))
		}
	} else {
		if nakErr := msg.Nak(); nakErr != nil {
			slogger.ErrorNoCtx("Failed to nak dispatch", slogger.Field("error", nakErr.Error()))
		}
	}

	c.updateStats(len(msg.Data), elapsed, err)
}

// startHeartbeat keeps the dispatch in flight while a long batch run
// executes, extending the ack deadline at half the ack-wait period.
func (c *NATSConsumer) startHeartbeat(msg *nats.Msg) func() {
	interval := c.config.AckWait / 2
	if interval < minHeartbeatInterval {
		interval = minHeartbeatInterval
	}

	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := msg.InProgress(); err != nil {
					slogger.WarnNoCtx("Failed to extend ack deadline", slogger.Field("error", err.Error()))
					return
				}
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

// handleMessage decodes the dispatch and runs the job under its timeout.
func (c *NATSConsumer) handleMessage(msg *nats.Msg) error {
	dispatch, err := messaging.UnmarshalJobDispatchMessage(msg.Data)
	if err != nil {
		slogger.ErrorNoCtx("Dropping malformed dispatch", slogger.Fields2(
			"error", err.Error(),
			"subject", msg.Subject,
		))
		return fmt.Errorf("%w: %w", errMalformedDispatch, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.JobTimeout)
	defer cancel()
	if dispatch.CorrelationID != "" {
		ctx = logging.WithCorrelationID(ctx, dispatch.CorrelationID)
	}

	slogger.Info(ctx, "Processing job dispatch", slogger.Fields3(
		"job_id", dispatch.JobID.String(),
		"job_kind", dispatch.JobKind.String(),
		"message_id", dispatch.MessageID,
	))

	if err := c.runner.Run(ctx, dispatch); err != nil {
		slogger.ErrorWithError(ctx, err, "Job run failed", slogger.Field("job_id", dispatch.JobID.String()))
		return err
	}
	return nil
}

// isUnrecoverable reports whether redelivering the dispatch could ever
// succeed. Terminal domain states and poison payloads are settled for good.
func isUnrecoverable(err error) bool {
	return errors.Is(err, errMalformedDispatch) ||
		errors.Is(err, domainerrors.ErrJobNotFound) ||
		errors.Is(err, domainerrors.ErrJobTerminal) ||
		errors.Is(err, domainerrors.ErrUnknownJobKind)
}

func (c *NATSConsumer) updateStats(payloadBytes int, elapsed time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.stats.MessagesReceived++
	c.stats.BytesReceived += int64(payloadBytes)
	c.stats.LastProcessTime = now
	c.totalProcessTime += elapsed
	c.stats.AverageProcessTime = c.totalProcessTime / time.Duration(c.stats.MessagesReceived)

	c.health.LastMessageTime = now
	c.health.MessagesHandled++

	if err != nil {
		// Acked-for-good failures still count as failures.
		c.stats.MessagesFailed++
		c.health.ErrorCount++
		c.health.LastError = err.Error()
		return
	}
	c.stats.MessagesProcessed++
}

func (c *NATSConsumer) recordLoopError(err error) {
	c.mu.Lock()
	c.health.ErrorCount++
	c.health.LastError = err.Error()
	c.mu.Unlock()
	slogger.ErrorNoCtx("Fetch failed", slogger.Field("error", err.Error()))
}

func (c *NATSConsumer) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health.IsConnected = connected
	if !connected {
		c.health.LastError = "connection lost"
	}
}

// Stop drains the subscription and waits for the in-flight run to settle,
// bounded by the context deadline.
func (c *NATSConsumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.done)
	sub := c.subscription
	conn := c.conn
	c.subscription = nil
	c.conn = nil
	c.jsContext = nil
	c.mu.Unlock()

	if sub != nil {
		if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			slogger.WarnNoCtx("Failed to drain subscription", slogger.Field("error", err.Error()))
		}
	}

	waitDone := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waitDone)
	}()

	var stopErr error
	select {
	case <-waitDone:
	case <-ctx.Done():
		stopErr = fmt.Errorf("consumer shutdown interrupted: %w", ctx.Err())
	}

	if conn != nil {
		conn.Close()
	}

	c.mu.Lock()
	c.health.IsRunning = false
	c.health.IsConnected = false
	c.mu.Unlock()

	slogger.InfoNoCtx("Batch job consumer stopped", slogger.Field("durable", c.config.DurableName))
	return stopErr
}

// Health returns the current health status of the consumer.
func (c *NATSConsumer) Health() inbound.ConsumerHealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health
}

// GetStats returns a snapshot of the consumer statistics.
func (c *NATSConsumer) GetStats() ConsumerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// QueueGroup returns the queue group shared by the workers.
func (c *NATSConsumer) QueueGroup() string {
	return c.config.QueueGroup
}

// Subject returns the subject this consumer listens to.
func (c *NATSConsumer) Subject() string {
	return c.config.Subject
}

// DurableName returns the durable consumer name.
func (c *NATSConsumer) DurableName() string {
	return c.config.DurableName
}
