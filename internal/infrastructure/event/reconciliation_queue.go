package event

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loyalty/backend/internal/domain/point"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ReconciliationProcessor rebuilds a member's cached balance for a pending
// request. Processing must be idempotent; the queue retries on failure.
type ReconciliationProcessor interface {
	Process(ctx context.Context, request *point.ReconciliationRequest) error
}

// QueueConfig holds reconciliation queue configuration
type QueueConfig struct {
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultQueueConfig returns the default queue configuration
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		QueueSize:  1024,
		MaxRetries: 5,
		RetryDelay: 5 * time.Second,
	}
}

// ChannelReconciliationQueue is an in-process reconciliation queue: a
// buffered channel drained by a single worker that hands each request to
// the processor, retrying with a fixed delay. Requests are transient; a
// request lost on shutdown is recovered by the next balance event for the
// same member or a manual rebuild, since the ledger is never affected.
type ChannelReconciliationQueue struct {
	processor ReconciliationProcessor
	config    QueueConfig
	metrics   *telemetry.PointMetrics
	logger    *zap.Logger

	queue   chan *point.ReconciliationRequest
	stop    chan struct{}
	running atomic.Bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewChannelReconciliationQueue creates a new reconciliation queue
func NewChannelReconciliationQueue(processor ReconciliationProcessor, config QueueConfig, logger *zap.Logger) *ChannelReconciliationQueue {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueConfig().QueueSize
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultQueueConfig().MaxRetries
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultQueueConfig().RetryDelay
	}
	return &ChannelReconciliationQueue{
		processor: processor,
		config:    config,
		logger:    logger,
		queue:     make(chan *point.ReconciliationRequest, config.QueueSize),
		stop:      make(chan struct{}),
	}
}

// SetPointMetrics sets the business metrics collector
func (q *ChannelReconciliationQueue) SetPointMetrics(pm *telemetry.PointMetrics) {
	q.metrics = pm
}

func (q *ChannelReconciliationQueue) recordDepth(ctx context.Context) {
	if q.metrics != nil {
		q.metrics.RecordQueueDepth(ctx, int64(len(q.queue)))
	}
}

// Enqueue submits a pending request for asynchronous processing
func (q *ChannelReconciliationQueue) Enqueue(ctx context.Context, request *point.ReconciliationRequest) error {
	if !q.running.Load() {
		return shared.NewDomainError("QUEUE_STOPPED", "Reconciliation queue is not running")
	}
	select {
	case q.queue <- request:
		q.recordDepth(ctx)
		return nil
	case <-q.stop:
		return shared.NewDomainError("QUEUE_STOPPED", "Reconciliation queue is not running")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the worker
func (q *ChannelReconciliationQueue) Start(ctx context.Context) error {
	if !q.running.CompareAndSwap(false, true) {
		return nil
	}
	workerCtx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.wg.Add(1)
	go q.work(workerCtx)
	q.logger.Info("reconciliation queue started",
		zap.Int("queue_size", q.config.QueueSize),
	)
	return nil
}

// Stop stops accepting requests and waits for the worker. The queue channel
// is never closed so an Enqueue racing with shutdown fails cleanly instead
// of panicking on a closed channel.
func (q *ChannelReconciliationQueue) Stop(ctx context.Context) error {
	if !q.running.CompareAndSwap(true, false) {
		return nil
	}
	close(q.stop)
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
	q.cancel()
	q.logger.Info("reconciliation queue stopped")
	return nil
}

func (q *ChannelReconciliationQueue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case request := <-q.queue:
			q.processWithRetry(ctx, request)
			q.recordDepth(ctx)
		case <-q.stop:
			// Drain requests already enqueued before shutdown
			for {
				select {
				case request := <-q.queue:
					q.processWithRetry(ctx, request)
				default:
					return
				}
			}
		}
	}
}

func (q *ChannelReconciliationQueue) processWithRetry(ctx context.Context, request *point.ReconciliationRequest) {
	for attempt := 1; attempt <= q.config.MaxRetries; attempt++ {
		err := q.processor.Process(ctx, request)
		if err == nil {
			q.logger.Info("reconciliation request processed",
				zap.String("member_id", request.MemberID.String()),
				zap.String("trigger_event", request.EventType),
				zap.Int("attempt", attempt),
			)
			return
		}

		q.logger.Warn("reconciliation attempt failed",
			zap.String("member_id", request.MemberID.String()),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", q.config.MaxRetries),
			zap.Error(err),
		)

		select {
		case <-time.After(q.config.RetryDelay):
		case <-ctx.Done():
			return
		}
	}

	q.logger.Error("reconciliation request dropped after retries",
		zap.String("member_id", request.MemberID.String()),
		zap.String("reason", request.Reason),
	)
}

var _ point.ReconciliationQueue = (*ChannelReconciliationQueue)(nil)
