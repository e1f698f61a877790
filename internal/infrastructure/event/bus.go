package event

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loyalty/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Config holds event bus configuration
type Config struct {
	// BufferSize is the capacity of the dispatch queue. Publish blocks
	// once the queue is full.
	BufferSize int
	// HandlerTimeout bounds a single handler invocation
	HandlerTimeout time.Duration
}

// DefaultConfig returns the default bus configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:     256,
		HandlerTimeout: 30 * time.Second,
	}
}

// InMemoryEventBus implements EventBus with asynchronous in-memory pub/sub.
// Publish enqueues and returns; a background worker dispatches each event
// to the registered handlers. Events are transient: they live only in the
// queue and are lost on shutdown, which is acceptable because every
// consumer failure path falls back to reconciliation against the ledger.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	config   Config
	logger   *zap.Logger

	queue   chan shared.DomainEvent
	stop    chan struct{}
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(config Config, logger *zap.Logger) *InMemoryEventBus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = DefaultConfig().HandlerTimeout
	}
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		config:   config,
		logger:   logger,
		queue:    make(chan shared.DomainEvent, config.BufferSize),
		stop:     make(chan struct{}),
	}
}

// Publish enqueues events for asynchronous dispatch. Returns an error only
// when the bus is not running.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if !b.running.Load() {
		return shared.NewDomainError("BUS_STOPPED", "Event bus is not running")
	}
	for _, event := range events {
		select {
		case b.queue <- event:
		case <-b.stop:
			return shared.NewDomainError("BUS_STOPPED", "Event bus is not running")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers a handler for specific event types
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	// If handler specifies its own event types, use those
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed",
		zap.Strings("event_types", eventTypes),
	)
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
	b.logger.Debug("handler unsubscribed")
}

// Start launches the dispatch worker
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return nil
	}
	b.wg.Add(1)
	go b.dispatchLoop()
	b.logger.Info("event bus started",
		zap.Int("buffer_size", b.config.BufferSize),
	)
	return nil
}

// Stop stops accepting events and drains the queue. The queue channel is
// never closed so a Publish racing with shutdown fails cleanly instead of
// panicking on a closed channel.
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	if !b.running.CompareAndSwap(true, false) {
		return nil
	}
	close(b.stop)
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.logger.Info("event bus stopped")
	return nil
}

func (b *InMemoryEventBus) dispatchLoop() {
	defer b.wg.Done()
	for {
		select {
		case event := <-b.queue:
			b.dispatch(event)
		case <-b.stop:
			// Drain events already enqueued before shutdown
			for {
				select {
				case event := <-b.queue:
					b.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (b *InMemoryEventBus) dispatch(event shared.DomainEvent) {
	handlers := b.registry.GetHandlers(event.EventType())
	for _, handler := range handlers {
		if err := b.dispatchToHandler(handler, event); err != nil {
			// Log and continue with other handlers
			b.logger.Error("handler failed to process event",
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID().String()),
				zap.Error(err),
			)
		}
	}
}

// dispatchToHandler safely dispatches an event to one handler
func (b *InMemoryEventBus) dispatchToHandler(handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("event_type", event.EventType()),
				zap.Any("panic", r),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), b.config.HandlerTimeout)
	defer cancel()
	return handler.Handle(ctx, event)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
