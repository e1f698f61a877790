package point

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ExpirationSweeperConfig holds configuration for the expiration sweeper
type ExpirationSweeperConfig struct {
	// CheckInterval is how often expired lots are swept
	CheckInterval time.Duration
	// BatchSize is the maximum number of lots written off per sweep
	BatchSize int
}

// DefaultExpirationSweeperConfig returns the default sweeper configuration
func DefaultExpirationSweeperConfig() ExpirationSweeperConfig {
	return ExpirationSweeperConfig{
		CheckInterval: 10 * time.Minute,
		BatchSize:     100,
	}
}

// ExpirationSweeper periodically writes off the remainders of accumulation
// lots past their expiration date, producing one PointExpired event per lot.
type ExpirationSweeper struct {
	service *PointService
	config  ExpirationSweeperConfig
	logger  *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewExpirationSweeper creates a new expiration sweeper
func NewExpirationSweeper(service *PointService, config ExpirationSweeperConfig, logger *zap.Logger) *ExpirationSweeper {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultExpirationSweeperConfig().CheckInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultExpirationSweeperConfig().BatchSize
	}
	return &ExpirationSweeper{
		service: service,
		config:  config,
		logger:  logger,
	}
}

// Start launches the background sweep loop
func (s *ExpirationSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(loopCtx)
	s.logger.Info("expiration sweeper started",
		zap.Duration("check_interval", s.config.CheckInterval),
		zap.Int("batch_size", s.config.BatchSize),
	)
}

// Stop stops the sweep loop and waits for the current sweep to finish
func (s *ExpirationSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	<-s.done
	s.running = false
	s.logger.Info("expiration sweeper stopped")
}

func (s *ExpirationSweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs a single sweep of expired lots
func (s *ExpirationSweeper) SweepOnce(ctx context.Context) {
	count, err := s.service.ExpirePoints(ctx, time.Now(), s.config.BatchSize)
	if err != nil {
		s.logger.Error("expiration sweep failed", zap.Error(err))
		return
	}
	if count > 0 {
		s.logger.Info("expiration sweep completed", zap.Int("lots_expired", count))
	}
}
