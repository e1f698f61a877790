package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// PointMetrics provides business metrics for the loyalty point system.
// It tracks the point lifecycle: accumulation, usage, cancellation, expiry,
// and balance reconciliation activity.
type PointMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	accumulatedTotal     *Counter
	accumulatedAmount    *Counter
	usedTotal            *Counter
	usedAmount           *Counter
	cancelledTotal       *Counter
	expiredAmount        *Counter
	reconciliationsTotal *Counter

	reconciliationQueueDepth *Gauge
}

// PointMetricsConfig holds configuration for point metrics.
type PointMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewPointMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

// NewPointMetrics creates a new PointMetrics instance.
func NewPointMetrics(cfg PointMetricsConfig) (*PointMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pm := &PointMetrics{
		meter:  cfg.Meter,
		logger: logger,
	}

	var err error

	pm.accumulatedTotal, err = NewCounter(
		cfg.Meter,
		"loyalty_point_accumulated_total",
		"Total number of accumulation lots granted",
		"{lots}",
	)
	if err != nil {
		return nil, err
	}

	pm.accumulatedAmount, err = NewCounter(
		cfg.Meter,
		"loyalty_point_accumulated_amount",
		"Total point amount granted",
		"{points}",
	)
	if err != nil {
		return nil, err
	}

	pm.usedTotal, err = NewCounter(
		cfg.Meter,
		"loyalty_point_used_total",
		"Total number of usage transactions",
		"{usages}",
	)
	if err != nil {
		return nil, err
	}

	pm.usedAmount, err = NewCounter(
		cfg.Meter,
		"loyalty_point_used_amount",
		"Total point amount used",
		"{points}",
	)
	if err != nil {
		return nil, err
	}

	pm.cancelledTotal, err = NewCounter(
		cfg.Meter,
		"loyalty_point_cancelled_total",
		"Total number of cancelled accumulations and usages",
		"{cancellations}",
	)
	if err != nil {
		return nil, err
	}

	pm.expiredAmount, err = NewCounter(
		cfg.Meter,
		"loyalty_point_expired_amount",
		"Total point amount written off by expiry",
		"{points}",
	)
	if err != nil {
		return nil, err
	}

	pm.reconciliationsTotal, err = NewCounter(
		cfg.Meter,
		"loyalty_balance_reconciliations_total",
		"Total number of balance reconciliation requests processed",
		"{requests}",
	)
	if err != nil {
		return nil, err
	}

	pm.reconciliationQueueDepth, err = NewGauge(
		cfg.Meter,
		"loyalty_reconciliation_queue_depth",
		"Current number of pending reconciliation requests",
		"{requests}",
	)
	if err != nil {
		return nil, err
	}

	return pm, nil
}

// RecordAccumulation records a granted accumulation lot.
func (pm *PointMetrics) RecordAccumulation(ctx context.Context, amount int64, manual bool) {
	pm.accumulatedTotal.Inc(ctx, AttrManual.Bool(manual))
	pm.accumulatedAmount.Add(ctx, amount, AttrManual.Bool(manual))
}

// RecordUsage records a usage transaction.
func (pm *PointMetrics) RecordUsage(ctx context.Context, amount int64) {
	pm.usedTotal.Inc(ctx)
	pm.usedAmount.Add(ctx, amount)
}

// RecordCancellation records a cancelled accumulation or usage.
// Kind is "accumulation" or "usage".
func (pm *PointMetrics) RecordCancellation(ctx context.Context, kind string) {
	pm.cancelledTotal.Inc(ctx, AttrEventType.String(kind))
}

// RecordExpiry records points written off by an expiry sweep.
func (pm *PointMetrics) RecordExpiry(ctx context.Context, amount int64) {
	pm.expiredAmount.Add(ctx, amount)
}

// RecordReconciliation records one processed reconciliation request.
func (pm *PointMetrics) RecordReconciliation(ctx context.Context) {
	pm.reconciliationsTotal.Inc(ctx)
}

// RecordQueueDepth records the current reconciliation queue depth.
func (pm *PointMetrics) RecordQueueDepth(ctx context.Context, depth int64) {
	pm.reconciliationQueueDepth.Record(ctx, depth)
}
