package telemetry

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // include query variables in spans, dev only
	SlowQueryThresh time.Duration // threshold for flagging slow queries
	DBName          string
}

// DefaultDBTracingConfig returns default configuration for database tracing
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		Enabled:         false,
		LogFullSQL:      false,
		SlowQueryThresh: 200 * time.Millisecond,
		DBName:          "loyalty",
	}
}

// DBTracing registers the otelgorm plugin plus callbacks that annotate
// spans with row counts and flag slow queries.
type DBTracing struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracing creates the database tracing helper
func NewDBTracing(cfg DBTracingConfig, logger *zap.Logger) *DBTracing {
	return &DBTracing{config: cfg, logger: logger}
}

// Register installs the otelgorm plugin and span annotation callbacks
func (t *DBTracing) Register(db *gorm.DB) error {
	if !t.config.Enabled {
		t.logger.Debug("database tracing disabled")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(t.config.DBName)}
	if !t.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	if err := t.registerCallbacks(db); err != nil {
		return err
	}

	t.logger.Info("database tracing enabled",
		zap.Bool("log_full_sql", t.config.LogFullSQL),
		zap.Duration("slow_query_threshold", t.config.SlowQueryThresh),
	)
	return nil
}

type dbTracingCtxKey struct{}

func (t *DBTracing) registerCallbacks(db *gorm.DB) error {
	if err := db.Callback().Create().Before("gorm:create").Register("loyalty_tracing:before_create", t.markStart); err != nil {
		return err
	}
	if err := db.Callback().Query().Before("gorm:query").Register("loyalty_tracing:before_query", t.markStart); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("loyalty_tracing:before_update", t.markStart); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("loyalty_tracing:before_delete", t.markStart); err != nil {
		return err
	}

	if err := db.Callback().Create().After("gorm:create").Register("loyalty_tracing:after_create", t.annotateSpan); err != nil {
		return err
	}
	if err := db.Callback().Query().After("gorm:query").Register("loyalty_tracing:after_query", t.annotateSpan); err != nil {
		return err
	}
	if err := db.Callback().Update().After("gorm:update").Register("loyalty_tracing:after_update", t.annotateSpan); err != nil {
		return err
	}
	if err := db.Callback().Delete().After("gorm:delete").Register("loyalty_tracing:after_delete", t.annotateSpan); err != nil {
		return err
	}
	return nil
}

func (t *DBTracing) markStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, dbTracingCtxKey{}, time.Now())
	}
}

func (t *DBTracing) annotateSpan(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	if start, ok := ctx.Value(dbTracingCtxKey{}).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > t.config.SlowQueryThresh {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}
