package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apppoint "github.com/loyalty/backend/internal/application/point"
	"github.com/loyalty/backend/internal/infrastructure/cache"
	"github.com/loyalty/backend/internal/infrastructure/config"
	"github.com/loyalty/backend/internal/infrastructure/event"
	"github.com/loyalty/backend/internal/infrastructure/logger"
	"github.com/loyalty/backend/internal/infrastructure/persistence"
	"github.com/loyalty/backend/internal/infrastructure/telemetry"
	"github.com/loyalty/backend/internal/interfaces/http/handler"
	"github.com/loyalty/backend/internal/interfaces/http/middleware"
	"github.com/loyalty/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Loyalty Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize telemetry providers
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Register database tracing callbacks
	dbTracingCfg := telemetry.DefaultDBTracingConfig()
	dbTracingCfg.Enabled = cfg.Telemetry.Enabled
	dbTracingCfg.DBName = cfg.Database.DBName
	if err := telemetry.NewDBTracing(dbTracingCfg, log).Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	// Initialize cache stores: Redis when enabled, in-memory otherwise
	storeFactory := cache.NewStoreFactory(cfg.Redis, cache.WithLogger(log))
	balanceStore, err := storeFactory.CreateBalanceStore()
	if err != nil {
		log.Fatal("Failed to create balance store", zap.Error(err))
	}
	idempotencyStore, err := storeFactory.CreateIdempotencyStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}

	// Initialize event bus
	eventBus := event.NewInMemoryEventBus(event.Config{
		BufferSize:     cfg.Event.BufferSize,
		HandlerTimeout: cfg.Event.HandlerTimeout,
	}, log)
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Ledger transaction scope over GORM
	scope := persistence.NewGormTransactionScope(db.DB)

	// Business metrics over the meter provider (no-op when disabled)
	pointMetrics, err := telemetry.NewPointMetrics(telemetry.PointMetricsConfig{
		Meter:  meterProvider.Meter(cfg.Telemetry.ServiceName),
		Logger: log,
	})
	if err != nil {
		log.Fatal("Failed to create point metrics", zap.Error(err))
	}

	// Reconciliation rebuilds cached balances from the ledger when cache
	// updates fail
	reconciliationService := apppoint.NewReconciliationService(scope, balanceStore, log)
	reconciliationService.SetPointMetrics(pointMetrics)
	reconciliationQueue := event.NewChannelReconciliationQueue(reconciliationService, event.QueueConfig{
		QueueSize:  cfg.Reconciliation.QueueSize,
		MaxRetries: cfg.Reconciliation.MaxRetries,
		RetryDelay: cfg.Reconciliation.RetryDelay,
	}, log)
	reconciliationQueue.SetPointMetrics(pointMetrics)
	if err := reconciliationQueue.Start(context.Background()); err != nil {
		log.Fatal("Failed to start reconciliation queue", zap.Error(err))
	}
	defer func() {
		if err := reconciliationQueue.Stop(context.Background()); err != nil {
			log.Error("Error stopping reconciliation queue", zap.Error(err))
		}
	}()

	// Balance cache updates ride on the ledger events, deduplicated by
	// event ID so redelivery cannot double-apply
	balanceUpdateHandler := apppoint.NewBalanceUpdateHandler(balanceStore, reconciliationQueue, log)
	idempotentBalanceHandler := event.NewIdempotentHandler(balanceUpdateHandler, idempotencyStore, log)
	eventBus.Subscribe(idempotentBalanceHandler)
	log.Info("Balance update handler registered",
		zap.Strings("event_types", idempotentBalanceHandler.EventTypes()),
	)

	// Application services
	pointService := apppoint.NewPointService(scope, eventBus, log)
	pointService.SetPointMetrics(pointMetrics)
	balanceQueryService := apppoint.NewBalanceQueryService(balanceStore, reconciliationService, log)

	// Expiration sweeper writes off expired lots in the background
	if cfg.Expiry.SweepEnabled {
		sweeper := apppoint.NewExpirationSweeper(pointService, apppoint.ExpirationSweeperConfig{
			CheckInterval: cfg.Expiry.CheckInterval,
			BatchSize:     cfg.Expiry.BatchSize,
		}, log)
		sweeper.Start(context.Background())
		defer sweeper.Stop()
		log.Info("Expiration sweeper started",
			zap.Duration("check_interval", cfg.Expiry.CheckInterval),
			zap.Int("batch_size", cfg.Expiry.BatchSize),
		)
	}

	// HTTP handlers
	pointHandler := handler.NewPointHandler(pointService, balanceQueryService)
	systemHandler := handler.NewSystemHandler()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware stack order: request ID, panic recovery, request logging,
	// tracing, CORS
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanErrorMarker())

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Health check endpoint, outside API versioning
	engine.GET("/healthz", healthHandler(db, log))

	// Member-scoped routes
	memberRoutes := router.NewDomainGroup("members", "/members")
	memberRoutes.POST("/:memberID/accumulations", pointHandler.Accumulate)
	memberRoutes.GET("/:memberID/accumulations", pointHandler.ListAccumulations)
	memberRoutes.POST("/:memberID/usages", pointHandler.Use)
	memberRoutes.GET("/:memberID/usages", pointHandler.ListUsages)
	memberRoutes.GET("/:memberID/balance", pointHandler.GetBalance)

	// Key-scoped routes
	accumulationRoutes := router.NewDomainGroup("accumulations", "/accumulations")
	accumulationRoutes.GET("/:key", pointHandler.GetAccumulation)
	accumulationRoutes.DELETE("/:key", pointHandler.CancelAccumulation)

	usageRoutes := router.NewDomainGroup("usages", "/usages")
	usageRoutes.GET("/:key", pointHandler.GetUsage)
	usageRoutes.DELETE("/:key", pointHandler.CancelUsage)

	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(memberRoutes).
		Register(accumulationRoutes).
		Register(usageRoutes).
		Register(systemRoutes)
	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
