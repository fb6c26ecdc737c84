package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appfinance "github.com/erp/ledger/internal/application/finance"
	"github.com/erp/ledger/internal/domain/sequence"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/auth"
	"github.com/erp/ledger/internal/infrastructure/cache"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/event"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/erp/ledger/internal/infrastructure/scheduler"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/erp/ledger/internal/interfaces/http/handler"
	"github.com/erp/ledger/internal/interfaces/http/middleware"
	"github.com/erp/ledger/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx := context.Background()

	// Bootstrap logger, replaced once the log exporter is up
	bootLog, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogExportEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
		Level:             cfg.Log.Level,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize log exporter", zap.Error(err))
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}, logProvider.ZapCore())
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Profiling.Enabled,
		ServerAddress:   cfg.Profiling.ServerAddress,
		ApplicationName: cfg.Profiling.ApplicationName,
		ProfileTypes:    cfg.Profiling.ProfileTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if cfg.Profiling.Enabled && cfg.Profiling.SpanProfiles {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Span profiles not enabled", zap.Error(err))
		}
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
		if err := logProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down log provider", zap.Error(err))
		}
	}()

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully", zap.String("driver", db.Driver))

	dbSystem := "postgresql"
	if db.Driver == config.DriverSQLite {
		dbSystem = "sqlite"
		// SQLite deployments have no migration step
		if err := persistence.AutoMigrate(db.DB); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}
	if err := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        dbSystem,
	}, log).Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	// Redis is optional; without it revocations, idempotency keys and cache
	// revalidation stay in process
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			_ = redisClient.Close()
		}()
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	var (
		blacklist   auth.TokenBlacklist
		idempotency shared.IdempotencyStore
		revalidator cache.Revalidator
	)
	if redisClient != nil {
		blacklist = auth.NewRedisTokenBlacklist(redisClient)
		idempotency = cache.NewIdempotencyStoreFactory(redisClient, cache.WithLogger(log)).CreateStore()
		revalidator = cache.NewRedisRevalidator(redisClient, cfg.Redis.Channel, log)
	} else {
		blacklist = auth.NewInMemoryTokenBlacklist()
		idempotency = cache.NewInMemoryIdempotencyStore(time.Minute)
		revalidator = cache.NewLogRevalidator(log)
	}
	defer func() {
		_ = idempotency.Close()
	}()

	// Event bus
	eventBus := event.NewInMemoryEventBus(log, event.WithAsyncDispatch(4))
	revalidation := event.NewRevalidationHandler(revalidator)
	eventBus.Subscribe(revalidation, revalidation.EventTypes()...)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Ledger services
	ledgerMetrics, err := telemetry.NewLedgerMetrics(meterProvider.Meter(telemetry.MeterName), log)
	if err != nil {
		log.Fatal("Failed to register ledger metrics", zap.Error(err))
	}
	ledger := appfinance.NewLedger(repositories(db.DB), appfinance.Infra{
		Tx:       persistence.NewGormTxManager(db.DB),
		Sessions: auth.NewContextSessionResolver(),
		Oracle:   auth.NewCapabilityOracle(),
		Events:   eventBus,
		Retry: sequence.RetryPolicy{
			MaxAttempts:     cfg.Sequence.RetryMaxAttempts,
			InitialInterval: cfg.Sequence.RetryInitialInterval,
			MaxInterval:     cfg.Sequence.RetryMaxInterval,
		},
		Tolerance: cfg.Clearing.Tolerance,
		Metrics:   ledgerMetrics,
		Logger:    log,
	})

	// Recurring journal trigger (if enabled)
	if cfg.Recurring.Enabled {
		trigger, err := scheduler.NewRecurringTrigger(
			scheduler.RecurringTriggerConfig{
				CheckInterval: cfg.Recurring.CheckInterval,
				BatchSize:     cfg.Recurring.BatchSize,
				DedupeTTL:     cfg.Recurring.DedupeTTL,
				SystemUserID:  cfg.Recurring.SystemUserID,
			},
			scheduler.SchedulerConfig{
				Workers:       cfg.Recurring.Workers,
				QueueSize:     cfg.Recurring.BatchSize * 2,
				JobTimeout:    cfg.Recurring.JobTimeout,
				RetryAttempts: cfg.Recurring.RetryAttempts,
				RetryDelay:    cfg.Recurring.RetryDelay,
			},
			ledger.Recurring,
			idempotency,
			log,
		)
		if err != nil {
			log.Fatal("Failed to create recurring trigger", zap.Error(err))
		}
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start recurring trigger", zap.Error(err))
		}
		defer func() {
			if err := trigger.Stop(context.Background()); err != nil {
				log.Error("Error stopping recurring trigger", zap.Error(err))
			}
		}()
		log.Info("Recurring trigger started",
			zap.Duration("check_interval", cfg.Recurring.CheckInterval),
			zap.Int("workers", cfg.Recurring.Workers),
		)
	}

	// HTTP
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	tracing := middleware.DefaultTracingConfig()
	tracing.ServiceName = cfg.Telemetry.ServiceName
	tracing.Enabled = cfg.Telemetry.Enabled

	// RequestID first so every log line and span carries it; SpanErrorMarker
	// last so it sees the final status
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(tracing))
	engine.Use(middleware.HTTPMetrics(meterProvider.Meter(telemetry.MeterName), log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	engine.Use(middleware.SpanErrorMarker())

	engine.NoRoute(func(c *gin.Context) {
		c.Set(dto.ErrorCodeContextKey, dto.ErrCodeRouteNotFound)
		c.JSON(http.StatusNotFound, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeRouteNotFound, "route not found", c.GetString(middleware.RequestIDKey)))
	})

	system := handler.NewSystemHandler(db, version)
	engine.GET("/health", system.Health)

	profiling := middleware.DefaultProfilingConfig()
	profiling.Enabled = cfg.Profiling.Enabled

	jwtConfig := middleware.DefaultJWTConfig(auth.NewJWTService(cfg.JWT))
	jwtConfig.TokenBlacklist = blacklist
	jwtConfig.Logger = log
	apiMiddleware := []gin.HandlerFunc{
		middleware.JWTAuthMiddlewareWithConfig(jwtConfig),
		middleware.TracingAttributeInjector(),
		middleware.ProfilingWithConfig(profiling),
	}
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		apiMiddleware = append(apiMiddleware, middleware.RateLimit(limiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	r := router.NewRouter(engine, router.WithAPIVersion("v1"), router.WithMiddleware(apiMiddleware...))
	r.Register(handler.LedgerRoutes(ledger)...)
	api := r.Setup()
	api.GET("/health", system.Health)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// repositories builds the GORM stores of every ledger aggregate
func repositories(db *gorm.DB) appfinance.Repositories {
	return appfinance.Repositories{
		ApInvoices:     persistence.NewApInvoiceRepository(db),
		ArInvoices:     persistence.NewArInvoiceRepository(db),
		ApNotes:        persistence.NewApNoteRepository(db),
		ArNotes:        persistence.NewArNoteRepository(db),
		Payments:       persistence.NewPaymentRepository(db),
		Receipts:       persistence.NewReceiptRepository(db),
		PurchaseOrders: persistence.NewPurchaseOrderRepository(db),
		PaymentBatches: persistence.NewPaymentBatchRepository(db),
		JournalEntries: persistence.NewJournalEntryRepository(db),
		OpenItems:      persistence.NewGormOpenItemRepository(db),
		Clearings:      persistence.NewGormClearingRepository(db),
		Templates:      persistence.NewGormRecurringTemplateRepository(db),
		Counters:       persistence.NewGormCounterStore(db),
	}
}
