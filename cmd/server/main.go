package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	boardsyncapp "github.com/docsync/backend/internal/application/boardsync"
	eventapp "github.com/docsync/backend/internal/application/event"
	"github.com/docsync/backend/internal/application/pipeline"
	"github.com/docsync/backend/internal/application/reconcile"
	changerouter "github.com/docsync/backend/internal/application/router"
	"github.com/docsync/backend/internal/domain/shared"
	"github.com/docsync/backend/internal/infrastructure/accounts"
	"github.com/docsync/backend/internal/infrastructure/cache"
	"github.com/docsync/backend/internal/infrastructure/config"
	"github.com/docsync/backend/internal/infrastructure/dropbox"
	"github.com/docsync/backend/internal/infrastructure/event"
	"github.com/docsync/backend/internal/infrastructure/extraction"
	"github.com/docsync/backend/internal/infrastructure/logger"
	"github.com/docsync/backend/internal/infrastructure/monday"
	"github.com/docsync/backend/internal/infrastructure/persistence"
	"github.com/docsync/backend/internal/infrastructure/scheduler"
	"github.com/docsync/backend/internal/infrastructure/storage"
	"github.com/docsync/backend/internal/infrastructure/telemetry"
	"github.com/docsync/backend/internal/infrastructure/xero"
	"github.com/docsync/backend/internal/interfaces/http/handler"
	"github.com/docsync/backend/internal/interfaces/http/middleware"
	"github.com/docsync/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry comes first so the logger can be tee'd to the OTLP pipeline
	providers, err := telemetry.NewProviders(ctx, cfg.Telemetry, version, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	if cfg.Telemetry.LogsEnabled {
		log, err = logger.New(logCfg, providers.LogCore(logger.ParseLevel(cfg.Log.Level)))
		if err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer func() {
		_ = logger.Sync(log)
	}()
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			log.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}()

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		_ = profiler.Stop()
	}()
	if profiler.IsEnabled() {
		providers.EnableSpanProfiles()
	}

	log.Info("Starting docsync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	metrics, err := telemetry.NewPipelineMetrics(providers.Meter("docsync/pipeline"))
	if err != nil {
		log.Warn("Pipeline metrics disabled", zap.Error(err))
		metrics = nil
	}

	// Database
	var gormOpts []logger.GormLoggerOption
	if cfg.Telemetry.DBSlowQueryThresh > 0 {
		gormOpts = append(gormOpts, logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	}
	if !cfg.Telemetry.DBLogFullSQL {
		gormOpts = append(gormOpts, logger.WithRedactedParams())
	}
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), gormOpts...)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.InstrumentDB(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        cfg.Database.Driver,
	}, log); err != nil {
		log.Warn("Database tracing disabled", zap.Error(err))
	}
	if cfg.Telemetry.MetricsEnabled {
		if err := telemetry.RegisterPoolMetrics(db.DB, providers.Meter("docsync/db")); err != nil {
			log.Warn("Connection pool metrics disabled", zap.Error(err))
		}
	}
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	// Redis backs cursors and idempotency when enabled
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer func() {
			_ = rdb.Close()
		}()
	}
	idempotency := cache.NewIdempotencyStore(rdb, log)
	defer func() {
		_ = idempotency.Close()
	}()
	cursors, err := newCursorStore(cfg.Cursor, rdb)
	if err != nil {
		log.Fatal("Failed to open cursor store", zap.Error(err))
	}

	codes, err := accounts.LoadCodeMap(cfg.Accounts.CodeMapPath)
	if err != nil {
		log.Warn("Using built-in account codes", zap.String("path", cfg.Accounts.CodeMapPath), zap.Error(err))
		codes = accounts.Default()
	}

	// Repositories; events raised on save go to the outbox in the same transaction
	serializer := event.NewProcurementSerializer()
	outboxWriter := event.NewOutboxWriter(serializer)
	outboxWriter.SetMaxRetries(cfg.Event.MaxRetries)

	fileEvents := persistence.NewGormFileEventRepository(db)
	contacts := persistence.NewGormContactRepository(db)
	orders := persistence.NewGormPurchaseOrderRepository(db)
	taxForms := persistence.NewGormTaxFormRepository(db)
	poLogs := persistence.NewGormPOLogRepository(db)
	auditLog := persistence.NewGormAuditLogRepository(db)
	items := persistence.NewGormDetailItemRepository(db)
	items.SetOutboxEventSaver(outboxWriter)
	invoices := persistence.NewGormInvoiceRepository(db)
	invoices.SetOutboxEventSaver(outboxWriter)
	receipts := persistence.NewGormReceiptRepository(db)
	receipts.SetOutboxEventSaver(outboxWriter)
	xeroRepo := persistence.NewGormXeroRepository(db)
	xeroRepo.SetOutboxEventSaver(outboxWriter)
	outboxStore := event.NewGormOutboxStore(db.DB)

	// External clients
	dbx, err := dropbox.NewClient(cfg.Dropbox, log)
	if err != nil {
		log.Fatal("Failed to create Dropbox client", zap.Error(err))
	}
	dbx.SetMetrics(metrics)
	if err := dbx.Connect(ctx); err != nil {
		log.Fatal("Failed to connect to Dropbox", zap.Error(err))
	}
	defer dbx.Stop()

	board, err := monday.NewClient(cfg.Monday, log)
	if err != nil {
		log.Fatal("Failed to create Monday client", zap.Error(err))
	}
	board.SetMetrics(metrics)

	text := extraction.NewTextExtractor(cfg.OCR, log)
	docs, err := extraction.NewOpenAIExtractor(cfg.OpenAI, log)
	if err != nil {
		log.Fatal("Failed to create extractor", zap.Error(err))
	}

	// Event bus and outbox relay
	bus := event.NewInMemoryEventBus(log)
	invoiceHandler := reconcile.NewInvoiceSavedHandler(invoices, items, log)
	detailHandler := reconcile.NewDetailItemHandler(items, invoices, receipts, xeroRepo, log)
	handlers := []shared.EventHandler{invoiceHandler, detailHandler}
	if cfg.Xero.Enabled {
		xc, err := xero.NewClient(cfg.Xero, log)
		if err != nil {
			log.Fatal("Failed to create Xero client", zap.Error(err))
		}
		xc.SetMetrics(metrics)
		xeroSync := reconcile.NewXeroSync(xeroRepo, orders, contacts, xc, log)
		detailHandler.SetPusher(xeroSync)
		handlers = append(handlers, xeroSync)
	}
	event.SubscribeIdempotent(bus, idempotency, shared.IdempotencyConfig{
		TTL:     cfg.Event.HandlerTTL,
		Enabled: true,
	}, log, handlers...)

	relayCfg := event.DefaultRelayConfig()
	if cfg.Event.BatchSize > 0 {
		relayCfg.BatchSize = cfg.Event.BatchSize
	}
	if cfg.Event.PollInterval > 0 {
		relayCfg.PollInterval = cfg.Event.PollInterval
	}
	relayCfg.CleanupEnabled = cfg.Event.CleanupEnabled
	if cfg.Event.CleanupRetention > 0 {
		relayCfg.CleanupRetention = cfg.Event.CleanupRetention
	}
	relay := event.NewOutboxRelay(outboxStore, bus, serializer, relayCfg, log)

	// Pipeline
	processor := pipeline.NewProcessor(pipeline.Repositories{
		Contacts:       contacts,
		PurchaseOrders: orders,
		Invoices:       invoices,
		Receipts:       receipts,
		TaxForms:       taxForms,
	}, dbx, board, text, docs, codes, log)
	if cfg.Storage.Enabled {
		archive, err := storage.NewS3DocumentArchive(ctx, cfg.Storage, log)
		if err != nil {
			log.Fatal("Failed to create document archive", zap.Error(err))
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			log.Warn("Document archive bucket unavailable", zap.Error(err))
		}
		processor.SetArchive(archive)
	}

	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		JobTimeout:        cfg.Scheduler.JobTimeout,
		RetryAttempts:     cfg.Scheduler.RetryAttempts,
		RetryDelay:        cfg.Scheduler.RetryDelay,
	}, log)
	sched.SetMetrics(metrics)
	dispatcher := pipeline.NewDispatcher(sched, cfg.Scheduler.RetryAttempts)

	poller := pipeline.NewPoller(fileEvents, processor, sched, cfg.Scheduler.PollBatchSize, log)
	poller.SetMetrics(metrics)
	poller.SetEnrichmentQueue(dispatcher)
	poller.SetStaleAfter(cfg.Scheduler.JobTimeout)
	enricher := pipeline.NewEnricher(fileEvents, dbx, text, docs, log)
	importer := pipeline.NewPOLogImporter(dbx, board, poLogs, log)
	importer.SetAuditLog(auditLog)

	sched.Register(scheduler.JobTypeProcessEvent, poller)
	sched.Register(scheduler.JobTypeEnrichment, enricher)
	sched.Register(scheduler.JobTypePOLogImport, importer)
	trigger := scheduler.NewPollTrigger("file_events", cfg.Scheduler.PollInterval, poller.Poll, log)

	changes := changerouter.NewRouter(dbx, cursors, fileEvents, log)
	changes.SetDeduplication(idempotency, cfg.Dropbox.WebhookDedupTTL)
	changes.SetPOLogQueue(dispatcher)
	changes.SetMetrics(metrics)

	boardSync := boardsyncapp.NewService(items, orders, contacts, board, codes, log)
	boardSync.SetAuditLog(auditLog)

	// Background workers
	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	if cfg.Event.ProcessorEnabled {
		if err := relay.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox relay", zap.Error(err))
		}
	}
	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
		if err := poller.ReleaseStale(ctx); err != nil {
			log.Error("Failed to release stale file events", zap.Error(err))
		}
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start poll trigger", zap.Error(err))
		}
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Tracing must wrap everything that reads the span; the attribute
	// injector and error marker run inside it.
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	if cfg.Telemetry.Enabled {
		engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     true,
		}))
		engine.Use(middleware.TracingAttributeInjector())
		engine.Use(middleware.SpanErrorMarker())
	}
	if cfg.Telemetry.MetricsEnabled {
		engine.Use(middleware.HTTPMetrics(providers.Meter("docsync/http")))
	}
	engine.Use(middleware.Profiling(middleware.ProfilingConfig{
		Enabled:   cfg.Telemetry.ProfilingEnabled,
		SkipPaths: []string{"/health"},
	}))
	engine.Use(middleware.Secure())
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	limiterStop := make(chan struct{})
	defer close(limiterStop)
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		go limiter.Run(limiterStop)
		engine.Use(middleware.RateLimit(limiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	router.Mount(engine, router.Handlers{
		Dropbox: handler.NewDropboxWebhookHandler(changes, cfg.Scheduler.JobTimeout, log),
		Monday:  handler.NewMondayWebhookHandler(boardSync, log),
		Health:  handler.NewHealthHandler(db, version),
		Events:  handler.NewFileEventHandler(pipeline.NewEventAdmin(fileEvents, log)),
		POLog:   handler.NewPOLogHandler(importer),
		Outbox:  handler.NewOutboxHandler(eventapp.NewOutboxService(outboxStore, log)),
	}, router.Security{
		DropboxAppSecret: cfg.Dropbox.AppSecret,
		Monday: middleware.MondayAuthConfig{
			SigningSecret: cfg.Monday.SigningSecret,
			WebhookToken:  cfg.Monday.WebhookToken,
		},
		AdminToken: cfg.HTTP.AdminToken,
	})
	if cfg.HTTP.AdminToken == "" {
		log.Info("Admin API disabled, no admin token configured")
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	failed := false
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		log.Error("Server failed", zap.Error(err))
		failed = true
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	// poller first so no new jobs are queued while the pool drains
	if err := trigger.Stop(shutdownCtx); err != nil {
		log.Warn("Poll trigger stop failed", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Warn("Scheduler stop failed", zap.Error(err))
	}
	if err := relay.Stop(shutdownCtx); err != nil {
		log.Warn("Outbox relay stop failed", zap.Error(err))
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Warn("Event bus stop failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
	if failed {
		os.Exit(1)
	}
}

// newCursorStore keeps change-feed cursors on disk unless redis is selected
func newCursorStore(cfg config.CursorConfig, rdb *redis.Client) (changerouter.CursorStore, error) {
	if cfg.Backend == "redis" {
		if rdb == nil {
			return nil, errors.New("cursor backend redis requires redis.enabled")
		}
		return cache.NewRedisCursorStore(rdb), nil
	}
	return storage.NewFileCursorStore(cfg.Directory)
}
