// Package control assembles the engine from configuration and manages
// its lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/kaizen2025/bulkops/internal/api"
	"github.com/kaizen2025/bulkops/internal/audit"
	"github.com/kaizen2025/bulkops/internal/bulk/executor"
	"github.com/kaizen2025/bulkops/internal/bulk/recovery"
	"github.com/kaizen2025/bulkops/internal/bulk/validate"
	"github.com/kaizen2025/bulkops/internal/core/config"
	"github.com/kaizen2025/bulkops/internal/core/worker"
	"github.com/kaizen2025/bulkops/internal/export"
	"github.com/kaizen2025/bulkops/internal/health"
	redisclient "github.com/kaizen2025/bulkops/internal/infra/redis"
	"github.com/kaizen2025/bulkops/internal/infra/storage"
	"github.com/kaizen2025/bulkops/internal/infra/storage/memory"
	"github.com/kaizen2025/bulkops/internal/infra/storage/postgres"
	"github.com/kaizen2025/bulkops/internal/notify"
)

// App is the assembled engine: storage, executor, recovery, audit
// trail, and the HTTP surface.
type App struct {
	cfg *config.AppConfig
	log *slog.Logger

	db          *postgres.DB
	redisClient *redisclient.Client

	Records     storage.RecordRepository
	Prefs       storage.PreferenceStore
	Audits      *audit.Service
	Executor    *executor.Executor
	Coordinator *recovery.Coordinator

	pruner *worker.Pruner
	server *api.Server
}

// New creates an App with all dependencies initialized.
func New(cfg *config.AppConfig) (*App, error) {

	// 1. Initialize Storage
	var recordRepo storage.RecordRepository
	var auditRepo storage.AuditRepository
	var prefs storage.PreferenceStore
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		// Note: Goose needs direct *sql.DB which sqlx.DB wraps
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		recordRepo = postgres.NewRecordRepo(db)
		auditRepo = postgres.NewAuditRepo(db, cfg.Audit.MaxEntries)
		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		recordRepo = memory.NewRecordRepo(store)
		auditRepo = memory.NewAuditRepo(store, cfg.Audit.MaxEntries)
		prefs = memory.NewPreferenceRepo(store)
		slog.Info("Using Memory storage")
	}

	// 2. Optional Redis: preferences and progress fan-out
	var redisClient *redisclient.Client
	var progress executor.Progress
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		prefs = redisclient.NewPreferenceRepo(redisClient)
		progress = redisclient.NewProgressPublisher(redisClient)
		slog.Info("Redis connected", "url", cfg.Redis.URL)
	}
	if prefs == nil {
		store := memory.NewMemoryStorage()
		prefs = memory.NewPreferenceRepo(store)
	}

	// 3. Notifier
	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Engine.NotifierURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Engine.NotifierURL, cfg.Engine.NotifierTimeout)
	}

	// 4. Core services
	audits := audit.NewService(auditRepo)
	exec := executor.New(recordRepo, validate.New(nil), audits, notifier, export.NewBuilder(), progress)
	coordinator := recovery.NewCoordinator(exec, recordRepo, cfg.Engine.MaxAutoRetries)

	// 5. Health and HTTP surface
	checkers := make(map[string]health.Checker)
	if db != nil {
		checkers["database"] = db
	}
	if redisClient != nil {
		checkers["redis"] = redisClient
	}
	monitor := health.NewMonitor(checkers, auditRepo, cfg.Audit.MaxEntries)

	server := api.NewServer(exec, coordinator, audits, prefs, monitor,
		cfg.Server.Port, cfg.Server.RateLimit, cfg.Server.RateBurst)

	return &App{
		cfg:         cfg,
		log:         slog.Default(),
		db:          db,
		redisClient: redisClient,
		Records:     recordRepo,
		Prefs:       prefs,
		Audits:      audits,
		Executor:    exec,
		Coordinator: coordinator,
		pruner:      worker.NewPruner(cfg.Audit.Retention, auditRepo),
		server:      server,
	}, nil
}

// Start starts the app and all its components.
func (a *App) Start(ctx context.Context) error {
	// Start HTTP Server
	go func() {
		a.log.Info("HTTP server listening", "port", a.cfg.Server.Port)
		if err := a.server.Start(); err != nil {
			a.log.Error("HTTP server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	// Start Audit Pruner
	go a.pruner.Start(ctx)

	return nil
}

// Stop stops the app.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping engine...")

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}

	return a.server.Stop(ctx)
}
