package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/jobs/queue"
	"github.com/hoistscout/hoistscout/internal/jobs/scheduler"
	"github.com/hoistscout/hoistscout/internal/services/auth"
	"github.com/hoistscout/hoistscout/internal/services/browser"
	"github.com/hoistscout/hoistscout/internal/services/compliance"
	"github.com/hoistscout/hoistscout/internal/services/documents"
	"github.com/hoistscout/hoistscout/internal/services/extractor"
	"github.com/hoistscout/hoistscout/internal/services/llm"
	"github.com/hoistscout/hoistscout/internal/services/pagination"
	"github.com/hoistscout/hoistscout/internal/services/ratelimit"
	"github.com/hoistscout/hoistscout/internal/services/scraper"
	"github.com/hoistscout/hoistscout/internal/services/session"
	"github.com/hoistscout/hoistscout/internal/services/vault"
	"github.com/hoistscout/hoistscout/internal/storage/sqlite"
	"github.com/hoistscout/hoistscout/internal/workers"
)

// App owns every long-lived component and wires them together
type App struct {
	Config     *common.Config
	Logger     arbor.ILogger
	Storage    interfaces.Storage
	Queue      interfaces.JobQueue
	Vault      interfaces.Vault
	Sessions   interfaces.SessionService
	Compliance interfaces.ComplianceService
	Browser    interfaces.BrowserService
	Runner     *scraper.Runner
	Pool       *workers.Pool
	Scheduler  *scheduler.Scheduler

	db           *sqlite.SQLiteDB
	verdictCache *badgerhold.Store
}

// New builds the full service graph from configuration
func New(ctx context.Context, config *common.Config, logger arbor.ILogger) (*App, error) {
	db, err := sqlite.NewSQLiteDB(logger, &config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	storage := sqlite.NewStore(db, logger)
	jobQueue := queue.NewQueue(db, logger, &config.Queue)

	credVault, err := vault.NewService(config.Vault.Key, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize vault: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
	sessions := session.NewStore(redisClient, config.Scraper.SessionTTL, logger)

	verdictCache, err := compliance.OpenVerdictCache(config.Badger.Path, config.Badger.InMemory, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open verdict cache: %w", err)
	}
	complianceSvc := compliance.NewService(verdictCache, &config.Compliance, logger)

	objectStore, err := documents.NewS3Store(ctx, &config.ObjectStore, logger)
	if err != nil {
		verdictCache.Close()
		db.Close()
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	provider, err := llm.NewProvider(ctx, config, logger)
	if err != nil {
		verdictCache.Close()
		db.Close()
		return nil, fmt.Errorf("failed to initialize llm provider: %w", err)
	}

	browserSvc := browser.NewService(&config.Browser, logger)
	limiter := ratelimit.NewLimiter(logger)
	runner := scraper.NewRunner(scraper.Deps{
		Storage:    storage,
		Queue:      jobQueue,
		Vault:      credVault,
		Compliance: complianceSvc,
		Sessions:   sessions,
		Limiter:    limiter,
		Browser:    browserSvc,
		Auth:       auth.NewService(config, logger),
		Pagination: pagination.NewEngine(&config.Scraper, logger),
		Extractor:  extractor.NewService(provider, logger),
		Documents:  documents.NewService(objectStore, documents.NewPDFExtractor(), limiter, &config.Scraper, logger),
	}, &config.Scraper, logger)

	app := &App{
		Config:       config,
		Logger:       logger,
		Storage:      storage,
		Queue:        jobQueue,
		Vault:        credVault,
		Sessions:     sessions,
		Compliance:   complianceSvc,
		Browser:      browserSvc,
		Runner:       runner,
		Pool:         workers.NewPool(jobQueue, runner, sessions, config, logger),
		Scheduler:    scheduler.NewScheduler(jobQueue, storage, config, logger),
		db:           db,
		verdictCache: verdictCache,
	}

	if err := app.loadSites(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// Close releases every component in reverse dependency order
func (a *App) Close() {
	if a.Browser != nil {
		a.Browser.Close()
	}
	if a.Compliance != nil {
		a.Compliance.Close()
	}
	if a.Sessions != nil {
		if err := a.Sessions.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Session store close failed")
		}
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
	}
}
