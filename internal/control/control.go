package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/resilience/internal/core/config"
	"github.com/vietddude/resilience/internal/engine"
	"github.com/vietddude/resilience/internal/engine/errlog"
	"github.com/vietddude/resilience/internal/engine/fallback"
	"github.com/vietddude/resilience/internal/engine/recovery"
	"github.com/vietddude/resilience/internal/engine/retry"
	redisclient "github.com/vietddude/resilience/internal/infra/redis"
	"github.com/vietddude/resilience/internal/infra/report"
	"github.com/vietddude/resilience/internal/infra/storage"
	"github.com/vietddude/resilience/internal/infra/storage/memory"
	"github.com/vietddude/resilience/internal/infra/storage/postgres"
)

// Service is the daemon: the engine plus its storage, cache and
// telemetry wiring and the stats server.
type Service struct {
	cfg     *config.AppConfig
	handler *engine.Handler
	server  *Server
	repo    storage.ErrorLogRepository
	db      *postgres.DB
	redis   *redisclient.Client
	log     *slog.Logger
}

// New creates a Service with all dependencies initialized.
func New(cfg *config.AppConfig, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}

	// 1. Initialize storage
	var repo storage.ErrorLogRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate("migrations"); err != nil {
			return nil, err
		}
		repo = postgres.NewErrorLogRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		repo = memory.NewErrorLogRepo(cfg.Engine.Logger.BufferSize)
		log.Info("Using Memory storage")
	}

	// 2. Build the engine
	handler, err := engine.New(engine.Config{
		Retry: retry.Config{
			MaxAttempts:     cfg.Engine.Retry.MaxAttempts,
			InitialDelay:    cfg.Engine.Retry.InitialDelay.Std(),
			MaxDelay:        cfg.Engine.Retry.MaxDelay.Std(),
			BackoffMultiple: cfg.Engine.Retry.BackoffMultiple,
			Jitter:          retry.ParseJitter(cfg.Engine.Retry.Jitter),
			Timeout:         cfg.Engine.Retry.Timeout.Std(),
		},
		FallbackTimeout: cfg.Engine.Fallback.Timeout.Std(),
		Recovery: recovery.Config{
			MaxConcurrent: cfg.Engine.Recovery.MaxConcurrent,
			HistorySize:   cfg.Engine.Recovery.HistorySize,
		},
		Logging: errlog.Config{
			ConsoleEnabled:    cfg.Engine.Logger.Console,
			BufferSize:        cfg.Engine.Logger.BufferSize,
			AggregationWindow: cfg.Engine.Logger.AggregationWindow.Std(),
			MaxDuplicates:     cfg.Engine.Logger.MaxDuplicates,
			Sanitizer: errlog.SanitizerConfig{
				RemovePatterns: cfg.Engine.Logger.RemovePatterns,
				IncludeStack:   cfg.Engine.Logger.IncludeStack,
				IncludeContext: cfg.Engine.Logger.IncludeContext,
				EnableUserData: cfg.Engine.Logger.EnableUserData,
			},
		},
		Locale:      cfg.Engine.Locale,
		OfflineMode: cfg.Engine.Fallback.Offline,
	}, log)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	// 3. Persist sanitized entries alongside the in-process sinks
	handler.Logger().AddSink(storage.NewSink(repo))

	// 4. Remote telemetry collector
	if cfg.Report.Endpoint != "" {
		client := report.NewClient(report.Config{
			Endpoint: cfg.Report.Endpoint,
			APIKey:   cfg.Report.APIKey,
			Timeout:  cfg.Report.Timeout.Std(),
		})
		batcher := errlog.NewBatcher(client,
			cfg.Engine.Logger.BatchSize,
			cfg.Engine.Logger.FlushInterval.Std(),
			log)
		handler.Logger().SetRemote(batcher)
		log.Info("Remote reporting enabled", "endpoint", cfg.Report.Endpoint)
	}

	// 5. Redis-backed fallback cache
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, cache fallback disabled", "error", err)
		} else {
			if _, err := handler.Fallbacks().Register(fallback.Strategy{
				Name:     "cache",
				Priority: 10,
				Enabled:  true,
				Executor: &fallback.CacheExecutor{
					Store:  redisClient,
					MaxAge: cfg.Engine.Fallback.CacheMaxAge.Std(),
				},
			}); err != nil {
				return nil, fmt.Errorf("failed to register cache strategy: %w", err)
			}
			log.Info("Cache fallback strategy registered")
		}
	}

	return &Service{
		cfg:     cfg,
		handler: handler,
		server:  NewServer(handler, repo, cfg.Server.Port),
		repo:    repo,
		db:      db,
		redis:   redisClient,
		log:     log,
	}, nil
}

// Handler exposes the engine entry point to embedders.
func (s *Service) Handler() *engine.Handler {
	return s.handler
}

// Start starts the stats server.
func (s *Service) Start(ctx context.Context) error {
	go func() {
		if err := s.server.Start(); err != nil {
			s.log.Error("Stats server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts everything down, draining the logger first so buffered
// entries reach their sinks.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping service...")

	flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.handler.Logger().Flush(flushCtx); err != nil {
		s.log.Warn("Final flush failed", "error", err)
	}
	s.handler.Close()

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("Failed to close database", "error", err)
		}
	}

	return s.server.Stop(ctx)
}
