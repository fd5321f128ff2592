package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autobot-dashboard/config"
	"autobot-dashboard/internal/api"
	"autobot-dashboard/internal/cache"
	"autobot-dashboard/internal/catalog"
	"autobot-dashboard/internal/cleanup"
	"autobot-dashboard/internal/database"
	"autobot-dashboard/internal/health"
	"autobot-dashboard/internal/logging"
	"autobot-dashboard/internal/session"

	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.LoggingConfig.Level,
		Pretty: cfg.LoggingConfig.Pretty,
	})
	logger.Info().Msg("starting autobot dashboard")

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	repo := database.NewRepository(db)

	// Redis is optional: the catalog degrades to in-memory last-good copies
	// when it is absent or down.
	var cacheService *cache.Service
	if cfg.RedisConfig.Enabled {
		cacheService = cache.New(cache.Config{
			Address:  cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		}, logger)
		defer cacheService.Close()
	}

	catalogClient := catalog.NewClient(
		cfg.CatalogConfig.BaseURL,
		cfg.CatalogConfig.FetchTimeout,
		cfg.CatalogConfig.RatePerMin,
	)
	catalogService := catalog.NewService(catalogClient, cacheService, cfg.CatalogConfig.CacheTTL, logger)

	lifecycle := session.NewController(&sessionStore{repo: repo}, logger)
	healthAgg := health.NewAggregator(&healthSource{repo: repo}, logger)

	sweeper := cleanup.NewSweeper(repo, []cleanup.TableRule{
		{Table: "decisions_log", RetainDays: cfg.CleanupConfig.DecisionDays},
		{Table: "risk_journal", RetainDays: cfg.CleanupConfig.JournalDays},
	}, logger)

	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		ProductionMode: cfg.ServerConfig.ProductionMode,
		CleanupToken:   cfg.CleanupConfig.Token,
	}, repo, lifecycle, healthAgg, catalogService, sweeper, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("web server failed")
		}
	}()

	// Optional built-in sweep schedule for deployments without an external
	// cron hitting the maintenance endpoint.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if cfg.CleanupConfig.Interval > 0 {
		go runPeriodicSweep(sweepCtx, sweeper, cfg.CleanupConfig, logger)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down")
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error shutting down web server")
	}

	logger.Info().Msg("shutdown complete")
}

func runPeriodicSweep(ctx context.Context, sweeper *cleanup.Sweeper, cfg config.CleanupConfig, logger zerolog.Logger) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sweeper.Run(ctx, cleanup.Options{
				Table:     "ALL",
				Batch:     cfg.Batch,
				MaxRounds: cfg.MaxRounds,
			}); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("scheduled retention sweep failed")
			}
		}
	}
}

// sessionStore adapts the repository's transaction runner to the lifecycle
// controller's store interface.
type sessionStore struct {
	repo *database.Repository
}

func (s *sessionStore) Transact(ctx context.Context, fn func(session.Ledger) error) error {
	return s.repo.Transact(ctx, func(tx *database.TxRepo) error {
		return fn(tx)
	})
}

// healthSource adapts repository reads to the health aggregator's source
// interface.
type healthSource struct {
	repo *database.Repository
}

func (s *healthSource) Heartbeats(ctx context.Context) ([]health.Heartbeat, error) {
	rows, err := s.repo.ListHeartbeats(ctx)
	if err != nil {
		return nil, err
	}
	beats := make([]health.Heartbeat, 0, len(rows))
	for _, jp := range rows {
		beats = append(beats, health.Heartbeat{
			JobID:     jp.JobID,
			Phase:     jp.Phase,
			Symbol:    jp.Symbol,
			Interval:  jp.Interval,
			Pct:       jp.Pct,
			UpdatedAt: jp.UpdatedAt,
		})
	}
	return beats, nil
}

func (s *healthSource) ErrorCountSince(ctx context.Context, rule string, sinceMs int64) (int, error) {
	return s.repo.CountJournalErrorsSince(ctx, rule, sinceMs)
}
