package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection pool
func NewDB(cfg Config, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logger.With().Str("component", "database").Logger()
	log.Info().Str("database", cfg.Database).Msg("connected to PostgreSQL")

	return &DB{Pool: pool, log: log}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.log.Info().Msg("database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.log.Info().Msg("running database migrations")

	migrations := []string{
		// Singleton configuration record, id fixed at 1.
		`CREATE TABLE IF NOT EXISTS settings (
			id BIGINT PRIMARY KEY,
			symbols_json JSONB NOT NULL DEFAULT '["BTCUSDT"]',
			intervals_json JSONB NOT NULL DEFAULT '["1m"]',
			leverage_json JSONB NOT NULL DEFAULT '{}',
			invest_usdt_json JSONB NOT NULL DEFAULT '{}',
			is_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			adv_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			max_risk_pct DOUBLE PRECISION NOT NULL DEFAULT 0.01,
			max_daily_dd_pct DOUBLE PRECISION NOT NULL DEFAULT 0.03,
			max_consec_losses INT NOT NULL DEFAULT 4,
			entry_threshold DOUBLE PRECISION NOT NULL DEFAULT 0.3,
			reverse_gap DOUBLE PRECISION NOT NULL DEFAULT 0.2,
			cooldown_bars INT NOT NULL DEFAULT 2,
			min_hold_bars INT NOT NULL DEFAULT 2,
			trade_mode VARCHAR(8) NOT NULL DEFAULT 'SIM',
			live_armed BOOLEAN NOT NULL DEFAULT FALSE,
			fee_rate DOUBLE PRECISION NOT NULL DEFAULT 0.0004,
			slip_rate DOUBLE PRECISION NOT NULL DEFAULT 0.0005,
			current_session_id BIGINT
		)`,

		// Run session ledger. Timestamps are ms epoch, matching the
		// worker's reporting convention.
		`CREATE TABLE IF NOT EXISTS run_sessions (
			session_id BIGSERIAL PRIMARY KEY,
			started_at BIGINT NOT NULL,
			stopped_at BIGINT,
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			trade_mode VARCHAR(8) NOT NULL DEFAULT 'SIM'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_sessions_active ON run_sessions(is_active, started_at DESC)`,

		// One row per background job, overwritten in place.
		`CREATE TABLE IF NOT EXISTS job_progress (
			job_id VARCHAR(64) PRIMARY KEY,
			phase VARCHAR(32) NOT NULL,
			symbol VARCHAR(16) NOT NULL DEFAULT '',
			interval VARCHAR(8) NOT NULL DEFAULT '',
			step INT NOT NULL DEFAULT 0,
			total INT NOT NULL DEFAULT 1,
			pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_progress_updated ON job_progress(updated_at DESC)`,

		// Append-only leveled event journal, rule "JOB:<job_id>" for
		// job-scoped events.
		`CREATE TABLE IF NOT EXISTS risk_journal (
			id BIGSERIAL PRIMARY KEY,
			ts BIGINT NOT NULL,
			rule VARCHAR(64) NOT NULL,
			level VARCHAR(8) NOT NULL,
			detail VARCHAR(255) NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_journal_rule_ts ON risk_journal(rule, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_journal_ts ON risk_journal(ts)`,

		// Closed trade history written by the worker. qty sign encodes side.
		`CREATE TABLE IF NOT EXISTS trades_log (
			id BIGSERIAL PRIMARY KEY,
			session_id BIGINT,
			symbol VARCHAR(16) NOT NULL,
			interval VARCHAR(8) NOT NULL DEFAULT '',
			entry_ts BIGINT NOT NULL,
			exit_ts BIGINT,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION,
			qty DOUBLE PRECISION NOT NULL,
			pnl_after_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
			template_id BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_log_session ON trades_log(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_log_exit_ts ON trades_log(exit_ts)`,

		// Decision outcomes written by the worker (LONG/SHORT/HOLD).
		`CREATE TABLE IF NOT EXISTS decisions_log (
			id BIGSERIAL PRIMARY KEY,
			session_id BIGINT,
			ts BIGINT NOT NULL,
			symbol VARCHAR(16) NOT NULL,
			interval VARCHAR(8) NOT NULL DEFAULT '',
			action VARCHAR(8) NOT NULL,
			is_flat BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_log_session_ts ON decisions_log(session_id, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_log_ts ON decisions_log(ts)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.log.Info().Msg("database migrations completed")
	return nil
}

// HealthCheck performs a database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
