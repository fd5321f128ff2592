package api

import (
	"context"

	"autobot-dashboard/internal/database"
)

// Store is the storage surface the handlers consume. It is satisfied by
// *database.Repository; handlers depend on the interface so tests can
// substitute fakes.
type Store interface {
	HealthCheck(ctx context.Context) error
	Transact(ctx context.Context, fn func(tx *database.TxRepo) error) error

	GetSettings(ctx context.Context) (*database.Settings, error)

	GetSession(ctx context.Context, sessionID int64) (*database.RunSession, error)
	NewestSession(ctx context.Context) (*database.RunSession, error)

	LatestHeartbeat(ctx context.Context, symbols, intervals []string) (*database.JobProgress, error)
	UpsertHeartbeat(ctx context.Context, jp *database.JobProgress, pctGiven bool) error
	AppendJournal(ctx context.Context, entry *database.JournalEntry) error

	RecentTrades(ctx context.Context, filter database.TradeFilter, limit int) ([]*database.TradeRow, error)
	TradePage(ctx context.Context, filter database.TradeFilter, page, pageSize int) ([]*database.TradeRow, int, error)
	LatestTradeSessionID(ctx context.Context) (*int64, error)
	CountTradesBySession(ctx context.Context, sessionID int64, long bool) (int, error)
	CountTradesByWindow(ctx context.Context, fromMs, toMs int64, long bool) (int, error)
	CountHoldDecisions(ctx context.Context, sessionID, fromMs, toMs int64) (int, error)
	SumPnLSince(ctx context.Context, fromMs int64) (float64, error)
	SumPnLBySession(ctx context.Context, sessionID int64) (float64, error)
}
