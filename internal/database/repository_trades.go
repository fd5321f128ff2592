package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TradeFilter narrows trade queries. Zero values mean "no restriction".
type TradeFilter struct {
	SessionID *int64
	Symbol    string
	Interval  string
}

const tradeRowColumns = `
	entry_ts, exit_ts, entry_price, exit_price, template_id, pnl_after_cost,
	CASE WHEN qty >= 0 THEN 'LONG' ELSE 'SHORT' END AS side
`

func (f TradeFilter) whereClause() (string, []interface{}) {
	where := ""
	args := []interface{}{}
	and := func(cond string, arg interface{}) {
		args = append(args, arg)
		if where == "" {
			where = "WHERE "
		} else {
			where += " AND "
		}
		where += cond + placeholder(len(args))
	}
	if f.SessionID != nil {
		and("session_id = ", *f.SessionID)
	}
	if f.Symbol != "" {
		and("symbol = ", f.Symbol)
	}
	if f.Interval != "" {
		and("interval = ", f.Interval)
	}
	return where, args
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// RecentTrades returns the newest trades matching the filter, ordered by
// exit time (entry time for still-open rows).
func (r *Repository) RecentTrades(ctx context.Context, filter TradeFilter, limit int) ([]*TradeRow, error) {
	where, args := filter.whereClause()
	args = append(args, limit)
	query := `SELECT ` + tradeRowColumns + ` FROM trades_log ` + where +
		` ORDER BY COALESCE(exit_ts, entry_ts) DESC LIMIT ` + placeholder(len(args))
	return r.queryTradeRows(ctx, query, args...)
}

// TradePage returns one page of trades matching the filter plus the total
// row count for the filter.
func (r *Repository) TradePage(ctx context.Context, filter TradeFilter, page, pageSize int) ([]*TradeRow, int, error) {
	where, args := filter.whereClause()

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM trades_log `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	args = append(args, pageSize)
	limitPh := placeholder(len(args))
	args = append(args, offset)
	offsetPh := placeholder(len(args))

	query := `SELECT ` + tradeRowColumns + ` FROM trades_log ` + where +
		` ORDER BY COALESCE(exit_ts, entry_ts) DESC LIMIT ` + limitPh + ` OFFSET ` + offsetPh
	rows, err := r.queryTradeRows(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *Repository) queryTradeRows(ctx context.Context, query string, args ...interface{}) ([]*TradeRow, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TradeRow
	for rows.Next() {
		tr := &TradeRow{}
		if err := rows.Scan(&tr.EntryTS, &tr.ExitTS, &tr.EntryPrice, &tr.ExitPrice, &tr.TemplateID, &tr.PnLAfterCost, &tr.Side); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// LatestTradeSessionID returns the session id carried by the most recent
// trade row, used as a fallback scope when the settings pointer is unset.
func (r *Repository) LatestTradeSessionID(ctx context.Context) (*int64, error) {
	var sid *int64
	err := r.db.Pool.QueryRow(ctx, `
		SELECT session_id FROM trades_log ORDER BY id DESC LIMIT 1
	`).Scan(&sid)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sid, nil
}

// ============================================================================
// METRIC AGGREGATES
// ============================================================================

// CountTradesBySession counts session-scoped trades on one side of the book
// (long = positive qty).
func (r *Repository) CountTradesBySession(ctx context.Context, sessionID int64, long bool) (int, error) {
	cond := "qty > 0"
	if !long {
		cond = "qty < 0"
	}
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM trades_log WHERE session_id = $1 AND `+cond, sessionID).Scan(&count)
	return count, err
}

// CountTradesByWindow counts unscoped trades (no session id) whose exit falls
// inside [fromMs, toMs]. Used as a fallback when session-scoped counts are
// empty; rows belonging to another session must not leak into it.
func (r *Repository) CountTradesByWindow(ctx context.Context, fromMs, toMs int64, long bool) (int, error) {
	cond := "qty > 0"
	if !long {
		cond = "qty < 0"
	}
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM trades_log
		WHERE session_id IS NULL AND exit_ts >= $1 AND exit_ts <= $2 AND `+cond, fromMs, toMs).Scan(&count)
	return count, err
}

// CountHoldDecisions counts flat HOLD decisions for a session inside the
// given window.
func (r *Repository) CountHoldDecisions(ctx context.Context, sessionID int64, fromMs, toMs int64) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM decisions_log
		WHERE session_id = $1 AND ts >= $2 AND ts <= $3
		  AND action = 'HOLD' AND is_flat = TRUE
	`, sessionID, fromMs, toMs).Scan(&count)
	return count, err
}

// SumPnLSince sums pnl_after_cost over trades exiting at or after fromMs.
func (r *Repository) SumPnLSince(ctx context.Context, fromMs int64) (float64, error) {
	var sum *float64
	err := r.db.Pool.QueryRow(ctx, `
		SELECT SUM(pnl_after_cost) FROM trades_log WHERE exit_ts >= $1
	`, fromMs).Scan(&sum)
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

// SumPnLBySession sums pnl_after_cost over a session's trades.
func (r *Repository) SumPnLBySession(ctx context.Context, sessionID int64) (float64, error) {
	var sum *float64
	err := r.db.Pool.QueryRow(ctx, `
		SELECT SUM(pnl_after_cost) FROM trades_log WHERE session_id = $1
	`, sessionID).Scan(&sum)
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}
