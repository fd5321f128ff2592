package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// Transact runs fn inside a single transaction. Any error rolls the whole
// transaction back, so callers see either all of the writes or none of them.
func (r *Repository) Transact(ctx context.Context, fn func(tx *TxRepo) error) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&TxRepo{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// TxRepo exposes transaction-scoped operations. It implements the session
// ledger used by the lifecycle controller.
type TxRepo struct {
	tx pgx.Tx
}

// ============================================================================
// SETTINGS
// ============================================================================

const settingsColumns = `id, symbols_json, intervals_json, leverage_json, invest_usdt_json,
	is_enabled, adv_enabled, max_risk_pct, max_daily_dd_pct, max_consec_losses,
	entry_threshold, reverse_gap, cooldown_bars, min_hold_bars,
	trade_mode, live_armed, fee_rate, slip_rate, current_session_id`

func scanSettings(row pgx.Row) (*Settings, error) {
	s := &Settings{}
	err := row.Scan(
		&s.ID, &s.Symbols, &s.Intervals, &s.Leverage, &s.InvestUSDT,
		&s.IsEnabled, &s.AdvEnabled, &s.MaxRiskPct, &s.MaxDailyDDPct, &s.MaxConsecLosses,
		&s.EntryThreshold, &s.ReverseGap, &s.CooldownBars, &s.MinHoldBars,
		&s.TradeMode, &s.LiveArmed, &s.FeeRate, &s.SlipRate, &s.CurrentSessionID,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetSettings retrieves the singleton settings record, or nil when it has
// never been written.
func (r *Repository) GetSettings(ctx context.Context) (*Settings, error) {
	query := `SELECT ` + settingsColumns + ` FROM settings WHERE id = $1`
	s, err := scanSettings(r.db.Pool.QueryRow(ctx, query, SettingsID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// UpsertSettings applies a partial update to the settings record, inserting
// the defaults-backed row on first write. The is_enabled flag and the
// current-session pointer are owned by the lifecycle controller and are never
// touched here; a fresh row starts disabled so the controller completes the
// enable transition inside the same transaction.
func (t *TxRepo) UpsertSettings(ctx context.Context, patch SettingsPatch) (inserted bool, err error) {
	var exists bool
	err = t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM settings WHERE id = $1)`, SettingsID).Scan(&exists)
	if err != nil {
		return false, err
	}

	if !exists {
		if _, err := t.tx.Exec(ctx, `INSERT INTO settings (id) VALUES ($1)`, SettingsID); err != nil {
			return false, err
		}
	}

	sets := make([]string, 0, 16)
	args := make([]interface{}, 0, 16)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	// JSONB columns take a marshalled payload with an explicit cast so pgx
	// does not encode Go slices as Postgres arrays.
	addJSON := func(column string, value interface{}) error {
		buf, err := json.Marshal(value)
		if err != nil {
			return err
		}
		args = append(args, string(buf))
		sets = append(sets, fmt.Sprintf("%s = $%d::jsonb", column, len(args)))
		return nil
	}

	if patch.Symbols != nil {
		if err := addJSON("symbols_json", *patch.Symbols); err != nil {
			return false, err
		}
	}
	if patch.Intervals != nil {
		if err := addJSON("intervals_json", *patch.Intervals); err != nil {
			return false, err
		}
	}
	if patch.Leverage != nil {
		if err := addJSON("leverage_json", *patch.Leverage); err != nil {
			return false, err
		}
	}
	if patch.InvestUSDT != nil {
		if err := addJSON("invest_usdt_json", *patch.InvestUSDT); err != nil {
			return false, err
		}
	}
	if patch.AdvEnabled != nil {
		add("adv_enabled", *patch.AdvEnabled)
	}
	if patch.MaxRiskPct != nil {
		add("max_risk_pct", *patch.MaxRiskPct)
	}
	if patch.MaxDailyDDPct != nil {
		add("max_daily_dd_pct", *patch.MaxDailyDDPct)
	}
	if patch.MaxConsecLosses != nil {
		add("max_consec_losses", *patch.MaxConsecLosses)
	}
	if patch.EntryThreshold != nil {
		add("entry_threshold", *patch.EntryThreshold)
	}
	if patch.ReverseGap != nil {
		add("reverse_gap", *patch.ReverseGap)
	}
	if patch.CooldownBars != nil {
		add("cooldown_bars", *patch.CooldownBars)
	}
	if patch.MinHoldBars != nil {
		add("min_hold_bars", *patch.MinHoldBars)
	}
	if patch.TradeMode != nil {
		add("trade_mode", NormalizeTradeMode(*patch.TradeMode))
	}
	if patch.LiveArmed != nil {
		add("live_armed", *patch.LiveArmed)
	}
	if patch.FeeRate != nil {
		add("fee_rate", *patch.FeeRate)
	}
	if patch.SlipRate != nil {
		add("slip_rate", *patch.SlipRate)
	}

	if len(sets) > 0 {
		args = append(args, SettingsID)
		query := "UPDATE settings SET " + joinSets(sets) + fmt.Sprintf(" WHERE id = $%d", len(args))
		if _, err := t.tx.Exec(ctx, query, args...); err != nil {
			return false, err
		}
	}

	return !exists, nil
}

func joinSets(sets []string) string {
	out := ""
	for i, s := range sets {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

// ============================================================================
// SESSION LEDGER (transaction-scoped, used by the lifecycle controller)
// ============================================================================

// Enabled reports the stored enabled flag.
func (t *TxRepo) Enabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := t.tx.QueryRow(ctx, `SELECT is_enabled FROM settings WHERE id = $1`, SettingsID).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return enabled, err
}

// StoredTradeMode reports the configured trade mode.
func (t *TxRepo) StoredTradeMode(ctx context.Context) (string, error) {
	var mode string
	err := t.tx.QueryRow(ctx, `SELECT trade_mode FROM settings WHERE id = $1`, SettingsID).Scan(&mode)
	if errors.Is(err, pgx.ErrNoRows) {
		return TradeModeSim, nil
	}
	return mode, err
}

// ClearHeartbeats wipes the job progress table.
func (t *TxRepo) ClearHeartbeats(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM job_progress`)
	return err
}

// SeedHeartbeat writes the synthetic main:loop READY row so the dashboard
// has a baseline immediately after a session starts.
func (t *TxRepo) SeedHeartbeat(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO job_progress (job_id, phase, symbol, interval, step, total, pct)
		VALUES ('main:loop', 'READY', '', '', 1, 1, 100)
		ON CONFLICT (job_id) DO UPDATE
			SET phase = EXCLUDED.phase, pct = EXCLUDED.pct, updated_at = NOW()
	`)
	return err
}

// ActiveSessionID returns the id of the newest active session, or nil when
// no session is active.
func (t *TxRepo) ActiveSessionID(ctx context.Context) (*int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		SELECT session_id FROM run_sessions
		WHERE is_active = TRUE
		ORDER BY started_at DESC, session_id DESC
		LIMIT 1
	`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// OpenSession inserts a new active session and returns its id.
func (t *TxRepo) OpenSession(ctx context.Context, startedAt int64, mode string) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO run_sessions (started_at, is_active, trade_mode)
		VALUES ($1, TRUE, $2)
		RETURNING session_id
	`, startedAt, mode).Scan(&id)
	return id, err
}

// CloseActiveSessions stamps and deactivates every active session. There
// should be at most one, but a drifted ledger is closed wholesale.
func (t *TxRepo) CloseActiveSessions(ctx context.Context, stoppedAt int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE run_sessions SET stopped_at = $1, is_active = FALSE WHERE is_active = TRUE
	`, stoppedAt)
	return err
}

// SetCurrentSessionID points the settings record at a session, or clears the
// pointer when id is nil.
func (t *TxRepo) SetCurrentSessionID(ctx context.Context, id *int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE settings SET current_session_id = $1 WHERE id = $2`, id, SettingsID)
	return err
}

// SetEnabledFlag persists the enabled flag.
func (t *TxRepo) SetEnabledFlag(ctx context.Context, enabled bool) error {
	_, err := t.tx.Exec(ctx, `UPDATE settings SET is_enabled = $1 WHERE id = $2`, enabled, SettingsID)
	return err
}
