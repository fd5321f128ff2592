package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// GetSession retrieves a run session by id, or nil when it does not exist.
func (r *Repository) GetSession(ctx context.Context, sessionID int64) (*RunSession, error) {
	s := &RunSession{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT session_id, started_at, stopped_at, is_active, trade_mode
		FROM run_sessions
		WHERE session_id = $1
	`, sessionID).Scan(&s.SessionID, &s.StartedAt, &s.StoppedAt, &s.IsActive, &s.TradeMode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewestSession retrieves the most relevant session for dashboard scoping:
// active sessions first, then the most recently started. Nil when the ledger
// is empty.
func (r *Repository) NewestSession(ctx context.Context) (*RunSession, error) {
	s := &RunSession{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT session_id, started_at, stopped_at, is_active, trade_mode
		FROM run_sessions
		ORDER BY is_active DESC, started_at DESC
		LIMIT 1
	`).Scan(&s.SessionID, &s.StartedAt, &s.StoppedAt, &s.IsActive, &s.TradeMode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
