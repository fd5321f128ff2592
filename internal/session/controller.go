// Package session implements the run-session lifecycle: the transition
// between enabled and disabled, the session ledger it drives, and the
// current-session pointer kept on the settings record.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Ledger is the transaction-scoped storage surface the controller mutates.
// Every call within one Apply belongs to the same transaction, so the whole
// transition commits or rolls back as a unit.
type Ledger interface {
	Enabled(ctx context.Context) (bool, error)
	StoredTradeMode(ctx context.Context) (string, error)
	ClearHeartbeats(ctx context.Context) error
	SeedHeartbeat(ctx context.Context) error
	ActiveSessionID(ctx context.Context) (*int64, error)
	OpenSession(ctx context.Context, startedAt int64, mode string) (int64, error)
	CloseActiveSessions(ctx context.Context, stoppedAt int64) error
	SetCurrentSessionID(ctx context.Context, id *int64) error
	SetEnabledFlag(ctx context.Context, enabled bool) error
}

// Store runs a function against a transaction-scoped ledger.
type Store interface {
	Transact(ctx context.Context, fn func(Ledger) error) error
}

// Controller orchestrates enable/disable transitions. It holds no state of
// its own; concurrent toggles are serialized by the storage transaction, not
// by process-level locks, so any number of stateless instances can share the
// same store.
type Controller struct {
	store Store
	now   func() time.Time
	log   zerolog.Logger
}

// NewController creates a lifecycle controller.
func NewController(store Store, logger zerolog.Logger) *Controller {
	return &Controller{
		store: store,
		now:   time.Now,
		log:   logger.With().Str("component", "session").Logger(),
	}
}

// SetEnabled toggles the bot and returns the current session id (nil after a
// disable). The transition is atomic: a storage failure rolls every write
// back and the prior state stays visible.
func (c *Controller) SetEnabled(ctx context.Context, desired bool, mode string) (*int64, error) {
	var sid *int64
	err := c.store.Transact(ctx, func(ledger Ledger) error {
		var err error
		sid, err = c.Apply(ctx, ledger, desired, mode)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("session transition failed: %w", err)
	}
	return sid, nil
}

// Apply runs the transition against an already-open ledger. Callers that
// need the toggle bundled with other writes (the settings update endpoint)
// pass their own transaction-scoped ledger here.
func (c *Controller) Apply(ctx context.Context, ledger Ledger, desired bool, mode string) (*int64, error) {
	if !desired {
		return nil, c.disable(ctx, ledger)
	}
	return c.enable(ctx, ledger, mode)
}

func (c *Controller) enable(ctx context.Context, ledger Ledger, mode string) (*int64, error) {
	prev, err := ledger.Enabled(ctx)
	if err != nil {
		return nil, err
	}

	// Only a real OFF->ON edge resets the progress baseline; repeating an
	// enable must not wipe live heartbeats.
	if !prev {
		if err := ledger.ClearHeartbeats(ctx); err != nil {
			return nil, err
		}
		if err := ledger.SeedHeartbeat(ctx); err != nil {
			return nil, err
		}
	}

	// The ledger's active row is the single source of truth for the
	// current-session pointer. Open one if the ledger has none, then derive
	// the pointer from it; a stale pointer can never survive this path.
	sid, err := ledger.ActiveSessionID(ctx)
	if err != nil {
		return nil, err
	}
	if sid == nil {
		resolved, err := c.resolveMode(ctx, ledger, mode)
		if err != nil {
			return nil, err
		}
		id, err := ledger.OpenSession(ctx, c.now().UnixMilli(), resolved)
		if err != nil {
			return nil, err
		}
		sid = &id
		c.log.Info().Int64("session_id", id).Str("mode", resolved).Msg("run session opened")
	}

	if err := ledger.SetCurrentSessionID(ctx, sid); err != nil {
		return nil, err
	}
	if err := ledger.SetEnabledFlag(ctx, true); err != nil {
		return nil, err
	}
	return sid, nil
}

func (c *Controller) disable(ctx context.Context, ledger Ledger) error {
	// Close every active session; a drifted ledger may hold more than one.
	if err := ledger.CloseActiveSessions(ctx, c.now().UnixMilli()); err != nil {
		return err
	}
	if err := ledger.SetCurrentSessionID(ctx, nil); err != nil {
		return err
	}
	if err := ledger.SetEnabledFlag(ctx, false); err != nil {
		return err
	}
	c.log.Info().Msg("run sessions closed")
	return nil
}

// resolveMode picks the trade mode for a new session: the request's mode if
// given, otherwise the stored one, with SIM as the fallback for anything
// unrecognized.
func (c *Controller) resolveMode(ctx context.Context, ledger Ledger, mode string) (string, error) {
	if mode == "" {
		stored, err := ledger.StoredTradeMode(ctx)
		if err != nil {
			return "", err
		}
		mode = stored
	}
	switch strings.ToUpper(mode) {
	case "SIM", "LIVE":
		return strings.ToUpper(mode), nil
	default:
		return "SIM", nil
	}
}
