// Package cleanup implements the retention sweep over append-only tables.
// Old rows are removed in bounded batches so the sweep never takes long
// locks on tables the worker writes to.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Store is the storage surface the sweeper deletes through.
type Store interface {
	CountOlderThan(ctx context.Context, table string, cutoffMs int64) (int64, error)
	DeleteOlderThan(ctx context.Context, table string, cutoffMs int64, batch int) (int64, error)
}

// TableRule pairs a table with its retention horizon.
type TableRule struct {
	Table      string
	RetainDays int
}

// Options control a single sweep run.
type Options struct {
	Table     string // specific table, or "ALL"
	Batch     int
	MaxRounds int
	DryRun    bool
}

// Result reports what one table's sweep did.
type Result struct {
	Table    string `json:"table"`
	CutoffMs int64  `json:"cutoff_ms"`
	Deleted  int64  `json:"deleted"`
	Rounds   int    `json:"rounds"`
	DryRun   bool   `json:"dry_run,omitempty"`
}

// String renders the result as the one-line report the maintenance endpoint
// prints.
func (r Result) String() string {
	if r.DryRun {
		return fmt.Sprintf("[DRY] %s: cutoff_ms=%d to_delete=%d", r.Table, r.CutoffMs, r.Deleted)
	}
	return fmt.Sprintf("[cleanup] %s: cutoff_ms=%d deleted=%d rounds=%d", r.Table, r.CutoffMs, r.Deleted, r.Rounds)
}

// Sweeper deletes expired rows per the configured retention rules.
type Sweeper struct {
	store Store
	rules []TableRule
	pause time.Duration // between full batches
	now   func() time.Time
	log   zerolog.Logger
}

// NewSweeper creates a sweeper over the given retention rules.
func NewSweeper(store Store, rules []TableRule, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		store: store,
		rules: rules,
		pause: 100 * time.Millisecond,
		now:   time.Now,
		log:   logger.With().Str("component", "cleanup").Logger(),
	}
}

// Run sweeps every configured table (or just opts.Table) and returns one
// result per table swept.
func (s *Sweeper) Run(ctx context.Context, opts Options) ([]Result, error) {
	if opts.Batch <= 0 {
		opts.Batch = 5000
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 120
	}

	var results []Result
	for _, rule := range s.rules {
		if opts.Table != "" && opts.Table != "ALL" && opts.Table != rule.Table {
			continue
		}
		res, err := s.sweepTable(ctx, rule, opts)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Sweeper) sweepTable(ctx context.Context, rule TableRule, opts Options) (Result, error) {
	cutoffMs := s.now().AddDate(0, 0, -rule.RetainDays).UnixMilli()
	res := Result{Table: rule.Table, CutoffMs: cutoffMs, DryRun: opts.DryRun}

	if opts.DryRun {
		count, err := s.store.CountOlderThan(ctx, rule.Table, cutoffMs)
		if err != nil {
			return res, err
		}
		res.Deleted = count
		return res, nil
	}

	for res.Rounds < opts.MaxRounds {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		affected, err := s.store.DeleteOlderThan(ctx, rule.Table, cutoffMs, opts.Batch)
		if err != nil {
			return res, err
		}
		res.Deleted += affected
		res.Rounds++
		if affected < int64(opts.Batch) {
			break
		}
		time.Sleep(s.pause)
	}

	s.log.Info().Str("table", rule.Table).Int64("deleted", res.Deleted).Int("rounds", res.Rounds).Msg("retention sweep done")
	return res, nil
}
