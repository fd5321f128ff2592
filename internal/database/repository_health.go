package database

import (
	"context"
	"errors"
	"math"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// JOB HEARTBEATS
// ============================================================================

// ListHeartbeats returns all job progress rows, newest first.
func (r *Repository) ListHeartbeats(ctx context.Context) ([]*JobProgress, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT job_id, phase, symbol, interval, step, total, pct, updated_at
		FROM job_progress
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*JobProgress
	for rows.Next() {
		jp := &JobProgress{}
		if err := rows.Scan(&jp.JobID, &jp.Phase, &jp.Symbol, &jp.Interval, &jp.Step, &jp.Total, &jp.Pct, &jp.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, jp)
	}
	return out, rows.Err()
}

// LatestHeartbeat returns the most recently updated job progress row that
// matches the configured symbol/interval scope, or is one of the
// always-visible infrastructure jobs. Empty filters match everything.
func (r *Repository) LatestHeartbeat(ctx context.Context, symbols, intervals []string) (*JobProgress, error) {
	query := `
		SELECT job_id, phase, symbol, interval, step, total, pct, updated_at
		FROM job_progress
		ORDER BY updated_at DESC
		LIMIT 1
	`
	args := []interface{}{}
	if len(symbols) > 0 && len(intervals) > 0 {
		query = `
			SELECT job_id, phase, symbol, interval, step, total, pct, updated_at
			FROM job_progress
			WHERE (symbol = ANY($1) AND interval = ANY($2))
			   OR job_id = ANY($3)
			ORDER BY updated_at DESC
			LIMIT 1
		`
		args = []interface{}{symbols, intervals, InfraJobIDs}
	}

	jp := &JobProgress{}
	err := r.db.Pool.QueryRow(ctx, query, args...).
		Scan(&jp.JobID, &jp.Phase, &jp.Symbol, &jp.Interval, &jp.Step, &jp.Total, &jp.Pct, &jp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return jp, nil
}

// InfraJobIDs are background jobs reported regardless of the configured
// symbol/interval scope.
var InfraJobIDs = []string{"main:idle", "main:loop", "ssh_tunnel"}

// UpsertHeartbeat writes a job progress report, overwriting any previous row
// for the same job. Step and total are clamped and pct is derived from them
// when the report carries none.
func (r *Repository) UpsertHeartbeat(ctx context.Context, jp *JobProgress, pctGiven bool) error {
	step := jp.Step
	if step < 0 {
		step = 0
	}
	total := jp.Total
	if total < 1 {
		total = 1
	}
	pct := jp.Pct
	if !pctGiven {
		pct = math.Round(1000.0*math.Min(float64(step)/float64(total), 1.0)) / 10.0
	}

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO job_progress (job_id, phase, symbol, interval, step, total, pct)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_id) DO UPDATE SET
			phase = EXCLUDED.phase,
			symbol = EXCLUDED.symbol,
			interval = EXCLUDED.interval,
			step = EXCLUDED.step,
			total = EXCLUDED.total,
			pct = EXCLUDED.pct,
			updated_at = NOW()
	`, truncate(jp.JobID, 64), truncate(jp.Phase, 32), truncate(jp.Symbol, 16), truncate(jp.Interval, 8), step, total, pct)
	return err
}

// ============================================================================
// EVENT JOURNAL
// ============================================================================

// AppendJournal records a leveled event. Unknown levels are coerced to CRIT,
// matching the worker's reporting convention.
func (r *Repository) AppendJournal(ctx context.Context, entry *JournalEntry) error {
	level := entry.Level
	switch level {
	case LevelInfo, LevelWarn, LevelCrit:
	default:
		level = LevelCrit
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO risk_journal (ts, rule, level, detail)
		VALUES ($1, $2, $3, $4)
	`, entry.TS, truncate(entry.Rule, 64), level, truncate(entry.Detail, 255))
	return err
}

// CountJournalErrorsSince counts WARN/CRIT journal rows for a rule at or
// after the given ms-epoch timestamp.
func (r *Repository) CountJournalErrorsSince(ctx context.Context, rule string, sinceMs int64) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM risk_journal
		WHERE rule = $1 AND level IN ('WARN', 'CRIT') AND ts >= $2
	`, rule, sinceMs).Scan(&count)
	return count, err
}

// truncate limits s to max runes. The storage columns are VARCHAR(n), which
// counts characters; slicing bytes could split a multi-byte character and
// produce UTF-8 Postgres rejects.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
