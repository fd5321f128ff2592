package database

import (
	"context"
	"fmt"
)

// Tables eligible for retention sweeps. Deletes are built with identifiers
// from this set only, never from request input.
var sweepTables = map[string]bool{
	"decisions_log": true,
	"risk_journal":  true,
}

// CountOlderThan counts rows with ts before the cutoff.
func (r *Repository) CountOlderThan(ctx context.Context, table string, cutoffMs int64) (int64, error) {
	if !sweepTables[table] {
		return 0, fmt.Errorf("table %q is not sweepable", table)
	}
	var count int64
	err := r.db.Pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE ts < $1`, table), cutoffMs).Scan(&count)
	return count, err
}

// DeleteOlderThan removes at most batch rows with ts before the cutoff and
// returns the number deleted. Batching keeps each delete short so the sweep
// never holds long locks on tables the worker is writing to.
func (r *Repository) DeleteOlderThan(ctx context.Context, table string, cutoffMs int64, batch int) (int64, error) {
	if !sweepTables[table] {
		return 0, fmt.Errorf("table %q is not sweepable", table)
	}
	tag, err := r.db.Pool.Exec(ctx, fmt.Sprintf(`
		DELETE FROM %s
		WHERE ctid IN (SELECT ctid FROM %s WHERE ts < $1 LIMIT $2)
	`, table, table), cutoffMs, batch)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
