// Package health derives a per-job health verdict from job heartbeats and
// the error journal.
package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Heartbeat is the latest progress snapshot for one background job.
type Heartbeat struct {
	JobID     string
	Phase     string
	Symbol    string
	Interval  string
	Pct       float64
	UpdatedAt time.Time
}

// JobHealth is the derived verdict for one job.
type JobHealth struct {
	Job            string  `json:"job"`
	OK             bool    `json:"ok"`
	Phase          string  `json:"phase"`
	Symbol         string  `json:"symbol"`
	Interval       string  `json:"interval"`
	Pct            float64 `json:"pct"`
	LastOKAt       int64   `json:"last_ok_at"`
	ErrCountWindow int     `json:"err_count_window"`
	Message        string  `json:"message"`
}

// Source is the read-only storage surface the aggregator consumes.
type Source interface {
	// Heartbeats returns all job rows, newest first.
	Heartbeats(ctx context.Context) ([]Heartbeat, error)
	// ErrorCountSince counts WARN/CRIT journal rows for a rule at or after
	// the given ms-epoch timestamp.
	ErrorCountSince(ctx context.Context, rule string, sinceMs int64) (int, error)
}

// Infrastructure jobs reported regardless of the symbol/interval filter.
var infraJobs = map[string]bool{
	"main:idle":  true,
	"main:loop":  true,
	"ssh_tunnel": true,
}

const (
	phaseOK = "OK"

	// A job with no heartbeat for this long is considered stale.
	defaultStaleAfter = 5 * time.Minute
	// Errors are counted over this trailing window.
	defaultErrWindow = 15 * time.Minute
	// Jobs at or above this many recent errors are unhealthy.
	defaultErrLimit = 3
)

// Aggregator computes health verdicts. It is read-only and safe to invoke at
// any frequency; a heartbeat overwritten mid-read just means the verdict is
// one update cycle behind.
type Aggregator struct {
	src        Source
	staleAfter time.Duration
	errWindow  time.Duration
	errLimit   int
	log        zerolog.Logger
}

// NewAggregator creates an aggregator with the standard thresholds.
func NewAggregator(src Source, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		src:        src,
		staleAfter: defaultStaleAfter,
		errWindow:  defaultErrWindow,
		errLimit:   defaultErrLimit,
		log:        logger.With().Str("component", "health").Logger(),
	}
}

// Aggregate returns one verdict per job. When symbols and intervals are both
// non-empty, the result is restricted to jobs matching the filter plus the
// infrastructure jobs. Duplicate job ids keep only the newest row.
func (a *Aggregator) Aggregate(ctx context.Context, now time.Time, symbols, intervals []string) ([]JobHealth, error) {
	beats, err := a.src.Heartbeats(ctx)
	if err != nil {
		return nil, err
	}

	filtered := len(symbols) > 0 && len(intervals) > 0
	symbolSet := toSet(symbols)
	intervalSet := toSet(intervals)

	nowMs := now.UnixMilli()
	sinceMs := now.Add(-a.errWindow).UnixMilli()

	jobs := make([]JobHealth, 0, len(beats))
	seen := make(map[string]bool, len(beats))
	for _, hb := range beats {
		if seen[hb.JobID] {
			continue // rows arrive newest first, keep only the latest
		}
		seen[hb.JobID] = true

		if filtered && !infraJobs[hb.JobID] {
			if !symbolSet[hb.Symbol] || !intervalSet[hb.Interval] {
				continue
			}
		}

		errCount, err := a.src.ErrorCountSince(ctx, "JOB:"+hb.JobID, sinceMs)
		if err != nil {
			return nil, err
		}

		updMs := hb.UpdatedAt.UnixMilli()
		stale := nowMs-updMs > a.staleAfter.Milliseconds()
		ok := hb.Phase == phaseOK && !stale && errCount < a.errLimit

		message := phaseOK
		if !ok {
			if stale {
				message = "STALE"
			} else {
				message = hb.Phase
			}
		}

		jobs = append(jobs, JobHealth{
			Job:            hb.JobID,
			OK:             ok,
			Phase:          hb.Phase,
			Symbol:         hb.Symbol,
			Interval:       hb.Interval,
			Pct:            hb.Pct,
			LastOKAt:       updMs,
			ErrCountWindow: errCount,
			Message:        message,
		})
	}
	return jobs, nil
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
