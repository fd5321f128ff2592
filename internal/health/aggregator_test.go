package health

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeSource struct {
	beats     []Heartbeat
	errCounts map[string]int
}

func (s *fakeSource) Heartbeats(ctx context.Context) ([]Heartbeat, error) {
	return s.beats, nil
}

func (s *fakeSource) ErrorCountSince(ctx context.Context, rule string, sinceMs int64) (int, error) {
	return s.errCounts[rule], nil
}

var testNow = time.UnixMilli(1700000000000)

func newTestAggregator(src Source) *Aggregator {
	return NewAggregator(src, zerolog.Nop())
}

func beatAt(jobID, phase string, age time.Duration) Heartbeat {
	return Heartbeat{JobID: jobID, Phase: phase, UpdatedAt: testNow.Add(-age)}
}

func TestAggregate_StalenessBoundary(t *testing.T) {
	tests := []struct {
		name    string
		age     time.Duration
		wantOK  bool
		wantMsg string
	}{
		{"just inside window", 4*time.Minute + 59*time.Second, true, "OK"},
		{"just outside window", 5*time.Minute + 1*time.Second, false, "STALE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{beats: []Heartbeat{beatAt("collector:BTCUSDT:1m", "OK", tt.age)}}
			jobs, err := newTestAggregator(src).Aggregate(context.Background(), testNow, nil, nil)
			if err != nil {
				t.Fatalf("Aggregate failed: %v", err)
			}
			if len(jobs) != 1 {
				t.Fatalf("Expected 1 job, got %d", len(jobs))
			}
			if jobs[0].OK != tt.wantOK {
				t.Errorf("Expected ok=%v, got %v", tt.wantOK, jobs[0].OK)
			}
			if jobs[0].Message != tt.wantMsg {
				t.Errorf("Expected message %q, got %q", tt.wantMsg, jobs[0].Message)
			}
		})
	}
}

func TestAggregate_ErrorThresholdBoundary(t *testing.T) {
	tests := []struct {
		name   string
		errors int
		wantOK bool
	}{
		{"two recent errors stays ok", 2, true},
		{"three recent errors trips", 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{
				beats:     []Heartbeat{beatAt("main:loop", "OK", time.Minute)},
				errCounts: map[string]int{"JOB:main:loop": tt.errors},
			}
			jobs, err := newTestAggregator(src).Aggregate(context.Background(), testNow, nil, nil)
			if err != nil {
				t.Fatalf("Aggregate failed: %v", err)
			}
			if jobs[0].OK != tt.wantOK {
				t.Errorf("Expected ok=%v with %d errors, got %v", tt.wantOK, tt.errors, jobs[0].OK)
			}
			if jobs[0].ErrCountWindow != tt.errors {
				t.Errorf("Expected err_count_window %d, got %d", tt.errors, jobs[0].ErrCountWindow)
			}
		})
	}
}

func TestAggregate_NonOKPhaseSurfacesAsMessage(t *testing.T) {
	src := &fakeSource{beats: []Heartbeat{beatAt("collector:ETHUSDT:1m", "ERROR", time.Minute)}}
	jobs, err := newTestAggregator(src).Aggregate(context.Background(), testNow, nil, nil)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if jobs[0].OK {
		t.Error("Expected ok=false for ERROR phase")
	}
	if jobs[0].Message != "ERROR" {
		t.Errorf("Expected phase as message, got %q", jobs[0].Message)
	}
}

func TestAggregate_StaleWinsOverPhase(t *testing.T) {
	// A stale row reports STALE even when its phase is also bad.
	src := &fakeSource{beats: []Heartbeat{beatAt("main:loop", "ERROR", 10*time.Minute)}}
	jobs, err := newTestAggregator(src).Aggregate(context.Background(), testNow, nil, nil)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if jobs[0].Message != "STALE" {
		t.Errorf("Expected STALE, got %q", jobs[0].Message)
	}
}

func TestAggregate_DeduplicatesKeepingNewest(t *testing.T) {
	src := &fakeSource{beats: []Heartbeat{
		beatAt("main:loop", "OK", time.Minute),       // newest first
		beatAt("main:loop", "ERROR", 10*time.Minute), // must be ignored
	}}
	jobs, err := newTestAggregator(src).Aggregate(context.Background(), testNow, nil, nil)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("Expected 1 job after dedupe, got %d", len(jobs))
	}
	if !jobs[0].OK || jobs[0].Phase != "OK" {
		t.Errorf("Expected the newest row to win, got %+v", jobs[0])
	}
}

func TestAggregate_FilterKeepsInfraJobs(t *testing.T) {
	src := &fakeSource{beats: []Heartbeat{
		{JobID: "collector:BTCUSDT:1m", Phase: "OK", Symbol: "BTCUSDT", Interval: "1m", UpdatedAt: testNow},
		{JobID: "collector:DOGEUSDT:5m", Phase: "OK", Symbol: "DOGEUSDT", Interval: "5m", UpdatedAt: testNow},
		{JobID: "ssh_tunnel", Phase: "OK", UpdatedAt: testNow},
		{JobID: "main:loop", Phase: "READY", UpdatedAt: testNow},
	}}
	jobs, err := newTestAggregator(src).Aggregate(context.Background(), testNow, []string{"BTCUSDT"}, []string{"1m"})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	got := map[string]bool{}
	for _, j := range jobs {
		got[j.Job] = true
	}
	for _, want := range []string{"collector:BTCUSDT:1m", "ssh_tunnel", "main:loop"} {
		if !got[want] {
			t.Errorf("Expected job %s in result", want)
		}
	}
	if got["collector:DOGEUSDT:5m"] {
		t.Error("Expected out-of-scope job filtered out")
	}
}

func TestAggregate_EmptyFilterMatchesEverything(t *testing.T) {
	src := &fakeSource{beats: []Heartbeat{
		{JobID: "collector:DOGEUSDT:5m", Phase: "OK", Symbol: "DOGEUSDT", Interval: "5m", UpdatedAt: testNow},
	}}
	jobs, err := newTestAggregator(src).Aggregate(context.Background(), testNow, nil, nil)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("Expected unfiltered result, got %d jobs", len(jobs))
	}
}
