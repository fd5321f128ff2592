package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// ============================================================================
// FAKES
// ============================================================================

type fakeSession struct {
	id        int64
	startedAt int64
	stoppedAt *int64
	active    bool
	mode      string
}

type fakeHeartbeat struct {
	phase string
	pct   float64
}

type fakeLedger struct {
	enabled    bool
	tradeMode  string
	currentSID *int64
	sessions   []fakeSession
	heartbeats map[string]fakeHeartbeat
	nextID     int64

	clearCalls int
	failOn     string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		tradeMode:  "SIM",
		heartbeats: map[string]fakeHeartbeat{},
		nextID:     1,
	}
}

func (l *fakeLedger) fail(method string) error {
	if l.failOn == method {
		return errors.New(method + " failed")
	}
	return nil
}

func (l *fakeLedger) Enabled(ctx context.Context) (bool, error) {
	return l.enabled, l.fail("Enabled")
}

func (l *fakeLedger) StoredTradeMode(ctx context.Context) (string, error) {
	return l.tradeMode, l.fail("StoredTradeMode")
}

func (l *fakeLedger) ClearHeartbeats(ctx context.Context) error {
	if err := l.fail("ClearHeartbeats"); err != nil {
		return err
	}
	l.clearCalls++
	l.heartbeats = map[string]fakeHeartbeat{}
	return nil
}

func (l *fakeLedger) SeedHeartbeat(ctx context.Context) error {
	if err := l.fail("SeedHeartbeat"); err != nil {
		return err
	}
	l.heartbeats["main:loop"] = fakeHeartbeat{phase: "READY", pct: 100}
	return nil
}

func (l *fakeLedger) ActiveSessionID(ctx context.Context) (*int64, error) {
	if err := l.fail("ActiveSessionID"); err != nil {
		return nil, err
	}
	var newest *fakeSession
	for i := range l.sessions {
		s := &l.sessions[i]
		if s.active && (newest == nil || s.startedAt >= newest.startedAt) {
			newest = s
		}
	}
	if newest == nil {
		return nil, nil
	}
	id := newest.id
	return &id, nil
}

func (l *fakeLedger) OpenSession(ctx context.Context, startedAt int64, mode string) (int64, error) {
	if err := l.fail("OpenSession"); err != nil {
		return 0, err
	}
	id := l.nextID
	l.nextID++
	l.sessions = append(l.sessions, fakeSession{id: id, startedAt: startedAt, active: true, mode: mode})
	return id, nil
}

func (l *fakeLedger) CloseActiveSessions(ctx context.Context, stoppedAt int64) error {
	if err := l.fail("CloseActiveSessions"); err != nil {
		return err
	}
	for i := range l.sessions {
		if l.sessions[i].active {
			ts := stoppedAt
			l.sessions[i].stoppedAt = &ts
			l.sessions[i].active = false
		}
	}
	return nil
}

func (l *fakeLedger) SetCurrentSessionID(ctx context.Context, id *int64) error {
	if err := l.fail("SetCurrentSessionID"); err != nil {
		return err
	}
	l.currentSID = id
	return nil
}

func (l *fakeLedger) SetEnabledFlag(ctx context.Context, enabled bool) error {
	if err := l.fail("SetEnabledFlag"); err != nil {
		return err
	}
	l.enabled = enabled
	return nil
}

// fakeStore snapshots the ledger before each transaction and restores it when
// fn fails, mimicking a rollback.
type fakeStore struct {
	ledger *fakeLedger
}

func (s *fakeStore) Transact(ctx context.Context, fn func(Ledger) error) error {
	snapshot := s.snapshot()
	if err := fn(s.ledger); err != nil {
		*s.ledger = snapshot
		return err
	}
	return nil
}

func (s *fakeStore) snapshot() fakeLedger {
	cp := *s.ledger
	cp.sessions = append([]fakeSession(nil), s.ledger.sessions...)
	cp.heartbeats = make(map[string]fakeHeartbeat, len(s.ledger.heartbeats))
	for k, v := range s.ledger.heartbeats {
		cp.heartbeats[k] = v
	}
	if s.ledger.currentSID != nil {
		id := *s.ledger.currentSID
		cp.currentSID = &id
	}
	return cp
}

func newTestController(ledger *fakeLedger) *Controller {
	c := NewController(&fakeStore{ledger: ledger}, zerolog.Nop())
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c
}

func activeCount(l *fakeLedger) int {
	n := 0
	for _, s := range l.sessions {
		if s.active {
			n++
		}
	}
	return n
}

// ============================================================================
// TESTS
// ============================================================================

func TestSetEnabled_FirstEnable(t *testing.T) {
	ledger := newFakeLedger()
	c := newTestController(ledger)

	sid, err := c.SetEnabled(context.Background(), true, "")
	if err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	if sid == nil || *sid != 1 {
		t.Fatalf("Expected session id 1, got %v", sid)
	}

	if !ledger.enabled {
		t.Error("Expected enabled flag to be set")
	}
	if ledger.currentSID == nil || *ledger.currentSID != 1 {
		t.Errorf("Expected current session pointer 1, got %v", ledger.currentSID)
	}
	if len(ledger.sessions) != 1 || !ledger.sessions[0].active {
		t.Fatalf("Expected exactly one active session, got %+v", ledger.sessions)
	}
	if ledger.sessions[0].startedAt != 1700000000000 {
		t.Errorf("Expected started_at from clock, got %d", ledger.sessions[0].startedAt)
	}

	if len(ledger.heartbeats) != 1 {
		t.Fatalf("Expected exactly one seeded heartbeat, got %d", len(ledger.heartbeats))
	}
	hb, ok := ledger.heartbeats["main:loop"]
	if !ok || hb.phase != "READY" || hb.pct != 100 {
		t.Errorf("Expected main:loop READY pct=100, got %+v", hb)
	}
}

func TestSetEnabled_Idempotent(t *testing.T) {
	ledger := newFakeLedger()
	c := newTestController(ledger)

	first, err := c.SetEnabled(context.Background(), true, "")
	if err != nil {
		t.Fatalf("First enable failed: %v", err)
	}

	// Worker has reported in the meantime; a repeated enable must not wipe it.
	ledger.heartbeats["collector:BTCUSDT:1m"] = fakeHeartbeat{phase: "OK", pct: 40}

	second, err := c.SetEnabled(context.Background(), true, "")
	if err != nil {
		t.Fatalf("Second enable failed: %v", err)
	}

	if *first != *second {
		t.Errorf("Expected same session id, got %d then %d", *first, *second)
	}
	if len(ledger.sessions) != 1 {
		t.Errorf("Expected one session after double enable, got %d", len(ledger.sessions))
	}
	if ledger.clearCalls != 1 {
		t.Errorf("Expected heartbeats cleared once, got %d", ledger.clearCalls)
	}
	if _, ok := ledger.heartbeats["collector:BTCUSDT:1m"]; !ok {
		t.Error("Expected live heartbeat to survive repeated enable")
	}
}

func TestSetEnabled_RoundTrip(t *testing.T) {
	ledger := newFakeLedger()
	c := newTestController(ledger)

	if _, err := c.SetEnabled(context.Background(), true, ""); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	sid, err := c.SetEnabled(context.Background(), false, "")
	if err != nil {
		t.Fatalf("Disable failed: %v", err)
	}

	if sid != nil {
		t.Errorf("Expected nil session id after disable, got %v", sid)
	}
	if ledger.enabled {
		t.Error("Expected enabled flag cleared")
	}
	if ledger.currentSID != nil {
		t.Errorf("Expected current session pointer cleared, got %v", ledger.currentSID)
	}
	if len(ledger.sessions) != 1 {
		t.Fatalf("Expected exactly one session, got %d", len(ledger.sessions))
	}
	s := ledger.sessions[0]
	if s.active || s.stoppedAt == nil || s.startedAt == 0 {
		t.Errorf("Expected one closed session with both timestamps, got %+v", s)
	}
}

func TestSetEnabled_AdoptsExistingActiveSession(t *testing.T) {
	ledger := newFakeLedger()
	ledger.sessions = []fakeSession{{id: 7, startedAt: 1, active: true, mode: "SIM"}}
	ledger.nextID = 8
	c := newTestController(ledger)

	sid, err := c.SetEnabled(context.Background(), true, "")
	if err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	if sid == nil || *sid != 7 {
		t.Fatalf("Expected pointer derived from the existing active session, got %v", sid)
	}
	if len(ledger.sessions) != 1 {
		t.Errorf("Expected no new session, got %d", len(ledger.sessions))
	}
	if ledger.currentSID == nil || *ledger.currentSID != 7 {
		t.Errorf("Expected current session pointer 7, got %v", ledger.currentSID)
	}
}

func TestSetEnabled_DisableClosesDriftedLedger(t *testing.T) {
	ledger := newFakeLedger()
	ledger.sessions = []fakeSession{
		{id: 1, startedAt: 1, active: true},
		{id: 2, startedAt: 2, active: true},
	}
	ledger.enabled = true
	c := newTestController(ledger)

	if _, err := c.SetEnabled(context.Background(), false, ""); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if n := activeCount(ledger); n != 0 {
		t.Errorf("Expected all active sessions closed, %d remain", n)
	}
}

func TestSetEnabled_ModeResolution(t *testing.T) {
	tests := []struct {
		name     string
		request  string
		stored   string
		wantMode string
	}{
		{"request wins", "LIVE", "SIM", "LIVE"},
		{"stored when empty", "", "LIVE", "LIVE"},
		{"lowercase normalized", "live", "SIM", "LIVE"},
		{"garbage falls back to SIM", "TURBO", "LIVE", "SIM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newFakeLedger()
			ledger.tradeMode = tt.stored
			c := newTestController(ledger)

			if _, err := c.SetEnabled(context.Background(), true, tt.request); err != nil {
				t.Fatalf("SetEnabled failed: %v", err)
			}
			if got := ledger.sessions[0].mode; got != tt.wantMode {
				t.Errorf("Expected mode %s, got %s", tt.wantMode, got)
			}
		})
	}
}

func TestSetEnabled_FailureLeavesNoPartialState(t *testing.T) {
	ledger := newFakeLedger()
	ledger.failOn = "SetCurrentSessionID"
	c := newTestController(ledger)

	if _, err := c.SetEnabled(context.Background(), true, ""); err == nil {
		t.Fatal("Expected error")
	}

	if ledger.enabled {
		t.Error("Expected enabled flag unchanged after rollback")
	}
	if len(ledger.sessions) != 0 {
		t.Errorf("Expected no sessions after rollback, got %d", len(ledger.sessions))
	}
	if len(ledger.heartbeats) != 0 {
		t.Errorf("Expected no heartbeats after rollback, got %d", len(ledger.heartbeats))
	}
}

func TestSetEnabled_SingleActiveInvariant(t *testing.T) {
	ledger := newFakeLedger()
	c := newTestController(ledger)
	ctx := context.Background()

	toggles := []bool{true, true, false, true, false, false, true}
	for _, desired := range toggles {
		if _, err := c.SetEnabled(ctx, desired, ""); err != nil {
			t.Fatalf("SetEnabled(%v) failed: %v", desired, err)
		}
		if n := activeCount(ledger); n > 1 {
			t.Fatalf("Invariant violated: %d active sessions", n)
		}
		if ledger.currentSID != nil {
			found := false
			for _, s := range ledger.sessions {
				if s.id == *ledger.currentSID && s.active {
					found = true
				}
			}
			if !found {
				t.Fatalf("Pointer %d does not reference an active session", *ledger.currentSID)
			}
		}
	}
}
