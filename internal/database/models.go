package database

import "time"

// Trade mode values
const (
	TradeModeSim  = "SIM"
	TradeModeLive = "LIVE"
)

// Journal severity levels
const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"
)

// SettingsID is the fixed id of the singleton settings row.
const SettingsID = 1

// Settings is the singleton configuration record driving the bot and the
// dashboard. current_session_id, when set, references the active run session.
type Settings struct {
	ID               int64              `json:"id"`
	Symbols          []string           `json:"symbols_json"`
	Intervals        []string           `json:"intervals_json"`
	Leverage         map[string]float64 `json:"leverage_json"`
	InvestUSDT       map[string]float64 `json:"invest_usdt_json"`
	IsEnabled        bool               `json:"is_enabled"`
	AdvEnabled       bool               `json:"adv_enabled"`
	MaxRiskPct       float64            `json:"max_risk_pct"`
	MaxDailyDDPct    float64            `json:"max_daily_dd_pct"`
	MaxConsecLosses  int                `json:"max_consec_losses"`
	EntryThreshold   float64            `json:"entry_threshold"`
	ReverseGap       float64            `json:"reverse_gap"`
	CooldownBars     int                `json:"cooldown_bars"`
	MinHoldBars      int                `json:"min_hold_bars"`
	TradeMode        string             `json:"trade_mode"`
	LiveArmed        bool               `json:"live_armed"`
	FeeRate          float64            `json:"fee_rate"`
	SlipRate         float64            `json:"slip_rate"`
	CurrentSessionID *int64             `json:"current_session_id"`
}

// RunSession is one continuous interval during which the bot is enabled.
// Timestamps are ms epoch. Closed sessions are immutable.
type RunSession struct {
	SessionID int64  `json:"session_id"`
	StartedAt int64  `json:"started_at"`
	StoppedAt *int64 `json:"stopped_at"`
	IsActive  bool   `json:"is_active"`
	TradeMode string `json:"trade_mode"`
}

// JobProgress is the latest self-reported progress snapshot from a named
// background job. New reports overwrite in place.
type JobProgress struct {
	JobID     string    `json:"job_id"`
	Phase     string    `json:"phase"`
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	Step      int       `json:"step"`
	Total     int       `json:"total"`
	Pct       float64   `json:"pct"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JournalEntry is an append-only leveled event. Job-scoped events use rule
// "JOB:<job_id>".
type JournalEntry struct {
	ID     int64  `json:"id"`
	TS     int64  `json:"ts"`
	Rule   string `json:"rule"`
	Level  string `json:"level"`
	Detail string `json:"detail"`
}

// TradeRow is the dashboard projection of a closed trade. Side is derived
// from the sign of qty.
type TradeRow struct {
	EntryTS      int64    `json:"entry_ts"`
	ExitTS       *int64   `json:"exit_ts"`
	EntryPrice   float64  `json:"entry_price"`
	ExitPrice    *float64 `json:"exit_price"`
	TemplateID   *int64   `json:"template_id"`
	PnLAfterCost float64  `json:"pnl_after_cost"`
	Side         string   `json:"side"`
}
