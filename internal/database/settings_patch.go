package database

import (
	"fmt"
	"strconv"
	"strings"
)

// SettingsPatch is a partial update of the settings record. Nil fields leave
// the stored value unchanged. IsEnabled is applied by the session lifecycle,
// not by ApplySettingsPatch.
type SettingsPatch struct {
	Symbols         *[]string
	Intervals       *[]string
	Leverage        *map[string]float64
	InvestUSDT      *map[string]float64
	IsEnabled       *bool
	AdvEnabled      *bool
	MaxRiskPct      *float64
	MaxDailyDDPct   *float64
	MaxConsecLosses *int
	EntryThreshold  *float64
	ReverseGap      *float64
	CooldownBars    *int
	MinHoldBars     *int
	TradeMode       *string
	LiveArmed       *bool
	FeeRate         *float64
	SlipRate        *float64
}

// ParseSettingsPatch builds a patch from a decoded JSON object. Unknown keys
// are ignored; values of the wrong type are coerced where a reasonable
// interpretation exists and dropped otherwise, favoring availability over
// strictness.
func ParseSettingsPatch(raw map[string]interface{}) SettingsPatch {
	var p SettingsPatch

	if v, ok := raw["symbols_json"]; ok {
		if list, ok := asStringList(v); ok {
			p.Symbols = &list
		}
	}
	if v, ok := raw["intervals_json"]; ok {
		if list, ok := asStringList(v); ok {
			p.Intervals = &list
		}
	}
	if v, ok := raw["leverage_json"]; ok {
		if m, ok := asFloatMap(v); ok {
			p.Leverage = &m
		}
	}
	if v, ok := raw["invest_usdt_json"]; ok {
		if m, ok := asFloatMap(v); ok {
			p.InvestUSDT = &m
		}
	}
	if v, ok := raw["is_enabled"]; ok {
		b := asBool(v)
		p.IsEnabled = &b
	}
	if v, ok := raw["adv_enabled"]; ok {
		b := asBool(v)
		p.AdvEnabled = &b
	}
	if v, ok := raw["max_risk_pct"]; ok {
		f := asFloat(v)
		p.MaxRiskPct = &f
	}
	if v, ok := raw["max_daily_dd_pct"]; ok {
		f := asFloat(v)
		p.MaxDailyDDPct = &f
	}
	if v, ok := raw["max_consec_losses"]; ok {
		n := asInt(v)
		p.MaxConsecLosses = &n
	}
	if v, ok := raw["entry_threshold"]; ok {
		f := asFloat(v)
		p.EntryThreshold = &f
	}
	if v, ok := raw["reverse_gap"]; ok {
		f := asFloat(v)
		p.ReverseGap = &f
	}
	if v, ok := raw["cooldown_bars"]; ok {
		n := asInt(v)
		p.CooldownBars = &n
	}
	if v, ok := raw["min_hold_bars"]; ok {
		n := asInt(v)
		p.MinHoldBars = &n
	}
	if v, ok := raw["trade_mode"]; ok {
		m := NormalizeTradeMode(fmt.Sprintf("%v", v))
		p.TradeMode = &m
	}
	if v, ok := raw["live_armed"]; ok {
		b := asBool(v)
		p.LiveArmed = &b
	}
	if v, ok := raw["fee_rate"]; ok {
		f := asFloat(v)
		p.FeeRate = &f
	}
	if v, ok := raw["slip_rate"]; ok {
		f := asFloat(v)
		p.SlipRate = &f
	}

	return p
}

// NormalizeTradeMode returns SIM or LIVE, falling back to SIM for anything
// unrecognized.
func NormalizeTradeMode(mode string) string {
	switch strings.ToUpper(strings.TrimSpace(mode)) {
	case TradeModeLive:
		return TradeModeLive
	default:
		return TradeModeSim
	}
}

func asBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t == "1" || strings.EqualFold(t, "true")
	default:
		return false
	}
}

func asFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func asInt(v interface{}) int {
	return int(asFloat(v))
}

func asStringList(v interface{}) ([]string, bool) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

func asFloatMap(v interface{}) (map[string]float64, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	out := make(map[string]float64, len(m))
	for k, item := range m {
		out[k] = asFloat(item)
	}
	return out, true
}
