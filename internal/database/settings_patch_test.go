package database

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, body string) map[string]interface{} {
	t.Helper()
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		t.Fatalf("bad test payload: %v", err)
	}
	return raw
}

func TestParseSettingsPatch_FullPayload(t *testing.T) {
	raw := decode(t, `{
		"symbols_json": ["BTCUSDT", "ETHUSDT"],
		"intervals_json": ["1m", "5m"],
		"leverage_json": {"BTCUSDT": 5},
		"invest_usdt_json": {"BTCUSDT": 100.5},
		"is_enabled": true,
		"adv_enabled": false,
		"max_risk_pct": 0.02,
		"max_consec_losses": 6,
		"trade_mode": "LIVE",
		"live_armed": 1,
		"fee_rate": 0.0004
	}`)

	p := ParseSettingsPatch(raw)

	if p.Symbols == nil || len(*p.Symbols) != 2 {
		t.Fatalf("Expected 2 symbols, got %v", p.Symbols)
	}
	if p.IsEnabled == nil || !*p.IsEnabled {
		t.Error("Expected is_enabled true")
	}
	if p.AdvEnabled == nil || *p.AdvEnabled {
		t.Error("Expected adv_enabled false")
	}
	if p.Leverage == nil || (*p.Leverage)["BTCUSDT"] != 5 {
		t.Errorf("Expected leverage coerced to float map, got %v", p.Leverage)
	}
	if p.MaxRiskPct == nil || *p.MaxRiskPct != 0.02 {
		t.Errorf("Expected max_risk_pct 0.02, got %v", p.MaxRiskPct)
	}
	if p.MaxConsecLosses == nil || *p.MaxConsecLosses != 6 {
		t.Errorf("Expected max_consec_losses 6, got %v", p.MaxConsecLosses)
	}
	if p.TradeMode == nil || *p.TradeMode != TradeModeLive {
		t.Errorf("Expected trade_mode LIVE, got %v", p.TradeMode)
	}
	if p.LiveArmed == nil || !*p.LiveArmed {
		t.Error("Expected live_armed coerced from 1 to true")
	}
	if p.EntryThreshold != nil || p.SlipRate != nil {
		t.Error("Expected absent fields to stay nil")
	}
}

func TestParseSettingsPatch_AbsentFieldsStayNil(t *testing.T) {
	p := ParseSettingsPatch(map[string]interface{}{})
	if p.IsEnabled != nil || p.Symbols != nil || p.TradeMode != nil {
		t.Errorf("Expected empty patch from empty payload, got %+v", p)
	}
}

func TestParseSettingsPatch_LenientCoercion(t *testing.T) {
	raw := decode(t, `{
		"is_enabled": "1",
		"max_risk_pct": "0.05",
		"cooldown_bars": 3.9,
		"symbols_json": "not-a-list",
		"unknown_field": 123
	}`)

	p := ParseSettingsPatch(raw)

	if p.IsEnabled == nil || !*p.IsEnabled {
		t.Error(`Expected "1" coerced to true`)
	}
	if p.MaxRiskPct == nil || *p.MaxRiskPct != 0.05 {
		t.Errorf(`Expected "0.05" coerced to float, got %v`, p.MaxRiskPct)
	}
	if p.CooldownBars == nil || *p.CooldownBars != 3 {
		t.Errorf("Expected 3.9 truncated to 3, got %v", p.CooldownBars)
	}
	if p.Symbols != nil {
		t.Error("Expected wrong-typed symbols_json dropped")
	}
}

func TestNormalizeTradeMode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"LIVE", TradeModeLive},
		{"live", TradeModeLive},
		{" live ", TradeModeLive},
		{"SIM", TradeModeSim},
		{"TURBO", TradeModeSim},
		{"", TradeModeSim},
	}
	for _, tt := range tests {
		if got := NormalizeTradeMode(tt.in); got != tt.want {
			t.Errorf("NormalizeTradeMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
