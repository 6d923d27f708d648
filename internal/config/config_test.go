package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeStrategy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimal = `
name: test
indicators:
  - type: RSI
    name: rsi_14
    period: 14
signal_conditions:
  - left: rsi_14
    compare: above
    right: "70"
instruments:
  - name: NIFTY
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeStrategy(t, minimal))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.SignalLogic != "AND" || cfg.Direction != Sell || cfg.Entry.Type != EntryDirect {
		t.Errorf("logic=%s direction=%s entry=%s", cfg.SignalLogic, cfg.Direction, cfg.Entry.Type)
	}
	if cfg.StopLossPct != 20 || cfg.TargetPct != 10 || cfg.InitialCapital != 200000 {
		t.Errorf("sl=%v tp=%v capital=%v", cfg.StopLossPct, cfg.TargetPct, cfg.InitialCapital)
	}
	if cfg.TradingStart != "09:30" || cfg.TradingEnd != "14:30" {
		t.Errorf("window %s-%s", cfg.TradingStart, cfg.TradingEnd)
	}
	if cfg.Indicators[0].PriceSource != "option" {
		t.Errorf("price_source = %s, want option", cfg.Indicators[0].PriceSource)
	}
	if cfg.Instruments[0].LotSize != 75 || cfg.Instruments[0].StrikeStep != 50 {
		t.Errorf("NIFTY constants = %d/%v", cfg.Instruments[0].LotSize, cfg.Instruments[0].StrikeStep)
	}
	if cfg.Instruments[0].ExpiryWeekday != "Thursday" {
		t.Errorf("expiry_weekday = %s, want Thursday", cfg.Instruments[0].ExpiryWeekday)
	}
	if cfg.Risk.MaxDailyLossPct != 35 {
		t.Errorf("risk = %v, want 35", cfg.Risk.MaxDailyLossPct)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Strategy)
		wantErr string
	}{
		{
			name:    "bad_logic",
			mutate:  func(s *Strategy) { s.SignalLogic = "XOR" },
			wantErr: "signal_logic",
		},
		{
			name:    "bad_direction",
			mutate:  func(s *Strategy) { s.Direction = "short" },
			wantErr: "direction",
		},
		{
			name:    "no_instruments",
			mutate:  func(s *Strategy) { s.Instruments = nil },
			wantErr: "instrument",
		},
		{
			name:    "unknown_lot_size",
			mutate:  func(s *Strategy) { s.Instruments = []Instrument{{Name: "MYSTERY", StrikeStep: 50}} },
			wantErr: "lot size",
		},
		{
			name: "bad_expiry_weekday",
			mutate: func(s *Strategy) {
				s.Instruments[0].ExpiryWeekday = "Someday"
			},
			wantErr: "expiry_weekday",
		},
		{
			name:    "bad_clock",
			mutate:  func(s *Strategy) { s.TradingStart = "9am" },
			wantErr: "trading_start",
		},
		{
			name:    "unknown_indicator_type",
			mutate:  func(s *Strategy) { s.Indicators[0].Type = "HULL" },
			wantErr: "unknown type",
		},
		{
			name: "duplicate_indicator_name",
			mutate: func(s *Strategy) {
				s.Indicators = append(s.Indicators, Indicator{Type: "RSI", Name: "rsi_14", Period: 7, PriceSource: "option"})
			},
			wantErr: "duplicate",
		},
		{
			name:    "macd_missing_params",
			mutate:  func(s *Strategy) { s.Indicators[0] = Indicator{Type: "MACD", Name: "m", Fast: 12, PriceSource: "option"} },
			wantErr: "fast, slow, and signal",
		},
		{
			name:    "bad_comparator",
			mutate:  func(s *Strategy) { s.SignalConditions[0].Compare = "greater" },
			wantErr: "comparator",
		},
		{
			name:    "staggered_without_levels",
			mutate:  func(s *Strategy) { s.Entry = Entry{Type: EntryStaggered} },
			wantErr: "levels",
		},
		{
			name:    "indicator_level_without_indicator",
			mutate:  func(s *Strategy) { s.Entry = Entry{Type: EntryIndicatorLevel} },
			wantErr: "indicator",
		},
		{
			name:    "unknown_entry_type",
			mutate:  func(s *Strategy) { s.Entry = Entry{Type: "market"} },
			wantErr: "entry type",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeStrategy(t, minimal))
			if err != nil {
				t.Fatalf("base load: %v", err)
			}
			tc.mutate(&cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	got, err := ParseClock("09:30")
	if err != nil || got != 570 {
		t.Errorf("got %d %v, want 570", got, err)
	}
	if _, err := ParseClock("25:00"); err == nil {
		t.Error("expected error for invalid clock")
	}
}

func TestIsNumeric(t *testing.T) {
	if v, ok := IsNumeric("70.5"); !ok || v != 70.5 {
		t.Errorf("got %v %v", v, ok)
	}
	if _, ok := IsNumeric("rsi_14"); ok {
		t.Error("identifier treated as number")
	}
	if v, ok := IsNumeric("-1"); !ok || v != -1 {
		t.Errorf("got %v %v", v, ok)
	}
}
