// Package config loads and validates strategy specifications. Validation
// fails fast: a malformed strategy never reaches the engines.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Direction is the trade side for the option premium.
type Direction string

const (
	Sell Direction = "sell"
	Buy  Direction = "buy"
)

// Indicator configures one indicator instance. The set of types is closed;
// Validate rejects unknown types and missing parameters per type.
type Indicator struct {
	Type        string  `yaml:"type"` // RSI, EMA, SMA, MACD, BOLLINGER, VWAP, SUPERTREND
	Name        string  `yaml:"name"`
	Period      int     `yaml:"period"`
	Fast        int     `yaml:"fast"`
	Slow        int     `yaml:"slow"`
	Signal      int     `yaml:"signal"`
	StdDev      float64 `yaml:"std_dev"`
	Factor      float64 `yaml:"factor"`
	ATRPeriod   int     `yaml:"atr_period"`
	PriceSource string  `yaml:"price_source"` // spot | option, defaults to option
}

// Condition is one signal comparison. Left and Right accept an indicator
// output name, the word "close" for the current price, or a numeric
// literal.
type Condition struct {
	Left    string `yaml:"left"`
	Compare string `yaml:"compare"` // above, below, crosses_above, crosses_below
	Right   string `yaml:"right"`
}

// EntryLevel is one staggered entry step measured from the base price.
type EntryLevel struct {
	OffsetPct  float64 `yaml:"offset_pct"`
	CapitalPct float64 `yaml:"capital_pct"`
}

// Entry types.
const (
	EntryDirect         = "direct"
	EntryStaggered      = "staggered"
	EntryIndicatorLevel = "indicator_level"
)

// Entry selects how a fired signal turns into fills.
type Entry struct {
	Type       string       `yaml:"type"` // direct | staggered | indicator_level
	Levels     []EntryLevel `yaml:"levels"`
	Indicator  string       `yaml:"indicator"`
	ValidWhile []Condition  `yaml:"valid_while"`
}

// Instrument carries per-underlying constants. ExpiryWeekday is the
// weekly option expiry day; after a session on that day the nearest
// weekly key names a different contract.
type Instrument struct {
	Name          string  `yaml:"name"`
	LotSize       int     `yaml:"lot_size"`
	StrikeStep    float64 `yaml:"strike_step"`
	ExpiryWeekday string  `yaml:"expiry_weekday"`
}

// Store configures the historical bar source.
type Store struct {
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
	Database      string `yaml:"database"`
	Table         string `yaml:"table"`
	CSVPath       string `yaml:"csv_path"`
}

// Feed configures the live data inputs.
type Feed struct {
	WSURL              string `yaml:"ws_url"`
	RESTBaseURL        string `yaml:"rest_base_url"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	DailyRequestCap    int    `yaml:"daily_request_cap"`
	WarmupDays         int    `yaml:"warmup_days"`
	WarmupStrikeRange  int    `yaml:"warmup_strike_range"`
}

// Risk configures the daily-loss kill switch.
type Risk struct {
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct"`
}

// Strategy is the full strategy specification.
type Strategy struct {
	Name             string       `yaml:"name"`
	Indicators       []Indicator  `yaml:"indicators"`
	SignalConditions []Condition  `yaml:"signal_conditions"`
	SignalLogic      string       `yaml:"signal_logic"` // AND | OR
	Direction        Direction    `yaml:"direction"`
	Entry            Entry        `yaml:"entry"`
	StopLossPct      float64      `yaml:"stop_loss_pct"`
	TargetPct        float64      `yaml:"target_pct"`
	TradingStart     string       `yaml:"trading_start"` // "09:30"
	TradingEnd       string       `yaml:"trading_end"`   // "14:30"
	Instruments      []Instrument `yaml:"instruments"`
	BacktestStart    string       `yaml:"backtest_start"`
	BacktestEnd      string       `yaml:"backtest_end"`
	InitialCapital   float64      `yaml:"initial_capital"`
	MaxTradesPerDay  int          `yaml:"max_trades_per_day"` // 0 = unlimited

	Store       Store  `yaml:"store"`
	Feed        Feed   `yaml:"feed"`
	Risk        Risk   `yaml:"risk"`
	MetricsAddr string `yaml:"metrics_addr"`
	OutboxPath  string `yaml:"outbox_path"`
	LogLevel    string `yaml:"log_level"`
}

var defaultLotSizes = map[string]int{
	"NIFTY":     75,
	"BANKNIFTY": 30,
	"SENSEX":    20,
}

var defaultStrikeSteps = map[string]float64{
	"NIFTY":     50,
	"BANKNIFTY": 100,
	"SENSEX":    100,
}

// Load reads a strategy file, applies defaults, and validates it.
func Load(path string) (Strategy, error) {
	var s Strategy
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("parse strategy: %w", err)
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func (s *Strategy) applyDefaults() {
	if s.SignalLogic == "" {
		s.SignalLogic = "AND"
	}
	if s.Direction == "" {
		s.Direction = Sell
	}
	if s.TradingStart == "" {
		s.TradingStart = "09:30"
	}
	if s.TradingEnd == "" {
		s.TradingEnd = "14:30"
	}
	if s.StopLossPct == 0 {
		s.StopLossPct = 20
	}
	if s.TargetPct == 0 {
		s.TargetPct = 10
	}
	if s.InitialCapital == 0 {
		s.InitialCapital = 200000
	}
	if s.Entry.Type == "" {
		s.Entry.Type = "direct"
	}
	if s.Risk.MaxDailyLossPct == 0 {
		s.Risk.MaxDailyLossPct = 35
	}
	if s.OutboxPath == "" {
		s.OutboxPath = "data/trades.jsonl"
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.Store.Database == "" {
		s.Store.Database = "options"
	}
	if s.Store.Table == "" {
		s.Store.Table = "bars_1m"
	}
	if s.Feed.RateLimitPerMinute == 0 {
		s.Feed.RateLimitPerMinute = 60
	}
	if s.Feed.DailyRequestCap == 0 {
		s.Feed.DailyRequestCap = 5000
	}
	if s.Feed.WarmupDays == 0 {
		s.Feed.WarmupDays = 5
	}
	if s.Feed.WarmupStrikeRange == 0 {
		s.Feed.WarmupStrikeRange = 20
	}
	for i := range s.Indicators {
		if s.Indicators[i].PriceSource == "" {
			// Older strategy files omit price_source; option scope is
			// the historical behavior.
			s.Indicators[i].PriceSource = "option"
		}
	}
	for i := range s.Instruments {
		inst := &s.Instruments[i]
		if inst.LotSize == 0 {
			inst.LotSize = defaultLotSizes[inst.Name]
		}
		if inst.StrikeStep == 0 {
			inst.StrikeStep = defaultStrikeSteps[inst.Name]
		}
		if inst.ExpiryWeekday == "" {
			inst.ExpiryWeekday = "Thursday"
		}
	}
}

// Validate checks the whole spec and returns the first problem found.
func (s *Strategy) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("strategy: name is required")
	}
	if s.SignalLogic != "AND" && s.SignalLogic != "OR" {
		return fmt.Errorf("strategy %q: signal_logic must be AND or OR, got %q", s.Name, s.SignalLogic)
	}
	if s.Direction != Sell && s.Direction != Buy {
		return fmt.Errorf("strategy %q: direction must be buy or sell, got %q", s.Name, s.Direction)
	}
	if len(s.Instruments) == 0 {
		return fmt.Errorf("strategy %q: at least one instrument is required", s.Name)
	}
	for _, inst := range s.Instruments {
		if inst.Name == "" {
			return fmt.Errorf("strategy %q: instrument name is required", s.Name)
		}
		if inst.LotSize <= 0 {
			return fmt.Errorf("strategy %q: unknown lot size for %s", s.Name, inst.Name)
		}
		if inst.StrikeStep <= 0 {
			return fmt.Errorf("strategy %q: unknown strike step for %s", s.Name, inst.Name)
		}
		if _, err := ParseWeekday(inst.ExpiryWeekday); err != nil {
			return fmt.Errorf("strategy %q: %s: expiry_weekday: %w", s.Name, inst.Name, err)
		}
	}
	if _, err := ParseClock(s.TradingStart); err != nil {
		return fmt.Errorf("strategy %q: trading_start: %w", s.Name, err)
	}
	if _, err := ParseClock(s.TradingEnd); err != nil {
		return fmt.Errorf("strategy %q: trading_end: %w", s.Name, err)
	}
	if s.StopLossPct <= 0 || s.TargetPct <= 0 {
		return fmt.Errorf("strategy %q: stop_loss_pct and target_pct must be positive", s.Name)
	}
	if len(s.SignalConditions) == 0 {
		return fmt.Errorf("strategy %q: at least one signal condition is required", s.Name)
	}

	names := map[string]bool{}
	for _, ind := range s.Indicators {
		if ind.Name == "" {
			return fmt.Errorf("strategy %q: indicator name is required", s.Name)
		}
		if names[ind.Name] {
			return fmt.Errorf("strategy %q: duplicate indicator name %q", s.Name, ind.Name)
		}
		names[ind.Name] = true
		if ind.PriceSource != "spot" && ind.PriceSource != "option" {
			return fmt.Errorf("strategy %q: indicator %s: price_source must be spot or option", s.Name, ind.Name)
		}
		if err := validateIndicator(ind); err != nil {
			return fmt.Errorf("strategy %q: %w", s.Name, err)
		}
	}

	for _, c := range append(append([]Condition{}, s.SignalConditions...), s.Entry.ValidWhile...) {
		if err := validateCondition(c); err != nil {
			return fmt.Errorf("strategy %q: %w", s.Name, err)
		}
	}

	switch s.Entry.Type {
	case EntryDirect:
	case EntryStaggered:
		if len(s.Entry.Levels) == 0 {
			return fmt.Errorf("strategy %q: staggered entry needs levels", s.Name)
		}
		for _, lvl := range s.Entry.Levels {
			if lvl.CapitalPct <= 0 {
				return fmt.Errorf("strategy %q: entry level capital_pct must be positive", s.Name)
			}
		}
	case EntryIndicatorLevel:
		if s.Entry.Indicator == "" {
			return fmt.Errorf("strategy %q: indicator_level entry needs an indicator", s.Name)
		}
	default:
		return fmt.Errorf("strategy %q: unknown entry type %q", s.Name, s.Entry.Type)
	}
	return nil
}

func validateIndicator(ind Indicator) error {
	switch ind.Type {
	case "RSI", "EMA", "SMA":
		if ind.Period <= 0 {
			return fmt.Errorf("indicator %s: period must be positive", ind.Name)
		}
	case "MACD":
		if ind.Fast <= 0 || ind.Slow <= 0 || ind.Signal <= 0 {
			return fmt.Errorf("indicator %s: fast, slow, and signal must be positive", ind.Name)
		}
	case "BOLLINGER":
		if ind.Period <= 0 || ind.StdDev <= 0 {
			return fmt.Errorf("indicator %s: period and std_dev must be positive", ind.Name)
		}
	case "VWAP":
	case "SUPERTREND":
		if ind.Factor <= 0 || ind.ATRPeriod <= 0 {
			return fmt.Errorf("indicator %s: factor and atr_period must be positive", ind.Name)
		}
	default:
		return fmt.Errorf("indicator %s: unknown type %q", ind.Name, ind.Type)
	}
	return nil
}

func validateCondition(c Condition) error {
	switch c.Compare {
	case "above", "below", "crosses_above", "crosses_below":
	default:
		return fmt.Errorf("condition: unknown comparator %q", c.Compare)
	}
	if c.Left == "" || c.Right == "" {
		return fmt.Errorf("condition: left and right operands are required")
	}
	return nil
}

var weekdayNames = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}

// ParseWeekday parses an English weekday name.
func ParseWeekday(s string) (time.Weekday, error) {
	if d, ok := weekdayNames[s]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("want a weekday name, got %q", s)
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// IsNumeric reports whether an operand string is a numeric literal.
func IsNumeric(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}
