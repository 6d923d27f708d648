// Package indicator implements the technical indicator library and the
// adapter that owns per-contract indicator state.
//
// Every compute function returns series aligned 1:1 with its input; warm-up
// positions are NaN and must never satisfy a signal condition. Multi-output
// indicators expose sub-outputs under deterministic suffixed names
// (name_macd, name_upper, name_value, ...).
package indicator

import (
	"math"
	"time"

	"github.com/anrvee/optionflow/internal/config"
)

// Values is a point-in-time snapshot of named indicator outputs.
type Values map[string]float64

// Outputs is the full aligned series for each named output.
type Outputs map[string][]float64

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// OutputNames lists the series names one indicator config produces.
func OutputNames(cfg config.Indicator) []string {
	switch cfg.Type {
	case "MACD":
		return []string{cfg.Name + "_macd", cfg.Name + "_signal", cfg.Name + "_histogram"}
	case "BOLLINGER":
		return []string{cfg.Name + "_upper", cfg.Name + "_middle", cfg.Name + "_lower"}
	case "SUPERTREND":
		return []string{cfg.Name + "_value", cfg.Name + "_direction"}
	default:
		return []string{cfg.Name}
	}
}

// Compute runs one configured indicator over a price history.
// ts is needed only by VWAP (daily reset); high/low only by SuperTrend.
func Compute(cfg config.Indicator, ts []time.Time, close, high, low, volume []float64) Outputs {
	switch cfg.Type {
	case "RSI":
		return Outputs{cfg.Name: RSI(close, cfg.Period)}
	case "EMA":
		return Outputs{cfg.Name: EMA(close, cfg.Period)}
	case "SMA":
		return Outputs{cfg.Name: SMA(close, cfg.Period)}
	case "MACD":
		m, s, h := MACD(close, cfg.Fast, cfg.Slow, cfg.Signal)
		return Outputs{cfg.Name + "_macd": m, cfg.Name + "_signal": s, cfg.Name + "_histogram": h}
	case "BOLLINGER":
		u, m, l := Bollinger(close, cfg.Period, cfg.StdDev)
		return Outputs{cfg.Name + "_upper": u, cfg.Name + "_middle": m, cfg.Name + "_lower": l}
	case "VWAP":
		return Outputs{cfg.Name: VWAP(ts, close, volume)}
	case "SUPERTREND":
		v, d := SuperTrend(close, high, low, cfg.Factor, cfg.ATRPeriod)
		return Outputs{cfg.Name + "_value": v, cfg.Name + "_direction": d}
	default:
		// Unknown types are rejected at config load; an empty result here
		// just means every condition on it stays false.
		return Outputs{}
	}
}
