package indicator

import "math"

// SuperTrend direction values.
const (
	TrendBullish = -1.0
	TrendBearish = 1.0
)

// SuperTrend computes the SuperTrend overlay: ATR bands around hl2 that
// ratchet in the trend direction, flipping when price closes through the
// active band. Returns the line value and the direction series
// (TrendBullish while price rides the lower band, TrendBearish the
// upper). First atrPeriod entries are NaN.
//
// When high/low are absent the true range degrades to |close - prevClose|
// and close stands in for hl2, matching the tick-only live path.
func SuperTrend(close, high, low []float64, factor float64, atrPeriod int) (value, direction []float64) {
	n := len(close)
	value = nanSlice(n)
	direction = nanSlice(n)
	if n < atrPeriod+1 {
		return value, direction
	}

	hasOHLC := len(high) == n && len(low) == n

	tr := make([]float64, n)
	src := make([]float64, n)
	for i := 0; i < n; i++ {
		if hasOHLC {
			src[i] = (high[i] + low[i]) / 2
			if i > 0 {
				hl := high[i] - low[i]
				hc := math.Abs(high[i] - close[i-1])
				lc := math.Abs(low[i] - close[i-1])
				tr[i] = math.Max(hl, math.Max(hc, lc))
			}
		} else {
			src[i] = close[i]
			if i > 0 {
				tr[i] = math.Abs(close[i] - close[i-1])
			}
		}
	}

	// ATR with Wilder's smoothing, seeded by the mean of the first
	// atrPeriod true ranges.
	atr := nanSlice(n)
	var seed float64
	for i := 1; i <= atrPeriod; i++ {
		seed += tr[i]
	}
	atr[atrPeriod] = seed / float64(atrPeriod)
	for i := atrPeriod + 1; i < n; i++ {
		atr[i] = (atr[i-1]*float64(atrPeriod-1) + tr[i]) / float64(atrPeriod)
	}

	upper := nanSlice(n)
	lower := nanSlice(n)
	start := atrPeriod
	upper[start] = src[start] + factor*atr[start]
	lower[start] = src[start] - factor*atr[start]
	direction[start] = TrendBullish
	value[start] = lower[start]

	for i := start + 1; i < n; i++ {
		rawUpper := src[i] + factor*atr[i]
		rawLower := src[i] - factor*atr[i]

		// Bands only move with the trend unless price broke through them
		// on the previous bar.
		if rawLower > lower[i-1] || close[i-1] < lower[i-1] {
			lower[i] = rawLower
		} else {
			lower[i] = lower[i-1]
		}
		if rawUpper < upper[i-1] || close[i-1] > upper[i-1] {
			upper[i] = rawUpper
		} else {
			upper[i] = upper[i-1]
		}

		prev := direction[i-1]
		switch {
		case math.IsNaN(prev):
			direction[i] = TrendBullish
		case prev == TrendBearish:
			if close[i] > upper[i] {
				direction[i] = TrendBullish
			} else {
				direction[i] = TrendBearish
			}
		default:
			if close[i] < lower[i] {
				direction[i] = TrendBearish
			} else {
				direction[i] = TrendBullish
			}
		}

		if direction[i] == TrendBullish {
			value[i] = lower[i]
		} else {
			value[i] = upper[i]
		}
	}
	return value, direction
}
