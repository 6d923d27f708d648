package indicator

import "math"

// SMA computes a simple moving average. First period-1 entries are NaN.
func SMA(close []float64, period int) []float64 {
	n := len(close)
	out := nanSlice(n)
	if period <= 0 || n < period {
		return out
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += close[i]
		if i >= period {
			sum -= close[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes an exponential moving average seeded with the SMA of the
// first period values. First period-1 entries are NaN.
func EMA(close []float64, period int) []float64 {
	n := len(close)
	out := nanSlice(n)
	if period <= 0 || n < period {
		return out
	}
	var seed float64
	for i := 0; i < period; i++ {
		seed += close[i]
	}
	seed /= float64(period)
	out[period-1] = seed

	alpha := 2.0 / float64(period+1)
	for i := period; i < n; i++ {
		out[i] = close[i]*alpha + out[i-1]*(1-alpha)
	}
	return out
}

// ema0 is the span-EMA recursion starting at the first value, used inside
// MACD where the classic definition carries no seed window.
func ema0(vals []float64, period int) []float64 {
	n := len(vals)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	out[0] = vals[0]
	for i := 1; i < n; i++ {
		out[i] = vals[i]*alpha + out[i-1]*(1-alpha)
	}
	return out
}

// MACD computes the MACD line (fast EMA - slow EMA), its signal line, and
// the histogram. Entries before the slow and signal recursions have seen
// a full window are NaN so they never fire a condition.
func MACD(close []float64, fast, slow, signal int) (macd, sig, hist []float64) {
	n := len(close)
	macd = nanSlice(n)
	sig = nanSlice(n)
	hist = nanSlice(n)
	if n == 0 {
		return macd, sig, hist
	}

	emaFast := ema0(close, fast)
	emaSlow := ema0(close, slow)
	line := make([]float64, n)
	for i := range line {
		line[i] = emaFast[i] - emaSlow[i]
	}
	sigLine := ema0(line, signal)

	macdWarm := slow - 1
	sigWarm := slow + signal - 2
	for i := 0; i < n; i++ {
		if i >= macdWarm {
			macd[i] = line[i]
		}
		if i >= sigWarm {
			sig[i] = sigLine[i]
			hist[i] = line[i] - sigLine[i]
		}
	}
	return macd, sig, hist
}

// Bollinger computes upper, middle, and lower bands: SMA ± stdDev times
// the rolling sample standard deviation. First period-1 entries are NaN.
func Bollinger(close []float64, period int, stdDev float64) (upper, middle, lower []float64) {
	n := len(close)
	upper = nanSlice(n)
	middle = SMA(close, period)
	lower = nanSlice(n)
	if period <= 1 || n < period {
		return upper, middle, lower
	}
	for i := period - 1; i < n; i++ {
		m := middle[i]
		var ss float64
		for j := i - period + 1; j <= i; j++ {
			d := close[j] - m
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(period-1))
		upper[i] = m + stdDev*sd
		lower[i] = m - stdDev*sd
	}
	return upper, middle, lower
}
