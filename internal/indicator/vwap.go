package indicator

import (
	"math"
	"time"
)

// VWAP computes the intraday volume-weighted average price: cumulative
// price*volume over cumulative volume, reset at each date change. NaN
// where volume is missing or the day's cumulative volume is zero.
func VWAP(ts []time.Time, close, volume []float64) []float64 {
	n := len(close)
	out := nanSlice(n)
	if len(volume) != n || len(ts) != n {
		return out
	}

	var cumPV, cumVol float64
	var day int
	for i := 0; i < n; i++ {
		y, m, d := ts[i].Date()
		key := y*10000 + int(m)*100 + d
		if i == 0 || key != day {
			day = key
			cumPV, cumVol = 0, 0
		}
		cumPV += close[i] * volume[i]
		cumVol += volume[i]
		if cumVol > 0 {
			out[i] = cumPV / cumVol
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
