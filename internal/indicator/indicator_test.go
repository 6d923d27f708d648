package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/anrvee/optionflow/internal/config"
	"github.com/anrvee/optionflow/internal/market"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestRSIWilderSmoothing(t *testing.T) {
	close := []float64{100, 102, 101, 104, 103, 106}
	got := RSI(close, 3)

	if len(got) != len(close) {
		t.Fatalf("len = %d, want %d", len(got), len(close))
	}
	for i := 0; i < 3; i++ {
		if !math.IsNaN(got[i]) {
			t.Errorf("got[%d] = %v, want NaN during warm-up", i, got[i])
		}
	}
	want := []float64{83.33, 66.67, 82.46}
	for i, w := range want {
		if !almostEqual(got[i+3], w, 0.01) {
			t.Errorf("got[%d] = %.4f, want %.2f", i+3, got[i+3], w)
		}
	}
}

func TestRSIAllGains(t *testing.T) {
	got := RSI([]float64{1, 2, 3, 4, 5, 6}, 3)
	if got[3] != 100 {
		t.Errorf("monotone rise should pin RSI at 100, got %v", got[3])
	}
}

func TestSMAWarmup(t *testing.T) {
	got := SMA([]float64{2, 4, 6, 8}, 3)
	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Error("first period-1 values must be NaN")
	}
	if got[2] != 4 || got[3] != 6 {
		t.Errorf("got %v %v, want 4 6", got[2], got[3])
	}
}

func TestEMASeededWithSMA(t *testing.T) {
	close := []float64{10, 20, 30, 40}
	got := EMA(close, 3)
	if !math.IsNaN(got[1]) {
		t.Error("EMA defined before seed index")
	}
	if got[2] != 20 {
		t.Errorf("seed = %v, want SMA 20", got[2])
	}
	// alpha = 0.5: 40*0.5 + 20*0.5
	if got[3] != 30 {
		t.Errorf("got[3] = %v, want 30", got[3])
	}
}

func TestMACDWarmupMask(t *testing.T) {
	close := make([]float64, 40)
	for i := range close {
		close[i] = 100 + float64(i)
	}
	macd, sig, hist := MACD(close, 12, 26, 9)
	for i := 0; i < 25; i++ {
		if !math.IsNaN(macd[i]) {
			t.Fatalf("macd[%d] defined before slow window", i)
		}
	}
	if math.IsNaN(macd[25]) {
		t.Error("macd undefined at first full slow window")
	}
	for i := 0; i < 33; i++ {
		if !math.IsNaN(sig[i]) || !math.IsNaN(hist[i]) {
			t.Fatalf("signal[%d] defined before signal window", i)
		}
	}
	if math.IsNaN(sig[33]) || math.IsNaN(hist[33]) {
		t.Error("signal undefined once both windows filled")
	}
}

func TestBollingerBands(t *testing.T) {
	close := []float64{2, 4, 6}
	upper, middle, lower := Bollinger(close, 3, 2)
	if !math.IsNaN(upper[1]) {
		t.Error("bands defined during warm-up")
	}
	if middle[2] != 4 {
		t.Errorf("middle = %v, want 4", middle[2])
	}
	// sample stddev of {2,4,6} is 2
	if !almostEqual(upper[2], 8, 1e-9) || !almostEqual(lower[2], 0, 1e-9) {
		t.Errorf("bands = %v %v, want 8 0", upper[2], lower[2])
	}
}

func TestVWAPResetsAtDayBoundary(t *testing.T) {
	d1 := time.Date(2026, 8, 3, 9, 30, 0, 0, time.UTC)
	d2 := time.Date(2026, 8, 4, 9, 30, 0, 0, time.UTC)
	ts := []time.Time{d1, d1.Add(time.Minute), d2}
	close := []float64{100, 200, 50}
	volume := []float64{10, 10, 10}
	got := VWAP(ts, close, volume)
	if got[1] != 150 {
		t.Errorf("intraday vwap = %v, want 150", got[1])
	}
	if got[2] != 50 {
		t.Errorf("next-day vwap = %v, want fresh 50", got[2])
	}
}

func TestSuperTrendFlipsDirection(t *testing.T) {
	n := 30
	close := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100 + float64(i)*2
		if i >= 20 {
			base = 140 - float64(i-20)*8
		}
		close[i] = base
		high[i] = base + 1
		low[i] = base - 1
	}
	_, dir := SuperTrend(close, high, low, 3, 7)
	if dir[15] != TrendBullish {
		t.Errorf("dir[15] = %v, want bullish during the rally", dir[15])
	}
	flipped := false
	for i := 21; i < n; i++ {
		if dir[i] == TrendBearish {
			flipped = true
			break
		}
	}
	if !flipped {
		t.Error("direction never flipped bearish on the collapse")
	}
}

func TestAdapterSnapshotScopes(t *testing.T) {
	cfgs := []config.Indicator{
		{Type: "SMA", Name: "opt_sma", Period: 2, PriceSource: "option"},
		{Type: "SMA", Name: "spot_sma", Period: 2, PriceSource: "spot"},
	}
	ad := NewAdapter(cfgs)
	key := market.ContractKey{Strike: 24000, OptionType: market.CE, ExpiryType: market.Week, ExpiryCode: 1}
	other := market.ContractKey{Strike: 24100, OptionType: market.CE, ExpiryType: market.Week, ExpiryCode: 1}

	ts := time.Date(2026, 8, 3, 9, 30, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ad.AppendBar(market.Bar{
			TS: ts.Add(time.Duration(i) * time.Minute), Key: key,
			Close: 100 + float64(i)*10, High: 101, Low: 99, Spot: 24000 + float64(i),
		})
	}

	curr, prev := ad.Snapshot(key)
	if got := curr["opt_sma"]; got != 115 {
		t.Errorf("curr opt_sma = %v, want 115", got)
	}
	if got := prev["opt_sma"]; got != 105 {
		t.Errorf("prev opt_sma = %v, want 105", got)
	}
	if got := curr["spot_sma"]; got != 24001.5 {
		t.Errorf("curr spot_sma = %v, want 24001.5", got)
	}

	// other contract shares spot scope but has no option series
	curr2, _ := ad.Snapshot(other)
	if _, ok := curr2["opt_sma"]; ok {
		t.Error("option output leaked across contracts")
	}
	if got := curr2["spot_sma"]; got != 24001.5 {
		t.Errorf("spot output missing for other contract: %v", got)
	}

	ad.Drop(key)
	if ad.HistoryLen(key) != 0 {
		t.Error("Drop left option history behind")
	}
	curr3, _ := ad.Snapshot(key)
	if got := curr3["spot_sma"]; got != 24001.5 {
		t.Error("spot scope must survive contract drops")
	}
}
