package entry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anrvee/optionflow/internal/config"
	"github.com/anrvee/optionflow/internal/indicator"
	"github.com/anrvee/optionflow/internal/signal"
)

func staggeredCfg() config.Entry {
	return config.Entry{
		Type: config.EntryStaggered,
		Levels: []config.EntryLevel{
			{OffsetPct: 5, CapitalPct: 33.33},
			{OffsetPct: 10, CapitalPct: 33.33},
			{OffsetPct: 15, CapitalPct: 34},
		},
	}
}

func TestStaggeredLadderPricing(t *testing.T) {
	sell := NewPlan(staggeredCfg(), config.Sell, 100)
	require.Equal(t, []float64{105, 110, 115},
		[]float64{sell.Levels[0].Price, sell.Levels[1].Price, sell.Levels[2].Price})

	buy := NewPlan(staggeredCfg(), config.Buy, 100)
	require.Equal(t, []float64{95, 90, 85},
		[]float64{buy.Levels[0].Price, buy.Levels[1].Price, buy.Levels[2].Price})
}

func TestStaggeredLevelFills(t *testing.T) {
	p := NewPlan(staggeredCfg(), config.Sell, 100)

	// bar spans both first levels; both fill at their exact prices
	fills := p.CheckBar(112, 101)
	require.Len(t, fills, 2)
	require.Equal(t, 0, fills[0].Level)
	require.Equal(t, 105.0, fills[0].Price)
	require.Equal(t, 1, fills[1].Level)
	require.Equal(t, 110.0, fills[1].Price)
	require.False(t, p.Done())

	// same bar range again: nothing new until 115 trades
	require.Empty(t, p.CheckBar(112, 101))

	fills = p.CheckBar(116, 111)
	require.Len(t, fills, 1)
	require.Equal(t, 2, fills[0].Level)
	require.True(t, p.Done())
}

func TestStaggeredGapOverLevel(t *testing.T) {
	p := NewPlan(staggeredCfg(), config.Sell, 100)

	// bar gaps over 105: only 110 is inside the range, 105 stays open
	fills := p.CheckBar(112, 108)
	require.Len(t, fills, 1)
	require.Equal(t, 1, fills[0].Level)
	require.Equal(t, 110.0, fills[0].Price)

	// later pullback fills the skipped level
	fills = p.CheckBar(106, 103)
	require.Len(t, fills, 1)
	require.Equal(t, 0, fills[0].Level)
	require.Equal(t, 105.0, fills[0].Price)
}

func TestDirectFillsOnSignalBar(t *testing.T) {
	p := NewPlan(config.Entry{Type: config.EntryDirect}, config.Sell, 100)
	fills := p.CheckBar(100, 100)
	require.Len(t, fills, 1)
	require.Equal(t, 100.0, fills[0].Price)
	require.Equal(t, 100.0, fills[0].CapitalPct)
	require.True(t, p.Done())
}

func TestTickFillInclusiveRange(t *testing.T) {
	p := NewPlan(staggeredCfg(), config.Sell, 100)

	require.Empty(t, p.CheckTick(100, 104.99))

	fills := p.CheckTick(104, 106)
	require.Len(t, fills, 1)
	require.Equal(t, 105.0, fills[0].Price)

	// exact touch fills
	fills = p.CheckTick(110, 109)
	require.Len(t, fills, 1)
	require.Equal(t, 110.0, fills[0].Price)
}

func TestIndicatorLevelTracksTarget(t *testing.T) {
	cfg := config.Entry{
		Type:      config.EntryIndicatorLevel,
		Indicator: "st_value",
		ValidWhile: []config.Condition{
			{Left: "st_direction", Compare: "below", Right: "0"},
		},
	}
	p := NewPlan(cfg, config.Sell, 100)

	// no target yet: nothing can fill
	require.Empty(t, p.CheckBar(200, 1))
	require.Empty(t, p.CheckTick(1, 200))

	p.UpdateTarget(120)
	require.Empty(t, p.CheckBar(119, 110))
	fills := p.CheckBar(121, 110)
	require.Len(t, fills, 1)
	require.Equal(t, 120.0, fills[0].Price)

	// NaN clears the target again
	p2 := NewPlan(cfg, config.Sell, 100)
	p2.UpdateTarget(120)
	p2.UpdateTarget(math.NaN())
	require.Empty(t, p2.CheckBar(200, 1))
}

func TestGuardEvaluation(t *testing.T) {
	cfg := config.Entry{
		Type:      config.EntryIndicatorLevel,
		Indicator: "st_value",
		ValidWhile: []config.Condition{
			{Left: "st_direction", Compare: "below", Right: "0"},
		},
	}
	p := NewPlan(cfg, config.Sell, 100)

	bullish := signal.Snapshot{Values: indicator.Values{"st_direction": -1}}
	bearish := signal.Snapshot{Values: indicator.Values{"st_direction": 1}}
	require.True(t, p.GuardOK(bullish, bullish))
	require.False(t, p.GuardOK(bearish, bullish))

	// plans without a guard are always valid
	free := NewPlan(staggeredCfg(), config.Sell, 100)
	require.True(t, free.GuardOK(bearish, bearish))
}
