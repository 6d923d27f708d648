package market

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 8, 3, 9, 30, 0, 0, time.UTC)

func key(strike float64, ot OptionType) ContractKey {
	return ContractKey{Strike: strike, OptionType: ot, ExpiryType: Week, ExpiryCode: 1}
}

func TestRoundToStepHalfUp(t *testing.T) {
	cases := []struct {
		price, step, want float64
	}{
		{24024, 50, 24000},
		{24025, 50, 24050}, // exact midpoint rounds up
		{24026, 50, 24050},
		{24075, 50, 24100},
		{51049, 100, 51000},
		{51050, 100, 51100},
	}
	for _, tc := range cases {
		if got := RoundToStep(tc.price, tc.step); got != tc.want {
			t.Errorf("RoundToStep(%v, %v) = %v, want %v", tc.price, tc.step, got, tc.want)
		}
	}
}

func TestResolveATM(t *testing.T) {
	idx := NewIndex("NIFTY", 50)
	idx.Add(Bar{TS: t0, Key: key(24050, CE), Close: 120, Spot: 24030})

	got, err := idx.ResolveATM(t0, CE)
	if err != nil {
		t.Fatalf("ResolveATM: %v", err)
	}
	if got.Strike != 24050 || got.ExpiryType != Week || got.ExpiryCode != 1 {
		t.Errorf("got %+v", got)
	}

	// PE contract at that strike was never ingested
	if _, err := idx.ResolveATM(t0, PE); !errors.Is(err, ErrNoContract) {
		t.Errorf("want ErrNoContract for missing side, got %v", err)
	}

	// minute with no spot at all
	if _, err := idx.ResolveATM(t0.Add(time.Hour), CE); !errors.Is(err, ErrNoContract) {
		t.Errorf("want ErrNoContract without spot, got %v", err)
	}
}

func TestSpotDedupPerMinute(t *testing.T) {
	idx := NewIndex("NIFTY", 50)
	idx.Add(Bar{TS: t0, Key: key(24000, CE), Close: 100, Spot: 24010})
	idx.Add(Bar{TS: t0, Key: key(24000, PE), Close: 90, Spot: 24011}) // same minute, second spot ignored

	spot, ok := idx.SpotAt(t0)
	if !ok || spot != 24010 {
		t.Errorf("spot = %v %v, want first value 24010", spot, ok)
	}
}

func TestBarsAtAndMinutes(t *testing.T) {
	idx := NewIndex("NIFTY", 50)
	idx.Add(Bar{TS: t0, Key: key(24000, CE), Close: 100, Spot: 24000})
	idx.Add(Bar{TS: t0, Key: key(24000, PE), Close: 95, Spot: 24000})
	idx.Add(Bar{TS: t0.Add(time.Minute), Key: key(24000, CE), Close: 101, Spot: 24001})

	bars := idx.BarsAt(t0)
	if len(bars) != 2 {
		t.Fatalf("BarsAt returned %d bars, want 2", len(bars))
	}
	if bars[key(24000, CE)].Close != 100 {
		t.Error("wrong CE bar")
	}

	mins := idx.Minutes()
	if len(mins) != 2 || !mins[0].Equal(t0) || !mins[1].Equal(t0.Add(time.Minute)) {
		t.Errorf("Minutes = %v", mins)
	}
}

func TestKeyStringLexicalOrder(t *testing.T) {
	a := key(9000, CE)
	b := key(24000, CE)
	if !(a.String() < b.String()) {
		t.Errorf("zero-padded strikes must sort numerically: %q vs %q", a, b)
	}
}
