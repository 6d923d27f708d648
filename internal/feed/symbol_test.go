package feed

import (
	"testing"

	"github.com/anrvee/optionflow/internal/market"
)

func TestSymbolRoundTrip(t *testing.T) {
	cases := []market.ContractKey{
		{Strike: 24000, OptionType: market.CE, ExpiryType: market.Week, ExpiryCode: 1},
		{Strike: 51100, OptionType: market.PE, ExpiryType: market.Month, ExpiryCode: 2},
	}
	for _, key := range cases {
		sym := Symbol("NIFTY", key)
		inst, got, spot, err := ParseSymbol(sym)
		if err != nil {
			t.Fatalf("ParseSymbol(%q): %v", sym, err)
		}
		if spot {
			t.Fatalf("%q parsed as spot", sym)
		}
		if inst != "NIFTY" || got != key {
			t.Errorf("round trip %q: got %s %+v", sym, inst, got)
		}
	}
}

func TestSpotSymbol(t *testing.T) {
	inst, _, spot, err := ParseSymbol(SpotSymbol("BANKNIFTY"))
	if err != nil || !spot || inst != "BANKNIFTY" {
		t.Errorf("got %s %v %v", inst, spot, err)
	}
}

func TestParseSymbolRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "NIFTY", "NIFTY:abc:CE:W1", "NIFTY:24000:XX:W1", "NIFTY:24000:CE:Q1", "NIFTY:24000:CE:Wx"} {
		if _, _, _, err := ParseSymbol(s); err == nil {
			t.Errorf("ParseSymbol(%q) accepted garbage", s)
		}
	}
}
