package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anrvee/optionflow/internal/config"
	"github.com/anrvee/optionflow/internal/market"
)

const fixture = `ts,instrument,strike,option_type,expiry_type,expiry_code,open,high,low,close,volume,oi,iv,spot
2026-08-03T09:30:00Z,NIFTY,24000,CE,WEEK,1,101,103,100,102,1500,32000,14.2,24010
2026-08-03T09:30:00Z,NIFTY,24000,PE,WEEK,1,95,96,93,94,1200,28000,15.1,24010
2026-08-03T09:31:00Z,NIFTY,24000,CE,WEEK,1,102,104,101,103,900,32100,14.1,24015
2026-08-03T09:30:00Z,BANKNIFTY,51000,CE,WEEK,1,210,212,208,211,400,9000,16.0,51020
`

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))
	return path
}

func TestLoadCSV(t *testing.T) {
	inst := config.Instrument{Name: "NIFTY", LotSize: 75, StrikeStep: 50}
	idx, err := LoadCSV(writeFixture(t), inst)
	require.NoError(t, err)

	ce := market.ContractKey{Strike: 24000, OptionType: market.CE, ExpiryType: market.Week, ExpiryCode: 1}
	bars := idx.Bars(ce)
	require.Len(t, bars, 2, "two CE minutes for NIFTY, BANKNIFTY row skipped")
	require.Equal(t, 102.0, bars[0].Close)
	require.Equal(t, 24010.0, bars[0].Spot)
	require.Equal(t, 32000.0, bars[0].OpenInterest)

	pe := market.ContractKey{Strike: 24000, OptionType: market.PE, ExpiryType: market.Week, ExpiryCode: 1}
	require.True(t, idx.HasContract(pe))

	spot, ok := idx.SpotAt(bars[0].TS)
	require.True(t, ok)
	require.Equal(t, 24010.0, spot)
}

func TestLoadCSVDropsBadRows(t *testing.T) {
	bad := "2026-08-03T09:30:00Z,NIFTY,24000,XX,WEEK,1,1,1,1,1,1,1,1,1\n" +
		"2026-08-03T09:31:00Z,NIFTY,short,row\n" +
		"2026-08-03T09:32:00Z,NIFTY,24000,CE,WEEK,1,101,103,100,102,1500,32000,14.2,24010\n"
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))

	idx, err := LoadCSV(path, config.Instrument{Name: "NIFTY", StrikeStep: 50})
	require.NoError(t, err)

	ce := market.ContractKey{Strike: 24000, OptionType: market.CE, ExpiryType: market.Week, ExpiryCode: 1}
	require.Len(t, idx.Bars(ce), 1, "malformed rows dropped, good row kept")
}
