package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/anrvee/optionflow/internal/config"
	"github.com/anrvee/optionflow/internal/market"
	"github.com/anrvee/optionflow/internal/observ"
)

// csv column order, matching the ClickHouse table
var csvHeader = []string{
	"ts", "instrument", "strike", "option_type", "expiry_type", "expiry_code",
	"open", "high", "low", "close", "volume", "oi", "iv", "spot",
}

// LoadCSV reads one instrument's bars from a fixture file. Rows for other
// instruments are skipped; rows must already be in timestamp order. The
// header row is optional.
func LoadCSV(path string, inst config.Instrument) (*market.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(csvHeader)
	idx := market.NewIndex(inst.Name, inst.StrikeStep)
	n, line, dropped := 0, 0, 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			// malformed rows are dropped, leaving a data gap for that minute
			if errors.Is(err, csv.ErrFieldCount) {
				dropped++
				continue
			}
			return nil, fmt.Errorf("csv %s: %w", path, err)
		}
		if line == 1 && rec[0] == "ts" {
			continue
		}
		if rec[1] != inst.Name {
			continue
		}
		bar, err := parseRow(rec)
		if err != nil {
			observ.Log("bar_dropped", map[string]any{"source": "csv", "line": line, "err": err.Error()})
			dropped++
			continue
		}
		idx.Add(bar)
		n++
	}
	observ.Log("bars_loaded", map[string]any{"instrument": inst.Name, "rows": n, "dropped": dropped, "source": "csv"})
	return idx, nil
}

func parseRow(rec []string) (market.Bar, error) {
	ts, err := time.Parse(time.RFC3339, rec[0])
	if err != nil {
		return market.Bar{}, fmt.Errorf("ts: %w", err)
	}
	nums := make([]float64, 0, 9)
	for _, i := range []int{2, 6, 7, 8, 9, 10, 11, 12, 13} {
		v, err := strconv.ParseFloat(rec[i], 64)
		if err != nil {
			return market.Bar{}, fmt.Errorf("column %s: %w", csvHeader[i], err)
		}
		nums = append(nums, v)
	}
	code, err := strconv.Atoi(rec[5])
	if err != nil {
		return market.Bar{}, fmt.Errorf("expiry_code: %w", err)
	}
	ot := market.OptionType(rec[3])
	if ot != market.CE && ot != market.PE {
		return market.Bar{}, fmt.Errorf("option_type: %q", rec[3])
	}
	et := market.ExpiryType(rec[4])
	if et != market.Week && et != market.Month {
		return market.Bar{}, fmt.Errorf("expiry_type: %q", rec[4])
	}
	return market.Bar{
		TS:         ts.UTC(),
		Instrument: rec[1],
		Key: market.ContractKey{
			Strike: nums[0], OptionType: ot, ExpiryType: et, ExpiryCode: code,
		},
		Open: nums[1], High: nums[2], Low: nums[3], Close: nums[4],
		Volume: nums[5], OpenInterest: nums[6], IV: nums[7], Spot: nums[8],
	}, nil
}
