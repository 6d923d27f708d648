package lifecycle

import (
	"math"
	"time"

	"github.com/anrvee/optionflow/internal/config"
	"github.com/anrvee/optionflow/internal/market"
)

// Exit reasons, in priority order when several trigger on one bar.
const (
	ExitStopLoss = "stop_loss"
	ExitTarget   = "target"
	ExitEndOfDay = "end_of_day"
	ExitKill     = "kill_switch"
)

// Part is one filled entry level.
type Part struct {
	Level      int       `json:"level"`
	Price      float64   `json:"price"`
	CapitalPct float64   `json:"capital_pct"`
	Quantity   int       `json:"quantity"`
	TS         time.Time `json:"ts"`
}

// Trade is one position from first fill to exit. Entry may accrete across
// parts; the stop and target track the capital-weighted average entry.
type Trade struct {
	ID         string             `json:"id"`
	Instrument string             `json:"instrument"`
	Key        market.ContractKey `json:"contract"`
	Direction  config.Direction   `json:"direction"`
	Reason     string             `json:"signal_reason"`

	Parts    []Part  `json:"parts"`
	AvgEntry float64 `json:"avg_entry"`
	Quantity int     `json:"quantity"`

	StopPrice   float64 `json:"stop_price"`
	TargetPrice float64 `json:"target_price"`

	ExitTS     time.Time `json:"exit_ts,omitempty"`
	ExitPrice  float64   `json:"exit_price,omitempty"`
	ExitReason string    `json:"exit_reason,omitempty"`
	PnL        float64   `json:"pnl"`
}

// lotQuantity sizes one part: whole lots bought with the part's capital
// share at the fill price. Can be zero when the allocation does not cover
// one lot; the part is still recorded so the ladder stays consistent.
func lotQuantity(capital, capitalPct, price float64, lotSize int) int {
	if price <= 0 || lotSize <= 0 {
		return 0
	}
	alloc := capital * capitalPct / 100
	lots := int(math.Floor(alloc / (price * float64(lotSize))))
	if lots < 0 {
		lots = 0
	}
	return lots * lotSize
}

// AddPart records a fill and reprices the stop and target off the new
// capital-weighted average entry.
func (t *Trade) AddPart(p Part, slPct, tpPct float64) {
	t.Parts = append(t.Parts, p)

	var priceW, wSum float64
	t.Quantity = 0
	for _, part := range t.Parts {
		priceW += part.Price * part.CapitalPct
		wSum += part.CapitalPct
		t.Quantity += part.Quantity
	}
	if wSum > 0 {
		t.AvgEntry = priceW / wSum
	}

	if t.Direction == config.Sell {
		t.StopPrice = t.AvgEntry * (1 + slPct/100)
		t.TargetPrice = t.AvgEntry * (1 - tpPct/100)
	} else {
		t.StopPrice = t.AvgEntry * (1 - slPct/100)
		t.TargetPrice = t.AvgEntry * (1 + tpPct/100)
	}
}

// CheckExitBar tests one bar's range against the stop and target. The
// stop wins when both trigger on the same bar: intra-bar path is unknown,
// so the adverse outcome is assumed.
func (t *Trade) CheckExitBar(high, low float64) (price float64, reason string, hit bool) {
	if t.Direction == config.Sell {
		if high >= t.StopPrice {
			return t.StopPrice, ExitStopLoss, true
		}
		if low <= t.TargetPrice {
			return t.TargetPrice, ExitTarget, true
		}
		return 0, "", false
	}
	if low <= t.StopPrice {
		return t.StopPrice, ExitStopLoss, true
	}
	if high >= t.TargetPrice {
		return t.TargetPrice, ExitTarget, true
	}
	return 0, "", false
}

// CheckExitTick tests the path between two prints, stop first.
func (t *Trade) CheckExitTick(prevLTP, currLTP float64) (price float64, reason string, hit bool) {
	lo := math.Min(prevLTP, currLTP)
	hi := math.Max(prevLTP, currLTP)
	if lo <= t.StopPrice && t.StopPrice <= hi {
		return t.StopPrice, ExitStopLoss, true
	}
	if lo <= t.TargetPrice && t.TargetPrice <= hi {
		return t.TargetPrice, ExitTarget, true
	}
	return 0, "", false
}

// Close settles the trade at the given price. P&L is in money terms over
// the lot-sized quantity.
func (t *Trade) Close(ts time.Time, price float64, reason string) {
	t.ExitTS = ts
	t.ExitPrice = price
	t.ExitReason = reason
	if t.Direction == config.Sell {
		t.PnL = (t.AvgEntry - price) * float64(t.Quantity)
	} else {
		t.PnL = (price - t.AvgEntry) * float64(t.Quantity)
	}
}
