package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/anrvee/optionflow/internal/config"
	"github.com/anrvee/optionflow/internal/lifecycle"
	"github.com/anrvee/optionflow/internal/market"
	"github.com/anrvee/optionflow/internal/observ"
	"github.com/anrvee/optionflow/internal/risk"
)

// Replay folds a historical data set through the core in timestamp order.
// The fold is deterministic: the same data and strategy always produce
// the same trade sequence.
type Replay struct {
	cfg     config.Strategy
	core    *Core
	indexes map[string]*market.Index
}

// Summary aggregates one replay run.
type Summary struct {
	Trades      int            `json:"trades"`
	Wins        int            `json:"wins"`
	Losses      int            `json:"losses"`
	TotalPnL    float64        `json:"total_pnl"`
	MaxDrawdown float64        `json:"max_drawdown"`
	ByReason    map[string]int `json:"by_reason"`
}

func NewReplay(cfg config.Strategy, gate *risk.Manager, sink lifecycle.Sink, indexes map[string]*market.Index) (*Replay, error) {
	for _, inst := range cfg.Instruments {
		if indexes[inst.Name] == nil {
			return nil, fmt.Errorf("replay: no data for instrument %s", inst.Name)
		}
	}
	return &Replay{cfg: cfg, core: NewCore(cfg, gate, sink), indexes: indexes}, nil
}

// Core exposes the underlying core, for tests.
func (r *Replay) Core() *Core { return r.core }

func (r *Replay) inRange(ts time.Time) bool {
	day := ts.Format("2006-01-02")
	if r.cfg.BacktestStart != "" && day < r.cfg.BacktestStart {
		return false
	}
	if r.cfg.BacktestEnd != "" && day > r.cfg.BacktestEnd {
		return false
	}
	return true
}

// Run replays every minute of every instrument inside the backtest range
// and returns the run summary. Instruments advance in config order inside
// each minute; contracts advance in lexical key order inside each
// instrument.
func (r *Replay) Run() Summary {
	// merge per-instrument clocks into one
	seen := map[int64]time.Time{}
	for _, inst := range r.cfg.Instruments {
		for _, ts := range r.indexes[inst.Name].Minutes() {
			if r.inRange(ts) {
				seen[ts.Unix()/60] = ts
			}
		}
	}
	minutes := make([]time.Time, 0, len(seen))
	for _, ts := range seen {
		minutes = append(minutes, ts)
	}
	sort.Slice(minutes, func(i, j int) bool { return minutes[i].Before(minutes[j]) })

	var last time.Time
	halted := false
	for _, ts := range minutes {
		for _, inst := range r.cfg.Instruments {
			idx := r.indexes[inst.Name]
			bars := idx.BarsAt(ts)
			if len(bars) == 0 {
				continue
			}
			spot, _ := idx.SpotAt(ts)
			r.core.OnMinute(inst.Name, ts, spot, bars)
		}
		last = ts
		if r.core.gate.Killed() {
			// daily-loss breach: flatten and stop the fold
			r.core.Kill(ts, r.core.gate.KillReason())
			observ.Log("replay_halted", map[string]any{
				"at": ts.Format(time.RFC3339), "reason": r.core.gate.KillReason(),
			})
			halted = true
			break
		}
	}
	if !halted && !last.IsZero() {
		r.core.Finish(last)
	}

	s := summarize(r.core.Manager().Closed())
	observ.Log("replay_done", map[string]any{
		"minutes": len(minutes), "trades": s.Trades, "pnl": s.TotalPnL,
	})
	return s
}

func summarize(trades []*lifecycle.Trade) Summary {
	s := Summary{ByReason: map[string]int{}}
	var equity, peak float64
	for _, t := range trades {
		s.Trades++
		s.TotalPnL += t.PnL
		s.ByReason[t.ExitReason]++
		if t.PnL >= 0 {
			s.Wins++
		} else {
			s.Losses++
		}
		equity += t.PnL
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > s.MaxDrawdown {
			s.MaxDrawdown = dd
		}
	}
	return s
}
