// Package engine drives the strategy. Core holds the logic shared by the
// replay and live drivers: each completed minute flows through the same
// resolve-ATM, evaluate-signal, advance-lifecycle sequence, so a backtest
// and a forward run of the same strategy diverge only in where bars come
// from.
package engine

import (
	"math"
	"sort"
	"time"

	"github.com/anrvee/optionflow/internal/config"
	"github.com/anrvee/optionflow/internal/indicator"
	"github.com/anrvee/optionflow/internal/lifecycle"
	"github.com/anrvee/optionflow/internal/market"
	"github.com/anrvee/optionflow/internal/observ"
	"github.com/anrvee/optionflow/internal/risk"
	"github.com/anrvee/optionflow/internal/signal"
)

// Core folds market events into lifecycle transitions. It is single
// threaded: the live driver serializes feed events into it through one
// goroutine, the replay driver calls it from its loop.
type Core struct {
	cfg      config.Strategy
	startMin int
	endMin   int

	gate *risk.Manager
	mgr  *lifecycle.Manager

	adapters map[string]*indicator.Adapter
	steps    map[string]float64
	expiry   map[string]time.Weekday

	lastClose map[lifecycle.TrackID]float64
	prevTick  map[market.ContractKey]float64
	day       string
}

func NewCore(cfg config.Strategy, gate *risk.Manager, sink lifecycle.Sink) *Core {
	startMin, _ := config.ParseClock(cfg.TradingStart)
	endMin, _ := config.ParseClock(cfg.TradingEnd)
	c := &Core{
		cfg:       cfg,
		startMin:  startMin,
		endMin:    endMin,
		gate:      gate,
		mgr:       lifecycle.NewManager(cfg, gate, sink),
		adapters:  map[string]*indicator.Adapter{},
		steps:     map[string]float64{},
		expiry:    map[string]time.Weekday{},
		lastClose: map[lifecycle.TrackID]float64{},
		prevTick:  map[market.ContractKey]float64{},
	}
	for _, inst := range cfg.Instruments {
		c.adapters[inst.Name] = indicator.NewAdapter(cfg.Indicators)
		c.steps[inst.Name] = inst.StrikeStep
		wd, _ := config.ParseWeekday(inst.ExpiryWeekday)
		c.expiry[inst.Name] = wd
	}
	return c
}

// Manager exposes the lifecycle state, for drivers and tests.
func (c *Core) Manager() *lifecycle.Manager { return c.mgr }

func minuteOf(ts time.Time) int { return ts.Hour()*60 + ts.Minute() }

// OnMinute processes one completed minute for one instrument: the spot
// print (zero when unknown) and every contract bar closed in it. Bars
// always extend indicator history; signals only fire inside the trading
// window.
func (c *Core) OnMinute(inst string, ts time.Time, spot float64, bars map[market.ContractKey]market.Bar) {
	c.rollover(ts)

	ad := c.adapters[inst]
	if ad == nil {
		return
	}
	if spot > 0 {
		ad.AppendSpot(ts, spot)
	}
	keys := make([]market.ContractKey, 0, len(bars))
	for k := range bars {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	for _, k := range keys {
		ad.AppendBar(bars[k])
	}

	min := minuteOf(ts)
	inWindow := min >= c.startMin && min < c.endMin
	eod := min >= c.endMin

	for _, ot := range market.OptionTypes {
		id := lifecycle.TrackID{Instrument: inst, OptionType: ot}
		tr := c.mgr.Track(id)
		if tr == nil {
			continue
		}

		busy := tr.State == lifecycle.StateWatching || tr.State == lifecycle.StateActive
		var key market.ContractKey
		if busy {
			key = tr.Key
		} else {
			if spot <= 0 {
				continue
			}
			key = market.ATMFromSpot(spot, c.steps[inst], ot)
		}

		bar, ok := bars[key]
		if !ok {
			if !busy {
				observ.IncCounter("atm_contract_missing_total", map[string]string{
					"instrument": inst, "option_type": string(ot),
				})
			}
			continue
		}
		c.lastClose[id] = bar.Close

		currVals, prevVals := ad.Snapshot(key)
		_, prevClose, havePrev := ad.LastCloses(key)
		curr := signal.Snapshot{Values: currVals, Close: bar.Close}
		if !havePrev {
			// no previous bar: crossing comparators must stay false
			prevClose = math.NaN()
		}
		prev := signal.Snapshot{Values: prevVals, Close: prevClose}

		if !busy && inWindow {
			if fired, reason := signal.Evaluate(c.cfg.SignalConditions, c.cfg.SignalLogic, curr, prev); fired {
				c.mgr.Signal(id, key, bar.TS, bar.Close, reason, curr)
				continue // entry work starts on the next bar
			}
		}
		if busy {
			c.mgr.OnBar(id, bar, curr, prev, eod)
		}
	}

	if eod {
		// a working contract with no bar past the cutoff still exits at
		// the cutoff, at its last traded close
		cut := c.cutoffOn(ts)
		for _, ot := range market.OptionTypes {
			id := lifecycle.TrackID{Instrument: inst, OptionType: ot}
			c.mgr.ForceExit(id, cut, lifecycle.ExitEndOfDay, c.priceOf)
		}
	}
}

// cutoffOn returns the trading-end timestamp on ts's date.
func (c *Core) cutoffOn(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), c.endMin/60, c.endMin%60, 0, 0, ts.Location())
}

// Warmup seeds indicator history from fetched bars without running any
// lifecycle logic. Bars must arrive in timestamp order per contract.
func (c *Core) Warmup(inst string, bars []market.Bar) {
	ad := c.adapters[inst]
	if ad == nil {
		return
	}
	for _, b := range bars {
		ad.AppendBar(b)
	}
}

// OnTick runs the intra-minute fill and exit checks for the track working
// this contract. The first print of a contract only primes the previous
// price.
func (c *Core) OnTick(t market.Tick) {
	for _, ot := range market.OptionTypes {
		id := lifecycle.TrackID{Instrument: t.Instrument, OptionType: ot}
		tr := c.mgr.Track(id)
		if tr == nil || tr.Key != t.Key {
			continue
		}
		if tr.State != lifecycle.StateWatching && tr.State != lifecycle.StateActive {
			continue
		}
		prev, ok := c.prevTick[t.Key]
		if ok {
			c.mgr.OnTick(id, t.TS, prev, t.Price)
		}
	}
	c.prevTick[t.Key] = t.Price
}

// Kill trips the risk switch and flattens everything at the last known
// prices.
func (c *Core) Kill(ts time.Time, reason string) {
	c.gate.Kill(reason)
	c.mgr.ForceExitAll(ts, lifecycle.ExitKill, c.priceOf)
}

// Finish flattens whatever is still open at the end of a run, for days
// whose data stops before the trading end. Exits are stamped at the
// day's cutoff, at the last traded close.
func (c *Core) Finish(ts time.Time) {
	c.mgr.ForceExitAll(c.cutoffOn(ts), lifecycle.ExitEndOfDay, c.priceOf)
}

func (c *Core) priceOf(id lifecycle.TrackID) (float64, bool) {
	p, ok := c.lastClose[id]
	return p, ok
}

func (c *Core) rollover(ts time.Time) {
	day := ts.Format("2006-01-02")
	if c.day == day {
		return
	}
	if c.day != "" {
		// data gap past the previous day's cutoff: the sweep never ran,
		// so close stragglers at that cutoff before the reset
		prev, _ := time.Parse("2006-01-02", c.day)
		c.mgr.ForceExitAll(c.cutoffOn(prev), lifecycle.ExitEndOfDay, c.priceOf)
		c.mgr.StartDay()
		c.gate.StartDay()
		c.prevTick = map[market.ContractKey]float64{}
		for name, ad := range c.adapters {
			if prev.Weekday() == c.expiry[name] {
				// the nearest-weekly keys name new contracts now; their
				// series restart from scratch
				ad.DropAllOptions()
				observ.Log("expiry_rollover", map[string]any{"instrument": name, "expired": c.day})
			}
		}
		observ.Log("session_rollover", map[string]any{"from": c.day, "to": day})
	}
	c.day = day
}
