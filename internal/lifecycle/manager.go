// Package lifecycle runs the trade state machine. Each (instrument,
// option type) pair is an independent track moving through
// idle -> watching -> active -> exited; the same Manager serves the
// backtest fold and the live loop, so every transition is driven by
// explicit events and timestamps, never the wall clock.
package lifecycle

import (
	"fmt"
	"sort"
	"time"

	"github.com/anrvee/optionflow/internal/config"
	"github.com/anrvee/optionflow/internal/entry"
	"github.com/anrvee/optionflow/internal/market"
	"github.com/anrvee/optionflow/internal/observ"
	"github.com/anrvee/optionflow/internal/signal"
)

// State is a track's position in the machine.
type State string

const (
	StateIdle     State = "idle"
	StateWatching State = "watching"
	StateActive   State = "active"
	StateExited   State = "exited"
)

// TrackID identifies one track.
type TrackID struct {
	Instrument string
	OptionType market.OptionType
}

func (id TrackID) String() string {
	return id.Instrument + "/" + string(id.OptionType)
}

// Track is the mutable state of one (instrument, option type) pair.
type Track struct {
	ID    TrackID
	State State
	Key   market.ContractKey
	Plan  *entry.Plan
	Trade *Trade
}

// Gate is the risk check consulted before a track starts watching and
// told about every realized result.
type Gate interface {
	CanEnter() (bool, string)
	RecordPnL(pnl float64)
}

// Sink receives closed trades.
type Sink interface {
	WriteTrade(*Trade) error
}

// Manager owns every track for one strategy run.
type Manager struct {
	cfg  config.Strategy
	gate Gate
	sink Sink

	tracks      map[TrackID]*Track
	lotSizes    map[string]int
	tradesToday int
	seq         int
	closed      []*Trade
}

func NewManager(cfg config.Strategy, gate Gate, sink Sink) *Manager {
	m := &Manager{
		cfg:      cfg,
		gate:     gate,
		sink:     sink,
		tracks:   map[TrackID]*Track{},
		lotSizes: map[string]int{},
	}
	for _, inst := range cfg.Instruments {
		m.lotSizes[inst.Name] = inst.LotSize
		for _, ot := range market.OptionTypes {
			id := TrackID{Instrument: inst.Name, OptionType: ot}
			m.tracks[id] = &Track{ID: id, State: StateIdle}
		}
	}
	return m
}

// Track returns one track's state, for inspection.
func (m *Manager) Track(id TrackID) *Track { return m.tracks[id] }

// Closed returns every trade closed so far, in close order.
func (m *Manager) Closed() []*Trade { return m.closed }

// Signal fires on a confirmed signal bar. The track must be idle (or
// already through a full cycle today), the risk gate open, and the daily
// trade cap unspent. Direct entries fill on the signal bar itself.
func (m *Manager) Signal(id TrackID, key market.ContractKey, ts time.Time, close float64, reason string, curr signal.Snapshot) {
	tr := m.tracks[id]
	if tr == nil || (tr.State != StateIdle && tr.State != StateExited) {
		return
	}
	if m.cfg.MaxTradesPerDay > 0 && m.tradesToday >= m.cfg.MaxTradesPerDay {
		observ.Debug("signal_skipped", map[string]any{"track": id.String(), "reason": "daily_trade_cap"})
		return
	}
	if ok, why := m.gate.CanEnter(); !ok {
		observ.Log("signal_blocked", map[string]any{"track": id.String(), "reason": why})
		observ.IncCounter("signals_blocked_total", map[string]string{"instrument": id.Instrument})
		return
	}

	plan := entry.NewPlan(m.cfg.Entry, m.cfg.Direction, close)
	if m.cfg.Entry.Type == config.EntryIndicatorLevel {
		if v, ok := curr.Values[m.cfg.Entry.Indicator]; ok {
			plan.UpdateTarget(v)
		}
	}
	tr.State = StateWatching
	tr.Key = key
	tr.Plan = plan
	tr.Trade = nil
	m.seq++
	// the cap counts observations opened, filled or not
	m.tradesToday++
	observ.Log("track_watching", map[string]any{
		"track": id.String(), "contract": key.String(), "base": close, "reason": reason,
	})
	observ.IncCounter("signals_total", map[string]string{"instrument": id.Instrument, "option_type": string(id.OptionType)})

	if m.cfg.Entry.Type == config.EntryDirect {
		m.applyFills(tr, ts, reason, plan.CheckBar(close, close))
	} else {
		// remember the reason for when the first level fills
		tr.Trade = m.newTrade(tr, reason)
	}
}

func (m *Manager) newTrade(tr *Track, reason string) *Trade {
	return &Trade{
		ID:         fmt.Sprintf("%s-%s-%s-%d", m.cfg.Name, tr.ID.Instrument, tr.ID.OptionType, m.seq),
		Instrument: tr.ID.Instrument,
		Key:        tr.Key,
		Direction:  m.cfg.Direction,
		Reason:     reason,
	}
}

func (m *Manager) applyFills(tr *Track, ts time.Time, reason string, fills []entry.Fill) {
	if len(fills) == 0 {
		return
	}
	if tr.Trade == nil {
		tr.Trade = m.newTrade(tr, reason)
	}
	for _, f := range fills {
		qty := lotQuantity(m.cfg.InitialCapital, f.CapitalPct, f.Price, m.lotSizes[tr.ID.Instrument])
		tr.Trade.AddPart(Part{
			Level: f.Level, Price: f.Price, CapitalPct: f.CapitalPct, Quantity: qty, TS: ts,
		}, m.cfg.StopLossPct, m.cfg.TargetPct)
		observ.Log("entry_fill", map[string]any{
			"trade": tr.Trade.ID, "level": f.Level, "price": f.Price, "qty": qty,
			"avg_entry": tr.Trade.AvgEntry, "stop": tr.Trade.StopPrice, "target": tr.Trade.TargetPrice,
		})
		observ.IncCounter("entry_fills_total", map[string]string{"instrument": tr.ID.Instrument})
	}
	if tr.State == StateWatching {
		tr.State = StateActive
	}
}

// OnBar advances one track for one completed bar of its current contract.
// Watching tracks work their entry ladder; active tracks check exits and
// any ladder levels still open. eod marks the bar at or past the trading
// end, which force-closes at the bar close after stop and target have had
// their chance.
func (m *Manager) OnBar(id TrackID, b market.Bar, curr, prev signal.Snapshot, eod bool) {
	tr := m.tracks[id]
	if tr == nil {
		return
	}

	if tr.State == StateWatching {
		if !tr.Plan.GuardOK(curr, prev) {
			m.cancelWatch(tr, "guard_failed")
			return
		}
		if eod {
			// never filled today; drops without a report row. No entries
			// on the cutoff bar itself.
			m.cancelWatch(tr, "observation_expired")
			return
		}
		if m.cfg.Entry.Type == config.EntryIndicatorLevel {
			if v, ok := curr.Values[m.cfg.Entry.Indicator]; ok {
				tr.Plan.UpdateTarget(v)
			}
		}
		m.applyFills(tr, b.TS, "", tr.Plan.CheckBar(b.High, b.Low))
	}

	if tr.State != StateActive {
		return
	}

	if price, reason, hit := tr.Trade.CheckExitBar(b.High, b.Low); hit {
		m.closeTrade(tr, b.TS, price, reason)
		return
	}
	if eod {
		m.closeTrade(tr, b.TS, b.Close, ExitEndOfDay)
		return
	}
	if !tr.Plan.Done() {
		m.applyFills(tr, b.TS, "", tr.Plan.CheckBar(b.High, b.Low))
	}
}

// OnTick checks entries and exits against the path between two prints.
// Bars remain the unit of signal evaluation; ticks only move fills and
// exits that a one-minute bar would see too late.
func (m *Manager) OnTick(id TrackID, ts time.Time, prevLTP, currLTP float64) {
	tr := m.tracks[id]
	if tr == nil {
		return
	}
	if tr.State == StateWatching {
		m.applyFills(tr, ts, "", tr.Plan.CheckTick(prevLTP, currLTP))
	}
	if tr.State != StateActive {
		return
	}
	if price, reason, hit := tr.Trade.CheckExitTick(prevLTP, currLTP); hit {
		m.closeTrade(tr, ts, price, reason)
		return
	}
	if !tr.Plan.Done() {
		m.applyFills(tr, ts, "", tr.Plan.CheckTick(prevLTP, currLTP))
	}
}

func (m *Manager) cancelWatch(tr *Track, why string) {
	observ.Log("watch_cancelled", map[string]any{"track": tr.ID.String(), "reason": why})
	observ.IncCounter("watches_cancelled_total", map[string]string{"reason": why})
	tr.State = StateIdle
	tr.Plan = nil
	tr.Trade = nil
}

func (m *Manager) closeTrade(tr *Track, ts time.Time, price float64, reason string) {
	tr.Trade.Close(ts, price, reason)
	m.gate.RecordPnL(tr.Trade.PnL)
	m.closed = append(m.closed, tr.Trade)
	if m.sink != nil {
		if err := m.sink.WriteTrade(tr.Trade); err != nil {
			observ.Error("trade_sink_write", err, map[string]any{"trade": tr.Trade.ID})
		}
	}
	observ.Log("trade_closed", map[string]any{
		"trade": tr.Trade.ID, "exit_reason": reason, "exit_price": price, "pnl": tr.Trade.PnL,
	})
	observ.IncCounter("trades_closed_total", map[string]string{
		"instrument": tr.ID.Instrument, "reason": reason,
	})
	observ.SetGauge("last_trade_pnl", tr.Trade.PnL, map[string]string{"instrument": tr.ID.Instrument})
	tr.State = StateExited
	tr.Plan = nil
	tr.Trade = nil
}

// ForceExit closes one track if it still has anything open: a watch is
// cancelled, an active trade closes at the last known price. priceOf
// returns the last known price for a track; a track with no price closes
// flat at the average entry.
func (m *Manager) ForceExit(id TrackID, ts time.Time, reason string, priceOf func(TrackID) (float64, bool)) {
	tr := m.tracks[id]
	if tr == nil {
		return
	}
	switch tr.State {
	case StateWatching:
		m.cancelWatch(tr, reason)
	case StateActive:
		price, ok := priceOf(tr.ID)
		if !ok {
			price = tr.Trade.AvgEntry
		}
		m.closeTrade(tr, ts, price, reason)
	}
}

// ForceExitAll closes every track, used by the kill switch and the
// end-of-session sweeps. Tracks close in ID order so the trade sequence
// is reproducible.
func (m *Manager) ForceExitAll(ts time.Time, reason string, priceOf func(TrackID) (float64, bool)) {
	ids := make([]TrackID, 0, len(m.tracks))
	for id := range m.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		m.ForceExit(id, ts, reason, priceOf)
	}
}

// StartDay resets every track and the daily trade count for a new
// session date.
func (m *Manager) StartDay() {
	for _, tr := range m.tracks {
		tr.State = StateIdle
		tr.Plan = nil
		tr.Trade = nil
	}
	m.tradesToday = 0
}
