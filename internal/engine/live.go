package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/anrvee/optionflow/internal/config"
	"github.com/anrvee/optionflow/internal/feed"
	"github.com/anrvee/optionflow/internal/market"
	"github.com/anrvee/optionflow/internal/observ"
)

// Live runs one trading session against the websocket feed. Contract
// bars are built from prints minute by minute and pushed through the
// same core the replay driver uses; prints additionally run the
// intra-minute fill and exit checks.
type Live struct {
	cfg  config.Strategy
	core *Core
	ws   *feed.WSClient
	rest *feed.RESTClient

	builders map[string]*minuteBuilder
	endMin   int
}

type barAgg struct {
	open, high, low, close float64
	volume                 float64
}

type minuteBuilder struct {
	minute int64
	spot   float64
	aggs   map[market.ContractKey]*barAgg
}

func NewLive(cfg config.Strategy, core *Core, ws *feed.WSClient, rest *feed.RESTClient) *Live {
	endMin, _ := config.ParseClock(cfg.TradingEnd)
	l := &Live{
		cfg:      cfg,
		core:     core,
		ws:       ws,
		rest:     rest,
		builders: map[string]*minuteBuilder{},
		endMin:   endMin,
	}
	for _, inst := range cfg.Instruments {
		l.builders[inst.Name] = &minuteBuilder{minute: -1, aggs: map[market.ContractKey]*barAgg{}}
	}
	return l
}

// Run warms up, then consumes the feed until the session ends or ctx is
// cancelled. Cancellation flattens all open positions before returning.
func (l *Live) Run(ctx context.Context) error {
	go l.ws.Run(ctx)

	spots, err := l.awaitSpots(ctx)
	if err != nil {
		return err
	}
	if err := l.warmup(ctx, spots); err != nil {
		return err
	}

	flush := time.NewTicker(5 * time.Second)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			l.flushAll()
			l.core.Kill(time.Now().UTC(), "shutdown")
			return ctx.Err()

		case st := <-l.ws.Spots:
			b := l.builders[st.Instrument]
			if b == nil {
				continue
			}
			l.roll(st.Instrument, b, st.TS)
			b.spot = st.Price

		case t := <-l.ws.Ticks:
			b := l.builders[t.Instrument]
			if b == nil {
				continue
			}
			l.roll(t.Instrument, b, t.TS)
			agg := b.aggs[t.Key]
			if agg == nil {
				agg = &barAgg{open: t.Price, high: t.Price, low: t.Price}
				b.aggs[t.Key] = agg
			}
			if t.Price > agg.high {
				agg.high = t.Price
			}
			if t.Price < agg.low {
				agg.low = t.Price
			}
			agg.close = t.Price
			agg.volume++
			l.core.OnTick(t)

		case now := <-flush.C:
			ts := now.UTC()
			for inst, b := range l.builders {
				if b.minute >= 0 && ts.Unix()/60 > b.minute {
					l.roll(inst, b, ts)
				}
			}
			if minuteOf(ts) >= l.endMin+5 {
				l.flushAll()
				l.core.Finish(ts)
				observ.Log("session_done", map[string]any{"at": ts.Format(time.RFC3339)})
				return nil
			}
		}

		if l.core.gate.Killed() {
			// daily-loss breach is run-terminal: flatten and stop
			reason := l.core.gate.KillReason()
			l.core.Kill(time.Now().UTC(), reason)
			return fmt.Errorf("kill switch engaged: %s", reason)
		}
	}
}

// roll flushes the builder when ts has moved past its minute.
func (l *Live) roll(inst string, b *minuteBuilder, ts time.Time) {
	min := ts.Unix() / 60
	if b.minute == min {
		return
	}
	if b.minute >= 0 {
		l.emit(inst, b)
	}
	b.minute = min
	b.aggs = map[market.ContractKey]*barAgg{}
}

func (l *Live) emit(inst string, b *minuteBuilder) {
	ts := time.Unix(b.minute*60, 0).UTC()
	bars := make(map[market.ContractKey]market.Bar, len(b.aggs))
	for key, agg := range b.aggs {
		bars[key] = market.Bar{
			TS: ts, Instrument: inst, Key: key,
			Open: agg.open, High: agg.high, Low: agg.low, Close: agg.close,
			Volume: agg.volume, Spot: b.spot,
		}
	}
	l.core.OnMinute(inst, ts, b.spot, bars)
	observ.IncCounterBy("live_bars_total", map[string]string{"instrument": inst}, float64(len(bars)))
}

func (l *Live) flushAll() {
	for inst, b := range l.builders {
		if b.minute >= 0 {
			l.emit(inst, b)
			b.minute = -1
			b.aggs = map[market.ContractKey]*barAgg{}
		}
	}
}

// awaitSpots blocks until every instrument has printed a spot, so the
// warm-up strike window can center on the money.
func (l *Live) awaitSpots(ctx context.Context) (map[string]float64, error) {
	spots := map[string]float64{}
	deadline := time.NewTimer(2 * time.Minute)
	defer deadline.Stop()
	for len(spots) < len(l.cfg.Instruments) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("no spot print within 2m, got %d/%d instruments", len(spots), len(l.cfg.Instruments))
		case st := <-l.ws.Spots:
			if _, seen := spots[st.Instrument]; !seen {
				spots[st.Instrument] = st.Price
			}
		}
	}
	return spots, nil
}

// warmup fetches recent history for strikes around the money, seeds the
// indicator adapters, and subscribes the contract symbols. A budget
// exhaustion stops fetching but does not fail the session.
func (l *Live) warmup(ctx context.Context, spots map[string]float64) error {
	days := tradingDays(time.Now().UTC(), l.cfg.Feed.WarmupDays)
	for _, inst := range l.cfg.Instruments {
		spot := spots[inst.Name]
		atm := market.RoundToStep(spot, inst.StrikeStep)
		var symbols []string
		var all []market.Bar
		for off := -l.cfg.Feed.WarmupStrikeRange; off <= l.cfg.Feed.WarmupStrikeRange; off++ {
			strike := atm + float64(off)*inst.StrikeStep
			if strike <= 0 {
				continue
			}
			for _, ot := range market.OptionTypes {
				key := market.ContractKey{Strike: strike, OptionType: ot, ExpiryType: market.Week, ExpiryCode: 1}
				symbols = append(symbols, feed.Symbol(inst.Name, key))
				for _, day := range days {
					bars, err := l.rest.Bars(ctx, inst.Name, key, day)
					if errors.Is(err, feed.ErrBudgetExhausted) {
						observ.Warn("warmup_budget_exhausted", map[string]any{"instrument": inst.Name})
						goto subscribe
					}
					if err != nil {
						observ.Warn("warmup_fetch_failed", map[string]any{
							"instrument": inst.Name, "strike": strike, "day": day, "err": err.Error(),
						})
						continue
					}
					all = append(all, bars...)
				}
			}
		}
	subscribe:
		sort.Slice(all, func(i, j int) bool { return all[i].TS.Before(all[j].TS) })
		l.core.Warmup(inst.Name, all)
		if err := l.ws.Subscribe(symbols); err != nil {
			observ.Warn("subscribe_failed", map[string]any{"instrument": inst.Name, "err": err.Error()})
		}
		observ.Log("warmup_done", map[string]any{
			"instrument": inst.Name, "bars": len(all), "contracts": len(symbols), "requests": l.rest.Used(),
		})
	}
	return nil
}

// tradingDays returns the most recent n weekdays before today, oldest
// first. Exchange holidays come back empty from the vendor and are
// harmless.
func tradingDays(now time.Time, n int) []string {
	var days []string
	d := now.AddDate(0, 0, -1)
	for len(days) < n {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days = append(days, d.Format("2006-01-02"))
		}
		d = d.AddDate(0, 0, -1)
	}
	for i, j := 0, len(days)-1; i < j; i, j = i+1, j-1 {
		days[i], days[j] = days[j], days[i]
	}
	return days
}
