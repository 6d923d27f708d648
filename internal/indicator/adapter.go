package indicator

import (
	"time"

	"github.com/anrvee/optionflow/internal/config"
	"github.com/anrvee/optionflow/internal/market"
)

// maxHistoryBars bounds the live-mode rolling history per scope. It covers
// a full contract week of minute bars plus multi-day warm-up with headroom
// for the longest configured period.
const maxHistoryBars = 2500

type history struct {
	ts     []time.Time
	close  []float64
	high   []float64
	low    []float64
	volume []float64
}

func (h *history) append(ts time.Time, close, high, low, volume float64) {
	h.ts = append(h.ts, ts)
	h.close = append(h.close, close)
	h.high = append(h.high, high)
	h.low = append(h.low, low)
	h.volume = append(h.volume, volume)
	if len(h.ts) > maxHistoryBars {
		cut := len(h.ts) - maxHistoryBars
		h.ts = h.ts[cut:]
		h.close = h.close[cut:]
		h.high = h.high[cut:]
		h.low = h.low[cut:]
		h.volume = h.volume[cut:]
	}
}

func (h *history) len() int { return len(h.ts) }

type computed struct {
	at  int // history length the outputs were computed at
	out Outputs
}

// Adapter owns all indicator state for one instrument: one shared
// spot-scope history, and one option-scope history per ContractKey. Every
// lookup goes through an explicit key; one driver owns one Adapter, and
// it is not safe for concurrent use.
type Adapter struct {
	cfgs []config.Indicator

	spot        history
	spotMinute  int64
	options     map[market.ContractKey]*history
	spotCache   map[string]computed
	optionCache map[market.ContractKey]map[string]computed
}

// NewAdapter builds an adapter for the configured indicator set.
func NewAdapter(cfgs []config.Indicator) *Adapter {
	return &Adapter{
		cfgs:        cfgs,
		spotMinute:  -1,
		options:     map[market.ContractKey]*history{},
		spotCache:   map[string]computed{},
		optionCache: map[market.ContractKey]map[string]computed{},
	}
}

// AppendSpot records one spot print on the instrument's shared timeline,
// deduplicated to one value per minute.
func (a *Adapter) AppendSpot(ts time.Time, price float64) {
	min := ts.Unix() / 60
	if min == a.spotMinute {
		return
	}
	a.spotMinute = min
	a.spot.append(ts, price, price, price, 0)
}

// AppendBar records one option bar under its contract key and the bar's
// spot under the shared timeline.
func (a *Adapter) AppendBar(b market.Bar) {
	if b.Spot > 0 {
		a.AppendSpot(b.TS, b.Spot)
	}
	h, ok := a.options[b.Key]
	if !ok {
		h = &history{}
		a.options[b.Key] = h
	}
	h.append(b.TS, b.Close, b.High, b.Low, b.Volume)
}

// Drop discards one contract's option-scope state. Called when the key
// stops being current (expiry rollover); its series restarts from scratch
// if the key ever reappears.
func (a *Adapter) Drop(key market.ContractKey) {
	delete(a.options, key)
	delete(a.optionCache, key)
}

// DropAllOptions discards every option-scope series. Spot scope survives:
// it is shared across contracts and does not reset on expiry change.
func (a *Adapter) DropAllOptions() {
	a.options = map[market.ContractKey]*history{}
	a.optionCache = map[market.ContractKey]map[string]computed{}
}

// LastCloses returns the key's current and previous close. havePrev is
// false while the series holds fewer than two bars.
func (a *Adapter) LastCloses(key market.ContractKey) (curr, prev float64, havePrev bool) {
	h, ok := a.options[key]
	if !ok || h.len() == 0 {
		return 0, 0, false
	}
	n := h.len()
	curr = h.close[n-1]
	if n > 1 {
		return curr, h.close[n-2], true
	}
	return curr, 0, false
}

// HistoryLen returns how many bars the key's option series holds.
func (a *Adapter) HistoryLen(key market.ContractKey) int {
	h, ok := a.options[key]
	if !ok {
		return 0
	}
	return h.len()
}

func (a *Adapter) computeScoped(cfg config.Indicator, h *history, cache map[string]computed) Outputs {
	c, ok := cache[cfg.Name]
	if ok && c.at == h.len() {
		return c.out
	}
	out := Compute(cfg, h.ts, h.close, h.high, h.low, h.volume)
	cache[cfg.Name] = computed{at: h.len(), out: out}
	return out
}

// Snapshot returns the current and previous values of every configured
// indicator output for one contract: option-scope outputs from the key's
// own series, spot-scope outputs from the shared spot timeline. Outputs
// still in warm-up come back NaN (or absent when the series is empty);
// either way no condition on them can fire.
func (a *Adapter) Snapshot(key market.ContractKey) (curr, prev Values) {
	curr = Values{}
	prev = Values{}
	for _, cfg := range a.cfgs {
		var h *history
		var cache map[string]computed
		if cfg.PriceSource == "spot" {
			h = &a.spot
			cache = a.spotCache
		} else {
			oh, ok := a.options[key]
			if !ok {
				continue
			}
			h = oh
			cache = a.optionCache[key]
			if cache == nil {
				cache = map[string]computed{}
				a.optionCache[key] = cache
			}
		}
		if h.len() == 0 {
			continue
		}
		out := a.computeScoped(cfg, h, cache)
		for name, series := range out {
			n := len(series)
			if n > 0 {
				curr[name] = series[n-1]
			}
			if n > 1 {
				prev[name] = series[n-2]
			}
		}
	}
	return curr, prev
}
