package market

import (
	"errors"
	"math"
	"sort"
	"time"
)

// ErrNoContract is returned by ResolveATM when no contract exists for the
// resolved strike. The caller skips the minute for that side; it is not a
// run failure.
var ErrNoContract = errors.New("no contract available for resolved strike")

// Index partitions one instrument's bars into independent per-contract
// streams and keeps a deduplicated spot timeline. One Index is owned by
// one driver; it is not safe for concurrent mutation.
type Index struct {
	instrument string
	strikeStep float64

	contracts map[ContractKey][]Bar
	byMinute  map[ContractKey]map[int64]int // unix minute -> position in contracts[key]

	spot        []spotPoint
	spotByMin   map[int64]float64
	lastSpotMin int64
}

type spotPoint struct {
	ts    time.Time
	price float64
}

// NewIndex creates an empty index for one instrument with its strike step
// (e.g. 50 for NIFTY, 100 for SENSEX).
func NewIndex(instrument string, strikeStep float64) *Index {
	return &Index{
		instrument:  instrument,
		strikeStep:  strikeStep,
		contracts:   map[ContractKey][]Bar{},
		byMinute:    map[ContractKey]map[int64]int{},
		spotByMin:   map[int64]float64{},
		lastSpotMin: -1,
	}
}

// Instrument returns the instrument this index covers.
func (x *Index) Instrument() string { return x.instrument }

// StrikeStep returns the strike rounding step.
func (x *Index) StrikeStep() float64 { return x.strikeStep }

// Add ingests one bar. Bars are expected in non-decreasing timestamp
// order per contract; the spot timeline keeps one value per minute no
// matter how many contracts trade in it.
func (x *Index) Add(b Bar) {
	min := b.TS.Unix() / 60
	pos, ok := x.byMinute[b.Key]
	if !ok {
		pos = map[int64]int{}
		x.byMinute[b.Key] = pos
	}
	pos[min] = len(x.contracts[b.Key])
	x.contracts[b.Key] = append(x.contracts[b.Key], b)

	if b.Spot > 0 {
		if _, seen := x.spotByMin[min]; !seen {
			x.spotByMin[min] = b.Spot
			x.spot = append(x.spot, spotPoint{ts: b.TS, price: b.Spot})
			x.lastSpotMin = min
		}
	}
}

// Bars returns the full sorted bar history of a contract.
func (x *Index) Bars(key ContractKey) []Bar { return x.contracts[key] }

// HasContract reports whether any bar was ever ingested for key.
func (x *Index) HasContract(key ContractKey) bool {
	return len(x.contracts[key]) > 0
}

// BarAt returns the contract's bar for the given minute, if any.
func (x *Index) BarAt(key ContractKey, ts time.Time) (Bar, bool) {
	pos, ok := x.byMinute[key]
	if !ok {
		return Bar{}, false
	}
	i, ok := pos[ts.Unix()/60]
	if !ok {
		return Bar{}, false
	}
	return x.contracts[key][i], true
}

// SpotAt returns the instrument's spot price for the given minute.
func (x *Index) SpotAt(ts time.Time) (float64, bool) {
	p, ok := x.spotByMin[ts.Unix()/60]
	return p, ok
}

// Keys returns every contract key seen, in lexical order so iteration is
// reproducible run-to-run.
func (x *Index) Keys() []ContractKey {
	keys := make([]ContractKey, 0, len(x.contracts))
	for k := range x.contracts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// BarsAt collects every contract's bar for one minute.
func (x *Index) BarsAt(ts time.Time) map[ContractKey]Bar {
	min := ts.Unix() / 60
	out := map[ContractKey]Bar{}
	for key, pos := range x.byMinute {
		if i, ok := pos[min]; ok {
			out[key] = x.contracts[key][i]
		}
	}
	return out
}

// Minutes returns every minute timestamp any contract traded in, sorted.
// This is the replay driver's master clock.
func (x *Index) Minutes() []time.Time {
	seen := map[int64]bool{}
	for _, pos := range x.byMinute {
		for min := range pos {
			seen[min] = true
		}
	}
	mins := make([]int64, 0, len(seen))
	for m := range seen {
		mins = append(mins, m)
	}
	sort.Slice(mins, func(i, j int) bool { return mins[i] < mins[j] })
	out := make([]time.Time, len(mins))
	for i, m := range mins {
		out[i] = time.Unix(m*60, 0).UTC()
	}
	return out
}

// RoundToStep rounds price to the nearest multiple of step, half up.
func RoundToStep(price, step float64) float64 {
	if step <= 0 {
		return price
	}
	return math.Floor(price/step+0.5) * step
}

// ResolveATM resolves the at-the-money contract for one side at ts:
// spot rounded half-up to the strike step, nearest weekly expiry. Returns
// ErrNoContract when the data holds no such contract (missing strike).
func (x *Index) ResolveATM(ts time.Time, ot OptionType) (ContractKey, error) {
	spot, ok := x.SpotAt(ts)
	if !ok {
		return ContractKey{}, ErrNoContract
	}
	key := ContractKey{
		Strike:     RoundToStep(spot, x.strikeStep),
		OptionType: ot,
		ExpiryType: Week,
		ExpiryCode: 1,
	}
	if !x.HasContract(key) {
		return ContractKey{}, ErrNoContract
	}
	return key, nil
}

// ATMFromSpot is the live-path variant of ResolveATM: the caller already
// has a spot print and no bar history requirement.
func ATMFromSpot(spot, step float64, ot OptionType) ContractKey {
	return ContractKey{
		Strike:     RoundToStep(spot, step),
		OptionType: ot,
		ExpiryType: Week,
		ExpiryCode: 1,
	}
}
