// Package entry turns a confirmed signal into a fill plan: the ladder of
// limit levels to work and the capital split across them. Direct entries
// fill on the signal bar; staggered and indicator_level entries are worked
// against later bars and ticks.
package entry

import (
	"math"

	"github.com/anrvee/optionflow/internal/config"
	"github.com/anrvee/optionflow/internal/signal"
)

// Fill reports one level crossing our working price.
type Fill struct {
	Level      int
	Price      float64
	CapitalPct float64
}

// Level is one rung of a staggered ladder.
type Level struct {
	Price      float64
	CapitalPct float64
	Filled     bool
}

// Plan is the working state of one entry attempt. A plan belongs to a
// single track and is discarded when the track leaves WATCHING.
type Plan struct {
	Type      string
	Direction config.Direction
	Base      float64 // signal bar close

	Levels []Level

	// indicator_level state
	IndicatorName string
	Target        float64
	hasTarget     bool
	validWhile    []config.Condition
}

// NewPlan prices the ladder off the signal bar close. Sell-side ladders
// sit above the base (premium rising into the levels), buy-side below.
func NewPlan(cfg config.Entry, dir config.Direction, base float64) *Plan {
	p := &Plan{Type: cfg.Type, Direction: dir, Base: base}
	switch cfg.Type {
	case config.EntryDirect:
		p.Levels = []Level{{Price: base, CapitalPct: 100}}
	case config.EntryStaggered:
		for _, l := range cfg.Levels {
			price := base * (1 + l.OffsetPct/100)
			if dir == config.Buy {
				price = base * (1 - l.OffsetPct/100)
			}
			p.Levels = append(p.Levels, Level{Price: price, CapitalPct: l.CapitalPct})
		}
	case config.EntryIndicatorLevel:
		p.IndicatorName = cfg.Indicator
		p.validWhile = cfg.ValidWhile
		p.Levels = []Level{{CapitalPct: 100}}
	}
	return p
}

// Done reports whether every level has filled.
func (p *Plan) Done() bool {
	for _, l := range p.Levels {
		if !l.Filled {
			return false
		}
	}
	return true
}

// FilledCount returns how many levels have filled so far.
func (p *Plan) FilledCount() int {
	n := 0
	for _, l := range p.Levels {
		if l.Filled {
			n++
		}
	}
	return n
}

// UpdateTarget moves the indicator_level working price to the indicator's
// latest value. NaN (warm-up) clears the target so nothing can fill.
func (p *Plan) UpdateTarget(v float64) {
	if p.Type != config.EntryIndicatorLevel {
		return
	}
	if math.IsNaN(v) {
		p.hasTarget = false
		return
	}
	p.Target = v
	p.hasTarget = true
	p.Levels[0].Price = v
}

// GuardOK evaluates the valid_while conditions; all of them must hold. A
// plan with no guard is always valid; a guarded plan whose conditions
// stop holding must be cancelled by the caller.
func (p *Plan) GuardOK(curr, prev signal.Snapshot) bool {
	if p.Type != config.EntryIndicatorLevel || len(p.validWhile) == 0 {
		return true
	}
	ok, _ := signal.Evaluate(p.validWhile, "AND", curr, prev)
	return ok
}

// CheckBar tests unfilled levels against one bar's range. Levels are
// independently eligible: a level fills when its price lies inside the
// bar's low..high, at the exact level price. A level the market gapped
// past stays open for a later touch.
func (p *Plan) CheckBar(high, low float64) []Fill {
	return p.fill(low, high)
}

// CheckTick tests unfilled levels against the path between two prints,
// inclusive on both ends.
func (p *Plan) CheckTick(prevLTP, currLTP float64) []Fill {
	return p.fill(math.Min(prevLTP, currLTP), math.Max(prevLTP, currLTP))
}

func (p *Plan) fill(lo, hi float64) []Fill {
	if p.Type == config.EntryIndicatorLevel && !p.hasTarget {
		return nil
	}
	var fills []Fill
	for i := range p.Levels {
		l := &p.Levels[i]
		if l.Filled || l.Price < lo || l.Price > hi {
			continue
		}
		l.Filled = true
		fills = append(fills, Fill{Level: i, Price: l.Price, CapitalPct: l.CapitalPct})
	}
	return fills
}
