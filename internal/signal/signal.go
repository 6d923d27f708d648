// Package signal evaluates configured entry/guard conditions against
// indicator snapshots. Evaluation is stateless: callers supply explicit
// current and previous snapshots and the result depends on nothing else,
// which keeps the backtest fold and the live loop bit-identical.
package signal

import (
	"fmt"
	"math"
	"strings"

	"github.com/anrvee/optionflow/internal/config"
	"github.com/anrvee/optionflow/internal/indicator"
)

// Snapshot is one evaluation point: indicator outputs plus the bar close.
type Snapshot struct {
	Values indicator.Values
	Close  float64
}

func resolve(operand string, s Snapshot) (float64, bool) {
	if operand == "close" {
		return s.Close, true
	}
	if v, ok := config.IsNumeric(operand); ok {
		return v, true
	}
	v, ok := s.Values[operand]
	return v, ok
}

func defined(v float64, ok bool) bool {
	return ok && !math.IsNaN(v)
}

// evalOne applies a single condition. Any operand that is missing or NaN
// (warm-up, unknown name) makes the condition false, never an error.
func evalOne(c config.Condition, curr, prev Snapshot) bool {
	lc, lok := resolve(c.Left, curr)
	rc, rok := resolve(c.Right, curr)
	if !defined(lc, lok) || !defined(rc, rok) {
		return false
	}
	switch c.Compare {
	case "above":
		return lc > rc
	case "below":
		return lc < rc
	case "crosses_above", "crosses_below":
		lp, lpok := resolve(c.Left, prev)
		rp, rpok := resolve(c.Right, prev)
		if !defined(lp, lpok) || !defined(rp, rpok) {
			return false
		}
		if c.Compare == "crosses_above" {
			return lp <= rp && lc > rc
		}
		return lp >= rp && lc < rc
	}
	return false
}

// Evaluate applies the condition set under AND/OR logic. The returned
// reason names the conditions that held, for the trade log.
func Evaluate(conds []config.Condition, logic string, curr, prev Snapshot) (bool, string) {
	if len(conds) == 0 {
		return false, ""
	}
	var hits []string
	for _, c := range conds {
		ok := evalOne(c, curr, prev)
		if ok {
			hits = append(hits, fmt.Sprintf("%s %s %s", c.Left, c.Compare, c.Right))
		}
		if logic == "OR" && ok {
			return true, hits[len(hits)-1]
		}
		if logic != "OR" && !ok {
			return false, ""
		}
	}
	if logic == "OR" {
		return false, ""
	}
	return true, strings.Join(hits, " & ")
}
