// Package market defines the minute-bar and tick data model and the
// per-instrument contract index used by both engines.
package market

import (
	"fmt"
	"time"
)

// OptionType is the contract side: CE (call) or PE (put).
type OptionType string

const (
	CE OptionType = "CE"
	PE OptionType = "PE"
)

// OptionTypes lists both sides in processing order.
var OptionTypes = []OptionType{CE, PE}

// ExpiryType distinguishes weekly from monthly contracts.
type ExpiryType string

const (
	Week  ExpiryType = "WEEK"
	Month ExpiryType = "MONTH"
)

// ContractKey identifies one option contract. Two keys are never mixed
// into one price or indicator series.
type ContractKey struct {
	Strike     float64    `json:"strike"`
	OptionType OptionType `json:"option_type"`
	ExpiryType ExpiryType `json:"expiry_type"`
	ExpiryCode int        `json:"expiry_code"`
}

// String renders a stable key like "24000_CE_WEEK_1". Lexical ordering of
// these strings is the tie-break order for bars sharing a timestamp.
func (k ContractKey) String() string {
	return fmt.Sprintf("%08.0f_%s_%s_%d", k.Strike, k.OptionType, k.ExpiryType, k.ExpiryCode)
}

// Bar is one minute of one contract's trading, immutable once ingested.
type Bar struct {
	TS           time.Time
	Instrument   string
	Key          ContractKey
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	OpenInterest float64
	IV           float64
	Spot         float64
}

// Tick is one live trade print for a contract.
type Tick struct {
	Instrument string
	Key        ContractKey
	Price      float64
	TS         time.Time
}
