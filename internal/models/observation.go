// Package models defines the core domain entities: strike observations, cache entries and option chains.
package models

import (
	"errors"
	"math"
	"time"
)

// Side selects the call (CE) or put (PE) half of a strike.
type Side int

const (
	Call Side = iota
	Put
)

// Code returns the exchange abbreviation for the side.
func (s Side) Code() string {
	if s == Put {
		return "PE"
	}
	return "CE"
}

// Label returns the human-facing name of the side.
func (s Side) Label() string {
	if s == Put {
		return "Put"
	}
	return "Call"
}

// StrikeObservation is one strike's call/put open interest and last traded price
// as seen in a single fetch cycle.
// Strike is a canonical decimal string so it can be used as a map key and parsed for sorting.
// An LTP of 0 means no trade, not a price of zero.
type StrikeObservation struct {
	Strike  string  `json:"strike"`
	CallOI  int64   `json:"ce_oi"`
	PutOI   int64   `json:"pe_oi"`
	CallLTP float64 `json:"ce_ltp"`
	PutLTP  float64 `json:"pe_ltp"`
}

// OI returns the open interest of the given side.
func (o StrikeObservation) OI(side Side) int64 {
	if side == Put {
		return o.PutOI
	}
	return o.CallOI
}

// LTP returns the last traded price of the given side.
func (o StrikeObservation) LTP(side Side) float64 {
	if side == Put {
		return o.PutLTP
	}
	return o.CallLTP
}

// Validate checks observation field constraints.
func (o StrikeObservation) Validate() error {
	if o.Strike == "" {
		return errors.New("strike must not be empty")
	}
	if o.CallOI < 0 {
		return errors.New("call open interest must not be negative")
	}
	if o.PutOI < 0 {
		return errors.New("put open interest must not be negative")
	}
	if !validPrice(o.CallLTP) {
		return errors.New("call last price must be a finite non-negative number")
	}
	if !validPrice(o.PutLTP) {
		return errors.New("put last price must be a finite non-negative number")
	}
	return nil
}

func validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p >= 0
}

// OptionChain is the normalized output of a market data source for the nearest expiry.
type OptionChain struct {
	Symbol       string
	Expiry       string
	Spot         float64 // 0 when the source did not report an underlying value
	FetchedAt    time.Time
	Observations []StrikeObservation
}
