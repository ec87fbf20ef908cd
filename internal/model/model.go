// Package model defines the core domain types shared across the paper trader.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places kept for cash and prices.
const MoneyScale int32 = 2

// Round2 rounds a monetary amount to cents. decimal.Round rounds half away
// from zero, which is half-up for the non-negative amounts the ledger holds.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// Side is the direction of a trade intent.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// PricePoint is one observation in a price history.
type PricePoint struct {
	Timestamp int64           `json:"timestamp"` // epoch millis
	Price     decimal.Decimal `json:"price"`
}

// PriceSeries holds the current price and bounded history of one instrument.
// CurrentPrice always equals the last history price when History is non-empty.
type PriceSeries struct {
	Symbol       string          `json:"symbol"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	History      []PricePoint    `json:"history"`
}

// Clone returns a copy whose history does not alias the receiver's.
func (s PriceSeries) Clone() PriceSeries {
	h := make([]PricePoint, len(s.History))
	copy(h, s.History)
	s.History = h
	return s
}

// Market is a snapshot of every simulated instrument.
type Market struct {
	AsOf        time.Time              `json:"as_of"`
	Instruments map[string]PriceSeries `json:"instruments"`
}

// Clone deep-copies the market so callers can read it without holding locks.
func (m Market) Clone() Market {
	out := Market{AsOf: m.AsOf, Instruments: make(map[string]PriceSeries, len(m.Instruments))}
	for sym, s := range m.Instruments {
		out.Instruments[sym] = s.Clone()
	}
	return out
}

// Symbols returns the instrument symbols in sorted order.
func (m Market) Symbols() []string {
	syms := make([]string, 0, len(m.Instruments))
	for sym := range m.Instruments {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}

// LedgerState is a user's cash, holdings and experience points.
//
// Invariants: Cash >= 0, every holding > 0 (absent means zero), XP never
// decreases.
type LedgerState struct {
	Cash     decimal.Decimal  `json:"cash"`
	Holdings map[string]int64 `json:"holdings"`
	XP       int64            `json:"xp"`
}

// Clone returns a copy whose holdings map does not alias the receiver's.
func (s LedgerState) Clone() LedgerState {
	h := make(map[string]int64, len(s.Holdings))
	for sym, qty := range s.Holdings {
		h[sym] = qty
	}
	s.Holdings = h
	return s
}

// Equal compares two ledger states by value.
func (s LedgerState) Equal(o LedgerState) bool {
	if !s.Cash.Equal(o.Cash) || s.XP != o.XP || len(s.Holdings) != len(o.Holdings) {
		return false
	}
	for sym, qty := range s.Holdings {
		if oq, ok := o.Holdings[sym]; !ok || oq != qty {
			return false
		}
	}
	return true
}

// TradeIntent is a user's request to buy or sell. Never persisted.
type TradeIntent struct {
	Symbol   string `json:"symbol"`
	Side     Side   `json:"side"`
	Quantity int64  `json:"quantity"`
}

// TradeResult is the outcome of a ledger transition. When Accepted is false,
// Reason holds the rejection kind and State is the unchanged input state.
type TradeResult struct {
	Accepted bool
	Reason   error
	State    LedgerState
	Cost     decimal.Decimal // cash moved by the trade, always non-negative
}

// ProgressionState is the unit that is durably persisted per user.
type ProgressionState struct {
	Ledger       LedgerState         `json:"ledger"`
	Achievements map[string]struct{} `json:"-"`
	Premium      bool                `json:"premium"`
}

// Clone deep-copies the progression state.
func (p ProgressionState) Clone() ProgressionState {
	a := make(map[string]struct{}, len(p.Achievements))
	for id := range p.Achievements {
		a[id] = struct{}{}
	}
	return ProgressionState{Ledger: p.Ledger.Clone(), Achievements: a, Premium: p.Premium}
}

// HasAchievement reports whether id has been unlocked.
func (p ProgressionState) HasAchievement(id string) bool {
	_, ok := p.Achievements[id]
	return ok
}

// AchievementList returns the unlocked achievement ids in sorted order.
func (p ProgressionState) AchievementList() []string {
	ids := make([]string, 0, len(p.Achievements))
	for id := range p.Achievements {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Equal compares two progression states by value.
func (p ProgressionState) Equal(o ProgressionState) bool {
	if p.Premium != o.Premium || !p.Ledger.Equal(o.Ledger) || len(p.Achievements) != len(o.Achievements) {
		return false
	}
	for id := range p.Achievements {
		if _, ok := o.Achievements[id]; !ok {
			return false
		}
	}
	return true
}

// Portfolio is a marked-to-market view of a ledger for API responses.
type Portfolio struct {
	Cash         decimal.Decimal            `json:"cash"`
	Holdings     map[string]int64           `json:"holdings"`
	HoldingValue map[string]decimal.Decimal `json:"holding_value"`
	TotalValue   decimal.Decimal            `json:"total_value"`
	XP           int64                      `json:"xp"`
	Achievements []string                   `json:"achievements"`
	Premium      bool                       `json:"premium"`
}
