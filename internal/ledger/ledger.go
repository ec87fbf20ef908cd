// Package ledger enforces the solvency and holdings invariants of a paper
// trading account. It is the only code that produces new LedgerState values.
//
// Every function here is pure: inputs are never mutated, and a rejected
// transition returns the input state unchanged.
package ledger

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"github.com/atmx/paper-trader/internal/model"
)

var (
	// ErrInsufficientFunds is returned when a buy costs more than the cash held.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrInsufficientHoldings is returned when a sell exceeds the quantity held.
	ErrInsufficientHoldings = errors.New("ledger: insufficient holdings")

	// ErrInvalidQuantity is returned for a zero or negative quantity.
	ErrInvalidQuantity = errors.New("ledger: quantity must be positive")

	// ErrInvalidPrice is returned for a zero or negative price.
	ErrInvalidPrice = errors.New("ledger: price must be positive")

	// ErrInvalidSide is returned for a side other than buy or sell.
	ErrInvalidSide = errors.New("ledger: side must be buy or sell")

	// ErrUnknownSymbol is returned when the intent names no tradable instrument.
	ErrUnknownSymbol = errors.New("ledger: unknown symbol")
)

// DefaultStartingCash is the cash balance of a new or reset account.
var DefaultStartingCash = decimal.NewFromInt(10000)

// Rewards is the XP granted per accepted trade, by side.
type Rewards struct {
	Buy  int64
	Sell int64
}

// DefaultRewards favours buys over sells.
func DefaultRewards() Rewards {
	return Rewards{Buy: 5, Sell: 2}
}

// For returns the reward for side.
func (r Rewards) For(side model.Side) int64 {
	if side == model.SideSell {
		return r.Sell
	}
	return r.Buy
}

// Reset returns the default state: startingCash, no holdings, zero XP.
func Reset(startingCash decimal.Decimal) model.LedgerState {
	return model.LedgerState{
		Cash:     model.Round2(startingCash),
		Holdings: map[string]int64{},
	}
}

// ExecuteTrade applies intent at currentPrice and grants xpReward on success.
// The transition is atomic: either the full new state is returned with
// Accepted set, or the input state is returned with Reason set.
func ExecuteTrade(state model.LedgerState, intent model.TradeIntent, currentPrice decimal.Decimal, xpReward int64) model.TradeResult {
	reject := func(reason error) model.TradeResult {
		return model.TradeResult{Reason: reason, State: state, Cost: decimal.Zero}
	}

	switch {
	case intent.Symbol == "":
		return reject(ErrUnknownSymbol)
	case !intent.Side.Valid():
		return reject(ErrInvalidSide)
	case intent.Quantity <= 0:
		return reject(ErrInvalidQuantity)
	case !currentPrice.IsPositive():
		return reject(ErrInvalidPrice)
	}
	if xpReward < 0 {
		xpReward = 0
	}

	amount := model.Round2(currentPrice.Mul(decimal.NewFromInt(intent.Quantity)))
	held := state.Holdings[intent.Symbol]

	next := state.Clone()
	switch intent.Side {
	case model.SideBuy:
		if amount.GreaterThan(state.Cash) {
			return reject(ErrInsufficientFunds)
		}
		next.Cash = model.Round2(state.Cash.Sub(amount))
		next.Holdings[intent.Symbol] = held + intent.Quantity

	case model.SideSell:
		if intent.Quantity > held {
			return reject(ErrInsufficientHoldings)
		}
		next.Cash = model.Round2(state.Cash.Add(amount))
		if remaining := held - intent.Quantity; remaining > 0 {
			next.Holdings[intent.Symbol] = remaining
		} else {
			delete(next.Holdings, intent.Symbol)
		}
	}
	next.XP = addXP(state.XP, xpReward)

	return model.TradeResult{Accepted: true, State: next, Cost: amount}
}

// AwardXP adds amount to the XP counter. Negative amounts are ignored and the
// counter saturates at math.MaxInt64, so XP never decreases.
func AwardXP(state model.LedgerState, amount int64) model.LedgerState {
	next := state.Clone()
	if amount > 0 {
		next.XP = addXP(next.XP, amount)
	}
	return next
}

// addXP returns xp+n for non-negative n, clamped to math.MaxInt64.
func addXP(xp, n int64) int64 {
	if n > math.MaxInt64-xp {
		return math.MaxInt64
	}
	return xp + n
}

// Value marks the account to market: cash plus every holding at its price.
// Holdings without a price are valued at zero.
func Value(state model.LedgerState, prices map[string]decimal.Decimal) decimal.Decimal {
	total := state.Cash
	for sym, qty := range state.Holdings {
		if p, ok := prices[sym]; ok {
			total = total.Add(p.Mul(decimal.NewFromInt(qty)))
		}
	}
	return model.Round2(total)
}
