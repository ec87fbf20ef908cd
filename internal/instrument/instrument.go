// Package instrument defines the tradable synthetic instruments and symbol
// validation.
package instrument

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// symbolRegex matches 1–6 upper-case letters, optionally followed by a dot
// class suffix. Example: TECH, GRN, BRK.B
var symbolRegex = regexp.MustCompile(`^[A-Z]{1,6}(\.[A-Z])?$`)

var (
	ErrInvalidSymbol = errors.New("instrument: invalid symbol")
	ErrInvalidPrice  = errors.New("instrument: starting price must be positive")
	ErrDuplicate     = errors.New("instrument: duplicate symbol")
)

// Instrument is a tradable synthetic asset. Identity is immutable.
type Instrument struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	StartingPrice decimal.Decimal `json:"starting_price"`
}

// ParseSymbol normalizes and validates a symbol string.
func ParseSymbol(raw string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	if !symbolRegex.MatchString(sym) {
		return "", fmt.Errorf("%w: %q (expected 1-6 letters, e.g. TECH)", ErrInvalidSymbol, raw)
	}
	return sym, nil
}

// Validate checks a catalog for bad symbols, non-positive prices and
// duplicate keys.
func Validate(list []Instrument) error {
	seen := make(map[string]bool, len(list))
	for _, in := range list {
		sym, err := ParseSymbol(in.Symbol)
		if err != nil {
			return err
		}
		if sym != in.Symbol {
			return fmt.Errorf("%w: %q is not normalized", ErrInvalidSymbol, in.Symbol)
		}
		if !in.StartingPrice.IsPositive() {
			return fmt.Errorf("%w: %s", ErrInvalidPrice, in.Symbol)
		}
		if seen[sym] {
			return fmt.Errorf("%w: %s", ErrDuplicate, sym)
		}
		seen[sym] = true
	}
	return nil
}

// Defaults returns the built-in instrument set.
func Defaults() []Instrument {
	return []Instrument{
		{Symbol: "TECH", Name: "Techno Dynamics", StartingPrice: decimal.RequireFromString("120.00")},
		{Symbol: "GRN", Name: "Green Energy Co", StartingPrice: decimal.RequireFromString("42.00")},
		{Symbol: "BANK", Name: "First Paper Bank", StartingPrice: decimal.RequireFromString("65.50")},
		{Symbol: "MOON", Name: "Moonshot Aerospace", StartingPrice: decimal.RequireFromString("250.00")},
		{Symbol: "PENNY", Name: "Penny Mining Ltd", StartingPrice: decimal.RequireFromString("8.50")},
	}
}
