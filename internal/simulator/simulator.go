// Package simulator generates and advances synthetic price series.
//
// Seed and Tick are pure: all randomness comes from the Rand passed in, and
// neither function mutates its input. Simulator is the single owner of the
// canonical market and serializes access to it.
package simulator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/paper-trader/internal/instrument"
	"github.com/atmx/paper-trader/internal/model"
)

// ErrInvalidConfig is returned when simulation parameters are out of range.
var ErrInvalidConfig = errors.New("simulator: invalid config")

// Rand is the source of uniform draws in [0, 1). *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Config holds the stochastic update parameters.
type Config struct {
	HistoryLen      int             // max points retained per series
	SeedPoints      int             // points synthesised by Seed
	SeedNoise       float64         // max relative perturbation of the oldest seeded point
	Floor           decimal.Decimal // minimum price
	DriftPct        float64         // per-tick drift bound, relative to last price
	JumpProbability float64         // chance of a news shock per instrument per tick
	JumpAmplitude   float64         // shock bound in absolute currency units
	Interval        time.Duration   // spacing of seeded timestamps
}

// DefaultConfig returns the standard simulation parameters.
func DefaultConfig() Config {
	return Config{
		HistoryLen:      100,
		SeedPoints:      30,
		SeedNoise:       0.05,
		Floor:           decimal.RequireFromString("0.10"),
		DriftPct:        0.01,
		JumpProbability: 0.02,
		JumpAmplitude:   5,
		Interval:        5 * time.Second,
	}
}

// Validate reports whether every parameter is in range.
func (c Config) Validate() error {
	switch {
	case c.HistoryLen < 1:
		return fmt.Errorf("%w: history length %d", ErrInvalidConfig, c.HistoryLen)
	case c.SeedPoints < 1:
		return fmt.Errorf("%w: seed points %d", ErrInvalidConfig, c.SeedPoints)
	case c.SeedNoise < 0 || c.SeedNoise >= 1:
		return fmt.Errorf("%w: seed noise %v", ErrInvalidConfig, c.SeedNoise)
	case !c.Floor.IsPositive():
		return fmt.Errorf("%w: floor %s", ErrInvalidConfig, c.Floor)
	case c.DriftPct < 0 || c.DriftPct >= 1:
		return fmt.Errorf("%w: drift %v", ErrInvalidConfig, c.DriftPct)
	case c.JumpProbability < 0 || c.JumpProbability > 1:
		return fmt.Errorf("%w: jump probability %v", ErrInvalidConfig, c.JumpProbability)
	case c.JumpAmplitude < 0:
		return fmt.Errorf("%w: jump amplitude %v", ErrInvalidConfig, c.JumpAmplitude)
	case c.Interval <= 0:
		return fmt.Errorf("%w: interval %v", ErrInvalidConfig, c.Interval)
	}
	return nil
}

// uniform draws from [lo, hi).
func uniform(rng Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// clamp rounds to cents and enforces the floor.
func clamp(p, floor decimal.Decimal) decimal.Decimal {
	p = model.Round2(p)
	if p.LessThan(floor) {
		return floor
	}
	return p
}

// Seed synthesises an initial history for every instrument. Point i of n is
// start*(1+noise(i)) where noise is bounded by SeedNoise and damped linearly
// to zero at the newest point, so the current price equals the starting price
// (after flooring) and older points look less flat.
func Seed(list []instrument.Instrument, cfg Config, rng Rand, now time.Time) model.Market {
	m := model.Market{AsOf: now, Instruments: make(map[string]model.PriceSeries, len(list))}
	n := cfg.SeedPoints
	for _, in := range list {
		history := make([]model.PricePoint, 0, n)
		for i := 0; i < n; i++ {
			damping := 0.0
			if n > 1 {
				damping = float64(n-1-i) / float64(n-1)
			}
			noise := uniform(rng, -cfg.SeedNoise, cfg.SeedNoise) * damping
			price := clamp(in.StartingPrice.Mul(decimal.NewFromFloat(1+noise)), cfg.Floor)
			ts := now.Add(-time.Duration(n-1-i) * cfg.Interval)
			history = append(history, model.PricePoint{Timestamp: ts.UnixMilli(), Price: price})
		}
		history = truncate(history, cfg.HistoryLen)
		m.Instruments[in.Symbol] = model.PriceSeries{
			Symbol:       in.Symbol,
			CurrentPrice: history[len(history)-1].Price,
			History:      history,
		}
	}
	return m
}

// Tick produces the next market state. Symbols are visited in sorted order
// so a given seed always yields the same draws. The input is not mutated.
func Tick(m model.Market, cfg Config, rng Rand, now time.Time) model.Market {
	next := model.Market{AsOf: now, Instruments: make(map[string]model.PriceSeries, len(m.Instruments))}
	for _, sym := range m.Symbols() {
		s := m.Instruments[sym]
		last := s.CurrentPrice

		drift := last.Mul(decimal.NewFromFloat(uniform(rng, -cfg.DriftPct, cfg.DriftPct)))
		jump := decimal.Zero
		if rng.Float64() < cfg.JumpProbability {
			jump = decimal.NewFromFloat(uniform(rng, -cfg.JumpAmplitude, cfg.JumpAmplitude))
		}
		price := clamp(last.Add(drift).Add(jump), cfg.Floor)

		history := make([]model.PricePoint, len(s.History), len(s.History)+1)
		copy(history, s.History)
		history = append(history, model.PricePoint{Timestamp: now.UnixMilli(), Price: price})

		next.Instruments[sym] = model.PriceSeries{
			Symbol:       sym,
			CurrentPrice: price,
			History:      truncate(history, cfg.HistoryLen),
		}
	}
	return next
}

// truncate drops the oldest points so at most limit remain.
func truncate(h []model.PricePoint, limit int) []model.PricePoint {
	if len(h) <= limit {
		return h
	}
	return h[len(h)-limit:]
}

// Simulator owns the canonical market. Readers get deep copies; Advance is
// the only writer.
type Simulator struct {
	mu     sync.RWMutex
	cfg    Config
	rng    Rand
	market model.Market
}

// New validates the catalog and config and seeds the market.
func New(list []instrument.Instrument, cfg Config, rng Rand, now time.Time) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := instrument.Validate(list); err != nil {
		return nil, err
	}
	return &Simulator{
		cfg:    cfg,
		rng:    rng,
		market: Seed(list, cfg, rng, now),
	}, nil
}

// Config returns the simulation parameters.
func (s *Simulator) Config() Config {
	return s.cfg
}

// Advance applies one tick and returns a snapshot of the new market.
func (s *Simulator) Advance(now time.Time) model.Market {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.market = Tick(s.market, s.cfg, s.rng, now)
	return s.market.Clone()
}

// Snapshot returns a deep copy of the current market.
func (s *Simulator) Snapshot() model.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.market.Clone()
}

// Price returns the current price of symbol.
func (s *Simulator) Price(symbol string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series, ok := s.market.Instruments[symbol]
	if !ok {
		return decimal.Zero, false
	}
	return series.CurrentPrice, true
}

// Prices returns the current price of every instrument.
func (s *Simulator) Prices() map[string]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(s.market.Instruments))
	for sym, series := range s.market.Instruments {
		out[sym] = series.CurrentPrice
	}
	return out
}

// Series returns a copy of one instrument's series.
func (s *Simulator) Series(symbol string) (model.PriceSeries, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series, ok := s.market.Instruments[symbol]
	if !ok {
		return model.PriceSeries{}, false
	}
	return series.Clone(), true
}
