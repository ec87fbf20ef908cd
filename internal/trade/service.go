// Package trade owns the canonical progression state of the local user and
// exposes the paper trading operations over HTTP.
//
// All monetary values use shopspring/decimal, never float64.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/paper-trader/internal/ledger"
	"github.com/atmx/paper-trader/internal/lesson"
	"github.com/atmx/paper-trader/internal/metrics"
	"github.com/atmx/paper-trader/internal/model"
	"github.com/atmx/paper-trader/internal/progression"
)

// PriceSource is a read-only view of the simulated market.
// *simulator.Simulator satisfies it.
type PriceSource interface {
	Price(symbol string) (decimal.Decimal, bool)
	Prices() map[string]decimal.Decimal
	Snapshot() model.Market
	Series(symbol string) (model.PriceSeries, bool)
}

// Service serializes every ledger mutation behind one mutex. The market has
// its own lock inside the PriceSource; a trade reads a price snapshot and
// never waits for the market to be quiescent.
type Service struct {
	market   PriceSource
	progress *progression.Store
	rewards  ledger.Rewards
	wsHub    *WSHub // optional WebSocket hub for real-time broadcasts
	logger   *slog.Logger

	mu    sync.Mutex
	state model.ProgressionState
}

// NewService restores the saved progression and returns a ready service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(ctx context.Context, market PriceSource, progress *progression.Store, rewards ledger.Rewards, hub *WSHub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		market:   market,
		progress: progress,
		rewards:  rewards,
		wsHub:    hub,
		logger:   logger.With("component", "trade"),
		state:    progress.Load(ctx),
	}
}

// Receipt describes an executed or rejected trade.
type Receipt struct {
	TradeID   string            `json:"trade_id,omitempty"`
	Accepted  bool              `json:"accepted"`
	Reason    string            `json:"reason,omitempty"`
	Symbol    string            `json:"symbol"`
	Side      model.Side        `json:"side"`
	Quantity  int64             `json:"quantity"`
	Price     decimal.Decimal   `json:"price"`
	Cost      decimal.Decimal   `json:"cost"`
	XPAwarded int64             `json:"xp_awarded"`
	Unlocked  []string          `json:"unlocked,omitempty"`
	Ledger    model.LedgerState `json:"ledger"`
}

// Trade executes intent at the current simulated price. A rejected trade
// returns the receipt and the ledger's rejection reason as the error; the
// state is unchanged.
func (s *Service) Trade(ctx context.Context, intent model.TradeIntent) (Receipt, error) {
	start := time.Now()

	receipt := Receipt{Symbol: intent.Symbol, Side: intent.Side, Quantity: intent.Quantity}

	price, ok := s.market.Price(intent.Symbol)
	if !ok {
		s.mu.Lock()
		receipt.Ledger = s.state.Ledger.Clone()
		s.mu.Unlock()
		return s.rejected(receipt, fmt.Errorf("%w: %s", ledger.ErrUnknownSymbol, intent.Symbol))
	}
	receipt.Price = price

	s.mu.Lock()
	defer s.mu.Unlock()

	reward := s.rewards.For(intent.Side)
	res := ledger.ExecuteTrade(s.state.Ledger, intent, price, reward)
	if !res.Accepted {
		receipt.Ledger = res.State.Clone()
		return s.rejected(receipt, res.Reason)
	}

	xpBefore := s.state.Ledger.XP
	next := s.state.Clone()
	next.Ledger = res.State
	ids := append([]string{progression.FirstTrade}, progression.Earned(next)...)
	if intent.Side == model.SideSell {
		ids = append(ids, progression.FirstSell)
	}
	next, unlocked := progression.Unlock(next, ids...)
	s.commit(ctx, next)

	receipt.TradeID = uuid.New().String()
	receipt.Accepted = true
	receipt.Cost = res.Cost
	receipt.XPAwarded = res.State.XP - xpBefore
	receipt.Unlocked = unlocked
	receipt.Ledger = next.Ledger.Clone()

	metrics.TradesTotal.WithLabelValues(string(intent.Side)).Inc()
	metrics.XPAwarded.WithLabelValues("trade").Add(float64(receipt.XPAwarded))
	metrics.TradeLatency.WithLabelValues(string(intent.Side)).Observe(time.Since(start).Seconds())

	s.logger.Info("trade executed",
		"trade_id", receipt.TradeID,
		"symbol", intent.Symbol,
		"side", intent.Side,
		"qty", intent.Quantity,
		"price", price.String(),
		"cost", res.Cost.String(),
		"cash", next.Ledger.Cash.String(),
		"xp", next.Ledger.XP,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "trade_executed",
			TradeID:  receipt.TradeID,
			Symbol:   intent.Symbol,
			Side:     string(intent.Side),
			Quantity: intent.Quantity,
			Price:    price.String(),
		})
	}
	return receipt, nil
}

func (s *Service) rejected(receipt Receipt, reason error) (Receipt, error) {
	receipt.Reason = ReasonCode(reason)
	receipt.Cost = decimal.Zero
	metrics.TradeRejections.WithLabelValues(receipt.Reason).Inc()
	s.logger.Info("trade rejected",
		"symbol", receipt.Symbol,
		"side", receipt.Side,
		"qty", receipt.Quantity,
		"reason", receipt.Reason,
	)
	return receipt, reason
}

// AwardXP grants amount experience points from source (e.g. "quiz").
// Negative amounts are ignored.
func (s *Service) AwardXP(ctx context.Context, amount int64, source string) (model.LedgerState, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	next.Ledger = ledger.AwardXP(next.Ledger, amount)
	next, unlocked := progression.Unlock(next, progression.Earned(next)...)
	s.commit(ctx, next)

	if amount > 0 {
		metrics.XPAwarded.WithLabelValues(source).Add(float64(amount))
	}
	s.logger.Info("xp awarded", "amount", amount, "source", source, "xp", next.Ledger.XP)
	return next.Ledger.Clone(), unlocked
}

// LessonResult is the outcome of completing a lesson.
type LessonResult struct {
	Lesson           lesson.Lesson     `json:"lesson"`
	AlreadyCompleted bool              `json:"already_completed"`
	XPAwarded        int64             `json:"xp_awarded"`
	Unlocked         []string          `json:"unlocked,omitempty"`
	Ledger           model.LedgerState `json:"ledger"`
}

// CompleteLesson awards the lesson's XP the first time it is completed.
func (s *Service) CompleteLesson(ctx context.Context, id string) (LessonResult, error) {
	l, err := lesson.Lookup(id)
	if err != nil {
		return LessonResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	marker := lessonMarker(l.ID)
	if s.state.HasAchievement(marker) {
		return LessonResult{Lesson: l, AlreadyCompleted: true, Ledger: s.state.Ledger.Clone()}, nil
	}

	next := s.state.Clone()
	next.Ledger = ledger.AwardXP(next.Ledger, l.XPReward)
	next, unlocked := progression.Unlock(next, append([]string{marker}, progression.Earned(next)...)...)
	s.commit(ctx, next)

	metrics.XPAwarded.WithLabelValues("lesson").Add(float64(l.XPReward))
	s.logger.Info("lesson completed", "lesson", l.ID, "xp_reward", l.XPReward, "xp", next.Ledger.XP)

	return LessonResult{Lesson: l, XPAwarded: l.XPReward, Unlocked: unlocked, Ledger: next.Ledger.Clone()}, nil
}

// SetPremium marks the user as a subscriber. Nothing else changes.
func (s *Service) SetPremium(ctx context.Context) model.ProgressionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := progression.SetPremium(s.state, true)
	next, _ = progression.Unlock(next, progression.Earned(next)...)
	s.commit(ctx, next)
	s.logger.Info("premium activated")
	return next.Clone()
}

// Reset restores the default state. Only called on explicit user request.
func (s *Service) Reset(ctx context.Context) model.ProgressionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	s.state = s.progress.Reset(saveCtx)
	return s.state.Clone()
}

// State returns a copy of the current progression state.
func (s *Service) State() model.ProgressionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Portfolio marks the ledger to the current market.
func (s *Service) Portfolio() model.Portfolio {
	st := s.State()
	prices := s.market.Prices()

	values := make(map[string]decimal.Decimal, len(st.Ledger.Holdings))
	for sym, qty := range st.Ledger.Holdings {
		if p, ok := prices[sym]; ok {
			values[sym] = model.Round2(p.Mul(decimal.NewFromInt(qty)))
		}
	}
	return model.Portfolio{
		Cash:         st.Ledger.Cash,
		Holdings:     st.Ledger.Holdings,
		HoldingValue: values,
		TotalValue:   ledger.Value(st.Ledger, prices),
		XP:           st.Ledger.XP,
		Achievements: st.AchievementList(),
		Premium:      st.Premium,
	}
}

// saveTimeout bounds one progression write.
const saveTimeout = 5 * time.Second

// commit installs next as the canonical state and persists it. The write
// ignores ctx cancellation and is bounded by saveTimeout. Callers hold mu.
func (s *Service) commit(ctx context.Context, next model.ProgressionState) {
	s.state = next

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	s.progress.Save(saveCtx, next)
}

// ReasonCode maps a rejection error to a stable snake_case code.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrInsufficientHoldings):
		return "insufficient_holdings"
	case errors.Is(err, ledger.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ledger.ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, ledger.ErrInvalidSide):
		return "invalid_side"
	case errors.Is(err, ledger.ErrUnknownSymbol):
		return "unknown_symbol"
	default:
		return "internal"
	}
}

func lessonMarker(id string) string { return progression.LessonPrefix + id }
