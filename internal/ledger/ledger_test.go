package ledger

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/atmx/paper-trader/internal/model"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func state(cash string, holdings map[string]int64, xp int64) model.LedgerState {
	if holdings == nil {
		holdings = map[string]int64{}
	}
	return model.LedgerState{Cash: d(cash), Holdings: holdings, XP: xp}
}

func buy(sym string, qty int64) model.TradeIntent {
	return model.TradeIntent{Symbol: sym, Side: model.SideBuy, Quantity: qty}
}

func sell(sym string, qty int64) model.TradeIntent {
	return model.TradeIntent{Symbol: sym, Side: model.SideSell, Quantity: qty}
}

// --- Scenarios ---

func TestExecuteTrade_ScenarioA_Buy(t *testing.T) {
	r := DefaultRewards()
	res := ExecuteTrade(Reset(d("10000")), buy("TECH", 10), d("120.00"), r.For(model.SideBuy))

	if !res.Accepted {
		t.Fatalf("expected accepted, got reason %v", res.Reason)
	}
	if !res.Cost.Equal(d("1200.00")) {
		t.Errorf("expected cost 1200.00, got %s", res.Cost)
	}
	if !res.State.Cash.Equal(d("8800.00")) {
		t.Errorf("expected cash 8800.00, got %s", res.State.Cash)
	}
	if res.State.Holdings["TECH"] != 10 || len(res.State.Holdings) != 1 {
		t.Errorf("expected holdings {TECH:10}, got %v", res.State.Holdings)
	}
	if res.State.XP != 5 {
		t.Errorf("expected xp 5, got %d", res.State.XP)
	}
}

func TestExecuteTrade_ScenarioB_InsufficientFunds(t *testing.T) {
	before := state("100", map[string]int64{"GRN": 1}, 3)
	res := ExecuteTrade(before, buy("TECH", 3), d("50.00"), 5)

	if res.Accepted {
		t.Fatal("expected rejection")
	}
	if !errors.Is(res.Reason, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", res.Reason)
	}
	if !res.State.Cash.Equal(d("100")) {
		t.Errorf("cash changed: %s", res.State.Cash)
	}
	if !reflect.DeepEqual(res.State.Holdings, map[string]int64{"GRN": 1}) {
		t.Errorf("holdings changed: %v", res.State.Holdings)
	}
}

func TestExecuteTrade_ScenarioC_SellAllRemovesEntry(t *testing.T) {
	before := state("500.00", map[string]int64{"GRN": 5}, 0)
	res := ExecuteTrade(before, sell("GRN", 5), d("42.00"), 2)

	if !res.Accepted {
		t.Fatalf("expected accepted, got %v", res.Reason)
	}
	if !res.State.Cash.Equal(d("710.00")) {
		t.Errorf("expected cash 710.00, got %s", res.State.Cash)
	}
	if _, present := res.State.Holdings["GRN"]; present {
		t.Errorf("holding should be removed, got %v", res.State.Holdings)
	}
	if res.State.XP != 2 {
		t.Errorf("expected xp 2, got %d", res.State.XP)
	}
}

func TestExecuteTrade_ScenarioD_SellWithoutHolding(t *testing.T) {
	res := ExecuteTrade(state("0", nil, 0), sell("MOON", 1), d("250.00"), 2)
	if res.Accepted || !errors.Is(res.Reason, ErrInsufficientHoldings) {
		t.Errorf("expected ErrInsufficientHoldings, got accepted=%v reason=%v", res.Accepted, res.Reason)
	}
}

// --- Edge cases ---

func TestExecuteTrade_PartialSellKeepsRemainder(t *testing.T) {
	res := ExecuteTrade(state("0", map[string]int64{"BANK": 7}, 0), sell("BANK", 3), d("65.50"), 2)
	if !res.Accepted {
		t.Fatalf("unexpected rejection: %v", res.Reason)
	}
	if res.State.Holdings["BANK"] != 4 {
		t.Errorf("expected 4 remaining, got %d", res.State.Holdings["BANK"])
	}
	if !res.State.Cash.Equal(d("196.50")) {
		t.Errorf("expected cash 196.50, got %s", res.State.Cash)
	}
}

func TestExecuteTrade_BuyExactlyAllCash(t *testing.T) {
	res := ExecuteTrade(state("150.00", nil, 0), buy("TECH", 3), d("50.00"), 5)
	if !res.Accepted {
		t.Fatalf("buy costing exactly the cash balance should succeed: %v", res.Reason)
	}
	if !res.State.Cash.IsZero() {
		t.Errorf("expected zero cash, got %s", res.State.Cash)
	}
}

func TestExecuteTrade_CostRoundedHalfUp(t *testing.T) {
	// 3 × 0.335 = 1.005 → 1.01
	res := ExecuteTrade(state("10.00", nil, 0), buy("PENNY", 3), d("0.335"), 0)
	if !res.Accepted {
		t.Fatalf("unexpected rejection: %v", res.Reason)
	}
	if !res.Cost.Equal(d("1.01")) {
		t.Errorf("expected cost 1.01, got %s", res.Cost)
	}
	if !res.State.Cash.Equal(d("8.99")) {
		t.Errorf("expected cash 8.99, got %s", res.State.Cash)
	}
}

func TestExecuteTrade_InvalidIntents(t *testing.T) {
	base := state("1000", map[string]int64{"TECH": 1}, 0)
	tests := []struct {
		name   string
		intent model.TradeIntent
		price  decimal.Decimal
		want   error
	}{
		{"zero quantity", buy("TECH", 0), d("1"), ErrInvalidQuantity},
		{"negative quantity", sell("TECH", -1), d("1"), ErrInvalidQuantity},
		{"zero price", buy("TECH", 1), decimal.Zero, ErrInvalidPrice},
		{"negative price", buy("TECH", 1), d("-5"), ErrInvalidPrice},
		{"bad side", model.TradeIntent{Symbol: "TECH", Side: "short", Quantity: 1}, d("1"), ErrInvalidSide},
		{"empty symbol", buy("", 1), d("1"), ErrUnknownSymbol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ExecuteTrade(base, tt.intent, tt.price, 5)
			if res.Accepted || !errors.Is(res.Reason, tt.want) {
				t.Errorf("expected %v, got accepted=%v reason=%v", tt.want, res.Accepted, res.Reason)
			}
			if !reflect.DeepEqual(res.State, base) {
				t.Errorf("state changed on rejection")
			}
		})
	}
}

func TestExecuteTrade_AcceptedDoesNotMutateInput(t *testing.T) {
	before := state("1000", map[string]int64{"TECH": 2}, 1)
	snapshot := before.Clone()

	ExecuteTrade(before, buy("TECH", 1), d("10"), 5)
	ExecuteTrade(before, sell("TECH", 2), d("10"), 2)

	if !reflect.DeepEqual(before, snapshot) {
		t.Errorf("input state mutated: %+v", before)
	}
}

func TestExecuteTrade_NegativeRewardIgnored(t *testing.T) {
	res := ExecuteTrade(state("100", nil, 10), buy("A", 1), d("1"), -50)
	if res.State.XP != 10 {
		t.Errorf("xp must not decrease, got %d", res.State.XP)
	}
}

// --- AwardXP / Reset / Value ---

func TestAwardXP(t *testing.T) {
	s := state("0", nil, 10)
	if got := AwardXP(s, 15).XP; got != 25 {
		t.Errorf("expected 25, got %d", got)
	}
	if got := AwardXP(s, -5).XP; got != 10 {
		t.Errorf("negative award should be ignored, got %d", got)
	}
	if s.XP != 10 {
		t.Error("AwardXP mutated its input")
	}
}

func TestAwardXP_SaturatesAtMax(t *testing.T) {
	s := AwardXP(state("10000", nil, 0), math.MaxInt64)
	if s.XP != math.MaxInt64 {
		t.Fatalf("xp = %d, want MaxInt64", s.XP)
	}
	s = AwardXP(s, 10)
	if s.XP != math.MaxInt64 {
		t.Errorf("xp after overflow award = %d, want MaxInt64", s.XP)
	}

	res := ExecuteTrade(s, model.TradeIntent{Symbol: "TECH", Side: model.SideBuy, Quantity: 1}, d("120.00"), 5)
	if !res.Accepted {
		t.Fatalf("buy rejected: %v", res.Reason)
	}
	if res.State.XP != math.MaxInt64 {
		t.Errorf("xp after buy = %d, want MaxInt64", res.State.XP)
	}
	if !res.State.Cash.Equal(d("9880")) {
		t.Errorf("cash = %s, want 9880.00", res.State.Cash)
	}
}

func TestReset(t *testing.T) {
	s := Reset(DefaultStartingCash)
	if !s.Cash.Equal(d("10000")) || len(s.Holdings) != 0 || s.XP != 0 {
		t.Errorf("unexpected default state: %+v", s)
	}
	if s.Holdings == nil {
		t.Error("holdings map should be initialised")
	}
}

func TestRewards_For(t *testing.T) {
	r := Rewards{Buy: 7, Sell: 3}
	if r.For(model.SideBuy) != 7 || r.For(model.SideSell) != 3 {
		t.Errorf("unexpected rewards: buy=%d sell=%d", r.For(model.SideBuy), r.For(model.SideSell))
	}
}

func TestValue(t *testing.T) {
	s := state("100.00", map[string]int64{"TECH": 2, "GHOST": 4}, 0)
	got := Value(s, map[string]decimal.Decimal{"TECH": d("120.50")})
	if !got.Equal(d("341.00")) {
		t.Errorf("expected 341.00, got %s", got)
	}
}

// --- Properties ---

func TestProperty_TradeSequencesPreserveInvariants(t *testing.T) {
	symbols := []string{"TECH", "GRN", "PENNY"}
	rapid.Check(t, func(t *rapid.T) {
		s := Reset(decimal.New(rapid.Int64Range(0, 5_000_000).Draw(t, "startCents"), -2))
		rewards := Rewards{
			Buy:  rapid.Int64Range(0, 10).Draw(t, "xpBuy"),
			Sell: rapid.Int64Range(0, 10).Draw(t, "xpSell"),
		}
		steps := rapid.IntRange(1, 60).Draw(t, "steps")

		for i := 0; i < steps; i++ {
			intent := model.TradeIntent{
				Symbol:   rapid.SampledFrom(symbols).Draw(t, "symbol"),
				Side:     rapid.SampledFrom([]model.Side{model.SideBuy, model.SideSell}).Draw(t, "side"),
				Quantity: rapid.Int64Range(1, 200).Draw(t, "qty"),
			}
			price := decimal.New(rapid.Int64Range(1, 100_000).Draw(t, "priceMills"), -3)

			before := s.Clone()
			res := ExecuteTrade(s, intent, price, rewards.For(intent.Side))

			if !res.Accepted {
				if !reflect.DeepEqual(res.State, s) || !res.State.Equal(before) {
					t.Fatalf("rejected trade changed state: %+v -> %+v", before, res.State)
				}
				if !errors.Is(res.Reason, ErrInsufficientFunds) && !errors.Is(res.Reason, ErrInsufficientHoldings) {
					t.Fatalf("unexpected rejection reason %v", res.Reason)
				}
			}
			s = res.State

			if s.Cash.IsNegative() {
				t.Fatalf("cash went negative: %s", s.Cash)
			}
			if !s.Cash.Equal(s.Cash.Round(2)) {
				t.Fatalf("cash not rounded to cents: %s", s.Cash)
			}
			for sym, qty := range s.Holdings {
				if qty <= 0 {
					t.Fatalf("holding %s stored with quantity %d", sym, qty)
				}
			}
			if s.XP < before.XP {
				t.Fatalf("xp decreased: %d -> %d", before.XP, s.XP)
			}
		}
	})
}
