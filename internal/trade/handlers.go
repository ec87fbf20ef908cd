package trade

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/atmx/paper-trader/internal/instrument"
	"github.com/atmx/paper-trader/internal/ledger"
	"github.com/atmx/paper-trader/internal/lesson"
	"github.com/atmx/paper-trader/internal/model"
)

var validate = validator.New()

// TradeRequest is the JSON body for POST /api/v1/trade.
type TradeRequest struct {
	Symbol   string `json:"symbol" validate:"required"`
	Side     string `json:"side" validate:"required,oneof=buy sell"`
	Quantity int64  `json:"quantity" validate:"gt=0"`
}

// XPRequest is the JSON body for POST /api/v1/xp.
type XPRequest struct {
	Amount int64  `json:"amount" validate:"min=0,max=100000"`
	Source string `json:"source" validate:"omitempty,oneof=manual quiz challenge streak"`
}

// MarketSummary is one row of GET /api/v1/markets.
type MarketSummary struct {
	Symbol       string          `json:"symbol"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Change       decimal.Decimal `json:"change"` // vs. oldest retained point
	Points       int             `json:"points"`
}

// Routes mounts the API on r. The caller owns /health and /metrics.
func (s *Service) Routes(r chi.Router) {
	if s.wsHub != nil {
		r.Get("/ws", s.wsHub.HandleWS)
	}

	r.Get("/markets", s.ListMarkets)
	r.Get("/markets/{symbol}", s.GetMarket)
	r.Get("/markets/{symbol}/history", s.GetMarketHistory)

	r.Post("/trade", s.ExecuteTrade)
	r.Get("/portfolio", s.GetPortfolio)

	r.Post("/xp", s.PostXP)
	r.Get("/lessons", s.ListLessons)
	r.Post("/lessons/{lessonID}/complete", s.PostLessonComplete)
	r.Post("/premium", s.PostPremium)
	r.Post("/reset", s.PostReset)
}

// ExecuteTrade handles POST /api/v1/trade
// 200 with a receipt on success, 409 with a reason code when the ledger
// rejects the trade.
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	sym, err := instrument.ParseSymbol(req.Symbol)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	receipt, err := s.Trade(r.Context(), model.TradeIntent{
		Symbol:   sym,
		Side:     model.Side(req.Side),
		Quantity: req.Quantity,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, receipt)
	case errors.Is(err, ledger.ErrUnknownSymbol):
		writeError(w, "unknown symbol: "+sym, http.StatusNotFound)
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrInsufficientHoldings):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  err.Error(),
			"reason": receipt.Reason,
		})
	default:
		writeError(w, err.Error(), http.StatusBadRequest)
	}
}

// ListMarkets handles GET /api/v1/markets
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	m := s.market.Snapshot()
	out := make([]MarketSummary, 0, len(m.Instruments))
	for _, sym := range m.Symbols() {
		series := m.Instruments[sym]
		change := decimal.Zero
		if len(series.History) > 0 {
			change = series.CurrentPrice.Sub(series.History[0].Price)
		}
		out = append(out, MarketSummary{
			Symbol:       sym,
			CurrentPrice: series.CurrentPrice,
			Change:       change,
			Points:       len(series.History),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetMarket handles GET /api/v1/markets/{symbol}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	series, ok := s.lookupSeries(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, MarketSummary{
		Symbol:       series.Symbol,
		CurrentPrice: series.CurrentPrice,
		Change:       series.CurrentPrice.Sub(series.History[0].Price),
		Points:       len(series.History),
	})
}

// GetMarketHistory handles GET /api/v1/markets/{symbol}/history
// Optional ?limit=N returns only the newest N points.
func (s *Service) GetMarketHistory(w http.ResponseWriter, r *http.Request) {
	series, ok := s.lookupSeries(w, r)
	if !ok {
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		if n < len(series.History) {
			series.History = series.History[len(series.History)-n:]
		}
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Service) lookupSeries(w http.ResponseWriter, r *http.Request) (model.PriceSeries, bool) {
	sym, err := instrument.ParseSymbol(chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return model.PriceSeries{}, false
	}
	series, ok := s.market.Series(sym)
	if !ok || len(series.History) == 0 {
		writeError(w, "unknown symbol: "+sym, http.StatusNotFound)
		return model.PriceSeries{}, false
	}
	return series, true
}

// GetPortfolio handles GET /api/v1/portfolio
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Portfolio())
}

// PostXP handles POST /api/v1/xp
func (s *Service) PostXP(w http.ResponseWriter, r *http.Request) {
	var req XPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Source == "" {
		req.Source = "manual"
	}
	st, unlocked := s.AwardXP(r.Context(), req.Amount, req.Source)
	writeJSON(w, http.StatusOK, struct {
		Ledger   model.LedgerState `json:"ledger"`
		Unlocked []string          `json:"unlocked,omitempty"`
	}{st, unlocked})
}

// ListLessons handles GET /api/v1/lessons
// Each lesson carries whether it has already been completed.
func (s *Service) ListLessons(w http.ResponseWriter, r *http.Request) {
	type lessonView struct {
		lesson.Lesson
		Completed bool `json:"completed"`
	}
	st := s.State()
	all := lesson.All()
	out := make([]lessonView, 0, len(all))
	for _, l := range all {
		out = append(out, lessonView{Lesson: l, Completed: st.HasAchievement(lessonMarker(l.ID))})
	}
	writeJSON(w, http.StatusOK, out)
}

// PostLessonComplete handles POST /api/v1/lessons/{lessonID}/complete
func (s *Service) PostLessonComplete(w http.ResponseWriter, r *http.Request) {
	res, err := s.CompleteLesson(r.Context(), chi.URLParam(r, "lessonID"))
	if errors.Is(err, lesson.ErrNotFound) {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PostPremium handles POST /api/v1/premium
func (s *Service) PostPremium(w http.ResponseWriter, r *http.Request) {
	s.SetPremium(r.Context())
	writeJSON(w, http.StatusOK, s.Portfolio())
}

// PostReset handles POST /api/v1/reset
// Discards all progress. Never triggered implicitly.
func (s *Service) PostReset(w http.ResponseWriter, r *http.Request) {
	s.Reset(r.Context())
	writeJSON(w, http.StatusOK, s.Portfolio())
}

// Health handles GET /health
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "paper-trader",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
