package trade

import (
	"context"
	"log/slog"
	"time"

	"github.com/atmx/paper-trader/internal/clock"
	"github.com/atmx/paper-trader/internal/metrics"
	"github.com/atmx/paper-trader/internal/model"
)

// Market is the mutable side of the simulated market driven by the clock.
// *simulator.Simulator satisfies it.
type Market interface {
	Advance(now time.Time) model.Market
}

// TickFunc returns the clock callback that advances the market one step,
// publishes the new prices as metrics and fans them out to WebSocket
// clients. hub may be nil.
func TickFunc(m Market, hub *WSHub, logger *slog.Logger) clock.TickFunc {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "feed")

	return func(ctx context.Context, now time.Time) {
		start := time.Now()
		snap := m.Advance(now)
		metrics.TickDuration.Observe(time.Since(start).Seconds())
		metrics.SimulationTicks.Inc()

		prices := make(map[string]string, len(snap.Instruments))
		for sym, series := range snap.Instruments {
			prices[sym] = series.CurrentPrice.StringFixed(model.MoneyScale)
			metrics.InstrumentPrice.WithLabelValues(sym).Set(series.CurrentPrice.InexactFloat64())
		}
		logger.Debug("market tick", "as_of", snap.AsOf, "instruments", len(prices))

		if hub == nil || ctx.Err() != nil {
			return
		}
		hub.Broadcast(WSMessage{
			Type:   "price_tick",
			AsOf:   snap.AsOf.UnixMilli(),
			Prices: prices,
		})
	}
}
