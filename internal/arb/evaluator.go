// Package arb decides whether a pair of YES/NO quotes is worth buying.
package arb

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/domain"
)

// Params are the pricing gates for opportunity detection.
type Params struct {
	// ExecutionSpread is the required edge below $1: the combined ask must
	// not exceed 1 - ExecutionSpread.
	ExecutionSpread float64
	// MinProfitThreshold is the minimum (1-combined)/combined ratio.
	MinProfitThreshold float64
	// MinYesPrice and MinNoPrice skip pairs where a leg trades below the
	// floor (a near-certain outcome leaves nothing on the other side).
	// Zero disables a floor.
	MinYesPrice float64
	MinNoPrice  float64
	// MaxOrderSizeUSDC caps the notional of the larger leg.
	MaxOrderSizeUSDC float64
}

// Evaluator applies the profit gates to the current pair of quotes. It is
// stateless apart from its parameters; the window controller calls it once
// per accepted book update.
type Evaluator struct {
	params Params
	logger *slog.Logger
}

// New creates an Evaluator with the given parameters.
func New(params Params, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		params: params,
		logger: logger.With(slog.String("component", "evaluator")),
	}
}

// Evaluate returns a sized opportunity when both asks clear every gate.
// The bool result is false when no opportunity exists; that is the common
// case and not an error.
func (e *Evaluator) Evaluate(w domain.MarketWindow, yes, no domain.QuoteSnapshot, now time.Time) (domain.Opportunity, bool) {
	yesAsk := yes.BestAsk
	noAsk := no.BestAsk

	combined := yesAsk + noAsk
	if combined <= 0 {
		return domain.Opportunity{}, false
	}
	if combined > 1-e.params.ExecutionSpread {
		return domain.Opportunity{}, false
	}

	profit := (1 - combined) / combined
	if profit < e.params.MinProfitThreshold {
		return domain.Opportunity{}, false
	}

	if e.params.MinYesPrice > 0 && yesAsk < e.params.MinYesPrice {
		e.logger.Debug("yes leg below price floor",
			slog.String("window_id", w.ID),
			slog.Float64("yes_ask", yesAsk),
		)
		return domain.Opportunity{}, false
	}
	if e.params.MinNoPrice > 0 && noAsk < e.params.MinNoPrice {
		e.logger.Debug("no leg below price floor",
			slog.String("window_id", w.ID),
			slog.Float64("no_ask", noAsk),
		)
		return domain.Opportunity{}, false
	}

	size := e.sizeFor(yes, no)
	if size <= 0 {
		return domain.Opportunity{}, false
	}

	opp := domain.Opportunity{
		ID:          uuid.NewString(),
		WindowID:    w.ID,
		Symbol:      w.Symbol,
		Yes:         yes,
		No:          no,
		Combined:    combined,
		ProfitRatio: profit,
		Size:        size,
		DetectedAt:  now,
	}

	e.logger.Info("opportunity detected",
		slog.String("window_id", w.ID),
		slog.String("symbol", w.Symbol),
		slog.Float64("yes_ask", yesAsk),
		slog.Float64("no_ask", noAsk),
		slog.Float64("combined", combined),
		slog.Float64("profit_ratio", profit),
		slog.Float64("size", size),
	)
	return opp, true
}

// sizeFor bounds the per-leg share count by the displayed depth of both
// legs and by the notional cap on the more expensive leg. Buying the same
// count on both sides keeps the position hedged even when depth is thin.
func (e *Evaluator) sizeFor(yes, no domain.QuoteSnapshot) float64 {
	size := yes.AskSize
	if no.AskSize < size {
		size = no.AskSize
	}

	maxAsk := yes.BestAsk
	if no.BestAsk > maxAsk {
		maxAsk = no.BestAsk
	}
	if maxAsk > 0 {
		if capSize := e.params.MaxOrderSizeUSDC / maxAsk; capSize < size {
			size = capSize
		}
	}
	return size
}
