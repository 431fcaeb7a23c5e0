// Package executor turns detected opportunities into signed, paired YES/NO
// orders and reconciles their fills against the exposure ledger.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/crypto"
	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/domain"
)

// OrderGateway is the exchange surface the executor submits through.
// Implemented by the Polymarket CLOB client.
type OrderGateway interface {
	PostOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	CancelAll(ctx context.Context) error
}

// OrderSigner signs CLOB order payloads. Implemented by crypto.Signer.
type OrderSigner interface {
	SignOrder(order crypto.OrderPayload) (string, error)
}

// Reserver is the exposure ledger surface the executor needs.
type Reserver interface {
	TryReserve(yesNotional, noNotional float64) (string, error)
	Release(id string, yesNotional, noNotional float64) error
	ReleaseAll(id string) error
}

// EventSink receives engine events for the bus and notification channels.
type EventSink interface {
	Emit(ctx context.Context, ev domain.Event)
}

// Config holds the execution parameters resolved from configuration.
type Config struct {
	Wallet         string
	SignatureType  int
	OrderType      domain.OrderType
	GtdExpiration  time.Duration
	SlippageFirst  float64 // rising or flat leg
	SlippageSecond float64 // falling leg
	// MinNotionalUSDC is the exchange minimum per leg. Pairs whose legs
	// would fall below it are skipped before anything is reserved.
	MinNotionalUSDC float64
	// RateLimit caps order submissions per wallet per second.
	RateLimit int
}

// Executor places both legs of an opportunity and tracks resting orders
// until every share is either filled or cancelled. The reservation backing
// a pair is only fully released once the merge job confirms the merge.
type Executor struct {
	cfg     Config
	gateway OrderGateway
	signer  OrderSigner
	ledger  Reserver
	store   domain.PairStore
	limiter domain.RateLimiter
	events  EventSink
	dedup   *Dedup
	logger  *slog.Logger

	// gtdGrace pads the expiry resolve past the exchange-side expiration.
	gtdGrace time.Duration

	mu   sync.Mutex
	open map[string][]*pairState // windowID -> pairs with unresolved legs
}

// New creates an Executor. store, limiter and events may be nil; the
// corresponding steps are skipped.
func New(cfg Config, gateway OrderGateway, signer OrderSigner, ledger Reserver, store domain.PairStore, limiter domain.RateLimiter, events EventSink, logger *slog.Logger) *Executor {
	if cfg.MinNotionalUSDC <= 0 {
		cfg.MinNotionalUSDC = 1.0
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	return &Executor{
		cfg:      cfg,
		gateway:  gateway,
		signer:   signer,
		ledger:   ledger,
		store:    store,
		limiter:  limiter,
		events:   events,
		dedup:    NewDedup(30 * time.Second),
		logger:   logger.With(slog.String("component", "executor")),
		gtdGrace: 2 * time.Second,
		open:     make(map[string][]*pairState),
	}
}

// Execute reserves exposure for the opportunity, submits both legs, and
// reconciles immediate fills. Resting legs (GTC/GTD) stay tracked until
// resolved by expiry, cutoff, or window close.
func (e *Executor) Execute(ctx context.Context, w domain.MarketWindow, opp domain.Opportunity) (domain.PairExecution, error) {
	log := e.logger.With(
		slog.String("window_id", w.ID),
		slog.String("symbol", w.Symbol),
	)

	key := pairKey(w.ID, opp.Yes.BestAsk, opp.No.BestAsk)
	if e.dedup.IsDuplicate(key) {
		log.Debug("pair deduplicated, book unchanged since last attempt")
		return domain.PairExecution{}, nil
	}

	yesPrice := clampPrice(opp.Yes.BestAsk + e.slippageFor(opp.Yes.AskDirection))
	noPrice := clampPrice(opp.No.BestAsk + e.slippageFor(opp.No.AskDirection))

	yesNotional := yesPrice * opp.Size
	noNotional := noPrice * opp.Size
	if yesNotional < e.cfg.MinNotionalUSDC || noNotional < e.cfg.MinNotionalUSDC {
		log.Debug("pair below exchange minimum notional",
			slog.Float64("yes_notional", yesNotional),
			slog.Float64("no_notional", noNotional),
		)
		return domain.PairExecution{}, domain.ErrBelowMinSize
	}

	if e.limiter != nil {
		allowed, err := e.limiter.Allow(ctx, "orders:"+e.cfg.Wallet, e.cfg.RateLimit, time.Second)
		if err != nil {
			log.Warn("rate limiter unavailable, skipping pair", slog.String("error", err.Error()))
			return domain.PairExecution{}, fmt.Errorf("executor: rate limit: %w", err)
		}
		if !allowed {
			log.Warn("order rate limit reached, skipping pair")
			return domain.PairExecution{}, domain.ErrRateLimited
		}
	}

	reservationID, err := e.ledger.TryReserve(yesNotional, noNotional)
	if err != nil {
		e.emit(ctx, domain.Event{
			Type:     domain.EventRiskGate,
			Symbol:   w.Symbol,
			WindowID: w.ID,
			Message:  err.Error(),
			At:       time.Now().UTC(),
		})
		return domain.PairExecution{}, fmt.Errorf("executor: reserve: %w", err)
	}

	yesOrder, err := e.buildOrder(w, w.YesAssetID, yesPrice, opp.Size)
	if err != nil {
		_ = e.ledger.ReleaseAll(reservationID)
		return domain.PairExecution{}, fmt.Errorf("executor: build yes leg: %w", err)
	}
	noOrder, err := e.buildOrder(w, w.NoAssetID, noPrice, opp.Size)
	if err != nil {
		_ = e.ledger.ReleaseAll(reservationID)
		return domain.PairExecution{}, fmt.Errorf("executor: build no leg: %w", err)
	}

	ps := newPairState(w, opp, yesPrice, noPrice, reservationID)

	// Submit both legs concurrently, starting the more expensive one
	// first: its level is the thinner side and disappears sooner.
	var yesRes, noRes legResult
	g, gctx := errgroup.WithContext(ctx)
	submitYes := func() error { yesRes = e.submitLeg(gctx, yesOrder, log.With(slog.String("leg", "yes"))); return nil }
	submitNo := func() error { noRes = e.submitLeg(gctx, noOrder, log.With(slog.String("leg", "no"))); return nil }
	if yesPrice >= noPrice {
		g.Go(submitYes)
		g.Go(submitNo)
	} else {
		g.Go(submitNo)
		g.Go(submitYes)
	}
	_ = g.Wait()

	e.dedup.Mark(key)

	ps.applySubmit(yesLeg, yesRes)
	ps.applySubmit(noLeg, noRes)

	if e.store != nil {
		if err := e.store.Create(ctx, ps.snapshot()); err != nil {
			log.Warn("pair persist failed", slog.String("error", err.Error()))
		}
	}

	// Release what immediate-type legs did not take. Resting legs keep
	// their full reservation until resolved.
	e.releaseUnfilled(ps, yesRes, noRes)

	if ps.resolved() {
		return e.finalize(ctx, ps)
	}

	// Track resting legs for later resolution.
	e.mu.Lock()
	e.open[w.ID] = append(e.open[w.ID], ps)
	e.mu.Unlock()

	if e.cfg.OrderType == domain.OrderTypeGTD {
		// Resolve shortly after the exchange-side expiration fires.
		delay := e.cfg.GtdExpiration + e.gtdGrace
		time.AfterFunc(delay, func() {
			rctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			e.resolvePair(rctx, ps, "gtd expiry")
		})
	}

	log.Info("pair submitted with resting legs",
		slog.String("pair_id", ps.exec.ID),
		slog.String("order_type", string(e.cfg.OrderType)),
	)
	return ps.snapshot(), nil
}

// CancelWindow cancels and resolves every open resting order for a window.
// Called at the cutoff transition and again at close.
func (e *Executor) CancelWindow(ctx context.Context, windowID string) {
	e.mu.Lock()
	pairs := e.open[windowID]
	e.mu.Unlock()

	for _, ps := range pairs {
		e.resolvePair(ctx, ps, "window cutoff")
	}
}

// SettleWindow releases reservations of unhedged pairs once the window has
// closed. Hedged pairs keep their reservation until the merge confirms.
func (e *Executor) SettleWindow(ctx context.Context, windowID string) {
	e.mu.Lock()
	pairs := e.open[windowID]
	delete(e.open, windowID)
	e.mu.Unlock()

	for _, ps := range pairs {
		e.resolvePair(ctx, ps, "window close")
	}
}

// Close cancels all open orders at the exchange with a bounded timeout.
// Used during shutdown so no stray orders outlive the process.
func (e *Executor) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.gateway.CancelAll(ctx); err != nil {
		return fmt.Errorf("executor: cancel all on shutdown: %w", err)
	}
	e.logger.Info("all open orders cancelled")
	return nil
}

// submitLeg posts one order and normalizes the result into a legResult.
func (e *Executor) submitLeg(ctx context.Context, order domain.Order, log *slog.Logger) legResult {
	result, err := e.gateway.PostOrder(ctx, order)
	if err != nil {
		log.Warn("order submission failed", slog.String("error", err.Error()))
		// Size and price must survive the error so the leg's full notional
		// is returned to the ledger.
		return legResult{err: err, size: order.Size(), price: order.Price()}
	}

	lr := legResult{orderID: result.OrderID, size: order.Size(), price: order.Price()}
	switch {
	case result.Status == domain.OrderStatusMatched:
		lr.filled = result.FilledSize
		if lr.filled <= 0 {
			lr.filled = order.Size()
		}
	case result.Status == domain.OrderStatusOpen && order.Type.Resting():
		lr.filled = result.FilledSize
		lr.resting = true
	default:
		// FOK killed, FAK with zero take, or a delayed/failed order.
		lr.filled = result.FilledSize
	}

	log.Info("order submitted",
		slog.String("order_id", result.OrderID),
		slog.String("status", string(result.Status)),
		slog.Float64("filled", lr.filled),
	)
	return lr
}

// releaseUnfilled returns notional for the shares immediate legs did not
// take. Resting legs are skipped; their remainder is released at resolve.
func (e *Executor) releaseUnfilled(ps *pairState, yesRes, noRes legResult) {
	var yesBack, noBack float64
	if !yesRes.resting {
		yesBack = (yesRes.size - yesRes.filled) * yesRes.price
	}
	if !noRes.resting {
		noBack = (noRes.size - noRes.filled) * noRes.price
	}
	if yesBack > 0 || noBack > 0 {
		if err := e.ledger.Release(ps.exec.ReservationID, yesBack, noBack); err != nil {
			e.logger.Warn("release after submit failed", slog.String("error", err.Error()))
		}
	}
}

// resolvePair fetches final fills for any resting legs, cancels what is
// still open, releases the unmatched notional, and finalizes the pair.
// Safe to call more than once; only the first call does work.
func (e *Executor) resolvePair(ctx context.Context, ps *pairState, reason string) {
	legs := ps.takeUnresolved()
	if len(legs) == 0 {
		return
	}
	log := e.logger.With(
		slog.String("pair_id", ps.exec.ID),
		slog.String("reason", reason),
	)

	for _, leg := range legs {
		filled, err := e.settleRestingLeg(ctx, leg.orderID)
		if err != nil {
			log.Warn("resting leg resolution failed",
				slog.String("order_id", leg.orderID),
				slog.String("error", err.Error()),
			)
			// Assume nothing beyond the submit-time fill; the remainder
			// is returned so exposure never leaks upward.
			filled = leg.filled
		}
		ps.applyFinalFill(leg.side, filled)

		back := (leg.size - filled) * leg.price
		if back > 0 {
			var yesBack, noBack float64
			if leg.side == yesLeg {
				yesBack = back
			} else {
				noBack = back
			}
			if err := e.ledger.Release(ps.exec.ReservationID, yesBack, noBack); err != nil {
				log.Warn("release after resolve failed", slog.String("error", err.Error()))
			}
		}
	}

	if e.store != nil {
		if err := e.store.UpdateFills(ctx, ps.snapshot()); err != nil {
			log.Warn("pair fill update failed", slog.String("error", err.Error()))
		}
	}

	if _, err := e.finalize(ctx, ps); err != nil {
		log.Warn("pair finalize", slog.String("error", err.Error()))
	}
}

// settleRestingLeg cancels an order if it is still open and returns the
// final matched size.
func (e *Executor) settleRestingLeg(ctx context.Context, orderID string) (float64, error) {
	order, err := e.gateway.GetOrder(ctx, orderID)
	if err != nil {
		return 0, err
	}
	if order.Status == domain.OrderStatusOpen || order.Status == domain.OrderStatusPending {
		if err := e.gateway.CancelOrder(ctx, orderID); err != nil {
			return order.FilledSize, err
		}
		// Re-read so a fill racing the cancel is counted.
		if after, err := e.gateway.GetOrder(ctx, orderID); err == nil {
			return after.FilledSize, nil
		}
	}
	return order.FilledSize, nil
}

// finalize stamps the pair's terminal status, updates the store, and emits
// the matching events. A pair with exactly one filled leg is tolerated: it
// is logged, surfaced as a hedge imbalance, and left to risk accounting.
func (e *Executor) finalize(ctx context.Context, ps *pairState) (domain.PairExecution, error) {
	pair := ps.finalize()
	log := e.logger.With(
		slog.String("pair_id", pair.ID),
		slog.String("window_id", pair.WindowID),
	)

	if e.store != nil {
		if err := e.store.UpdateFills(ctx, pair); err != nil {
			log.Warn("pair status update failed", slog.String("error", err.Error()))
		}
	}

	switch pair.Status {
	case domain.PairStatusFailed:
		// Nothing filled; the reservation has been fully released leg by
		// leg, close out whatever rounding remainder is left.
		_ = e.ledger.ReleaseAll(pair.ReservationID)
		log.Warn("pair failed, no fills")
		return pair, errors.New("executor: both legs missed")

	case domain.PairStatusPartial:
		log.Warn("single leg filled, position unhedged",
			slog.Float64("yes_filled", pair.YesFilled),
			slog.Float64("no_filled", pair.NoFilled),
		)
		e.emit(ctx, domain.Event{
			Type:     domain.EventHedgeImbalance,
			Symbol:   pair.Symbol,
			WindowID: pair.WindowID,
			Message: fmt.Sprintf("pair %s: yes=%.2f no=%.2f shares filled",
				pair.ID, pair.YesFilled, pair.NoFilled),
			At: time.Now().UTC(),
		})
		return pair, nil

	default:
		log.Info("pair hedged",
			slog.Float64("size", pair.MergeableSize()),
			slog.Float64("combined", pair.Combined),
			slog.Float64("profit_ratio", pair.ProfitRatio),
		)
		e.emit(ctx, domain.Event{
			Type:     domain.EventPairExecuted,
			Symbol:   pair.Symbol,
			WindowID: pair.WindowID,
			Message: fmt.Sprintf("pair %s hedged: %.2f shares at combined %.4f",
				pair.ID, pair.MergeableSize(), pair.Combined),
			At: time.Now().UTC(),
		})
		return pair, nil
	}
}

func (e *Executor) emit(ctx context.Context, ev domain.Event) {
	if e.events != nil {
		e.events.Emit(ctx, ev)
	}
}

func (e *Executor) slippageFor(dir domain.PriceDirection) float64 {
	if dir == domain.DirectionDown {
		return e.cfg.SlippageSecond
	}
	return e.cfg.SlippageFirst
}

// clampPrice keeps a slipped limit price inside the valid (0,1] band.
func clampPrice(p float64) float64 {
	if p > 1.0 {
		return 1.0
	}
	return p
}

func pairKey(windowID string, yesAsk, noAsk float64) string {
	return fmt.Sprintf("%s:%.4f:%.4f", windowID, yesAsk, noAsk)
}
