// Package window drives each 5-minute market window through its lifecycle
// and runs the evaluation loop while the window is tradable.
package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/book"
	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/domain"
)

// QuoteFeed delivers top-of-book snapshots for subscribed assets. The sink
// is invoked from the feed's read loop; implementations route by asset ID.
type QuoteFeed interface {
	Subscribe(ctx context.Context, assetIDs []string, sink func(domain.QuoteSnapshot)) error
	Unsubscribe(ctx context.Context, assetIDs []string) error
}

// Evaluator decides whether the current pair of quotes is an opportunity.
type Evaluator interface {
	Evaluate(w domain.MarketWindow, yes, no domain.QuoteSnapshot, now time.Time) (domain.Opportunity, bool)
}

// PairExecutor opens pairs and winds down a window's resting orders.
type PairExecutor interface {
	Execute(ctx context.Context, w domain.MarketWindow, opp domain.Opportunity) (domain.PairExecution, error)
	CancelWindow(ctx context.Context, windowID string)
	SettleWindow(ctx context.Context, windowID string)
}

// EventSink receives engine events.
type EventSink interface {
	Emit(ctx context.Context, ev domain.Event)
}

// Config holds lifecycle timing parameters.
type Config struct {
	// StopBeforeEnd is the cutoff margin before window close. Zero skips
	// the cutoff phase entirely.
	StopBeforeEnd time.Duration
	// MaxStale is the maximum quote age for a leg to count as fresh.
	MaxStale time.Duration
}

// Controller consumes discovered windows and runs one goroutine per
// window. Within a window, evaluation is strictly serialized: one loop
// reads book updates, evaluates, and executes before looking at the next.
type Controller struct {
	cfg     Config
	feed    QuoteFeed
	eval    Evaluator
	exec    PairExecutor // nil in monitor mode
	events  EventSink
	windows <-chan domain.MarketWindow
	logger  *slog.Logger
}

// New creates a Controller reading windows from the given channel. Pass a
// nil executor to run in monitor mode, where opportunities are published
// but never traded.
func New(cfg Config, windows <-chan domain.MarketWindow, feed QuoteFeed, eval Evaluator, exec PairExecutor, events EventSink, logger *slog.Logger) *Controller {
	return &Controller{
		cfg:     cfg,
		feed:    feed,
		eval:    eval,
		exec:    exec,
		events:  events,
		windows: windows,
		logger:  logger.With(slog.String("component", "window")),
	}
}

// Run processes discovered windows until the context is cancelled or the
// discovery channel closes. Each window runs independently; a failed
// window is logged and does not stop its siblings.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("window controller started")
	defer c.logger.Info("window controller stopped")

	g, gctx := errgroup.WithContext(ctx)
	for {
		select {
		case <-gctx.Done():
			return g.Wait()
		case w, ok := <-c.windows:
			if !ok {
				return g.Wait()
			}
			g.Go(func() error {
				if err := c.runWindow(gctx, w); err != nil && !errors.Is(err, context.Canceled) {
					c.logger.Error("window run failed",
						slog.String("window_id", w.ID),
						slog.String("error", err.Error()),
					)
				}
				return nil
			})
		}
	}
}

// runWindow owns a single window from discovery to teardown.
func (c *Controller) runWindow(ctx context.Context, w domain.MarketWindow) error {
	log := c.logger.With(
		slog.String("window_id", w.ID),
		slog.String("symbol", w.Symbol),
		slog.Time("close_at", w.CloseTime),
	)

	agg := book.New(log)
	legs := []string{w.YesAssetID, w.NoAssetID}

	if err := c.feed.Subscribe(ctx, legs, func(q domain.QuoteSnapshot) {
		agg.Update(q)
	}); err != nil {
		return fmt.Errorf("window: subscribe %s: %w", w.ID, err)
	}
	defer func() {
		uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.feed.Unsubscribe(uctx, legs); err != nil {
			log.Warn("unsubscribe failed", slog.String("error", err.Error()))
		}
		agg.Reset()
	}()

	state := domain.WindowPending
	transition := func(to domain.WindowState) bool {
		if to <= state {
			return false
		}
		log.Info("window state",
			slog.String("from", state.String()),
			slog.String("to", to.String()),
		)
		state = to
		c.emit(ctx, domain.Event{
			Type:     domain.EventWindowState,
			Symbol:   w.Symbol,
			WindowID: w.ID,
			Message:  to.String(),
			At:       time.Now().UTC(),
		})
		return true
	}

	now := time.Now()
	cutoffAt := w.CutoffTime(c.cfg.StopBeforeEnd)
	hasCutoff := c.cfg.StopBeforeEnd > 0

	openTimer := time.NewTimer(time.Until(w.OpenTime))
	defer openTimer.Stop()
	cutoffTimer := time.NewTimer(time.Until(cutoffAt))
	defer cutoffTimer.Stop()
	closeTimer := time.NewTimer(time.Until(w.CloseTime))
	defer closeTimer.Stop()

	if !now.Before(w.OpenTime) {
		transition(domain.WindowActive)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-openTimer.C:
			transition(domain.WindowActive)

		case <-agg.Updates():
			if state != domain.WindowActive {
				continue
			}
			c.evaluate(ctx, w, agg, cutoffAt, log)

		case <-cutoffTimer.C:
			if !hasCutoff {
				continue
			}
			if transition(domain.WindowCutoff) && c.exec != nil {
				c.exec.CancelWindow(ctx, w.ID)
			}

		case <-closeTimer.C:
			transition(domain.WindowClosed)
			if c.exec != nil {
				c.exec.CancelWindow(ctx, w.ID)
				c.exec.SettleWindow(ctx, w.ID)
			}
			return nil
		}
	}
}

// evaluate runs one detection pass over the current book state and, in
// trade mode, hands any opportunity to the executor. Both steps happen on
// the window's own goroutine, so evaluation never overlaps for a window.
func (c *Controller) evaluate(ctx context.Context, w domain.MarketWindow, agg *book.Aggregator, cutoffAt time.Time, log *slog.Logger) {
	now := time.Now()
	if !now.Before(cutoffAt) {
		// The timer may still be in flight; never open pairs past cutoff.
		return
	}

	yes, no, err := agg.Pair(w.YesAssetID, w.NoAssetID, now, c.cfg.MaxStale)
	if err != nil {
		log.Debug("book not tradable", slog.String("error", err.Error()))
		return
	}

	opp, ok := c.eval.Evaluate(w, yes, no, now)
	if !ok {
		return
	}

	c.emit(ctx, domain.Event{
		Type:     domain.EventOpportunity,
		Symbol:   w.Symbol,
		WindowID: w.ID,
		Message: fmt.Sprintf("combined %.4f, profit %.4f, size %.2f",
			opp.Combined, opp.ProfitRatio, opp.Size),
		At: now.UTC(),
	})

	if c.exec == nil {
		return
	}
	if _, err := c.exec.Execute(ctx, w, opp); err != nil {
		log.Warn("pair execution failed", slog.String("error", err.Error()))
	}
}

func (c *Controller) emit(ctx context.Context, ev domain.Event) {
	if c.events != nil {
		c.events.Emit(ctx, ev)
	}
}
