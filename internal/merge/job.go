// Package merge redeems hedged YES/NO pairs back into USDC once their
// market has resolved, via the gasless relayer.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/domain"
	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/platform/polymarket"
)

// ResolutionChecker reports whether a market has resolved. Implemented by
// the Gamma client.
type ResolutionChecker interface {
	GetMarketResolution(ctx context.Context, marketID string) (polymarket.MarketResolution, error)
}

// Merger submits the on-chain merge. Implemented by the relayer client.
type Merger interface {
	SubmitMerge(ctx context.Context, conditionID string, amount *big.Int, negRisk bool) (string, error)
}

// Releaser frees a pair's exposure reservation once its capital is back.
type Releaser interface {
	ReleaseAll(id string) error
}

// EventSink receives engine events.
type EventSink interface {
	Emit(ctx context.Context, ev domain.Event)
}

// Config holds merge job parameters.
type Config struct {
	// Interval is the scan cadence.
	Interval time.Duration
	// MinProfitUSDC skips merging pairs whose locked-in profit is below
	// this floor. Zero merges everything.
	MinProfitUSDC float64
	// BatchSize bounds how many pairs one scan processes.
	BatchSize int
}

// Job periodically scans for hedged pairs whose window has closed, waits
// for market resolution, and merges the matched sets back to collateral.
type Job struct {
	cfg      Config
	store    domain.PairStore
	resolver ResolutionChecker
	merger   Merger
	ledger   Releaser
	events   EventSink
	logger   *slog.Logger
}

// New creates a merge Job.
func New(cfg Config, store domain.PairStore, resolver ResolutionChecker, merger Merger, ledger Releaser, events EventSink, logger *slog.Logger) *Job {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Job{
		cfg:      cfg,
		store:    store,
		resolver: resolver,
		merger:   merger,
		ledger:   ledger,
		events:   events,
		logger:   logger.With(slog.String("component", "merge")),
	}
}

// Run scans on the configured interval until the context is cancelled.
func (j *Job) Run(ctx context.Context) error {
	j.logger.Info("merge job started", slog.Duration("interval", j.cfg.Interval))
	defer j.logger.Info("merge job stopped")

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := j.scan(ctx); err != nil {
				j.logger.Warn("merge scan failed", slog.String("error", err.Error()))
			}
		}
	}
}

// scan processes one batch of mergeable pairs. Pairs whose market has not
// resolved yet stay in the queue for the next scan.
func (j *Job) scan(ctx context.Context) error {
	pairs, err := j.store.ListMergeable(ctx, time.Now(), j.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("merge: list mergeable: %w", err)
	}

	for _, p := range pairs {
		if err := j.mergePair(ctx, p); err != nil {
			j.logger.Warn("pair merge failed",
				slog.String("pair_id", p.ID),
				slog.String("error", err.Error()),
			)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// mergePair redeems one hedged pair. The merged amount is the share count
// covered on both legs; any excess on one leg rides the resolution instead.
func (j *Job) mergePair(ctx context.Context, p domain.PairExecution) error {
	res, err := j.resolver.GetMarketResolution(ctx, p.WindowID)
	if err != nil {
		return fmt.Errorf("merge: resolution %s: %w", p.WindowID, err)
	}
	if !res.Closed {
		return nil // not resolved yet, retry next scan
	}

	mergeable := p.MergeableSize()
	if mergeable <= 0 {
		return nil
	}

	// Each merged set redeems for $1 against the combined entry cost.
	profit := mergeable * (1 - p.YesPrice - p.NoPrice)
	if j.cfg.MinProfitUSDC > 0 && profit < j.cfg.MinProfitUSDC {
		j.logger.Debug("merge below profit floor",
			slog.String("pair_id", p.ID),
			slog.Float64("profit", profit),
		)
		return nil
	}

	amount := big.NewInt(int64(mergeable*1e6 + 0.5))
	txHash, err := j.merger.SubmitMerge(ctx, p.ConditionID, amount, p.NegRisk)
	if err != nil {
		return fmt.Errorf("merge: submit %s: %w", p.ID, err)
	}

	now := time.Now().UTC()
	if err := j.store.MarkMerged(ctx, p.ID, txHash, now); err != nil {
		return fmt.Errorf("merge: mark merged %s: %w", p.ID, err)
	}
	if p.ReservationID != "" {
		// The reservation may already be gone if the process restarted
		// since the pair was opened.
		if err := j.ledger.ReleaseAll(p.ReservationID); err != nil {
			j.logger.Debug("reservation already closed",
				slog.String("reservation_id", p.ReservationID),
			)
		}
	}

	j.logger.Info("pair merged",
		slog.String("pair_id", p.ID),
		slog.String("symbol", p.Symbol),
		slog.Float64("size", mergeable),
		slog.Float64("profit", profit),
		slog.String("tx", txHash),
	)
	j.events.Emit(ctx, domain.Event{
		Type:     domain.EventPairMerged,
		Symbol:   p.Symbol,
		WindowID: p.WindowID,
		Message:  fmt.Sprintf("merged %.2f sets, profit %.4f USDC", mergeable, profit),
		Fields: map[string]string{
			"pair_id": p.ID,
			"tx_hash": txHash,
		},
		At: now,
	})
	return nil
}
