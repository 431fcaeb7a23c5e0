// Package book maintains the latest top-of-book quote for each leg of a
// window and wakes the evaluation loop when a quote changes.
package book

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/domain"
)

// Aggregator holds the most recent accepted QuoteSnapshot per asset ID.
// Updates are gated on the upstream sequence number so out-of-order frames
// from a reconnecting stream can never roll a quote backwards.
type Aggregator struct {
	mu     sync.RWMutex
	quotes map[string]domain.QuoteSnapshot

	// updates is a coalescing wakeup: capacity 1, non-blocking send. The
	// consumer always re-reads the latest state, so dropped signals while
	// one is already pending lose nothing.
	updates chan struct{}

	logger *slog.Logger
}

// New creates an empty Aggregator.
func New(logger *slog.Logger) *Aggregator {
	return &Aggregator{
		quotes:  make(map[string]domain.QuoteSnapshot),
		updates: make(chan struct{}, 1),
		logger:  logger.With(slog.String("component", "book")),
	}
}

// Updates returns the wakeup channel. It receives (at least) one signal
// after every accepted update.
func (a *Aggregator) Updates() <-chan struct{} {
	return a.updates
}

// Update applies a snapshot and reports whether it was accepted. Snapshots
// with a missing asset ID or zero timestamp are malformed and dropped.
// Snapshots whose sequence number or timestamp does not advance past the
// stored quote are stale and dropped. Rejections are logged, never fatal.
func (a *Aggregator) Update(snap domain.QuoteSnapshot) bool {
	if snap.AssetID == "" || snap.Timestamp.IsZero() {
		a.logger.Warn("malformed quote dropped",
			slog.String("asset_id", snap.AssetID),
		)
		return false
	}

	a.mu.Lock()
	prev, ok := a.quotes[snap.AssetID]
	if ok {
		if snap.Seq <= prev.Seq {
			a.mu.Unlock()
			a.logger.Debug("stale quote dropped",
				slog.String("asset_id", snap.AssetID),
				slog.Uint64("seq", snap.Seq),
				slog.Uint64("held_seq", prev.Seq),
			)
			return false
		}
		if snap.Timestamp.Before(prev.Timestamp) {
			a.mu.Unlock()
			a.logger.Debug("out-of-order quote dropped",
				slog.String("asset_id", snap.AssetID),
				slog.Time("ts", snap.Timestamp),
			)
			return false
		}
		switch {
		case snap.BestAsk > prev.BestAsk:
			snap.AskDirection = domain.DirectionUp
		case snap.BestAsk < prev.BestAsk:
			snap.AskDirection = domain.DirectionDown
		default:
			snap.AskDirection = prev.AskDirection
		}
	} else {
		snap.AskDirection = domain.DirectionFlat
	}
	a.quotes[snap.AssetID] = snap
	a.mu.Unlock()

	select {
	case a.updates <- struct{}{}:
	default:
	}
	return true
}

// Get returns the held snapshot for an asset ID.
func (a *Aggregator) Get(assetID string) (domain.QuoteSnapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	q, ok := a.quotes[assetID]
	return q, ok
}

// Pair returns both legs when each holds a fresh, usable ask. Missing,
// stale, or ask-less legs return ErrStaleQuote so the caller treats the
// book as one-sided and stands down.
func (a *Aggregator) Pair(yesID, noID string, now time.Time, maxAge time.Duration) (yes, no domain.QuoteSnapshot, err error) {
	a.mu.RLock()
	yes, yesOK := a.quotes[yesID]
	no, noOK := a.quotes[noID]
	a.mu.RUnlock()

	if !yesOK || !yes.HasAsk() || !yes.Fresh(now, maxAge) {
		return yes, no, domain.ErrStaleQuote
	}
	if !noOK || !no.HasAsk() || !no.Fresh(now, maxAge) {
		return yes, no, domain.ErrStaleQuote
	}
	return yes, no, nil
}

// Reset discards all held quotes. Called on stream reconnect so freshness
// is re-established from new snapshots only, and at window teardown.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.quotes = make(map[string]domain.QuoteSnapshot)
	a.mu.Unlock()
}
