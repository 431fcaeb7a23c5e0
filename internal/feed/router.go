// Package feed bridges the Polymarket market data stream to the per-window
// book aggregators. It assigns a monotonic per-asset sequence to every
// emitted snapshot and folds incremental level updates into the last known
// top of book.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/domain"
	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/platform/polymarket"
)

// marketChannels are the WebSocket channels the router consumes.
var marketChannels = []string{"book", "price_change"}

// Stream is the subset of the WebSocket client the router needs.
// Implemented by *polymarket.WSClient.
type Stream interface {
	Subscribe(ctx context.Context, channels []string, assetIDs []string) error
	Unsubscribe(ctx context.Context, channels []string, assetIDs []string) error
	OnQuote(polymarket.QuoteHandler)
	OnPriceChange(polymarket.PriceChangeHandler)
}

// assetSub tracks one subscribed asset: its sink, sequence counter, and
// the last snapshot emitted so price_change deltas can be applied.
type assetSub struct {
	sink    func(domain.QuoteSnapshot)
	seq     uint64
	last    domain.QuoteSnapshot
	hasLast bool
}

// Router fans stream frames out to per-asset sinks. One Router serves all
// concurrently open windows; handlers are registered on the stream once.
type Router struct {
	stream Stream
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]*assetSub // asset ID -> subscription
}

// NewRouter creates a Router on the given stream and registers its frame
// handlers.
func NewRouter(stream Stream, logger *slog.Logger) *Router {
	r := &Router{
		stream: stream,
		logger: logger.With(slog.String("component", "feed")),
		subs:   make(map[string]*assetSub),
	}
	stream.OnQuote(r.onQuote)
	stream.OnPriceChange(r.onPriceChange)
	return r
}

// Subscribe routes snapshots for the given assets to sink. The sink is
// invoked from the stream's read loop and must not block.
func (r *Router) Subscribe(ctx context.Context, assetIDs []string, sink func(domain.QuoteSnapshot)) error {
	r.mu.Lock()
	for _, id := range assetIDs {
		r.subs[id] = &assetSub{sink: sink}
	}
	r.mu.Unlock()

	if err := r.stream.Subscribe(ctx, marketChannels, assetIDs); err != nil {
		r.mu.Lock()
		for _, id := range assetIDs {
			delete(r.subs, id)
		}
		r.mu.Unlock()
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	return nil
}

// Unsubscribe stops routing for the given assets.
func (r *Router) Unsubscribe(ctx context.Context, assetIDs []string) error {
	r.mu.Lock()
	for _, id := range assetIDs {
		delete(r.subs, id)
	}
	r.mu.Unlock()

	if err := r.stream.Unsubscribe(ctx, marketChannels, assetIDs); err != nil {
		return fmt.Errorf("feed: unsubscribe: %w", err)
	}
	return nil
}

// onQuote handles a full top-of-book snapshot.
func (r *Router) onQuote(q domain.QuoteSnapshot) {
	r.mu.Lock()
	sub, ok := r.subs[q.AssetID]
	if !ok {
		r.mu.Unlock()
		return
	}
	sub.seq++
	q.Seq = sub.seq
	sub.last = q
	sub.hasLast = true
	sink := sub.sink
	r.mu.Unlock()

	sink(q)
}

// onPriceChange folds an incremental level update into the last snapshot.
// Only changes that move or resize the top of book produce a new snapshot;
// deeper levels are ignored since the engine trades top of book only. A
// sell-side size of zero at the best ask empties the ask and the engine
// stands down until the next full snapshot.
func (r *Router) onPriceChange(pc polymarket.PriceChange) {
	r.mu.Lock()
	sub, ok := r.subs[pc.AssetID]
	if !ok || !sub.hasLast {
		r.mu.Unlock()
		return
	}

	q := sub.last
	changed := false

	switch strings.ToUpper(pc.Side) {
	case "SELL":
		switch {
		case pc.Price == q.BestAsk:
			q.AskSize = pc.Size
			if pc.Size == 0 {
				// Best ask gone; the true next level is unknown until the
				// next book snapshot.
				q.BestAsk = 0
			}
			changed = true
		case pc.Size > 0 && q.HasAsk() && pc.Price < q.BestAsk:
			q.BestAsk = pc.Price
			q.AskSize = pc.Size
			changed = true
		}
	case "BUY":
		switch {
		case pc.Price == q.BestBid:
			q.BidSize = pc.Size
			if pc.Size == 0 {
				q.BestBid = 0
			}
			changed = true
		case pc.Size > 0 && pc.Price > q.BestBid:
			q.BestBid = pc.Price
			q.BidSize = pc.Size
			changed = true
		}
	}

	if !changed {
		r.mu.Unlock()
		return
	}

	if !pc.Timestamp.IsZero() {
		q.Timestamp = pc.Timestamp
	} else {
		q.Timestamp = time.Now()
	}
	sub.seq++
	q.Seq = sub.seq
	sub.last = q
	sink := sub.sink
	r.mu.Unlock()

	sink(q)
}
