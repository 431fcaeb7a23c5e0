package feed

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/domain"
	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/platform/polymarket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStream captures the registered handlers so tests can inject frames.
type fakeStream struct {
	mu            sync.Mutex
	quoteHandler  polymarket.QuoteHandler
	changeHandler polymarket.PriceChangeHandler
	subscribed    [][]string
	unsubscribed  [][]string
	subErr        error
}

func (s *fakeStream) Subscribe(_ context.Context, _ []string, assetIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subErr != nil {
		return s.subErr
	}
	s.subscribed = append(s.subscribed, assetIDs)
	return nil
}

func (s *fakeStream) Unsubscribe(_ context.Context, _ []string, assetIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribed = append(s.unsubscribed, assetIDs)
	return nil
}

func (s *fakeStream) OnQuote(h polymarket.QuoteHandler)             { s.quoteHandler = h }
func (s *fakeStream) OnPriceChange(h polymarket.PriceChangeHandler) { s.changeHandler = h }

type sinkRecorder struct {
	mu    sync.Mutex
	snaps []domain.QuoteSnapshot
}

func (r *sinkRecorder) sink(q domain.QuoteSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, q)
}

func (r *sinkRecorder) all() []domain.QuoteSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.QuoteSnapshot(nil), r.snaps...)
}

func bookSnap(assetID string, bid, bidSize, ask, askSize float64) domain.QuoteSnapshot {
	return domain.QuoteSnapshot{
		AssetID:   assetID,
		BestBid:   bid,
		BidSize:   bidSize,
		BestAsk:   ask,
		AskSize:   askSize,
		Timestamp: time.Now(),
	}
}

func TestRouterAssignsMonotonicSeq(t *testing.T) {
	stream := &fakeStream{}
	r := NewRouter(stream, testLogger())
	rec := &sinkRecorder{}

	require.NoError(t, r.Subscribe(context.Background(), []string{"yes-token"}, rec.sink))

	stream.quoteHandler(bookSnap("yes-token", 0.50, 100, 0.52, 80))
	stream.quoteHandler(bookSnap("yes-token", 0.50, 100, 0.53, 60))
	stream.quoteHandler(bookSnap("other-token", 0.40, 10, 0.42, 10))

	snaps := rec.all()
	require.Len(t, snaps, 2, "unsubscribed assets are dropped")
	assert.Equal(t, uint64(1), snaps[0].Seq)
	assert.Equal(t, uint64(2), snaps[1].Seq)
	assert.Equal(t, 0.53, snaps[1].BestAsk)
}

func TestRouterFoldsPriceChanges(t *testing.T) {
	stream := &fakeStream{}
	r := NewRouter(stream, testLogger())
	rec := &sinkRecorder{}

	require.NoError(t, r.Subscribe(context.Background(), []string{"yes-token"}, rec.sink))
	stream.quoteHandler(bookSnap("yes-token", 0.50, 100, 0.52, 80))

	// Resize at the current best ask.
	stream.changeHandler(polymarket.PriceChange{
		AssetID: "yes-token", Side: "SELL", Price: 0.52, Size: 40, Timestamp: time.Now(),
	})
	// A better ask appears below it.
	stream.changeHandler(polymarket.PriceChange{
		AssetID: "yes-token", Side: "SELL", Price: 0.51, Size: 25, Timestamp: time.Now(),
	})
	// A deeper level changes; top of book is unaffected.
	stream.changeHandler(polymarket.PriceChange{
		AssetID: "yes-token", Side: "SELL", Price: 0.60, Size: 500, Timestamp: time.Now(),
	})

	snaps := rec.all()
	require.Len(t, snaps, 3)

	assert.Equal(t, 0.52, snaps[1].BestAsk)
	assert.Equal(t, 40.0, snaps[1].AskSize)
	assert.Equal(t, uint64(2), snaps[1].Seq)

	assert.Equal(t, 0.51, snaps[2].BestAsk)
	assert.Equal(t, 25.0, snaps[2].AskSize)
	assert.Equal(t, uint64(3), snaps[2].Seq)
}

func TestRouterEmptiesAskOnZeroSize(t *testing.T) {
	stream := &fakeStream{}
	r := NewRouter(stream, testLogger())
	rec := &sinkRecorder{}

	require.NoError(t, r.Subscribe(context.Background(), []string{"yes-token"}, rec.sink))
	stream.quoteHandler(bookSnap("yes-token", 0.50, 100, 0.52, 80))

	stream.changeHandler(polymarket.PriceChange{
		AssetID: "yes-token", Side: "SELL", Price: 0.52, Size: 0, Timestamp: time.Now(),
	})

	snaps := rec.all()
	require.Len(t, snaps, 2)
	assert.False(t, snaps[1].HasAsk(), "removed best ask leaves the book one-sided")

	// With no usable ask, a higher sell level no longer replaces the top.
	stream.changeHandler(polymarket.PriceChange{
		AssetID: "yes-token", Side: "SELL", Price: 0.55, Size: 10, Timestamp: time.Now(),
	})
	assert.Len(t, rec.all(), 2)

	// The next full snapshot restores the book.
	stream.quoteHandler(bookSnap("yes-token", 0.50, 100, 0.54, 30))
	snaps = rec.all()
	require.Len(t, snaps, 3)
	assert.True(t, snaps[2].HasAsk())
}

func TestRouterBidSideChanges(t *testing.T) {
	stream := &fakeStream{}
	r := NewRouter(stream, testLogger())
	rec := &sinkRecorder{}

	require.NoError(t, r.Subscribe(context.Background(), []string{"yes-token"}, rec.sink))
	stream.quoteHandler(bookSnap("yes-token", 0.50, 100, 0.52, 80))

	stream.changeHandler(polymarket.PriceChange{
		AssetID: "yes-token", Side: "BUY", Price: 0.51, Size: 60, Timestamp: time.Now(),
	})

	snaps := rec.all()
	require.Len(t, snaps, 2)
	assert.Equal(t, 0.51, snaps[1].BestBid)
	assert.Equal(t, 60.0, snaps[1].BidSize)
	// Ask side untouched.
	assert.Equal(t, 0.52, snaps[1].BestAsk)
}

func TestRouterIgnoresChangesBeforeSnapshot(t *testing.T) {
	stream := &fakeStream{}
	r := NewRouter(stream, testLogger())
	rec := &sinkRecorder{}

	require.NoError(t, r.Subscribe(context.Background(), []string{"yes-token"}, rec.sink))

	// A delta with no baseline snapshot cannot be applied.
	stream.changeHandler(polymarket.PriceChange{
		AssetID: "yes-token", Side: "SELL", Price: 0.52, Size: 40, Timestamp: time.Now(),
	})
	assert.Empty(t, rec.all())
}

func TestRouterSubscribeRollbackOnError(t *testing.T) {
	stream := &fakeStream{subErr: assert.AnError}
	r := NewRouter(stream, testLogger())
	rec := &sinkRecorder{}

	err := r.Subscribe(context.Background(), []string{"yes-token"}, rec.sink)
	require.Error(t, err)

	// The failed registration left no routing behind.
	stream.mu.Lock()
	stream.subErr = nil
	stream.mu.Unlock()
	stream.quoteHandler(bookSnap("yes-token", 0.50, 100, 0.52, 80))
	assert.Empty(t, rec.all())
}

func TestRouterUnsubscribeStopsRouting(t *testing.T) {
	stream := &fakeStream{}
	r := NewRouter(stream, testLogger())
	rec := &sinkRecorder{}

	require.NoError(t, r.Subscribe(context.Background(), []string{"yes-token"}, rec.sink))
	stream.quoteHandler(bookSnap("yes-token", 0.50, 100, 0.52, 80))
	require.Len(t, rec.all(), 1)

	require.NoError(t, r.Unsubscribe(context.Background(), []string{"yes-token"}))
	stream.quoteHandler(bookSnap("yes-token", 0.50, 100, 0.53, 80))
	assert.Len(t, rec.all(), 1)

	stream.mu.Lock()
	assert.Equal(t, [][]string{{"yes-token"}}, stream.unsubscribed)
	stream.mu.Unlock()
}
