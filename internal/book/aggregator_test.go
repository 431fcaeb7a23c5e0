package book

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func snap(assetID string, seq uint64, ask, askSize float64, ts time.Time) domain.QuoteSnapshot {
	return domain.QuoteSnapshot{
		AssetID:   assetID,
		BestBid:   ask - 0.02,
		BestAsk:   ask,
		BidSize:   100,
		AskSize:   askSize,
		Seq:       seq,
		Timestamp: ts,
	}
}

func TestUpdateRejectsMalformed(t *testing.T) {
	a := New(testLogger())
	now := time.Now()

	assert.False(t, a.Update(snap("", 1, 0.5, 10, now)), "missing asset ID")
	assert.False(t, a.Update(snap("yes", 1, 0.5, 10, time.Time{})), "zero timestamp")

	_, ok := a.Get("yes")
	assert.False(t, ok)
}

func TestUpdateSequenceGating(t *testing.T) {
	a := New(testLogger())
	now := time.Now()

	require.True(t, a.Update(snap("yes", 5, 0.52, 10, now)))

	// Same and lower seq are stale regardless of content.
	assert.False(t, a.Update(snap("yes", 5, 0.40, 50, now.Add(time.Second))))
	assert.False(t, a.Update(snap("yes", 4, 0.40, 50, now.Add(time.Second))))

	held, ok := a.Get("yes")
	require.True(t, ok)
	assert.Equal(t, 0.52, held.BestAsk)
	assert.Equal(t, uint64(5), held.Seq)

	// Higher seq with an older timestamp is out of order.
	assert.False(t, a.Update(snap("yes", 6, 0.40, 50, now.Add(-time.Second))))

	assert.True(t, a.Update(snap("yes", 6, 0.50, 20, now.Add(time.Second))))
}

func TestUpdateTracksAskDirection(t *testing.T) {
	a := New(testLogger())
	now := time.Now()

	require.True(t, a.Update(snap("yes", 1, 0.50, 10, now)))
	held, _ := a.Get("yes")
	assert.Equal(t, domain.DirectionFlat, held.AskDirection, "first snapshot has no history")

	require.True(t, a.Update(snap("yes", 2, 0.53, 10, now.Add(time.Second))))
	held, _ = a.Get("yes")
	assert.Equal(t, domain.DirectionUp, held.AskDirection)

	require.True(t, a.Update(snap("yes", 3, 0.49, 10, now.Add(2*time.Second))))
	held, _ = a.Get("yes")
	assert.Equal(t, domain.DirectionDown, held.AskDirection)

	// Unchanged ask carries the previous direction forward.
	require.True(t, a.Update(snap("yes", 4, 0.49, 25, now.Add(3*time.Second))))
	held, _ = a.Get("yes")
	assert.Equal(t, domain.DirectionDown, held.AskDirection)
}

func TestUpdatesChannelCoalesces(t *testing.T) {
	a := New(testLogger())
	now := time.Now()

	for i := uint64(1); i <= 5; i++ {
		require.True(t, a.Update(snap("yes", i, 0.50, 10, now.Add(time.Duration(i)*time.Millisecond))))
	}

	// Five accepted updates with no consumer collapse into one pending
	// signal.
	select {
	case <-a.Updates():
	default:
		t.Fatal("expected a pending wakeup")
	}
	select {
	case <-a.Updates():
		t.Fatal("wakeups must coalesce while unconsumed")
	default:
	}
}

func TestPair(t *testing.T) {
	a := New(testLogger())
	now := time.Now()
	maxAge := 3 * time.Second

	_, _, err := a.Pair("yes", "no", now, maxAge)
	assert.ErrorIs(t, err, domain.ErrStaleQuote, "both legs missing")

	require.True(t, a.Update(snap("yes", 1, 0.52, 10, now)))
	_, _, err = a.Pair("yes", "no", now, maxAge)
	assert.ErrorIs(t, err, domain.ErrStaleQuote, "no leg missing")

	require.True(t, a.Update(snap("no", 1, 0.46, 20, now)))
	yes, no, err := a.Pair("yes", "no", now, maxAge)
	require.NoError(t, err)
	assert.Equal(t, 0.52, yes.BestAsk)
	assert.Equal(t, 0.46, no.BestAsk)

	// An aged-out leg makes the book one-sided again.
	_, _, err = a.Pair("yes", "no", now.Add(10*time.Second), maxAge)
	assert.ErrorIs(t, err, domain.ErrStaleQuote)

	// A leg whose ask side vanished is unusable even when fresh.
	gone := snap("no", 2, 0, 0, now.Add(time.Second))
	require.True(t, a.Update(gone))
	_, _, err = a.Pair("yes", "no", now.Add(time.Second), maxAge)
	assert.ErrorIs(t, err, domain.ErrStaleQuote)
}

func TestReset(t *testing.T) {
	a := New(testLogger())
	now := time.Now()

	require.True(t, a.Update(snap("yes", 9, 0.5, 10, now)))
	a.Reset()

	_, ok := a.Get("yes")
	assert.False(t, ok)

	// After a reset the sequence gate restarts, so a lower seq from the
	// new connection is accepted.
	assert.True(t, a.Update(snap("yes", 1, 0.5, 10, now.Add(time.Second))))
}
