package risk

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTryReserveWithinCap(t *testing.T) {
	l := New(1000, 0, testLogger())

	id, err := l.TryReserve(260, 240)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.InDelta(t, 500, l.Exposure(), 1e-9)
	assert.Equal(t, 1, l.OpenReservations())
}

func TestTryReserveRejectsOverCap(t *testing.T) {
	l := New(1000, 0, testLogger())

	_, err := l.TryReserve(500, 400)
	require.NoError(t, err)

	// 900 held + 150 requested breaches the 1000 cap atomically.
	_, err = l.TryReserve(80, 70)
	assert.ErrorIs(t, err, domain.ErrExposureCap)

	// Totals untouched by the failed attempt.
	assert.InDelta(t, 900, l.Exposure(), 1e-9)
	assert.Equal(t, 1, l.OpenReservations())

	// Exactly reaching the cap is allowed.
	_, err = l.TryReserve(50, 50)
	assert.NoError(t, err)
}

func TestTryReserveRejectsNegative(t *testing.T) {
	l := New(1000, 0, testLogger())
	_, err := l.TryReserve(-1, 10)
	assert.Error(t, err)
	_, err = l.TryReserve(10, -1)
	assert.Error(t, err)
	assert.Zero(t, l.Exposure())
}

func TestTryReserveImbalanceGate(t *testing.T) {
	l := New(10000, 0.5, testLogger())

	// Perfectly balanced passes.
	_, err := l.TryReserve(100, 100)
	require.NoError(t, err)

	// A lopsided reservation pushing |yes-no|/max over 0.5 is rejected.
	_, err = l.TryReserve(900, 0)
	assert.ErrorIs(t, err, domain.ErrImbalanceCap)

	// Threshold 0 disables the gate entirely.
	l = New(10000, 0, testLogger())
	_, err = l.TryReserve(900, 0)
	assert.NoError(t, err)
}

func TestReleaseClampsPerLeg(t *testing.T) {
	l := New(1000, 0, testLogger())

	id, err := l.TryReserve(300, 200)
	require.NoError(t, err)

	// Asking for more than a leg holds returns only what it holds.
	require.NoError(t, l.Release(id, 500, 50))
	assert.InDelta(t, 150, l.Exposure(), 1e-9)

	yes, no, ok := l.Held(id)
	require.True(t, ok)
	assert.InDelta(t, 0, yes, 1e-9)
	assert.InDelta(t, 150, no, 1e-9)

	// A second oversized release drains the rest and closes the
	// reservation; totals can never go negative.
	require.NoError(t, l.Release(id, 500, 500))
	assert.Zero(t, l.Exposure())
	assert.Zero(t, l.OpenReservations())

	// The closed ID is gone.
	assert.ErrorIs(t, l.Release(id, 1, 1), domain.ErrUnknownReserve)
}

func TestReleaseUnknownID(t *testing.T) {
	l := New(1000, 0, testLogger())
	assert.ErrorIs(t, l.Release("nope", 10, 10), domain.ErrUnknownReserve)
	assert.ErrorIs(t, l.ReleaseAll("nope"), domain.ErrUnknownReserve)
}

func TestReleaseAll(t *testing.T) {
	l := New(1000, 0, testLogger())

	id, err := l.TryReserve(300, 200)
	require.NoError(t, err)
	require.NoError(t, l.Release(id, 100, 0))

	require.NoError(t, l.ReleaseAll(id))
	assert.Zero(t, l.Exposure())
	assert.Zero(t, l.OpenReservations())
}

func TestConcurrentReserveRespectsCap(t *testing.T) {
	l := New(1000, 0, testLogger())

	var wg sync.WaitGroup
	granted := make(chan string, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if id, err := l.TryReserve(50, 50); err == nil {
				granted <- id
			}
		}()
	}
	wg.Wait()
	close(granted)

	var ids []string
	for id := range granted {
		ids = append(ids, id)
	}

	// 100 USDC per pair against a 1000 cap: exactly 10 can win.
	assert.Len(t, ids, 10)
	assert.InDelta(t, 1000, l.Exposure(), 1e-9)

	for _, id := range ids {
		require.NoError(t, l.ReleaseAll(id))
	}
	assert.Zero(t, l.Exposure())
}
