package events

import (
	"context"
	"encoding/json"
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

type fakeBus struct {
	published [][]byte
	appended  [][]byte
	err       error
}

func (b *fakeBus) Publish(_ context.Context, _ string, payload []byte) error {
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *fakeBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	if b.err != nil {
		return b.err
	}
	b.appended = append(b.appended, payload)
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func TestEmitPublishesAndAppends(t *testing.T) {
	bus := &fakeBus{}
	p := NewPublisher(bus, nil, testLogger())

	p.Emit(context.Background(), domain.Event{
		Type:    domain.EventOpportunity,
		Symbol:  "BTC",
		Message: "combined 0.9900",
	})

	require.Len(t, bus.published, 1)
	require.Len(t, bus.appended, 1)

	var ev domain.Event
	require.NoError(t, json.Unmarshal(bus.published[0], &ev))
	assert.Equal(t, domain.EventOpportunity, ev.Type)
	assert.Equal(t, "BTC", ev.Symbol)
	assert.False(t, ev.At.IsZero(), "missing timestamp is stamped at emit")
}

func TestEmitKeepsExistingTimestamp(t *testing.T) {
	bus := &fakeBus{}
	p := NewPublisher(bus, nil, testLogger())

	at := time.Date(2026, 8, 31, 12, 5, 0, 0, time.UTC)
	p.Emit(context.Background(), domain.Event{Type: domain.EventWindowState, At: at})

	var ev domain.Event
	require.NoError(t, json.Unmarshal(bus.published[0], &ev))
	assert.Equal(t, at, ev.At)
}

func TestEmitBestEffort(t *testing.T) {
	bus := &fakeBus{err: assert.AnError}
	p := NewPublisher(bus, nil, testLogger())

	// A failing bus never panics or propagates.
	p.Emit(context.Background(), domain.Event{Type: domain.EventRiskGate})

	// Nil bus and notifier are fine too.
	NewPublisher(nil, nil, testLogger()).Emit(context.Background(), domain.Event{})
}
