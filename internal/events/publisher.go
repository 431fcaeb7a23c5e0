// Package events publishes engine events to the Redis bus for external
// monitors and forwards them to operator notification channels.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/domain"
	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/notify"
)

const (
	// Channel is the Pub/Sub channel live events are published on.
	Channel = "arbbot:events"
	// Stream is the durable Redis stream events are appended to.
	Stream = "arbbot:events:stream"
)

// Publisher fans one engine event out to the Redis bus and the notifier.
// Delivery is best effort: a failed publish is logged, never propagated,
// so the trading path is never blocked on observability.
type Publisher struct {
	bus      domain.EventBus  // may be nil
	notifier *notify.Notifier // may be nil
	logger   *slog.Logger
}

// NewPublisher creates a Publisher. Both bus and notifier are optional.
func NewPublisher(bus domain.EventBus, notifier *notify.Notifier, logger *slog.Logger) *Publisher {
	return &Publisher{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "events")),
	}
}

// Emit publishes an event. Implements the EventSink interfaces of the
// window controller and executor.
func (p *Publisher) Emit(ctx context.Context, ev domain.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	if p.bus != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			p.logger.Error("marshal event", slog.String("error", err.Error()))
			return
		}
		if err := p.bus.Publish(ctx, Channel, payload); err != nil {
			p.logger.Warn("publish event",
				slog.String("type", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
		if err := p.bus.StreamAppend(ctx, Stream, payload); err != nil {
			p.logger.Warn("append event",
				slog.String("type", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
	}

	if p.notifier != nil {
		if err := p.notifier.NotifyEvent(ctx, ev); err != nil {
			p.logger.Warn("notify event",
				slog.String("type", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
}
