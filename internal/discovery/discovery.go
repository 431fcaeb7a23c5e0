// Package discovery resolves the rolling 5-minute up/down markets for the
// configured symbols and feeds them to the window controller ahead of each
// window open.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/domain"
)

// MarketResolver looks up market metadata by slug. Implemented by the
// Gamma client.
type MarketResolver interface {
	GetMarketBySlug(ctx context.Context, slug string) (domain.Market, error)
}

// Config holds discovery parameters.
type Config struct {
	// Symbols lists the underlyings, e.g. ["BTC", "ETH"].
	Symbols []string
	// Cadence is the window length. 5-minute markets roll on UTC
	// boundaries aligned to this.
	Cadence time.Duration
	// Advance is how long before a window opens that its market is
	// resolved and emitted, giving streams time to subscribe and warm up.
	Advance time.Duration
}

// Service emits one MarketWindow per symbol per cadence tick.
type Service struct {
	cfg    Config
	gamma  MarketResolver
	out    chan domain.MarketWindow
	logger *slog.Logger
}

// New creates a discovery Service.
func New(cfg Config, gamma MarketResolver, logger *slog.Logger) *Service {
	if cfg.Cadence <= 0 {
		cfg.Cadence = 5 * time.Minute
	}
	return &Service{
		cfg:    cfg,
		gamma:  gamma,
		out:    make(chan domain.MarketWindow, 2*len(cfg.Symbols)+2),
		logger: logger.With(slog.String("component", "discovery")),
	}
}

// Windows returns the channel of discovered windows.
func (s *Service) Windows() <-chan domain.MarketWindow {
	return s.out
}

// Run resolves upcoming windows until the context is cancelled. The
// channel is closed on return so the controller can drain and stop.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("discovery started",
		slog.String("symbols", strings.Join(s.cfg.Symbols, ",")),
		slog.Duration("cadence", s.cfg.Cadence),
	)
	defer close(s.out)
	defer s.logger.Info("discovery stopped")

	for {
		open := nextWindowOpen(time.Now().UTC(), s.cfg.Cadence)
		resolveAt := open.Add(-s.cfg.Advance)

		if wait := time.Until(resolveAt); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		for _, sym := range s.cfg.Symbols {
			w, err := s.resolve(ctx, sym, open)
			if err != nil {
				s.logger.Warn("window resolution failed, skipping",
					slog.String("symbol", sym),
					slog.Time("open", open),
					slog.String("error", err.Error()),
				)
				continue
			}
			select {
			case s.out <- w:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		// Sleep past the open so the next iteration targets the window
		// after this one.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(open.Add(time.Second))):
		}
	}
}

// resolve looks up the market for one symbol's window, retrying until the
// window opens. Markets are typically listed shortly before their slot, so
// the first attempt can race the listing.
func (s *Service) resolve(ctx context.Context, symbol string, open time.Time) (domain.MarketWindow, error) {
	slug := SlugFor(symbol, open)
	var lastErr error
	for {
		m, err := s.gamma.GetMarketBySlug(ctx, slug)
		if err == nil {
			return toWindow(symbol, slug, m, open, open.Add(s.cfg.Cadence))
		}
		lastErr = err

		if time.Now().After(open) {
			return domain.MarketWindow{}, fmt.Errorf("discovery: resolve %s: %w", slug, lastErr)
		}
		select {
		case <-ctx.Done():
			return domain.MarketWindow{}, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// toWindow maps Gamma metadata onto a MarketWindow, identifying the YES
// leg by its outcome label.
func toWindow(symbol, slug string, m domain.Market, open, close time.Time) (domain.MarketWindow, error) {
	w := domain.MarketWindow{
		ID:          m.ID,
		ConditionID: m.ConditionID,
		Symbol:      symbol,
		Slug:        slug,
		Question:    m.Question,
		OpenTime:    open,
		CloseTime:   close,
		NegRisk:     m.NegRisk,
	}
	if m.EndDate != nil {
		w.CloseTime = *m.EndDate
	}

	for i := 0; i < 2; i++ {
		switch strings.ToLower(m.Outcomes[i]) {
		case "up", "yes":
			w.YesAssetID = m.TokenIDs[i]
		case "down", "no":
			w.NoAssetID = m.TokenIDs[i]
		}
	}
	if w.YesAssetID == "" || w.NoAssetID == "" {
		return domain.MarketWindow{}, fmt.Errorf("discovery: market %s: unrecognized outcomes %v", m.ID, m.Outcomes)
	}
	return w, nil
}

// nextWindowOpen returns the next cadence boundary strictly after now.
func nextWindowOpen(now time.Time, cadence time.Duration) time.Time {
	return now.Truncate(cadence).Add(cadence)
}

// slugNames maps ticker symbols to the names Polymarket uses in slugs.
var slugNames = map[string]string{
	"BTC": "bitcoin",
	"ETH": "ethereum",
	"SOL": "solana",
	"XRP": "xrp",
}

// etZone is the exchange's display timezone used in market slugs.
var etZone = mustLoadET()

func mustLoadET() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("ET", -5*3600)
	}
	return loc
}

// SlugFor builds the market slug for a symbol's window opening at the
// given instant, e.g. "bitcoin-up-or-down-august-31-3-35pm-et".
func SlugFor(symbol string, open time.Time) string {
	name, ok := slugNames[strings.ToUpper(symbol)]
	if !ok {
		name = strings.ToLower(symbol)
	}

	et := open.In(etZone)
	hour := et.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	ampm := "am"
	if et.Hour() >= 12 {
		ampm = "pm"
	}
	return fmt.Sprintf("%s-up-or-down-%s-%d-%d-%02d%s-et",
		name,
		strings.ToLower(et.Month().String()),
		et.Day(),
		hour,
		et.Minute(),
		ampm,
	)
}
