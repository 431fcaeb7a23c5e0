// Package risk tracks committed USDC across all windows and gates new
// pair executions against the exposure cap.
package risk

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/domain"
)

// reservation is the remaining held notional per leg of one pair. Releases
// are clamped against it, so releasing the same notional twice is
// structurally impossible.
type reservation struct {
	yes decimal.Decimal
	no  decimal.Decimal
}

// Ledger is the single shared exposure account. All reservations and
// releases go through one mutex; TryReserve observes the cap atomically.
type Ledger struct {
	mu sync.Mutex

	cap       decimal.Decimal
	imbalance decimal.Decimal // 0 disables the check

	yesTotal decimal.Decimal
	noTotal  decimal.Decimal
	open     map[string]*reservation

	logger *slog.Logger
}

// New creates a Ledger with the given cap in USDC. imbalanceThreshold caps
// |yes-no| / max(yes,no) across open reservations; pass 0 to disable.
func New(maxExposureUSDC, imbalanceThreshold float64, logger *slog.Logger) *Ledger {
	return &Ledger{
		cap:       decimal.NewFromFloat(maxExposureUSDC),
		imbalance: decimal.NewFromFloat(imbalanceThreshold),
		open:      make(map[string]*reservation),
		logger:    logger.With(slog.String("component", "ledger")),
	}
}

// TryReserve atomically reserves notional for both legs of a pair. It
// returns a reservation ID on success. The reservation fails when the new
// total would exceed the cap, or when the configured YES/NO imbalance
// bound would be violated; the held totals are untouched on failure.
func (l *Ledger) TryReserve(yesNotional, noNotional float64) (string, error) {
	if yesNotional < 0 || noNotional < 0 {
		return "", fmt.Errorf("risk: negative notional (yes=%v no=%v)", yesNotional, noNotional)
	}
	yes := decimal.NewFromFloat(yesNotional)
	no := decimal.NewFromFloat(noNotional)
	amount := yes.Add(no)

	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.yesTotal.Add(l.noTotal)
	if current.Add(amount).GreaterThan(l.cap) {
		l.logger.Warn("reservation rejected: exposure cap",
			slog.String("current", current.String()),
			slog.String("requested", amount.String()),
			slog.String("cap", l.cap.String()),
		)
		return "", fmt.Errorf("risk: reserve %s against %s held of %s cap: %w",
			amount.String(), current.String(), l.cap.String(), domain.ErrExposureCap)
	}

	if l.imbalance.IsPositive() {
		newYes := l.yesTotal.Add(yes)
		newNo := l.noTotal.Add(no)
		if ratio, ok := imbalanceRatio(newYes, newNo); ok && ratio.GreaterThan(l.imbalance) {
			l.logger.Warn("reservation rejected: hedge imbalance",
				slog.String("yes_total", newYes.String()),
				slog.String("no_total", newNo.String()),
				slog.String("ratio", ratio.String()),
			)
			return "", fmt.Errorf("risk: imbalance %s over %s: %w",
				ratio.String(), l.imbalance.String(), domain.ErrImbalanceCap)
		}
	}

	id := uuid.NewString()
	l.yesTotal = l.yesTotal.Add(yes)
	l.noTotal = l.noTotal.Add(no)
	l.open[id] = &reservation{yes: yes, no: no}

	l.logger.Debug("reserved",
		slog.String("reservation_id", id),
		slog.String("amount", amount.String()),
		slog.String("total", l.yesTotal.Add(l.noTotal).String()),
	)
	return id, nil
}

// Release returns notional from a reservation to the shared pool. Each
// leg's release is clamped to what the reservation still holds. An unknown
// ID returns ErrUnknownReserve.
func (l *Ledger) Release(id string, yesNotional, noNotional float64) error {
	yes := decimal.NewFromFloat(yesNotional)
	no := decimal.NewFromFloat(noNotional)

	l.mu.Lock()
	defer l.mu.Unlock()

	res, ok := l.open[id]
	if !ok {
		return fmt.Errorf("risk: release %s: %w", id, domain.ErrUnknownReserve)
	}

	if yes.GreaterThan(res.yes) {
		yes = res.yes
	}
	if no.GreaterThan(res.no) {
		no = res.no
	}

	res.yes = res.yes.Sub(yes)
	res.no = res.no.Sub(no)
	l.yesTotal = l.yesTotal.Sub(yes)
	l.noTotal = l.noTotal.Sub(no)

	if res.yes.IsZero() && res.no.IsZero() {
		delete(l.open, id)
	}

	l.logger.Debug("released",
		slog.String("reservation_id", id),
		slog.String("amount", yes.Add(no).String()),
		slog.String("total", l.yesTotal.Add(l.noTotal).String()),
	)
	return nil
}

// ReleaseAll returns everything a reservation still holds, closing it.
func (l *Ledger) ReleaseAll(id string) error {
	l.mu.Lock()
	res, ok := l.open[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("risk: release %s: %w", id, domain.ErrUnknownReserve)
	}
	yes, _ := res.yes.Float64()
	no, _ := res.no.Float64()
	l.mu.Unlock()

	return l.Release(id, yes, no)
}

// Held returns the remaining notional a reservation holds per leg.
func (l *Ledger) Held(id string) (yes, no float64, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, found := l.open[id]
	if !found {
		return 0, 0, false
	}
	yes, _ = res.yes.Float64()
	no, _ = res.no.Float64()
	return yes, no, true
}

// Exposure returns the total committed notional in USDC.
func (l *Ledger) Exposure() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, _ := l.yesTotal.Add(l.noTotal).Float64()
	return f
}

// OpenReservations returns the number of reservations still holding funds.
func (l *Ledger) OpenReservations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.open)
}

// imbalanceRatio returns |yes-no| / max(yes,no). ok is false when both
// sides are zero.
func imbalanceRatio(yes, no decimal.Decimal) (decimal.Decimal, bool) {
	max := yes
	if no.GreaterThan(max) {
		max = no
	}
	if !max.IsPositive() {
		return decimal.Zero, false
	}
	return yes.Sub(no).Abs().Div(max), true
}
