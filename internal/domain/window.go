package domain

import "time"

// WindowState is the lifecycle state of a single 5-minute market window.
// Transitions are strictly monotonic: Pending -> Active -> Cutoff -> Closed.
// Cutoff is skipped when no cutoff margin is configured.
type WindowState int

const (
	WindowPending WindowState = iota
	WindowActive
	WindowCutoff
	WindowClosed
)

func (s WindowState) String() string {
	switch s {
	case WindowPending:
		return "pending"
	case WindowActive:
		return "active"
	case WindowCutoff:
		return "cutoff"
	case WindowClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarketWindow is one 5-minute up/down market instance for a symbol. The
// YES leg pays out when the underlying closes up, the NO leg when it
// closes down; exactly one settles at $1.
type MarketWindow struct {
	ID          string // Gamma market ID
	ConditionID string
	Symbol      string // e.g. "BTC", "ETH"
	Slug        string
	Question    string
	YesAssetID  string
	NoAssetID   string
	OpenTime    time.Time
	CloseTime   time.Time
	NegRisk     bool
}

// CutoffTime returns the instant after which no new pairs may be opened.
// A zero margin disables the cutoff phase and returns CloseTime.
func (w MarketWindow) CutoffTime(margin time.Duration) time.Time {
	if margin <= 0 {
		return w.CloseTime
	}
	return w.CloseTime.Add(-margin)
}

// Legs returns both asset IDs, YES first.
func (w MarketWindow) Legs() [2]string {
	return [2]string{w.YesAssetID, w.NoAssetID}
}
