package domain

import "time"

// PairStatus tracks a paired execution from submission to merge.
type PairStatus string

const (
	PairStatusPending PairStatus = "pending" // orders submitted, fills unresolved
	PairStatusHedged  PairStatus = "hedged"  // both legs filled (possibly reduced size)
	PairStatusPartial PairStatus = "partial" // one leg filled, the other missed
	PairStatusFailed  PairStatus = "failed"  // nothing filled
	PairStatusMerged  PairStatus = "merged"  // matched sets merged back to USDC
)

// PairExecution records one two-legged arbitrage attempt. YES and NO fills
// may differ when a leg only partially fills; MergeableSize is the hedged
// share count that can be merged back to collateral after settlement.
type PairExecution struct {
	ID            string
	WindowID      string
	ConditionID   string
	Symbol        string
	YesAssetID    string
	NoAssetID     string
	YesOrderID    string
	NoOrderID     string
	YesPrice      float64 // limit price including slippage
	NoPrice       float64
	YesFilled     float64 // shares
	NoFilled      float64
	Size          float64 // requested shares per leg
	Combined      float64 // combined ask at detection time
	ProfitRatio   float64
	ReservationID string
	NegRisk       bool
	Status        PairStatus
	MergeTxHash   string
	WindowCloseAt time.Time
	CreatedAt     time.Time
	MergedAt      *time.Time
}

// MergeableSize returns the share count covered on both legs.
func (p PairExecution) MergeableSize() float64 {
	if p.YesFilled < p.NoFilled {
		return p.YesFilled
	}
	return p.NoFilled
}

// FilledNotional returns the USDC actually spent across both legs.
func (p PairExecution) FilledNotional() float64 {
	return p.YesFilled*p.YesPrice + p.NoFilled*p.NoPrice
}

// Hedged reports whether both legs hold a non-zero matched size.
func (p PairExecution) Hedged() bool {
	return p.YesFilled > 0 && p.NoFilled > 0
}
