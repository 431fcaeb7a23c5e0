package domain

import "time"

// PriceDirection tracks how a leg's best ask moved between two accepted
// snapshots. Used to pick the slippage value for that leg.
type PriceDirection int

const (
	DirectionFlat PriceDirection = iota
	DirectionUp
	DirectionDown
)

func (d PriceDirection) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return "flat"
	}
}

// QuoteSnapshot is the latest top-of-book view for one outcome token.
// Seq orders snapshots from the same upstream stream; snapshots with a
// lower or equal Seq than the one already held are discarded.
type QuoteSnapshot struct {
	AssetID      string
	BestBid      float64
	BestAsk      float64
	BidSize      float64 // shares available at BestBid
	AskSize      float64 // shares available at BestAsk
	Seq          uint64
	Timestamp    time.Time
	AskDirection PriceDirection
}

// HasAsk reports whether the snapshot carries a usable ask side.
func (q QuoteSnapshot) HasAsk() bool {
	return q.BestAsk > 0 && q.AskSize > 0
}

// Fresh reports whether the snapshot is recent enough to trade on.
func (q QuoteSnapshot) Fresh(now time.Time, maxAge time.Duration) bool {
	if q.Timestamp.IsZero() {
		return false
	}
	return now.Sub(q.Timestamp) <= maxAge
}
