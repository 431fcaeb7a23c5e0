package domain

import "time"

// Opportunity is a priced and sized YES+NO buy pair whose combined ask
// clears the configured spread and profit gates. Size is shares per leg;
// the same share count is bought on both legs so the position stays hedged.
type Opportunity struct {
	ID          string
	WindowID    string
	Symbol      string
	Yes         QuoteSnapshot
	No          QuoteSnapshot
	Combined    float64 // yes ask + no ask
	ProfitRatio float64 // (1 - Combined) / Combined
	Size        float64 // shares per leg
	DetectedAt  time.Time
}

// Notional returns the total USDC both legs commit at their ask prices.
func (o Opportunity) Notional() float64 {
	return o.Size * (o.Yes.BestAsk + o.No.BestAsk)
}
