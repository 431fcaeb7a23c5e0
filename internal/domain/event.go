package domain

import "time"

// EventType classifies engine events published on the bus and forwarded to
// notification channels.
type EventType string

const (
	EventOpportunity    EventType = "opportunity_detected"
	EventPairExecuted   EventType = "pair_executed"
	EventRiskGate       EventType = "risk_gate"
	EventHedgeImbalance EventType = "hedge_imbalance"
	EventPairMerged     EventType = "pair_merged"
	EventWindowState    EventType = "window_state"
)

// Event is a single engine occurrence worth surfacing outside the process.
type Event struct {
	Type     EventType         `json:"type"`
	Symbol   string            `json:"symbol,omitempty"`
	WindowID string            `json:"window_id,omitempty"`
	Message  string            `json:"message"`
	Fields   map[string]string `json:"fields,omitempty"`
	At       time.Time         `json:"at"`
}
