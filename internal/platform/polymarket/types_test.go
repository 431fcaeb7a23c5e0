package polymarket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/domain"
)

func TestFlexBool(t *testing.T) {
	var v struct {
		Active flexBool `json:"active"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"active": true}`), &v))
	assert.True(t, bool(v.Active))

	require.NoError(t, json.Unmarshal([]byte(`{"active": "false"}`), &v))
	assert.False(t, bool(v.Active))

	require.NoError(t, json.Unmarshal([]byte(`{"active": "True"}`), &v))
	assert.True(t, bool(v.Active))

	require.NoError(t, json.Unmarshal([]byte(`{"active": "1"}`), &v))
	assert.True(t, bool(v.Active))
}

func TestQuoteFromBook(t *testing.T) {
	b := &BookMessage{
		AssetID: "token-1",
		Bids: []WSPriceLevel{
			{Price: "0.48", Size: "120"},
			{Price: "0.50", Size: "80"},
			{Price: "0.45", Size: "300"},
		},
		Asks: []WSPriceLevel{
			{Price: "0.55", Size: "90"},
			{Price: "0.52", Size: "60"},
			{Price: "0.58", Size: "200"},
		},
		Timestamp: "1756500000000",
	}

	q := QuoteFromBook(b)
	assert.Equal(t, "token-1", q.AssetID)
	assert.Equal(t, 0.50, q.BestBid)
	assert.Equal(t, 80.0, q.BidSize)
	assert.Equal(t, 0.52, q.BestAsk)
	assert.Equal(t, 60.0, q.AskSize)
	assert.Equal(t, time.UnixMilli(1756500000000), q.Timestamp)
	assert.True(t, q.HasAsk())
}

func TestQuoteFromBookEmptySides(t *testing.T) {
	q := QuoteFromBook(&BookMessage{AssetID: "token-1", Timestamp: "1756500000"})
	assert.Zero(t, q.BestBid)
	assert.Zero(t, q.BestAsk)
	assert.False(t, q.HasAsk())
	assert.Equal(t, time.Unix(1756500000, 0), q.Timestamp)
}

func TestPriceChangeFrom(t *testing.T) {
	pc := PriceChangeFrom(&PriceChangeMessage{
		AssetID:   "token-1",
		Side:      "SELL",
		Price:     "0.52",
		Size:      "0",
		Timestamp: "2026-08-31T12:05:00Z",
	})

	assert.Equal(t, "token-1", pc.AssetID)
	assert.Equal(t, "SELL", pc.Side)
	assert.Equal(t, 0.52, pc.Price)
	assert.Zero(t, pc.Size)
	assert.Equal(t, time.Date(2026, 8, 31, 12, 5, 0, 0, time.UTC), pc.Timestamp)
}

func TestToDomainOrderResult(t *testing.T) {
	// Immediate match with partial take.
	r := &APIOrderResult{
		Success:      true,
		OrderID:      "ord-1",
		Status:       "matched",
		TakingAmount: "40",
		MakingAmount: "21.2",
	}
	res := r.ToDomainOrderResult()
	assert.True(t, res.Success)
	assert.Equal(t, domain.OrderStatusMatched, res.Status)
	assert.Equal(t, 40.0, res.FilledSize)
	assert.InDelta(t, 0.53, res.FilledPrice, 1e-9)

	// Resting GTC acknowledged as live.
	r = &APIOrderResult{Success: true, OrderID: "ord-2", Status: "live"}
	res = r.ToDomainOrderResult()
	assert.Equal(t, domain.OrderStatusOpen, res.Status)
	assert.Zero(t, res.FilledSize)

	// Delayed orders are still pending.
	r = &APIOrderResult{Success: true, OrderID: "ord-3", Status: "delayed"}
	assert.Equal(t, domain.OrderStatusPending, r.ToDomainOrderResult().Status)

	// Rejection.
	r = &APIOrderResult{Success: false, ErrorMsg: "not enough balance"}
	res = r.ToDomainOrderResult()
	assert.Equal(t, domain.OrderStatusFailed, res.Status)
	assert.Equal(t, "not enough balance", res.Message)
}

func TestToDomainMarketFromTokens(t *testing.T) {
	m := &APIMarket{
		ID:          "mkt-1",
		Question:    "Bitcoin Up or Down?",
		ConditionID: "0xcond",
		Slug:        "bitcoin-up-or-down",
		Tokens: []Token{
			{TokenID: "token-up", Outcome: "Up"},
			{TokenID: "token-down", Outcome: "Down"},
		},
		Volume:     "12345.67",
		NegRisk:    true,
		EndDateISO: "2026-08-31T12:10:00Z",
	}
	m.ActiveFromAPI = true

	dm := m.ToDomainMarket()
	assert.Equal(t, "mkt-1", dm.ID)
	assert.Equal(t, [2]string{"token-up", "token-down"}, dm.TokenIDs)
	assert.Equal(t, [2]string{"Up", "Down"}, dm.Outcomes)
	assert.Equal(t, domain.MarketStatusActive, dm.Status)
	assert.True(t, dm.NegRisk)
	assert.InDelta(t, 12345.67, dm.Volume, 1e-9)
	require.NotNil(t, dm.EndDate)
	assert.Equal(t, time.Date(2026, 8, 31, 12, 10, 0, 0, time.UTC), *dm.EndDate)
}

func TestToDomainMarketFromEncodedColumns(t *testing.T) {
	// Gamma's market listing encodes token IDs and outcomes as JSON
	// strings instead of a tokens array.
	m := &APIMarket{
		ID:           "mkt-2",
		ClobTokenIDs: `["111","222"]`,
		Outcomes:     `["Up","Down"]`,
		Closed:       true,
	}

	dm := m.ToDomainMarket()
	assert.Equal(t, [2]string{"111", "222"}, dm.TokenIDs)
	assert.Equal(t, [2]string{"Up", "Down"}, dm.Outcomes)
	assert.Equal(t, domain.MarketStatusClosed, dm.Status)
	assert.Nil(t, dm.EndDate)
}

func TestToDomainOrder(t *testing.T) {
	filledAt := "2026-08-31T12:06:00Z"
	a := &APIOrder{
		ID:           "ord-1",
		Status:       "matched",
		MarketID:     "mkt-1",
		AssetID:      "token-up",
		Side:         "BUY",
		Type:         "FAK",
		OriginalSize: "100",
		SizeMatched:  "100",
		Price:        "0.53",
		MakerAmount:  "53000000",
		TakerAmount:  "100000000",
		Expiration:   "0",
		CreatedAt:    "2026-08-31T12:05:30Z",
		FilledAt:     &filledAt,
	}

	o := a.ToDomainOrder()
	assert.Equal(t, domain.OrderSideBuy, o.Side)
	assert.Equal(t, domain.OrderTypeFAK, o.Type)
	assert.Equal(t, domain.OrderStatusMatched, o.Status)
	assert.Equal(t, int64(530000), o.PriceTicks)
	assert.Equal(t, int64(100000000), o.SizeUnits)
	assert.Equal(t, 100.0, o.FilledSize)
	assert.InDelta(t, 0.53, o.Price(), 1e-9)
	assert.InDelta(t, 100, o.Size(), 1e-9)
	require.NotNil(t, o.FilledAt)
}

func TestParseWSTimestamp(t *testing.T) {
	assert.Equal(t, time.UnixMilli(1756500000000), parseWSTimestamp("1756500000000"))
	assert.Equal(t, time.Unix(1756500000, 0), parseWSTimestamp("1756500000"))
	assert.Equal(t,
		time.Date(2026, 8, 31, 12, 5, 0, 0, time.UTC),
		parseWSTimestamp("2026-08-31T12:05:00Z"),
	)

	// Garbage falls back to now rather than a zero time, which would make
	// the quote look permanently stale.
	assert.WithinDuration(t, time.Now(), parseWSTimestamp("garbage"), time.Second)
}
