package executor

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/crypto"
	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/domain"
	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/risk"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway scripts PostOrder results per token ID and tracks order
// state for GetOrder/CancelOrder.
type fakeGateway struct {
	mu        sync.Mutex
	posted    []domain.Order
	results   map[string]domain.OrderResult // token ID -> scripted result
	errs      map[string]error              // token ID -> scripted submit error
	orders    map[string]domain.Order       // order ID -> current state
	cancelled []string
	cancelAll int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		results: make(map[string]domain.OrderResult),
		errs:    make(map[string]error),
		orders:  make(map[string]domain.Order),
	}
}

func (g *fakeGateway) script(tokenID string, res domain.OrderResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results[tokenID] = res
}

func (g *fakeGateway) scriptErr(tokenID string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[tokenID] = err
}

func (g *fakeGateway) PostOrder(_ context.Context, order domain.Order) (domain.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err, ok := g.errs[order.TokenID]; ok {
		return domain.OrderResult{}, err
	}

	g.posted = append(g.posted, order)
	res, ok := g.results[order.TokenID]
	if !ok {
		res = domain.OrderResult{
			Success:    true,
			OrderID:    "ord-" + order.TokenID,
			Status:     domain.OrderStatusMatched,
			FilledSize: order.Size(),
		}
	}
	order.ID = res.OrderID
	order.Status = res.Status
	order.FilledSize = res.FilledSize
	g.orders[res.OrderID] = order
	return res, nil
}

func (g *fakeGateway) CancelOrder(_ context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, orderID)
	if o, ok := g.orders[orderID]; ok {
		o.Status = domain.OrderStatusCancelled
		g.orders[orderID] = o
	}
	return nil
}

func (g *fakeGateway) GetOrder(_ context.Context, orderID string) (domain.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (g *fakeGateway) CancelAll(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelAll++
	return nil
}

// setOrder overwrites the stored state for an order, simulating
// exchange-side fills between submit and resolve.
func (g *fakeGateway) setOrder(orderID string, status domain.OrderStatus, filled float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o := g.orders[orderID]
	o.Status = status
	o.FilledSize = filled
	g.orders[orderID] = o
}

func (g *fakeGateway) postedFor(tokenID string) (domain.Order, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, o := range g.posted {
		if o.TokenID == tokenID {
			return o, true
		}
	}
	return domain.Order{}, false
}

type fakeSigner struct{}

func (fakeSigner) SignOrder(crypto.OrderPayload) (string, error) { return "0xsigned", nil }

type fakeEvents struct {
	mu     sync.Mutex
	events []domain.Event
}

func (f *fakeEvents) Emit(_ context.Context, ev domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeEvents) byType(t domain.EventType) []domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Event
	for _, ev := range f.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fakeStore struct {
	mu      sync.Mutex
	created []domain.PairExecution
	updated []domain.PairExecution
}

func (s *fakeStore) Create(_ context.Context, p domain.PairExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, p)
	return nil
}

func (s *fakeStore) UpdateFills(_ context.Context, p domain.PairExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, p)
	return nil
}

func (s *fakeStore) GetByID(context.Context, string) (domain.PairExecution, error) {
	return domain.PairExecution{}, domain.ErrNotFound
}

func (s *fakeStore) ListMergeable(context.Context, time.Time, int) ([]domain.PairExecution, error) {
	return nil, nil
}

func (s *fakeStore) MarkMerged(context.Context, string, string, time.Time) error { return nil }

func (s *fakeStore) ListRecent(context.Context, int) ([]domain.PairExecution, error) {
	return nil, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, nil
}
func (denyLimiter) Wait(context.Context, string) error { return nil }

func testWindow() domain.MarketWindow {
	now := time.Now()
	return domain.MarketWindow{
		ID:          "win-1",
		ConditionID: "0xcond",
		Symbol:      "BTC",
		YesAssetID:  "yes-token",
		NoAssetID:   "no-token",
		OpenTime:    now,
		CloseTime:   now.Add(5 * time.Minute),
	}
}

func testOpp(yesAsk, noAsk, size float64) domain.Opportunity {
	combined := yesAsk + noAsk
	return domain.Opportunity{
		ID:       "opp-1",
		WindowID: "win-1",
		Symbol:   "BTC",
		Yes: domain.QuoteSnapshot{
			AssetID: "yes-token",
			BestAsk: yesAsk,
			AskSize: size,
		},
		No: domain.QuoteSnapshot{
			AssetID: "no-token",
			BestAsk: noAsk,
			AskSize: size,
		},
		Combined:    combined,
		ProfitRatio: (1 - combined) / combined,
		Size:        size,
		DetectedAt:  time.Now(),
	}
}

func testConfig(orderType domain.OrderType) Config {
	return Config{
		Wallet:         "0xwallet",
		OrderType:      orderType,
		SlippageFirst:  0.01,
		SlippageSecond: 0.02,
	}
}

func TestExecuteBothLegsFilled(t *testing.T) {
	gateway := newFakeGateway()
	events := &fakeEvents{}
	store := &fakeStore{}
	ledger := risk.New(10000, 0, testLogger())
	e := New(testConfig(domain.OrderTypeFAK), gateway, fakeSigner{}, ledger, store, nil, events, testLogger())

	pair, err := e.Execute(context.Background(), testWindow(), testOpp(0.52, 0.46, 100))
	require.NoError(t, err)

	assert.Equal(t, domain.PairStatusHedged, pair.Status)
	assert.InDelta(t, 100, pair.YesFilled, 1e-9)
	assert.InDelta(t, 100, pair.NoFilled, 1e-9)
	assert.InDelta(t, 100, pair.MergeableSize(), 1e-9)

	// Both legs slipped by SlippageFirst (flat direction).
	yesOrder, ok := gateway.postedFor("yes-token")
	require.True(t, ok)
	assert.Equal(t, int64(530000), yesOrder.PriceTicks)
	noOrder, ok := gateway.postedFor("no-token")
	require.True(t, ok)
	assert.Equal(t, int64(470000), noOrder.PriceTicks)

	assert.Equal(t, domain.OrderSideBuy, yesOrder.Side)
	assert.NotEmpty(t, yesOrder.Salt)
	assert.Equal(t, "0xsigned", yesOrder.Signature)

	// Fully filled pair keeps its reservation for the merge job.
	assert.InDelta(t, 100*0.53+100*0.47, ledger.Exposure(), 1e-6)
	assert.Equal(t, 1, ledger.OpenReservations())

	require.Len(t, events.byType(domain.EventPairExecuted), 1)
	require.Len(t, store.created, 1)
}

func TestExecuteSingleLegFilled(t *testing.T) {
	gateway := newFakeGateway()
	gateway.script("no-token", domain.OrderResult{
		Success: true,
		OrderID: "ord-no",
		Status:  domain.OrderStatusFailed,
	})
	events := &fakeEvents{}
	ledger := risk.New(10000, 0, testLogger())
	e := New(testConfig(domain.OrderTypeFAK), gateway, fakeSigner{}, ledger, nil, nil, events, testLogger())

	pair, err := e.Execute(context.Background(), testWindow(), testOpp(0.52, 0.46, 100))
	require.NoError(t, err, "a one-legged fill is tolerated, not fatal")

	assert.Equal(t, domain.PairStatusPartial, pair.Status)
	assert.InDelta(t, 100, pair.YesFilled, 1e-9)
	assert.Zero(t, pair.NoFilled)
	assert.Zero(t, pair.MergeableSize())

	// The missed leg's notional is back in the pool; the filled leg's
	// stays committed.
	assert.InDelta(t, 100*0.53, ledger.Exposure(), 1e-6)

	require.Len(t, events.byType(domain.EventHedgeImbalance), 1)
	assert.Empty(t, events.byType(domain.EventPairExecuted))
}

func TestExecuteSubmitErrorReleasesLeg(t *testing.T) {
	gateway := newFakeGateway()
	gateway.scriptErr("yes-token", assert.AnError)
	events := &fakeEvents{}
	ledger := risk.New(10000, 0, testLogger())
	e := New(testConfig(domain.OrderTypeFAK), gateway, fakeSigner{}, ledger, nil, nil, events, testLogger())

	pair, err := e.Execute(context.Background(), testWindow(), testOpp(0.52, 0.46, 100))
	require.NoError(t, err, "a submit error on one leg is handled like a miss")

	assert.Equal(t, domain.PairStatusPartial, pair.Status)
	assert.Zero(t, pair.YesFilled)
	assert.InDelta(t, 100, pair.NoFilled, 1e-9)

	// The errored leg never reached the book, so its full notional goes
	// back to the pool. Only the filled no leg stays committed.
	assert.InDelta(t, 100*0.47, ledger.Exposure(), 1e-6)

	require.Len(t, events.byType(domain.EventHedgeImbalance), 1)
}

func TestExecuteBothLegsMissed(t *testing.T) {
	gateway := newFakeGateway()
	killed := domain.OrderResult{Success: false, Status: domain.OrderStatusFailed}
	gateway.script("yes-token", killed)
	gateway.script("no-token", killed)
	ledger := risk.New(10000, 0, testLogger())
	e := New(testConfig(domain.OrderTypeFOK), gateway, fakeSigner{}, ledger, nil, nil, nil, testLogger())

	pair, err := e.Execute(context.Background(), testWindow(), testOpp(0.52, 0.46, 100))
	require.Error(t, err)
	assert.Equal(t, domain.PairStatusFailed, pair.Status)

	// Everything released; nothing leaks.
	assert.Zero(t, ledger.Exposure())
	assert.Zero(t, ledger.OpenReservations())
}

func TestExecuteBelowMinNotional(t *testing.T) {
	gateway := newFakeGateway()
	ledger := risk.New(10000, 0, testLogger())
	e := New(testConfig(domain.OrderTypeFAK), gateway, fakeSigner{}, ledger, nil, nil, nil, testLogger())

	// 1.5 shares at ~0.5 is under the $1 exchange minimum per leg.
	_, err := e.Execute(context.Background(), testWindow(), testOpp(0.52, 0.46, 1.5))
	assert.ErrorIs(t, err, domain.ErrBelowMinSize)
	assert.Empty(t, gateway.posted)
	assert.Zero(t, ledger.Exposure())
}

func TestExecuteExposureCap(t *testing.T) {
	gateway := newFakeGateway()
	events := &fakeEvents{}
	ledger := risk.New(50, 0, testLogger())
	e := New(testConfig(domain.OrderTypeFAK), gateway, fakeSigner{}, ledger, nil, nil, events, testLogger())

	_, err := e.Execute(context.Background(), testWindow(), testOpp(0.52, 0.46, 100))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExposureCap)

	assert.Empty(t, gateway.posted, "no order may reach the exchange past the gate")
	require.Len(t, events.byType(domain.EventRiskGate), 1)
}

func TestExecuteRateLimited(t *testing.T) {
	gateway := newFakeGateway()
	ledger := risk.New(10000, 0, testLogger())
	e := New(testConfig(domain.OrderTypeFAK), gateway, fakeSigner{}, ledger, nil, denyLimiter{}, nil, testLogger())

	_, err := e.Execute(context.Background(), testWindow(), testOpp(0.52, 0.46, 100))
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Empty(t, gateway.posted)
	assert.Zero(t, ledger.Exposure())
}

func TestExecuteDeduplicates(t *testing.T) {
	gateway := newFakeGateway()
	ledger := risk.New(10000, 0, testLogger())
	e := New(testConfig(domain.OrderTypeFAK), gateway, fakeSigner{}, ledger, nil, nil, nil, testLogger())

	_, err := e.Execute(context.Background(), testWindow(), testOpp(0.52, 0.46, 100))
	require.NoError(t, err)
	require.Len(t, gateway.posted, 2)

	// Identical prices within the TTL are suppressed silently.
	pair, err := e.Execute(context.Background(), testWindow(), testOpp(0.52, 0.46, 100))
	require.NoError(t, err)
	assert.Empty(t, pair.ID)
	assert.Len(t, gateway.posted, 2)

	// A changed book is a new pair.
	_, err = e.Execute(context.Background(), testWindow(), testOpp(0.51, 0.46, 100))
	require.NoError(t, err)
	assert.Len(t, gateway.posted, 4)
}

func TestExecuteSlippageByDirection(t *testing.T) {
	gateway := newFakeGateway()
	ledger := risk.New(10000, 0, testLogger())
	e := New(testConfig(domain.OrderTypeFAK), gateway, fakeSigner{}, ledger, nil, nil, nil, testLogger())

	opp := testOpp(0.52, 0.46, 100)
	opp.Yes.AskDirection = domain.DirectionUp
	opp.No.AskDirection = domain.DirectionDown

	_, err := e.Execute(context.Background(), testWindow(), opp)
	require.NoError(t, err)

	// Rising leg takes the first slippage, falling leg the wider second.
	yesOrder, _ := gateway.postedFor("yes-token")
	assert.Equal(t, int64(530000), yesOrder.PriceTicks)
	noOrder, _ := gateway.postedFor("no-token")
	assert.Equal(t, int64(480000), noOrder.PriceTicks)
}

func TestExecuteClampsPrice(t *testing.T) {
	gateway := newFakeGateway()
	ledger := risk.New(10000, 0, testLogger())
	e := New(testConfig(domain.OrderTypeFAK), gateway, fakeSigner{}, ledger, nil, nil, nil, testLogger())

	// 0.995 + 0.01 slippage would exceed $1; the limit clamps.
	_, err := e.Execute(context.Background(), testWindow(), testOpp(0.995, 0.001, 2000))
	require.NoError(t, err)

	yesOrder, _ := gateway.postedFor("yes-token")
	assert.Equal(t, int64(1000000), yesOrder.PriceTicks)
}

func TestRestingLegResolvedAtCutoff(t *testing.T) {
	gateway := newFakeGateway()
	gateway.script("yes-token", domain.OrderResult{
		Success:    true,
		OrderID:    "ord-yes",
		Status:     domain.OrderStatusOpen,
		FilledSize: 30,
	})
	events := &fakeEvents{}
	store := &fakeStore{}
	ledger := risk.New(10000, 0, testLogger())
	e := New(testConfig(domain.OrderTypeGTC), gateway, fakeSigner{}, ledger, store, nil, events, testLogger())

	pair, err := e.Execute(context.Background(), testWindow(), testOpp(0.52, 0.46, 100))
	require.NoError(t, err)
	assert.Equal(t, domain.PairStatusPending, pair.Status, "resting leg keeps the pair open")

	// The resting yes leg fills up to 80 shares before the cutoff sweep.
	gateway.setOrder("ord-yes", domain.OrderStatusOpen, 80)

	e.CancelWindow(context.Background(), "win-1")

	assert.Contains(t, gateway.cancelled, "ord-yes")

	final := store.updated[len(store.updated)-1]
	assert.Equal(t, domain.PairStatusHedged, final.Status)
	assert.InDelta(t, 80, final.YesFilled, 1e-9)
	assert.InDelta(t, 100, final.NoFilled, 1e-9)
	assert.InDelta(t, 80, final.MergeableSize(), 1e-9)

	// 20 unfilled yes shares at 0.53 came back; the rest stays reserved.
	assert.InDelta(t, 80*0.53+100*0.47, ledger.Exposure(), 1e-6)

	// A second sweep finds nothing left to do.
	e.CancelWindow(context.Background(), "win-1")
	e.SettleWindow(context.Background(), "win-1")
	assert.InDelta(t, 80*0.53+100*0.47, ledger.Exposure(), 1e-6)
}

func TestGtdExpiryReleasesUnfilled(t *testing.T) {
	gateway := newFakeGateway()
	gateway.script("yes-token", domain.OrderResult{
		Success: true,
		OrderID: "ord-yes",
		Status:  domain.OrderStatusOpen,
	})
	store := &fakeStore{}
	ledger := risk.New(10000, 0, testLogger())

	cfg := testConfig(domain.OrderTypeGTD)
	cfg.GtdExpiration = 20 * time.Millisecond
	e := New(cfg, gateway, fakeSigner{}, ledger, store, nil, nil, testLogger())
	e.gtdGrace = 10 * time.Millisecond

	pair, err := e.Execute(context.Background(), testWindow(), testOpp(0.52, 0.46, 100))
	require.NoError(t, err)
	assert.Equal(t, domain.PairStatusPending, pair.Status)

	// The resting reservation stays whole until the expiry sweep.
	assert.InDelta(t, 100*0.53+100*0.47, ledger.Exposure(), 1e-6)

	// 60 shares fill on the book before the order expires.
	gateway.setOrder("ord-yes", domain.OrderStatusOpen, 60)

	want := 60*0.53 + 100*0.47
	require.Eventually(t, func() bool {
		return math.Abs(ledger.Exposure()-want) < 1e-6
	}, 2*time.Second, 5*time.Millisecond, "expiry sweep returns the unfilled notional")

	assert.Contains(t, gateway.cancelled, "ord-yes")

	final := store.updated[len(store.updated)-1]
	assert.Equal(t, domain.PairStatusHedged, final.Status)
	assert.InDelta(t, 60, final.YesFilled, 1e-9)
	assert.InDelta(t, 60, final.MergeableSize(), 1e-9)

	// The close sweep finds nothing left to resolve.
	e.SettleWindow(context.Background(), "win-1")
	assert.InDelta(t, want, ledger.Exposure(), 1e-6)
}

func TestFakPartialFillReleasesRemainder(t *testing.T) {
	gateway := newFakeGateway()
	gateway.script("yes-token", domain.OrderResult{
		Success:    true,
		OrderID:    "ord-yes",
		Status:     domain.OrderStatusMatched,
		FilledSize: 40,
	})
	ledger := risk.New(10000, 0, testLogger())
	e := New(testConfig(domain.OrderTypeFAK), gateway, fakeSigner{}, ledger, nil, nil, nil, testLogger())

	pair, err := e.Execute(context.Background(), testWindow(), testOpp(0.52, 0.46, 100))
	require.NoError(t, err)

	assert.Equal(t, domain.PairStatusHedged, pair.Status)
	assert.InDelta(t, 40, pair.YesFilled, 1e-9)
	assert.InDelta(t, 100, pair.NoFilled, 1e-9)
	assert.InDelta(t, 40, pair.MergeableSize(), 1e-9)

	// The 60 untaken yes shares release immediately; nothing rests.
	assert.InDelta(t, 40*0.53+100*0.47, ledger.Exposure(), 1e-6)
	assert.Equal(t, 1, ledger.OpenReservations())
}

func TestCloseCancelsAll(t *testing.T) {
	gateway := newFakeGateway()
	ledger := risk.New(10000, 0, testLogger())
	e := New(testConfig(domain.OrderTypeFAK), gateway, fakeSigner{}, ledger, nil, nil, nil, testLogger())

	require.NoError(t, e.Close())
	assert.Equal(t, 1, gateway.cancelAll)
}

func TestDedupTTL(t *testing.T) {
	d := NewDedup(30 * time.Millisecond)

	assert.False(t, d.IsDuplicate("k"))
	d.Mark("k")
	assert.True(t, d.IsDuplicate("k"))

	time.Sleep(40 * time.Millisecond)
	assert.False(t, d.IsDuplicate("k"), "expired entries are evicted")

	d.Mark("k")
	d.Mark("gone")
	time.Sleep(40 * time.Millisecond)
	d.Cleanup()
	assert.False(t, d.IsDuplicate("gone"))
}
