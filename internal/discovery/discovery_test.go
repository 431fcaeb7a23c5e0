package discovery

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGamma struct {
	mu      sync.Mutex
	markets map[string]domain.Market
	calls   []string
}

func (g *fakeGamma) GetMarketBySlug(_ context.Context, slug string) (domain.Market, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, slug)
	m, ok := g.markets[slug]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func TestSlugFor(t *testing.T) {
	// 2026-08-31 19:35 UTC is 3:35pm ET (EDT).
	open := time.Date(2026, 8, 31, 19, 35, 0, 0, time.UTC)
	assert.Equal(t, "bitcoin-up-or-down-august-31-3-35pm-et", SlugFor("BTC", open))
	assert.Equal(t, "ethereum-up-or-down-august-31-3-35pm-et", SlugFor("ETH", open))

	// Minutes are zero-padded.
	open = time.Date(2026, 8, 31, 19, 5, 0, 0, time.UTC)
	assert.Equal(t, "solana-up-or-down-august-31-3-05pm-et", SlugFor("SOL", open))

	// Midnight ET shows as 12am.
	open = time.Date(2026, 8, 31, 4, 0, 0, 0, time.UTC)
	assert.Equal(t, "xrp-up-or-down-august-31-12-00am-et", SlugFor("XRP", open))

	// Unknown symbols fall back to the lowercased ticker.
	assert.Equal(t, "doge-up-or-down-august-31-12-00am-et", SlugFor("DOGE", open))
}

func TestNextWindowOpen(t *testing.T) {
	cadence := 5 * time.Minute

	now := time.Date(2026, 8, 31, 12, 2, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 31, 12, 5, 0, 0, time.UTC), nextWindowOpen(now, cadence))

	// Exactly on a boundary targets the next one.
	now = time.Date(2026, 8, 31, 12, 5, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 31, 12, 10, 0, 0, time.UTC), nextWindowOpen(now, cadence))
}

func TestToWindow(t *testing.T) {
	open := time.Date(2026, 8, 31, 12, 5, 0, 0, time.UTC)
	end := open.Add(5 * time.Minute)

	m := domain.Market{
		ID:          "mkt-1",
		ConditionID: "0xcond",
		Question:    "Bitcoin Up or Down?",
		Outcomes:    [2]string{"Down", "Up"},
		TokenIDs:    [2]string{"token-down", "token-up"},
		NegRisk:     true,
	}

	w, err := toWindow("BTC", "some-slug", m, open, end)
	require.NoError(t, err)

	// Outcome labels, not array position, pick the YES leg.
	assert.Equal(t, "token-up", w.YesAssetID)
	assert.Equal(t, "token-down", w.NoAssetID)
	assert.Equal(t, "mkt-1", w.ID)
	assert.Equal(t, "0xcond", w.ConditionID)
	assert.True(t, w.NegRisk)
	assert.Equal(t, end, w.CloseTime)

	// Gamma's end date overrides the computed close when present.
	gammaEnd := end.Add(30 * time.Second)
	m.EndDate = &gammaEnd
	w, err = toWindow("BTC", "some-slug", m, open, end)
	require.NoError(t, err)
	assert.Equal(t, gammaEnd, w.CloseTime)

	// Yes/No labelled markets map the same way.
	m.EndDate = nil
	m.Outcomes = [2]string{"Yes", "No"}
	m.TokenIDs = [2]string{"token-yes", "token-no"}
	w, err = toWindow("BTC", "some-slug", m, open, end)
	require.NoError(t, err)
	assert.Equal(t, "token-yes", w.YesAssetID)
	assert.Equal(t, "token-no", w.NoAssetID)

	// Unrecognized outcome labels are an error, not a guess.
	m.Outcomes = [2]string{"Over", "Under"}
	_, err = toWindow("BTC", "some-slug", m, open, end)
	assert.Error(t, err)
}

func TestResolveRetriesUntilListed(t *testing.T) {
	open := time.Now().UTC().Add(5 * time.Second)
	slug := SlugFor("BTC", open)

	gamma := &fakeGamma{markets: map[string]domain.Market{}}
	s := New(Config{Symbols: []string{"BTC"}, Cadence: 5 * time.Minute}, gamma, testLogger())

	// List the market after the first lookup has already missed.
	go func() {
		time.Sleep(500 * time.Millisecond)
		gamma.mu.Lock()
		gamma.markets[slug] = domain.Market{
			ID:       "mkt-1",
			Outcomes: [2]string{"Up", "Down"},
			TokenIDs: [2]string{"t-up", "t-down"},
		}
		gamma.mu.Unlock()
	}()

	w, err := s.resolve(context.Background(), "BTC", open)
	require.NoError(t, err)
	assert.Equal(t, "mkt-1", w.ID)

	gamma.mu.Lock()
	assert.GreaterOrEqual(t, len(gamma.calls), 2, "first attempt raced the listing")
	gamma.mu.Unlock()
}

func TestResolveGivesUpAfterOpen(t *testing.T) {
	// The window opened in the past and the market never listed.
	open := time.Now().UTC().Add(-time.Minute)
	gamma := &fakeGamma{markets: map[string]domain.Market{}}
	s := New(Config{Symbols: []string{"BTC"}, Cadence: 5 * time.Minute}, gamma, testLogger())

	_, err := s.resolve(context.Background(), "BTC", open)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveHonorsContext(t *testing.T) {
	open := time.Now().UTC().Add(time.Hour)
	gamma := &fakeGamma{markets: map[string]domain.Market{}}
	s := New(Config{Symbols: []string{"BTC"}, Cadence: 5 * time.Minute}, gamma, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := s.resolve(ctx, "BTC", open)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
