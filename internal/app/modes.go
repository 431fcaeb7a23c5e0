package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/arb"
	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/crypto"
	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/discovery"
	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/domain"
	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/executor"
	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/feed"
	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/merge"
	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/platform/polymarket"
	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/risk"
	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/window"
)

// windowCadence is the length of the up/down markets the engine trades.
const windowCadence = 5 * time.Minute

// TradeMode runs the full pipeline: discovery, quote streaming, evaluation,
// paired execution, and the merge job.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("trade mode: load wallet key: %w", err)
	}
	signer, err := crypto.NewSigner(key, a.cfg.Polymarket.ChainID)
	if err != nil {
		return fmt.Errorf("trade mode: create signer: %w", err)
	}
	wallet := signer.Address().Hex()

	clob := polymarket.NewClobClient(a.cfg.Polymarket.ClobHost, signer, nil)
	if err := clob.DeriveAPIKey(ctx); err != nil {
		return fmt.Errorf("trade mode: derive CLOB API key: %w", err)
	}

	// Relayer for merging settled outcome sets. Requires builder credentials.
	var relayer *polymarket.RelayerClient
	if a.cfg.Builder.ApiKey != "" {
		relayer = polymarket.NewRelayerClient(a.cfg.Polymarket.RelayerHost, wallet, &crypto.HMACAuth{
			Key:        a.cfg.Builder.ApiKey,
			Secret:     a.cfg.Builder.ApiSecret,
			Passphrase: a.cfg.Builder.ApiPassphrase,
		})
	}

	first, second, err := a.cfg.Trading.SlippagePair()
	if err != nil {
		return fmt.Errorf("trade mode: slippage: %w", err)
	}
	orderType, ok := domain.ParseOrderType(a.cfg.Trading.OrderType)
	if !ok {
		return fmt.Errorf("trade mode: unsupported order type %q", a.cfg.Trading.OrderType)
	}

	ledger := risk.New(a.cfg.Risk.MaxExposureUSDC, a.cfg.Risk.ImbalanceThreshold, a.logger)
	exec := executor.New(executor.Config{
		Wallet:         wallet,
		SignatureType:  a.cfg.Polymarket.SignatureType,
		OrderType:      orderType,
		GtdExpiration:  time.Duration(a.cfg.Trading.GtdExpirationSecs) * time.Second,
		SlippageFirst:  first,
		SlippageSecond: second,
	}, clob, signer, ledger, deps.PairStore, deps.RateLimiter, deps.Events, a.logger)
	defer func() {
		if err := exec.Close(); err != nil {
			a.logger.Warn("shutdown cancel-all failed", slog.String("error", err.Error()))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	router, err := a.startFeed(gctx, g)
	if err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}

	gamma := polymarket.NewGammaClient(a.cfg.Polymarket.GammaHost)
	disc := discovery.New(discovery.Config{
		Symbols: a.cfg.Engine.Symbols,
		Cadence: windowCadence,
		Advance: time.Duration(a.cfg.Engine.MarketRefreshAdvanceSecs) * time.Second,
	}, gamma, a.logger)
	g.Go(func() error { return disc.Run(gctx) })

	ctrl := window.New(a.windowConfig(), disc.Windows(), router, a.newEvaluator(), exec, deps.Events, a.logger)
	g.Go(func() error { return ctrl.Run(gctx) })

	if a.cfg.Merge.Enabled {
		if relayer == nil {
			a.logger.Warn("merge enabled but builder credentials missing, merge job disabled")
		} else if deps.PairStore == nil {
			a.logger.Warn("merge enabled but pair store unavailable, merge job disabled")
		} else {
			job := merge.New(merge.Config{
				Interval:      a.cfg.Merge.Interval.Duration,
				MinProfitUSDC: a.cfg.Merge.MinProfitUSDC,
			}, deps.PairStore, gamma, relayer, ledger, deps.Events, a.logger)
			g.Go(func() error { return job.Run(gctx) })
		}
	}

	return g.Wait()
}

// MonitorMode runs discovery, quote streaming, and evaluation without a
// wallet. Opportunities are published on the event bus but never traded.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, gctx := errgroup.WithContext(ctx)

	router, err := a.startFeed(gctx, g)
	if err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}

	gamma := polymarket.NewGammaClient(a.cfg.Polymarket.GammaHost)
	disc := discovery.New(discovery.Config{
		Symbols: a.cfg.Engine.Symbols,
		Cadence: windowCadence,
		Advance: time.Duration(a.cfg.Engine.MarketRefreshAdvanceSecs) * time.Second,
	}, gamma, a.logger)
	g.Go(func() error { return disc.Run(gctx) })

	ctrl := window.New(a.windowConfig(), disc.Windows(), router, a.newEvaluator(), nil, deps.Events, a.logger)
	g.Go(func() error { return ctrl.Run(gctx) })

	return g.Wait()
}

// startFeed connects the market data WebSocket and returns the quote router.
// The connection is closed when the group context ends.
func (a *App) startFeed(ctx context.Context, g *errgroup.Group) (*feed.Router, error) {
	ws := polymarket.NewWSClient(a.cfg.Polymarket.WsHost+"/ws/market", a.logger)
	if err := ws.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect market feed: %w", err)
	}
	g.Go(func() error {
		<-ctx.Done()
		return ws.Close()
	})
	return feed.NewRouter(ws, a.logger), nil
}

func (a *App) windowConfig() window.Config {
	return window.Config{
		StopBeforeEnd: time.Duration(a.cfg.Engine.StopBeforeEndMinutes * float64(time.Minute)),
		MaxStale:      time.Duration(a.cfg.Engine.MaxStaleSecs * float64(time.Second)),
	}
}

func (a *App) newEvaluator() *arb.Evaluator {
	return arb.New(arb.Params{
		ExecutionSpread:    a.cfg.Trading.ExecutionSpread,
		MinProfitThreshold: a.cfg.Trading.MinProfitThreshold,
		MinYesPrice:        a.cfg.Trading.MinYesPrice,
		MinNoPrice:         a.cfg.Trading.MinNoPrice,
		MaxOrderSizeUSDC:   a.cfg.Trading.MaxOrderSizeUSDC,
	}, a.logger)
}
