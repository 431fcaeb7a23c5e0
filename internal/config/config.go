// Package config defines the top-level configuration for the arbitrage bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBBOT_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Builder    BuilderConfig    `toml:"builder"`
	Engine     EngineConfig     `toml:"engine"`
	Trading    TradingConfig    `toml:"trading"`
	Risk       RiskConfig       `toml:"risk"`
	Merge      MergeConfig      `toml:"merge"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	SafeAddress      string `toml:"safe_address"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost      string `toml:"clob_host"`
	GammaHost     string `toml:"gamma_host"`
	WsHost        string `toml:"ws_host"`
	RelayerHost   string `toml:"relayer_host"`
	ChainID       int    `toml:"chain_id"`
	SignatureType int    `toml:"signature_type"`
}

// BuilderConfig holds Polymarket builder-program API credentials, used for
// authenticated relayer calls (merging outcome sets back to USDC).
type BuilderConfig struct {
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
}

// EngineConfig holds window discovery and lifecycle parameters.
type EngineConfig struct {
	// Symbols lists the underlyings to trade 5-minute windows for, e.g.
	// ["BTC", "ETH"].
	Symbols []string `toml:"symbols"`
	// MarketRefreshAdvanceSecs is how long before a window opens that the
	// next window's market is resolved and its streams subscribed.
	MarketRefreshAdvanceSecs int `toml:"market_refresh_advance_secs"`
	// StopBeforeEndMinutes stops opening new pairs this many minutes before
	// the window closes. 0 disables the cutoff phase.
	StopBeforeEndMinutes float64 `toml:"stop_before_end_minutes"`
	// MaxStaleSecs is the maximum quote age for a leg to count as fresh.
	MaxStaleSecs float64 `toml:"max_stale_secs"`
}

// TradingConfig holds pricing and sizing parameters for pair execution.
type TradingConfig struct {
	ExecutionSpread    float64 `toml:"execution_spread"`
	MinProfitThreshold float64 `toml:"min_profit_threshold"`
	MinYesPrice        float64 `toml:"min_yes_price"` // 0 disables the floor
	MinNoPrice         float64 `toml:"min_no_price"`  // 0 disables the floor
	MaxOrderSizeUSDC   float64 `toml:"max_order_size_usdc"`
	// Slippage is either a scalar ("0.002") applied to both legs or a
	// "first,second" pair where the falling leg takes the second value.
	Slippage          string `toml:"slippage"`
	OrderType         string `toml:"order_type"` // GTC, GTD, FOK, FAK
	GtdExpirationSecs int    `toml:"gtd_expiration_secs"`
}

// SlippagePair returns the parsed per-leg slippage values. A scalar value
// is returned for both positions.
func (t TradingConfig) SlippagePair() (first, second float64, err error) {
	parts := strings.Split(t.Slippage, ",")
	switch len(parts) {
	case 1:
		first, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		return first, first, err
	case 2:
		first, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return 0, 0, err
		}
		second, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		return first, second, err
	default:
		return 0, 0, fmt.Errorf("slippage must be a scalar or a \"first,second\" pair, got %q", t.Slippage)
	}
}

// RiskConfig holds exposure limits.
type RiskConfig struct {
	MaxExposureUSDC float64 `toml:"max_exposure_usdc"`
	// ImbalanceThreshold caps |yes - no| / max(yes, no) across open
	// reservations. 0 disables the check.
	ImbalanceThreshold float64 `toml:"imbalance_threshold"`
}

// MergeConfig holds parameters for merging settled outcome sets to USDC.
type MergeConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	MinProfitUSDC float64  `toml:"min_profit_usdc"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			GammaHost:     "https://gamma-api.polymarket.com",
			WsHost:        "wss://ws-subscriptions-clob.polymarket.com",
			RelayerHost:   "https://relayer-v2.polymarket.com",
			ChainID:       137,
			SignatureType: 2,
		},
		Engine: EngineConfig{
			Symbols:                  []string{"BTC"},
			MarketRefreshAdvanceSecs: 20,
			StopBeforeEndMinutes:     0.5,
			MaxStaleSecs:             3,
		},
		Trading: TradingConfig{
			ExecutionSpread:    0.01,
			MinProfitThreshold: 0.005,
			MaxOrderSizeUSDC:   50,
			Slippage:           "0.002,0.005",
			OrderType:          "FAK",
			GtdExpirationSecs:  60,
		},
		Risk: RiskConfig{
			MaxExposureUSDC:    1000,
			ImbalanceThreshold: 0,
		},
		Merge: MergeConfig{
			Enabled:       true,
			Interval:      duration{2 * time.Minute},
			MinProfitUSDC: 0.01,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arbbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Notify: NotifyConfig{
			Events: []string{"hedge_imbalance", "pair_merged", "risk_gate"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode. In monitor
// mode opportunities are detected and published but never executed.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet — a credential source is required for trading.
	if strings.ToLower(c.Mode) == "trade" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode trade")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Polymarket endpoints
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.WsHost == "" {
		errs = append(errs, "polymarket: ws_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType != 0 && c.Polymarket.SignatureType != 1 && c.Polymarket.SignatureType != 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 0 (EOA), 1 (proxy) or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}

	// Builder — all three fields must be set together, or all empty.
	bk := c.Builder.ApiKey != ""
	bs := c.Builder.ApiSecret != ""
	bp := c.Builder.ApiPassphrase != ""
	if (bk || bs || bp) && !(bk && bs && bp) {
		errs = append(errs, "builder: api_key, api_secret, and api_passphrase must all be set together")
	}

	// Engine
	if len(c.Engine.Symbols) == 0 {
		errs = append(errs, "engine: symbols must list at least one underlying")
	}
	if c.Engine.MarketRefreshAdvanceSecs < 0 {
		errs = append(errs, "engine: market_refresh_advance_secs must be >= 0")
	}
	if c.Engine.StopBeforeEndMinutes < 0 {
		errs = append(errs, "engine: stop_before_end_minutes must be >= 0")
	}
	if c.Engine.StopBeforeEndMinutes >= 5 {
		errs = append(errs, "engine: stop_before_end_minutes must be below the 5-minute window length")
	}
	if c.Engine.MaxStaleSecs <= 0 {
		errs = append(errs, "engine: max_stale_secs must be > 0")
	}

	// Trading
	if c.Trading.ExecutionSpread < 0 || c.Trading.ExecutionSpread >= 1 {
		errs = append(errs, fmt.Sprintf("trading: execution_spread must be in [0,1), got %v", c.Trading.ExecutionSpread))
	}
	if c.Trading.MinProfitThreshold < 0 {
		errs = append(errs, "trading: min_profit_threshold must be >= 0")
	}
	if c.Trading.MinYesPrice < 0 || c.Trading.MinYesPrice >= 1 {
		errs = append(errs, "trading: min_yes_price must be in [0,1)")
	}
	if c.Trading.MinNoPrice < 0 || c.Trading.MinNoPrice >= 1 {
		errs = append(errs, "trading: min_no_price must be in [0,1)")
	}
	if c.Trading.MaxOrderSizeUSDC <= 0 {
		errs = append(errs, "trading: max_order_size_usdc must be > 0")
	}
	if first, second, err := c.Trading.SlippagePair(); err != nil {
		errs = append(errs, fmt.Sprintf("trading: slippage: %v", err))
	} else if first < 0 || second < 0 {
		errs = append(errs, "trading: slippage values must be >= 0")
	}
	if _, ok := domain.ParseOrderType(c.Trading.OrderType); !ok {
		errs = append(errs, fmt.Sprintf("trading: order_type must be one of GTC, GTD, FOK, FAK, got %q", c.Trading.OrderType))
	}
	if c.Trading.OrderType == string(domain.OrderTypeGTD) && c.Trading.GtdExpirationSecs <= 0 {
		errs = append(errs, "trading: gtd_expiration_secs must be > 0 for GTD orders")
	}

	// Risk
	if c.Risk.MaxExposureUSDC <= 0 {
		errs = append(errs, "risk: max_exposure_usdc must be > 0")
	}
	if c.Risk.ImbalanceThreshold < 0 || c.Risk.ImbalanceThreshold > 1 {
		errs = append(errs, "risk: imbalance_threshold must be in [0,1]")
	}

	// Merge
	if c.Merge.Enabled && c.Merge.Interval.Duration <= 0 {
		errs = append(errs, "merge: interval must be > 0 when enabled")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
