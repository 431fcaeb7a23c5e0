package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "ARBBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.SafeAddress, "ARBBOT_WALLET_SAFE_ADDRESS")
	setStr(&cfg.Wallet.EncryptedKeyPath, "ARBBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "ARBBOT_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "ARBBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "ARBBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "ARBBOT_POLYMARKET_WS_HOST")
	setStr(&cfg.Polymarket.RelayerHost, "ARBBOT_POLYMARKET_RELAYER_HOST")
	setInt(&cfg.Polymarket.ChainID, "ARBBOT_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "ARBBOT_POLYMARKET_SIGNATURE_TYPE")

	// ── Builder ──
	setStr(&cfg.Builder.ApiKey, "ARBBOT_BUILDER_API_KEY")
	setStr(&cfg.Builder.ApiSecret, "ARBBOT_BUILDER_API_SECRET")
	setStr(&cfg.Builder.ApiPassphrase, "ARBBOT_BUILDER_API_PASSPHRASE")

	// ── Engine ──
	setStringSlice(&cfg.Engine.Symbols, "ARBBOT_ENGINE_SYMBOLS")
	setInt(&cfg.Engine.MarketRefreshAdvanceSecs, "ARBBOT_ENGINE_MARKET_REFRESH_ADVANCE_SECS")
	setFloat64(&cfg.Engine.StopBeforeEndMinutes, "ARBBOT_ENGINE_STOP_BEFORE_END_MINUTES")
	setFloat64(&cfg.Engine.MaxStaleSecs, "ARBBOT_ENGINE_MAX_STALE_SECS")

	// ── Trading ──
	setFloat64(&cfg.Trading.ExecutionSpread, "ARBBOT_TRADING_EXECUTION_SPREAD")
	setFloat64(&cfg.Trading.MinProfitThreshold, "ARBBOT_TRADING_MIN_PROFIT_THRESHOLD")
	setFloat64(&cfg.Trading.MinYesPrice, "ARBBOT_TRADING_MIN_YES_PRICE")
	setFloat64(&cfg.Trading.MinNoPrice, "ARBBOT_TRADING_MIN_NO_PRICE")
	setFloat64(&cfg.Trading.MaxOrderSizeUSDC, "ARBBOT_TRADING_MAX_ORDER_SIZE_USDC")
	setStr(&cfg.Trading.Slippage, "ARBBOT_TRADING_SLIPPAGE")
	setStr(&cfg.Trading.OrderType, "ARBBOT_TRADING_ORDER_TYPE")
	setInt(&cfg.Trading.GtdExpirationSecs, "ARBBOT_TRADING_GTD_EXPIRATION_SECS")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxExposureUSDC, "ARBBOT_RISK_MAX_EXPOSURE_USDC")
	setFloat64(&cfg.Risk.ImbalanceThreshold, "ARBBOT_RISK_IMBALANCE_THRESHOLD")

	// ── Merge ──
	setBool(&cfg.Merge.Enabled, "ARBBOT_MERGE_ENABLED")
	setDuration(&cfg.Merge.Interval, "ARBBOT_MERGE_INTERVAL")
	setFloat64(&cfg.Merge.MinProfitUSDC, "ARBBOT_MERGE_MIN_PROFIT_USDC")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ARBBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARBBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBBOT_REDIS_TLS_ENABLED")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBBOT_MODE")
	setStr(&cfg.LogLevel, "ARBBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
