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
// built-in defaults, applies CROSSARB_* environment variable overrides, and
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

// applyEnvOverrides reads well-known CROSSARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file. Per-venue credentials use the venue name upper-cased, e.g.
// CROSSARB_VENUE_BINANCE_API_KEY.
func applyEnvOverrides(cfg *Config) {
	// ── Venues ──
	for i := range cfg.Venues {
		prefix := "CROSSARB_VENUE_" + strings.ToUpper(cfg.Venues[i].Name)
		setStr(&cfg.Venues[i].ApiKey, prefix+"_API_KEY")
		setStr(&cfg.Venues[i].ApiSecret, prefix+"_API_SECRET")
		setStr(&cfg.Venues[i].BaseURL, prefix+"_BASE_URL")
		setStr(&cfg.Venues[i].WsURL, prefix+"_WS_URL")
		setInt(&cfg.Venues[i].RateLimit, prefix+"_RATE_LIMIT")
	}

	// ── Scanner ──
	setStringSlice(&cfg.Scanner.Symbols, "CROSSARB_SCANNER_SYMBOLS")
	setDuration(&cfg.Scanner.Interval, "CROSSARB_SCANNER_INTERVAL")
	setDuration(&cfg.Scanner.PairRefreshInterval, "CROSSARB_SCANNER_PAIR_REFRESH_INTERVAL")
	setStr(&cfg.Scanner.MaxSlippage, "CROSSARB_SCANNER_MAX_SLIPPAGE")
	setStr(&cfg.Scanner.MinNotional, "CROSSARB_SCANNER_MIN_NOTIONAL")
	setStr(&cfg.Scanner.MaxTradeValue, "CROSSARB_SCANNER_MAX_TRADE_VALUE")
	setBool(&cfg.Scanner.TriangularEnabled, "CROSSARB_SCANNER_TRIANGULAR_ENABLED")
	setDuration(&cfg.Scanner.TriangularInterval, "CROSSARB_SCANNER_TRIANGULAR_INTERVAL")
	setStringSlice(&cfg.Scanner.TriangularPaths, "CROSSARB_SCANNER_TRIANGULAR_PATHS")
	setStr(&cfg.Scanner.TriangularCapital, "CROSSARB_SCANNER_TRIANGULAR_CAPITAL")

	// ── Risk ──
	setStr(&cfg.Risk.MinProfitPct, "CROSSARB_RISK_MIN_PROFIT_PCT")
	setStr(&cfg.Risk.MaxPositionValue, "CROSSARB_RISK_MAX_POSITION_VALUE")
	setStr(&cfg.Risk.EmergencyLossFrac, "CROSSARB_RISK_EMERGENCY_LOSS_FRAC")
	setStr(&cfg.Risk.BreakEvenBufferPct, "CROSSARB_RISK_BREAK_EVEN_BUFFER_PCT")

	// ── Executor ──
	setStr(&cfg.Executor.SlippagePadPct, "CROSSARB_EXECUTOR_SLIPPAGE_PAD_PCT")
	setDuration(&cfg.Executor.FillTimeout, "CROSSARB_EXECUTOR_FILL_TIMEOUT")
	setDuration(&cfg.Executor.FillPollInterval, "CROSSARB_EXECUTOR_FILL_POLL_INTERVAL")
	setDuration(&cfg.Executor.EmergencyPoll, "CROSSARB_EXECUTOR_EMERGENCY_POLL")
	setDuration(&cfg.Executor.EmergencyMaxWait, "CROSSARB_EXECUTOR_EMERGENCY_MAX_WAIT")
	setStr(&cfg.Executor.UnwindPolicy, "CROSSARB_EXECUTOR_UNWIND_POLICY")

	// ── Threshold ──
	setStr(&cfg.Threshold.BaselinePct, "CROSSARB_THRESHOLD_BASELINE_PCT")
	setStr(&cfg.Threshold.DegradedPct, "CROSSARB_THRESHOLD_DEGRADED_PCT")
	setStr(&cfg.Threshold.CriticalPct, "CROSSARB_THRESHOLD_CRITICAL_PCT")
	setFloat64(&cfg.Threshold.JitterTriggerSec, "CROSSARB_THRESHOLD_JITTER_TRIGGER_SEC")
	setStr(&cfg.Threshold.JitterWidenPct, "CROSSARB_THRESHOLD_JITTER_WIDEN_PCT")
	setStr(&cfg.Threshold.MinPct, "CROSSARB_THRESHOLD_MIN_PCT")
	setStr(&cfg.Threshold.MaxPct, "CROSSARB_THRESHOLD_MAX_PCT")

	// ── Fees ──
	setDuration(&cfg.Fees.RefreshInterval, "CROSSARB_FEES_REFRESH_INTERVAL")
	setBool(&cfg.Fees.UseVenueToken, "CROSSARB_FEES_USE_VENUE_TOKEN")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CROSSARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CROSSARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CROSSARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CROSSARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CROSSARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CROSSARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CROSSARB_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "CROSSARB_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "CROSSARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CROSSARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CROSSARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CROSSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CROSSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CROSSARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CROSSARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CROSSARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CROSSARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CROSSARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CROSSARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CROSSARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "CROSSARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CROSSARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CROSSARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CROSSARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CROSSARB_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.UploadInterval, "CROSSARB_S3_UPLOAD_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CROSSARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CROSSARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CROSSARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CROSSARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CROSSARB_MODE")
	setStr(&cfg.LogLevel, "CROSSARB_LOG_LEVEL")
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
