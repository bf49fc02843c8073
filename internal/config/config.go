// Package config defines the top-level configuration for the arbitrage bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by CROSSARB_* environment
// variables. Percentages and money amounts are decimal strings so they
// survive the trip into exact arithmetic untouched.
type Config struct {
	Venues    []VenueConfig   `toml:"venues"`
	Scanner   ScannerConfig   `toml:"scanner"`
	Risk      RiskConfig      `toml:"risk"`
	Executor  ExecutorConfig  `toml:"executor"`
	Threshold ThresholdConfig `toml:"threshold"`
	Fees      FeesConfig      `toml:"fees"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// VenueConfig holds one exchange's endpoints and credentials.
type VenueConfig struct {
	Name      string `toml:"name"`
	Kind      string `toml:"kind"` // "binance" or "paper"
	BaseURL   string `toml:"base_url"`
	WsURL     string `toml:"ws_url"`
	ApiKey    string `toml:"api_key"`
	ApiSecret string `toml:"api_secret"`
	// RateLimit is the REST request budget per second shared across
	// instances through the distributed limiter.
	RateLimit int `toml:"rate_limit"`
}

// ScannerConfig holds cross-exchange and triangular scan parameters.
type ScannerConfig struct {
	// Symbols is the watchlist streamed from every venue. Pairs outside
	// this list are never scanned.
	Symbols             []string `toml:"symbols"`
	Interval            duration `toml:"interval"`
	PairRefreshInterval duration `toml:"pair_refresh_interval"`
	MaxSlippage         string   `toml:"max_slippage"`    // fraction, e.g. "0.002"
	MinNotional         string   `toml:"min_notional"`    // quote units
	MaxTradeValue       string   `toml:"max_trade_value"` // quote units
	TriangularEnabled   bool     `toml:"triangular_enabled"`
	// TriangularInterval drives the triangular passes on their own cadence,
	// independent of the cross-exchange interval.
	TriangularInterval duration `toml:"triangular_interval"`
	TriangularPaths    []string `toml:"triangular_paths"` // "BTC/USDT>ETH/BTC>ETH/USDT"
	TriangularCapital  string   `toml:"triangular_capital"`
}

// RiskConfig holds the pre-trade gate limits.
type RiskConfig struct {
	MinProfitPct       string `toml:"min_profit_pct"`
	MaxPositionValue   string `toml:"max_position_value"`
	EmergencyLossFrac  string `toml:"emergency_loss_frac"`
	BreakEvenBufferPct string `toml:"break_even_buffer_pct"`
}

// ExecutorConfig holds execution engine parameters.
type ExecutorConfig struct {
	SlippagePadPct   string   `toml:"slippage_pad_pct"`
	FillTimeout      duration `toml:"fill_timeout"`
	FillPollInterval duration `toml:"fill_poll_interval"`
	EmergencyPoll    duration `toml:"emergency_poll"`
	EmergencyMaxWait duration `toml:"emergency_max_wait"`
	UnwindPolicy     string   `toml:"unwind_policy"` // "unwind" or "hold"
}

// ThresholdConfig holds the adaptive profit threshold ladder.
type ThresholdConfig struct {
	BaselinePct      string  `toml:"baseline_pct"`
	DegradedPct      string  `toml:"degraded_pct"`
	CriticalPct      string  `toml:"critical_pct"`
	JitterTriggerSec float64 `toml:"jitter_trigger_sec"`
	JitterWidenPct   string  `toml:"jitter_widen_pct"`
	MinPct           string  `toml:"min_pct"`
	MaxPct           string  `toml:"max_pct"`
}

// FeesConfig holds fee schedule handling parameters.
type FeesConfig struct {
	RefreshInterval duration `toml:"refresh_interval"`
	UseVenueToken   bool     `toml:"use_venue_token"`
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

// S3Config holds S3-compatible object storage parameters for the audit
// archiver.
type S3Config struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	UploadInterval duration `toml:"upload_interval"`
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

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder
// can parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Scanner: ScannerConfig{
			Symbols:             []string{"BTC/USDT", "ETH/USDT", "ETH/BTC"},
			Interval:            duration{5 * time.Second},
			PairRefreshInterval: duration{5 * time.Minute},
			MaxSlippage:         "0.002",
			MinNotional:         "10",
			MaxTradeValue:       "500",
			TriangularEnabled:   true,
			TriangularInterval:  duration{10 * time.Second},
			TriangularCapital:   "500",
		},
		Risk: RiskConfig{
			MinProfitPct:       "0.3",
			MaxPositionValue:   "10000",
			EmergencyLossFrac:  "0.01",
			BreakEvenBufferPct: "0.1",
		},
		Executor: ExecutorConfig{
			SlippagePadPct:   "0.1",
			FillTimeout:      duration{30 * time.Second},
			FillPollInterval: duration{500 * time.Millisecond},
			EmergencyPoll:    duration{10 * time.Second},
			EmergencyMaxWait: duration{time.Hour},
			UnwindPolicy:     "unwind",
		},
		Threshold: ThresholdConfig{
			BaselinePct:      "0.5",
			DegradedPct:      "0.7",
			CriticalPct:      "1.0",
			JitterTriggerSec: 2.0,
			JitterWidenPct:   "0.2",
			MinPct:           "0.4",
			MaxPct:           "1.0",
		},
		Fees: FeesConfig{
			RefreshInterval: duration{time.Hour},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "crossarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "crossarb-data",
			ForcePathStyle: true,
			UploadInterval: duration{15 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"trade_executed", "emergency_exit", "health_critical"},
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":  true,
	"trade": true,
	"paper": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validVenueKinds = map[string]bool{
	"binance": true,
	"paper":   true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, trade, paper)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Venues
	if len(c.Venues) < 2 && strings.ToLower(c.Mode) != "paper" {
		errs = append(errs, fmt.Sprintf("venues: at least 2 venues required for cross-exchange scanning, got %d", len(c.Venues)))
	}
	seen := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		if v.Name == "" {
			errs = append(errs, fmt.Sprintf("venues[%d]: name must not be empty", i))
		}
		if seen[v.Name] {
			errs = append(errs, fmt.Sprintf("venues[%d]: duplicate name %q", i, v.Name))
		}
		seen[v.Name] = true
		if !validVenueKinds[v.Kind] {
			errs = append(errs, fmt.Sprintf("venues[%d]: unknown kind %q (valid: binance, paper)", i, v.Kind))
		}
		if v.Kind == "binance" && strings.ToLower(c.Mode) == "trade" {
			if v.ApiKey == "" || v.ApiSecret == "" {
				errs = append(errs, fmt.Sprintf("venues[%d]: api_key and api_secret are required for trade mode", i))
			}
		}
	}

	// Decimal-valued strings must parse exactly.
	decimals := map[string]string{
		"scanner.max_slippage":       c.Scanner.MaxSlippage,
		"scanner.min_notional":       c.Scanner.MinNotional,
		"scanner.max_trade_value":    c.Scanner.MaxTradeValue,
		"scanner.triangular_capital": c.Scanner.TriangularCapital,
		"risk.min_profit_pct":        c.Risk.MinProfitPct,
		"risk.max_position_value":    c.Risk.MaxPositionValue,
		"risk.emergency_loss_frac":   c.Risk.EmergencyLossFrac,
		"risk.break_even_buffer_pct": c.Risk.BreakEvenBufferPct,
		"executor.slippage_pad_pct":  c.Executor.SlippagePadPct,
		"threshold.baseline_pct":     c.Threshold.BaselinePct,
		"threshold.degraded_pct":     c.Threshold.DegradedPct,
		"threshold.critical_pct":     c.Threshold.CriticalPct,
		"threshold.jitter_widen_pct": c.Threshold.JitterWidenPct,
		"threshold.min_pct":          c.Threshold.MinPct,
		"threshold.max_pct":          c.Threshold.MaxPct,
	}
	for field, value := range decimals {
		if value == "" {
			continue
		}
		if _, err := decimal.NewFromString(value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q is not a decimal", field, value))
		}
	}

	for _, sym := range c.Scanner.Symbols {
		if len(strings.Split(sym, "/")) != 2 {
			errs = append(errs, fmt.Sprintf("scanner.symbols: %q is not BASE/QUOTE", sym))
		}
	}

	for _, path := range c.Scanner.TriangularPaths {
		if len(strings.Split(path, ">")) != 3 {
			errs = append(errs, fmt.Sprintf("scanner.triangular_paths: %q must have 3 legs separated by '>'", path))
		}
	}

	if policy := c.Executor.UnwindPolicy; policy != "" && policy != "unwind" && policy != "hold" {
		errs = append(errs, fmt.Sprintf("executor: unknown unwind_policy %q (valid: unwind, hold)", policy))
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

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
