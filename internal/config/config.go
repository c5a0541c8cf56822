// Package config loads scanner settings from the environment with an
// optional YAML overlay. Environment always wins so operators can tweak a
// single knob without touching the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	// Thresholds (percent)
	MinSpread                  float64 `yaml:"min_spread"`
	MinFundingSpread           float64 `yaml:"min_funding_spread"`
	MinFundingLongFilterForLog float64 `yaml:"min_funding_long_filter_for_log"`
	MaxPriceSpread             float64 `yaml:"max_price_spread"`
	MinTimeToPayMinutes        int     `yaml:"min_time_to_pay_minutes"`

	// Loop shape
	ScanIntervalSec        int `yaml:"scan_interval_sec"`
	CoinBatchSize          int `yaml:"coin_batch_size"`
	MaxConcurrency         int `yaml:"max_concurrency"`
	AnalysisMaxConcurrency int `yaml:"analysis_max_concurrency"`

	// Deadlines
	ScanTimeoutSec     int `yaml:"scan_timeout_sec"`
	ExchangeTimeoutSec int `yaml:"exchange_timeout_sec"`

	// Liquidity check
	ScanCoinInvest float64 `yaml:"scan_coin_invest"` // notional USDT

	// News
	NewsCacheTTLSec  int    `yaml:"news_cache_ttl_sec"`
	NewsDaysBack     int    `yaml:"news_days_back"`
	BinanceCookie    string `yaml:"binance_cookie"`
	XBearerToken     string `yaml:"x_bearer_token"`
	XNewsCacheTTLSec int    `yaml:"x_news_cache_ttl_sec"`
	XNewsMaxResults  int    `yaml:"x_news_max_results"`

	// Filters
	ExcludeCoins     []string `yaml:"exclude_coins"`
	ExcludeExchanges []string `yaml:"exclude_exchanges"`

	// Execution
	BybitAPIKey      string  `yaml:"bybit_api_key"`
	BybitAPISecret   string  `yaml:"bybit_api_secret"`
	BybitRecvWindow  int64   `yaml:"bybit_recv_window"`
	GateAPIKey       string  `yaml:"gate_api_key"`
	GateAPISecret    string  `yaml:"gate_api_secret"`
	Leverage         float64 `yaml:"leverage"`
	CloseSpread      float64 `yaml:"close_spread"` // percent
	CloseIntervalSec int     `yaml:"close_interval_sec"`

	// Infra
	MetricsAddr  string `yaml:"metrics_addr"`
	RedisAddr    string `yaml:"redis_addr"`
	RedisChannel string `yaml:"redis_channel"`
}

// Defaults mirrors the values the scanners assume when a key is unset.
func Defaults() Config {
	return Config{
		MinSpread:                  2.0,
		MinFundingSpread:           1.0,
		MinFundingLongFilterForLog: -0.5,
		MaxPriceSpread:             1.0,
		MinTimeToPayMinutes:        60,
		ScanIntervalSec:            60,
		CoinBatchSize:              30,
		MaxConcurrency:             10,
		AnalysisMaxConcurrency:     2,
		ScanTimeoutSec:             30,
		ExchangeTimeoutSec:         10,
		ScanCoinInvest:             50,
		NewsCacheTTLSec:            180,
		NewsDaysBack:               7,
		XNewsCacheTTLSec:           300,
		XNewsMaxResults:            25,
		BybitRecvWindow:            5000,
		Leverage:                   1,
		CloseSpread:                0.1,
		CloseIntervalSec:           60,
		RedisChannel:               "arbscan:opportunities",
	}
}

// Load reads the optional YAML file at path (empty = skip), then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		log.Info().Str("path", path).Msg("Loaded config file")
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	envFloat("MIN_SPREAD", &c.MinSpread)
	envFloat("MIN_FUNDING_SPREAD", &c.MinFundingSpread)
	envFloat("MIN_FUNDING_LONG_FILTER_FOR_LOG", &c.MinFundingLongFilterForLog)
	envFloat("MAX_PRICE_SPREAD", &c.MaxPriceSpread)
	envInt("MIN_TIME_TO_PAY", &c.MinTimeToPayMinutes)
	envInt("SCAN_INTERVAL_SEC", &c.ScanIntervalSec)
	envInt("COIN_BATCH_SIZE", &c.CoinBatchSize)
	envInt("MAX_CONCURRENCY", &c.MaxConcurrency)
	envInt("ANALYSIS_MAX_CONCURRENCY", &c.AnalysisMaxConcurrency)
	envInt("SCAN_TIMEOUT_SEC", &c.ScanTimeoutSec)
	envInt("EXCHANGE_TIMEOUT_SEC", &c.ExchangeTimeoutSec)
	envFloat("SCAN_COIN_INVEST", &c.ScanCoinInvest)
	envInt("NEWS_CACHE_TTL_SEC", &c.NewsCacheTTLSec)
	envInt("NEWS_DAYS_BACK", &c.NewsDaysBack)
	envString("BINANCE_COOKIE", &c.BinanceCookie)
	envString("X_BEARER_TOKEN", &c.XBearerToken)
	envInt("X_NEWS_CACHE_TTL_SEC", &c.XNewsCacheTTLSec)
	envInt("X_NEWS_MAX_RESULTS", &c.XNewsMaxResults)
	envList("EXCLUDE_COINS", &c.ExcludeCoins)
	envList("EXCLUDE_EXCHANGES", &c.ExcludeExchanges)
	envString("BYBIT_API_KEY", &c.BybitAPIKey)
	envString("BYBIT_API_SECRET", &c.BybitAPISecret)
	envInt64("BYBIT_RECV_WINDOW", &c.BybitRecvWindow)
	envString("GATE_API_KEY", &c.GateAPIKey)
	envString("GATE_API_SECRET", &c.GateAPISecret)
	envFloat("LEVERAGE", &c.Leverage)
	envFloat("CLOSE_SPREAD", &c.CloseSpread)
	envInt("CLOSE_INTERVAL", &c.CloseIntervalSec)
	envString("METRICS_ADDR", &c.MetricsAddr)
	envString("REDIS_ADDR", &c.RedisAddr)
	envString("REDIS_CHANNEL", &c.RedisChannel)
}

// ScanTimeout returns the per-cycle deadline.
func (c *Config) ScanTimeout() time.Duration {
	return time.Duration(c.ScanTimeoutSec) * time.Second
}

// ExchangeTimeout returns the per-call deadline.
func (c *Config) ExchangeTimeout() time.Duration {
	return time.Duration(c.ExchangeTimeoutSec) * time.Second
}

// NewsCacheTTL returns the news cache lifetime.
func (c *Config) NewsCacheTTL() time.Duration {
	return time.Duration(c.NewsCacheTTLSec) * time.Second
}

// ExcludedCoin reports whether coin is on the operator's exclusion list.
func (c *Config) ExcludedCoin(coin string) bool {
	for _, e := range c.ExcludeCoins {
		if strings.EqualFold(strings.TrimSpace(e), coin) {
			return true
		}
	}
	return false
}

// RequireTradingCreds fails when the execution path is missing credentials.
// Pairs always carry one Bybit and one Gate leg, so both sets are required.
func (c *Config) RequireTradingCreds() error {
	if c.BybitAPIKey == "" || c.BybitAPISecret == "" {
		return fmt.Errorf("BYBIT_API_KEY / BYBIT_API_SECRET are required for trading")
	}
	if c.GateAPIKey == "" || c.GateAPISecret == "" {
		return fmt.Errorf("GATE_API_KEY / GATE_API_SECRET are required for trading")
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		} else {
			log.Warn().Str("key", key).Str("value", v).Msg("Ignoring non-numeric env value")
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		} else {
			log.Warn().Str("key", key).Str("value", v).Msg("Ignoring non-numeric env value")
		}
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envList(key string, dst *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
