package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
	LogLevel          string `json:"log_level"`
}

type Upstream struct {
	// DexswapURL is the base URL of the DEX token/price API.
	DexswapURL string `json:"dexswap_url"`
	// CryptocompareURL is the base URL of the historical-price API.
	CryptocompareURL    string `json:"cryptocompare_url"`
	CryptocompareAPIKey string `json:"cryptocompare_api_key"`
	TimeoutSec          int    `json:"timeout_sec"`
}

type Cache struct {
	// TokensTTLSec bounds staleness of the token-list snapshot.
	TokensTTLSec int `json:"tokens_ttl_sec"`
	// HistoryLiveTTLSec applies to series whose range touches the current
	// period; HistoryClosedTTLSec to ranges fully in the past.
	HistoryLiveTTLSec   int `json:"history_live_ttl_sec"`
	HistoryClosedTTLSec int `json:"history_closed_ttl_sec"`
	// NegativeTTLSec caches unknown-symbol rejections.
	NegativeTTLSec int `json:"negative_ttl_sec"`
	Capacity       int `json:"capacity"`
}

type Gateway struct {
	// RetryAttempts is the number of extra attempts after the first upstream
	// call; only transient failures are retried.
	RetryAttempts  int `json:"retry_attempts"`
	RetryBackoffMS int `json:"retry_backoff_ms"`
	// TokensRefreshSec enables the background token-list refresher; 0 disables.
	TokensRefreshSec int `json:"tokens_refresh_sec"`
}

type Config struct {
	Server   Server   `json:"server"`
	Upstream Upstream `json:"upstream"`
	Cache    Cache    `json:"cache"`
	Gateway  Gateway  `json:"gateway"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 15, LogLevel: "info"},
		Upstream: Upstream{
			DexswapURL:       "https://api.dex-swap.io/v1",
			CryptocompareURL: "https://min-api.cryptocompare.com",
			TimeoutSec:       5,
		},
		Cache: Cache{
			TokensTTLSec:        30,
			HistoryLiveTTLSec:   60,
			HistoryClosedTTLSec: 3600,
			NegativeTTLSec:      60,
			Capacity:            1024,
		},
		Gateway: Gateway{
			RetryAttempts:    1,
			RetryBackoffMS:   200,
			TokensRefreshSec: 0,
		},
	}
}

// Load reads JSON config from path. If path is empty or the file does not
// exist, it returns defaults. Environment variables override select fields.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	setInt(&cfg.Server.RequestTimeoutSec, "REQUEST_TIMEOUT_SEC")
	if v := os.Getenv("DEXSWAP_URL"); v != "" {
		cfg.Upstream.DexswapURL = v
	}
	if v := os.Getenv("CRYPTOCOMPARE_URL"); v != "" {
		cfg.Upstream.CryptocompareURL = v
	}
	if v := os.Getenv("CRYPTOCOMPARE_API_KEY"); v != "" {
		cfg.Upstream.CryptocompareAPIKey = v
	}
	setInt(&cfg.Upstream.TimeoutSec, "UPSTREAM_TIMEOUT_SEC")
	setInt(&cfg.Cache.TokensTTLSec, "TOKENS_TTL_SEC")
	setInt(&cfg.Cache.HistoryLiveTTLSec, "HISTORY_LIVE_TTL_SEC")
	setInt(&cfg.Cache.HistoryClosedTTLSec, "HISTORY_CLOSED_TTL_SEC")
	setInt(&cfg.Cache.NegativeTTLSec, "NEGATIVE_TTL_SEC")
	setInt(&cfg.Cache.Capacity, "CACHE_CAPACITY")
	setInt(&cfg.Gateway.RetryAttempts, "RETRY_ATTEMPTS")
	setInt(&cfg.Gateway.RetryBackoffMS, "RETRY_BACKOFF_MS")
	setInt(&cfg.Gateway.TokensRefreshSec, "TOKENS_REFRESH_SEC")
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		var x int
		if _, err := fmt.Sscanf(v, "%d", &x); err == nil && x >= 0 {
			*dst = x
		}
	}
}
