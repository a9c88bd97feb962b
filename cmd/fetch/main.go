package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"marketgateway/internal/cache"
	"marketgateway/internal/config"
	"marketgateway/internal/gateway"
	"marketgateway/internal/httpx"
	"marketgateway/internal/market"
	"marketgateway/internal/provider/cryptocompare"
	"marketgateway/internal/provider/dexswap"
)

// One-shot CLI: exercises the gateway without the HTTP layer and prints the
// normalized result as JSON.
func main() {
	var mode string
	var symbol string
	var startStr, endStr string
	var resolution string
	var configPath string

	flag.StringVar(&mode, "mode", "tokens", "what to fetch: tokens or history")
	flag.StringVar(&symbol, "symbol", "TFUEL", "token symbol for history mode")
	flag.StringVar(&startStr, "start", "", "history range start (YYYY-MM-DD)")
	flag.StringVar(&endStr, "end", "", "history range end (YYYY-MM-DD)")
	flag.StringVar(&resolution, "resolution", "day", "candle resolution: minute, hour or day")
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json (optional)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
	upstreamTimeout := time.Duration(cfg.Upstream.TimeoutSec) * time.Second
	dex := dexswap.New(dexswap.Config{BaseURL: cfg.Upstream.DexswapURL, Timeout: upstreamTimeout}, httpClient)
	histo := cryptocompare.New(cryptocompare.Config{
		BaseURL: cfg.Upstream.CryptocompareURL,
		APIKey:  cfg.Upstream.CryptocompareAPIKey,
		Timeout: upstreamTimeout,
	}, httpClient.HTTP)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	gw := gateway.New(dex, histo, cache.New(cfg.Cache.Capacity), gateway.Config{
		RetryAttempts: cfg.Gateway.RetryAttempts,
		RetryBackoff:  time.Duration(cfg.Gateway.RetryBackoffMS) * time.Millisecond,
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var out any
	switch mode {
	case "tokens":
		res, err := gw.TokenList(ctx)
		if err != nil {
			log.Fatalf("tokens: %v", err)
		}
		out = res.Tokens
	case "history":
		rng, err := parseRange(startStr, endStr)
		if err != nil {
			log.Fatalf("history: %v", err)
		}
		res, err := gw.PriceHistory(ctx, symbol, rng, market.Resolution(resolution))
		if err != nil {
			log.Fatalf("history: %v", err)
		}
		out = res.Series
	default:
		log.Fatalf("unknown mode %q", mode)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode: %v", err)
	}
}

func parseRange(start, end string) (market.Range, error) {
	const layout = "2006-01-02"
	now := time.Now().UTC()
	s, e := now.AddDate(0, 0, -30), now
	if start != "" {
		t, err := time.Parse(layout, start)
		if err != nil {
			return market.Range{}, err
		}
		s = t
	}
	if end != "" {
		t, err := time.Parse(layout, end)
		if err != nil {
			return market.Range{}, err
		}
		e = t
	}
	return market.Range{Start: s, End: e}, nil
}
