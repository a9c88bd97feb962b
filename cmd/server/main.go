package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"marketgateway/internal/api"
	"marketgateway/internal/cache"
	"marketgateway/internal/config"
	"marketgateway/internal/gateway"
	"marketgateway/internal/httpx"
	"marketgateway/internal/provider/cryptocompare"
	"marketgateway/internal/provider/dexswap"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
	upstreamTimeout := time.Duration(cfg.Upstream.TimeoutSec) * time.Second

	dex := dexswap.New(dexswap.Config{
		BaseURL: cfg.Upstream.DexswapURL,
		Timeout: upstreamTimeout,
	}, httpClient)
	histo := cryptocompare.New(cryptocompare.Config{
		BaseURL: cfg.Upstream.CryptocompareURL,
		APIKey:  cfg.Upstream.CryptocompareAPIKey,
		Timeout: upstreamTimeout,
	}, httpClient.HTTP)

	store := cache.New(cfg.Cache.Capacity)
	gw := gateway.New(dex, histo, store, gateway.Config{
		TokensTTL:        time.Duration(cfg.Cache.TokensTTLSec) * time.Second,
		HistoryLiveTTL:   time.Duration(cfg.Cache.HistoryLiveTTLSec) * time.Second,
		HistoryClosedTTL: time.Duration(cfg.Cache.HistoryClosedTTLSec) * time.Second,
		NegativeTTL:      time.Duration(cfg.Cache.NegativeTTLSec) * time.Second,
		RetryAttempts:    cfg.Gateway.RetryAttempts,
		RetryBackoff:     time.Duration(cfg.Gateway.RetryBackoffMS) * time.Millisecond,
	}, logger)

	handler := api.NewHandler(gw, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// optional proactive token-list refresh ahead of TTL expiry
	if cfg.Gateway.TokensRefreshSec > 0 {
		go refreshTokens(ctx, gw, time.Duration(cfg.Gateway.TokensRefreshSec)*time.Second, logger)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func refreshTokens(ctx context.Context, gw *gateway.Gateway, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := gw.RefreshTokens(ctx); err != nil {
				logger.Warn("token refresh failed", "error", err)
			}
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
