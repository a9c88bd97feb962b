package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"marketgateway/internal/cache"
	"marketgateway/internal/market"
)

// TokenLister fetches the full token snapshot from the DEX provider.
type TokenLister interface {
	FetchTokenList(ctx context.Context) ([]market.TokenSummary, error)
}

// HistoryFetcher fetches OHLCV points from the history provider.
type HistoryFetcher interface {
	FetchPriceHistory(ctx context.Context, symbol string, rng market.Range, res market.Resolution) ([]market.PriceHistoryPoint, error)
}

const tokensKey = "tokens"

var symbolPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,15}$`)

// Config carries the deployment-tunable knobs. Zero fields fall back to the
// defaults applied in New.
type Config struct {
	TokensTTL        time.Duration
	HistoryLiveTTL   time.Duration
	HistoryClosedTTL time.Duration
	NegativeTTL      time.Duration

	// RetryAttempts is the number of extra attempts after the first; only
	// transient upstream failures are retried. RetryBackoff is the base
	// delay, doubled per retry and capped.
	RetryAttempts int
	RetryBackoff  time.Duration
}

// Gateway orchestrates the upstream clients and the cache store: fresh hits
// are served from cache, misses go through singleflight, and upstream
// failures fall back to a stale entry when one exists.
type Gateway struct {
	tokens  TokenLister
	history HistoryFetcher
	store   *cache.Store
	cfg     Config
	log     *slog.Logger
	now     func() time.Time
}

func New(tokens TokenLister, history HistoryFetcher, store *cache.Store, cfg Config, logger *slog.Logger) *Gateway {
	if cfg.TokensTTL <= 0 {
		cfg.TokensTTL = 30 * time.Second
	}
	if cfg.HistoryLiveTTL <= 0 {
		cfg.HistoryLiveTTL = time.Minute
	}
	if cfg.HistoryClosedTTL <= 0 {
		cfg.HistoryClosedTTL = time.Hour
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = time.Minute
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{tokens: tokens, history: history, store: store, cfg: cfg, log: logger, now: time.Now}
}

// TokenListResult is a token snapshot plus staleness annotation.
type TokenListResult struct {
	Tokens    []market.TokenSummary
	Stale     bool
	FetchedAt time.Time
}

// HistoryResult is a candle series plus staleness annotation.
type HistoryResult struct {
	Series    market.PriceHistorySeries
	Stale     bool
	FetchedAt time.Time
}

// notFound is the negative cache marker for symbols the upstream rejected.
type notFound struct {
	symbol string
}

// TokenList returns the current token snapshot. A fresh cache hit is served
// directly; otherwise at most one upstream fetch runs regardless of how many
// callers arrive, and on failure a stale prior snapshot is served marked as
// such rather than failing hard.
func (g *Gateway) TokenList(ctx context.Context) (TokenListResult, error) {
	if v, fetchedAt, fresh, ok := g.store.Get(tokensKey); ok && fresh {
		if ts, valid := v.([]market.TokenSummary); valid {
			return TokenListResult{Tokens: ts, FetchedAt: fetchedAt}, nil
		}
	}
	fetched, err := g.store.Do(ctx, tokensKey, g.cfg.TokensTTL, g.fetchTokens)
	if err != nil {
		if v, fetchedAt, fresh, ok := g.store.Get(tokensKey); ok {
			if ts, valid := v.([]market.TokenSummary); valid {
				g.log.Warn("serving stale token list", "fetched_at", fetchedAt, "error", err)
				return TokenListResult{Tokens: ts, Stale: !fresh, FetchedAt: fetchedAt}, nil
			}
		}
		return TokenListResult{}, fmt.Errorf("%w: %v", market.ErrServiceUnavailable, err)
	}
	// prefer the stored entry for its canonical fetch instant; fall back to
	// the in-flight result if eviction raced us
	if v, fetchedAt, _, ok := g.store.Get(tokensKey); ok {
		if ts, valid := v.([]market.TokenSummary); valid {
			return TokenListResult{Tokens: ts, FetchedAt: fetchedAt}, nil
		}
	}
	return TokenListResult{Tokens: fetched.([]market.TokenSummary), FetchedAt: g.now()}, nil
}

// RefreshTokens re-fetches the token snapshot regardless of freshness so a
// periodic caller can keep the entry warm ahead of expiry. It shares the
// singleflight slot with on-demand misses.
func (g *Gateway) RefreshTokens(ctx context.Context) error {
	_, err := g.store.Do(ctx, tokensKey, g.cfg.TokensTTL, g.fetchTokens)
	return err
}

func (g *Gateway) fetchTokens(ctx context.Context) (any, error) {
	return g.fetchWithRetry(ctx, "tokens", func(ctx context.Context) (any, error) {
		return g.tokens.FetchTokenList(ctx)
	})
}

// PriceHistory returns the candle series for symbol over rng at res.
// Malformed input fails fast and never touches the cache or the upstream.
func (g *Gateway) PriceHistory(ctx context.Context, symbol string, rng market.Range, res market.Resolution) (HistoryResult, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return HistoryResult{}, err
	}
	if !rng.Valid() {
		return HistoryResult{}, fmt.Errorf("%w: range start must be before end", market.ErrInvalidRequest)
	}
	if !res.Valid() {
		return HistoryResult{}, fmt.Errorf("%w: unknown resolution %q", market.ErrInvalidRequest, string(res))
	}
	key := historyKey(sym, rng, res)

	if v, fetchedAt, fresh, ok := g.store.Get(key); ok && fresh {
		switch val := v.(type) {
		case market.PriceHistorySeries:
			return HistoryResult{Series: val, FetchedAt: fetchedAt}, nil
		case notFound:
			return HistoryResult{}, fmt.Errorf("%w: %s", market.ErrSymbolNotFound, val.symbol)
		}
	}

	fetched, err := g.store.Do(ctx, key, g.historyTTL(rng), func(ctx context.Context) (any, error) {
		return g.fetchWithRetry(ctx, key, func(ctx context.Context) (any, error) {
			points, err := g.history.FetchPriceHistory(ctx, sym, rng, res)
			if err != nil {
				return nil, err
			}
			return market.PriceHistorySeries{Symbol: sym, Range: rng, Resolution: res, Points: points}, nil
		})
	})
	if err != nil {
		if errors.Is(err, market.ErrSymbolNotFound) {
			g.store.Put(key, notFound{symbol: sym}, g.now(), g.cfg.NegativeTTL)
			return HistoryResult{}, err
		}
		if v, fetchedAt, fresh, ok := g.store.Get(key); ok {
			if series, valid := v.(market.PriceHistorySeries); valid {
				g.log.Warn("serving stale history", "key", key, "fetched_at", fetchedAt, "error", err)
				return HistoryResult{Series: series, Stale: !fresh, FetchedAt: fetchedAt}, nil
			}
		}
		return HistoryResult{}, fmt.Errorf("%w: %v", market.ErrServiceUnavailable, err)
	}
	if v, fetchedAt, _, ok := g.store.Get(key); ok {
		if series, valid := v.(market.PriceHistorySeries); valid {
			return HistoryResult{Series: series, FetchedAt: fetchedAt}, nil
		}
	}
	return HistoryResult{Series: fetched.(market.PriceHistorySeries), FetchedAt: g.now()}, nil
}

// fetchWithRetry performs fetch with a bounded number of extra attempts and a
// capped doubling backoff. Only transient upstream failures retry; malformed
// responses and unknown symbols fail immediately.
func (g *Gateway) fetchWithRetry(ctx context.Context, what string, fetch func(context.Context) (any, error)) (any, error) {
	attempts := g.cfg.RetryAttempts
	if attempts < 0 {
		attempts = 0
	}
	var lastErr error
	for attempt := 0; attempt <= attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, backoff(g.cfg.RetryBackoff, attempt-1)); err != nil {
				return nil, lastErr
			}
		}
		v, err := fetch(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !errors.Is(err, market.ErrUpstreamUnavailable) {
			return nil, err
		}
		g.log.Warn("upstream fetch failed", "what", what, "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

// backoff doubles the base delay per retry, capped at 30s.
func backoff(base time.Duration, retry int) time.Duration {
	if retry > 20 {
		retry = 20
	}
	d := base * time.Duration(1<<retry)
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (g *Gateway) historyTTL(rng market.Range) time.Duration {
	// a range fully in the past is immutable and can live much longer
	if rng.End.Before(g.now()) {
		return g.cfg.HistoryClosedTTL
	}
	return g.cfg.HistoryLiveTTL
}

func historyKey(symbol string, rng market.Range, res market.Resolution) string {
	return fmt.Sprintf("history:%s:%d:%d:%s", symbol, rng.Start.Unix(), rng.End.Unix(), res)
}

func normalizeSymbol(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: symbol is required", market.ErrInvalidRequest)
	}
	if !symbolPattern.MatchString(s) {
		return "", fmt.Errorf("%w: malformed symbol %q", market.ErrInvalidRequest, s)
	}
	return strings.ToUpper(s), nil
}
