package dexswap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketgateway/internal/httpx"
	"marketgateway/internal/market"
)

// Config controls the dexswap client behavior.
type Config struct {
	Name    string
	BaseURL string
	Headers map[string]string // optional extra headers
	Timeout time.Duration     // per-call bound; defaults to 5s
}

// Client fetches the token snapshot from the DEX token/price API and
// normalizes it. No caching, no retries; both live in the gateway.
type Client struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Client {
	if cfg.Name == "" {
		cfg.Name = "dexswap"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{cfg: cfg, client: hc}
}

func (c *Client) Name() string { return c.cfg.Name }

// FetchTokenList returns the full snapshot of tokens the provider currently
// reports. The returned slice entirely replaces any prior snapshot.
func (c *Client) FetchTokenList(ctx context.Context) ([]market.TokenSummary, error) {
	if c.cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: dexswap: missing base URL", market.ErrUpstreamUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/tokens"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: dexswap: %v", market.ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: dexswap: %v", market.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// drain a little for the log line, never forwarded to callers
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, fmt.Errorf("%w: dexswap: GET %s -> %d: %s", market.ErrUpstreamUnavailable, u, resp.StatusCode, string(b))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var api apiResponse
	if err := dec.Decode(&api); err != nil {
		return nil, fmt.Errorf("%w: dexswap: decode: %v", market.ErrUpstreamMalformed, err)
	}
	return normalize(api)
}

// Response model for the DEX token list endpoint. Field names stay inside
// this package.
type apiResponse struct {
	Body []apiToken `json:"body"`
}

type apiToken struct {
	Symbol         string      `json:"symbol"`
	Name           string      `json:"name"`
	Price          json.Number `json:"price"`
	PriceChange24h json.Number `json:"price_change_24h"`
	Volume24h      json.Number `json:"volume_24h"`
}

func normalize(api apiResponse) ([]market.TokenSummary, error) {
	out := make([]market.TokenSummary, 0, len(api.Body))
	seen := make(map[string]struct{}, len(api.Body))
	for _, t := range api.Body {
		sym := strings.ToUpper(strings.TrimSpace(t.Symbol))
		if sym == "" {
			return nil, fmt.Errorf("%w: dexswap: token with empty symbol", market.ErrUpstreamMalformed)
		}
		// one row per symbol within a snapshot; first occurrence wins
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		price, err := parseDecimal(t.Price)
		if err != nil {
			return nil, fmt.Errorf("%w: dexswap: price for %s: %v", market.ErrUpstreamMalformed, sym, err)
		}
		change, err := parseDecimal(t.PriceChange24h)
		if err != nil {
			return nil, fmt.Errorf("%w: dexswap: change for %s: %v", market.ErrUpstreamMalformed, sym, err)
		}
		volume, err := parseDecimal(t.Volume24h)
		if err != nil {
			return nil, fmt.Errorf("%w: dexswap: volume for %s: %v", market.ErrUpstreamMalformed, sym, err)
		}
		out = append(out, market.TokenSummary{
			Symbol:    sym,
			Name:      strings.TrimSpace(t.Name),
			Price:     price,
			Change24h: change,
			Volume24h: volume,
		})
	}
	return out, nil
}

func parseDecimal(n json.Number) (decimal.Decimal, error) {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
