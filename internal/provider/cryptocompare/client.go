package cryptocompare

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketgateway/internal/market"
)

// HTTPDoer describes the HTTP client the history provider needs.
//
//go:generate mockgen -package=cryptocompare_test -destination=mock_http_doer_test.go -source=client.go HTTPDoer
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config controls the cryptocompare client behavior.
type Config struct {
	Name     string
	BaseURL  string
	APIKey   string // optional; sent as the Authorization header when set
	Currency string // quote currency, defaults to USD
	Timeout  time.Duration
	// MaxPoints caps the candle count requested per call.
	MaxPoints int
}

// Client fetches OHLCV history and normalizes it into market points. It
// performs exactly one request per call; retry policy lives in the gateway.
type Client struct {
	cfg  Config
	http HTTPDoer
}

func New(cfg Config, doer HTTPDoer) *Client {
	if cfg.Name == "" {
		cfg.Name = "cryptocompare"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://min-api.cryptocompare.com"
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = 2000
	}
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{cfg: cfg, http: doer}
}

func (c *Client) Name() string { return c.cfg.Name }

// FetchPriceHistory returns candles for symbol covering rng at the given
// resolution. Points outside rng are dropped; duplicate timestamps collapse
// keeping the last occurrence; the result is ascending by time.
func (c *Client) FetchPriceHistory(ctx context.Context, symbol string, rng market.Range, res market.Resolution) ([]market.PriceHistoryPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u, err := c.buildURL(symbol, rng, res)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: cryptocompare: %v", market.ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Apikey "+c.cfg.APIKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: cryptocompare: %v", market.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: cryptocompare: GET %s -> %d", market.ErrUpstreamUnavailable, u, resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var api apiResponse
	if err := dec.Decode(&api); err != nil {
		return nil, fmt.Errorf("%w: cryptocompare: decode: %v", market.ErrUpstreamMalformed, err)
	}
	if strings.EqualFold(api.Response, "Error") {
		if isUnknownSymbol(api.Message) {
			return nil, fmt.Errorf("%w: cryptocompare: %s", market.ErrSymbolNotFound, symbol)
		}
		// provider reported error text never escapes the client boundary
		return nil, fmt.Errorf("%w: cryptocompare: provider-reported error", market.ErrUpstreamUnavailable)
	}
	return normalize(api.Data.Data, rng)
}

func (c *Client) buildURL(symbol string, rng market.Range, res market.Resolution) (string, error) {
	var path string
	switch res {
	case market.ResolutionMinute:
		path = "/data/v2/histominute"
	case market.ResolutionHour:
		path = "/data/v2/histohour"
	case market.ResolutionDay:
		path = "/data/v2/histoday"
	default:
		return "", fmt.Errorf("%w: unknown resolution %q", market.ErrInvalidRequest, string(res))
	}
	limit := int(rng.End.Sub(rng.Start) / res.Step())
	if limit < 1 {
		limit = 1
	}
	if limit > c.cfg.MaxPoints {
		limit = c.cfg.MaxPoints
	}
	q := url.Values{}
	q.Set("fsym", symbol)
	q.Set("tsym", c.cfg.Currency)
	q.Set("toTs", strconv.FormatInt(rng.End.Unix(), 10))
	q.Set("limit", strconv.Itoa(limit))
	return strings.TrimRight(c.cfg.BaseURL, "/") + path + "?" + q.Encode(), nil
}

// Response model based on the min-api v2 histo endpoints.
type apiResponse struct {
	Response string  `json:"Response"`
	Message  string  `json:"Message"`
	Data     apiData `json:"Data"`
}

type apiData struct {
	Data []apiCandle `json:"Data"`
}

type apiCandle struct {
	Time       int64       `json:"time"`
	Open       json.Number `json:"open"`
	High       json.Number `json:"high"`
	Low        json.Number `json:"low"`
	Close      json.Number `json:"close"`
	VolumeFrom json.Number `json:"volumefrom"`
}

func isUnknownSymbol(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "market does not exist") ||
		strings.Contains(m, "no data for the symbol") ||
		strings.Contains(m, "invalid fsym")
}

func normalize(candles []apiCandle, rng market.Range) ([]market.PriceHistoryPoint, error) {
	byTime := make(map[int64]market.PriceHistoryPoint, len(candles))
	for _, cd := range candles {
		ts := time.Unix(cd.Time, 0).UTC()
		if !rng.Contains(ts) {
			continue
		}
		p, err := toPoint(ts, cd)
		if err != nil {
			return nil, err
		}
		byTime[cd.Time] = p
	}
	out := make([]market.PriceHistoryPoint, 0, len(byTime))
	for _, p := range byTime {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func toPoint(ts time.Time, cd apiCandle) (market.PriceHistoryPoint, error) {
	fields := []json.Number{cd.Open, cd.High, cd.Low, cd.Close, cd.VolumeFrom}
	parsed := make([]decimal.Decimal, len(fields))
	for i, n := range fields {
		d, err := parseDecimal(n)
		if err != nil {
			return market.PriceHistoryPoint{}, fmt.Errorf("%w: cryptocompare: candle at %d: %v", market.ErrUpstreamMalformed, ts.Unix(), err)
		}
		parsed[i] = d
	}
	return market.PriceHistoryPoint{
		Time:   ts,
		Open:   parsed[0],
		High:   parsed[1],
		Low:    parsed[2],
		Close:  parsed[3],
		Volume: parsed[4],
	}, nil
}

func parseDecimal(n json.Number) (decimal.Decimal, error) {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
