package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TokenSummary is the normalized shape for one token in a list snapshot.
// Prices stay decimal end to end so upstream digits survive verbatim.
type TokenSummary struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change24h"`
	Volume24h decimal.Decimal `json:"volume24h"`
}

// PriceHistoryPoint is one OHLCV candle at second precision.
type PriceHistoryPoint struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// Range is a half-open-in-spirit time window; valid iff Start < End.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r Range) Valid() bool { return r.Start.Before(r.End) }

// Contains reports whether t falls within [Start, End].
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Resolution is the candle step for a history request.
type Resolution string

const (
	ResolutionMinute Resolution = "minute"
	ResolutionHour   Resolution = "hour"
	ResolutionDay    Resolution = "day"
)

func (r Resolution) Valid() bool {
	switch r {
	case ResolutionMinute, ResolutionHour, ResolutionDay:
		return true
	}
	return false
}

// Step is the candle duration for the resolution.
func (r Resolution) Step() time.Duration {
	switch r {
	case ResolutionMinute:
		return time.Minute
	case ResolutionHour:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// ParseResolution maps a request parameter onto the enumerated set.
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: resolution must be one of minute, hour, day; got %q", ErrInvalidRequest, s)
	}
	return r, nil
}

// PriceHistorySeries is a normalized candle series. Points are ascending by
// Time with no duplicates and all inside Range; an empty Points slice means
// the upstream had no data for the window, which is not an error.
type PriceHistorySeries struct {
	Symbol     string              `json:"symbol"`
	Range      Range               `json:"range"`
	Resolution Resolution          `json:"resolution"`
	Points     []PriceHistoryPoint `json:"points"`
}
