package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"marketgateway/internal/market"
)

type tokensResponse struct {
	Tokens    []market.TokenSummary `json:"tokens"`
	Stale     bool                  `json:"stale"`
	FetchedAt time.Time             `json:"fetched_at"`
}

type historyResponse struct {
	Symbol     string                     `json:"symbol"`
	Range      market.Range               `json:"range"`
	Resolution market.Resolution          `json:"resolution"`
	Points     []market.PriceHistoryPoint `json:"points"`
	Stale      bool                       `json:"stale"`
	FetchedAt  time.Time                  `json:"fetched_at"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GetTokens handles GET /api/tokens.
func (h *Handler) GetTokens(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	res, err := h.gw.TokenList(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	tokens := res.Tokens
	if tokens == nil {
		tokens = []market.TokenSummary{}
	}
	c.JSON(http.StatusOK, tokensResponse{Tokens: tokens, Stale: res.Stale, FetchedAt: res.FetchedAt.UTC()})
}

// GetHistory handles GET /api/history?symbol=&start=&end=&resolution=.
func (h *Handler) GetHistory(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	symbol := c.Query("symbol")
	start, err := parseTimeParam(c.Query("start"), "start")
	if err != nil {
		h.writeError(c, err)
		return
	}
	end, err := parseTimeParam(c.Query("end"), "end")
	if err != nil {
		h.writeError(c, err)
		return
	}
	res, err := market.ParseResolution(c.DefaultQuery("resolution", string(market.ResolutionDay)))
	if err != nil {
		h.writeError(c, err)
		return
	}

	out, err := h.gw.PriceHistory(ctx, symbol, market.Range{Start: start, End: end}, res)
	if err != nil {
		h.writeError(c, err)
		return
	}
	points := out.Series.Points
	if points == nil {
		points = []market.PriceHistoryPoint{}
	}
	c.JSON(http.StatusOK, historyResponse{
		Symbol:     out.Series.Symbol,
		Range:      out.Series.Range,
		Resolution: out.Series.Resolution,
		Points:     points,
		Stale:      out.Stale,
		FetchedAt:  out.FetchedAt.UTC(),
	})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"service":   ServiceName,
		"version":   ServiceVersion,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// parseTimeParam accepts unix seconds, 2006-01-02 dates, or RFC 3339.
func parseTimeParam(s, name string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", market.ErrInvalidRequest, name)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s must be unix seconds, YYYY-MM-DD or RFC 3339", market.ErrInvalidRequest, name)
}

// writeError maps taxonomy errors onto wire codes. Upstream provider text
// never reaches the client; the generic unavailable message covers it.
func (h *Handler) writeError(c *gin.Context, err error) {
	status, code, message := http.StatusServiceUnavailable, "ServiceUnavailable", "market data is temporarily unavailable"
	switch {
	case errors.Is(err, market.ErrInvalidRequest):
		status, code, message = http.StatusBadRequest, "InvalidRequest", err.Error()
	case errors.Is(err, market.ErrSymbolNotFound):
		status, code, message = http.StatusNotFound, "SymbolNotFound", "unknown symbol"
	}

	requestID, _ := c.Get(RequestIDContextKey)
	h.log.Error("request failed",
		"request_id", requestID,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", status,
		"error", err.Error(),
	)
	c.JSON(status, errorBody{Code: code, Message: message})
}
