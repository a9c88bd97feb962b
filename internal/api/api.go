package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"marketgateway/internal/gateway"
	"marketgateway/internal/market"
)

const (
	ServiceName    = "market-gateway"
	ServiceVersion = "1.0.0"

	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"

	requestTimeout = 15 * time.Second
)

// Gateway is the surface the HTTP layer needs; satisfied by *gateway.Gateway.
type Gateway interface {
	TokenList(ctx context.Context) (gateway.TokenListResult, error)
	PriceHistory(ctx context.Context, symbol string, rng market.Range, res market.Resolution) (gateway.HistoryResult, error)
}

// Handler translates HTTP requests into gateway calls. Stateless beyond the
// gateway reference and a logger.
type Handler struct {
	gw  Gateway
	log *slog.Logger
}

func NewHandler(gw Gateway, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{gw: gw, log: logger}
}

// Routes builds the gin engine with the middleware chain and all endpoints.
func (h *Handler) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(h.log))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/api/tokens", h.GetTokens)
	router.GET("/api/history", h.GetHistory)
	router.GET("/health", h.HealthCheck)

	return router
}
