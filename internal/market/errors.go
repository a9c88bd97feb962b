package market

import "errors"

// Error taxonomy shared by the provider clients, the gateway and the API
// layer. Callers match with errors.Is; detail is attached with %w wrapping.
var (
	// ErrInvalidRequest marks caller errors. Never retried, never cached.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrSymbolNotFound means the upstream reports the symbol does not exist.
	// Cached as a short-lived negative result.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrUpstreamUnavailable covers network failures, timeouts and non-2xx
	// responses. Transient: eligible for retry and stale-on-error fallback.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamMalformed means the response arrived but could not be
	// normalized. Not retried; the next cache-expiry cycle may try again.
	ErrUpstreamMalformed = errors.New("upstream response malformed")

	// ErrServiceUnavailable is surfaced to the external caller when neither a
	// fresh fetch nor any cached value could produce data.
	ErrServiceUnavailable = errors.New("service unavailable")
)
