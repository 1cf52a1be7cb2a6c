package ports

import "context"

// QuoteProvider supplies current market prices for tracked symbols.
// Implementations wrap every failure mode (network, unknown symbol, empty
// payload) with ErrPriceUnavailable so callers can treat them uniformly.
type QuoteProvider interface {
	// LatestPrice returns the most recent traded price for the symbol.
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}
