package ports

import "errors"

// Standard application-level errors.
// Adapters and the tracking store wrap underlying failures with these
// standard errors so callers can branch with errors.Is.
var (
	// General Errors
	ErrInvalidInput       = errors.New("malformed input or missing required fields")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Trade Lifecycle Errors
	ErrInvalidSignal  = errors.New("signal violates price level constraints")
	ErrDuplicateTrade = errors.New("an active trade for this symbol already exists")
	ErrAlreadyClosed  = errors.New("trade is already closed")

	// Quote Provider Errors
	ErrPriceUnavailable = errors.New("no usable price for symbol")
	ErrConnectionFailed = errors.New("failed to connect to the quote source")
	ErrRateLimited      = errors.New("API rate limit exceeded")

	// Storage Errors
	ErrStorageFailed = errors.New("trade table read or write failed")
)
