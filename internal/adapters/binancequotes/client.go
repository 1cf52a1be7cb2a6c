package binancequotes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"signalTracker/internal/ports"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"
)

// Client implements the ports.QuoteProvider interface with Binance spot
// tickers, for crypto symbols tracked alongside equities.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
}

// Config holds configuration specific to the Binance quote adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	BaseURL    string // overrides the production/testnet URLs, used by tests
	Logger     ports.Logger
}

// New creates a new Binance quote adapter. Ticker endpoints are public, so
// empty keys still work.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance quote client")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance quote client configured", map[string]interface{}{"baseURL": client.BaseURL})

	return &Client{spotClient: client, logger: cfg.Logger}, nil
}

// LatestPrice retrieves the most recent spot ticker price for a symbol.
func (c *Client) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	op := "LatestPrice"
	prices, err := c.spotClient.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op, symbol)
	}
	if len(prices) == 0 {
		err := fmt.Errorf("no ticker data returned for symbol %s", symbol)
		return 0, c.handleError(ctx, err, op, symbol)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", prices[0].Price, err)
		return 0, c.handleError(ctx, parseErr, op, symbol)
	}
	if price <= 0 {
		err := fmt.Errorf("non-positive price %v for symbol %s", price, symbol)
		return 0, c.handleError(ctx, err, op, symbol)
	}
	return price, nil
}

// handleError folds every failure mode into ports.ErrPriceUnavailable, the
// contract for quote providers, keeping the more specific cause in the wrap
// chain for callers that distinguish rate limits or timeouts.
func (c *Client) handleError(ctx context.Context, err error, operation, symbol string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "symbol": symbol, "originalError": err.Error()}

	var cause error
	var apiErr *common.APIError
	switch {
	case errors.As(err, &apiErr):
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message
		if apiErr.Code == -1003 { // Too many requests
			cause = ports.ErrRateLimited
		}
	case errors.Is(err, context.DeadlineExceeded):
		cause = ports.ErrTimeout
	case errors.Is(err, context.Canceled):
		cause = ports.ErrContextCanceled
	case strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"),
		strings.Contains(err.Error(), "no such host"):
		cause = ports.ErrConnectionFailed
	}

	c.logger.Warn(ctx, operation+" failed", fields)
	if cause != nil {
		return fmt.Errorf("binance quote for %s: %w: %w: %w", symbol, ports.ErrPriceUnavailable, cause, err)
	}
	return fmt.Errorf("binance quote for %s: %w: %w", symbol, ports.ErrPriceUnavailable, err)
}
