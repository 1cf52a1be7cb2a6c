// Package yahooquotes fetches current prices from the Yahoo Finance chart
// API. No API key is needed; public endpoints only require a browser-like
// User-Agent header.
package yahooquotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"signalTracker/internal/ports"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Client implements the ports.QuoteProvider interface using Yahoo Finance.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     ports.Logger
}

// Config holds configuration for the Yahoo quote client.
type Config struct {
	Timeout  time.Duration // Per-request timeout (default 30s)
	ProxyURL string        // Optional HTTP proxy
	BaseURL  string        // Override for testing
	Logger   ports.Logger
}

// New creates a new Yahoo Finance quote client.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Yahoo quote client")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{}
	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL '%s': %w", cfg.ProxyURL, err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		baseURL:    baseURL,
		logger:     cfg.Logger,
	}, nil
}

// chartResponse is the subset of the Yahoo chart payload we read.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []interface{} `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// LatestPrice returns the most recent close for the symbol, falling back to
// the meta quote when the close series has no usable bar. A two day range
// covers weekends and market holidays.
func (c *Client) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=2d", c.baseURL, url.PathEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, c.fail(ctx, symbol, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, c.fail(ctx, symbol, fmt.Errorf("fetch chart: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, c.fail(ctx, symbol, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return 0, c.fail(ctx, symbol, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return 0, c.fail(ctx, symbol, fmt.Errorf("decode chart: %w", err))
	}
	if chart.Chart.Error != nil {
		return 0, c.fail(ctx, symbol, fmt.Errorf("api error %s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description))
	}
	if len(chart.Chart.Result) == 0 {
		return 0, c.fail(ctx, symbol, fmt.Errorf("no chart data returned"))
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) > 0 {
		closes := result.Indicators.Quote[0].Close
		// Walk backwards past null bars (holidays, not-yet-settled sessions).
		for i := len(closes) - 1; i >= 0; i-- {
			if price := toFloat(closes[i]); price > 0 {
				return price, nil
			}
		}
	}
	if result.Meta.RegularMarketPrice > 0 {
		return result.Meta.RegularMarketPrice, nil
	}
	return 0, c.fail(ctx, symbol, fmt.Errorf("no usable close price"))
}

func (c *Client) fail(ctx context.Context, symbol string, cause error) error {
	c.logger.Warn(ctx, "Yahoo quote lookup failed", map[string]interface{}{"symbol": symbol, "error": cause.Error()})
	return fmt.Errorf("yahoo quote for %s: %w: %w", symbol, ports.ErrPriceUnavailable, cause)
}

// toFloat converts Yahoo's mixed-type quote values (null or number) to a
// float, with 0 standing in for null.
func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
