package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crat/backend/internal/config"
)

// Client fetches batched USD conversion rates from a CryptoCompare
// style price feed. One request covers all requested symbols; the
// response maps each symbol to units of that currency per 1 USD.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a price feed client with a bounded request timeout
func NewClient(cfg *config.PriceFeedConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		},
		logger: logger,
	}
}

// FetchRates requests USD rates for the given feed symbols in a single
// call. A symbol absent from the response is simply absent from the
// returned map; a non-success response fails the whole fetch.
func (c *Client) FetchRates(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if len(symbols) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	params := url.Values{}
	params.Set("fsym", "USD")
	params.Set("tsyms", strings.Join(symbols, ","))
	endpoint := fmt.Sprintf("%s/data/price?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build price feed request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price feed returned status %d", resp.StatusCode)
	}

	var raw map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode price feed response: %w", err)
	}

	rates := make(map[string]decimal.Decimal, len(raw))
	for symbol, value := range raw {
		rate, err := decimal.NewFromString(value.String())
		if err != nil {
			c.logger.Warn("Skipping unparseable rate",
				zap.String("symbol", symbol),
				zap.String("value", value.String()))
			continue
		}
		rates[symbol] = rate
	}

	return rates, nil
}
