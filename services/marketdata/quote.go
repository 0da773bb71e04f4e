package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// CoinMarketCap quote endpoint
const QuoteAPIURL = "https://pro-api.coinmarketcap.com/v2/cryptocurrency/quotes/latest"

// QuoteClient fetches latest spot prices from the CoinMarketCap API
type QuoteClient struct {
	BaseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewQuoteClient creates a quote client with the given API key
func NewQuoteClient(apiKey string) *QuoteClient {
	return &QuoteClient{
		BaseURL: QuoteAPIURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// quoteResponse mirrors the nested CoinMarketCap payload: data maps each
// requested symbol to a list of matching coins, each carrying per-currency
// quotes.
type quoteResponse struct {
	Data map[string][]struct {
		Quote map[string]struct {
			Price float64 `json:"price"`
		} `json:"quote"`
	} `json:"data"`
}

// LatestQuote fetches the current USD price for a symbol
func (c *QuoteClient) LatestQuote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s?symbol=%s", c.BaseURL, symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("quote API error for %s (status %d)", symbol, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read response: %w", err)
	}

	var response quoteResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse quote response: %w", err)
	}

	coins, ok := response.Data[symbol]
	if !ok || len(coins) == 0 {
		return decimal.Zero, fmt.Errorf("no quote data for symbol %s", symbol)
	}

	usd, ok := coins[0].Quote["USD"]
	if !ok {
		return decimal.Zero, fmt.Errorf("no USD quote for symbol %s", symbol)
	}

	return decimal.NewFromFloat(usd.Price), nil
}
