package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"
)

// CoinGecko API base URL
const OHLCAPIBaseURL = "https://api.coingecko.com/api/v3"

const (
	// Total request attempts when the API keeps rate-limiting
	maxFetchAttempts = 3
	// Backoff when a 429 response has no Retry-After header
	defaultRetryAfter = 60 * time.Second
)

// Candle is one day's OHLC bucket. Date is truncated to a UTC calendar day.
type Candle struct {
	Date  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// OHLCClient fetches daily candles from the CoinGecko API
type OHLCClient struct {
	BaseURL    string
	apiKey     string
	httpClient *http.Client
	sleep      func(time.Duration)
}

// NewOHLCClient creates an OHLC client with the given API key
func NewOHLCClient(apiKey string) *OHLCClient {
	return &OHLCClient{
		BaseURL: OHLCAPIBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		sleep: time.Sleep,
	}
}

// FetchOHLC fetches daily candles for a symbol over a lookback window of
// "30" or "365" days. Symbols without a curated CoinGecko id are rejected
// before any network call. Rate-limit responses are retried after the
// server-suggested wait; any other failure aborts immediately.
func (c *OHLCClient) FetchOHLC(ctx context.Context, symbol, days string) ([]Candle, error) {
	coinID, ok := CoinIDs[symbol]
	if !ok {
		return nil, fmt.Errorf("no CoinGecko id mapping for symbol %s", symbol)
	}

	url := fmt.Sprintf("%s/coins/%s/ohlc?vs_currency=usd&days=%s", c.BaseURL, coinID, days)

	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("x-cg-api-key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch OHLC for %s: %w", symbol, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfter(resp.Header)
			resp.Body.Close()
			if attempt == maxFetchAttempts {
				break
			}
			log.Printf("Rate limit exceeded for %s, waiting %s before retry", symbol, wait)
			c.sleep(wait)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("OHLC API error for %s (status %d)", symbol, resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		return parseCandles(body)
	}

	return nil, fmt.Errorf("rate limit retries exhausted for %s after %d attempts", symbol, maxFetchAttempts)
}

// parseCandles decodes the CoinGecko payload, a JSON array of
// [timestamp-ms, open, high, low, close] rows.
func parseCandles(body []byte) ([]Candle, error) {
	var rows [][]float64
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse OHLC response: %w", err)
	}

	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			return nil, fmt.Errorf("malformed OHLC row: %v", row)
		}
		ts := time.UnixMilli(int64(row[0])).UTC()
		candles = append(candles, Candle{
			Date:  time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
			Open:  row[1],
			High:  row[2],
			Low:   row[3],
			Close: row[4],
		})
	}
	return candles, nil
}

// retryAfter reads the server-suggested wait from a 429 response
func retryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryAfter
}
