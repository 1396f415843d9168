package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

// ClobClient is the REST client for the public, read-only parts of the
// Polymarket CLOB (Central Limit Order Book) API. The analytics engine only
// consumes price history; no authentication is required.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
func NewClobClient(baseURL string) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetPriceHistory returns the trade price series for a token between startTs
// and endTs (unix seconds), at the given fidelity in minutes. Points are
// returned in chronological order; an empty slice means the API holds no
// data for the window.
func (c *ClobClient) GetPriceHistory(ctx context.Context, tokenID string, startTs, endTs int64, fidelityMinutes int) ([]PricePoint, error) {
	params := url.Values{}
	params.Set("market", tokenID)
	params.Set("startTs", strconv.FormatInt(startTs, 10))
	params.Set("endTs", strconv.FormatInt(endTs, 10))
	params.Set("fidelity", strconv.Itoa(fidelityMinutes))

	path := "/prices-history?" + params.Encode()

	body, err := doGet(ctx, c.httpClient, c.baseURL+path)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: price history for token %s: %w", tokenID, err)
	}

	var resp priceHistoryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode price history: %w", err)
	}

	return resp.History, nil
}

// GetMidpoint returns the current midpoint price for a token.
func (c *ClobClient) GetMidpoint(ctx context.Context, tokenID string) (float64, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	body, err := doGet(ctx, c.httpClient, c.baseURL+"/midpoint?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: midpoint for token %s: %w", tokenID, err)
	}

	var resp struct {
		Mid string `json:"mid"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode midpoint: %w", err)
	}
	mid, err := strconv.ParseFloat(resp.Mid, 64)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: parse midpoint %q: %w", resp.Mid, err)
	}
	return mid, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet builds, sends, and reads a GET request, returning the raw response
// body. Non-2xx statuses are mapped to domain errors via checkHTTPStatus.
func doGet(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		// Network-level failures (timeout, refused, reset) are retryable.
		return nil, fmt.Errorf("%w: http request: %v", domain.ErrTransientUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrTransientUpstream, err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrTransientUpstream, statusCode, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
