package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery, metadata, and resolution state.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// gammaPageSize is the page size used for paginated catalog listings.
const gammaPageSize = 100

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetMarkets returns a paginated list of markets.
func (g *GammaClient) GetMarkets(ctx context.Context, limit, offset int) ([]domain.Market, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	return g.listMarkets(ctx, params)
}

// GetMarket returns a single market by its ID.
func (g *GammaClient) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	path := fmt.Sprintf("/markets/%s", url.PathEscape(id))

	body, err := g.doGet(ctx, path)
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market %s: %w", id, err)
	}

	var apiMarket APIMarket
	if err := json.Unmarshal(body, &apiMarket); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: decode market: %w", err)
	}

	return apiMarket.ToDomainMarket(), nil
}

// Quote pairs a market with its current yes-side price.
type Quote struct {
	Market   domain.Market
	YesPrice float64
}

// ListActiveMarkets returns open markets ordered by volume descending,
// filtered to those at or above minVolume. At most limit markets are
// returned.
func (g *GammaClient) ListActiveMarkets(ctx context.Context, minVolume float64, limit int) ([]domain.Market, error) {
	quotes, err := g.ListActiveQuotes(ctx, minVolume, limit)
	if err != nil {
		return nil, err
	}
	markets := make([]domain.Market, 0, len(quotes))
	for _, q := range quotes {
		markets = append(markets, q.Market)
	}
	return markets, nil
}

// ListActiveQuotes is ListActiveMarkets with the current yes price attached
// to each market. Markets without a parseable price are skipped.
func (g *GammaClient) ListActiveQuotes(ctx context.Context, minVolume float64, limit int) ([]Quote, error) {
	if limit <= 0 {
		limit = gammaPageSize
	}

	var out []Quote
	for offset := 0; len(out) < limit; offset += gammaPageSize {
		params := url.Values{}
		params.Set("active", "true")
		params.Set("closed", "false")
		params.Set("order", "volumeNum")
		params.Set("ascending", "false")
		params.Set("limit", strconv.Itoa(gammaPageSize))
		params.Set("offset", strconv.Itoa(offset))

		page, err := g.listRaw(ctx, params)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		lowVolumeTail := false
		for i := range page {
			m := page[i].ToDomainMarket()
			if m.Volume < minVolume {
				lowVolumeTail = true
				continue
			}
			price, ok := page[i].YesPrice()
			if !ok {
				continue
			}
			out = append(out, Quote{Market: m, YesPrice: price})
			if len(out) == limit {
				break
			}
		}
		// Pages are volume-ordered, so a market below the floor means
		// every later page is below it too.
		if lowVolumeTail {
			break
		}
	}
	return out, nil
}

// ListResolvedMarkets returns markets that closed at or after since, filtered
// to those with an inferable winner and volume at or above minVolume. At most
// limit markets are returned.
func (g *GammaClient) ListResolvedMarkets(ctx context.Context, since time.Time, minVolume float64, limit int) ([]domain.Market, error) {
	if limit <= 0 {
		limit = gammaPageSize
	}

	var out []domain.Market
	for offset := 0; len(out) < limit; offset += gammaPageSize {
		params := url.Values{}
		params.Set("closed", "true")
		params.Set("order", "endDate")
		params.Set("ascending", "false")
		params.Set("end_date_min", since.UTC().Format(time.RFC3339))
		params.Set("limit", strconv.Itoa(gammaPageSize))
		params.Set("offset", strconv.Itoa(offset))

		page, err := g.listMarkets(ctx, params)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			if !m.Resolved() || m.Volume < minVolume {
				continue
			}
			if m.EndDate != nil && m.EndDate.Before(since) {
				continue
			}
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
		if len(page) < gammaPageSize {
			break
		}
	}
	return out, nil
}

// listMarkets fetches /markets with the given query and converts the result.
func (g *GammaClient) listMarkets(ctx context.Context, params url.Values) ([]domain.Market, error) {
	apiMarkets, err := g.listRaw(ctx, params)
	if err != nil {
		return nil, err
	}

	markets := make([]domain.Market, 0, len(apiMarkets))
	for i := range apiMarkets {
		markets = append(markets, apiMarkets[i].ToDomainMarket())
	}

	return markets, nil
}

// listRaw fetches /markets with the given query as raw API DTOs.
func (g *GammaClient) listRaw(ctx context.Context, params url.Values) ([]APIMarket, error) {
	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: list markets: %w", err)
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}

	return apiMarkets, nil
}

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	return doGet(ctx, g.httpClient, g.baseURL+path)
}
