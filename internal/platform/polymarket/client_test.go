package polymarket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

func timeMustParse(t *testing.T, v string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, v)
	require.NoError(t, err)
	return ts
}

func TestClobGetPriceHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prices-history", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "tok-1", q.Get("market"))
		assert.Equal(t, "1000", q.Get("startTs"))
		assert.Equal(t, "2000", q.Get("endTs"))
		assert.Equal(t, "60", q.Get("fidelity"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"history":[{"t":1200,"p":0.71},{"t":1800,"p":0.69}]}`))
	}))
	defer srv.Close()

	c := NewClobClient(srv.URL)
	points, err := c.GetPriceHistory(context.Background(), "tok-1", 1000, 2000, 60)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, int64(1200), points[0].Timestamp)
	assert.Equal(t, 0.71, points[0].Price)
}

func TestClobStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusBadGateway, domain.ErrTransientUpstream},
		{http.StatusServiceUnavailable, domain.ErrTransientUpstream},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		c := NewClobClient(srv.URL)
		_, err := c.GetPriceHistory(context.Background(), "tok", 0, 1, 60)
		assert.True(t, errors.Is(err, tt.want), "status %d should map to %v, got %v", tt.status, tt.want, err)
		srv.Close()
	}
}

func TestGammaListResolvedMarketsFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/markets", r.URL.Path)
		if r.URL.Query().Get("offset") != "0" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[
			{"id":"a","question":"A?","closed":true,"outcomePrices":"[\"0.99\",\"0.01\"]","volumeNum":500000,"endDate":"2026-08-01T00:00:00Z"},
			{"id":"b","question":"B?","closed":true,"outcomePrices":"[\"0.50\",\"0.50\"]","volumeNum":900000,"endDate":"2026-08-02T00:00:00Z"},
			{"id":"c","question":"C?","closed":true,"outcomePrices":"[\"0.01\",\"0.99\"]","volumeNum":1000,"endDate":"2026-08-03T00:00:00Z"}
		]`))
	}))
	defer srv.Close()

	g := NewGammaClient(srv.URL)
	markets, err := g.ListResolvedMarkets(context.Background(), timeMustParse(t, "2026-07-01T00:00:00Z"), 100_000, 50)
	require.NoError(t, err)

	// "b" has no inferable winner, "c" is below the volume floor.
	require.Len(t, markets, 1)
	assert.Equal(t, "a", markets[0].ID)
	assert.Equal(t, domain.OutcomeYes, markets[0].Winner)
}

func TestGammaGetMarketNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	g := NewGammaClient(srv.URL)
	_, err := g.GetMarket(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
