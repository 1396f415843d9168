package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

var discard = slog.New(slog.DiscardHandler)

type fakeMarkets struct {
	domain.MarketStore

	byID   map[string]domain.Market
	active []domain.Market
}

func (f *fakeMarkets) GetByID(ctx context.Context, id string) (domain.Market, error) {
	m, ok := f.byID[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeMarkets) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return f.active, nil
}

func (f *fakeMarkets) Count(ctx context.Context) (int64, error) {
	return int64(len(f.byID)), nil
}

type fakeSnapshots struct {
	domain.SnapshotStore

	byMarket map[string][]domain.Snapshot
}

func (f *fakeSnapshots) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Snapshot, error) {
	return f.byMarket[marketID], nil
}

func (f *fakeSnapshots) Count(ctx context.Context) (int64, error) {
	var n int64
	for _, snaps := range f.byMarket {
		n += int64(len(snaps))
	}
	return n, nil
}

type fakeResults struct {
	domain.ResolutionStore

	swans   []domain.ResolutionAnalysis
	buckets []domain.BucketStats
}

func (f *fakeResults) ListBlackSwans(ctx context.Context, limit int) ([]domain.ResolutionAnalysis, error) {
	return f.swans, nil
}

func (f *fakeResults) BucketStats(ctx context.Context) ([]domain.BucketStats, error) {
	return f.buckets, nil
}

func marketMux(h *MarketHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets", h.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", h.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/history", h.GetHistory)
	return mux
}

func TestGetMarket(t *testing.T) {
	markets := &fakeMarkets{byID: map[string]domain.Market{
		"m1": {ID: "m1", Question: "Will it rain?", Status: domain.MarketStatusActive},
	}}
	mux := marketMux(NewMarketHandler(markets, &fakeSnapshots{}, discard))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/m1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Market
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Will it rain?", got.Question)
}

func TestGetMarketNotFound(t *testing.T) {
	mux := marketMux(NewMarketHandler(&fakeMarkets{}, &fakeSnapshots{}, discard))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMarkets(t *testing.T) {
	markets := &fakeMarkets{
		byID:   map[string]domain.Market{"m1": {ID: "m1"}, "m2": {ID: "m2"}},
		active: []domain.Market{{ID: "m1"}, {ID: "m2"}},
	}
	mux := marketMux(NewMarketHandler(markets, &fakeSnapshots{}, discard))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets?limit=10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listMarketsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Markets, 2)
	assert.EqualValues(t, 2, resp.Total)
	assert.Equal(t, 10, resp.Limit)
}

func TestGetHistory(t *testing.T) {
	snaps := &fakeSnapshots{byMarket: map[string][]domain.Snapshot{
		"m1": {
			{MarketID: "m1", Timestamp: time.Now().UTC(), Probability: 0.55},
			{MarketID: "m1", Timestamp: time.Now().UTC(), Probability: 0.60},
		},
	}}
	mux := marketMux(NewMarketHandler(&fakeMarkets{}, snaps, discard))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/m1/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		MarketID  string            `json:"market_id"`
		Snapshots []domain.Snapshot `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "m1", resp.MarketID)
	assert.Len(t, resp.Snapshots, 2)
}

func TestListBlackSwans(t *testing.T) {
	results := &fakeResults{swans: []domain.ResolutionAnalysis{
		{MarketID: "m1", IsBlackSwan: true, ProbabilityBucket: "70-80%"},
	}}
	h := NewSwanHandler(nil, results, domain.WindowSpec{}, discard)

	rec := httptest.NewRecorder()
	h.ListBlackSwans(rec, httptest.NewRequest(http.MethodGet, "/api/blackswans", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		BlackSwans []domain.ResolutionAnalysis `json:"black_swans"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.BlackSwans, 1)
	assert.True(t, resp.BlackSwans[0].IsBlackSwan)
}

func TestStatsOverview(t *testing.T) {
	markets := &fakeMarkets{byID: map[string]domain.Market{"m1": {ID: "m1"}}}
	snaps := &fakeSnapshots{byMarket: map[string][]domain.Snapshot{"m1": {{MarketID: "m1"}}}}
	results := &fakeResults{buckets: []domain.BucketStats{
		{Bucket: "90-95%", TotalResolved: 20, Correct: 18, Incorrect: 2, AccuracyRate: 90},
	}}

	h := NewStatsHandler(markets, snaps, results, discard)

	rec := httptest.NewRecorder()
	h.Overview(rec, httptest.NewRequest(http.MethodGet, "/api/stats/overview", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp overviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp.Markets)
	assert.EqualValues(t, 1, resp.Snapshots)
	require.Len(t, resp.Buckets, 1)
	assert.Equal(t, 90.0, resp.Buckets[0].AccuracyRate)
}

type fakeBlobs struct {
	objects map[string]string
}

func (f *fakeBlobs) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	body, ok := f.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeBlobs) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func archiveMux(h *ArchiveHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/archive", h.List)
	mux.HandleFunc("GET /api/archive/{key...}", h.Get)
	return mux
}

func TestArchiveListAndGet(t *testing.T) {
	line := `{"market_id":"m1","ts":1756609200,"p":0.55}` + "\n"
	blobs := &fakeBlobs{objects: map[string]string{
		"snapshots/20260831T030000/part-0000.jsonl": line,
	}}
	mux := archiveMux(NewArchiveHandler(blobs, discard))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archive", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Keys []string `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Keys, 1)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archive/"+resp.Keys[0], nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Equal(t, line, rec.Body.String())
}

func TestArchiveGetMissingObject(t *testing.T) {
	mux := archiveMux(NewArchiveHandler(&fakeBlobs{}, discard))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archive/snapshots/nope.jsonl", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArchiveRejectsForeignPrefix(t *testing.T) {
	mux := archiveMux(NewArchiveHandler(&fakeBlobs{}, discard))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archive?prefix=secrets/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archive/secrets/key.jsonl", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanSpecOverrides(t *testing.T) {
	defaults := domain.WindowSpec{
		OffsetsDays:     []int{14, 7, 3},
		EarlyThreshold:  0.70,
		FinalThreshold:  0.40,
		MinVolume:       100_000,
		MaxLookbackDays: 60,
	}
	h := NewSwanHandler(nil, &fakeResults{}, defaults, discard)

	body := `{"early_threshold": 0.8, "offsets_days": [10, 5]}`
	req := httptest.NewRequest(http.MethodPost, "/api/scan", strings.NewReader(body))

	spec, err := h.specFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 5}, spec.OffsetsDays)
	assert.Equal(t, 0.8, spec.EarlyThreshold)
	assert.Equal(t, 0.40, spec.FinalThreshold)        // untouched
	assert.Equal(t, 100_000.0, spec.MinVolume)        // untouched
	assert.Equal(t, 60, spec.MaxLookbackDays)         // untouched

	_, err = h.specFromRequest(httptest.NewRequest(http.MethodPost, "/api/scan", strings.NewReader("{not json")))
	assert.Error(t, err)
}
