package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

// sampleTTL bounds growth of the sample cache. Historical prices never
// change, so the TTL is generous; it exists only to reclaim space for
// markets nobody scans anymore.
const sampleTTL = 7 * 24 * time.Hour

// SampleCache implements domain.SampleCache, sharing fetched point samples
// across processes so repeated scans of overlapping candidate sets skip the
// upstream API entirely.
type SampleCache struct {
	rdb *redis.Client
}

// NewSampleCache creates a SampleCache backed by the given Client.
func NewSampleCache(c *Client) *SampleCache {
	return &SampleCache{rdb: c.Underlying()}
}

// cachedSample is the stored wire form of a sample.
type cachedSample struct {
	MarketID    string  `json:"market_id"`
	Timestamp   int64   `json:"ts"`
	Probability float64 `json:"p"`
	Source      string  `json:"source"`
}

func sampleKey(marketID string, target time.Time) string {
	return "sample:" + marketID + ":" + strconv.FormatInt(target.UTC().Unix(), 10)
}

// Set stores a sample under its (market, target instant) key.
func (sc *SampleCache) Set(ctx context.Context, sample domain.Sample, target time.Time) error {
	data, err := json.Marshal(cachedSample{
		MarketID:    sample.MarketID,
		Timestamp:   sample.Timestamp.UTC().Unix(),
		Probability: sample.Probability,
		Source:      string(sample.Source),
	})
	if err != nil {
		return fmt.Errorf("redis: marshal sample: %w", err)
	}

	if err := sc.rdb.Set(ctx, sampleKey(sample.MarketID, target), data, sampleTTL).Err(); err != nil {
		return fmt.Errorf("redis: set sample %s: %w", sample.MarketID, err)
	}
	return nil
}

// Get returns the cached sample for (marketID, target), or
// domain.ErrNotFound on a miss.
func (sc *SampleCache) Get(ctx context.Context, marketID string, target time.Time) (domain.Sample, error) {
	data, err := sc.rdb.Get(ctx, sampleKey(marketID, target)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Sample{}, domain.ErrNotFound
		}
		return domain.Sample{}, fmt.Errorf("redis: get sample %s: %w", marketID, err)
	}

	var cs cachedSample
	if err := json.Unmarshal(data, &cs); err != nil {
		return domain.Sample{}, fmt.Errorf("redis: unmarshal sample %s: %w", marketID, err)
	}

	return domain.Sample{
		MarketID:    cs.MarketID,
		Timestamp:   time.Unix(cs.Timestamp, 0).UTC(),
		Probability: cs.Probability,
		Source:      domain.SampleSource(cs.Source),
	}, nil
}

// Compile-time interface check.
var _ domain.SampleCache = (*SampleCache)(nil)
