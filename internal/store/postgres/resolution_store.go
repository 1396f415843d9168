package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

// ResolutionStore implements domain.ResolutionStore using PostgreSQL.
type ResolutionStore struct {
	pool *pgxpool.Pool
}

// NewResolutionStore creates a new ResolutionStore backed by the given pool.
func NewResolutionStore(pool *pgxpool.Pool) *ResolutionStore {
	return &ResolutionStore{pool: pool}
}

// Insert stores a resolution analysis row. Analysis is computed once per
// market; re-inserts update in place.
func (s *ResolutionStore) Insert(ctx context.Context, a domain.ResolutionAnalysis) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO resolution_analysis (
			market_id, final_probability, probability_bucket,
			resolved_at, outcome, predicted_correctly, is_black_swan
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (market_id) DO UPDATE SET
			final_probability   = EXCLUDED.final_probability,
			probability_bucket  = EXCLUDED.probability_bucket,
			resolved_at         = EXCLUDED.resolved_at,
			outcome             = EXCLUDED.outcome,
			predicted_correctly = EXCLUDED.predicted_correctly,
			is_black_swan       = EXCLUDED.is_black_swan`,
		a.MarketID, a.FinalProbability, a.ProbabilityBucket,
		a.ResolvedAt, string(a.Outcome), a.PredictedCorrectly, a.IsBlackSwan)
	if err != nil {
		return fmt.Errorf("postgres: insert resolution analysis for %s: %w", a.MarketID, err)
	}
	return nil
}

const resolutionCols = `market_id, final_probability, probability_bucket,
	resolved_at, outcome, predicted_correctly, is_black_swan`

func scanResolution(row pgx.Row) (domain.ResolutionAnalysis, error) {
	var a domain.ResolutionAnalysis
	var outcome string
	err := row.Scan(&a.MarketID, &a.FinalProbability, &a.ProbabilityBucket,
		&a.ResolvedAt, &outcome, &a.PredictedCorrectly, &a.IsBlackSwan)
	if err != nil {
		return domain.ResolutionAnalysis{}, err
	}
	a.Outcome = domain.Outcome(outcome)
	return a, nil
}

// GetByMarket retrieves the analysis row for a market.
func (s *ResolutionStore) GetByMarket(ctx context.Context, marketID string) (domain.ResolutionAnalysis, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+resolutionCols+` FROM resolution_analysis WHERE market_id = $1`, marketID)
	a, err := scanResolution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ResolutionAnalysis{}, domain.ErrNotFound
		}
		return domain.ResolutionAnalysis{}, fmt.Errorf("postgres: get resolution analysis %s: %w", marketID, err)
	}
	return a, nil
}

// ListBlackSwans returns black-swan resolutions, most recent first.
func (s *ResolutionStore) ListBlackSwans(ctx context.Context, limit int) ([]domain.ResolutionAnalysis, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+resolutionCols+`
		FROM resolution_analysis
		WHERE is_black_swan
		ORDER BY resolved_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list black swans: %w", err)
	}
	defer rows.Close()

	var out []domain.ResolutionAnalysis
	for rows.Next() {
		a, err := scanResolution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan black swan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: black swan rows: %w", err)
	}
	return out, nil
}

// BucketStats aggregates prediction accuracy per probability bucket.
func (s *ResolutionStore) BucketStats(ctx context.Context) ([]domain.BucketStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			probability_bucket,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE predicted_correctly) AS correct,
			COUNT(*) FILTER (WHERE NOT predicted_correctly) AS incorrect,
			COUNT(*) FILTER (WHERE is_black_swan) AS black_swans
		FROM resolution_analysis
		GROUP BY probability_bucket
		ORDER BY probability_bucket`)
	if err != nil {
		return nil, fmt.Errorf("postgres: bucket stats: %w", err)
	}
	defer rows.Close()

	var out []domain.BucketStats
	for rows.Next() {
		var b domain.BucketStats
		if err := rows.Scan(&b.Bucket, &b.TotalResolved, &b.Correct, &b.Incorrect, &b.BlackSwanCount); err != nil {
			return nil, fmt.Errorf("postgres: scan bucket stats: %w", err)
		}
		if b.TotalResolved > 0 {
			b.AccuracyRate = float64(b.Correct) / float64(b.TotalResolved) * 100
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: bucket stats rows: %w", err)
	}
	return out, nil
}
