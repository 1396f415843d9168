package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

// MoveStore implements domain.MoveStore using PostgreSQL.
type MoveStore struct {
	pool *pgxpool.Pool
}

// NewMoveStore creates a new MoveStore backed by the given pool.
func NewMoveStore(pool *pgxpool.Pool) *MoveStore {
	return &MoveStore{pool: pool}
}

// Insert stores a detected move event.
func (s *MoveStore) Insert(ctx context.Context, move domain.MoveEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO large_moves (
			id, market_id, detected_at, window_start, window_end,
			probability_start, probability_end, change_points
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		move.ID, move.MarketID, move.DetectedAt, move.WindowStart, move.WindowEnd,
		move.ProbabilityStart, move.ProbabilityEnd, move.ChangePoints)
	if err != nil {
		return fmt.Errorf("postgres: insert move for %s: %w", move.MarketID, err)
	}
	return nil
}

// ExistsSince reports whether the market already has a recorded move whose
// window starts at or after the given time.
func (s *MoveStore) ExistsSince(ctx context.Context, marketID string, windowStart time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM large_moves
			WHERE market_id = $1 AND window_start >= $2
		)`, marketID, windowStart).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check move exists for %s: %w", marketID, err)
	}
	return exists, nil
}

const moveCols = `id, market_id, detected_at, window_start, window_end,
	probability_start, probability_end, change_points`

// ListRecent returns the most recently detected moves.
func (s *MoveStore) ListRecent(ctx context.Context, limit int) ([]domain.MoveEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryMoves(ctx,
		`SELECT `+moveCols+` FROM large_moves ORDER BY detected_at DESC LIMIT $1`, limit)
}

// ListByMarket returns a market's moves, newest first.
func (s *MoveStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.MoveEvent, error) {
	query := `SELECT ` + moveCols + ` FROM large_moves WHERE market_id = $1`
	args := []any{marketID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND detected_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}

	query += " ORDER BY detected_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
	}

	return s.queryMoves(ctx, query, args...)
}

func (s *MoveStore) queryMoves(ctx context.Context, query string, args ...any) ([]domain.MoveEvent, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query moves: %w", err)
	}
	defer rows.Close()

	var moves []domain.MoveEvent
	for rows.Next() {
		var m domain.MoveEvent
		if err := rows.Scan(&m.ID, &m.MarketID, &m.DetectedAt, &m.WindowStart, &m.WindowEnd,
			&m.ProbabilityStart, &m.ProbabilityEnd, &m.ChangePoints); err != nil {
			return nil, fmt.Errorf("postgres: scan move: %w", err)
		}
		moves = append(moves, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: move rows: %w", err)
	}
	return moves, nil
}
