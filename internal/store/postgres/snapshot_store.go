package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a new SnapshotStore backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

const snapshotInsert = `
	INSERT INTO market_snapshots (market_id, ts, probability, liquidity, volume, volume_24h)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (market_id, ts) DO NOTHING`

// Insert stores a single snapshot. Re-ingesting the same (market, timestamp)
// reading is a no-op.
func (s *SnapshotStore) Insert(ctx context.Context, snap domain.Snapshot) error {
	_, err := s.pool.Exec(ctx, snapshotInsert,
		snap.MarketID, snap.Timestamp, snap.Probability,
		snap.Liquidity, snap.Volume, snap.Volume24h)
	if err != nil {
		return fmt.Errorf("postgres: insert snapshot for %s: %w", snap.MarketID, err)
	}
	return nil
}

// InsertBatch stores multiple snapshots in a single batch.
func (s *SnapshotStore) InsertBatch(ctx context.Context, snaps []domain.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, snap := range snaps {
		batch.Queue(snapshotInsert,
			snap.MarketID, snap.Timestamp, snap.Probability,
			snap.Liquidity, snap.Volume, snap.Volume24h)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range snaps {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert snapshot batch item %d: %w", i, err)
		}
	}
	return nil
}

const snapshotCols = `market_id, ts, probability, liquidity, volume, volume_24h`

// ListByMarket returns a market's snapshots in chronological order.
func (s *SnapshotStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Snapshot, error) {
	query := `SELECT ` + snapshotCols + ` FROM market_snapshots WHERE market_id = $1`
	args := []any{marketID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND ts >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND ts <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY ts ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
	}

	return s.querySnapshots(ctx, query, args...)
}

// LatestBefore returns the most recent snapshot at or before t.
func (s *SnapshotStore) LatestBefore(ctx context.Context, marketID string, t time.Time) (domain.Snapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+snapshotCols+`
		FROM market_snapshots
		WHERE market_id = $1 AND ts <= $2
		ORDER BY ts DESC
		LIMIT 1`, marketID, t)

	var snap domain.Snapshot
	err := row.Scan(&snap.MarketID, &snap.Timestamp, &snap.Probability,
		&snap.Liquidity, &snap.Volume, &snap.Volume24h)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Snapshot{}, domain.ErrNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("postgres: latest snapshot for %s: %w", marketID, err)
	}
	return snap, nil
}

// ListBefore pages through snapshots older than the cutoff, oldest first,
// for archival.
func (s *SnapshotStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Snapshot, error) {
	query := `SELECT ` + snapshotCols + ` FROM market_snapshots WHERE ts < $1 ORDER BY ts ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	return s.querySnapshots(ctx, query, args...)
}

// DeleteBefore removes snapshots older than the cutoff and reports how many
// rows were dropped.
func (s *SnapshotStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM market_snapshots WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete snapshots before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of snapshots.
func (s *SnapshotStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM market_snapshots").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count snapshots: %w", err)
	}
	return count, nil
}

func (s *SnapshotStore) querySnapshots(ctx context.Context, query string, args ...any) ([]domain.Snapshot, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.Snapshot
	for rows.Next() {
		var snap domain.Snapshot
		if err := rows.Scan(&snap.MarketID, &snap.Timestamp, &snap.Probability,
			&snap.Liquidity, &snap.Volume, &snap.Volume24h); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: snapshot rows: %w", err)
	}
	return snaps, nil
}
