package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

type fakeBlobWriter struct {
	objects map[string][]byte
}

func (f *fakeBlobWriter) Write(ctx context.Context, key, contentType string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[key] = data
	return nil
}

type fakeArchiveStore struct {
	domain.SnapshotStore

	snaps []domain.Snapshot
}

func (f *fakeArchiveStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Snapshot, error) {
	var out []domain.Snapshot
	for _, s := range f.snaps {
		if s.Timestamp.Before(cutoff) {
			out = append(out, s)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeArchiveStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var kept []domain.Snapshot
	var deleted int64
	for _, s := range f.snaps {
		if s.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	f.snaps = kept
	return deleted, nil
}

func TestArchiverMovesOldSnapshotsToBlob(t *testing.T) {
	now := time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC)

	store := &fakeArchiveStore{}
	for day := 1; day <= 10; day++ {
		store.snaps = append(store.snaps, domain.Snapshot{
			MarketID:    "m1",
			Timestamp:   time.Date(2026, 8, day, 12, 0, 0, 0, time.UTC),
			Probability: 0.5,
		})
	}

	blob := &fakeBlobWriter{}
	arch := NewArchiver(store, blob, 7, slog.New(slog.DiscardHandler))
	arch.now = func() time.Time { return now }

	require.NoError(t, arch.Run(context.Background()))

	require.Len(t, blob.objects, 1)
	for key, data := range blob.objects {
		assert.Contains(t, key, "snapshots/")
		assert.Contains(t, key, ".jsonl")

		var lines int
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			var rec archivedSnapshot
			require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
			assert.Equal(t, "m1", rec.MarketID)
			lines++
		}
		assert.Equal(t, 10, lines)
	}

	// Everything before the cutoff was deleted.
	remaining, err := store.ListBefore(context.Background(), now, 100)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestArchiverNothingToArchive(t *testing.T) {
	store := &fakeArchiveStore{snaps: []domain.Snapshot{
		{MarketID: "m1", Timestamp: time.Now().UTC(), Probability: 0.5},
	}}
	blob := &fakeBlobWriter{}

	arch := NewArchiver(store, blob, 30, slog.New(slog.DiscardHandler))
	require.NoError(t, arch.Run(context.Background()))
	assert.Empty(t, blob.objects)
	assert.Len(t, store.snaps, 1)
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		expr string
		want time.Time
	}{
		{"daily at 3am", "0 3 * * *", time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC)},
		{"every quarter hour", "*/15 * * * *", time.Date(2026, 8, 31, 10, 45, 0, 0, time.UTC)},
		{"hour range", "0 11-13 * * *", time.Date(2026, 8, 31, 11, 0, 0, 0, time.UTC)},
		{"first of month", "0 0 1 * *", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
		{"weekday list", "0 12 * * 1,3", time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nextCronTime(tt.expr, after)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCronRejectsMalformedExpressions(t *testing.T) {
	for _, expr := range []string{"", "0 3 * *", "x 3 * * *", "*/0 * * * *", "5-1 * * * *"} {
		_, err := parseCron(expr)
		assert.Error(t, err, "expression %q", expr)
	}
}
