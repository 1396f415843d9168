package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

// archiveBatchSize is how many snapshots one archive object holds at most.
const archiveBatchSize = 5000

// Archiver moves old snapshots from the database to object-store cold
// storage as JSON Lines, then deletes them.
type Archiver struct {
	snapshots     domain.SnapshotStore
	blob          domain.BlobWriter
	retentionDays int
	logger        *slog.Logger

	now func() time.Time
}

// NewArchiver creates a new Archiver.
func NewArchiver(snapshots domain.SnapshotStore, blob domain.BlobWriter, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		snapshots:     snapshots,
		blob:          blob,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
		now:           time.Now,
	}
}

// archivedSnapshot is the JSONL wire form of a snapshot in cold storage.
type archivedSnapshot struct {
	MarketID    string  `json:"market_id"`
	Timestamp   int64   `json:"ts"`
	Probability float64 `json:"p"`
	Liquidity   float64 `json:"liquidity,omitempty"`
	Volume      float64 `json:"volume,omitempty"`
	Volume24h   float64 `json:"volume_24h,omitempty"`
}

// Run executes a single archive run. It calculates the cutoff from
// retentionDays, uploads snapshots older than the cutoff in batches, and
// deletes each batch only after its object is stored.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := a.now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	runStamp := a.now().UTC().Format("20060102T150405")

	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	var archived int64
	for part := 1; ; part++ {
		batch, err := a.snapshots.ListBefore(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return fmt.Errorf("listing snapshots before %v: %w", cutoff, err)
		}
		if len(batch) == 0 {
			break
		}

		// The batch is timestamp-ordered. When it is full, rows sharing the
		// last timestamp may have been split off; hold them for the next
		// batch so the delete boundary stays exclusive.
		boundary := cutoff
		if len(batch) == archiveBatchSize {
			last := batch[len(batch)-1].Timestamp
			trimmed := batch[:0]
			for _, snap := range batch {
				if snap.Timestamp.Before(last) {
					trimmed = append(trimmed, snap)
				}
			}
			if len(trimmed) > 0 {
				batch = trimmed
				boundary = last
			} else {
				boundary = last.Add(time.Microsecond)
			}
		}

		key := fmt.Sprintf("snapshots/%s/part-%04d.jsonl", runStamp, part)
		if err := a.uploadBatch(ctx, key, batch); err != nil {
			return err
		}

		deleted, err := a.snapshots.DeleteBefore(ctx, boundary)
		if err != nil {
			return fmt.Errorf("deleting snapshots before %v: %w", boundary, err)
		}

		archived += int64(len(batch))
		a.logger.Info("archived snapshot batch",
			slog.String("key", key),
			slog.Int("count", len(batch)),
			slog.Int64("deleted", deleted),
		)
	}

	a.logger.Info("archive run complete", slog.Int64("snapshots_archived", archived))
	return nil
}

// uploadBatch serialises a batch as JSON Lines and writes it to the blob
// store.
func (a *Archiver) uploadBatch(ctx context.Context, key string, batch []domain.Snapshot) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, snap := range batch {
		record := archivedSnapshot{
			MarketID:    snap.MarketID,
			Timestamp:   snap.Timestamp.UTC().Unix(),
			Probability: snap.Probability,
			Liquidity:   snap.Liquidity,
			Volume:      snap.Volume,
			Volume24h:   snap.Volume24h,
		}
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("encoding snapshot %s: %w", snap.MarketID, err)
		}
	}

	if err := a.blob.Write(ctx, key, "application/x-ndjson", &buf); err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// RunCron runs the archiver on a cron schedule until the context is
// cancelled. It supports the standard 5-field format
// "minute hour day-of-month month day-of-week" with lists ("1,15"),
// ranges ("1-5"), and steps ("*/6").
//
// Example: "0 3 * * *" runs every day at 3:00 AM.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, a.now().UTC())
		if err != nil {
			return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
		}

		waitDuration := time.Until(next)
		a.logger.Info("archiver waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", waitDuration),
		)

		timer := time.NewTimer(waitDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField represents a parsed cron field that can match against a value.
type cronField struct {
	wildcard bool
	step     int // 0 means no step
	values   []int
}

// matches returns true if the given value matches this cron field.
func (f cronField) matches(val int) bool {
	if f.wildcard {
		return f.step == 0 || val%f.step == 0
	}
	for _, v := range f.values {
		if v == val {
			return true
		}
	}
	return false
}

// parseCronField parses a single cron field (e.g. "0", "*", "1,15", "1-5",
// "*/6").
func parseCronField(field string) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}
	if rest, ok := strings.CutPrefix(field, "*/"); ok {
		step, err := strconv.Atoi(rest)
		if err != nil || step <= 0 {
			return cronField{}, fmt.Errorf("invalid cron step %q", field)
		}
		return cronField{wildcard: true, step: step}, nil
	}

	var values []int
	for _, p := range strings.Split(field, ",") {
		p = strings.TrimSpace(p)

		if lo, hi, ok := strings.Cut(p, "-"); ok {
			start, err := strconv.Atoi(lo)
			if err != nil {
				return cronField{}, fmt.Errorf("invalid cron range start %q: %w", lo, err)
			}
			end, err := strconv.Atoi(hi)
			if err != nil {
				return cronField{}, fmt.Errorf("invalid cron range end %q: %w", hi, err)
			}
			if end < start {
				return cronField{}, fmt.Errorf("invalid cron range %q", p)
			}
			for v := start; v <= end; v++ {
				values = append(values, v)
			}
			continue
		}

		v, err := strconv.Atoi(p)
		if err != nil {
			return cronField{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
		}
		values = append(values, v)
	}
	return cronField{values: values}, nil
}

// parsedCron holds five parsed cron fields.
type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

// matchesTime returns true if the given time matches all five cron fields.
func (c parsedCron) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

// parseCron parses a 5-field cron expression into a parsedCron struct.
func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	var (
		parsed parsedCron
		err    error
	)
	targets := []struct {
		name string
		dst  *cronField
		raw  string
	}{
		{"minute", &parsed.minute, fields[0]},
		{"hour", &parsed.hour, fields[1]},
		{"day-of-month", &parsed.dayOfMonth, fields[2]},
		{"month", &parsed.month, fields[3]},
		{"day-of-week", &parsed.dayOfWeek, fields[4]},
	}
	for _, t := range targets {
		*t.dst, err = parseCronField(t.raw)
		if err != nil {
			return parsedCron{}, fmt.Errorf("parsing %s field: %w", t.name, err)
		}
	}
	return parsed, nil
}

// nextCronTime calculates the next time after 'after' that matches the given
// cron expression. It searches minute-by-minute up to one year ahead.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	// Start from the next minute boundary.
	candidate := after.Truncate(time.Minute).Add(time.Minute)

	// Search up to one year ahead to avoid infinite loops.
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if cron.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}

	return time.Time{}, fmt.Errorf("no matching cron time found within one year for %q", cronExpr)
}
