package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DistinctSeries returns the distinct series identities with unmarked rows
// fully contained in [from, to).
func (s *Store) DistinctSeries(ctx context.Context, from, to time.Time) ([]Series, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT service, metric, resource_type, resource_name, event_type, label
		FROM metric_values
		WHERE valid_from >= ? AND valid_to <= ? AND rollup_mark = ''
		ORDER BY service, metric, resource_type, resource_name, event_type, label
	`, toMicro(from), toMicro(to))
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate series: %w", err)
	}
	defer rows.Close()

	var series []Series
	for rows.Next() {
		var sr Series
		if err := rows.Scan(&sr.Service, &sr.Metric, &sr.ResourceType, &sr.ResourceName, &sr.EventType, &sr.Label); err != nil {
			return nil, err
		}
		series = append(series, sr)
	}
	return series, rows.Err()
}

// SeriesInputs returns the (value_num, samples_count) pairs for one series
// inside [from, to), in bucket order. Rows without a numeric value
// contribute zero.
func (s *Store) SeriesInputs(ctx context.Context, sr Series, from, to time.Time) ([]decimal.Decimal, []int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(value_num, '0'), samples_count
		FROM metric_values
		WHERE service = ? AND metric = ? AND resource_type = ? AND resource_name = ?
		  AND event_type = ? AND label = ? AND valid_from >= ? AND valid_to <= ?
		ORDER BY valid_from ASC
	`, sr.Service, sr.Metric, sr.ResourceType, sr.ResourceName, sr.EventType, sr.Label,
		toMicro(from), toMicro(to))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read series inputs: %w", err)
	}
	defer rows.Close()

	var values []decimal.Decimal
	var samples []int64
	for rows.Next() {
		var raw string
		var n int64
		if err := rows.Scan(&raw, &n); err != nil {
			return nil, nil, err
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("corrupt numeric value %q: %w", raw, err)
		}
		values = append(values, d)
		samples = append(samples, n)
	}
	return values, samples, rows.Err()
}

// MarkForRollup stamps the sentinel onto one series' rows inside [from, to)
// before the coarse row is written. A subsequent upsert of the coarse row
// clears the mark on its own key, so DeleteMarked never removes the freshly
// written aggregate even when a fine row shares the coarse bucket exactly.
func (s *Store) MarkForRollup(ctx context.Context, sr Series, from, to time.Time, mark string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE metric_values SET rollup_mark = ?
		WHERE service = ? AND metric = ? AND resource_type = ? AND resource_name = ?
		  AND event_type = ? AND label = ? AND valid_from >= ? AND valid_to <= ?
	`, mark, sr.Service, sr.Metric, sr.ResourceType, sr.ResourceName, sr.EventType, sr.Label,
		toMicro(from), toMicro(to))
	if err != nil {
		return 0, fmt.Errorf("failed to mark rows for rollup: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// DeleteMarked removes every row still carrying the sentinel.
func (s *Store) DeleteMarked(ctx context.Context, mark string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM metric_values WHERE rollup_mark = ?`, mark)
	if err != nil {
		return 0, fmt.Errorf("failed to delete marked rows: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// ResetMarks clears any sentinel left behind by a crashed compaction run so
// the affected buckets are recomputed instead of double-counted.
func (s *Store) ResetMarks(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE metric_values SET rollup_mark = '' WHERE rollup_mark != ''`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset rollup marks: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
