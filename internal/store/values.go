package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func toMicro(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicro(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func encodeNum(v decimal.NullDecimal) any {
	if !v.Valid {
		return nil
	}
	return v.Decimal.String()
}

// Upsert writes one aggregated sample. A row with the same composite natural
// key is fully replaced (value, raw, numeric, sample count, data); there is
// no incremental accumulation, which makes reprocessing the same window
// idempotent. Stored numeric values are magnitudes: negative inputs are
// folded to their absolute value.
func (s *Store) Upsert(ctx context.Context, sample Sample) (Value, error) {
	num := sample.ValueNum
	if num.Valid && num.Decimal.IsNegative() {
		num.Decimal = num.Decimal.Abs()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metric_values
			(metric, valid_from, valid_to, service, resource_type, resource_name,
			 event_type, label, label_user, value, value_num, value_raw, samples_count, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(metric, valid_from, valid_to, service, resource_type, resource_name, event_type, label)
		DO UPDATE SET
			label_user = excluded.label_user,
			value = excluded.value,
			value_num = excluded.value_num,
			value_raw = excluded.value_raw,
			samples_count = excluded.samples_count,
			data = excluded.data,
			rollup_mark = ''
	`, sample.Metric, toMicro(sample.ValidFrom), toMicro(sample.ValidTo), sample.Service,
		sample.Resource.Type, sample.Resource.Name, sample.EventType, sample.Label,
		sample.LabelUser, sample.Value, encodeNum(num), sample.ValueRaw, sample.SamplesCount, sample.Data)
	if err != nil {
		return Value{}, fmt.Errorf("failed to upsert metric value %s: %w", sample.Metric, err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM metric_values
		WHERE metric = ? AND valid_from = ? AND valid_to = ? AND service = ?
		  AND resource_type = ? AND resource_name = ? AND event_type = ? AND label = ?
	`, sample.Metric, toMicro(sample.ValidFrom), toMicro(sample.ValidTo), sample.Service,
		sample.Resource.Type, sample.Resource.Name, sample.EventType, sample.Label).Scan(&id)
	if err != nil {
		return Value{}, fmt.Errorf("failed to read back upserted value: %w", err)
	}

	return Value{
		ID:           id,
		Metric:       sample.Metric,
		ValidFrom:    sample.ValidFrom.UTC(),
		ValidTo:      sample.ValidTo.UTC(),
		Service:      sample.Service,
		Resource:     sample.Resource,
		EventType:    sample.EventType,
		Label:        sample.Label,
		LabelUser:    sample.LabelUser,
		Value:        sample.Value,
		ValueNum:     num,
		ValueRaw:     sample.ValueRaw,
		SamplesCount: sample.SamplesCount,
		Data:         sample.Data,
	}, nil
}

const valueColumns = `id, metric, valid_from, valid_to, service, resource_type, resource_name,
	event_type, label, label_user, value, value_num, value_raw, samples_count, data`

func scanValue(rows *sql.Rows) (Value, error) {
	var v Value
	var from, to int64
	var num sql.NullString
	if err := rows.Scan(&v.ID, &v.Metric, &from, &to, &v.Service, &v.Resource.Type, &v.Resource.Name,
		&v.EventType, &v.Label, &v.LabelUser, &v.Value, &num, &v.ValueRaw, &v.SamplesCount, &v.Data); err != nil {
		return Value{}, err
	}
	v.ValidFrom = fromMicro(from)
	v.ValidTo = fromMicro(to)
	if num.Valid {
		d, err := decimal.NewFromString(num.String)
		if err != nil {
			return Value{}, fmt.Errorf("corrupt numeric value %q: %w", num.String, err)
		}
		v.ValueNum = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	return v, nil
}

// Query returns stored values matching the filter, most recent first.
func (s *Store) Query(ctx context.Context, f Filter) ([]Value, error) {
	if f.Metric == "" {
		return nil, fmt.Errorf("query requires a metric name")
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + valueColumns + " FROM metric_values WHERE metric = ?")
	args := []any{f.Metric}

	if f.Service != "" {
		sb.WriteString(" AND service = ?")
		args = append(args, f.Service)
	}
	if f.Resource != nil {
		sb.WriteString(" AND resource_type = ? AND resource_name = ?")
		args = append(args, f.Resource.Type, f.Resource.Name)
	}
	if f.EventType != "" {
		sb.WriteString(" AND event_type = ?")
		args = append(args, f.EventType)
	}
	if f.Label != "" {
		sb.WriteString(" AND label = ?")
		args = append(args, f.Label)
	}
	if !f.ValidOn.IsZero() {
		sb.WriteString(" AND valid_from <= ? AND valid_to >= ?")
		args = append(args, toMicro(f.ValidOn), toMicro(f.ValidOn))
	}
	if !f.Since.IsZero() {
		sb.WriteString(" AND valid_from >= ?")
		args = append(args, toMicro(f.Since))
	}
	if !f.Until.IsZero() {
		sb.WriteString(" AND valid_to <= ?")
		args = append(args, toMicro(f.Until))
	}

	sb.WriteString(" ORDER BY valid_to DESC, id DESC")
	if f.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metric values: %w", err)
	}
	defer rows.Close()

	var values []Value
	for rows.Next() {
		v, err := scanValue(rows)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// Latest returns the most recent value matching the filter, or ok=false
// when the series has no data.
func (s *Store) Latest(ctx context.Context, f Filter) (Value, bool, error) {
	f.Limit = 1
	values, err := s.Query(ctx, f)
	if err != nil {
		return Value{}, false, err
	}
	if len(values) == 0 {
		return Value{}, false, nil
	}
	return values[0], true, nil
}

// LatestBefore returns the most recent value for a series strictly earlier
// than the given bucket end; used by rate derivation.
func (s *Store) LatestBefore(ctx context.Context, metric, service, label string, before time.Time) (Value, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+valueColumns+` FROM metric_values
		WHERE metric = ? AND service = ? AND label = ? AND valid_to < ?
		ORDER BY valid_to DESC, id DESC LIMIT 1
	`, metric, service, label, toMicro(before))
	if err != nil {
		return Value{}, false, fmt.Errorf("failed to query previous value: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return Value{}, false, rows.Err()
	}
	v, err := scanValue(rows)
	if err != nil {
		return Value{}, false, err
	}
	return v, true, nil
}

// DeleteOlderThan removes all values whose bucket ended at or before the
// cutoff. Returns the number of rows removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM metric_values WHERE valid_to <= ?`, toMicro(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired values: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// DeleteBucket removes every row for the given metrics in the exact bucket
// for one service. The host-probe collector uses this so repeated collection
// for the same bucket is idempotent at the bucket level.
func (s *Store) DeleteBucket(ctx context.Context, service string, metrics []string, from, to time.Time) error {
	if len(metrics) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(metrics))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(metrics)+3)
	args = append(args, service)
	for _, m := range metrics {
		args = append(args, m)
	}
	args = append(args, toMicro(from), toMicro(to))

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM metric_values
		WHERE service = ? AND metric IN (`+placeholders+`) AND valid_from = ? AND valid_to = ?
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to delete bucket rows: %w", err)
	}
	return nil
}
