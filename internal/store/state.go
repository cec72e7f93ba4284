package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LastSend returns the last notification dispatch time for a check, or nil
// when the check has never dispatched.
func (s *Store) LastSend(ctx context.Context, check string) (*time.Time, error) {
	var us int64
	err := s.db.QueryRowContext(ctx, `SELECT last_send FROM notification_state WHERE name = ?`, check).Scan(&us)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last send for %s: %w", check, err)
	}
	t := fromMicro(us)
	return &t, nil
}

// MarkSend records a dispatch time for a check. Called unconditionally after
// every dispatch attempt so a broken notification channel cannot retry every
// cycle.
func (s *Store) MarkSend(ctx context.Context, check string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_state (name, last_send) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET last_send = excluded.last_send
	`, check, toMicro(at))
	if err != nil {
		return fmt.Errorf("failed to mark send for %s: %w", check, err)
	}
	return nil
}
