package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gerrors "github.com/cartoworks/geomon/internal/errors"
)

// UpsertService registers or updates a monitored service. The check
// interval must be at least one second: the schema stores whole seconds,
// and a zero interval cannot align collection buckets.
func (s *Store) UpsertService(ctx context.Context, svc Service) error {
	if svc.CheckInterval < time.Second {
		return gerrors.WrapConfigError("upsert_service",
			fmt.Errorf("service %s check interval %s is below 1s: %w",
				svc.Name, svc.CheckInterval, gerrors.ErrInvalidConfig))
	}
	active := 0
	if svc.Active {
		active = 1
	}
	var lastCheck int64
	if !svc.LastCheck.IsZero() {
		lastCheck = toMicro(svc.LastCheck)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO services (name, host, kind, check_interval_secs, last_check, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			host = excluded.host,
			kind = excluded.kind,
			check_interval_secs = excluded.check_interval_secs,
			active = excluded.active
	`, svc.Name, svc.Host, svc.Kind, int64(svc.CheckInterval.Seconds()), lastCheck, active)
	if err != nil {
		return fmt.Errorf("failed to upsert service %s: %w", svc.Name, err)
	}
	return nil
}

// GetService fetches one service by name.
func (s *Store) GetService(ctx context.Context, name string) (Service, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, host, kind, check_interval_secs, last_check, active
		FROM services WHERE name = ?
	`, name)

	svc, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Service{}, gerrors.NewPipelineError(gerrors.ErrorTypeNotFound, "get_service", name,
			fmt.Errorf("service %q: %w", name, gerrors.ErrNotFound))
	}
	if err != nil {
		return Service{}, fmt.Errorf("failed to read service %s: %w", name, err)
	}
	return svc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(r rowScanner) (Service, error) {
	var svc Service
	var intervalSecs, lastCheck int64
	var active int
	if err := r.Scan(&svc.Name, &svc.Host, &svc.Kind, &intervalSecs, &lastCheck, &active); err != nil {
		return Service{}, err
	}
	svc.CheckInterval = time.Duration(intervalSecs) * time.Second
	if lastCheck != 0 {
		svc.LastCheck = fromMicro(lastCheck)
	}
	svc.Active = active != 0
	return svc, nil
}

// ListServices returns all (or only active) services.
func (s *Store) ListServices(ctx context.Context, activeOnly bool) ([]Service, error) {
	query := `SELECT name, host, kind, check_interval_secs, last_check, active FROM services ORDER BY name`
	if activeOnly {
		query = `SELECT name, host, kind, check_interval_secs, last_check, active FROM services WHERE active = 1 ORDER BY name`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

// TouchService advances a service's last_check after a successful
// collection cycle.
func (s *Store) TouchService(ctx context.Context, name string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE services SET last_check = ? WHERE name = ?`, toMicro(at), name)
	if err != nil {
		return fmt.Errorf("failed to touch service %s: %w", name, err)
	}
	return nil
}
