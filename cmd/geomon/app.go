package main

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cartoworks/geomon/internal/catalog"
	"github.com/cartoworks/geomon/internal/collect"
	"github.com/cartoworks/geomon/internal/config"
	"github.com/cartoworks/geomon/internal/hostprobe"
	"github.com/cartoworks/geomon/internal/notify"
	"github.com/cartoworks/geomon/internal/rollup"
	"github.com/cartoworks/geomon/internal/store"
	"github.com/cartoworks/geomon/internal/telemetry"
)

// app wires every component once at the entry point. Components never reach
// into ambient global state.
type app struct {
	cfg        *config.Config
	store      *store.Store
	registry   *catalog.Registry
	aggregator *collect.Aggregator
	probe      *hostprobe.Probe
	compactor  *rollup.Compactor
	evaluator  *notify.Evaluator
}

func newApp(cfg *config.Config) (*app, error) {
	st, err := store.Open(store.Config{DBPath: cfg.DBPath})
	if err != nil {
		return nil, err
	}

	registry := catalog.Default()

	checks, err := notify.LoadChecks(cfg.ChecksPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn().Str("path", cfg.ChecksPath).Msg("No checks file, notifications disabled")
			checks = nil
		} else {
			st.Close()
			return nil, err
		}
	}

	return &app{
		cfg:        cfg,
		store:      st,
		registry:   registry,
		aggregator: collect.NewAggregator(st, registry),
		probe:      hostprobe.New(),
		compactor:  rollup.New(st, registry),
		evaluator:  notify.NewEvaluator(st, buildSink(cfg), checks),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close store cleanly")
	}
}

// buildSink assembles the notification sink from configuration. With
// nothing configured, dispatches are logged and dropped.
func buildSink(cfg *config.Config) notify.Sink {
	var sinks notify.MultiSink
	if cfg.SMTPHost != "" {
		sinks = append(sinks, &notify.EmailSink{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			StartTLS: cfg.SMTPStartTLS,
		})
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, &notify.WebhookSink{URL: cfg.WebhookURL})
	}
	if len(sinks) == 0 {
		return logSink{}
	}
	return sinks
}

// logSink records dispatches in the log when no real sink is configured.
type logSink struct{}

func (logSink) Send(_ context.Context, recipients []string, severity notify.Severity, msg notify.Message) error {
	log.Warn().
		Str("check", msg.CheckName).
		Str("severity", string(severity)).
		Strs("recipients", recipients).
		Int("violations", len(msg.Violations)).
		Msg("No notification sink configured, dropping dispatch")
	return nil
}

// collectServices runs one collection cycle over the given services (all
// active services when the list is empty). requestsFile, when non-empty,
// overrides the per-service sample file under the samples directory.
// Failures are isolated per service unless halt is set.
func (a *app) collectServices(ctx context.Context, names []string, until time.Time, requestsFile string, halt bool) error {
	defer telemetry.ObserveJob("collect", time.Now())

	services, err := a.resolveServices(ctx, names)
	if err != nil {
		return err
	}

	for _, svc := range services {
		if err := a.collectOne(ctx, svc, until, requestsFile); err != nil {
			telemetry.CollectErrorsTotal.WithLabelValues(svc.Name).Inc()
			if halt {
				return err
			}
			log.Error().Err(err).Str("service", svc.Name).Msg("Collection failed, continuing with next service")
			continue
		}
		if err := a.store.TouchService(ctx, svc.Name, until); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) resolveServices(ctx context.Context, names []string) ([]store.Service, error) {
	if len(names) == 0 {
		return a.store.ListServices(ctx, true)
	}
	services := make([]store.Service, 0, len(names))
	for _, name := range names {
		svc, err := a.store.GetService(ctx, name)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, nil
}

func (a *app) collectOne(ctx context.Context, svc store.Service, until time.Time, requestsFile string) error {
	before, err := a.store.Counts(ctx)
	if err != nil {
		return err
	}

	sk, err := catalog.ParseServiceKind(svc.Kind)
	if err != nil {
		return err
	}

	switch {
	case sk == catalog.ServiceHost:
		snap, err := a.probe.Snapshot(ctx)
		if err != nil {
			return err
		}
		if err := a.aggregator.CollectHost(ctx, svc, snap, until); err != nil {
			return err
		}
	case sk.RequestLog():
		since := svc.LastCheck
		if since.IsZero() {
			since = until.Add(-svc.CheckInterval)
		}
		path := requestsFile
		if path == "" {
			path = filepath.Join(a.cfg.SamplesDir, svc.Name+".jsonl")
		}
		source := collect.FileSource{Path: path}
		samples, err := source.Samples(ctx, svc, since, until)
		if err != nil {
			return err
		}
		if err := a.aggregator.CollectRequests(ctx, svc, samples, since, until); err != nil {
			return err
		}
	}

	after, err := a.store.Counts(ctx)
	if err != nil {
		return err
	}
	if after > before {
		telemetry.RowsWrittenTotal.Add(float64(after - before))
	}
	return nil
}

// rollupJob compacts history per the configured aggregation plan.
func (a *app) rollupJob(ctx context.Context, now time.Time) error {
	defer telemetry.ObserveJob("rollup", time.Now())
	stats, err := a.compactor.Run(ctx, a.cfg.Aggregation, now, a.cfg.DataTTL, true)
	if err != nil {
		return err
	}
	log.Info().Int("series", stats.Series).Int64("deleted", stats.RowsDeleted).Msg("Rollup job finished")
	return nil
}

// retentionJob drops rows past the TTL horizon.
func (a *app) retentionJob(ctx context.Context, now time.Time) error {
	defer telemetry.ObserveJob("retention", time.Now())
	deleted, err := a.store.DeleteOlderThan(ctx, now.Add(-a.cfg.DataTTL))
	if err != nil {
		return err
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Msg("Retention job removed expired rows")
	}
	return nil
}

// notifyJob evaluates all checks and dispatches violations.
func (a *app) notifyJob(ctx context.Context, now time.Time) error {
	defer telemetry.ObserveJob("notify", time.Now())
	sent, err := a.evaluator.EmitNotifications(ctx, now)
	if err != nil {
		return err
	}
	if sent > 0 {
		telemetry.NotificationsSentTotal.Add(float64(sent))
		log.Info().Int("dispatches", sent).Msg("Notify job dispatched violations")
	}
	return nil
}
