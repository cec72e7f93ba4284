package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cartoworks/geomon/internal/notify"
)

const (
	rollupInterval    = 10 * time.Minute
	retentionInterval = time.Hour
	notifyInterval    = time.Minute
)

// runDaemon runs the collection, rollup, retention, and notify jobs on
// their own tickers until SIGINT or SIGTERM. Jobs share one goroutine so
// runs of the same job never overlap.
func runDaemon() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	a, err := newApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()

	log.Info().
		Str("db", cfg.DBPath).
		Dur("checkInterval", cfg.CheckInterval).
		Msg("Starting GeoMon daemon")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsAddr != "" {
		startMetricsServer(ctx, cfg.MetricsAddr)
	}

	watcher, err := notify.NewWatcher(cfg.ChecksPath, a.evaluator)
	if err != nil {
		log.Warn().Err(err).Msg("Checks file watcher unavailable")
	} else if err := watcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to watch checks file")
	} else {
		defer watcher.Stop()
	}

	collectTicker := time.NewTicker(cfg.CheckInterval)
	rollupTicker := time.NewTicker(rollupInterval)
	retentionTicker := time.NewTicker(retentionInterval)
	notifyTicker := time.NewTicker(notifyInterval)
	defer collectTicker.Stop()
	defer rollupTicker.Stop()
	defer retentionTicker.Stop()
	defer notifyTicker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// First cycle immediately rather than one interval from now.
	if err := a.collectServices(ctx, nil, time.Now().UTC(), "", haltOnError); err != nil {
		log.Error().Err(err).Msg("Collection cycle failed")
	}

	for {
		select {
		case <-collectTicker.C:
			if err := a.collectServices(ctx, nil, time.Now().UTC(), "", haltOnError); err != nil {
				log.Error().Err(err).Msg("Collection cycle failed")
			}
		case <-rollupTicker.C:
			if err := a.rollupJob(ctx, time.Now().UTC()); err != nil {
				log.Error().Err(err).Msg("Rollup job failed")
			}
		case <-retentionTicker.C:
			if err := a.retentionJob(ctx, time.Now().UTC()); err != nil {
				log.Error().Err(err).Msg("Retention job failed")
			}
		case <-notifyTicker.C:
			if err := a.notifyJob(ctx, time.Now().UTC()); err != nil {
				log.Error().Err(err).Msg("Notify job failed")
			}
		case <-sigChan:
			log.Info().Msg("Shutting down")
			return
		}
	}
}
