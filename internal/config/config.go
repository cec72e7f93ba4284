// Package config loads runtime settings from the environment, with an
// optional .env file for development setups. Malformed duration values fail
// fast before any job writes to the store.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/cartoworks/geomon/internal/errors"
	"github.com/cartoworks/geomon/internal/rollup"
)

// Defaults mirror a year of retention with tiered compaction: five-minute
// buckets for the last 8 hours, hourly for a week, daily beyond that.
const (
	DefaultDataTTL         = 365 * 24 * time.Hour
	DefaultDataAggregation = "30d:1d,7d:1h,8h:5m"
	DefaultCheckInterval   = 5 * time.Minute
	DefaultDBPath          = "geomon.db"
	DefaultChecksPath      = "checks.json"
)

// Config holds the resolved settings for one process.
type Config struct {
	DBPath        string
	ChecksPath    string
	SamplesDir    string
	DataTTL       time.Duration
	Aggregation   []rollup.Stage
	CheckInterval time.Duration
	LogLevel      string
	LogFormat     string
	MetricsAddr   string

	SMTPHost     string
	SMTPPort     int
	SMTPFrom     string
	SMTPUser     string
	SMTPPass     string
	SMTPStartTLS bool
	WebhookURL   string
}

// Load reads the environment, after loading an optional .env file from the
// working directory. Environment variables already set take precedence over
// .env entries.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded .env file")
	}

	cfg := &Config{
		DBPath:        DefaultDBPath,
		ChecksPath:    DefaultChecksPath,
		DataTTL:       DefaultDataTTL,
		CheckInterval: DefaultCheckInterval,
		LogLevel:      "info",
		LogFormat:     "auto",
	}

	if path := os.Getenv("GEOMON_DB_PATH"); path != "" {
		cfg.DBPath = path
	}
	if path := os.Getenv("GEOMON_CHECKS_PATH"); path != "" {
		cfg.ChecksPath = path
	}
	if dir := os.Getenv("GEOMON_SAMPLES_DIR"); dir != "" {
		cfg.SamplesDir = dir
	}
	if level := os.Getenv("GEOMON_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if format := os.Getenv("GEOMON_LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}
	if addr := os.Getenv("GEOMON_METRICS_ADDR"); addr != "" {
		cfg.MetricsAddr = addr
	}

	if ttl := os.Getenv("GEOMON_DATA_TTL"); ttl != "" {
		parsed, err := parseDurationDays(ttl)
		if err != nil {
			return nil, errors.WrapConfigError("load_config",
				fmt.Errorf("GEOMON_DATA_TTL %q is not a duration: %w", ttl, errors.ErrInvalidConfig))
		}
		cfg.DataTTL = parsed
	}

	aggregation := os.Getenv("GEOMON_DATA_AGGREGATION")
	if aggregation == "" {
		aggregation = DefaultDataAggregation
	}
	plan, err := ParseAggregationPlan(aggregation)
	if err != nil {
		return nil, err
	}
	cfg.Aggregation = plan

	if host := os.Getenv("GEOMON_SMTP_HOST"); host != "" {
		cfg.SMTPHost = host
		cfg.SMTPPort = 587
		if port := os.Getenv("GEOMON_SMTP_PORT"); port != "" {
			parsed, err := strconv.Atoi(port)
			if err != nil || parsed <= 0 {
				return nil, errors.WrapConfigError("load_config",
					fmt.Errorf("GEOMON_SMTP_PORT %q is not a port: %w", port, errors.ErrInvalidConfig))
			}
			cfg.SMTPPort = parsed
		}
		cfg.SMTPFrom = os.Getenv("GEOMON_SMTP_FROM")
		cfg.SMTPUser = os.Getenv("GEOMON_SMTP_USER")
		cfg.SMTPPass = os.Getenv("GEOMON_SMTP_PASS")
		cfg.SMTPStartTLS = os.Getenv("GEOMON_SMTP_STARTTLS") == "true"
	}
	cfg.WebhookURL = os.Getenv("GEOMON_WEBHOOK_URL")

	if interval := os.Getenv("GEOMON_CHECK_INTERVAL"); interval != "" {
		parsed, err := time.ParseDuration(interval)
		if err != nil || parsed <= 0 {
			return nil, errors.WrapConfigError("load_config",
				fmt.Errorf("GEOMON_CHECK_INTERVAL %q is not a positive duration: %w", interval, errors.ErrInvalidConfig))
		}
		cfg.CheckInterval = parsed
	}

	return cfg, nil
}

// ParseAggregationPlan parses a comma-separated cutoff:granularity list like
// "30d:1d,7d:1h,8h:5m", ordered coarsest-oldest first. Day suffixes are
// accepted alongside the standard duration units.
func ParseAggregationPlan(raw string) ([]rollup.Stage, error) {
	parts := strings.Split(raw, ",")
	plan := make([]rollup.Stage, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 {
			return nil, errors.WrapConfigError("parse_aggregation",
				fmt.Errorf("stage %q is not cutoff:granularity: %w", part, errors.ErrInvalidConfig))
		}
		cutoff, err := parseDurationDays(fields[0])
		if err != nil {
			return nil, errors.WrapConfigError("parse_aggregation",
				fmt.Errorf("stage %q cutoff: %w", part, err))
		}
		granularity, err := parseDurationDays(fields[1])
		if err != nil {
			return nil, errors.WrapConfigError("parse_aggregation",
				fmt.Errorf("stage %q granularity: %w", part, err))
		}
		plan = append(plan, rollup.Stage{CutoffAge: cutoff, Granularity: granularity})
	}
	if err := rollup.ValidatePlan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// parseDurationDays extends time.ParseDuration with a "d" day unit, since
// retention windows are naturally expressed in days.
func parseDurationDays(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		var days float64
		if _, err := fmt.Sscanf(s, "%fd", &days); err != nil {
			return 0, fmt.Errorf("invalid day count %q: %w", s, errors.ErrInvalidConfig)
		}
		return time.Duration(days * 24 * float64(time.Hour)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, errors.ErrInvalidConfig)
	}
	return d, nil
}
