// Package logging configures the process-wide zerolog logger for the
// telemetry pipeline jobs.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Config controls logger initialization.
type Config struct {
	Format    string // "json", "console", or "auto"
	Level     string // "debug", "info", "warn", "error"
	Component string // optional component name
}

var levels = map[string]zerolog.Level{
	"":         zerolog.InfoLevel,
	"info":     zerolog.InfoLevel,
	"trace":    zerolog.TraceLevel,
	"debug":    zerolog.DebugLevel,
	"warn":     zerolog.WarnLevel,
	"warning":  zerolog.WarnLevel,
	"error":    zerolog.ErrorLevel,
	"fatal":    zerolog.FatalLevel,
	"disabled": zerolog.Disabled,
}

var (
	mu   sync.Mutex
	base = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

var isTerminalFn = term.IsTerminal

func init() {
	log.Logger = base
}

// Init configures zerolog globals and establishes the package baseline
// logger. Unknown levels and formats fall back to info/json with a note on
// stderr rather than failing; a job must never abort over log cosmetics.
func Init(cfg Config) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	ctx := zerolog.New(selectWriter(cfg.Format)).With().Timestamp()
	if c := strings.TrimSpace(cfg.Component); c != "" {
		ctx = ctx.Str("component", c)
	}
	base = ctx.Logger()
	log.Logger = base
	return base
}

// With returns a child of the baseline logger carrying a job name.
func With(job string) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return base.With().Str("job", job).Logger()
}

func parseLevel(s string) zerolog.Level {
	lvl, ok := levels[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		fmt.Fprintf(os.Stderr, "logging: unknown level %q, using info\n", s)
		return zerolog.InfoLevel
	}
	return lvl
}

func selectWriter(format string) io.Writer {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console":
		return console
	case "json":
		return os.Stderr
	case "auto", "":
		if isTerminalFn(int(os.Stderr.Fd())) {
			return console
		}
		return os.Stderr
	default:
		fmt.Fprintf(os.Stderr, "logging: unknown format %q, using json\n", format)
		return os.Stderr
	}
}
