package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cartoworks/geomon/internal/config"
	"github.com/cartoworks/geomon/internal/logging"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var haltOnError bool

var rootCmd = &cobra.Command{
	Use:     "geomon",
	Short:   "GeoMon - telemetry collection and aggregation engine",
	Long:    `GeoMon collects request-log and host-probe telemetry for geospatial services, aggregates it into time-bucketed metric values, compacts history, and evaluates threshold notifications`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runDaemon()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("GeoMon %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&haltOnError, "halt-on-error", false,
		"abort a collection cycle on the first failing service instead of continuing")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(rollupCmd)
	rootCmd.AddCommand(retentionCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves configuration and re-initializes logging from it.
func loadConfig() (*config.Config, error) {
	logging.Init(logging.Config{Format: "auto", Level: "info", Component: "geomon"})

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "geomon",
	})
	return cfg, nil
}
