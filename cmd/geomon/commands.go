package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cartoworks/geomon/internal/catalog"
	"github.com/cartoworks/geomon/internal/store"
)

var (
	collectUntil    string
	collectRequests string

	serviceName     string
	serviceHost     string
	serviceKind     string
	serviceInterval time.Duration
)

// withApp loads configuration, builds the dependency graph, runs fn, and
// tears everything down.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(context.Background(), a)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the collection daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		runDaemon()
		return nil
	},
}

var collectCmd = &cobra.Command{
	Use:   "collect [service...]",
	Short: "Run one collection cycle (all active services when none named)",
	RunE: func(cmd *cobra.Command, args []string) error {
		until := time.Now().UTC()
		if collectUntil != "" {
			parsed, err := time.Parse(time.RFC3339, collectUntil)
			if err != nil {
				return fmt.Errorf("--until %q is not an RFC3339 timestamp: %w", collectUntil, err)
			}
			until = parsed.UTC()
		}
		return withApp(func(ctx context.Context, a *app) error {
			return a.collectServices(ctx, args, until, collectRequests, haltOnError)
		})
	},
}

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Compact historical values per the aggregation plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			return a.rollupJob(ctx, time.Now().UTC())
		})
	},
}

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Delete values older than the retention TTL",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			return a.retentionJob(ctx, time.Now().UTC())
		})
	},
}

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Evaluate threshold checks and dispatch violations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			return a.notifyJob(ctx, time.Now().UTC())
		})
	},
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage monitored services",
}

var serviceAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register or update a monitored service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := catalog.ParseServiceKind(serviceKind); err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			svc := store.Service{
				Name:          serviceName,
				Host:          serviceHost,
				Kind:          serviceKind,
				CheckInterval: serviceInterval,
				Active:        true,
			}
			if err := a.store.UpsertService(ctx, svc); err != nil {
				return err
			}
			log.Info().Str("service", svc.Name).Str("kind", svc.Kind).Msg("Service registered")
			return nil
		})
	},
}

var serviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitored services",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			services, err := a.store.ListServices(ctx, false)
			if err != nil {
				return err
			}
			for _, svc := range services {
				state := "inactive"
				if svc.Active {
					state = "active"
				}
				fmt.Printf("%s\t%s\t%s\t%s\t%s\n",
					svc.Name, svc.Kind, svc.Host, svc.CheckInterval, state)
			}
			return nil
		})
	},
}

func init() {
	collectCmd.Flags().StringVar(&collectUntil, "until", "",
		"collect up to this RFC3339 timestamp instead of now")
	collectCmd.Flags().StringVar(&collectRequests, "requests", "",
		"read request samples from this JSONL file instead of the samples directory")

	serviceAddCmd.Flags().StringVar(&serviceName, "name", "", "service name")
	serviceAddCmd.Flags().StringVar(&serviceHost, "host", "", "host the service runs on")
	serviceAddCmd.Flags().StringVar(&serviceKind, "kind", "", "service kind: host, web, or mapserver")
	serviceAddCmd.Flags().DurationVar(&serviceInterval, "interval", 5*time.Minute, "collection bucket interval (1s minimum)")
	serviceAddCmd.MarkFlagRequired("name")
	serviceAddCmd.MarkFlagRequired("kind")

	serviceCmd.AddCommand(serviceAddCmd)
	serviceCmd.AddCommand(serviceListCmd)
}
