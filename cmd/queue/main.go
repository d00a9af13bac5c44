// Command wwfm-queue drives the aggregation queue from an external scheduler
// and applies schema migrations.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/wwfm-app/wwfm/internal/api"
	"github.com/wwfm-app/wwfm/internal/buildconfig"
	"github.com/wwfm-app/wwfm/internal/config"
	"github.com/wwfm-app/wwfm/internal/service"
	"github.com/wwfm-app/wwfm/internal/store"
	"go.uber.org/zap"
)

type runtimeDeps struct {
	logger *zap.Logger
	pool   *pgxpool.Pool
	queue  *service.QueueProcessor
}

var timeout time.Duration

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wwfm-queue",
		Short:         "Operate the WWFM aggregation queue",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline for the command")

	root.AddCommand(
		&cobra.Command{
			Use:   "process",
			Short: "Reap stuck jobs, then process one batch of pending jobs",
			RunE: withDeps(func(ctx context.Context, d *runtimeDeps, cmd *cobra.Command) error {
				if _, err := d.queue.ClearStuckJobs(ctx); err != nil {
					return fmt.Errorf("clear stuck jobs: %w", err)
				}
				summary, err := d.queue.ProcessPendingJobs(ctx)
				if err != nil {
					return fmt.Errorf("process pending jobs: %w", err)
				}
				return printJSON(cmd, summary)
			}),
		},
		&cobra.Command{
			Use:   "reap",
			Short: "Release jobs stuck in processing",
			RunE: withDeps(func(ctx context.Context, d *runtimeDeps, cmd *cobra.Command) error {
				n, err := d.queue.ClearStuckJobs(ctx)
				if err != nil {
					return fmt.Errorf("clear stuck jobs: %w", err)
				}
				return printJSON(cmd, map[string]int64{"reset": n})
			}),
		},
		&cobra.Command{
			Use:   "metrics",
			Short: "Print a queue health snapshot",
			RunE: withDeps(func(ctx context.Context, d *runtimeDeps, cmd *cobra.Command) error {
				m, err := d.queue.GetQueueMetrics(ctx)
				if err != nil {
					return fmt.Errorf("queue metrics: %w", err)
				}
				return printJSON(cmd, map[string]any{
					"pending_count":           m.PendingCount,
					"processing_count":        m.ProcessingCount,
					"oldest_job_age_seconds":  m.OldestJobAge.Seconds(),
					"average_job_age_seconds": m.AverageJobAge.Seconds(),
				})
			}),
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the SQL migrations in MIGRATIONS_PATH",
			RunE: withDeps(func(ctx context.Context, d *runtimeDeps, cmd *cobra.Command) error {
				applied, err := store.ApplyMigrations(ctx, d.pool, config.MigrationsPath())
				if err != nil {
					return fmt.Errorf("apply migrations: %w", err)
				}
				d.logger.Info("migrations applied", zap.Strings("files", applied))
				return printJSON(cmd, map[string][]string{"applied": applied})
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			RunE: func(cmd *cobra.Command, args []string) error {
				return printJSON(cmd, buildconfig.VersionInfo())
			},
		},
	)
	return root
}

func withDeps(run func(ctx context.Context, d *runtimeDeps, cmd *cobra.Command) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.Load(); err != nil {
			return err
		}
		logger, err := config.NewLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		dbURL := config.DatabaseURL()
		if dbURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()

		d := &runtimeDeps{
			logger: logger,
			pool:   pool,
			queue:  api.NewServices(pool, logger).Queue,
		}
		if err := run(ctx, d, cmd); err != nil {
			logger.Error("queue command failed", zap.String("command", cmd.Name()), zap.Error(err))
			return err
		}
		return nil
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
