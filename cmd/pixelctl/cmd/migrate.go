package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/templui/pixelplan/internal/config"
	"github.com/templui/pixelplan/internal/db"
	"github.com/templui/pixelplan/internal/logger"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, driver string, conn *sqlx.DB) error {
				return db.RunMigrations(ctx, conn.DB, driver)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, driver string, conn *sqlx.DB) error {
				return db.MigrateDown(ctx, conn.DB, driver)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, driver string, conn *sqlx.DB) error {
				statuses, err := db.MigrationStatus(ctx, conn.DB, driver)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
				for _, s := range statuses {
					applied := "-"
					if !s.AppliedAt.IsZero() {
						applied = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, s.Source.Path)
				}
				return tw.Flush()
			})
		},
	})

	return cmd
}

// withDB opens the configured database without running migrations.
func withDB(ctx context.Context, fn func(ctx context.Context, driver string, conn *sqlx.DB) error) error {
	cfg := config.Load()
	logger.Init(logger.Options{AppName: cfg.AppName + "-ctl", Environment: cfg.AppEnv, Level: cfg.LogLevel, SentryDSN: cfg.SentryDSN})
	defer logger.Flush()

	conn, err := db.Init(ctx, cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return err
	}
	defer conn.Close()

	return fn(ctx, cfg.DBDriver, conn)
}
