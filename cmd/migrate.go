package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // postgres driver
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"trypie/config"
	"trypie/db/pg"
	_ "trypie/migration" // registers the go migrations
)

func migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the postgres schema",
		Long:  `Apply or roll back the postgres migrations with goose, then print their status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			up, _ := cmd.Flags().GetBool("up")
			down, _ := cmd.Flags().GetBool("down")
			if cmd.Flags().Changed("down") && down {
				up = false
			}
			if up == down {
				return cmd.Help()
			}

			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			return migrate(cmd.Context(), cfg.Store.DatabaseURL, up)
		},
	}

	cmd.Flags().BoolP("up", "u", true, "apply all pending migrations")
	cmd.Flags().BoolP("down", "d", false, "roll back the last migration")

	return cmd
}

func migrate(ctx context.Context, databaseURL string, up bool) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	db, err := sql.Open("postgres", pg.CreateDSN(databaseURL))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	slog.Info("connected to the database")

	// goose keeps its version table in the application schema too
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", config.AppName)); err != nil {
		return fmt.Errorf("create schema %s: %w", config.AppName, err)
	}

	const migrationsDir = "migration"
	if up {
		slog.Info("running up migrations")
		if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
			return fmt.Errorf("goose up: %w", err)
		}
	} else {
		slog.Info("rolling back the last migration")
		if err := goose.DownContext(ctx, db, migrationsDir); err != nil {
			return fmt.Errorf("goose down: %w", err)
		}
	}
	if err := goose.StatusContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("goose status: %w", err)
	}
	return nil
}
