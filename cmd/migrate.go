package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"github.com/viperadnan-git/qrunner/internal/config"
	"github.com/viperadnan-git/qrunner/internal/database"
)

func migrateCmd() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "driver",
			Usage:   "Archive driver: postgres or sqlite",
			Sources: cli.EnvVars(config.EnvPrefix + "ARCHIVE_DRIVER"),
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "PostgreSQL connection string or SQLite file path",
			Sources: cli.EnvVars(config.EnvPrefix + "ARCHIVE_URL"),
		},
	}

	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the outcome archive schema",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Flags: flags,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withRunner(ctx, cmd, database.Migrate)
				},
			},
			{
				Name:  "down",
				Usage: "Roll back the last migration",
				Flags: flags,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withRunner(ctx, cmd, database.MigrateDown)
				},
			},
		},
	}
}

func withRunner(ctx context.Context, cmd *cli.Command, fn func(context.Context, database.Runner) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v := cmd.String("driver"); v != "" {
		cfg.Archive.Driver = v
	}
	if v := cmd.String("database-url"); v != "" {
		cfg.Archive.URL = v
	}
	if cfg.Archive.URL == "" {
		return fmt.Errorf("database URL is required (set %sARCHIVE_URL or --database-url)", config.EnvPrefix)
	}

	switch cfg.Archive.Driver {
	case database.DriverPostgres:
		pool, err := database.Connect(ctx, cfg.Archive.URL, cfg.Archive.MaxConnections)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		return fn(ctx, database.NewPostgresRunner(pool))
	case database.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.Archive.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(ctx, database.NewSQLiteRunner(db))
	default:
		return fmt.Errorf("unknown archive driver %q (want %s or %s)", cfg.Archive.Driver, database.DriverPostgres, database.DriverSQLite)
	}
}
