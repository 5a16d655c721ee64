package cmd

import (
	"fmt"

	"github.com/urfave/cli/v3"
	"github.com/viperadnan-git/qrunner/internal/config"
	"github.com/viperadnan-git/qrunner/internal/core/util"
)

var version = "dev"

func App() *cli.Command {
	return &cli.Command{
		Name:    "qrunner",
		Version: version,
		Usage:   "Bell-state job runner: batched noisy simulation, live status over WebSocket, public leaderboard.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to TOML or YAML config file",
				Sources: cli.EnvVars(config.EnvPrefix + "CONFIG_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Sources: cli.EnvVars(config.EnvPrefix + "LOGGING_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			serveCmd(),
			workerCmd(),
			migrateCmd(),
		},
	}
}

// loadConfig reads the config named by --config, applies --log-level and
// installs the logger.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if v := cmd.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	util.SetupLogging(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}
