package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"github.com/viperadnan-git/qrunner/internal/config"
	"github.com/viperadnan-git/qrunner/internal/worker"
)

func workerCmd() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run a compute worker serving prepare/execute over gRPC",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (overrides worker.host)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port (overrides worker.port)",
			},
			&cli.StringFlag{
				Name:    "auth-token",
				Usage:   "Shared token controllers must present",
				Sources: cli.EnvVars(config.EnvPrefix + "WORKER_AUTH_TOKEN"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if v := cmd.String("host"); v != "" {
				cfg.Worker.Host = v
			}
			if v := cmd.Int("port"); v != 0 {
				cfg.Worker.Port = int(v)
			}
			if v := cmd.String("auth-token"); v != "" {
				cfg.Worker.AuthToken = v
			}
			if cfg.Worker.AuthToken == "" {
				log.Warn().Msg("worker.auth_token is empty, accepting unauthenticated calls")
			}

			return worker.Run(ctx, cfg)
		},
	}
}
