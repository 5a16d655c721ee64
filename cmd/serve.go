package cmd

import (
	"context"

	"github.com/urfave/cli/v3"
	"github.com/viperadnan-git/qrunner/internal/controller"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"controller"},
		Usage:   "Run the HTTP/WebSocket server and the job pipeline",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "HTTP port (overrides server.port)",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Compute backend: local or remote (overrides compute.backend)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if v := cmd.Int("port"); v != 0 {
				cfg.Server.Port = int(v)
			}
			if v := cmd.String("backend"); v != "" {
				cfg.Compute.Backend = v
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return controller.Run(ctx, cfg, cmd.String("config"), version)
		},
	}
}
