package controller

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/qrunner/internal/config"
	"github.com/viperadnan-git/qrunner/internal/core/compute"
	"github.com/viperadnan-git/qrunner/internal/core/compute/local"
	"github.com/viperadnan-git/qrunner/internal/core/compute/remote"
	"github.com/viperadnan-git/qrunner/internal/core/process"
	"github.com/viperadnan-git/qrunner/internal/core/util"
	"github.com/viperadnan-git/qrunner/internal/rpc"
	"github.com/viperadnan-git/qrunner/internal/worker"
)

// computeSetup is the selected backend plus what must be released on
// shutdown.
type computeSetup struct {
	backend compute.Backend
	closers []func() error
}

func (s *computeSetup) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			log.Debug().Err(err).Msg("compute close")
		}
	}
}

// setupCompute registers every available backend and returns the one named
// by compute.backend. Spawned workers are registered with procMgr and
// started before their clients are dialled.
func setupCompute(ctx context.Context, cfg *config.Config, configPath string, procMgr *process.Manager) (*computeSetup, error) {
	setup := &computeSetup{}
	registry := compute.NewRegistry()
	registry.Register(local.FromConfig(cfg.Device))

	if cfg.Compute.Backend == remote.Name {
		spawnToken := cfg.Worker.AuthToken
		if cfg.Compute.SpawnWorkers > 0 {
			if spawnToken == "" {
				var err error
				if spawnToken, err = util.RandomToken(32); err != nil {
					return nil, fmt.Errorf("worker token: %w", err)
				}
			}
			bin, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("locate executable: %w", err)
			}
			for i := range cfg.Compute.SpawnWorkers {
				d, err := worker.NewDaemon(i, bin, configPath, cfg.Compute.SpawnBasePort+i, spawnToken)
				if err != nil {
					setup.Close()
					return nil, err
				}
				setup.closers = append(setup.closers, d.Close)
				procMgr.Register(d)
			}
			if err := procMgr.StartAll(ctx); err != nil {
				setup.Close()
				return nil, fmt.Errorf("start workers: %w", err)
			}
		}

		endpoints := cfg.WorkerEndpoints()
		workers := make([]remote.Worker, 0, len(endpoints))
		for i, ep := range endpoints {
			token := cfg.Worker.AuthToken
			if i >= len(cfg.Compute.Workers) {
				token = spawnToken
			}
			client, err := rpc.Dial(ep, token)
			if err != nil {
				setup.Close()
				return nil, err
			}
			setup.closers = append(setup.closers, client.Close)
			workers = append(workers, client)
		}
		rb, err := remote.New(workers, remote.NewRoundRobin())
		if err != nil {
			setup.Close()
			return nil, err
		}
		registry.Register(rb)
		log.Info().Int("workers", len(workers)).Int("spawned", cfg.Compute.SpawnWorkers).Msg("remote compute configured")
	}

	backend, err := registry.Get(cfg.Compute.Backend)
	if err != nil {
		setup.Close()
		return nil, err
	}
	setup.backend = backend
	log.Info().Str("backend", backend.Name()).Strs("available", registry.List()).Msg("compute backend selected")
	return setup, nil
}
