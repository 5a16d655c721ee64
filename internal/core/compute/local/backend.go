package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/qrunner/internal/config"
	"github.com/viperadnan-git/qrunner/internal/core/compute"
	"github.com/viperadnan-git/qrunner/internal/core/job"
	"github.com/viperadnan-git/qrunner/internal/core/quantum"
)

const (
	Name         = "local"
	DefaultShots = 1024
)

type Config struct {
	Device quantum.Device
	Noise  quantum.Noise
	Shots  int
	Seed   uint64
}

// Backend runs circuits on the in-process noisy simulator.
type Backend struct {
	device quantum.Device
	shots  int

	mu  sync.Mutex // guards sim, whose rng is not safe for concurrent use
	sim *quantum.Simulator
}

var _ compute.Backend = (*Backend)(nil)

func New(cfg Config) *Backend {
	if cfg.Shots <= 0 {
		cfg.Shots = DefaultShots
	}
	return &Backend{
		device: cfg.Device,
		shots:  cfg.Shots,
		sim:    quantum.NewSimulator(cfg.Noise, cfg.Seed),
	}
}

// FromConfig builds the simulator backend described by the device section.
func FromConfig(d config.DeviceConfig) *Backend {
	return New(Config{
		Device: quantum.NewDevice(d.Rows, d.Cols),
		Noise: quantum.Noise{
			CZError:      d.CZError,
			GateError:    d.GateError,
			ReadoutError: d.ReadoutError,
		},
		Shots: d.Shots,
		Seed:  d.Seed,
	})
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Device() quantum.Device { return b.device }

// Prepare transpiles the Bell circuit with q1 and q2 as the initial layout.
func (b *Backend) Prepare(ctx context.Context, p job.Params) (*quantum.Circuit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := quantum.Transpile(quantum.Bell(), b.device, []int{p.Q1, p.Q2})
	if err != nil {
		return nil, fmt.Errorf("transpile on %s: %w", b.device.Name(), err)
	}
	return c, nil
}

// ExecuteBatch samples each circuit in order. A circuit that cannot be run
// yields a nil entry rather than failing the whole batch.
func (b *Backend) ExecuteBatch(ctx context.Context, circuits []*quantum.Circuit) ([]job.Counts, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]job.Counts, len(circuits))
	for i, c := range circuits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		counts, err := b.sim.Run(c, b.shots)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("circuit execution failed")
			continue
		}
		out[i] = job.Counts(counts)
	}
	return out, nil
}

func (b *Backend) Health(_ context.Context) compute.HealthStatus {
	start := time.Now()
	return compute.HealthStatus{
		OK:      true,
		Message: fmt.Sprintf("%s, %d shots", b.device.Name(), b.shots),
		Latency: time.Since(start),
	}
}
