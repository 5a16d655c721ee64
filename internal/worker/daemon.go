package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/viperadnan-git/qrunner/internal/config"
	"github.com/viperadnan-git/qrunner/internal/core/process"
	"github.com/viperadnan-git/qrunner/internal/rpc"
)

const (
	healthTimeout = 2 * time.Second
	readyTimeout  = 15 * time.Second
)

// Daemon runs `qrunner worker` as a supervised child of the controller,
// listening on loopback.
type Daemon struct {
	index      int
	bin        string
	configPath string
	port       int
	token      string
	client     *rpc.Client
}

var _ process.Daemon = (*Daemon)(nil)

// NewDaemon prepares the index-th spawned worker. bin is the qrunner
// executable; configPath is passed through so the child sees the same
// device settings.
func NewDaemon(index int, bin, configPath string, port int, token string) (*Daemon, error) {
	client, err := rpc.Dial(fmt.Sprintf("127.0.0.1:%d", port), token)
	if err != nil {
		return nil, err
	}
	return &Daemon{
		index:      index,
		bin:        bin,
		configPath: configPath,
		port:       port,
		token:      token,
		client:     client,
	}, nil
}

func (d *Daemon) Name() string { return fmt.Sprintf("worker-%d", d.index) }

func (d *Daemon) Endpoint() string { return d.client.Endpoint() }

func (d *Daemon) Command() (string, []string) {
	var args []string
	if d.configPath != "" {
		args = append(args, "--config", d.configPath)
	}
	args = append(args, "worker", "--host", "127.0.0.1", "--port", strconv.Itoa(d.port))
	return d.bin, args
}

// Env hands the token over without exposing it on the command line.
func (d *Daemon) Env() []string {
	return []string{config.EnvPrefix + "WORKER_AUTH_TOKEN=" + d.token}
}

func (d *Daemon) ReadyCheck() process.ReadyProbe {
	return process.ReadyProbe{
		Check:    d.Healthy,
		Interval: 200 * time.Millisecond,
		Timeout:  readyTimeout,
	}
}

func (d *Daemon) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return d.client.Health(ctx).OK
}

func (d *Daemon) Close() error {
	return d.client.Close()
}
