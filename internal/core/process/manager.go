package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Daemon is a child process supervised by the Manager.
type Daemon interface {
	Name() string
	Command() (bin string, args []string)
	ReadyCheck() ReadyProbe
	Healthy(ctx context.Context) bool
}

// EnvDaemon is implemented by daemons that need extra environment
// variables on top of the parent's.
type EnvDaemon interface {
	Env() []string
}

type ReadyProbe struct {
	Check    func(ctx context.Context) bool
	Interval time.Duration
	Timeout  time.Duration
}

const (
	DefaultWatchInterval = 5 * time.Second
	stopGracePeriod      = 5 * time.Second
	maxRestartBackoff    = time.Minute
)

// Manager starts daemons as child processes, restarts the ones that exit or
// stop answering health checks, and stops them all on shutdown.
type Manager struct {
	mu      sync.Mutex
	daemons []*managedDaemon
}

type managedDaemon struct {
	daemon Daemon
	cmd    *exec.Cmd
	exited chan struct{}

	failures    int
	nextAttempt time.Time
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) Register(d Daemon) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daemons = append(m.daemons, &managedDaemon{daemon: d})
}

// StartAll launches every registered daemon and waits for each to report
// ready. If one fails, the ones already started are stopped again.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, md := range m.daemons {
		if err := m.startOne(ctx, md); err != nil {
			for _, started := range m.daemons[:i+1] {
				stopOne(started)
			}
			return fmt.Errorf("start %s: %w", md.daemon.Name(), err)
		}
	}
	return nil
}

func (m *Manager) startOne(ctx context.Context, md *managedDaemon) error {
	bin, args := md.daemon.Command()
	// Not bound to ctx: StopAll owns shutdown so children get a graceful
	// interrupt instead of a kill.
	cmd := exec.Command(bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if ed, ok := md.daemon.(EnvDaemon); ok {
		cmd.Env = append(os.Environ(), ed.Env()...)
	}

	log.Info().Str("daemon", md.daemon.Name()).Str("bin", bin).Strs("args", args).Msg("starting daemon")

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}
	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		log.Debug().Err(err).Str("daemon", md.daemon.Name()).Int("pid", cmd.Process.Pid).Msg("daemon exited")
		close(exited)
	}()
	md.cmd = cmd
	md.exited = exited

	probe := md.daemon.ReadyCheck()
	if probe.Check == nil {
		return nil
	}
	if probe.Interval <= 0 {
		probe.Interval = 200 * time.Millisecond
	}
	deadline := time.Now().Add(probe.Timeout)
	for time.Now().Before(deadline) {
		if probe.Check(ctx) {
			log.Info().Str("daemon", md.daemon.Name()).Int("pid", cmd.Process.Pid).Msg("daemon ready")
			return nil
		}
		select {
		case <-exited:
			return fmt.Errorf("daemon %s exited before becoming ready", md.daemon.Name())
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(probe.Interval):
		}
	}
	return fmt.Errorf("daemon %s not ready after %s", md.daemon.Name(), probe.Timeout)
}

// StopAll interrupts all daemons in parallel and kills the ones still
// running after the grace period.
func (m *Manager) StopAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var wg sync.WaitGroup
	for _, md := range m.daemons {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stopOne(md)
		}()
	}
	wg.Wait()
	return nil
}

func stopOne(md *managedDaemon) {
	if md.cmd == nil || md.cmd.Process == nil {
		return
	}
	select {
	case <-md.exited:
		return
	default:
	}

	log.Info().Str("daemon", md.daemon.Name()).Msg("stopping daemon")
	_ = md.cmd.Process.Signal(os.Interrupt)

	select {
	case <-md.exited:
	case <-time.After(stopGracePeriod):
		log.Warn().Str("daemon", md.daemon.Name()).Msg("daemon ignored interrupt, killing")
		_ = md.cmd.Process.Kill()
		<-md.exited
	}
}

// Running reports how many daemons currently have a live process.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, md := range m.daemons {
		if md.exited == nil {
			continue
		}
		select {
		case <-md.exited:
		default:
			n++
		}
	}
	return n
}

// Watch checks daemons every interval and restarts those that exited or
// are unhealthy, backing off exponentially per daemon.
func (m *Manager) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAndRestart(ctx, interval)
		}
	}
}

func (m *Manager) checkAndRestart(ctx context.Context, base time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, md := range m.daemons {
		if md.cmd == nil || now.Before(md.nextAttempt) {
			continue
		}

		reason := ""
		select {
		case <-md.exited:
			reason = "exited"
		default:
			if !md.daemon.Healthy(ctx) {
				reason = "unhealthy"
			}
		}
		if reason == "" {
			md.failures = 0
			continue
		}

		log.Warn().Str("daemon", md.daemon.Name()).Str("reason", reason).Int("failures", md.failures).Msg("restarting daemon")
		stopOne(md)
		if err := m.startOne(ctx, md); err != nil {
			md.failures++
			md.nextAttempt = now.Add(backoff(base, md.failures))
			log.Error().Err(err).Str("daemon", md.daemon.Name()).Time("next_attempt", md.nextAttempt).Msg("restart failed")
			continue
		}
		md.failures = 0
	}
}

func backoff(base time.Duration, failures int) time.Duration {
	d := base
	for range failures {
		d *= 2
		if d >= maxRestartBackoff {
			return maxRestartBackoff
		}
	}
	return d
}
