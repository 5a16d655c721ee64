package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/qrunner/internal/core/compute"
	"github.com/viperadnan-git/qrunner/internal/core/job"
	"github.com/viperadnan-git/qrunner/internal/core/quantum"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const Name = "remote"

var ErrNoWorkers = errors.New("no compute workers configured")

// Worker is the client side of one compute worker.
type Worker interface {
	Endpoint() string
	Prepare(ctx context.Context, p job.Params) (*quantum.Circuit, error)
	ExecuteBatch(ctx context.Context, circuits []*quantum.Circuit) ([]job.Counts, error)
	Health(ctx context.Context) compute.HealthStatus
	Close() error
}

// Backend spreads calls over workers. Workers that fail with a transport
// error are marked unhealthy and skipped until they answer again.
type Backend struct {
	workers  []Worker
	strategy Strategy

	mu        sync.Mutex
	unhealthy map[int]bool
}

var _ compute.Backend = (*Backend)(nil)

func New(workers []Worker, strategy Strategy) (*Backend, error) {
	if len(workers) == 0 {
		return nil, ErrNoWorkers
	}
	if strategy == nil {
		strategy = NewRoundRobin()
	}
	return &Backend{
		workers:   workers,
		strategy:  strategy,
		unhealthy: make(map[int]bool),
	}, nil
}

func (b *Backend) Name() string { return Name }

func (b *Backend) candidates() []Candidate {
	b.mu.Lock()
	defer b.mu.Unlock()

	var healthy, all []Candidate
	for i, w := range b.workers {
		c := Candidate{Index: i, Endpoint: w.Endpoint(), Healthy: !b.unhealthy[i]}
		all = append(all, c)
		if c.Healthy {
			healthy = append(healthy, c)
		}
	}
	if len(healthy) == 0 {
		return all
	}
	return healthy
}

func (b *Backend) mark(i int, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ok {
		delete(b.unhealthy, i)
	} else {
		b.unhealthy[i] = true
	}
}

// retryable reports whether another worker might succeed where this one
// failed.
func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.Unauthenticated, codes.Unimplemented:
		return true
	}
	return false
}

// call runs fn on the selected worker, moving on to the next candidate on
// transport failures.
func (b *Backend) call(ctx context.Context, op string, fn func(Worker) error) error {
	cands := b.candidates()
	first := b.strategy.Select(cands)
	start := 0
	for i, c := range cands {
		if c.Index == first.Index {
			start = i
			break
		}
	}

	var lastErr error
	for n := range cands {
		c := cands[(start+n)%len(cands)]
		err := fn(b.workers[c.Index])
		if err == nil {
			b.mark(c.Index, true)
			return nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			return err
		}
		b.mark(c.Index, false)
		log.Warn().Err(err).Str("worker", c.Endpoint).Str("op", op).Msg("worker call failed, trying next")
	}
	return fmt.Errorf("%s: all workers failed: %w", op, lastErr)
}

func (b *Backend) Prepare(ctx context.Context, p job.Params) (*quantum.Circuit, error) {
	var out *quantum.Circuit
	err := b.call(ctx, "prepare", func(w Worker) error {
		c, err := w.Prepare(ctx, p)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		if s, ok := status.FromError(err); ok && s.Code() == codes.InvalidArgument {
			return nil, errors.New(s.Message())
		}
		return nil, err
	}
	return out, nil
}

func (b *Backend) ExecuteBatch(ctx context.Context, circuits []*quantum.Circuit) ([]job.Counts, error) {
	var out []job.Counts
	err := b.call(ctx, "execute_batch", func(w Worker) error {
		res, err := w.ExecuteBatch(ctx, circuits)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// Health is OK when at least one worker answers.
func (b *Backend) Health(ctx context.Context) compute.HealthStatus {
	start := time.Now()
	up := 0
	for i, w := range b.workers {
		h := w.Health(ctx)
		b.mark(i, h.OK)
		if h.OK {
			up++
		}
	}
	return compute.HealthStatus{
		OK:      up > 0,
		Message: fmt.Sprintf("%d/%d workers healthy", up, len(b.workers)),
		Latency: time.Since(start),
	}
}

func (b *Backend) Close() error {
	var errs []error
	for _, w := range b.workers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
