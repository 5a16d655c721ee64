package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/qrunner/internal/core/compute"
	"github.com/viperadnan-git/qrunner/internal/core/event"
	"github.com/viperadnan-git/qrunner/internal/core/job"
)

var (
	ErrInvalidParams = errors.New("invalid job parameters")
	ErrShuttingDown  = errors.New("server shutting down")
)

const (
	DefaultBatchInterval = 10 * time.Second
	DefaultBatchQueue    = 16
)

type Config struct {
	BatchInterval  time.Duration
	Executors      int
	BatchQueue     int
	PrepareTimeout time.Duration
	ExecuteTimeout time.Duration
}

// Pipeline moves submitted jobs through prepare, batch accumulation and
// execution. Every status transition is published on the bus.
type Pipeline struct {
	cfg      Config
	backend  compute.Backend
	renderer compute.Renderer
	bus      event.Bus
	jobs     *job.Registry

	intake *intake
	acc    *Accumulator

	processed atomic.Int64
	failed    atomic.Int64
}

// New builds a pipeline. renderer and jobs may be nil.
func New(cfg Config, backend compute.Backend, renderer compute.Renderer, bus event.Bus, jobs *job.Registry) *Pipeline {
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = DefaultBatchInterval
	}
	if cfg.Executors <= 0 {
		cfg.Executors = 1
	}
	if cfg.BatchQueue <= 0 {
		cfg.BatchQueue = DefaultBatchQueue
	}
	return &Pipeline{
		cfg:      cfg,
		backend:  backend,
		renderer: renderer,
		bus:      bus,
		jobs:     jobs,
		intake:   newIntake(),
		acc:      NewAccumulator(),
	}
}

// Submit validates params, registers a new job and queues it for
// preparation. It never waits on the pipeline.
func (p *Pipeline) Submit(ctx context.Context, params job.Params) (*job.Job, error) {
	if err := Validate(params); err != nil {
		return nil, err
	}
	j := job.New(params)
	if p.jobs != nil {
		p.jobs.Track(j)
	}
	p.publish(ctx, j.ID, j.Params, job.Queued(), "")
	if !p.intake.push(j) {
		p.publish(ctx, j.ID, j.Params, job.Failed(ErrShuttingDown.Error()), "")
		return nil, ErrShuttingDown
	}
	log.Debug().Str("job_id", j.ID).Str("username", params.Username).Int("q1", params.Q1).Int("q2", params.Q2).Msg("job submitted")
	return j, nil
}

func Validate(p job.Params) error {
	if strings.TrimSpace(p.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidParams)
	}
	if p.Q1 < 0 || p.Q2 < 0 {
		return fmt.Errorf("%w: qubit indices must be non-negative", ErrInvalidParams)
	}
	return nil
}

// Run drives the stages until ctx is done, then stops intake, fails the
// jobs still waiting there, flushes the open window and waits for queued
// batches to finish.
func (p *Pipeline) Run(ctx context.Context) {
	work := context.WithoutCancel(ctx)
	batches := make(chan Batch, p.cfg.BatchQueue)

	var executors sync.WaitGroup
	for range p.cfg.Executors {
		executors.Add(1)
		go func() {
			defer executors.Done()
			p.executeLoop(work, batches)
		}()
	}

	accDone := make(chan struct{})
	go func() {
		defer close(accDone)
		p.acc.Run(ctx, p.cfg.BatchInterval, batches)
	}()

	log.Info().
		Str("backend", p.backend.Name()).
		Dur("batch_interval", p.cfg.BatchInterval).
		Int("executors", p.cfg.Executors).
		Msg("pipeline started")

	p.prepareLoop(ctx)

	for _, j := range p.intake.close() {
		p.failed.Add(1)
		p.publish(work, j.ID, j.Params, job.Failed(ErrShuttingDown.Error()), "")
	}

	<-accDone
	if b, ok := p.acc.Flush(); ok {
		log.Info().Uint64("batch", b.Seq).Int("batch_size", len(b.Items)).Msg("final batch flushed")
		batches <- b
	}
	close(batches)
	executors.Wait()

	log.Info().
		Str("processed", humanize.Comma(p.processed.Load())).
		Str("failed", humanize.Comma(p.failed.Load())).
		Msg("pipeline stopped")
}

type Stats struct {
	Queued    int   `json:"queued"`
	Batching  int   `json:"batching"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Queued:    p.intake.len(),
		Batching:  p.acc.Len(),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pipeline) Backend() compute.Backend { return p.backend }

func (p *Pipeline) publish(ctx context.Context, jobID string, params job.Params, msg job.Message, image string) {
	p.bus.Publish(ctx, event.NewJobEvent(jobID, params, msg, image))
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
