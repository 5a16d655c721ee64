package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/qrunner/internal/core/job"
	"github.com/viperadnan-git/qrunner/internal/core/quantum"
)

func (p *Pipeline) executeLoop(ctx context.Context, in <-chan Batch) {
	for b := range in {
		p.execute(ctx, b)
	}
}

// execute runs one batch with a single backend call and completes every job
// in it. A failed call completes each job with an empty result.
func (p *Pipeline) execute(ctx context.Context, b Batch) {
	for _, it := range b.Items {
		p.publish(ctx, it.JobID, it.Params, job.Executing(), "")
	}

	circuits := make([]*quantum.Circuit, len(b.Items))
	for i, it := range b.Items {
		circuits[i] = it.Circuit
	}

	start := time.Now()
	results, err := p.runBatch(ctx, circuits)
	if err != nil {
		log.Warn().Err(err).Uint64("batch", b.Seq).Int("batch_size", len(b.Items)).Msg("batch execution failed, completing with empty results")
		results = nil
	} else {
		log.Info().Uint64("batch", b.Seq).Int("batch_size", len(b.Items)).Dur("took", time.Since(start)).Msg("batch executed")
	}
	results = normalizeResults(b.Seq, results, len(b.Items))

	for i, it := range b.Items {
		p.publish(ctx, it.JobID, it.Params, job.Done(results[i]), it.Image)
	}
	p.processed.Add(int64(len(b.Items)))
}

func (p *Pipeline) runBatch(ctx context.Context, circuits []*quantum.Circuit) (results []job.Counts, err error) {
	ectx, cancel := withTimeout(ctx, p.cfg.ExecuteTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			results, err = nil, fmt.Errorf("backend panic: %v", r)
		}
	}()
	return p.backend.ExecuteBatch(ectx, circuits)
}

// normalizeResults returns exactly n results in input order. Missing or nil
// entries become empty maps and extras are dropped.
func normalizeResults(seq uint64, results []job.Counts, n int) []job.Counts {
	if len(results) != n && results != nil {
		log.Warn().Uint64("batch", seq).Int("want", n).Int("got", len(results)).Msg("backend result count mismatch")
	}
	out := make([]job.Counts, n)
	for i := range out {
		if i < len(results) && results[i] != nil {
			out[i] = results[i]
		} else {
			out[i] = job.Counts{}
		}
	}
	return out
}
