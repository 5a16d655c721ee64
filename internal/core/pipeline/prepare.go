package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/qrunner/internal/core/job"
	"github.com/viperadnan-git/qrunner/internal/core/quantum"
)

// PrepareError is a backend failure while preparing one job.
type PrepareError struct {
	JobID string
	Err   error
}

func (e *PrepareError) Error() string {
	return fmt.Sprintf("prepare job %s: %v", e.JobID, e.Err)
}

func (e *PrepareError) Unwrap() error { return e.Err }

// prepareLoop handles one job at a time in submission order until ctx is
// done. The job in flight when ctx ends is still finished.
func (p *Pipeline) prepareLoop(ctx context.Context) {
	work := context.WithoutCancel(ctx)
	for {
		j, ok := p.intake.pop(ctx)
		if !ok {
			return
		}
		p.prepare(work, j)
	}
}

func (p *Pipeline) prepare(ctx context.Context, j *job.Job) {
	p.publish(ctx, j.ID, j.Params, job.Preparing(), "")

	pctx, cancel := withTimeout(ctx, p.cfg.PrepareTimeout)
	circ, err := p.backend.Prepare(pctx, j.Params)
	cancel()
	if err == nil && circ == nil {
		err = fmt.Errorf("backend %s returned no circuit", p.backend.Name())
	}
	if err != nil {
		perr := &PrepareError{JobID: j.ID, Err: err}
		log.Warn().Err(perr).Str("job_id", j.ID).Msg("prepare failed")
		p.failed.Add(1)
		p.publish(ctx, j.ID, j.Params, job.Failed(err.Error()), "")
		return
	}

	image, rerr := p.render(circ)
	if rerr != nil {
		log.Debug().Err(rerr).Str("job_id", j.ID).Msg("render failed")
	}
	p.publish(ctx, j.ID, j.Params, job.Prepared(image, rerr), "")

	p.acc.Enqueue(Item{
		JobID:   j.ID,
		Params:  j.Params,
		Circuit: circ,
		Image:   image,
	})
}

// render is best effort; a panicking renderer counts as a render error.
func (p *Pipeline) render(c *quantum.Circuit) (image string, err error) {
	if p.renderer == nil {
		return "", nil
	}
	defer func() {
		if r := recover(); r != nil {
			image, err = "", fmt.Errorf("renderer panic: %v", r)
		}
	}()
	return p.renderer.Render(c)
}
