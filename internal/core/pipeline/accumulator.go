package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/qrunner/internal/core/job"
	"github.com/viperadnan-git/qrunner/internal/core/quantum"
)

// Item is one prepared job waiting for execution.
type Item struct {
	JobID   string
	Params  job.Params
	Circuit *quantum.Circuit
	// Image is held until the job's terminal event.
	Image string
}

// Batch is a closed window handed to the execution stage.
type Batch struct {
	Seq      uint64
	Items    []Item
	ClosedAt time.Time
}

// Accumulator collects prepared items into a window that is closed on a
// fixed interval.
type Accumulator struct {
	mu     sync.Mutex
	window []Item
	seq    uint64
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Enqueue appends it to the open window. It never waits on execution.
func (a *Accumulator) Enqueue(it Item) {
	a.mu.Lock()
	a.window = append(a.window, it)
	a.mu.Unlock()
}

// Flush swaps the open window for an empty one and returns the closed
// window. It reports false when there was nothing to close.
func (a *Accumulator) Flush() (Batch, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.window) == 0 {
		return Batch{}, false
	}
	a.seq++
	b := Batch{Seq: a.seq, Items: a.window, ClosedAt: time.Now()}
	a.window = nil
	return b, true
}

// restore puts an undelivered batch back in front of the open window.
func (a *Accumulator) restore(b Batch) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.window = append(b.Items, a.window...)
}

func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.window)
}

// Run closes the window every interval and sends non-empty batches to out
// until ctx is done. It does not flush on exit; the caller does a final
// Flush once nothing else can enqueue.
func (a *Accumulator) Run(ctx context.Context, interval time.Duration, out chan<- Batch) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b, ok := a.Flush()
			if !ok {
				continue
			}
			log.Debug().Uint64("batch", b.Seq).Int("batch_size", len(b.Items)).Msg("batch window closed")
			select {
			case out <- b:
			case <-ctx.Done():
				a.restore(b)
				return
			}
		}
	}
}
