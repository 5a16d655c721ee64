package pipeline

import (
	"context"
	"sync"

	"github.com/viperadnan-git/qrunner/internal/core/job"
)

// intake is the unbounded FIFO between submission and the prepare stage.
type intake struct {
	mu     sync.Mutex
	items  []*job.Job
	closed bool
	ready  chan struct{}
}

func newIntake() *intake {
	return &intake{ready: make(chan struct{}, 1)}
}

// push appends j and reports false once the queue is closed.
func (q *intake) push(j *job.Job) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, j)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// pop blocks until a job is available or ctx is done. Once ctx is done it
// returns false even if jobs remain.
func (q *intake) pop(ctx context.Context) (*job.Job, bool) {
	for {
		if ctx.Err() != nil {
			return nil, false
		}
		q.mu.Lock()
		if len(q.items) > 0 {
			j := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return j, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-q.ready:
		}
	}
}

// close stops further pushes and returns whatever was still waiting.
func (q *intake) close() []*job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	rest := q.items
	q.items = nil
	return rest
}

func (q *intake) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
