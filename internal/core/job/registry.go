package job

import (
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var ErrNotFound = errors.New("job not found")

// Snapshot is the latest known state of a job.
type Snapshot struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Q1          int       `json:"q1"`
	Q2          int       `json:"q2"`
	Status      Status    `json:"status"`
	Result      Counts    `json:"result,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	HasImage    bool      `json:"has_image"`
	ImageError  string    `json:"image_error,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Registry keeps a bounded, expiring index of job snapshots for status
// lookups. It is safe for concurrent use.
type Registry struct {
	cache *expirable.LRU[string, Snapshot]
}

func NewRegistry(size int, ttl time.Duration) *Registry {
	if size <= 0 {
		size = 10000
	}
	return &Registry{cache: expirable.NewLRU[string, Snapshot](size, nil, ttl)}
}

// Track registers a freshly submitted job.
func (r *Registry) Track(j *Job) {
	r.cache.Add(j.ID, Snapshot{
		ID:          j.ID,
		Username:    j.Params.Username,
		Q1:          j.Params.Q1,
		Q2:          j.Params.Q2,
		Status:      j.Status,
		SubmittedAt: j.SubmittedAt,
		UpdatedAt:   j.SubmittedAt,
	})
}

// Apply folds a status message into the job's snapshot. Messages for jobs
// that are unknown or already terminal are ignored.
func (r *Registry) Apply(jobID string, msg Message) {
	snap, ok := r.cache.Peek(jobID)
	if !ok || snap.Status.Terminal() {
		return
	}
	snap.Status = msg.Status
	snap.UpdatedAt = time.Now()
	switch msg.Status {
	case StatusPrepared:
		snap.HasImage = msg.Image != ""
		snap.ImageError = msg.ImageError
	case StatusDone:
		snap.Result = msg.Result.Clone()
	case StatusFailed:
		snap.Reason = msg.Reason
	}
	r.cache.Add(jobID, snap)
}

func (r *Registry) Get(jobID string) (Snapshot, error) {
	snap, ok := r.cache.Get(jobID)
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if snap.Result != nil {
		snap.Result = snap.Result.Clone()
	}
	return snap, nil
}

func (r *Registry) Len() int {
	return r.cache.Len()
}
