package job

import (
	"time"

	"github.com/google/uuid"
)

// Counts maps a measured bitstring to the number of shots that produced it.
type Counts map[string]int

// Clone returns an independent copy. A nil receiver yields an empty map.
func (c Counts) Clone() Counts {
	out := make(Counts, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Score is the number of shots that landed on a Bell outcome.
func (c Counts) Score() int {
	return c["00"] + c["11"]
}

// Params are the submitter-controlled inputs of a job.
type Params struct {
	Username string `json:"username"`
	Q1       int    `json:"q1"`
	Q2       int    `json:"q2"`
}

type Job struct {
	ID          string
	Params      Params
	Status      Status
	Image       string
	Result      Counts
	Reason      string
	SubmittedAt time.Time
}

// New creates a queued job with a fresh random id.
func New(p Params) *Job {
	return &Job{
		ID:          uuid.NewString(),
		Params:      p,
		Status:      StatusQueued,
		SubmittedAt: time.Now(),
	}
}
