package remote

import "sync/atomic"

// Candidate is a worker eligible for selection.
type Candidate struct {
	Index    int
	Endpoint string
	Healthy  bool
}

// Strategy picks one worker from a non-empty candidate list.
type Strategy interface {
	Select(candidates []Candidate) Candidate
}

// RoundRobin selects candidates in rotating order.
type RoundRobin struct {
	counter atomic.Uint64
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (rr *RoundRobin) Select(candidates []Candidate) Candidate {
	idx := rr.counter.Add(1) - 1
	return candidates[idx%uint64(len(candidates))]
}
