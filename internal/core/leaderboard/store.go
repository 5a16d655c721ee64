package leaderboard

import (
	"context"
	"sort"
	"sync"

	"github.com/viperadnan-git/qrunner/internal/core/event"
	"github.com/viperadnan-git/qrunner/internal/core/job"
)

const DefaultCapacity = 200

// Entry is an immutable record of a completed job.
type Entry struct {
	Username string     `json:"username"`
	Q1       int        `json:"q1"`
	Q2       int        `json:"q2"`
	Result   job.Counts `json:"result"`
	Image    string     `json:"image,omitempty"`
}

func (e Entry) clone() Entry {
	e.Result = e.Result.Clone()
	return e
}

// Store holds the most recent completed jobs in insertion order.
type Store struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity}
}

// Append adds e at the end and evicts the oldest entries past capacity.
func (s *Store) Append(e Entry) {
	e = e.clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if over := len(s.entries) - s.capacity; over > 0 {
		kept := make([]Entry, s.capacity)
		copy(kept, s.entries[over:])
		s.entries = kept
	}
}

// List returns copies of all entries, oldest first.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.clone()
	}
	return out
}

// ByScore returns the entries ordered by Bell score, best first. Ties keep
// insertion order.
func (s *Store) ByScore() []Entry {
	out := s.List()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Result.Score() > out[j].Result.Score()
	})
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// SetupSubscribers records every completed job published on the bus.
func (s *Store) SetupSubscribers(bus event.Bus) {
	bus.Subscribe(event.EventJobCompleted, event.JobHandler(func(_ context.Context, e event.JobEvent) error {
		s.Append(Entry{
			Username: e.Params.Username,
			Q1:       e.Params.Q1,
			Q2:       e.Params.Q2,
			Result:   e.Message.Result,
			Image:    e.Image,
		})
		return nil
	}))
}
