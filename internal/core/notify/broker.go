package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/qrunner/internal/core/event"
	"github.com/viperadnan-git/qrunner/internal/core/job"
)

var (
	ErrChannelClosed = errors.New("channel closed")
	ErrSlowConsumer  = errors.New("channel send buffer full")
)

// Channel is a live connection to one subscriber of a job.
// Send must not block on the network; Close is idempotent.
type Channel interface {
	Send(msg job.Message) error
	Close() error
}

type entry struct {
	ch      Channel
	pending []job.Message
	// final is the terminal message once it has been delivered live or by
	// drain; kept until retention expires so a reconnect can see it again.
	final      *job.Message
	finalCh    Channel
	finishedAt time.Time
}

// Broker tracks at most one live channel per job and buffers messages for
// jobs without one. All state is guarded by a single mutex; sends happen
// under it so a job's messages never interleave across attach and publish.
type Broker struct {
	mu        sync.Mutex
	entries   map[string]*entry
	retention time.Duration
	now       func() time.Time
}

func NewBroker(retention time.Duration) *Broker {
	return &Broker{
		entries:   make(map[string]*entry),
		retention: retention,
		now:       time.Now,
	}
}

func (b *Broker) entryFor(jobID string) *entry {
	e, ok := b.entries[jobID]
	if !ok {
		e = &entry{}
		b.entries[jobID] = e
	}
	return e
}

// Attach registers ch as the live channel for jobID, replacing any previous
// one. It sends queued, then drains buffered messages in order. It returns
// the number of drained messages and whether the channel was closed because
// a terminal message went out.
func (b *Broker) Attach(jobID string, ch Channel) (drained int, closed bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entryFor(jobID)
	if prev := e.ch; prev != nil && prev != ch {
		_ = prev.Close()
	}
	e.ch = ch

	if err := ch.Send(job.Queued()); err != nil {
		e.ch = nil
		_ = ch.Close()
		return 0, true, err
	}

	for len(e.pending) > 0 {
		msg := e.pending[0]
		if err := ch.Send(msg); err != nil {
			log.Debug().Err(err).Str("job_id", jobID).Str("status", string(msg.Status)).Msg("drain send failed")
			e.ch = nil
			_ = ch.Close()
			return drained, true, err
		}
		e.pending = e.pending[1:]
		drained++
		if msg.Status.Terminal() {
			b.finish(jobID, e, msg)
			return drained, true, nil
		}
	}
	e.pending = nil

	if e.final != nil {
		// already delivered once; replay it for this subscriber
		if err := ch.Send(*e.final); err != nil {
			log.Debug().Err(err).Str("job_id", jobID).Msg("terminal replay failed")
		}
		e.ch = nil
		_ = ch.Close()
		return drained, true, nil
	}
	return drained, false, nil
}

// Publish delivers msg to the attached channel or buffers it. Queued is
// never buffered; it is synthesized on attach instead.
func (b *Broker) Publish(jobID string, msg job.Message) {
	if msg.Status == job.StatusQueued {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entryFor(jobID)
	if e.final != nil {
		log.Warn().Str("job_id", jobID).Str("status", string(msg.Status)).Msg("message after terminal status dropped")
		return
	}

	if e.ch != nil {
		err := e.ch.Send(msg)
		if err == nil {
			if msg.Status.Terminal() {
				b.finish(jobID, e, msg)
			}
			return
		}
		log.Debug().Err(err).Str("job_id", jobID).Str("status", string(msg.Status)).Msg("channel send failed, buffering")
		_ = e.ch.Close()
		e.ch = nil
	}
	e.pending = append(e.pending, msg)
	if msg.Status.Terminal() {
		e.finishedAt = b.now()
	}
}

// finish closes the live channel after a delivered terminal message and
// clears the buffered state. Caller holds b.mu.
func (b *Broker) finish(jobID string, e *entry, msg job.Message) {
	ch := e.ch
	if e.ch != nil {
		_ = e.ch.Close()
		e.ch = nil
	}
	e.pending = nil
	final := msg
	e.final = &final
	e.finalCh = ch
	e.finishedAt = b.now()
	log.Debug().Str("job_id", jobID).Str("status", string(msg.Status)).Msg("terminal message delivered")
}

// Requeue takes back messages that ch accepted but could not write to its
// connection. They go in front of anything buffered since, and a terminal
// message among them is no longer counted as delivered. Messages are dropped
// when another channel has taken over the job, since it has already been
// served newer ones.
func (b *Broker) Requeue(jobID string, ch Channel, msgs []job.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[jobID]
	if !ok {
		return
	}
	if e.ch == ch {
		e.ch = nil
	}
	if e.ch != nil || (e.final != nil && e.finalCh != ch) {
		log.Debug().Str("job_id", jobID).Int("messages", len(msgs)).Msg("undelivered messages superseded")
		return
	}

	back := make([]job.Message, 0, len(msgs)+len(e.pending))
	terminal := false
	for _, msg := range msgs {
		if msg.Status == job.StatusQueued {
			continue
		}
		back = append(back, msg)
		terminal = terminal || msg.Status.Terminal()
	}
	if len(back) == 0 {
		return
	}
	if terminal {
		e.final = nil
		e.finalCh = nil
		e.finishedAt = b.now()
	}
	e.pending = append(back, e.pending...)
	log.Debug().Str("job_id", jobID).Int("messages", len(back)).Msg("undelivered messages buffered")
}

// Known reports whether the broker holds any state for jobID.
func (b *Broker) Known(jobID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.entries[jobID]
	return ok
}

// Detach removes ch only if it is still the registered channel for jobID.
func (b *Broker) Detach(jobID string, ch Channel) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[jobID]
	if !ok || e.ch != ch {
		return
	}
	e.ch = nil
}

// Pending returns a copy of the buffered messages for jobID.
func (b *Broker) Pending(jobID string) []job.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[jobID]
	if !ok {
		return nil
	}
	out := make([]job.Message, len(e.pending))
	copy(out, e.pending)
	return out
}

// Sweep forgets finished jobs, delivered or not, whose terminal message is
// older than the retention window and returns how many were removed.
func (b *Broker) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-b.retention)
	removed := 0
	for id, e := range b.entries {
		if e.ch == nil && !e.finishedAt.IsZero() && e.finishedAt.Before(cutoff) {
			delete(b.entries, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (b *Broker) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.Sweep(); n > 0 {
				log.Debug().Int("removed", n).Msg("notify entries swept")
			}
		}
	}
}

// SetupSubscribers routes job status events from the bus into the broker.
func (b *Broker) SetupSubscribers(bus event.Bus) {
	event.SubscribeAll(bus, event.JobStatusEvents, event.JobHandler(func(_ context.Context, e event.JobEvent) error {
		b.Publish(e.JobID, e.Message)
		return nil
	}))
}
