package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/viperadnan-git/qrunner/internal/core/compute"
	"github.com/viperadnan-git/qrunner/internal/core/event"
	"github.com/viperadnan-git/qrunner/internal/core/job"
	"github.com/viperadnan-git/qrunner/internal/core/leaderboard"
	"github.com/viperadnan-git/qrunner/internal/core/quantum"
)

type fakeBackend struct {
	mu         sync.Mutex
	prepareErr map[int]error
	execErr    error
	execResult func(n int) []job.Counts
	batches    [][]*quantum.Circuit
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Prepare(_ context.Context, p job.Params) (*quantum.Circuit, error) {
	if err := b.prepareErr[p.Q1]; err != nil {
		return nil, err
	}
	return &quantum.Circuit{
		NumQubits: 2,
		Gates:     []quantum.Gate{{Name: quantum.GateH, Qubits: []int{p.Q1}}},
		Measure:   []int{p.Q1, p.Q2},
	}, nil
}

func (b *fakeBackend) ExecuteBatch(_ context.Context, circuits []*quantum.Circuit) ([]job.Counts, error) {
	b.mu.Lock()
	b.batches = append(b.batches, circuits)
	b.mu.Unlock()
	if b.execErr != nil {
		return nil, b.execErr
	}
	if b.execResult != nil {
		return b.execResult(len(circuits)), nil
	}
	out := make([]job.Counts, len(circuits))
	for i, c := range circuits {
		out[i] = job.Counts{"00": c.Measure[0], "11": c.Measure[1]}
	}
	return out, nil
}

func (b *fakeBackend) Health(context.Context) compute.HealthStatus {
	return compute.HealthStatus{OK: true}
}

func (b *fakeBackend) batchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.batches)
}

type fakeRenderer struct{ err error }

func (r fakeRenderer) Render(*quantum.Circuit) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "data:image/svg+xml;base64,AAAA", nil
}

// recorder collects job events per job in publish order.
type recorder struct {
	mu       sync.Mutex
	events   map[string][]event.JobEvent
	terminal chan string
}

func newRecorder(bus event.Bus) *recorder {
	r := &recorder{events: make(map[string][]event.JobEvent), terminal: make(chan string, 64)}
	event.SubscribeAll(bus, event.JobStatusEvents, event.JobHandler(func(_ context.Context, e event.JobEvent) error {
		r.mu.Lock()
		r.events[e.JobID] = append(r.events[e.JobID], e)
		r.mu.Unlock()
		if e.Message.Status.Terminal() {
			r.terminal <- e.JobID
		}
		return nil
	}))
	return r
}

func (r *recorder) statuses(jobID string) []job.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []job.Status
	for _, e := range r.events[jobID] {
		out = append(out, e.Message.Status)
	}
	return out
}

func (r *recorder) last(jobID string) event.JobEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	evs := r.events[jobID]
	return evs[len(evs)-1]
}

func (r *recorder) waitTerminal(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.terminal:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for terminal event %d of %d", i+1, n)
		}
	}
}

func equalStatuses(a, b []job.Status) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func startPipeline(t *testing.T, p *Pipeline) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("pipeline did not stop")
		}
	}
}

func TestPipelineHappyPath(t *testing.T) {
	bus := event.NewBus()
	rec := newRecorder(bus)
	backend := &fakeBackend{}
	p := New(Config{BatchInterval: 20 * time.Millisecond}, backend, fakeRenderer{}, bus, nil)
	stop := startPipeline(t, p)
	defer stop()

	var ids []string
	for i := 0; i < 3; i++ {
		j, err := p.Submit(context.Background(), job.Params{Username: "u", Q1: i, Q2: i + 10})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids = append(ids, j.ID)
	}
	rec.waitTerminal(t, 3)

	want := []job.Status{job.StatusQueued, job.StatusPreparing, job.StatusPrepared, job.StatusExecuting, job.StatusDone}
	for i, id := range ids {
		if got := rec.statuses(id); !equalStatuses(got, want) {
			t.Fatalf("job %d statuses = %v, want %v", i, got, want)
		}
		last := rec.last(id)
		if last.Message.Result["00"] != i || last.Message.Result["11"] != i+10 {
			t.Fatalf("job %d got result %v", i, last.Message.Result)
		}
		if last.Image == "" {
			t.Fatalf("job %d terminal event lost its image", i)
		}
	}
	if st := p.Stats(); st.Processed != 3 || st.Failed != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestPrepareFailureSkipsExecution(t *testing.T) {
	bus := event.NewBus()
	rec := newRecorder(bus)
	backend := &fakeBackend{prepareErr: map[int]error{7: quantum.ErrInvalidQubit}}
	p := New(Config{BatchInterval: 20 * time.Millisecond}, backend, nil, bus, nil)
	stop := startPipeline(t, p)
	defer stop()

	bad, err := p.Submit(context.Background(), job.Params{Username: "u", Q1: 7, Q2: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	rec.waitTerminal(t, 1)

	want := []job.Status{job.StatusQueued, job.StatusPreparing, job.StatusFailed}
	if got := rec.statuses(bad.ID); !equalStatuses(got, want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	if reason := rec.last(bad.ID).Message.Reason; reason == "" {
		t.Fatal("failed message without reason")
	}
	time.Sleep(60 * time.Millisecond)
	if n := backend.batchCount(); n != 0 {
		t.Fatalf("execute called %d times for a failed job", n)
	}
}

func TestRenderFailureStillExecutes(t *testing.T) {
	bus := event.NewBus()
	rec := newRecorder(bus)
	p := New(Config{BatchInterval: 20 * time.Millisecond}, &fakeBackend{}, fakeRenderer{err: errors.New("boom")}, bus, nil)
	stop := startPipeline(t, p)
	defer stop()

	j, _ := p.Submit(context.Background(), job.Params{Username: "u", Q1: 1, Q2: 2})
	rec.waitTerminal(t, 1)

	rec.mu.Lock()
	prepared := rec.events[j.ID][2].Message
	rec.mu.Unlock()
	if prepared.Status != job.StatusPrepared || prepared.ImageError != "boom" || prepared.Image != "" {
		t.Fatalf("prepared message = %+v", prepared)
	}
	if got := rec.last(j.ID).Message.Status; got != job.StatusDone {
		t.Fatalf("terminal status = %s", got)
	}
}

func TestExecuteErrorCompletesWithEmptyResults(t *testing.T) {
	bus := event.NewBus()
	rec := newRecorder(bus)
	backend := &fakeBackend{execErr: errors.New("device offline")}
	p := New(Config{BatchInterval: 20 * time.Millisecond}, backend, nil, bus, nil)
	stop := startPipeline(t, p)
	defer stop()

	a, _ := p.Submit(context.Background(), job.Params{Username: "a", Q1: 1, Q2: 2})
	b, _ := p.Submit(context.Background(), job.Params{Username: "b", Q1: 3, Q2: 4})
	rec.waitTerminal(t, 2)

	for _, id := range []string{a.ID, b.ID} {
		msg := rec.last(id).Message
		if msg.Status != job.StatusDone || msg.Result == nil || len(msg.Result) != 0 {
			t.Fatalf("job %s terminal = %+v, want done{}", id, msg)
		}
	}
}

func TestFailedBatchStillReachesLeaderboard(t *testing.T) {
	bus := event.NewBus()
	rec := newRecorder(bus)
	board := leaderboard.NewStore(10)
	board.SetupSubscribers(bus)
	backend := &fakeBackend{execErr: errors.New("device offline")}
	p := New(Config{BatchInterval: time.Hour}, backend, nil, bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	var ids []string
	for i := range 4 {
		j, err := p.Submit(context.Background(), job.Params{Username: fmt.Sprintf("u%d", i), Q1: i, Q2: i + 10})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids = append(ids, j.ID)
	}
	deadline := time.Now().Add(5 * time.Second)
	for p.Stats().Batching < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("batching = %d, want 4", p.Stats().Batching)
		}
		time.Sleep(5 * time.Millisecond)
	}
	// the shutdown flush sends the open window as one batch
	cancel()
	<-done
	rec.waitTerminal(t, 4)

	if n := backend.batchCount(); n != 1 {
		t.Fatalf("batches = %d, want 1", n)
	}
	for _, id := range ids {
		msg := rec.last(id).Message
		if msg.Status != job.StatusDone || msg.Result == nil || len(msg.Result) != 0 {
			t.Fatalf("job %s terminal = %+v, want done{}", id, msg)
		}
	}
	entries := board.List()
	if len(entries) != 4 {
		t.Fatalf("leaderboard entries = %d, want 4", len(entries))
	}
	for _, e := range entries {
		if len(e.Result) != 0 {
			t.Fatalf("entry %s result = %v, want empty", e.Username, e.Result)
		}
	}
}

func TestShutdownFailsQueuedJobsAndRejectsNew(t *testing.T) {
	bus := event.NewBus()
	rec := newRecorder(bus)
	p := New(Config{BatchInterval: time.Hour}, &fakeBackend{}, nil, bus, nil)

	j, err := p.Submit(context.Background(), job.Params{Username: "late", Q1: 0, Q2: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	rec.waitTerminal(t, 1)
	last := rec.last(j.ID).Message
	if last.Status != job.StatusFailed || last.Reason != "server shutting down" {
		t.Fatalf("terminal = %+v", last)
	}

	if _, err := p.Submit(context.Background(), job.Params{Username: "x", Q1: 0, Q2: 1}); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("Submit after shutdown: err = %v", err)
	}
}

func TestShutdownFlushesOpenWindow(t *testing.T) {
	bus := event.NewBus()
	rec := newRecorder(bus)
	backend := &fakeBackend{}
	p := New(Config{BatchInterval: time.Hour}, backend, nil, bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	j, _ := p.Submit(context.Background(), job.Params{Username: "u", Q1: 2, Q2: 3})
	deadline := time.Now().Add(5 * time.Second)
	for p.Stats().Batching == 0 {
		if time.Now().After(deadline) {
			t.Fatal("job never reached the batch window")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if got := rec.last(j.ID).Message.Status; got != job.StatusDone {
		t.Fatalf("terminal status = %s, want done", got)
	}
	if backend.batchCount() != 1 {
		t.Fatalf("batches = %d, want 1", backend.batchCount())
	}
}

func TestSubmitValidation(t *testing.T) {
	p := New(Config{}, &fakeBackend{}, nil, event.NewBus(), nil)
	tests := []job.Params{
		{Username: "", Q1: 0, Q2: 1},
		{Username: "   ", Q1: 0, Q2: 1},
		{Username: "u", Q1: -1, Q2: 1},
		{Username: "u", Q1: 0, Q2: -3},
	}
	for _, params := range tests {
		if _, err := p.Submit(context.Background(), params); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("Submit(%+v) err = %v, want ErrInvalidParams", params, err)
		}
	}
}

func TestSubmitTracksJob(t *testing.T) {
	jobs := job.NewRegistry(10, time.Minute)
	p := New(Config{}, &fakeBackend{}, nil, event.NewBus(), jobs)
	j, err := p.Submit(context.Background(), job.Params{Username: "u", Q1: 0, Q2: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap, err := jobs.Get(j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Status != job.StatusQueued || snap.Username != "u" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestNormalizeResults(t *testing.T) {
	tests := []struct {
		name string
		in   []job.Counts
		n    int
		want []int
	}{
		{"exact", []job.Counts{{"00": 1}, {"00": 2}}, 2, []int{1, 2}},
		{"short", []job.Counts{{"00": 1}}, 3, []int{1, 0, 0}},
		{"nil entry", []job.Counts{nil, {"00": 5}}, 2, []int{0, 5}},
		{"extra", []job.Counts{{"00": 1}, {"00": 2}, {"00": 3}}, 2, []int{1, 2}},
		{"nil slice", nil, 2, []int{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeResults(1, tt.in, tt.n)
			if len(got) != tt.n {
				t.Fatalf("len = %d, want %d", len(got), tt.n)
			}
			for i, w := range tt.want {
				if got[i] == nil {
					t.Fatalf("result %d is nil", i)
				}
				if got[i]["00"] != w {
					t.Fatalf("result %d = %v, want 00=%d", i, got[i], w)
				}
			}
		})
	}
}

func TestAccumulatorEveryItemInOneBatch(t *testing.T) {
	acc := NewAccumulator()
	if _, ok := acc.Flush(); ok {
		t.Fatal("empty window flushed")
	}

	out := make(chan Batch, 100)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		acc.Run(ctx, 2*time.Millisecond, out)
		close(done)
	}()

	const total = 500
	for i := 0; i < total; i++ {
		acc.Enqueue(Item{JobID: fmt.Sprintf("job-%d", i)})
		if i%50 == 0 {
			time.Sleep(3 * time.Millisecond)
		}
	}
	cancel()
	<-done
	if b, ok := acc.Flush(); ok {
		out <- b
	}
	close(out)

	seen := make(map[string]int)
	var lastSeq uint64
	for b := range out {
		if len(b.Items) == 0 {
			t.Fatal("empty batch emitted")
		}
		if b.Seq <= lastSeq {
			t.Fatalf("batch seq %d after %d", b.Seq, lastSeq)
		}
		lastSeq = b.Seq
		for _, it := range b.Items {
			seen[it.JobID]++
		}
	}
	if len(seen) != total {
		t.Fatalf("saw %d distinct items, want %d", len(seen), total)
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("item %s appeared %d times", id, n)
		}
	}
}
