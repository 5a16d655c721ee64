package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/viperadnan-git/qrunner/internal/core/compute"
	"github.com/viperadnan-git/qrunner/internal/core/job"
	"github.com/viperadnan-git/qrunner/internal/core/quantum"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeWorker struct {
	endpoint string
	err      error
	prepares int
	batches  int
}

func (w *fakeWorker) Endpoint() string { return w.endpoint }

func (w *fakeWorker) Prepare(_ context.Context, p job.Params) (*quantum.Circuit, error) {
	w.prepares++
	if w.err != nil {
		return nil, w.err
	}
	return &quantum.Circuit{NumQubits: 2, Device: w.endpoint, Measure: []int{p.Q1, p.Q2}}, nil
}

func (w *fakeWorker) ExecuteBatch(_ context.Context, circuits []*quantum.Circuit) ([]job.Counts, error) {
	w.batches++
	if w.err != nil {
		return nil, w.err
	}
	out := make([]job.Counts, len(circuits))
	for i := range out {
		out[i] = job.Counts{"00": 1}
	}
	return out, nil
}

func (w *fakeWorker) Health(context.Context) compute.HealthStatus {
	return compute.HealthStatus{OK: w.err == nil}
}

func (w *fakeWorker) Close() error { return nil }

func TestRoundRobinAcrossWorkers(t *testing.T) {
	a, b := &fakeWorker{endpoint: "a"}, &fakeWorker{endpoint: "b"}
	be, err := New([]Worker{a, b}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for range 4 {
		if _, err := be.Prepare(context.Background(), job.Params{Username: "u", Q1: 0, Q2: 1}); err != nil {
			t.Fatalf("Prepare: %v", err)
		}
	}
	if a.prepares != 2 || b.prepares != 2 {
		t.Fatalf("prepares a=%d b=%d, want 2 each", a.prepares, b.prepares)
	}
}

func TestFailoverOnUnavailable(t *testing.T) {
	down := &fakeWorker{endpoint: "down", err: status.Error(codes.Unavailable, "connection refused")}
	up := &fakeWorker{endpoint: "up"}
	be, err := New([]Worker{down, up}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := be.ExecuteBatch(context.Background(), []*quantum.Circuit{{}, {}})
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("results = %d", len(res))
	}

	// the failed worker is now skipped
	down.batches = 0
	for range 3 {
		if _, err := be.ExecuteBatch(context.Background(), []*quantum.Circuit{{}}); err != nil {
			t.Fatalf("ExecuteBatch: %v", err)
		}
	}
	if down.batches != 0 {
		t.Fatalf("unhealthy worker called %d times", down.batches)
	}

	h := be.Health(context.Background())
	if !h.OK || h.Message != "1/2 workers healthy" {
		t.Fatalf("health = %+v", h)
	}
}

func TestInvalidArgumentNotRetried(t *testing.T) {
	bad := &fakeWorker{endpoint: "a", err: status.Error(codes.InvalidArgument, "qubits must be distinct")}
	other := &fakeWorker{endpoint: "b", err: status.Error(codes.InvalidArgument, "qubits must be distinct")}
	be, _ := New([]Worker{bad, other}, nil)

	_, err := be.Prepare(context.Background(), job.Params{Username: "u", Q1: 1, Q2: 1})
	if err == nil || err.Error() != "qubits must be distinct" {
		t.Fatalf("err = %v", err)
	}
	if bad.prepares+other.prepares != 1 {
		t.Fatalf("invalid argument retried: %d calls", bad.prepares+other.prepares)
	}
}

func TestNoWorkers(t *testing.T) {
	if _, err := New(nil, nil); !errors.Is(err, ErrNoWorkers) {
		t.Fatalf("err = %v, want ErrNoWorkers", err)
	}
}
