package local

import (
	"context"
	"errors"
	"testing"

	"github.com/viperadnan-git/qrunner/internal/core/compute"
	"github.com/viperadnan-git/qrunner/internal/core/job"
	"github.com/viperadnan-git/qrunner/internal/core/quantum"
)

func newTestBackend() *Backend {
	return New(Config{
		Device: quantum.NewDevice(6, 9),
		Shots:  256,
		Seed:   1,
	})
}

func TestPrepareAndExecute(t *testing.T) {
	b := newTestBackend()
	ctx := context.Background()

	c1, err := b.Prepare(ctx, job.Params{Username: "a", Q1: 0, Q2: 1})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	c2, err := b.Prepare(ctx, job.Params{Username: "b", Q1: 3, Q2: 40})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	results, err := b.ExecuteBatch(ctx, []*quantum.Circuit{c1, nil, c2})
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results[1] != nil {
		t.Fatalf("nil circuit produced %v", results[1])
	}
	for _, i := range []int{0, 2} {
		total := 0
		for _, n := range results[i] {
			total += n
		}
		if total != 256 {
			t.Fatalf("result %d has %d shots, want 256", i, total)
		}
	}
}

func TestPrepareRejectsInvalidQubits(t *testing.T) {
	b := newTestBackend()
	_, err := b.Prepare(context.Background(), job.Params{Username: "x", Q1: 2, Q2: 2})
	if !errors.Is(err, compute.ErrSameQubit) {
		t.Fatalf("err = %v, want ErrSameQubit", err)
	}
	_, err = b.Prepare(context.Background(), job.Params{Username: "x", Q1: 0, Q2: 99})
	if !errors.Is(err, compute.ErrInvalidQubit) {
		t.Fatalf("err = %v, want ErrInvalidQubit", err)
	}
}

func TestExecuteBatchHonoursContext(t *testing.T) {
	b := newTestBackend()
	c, err := b.Prepare(context.Background(), job.Params{Username: "a", Q1: 0, Q2: 1})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.ExecuteBatch(ctx, []*quantum.Circuit{c}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
