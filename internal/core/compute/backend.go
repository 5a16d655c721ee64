package compute

import (
	"context"
	"time"

	"github.com/viperadnan-git/qrunner/internal/core/job"
	"github.com/viperadnan-git/qrunner/internal/core/quantum"
)

var (
	ErrInvalidQubit = quantum.ErrInvalidQubit
	ErrSameQubit    = quantum.ErrSameQubit
)

// Backend prepares and executes circuits for jobs.
type Backend interface {
	Name() string

	// Prepare builds the device-ready circuit for one job.
	Prepare(ctx context.Context, p job.Params) (*quantum.Circuit, error)
	// ExecuteBatch runs every circuit in one call and returns one outcome per
	// circuit. Implementations may return fewer or nil entries; callers
	// normalize.
	ExecuteBatch(ctx context.Context, circuits []*quantum.Circuit) ([]job.Counts, error)

	Health(ctx context.Context) HealthStatus
}

// Renderer turns a prepared circuit into a displayable image URI.
type Renderer interface {
	Render(c *quantum.Circuit) (string, error)
}

type HealthStatus struct {
	OK      bool          `json:"ok"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency"`
}
