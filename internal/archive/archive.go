package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/qrunner/internal/config"
	"github.com/viperadnan-git/qrunner/internal/core/event"
	"github.com/viperadnan-git/qrunner/internal/core/job"
	"github.com/viperadnan-git/qrunner/internal/database"
)

const DefaultRecentLimit = 50

// Record is the archived outcome of one finished job.
type Record struct {
	JobID      string     `json:"task_id"`
	Username   string     `json:"username"`
	Q1         int        `json:"q1"`
	Q2         int        `json:"q2"`
	Status     job.Status `json:"status"`
	Result     job.Counts `json:"result"`
	Reason     string     `json:"reason,omitempty"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Store persists finished jobs.
type Store interface {
	Record(ctx context.Context, r Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// Open connects to the configured archive and applies pending migrations.
func Open(ctx context.Context, cfg config.ArchiveConfig) (Store, error) {
	switch cfg.Driver {
	case database.DriverPostgres:
		pool, err := database.Connect(ctx, cfg.URL, cfg.MaxConnections)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := database.Migrate(ctx, database.NewPostgresRunner(pool)); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return NewPostgres(pool), nil
	case database.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, database.NewSQLiteRunner(db)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return NewSQLite(db), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}

// Writer records terminal job events off the publishing goroutine so a slow
// database never stalls the pipeline.
type Writer struct {
	store   Store
	records chan Record
}

func NewWriter(store Store, buffer int) *Writer {
	if buffer <= 0 {
		buffer = 256
	}
	return &Writer{store: store, records: make(chan Record, buffer)}
}

// SetupSubscribers queues every completed or failed job for archiving.
func (w *Writer) SetupSubscribers(bus event.Bus) {
	event.SubscribeAll(bus, []event.EventType{event.EventJobCompleted, event.EventJobFailed},
		event.JobHandler(func(_ context.Context, e event.JobEvent) error {
			w.enqueue(Record{
				JobID:      e.JobID,
				Username:   e.Params.Username,
				Q1:         e.Params.Q1,
				Q2:         e.Params.Q2,
				Status:     e.Message.Status,
				Result:     e.Message.Result.Clone(),
				Reason:     e.Message.Reason,
				FinishedAt: time.Now().UTC(),
			})
			return nil
		}))
}

func (w *Writer) enqueue(r Record) {
	select {
	case w.records <- r:
	default:
		log.Warn().Str("job_id", r.JobID).Msg("archive queue full, outcome not recorded")
	}
}

// Run writes queued records until ctx is done, then drains what is left.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case r := <-w.records:
			w.write(ctx, r)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			for {
				select {
				case r := <-w.records:
					w.write(drainCtx, r)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) write(ctx context.Context, r Record) {
	if err := w.store.Record(ctx, r); err != nil {
		log.Warn().Err(err).Str("job_id", r.JobID).Msg("archive write failed")
	}
}
