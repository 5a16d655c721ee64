package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/qrunner/internal/archive"
	"github.com/viperadnan-git/qrunner/internal/config"
	"github.com/viperadnan-git/qrunner/internal/controller/api"
	"github.com/viperadnan-git/qrunner/internal/controller/web"
	"github.com/viperadnan-git/qrunner/internal/controller/ws"
	"github.com/viperadnan-git/qrunner/internal/core/compute"
	"github.com/viperadnan-git/qrunner/internal/core/event"
	"github.com/viperadnan-git/qrunner/internal/core/job"
	"github.com/viperadnan-git/qrunner/internal/core/leaderboard"
	"github.com/viperadnan-git/qrunner/internal/core/notify"
	"github.com/viperadnan-git/qrunner/internal/core/pipeline"
	"github.com/viperadnan-git/qrunner/internal/core/process"
	"github.com/viperadnan-git/qrunner/internal/core/quantum"
	"github.com/viperadnan-git/qrunner/internal/core/render"
)

// app holds the controller's wired components.
type app struct {
	cfg *config.Config

	jobs     *job.Registry
	broker   *notify.Broker
	board    *leaderboard.Store
	pipeline *pipeline.Pipeline
	echo     *echo.Echo
	procMgr  *process.Manager

	backends      *computeSetup
	history       archive.Store
	archiveWriter *archive.Writer
}

func newApp(ctx context.Context, cfg *config.Config, configPath, version string) (*app, error) {
	a := &app{cfg: cfg, procMgr: process.NewManager()}
	bus := event.NewBus()

	a.jobs = job.NewRegistry(cfg.Jobs.CacheSize, cfg.Jobs.TTL)
	trackJobs(bus, a.jobs)

	a.broker = notify.NewBroker(cfg.Notify.Retention)
	a.broker.SetupSubscribers(bus)

	a.board = leaderboard.NewStore(cfg.Leaderboard.Capacity)
	a.board.SetupSubscribers(bus)

	if cfg.Archive.Driver != "" {
		store, err := archive.Open(ctx, cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		a.history = store
		a.archiveWriter = archive.NewWriter(store, 0)
		a.archiveWriter.SetupSubscribers(bus)
	}

	backends, err := setupCompute(ctx, cfg, configPath, a.procMgr)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("compute: %w", err)
	}
	a.backends = backends

	var renderer compute.Renderer
	if cfg.Render.Enabled {
		renderer = render.NewSVG(cfg.Render.MaxColumns)
	}

	a.pipeline = pipeline.New(pipeline.Config{
		BatchInterval:  cfg.Pipeline.BatchInterval,
		Executors:      cfg.Pipeline.Executors,
		BatchQueue:     cfg.Pipeline.BatchQueue,
		PrepareTimeout: cfg.Compute.PrepareTimeout,
		ExecuteTimeout: cfg.Compute.ExecuteTimeout,
	}, backends.backend, renderer, bus, a.jobs)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	api.SetupRouter(e, api.RouterConfig{
		Pipeline:       a.pipeline,
		Jobs:           a.jobs,
		Leaderboard:    a.board,
		History:        a.history,
		RateLimit:      cfg.Server.RateLimit,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Version:        version,
	})
	ws.NewHandler(a.broker, a.jobs, ws.Config{
		SendBuffer:     cfg.Notify.SendBuffer,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}).RegisterRoutes(e)
	web.NewHandler(a.board, quantum.NewDevice(cfg.Device.Rows, cfg.Device.Cols)).RegisterRoutes(e)
	a.echo = e

	return a, nil
}

// start launches the background loops. The returned function stops them
// in order: pipeline drain first, then the archive writer.
func (a *app) start() (stop func(ctx context.Context)) {
	// Background work is not tied to the caller's context so the final
	// batch can still reach connected sockets during shutdown.
	runCtx, stopRun := context.WithCancel(context.Background())

	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		a.pipeline.Run(runCtx)
	}()
	go a.broker.RunSweeper(runCtx, a.cfg.Notify.SweepInterval)
	go a.procMgr.Watch(runCtx, process.DefaultWatchInterval)

	archiveCtx, stopArchive := context.WithCancel(context.Background())
	archiveDone := make(chan struct{})
	if a.archiveWriter != nil {
		go func() {
			defer close(archiveDone)
			a.archiveWriter.Run(archiveCtx)
		}()
	} else {
		close(archiveDone)
	}

	return func(ctx context.Context) {
		// Intake stops first: queued jobs are failed, the open window is
		// flushed and executors finish what they hold.
		stopRun()
		select {
		case <-pipelineDone:
		case <-ctx.Done():
			log.Warn().Msg("pipeline did not drain before shutdown timeout")
		}
		stopArchive()
		<-archiveDone
	}
}

func (a *app) close() {
	if a.backends != nil {
		a.backends.Close()
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			log.Warn().Err(err).Msg("archive close")
		}
	}
}

// Run starts the HTTP server and the job pipeline and blocks until a
// signal arrives or ctx is cancelled. configPath is handed to spawned
// workers.
func Run(ctx context.Context, cfg *config.Config, configPath, version string) error {
	a, err := newApp(ctx, cfg, configPath, version)
	if err != nil {
		return err
	}
	defer a.close()

	stop := a.start()

	serverErr := make(chan error, 1)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		if err := a.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	log.Info().Str("addr", addr).Msg("HTTP server started")

	printBanner(cfg, a.backends.backend)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case <-quit:
		log.Info().Msg("shutting down (signal)...")
	case <-ctx.Done():
		log.Info().Msg("shutting down...")
	case runErr = <-serverErr:
		log.Error().Err(runErr).Msg("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownTimeout)
	defer cancel()

	stop(shutdownCtx)
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if err := a.procMgr.StopAll(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop workers")
	}

	stats := a.pipeline.Stats()
	log.Info().
		Str("processed", humanize.Comma(stats.Processed)).
		Str("failed", humanize.Comma(stats.Failed)).
		Int("leaderboard", a.board.Len()).
		Msg("controller stopped")
	return runErr
}

// trackJobs keeps the job registry in step with every status event.
func trackJobs(bus event.Bus, jobs *job.Registry) {
	event.SubscribeAll(bus, event.JobStatusEvents, event.JobHandler(func(_ context.Context, e event.JobEvent) error {
		jobs.Apply(e.JobID, e.Message)
		return nil
	}))
}

func printBanner(cfg *config.Config, backend compute.Backend) {
	archiveDesc := "disabled"
	if cfg.Archive.Driver != "" {
		archiveDesc = cfg.Archive.Driver
	}
	fmt.Println()
	fmt.Println("=======================================================")
	fmt.Println("  qrunner controller started")
	fmt.Println()
	fmt.Printf("  Backend: %s (device grid-%dx%d, %s shots)\n",
		backend.Name(), cfg.Device.Rows, cfg.Device.Cols, humanize.Comma(int64(cfg.Device.Shots)))
	if cfg.Compute.SpawnWorkers > 0 {
		fmt.Printf("  Workers: %d spawned from port %d\n", cfg.Compute.SpawnWorkers, cfg.Compute.SpawnBasePort)
	}
	fmt.Printf("  Batch window: %s, %d executor(s)\n", cfg.Pipeline.BatchInterval, cfg.Pipeline.Executors)
	fmt.Printf("  Leaderboard: %s entries\n", humanize.Comma(int64(cfg.Leaderboard.Capacity)))
	fmt.Printf("  Archive: %s\n", archiveDesc)
	fmt.Println()
	fmt.Printf("  HTTP:  http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  WS:    ws://%s:%d/ws/{task_id}\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Docs:  http://%s:%d/docs\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println("=======================================================")
	fmt.Println()
}
