package worker

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/qrunner/internal/config"
	"github.com/viperadnan-git/qrunner/internal/core/compute/local"
	"github.com/viperadnan-git/qrunner/internal/rpc"
)

// Run serves the local simulator over gRPC until a signal arrives or ctx
// is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	backend := local.FromConfig(cfg.Device)
	srv := rpc.NewServer(backend, cfg.Worker.AuthToken)

	addr := fmt.Sprintf("%s:%d", cfg.Worker.Host, cfg.Worker.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()

	printBanner(cfg, backend)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		log.Info().Msg("worker shutting down (signal)...")
	case <-ctx.Done():
		log.Info().Msg("worker shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	}

	srv.Stop()
	return nil
}

func printBanner(cfg *config.Config, backend *local.Backend) {
	auth := "disabled"
	if cfg.Worker.AuthToken != "" {
		auth = "token"
	}
	fmt.Println()
	fmt.Println("=======================================================")
	fmt.Println("  qrunner worker started")
	fmt.Printf("  Device: %s (%d qubits)\n", backend.Device().Name(), backend.Device().NumQubits())
	fmt.Printf("  Shots: %s per circuit\n", humanize.Comma(int64(cfg.Device.Shots)))
	fmt.Printf("  gRPC: %s:%d (auth %s)\n", cfg.Worker.Host, cfg.Worker.Port, auth)
	fmt.Println("=======================================================")
	fmt.Println()
}
