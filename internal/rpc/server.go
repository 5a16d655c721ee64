package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/qrunner/internal/core/compute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// computeService exposes a compute.Backend as a ComputeServer.
type computeService struct {
	backend compute.Backend
}

func NewComputeService(b compute.Backend) ComputeServer {
	return &computeService{backend: b}
}

func (s *computeService) Prepare(ctx context.Context, req *PrepareRequest) (*PrepareResponse, error) {
	c, err := s.backend.Prepare(ctx, req.Params)
	if err != nil {
		if errors.Is(err, compute.ErrInvalidQubit) || errors.Is(err, compute.ErrSameQubit) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &PrepareResponse{Circuit: c}, nil
}

func (s *computeService) ExecuteBatch(ctx context.Context, req *ExecuteBatchRequest) (*ExecuteBatchResponse, error) {
	results, err := s.backend.ExecuteBatch(ctx, req.Circuits)
	if err != nil {
		log.Warn().Err(err).Int("batch_size", len(req.Circuits)).Msg("batch execution failed")
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &ExecuteBatchResponse{Results: results}, nil
}

func (s *computeService) Health(ctx context.Context, _ *HealthRequest) (*HealthResponse, error) {
	h := s.backend.Health(ctx)
	return &HealthResponse{OK: h.OK, Message: h.Message, Backend: s.backend.Name()}, nil
}

// Server is the worker's gRPC server.
type Server struct {
	backend    compute.Backend
	token      string
	grpcServer *grpc.Server
}

func NewServer(b compute.Backend, token string) *Server {
	s := &Server{
		backend: b,
		token:   token,
		grpcServer: grpc.NewServer(
			grpc.UnaryInterceptor(TokenInterceptor(token)),
		),
	}
	RegisterComputeServer(s.grpcServer, NewComputeService(b))
	return s
}

// Start listens on addr and serves until Stop. It blocks.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	log.Info().Str("addr", lis.Addr().String()).Str("backend", s.backend.Name()).Msg("gRPC server started")
	return s.grpcServer.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
}
