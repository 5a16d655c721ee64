package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "qrunner.Compute"

const (
	methodPrepare      = "/" + ServiceName + "/Prepare"
	methodExecuteBatch = "/" + ServiceName + "/ExecuteBatch"
	methodHealth       = "/" + ServiceName + "/Health"
)

// ComputeServer is the worker side of the compute link.
type ComputeServer interface {
	Prepare(ctx context.Context, req *PrepareRequest) (*PrepareResponse, error)
	ExecuteBatch(ctx context.Context, req *ExecuteBatchRequest) (*ExecuteBatchResponse, error)
	Health(ctx context.Context, req *HealthRequest) (*HealthResponse, error)
}

func RegisterComputeServer(s grpc.ServiceRegistrar, srv ComputeServer) {
	s.RegisterService(&computeServiceDesc, srv)
}

var computeServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ComputeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Prepare", Handler: prepareHandler},
		{MethodName: "ExecuteBatch", Handler: executeBatchHandler},
		{MethodName: "Health", Handler: healthHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "qrunner/compute",
}

func prepareHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PrepareRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ComputeServer).Prepare(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPrepare}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ComputeServer).Prepare(ctx, req.(*PrepareRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func executeBatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ExecuteBatchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ComputeServer).ExecuteBatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodExecuteBatch}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ComputeServer).ExecuteBatch(ctx, req.(*ExecuteBatchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func healthHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HealthRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ComputeServer).Health(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodHealth}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ComputeServer).Health(ctx, req.(*HealthRequest))
	}
	return interceptor(ctx, in, info, handler)
}
