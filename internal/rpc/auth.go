package rpc

import (
	"context"
	"crypto/subtle"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const authMetadataKey = "authorization"

// tokenCredentials implements grpc.PerRPCCredentials to send the auth token
// as metadata on every RPC call.
type tokenCredentials struct {
	token string
}

func (t tokenCredentials) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{authMetadataKey: t.token}, nil
}

func (t tokenCredentials) RequireTransportSecurity() bool {
	return false
}

// TokenInterceptor rejects calls whose authorization metadata does not match
// token. An empty token disables the check.
func TokenInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if token == "" {
			return handler(ctx, req)
		}
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		vals := md.Get(authMetadataKey)
		if len(vals) == 0 || subtle.ConstantTimeCompare([]byte(vals[0]), []byte(token)) != 1 {
			return nil, status.Error(codes.Unauthenticated, "invalid worker token")
		}
		return handler(ctx, req)
	}
}
