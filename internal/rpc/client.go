package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/viperadnan-git/qrunner/internal/core/compute"
	"github.com/viperadnan-git/qrunner/internal/core/job"
	"github.com/viperadnan-git/qrunner/internal/core/quantum"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls a single worker.
type Client struct {
	endpoint string
	conn     *grpc.ClientConn
}

// Dial creates a client for endpoint (host:port). Extra dial options are
// appended after the defaults.
func Dial(endpoint, token string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	if token != "" {
		base = append(base, grpc.WithPerRPCCredentials(tokenCredentials{token: token}))
	}
	conn, err := grpc.NewClient(endpoint, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connect to worker %s: %w", endpoint, err)
	}
	return &Client{endpoint: endpoint, conn: conn}, nil
}

func (c *Client) Endpoint() string { return c.endpoint }

func (c *Client) Prepare(ctx context.Context, p job.Params) (*quantum.Circuit, error) {
	var resp PrepareResponse
	if err := c.conn.Invoke(ctx, methodPrepare, &PrepareRequest{Params: p}, &resp); err != nil {
		return nil, err
	}
	if resp.Circuit == nil {
		return nil, fmt.Errorf("worker %s returned no circuit", c.endpoint)
	}
	return resp.Circuit, nil
}

func (c *Client) ExecuteBatch(ctx context.Context, circuits []*quantum.Circuit) ([]job.Counts, error) {
	var resp ExecuteBatchResponse
	if err := c.conn.Invoke(ctx, methodExecuteBatch, &ExecuteBatchRequest{Circuits: circuits}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) Health(ctx context.Context) compute.HealthStatus {
	start := time.Now()
	var resp HealthResponse
	if err := c.conn.Invoke(ctx, methodHealth, &HealthRequest{}, &resp); err != nil {
		return compute.HealthStatus{OK: false, Message: err.Error(), Latency: time.Since(start)}
	}
	return compute.HealthStatus{OK: resp.OK, Message: resp.Message, Latency: time.Since(start)}
}

func (c *Client) Close() error {
	return c.conn.Close()
}
