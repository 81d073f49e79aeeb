package grpc_control

import (
	"context"

	"nepse-observer/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls a running observer's control service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr without transport security; the control port is
// meant for localhost.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out)
}

// -----------------------------------------------------------------------------

func (c *Client) ListJobs(ctx context.Context) ([]models.MJobStatus, error) {
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, "ListJobs", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return listToStatuses(out)
}

func (c *Client) GetJob(ctx context.Context, name string) (*models.MJobStatus, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "GetJob", wrapperspb.String(name), out); err != nil {
		return nil, err
	}
	st, err := structToStatus(out)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// RunJob triggers name and returns the run id.
func (c *Client) RunJob(ctx context.Context, name string) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.invoke(ctx, "RunJob", wrapperspb.String(name), out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// Health returns the serving status of service; "" is the whole process and
// a job name is that job.
func (c *Client) Health(ctx context.Context, service string) (string, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return "", err
	}
	return resp.GetStatus().String(), nil
}
