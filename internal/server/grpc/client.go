package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("service unavailable")
)

const defaultCallTimeout = 5 * time.Second

// Client talks to a running tokenkeeper endpoint. When an access token is
// set it is attached to every outgoing call.
type Client struct {
	endpointURL string
	conn        *grpc.ClientConn
	health      healthpb.HealthClient
	accessToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (c *Client) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if c.accessToken != "" {
		ctx = withAccessToken(ctx, c.accessToken)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewClient prepares a connection to endpointURL. A listen address such as
// ":50051" is dialled on localhost.
func NewClient(endpointURL, accessToken string) (*Client, error) {
	c := &Client{endpointURL: dialAddress(endpointURL), accessToken: accessToken}

	conn, err := grpc.NewClient(c.endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor))
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.health = healthpb.NewHealthClient(conn)
	return c, nil
}

func dialAddress(a string) string {
	host, port, err := net.SplitHostPort(a)
	if err != nil || host != "" {
		return a
	}
	return net.JoinHostPort("localhost", port)
}

// Check returns the serving status of service ("" for the whole server).
func (c *Client) Check(ctx context.Context, service string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service}, grpc.WaitForReady(true))
	if err != nil {
		return "", c.mapError(err)
	}
	return resp.GetStatus().String(), nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.Internal:
		return fmt.Errorf("%w: %s", common.ErrorInternal, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
