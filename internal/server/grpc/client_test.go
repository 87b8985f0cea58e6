package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"
)

const healthCheckMethod = "/grpc.health.v1.Health/Check"

type tokenAuthn struct{ want string }

func (a tokenAuthn) Authenticate(_ context.Context, token string) (auth.AccessClaims, error) {
	if token != a.want {
		return auth.AccessClaims{}, common.ErrInvalidToken
	}
	return auth.AccessClaims{Subject: "u1"}, nil
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func startServer(t *testing.T, authn Authenticator, protected []string) string {
	t.Helper()
	addr := freeAddr(t)

	srv, err := NewGRPCServer(addr, nopLogger{}, authn, protected)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return addr
}

func TestClient_CheckOpenServer(t *testing.T) {
	addr := startServer(t, tokenAuthn{want: "good"}, nil)

	c, err := NewClient(addr, "")
	require.NoError(t, err)
	defer c.Close()

	got, err := c.Check(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "SERVING", got)
}

func TestClient_AttachesAccessToken(t *testing.T) {
	addr := startServer(t, tokenAuthn{want: "good"}, []string{healthCheckMethod})

	c, err := NewClient(addr, "good")
	require.NoError(t, err)
	defer c.Close()

	got, err := c.Check(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "SERVING", got)

	anon, err := NewClient(addr, "")
	require.NoError(t, err)
	defer anon.Close()

	_, err = anon.Check(context.Background(), "")
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "missing token")

	bad, err := NewClient(addr, "bad")
	require.NoError(t, err)
	defer bad.Close()

	_, err = bad.Check(context.Background(), "")
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "invalid token")
}

func TestClient_Unavailable(t *testing.T) {
	c, err := NewClient(freeAddr(t), "")
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err = c.Check(ctx, "")
	assert.True(t, errors.Is(err, ErrUnavailable), "got %v", err)
}

type faultAuthn struct{}

func (faultAuthn) Authenticate(context.Context, string) (auth.AccessClaims, error) {
	return auth.AccessClaims{}, errors.New("storage down")
}

func TestClient_InternalFault(t *testing.T) {
	addr := startServer(t, faultAuthn{}, []string{healthCheckMethod})

	c, err := NewClient(addr, "any")
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Check(context.Background(), "")
	require.ErrorIs(t, err, common.ErrorInternal)
}

func TestWithAccessToken_ReplacesExisting(t *testing.T) {
	ctx := metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, "old", "x-other", "v")
	ctx = withAccessToken(ctx, "new")

	md, ok := metadata.FromOutgoingContext(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"new"}, md.Get(common.AccessTokenHeaderName))
	assert.Equal(t, []string{"v"}, md.Get("x-other"))
}

func TestDialAddress(t *testing.T) {
	assert.Equal(t, "localhost:50051", dialAddress(":50051"))
	assert.Equal(t, "10.0.0.1:9000", dialAddress("10.0.0.1:9000"))
	assert.Equal(t, "dns:///svc:1", dialAddress("dns:///svc:1"))
}
