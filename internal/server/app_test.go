package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/repomanager"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.Storage = config.StorageRedis
	c.AccessSecret = "access-secret"
	c.RefreshSecret = "refresh-secret"
	c.TokenHashKey = "pepper"
	return c
}

func newTestApp(t *testing.T, stdin string) (*App, *bytes.Buffer) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	m := repomanager.NewRedisRepositoryManagerFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")

	var out bytes.Buffer
	app, err := newApp(testConfig(), logging.Nop{}, m, &out, strings.NewReader(stdin))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	oldTerm := isTerminal
	isTerminal = func(int) bool { return false }
	t.Cleanup(func() { isTerminal = oldTerm })

	return app, &out
}

func decodePair(t *testing.T, b *bytes.Buffer) tokenPairOutput {
	t.Helper()
	var p tokenPairOutput
	require.NoError(t, json.NewDecoder(b).Decode(&p))
	b.Reset()
	return p
}

func TestNewApp_InvalidConfig(t *testing.T) {
	c := testConfig()
	c.RefreshSecret = c.AccessSecret

	_, err := NewApp(context.Background(), c)
	require.ErrorIs(t, err, common.ErrMisconfigured)
}

func TestNewApp_HashKeyTooLong(t *testing.T) {
	c := testConfig()
	c.TokenHashKey = strings.Repeat("k", 65)

	_, err := newApp(c, logging.Nop{}, nil, &bytes.Buffer{}, strings.NewReader(""))
	require.Error(t, err)
}

func TestExecute_IssueRefreshRevoke(t *testing.T) {
	app, out := newTestApp(t, "")
	ctx := context.Background()

	require.NoError(t, app.Execute(ctx, []string{"issue", "u1"}))
	first := decodePair(t, out)
	assert.NotEmpty(t, first.AccessToken)
	assert.NotEmpty(t, first.RefreshToken)

	require.NoError(t, app.Execute(ctx, []string{"verify-access", first.AccessToken}))
	var v verificationOutput
	require.NoError(t, json.NewDecoder(out).Decode(&v))
	out.Reset()
	assert.Equal(t, "valid", v.Outcome)
	assert.Equal(t, "u1", v.Subject)
	assert.Equal(t, "auth-service", v.Issuer)

	require.NoError(t, app.Execute(ctx, []string{"refresh", first.RefreshToken}))
	second := decodePair(t, out)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	require.NoError(t, app.Execute(ctx, []string{"revoke", second.RefreshToken}))
	assert.Equal(t, "revoked\n", out.String())
	out.Reset()

	err := app.Execute(ctx, []string{"refresh", second.RefreshToken})
	require.ErrorIs(t, err, common.ErrRefreshTokenRevoked)
}

func TestExecute_VerifyRefresh(t *testing.T) {
	app, out := newTestApp(t, "")
	ctx := context.Background()

	require.NoError(t, app.Execute(ctx, []string{"issue", "u1"}))
	pair := decodePair(t, out)

	require.NoError(t, app.Execute(ctx, []string{"verify-refresh", pair.RefreshToken}))
	var v verificationOutput
	require.NoError(t, json.NewDecoder(out).Decode(&v))
	out.Reset()
	assert.Equal(t, "valid", v.Outcome)
	assert.Equal(t, "u1", v.Subject)
	assert.NotEmpty(t, v.TokenID)

	err := app.Execute(ctx, []string{"verify-refresh", pair.AccessToken})
	require.ErrorIs(t, err, common.ErrInvalidToken)
	require.NoError(t, json.NewDecoder(out).Decode(&v))
	assert.Equal(t, "invalid", v.Outcome)
	assert.NotEmpty(t, v.Error)
}

func TestExecute_TokenFromInput(t *testing.T) {
	app, out := newTestApp(t, "")
	ctx := context.Background()

	require.NoError(t, app.Execute(ctx, []string{"issue", "u1"}))
	pair := decodePair(t, out)

	app.in = bufio.NewReader(strings.NewReader(pair.RefreshToken + "\n"))
	require.NoError(t, app.Execute(ctx, []string{"refresh"}))
	assert.Contains(t, out.String(), "Refresh token: ")
}

func TestExecute_EmptyInput(t *testing.T) {
	app, _ := newTestApp(t, "\n")
	err := app.Execute(context.Background(), []string{"revoke"})
	require.ErrorIs(t, err, ErrUsage)
}

func TestExecute_RevokeUserAndPurge(t *testing.T) {
	app, out := newTestApp(t, "")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, app.Execute(ctx, []string{"issue", "u1"}))
	}
	out.Reset()

	require.NoError(t, app.Execute(ctx, []string{"revoke-user", "u1"}))
	assert.Equal(t, "revoked 2 token(s)\n", out.String())
	out.Reset()

	require.NoError(t, app.Execute(ctx, []string{"purge"}))
	assert.Equal(t, "deleted 0 expired token(s)\n", out.String())
}

func TestExecute_Migrate(t *testing.T) {
	app, out := newTestApp(t, "")
	require.NoError(t, app.Execute(context.Background(), []string{"migrate"}))
	assert.Equal(t, "migrations applied\n", out.String())
}

func TestExecute_FlagsAreNotCommands(t *testing.T) {
	app, out := newTestApp(t, "")
	require.NoError(t, app.Execute(context.Background(), []string{"-c", "cfg.json", "-l", "debug", "issue", "u1"}))
	assert.NotEmpty(t, decodePair(t, out).AccessToken)
}

func TestExecute_UsageErrors(t *testing.T) {
	app, _ := newTestApp(t, "")
	ctx := context.Background()

	for _, args := range [][]string{nil, {"bogus"}, {"issue"}, {"revoke-user"}} {
		err := app.Execute(ctx, args)
		assert.True(t, errors.Is(err, ErrUsage), "args %v: got %v", args, err)
	}
}

func TestExecute_VersionAndHelp(t *testing.T) {
	app, out := newTestApp(t, "")
	ctx := context.Background()

	require.NoError(t, app.Execute(ctx, []string{"version"}))
	assert.Contains(t, out.String(), "Build version:")
	out.Reset()

	require.NoError(t, app.Execute(ctx, []string{"help"}))
	assert.Contains(t, out.String(), "revoke-user <userID>")
}

func TestServe_HealthCommand(t *testing.T) {
	app, out := newTestApp(t, "")

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	app.config.EndpointAddrGRPC = l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		app.Serve(ctx)
	}()

	require.NoError(t, app.Execute(context.Background(), []string{"health"}))
	assert.Equal(t, "SERVING\n", out.String())

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}
