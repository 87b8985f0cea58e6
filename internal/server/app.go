// Package server wires configuration, storage, the token gateway and the
// session service together and executes tokenkeeper commands.
package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/cryptox"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"

	gs "github.com/dmitrijs2005/tokenkeeper/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	manager  repomanager.RepositoryManager
	gateway  *auth.Gateway
	sessions *services.SessionService
	out      io.Writer
	in       *bufio.Reader
}

// NewApp validates c, connects the configured storage backend and builds
// the services. Close releases the storage connection.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewJSONLogger(os.Stderr, c.LogLevel)

	m, err := newRepositoryManager(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	app, err := newApp(c, logger, m, os.Stdout, os.Stdin)
	if err != nil {
		m.Close()
		return nil, err
	}
	return app, nil
}

func newApp(c *config.Config, logger logging.Logger, m repomanager.RepositoryManager, out io.Writer, in io.Reader) (*App, error) {
	hasher, err := cryptox.NewBlake2bHasher([]byte(c.TokenHashKey))
	if err != nil {
		return nil, fmt.Errorf("hasher init error: %w", err)
	}

	gateway, err := auth.NewGateway(auth.Config{
		AccessSecret:    []byte(c.AccessSecret),
		RefreshSecret:   []byte(c.RefreshSecret),
		Issuer:          c.Issuer,
		AccessTokenTTL:  c.AccessTokenValidityDuration,
		RefreshTokenTTL: c.RefreshTokenValidityDuration,
	}, auth.NewJWTSigner(), hasher)
	if err != nil {
		return nil, err
	}

	return &App{
		config:   c,
		logger:   logger,
		manager:  m,
		gateway:  gateway,
		sessions: services.NewSessionService(gateway, m, logger),
		out:      out,
		in:       bufio.NewReader(in),
	}, nil
}

func newRepositoryManager(ctx context.Context, c *config.Config) (repomanager.RepositoryManager, error) {
	switch c.Storage {
	case config.StorageRedis:
		return repomanager.NewRedisRepositoryManager(ctx, repomanager.RedisOptions{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
	default:
		db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return repomanager.NewPostgresRepositoryManager(db)
	}
}

func (app *App) Close() error {
	return app.manager.Close()
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s, err := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.sessions, nil)

	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	} else {

		if err := s.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}
}

// startPurger deletes expired records every interval until ctx is done.
func (app *App) startPurger(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.sessions.PurgeExpired(ctx); err != nil {
				app.logger.Error(ctx, "purge failed", "error", err)
			}
		}
	}
}

// Serve runs the gRPC endpoint and the purge loop until ctx is cancelled or
// a termination signal arrives.
func (app *App) Serve(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startPurger(ctx, app.config.PurgeInterval)
	}()

	wg.Wait()
}
