package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer hosts the health service plus whatever services the embedding
// application registers, behind the access token interceptors.
type GRPCServer struct {
	address   string
	logger    logging.Logger
	authn     Authenticator
	protected []string
	register  []func(*grpc.Server)
}

// NewGRPCServer builds a server listening on a. protected lists the full
// method names that require an access token; health checks are always open.
func NewGRPCServer(a string, l logging.Logger, authn Authenticator, protected []string) (*GRPCServer, error) {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		authn:     authn,
		protected: protected,
	}, nil
}

// Register adds a service registration hook run before serving.
func (s *GRPCServer) Register(fn func(*grpc.Server)) {
	s.register = append(s.register, fn)
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	var opts []grpc.ServerOption
	if len(s.protected) > 0 {
		opts = append(opts,
			grpc.ChainUnaryInterceptor(AccessTokenInterceptor(s.authn, s.logger, s.protected...)),
			grpc.ChainStreamInterceptor(AccessTokenStreamInterceptor(s.authn, s.logger, s.protected...)),
		)
	}
	srv := grpc.NewServer(opts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	for _, fn := range s.register {
		fn(srv)
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gPRC server...")
		hs.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
