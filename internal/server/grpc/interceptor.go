package grpc

import (
	"context"
	"errors"
	"slices"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Authenticator verifies an access token. services.SessionService satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (auth.AccessClaims, error)
}

type ctxKey string

const (
	userIDKey ctxKey = "userID"
	claimsKey ctxKey = "claims"
)

// UserIDFromContext returns the subject stored by the interceptor.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// ClaimsFromContext returns the full verified claims stored by the interceptor.
func ClaimsFromContext(ctx context.Context) (auth.AccessClaims, bool) {
	c, ok := ctx.Value(claimsKey).(auth.AccessClaims)
	return c, ok
}

// AccessTokenInterceptor authenticates calls to the given full method names
// (all methods when none are given) using the access_token metadata entry.
func AccessTokenInterceptor(authn Authenticator, logger logging.Logger, methods ...string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !protects(methods, info.FullMethod) {
			return handler(ctx, req)
		}

		ctx, err := authenticate(ctx, authn, logger, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// AccessTokenStreamInterceptor is the streaming counterpart of
// AccessTokenInterceptor.
func AccessTokenStreamInterceptor(authn Authenticator, logger logging.Logger, methods ...string) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if !protects(methods, info.FullMethod) {
			return handler(srv, ss)
		}

		ctx, err := authenticate(ss.Context(), authn, logger, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: ctx})
	}
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context { return s.ctx }

func protects(methods []string, fullMethod string) bool {
	return len(methods) == 0 || slices.Contains(methods, fullMethod)
}

func authenticate(ctx context.Context, authn Authenticator, logger logging.Logger, method string) (context.Context, error) {
	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return ctx, status.Error(codes.Unauthenticated, "missing token")
	}

	claims, err := authn.Authenticate(ctx, accessToken)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrTokenExpired):
			return ctx, status.Error(codes.Unauthenticated, "token expired")
		case errors.Is(err, common.ErrInvalidToken):
			return ctx, status.Error(codes.Unauthenticated, "invalid token")
		default:
			logger.Error(ctx, "authentication failed", "method", method, "error", err)
			return ctx, status.Error(codes.Internal, "internal error")
		}
	}

	ctx = context.WithValue(ctx, userIDKey, claims.Subject)
	ctx = context.WithValue(ctx, claimsKey, claims)
	return ctx, nil
}
