package grpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const protectedMethod = "/tokenkeeper.Demo/Protected"

type fakeAuthn struct {
	claims auth.AccessClaims
	err    error
	got    string
}

func (f *fakeAuthn) Authenticate(ctx context.Context, token string) (auth.AccessClaims, error) {
	f.got = token
	if f.err != nil {
		return auth.AccessClaims{}, f.err
	}
	return f.claims, nil
}

func withToken(token string) context.Context {
	md := metadata.New(map[string]string{common.AccessTokenHeaderName: token})
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestInterceptor_UnlistedMethod_AllowsWithoutToken(t *testing.T) {
	ic := AccessTokenInterceptor(&fakeAuthn{err: errors.New("must not be called")}, nopLogger{}, protectedMethod)

	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Service/OtherMethod"}
	handlerCalled := false
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		handlerCalled = true
		return "ok", nil
	}

	resp, err := ic(context.Background(), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Fatal("handler was not called")
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
}

func TestInterceptor_MissingToken(t *testing.T) {
	ic := AccessTokenInterceptor(&fakeAuthn{}, nopLogger{}, protectedMethod)

	info := &grpc.UnaryServerInfo{FullMethod: protectedMethod}
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called when token missing")
		return nil, nil
	}

	_, err := ic(context.Background(), nil, info, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", status.Code(err))
	}
	if status.Convert(err).Message() != "missing token" {
		t.Fatalf("expected 'missing token', got %q", status.Convert(err).Message())
	}
}

func TestInterceptor_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    codes.Code
		message string
	}{
		{"expired", fmt.Errorf("%w: exp", common.ErrTokenExpired), codes.Unauthenticated, "token expired"},
		{"invalid", fmt.Errorf("%w: sig", common.ErrInvalidToken), codes.Unauthenticated, "invalid token"},
		{"fault", fmt.Errorf("%w: no key", common.ErrMisconfigured), codes.Internal, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ic := AccessTokenInterceptor(&fakeAuthn{err: tt.err}, nopLogger{}, protectedMethod)
			info := &grpc.UnaryServerInfo{FullMethod: protectedMethod}
			h := func(ctx context.Context, req interface{}) (interface{}, error) {
				t.Fatal("handler should not be called")
				return nil, nil
			}

			_, err := ic(withToken("tok"), nil, info, h)
			st := status.Convert(err)
			if st.Code() != tt.code || st.Message() != tt.message {
				t.Fatalf("got %v %q, want %v %q", st.Code(), st.Message(), tt.code, tt.message)
			}
		})
	}
}

func TestInterceptor_ValidToken_SetsUserID(t *testing.T) {
	authn := &fakeAuthn{claims: auth.AccessClaims{Subject: "user-123", Extra: map[string]any{"role": "admin"}}}
	ic := AccessTokenInterceptor(authn, nopLogger{}) // no methods: everything protected

	info := &grpc.UnaryServerInfo{FullMethod: "/any.Service/Method"}
	var (
		gotID     string
		gotClaims auth.AccessClaims
	)
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		gotID, _ = UserIDFromContext(ctx)
		gotClaims, _ = ClaimsFromContext(ctx)
		return "ok", nil
	}

	resp, err := ic(withToken("the-token"), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
	if authn.got != "the-token" {
		t.Fatalf("authenticator got %q", authn.got)
	}
	if gotID != "user-123" {
		t.Fatalf("user id not propagated in context: got %v", gotID)
	}
	if gotClaims.Extra["role"] != "admin" {
		t.Fatalf("claims not propagated: %+v", gotClaims)
	}
}

func TestUserIDFromContext_Empty(t *testing.T) {
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Fatal("expected no user id")
	}
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeStream) Context() context.Context { return f.ctx }

func TestStreamInterceptor(t *testing.T) {
	authn := &fakeAuthn{claims: auth.AccessClaims{Subject: "u1"}}
	ic := AccessTokenStreamInterceptor(authn, nopLogger{}, protectedMethod)
	info := &grpc.StreamServerInfo{FullMethod: protectedMethod}

	var gotID string
	err := ic(nil, &fakeStream{ctx: withToken("tok")}, info, func(srv interface{}, ss grpc.ServerStream) error {
		gotID, _ = UserIDFromContext(ss.Context())
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotID != "u1" {
		t.Fatalf("user id not propagated: %q", gotID)
	}

	err = ic(nil, &fakeStream{ctx: context.Background()}, info, func(interface{}, grpc.ServerStream) error {
		t.Fatal("handler should not be called")
		return nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}
