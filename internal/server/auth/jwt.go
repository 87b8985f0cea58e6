package auth

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// JWTSigner implements Signer with HS256 JSON Web Tokens.
type JWTSigner struct {
	now    func() time.Time
	leeway time.Duration
}

// JWTOption configures a JWTSigner.
type JWTOption func(*JWTSigner)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) JWTOption {
	return func(s *JWTSigner) { s.now = now }
}

// WithLeeway tolerates clock skew when checking exp.
func WithLeeway(d time.Duration) JWTOption {
	return func(s *JWTSigner) { s.leeway = d }
}

func NewJWTSigner(opts ...JWTOption) *JWTSigner {
	s := &JWTSigner{now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sign copies claims, stamps iat (and iss/exp from opts) and signs with HS256.
func (s *JWTSigner) Sign(claims map[string]any, secret []byte, opts SignOptions) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("%w: empty signing secret", common.ErrMisconfigured)
	}

	now := s.now()
	mc := make(jwt.MapClaims, len(claims)+3)
	maps.Copy(mc, claims)
	mc[claimIssuedAt] = now.Unix()
	if opts.Issuer != "" {
		mc[claimIssuer] = opts.Issuer
	}
	switch {
	case !opts.ExpiresAt.IsZero():
		mc[claimExpiresAt] = opts.ExpiresAt.Unix()
	case opts.TTL > 0:
		mc[claimExpiresAt] = now.Add(opts.TTL).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mc)
	return token.SignedString(secret)
}

// Verify checks the signature first and the expiry second, so a forged token
// is always reported as invalid even when its exp is in the past.
func (s *JWTSigner) Verify(token string, secret []byte) (map[string]any, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty verification secret", common.ErrMisconfigured)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(s.leeway),
		jwt.WithStrictDecoding(),
	)

	claims := jwt.MapClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpiredSignal, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidSignal
	}

	return map[string]any(claims), nil
}
