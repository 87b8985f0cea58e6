package auth

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/cryptox"
	"github.com/google/uuid"
)

// DefaultAccessTokenTTL is used when Config.AccessTokenTTL is zero.
const DefaultAccessTokenTTL = 15 * time.Minute

// Config is injected into NewGateway; the gateway never reads the
// environment itself.
type Config struct {
	AccessSecret    []byte
	RefreshSecret   []byte
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// IssuedRefreshToken is a freshly signed refresh token. Token goes to the
// client, TokenHash to storage.
type IssuedRefreshToken struct {
	Token     string
	TokenHash string
	ExpiresAt time.Time
	TokenID   string
}

// VerifiedRefreshToken is the decoded content of a refresh token that passed
// signature, expiry and type checks. Token echoes the raw input.
type VerifiedRefreshToken struct {
	UserID  string
	Token   string
	TokenID string
}

// Gateway issues and verifies access and refresh tokens. It holds no mutable
// state and is safe for concurrent use.
type Gateway struct {
	cfg    Config
	signer Signer
	hasher cryptox.Hasher
}

func NewGateway(cfg Config, signer Signer, hasher cryptox.Hasher) (*Gateway, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, fmt.Errorf("%w: access and refresh secrets are required", common.ErrMisconfigured)
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, fmt.Errorf("%w: access and refresh secrets must differ", common.ErrMisconfigured)
	}
	if signer == nil || hasher == nil {
		return nil, fmt.Errorf("%w: signer and hasher are required", common.ErrMisconfigured)
	}
	if cfg.AccessTokenTTL < 0 || cfg.RefreshTokenTTL < 0 {
		return nil, fmt.Errorf("%w: negative token lifetime", common.ErrMisconfigured)
	}

	if cfg.Issuer == "" {
		cfg.Issuer = common.DefaultIssuer
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = common.RefreshTokenHorizon
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.AccessSecret = bytes.Clone(cfg.AccessSecret)
	cfg.RefreshSecret = bytes.Clone(cfg.RefreshSecret)

	return &Gateway{cfg: cfg, signer: signer, hasher: hasher}, nil
}

// Issuer returns the issuer embedded into access tokens.
func (g *Gateway) Issuer() string { return g.cfg.Issuer }

// Hash exposes the configured hasher so callers look records up with the
// same digest that GenerateRefreshToken produced.
func (g *Gateway) Hash(token string) string { return g.hasher.Hash(token) }

func (g *Gateway) GenerateAccessToken(claims AccessClaims) (string, error) {
	return g.signer.Sign(claims.ToMap(), g.cfg.AccessSecret, SignOptions{
		Issuer: g.cfg.Issuer,
		TTL:    g.cfg.AccessTokenTTL,
	})
}

// GenerateRefreshToken signs a refresh token for userID. Every call embeds a
// new random jti, so two tokens for the same user never collide.
func (g *Gateway) GenerateRefreshToken(userID string) (*IssuedRefreshToken, error) {
	// Whole seconds, matching the precision of the embedded exp claim.
	expiresAt := g.cfg.Now().Add(g.cfg.RefreshTokenTTL).Truncate(time.Second)
	jti := uuid.NewString()

	token, err := g.signer.Sign(map[string]any{
		claimSubject: userID,
		claimType:    refreshTokenType,
		claimTokenID: jti,
	}, g.cfg.RefreshSecret, SignOptions{ExpiresAt: expiresAt})
	if err != nil {
		return nil, err
	}

	return &IssuedRefreshToken{
		Token:     token,
		TokenHash: g.hasher.Hash(token),
		ExpiresAt: expiresAt,
		TokenID:   jti,
	}, nil
}

func (g *Gateway) VerifyAccessToken(token string) (AccessClaims, error) {
	raw, err := g.signer.Verify(token, g.cfg.AccessSecret)
	if err != nil {
		return AccessClaims{}, classify(err)
	}

	if iss, _ := raw[claimIssuer].(string); iss != g.cfg.Issuer {
		return AccessClaims{}, fmt.Errorf("%w: unexpected issuer %q", common.ErrInvalidToken, iss)
	}
	if typ, _ := raw[claimType].(string); typ == refreshTokenType {
		return AccessClaims{}, fmt.Errorf("%w: refresh token used as access token", common.ErrInvalidToken)
	}

	claims, err := AccessClaimsFromMap(raw)
	if err != nil {
		return AccessClaims{}, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	return claims, nil
}

func (g *Gateway) VerifyRefreshToken(token string) (*VerifiedRefreshToken, error) {
	raw, err := g.signer.Verify(token, g.cfg.RefreshSecret)
	if err != nil {
		return nil, classify(err)
	}

	if typ, _ := raw[claimType].(string); typ != refreshTokenType {
		return nil, fmt.Errorf("%w: not a refresh token", common.ErrInvalidToken)
	}
	sub, _ := raw[claimSubject].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing subject claim", common.ErrInvalidToken)
	}
	jti, _ := raw[claimTokenID].(string)

	return &VerifiedRefreshToken{UserID: sub, Token: token, TokenID: jti}, nil
}

// classify maps a signer failure onto exactly one gateway outcome.
func classify(err error) error {
	switch {
	case errors.Is(err, common.ErrMisconfigured):
		return err
	case isExpirySignal(err):
		return fmt.Errorf("%w: %v", common.ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
}
