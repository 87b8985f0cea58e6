// Package services holds the session orchestration built on top of the token
// gateway and the refresh token store.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/repomanager"
)

type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshTokenID   string
	RefreshExpiresAt time.Time
}

// SessionService issues token pairs, rotates refresh tokens and revokes them.
type SessionService struct {
	gateway     *auth.Gateway
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	now         func() time.Time
}

func NewSessionService(g *auth.Gateway, m repomanager.RepositoryManager, logger logging.Logger) *SessionService {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &SessionService{
		gateway:     g,
		repomanager: m,
		logger:      logger,
		now:         time.Now,
	}
}

// Issue creates an access token for claims and a persisted refresh token for
// claims.Subject.
func (s *SessionService) Issue(ctx context.Context, claims auth.AccessClaims) (*TokenPair, error) {
	if claims.Subject == "" {
		return nil, fmt.Errorf("empty subject")
	}

	access, err := s.gateway.GenerateAccessToken(claims)
	if err != nil {
		return nil, fmt.Errorf("error generating access token: %w", err)
	}

	issued, record, err := s.issueRefresh(ctx, s.repomanager.RefreshTokens(), claims.Subject)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "token pair issued", "user_id", claims.Subject, "token_id", record.ID)
	return pairOf(access, issued, record), nil
}

// Refresh exchanges a valid refresh token for a new pair. The presented token
// is revoked in the same unit of work that stores its replacement. Presenting
// an already revoked token is treated as theft: every token of the user is
// revoked.
func (s *SessionService) Refresh(ctx context.Context, rawRefresh string) (*TokenPair, error) {
	verified, err := s.gateway.VerifyRefreshToken(rawRefresh)
	if err != nil {
		s.logger.Debug(ctx, "refresh token rejected", "outcome", auth.OutcomeOf(err).String(), "error", err)
		return nil, err
	}

	repo := s.repomanager.RefreshTokens()
	record, err := repo.FindByHash(ctx, s.gateway.Hash(rawRefresh))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: unknown refresh token", common.ErrInvalidToken)
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}
	if record.UserID != verified.UserID {
		return nil, fmt.Errorf("%w: subject mismatch", common.ErrInvalidToken)
	}

	now := s.now()
	if record.IsRevoked {
		n, err := repo.RevokeAllForUser(ctx, record.UserID, now)
		if err != nil {
			s.logger.Error(ctx, "revoking tokens after reuse failed", "user_id", record.UserID, "error", err)
			return nil, fmt.Errorf("error revoking user tokens: %w", err)
		}
		s.logger.Warn(ctx, "refresh token reuse detected", "user_id", record.UserID, "token_id", record.ID, "revoked", n)
		return nil, common.ErrRefreshTokenRevoked
	}
	if record.IsExpiredAt(now) {
		return nil, common.ErrTokenExpired
	}

	access, err := s.gateway.GenerateAccessToken(auth.AccessClaims{Subject: record.UserID})
	if err != nil {
		return nil, fmt.Errorf("error generating access token: %w", err)
	}

	var (
		issued *auth.IssuedRefreshToken
		next   *models.RefreshToken
	)
	err = s.repomanager.WithTx(ctx, func(ctx context.Context, repo refreshtokens.Repository) error {
		record.RevokeAt(now)
		if err := repo.Revoke(ctx, record); err != nil {
			return err
		}
		var err error
		issued, next, err = s.issueRefresh(ctx, repo, record.UserID)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrRefreshTokenRevoked) {
			s.logger.Warn(ctx, "concurrent refresh lost", "user_id", record.UserID, "token_id", record.ID)
			return nil, err
		}
		return nil, fmt.Errorf("error rotating refresh token: %w", err)
	}

	s.logger.Info(ctx, "refresh token rotated", "user_id", record.UserID, "old_token_id", record.ID, "token_id", next.ID)
	return pairOf(access, issued, next), nil
}

// Revoke is logout. It is idempotent and also accepts expired tokens, as
// long as the signature is genuine.
func (s *SessionService) Revoke(ctx context.Context, rawRefresh string) error {
	if _, err := s.gateway.VerifyRefreshToken(rawRefresh); err != nil && !errors.Is(err, common.ErrTokenExpired) {
		return err
	}

	repo := s.repomanager.RefreshTokens()
	record, err := repo.FindByHash(ctx, s.gateway.Hash(rawRefresh))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return fmt.Errorf("error searching refresh token: %w", err)
	}
	if record.IsRevoked {
		return nil
	}

	record.RevokeAt(s.now())
	if err := repo.Revoke(ctx, record); err != nil {
		if errors.Is(err, common.ErrRefreshTokenRevoked) || errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return fmt.Errorf("error revoking refresh token: %w", err)
	}

	s.logger.Info(ctx, "refresh token revoked", "user_id", record.UserID, "token_id", record.ID)
	return nil
}

func (s *SessionService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.repomanager.RefreshTokens().RevokeAllForUser(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("error revoking user tokens: %w", err)
	}
	s.logger.Info(ctx, "user tokens revoked", "user_id", userID, "revoked", n)
	return n, nil
}

// Authenticate verifies an access token. Errors are the gateway's.
func (s *SessionService) Authenticate(ctx context.Context, accessToken string) (auth.AccessClaims, error) {
	claims, err := s.gateway.VerifyAccessToken(accessToken)
	if err != nil {
		s.logger.Debug(ctx, "access token rejected", "outcome", auth.OutcomeOf(err).String(), "error", err)
		return auth.AccessClaims{}, err
	}
	return claims, nil
}

// PurgeExpired deletes records whose expiry has passed.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repomanager.RefreshTokens().DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("error purging refresh tokens: %w", err)
	}
	s.logger.Info(ctx, "expired refresh tokens purged", "deleted", n)
	return n, nil
}

func (s *SessionService) issueRefresh(ctx context.Context, repo refreshtokens.Repository, userID string) (*auth.IssuedRefreshToken, *models.RefreshToken, error) {
	issued, err := s.gateway.GenerateRefreshToken(userID)
	if err != nil {
		return nil, nil, fmt.Errorf("error generating refresh token: %w", err)
	}

	record := models.NewRefreshTokenAt(userID, issued.TokenHash, issued.ExpiresAt, s.now())
	if err := repo.Create(ctx, record); err != nil {
		return nil, nil, fmt.Errorf("error storing refresh token: %w", err)
	}
	return issued, record, nil
}

func pairOf(access string, issued *auth.IssuedRefreshToken, record *models.RefreshToken) *TokenPair {
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     issued.Token,
		RefreshTokenID:   record.ID,
		RefreshExpiresAt: record.ExpiresAt,
	}
}
