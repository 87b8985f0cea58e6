// Package refreshtokens declares the server-side repository contract for
// persisting refresh token records, with PostgreSQL and Redis backends.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// Repository stores refresh token records. Records are looked up by ID or by
// the hash of the raw token; the raw token itself is never stored.
type Repository interface {
	// Create stores a new record. The record's ID and TokenHash must be unique.
	Create(ctx context.Context, t *models.RefreshToken) error

	// FindByID returns common.ErrorNotFound when no record has the given ID.
	FindByID(ctx context.Context, id string) (*models.RefreshToken, error)

	// FindByHash returns common.ErrorNotFound when no record has the given hash.
	FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// Revoke persists the revocation of t, which must already be marked revoked.
	// If the stored record was revoked in the meantime it returns
	// common.ErrRefreshTokenRevoked; an unknown ID gives common.ErrorNotFound.
	Revoke(ctx context.Context, t *models.RefreshToken) error

	// RevokeAllForUser revokes every unrevoked record of userID and reports
	// how many were changed.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)

	// DeleteExpired removes records whose ExpiresAt is at or before the given
	// instant and reports how many were removed.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
