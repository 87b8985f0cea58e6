package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is the stored state of one issued refresh credential.
//
// ID, UserID, TokenHash, CreatedAt and ExpiresAt never change after
// construction. IsRevoked only goes from false to true, and RevokedAt is set
// exactly when it does. The raw token is never kept here, only its hash.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	IsRevoked bool
	RevokedAt *time.Time
}

// NewRefreshToken creates an unrevoked record with a fresh ID, created now.
func NewRefreshToken(userID, tokenHash string, expiresAt time.Time) *RefreshToken {
	return NewRefreshTokenAt(userID, tokenHash, expiresAt, time.Now())
}

// NewRefreshTokenAt is NewRefreshToken with an explicit creation time.
func NewRefreshTokenAt(userID, tokenHash string, expiresAt, createdAt time.Time) *RefreshToken {
	return &RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}
}

// ReconstituteRefreshToken rebuilds a record loaded from storage. Storage is
// trusted, so the fields are taken verbatim.
func ReconstituteRefreshToken(id, userID, tokenHash string, expiresAt, createdAt time.Time, isRevoked bool, revokedAt *time.Time) *RefreshToken {
	return &RefreshToken{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
		IsRevoked: isRevoked,
		RevokedAt: revokedAt,
	}
}

// Revoke marks the record revoked now. It must be called before the record
// is written back for the revocation to take effect in storage.
func (t *RefreshToken) Revoke() {
	t.RevokeAt(time.Now())
}

// RevokeAt marks the record revoked at the given instant. Revoking an already
// revoked record keeps the original RevokedAt.
func (t *RefreshToken) RevokeAt(at time.Time) {
	if t.IsRevoked {
		return
	}
	t.IsRevoked = true
	t.RevokedAt = &at
}

// IsValid reports whether the record is unrevoked and not yet expired.
func (t *RefreshToken) IsValid() bool {
	return t.IsValidAt(time.Now())
}

func (t *RefreshToken) IsValidAt(now time.Time) bool {
	return !t.IsRevoked && now.Before(t.ExpiresAt)
}

// IsExpired reports whether ExpiresAt has been reached, regardless of
// revocation.
func (t *RefreshToken) IsExpired() bool {
	return t.IsExpiredAt(time.Now())
}

func (t *RefreshToken) IsExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
