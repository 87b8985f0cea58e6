package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `id, user_id, token_hash, created_at, expires_at, is_revoked, revoked_at`

func (r *PostgresRepository) Create(ctx context.Context, t *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, created_at, expires_at, is_revoked, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query,
		t.ID, t.UserID, t.TokenHash, t.CreatedAt, t.ExpiresAt, t.IsRevoked, nullTime(t.RevokedAt),
	); err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.RefreshToken, error) {
	query := `SELECT ` + selectColumns + `
		FROM refresh_tokens
		WHERE id = $1
	`
	return r.findOne(ctx, query, id)
}

func (r *PostgresRepository) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `SELECT ` + selectColumns + `
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	return r.findOne(ctx, query, tokenHash)
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg any) (*models.RefreshToken, error) {
	var (
		id, userID, tokenHash string
		createdAt, expiresAt  time.Time
		isRevoked             bool
		revokedAt             sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&id, &userID, &tokenHash, &createdAt, &expiresAt, &isRevoked, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	var ra *time.Time
	if revokedAt.Valid {
		ra = &revokedAt.Time
	}
	return models.ReconstituteRefreshToken(id, userID, tokenHash, expiresAt, createdAt, isRevoked, ra), nil
}

// Revoke only flips rows that are still unrevoked, so of two concurrent
// callers exactly one succeeds.
func (r *PostgresRepository) Revoke(ctx context.Context, t *models.RefreshToken) error {
	if !t.IsRevoked || t.RevokedAt == nil {
		return fmt.Errorf("refresh token %s is not marked revoked", t.ID)
	}

	query := `
		UPDATE refresh_tokens
		SET is_revoked = TRUE, revoked_at = $2
		WHERE id = $1 AND is_revoked = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, t.ID, *t.RevokedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing updated: either the row is gone or someone else revoked it.
	var revoked bool
	err = r.db.QueryRowContext(ctx, `SELECT is_revoked FROM refresh_tokens WHERE id = $1`, t.ID).Scan(&revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return common.ErrRefreshTokenRevoked
}

func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET is_revoked = TRUE, revoked_at = $2
		WHERE user_id = $1 AND is_revoked = FALSE
	`
	return r.execCount(ctx, query, userID, at)
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at <= $1
	`
	return r.execCount(ctx, query, before)
}

func (r *PostgresRepository) execCount(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
