package refreshtokens

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key written by RedisRepository.
const DefaultRedisPrefix = "tokenkeeper:rt"

const (
	fieldUserID    = "user_id"
	fieldTokenHash = "token_hash"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
	fieldIsRevoked = "is_revoked"
	fieldRevokedAt = "revoked_at"

	redisTimeLayout = time.RFC3339Nano
	maxWatchRetries = 4
)

// RedisRepository implements Repository on Redis.
//
// Layout under prefix p:
//
//	p:id:<id>        hash with the record fields
//	p:hash:<hash>    string, the record id
//	p:user:<userID>  set of record ids
//	p:expiry         sorted set of record ids scored by expiry (unix ms)
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) idKey(id string) string       { return r.prefix + ":id:" + id }
func (r *RedisRepository) hashKey(hash string) string   { return r.prefix + ":hash:" + hash }
func (r *RedisRepository) userKey(userID string) string { return r.prefix + ":user:" + userID }
func (r *RedisRepository) expiryKey() string            { return r.prefix + ":expiry" }

func (r *RedisRepository) Create(ctx context.Context, t *models.RefreshToken) error {
	ok, err := r.client.SetNX(ctx, r.hashKey(t.TokenHash), t.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	if !ok {
		return fmt.Errorf("refresh token hash already stored")
	}

	fields := map[string]any{
		fieldUserID:    t.UserID,
		fieldTokenHash: t.TokenHash,
		fieldCreatedAt: t.CreatedAt.UTC().Format(redisTimeLayout),
		fieldExpiresAt: t.ExpiresAt.UTC().Format(redisTimeLayout),
		fieldIsRevoked: formatBool(t.IsRevoked),
	}
	if t.RevokedAt != nil {
		fields[fieldRevokedAt] = t.RevokedAt.UTC().Format(redisTimeLayout)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.idKey(t.ID), fields)
		pipe.SAdd(ctx, r.userKey(t.UserID), t.ID)
		pipe.ZAdd(ctx, r.expiryKey(), redis.Z{Score: float64(t.ExpiresAt.UnixMilli()), Member: t.ID})
		return nil
	})
	if err != nil {
		r.client.Del(ctx, r.hashKey(t.TokenHash))
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *RedisRepository) FindByID(ctx context.Context, id string) (*models.RefreshToken, error) {
	vals, err := r.client.HGetAll(ctx, r.idKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if len(vals) == 0 {
		return nil, common.ErrorNotFound
	}
	return decodeRecord(id, vals)
}

func (r *RedisRepository) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	id, err := r.client.Get(ctx, r.hashKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}
	return r.FindByID(ctx, id)
}

// Revoke watches the record so that a concurrent revocation aborts this one.
func (r *RedisRepository) Revoke(ctx context.Context, t *models.RefreshToken) error {
	if !t.IsRevoked || t.RevokedAt == nil {
		return fmt.Errorf("refresh token %s is not marked revoked", t.ID)
	}
	return r.revokeID(ctx, t.ID, *t.RevokedAt)
}

func (r *RedisRepository) revokeID(ctx context.Context, id string, at time.Time) error {
	key := r.idKey(id)

	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			revoked, err := tx.HGet(ctx, key, fieldIsRevoked).Result()
			if err != nil {
				return err
			}
			if revoked == formatBool(true) {
				return common.ErrRefreshTokenRevoked
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key,
					fieldIsRevoked, formatBool(true),
					fieldRevokedAt, at.UTC().Format(redisTimeLayout),
				)
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, redis.Nil):
			return common.ErrorNotFound
		case errors.Is(err, common.ErrRefreshTokenRevoked):
			return err
		default:
			return fmt.Errorf("redis error: %w", err)
		}
	}

	return common.ErrRefreshTokenRevoked
}

func (r *RedisRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	ids, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}

	var n int64
	for _, id := range ids {
		err := r.revokeID(ctx, id, at)
		switch {
		case err == nil:
			n++
		case errors.Is(err, common.ErrRefreshTokenRevoked), errors.Is(err, common.ErrorNotFound):
		default:
			return n, err
		}
	}
	return n, nil
}

func (r *RedisRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}

	var n int64
	for _, id := range ids {
		vals, err := r.client.HMGet(ctx, r.idKey(id), fieldUserID, fieldTokenHash).Result()
		if err != nil {
			return n, fmt.Errorf("redis error: %w", err)
		}
		userID, _ := vals[0].(string)
		tokenHash, _ := vals[1].(string)

		_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, r.idKey(id))
			if tokenHash != "" {
				pipe.Del(ctx, r.hashKey(tokenHash))
			}
			if userID != "" {
				pipe.SRem(ctx, r.userKey(userID), id)
			}
			pipe.ZRem(ctx, r.expiryKey(), id)
			return nil
		})
		if err != nil {
			return n, fmt.Errorf("redis error: %w", err)
		}
		n++
	}
	return n, nil
}

func decodeRecord(id string, vals map[string]string) (*models.RefreshToken, error) {
	createdAt, err := time.Parse(redisTimeLayout, vals[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fieldCreatedAt, err)
	}
	expiresAt, err := time.Parse(redisTimeLayout, vals[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fieldExpiresAt, err)
	}

	isRevoked := vals[fieldIsRevoked] == formatBool(true)
	var revokedAt *time.Time
	if s, ok := vals[fieldRevokedAt]; ok && s != "" {
		ts, err := time.Parse(redisTimeLayout, s)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", fieldRevokedAt, err)
		}
		revokedAt = &ts
	}

	return models.ReconstituteRefreshToken(id, vals[fieldUserID], vals[fieldTokenHash], expiresAt, createdAt, isRevoked, revokedAt), nil
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
