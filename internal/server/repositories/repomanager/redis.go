package repomanager

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/refreshtokens"
	"github.com/redis/go-redis/v9"
)

// RedisRepositoryManager vends Redis-backed repositories. Redis has no
// multi-key rollback, so WithTx runs fn directly and relies on the
// repository's WATCH-guarded revocation for conflict detection.
type RedisRepositoryManager struct {
	client redis.UniversalClient
	repo   *refreshtokens.RedisRepository
}

// RedisOptions selects the Redis server and key namespace.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisRepositoryManager connects to Redis and verifies the connection.
func NewRedisRepositoryManager(ctx context.Context, opts RedisOptions) (RepositoryManager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisRepositoryManagerFromClient(client, opts.Prefix), nil
}

// NewRedisRepositoryManagerFromClient wraps an existing client. Close closes it.
func NewRedisRepositoryManagerFromClient(client redis.UniversalClient, prefix string) *RedisRepositoryManager {
	return &RedisRepositoryManager{
		client: client,
		repo:   refreshtokens.NewRedisRepository(client, prefix),
	}
}

// RunMigrations only checks connectivity; Redis needs no schema.
func (m *RedisRepositoryManager) RunMigrations(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func (m *RedisRepositoryManager) RefreshTokens() refreshtokens.Repository {
	return m.repo
}

func (m *RedisRepositoryManager) WithTx(ctx context.Context, fn TxFunc) error {
	return fn(ctx, m.repo)
}

func (m *RedisRepositoryManager) Close() error {
	return m.client.Close()
}
