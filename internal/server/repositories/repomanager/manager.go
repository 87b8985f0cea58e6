package repomanager

import (
	"context"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/refreshtokens"
)

// TxFunc runs against a repository scoped to one unit of work.
type TxFunc func(ctx context.Context, repo refreshtokens.Repository) error

// RepositoryManager owns a storage backend and vends repositories bound to it.
type RepositoryManager interface {
	// RunMigrations prepares the backend schema (a no-op where none exists).
	RunMigrations(ctx context.Context) error

	RefreshTokens() refreshtokens.Repository

	// WithTx runs fn so that all of its writes commit or none do, where the
	// backend supports it.
	WithTx(ctx context.Context, fn TxFunc) error

	Close() error
}
