// Package repomanager vends repository implementations bound to a DBTX and
// runs schema migrations. PostgresRepositoryManager is used in production;
// MemoryRepositoryManager backs the --store memory mode and tests.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/cateringhub/backoffice/internal/dbx"
	"github.com/cateringhub/backoffice/internal/server/repositories/events"
	"github.com/cateringhub/backoffice/internal/server/repositories/refreshtokens"
	"github.com/cateringhub/backoffice/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Events(db dbx.DBTX) events.Repository
}
