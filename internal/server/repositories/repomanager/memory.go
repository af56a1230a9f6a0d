package repomanager

import (
	"context"
	"database/sql"

	"github.com/cateringhub/backoffice/internal/dbx"
	"github.com/cateringhub/backoffice/internal/server/repositories/events"
	"github.com/cateringhub/backoffice/internal/server/repositories/refreshtokens"
	"github.com/cateringhub/backoffice/internal/server/repositories/users"
)

// MemoryRepositoryManager hands out the same in-memory stores regardless of
// the DBTX it is given. Pair it with dbx.NopTransactor.
type MemoryRepositoryManager struct {
	users  *users.MemoryStore
	tokens *refreshtokens.MemoryStore
	events *events.MemoryStore
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		users:  users.NewMemoryStore(),
		tokens: refreshtokens.NewMemoryStore(),
		events: events.NewMemoryStore(),
	}
}

// RunMigrations is a no-op; the stores have no schema.
func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *MemoryRepositoryManager) Users(dbx.DBTX) users.Repository { return m.users }

func (m *MemoryRepositoryManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.tokens }

func (m *MemoryRepositoryManager) Events(dbx.DBTX) events.Repository { return m.events }
