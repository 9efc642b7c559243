package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/keyforge/internal/dbx"
	"github.com/dmitrijs2005/keyforge/internal/server/repositories/apikeys"
	"github.com/dmitrijs2005/keyforge/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to either a *sql.DB or a
// *sql.Tx, so services can group calls into one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	APIKeys(db dbx.DBTX) apikeys.Repository
}
