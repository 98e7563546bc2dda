// Package repomanager wires repository constructors together so services
// can obtain repositories bound to either the pool or an open transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/filekeeper/internal/dbx"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/audit"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/blobs"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/facts"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/files"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/sessions"
)

// RepositoryManager vends repositories bound to the provided DBTX, so the
// same call works with *sql.DB for autocommit reads and with *sql.Tx inside
// dbx.WithTx for multi-statement operations.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Blobs(db dbx.DBTX) blobs.Repository
	Files(db dbx.DBTX) files.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Audit(db dbx.DBTX) audit.Repository
	Facts(db dbx.DBTX) facts.Repository
}
