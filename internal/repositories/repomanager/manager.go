package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/cryptchat/internal/dbx"
	"github.com/dmitrijs2005/cryptchat/internal/repositories/messages"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Messages(db dbx.DBTX) *messages.PostgresRepository
}
