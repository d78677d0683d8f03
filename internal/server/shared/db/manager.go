package db

import (
	"context"
	"database/sql"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/entities"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/locks"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/refreshtokens"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context) error
	Conn() *sql.DB
	Users() users.Repository
	RefreshTokens() refreshtokens.Repository
	Entities() entities.Repository
	Locks() locks.Repository
}
