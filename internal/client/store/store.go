// Package store opens the local SQLite database, applies migrations and
// bundles the client-side repositories.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/migrations"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/repositories/checkpoints"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/repositories/conflicts"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/repositories/entities"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/repositories/queue"
)

// Repositories bundles the client-side persistence layer around one DB
// handle. All repositories share the same connection so a page of pulled
// changes and its checkpoint can commit in one transaction.
type Repositories struct {
	DB          *sql.DB
	Queue       queue.Repository
	Entities    entities.Repository
	Checkpoints checkpoints.Repository
	Conflicts   conflicts.Repository
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens (creating if needed) the SQLite database at dsn, runs
// migrations and returns the repository bundle.
func Open(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repositories{
		DB:          db,
		Queue:       queue.NewSQLiteRepository(db),
		Entities:    entities.NewSQLiteRepository(db),
		Checkpoints: checkpoints.NewSQLiteRepository(db),
		Conflicts:   conflicts.NewSQLiteRepository(db),
	}, nil
}

// Close closes the underlying database.
func (r *Repositories) Close() error {
	return r.DB.Close()
}
