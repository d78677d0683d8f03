package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/entities"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/locks"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/migrations"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/refreshtokens"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/users"
)

type PostgresRepositoryManager struct {
	db            *sql.DB
	users         users.Repository
	refreshTokens refreshtokens.Repository
	entities      entities.Repository
	locks         locks.Repository
}

func (m *PostgresRepositoryManager) Conn() *sql.DB {
	return m.db
}

func (m *PostgresRepositoryManager) Users() users.Repository {
	return m.users
}

func (m *PostgresRepositoryManager) RefreshTokens() refreshtokens.Repository {
	return m.refreshTokens
}

func (m *PostgresRepositoryManager) Entities() entities.Repository {
	return m.entities
}

func (m *PostgresRepositoryManager) Locks() locks.Repository {
	return m.locks
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.UpContext(ctx, m.db, ".")
}

func NewPostgresRepositoryManager(dsn string) (RepositoryManager, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	userRepo, err := users.NewPostgresRepository(db)
	if err != nil {
		return nil, fmt.Errorf("user repo creation error: %w", err)
	}

	tokenRepo, err := refreshtokens.NewPostgresRepository(db)
	if err != nil {
		return nil, fmt.Errorf("refresh token repo creation error: %w", err)
	}

	entityRepo, err := entities.NewPostgresRepository(db)
	if err != nil {
		return nil, fmt.Errorf("entity repo creation error: %w", err)
	}

	lockRepo, err := locks.NewPostgresRepository(db)
	if err != nil {
		return nil, fmt.Errorf("lock repo creation error: %w", err)
	}

	return &PostgresRepositoryManager{
		db:            db,
		users:         userRepo,
		refreshTokens: tokenRepo,
		entities:      entityRepo,
		locks:         lockRepo,
	}, nil
}
