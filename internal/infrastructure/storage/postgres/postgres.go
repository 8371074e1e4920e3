package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"tiklay/internal/app/server/config"
	"tiklay/internal/infrastructure/migration"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Storage struct {
	pool *pgxpool.Pool
}

// New применяет миграции и открывает пул соединений.
// Каталог MIGRATIONS_PATH, если задан, важнее встроенных миграций.
func New(ctx context.Context, cfg *config.Config) (*Storage, error) {
	var mg *migration.Migration
	if cfg.DB.Migrations != "" {
		mg = migration.NewMigration(migration.FileSource(cfg.DB.Migrations), cfg.DB.DatabaseURI, nil)
	} else {
		mg = migration.NewMigration("", cfg.DB.DatabaseURI, migration.EmbeddedEngine(migrations, "migrations"))
	}
	if err := mg.Up(); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DB.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Storage{pool: pool}, nil
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func (s *Storage) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping проверяет доступность базы для /health
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
