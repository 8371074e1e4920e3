package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/exp/slog"

	"tiklay/internal/domain/remote"
)

var _ remote.Repository = (*EntityRepository)(nil)

type EntityRepository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewEntityRepository(pool *pgxpool.Pool, log *slog.Logger) *EntityRepository {
	return &EntityRepository{
		pool: pool,
		log:  log.With("component", "entity_repository"),
	}
}

func (r *EntityRepository) List(ctx context.Context, entityType string) ([]remote.Entity, error) {
	const query = `
		SELECT id, entity_type, payload, created_at, updated_at
		FROM entities
		WHERE entity_type = $1
		ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, entityType)
	if err != nil {
		r.log.Error("failed to list entities", "entity_type", entityType, "error", err)
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	entities := make([]remote.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}

	return entities, nil
}

func (r *EntityRepository) Get(ctx context.Context, entityType, id string) (*remote.Entity, error) {
	const query = `
		SELECT id, entity_type, payload, created_at, updated_at
		FROM entities
		WHERE entity_type = $1 AND id = $2`

	e, err := scanEntity(r.pool.QueryRow(ctx, query, entityType, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, remote.ErrNotFound
		}
		r.log.Error("failed to get entity", "entity_type", entityType, "id", id, "error", err)
		return nil, fmt.Errorf("get entity: %w", err)
	}

	return e, nil
}

func (r *EntityRepository) Create(ctx context.Context, e *remote.Entity) error {
	const query = `
		INSERT INTO entities (entity_type, id, payload, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, $5)`

	if _, err := r.pool.Exec(ctx, query, e.Type, e.ID, string(e.Payload), e.CreatedAt, e.UpdatedAt); err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}

	return nil
}

func (r *EntityRepository) Update(ctx context.Context, e *remote.Entity) error {
	const query = `
		UPDATE entities
		SET payload = $3::jsonb, updated_at = $4
		WHERE entity_type = $1 AND id = $2`

	tag, err := r.pool.Exec(ctx, query, e.Type, e.ID, string(e.Payload), e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return remote.ErrNotFound
	}

	return nil
}

func (r *EntityRepository) Delete(ctx context.Context, entityType, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM entities WHERE entity_type = $1 AND id = $2`, entityType, id)
	if err != nil {
		return false, fmt.Errorf("delete entity: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func scanEntity(row pgx.Row) (*remote.Entity, error) {
	var (
		e       remote.Entity
		payload []byte
	)
	if err := row.Scan(&e.ID, &e.Type, &payload, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Payload = payload
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()

	return &e, nil
}
