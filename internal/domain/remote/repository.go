package remote

import (
	"context"
)

// Repository хранилище записей, разделенных по типу
type Repository interface {
	List(ctx context.Context, entityType string) ([]Entity, error)
	Get(ctx context.Context, entityType, id string) (*Entity, error)
	Create(ctx context.Context, e *Entity) error
	// Update возвращает ErrNotFound, если записи нет
	Update(ctx context.Context, e *Entity) error
	// Delete сообщает, существовала ли запись
	Delete(ctx context.Context, entityType, id string) (bool, error)
}
