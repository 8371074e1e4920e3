package sync

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"tiklay/internal/domain/connectivity"
)

// RemoteEntity запись в том виде, в каком ее вернул сервер.
// ModifiedAt может быть нулевым, если транспорт его не передает.
type RemoteEntity struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	ModifiedAt time.Time       `json:"modified_at"`
}

// Gateway CRUD-доступ к серверной коллекции одного типа сущностей
type Gateway interface {
	Create(ctx context.Context, payload json.RawMessage) (RemoteEntity, error)
	Update(ctx context.Context, id string, payload json.RawMessage) (RemoteEntity, error)
	// Delete сообщает, существовала ли запись на сервере
	Delete(ctx context.Context, id string) (bool, error)
	GetAll(ctx context.Context) ([]RemoteEntity, error)
}

// Gateways реестр шлюзов по типу сущности
type Gateways map[string]Gateway

// Types возвращает зарегистрированные типы в стабильном порядке
func (g Gateways) Types() []string {
	types := make([]string, 0, len(g))
	for t := range g {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Monitor источник сведений о доступности сети
type Monitor interface {
	IsOnline() bool
	Subscribe() (<-chan connectivity.Event, func())
}
