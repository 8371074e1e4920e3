package offline

import (
	"context"
	"encoding/json"
	"time"
)

// EntityStore локальные записи сущностей. Каждая локальная мутация
// атомарно ставит в очередь соответствующее намерение.
type EntityStore interface {
	// SaveEntity создает или перезаписывает сущность и ставит в очередь create.
	// Пустой id означает генерацию нового идентификатора.
	SaveEntity(ctx context.Context, entityType string, payload json.RawMessage, id string) (string, error)
	// UpdateEntity сливает partial с текущими данными и ставит в очередь update.
	UpdateEntity(ctx context.Context, entityType, id string, partial json.RawMessage) error
	// DeleteEntity удаляет запись и ставит в очередь delete.
	DeleteEntity(ctx context.Context, entityType, id string) error

	GetEntity(ctx context.Context, entityType, id string) (*Entity, error)
	FindByRemoteID(ctx context.Context, entityType, remoteID string) (*Entity, error)
	ListEntities(ctx context.Context, entityType string) ([]Entity, error)
	SearchEntities(ctx context.Context, entityType, query string, fields ...string) ([]Entity, error)
	ListPendingEntities(ctx context.Context) ([]Entity, error)

	// PutSynced записывает серверную версию без постановки намерения.
	PutSynced(ctx context.Context, entityType, id, remoteID string, payload json.RawMessage, modified time.Time) error
	MarkEntitySynced(ctx context.Context, entityType, id string) error
	// MarkEntitySyncedAt помечает запись синхронизированной, только если ее версия не изменилась.
	MarkEntitySyncedAt(ctx context.Context, entityType, id string, version int64) (bool, error)
	SetEntityStatus(ctx context.Context, entityType, id string, status SyncStatus) error
	// SetRemoteID сохраняет серверный идентификатор в записи и в ее незавершенных намерениях.
	SetRemoteID(ctx context.Context, entityType, id, remoteID string) error
}

// IntentQueue упорядоченная очередь намерений.
type IntentQueue interface {
	// ListPendingIntents возвращает незавершенные намерения в порядке создания.
	ListPendingIntents(ctx context.Context) ([]Intent, error)
	MarkIntentProcessing(ctx context.Context, id string) error
	MarkIntentCompleted(ctx context.Context, id string) error
	MarkIntentFailed(ctx context.Context, id, errMsg string, nextRetryAt time.Time) error
}

// ConflictRegistry реестр конфликтов.
type ConflictRegistry interface {
	// RecordConflict сохраняет конфликт и переводит сущность в статус conflict.
	RecordConflict(ctx context.Context, c Conflict) (string, error)
	GetConflict(ctx context.Context, id string) (*Conflict, error)
	ListUnresolvedConflicts(ctx context.Context) ([]Conflict, error)
	// ResolveConflict применяет выбранные данные к сущности и закрывает конфликт.
	// Для local и merged в очередь ставится update, чтобы сервер получил выбранную версию.
	ResolveConflict(ctx context.Context, id string, resolution Resolution, chosen json.RawMessage) error
}

// Store локальное хранилище целиком.
type Store interface {
	EntityStore
	IntentQueue
	ConflictRegistry

	Stats(ctx context.Context) (Stats, error)
	// Cleanup удаляет завершенные намерения и разрешенные конфликты старше before.
	// При maxRetries > 0 удаляет и намерения, исчерпавшие лимит повторов,
	// вместе с ожидающими за ними update и delete той же сущности.
	Cleanup(ctx context.Context, before time.Time, maxRetries int) (CleanupStats, error)
	Close() error
}
