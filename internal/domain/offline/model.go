package offline

import (
	"encoding/json"
	"time"
)

// SyncStatus состояние локальной записи относительно сервера
type SyncStatus string

const (
	StatusPending  SyncStatus = "pending"
	StatusSynced   SyncStatus = "synced"
	StatusConflict SyncStatus = "conflict"
	StatusError    SyncStatus = "error"
)

// IntentKind тип отложенной удаленной операции
type IntentKind string

const (
	KindCreate IntentKind = "create"
	KindUpdate IntentKind = "update"
	KindDelete IntentKind = "delete"
)

// IntentStatus состояние намерения в очереди
type IntentStatus string

const (
	IntentPending    IntentStatus = "pending"
	IntentProcessing IntentStatus = "processing"
	IntentCompleted  IntentStatus = "completed"
	IntentFailed     IntentStatus = "failed"
)

// Resolution способ разрешения конфликта
type Resolution string

const (
	ResolutionLocal  Resolution = "local"
	ResolutionRemote Resolution = "remote"
	ResolutionMerged Resolution = "merged"
)

// Valid проверяет, что значение входит в допустимый набор.
func (r Resolution) Valid() bool {
	switch r {
	case ResolutionLocal, ResolutionRemote, ResolutionMerged:
		return true
	}
	return false
}

// Entity локальная копия бизнес-сущности
type Entity struct {
	ID           string          `json:"id" yaml:"id"`
	Type         string          `json:"entity_type" yaml:"entity_type"`
	RemoteID     string          `json:"remote_id,omitempty" yaml:"remote_id,omitempty"`
	Payload      json.RawMessage `json:"payload" yaml:"-"`
	Checksum     string          `json:"checksum" yaml:"checksum"`
	Version      int64           `json:"version" yaml:"version"`
	LastModified time.Time       `json:"last_modified" yaml:"last_modified"`
	SyncStatus   SyncStatus      `json:"sync_status" yaml:"sync_status"`
}

// Intent отложенная удаленная операция над сущностью.
// EntityVersion фиксирует версию записи в момент постановки в очередь.
type Intent struct {
	ID            string          `json:"id"`
	Seq           int64           `json:"seq"`
	Kind          IntentKind      `json:"kind"`
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	RemoteID      string          `json:"remote_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	EntityVersion int64           `json:"entity_version"`
	CreatedAt     time.Time       `json:"created_at"`
	Status        IntentStatus    `json:"status"`
	RetryCount    int             `json:"retry_count"`
	LastError     string          `json:"last_error,omitempty"`
	NextRetryAt   time.Time       `json:"next_retry_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// Target идентификатор, по которому операция адресуется на сервере.
func (i Intent) Target() string {
	if i.RemoteID != "" {
		return i.RemoteID
	}
	return i.EntityID
}

// Conflict расхождение локальной и серверной версии сущности
type Conflict struct {
	ID             string          `json:"id"`
	EntityType     string          `json:"entity_type"`
	EntityID       string          `json:"entity_id"`
	LocalPayload   json.RawMessage `json:"local_payload"`
	RemotePayload  json.RawMessage `json:"remote_payload"`
	LocalModified  time.Time       `json:"local_modified"`
	RemoteModified time.Time       `json:"remote_modified,omitempty"`
	DetectedAt     time.Time       `json:"detected_at"`
	Resolved       bool            `json:"resolved"`
	Resolution     Resolution      `json:"resolution,omitempty"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

// Stats сводка по локальному хранилищу
type Stats struct {
	TotalEntities   int `json:"total_entities"`
	PendingEntities int `json:"pending_entities"`
	PendingIntents  int `json:"pending_intents"`
	OpenConflicts   int `json:"open_conflicts"`
}

// CleanupStats сколько записей удалено при очистке
type CleanupStats struct {
	Intents   int64 `json:"intents"`
	Abandoned int64 `json:"abandoned"`
	Conflicts int64 `json:"conflicts"`
}
