package sync

import (
	"time"
)

// Result итог одного прогона синхронизации
type Result struct {
	Success           bool          `json:"success" yaml:"success"`
	Uploaded          int           `json:"uploaded" yaml:"uploaded"`
	Downloaded        int           `json:"downloaded" yaml:"downloaded"`
	ConflictsDetected int           `json:"conflicts_detected" yaml:"conflicts_detected"`
	ConflictsResolved int           `json:"conflicts_resolved" yaml:"conflicts_resolved"`
	Errors            []SyncError   `json:"errors" yaml:"errors"`
	Duration          time.Duration `json:"duration" yaml:"duration"`
	StartTime         time.Time     `json:"start_time" yaml:"start_time"`
	EndTime           time.Time     `json:"end_time" yaml:"end_time"`
}

// SyncError ошибка отдельной операции внутри прогона
type SyncError struct {
	Phase      string    `json:"phase" yaml:"phase"`
	Operation  string    `json:"operation" yaml:"operation"`
	EntityType string    `json:"entity_type,omitempty" yaml:"entity_type,omitempty"`
	EntityID   string    `json:"entity_id,omitempty" yaml:"entity_id,omitempty"`
	IntentID   string    `json:"intent_id,omitempty" yaml:"intent_id,omitempty"`
	Error      string    `json:"error" yaml:"error"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
	Retry      bool      `json:"retry" yaml:"retry"`
}

func (r *Result) addError(e SyncError) {
	r.Errors = append(r.Errors, e)
}

func (r *Result) failed(phase string) bool {
	for _, e := range r.Errors {
		if e.Phase == phase {
			return true
		}
	}
	return false
}

// Status снимок состояния синхронизации для наблюдателей
type Status struct {
	LastSyncTime       time.Time `json:"last_sync_time" yaml:"last_sync_time"`
	IsOnline           bool      `json:"is_online" yaml:"is_online"`
	IsSyncing          bool      `json:"is_syncing" yaml:"is_syncing"`
	Phase              string    `json:"phase" yaml:"phase"`
	PendingUploadCount int       `json:"pending_upload_count" yaml:"pending_upload_count"`
	PendingIntentCount int       `json:"pending_intent_count" yaml:"pending_intent_count"`
	ConflictCount      int       `json:"conflict_count" yaml:"conflict_count"`
	LastError          string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}
