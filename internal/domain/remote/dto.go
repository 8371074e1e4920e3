package remote

import (
	"encoding/json"
	"time"
)

// EntityResponse запись в ответах API; тот же формат разбирает клиентский шлюз
type EntityResponse struct {
	ID        string          `json:"id"`
	Type      string          `json:"entity_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type ListResponse struct {
	Items []EntityResponse `json:"items"`
	Total int              `json:"total"`
}

type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

func toResponse(e Entity) EntityResponse {
	return EntityResponse{
		ID:        e.ID,
		Type:      e.Type,
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}
