package remote

import (
	"encoding/json"
	"time"
)

// Entity запись в системе учета. Payload хранится как есть, сервер его не интерпретирует.
type Entity struct {
	ID        string
	Type      string
	Payload   json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}
