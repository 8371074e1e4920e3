package remote

import (
	"errors"
)

var (
	ErrNotFound       = errors.New("entity not found")
	ErrUnknownType    = errors.New("unknown entity type")
	ErrInvalidPayload = errors.New("payload must be a JSON object")
)
