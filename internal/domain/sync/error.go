package sync

import (
	"errors"

	"tiklay/internal/domain/offline"
)

var (
	ErrAlreadyInProgress = errors.New("sync already in progress")
	ErrOffline           = errors.New("device is offline")
	ErrUnknownEntityType = errors.New("unknown entity type")

	ErrNotFound        = offline.ErrNotFound
	ErrInvalidArgument = offline.ErrInvalidArgument
)
