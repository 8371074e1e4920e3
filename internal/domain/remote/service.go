package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"tiklay/internal/domain/payload"
)

type Servicer interface {
	Types() []string
	List(ctx context.Context, entityType string) (ListResponse, error)
	Get(ctx context.Context, entityType, id string) (EntityResponse, error)
	Create(ctx context.Context, entityType string, data json.RawMessage) (EntityResponse, error)
	Update(ctx context.Context, entityType, id string, partial json.RawMessage) (EntityResponse, error)
	Delete(ctx context.Context, entityType, id string) (bool, error)
}

// Service система учета для обобщенного CRUD по типам сущностей
type Service struct {
	repo  Repository
	types map[string]struct{}
	log   *slog.Logger
	now   func() time.Time
}

func NewService(repo Repository, types []string, log *slog.Logger) *Service {
	known := make(map[string]struct{}, len(types))
	for _, t := range types {
		known[t] = struct{}{}
	}

	return &Service{
		repo:  repo,
		types: known,
		log:   log.With("component", "remote_service"),
		now:   time.Now,
	}
}

// Types обслуживаемые типы в алфавитном порядке
func (s *Service) Types() []string {
	out := make([]string, 0, len(s.types))
	for t := range s.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (s *Service) List(ctx context.Context, entityType string) (ListResponse, error) {
	if err := s.checkType(entityType); err != nil {
		return ListResponse{}, err
	}

	entities, err := s.repo.List(ctx, entityType)
	if err != nil {
		s.log.Error("failed to list entities", "entity_type", entityType, "error", err)
		return ListResponse{}, fmt.Errorf("list %s: %w", entityType, err)
	}

	items := make([]EntityResponse, 0, len(entities))
	for _, e := range entities {
		items = append(items, toResponse(e))
	}

	return ListResponse{Items: items, Total: len(items)}, nil
}

func (s *Service) Get(ctx context.Context, entityType, id string) (EntityResponse, error) {
	if err := s.checkType(entityType); err != nil {
		return EntityResponse{}, err
	}

	e, err := s.repo.Get(ctx, entityType, id)
	if err != nil {
		return EntityResponse{}, err
	}

	return toResponse(*e), nil
}

func (s *Service) Create(ctx context.Context, entityType string, data json.RawMessage) (EntityResponse, error) {
	if err := s.checkType(entityType); err != nil {
		return EntityResponse{}, err
	}
	if _, err := payload.Object(data); err != nil || payload.IsNull(data) {
		return EntityResponse{}, ErrInvalidPayload
	}

	now := s.now().UTC()
	e := &Entity{
		ID:        uuid.NewString(),
		Type:      entityType,
		Payload:   data,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, e); err != nil {
		s.log.Error("failed to create entity", "entity_type", entityType, "error", err)
		return EntityResponse{}, fmt.Errorf("create %s: %w", entityType, err)
	}

	s.log.Info("entity created", "entity_type", entityType, "id", e.ID)
	return toResponse(*e), nil
}

// Update применяет частичные данные поверх сохраненных: ключи partial заменяют существующие
func (s *Service) Update(ctx context.Context, entityType, id string, partial json.RawMessage) (EntityResponse, error) {
	if err := s.checkType(entityType); err != nil {
		return EntityResponse{}, err
	}

	e, err := s.repo.Get(ctx, entityType, id)
	if err != nil {
		return EntityResponse{}, err
	}

	merged, err := payload.Patch(e.Payload, partial)
	if err != nil {
		return EntityResponse{}, ErrInvalidPayload
	}

	e.Payload = merged
	e.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, e); err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Error("failed to update entity", "entity_type", entityType, "id", id, "error", err)
		}
		return EntityResponse{}, fmt.Errorf("update %s/%s: %w", entityType, id, err)
	}

	s.log.Info("entity updated", "entity_type", entityType, "id", id)
	return toResponse(*e), nil
}

func (s *Service) Delete(ctx context.Context, entityType, id string) (bool, error) {
	if err := s.checkType(entityType); err != nil {
		return false, err
	}

	existed, err := s.repo.Delete(ctx, entityType, id)
	if err != nil {
		s.log.Error("failed to delete entity", "entity_type", entityType, "id", id, "error", err)
		return false, fmt.Errorf("delete %s/%s: %w", entityType, id, err)
	}

	s.log.Info("entity deleted", "entity_type", entityType, "id", id, "existed", existed)
	return existed, nil
}

func (s *Service) checkType(entityType string) error {
	if _, ok := s.types[entityType]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, entityType)
	}
	return nil
}
