package entity

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"tiklay/internal/domain/remote"
)

type Handler struct {
	service    remote.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service remote.Servicer, log *slog.Logger, mws huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		log:        log.With("component", "entity_handler"),
		middleware: mws,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.listOp(), h.list)
	huma.Register(api, h.createOp(), h.create)
	huma.Register(api, h.findOp(), h.find)
	huma.Register(api, h.updateOp(), h.update)
	huma.Register(api, h.deleteOp(), h.delete)
}

func (h *Handler) list(ctx context.Context, input *listInput) (*listOutput, error) {
	resp, err := h.service.List(ctx, input.EntityType)
	if err != nil {
		return nil, h.httpError(err)
	}
	return &listOutput{Body: resp}, nil
}

func (h *Handler) find(ctx context.Context, input *findInput) (*entityOutput, error) {
	resp, err := h.service.Get(ctx, input.EntityType, input.ID)
	if err != nil {
		return nil, h.httpError(err)
	}
	return &entityOutput{Body: resp}, nil
}

func (h *Handler) create(ctx context.Context, input *createInput) (*entityOutput, error) {
	data, err := json.Marshal(input.Body)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid body", err)
	}

	resp, err := h.service.Create(ctx, input.EntityType, data)
	if err != nil {
		return nil, h.httpError(err)
	}
	return &entityOutput{Body: resp}, nil
}

func (h *Handler) update(ctx context.Context, input *updateInput) (*entityOutput, error) {
	data, err := json.Marshal(input.Body)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid body", err)
	}

	resp, err := h.service.Update(ctx, input.EntityType, input.ID, data)
	if err != nil {
		return nil, h.httpError(err)
	}
	return &entityOutput{Body: resp}, nil
}

func (h *Handler) delete(ctx context.Context, input *findInput) (*deleteOutput, error) {
	existed, err := h.service.Delete(ctx, input.EntityType, input.ID)
	if err != nil {
		return nil, h.httpError(err)
	}
	return &deleteOutput{Body: remote.DeleteResponse{Deleted: existed}}, nil
}

// httpError переводит доменные ошибки в коды ответа; детали внутренних ошибок наружу не уходят
func (h *Handler) httpError(err error) error {
	switch {
	case errors.Is(err, remote.ErrUnknownType):
		return huma.Error404NotFound("unknown entity type")
	case errors.Is(err, remote.ErrNotFound):
		return huma.Error404NotFound("entity not found")
	case errors.Is(err, remote.ErrInvalidPayload):
		return huma.Error422UnprocessableEntity(err.Error())
	default:
		h.log.Error("request failed", "error", err)
		return huma.Error500InternalServerError("internal error")
	}
}
