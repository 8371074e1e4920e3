package entity

import (
	"tiklay/internal/domain/remote"
)

type listInput struct {
	EntityType string `path:"entityType" example:"student" doc:"Тип сущности"`
}

type findInput struct {
	EntityType string `path:"entityType" example:"student" doc:"Тип сущности"`
	ID         string `path:"id" doc:"Серверный идентификатор"`
}

type createInput struct {
	EntityType string         `path:"entityType" example:"student" doc:"Тип сущности"`
	Body       map[string]any `doc:"Данные сущности, JSON-объект"`
}

type updateInput struct {
	EntityType string         `path:"entityType" example:"student" doc:"Тип сущности"`
	ID         string         `path:"id" doc:"Серверный идентификатор"`
	Body       map[string]any `doc:"Изменяемые поля; остальные поля сохраняются"`
}

type listOutput struct {
	Body remote.ListResponse
}

type entityOutput struct {
	Body remote.EntityResponse
}

type deleteOutput struct {
	Body remote.DeleteResponse
}
