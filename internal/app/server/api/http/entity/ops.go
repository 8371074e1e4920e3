package entity

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) listOp() huma.Operation {
	return huma.Operation{
		OperationID: "entities-list",
		Method:      http.MethodGet,
		Path:        "/api/v1/{entityType}",
		Summary:     "Все записи коллекции",
		Tags:        []string{"entities"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) createOp() huma.Operation {
	return huma.Operation{
		OperationID:   "entities-create",
		Method:        http.MethodPost,
		Path:          "/api/v1/{entityType}",
		Summary:       "Создать запись",
		Description:   "Сервер присваивает идентификатор и возвращает сохраненную запись",
		Tags:          []string{"entities"},
		DefaultStatus: http.StatusCreated,
		Middlewares:   h.middleware,
	}
}

func (h *Handler) findOp() huma.Operation {
	return huma.Operation{
		OperationID: "entities-find",
		Method:      http.MethodGet,
		Path:        "/api/v1/{entityType}/{id}",
		Summary:     "Получить запись",
		Tags:        []string{"entities"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) updateOp() huma.Operation {
	return huma.Operation{
		OperationID: "entities-update",
		Method:      http.MethodPut,
		Path:        "/api/v1/{entityType}/{id}",
		Summary:     "Обновить запись",
		Description: "Поля тела запроса заменяют одноименные поля записи",
		Tags:        []string{"entities"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) deleteOp() huma.Operation {
	return huma.Operation{
		OperationID: "entities-delete",
		Method:      http.MethodDelete,
		Path:        "/api/v1/{entityType}/{id}",
		Summary:     "Удалить запись",
		Tags:        []string{"entities"},
		Middlewares: h.middleware,
	}
}
