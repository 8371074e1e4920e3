package health

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

// Pinger проверяет доступность хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	db         Pinger
	log        *slog.Logger
	middleware huma.Middlewares
}

// NewHandler принимает nil вместо db, если хранилище проверять не нужно
func NewHandler(db Pinger, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		db:         db,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.healthCheckOp(), h.healthCheck)
}

// healthCheck отвечает 503, если база недоступна: клиентский монитор считает это отсутствием связи
func (h *Handler) healthCheck(ctx context.Context, _ *Input) (*Output, error) {
	h.log.Debug("health check request received")

	resp := Response{Status: "OK"}
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			h.log.Warn("database ping failed", "error", err)
			return nil, huma.Error503ServiceUnavailable("database unavailable")
		}
		resp.Database = "OK"
	}

	return &Output{Body: resp}, nil
}
