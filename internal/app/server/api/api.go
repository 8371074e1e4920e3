// Package api собирает HTTP API сервера учета:
//
//	GET    /api/v1/health             # доступность сервера и базы
//	GET    /api/v1/{entityType}       # вся коллекция
//	POST   /api/v1/{entityType}       # создать запись
//	GET    /api/v1/{entityType}/{id}  # получить запись
//	PUT    /api/v1/{entityType}/{id}  # частично обновить запись
//	DELETE /api/v1/{entityType}/{id}  # удалить запись
//	GET    /metrics                   # метрики Prometheus
package api

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/exp/slog"

	entityAPI "tiklay/internal/app/server/api/http/entity"
	healthAPI "tiklay/internal/app/server/api/http/health"
	"tiklay/internal/app/server/api/http/middleware"
	"tiklay/internal/app/server/api/http/middleware/logger"
	"tiklay/internal/app/server/api/http/middleware/metrics"
	"tiklay/internal/domain/remote"
	"tiklay/internal/infrastructure/storage/postgres"
)

type Handlers struct {
	Health *healthAPI.Handler
	Entity *entityAPI.Handler
}

// New создает *chi.Mux со всеми операциями, зарегистрированными через huma.Register
func New(storage *postgres.Storage, types []string, log *slog.Logger) *chi.Mux {
	repo := postgres.NewEntityRepository(storage.Pool(), log)
	service := remote.NewService(repo, types, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return newRouter(storage, service, log, reg)
}

func newRouter(db healthAPI.Pinger, service remote.Servicer, log *slog.Logger, reg *prometheus.Registry) *chi.Mux {
	mux := chi.NewMux()

	config := huma.DefaultConfig("Tiklay API", "1.0.0")
	API := humachi.New(mux, config)

	h := handlers(db, service, log, reg)
	h.Health.SetupRoutes(API)
	h.Entity.SetupRoutes(API)

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return mux
}

func handlers(db healthAPI.Pinger, service remote.Servicer, log *slog.Logger, reg prometheus.Registerer) *Handlers {
	loggerMW := logger.New(log)
	metricsMW := metrics.New(reg)
	middlewares := middleware.NewContainer()

	// проверки здоровья идут каждые несколько секунд от каждого клиента, в лог их не пишем
	middlewares.Add(metricsMW.Middleware())
	healthHandler := healthAPI.NewHandler(db, log, middlewares.GetAllAndClear())

	middlewares.Add(loggerMW.Middleware(), metricsMW.Middleware())
	entityHandler := entityAPI.NewHandler(service, log, middlewares.GetAllAndClear())

	return &Handlers{
		Health: healthHandler,
		Entity: entityHandler,
	}
}
