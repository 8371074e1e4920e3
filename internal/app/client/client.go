package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/exp/slog"

	"tiklay/internal/app/client/config"
	"tiklay/internal/domain/connectivity"
	"tiklay/internal/domain/offline"
	"tiklay/internal/domain/sync"
	"tiklay/internal/infrastructure/storage/sqlite"
)

// App клиентское приложение: локальное хранилище, шлюзы и оркестратор синхронизации
type App struct {
	config     *config.Config
	log        *slog.Logger
	httpClient *httpClient
	store      *sqlite.Storage
	monitor    *connectivity.Monitor
	sync       *sync.Service
	registry   *prometheus.Registry
	state      *AppState
	mu         gosync.Mutex
}

// AppState сохраняется между запусками CLI
type AppState struct {
	LastSync time.Time `json:"last_sync"`
}

func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	state, err := loadAppState(cfg.StatePath)
	if err != nil {
		log.Warn("failed to load app state", "error", err)
		state = &AppState{}
	}

	store, err := sqlite.Open(cfg.DataPath, log)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	httpCl := NewHTTPClient(cfg, log)
	monitor := connectivity.NewMonitor(log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	service := sync.NewService(
		store,
		httpCl.Gateways(cfg.EntityTypes),
		monitor,
		log,
		cfg.SyncConfig(),
		sync.WithMetrics(sync.NewMetrics(registry)),
	)
	service.RestoreLastSync(state.LastSync)

	return &App{
		config:     cfg,
		log:        log.With("component", "client_app"),
		httpClient: httpCl,
		store:      store,
		monitor:    monitor,
		sync:       service,
		registry:   registry,
		state:      state,
	}, nil
}

// Store локальное хранилище для команд работы с сущностями
func (a *App) Store() offline.Store {
	return a.store
}

func (a *App) Sync() *sync.Service {
	return a.sync
}

// CheckConnection проверяет сервер и обновляет состояние монитора
func (a *App) CheckConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.config.RequestTimeout)
	defer cancel()

	err := a.httpClient.HealthCheck(ctx)
	a.monitor.Set(err == nil)
	return err
}

// SyncNow выполняет прогон и сохраняет время последней синхронизации.
// Если сервер не ответил на проверку здоровья, прогон не запускается.
func (a *App) SyncNow(ctx context.Context) (*sync.Result, error) {
	if err := a.CheckConnection(ctx); err != nil {
		a.log.Info("sync skipped, server unreachable", "error", err)
		return nil, fmt.Errorf("%w: %v", sync.ErrOffline, err)
	}

	res, err := a.sync.SyncNow(ctx)
	if err == nil && res != nil {
		a.rememberSync(res.EndTime)
	}
	return res, err
}

// Run держит синхронизацию в фоне до отмены ctx: опрос сервера,
// автосинхронизация по таймеру и при восстановлении связи.
func (a *App) Run(ctx context.Context) error {
	var wg gosync.WaitGroup

	if a.config.ProbeInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.monitor.Watch(ctx, a.httpClient, a.config.ProbeInterval)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.sync.WatchConnectivity(ctx)
	}()

	statuses, unsubscribe := a.sync.Subscribe(ctx)
	defer unsubscribe()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.persistSyncs(ctx, statuses)
	}()

	var metricsSrv *http.Server
	if a.config.MetricsAddr != "" {
		metricsSrv = a.serveMetrics()
	}

	a.sync.StartAutoSync(ctx, a.config.SyncInterval)
	a.log.Info("client started",
		"server", a.config.BaseURL(),
		"env", a.config.Env,
		"interval", a.config.SyncInterval,
	)

	<-ctx.Done()
	a.log.Info("stopping client")

	a.sync.StopAutoSync()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("metrics server shutdown error", "error", err)
		}
	}

	unsubscribe()
	wg.Wait()
	return nil
}

// persistSyncs сохраняет время каждой успешной синхронизации, запущенной в фоне
func (a *App) persistSyncs(ctx context.Context, statuses <-chan sync.Status) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-statuses:
			if !ok {
				return
			}
			if !st.LastSyncTime.IsZero() {
				a.rememberSync(st.LastSyncTime)
			}
		}
	}
}

func (a *App) serveMetrics() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              a.config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.log.Info("metrics server started", "address", a.config.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

func (a *App) rememberSync(at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !at.After(a.state.LastSync) {
		return
	}
	a.state.LastSync = at
	if err := saveAppState(a.config.StatePath, a.state); err != nil {
		a.log.Warn("failed to save app state", "error", err)
	}
}

func (a *App) Close() error {
	a.sync.StopAutoSync()
	return a.store.Close()
}

func loadAppState(path string) (*AppState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &AppState{}, nil
	}
	if err != nil {
		return nil, err
	}

	var state AppState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func saveAppState(path string, state *AppState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
