package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"
	"golang.org/x/exp/slog"

	"tiklay/internal/domain/connectivity"
	"tiklay/internal/domain/offline"
)

// Servicer интерфейс оркестратора синхронизации
type Servicer interface {
	// SyncNow выполняет один прогон: выгрузка, загрузка, разрешение конфликтов
	SyncNow(ctx context.Context) (*Result, error)

	// ResolveConflictManually закрывает конфликт выбранной стороной или объединенными данными
	ResolveConflictManually(ctx context.Context, conflictID string, resolution offline.Resolution, merged []byte) error

	// StartAutoSync запускает периодическую синхронизацию
	StartAutoSync(ctx context.Context, interval time.Duration)

	// StopAutoSync останавливает периодическую синхронизацию
	StopAutoSync()

	// GetStatus возвращает текущий статус синхронизации
	GetStatus(ctx context.Context) (Status, error)

	// Conflicts возвращает неразрешенные конфликты
	Conflicts(ctx context.Context) ([]offline.Conflict, error)

	// Cleanup удаляет устаревшие завершенные намерения и закрытые конфликты
	Cleanup(ctx context.Context) (offline.CleanupStats, error)
}

// Service реализация оркестратора. Одновременно выполняется не более одного прогона.
type Service struct {
	store    offline.Store
	gateways Gateways
	monitor  Monitor
	log      *slog.Logger
	config   *Config
	metrics  *Metrics
	now      func() time.Time

	running atomic.Bool
	machine *fsm.FSM

	mu         gosync.RWMutex
	lastSync   time.Time
	lastResult *Result
	lastError  string

	subsMu  gosync.Mutex
	subs    map[int]chan Status
	nextSub int

	autoMu     gosync.Mutex
	autoCancel context.CancelFunc
	autoDone   chan struct{}
}

// Option дополнительная настройка сервиса
type Option func(*Service)

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени (используется в тестах)
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService создает оркестратор. Без монитора сеть считается доступной.
func NewService(store offline.Store, gateways Gateways, monitor Monitor, log *slog.Logger, config *Config, opts ...Option) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	log = log.With("component", "sync_service")
	if monitor == nil {
		monitor = connectivity.NewMonitor(log)
	}

	s := &Service{
		store:    store,
		gateways: gateways,
		monitor:  monitor,
		log:      log,
		config:   config,
		now:      time.Now,
		subs:     make(map[int]chan Status),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.machine = newMachine(func(ctx context.Context, phase string) {
		s.log.Debug("sync phase", "phase", phase)
		if phase != PhaseIdle {
			s.notify(ctx)
		}
	})

	return s
}

func (s *Service) SyncNow(ctx context.Context) (*Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInProgress
	}
	defer func() {
		s.running.Store(false)
		s.notify(context.WithoutCancel(ctx))
	}()

	return s.run(ctx)
}

// IsSyncing сообщает, выполняется ли прогон
func (s *Service) IsSyncing() bool {
	return s.running.Load()
}

// LastResult итог последнего завершенного прогона
func (s *Service) LastResult() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult
}

// RestoreLastSync восстанавливает время последней синхронизации из состояния приложения
func (s *Service) RestoreLastSync(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.After(s.lastSync) {
		s.lastSync = t
	}
}

func (s *Service) run(ctx context.Context) (*Result, error) {
	res := &Result{StartTime: s.now(), Errors: []SyncError{}}
	s.log.Info("sync started")

	s.transition(ctx, eventUpload)
	queued := s.upload(ctx, res)
	if err := ctx.Err(); err != nil {
		return s.abort(ctx, res, err)
	}

	s.transition(ctx, eventDownload)
	s.download(ctx, res, queued)
	if err := ctx.Err(); err != nil {
		return s.abort(ctx, res, err)
	}

	s.transition(ctx, eventResolve)
	s.resolve(ctx, res)
	if err := ctx.Err(); err != nil {
		return s.abort(ctx, res, err)
	}

	s.transition(ctx, eventFinish)
	s.finish(res)

	outcome := "success"
	if !res.Success {
		outcome = "failure"
	}
	s.metrics.observeRun(res, outcome)

	s.log.Info("sync finished",
		"success", res.Success,
		"uploaded", res.Uploaded,
		"downloaded", res.Downloaded,
		"conflicts_detected", res.ConflictsDetected,
		"conflicts_resolved", res.ConflictsResolved,
		"errors", len(res.Errors),
		"duration", res.Duration,
	)

	return res, nil
}

func (s *Service) abort(ctx context.Context, res *Result, cause error) (*Result, error) {
	s.transition(ctx, eventFail)

	res.EndTime = s.now()
	res.Duration = res.EndTime.Sub(res.StartTime)
	res.Success = false

	s.mu.Lock()
	s.lastError = cause.Error()
	s.mu.Unlock()

	s.metrics.observeRun(res, "aborted")
	s.log.Warn("sync interrupted", "error", cause)

	return res, fmt.Errorf("sync interrupted: %w", cause)
}

func (s *Service) finish(res *Result) {
	res.EndTime = s.now()
	res.Duration = res.EndTime.Sub(res.StartTime)
	res.Success = !res.failed(PhaseUploading)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSync = res.EndTime
	s.lastResult = res
	s.lastError = ""
	if len(res.Errors) > 0 {
		s.lastError = res.Errors[0].Error
	}
}

// upload отправляет намерения в порядке создания. Ошибка одного намерения
// не прерывает пакет, но следующие намерения той же сущности ждут следующего прогона.
// Возвращает номер последнего намерения, попавшего в прогон.
func (s *Service) upload(ctx context.Context, res *Result) int64 {
	intents, err := s.store.ListPendingIntents(ctx)
	if err != nil {
		s.log.Error("failed to list pending intents", "error", err)
		res.addError(SyncError{
			Phase:     PhaseUploading,
			Operation: "list",
			Error:     err.Error(),
			Timestamp: s.now(),
			Retry:     true,
		})
		return 0
	}
	s.metrics.setPending(len(intents))

	var queued int64
	if len(intents) > 0 {
		queued = intents[len(intents)-1].Seq
	}

	blocked := make(map[string]bool)
	// серверные идентификаторы, полученные в этом прогоне
	assigned := make(map[string]string)

	for _, in := range intents {
		if ctx.Err() != nil {
			return queued
		}

		key := entityKey(in.EntityType, in.EntityID)
		if blocked[key] {
			continue
		}

		if s.exhausted(in) {
			// исчерпанное намерение держит очередь сущности до очистки
			blocked[key] = true
			continue
		}
		if in.Status == offline.IntentFailed && s.now().Before(in.NextRetryAt) {
			blocked[key] = true
			continue
		}

		if in.RemoteID == "" {
			in.RemoteID = assigned[key]
		}

		remoteID, err := s.uploadIntent(ctx, in)
		if err != nil {
			if ctx.Err() != nil {
				return queued
			}
			blocked[key] = true
			s.failIntent(ctx, res, in, err)
			continue
		}
		if remoteID != "" {
			assigned[key] = remoteID
		}

		res.Uploaded++
	}

	return queued
}

// uploadIntent отправляет одно намерение и возвращает серверный идентификатор созданной записи
func (s *Service) uploadIntent(ctx context.Context, in offline.Intent) (string, error) {
	gw, ok := s.gateways[in.EntityType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownEntityType, in.EntityType)
	}

	if err := s.store.MarkIntentProcessing(ctx, in.ID); err != nil {
		return "", fmt.Errorf("mark intent processing: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	var (
		remote RemoteEntity
		err    error
	)
	switch {
	case in.Kind == offline.KindCreate && in.RemoteID != "":
		// повторное сохранение уже выгруженной записи перезаписывает серверную копию
		remote, err = gw.Update(callCtx, in.RemoteID, in.Payload)
	case in.Kind == offline.KindCreate:
		remote, err = gw.Create(callCtx, in.Payload)
	case in.Kind == offline.KindUpdate:
		remote, err = gw.Update(callCtx, in.Target(), in.Payload)
	case in.Kind == offline.KindDelete:
		var existed bool
		existed, err = gw.Delete(callCtx, in.Target())
		if err == nil && !existed {
			s.log.Debug("remote record already absent", "entity_type", in.EntityType, "id", in.Target())
		}
	default:
		err = fmt.Errorf("unknown intent kind %q", in.Kind)
	}
	if err != nil {
		return "", err
	}

	var remoteID string
	if in.Kind == offline.KindCreate && in.RemoteID == "" && remote.ID != "" {
		remoteID = remote.ID
		if err := s.store.SetRemoteID(ctx, in.EntityType, in.EntityID, remoteID); err != nil {
			return "", fmt.Errorf("store remote id: %w", err)
		}
	}

	if err := s.store.MarkIntentCompleted(ctx, in.ID); err != nil {
		return "", fmt.Errorf("mark intent completed: %w", err)
	}

	if in.Kind != offline.KindDelete {
		// запись синхронизирована, только если после этого намерения ее не меняли
		if _, err := s.store.MarkEntitySyncedAt(ctx, in.EntityType, in.EntityID, in.EntityVersion); err != nil {
			s.log.Warn("failed to mark entity synced", "entity_type", in.EntityType, "id", in.EntityID, "error", err)
		}
	}

	s.metrics.observeIntent(in.Kind, "uploaded")
	s.log.Debug("intent uploaded", "kind", in.Kind, "entity_type", in.EntityType, "id", in.EntityID)

	return remoteID, nil
}

func (s *Service) failIntent(ctx context.Context, res *Result, in offline.Intent, cause error) {
	attempt := in.RetryCount + 1
	next := s.now().Add(s.config.Retry.Delay(attempt))
	retry := s.config.MaxRetries <= 0 || attempt < s.config.MaxRetries

	if err := s.store.MarkIntentFailed(ctx, in.ID, cause.Error(), next); err != nil {
		s.log.Error("failed to record intent failure", "intent_id", in.ID, "error", err)
	}

	if !retry {
		s.log.Warn("intent failed permanently",
			"intent_id", in.ID, "kind", in.Kind, "entity_type", in.EntityType, "id", in.EntityID, "error", cause)
		err := s.store.SetEntityStatus(ctx, in.EntityType, in.EntityID, offline.StatusError)
		if err != nil && !errors.Is(err, offline.ErrNotFound) {
			s.log.Error("failed to mark entity errored", "id", in.EntityID, "error", err)
		}
	} else {
		s.log.Warn("intent upload failed",
			"intent_id", in.ID, "kind", in.Kind, "attempt", attempt, "next_retry_at", next, "error", cause)
	}

	s.metrics.observeIntent(in.Kind, "failed")
	res.addError(SyncError{
		Phase:      PhaseUploading,
		Operation:  string(in.Kind),
		EntityType: in.EntityType,
		EntityID:   in.EntityID,
		IntentID:   in.ID,
		Error:      cause.Error(),
		Timestamp:  s.now(),
		Retry:      retry,
	})
}

// exhausted истинно для намерений, исчерпавших лимит повторов
func (s *Service) exhausted(in offline.Intent) bool {
	return in.Status == offline.IntentFailed && s.config.MaxRetries > 0 && in.RetryCount >= s.config.MaxRetries
}

func entityKey(entityType, id string) string {
	return entityType + "/" + id
}
