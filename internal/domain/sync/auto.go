package sync

import (
	"context"
	"errors"
	"time"
)

// StartAutoSync запускает прогоны по таймеру. Тик пропускается, если прогон
// уже идет или сеть недоступна. Повторный вызов перезапускает таймер.
func (s *Service) StartAutoSync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.log.Warn("auto sync disabled, interval must be positive", "interval", interval)
		return
	}

	s.StopAutoSync()

	s.autoMu.Lock()
	defer s.autoMu.Unlock()

	autoCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.autoCancel = cancel
	s.autoDone = done

	s.log.Info("auto sync started", "interval", interval)

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-autoCtx.Done():
				return
			case <-ticker.C:
				s.tick(autoCtx, "timer")
			}
		}
	}()
}

// StopAutoSync останавливает таймер и дожидается завершения текущего тика
func (s *Service) StopAutoSync() {
	s.autoMu.Lock()
	cancel, done := s.autoCancel, s.autoDone
	s.autoCancel, s.autoDone = nil, nil
	s.autoMu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
	s.log.Info("auto sync stopped")
}

// WatchConnectivity запускает прогон при каждом восстановлении связи до отмены ctx
func (s *Service) WatchConnectivity(ctx context.Context) {
	events, unsubscribe := s.monitor.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.notify(ctx)
			if ev.Online && s.config.SyncOnReconnect {
				s.tick(ctx, "reconnect")
			}
		}
	}
}

func (s *Service) tick(ctx context.Context, trigger string) {
	if s.running.Load() || !s.monitor.IsOnline() {
		s.log.Debug("sync tick skipped", "trigger", trigger)
		return
	}

	_, err := s.SyncNow(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyInProgress), errors.Is(err, ErrOffline):
		s.log.Debug("sync tick skipped", "trigger", trigger, "reason", err)
	case ctx.Err() != nil:
	default:
		s.log.Error("background sync failed", "trigger", trigger, "error", err)
	}
}
