package sync

import (
	"context"
	"fmt"
	gosync "sync"
)

func (s *Service) GetStatus(ctx context.Context) (Status, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("collect local stats: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		LastSyncTime:       s.lastSync,
		IsOnline:           s.monitor.IsOnline(),
		IsSyncing:          s.running.Load(),
		Phase:              s.machine.Current(),
		PendingUploadCount: stats.PendingEntities,
		PendingIntentCount: stats.PendingIntents,
		ConflictCount:      stats.OpenConflicts,
		LastError:          s.lastError,
	}, nil
}

// Subscribe возвращает канал снимков статуса и функцию отписки.
// Первый снимок отправляется сразу; медленный подписчик пропускает промежуточные.
func (s *Service) Subscribe(ctx context.Context) (<-chan Status, func()) {
	ch := make(chan Status, 8)

	if st, err := s.GetStatus(ctx); err == nil {
		ch <- st
	} else {
		s.log.Warn("failed to build initial status", "error", err)
	}

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	var once gosync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
			close(ch)
		})
	}
}

func (s *Service) notify(ctx context.Context) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if len(s.subs) == 0 {
		return
	}

	st, err := s.GetStatus(ctx)
	if err != nil {
		s.log.Warn("failed to build status update", "error", err)
		return
	}

	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
		}
	}
}
