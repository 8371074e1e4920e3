package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"

	"golang.org/x/sync/errgroup"

	"tiklay/internal/domain/offline"
	"tiklay/internal/domain/payload"
)

type collection struct {
	records []RemoteEntity
	err     error
}

// download забирает все серверные коллекции и сверяет их с локальными записями.
// Ошибка одного типа не мешает остальным. Записи с намерениями новее queued
// изменены уже после выгрузки и ждут следующего прогона.
func (s *Service) download(ctx context.Context, res *Result, queued int64) {
	types := s.gateways.Types()
	if len(types) == 0 {
		return
	}

	collections := s.fetchAll(ctx, types)
	if ctx.Err() != nil {
		return
	}

	skip, err := s.reconcileGuards(ctx, queued)
	if err != nil {
		s.log.Error("failed to load reconcile guards", "error", err)
		res.addError(SyncError{
			Phase:     PhaseDownloading,
			Operation: "prepare",
			Error:     err.Error(),
			Timestamp: s.now(),
			Retry:     true,
		})
		return
	}

	for _, entityType := range types {
		c := collections[entityType]
		if c.err != nil {
			s.log.Warn("failed to fetch remote collection", "entity_type", entityType, "error", c.err)
			res.addError(SyncError{
				Phase:      PhaseDownloading,
				Operation:  "fetch",
				EntityType: entityType,
				Error:      c.err.Error(),
				Timestamp:  s.now(),
				Retry:      true,
			})
			continue
		}

		for _, rec := range c.records {
			if ctx.Err() != nil {
				return
			}
			s.reconcile(ctx, res, entityType, rec, skip)
		}
	}
}

func (s *Service) fetchAll(ctx context.Context, types []string) map[string]collection {
	var (
		mu  gosync.Mutex
		out = make(map[string]collection, len(types))
	)

	g, gctx := errgroup.WithContext(ctx)
	if s.config.FetchConcurrency > 0 {
		g.SetLimit(s.config.FetchConcurrency)
	}

	for _, entityType := range types {
		entityType := entityType
		gw := s.gateways[entityType]

		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, s.config.RequestTimeout)
			defer cancel()

			records, err := gw.GetAll(callCtx)

			mu.Lock()
			out[entityType] = collection{records: records, err: err}
			mu.Unlock()

			// ошибки коллекций собираются по отдельности, группу не прерываем
			return nil
		})
	}
	_ = g.Wait()

	return out
}

type guards struct {
	deleted    map[string]bool
	conflicted map[string]bool
	fresh      map[string]bool
}

// reconcileGuards собирает записи, которые загрузка не должна трогать:
// удаленные локально, измененные во время прогона и находящиеся в открытом конфликте.
func (s *Service) reconcileGuards(ctx context.Context, queued int64) (guards, error) {
	g := guards{deleted: map[string]bool{}, conflicted: map[string]bool{}, fresh: map[string]bool{}}

	intents, err := s.store.ListPendingIntents(ctx)
	if err != nil {
		return g, fmt.Errorf("list pending intents: %w", err)
	}
	for _, in := range intents {
		if in.Seq > queued {
			g.fresh[entityKey(in.EntityType, in.EntityID)] = true
		}
		if in.Kind == offline.KindDelete {
			g.deleted[entityKey(in.EntityType, in.Target())] = true
			g.deleted[entityKey(in.EntityType, in.EntityID)] = true
		}
	}

	conflicts, err := s.store.ListUnresolvedConflicts(ctx)
	if err != nil {
		return g, fmt.Errorf("list conflicts: %w", err)
	}
	for _, c := range conflicts {
		g.conflicted[entityKey(c.EntityType, c.EntityID)] = true
	}

	return g, nil
}

func (s *Service) reconcile(ctx context.Context, res *Result, entityType string, rec RemoteEntity, g guards) {
	if rec.ID == "" {
		return
	}
	if g.deleted[entityKey(entityType, rec.ID)] {
		return
	}

	local, err := s.findLocal(ctx, entityType, rec.ID)
	if err != nil {
		s.downloadError(res, entityType, rec.ID, err)
		return
	}

	remoteModified := rec.ModifiedAt
	if remoteModified.IsZero() {
		if ts, ok := payload.Timestamp(rec.Payload); ok {
			remoteModified = ts
		}
	}
	if remoteModified.IsZero() {
		remoteModified = s.now()
	}

	if local == nil {
		if err := s.store.PutSynced(ctx, entityType, rec.ID, rec.ID, rec.Payload, remoteModified); err != nil {
			s.downloadError(res, entityType, rec.ID, err)
			return
		}
		res.Downloaded++
		return
	}

	key := entityKey(entityType, local.ID)
	if g.conflicted[key] || g.fresh[key] || local.SyncStatus == offline.StatusConflict {
		return
	}

	same := payload.Equal(local.Payload, rec.Payload)

	switch local.SyncStatus {
	case offline.StatusSynced:
		if !same {
			if err := s.store.PutSynced(ctx, entityType, local.ID, rec.ID, rec.Payload, remoteModified); err != nil {
				s.downloadError(res, entityType, rec.ID, err)
				return
			}
		}
		res.Downloaded++

	default:
		if same {
			// локальная правка уже совпадает с сервером
			if err := s.store.MarkEntitySynced(ctx, entityType, local.ID); err != nil {
				s.downloadError(res, entityType, rec.ID, err)
				return
			}
			res.Downloaded++
			return
		}

		_, err := s.store.RecordConflict(ctx, offline.Conflict{
			EntityType:     entityType,
			EntityID:       local.ID,
			LocalPayload:   local.Payload,
			RemotePayload:  rec.Payload,
			LocalModified:  local.LastModified,
			RemoteModified: remoteModified,
			DetectedAt:     s.now(),
		})
		if err != nil {
			s.downloadError(res, entityType, rec.ID, err)
			return
		}

		res.ConflictsDetected++
		s.metrics.observeConflict("detected")
		s.log.Info("conflict detected", "entity_type", entityType, "id", local.ID)
	}
}

// findLocal ищет запись сначала по серверному идентификатору, затем по локальному
func (s *Service) findLocal(ctx context.Context, entityType, remoteID string) (*offline.Entity, error) {
	e, err := s.store.FindByRemoteID(ctx, entityType, remoteID)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, offline.ErrNotFound) {
		return nil, err
	}

	e, err = s.store.GetEntity(ctx, entityType, remoteID)
	if errors.Is(err, offline.ErrNotFound) {
		return nil, nil
	}
	return e, err
}

func (s *Service) downloadError(res *Result, entityType, id string, err error) {
	s.log.Warn("failed to reconcile remote record", "entity_type", entityType, "id", id, "error", err)
	res.addError(SyncError{
		Phase:      PhaseDownloading,
		Operation:  "reconcile",
		EntityType: entityType,
		EntityID:   id,
		Error:      err.Error(),
		Timestamp:  s.now(),
		Retry:      true,
	})
}
