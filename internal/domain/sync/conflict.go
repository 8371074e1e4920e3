package sync

import (
	"context"
	"fmt"

	"tiklay/internal/domain/offline"
	"tiklay/internal/domain/payload"
)

// resolve применяет стратегию к открытым конфликтам. Конфликты, которые
// стратегия не берется решить, остаются пользователю.
func (s *Service) resolve(ctx context.Context, res *Result) {
	if s.config.Strategy == StrategyManual {
		return
	}

	conflicts, err := s.store.ListUnresolvedConflicts(ctx)
	if err != nil {
		s.log.Error("failed to list conflicts", "error", err)
		res.addError(SyncError{
			Phase:     PhaseResolving,
			Operation: "list",
			Error:     err.Error(),
			Timestamp: s.now(),
			Retry:     true,
		})
		return
	}

	for _, c := range conflicts {
		if ctx.Err() != nil {
			return
		}

		d, ok := Decide(s.config.Strategy, c)
		if !ok {
			s.log.Debug("conflict left for manual resolution", "conflict_id", c.ID, "entity_type", c.EntityType, "id", c.EntityID)
			continue
		}

		if err := s.store.ResolveConflict(ctx, c.ID, d.Resolution, d.Payload); err != nil {
			s.log.Warn("failed to resolve conflict", "conflict_id", c.ID, "error", err)
			res.addError(SyncError{
				Phase:      PhaseResolving,
				Operation:  "resolve",
				EntityType: c.EntityType,
				EntityID:   c.EntityID,
				Error:      err.Error(),
				Timestamp:  s.now(),
				Retry:      true,
			})
			continue
		}

		res.ConflictsResolved++
		s.metrics.observeConflict("resolved_auto")
		s.log.Info("conflict resolved", "conflict_id", c.ID, "resolution", d.Resolution)
	}
}

func (s *Service) ResolveConflictManually(ctx context.Context, conflictID string, resolution offline.Resolution, merged []byte) error {
	if conflictID == "" {
		return fmt.Errorf("%w: conflict id is required", ErrInvalidArgument)
	}
	if !resolution.Valid() {
		return fmt.Errorf("%w: unknown resolution %q", ErrInvalidArgument, resolution)
	}

	c, err := s.store.GetConflict(ctx, conflictID)
	if err != nil {
		return err
	}
	if c.Resolved {
		return fmt.Errorf("%w: conflict %s is already resolved", ErrInvalidArgument, conflictID)
	}

	var chosen []byte
	switch resolution {
	case offline.ResolutionLocal:
		chosen = c.LocalPayload
	case offline.ResolutionRemote:
		chosen = c.RemotePayload
	case offline.ResolutionMerged:
		if len(merged) == 0 {
			return fmt.Errorf("%w: merged payload is required", ErrInvalidArgument)
		}
		if !payload.Valid(merged) {
			return fmt.Errorf("%w: merged payload is not valid JSON", ErrInvalidArgument)
		}
		chosen = merged
	}

	if err := s.store.ResolveConflict(ctx, conflictID, resolution, chosen); err != nil {
		return err
	}

	s.metrics.observeConflict("resolved_manual")
	s.log.Info("conflict resolved manually", "conflict_id", conflictID, "resolution", resolution)
	s.notify(ctx)

	return nil
}

func (s *Service) Conflicts(ctx context.Context) ([]offline.Conflict, error) {
	return s.store.ListUnresolvedConflicts(ctx)
}

func (s *Service) Cleanup(ctx context.Context) (offline.CleanupStats, error) {
	before := s.now().Add(-s.config.Retention)

	stats, err := s.store.Cleanup(ctx, before, s.config.MaxRetries)
	if err != nil {
		return stats, err
	}

	s.log.Info("local store cleaned up",
		"intents", stats.Intents, "abandoned", stats.Abandoned, "conflicts", stats.Conflicts, "before", before)
	return stats, nil
}
