package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tiklay/internal/domain/offline"
	"tiklay/internal/domain/payload"
)

const entityColumns = `entity_type, id, remote_id, payload, checksum, version, last_modified, sync_status`

// keepConflict локальная правка делает запись pending, но не снимает открытый конфликт
const keepConflict = `CASE WHEN entities.sync_status = 'conflict' THEN 'conflict' ELSE 'pending' END`

// openConflictGuard истинно, пока у записи нет открытого конфликта
const openConflictGuard = `NOT EXISTS (
	SELECT 1 FROM conflicts c
	WHERE c.resolved = 0 AND c.entity_type = entities.entity_type AND c.entity_id = entities.id)`

func (s *Storage) SaveEntity(ctx context.Context, entityType string, data json.RawMessage, id string) (string, error) {
	if entityType == "" {
		return "", fmt.Errorf("%w: entity type is empty", offline.ErrInvalidArgument)
	}
	if !payload.Valid(data) {
		return "", fmt.Errorf("%w: payload is not valid JSON", offline.ErrInvalidArgument)
	}
	if id == "" {
		id = uuid.NewString()
	}

	now := s.timestamp()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		version, remoteID, _, err := lookupEntity(ctx, tx, entityType, id)
		if err != nil {
			return err
		}
		version++

		const query = `
			INSERT INTO entities (entity_type, id, payload, checksum, version, last_modified, sync_status)
			VALUES (?, ?, ?, ?, ?, ?, 'pending')
			ON CONFLICT (entity_type, id) DO UPDATE SET
				payload = excluded.payload,
				checksum = excluded.checksum,
				version = excluded.version,
				last_modified = excluded.last_modified,
				sync_status = `+keepConflict

		if _, err := tx.ExecContext(ctx, query,
			entityType, id, string(data), payload.Checksum(data), version, formatTime(now)); err != nil {
			return fmt.Errorf("save entity: %w", err)
		}
		if err := refreshOpenConflict(ctx, tx, entityType, id, data, now); err != nil {
			return err
		}

		return s.enqueue(ctx, tx, offline.Intent{
			Kind:          offline.KindCreate,
			EntityType:    entityType,
			EntityID:      id,
			RemoteID:      remoteID,
			Payload:       data,
			EntityVersion: version,
			CreatedAt:     now,
		})
	})
	if err != nil {
		s.log.Error("failed to save entity", "entity_type", entityType, "id", id, "error", err)
		return "", err
	}

	return id, nil
}

func (s *Storage) UpdateEntity(ctx context.Context, entityType, id string, partial json.RawMessage) error {
	now := s.timestamp()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			current  string
			version  int64
			remoteID sql.NullString
		)
		err := tx.QueryRowContext(ctx,
			`SELECT payload, version, remote_id FROM entities WHERE entity_type = ? AND id = ?`,
			entityType, id).Scan(&current, &version, &remoteID)
		if notFound(err) {
			return fmt.Errorf("entity %s/%s: %w", entityType, id, offline.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read entity: %w", err)
		}

		merged, err := payload.Patch(json.RawMessage(current), partial)
		if err != nil {
			return fmt.Errorf("%w: %v", offline.ErrInvalidArgument, err)
		}
		version++

		const query = `
			UPDATE entities
			SET payload = ?, checksum = ?, version = ?, last_modified = ?, sync_status = `+keepConflict+`
			WHERE entity_type = ? AND id = ?`

		if _, err := tx.ExecContext(ctx, query,
			string(merged), payload.Checksum(merged), version, formatTime(now), entityType, id); err != nil {
			return fmt.Errorf("update entity: %w", err)
		}
		if err := refreshOpenConflict(ctx, tx, entityType, id, merged, now); err != nil {
			return err
		}

		return s.enqueue(ctx, tx, offline.Intent{
			Kind:          offline.KindUpdate,
			EntityType:    entityType,
			EntityID:      id,
			RemoteID:      remoteID.String,
			Payload:       partial,
			EntityVersion: version,
			CreatedAt:     now,
		})
	})
}

func (s *Storage) DeleteEntity(ctx context.Context, entityType, id string) error {
	if entityType == "" || id == "" {
		return fmt.Errorf("%w: entity type and id are required", offline.ErrInvalidArgument)
	}

	now := s.timestamp()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		version, remoteID, _, err := lookupEntity(ctx, tx, entityType, id)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM entities WHERE entity_type = ? AND id = ?`, entityType, id); err != nil {
			return fmt.Errorf("delete entity: %w", err)
		}

		// Удаление неизвестной локально записи все равно уходит на сервер
		return s.enqueue(ctx, tx, offline.Intent{
			Kind:          offline.KindDelete,
			EntityType:    entityType,
			EntityID:      id,
			RemoteID:      remoteID,
			EntityVersion: version + 1,
			CreatedAt:     now,
		})
	})
}

func (s *Storage) GetEntity(ctx context.Context, entityType, id string) (*offline.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE entity_type = ? AND id = ?`, entityType, id)

	e, err := scanEntity(row)
	if notFound(err) {
		return nil, fmt.Errorf("entity %s/%s: %w", entityType, id, offline.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}

	return e, nil
}

func (s *Storage) FindByRemoteID(ctx context.Context, entityType, remoteID string) (*offline.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE entity_type = ? AND remote_id = ?`, entityType, remoteID)

	e, err := scanEntity(row)
	if notFound(err) {
		return nil, fmt.Errorf("entity %s with remote id %s: %w", entityType, remoteID, offline.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find entity by remote id: %w", err)
	}

	return e, nil
}

func (s *Storage) ListEntities(ctx context.Context, entityType string) ([]offline.Entity, error) {
	return s.queryEntities(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE entity_type = ? ORDER BY last_modified DESC, id`,
		entityType)
}

func (s *Storage) SearchEntities(ctx context.Context, entityType, query string, fields ...string) ([]offline.Entity, error) {
	all, err := s.ListEntities(ctx, entityType)
	if err != nil {
		return nil, err
	}

	found := make([]offline.Entity, 0, len(all))
	for _, e := range all {
		if payload.Matches(e.Payload, query, fields...) {
			found = append(found, e)
		}
	}

	return found, nil
}

func (s *Storage) ListPendingEntities(ctx context.Context) ([]offline.Entity, error) {
	return s.queryEntities(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE sync_status = 'pending' ORDER BY last_modified, id`)
}

func (s *Storage) PutSynced(ctx context.Context, entityType, id, remoteID string, data json.RawMessage, modified time.Time) error {
	if !payload.Valid(data) {
		return fmt.Errorf("%w: payload is not valid JSON", offline.ErrInvalidArgument)
	}
	if modified.IsZero() {
		modified = s.timestamp()
	}

	const query = `
		INSERT INTO entities (entity_type, id, remote_id, payload, checksum, version, last_modified, sync_status)
		VALUES (?, ?, ?, ?, ?, 1, ?, 'synced')
		ON CONFLICT (entity_type, id) DO UPDATE SET
			remote_id = excluded.remote_id,
			payload = excluded.payload,
			checksum = excluded.checksum,
			version = entities.version + 1,
			last_modified = excluded.last_modified,
			sync_status = 'synced'`

	_, err := s.db.ExecContext(ctx, query,
		entityType, id, nullString(remoteID), string(data), payload.Checksum(data), formatTime(modified))
	if err != nil {
		s.log.Error("failed to apply remote entity", "entity_type", entityType, "id", id, "error", err)
		return fmt.Errorf("put synced entity: %w", err)
	}

	return nil
}

func (s *Storage) MarkEntitySynced(ctx context.Context, entityType, id string) error {
	return s.setStatus(ctx, entityType, id, offline.StatusSynced)
}

func (s *Storage) MarkEntitySyncedAt(ctx context.Context, entityType, id string, version int64) (bool, error) {
	const query = `
		UPDATE entities SET sync_status = 'synced'
		WHERE entity_type = ? AND id = ? AND version = ? AND sync_status IN ('pending', 'error')
			AND `+openConflictGuard

	r, err := s.db.ExecContext(ctx, query, entityType, id, version)
	if err != nil {
		return false, fmt.Errorf("mark entity synced: %w", err)
	}

	n, err := r.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark entity synced: %w", err)
	}

	return n > 0, nil
}

func (s *Storage) SetEntityStatus(ctx context.Context, entityType, id string, status offline.SyncStatus) error {
	return s.setStatus(ctx, entityType, id, status)
}

func (s *Storage) SetRemoteID(ctx context.Context, entityType, id, remoteID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE entities SET remote_id = ? WHERE entity_type = ? AND id = ?`,
			remoteID, entityType, id); err != nil {
			return fmt.Errorf("set entity remote id: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE intents SET remote_id = ? WHERE entity_type = ? AND entity_id = ? AND status != 'completed'`,
			remoteID, entityType, id); err != nil {
			return fmt.Errorf("set intent remote id: %w", err)
		}

		return nil
	})
}

func (s *Storage) setStatus(ctx context.Context, entityType, id string, status offline.SyncStatus) error {
	r, err := s.db.ExecContext(ctx,
		`UPDATE entities SET sync_status = ? WHERE entity_type = ? AND id = ?`, string(status), entityType, id)
	if err != nil {
		return fmt.Errorf("set entity status: %w", err)
	}

	n, err := r.RowsAffected()
	if err != nil {
		return fmt.Errorf("set entity status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("entity %s/%s: %w", entityType, id, offline.ErrNotFound)
	}

	return nil
}

func (s *Storage) queryEntities(ctx context.Context, query string, args ...any) ([]offline.Entity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.log.Error("failed to list entities", "error", err)
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	entities := make([]offline.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}

	return entities, nil
}

func scanEntity(row scanner) (*offline.Entity, error) {
	var (
		e            offline.Entity
		remoteID     sql.NullString
		data         string
		status       string
		lastModified string
	)

	err := row.Scan(&e.Type, &e.ID, &remoteID, &data, &e.Checksum, &e.Version, &lastModified, &status)
	if err != nil {
		return nil, err
	}

	e.LastModified, err = parseTime(lastModified)
	if err != nil {
		return nil, err
	}
	e.RemoteID = remoteID.String
	e.Payload = json.RawMessage(data)
	e.SyncStatus = offline.SyncStatus(status)

	return &e, nil
}

// lookupEntity читает версию и серверный id записи; отсутствие записи не ошибка
func lookupEntity(ctx context.Context, tx *sql.Tx, entityType, id string) (version int64, remoteID string, exists bool, err error) {
	var rid sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT version, remote_id FROM entities WHERE entity_type = ? AND id = ?`,
		entityType, id).Scan(&version, &rid)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, fmt.Errorf("read entity: %w", err)
	}
	return version, rid.String, true, nil
}

// refreshOpenConflict переносит локальную правку в открытый конфликт записи,
// чтобы разрешение не вернуло устаревшую локальную версию
func refreshOpenConflict(ctx context.Context, tx *sql.Tx, entityType, id string, data json.RawMessage, now time.Time) error {
	const query = `
		UPDATE conflicts SET local_payload = ?, local_modified = ?
		WHERE resolved = 0 AND entity_type = ? AND entity_id = ?`

	if _, err := tx.ExecContext(ctx, query, string(data), formatTime(now), entityType, id); err != nil {
		return fmt.Errorf("refresh open conflict: %w", err)
	}
	return nil
}
