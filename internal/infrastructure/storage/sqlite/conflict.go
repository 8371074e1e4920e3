package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"tiklay/internal/domain/offline"
	"tiklay/internal/domain/payload"
)

const conflictColumns = `id, entity_type, entity_id, local_payload, remote_payload, local_modified,
	remote_modified, detected_at, resolved, resolution, resolved_at`

func (s *Storage) RecordConflict(ctx context.Context, c offline.Conflict) (string, error) {
	if c.EntityType == "" || c.EntityID == "" {
		return "", fmt.Errorf("%w: conflict without entity", offline.ErrInvalidArgument)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = s.timestamp()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		const query = `
			INSERT INTO conflicts (id, entity_type, entity_id, local_payload, remote_payload,
				local_modified, remote_modified, detected_at, resolved)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`

		if _, err := tx.ExecContext(ctx, query,
			c.ID, c.EntityType, c.EntityID, rawOrNull(c.LocalPayload), rawOrNull(c.RemotePayload),
			nullTime(c.LocalModified), nullTime(c.RemoteModified), formatTime(c.DetectedAt)); err != nil {
			return fmt.Errorf("insert conflict: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE entities SET sync_status = 'conflict' WHERE entity_type = ? AND id = ?`,
			c.EntityType, c.EntityID); err != nil {
			return fmt.Errorf("mark entity conflicted: %w", err)
		}

		return nil
	})
	if err != nil {
		s.log.Error("failed to record conflict",
			"entity_type", c.EntityType, "entity_id", c.EntityID, "error", err)
		return "", err
	}

	return c.ID, nil
}

func (s *Storage) GetConflict(ctx context.Context, id string) (*offline.Conflict, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE id = ?`, id)

	c, err := scanConflict(row)
	if notFound(err) {
		return nil, fmt.Errorf("conflict %s: %w", id, offline.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conflict: %w", err)
	}

	return c, nil
}

func (s *Storage) ListUnresolvedConflicts(ctx context.Context) ([]offline.Conflict, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conflictColumns+` FROM conflicts WHERE resolved = 0 ORDER BY detected_at, rowid`)
	if err != nil {
		s.log.Error("failed to list conflicts", "error", err)
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	conflicts := make([]offline.Conflict, 0)
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		conflicts = append(conflicts, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conflicts: %w", err)
	}

	return conflicts, nil
}

func (s *Storage) ResolveConflict(ctx context.Context, id string, resolution offline.Resolution, chosen json.RawMessage) error {
	if !resolution.Valid() {
		return fmt.Errorf("%w: unknown resolution %q", offline.ErrInvalidArgument, resolution)
	}
	if !payload.Valid(chosen) {
		return fmt.Errorf("%w: resolved payload is not valid JSON", offline.ErrInvalidArgument)
	}

	now := s.timestamp()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			entityType, entityID string
			resolved             bool
		)
		err := tx.QueryRowContext(ctx,
			`SELECT entity_type, entity_id, resolved FROM conflicts WHERE id = ?`, id).
			Scan(&entityType, &entityID, &resolved)
		if notFound(err) {
			return fmt.Errorf("conflict %s: %w", id, offline.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read conflict: %w", err)
		}
		if resolved {
			return fmt.Errorf("%w: conflict %s is already resolved", offline.ErrInvalidArgument, id)
		}

		version, remoteID, _, err := lookupEntity(ctx, tx, entityType, entityID)
		if err != nil {
			return err
		}
		version++

		// Выбор серверной версии завершает синхронизацию записи; локальная
		// или объединенная версия еще должна дойти до сервера
		status := offline.StatusPending
		if resolution == offline.ResolutionRemote {
			status = offline.StatusSynced
		}

		const upsert = `
			INSERT INTO entities (entity_type, id, remote_id, payload, checksum, version, last_modified, sync_status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (entity_type, id) DO UPDATE SET
				payload = excluded.payload,
				checksum = excluded.checksum,
				version = excluded.version,
				last_modified = excluded.last_modified,
				sync_status = excluded.sync_status`

		if _, err := tx.ExecContext(ctx, upsert,
			entityType, entityID, nullString(remoteID), string(chosen), payload.Checksum(chosen),
			version, formatTime(now), string(status)); err != nil {
			return fmt.Errorf("apply resolved payload: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE conflicts SET resolved = 1, resolution = ?, resolved_at = ? WHERE id = ?`,
			string(resolution), formatTime(now), id); err != nil {
			return fmt.Errorf("close conflict: %w", err)
		}

		if resolution == offline.ResolutionRemote {
			// локальные правки проиграли, отправлять их на сервер больше нельзя
			if _, err := tx.ExecContext(ctx, `
				UPDATE intents SET status = 'completed', completed_at = ?, last_error = 'superseded by remote version'
				WHERE entity_type = ? AND entity_id = ? AND status != 'completed' AND kind != 'delete'`,
				formatTime(now), entityType, entityID); err != nil {
				return fmt.Errorf("supersede local intents: %w", err)
			}
			return nil
		}

		return s.enqueue(ctx, tx, offline.Intent{
			Kind:          offline.KindUpdate,
			EntityType:    entityType,
			EntityID:      entityID,
			RemoteID:      remoteID,
			Payload:       chosen,
			EntityVersion: version,
			CreatedAt:     now,
		})
	})
}

func scanConflict(row scanner) (*offline.Conflict, error) {
	var (
		c              offline.Conflict
		local, remote  string
		localModified  sql.NullString
		remoteModified sql.NullString
		detectedAt     string
		resolution     sql.NullString
		resolvedAt     sql.NullString
	)

	err := row.Scan(&c.ID, &c.EntityType, &c.EntityID, &local, &remote, &localModified,
		&remoteModified, &detectedAt, &c.Resolved, &resolution, &resolvedAt)
	if err != nil {
		return nil, err
	}

	if c.LocalModified, err = parseNullTime(localModified); err != nil {
		return nil, err
	}
	if c.RemoteModified, err = parseNullTime(remoteModified); err != nil {
		return nil, err
	}
	if c.DetectedAt, err = parseTime(detectedAt); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t, err := parseTime(resolvedAt.String)
		if err != nil {
			return nil, err
		}
		c.ResolvedAt = &t
	}

	c.LocalPayload = json.RawMessage(local)
	c.RemotePayload = json.RawMessage(remote)
	c.Resolution = offline.Resolution(resolution.String)

	return &c, nil
}

func rawOrNull(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}
