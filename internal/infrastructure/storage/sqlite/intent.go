package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tiklay/internal/domain/offline"
)

const intentColumns = `seq, id, kind, entity_type, entity_id, remote_id, payload, entity_version,
	created_at, status, retry_count, last_error, next_retry_at, completed_at`

// enqueue добавляет намерение в очередь в рамках транзакции мутации
func (s *Storage) enqueue(ctx context.Context, tx *sql.Tx, in offline.Intent) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	data := "null"
	if len(in.Payload) > 0 {
		data = string(in.Payload)
	}

	const query = `
		INSERT INTO intents (id, kind, entity_type, entity_id, remote_id, payload, entity_version, created_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending')`

	_, err := tx.ExecContext(ctx, query,
		in.ID, string(in.Kind), in.EntityType, in.EntityID, nullString(in.RemoteID),
		data, in.EntityVersion, formatTime(in.CreatedAt))
	if err != nil {
		return fmt.Errorf("enqueue %s intent: %w", in.Kind, err)
	}

	return nil
}

func (s *Storage) ListPendingIntents(ctx context.Context) ([]offline.Intent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+intentColumns+` FROM intents WHERE status != 'completed' ORDER BY seq`)
	if err != nil {
		s.log.Error("failed to list intents", "error", err)
		return nil, fmt.Errorf("list intents: %w", err)
	}
	defer rows.Close()

	intents := make([]offline.Intent, 0)
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		intents = append(intents, *in)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intents: %w", err)
	}

	return intents, nil
}

func (s *Storage) MarkIntentProcessing(ctx context.Context, id string) error {
	return s.updateIntent(ctx, id,
		`UPDATE intents SET status = 'processing' WHERE id = ?`, id)
}

func (s *Storage) MarkIntentCompleted(ctx context.Context, id string) error {
	return s.updateIntent(ctx, id,
		`UPDATE intents SET status = 'completed', completed_at = ?, last_error = NULL WHERE id = ?`,
		formatTime(s.timestamp()), id)
}

func (s *Storage) MarkIntentFailed(ctx context.Context, id, errMsg string, nextRetryAt time.Time) error {
	const query = `
		UPDATE intents
		SET status = 'failed', retry_count = retry_count + 1, last_error = ?, next_retry_at = ?
		WHERE id = ?`

	return s.updateIntent(ctx, id, query, errMsg, nullTime(nextRetryAt), id)
}

func (s *Storage) updateIntent(ctx context.Context, id, query string, args ...any) error {
	r, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update intent %s: %w", id, err)
	}

	n, err := r.RowsAffected()
	if err != nil {
		return fmt.Errorf("update intent %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("intent %s: %w", id, offline.ErrNotFound)
	}

	return nil
}

func scanIntent(row scanner) (*offline.Intent, error) {
	var (
		in          offline.Intent
		kind        string
		status      string
		remoteID    sql.NullString
		data        string
		createdAt   string
		lastError   sql.NullString
		nextRetryAt sql.NullString
		completedAt sql.NullString
	)

	err := row.Scan(&in.Seq, &in.ID, &kind, &in.EntityType, &in.EntityID, &remoteID, &data,
		&in.EntityVersion, &createdAt, &status, &in.RetryCount, &lastError, &nextRetryAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if in.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if in.NextRetryAt, err = parseNullTime(nextRetryAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		in.CompletedAt = &t
	}

	in.Kind = offline.IntentKind(kind)
	in.Status = offline.IntentStatus(status)
	in.RemoteID = remoteID.String
	in.Payload = json.RawMessage(data)
	in.LastError = lastError.String

	return &in, nil
}
