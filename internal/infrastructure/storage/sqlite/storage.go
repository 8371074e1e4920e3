// Package sqlite реализует локальное хранилище офлайн-клиента на SQLite.
//
// Три коллекции: entities (копии сущностей), intents (очередь операций)
// и conflicts (реестр конфликтов). Каждая локальная мутация и постановка
// намерения выполняются в одной транзакции.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Blank import registers the sqlite3 database driver for migrations
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/exp/slog"

	"tiklay/internal/domain/offline"
	"tiklay/internal/infrastructure/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout фиксированной ширины, чтобы строки времени сравнивались лексикографически
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var _ offline.Store = (*Storage)(nil)

type Storage struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// Option настраивает хранилище
type Option func(*Storage)

// WithClock подменяет источник времени (используется в тестах)
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		s.now = now
	}
}

// Open открывает (или создает) базу по пути path и применяет миграции.
func Open(path string, log *slog.Logger, opts ...Option) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	mg := migration.NewMigration("", "sqlite3://"+path, migration.EmbeddedEngine(migrationsFS, "migrations"))
	if err := mg.Up(); err != nil {
		return nil, fmt.Errorf("migrate local store: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	// SQLite допускает одного писателя
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping local store: %w", err)
	}

	s := &Storage{
		db:  db,
		log: log.With("component", "sqlite_storage"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Stats возвращает сводку по трем коллекциям
func (s *Storage) Stats(ctx context.Context) (offline.Stats, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM entities),
			(SELECT COUNT(*) FROM entities WHERE sync_status = 'pending'),
			(SELECT COUNT(*) FROM intents WHERE status != 'completed'),
			(SELECT COUNT(*) FROM conflicts WHERE resolved = 0)`

	var st offline.Stats
	err := s.db.QueryRowContext(ctx, query).Scan(
		&st.TotalEntities, &st.PendingEntities, &st.PendingIntents, &st.OpenConflicts)
	if err != nil {
		return offline.Stats{}, fmt.Errorf("stats: %w", err)
	}

	return st, nil
}

// Cleanup удаляет завершенные намерения и разрешенные конфликты старше before,
// а также намерения, исчерпавшие maxRetries, и застрявшие за ними правки
func (s *Storage) Cleanup(ctx context.Context, before time.Time, maxRetries int) (offline.CleanupStats, error) {
	var res offline.CleanupStats
	cutoff := formatTime(before)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		r, err := tx.ExecContext(ctx,
			`DELETE FROM intents WHERE status = 'completed' AND completed_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("cleanup intents: %w", err)
		}
		res.Intents, _ = r.RowsAffected()

		if maxRetries > 0 {
			const abandon = `
				DELETE FROM intents
				WHERE status != 'completed' AND EXISTS (
					SELECT 1 FROM intents d
					WHERE d.status = 'failed' AND d.retry_count >= ?
						AND d.entity_type = intents.entity_type AND d.entity_id = intents.entity_id
						AND (d.seq = intents.seq OR (d.seq < intents.seq AND intents.kind != 'create')))`

			r, err = tx.ExecContext(ctx, abandon, maxRetries)
			if err != nil {
				return fmt.Errorf("cleanup abandoned intents: %w", err)
			}
			res.Abandoned, _ = r.RowsAffected()
		}

		r, err = tx.ExecContext(ctx,
			`DELETE FROM conflicts WHERE resolved = 1 AND resolved_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("cleanup conflicts: %w", err)
		}
		res.Conflicts, _ = r.RowsAffected()

		return nil
	})
	if err != nil {
		return offline.CleanupStats{}, err
	}

	s.log.Debug("cleanup finished", "intents", res.Intents, "abandoned", res.Abandoned, "conflicts", res.Conflicts)
	return res, nil
}

func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func (s *Storage) timestamp() time.Time {
	return s.now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid {
		return time.Time{}, nil
	}
	return parseTime(ns.String)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

type scanner interface {
	Scan(dest ...any) error
}
