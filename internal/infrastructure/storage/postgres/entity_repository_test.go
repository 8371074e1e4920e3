package postgres

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"tiklay/internal/app/server/config"
	"tiklay/internal/domain/remote"
)

// Тест работает с настоящей базой: TIKLAY_TEST_DATABASE_URI=postgres://...
func createTestRepository(t *testing.T) *EntityRepository {
	t.Helper()

	uri := os.Getenv("TIKLAY_TEST_DATABASE_URI")
	if uri == "" {
		t.Skip("TIKLAY_TEST_DATABASE_URI is not set")
	}

	s, err := New(context.Background(), &config.Config{DB: config.DB{DatabaseURI: uri}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return NewEntityRepository(s.Pool(), slog.Default())
}

func TestEntityRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := createTestRepository(t)

	// отдельный тип на прогон, чтобы не зависеть от чужих данных
	entityType := "test_" + uuid.NewString()[:8]
	now := time.Now().UTC().Truncate(time.Microsecond)

	e := &remote.Entity{
		ID:        uuid.NewString(),
		Type:      entityType,
		Payload:   json.RawMessage(`{"name":"Ana","age":7}`),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, e))

	got, err := repo.Get(ctx, entityType, e.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(e.Payload), string(got.Payload))
	assert.True(t, now.Equal(got.UpdatedAt))

	e.Payload = json.RawMessage(`{"name":"Ana","age":8}`)
	e.UpdatedAt = now.Add(time.Second)
	require.NoError(t, repo.Update(ctx, e))

	list, err := repo.List(ctx, entityType)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.JSONEq(t, `{"name":"Ana","age":8}`, string(list[0].Payload))

	existed, err := repo.Delete(ctx, entityType, e.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = repo.Delete(ctx, entityType, e.ID)
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = repo.Get(ctx, entityType, e.ID)
	assert.ErrorIs(t, err, remote.ErrNotFound)

	err = repo.Update(ctx, e)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}
