package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"learnapp/internal/config"
	"learnapp/internal/observability"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockWolframCacheRepository(t *testing.T) (WolframCacheRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	repo := NewWolframCacheRepository(db, logger)

	cleanup := func() {
		mock.ExpectClose()
		require.NoError(t, db.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	}
	return repo, mock, cleanup
}

func TestGetCachedResult(t *testing.T) {
	repo, mock, cleanup := newMockWolframCacheRepository(t)
	defer cleanup()

	key := WolframCacheKey("solve x^2 = 4")
	created := time.Now().Add(-time.Hour)
	expires := time.Now().Add(time.Hour)

	mock.ExpectQuery("SELECT id, cache_key, payload, created_at, expires_at").
		WithArgs(key).
		WillReturnRows(sqlmock.NewRows([]string{"id", "cache_key", "payload", "created_at", "expires_at"}).
			AddRow(42, key, `{"query":"solve x^2 = 4"}`, created, expires))

	entry, err := repo.GetCachedResult(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 42, entry.ID)
	assert.Equal(t, key, entry.CacheKey)
	assert.Equal(t, `{"query":"solve x^2 = 4"}`, entry.Payload)
	assert.False(t, entry.Expired(time.Now()))
}

func TestGetCachedResult_Miss(t *testing.T) {
	repo, mock, cleanup := newMockWolframCacheRepository(t)
	defer cleanup()

	key := WolframCacheKey("nothing cached")
	mock.ExpectQuery("SELECT id, cache_key, payload, created_at, expires_at").
		WithArgs(key).
		WillReturnError(sql.ErrNoRows)

	entry, err := repo.GetCachedResult(context.Background(), key)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestSaveResult(t *testing.T) {
	repo, mock, cleanup := newMockWolframCacheRepository(t)
	defer cleanup()

	key := WolframCacheKey("solve x^2 = 4")
	mock.ExpectExec("INSERT INTO wolfram_cache").
		WithArgs(key, `{"query":"solve x^2 = 4"}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveResult(context.Background(), key, `{"query":"solve x^2 = 4"}`, time.Hour)
	require.NoError(t, err)
}

func TestCleanupExpiredResults(t *testing.T) {
	repo, mock, cleanup := newMockWolframCacheRepository(t)
	defer cleanup()

	mock.ExpectExec("DELETE FROM wolfram_cache WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.CleanupExpiredResults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
