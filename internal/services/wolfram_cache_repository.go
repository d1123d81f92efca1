package services

import (
	"context"
	"crypto/md5"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"learnapp/internal/models"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// WolframCacheRepository defines the interface for Wolfram result cache operations
type WolframCacheRepository interface {
	// GetCachedResult retrieves a cached Wolfram payload if it exists and is not expired
	GetCachedResult(ctx context.Context, cacheKey string) (*models.WolframCacheEntry, error)

	// SaveResult stores a Wolfram payload in the cache with the configured TTL
	SaveResult(ctx context.Context, cacheKey, payload string, ttl time.Duration) error

	// CleanupExpiredResults removes expired Wolfram cache entries
	CleanupExpiredResults(ctx context.Context) (int64, error)
}

// WolframCacheRepositoryImpl implements WolframCacheRepository
type WolframCacheRepositoryImpl struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewWolframCacheRepository creates a new Wolfram cache repository
func NewWolframCacheRepository(db *sql.DB, logger *observability.Logger) WolframCacheRepository {
	return &WolframCacheRepositoryImpl{
		db:     db,
		logger: logger,
	}
}

// WolframCacheKey builds the cache key for a query. Queries are lowercased
// and trimmed first so trivially different spellings share an entry.
func WolframCacheKey(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	return fmt.Sprintf("wolfram:%x", md5.Sum([]byte(normalized)))
}

// GetCachedResult retrieves a cached Wolfram payload if it exists and is not expired
func (r *WolframCacheRepositoryImpl) GetCachedResult(ctx context.Context, cacheKey string) (result *models.WolframCacheEntry, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_cached_wolfram_result",
		attribute.String("cache.key", cacheKey),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT id, cache_key, payload, created_at, expires_at
		FROM wolfram_cache
		WHERE cache_key = $1
		  AND expires_at > NOW()
	`

	entry := &models.WolframCacheEntry{}
	err = r.db.QueryRowContext(ctx, query, cacheKey).Scan(
		&entry.ID,
		&entry.CacheKey,
		&entry.Payload,
		&entry.CreatedAt,
		&entry.ExpiresAt,
	)

	if err == sql.ErrNoRows {
		span.SetAttributes(attribute.Bool("cache.found", false))
		return nil, nil // Not found or expired
	}

	if err != nil {
		err = contextutils.WrapError(err, "failed to query wolfram cache")
		return nil, err
	}

	span.SetAttributes(attribute.Bool("cache.found", true))
	return entry, nil
}

// SaveResult stores a Wolfram payload in the cache with the configured TTL
func (r *WolframCacheRepositoryImpl) SaveResult(ctx context.Context, cacheKey, payload string, ttl time.Duration) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "save_wolfram_cache",
		attribute.String("cache.key", cacheKey),
		attribute.Int("cache.payload_length", len(payload)),
	)
	defer observability.FinishSpan(span, &err)

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	expiresAt := time.Now().Add(ttl)

	query := `
		INSERT INTO wolfram_cache (cache_key, payload, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cache_key)
		DO UPDATE SET
			payload = EXCLUDED.payload,
			expires_at = EXCLUDED.expires_at,
			created_at = CURRENT_TIMESTAMP
	`

	_, err = r.db.ExecContext(ctx, query, cacheKey, payload, expiresAt)
	if err != nil {
		err = contextutils.WrapError(err, "failed to save wolfram result to cache")
		return err
	}

	span.SetAttributes(
		attribute.String("cache.expires_at", expiresAt.Format(time.RFC3339)),
	)

	return nil
}

// CleanupExpiredResults removes expired Wolfram cache entries
func (r *WolframCacheRepositoryImpl) CleanupExpiredResults(ctx context.Context) (count int64, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "cleanup_expired_wolfram_cache")
	defer observability.FinishSpan(span, &err)

	query := `DELETE FROM wolfram_cache WHERE expires_at < NOW()`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		err = contextutils.WrapError(err, "failed to cleanup expired wolfram cache")
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		err = contextutils.WrapError(err, "failed to get rows affected")
		return 0, err
	}

	span.SetAttributes(attribute.Int64("cache.deleted_count", rowsAffected))
	r.logger.Info(ctx, "Cleaned up expired wolfram cache entries", map[string]interface{}{
		"deleted_count": rowsAffected,
	})

	return rowsAffected, nil
}
