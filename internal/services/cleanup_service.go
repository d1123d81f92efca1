package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"learnapp/internal/observability"
)

// readNotificationRetention is how long read notifications are kept
const readNotificationRetention = 90 * 24 * time.Hour

// CleanupService handles database maintenance and cleanup tasks
type CleanupService struct {
	db           *sql.DB
	wolframCache WolframCacheRepository
	logger       *observability.Logger
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(db *sql.DB, wolframCache WolframCacheRepository, logger *observability.Logger) *CleanupService {
	return &CleanupService{
		db:           db,
		wolframCache: wolframCache,
		logger:       logger,
	}
}

// CleanupExpiredWolframCache removes Wolfram cache entries past their expiry
func (c *CleanupService) CleanupExpiredWolframCache(ctx context.Context) (err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "cleanup_expired_wolfram_cache")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.wolframCache == nil {
		return errors.New("wolfram cache repository not available")
	}

	count, err := c.wolframCache.CleanupExpiredResults(ctx)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(attribute.Int64("cleanup.rows_affected", count))
	if count > 0 {
		c.logger.Info(ctx, "Removed expired wolfram cache entries", map[string]interface{}{"rows_affected": count})
	}
	return nil
}

// CleanupExpiredQuotaLatches removes api_quota rows whose exhaustion window
// has passed, so the table only carries live latches
func (c *CleanupService) CleanupExpiredQuotaLatches(ctx context.Context) (err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "cleanup_expired_quota_latches")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.db == nil {
		return errors.New("database connection not available")
	}

	result, err := c.db.ExecContext(ctx, `DELETE FROM api_quota WHERE exhausted_until < NOW()`)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(attribute.Int64("cleanup.rows_affected", rowsAffected))
	if rowsAffected > 0 {
		c.logger.Info(ctx, "Removed expired quota latches", map[string]interface{}{"rows_affected": rowsAffected})
	}
	return nil
}

// CleanupOrphanedChunks removes content chunks whose content item no longer exists
func (c *CleanupService) CleanupOrphanedChunks(ctx context.Context) (err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "cleanup_orphaned_chunks")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.db == nil {
		return errors.New("database connection not available")
	}

	var count int
	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM content_chunks cc
		LEFT JOIN content_items ci ON cc.content_id = ci.id
		WHERE ci.id IS NULL
	`).Scan(&count)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(attribute.Int("cleanup.orphaned_chunks_count", count))
	if count == 0 {
		span.SetAttributes(attribute.String("cleanup.result", "no_orphaned_chunks"))
		return nil
	}

	c.logger.Info(ctx, "Found orphaned content chunks to cleanup", map[string]interface{}{"count": count})

	result, err := c.db.ExecContext(ctx, `
		DELETE FROM content_chunks
		WHERE content_id NOT IN (SELECT id FROM content_items)
	`)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(
		attribute.Int64("cleanup.rows_affected", rowsAffected),
		attribute.String("cleanup.result", "success"),
	)

	c.logger.Info(ctx, "Cleaned up orphaned content chunks", map[string]interface{}{"rows_affected": rowsAffected})
	return nil
}

// CleanupOldNotifications removes read notifications older than the retention window
func (c *CleanupService) CleanupOldNotifications(ctx context.Context) (err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "cleanup_old_notifications")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.db == nil {
		return errors.New("database connection not available")
	}

	cutoff := time.Now().Add(-readNotificationRetention)
	result, err := c.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE is_read = TRUE AND created_at < $1`, cutoff)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(attribute.Int64("cleanup.rows_affected", rowsAffected))
	if rowsAffected > 0 {
		c.logger.Info(ctx, "Removed old read notifications", map[string]interface{}{"rows_affected": rowsAffected})
	}
	return nil
}

// RunFullCleanup performs all cleanup operations
func (c *CleanupService) RunFullCleanup(ctx context.Context) (err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "run_full_cleanup")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	span.SetAttributes(attribute.String("cleanup.start_time", time.Now().Format(time.RFC3339)))
	c.logger.Info(ctx, "Starting database cleanup", map[string]interface{}{"start_time": time.Now().Format(time.RFC3339)})

	if err = c.CleanupExpiredWolframCache(ctx); err != nil {
		c.logger.Error(ctx, "Failed to cleanup wolfram cache", err, map[string]interface{}{})
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	if err = c.CleanupExpiredQuotaLatches(ctx); err != nil {
		c.logger.Error(ctx, "Failed to cleanup quota latches", err, map[string]interface{}{})
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	if err = c.CleanupOrphanedChunks(ctx); err != nil {
		c.logger.Error(ctx, "Failed to cleanup orphaned chunks", err, map[string]interface{}{})
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	if err = c.CleanupOldNotifications(ctx); err != nil {
		c.logger.Error(ctx, "Failed to cleanup old notifications", err, map[string]interface{}{})
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(
		attribute.String("cleanup.end_time", time.Now().Format(time.RFC3339)),
		attribute.String("cleanup.result", "success"),
	)

	c.logger.Info(ctx, "Database cleanup completed successfully", map[string]interface{}{"end_time": time.Now().Format(time.RFC3339)})
	return nil
}

// GetCleanupStats returns counts of rows each cleanup task would touch
func (c *CleanupService) GetCleanupStats(ctx context.Context) (result0 map[string]int, err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "get_cleanup_stats")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.db == nil {
		return nil, errors.New("database connection not available")
	}

	stats := make(map[string]int)

	var expiredCache int
	err = c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM wolfram_cache WHERE expires_at < NOW()`).Scan(&expiredCache)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return nil, err
	}
	stats["expired_wolfram_cache"] = expiredCache

	var expiredLatches int
	err = c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM api_quota WHERE exhausted_until < NOW()`).Scan(&expiredLatches)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return nil, err
	}
	stats["expired_quota_latches"] = expiredLatches

	var orphanedChunks int
	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM content_chunks cc
		LEFT JOIN content_items ci ON cc.content_id = ci.id
		WHERE ci.id IS NULL
	`).Scan(&orphanedChunks)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return nil, err
	}
	stats["orphaned_chunks"] = orphanedChunks

	var oldNotifications int
	cutoff := time.Now().Add(-readNotificationRetention)
	err = c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE is_read = TRUE AND created_at < $1`, cutoff).Scan(&oldNotifications)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return nil, err
	}
	stats["old_notifications"] = oldNotifications

	span.SetAttributes(
		attribute.Int("cleanup.stats.expired_wolfram_cache", expiredCache),
		attribute.Int("cleanup.stats.orphaned_chunks", orphanedChunks),
	)

	return stats, nil
}
