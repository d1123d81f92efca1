//go:build integration

package services

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"learnapp/internal/config"
	"learnapp/internal/database"
	"learnapp/internal/observability"

	"github.com/stretchr/testify/require"
)

// SharedTestDBSetup provides a clean, isolated database for each integration test
// Uses the optimized CleanupTestDatabase function for consistent cleanup
func SharedTestDBSetup(t *testing.T) *sql.DB {
	observabilityLogger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	dbManager := database.NewManager(observabilityLogger)

	// Require TEST_DATABASE_URL environment variable to be set
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Fatal("TEST_DATABASE_URL environment variable must be set for integration tests")
	}

	db, err := dbManager.InitDB(databaseURL)
	require.NoError(t, err)

	// Use the optimized cleanup function
	CleanupTestDatabase(db, t)

	return db
}

// cleanupDatabase performs the core database cleanup operations
// This is the shared implementation used by both CleanupTestDatabase and SharedTestSuite.Cleanup
func cleanupDatabase(db *sql.DB, logger *observability.Logger) {
	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		if logger != nil {
			logger.Error(ctx, "Failed to begin cleanup transaction", err)
		}
		return
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// Fast cleanup with batched operations
	cleanupQueries := []string{
		"TRUNCATE TABLE content_chunks CASCADE",
		"TRUNCATE TABLE content_items CASCADE",
		"TRUNCATE TABLE messages CASCADE",
		"TRUNCATE TABLE conversations CASCADE",
		"TRUNCATE TABLE notifications CASCADE",
		"TRUNCATE TABLE achievements CASCADE",
		"TRUNCATE TABLE topic_progress CASCADE",
		"TRUNCATE TABLE quiz_sessions CASCADE",
		"TRUNCATE TABLE quiz_templates CASCADE",
		"TRUNCATE TABLE homework_sessions CASCADE",
		"TRUNCATE TABLE doubts CASCADE",
		"TRUNCATE TABLE wolfram_cache CASCADE",
		"TRUNCATE TABLE teacher_artifacts CASCADE",
		"TRUNCATE TABLE api_quota CASCADE",
		"TRUNCATE TABLE worker_status CASCADE",
		"TRUNCATE TABLE worker_settings CASCADE",
		"TRUNCATE TABLE user_roles CASCADE",
		"TRUNCATE TABLE schools CASCADE",
		"TRUNCATE TABLE users CASCADE",
	}

	for _, query := range cleanupQueries {
		_, err := tx.ExecContext(ctx, query)
		if err != nil {
			if logger != nil {
				logger.Warn(ctx, "Could not execute cleanup query", map[string]interface{}{
					"query": query,
				})
			}
		}
	}

	// Reset sequences
	sequenceQueries := []string{
		"ALTER SEQUENCE users_id_seq RESTART WITH 1",
		"ALTER SEQUENCE doubts_id_seq RESTART WITH 1",
		"ALTER SEQUENCE homework_sessions_id_seq RESTART WITH 1",
		"ALTER SEQUENCE quiz_templates_id_seq RESTART WITH 1",
		"ALTER SEQUENCE quiz_sessions_id_seq RESTART WITH 1",
		"ALTER SEQUENCE conversations_id_seq RESTART WITH 1",
		"ALTER SEQUENCE content_items_id_seq RESTART WITH 1",
	}

	for _, query := range sequenceQueries {
		_, err := tx.ExecContext(ctx, query)
		if err != nil {
			if logger != nil {
				logger.Warn(ctx, "Could not reset sequence", map[string]interface{}{
					"query": query,
				})
			}
		}
	}

	// Re-insert default worker settings
	_, err = tx.ExecContext(ctx, `
		INSERT INTO worker_settings (setting_key, setting_value, created_at, updated_at)
		VALUES ('global_pause', 'false', NOW(), NOW())
		ON CONFLICT (setting_key) DO NOTHING;
	`)
	if err != nil {
		if logger != nil {
			logger.Error(ctx, "Failed to insert worker settings", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		if logger != nil {
			logger.Error(ctx, "Failed to commit cleanup transaction", err)
		}
	}
}

// CleanupTestDatabase cleans up the database for integration tests
// This function can be used by any integration test that needs to clean up the database
// Optimized to use batched transactions for better performance
func CleanupTestDatabase(db *sql.DB, t *testing.T) {
	cleanupDatabase(db, nil)
}
