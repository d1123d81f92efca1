// Package commands provides CLI commands for the admin tool
package commands

import (
	"context"
	"database/sql"
	"os"

	"learnapp/internal/observability"
	"learnapp/internal/services"
	contextutils "learnapp/internal/utils"

	"github.com/spf13/cobra"
)

// DatabaseCommands returns the database management commands
func DatabaseCommands(userService *services.UserService, logger *observability.Logger, db *sql.DB) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the learning platform.

Available commands:
  stats     - Show database statistics
  cleanup   - Run database cleanup operations`,
	}

	dbCmd.AddCommand(statsCmd(userService, logger, db))
	dbCmd.AddCommand(cleanupCmd(logger, db))

	return dbCmd
}

// statsCmd returns the stats command
func statsCmd(userService *services.UserService, logger *observability.Logger, db *sql.DB) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Long:  `Show database statistics including user counts and cleanup candidates.`,
		RunE:  runStats(userService, logger, db),
	}
}

// cleanupCmd returns the cleanup command
func cleanupCmd(logger *observability.Logger, db *sql.DB) *cobra.Command {
	var statsOnly bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run database cleanup operations",
		Long: `Run database cleanup operations to remove old data.

This command will:
- Remove expired Wolfram Alpha cache entries
- Clear expired API quota latches
- Remove orphaned content chunks
- Remove old read notifications

Use --stats flag to see what would be cleaned up without actually performing the cleanup.`,
		RunE: runCleanup(logger, &statsOnly, db),
	}

	cmd.Flags().BoolVar(&statsOnly, "stats", false, "Only show cleanup statistics, don't perform cleanup")

	return cmd
}

// runStats returns a function that shows database statistics
func runStats(userService *services.UserService, logger *observability.Logger, db *sql.DB) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		logger.Info(ctx, "Diagnostic info", map[string]interface{}{"config_file": os.Getenv("LEARNAPP_CONFIG_FILE"), "database": getDatabaseInfo(db)})

		_, totalUsers, err := userService.GetUsersPaginated(ctx, 1, 1, "", "", "")
		if err != nil {
			logger.Error(ctx, "Failed to get user statistics", err, map[string]interface{}{})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to get user statistics: %v", err)
		}

		wolframCache := services.NewWolframCacheRepository(db, logger)
		cleanupService := services.NewCleanupService(db, wolframCache, logger)
		cleanupStats, err := cleanupService.GetCleanupStats(ctx)
		if err != nil {
			logger.Error(ctx, "Failed to get cleanup statistics", err, map[string]interface{}{})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to get cleanup statistics: %v", err)
		}

		logger.Info(ctx, "Database statistics", map[string]interface{}{
			"total_users":           totalUsers,
			"expired_wolfram_cache": cleanupStats["expired_wolfram_cache"],
			"expired_quota_latches": cleanupStats["expired_quota_latches"],
			"orphaned_chunks":       cleanupStats["orphaned_chunks"],
			"old_notifications":     cleanupStats["old_notifications"],
			"database":              "PostgreSQL",
			"status":                "Connected",
		})

		return nil
	}
}

// runCleanup returns a function that runs database cleanup
func runCleanup(logger *observability.Logger, statsOnly *bool, db *sql.DB) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		logger.Info(ctx, "Diagnostic info", map[string]interface{}{"config_file": os.Getenv("LEARNAPP_CONFIG_FILE"), "database": getDatabaseInfo(db)})

		logger.Info(ctx, "Running database cleanup", map[string]interface{}{"stats_only": *statsOnly})

		if db == nil {
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "database connection not available")
		}

		wolframCache := services.NewWolframCacheRepository(db, logger)
		cleanupService := services.NewCleanupService(db, wolframCache, logger)

		if *statsOnly {
			stats, err := cleanupService.GetCleanupStats(ctx)
			if err != nil {
				logger.Error(ctx, "Failed to get cleanup stats", err, map[string]interface{}{"stats_only": true})
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to get cleanup stats: %v", err)
			}

			logger.Info(ctx, "Database cleanup statistics", map[string]interface{}{
				"expired_wolfram_cache": stats["expired_wolfram_cache"],
				"expired_quota_latches": stats["expired_quota_latches"],
				"orphaned_chunks":       stats["orphaned_chunks"],
				"old_notifications":     stats["old_notifications"],
			})

			total := 0
			for _, count := range stats {
				total += count
			}
			if total == 0 {
				logger.Info(ctx, "No cleanup needed - database is clean", map[string]interface{}{"total": total})
			} else {
				logger.Info(ctx, "Cleanup would remove items", map[string]interface{}{"total": total})
			}
			return nil
		}

		logger.Info(ctx, "Starting database cleanup", map[string]interface{}{"service": "cleanup"})

		if err := cleanupService.RunFullCleanup(ctx); err != nil {
			logger.Error(ctx, "Cleanup failed", err, map[string]interface{}{"service": "cleanup"})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "cleanup failed: %v", err)
		}

		logger.Info(ctx, "Database cleanup completed successfully", map[string]interface{}{"service": "cleanup"})
		return nil
	}
}
