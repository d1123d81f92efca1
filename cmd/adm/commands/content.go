package commands

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"learnapp/internal/config"
	"learnapp/internal/models"
	"learnapp/internal/observability"
	"learnapp/internal/services"
	contextutils "learnapp/internal/utils"

	"github.com/spf13/cobra"
)

// reindexBatchSize bounds how many items each indexing pass processes.
const reindexBatchSize = 25

// ContentCommands returns the content management commands
func ContentCommands(cfg *config.Config, logger *observability.Logger, db *sql.DB) *cobra.Command {
	contentCmd := &cobra.Command{
		Use:   "content",
		Short: "Content management commands",
		Long: `Content management commands for the learning platform.

Available commands:
  reindex   - Rebuild vector index entries for uploaded content`,
	}

	contentCmd.AddCommand(reindexCmd(cfg, logger, db))

	return contentCmd
}

// reindexCmd returns the reindex command
func reindexCmd(cfg *config.Config, logger *observability.Logger, db *sql.DB) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "reindex [content-id]",
		Short: "Rebuild vector index entries for content",
		Long: `Rebuild vector index entries for uploaded study content.

With a content ID argument, reindexes that single item. With --all,
marks every content item as pending and drains the indexing backlog.
Requires Gemini and Pinecone credentials in the configuration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runReindex(cfg, logger, db, &all),
	}

	cmd.Flags().BoolVar(&all, "all", false, "Reindex every content item")

	return cmd
}

// runReindex returns a function that reindexes content
func runReindex(cfg *config.Config, logger *observability.Logger, db *sql.DB, all *bool) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := context.Background()

		if !*all && len(args) == 0 {
			return contextutils.ErrorWithContextf("provide a content ID or use --all")
		}

		gemini, err := services.NewGeminiService(ctx, cfg, logger)
		if err != nil {
			return contextutils.WrapError(err, "failed to initialize gemini service")
		}
		defer func() {
			if err := gemini.Shutdown(context.TODO()); err != nil {
				logger.Warn(ctx, "Failed to shut down gemini service", map[string]interface{}{"error": err.Error()})
			}
		}()

		index, err := services.NewPineconeIndex(&cfg.Embedding, logger)
		if err != nil {
			return contextutils.WrapError(err, "vector index is not configured")
		}

		contentService := services.NewContentService(db, gemini, index, &cfg.Embedding, logger)

		if !*all {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return contextutils.ErrorWithContextf("invalid content ID %q", args[0])
			}

			if err := contentService.IndexContent(ctx, id); err != nil {
				logger.Error(ctx, "Failed to reindex content", err, map[string]interface{}{"content_id": id})
				return contextutils.WrapErrorf(err, "failed to reindex content %d", id)
			}

			fmt.Printf("Reindexed content item %d\n", id)
			return nil
		}

		result, err := db.ExecContext(ctx,
			`UPDATE content_items SET index_status = $1, index_error = NULL`, models.IndexPending)
		if err != nil {
			return contextutils.WrapError(err, "failed to mark content for reindexing")
		}
		marked, _ := result.RowsAffected()
		fmt.Printf("Marked %d content items for reindexing\n", marked)

		total := 0
		for {
			indexed, err := contentService.IndexPending(ctx, reindexBatchSize)
			if err != nil {
				logger.Error(ctx, "Indexing pass failed", err, map[string]interface{}{"indexed_so_far": total})
				return contextutils.WrapError(err, "indexing pass failed")
			}
			total += indexed
			if indexed == 0 {
				break
			}
			fmt.Printf("Indexed %d items (%d total)\n", indexed, total)
		}

		fmt.Printf("Reindexing complete: %d items indexed\n", total)
		logger.Info(ctx, "Content reindex completed", map[string]interface{}{"indexed": total})
		return nil
	}
}
