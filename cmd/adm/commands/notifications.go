package commands

import (
	"context"
	"database/sql"
	"fmt"

	"learnapp/internal/models"
	"learnapp/internal/observability"
	"learnapp/internal/services"
	contextutils "learnapp/internal/utils"

	"github.com/spf13/cobra"
)

// NotificationCommands returns the notification management commands
func NotificationCommands(userService *services.UserService, logger *observability.Logger, db *sql.DB) *cobra.Command {
	notificationCmd := &cobra.Command{
		Use:   "notification",
		Short: "Notification management commands",
		Long: `Notification management commands for the learning platform.

Available commands:
  broadcast - Send a notification to every active user`,
	}

	notificationCmd.AddCommand(broadcastCmd(userService, logger, db))

	return notificationCmd
}

// broadcastCmd returns the broadcast command
func broadcastCmd(userService *services.UserService, logger *observability.Logger, db *sql.DB) *cobra.Command {
	var title string
	var message string
	var notificationType string
	var sender string

	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Send a notification to every user",
		Long: `Send a notification to every user in the system.

The notification is attributed to the given sender, which must be an
existing admin or teacher account.`,
		RunE: runBroadcast(userService, logger, db, &title, &message, &notificationType, &sender),
	}

	cmd.Flags().StringVar(&title, "title", "", "Notification title (required)")
	cmd.Flags().StringVar(&message, "message", "", "Notification message (required)")
	cmd.Flags().StringVar(&notificationType, "type", string(models.NotificationAnnouncement), "Notification type")
	cmd.Flags().StringVar(&sender, "sender", "", "Username the notification is attributed to (required)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("message")
	_ = cmd.MarkFlagRequired("sender")

	return cmd
}

// runBroadcast returns a function that broadcasts a notification to all users
func runBroadcast(userService *services.UserService, logger *observability.Logger, db *sql.DB, title, message, notificationType, sender *string) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		senderUser, err := userService.GetUserByUsername(ctx, *sender)
		if err != nil {
			return contextutils.WrapErrorf(err, "failed to look up sender '%s'", *sender)
		}
		if senderUser == nil {
			return contextutils.ErrorWithContextf("sender '%s' not found", *sender)
		}

		rows, err := db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
		if err != nil {
			return contextutils.WrapError(err, "failed to list users")
		}
		defer func() {
			_ = rows.Close()
		}()

		var userIDs []int
		for rows.Next() {
			var id int
			if err := rows.Scan(&id); err != nil {
				return contextutils.WrapError(err, "failed to scan user ID")
			}
			userIDs = append(userIDs, id)
		}
		if err := rows.Err(); err != nil {
			return contextutils.WrapError(err, "failed to iterate users")
		}

		if len(userIDs) == 0 {
			fmt.Println("No users to notify")
			return nil
		}

		notificationService := services.NewNotificationService(db, logger)
		created, err := notificationService.Broadcast(ctx, senderUser.ID, userIDs, &models.CreateNotificationRequest{
			Title:   *title,
			Message: *message,
			Type:    models.NotificationType(*notificationType),
		})
		if err != nil {
			logger.Error(ctx, "Broadcast failed", err, map[string]interface{}{"recipients": len(userIDs)})
			return contextutils.WrapError(err, "broadcast failed")
		}

		fmt.Printf("Broadcast sent to %d users\n", created)
		logger.Info(ctx, "Notification broadcast completed", map[string]interface{}{
			"created": created,
			"sender":  senderUser.Username,
		})
		return nil
	}
}
