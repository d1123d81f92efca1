// Package mailer defines the email sending interface for the learning platform.
package mailer

import (
	"context"

	"learnapp/internal/models"
)

// Mailer defines the interface for email sending functionality
type Mailer interface {
	// SendStudyReminder sends a study reminder email to a user
	SendStudyReminder(ctx context.Context, user *models.User) error

	// SendNotificationDigest sends a digest of unread notifications to a user
	SendNotificationDigest(ctx context.Context, user *models.User, notifications []models.Notification) error

	// SendParentMessage sends a teacher-composed message to a parent
	SendParentMessage(ctx context.Context, to, subjectLine, body string) error

	// SendEmail sends a generic email with the given parameters
	SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) error

	// IsEnabled returns whether email functionality is enabled
	IsEnabled() bool

	// RecordSentNotification records a sent notification in the database
	RecordSentNotification(ctx context.Context, userID int, notificationType, subject, templateName, status, errorMessage string) error
}
