// Package services provides business logic services for the learning platform.
package services

import (
	"context"
	"database/sql"
	"time"

	"learnapp/internal/config"
	"learnapp/internal/models"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TestEmailService implements the Mailer interface for testing purposes.
// It doesn't actually send emails but logs the operations and records them
// in the database when one is available.
type TestEmailService struct {
	cfg    *config.Config
	logger *observability.Logger
	db     *sql.DB
}

// NewTestEmailService creates a new TestEmailService instance
func NewTestEmailService(cfg *config.Config, logger *observability.Logger) *TestEmailService {
	return &TestEmailService{
		cfg:    cfg,
		logger: logger,
	}
}

// NewTestEmailServiceWithDB creates a new TestEmailService instance with database connection
func NewTestEmailServiceWithDB(cfg *config.Config, logger *observability.Logger, db *sql.DB) *TestEmailService {
	return &TestEmailService{
		cfg:    cfg,
		logger: logger,
		db:     db,
	}
}

// SendStudyReminder logs a study reminder instead of sending it
func (e *TestEmailService) SendStudyReminder(ctx context.Context, user *models.User) error {
	ctx, span := otel.Tracer("test-email-service").Start(ctx, "SendStudyReminder",
		trace.WithAttributes(
			attribute.Int("user.id", user.ID),
			attribute.String("user.email", user.Email.String),
		),
	)
	defer span.End()

	if !user.Email.Valid || user.Email.String == "" {
		e.logger.Warn(ctx, "User has no email address, skipping study reminder", map[string]interface{}{
			"user_id": user.ID,
		})
		return nil
	}

	e.logger.Info(ctx, "TEST MODE: Would send study reminder email", map[string]interface{}{
		"user_id":   user.ID,
		"email":     user.Email.String,
		"template":  "study_reminder",
		"test_mode": true,
	})
	return nil
}

// SendNotificationDigest logs a notification digest instead of sending it
func (e *TestEmailService) SendNotificationDigest(ctx context.Context, user *models.User, notifications []models.Notification) error {
	ctx, span := otel.Tracer("test-email-service").Start(ctx, "SendNotificationDigest",
		trace.WithAttributes(
			attribute.Int("user.id", user.ID),
			attribute.Int("digest.count", len(notifications)),
		),
	)
	defer span.End()

	e.logger.Info(ctx, "TEST MODE: Would send notification digest", map[string]interface{}{
		"user_id":   user.ID,
		"count":     len(notifications),
		"template":  "notification_digest",
		"test_mode": true,
	})
	return nil
}

// SendParentMessage logs a parent message instead of sending it
func (e *TestEmailService) SendParentMessage(ctx context.Context, to, subjectLine, body string) error {
	ctx, span := otel.Tracer("test-email-service").Start(ctx, "SendParentMessage",
		trace.WithAttributes(attribute.String("email.to", to)),
	)
	defer span.End()

	if to == "" {
		return contextutils.WrapError(contextutils.ErrInvalidInput, "recipient address is required")
	}

	e.logger.Info(ctx, "TEST MODE: Would send parent message", map[string]interface{}{
		"to":        to,
		"subject":   subjectLine,
		"body_len":  len(body),
		"template":  "parent_message",
		"test_mode": true,
	})
	return nil
}

// SendEmail logs a generic email instead of sending it
func (e *TestEmailService) SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) error {
	ctx, span := otel.Tracer("test-email-service").Start(ctx, "SendEmail",
		trace.WithAttributes(
			attribute.String("email.to", to),
			attribute.String("email.subject", subject),
			attribute.String("email.template", templateName),
		),
	)
	defer span.End()

	e.logger.Info(ctx, "TEST MODE: Would send email", map[string]interface{}{
		"to":        to,
		"subject":   subject,
		"template":  templateName,
		"data_keys": getMapKeys(data),
		"test_mode": true,
	})
	return nil
}

// RecordSentNotification records a sent notification in the database
func (e *TestEmailService) RecordSentNotification(ctx context.Context, userID int, notificationType, subject, templateName, status, errorMessage string) error {
	ctx, span := otel.Tracer("test-email-service").Start(ctx, "RecordSentNotification",
		trace.WithAttributes(
			attribute.Int("user.id", userID),
			attribute.String("notification.type", notificationType),
		),
	)
	defer span.End()

	if e.db == nil {
		e.logger.Info(ctx, "TEST MODE: Would record sent notification", map[string]interface{}{
			"user_id":           userID,
			"notification_type": notificationType,
			"test_mode":         true,
		})
		return nil
	}

	query := `
		INSERT INTO sent_notifications (user_id, notification_type, subject, template_name, sent_at, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := e.db.ExecContext(ctx, query, userID, notificationType, subject, templateName, time.Now(), status, errorMessage)
	if err != nil {
		return contextutils.WrapError(err, "failed to record sent notification")
	}
	return nil
}

// IsEnabled always reports enabled so test flows exercise the email paths
func (e *TestEmailService) IsEnabled() bool {
	return true
}

func getMapKeys(data map[string]interface{}) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	return keys
}
