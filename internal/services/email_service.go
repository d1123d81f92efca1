// Package services provides business logic services for the learning platform.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"html/template"
	"strings"
	"time"

	"learnapp/internal/config"
	"learnapp/internal/models"
	"learnapp/internal/observability"
	serviceinterfaces "learnapp/internal/serviceinterfaces"
	contextutils "learnapp/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/mail.v2"
)

// EmailService implements the serviceinterfaces.EmailService interface using gomail
type EmailService struct {
	cfg    *config.Config
	logger *observability.Logger
	dialer *mail.Dialer
	db     *sql.DB
}

// EmailServiceInterface defines the interface for email functionality
type EmailServiceInterface = serviceinterfaces.EmailService

// Ensure EmailService implements the EmailServiceInterface
var _ serviceinterfaces.EmailService = (*EmailService)(nil)

// Ensure EmailService can serve as the teacher tools parent email sender
var _ ParentEmailSender = (*EmailService)(nil)

// NewEmailService creates a new EmailService instance
func NewEmailService(cfg *config.Config, logger *observability.Logger) *EmailService {
	var dialer *mail.Dialer
	if cfg.Email.Enabled && cfg.Email.SMTP.Host != "" {
		dialer = mail.NewDialer(
			cfg.Email.SMTP.Host,
			cfg.Email.SMTP.Port,
			cfg.Email.SMTP.Username,
			cfg.Email.SMTP.Password,
		)
	}

	return &EmailService{
		cfg:    cfg,
		logger: logger,
		dialer: dialer,
	}
}

// NewEmailServiceWithDB creates a new EmailService instance with database connection
func NewEmailServiceWithDB(cfg *config.Config, logger *observability.Logger, db *sql.DB) *EmailService {
	if db == nil {
		panic("EmailService requires a non-nil database connection")
	}

	service := NewEmailService(cfg, logger)
	service.db = db
	return service
}

// SendStudyReminder sends a study reminder email to a user
func (e *EmailService) SendStudyReminder(ctx context.Context, user *models.User) (err error) {
	ctx, span := otel.Tracer("email-service").Start(ctx, "SendStudyReminder",
		trace.WithAttributes(
			attribute.Int("user.id", user.ID),
			attribute.String("user.email", user.Email.String),
		),
	)
	defer observability.FinishSpan(span, &err)

	if !e.IsEnabled() {
		e.logger.Info(ctx, "Email disabled, skipping study reminder", map[string]interface{}{
			"user_id": user.ID,
		})
		return nil
	}

	if !user.Email.Valid || user.Email.String == "" {
		e.logger.Warn(ctx, "User has no email address, skipping study reminder", map[string]interface{}{
			"user_id": user.ID,
		})
		return nil
	}

	data := map[string]interface{}{
		"Username":       user.Username,
		"AppURL":         e.cfg.Server.AppBaseURL,
		"CurrentDate":    time.Now().Format("January 2, 2006"),
		"UnsubscribeURL": fmt.Sprintf("%s/settings", e.cfg.Server.AppBaseURL),
	}

	subject := "Time to study! Your Class 12 practice is waiting"

	err = e.SendEmail(ctx, user.Email.String, subject, "study_reminder", data)
	if err != nil {
		return contextutils.WrapError(err, "failed to send study reminder")
	}

	e.logger.Info(ctx, "Study reminder sent", map[string]interface{}{
		"user_id": user.ID,
	})
	return nil
}

// SendNotificationDigest sends a digest of unread notifications to a user
func (e *EmailService) SendNotificationDigest(ctx context.Context, user *models.User, notifications []models.Notification) (err error) {
	ctx, span := otel.Tracer("email-service").Start(ctx, "SendNotificationDigest",
		trace.WithAttributes(
			attribute.Int("user.id", user.ID),
			attribute.Int("digest.count", len(notifications)),
		),
	)
	defer observability.FinishSpan(span, &err)

	if !e.IsEnabled() || len(notifications) == 0 {
		return nil
	}
	if !user.Email.Valid || user.Email.String == "" {
		return nil
	}

	type digestItem struct {
		Title   string
		Message string
	}
	items := make([]digestItem, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, digestItem{Title: n.Title, Message: n.Message})
	}

	data := map[string]interface{}{
		"Username": user.Username,
		"Items":    items,
		"AppURL":   e.cfg.Server.AppBaseURL,
	}

	subject := fmt.Sprintf("You have %d unread notifications", len(notifications))
	err = e.SendEmail(ctx, user.Email.String, subject, "notification_digest", data)
	if err != nil {
		return contextutils.WrapError(err, "failed to send notification digest")
	}
	return nil
}

// SendParentMessage sends a teacher-composed message to a parent. The body
// is already fully written, so it is delivered as-is inside the standard
// wrapper template.
func (e *EmailService) SendParentMessage(ctx context.Context, to, subjectLine, body string) (err error) {
	ctx, span := otel.Tracer("email-service").Start(ctx, "SendParentMessage",
		trace.WithAttributes(attribute.String("email.to", to)),
	)
	defer observability.FinishSpan(span, &err)

	if to == "" {
		return contextutils.WrapError(contextutils.ErrInvalidInput, "recipient address is required")
	}

	data := map[string]interface{}{
		"Body": body,
	}
	err = e.SendEmail(ctx, to, subjectLine, "parent_message", data)
	if err != nil {
		return contextutils.WrapError(err, "failed to send parent message")
	}
	return nil
}

// SendEmail sends a generic email with the given parameters
func (e *EmailService) SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) (err error) {
	ctx, span := otel.Tracer("email-service").Start(ctx, "SendEmail",
		trace.WithAttributes(
			attribute.String("email.to", to),
			attribute.String("email.subject", subject),
			attribute.String("email.template", templateName),
		),
	)
	defer observability.FinishSpan(span, &err)

	if !e.IsEnabled() {
		e.logger.Info(ctx, "Email disabled, skipping email send", map[string]interface{}{
			"to":       to,
			"template": templateName,
		})
		return nil
	}

	if e.dialer == nil {
		return contextutils.ErrorWithContextf("email service not properly configured")
	}

	m := mail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", e.cfg.Email.SMTP.FromName, e.cfg.Email.SMTP.FromAddress))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)

	content, err := e.generateEmailContent(templateName, data)
	if err != nil {
		return contextutils.WrapError(err, "failed to generate email content")
	}

	m.SetBody("text/html", content)

	if err = e.dialer.DialAndSend(m); err != nil {
		e.logger.Error(ctx, "Failed to send email", err, map[string]interface{}{
			"to":       to,
			"template": templateName,
			"subject":  subject,
		})
		return contextutils.WrapError(err, "failed to send email")
	}

	e.logger.Info(ctx, "Email sent successfully", map[string]interface{}{
		"to":       to,
		"template": templateName,
		"subject":  subject,
	})
	return nil
}

// RecordSentNotification records a sent notification in the database
func (e *EmailService) RecordSentNotification(ctx context.Context, userID int, notificationType, subject, templateName, status, errorMessage string) (err error) {
	ctx, span := otel.Tracer("email-service").Start(ctx, "RecordSentNotification",
		trace.WithAttributes(
			attribute.Int("user.id", userID),
			attribute.String("notification.type", notificationType),
			attribute.String("notification.status", status),
		),
	)
	defer observability.FinishSpan(span, &err)

	if e.db == nil {
		return contextutils.ErrorWithContextf("EmailService database connection is nil")
	}

	query := `
		INSERT INTO sent_notifications (user_id, notification_type, subject, template_name, sent_at, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = e.db.ExecContext(ctx, query, userID, notificationType, subject, templateName, time.Now(), status, errorMessage)
	if err != nil {
		return contextutils.WrapError(err, "failed to record sent notification")
	}
	return nil
}

// IsEnabled returns whether email functionality is enabled
func (e *EmailService) IsEnabled() bool {
	return e.cfg.Email.Enabled && e.cfg.Email.SMTP.Host != ""
}

// generateEmailContent generates email content from templates
func (e *EmailService) generateEmailContent(templateName string, data map[string]interface{}) (string, error) {
	body, ok := emailTemplates[templateName]
	if !ok {
		return "", contextutils.ErrorWithContextf("unknown template: %s", templateName)
	}

	tmpl, err := template.New(templateName).Parse(body)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to parse template")
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", contextutils.WrapError(err, "failed to execute template")
	}
	return buf.String(), nil
}

var emailTemplates = map[string]string{
	"study_reminder": `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Study Reminder</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #4CAF50; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { background-color: #f9f9f9; padding: 20px; }
        .button { display: inline-block; background-color: #4CAF50; color: white; padding: 12px 24px; text-decoration: none; border-radius: 5px; margin: 20px 0; }
        .footer { background-color: #eee; padding: 15px; text-align: center; font-size: 12px; color: #666; border-radius: 0 0 5px 5px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Study Reminder</h1>
        </div>
        <div class="content">
            <h2>Hello {{.Username}}!</h2>
            <p>It's {{.CurrentDate}} and your Class 12 practice is waiting.</p>
            <p>A little every day adds up. Pick a subject and keep your streak going!</p>
            <div style="text-align: center;">
                <a href="{{.AppURL}}/practice" class="button">Start Practicing</a>
            </div>
        </div>
        <div class="footer">
            <p>If you no longer wish to receive these reminders, you can <a href="{{.UnsubscribeURL}}">unsubscribe here</a>.</p>
        </div>
    </div>
</body>
</html>`,

	"notification_digest": `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Notification Digest</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #2196F3; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { background-color: #f9f9f9; padding: 20px; }
        .item { border-bottom: 1px solid #ddd; padding: 10px 0; }
        .footer { background-color: #eee; padding: 15px; text-align: center; font-size: 12px; color: #666; border-radius: 0 0 5px 5px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>While you were away</h1>
        </div>
        <div class="content">
            <h2>Hello {{.Username}}!</h2>
            <p>Here is what you missed:</p>
            {{range .Items}}
            <div class="item">
                <strong>{{.Title}}</strong>
                <p>{{.Message}}</p>
            </div>
            {{end}}
        </div>
        <div class="footer">
            <p><a href="{{.AppURL}}/notifications">View all notifications</a></p>
        </div>
    </div>
</body>
</html>`,

	"parent_message": `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Message from your child's teacher</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .content { background-color: #f9f9f9; padding: 20px; border-radius: 5px; white-space: pre-line; }
        .footer { padding: 15px; text-align: center; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <div class="content">{{.Body}}</div>
        <div class="footer">
            <p>Sent via the Class 12 Learning Platform.</p>
        </div>
    </div>
</body>
</html>`,

	"test_email": `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Test Email</title>
</head>
<body>
    <h2>Hello {{.Username}}!</h2>
    <p>This is a test email to verify that your email settings are working correctly.</p>
    <p><strong>Test Time:</strong> {{.TestTime}}</p>
    <p><strong>Message:</strong> {{.Message}}</p>
</body>
</html>`,
}
