package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"

	"learnapp/internal/models"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// NotificationServiceInterface defines in-app notification operations
type NotificationServiceInterface interface {
	Create(ctx context.Context, createdBy int, req *models.CreateNotificationRequest) (*models.Notification, error)
	Broadcast(ctx context.Context, createdBy int, userIDs []int, req *models.CreateNotificationRequest) (int, error)
	List(ctx context.Context, userID int, filters *models.NotificationFilters) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID int) (int, error)
	MarkRead(ctx context.Context, userID, notificationID int) error
	MarkAllRead(ctx context.Context, userID int) (int64, error)
	Dismiss(ctx context.Context, userID, notificationID int) error
	ListCreatedBy(ctx context.Context, creatorID, limit, offset int) ([]models.Notification, error)
}

// NotificationService manages per-user in-app notifications
type NotificationService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(db *sql.DB, logger *observability.Logger) *NotificationService {
	return &NotificationService{
		db:     db,
		logger: logger,
	}
}

// normalizeNotificationRequest fills defaults and validates the payload
func normalizeNotificationRequest(req *models.CreateNotificationRequest) error {
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Message) == "" {
		return contextutils.WrapError(contextutils.ErrInvalidInput, "title and message are required")
	}
	if req.Type == "" {
		req.Type = models.NotificationSystem
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	if req.Metadata != "" && !json.Valid([]byte(req.Metadata)) {
		return contextutils.WrapError(contextutils.ErrInvalidFormat, "metadata must be valid JSON")
	}
	return nil
}

// Create creates a notification for one user
func (s *NotificationService) Create(ctx context.Context, createdBy int, req *models.CreateNotificationRequest) (notification *models.Notification, err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "create",
		observability.AttributeUserID(req.UserID),
	)
	defer observability.FinishSpan(span, &err)

	if err = normalizeNotificationRequest(req); err != nil {
		return nil, err
	}

	notification = &models.Notification{
		UserID:   req.UserID,
		Title:    req.Title,
		Message:  req.Message,
		Type:     req.Type,
		Priority: req.Priority,
	}
	if req.ActionURL != "" {
		notification.ActionURL = sql.NullString{String: req.ActionURL, Valid: true}
	}
	if req.Metadata != "" {
		notification.Metadata = sql.NullString{String: req.Metadata, Valid: true}
	}
	if createdBy > 0 {
		notification.CreatedBy = sql.NullInt32{Int32: int32(createdBy), Valid: true}
	}

	query := `
		INSERT INTO notifications (user_id, title, message, type, priority, action_url, metadata, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err = s.db.QueryRowContext(ctx, query,
		notification.UserID, notification.Title, notification.Message,
		notification.Type, notification.Priority,
		notification.ActionURL, notification.Metadata, notification.CreatedBy,
	).Scan(&notification.ID, &notification.CreatedAt)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to create notification")
	}

	return notification, nil
}

// Broadcast creates one notification per target user. Returns how many were
// created; individual failures are logged and skipped.
func (s *NotificationService) Broadcast(ctx context.Context, createdBy int, userIDs []int, req *models.CreateNotificationRequest) (created int, err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "broadcast",
		attribute.Int("notification.target_count", len(userIDs)),
	)
	defer observability.FinishSpan(span, &err)

	if len(userIDs) == 0 {
		return 0, contextutils.WrapError(contextutils.ErrInvalidInput, "no target users")
	}
	if err = normalizeNotificationRequest(req); err != nil {
		return 0, err
	}

	for _, userID := range userIDs {
		targetReq := *req
		targetReq.UserID = userID
		if _, createErr := s.Create(ctx, createdBy, &targetReq); createErr != nil {
			s.logger.Warn(ctx, "Failed to create broadcast notification", map[string]interface{}{
				"user_id": userID,
				"error":   createErr.Error(),
			})
			continue
		}
		created++
	}

	span.SetAttributes(attribute.Int("notification.created_count", created))
	return created, nil
}

// List returns a user's notifications, newest first, with optional
// is_read and type filters
func (s *NotificationService) List(ctx context.Context, userID int, filters *models.NotificationFilters) (notifications []models.Notification, err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "list",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	if filters == nil {
		filters = &models.NotificationFilters{}
	}
	limit := filters.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, user_id, title, message, type, priority, action_url, metadata, created_by, is_read, read_at, created_at
		FROM notifications
		WHERE user_id = $1
	`
	args := []interface{}{userID}
	if filters.IsRead != nil {
		args = append(args, *filters.IsRead)
		query += " AND is_read = $" + strconv.Itoa(len(args))
	}
	if filters.Type != "" {
		args = append(args, filters.Type)
		query += " AND type = $" + strconv.Itoa(len(args))
	}
	args = append(args, limit, offset)
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query notifications")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close notification rows", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	notifications = []models.Notification{}
	for rows.Next() {
		var notification models.Notification
		if scanErr := rows.Scan(
			&notification.ID,
			&notification.UserID,
			&notification.Title,
			&notification.Message,
			&notification.Type,
			&notification.Priority,
			&notification.ActionURL,
			&notification.Metadata,
			&notification.CreatedBy,
			&notification.IsRead,
			&notification.ReadAt,
			&notification.CreatedAt,
		); scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan notification row")
		}
		notifications = append(notifications, notification)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate notification rows")
	}

	return notifications, nil
}

// UnreadCount returns the number of unread notifications for a user
func (s *NotificationService) UnreadCount(ctx context.Context, userID int) (count int, err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "unread_count",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID,
	).Scan(&count)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to count unread notifications")
	}
	return count, nil
}

// MarkRead marks a single notification as read
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID int) (err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "mark_read",
		observability.AttributeUserID(userID),
		attribute.Int("notification.id", notificationID),
	)
	defer observability.FinishSpan(span, &err)

	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = NOW()
		WHERE id = $1 AND user_id = $2 AND is_read = FALSE
	`, notificationID, userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to mark notification read")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to get rows affected")
	}
	if affected == 0 {
		// either missing, someone else's, or already read
		var exists bool
		if checkErr := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM notifications WHERE id = $1 AND user_id = $2)`, notificationID, userID,
		).Scan(&exists); checkErr == nil && !exists {
			return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "notification %d not found", notificationID)
		}
	}
	return nil
}

// MarkAllRead marks all of a user's notifications as read and returns how
// many changed
func (s *NotificationService) MarkAllRead(ctx context.Context, userID int) (count int64, err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "mark_all_read",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = NOW()
		WHERE user_id = $1 AND is_read = FALSE
	`, userID)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to mark notifications read")
	}

	count, err = result.RowsAffected()
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to get rows affected")
	}
	span.SetAttributes(attribute.Int64("notification.marked_read", count))
	return count, nil
}

// Dismiss deletes a notification owned by the user
func (s *NotificationService) Dismiss(ctx context.Context, userID, notificationID int) (err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "dismiss",
		observability.AttributeUserID(userID),
		attribute.Int("notification.id", notificationID),
	)
	defer observability.FinishSpan(span, &err)

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`, notificationID, userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to dismiss notification")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to get rows affected")
	}
	if affected == 0 {
		return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "notification %d not found", notificationID)
	}
	return nil
}

// ListCreatedBy returns notifications a teacher or admin has sent
func (s *NotificationService) ListCreatedBy(ctx context.Context, creatorID, limit, offset int) (notifications []models.Notification, err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "list_created_by",
		observability.AttributeUserID(creatorID),
		observability.AttributeLimit(limit),
	)
	defer observability.FinishSpan(span, &err)

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, user_id, title, message, type, priority, action_url, metadata, created_by, is_read, read_at, created_at
		FROM notifications
		WHERE created_by = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, creatorID, limit, offset)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query sent notifications")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close notification rows", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	notifications = []models.Notification{}
	for rows.Next() {
		var notification models.Notification
		if scanErr := rows.Scan(
			&notification.ID,
			&notification.UserID,
			&notification.Title,
			&notification.Message,
			&notification.Type,
			&notification.Priority,
			&notification.ActionURL,
			&notification.Metadata,
			&notification.CreatedBy,
			&notification.IsRead,
			&notification.ReadAt,
			&notification.CreatedAt,
		); scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan notification row")
		}
		notifications = append(notifications, notification)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate notification rows")
	}

	return notifications, nil
}
