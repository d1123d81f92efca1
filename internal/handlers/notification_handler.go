package handlers

import (
	"net/http"
	"strconv"

	"learnapp/internal/models"
	"learnapp/internal/observability"
	"learnapp/internal/services"
	contextutils "learnapp/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// NotificationHandler handles in-app notification HTTP requests
type NotificationHandler struct {
	notificationService services.NotificationServiceInterface
	logger              *observability.Logger
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notificationService services.NotificationServiceInterface, logger *observability.Logger) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		logger:              logger,
	}
}

// List returns the user's notifications, newest first
func (h *NotificationHandler) List(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "notifications_list")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	page, pageSize := ParsePagination(c, 1, 20, 100)
	filters := &models.NotificationFilters{
		Type:   models.NotificationType(c.Query("type")),
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}
	if raw := c.Query("is_read"); raw != "" {
		isRead, err := strconv.ParseBool(raw)
		if err != nil {
			HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "is_read must be a boolean"))
			return
		}
		filters.IsRead = &isRead
	}

	notifications, err := h.notificationService.List(ctx, userID, filters)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	WritePaginated(c, "notifications", notifications, gin.H{"page": page, "page_size": pageSize}, nil)
}

// UnreadCount returns how many unread notifications the user has
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "notifications_unread_count")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	count, err := h.notificationService.UnreadCount(ctx, userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// MarkRead marks one notification as read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "notifications_mark_read")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	notificationID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "notification id must be an integer"))
		return
	}

	if err := h.notificationService.MarkRead(ctx, userID, notificationID); err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// MarkAllRead marks every unread notification as read
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "notifications_mark_all_read")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	updated, err := h.notificationService.MarkAllRead(ctx, userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"marked_read": updated})
}

// Dismiss removes a notification from the user's feed
func (h *NotificationHandler) Dismiss(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "notifications_dismiss")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	notificationID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "notification id must be an integer"))
		return
	}

	if err := h.notificationService.Dismiss(ctx, userID, notificationID); err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Create sends a notification to one user (teacher or admin only)
func (h *NotificationHandler) Create(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "notifications_create")
	defer observability.FinishSpan(span, nil)

	creatorID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(creatorID))

	var req models.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	span.SetAttributes(attribute.Int("notification.target_user_id", req.UserID))

	notification, err := h.notificationService.Create(ctx, creatorID, &req)
	if err != nil {
		h.logger.Error(ctx, "Failed to create notification", err, map[string]interface{}{
			"creator_id":     creatorID,
			"target_user_id": req.UserID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, notification)
}

// Broadcast sends the same notification to many users (teacher or admin only)
func (h *NotificationHandler) Broadcast(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "notifications_broadcast")
	defer observability.FinishSpan(span, nil)

	creatorID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(creatorID))

	var req struct {
		UserIDs   []int                       `json:"user_ids" binding:"required,min=1"`
		Title     string                      `json:"title" binding:"required"`
		Message   string                      `json:"message" binding:"required"`
		Type      models.NotificationType     `json:"type"`
		Priority  models.NotificationPriority `json:"priority"`
		ActionURL string                      `json:"action_url,omitempty"`
		Metadata  string                      `json:"metadata,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	span.SetAttributes(attribute.Int("notification.recipient_count", len(req.UserIDs)))

	created, err := h.notificationService.Broadcast(ctx, creatorID, req.UserIDs, &models.CreateNotificationRequest{
		Title:     req.Title,
		Message:   req.Message,
		Type:      req.Type,
		Priority:  req.Priority,
		ActionURL: req.ActionURL,
		Metadata:  req.Metadata,
	})
	if err != nil {
		h.logger.Error(ctx, "Notification broadcast failed", err, map[string]interface{}{
			"creator_id": creatorID,
			"recipients": len(req.UserIDs),
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"created": created})
}

// ListCreated lists notifications the caller authored (teacher or admin only)
func (h *NotificationHandler) ListCreated(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "notifications_list_created")
	defer observability.FinishSpan(span, nil)

	creatorID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(creatorID))

	page, pageSize := ParsePagination(c, 1, 20, 100)
	offset := (page - 1) * pageSize

	notifications, err := h.notificationService.ListCreatedBy(ctx, creatorID, pageSize, offset)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	WritePaginated(c, "notifications", notifications, gin.H{"page": page, "page_size": pageSize}, nil)
}
