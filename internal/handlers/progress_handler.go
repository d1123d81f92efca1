package handlers

import (
	"net/http"

	"learnapp/internal/observability"
	"learnapp/internal/services"
	contextutils "learnapp/internal/utils"

	"github.com/gin-gonic/gin"
)

// ProgressHandler handles mastery tracking HTTP requests
type ProgressHandler struct {
	progressService services.ProgressServiceInterface
	logger          *observability.Logger
}

// NewProgressHandler creates a new ProgressHandler
func NewProgressHandler(progressService services.ProgressServiceInterface, logger *observability.Logger) *ProgressHandler {
	return &ProgressHandler{
		progressService: progressService,
		logger:          logger,
	}
}

// List returns per-topic mastery for the user
func (h *ProgressHandler) List(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "progress_list")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	progress, err := h.progressService.ListProgress(ctx, userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"progress": progress})
}

// GetTopic returns mastery for one subject plus topic pair
func (h *ProgressHandler) GetTopic(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "progress_get_topic")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	subject := c.Query("subject")
	topic := c.Query("topic")
	if subject == "" || topic == "" {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrMissingRequired, "subject and topic are required"))
		return
	}
	span.SetAttributes(
		observability.AttributeSubject(subject),
		observability.AttributeTopic(topic),
	)

	progress, err := h.progressService.GetTopic(ctx, userID, subject, topic)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, progress)
}

// Summary returns the user's aggregate progress dashboard
func (h *ProgressHandler) Summary(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "progress_summary")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	summary, err := h.progressService.Summary(ctx, userID)
	if err != nil {
		h.logger.Error(ctx, "Failed to build progress summary", err, map[string]interface{}{
			"user_id": userID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ListAchievements returns the user's earned achievements
func (h *ProgressHandler) ListAchievements(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "progress_list_achievements")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	achievements, err := h.progressService.ListAchievements(ctx, userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"achievements": achievements})
}
