package handlers

import (
	"net/http"

	"learnapp/internal/models"
	"learnapp/internal/observability"
	"learnapp/internal/services"
	contextutils "learnapp/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// VideoHandler handles educational video search HTTP requests
type VideoHandler struct {
	youtubeService services.YouTubeServiceInterface
	logger         *observability.Logger
}

// NewVideoHandler creates a new VideoHandler
func NewVideoHandler(youtubeService services.YouTubeServiceInterface, logger *observability.Logger) *VideoHandler {
	return &VideoHandler{
		youtubeService: youtubeService,
		logger:         logger,
	}
}

// Search finds curated educational videos for a query. Accepts the request
// either as query parameters (GET) or a JSON body (POST).
func (h *VideoHandler) Search(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "video_search")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	var req models.VideoSearchRequest
	if c.Request.Method == http.MethodGet {
		if err := c.ShouldBindQuery(&req); err != nil {
			HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
			return
		}
	} else {
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
			return
		}
	}
	span.SetAttributes(
		attribute.String("video.query", req.Query),
		observability.AttributeSubject(req.Subject),
	)

	response, err := h.youtubeService.SearchVideos(ctx, &req)
	if err != nil {
		h.logger.Error(ctx, "Video search failed", err, map[string]interface{}{
			"user_id": userID,
			"query":   req.Query,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// Quota reports whether video search is usable right now
func (h *VideoHandler) Quota(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "video_quota")
	defer observability.FinishSpan(span, nil)

	if _, exists := GetUserIDFromSession(c); !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	exhausted, resetAt := h.youtubeService.QuotaExhausted()
	payload := gin.H{"exhausted": exhausted}
	if exhausted {
		payload["reset_at"] = resetAt
	}
	c.JSON(http.StatusOK, payload)
}
