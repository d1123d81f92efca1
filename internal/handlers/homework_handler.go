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

// HomeworkHandler handles the graduated-hint homework workflow
type HomeworkHandler struct {
	homeworkService services.HomeworkServiceInterface
	progressService services.ProgressServiceInterface
	logger          *observability.Logger
}

// NewHomeworkHandler creates a new HomeworkHandler
func NewHomeworkHandler(
	homeworkService services.HomeworkServiceInterface,
	progressService services.ProgressServiceInterface,
	logger *observability.Logger,
) *HomeworkHandler {
	return &HomeworkHandler{
		homeworkService: homeworkService,
		progressService: progressService,
		logger:          logger,
	}
}

// Start creates a new homework session with pre-generated hints
func (h *HomeworkHandler) Start(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "homework_start")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	var req models.StartHomeworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	span.SetAttributes(observability.AttributeSubject(req.Subject))

	session, err := h.homeworkService.StartSession(ctx, userID, &req)
	if err != nil {
		h.logger.Error(ctx, "Failed to start homework session", err, map[string]interface{}{
			"user_id": userID,
			"subject": req.Subject,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// Hint reveals the next hint for a session
func (h *HomeworkHandler) Hint(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "homework_hint")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	var req struct {
		SessionID int `json:"session_id" binding:"required"`
		Level     int `json:"level"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	span.SetAttributes(attribute.Int("homework.session_id", req.SessionID), attribute.Int("homework.hint_level", req.Level))

	hint, err := h.homeworkService.RevealHint(ctx, userID, req.SessionID, req.Level)
	if err != nil {
		h.logger.Warn(ctx, "Hint reveal rejected", map[string]interface{}{
			"user_id":    userID,
			"session_id": req.SessionID,
			"level":      req.Level,
			"error":      err.Error(),
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, hint)
}

// Attempt evaluates a submitted answer
func (h *HomeworkHandler) Attempt(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "homework_attempt")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	var req models.HomeworkAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	span.SetAttributes(attribute.Int("homework.session_id", req.SessionID))

	evaluation, err := h.homeworkService.SubmitAttempt(ctx, userID, req.SessionID, req.Answer)
	if err != nil {
		h.logger.Error(ctx, "Attempt evaluation failed", err, map[string]interface{}{
			"user_id":    userID,
			"session_id": req.SessionID,
		})
		HandleAppError(c, err)
		return
	}

	// Completed sessions feed the mastery tracker. Failures here must not
	// fail the attempt response.
	if evaluation.SessionComplete {
		session, sErr := h.homeworkService.GetSession(ctx, userID, req.SessionID)
		if sErr == nil && session != nil {
			score := 0.0
			if evaluation.IsCorrect {
				score = 1.0
			}
			if _, pErr := h.progressService.RecordPractice(ctx, &models.PracticeEvent{
				UserID:  userID,
				Subject: session.Subject,
				Topic:   session.Question,
				Score:   score,
			}); pErr != nil {
				h.logger.Warn(ctx, "Failed to record homework practice", map[string]interface{}{
					"user_id":    userID,
					"session_id": req.SessionID,
					"error":      pErr.Error(),
				})
			}
		}
	}

	c.JSON(http.StatusOK, evaluation)
}

// GetSession returns a single homework session owned by the user
func (h *HomeworkHandler) GetSession(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "homework_get_session")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	sessionID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "session id must be an integer"))
		return
	}
	span.SetAttributes(attribute.Int("homework.session_id", sessionID))

	session, err := h.homeworkService.GetSession(ctx, userID, sessionID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// ListSessions lists the user's homework sessions
func (h *HomeworkHandler) ListSessions(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "homework_list_sessions")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	page, pageSize := ParsePagination(c, 1, 20, 100)
	offset := (page - 1) * pageSize

	sessions, err := h.homeworkService.ListSessions(ctx, userID, pageSize, offset)
	if err != nil {
		h.logger.Error(ctx, "Failed to list homework sessions", err, map[string]interface{}{
			"user_id": userID,
		})
		HandleAppError(c, err)
		return
	}

	WritePaginated(c, "sessions", sessions, gin.H{"page": page, "page_size": pageSize}, nil)
}
