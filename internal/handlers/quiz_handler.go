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

// QuizHandler handles quiz template and session HTTP requests
type QuizHandler struct {
	quizService     services.QuizServiceInterface
	progressService services.ProgressServiceInterface
	logger          *observability.Logger
}

// NewQuizHandler creates a new QuizHandler
func NewQuizHandler(
	quizService services.QuizServiceInterface,
	progressService services.ProgressServiceInterface,
	logger *observability.Logger,
) *QuizHandler {
	return &QuizHandler{
		quizService:     quizService,
		progressService: progressService,
		logger:          logger,
	}
}

// CreateTemplate creates a quiz template by hand (teacher only)
func (h *QuizHandler) CreateTemplate(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "quiz_create_template")
	defer observability.FinishSpan(span, nil)

	teacherID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(teacherID))

	var req models.CreateQuizTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	span.SetAttributes(observability.AttributeSubject(req.Subject))

	template, err := h.quizService.CreateTemplate(ctx, teacherID, &req)
	if err != nil {
		h.logger.Error(ctx, "Failed to create quiz template", err, map[string]interface{}{
			"teacher_id": teacherID,
			"subject":    req.Subject,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, template)
}

// GenerateTemplate asks the AI for a quiz template (teacher only)
func (h *QuizHandler) GenerateTemplate(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "quiz_generate_template")
	defer observability.FinishSpan(span, nil)

	teacherID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(teacherID))

	var req models.GenerateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	span.SetAttributes(
		observability.AttributeSubject(req.Subject),
		attribute.String("quiz.topic", req.Topic),
		attribute.Int("quiz.question_count", req.QuestionCount),
	)

	template, err := h.quizService.GenerateTemplate(ctx, teacherID, &req)
	if err != nil {
		h.logger.Error(ctx, "Quiz generation failed", err, map[string]interface{}{
			"teacher_id": teacherID,
			"subject":    req.Subject,
			"topic":      req.Topic,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, template)
}

// ListTemplates lists quiz templates, optionally filtered by subject
func (h *QuizHandler) ListTemplates(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "quiz_list_templates")
	defer observability.FinishSpan(span, nil)

	if _, exists := GetUserIDFromSession(c); !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	subject := c.Query("subject")
	page, pageSize := ParsePagination(c, 1, 20, 100)
	offset := (page - 1) * pageSize

	templates, err := h.quizService.ListTemplates(ctx, subject, pageSize, offset)
	if err != nil {
		h.logger.Error(ctx, "Failed to list quiz templates", err, map[string]interface{}{
			"subject": subject,
		})
		HandleAppError(c, err)
		return
	}

	WritePaginated(c, "templates", templates, gin.H{"page": page, "page_size": pageSize}, nil)
}

// GetTemplate returns a single quiz template
func (h *QuizHandler) GetTemplate(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "quiz_get_template")
	defer observability.FinishSpan(span, nil)

	if _, exists := GetUserIDFromSession(c); !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	templateID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "template id must be an integer"))
		return
	}

	template, err := h.quizService.GetTemplate(ctx, templateID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, template)
}

// StartSession starts a quiz session from a template
func (h *QuizHandler) StartSession(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "quiz_start_session")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	var req models.StartQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	span.SetAttributes(attribute.Int("quiz.template_id", req.TemplateID))

	session, err := h.quizService.StartSession(ctx, userID, req.TemplateID)
	if err != nil {
		h.logger.Error(ctx, "Failed to start quiz session", err, map[string]interface{}{
			"user_id":     userID,
			"template_id": req.TemplateID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// SaveAnswer records one answer within a running session
func (h *QuizHandler) SaveAnswer(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "quiz_save_answer")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	var req models.QuizAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	span.SetAttributes(
		attribute.Int("quiz.session_id", req.SessionID),
		attribute.Int("quiz.question_number", req.QuestionNumber),
	)

	session, err := h.quizService.SaveAnswer(ctx, userID, &req)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// Submit scores the session. Re-submitting returns the stored result.
func (h *QuizHandler) Submit(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "quiz_submit")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	var req struct {
		SessionID int `json:"session_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	span.SetAttributes(attribute.Int("quiz.session_id", req.SessionID))

	result, err := h.quizService.Submit(ctx, userID, req.SessionID)
	if err != nil {
		h.logger.Error(ctx, "Quiz submit failed", err, map[string]interface{}{
			"user_id":    userID,
			"session_id": req.SessionID,
		})
		HandleAppError(c, err)
		return
	}

	h.recordQuizPractice(c, userID, req.SessionID, result)

	c.JSON(http.StatusOK, result)
}

// recordQuizPractice feeds the quiz outcome into the mastery tracker.
// Failures are logged, never surfaced to the student.
func (h *QuizHandler) recordQuizPractice(c *gin.Context, userID, sessionID int, result *models.QuizResult) {
	ctx := c.Request.Context()

	session, err := h.quizService.GetSession(ctx, userID, sessionID)
	if err != nil || session == nil {
		return
	}
	template, err := h.quizService.GetTemplate(ctx, session.TemplateID)
	if err != nil || template == nil {
		return
	}

	if _, err := h.progressService.RecordPractice(ctx, &models.PracticeEvent{
		UserID:  userID,
		Subject: template.Subject,
		Topic:   template.Topic,
		Score:   result.Percentage / 100.0,
	}); err != nil {
		h.logger.Warn(ctx, "Failed to record quiz practice", map[string]interface{}{
			"user_id":    userID,
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
}

// GetSession returns a quiz session owned by the user
func (h *QuizHandler) GetSession(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "quiz_get_session")
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
	span.SetAttributes(attribute.Int("quiz.session_id", sessionID))

	session, err := h.quizService.GetSession(ctx, userID, sessionID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// ListTemplateSessions lists sessions of one template (teacher only)
func (h *QuizHandler) ListTemplateSessions(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "quiz_list_template_sessions")
	defer observability.FinishSpan(span, nil)

	if _, exists := GetUserIDFromSession(c); !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	templateID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "template id must be an integer"))
		return
	}

	page, pageSize := ParsePagination(c, 1, 20, 100)
	offset := (page - 1) * pageSize

	sessions, err := h.quizService.ListTemplateSessions(ctx, templateID, pageSize, offset)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	WritePaginated(c, "sessions", sessions, gin.H{"page": page, "page_size": pageSize}, nil)
}
