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

// TeacherHandler handles AI-backed teacher tooling HTTP requests
type TeacherHandler struct {
	teacherService services.TeacherServiceInterface
	logger         *observability.Logger
}

// NewTeacherHandler creates a new TeacherHandler
func NewTeacherHandler(teacherService services.TeacherServiceInterface, logger *observability.Logger) *TeacherHandler {
	return &TeacherHandler{
		teacherService: teacherService,
		logger:         logger,
	}
}

// GenerateLessonPlan produces a structured lesson plan for a topic
func (h *TeacherHandler) GenerateLessonPlan(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "teacher_generate_lesson_plan")
	defer observability.FinishSpan(span, nil)

	teacherID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(teacherID))

	var req models.GenerateLessonPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	span.SetAttributes(
		observability.AttributeSubject(req.Subject),
		observability.AttributeTopic(req.Topic),
	)

	plan, err := h.teacherService.GenerateLessonPlan(ctx, teacherID, &req)
	if err != nil {
		h.logger.Error(ctx, "Lesson plan generation failed", err, map[string]interface{}{
			"teacher_id": teacherID,
			"subject":    req.Subject,
			"topic":      req.Topic,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, plan)
}

// GenerateAssessment produces a formative assessment for a topic
func (h *TeacherHandler) GenerateAssessment(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "teacher_generate_assessment")
	defer observability.FinishSpan(span, nil)

	teacherID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(teacherID))

	var req models.GenerateAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	span.SetAttributes(
		observability.AttributeSubject(req.Subject),
		observability.AttributeTopic(req.Topic),
	)

	assessment, err := h.teacherService.GenerateAssessment(ctx, teacherID, &req)
	if err != nil {
		h.logger.Error(ctx, "Assessment generation failed", err, map[string]interface{}{
			"teacher_id": teacherID,
			"subject":    req.Subject,
			"topic":      req.Topic,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, assessment)
}

// GenerateParentMessage drafts a parent communication, optionally emailing it
func (h *TeacherHandler) GenerateParentMessage(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "teacher_generate_parent_message")
	defer observability.FinishSpan(span, nil)

	teacherID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(teacherID))

	var req models.GenerateParentMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	span.SetAttributes(
		attribute.Int("teacher.student_id", req.StudentID),
		attribute.String("teacher.message_type", string(req.MessageType)),
	)

	message, err := h.teacherService.GenerateParentMessage(ctx, teacherID, &req)
	if err != nil {
		h.logger.Error(ctx, "Parent message generation failed", err, map[string]interface{}{
			"teacher_id": teacherID,
			"student_id": req.StudentID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

// ListArtifacts lists the teacher's saved generations, optionally by kind
func (h *TeacherHandler) ListArtifacts(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "teacher_list_artifacts")
	defer observability.FinishSpan(span, nil)

	teacherID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(teacherID))

	kind := c.Query("kind")
	page, pageSize := ParsePagination(c, 1, 20, 100)
	offset := (page - 1) * pageSize

	artifacts, err := h.teacherService.ListArtifacts(ctx, teacherID, kind, pageSize, offset)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	WritePaginated(c, "artifacts", artifacts, gin.H{"page": page, "page_size": pageSize}, nil)
}

// StudentRoster summarizes every student's recent performance
func (h *TeacherHandler) StudentRoster(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "teacher_student_roster")
	defer observability.FinishSpan(span, nil)

	teacherID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(teacherID))

	roster, err := h.teacherService.StudentRoster(ctx, teacherID)
	if err != nil {
		h.logger.Error(ctx, "Failed to load student roster", err, map[string]interface{}{
			"teacher_id": teacherID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"students": roster})
}
