// Package handlers provides HTTP request handlers for the learning platform API.
package handlers

import (
	"net/http"
	"sort"
	"strconv"

	"learnapp/internal/observability"
	"learnapp/internal/services"
	contextutils "learnapp/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// AdminHandler handles administrative HTTP requests and the admin dashboard
type AdminHandler struct {
	adminService   services.AdminServiceInterface
	userService    services.UserServiceInterface
	workerService  services.WorkerServiceInterface
	geminiService  services.GeminiServiceInterface
	youtubeService services.YouTubeServiceInterface
	logger         *observability.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(
	adminService services.AdminServiceInterface,
	userService services.UserServiceInterface,
	workerService services.WorkerServiceInterface,
	geminiService services.GeminiServiceInterface,
	youtubeService services.YouTubeServiceInterface,
	logger *observability.Logger,
) *AdminHandler {
	return &AdminHandler{
		adminService:   adminService,
		userService:    userService,
		workerService:  workerService,
		geminiService:  geminiService,
		youtubeService: youtubeService,
		logger:         logger,
	}
}

// Dashboard returns aggregate platform metrics for the admin dashboard
func (h *AdminHandler) Dashboard(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_dashboard")
	defer observability.FinishSpan(span, nil)

	metrics, err := h.adminService.DashboardMetrics(ctx)
	if err != nil {
		h.logger.Error(ctx, "Failed to build dashboard metrics", err, nil)
		HandleAppError(c, err)
		return
	}

	// Secondary sources degrade to partial data instead of failing the page
	if h.workerService != nil {
		workerHealth, err := h.workerService.GetWorkerHealth(ctx)
		if err != nil {
			h.logger.Warn(ctx, "Failed to get worker health", map[string]interface{}{"error": err.Error()})
			workerHealth = map[string]interface{}{"error": "worker health unavailable"}
		}
		metrics["worker_health"] = workerHealth
	}

	if h.geminiService != nil {
		stats := h.geminiService.GetConcurrencyStats()
		metrics["ai_concurrency"] = gin.H{
			"active_requests":   stats.ActiveRequests,
			"max_concurrent":    stats.MaxConcurrent,
			"total_requests":    stats.TotalRequests,
			"user_active_count": len(stats.UserActiveCount),
			"max_per_user":      stats.MaxPerUser,
		}
	}

	if h.youtubeService != nil {
		exhausted, resetAt := h.youtubeService.QuotaExhausted()
		quota := gin.H{"exhausted": exhausted}
		if exhausted {
			quota["reset_at"] = resetAt
		}
		metrics["youtube_quota"] = quota
	}

	c.JSON(http.StatusOK, metrics)
}

// ListStudents lists users with optional search, role and grade filters
func (h *AdminHandler) ListStudents(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_list_students")
	defer observability.FinishSpan(span, nil)

	page, pageSize := ParsePagination(c, 1, 20, 100)
	search := c.Query("search")
	role := c.Query("role")
	grade := c.Query("grade")
	span.SetAttributes(
		observability.AttributePage(page),
		observability.AttributePageSize(pageSize),
		observability.AttributeSearch(search),
	)

	users, total, err := h.userService.GetUsersPaginated(ctx, page, pageSize, search, role, grade)
	if err != nil {
		h.logger.Error(ctx, "Failed to list students", err, map[string]interface{}{
			"search": search,
			"role":   role,
			"grade":  grade,
		})
		HandleAppError(c, err)
		return
	}

	WritePaginated(c, "users", users, gin.H{
		"page":      page,
		"page_size": pageSize,
		"total":     total,
	}, nil)
}

// StudentDetail returns one student's profile, mastery and recent activity
func (h *AdminHandler) StudentDetail(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_student_detail")
	defer observability.FinishSpan(span, nil)

	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "user id must be an integer"))
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	detail, err := h.adminService.StudentDetail(ctx, userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// AssignSchool sets or clears a student's school
func (h *AdminHandler) AssignSchool(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_assign_school")
	defer observability.FinishSpan(span, nil)

	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "user id must be an integer"))
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	var req struct {
		SchoolID int `json:"school_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	span.SetAttributes(attribute.Int("admin.school_id", req.SchoolID))

	if err := h.adminService.AssignUserToSchool(ctx, userID, req.SchoolID); err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListExportEntities lists what Export can dump
func (h *AdminHandler) ListExportEntities(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_list_export_entities")
	defer observability.FinishSpan(span, nil)

	entities := h.adminService.ExportableEntities()
	sort.Strings(entities)
	c.JSON(http.StatusOK, gin.H{"entities": entities})
}

// Export dumps one entity type as JSON
func (h *AdminHandler) Export(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_export")
	defer observability.FinishSpan(span, nil)

	entity := c.Param("entity")
	span.SetAttributes(attribute.String("admin.entity", entity))

	rows, err := h.adminService.ExportEntity(ctx, entity)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entity": entity,
		"count":  len(rows),
		"rows":   rows,
	})
}

// schoolRequest is the create and update payload for schools
type schoolRequest struct {
	Name  string `json:"name" binding:"required"`
	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`
	Board string `json:"board,omitempty"`
}

// CreateSchool creates a school
func (h *AdminHandler) CreateSchool(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_create_school")
	defer observability.FinishSpan(span, nil)

	var req schoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}

	school, err := h.adminService.CreateSchool(ctx, req.Name, req.City, req.State, req.Board)
	if err != nil {
		h.logger.Error(ctx, "Failed to create school", err, map[string]interface{}{
			"name": req.Name,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, school)
}

// ListSchools lists all schools
func (h *AdminHandler) ListSchools(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_list_schools")
	defer observability.FinishSpan(span, nil)

	schools, err := h.adminService.ListSchools(ctx)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"schools": schools})
}

// UpdateSchool updates a school's details
func (h *AdminHandler) UpdateSchool(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_update_school")
	defer observability.FinishSpan(span, nil)

	schoolID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "school id must be an integer"))
		return
	}
	span.SetAttributes(attribute.Int("admin.school_id", schoolID))

	var req schoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}

	school, err := h.adminService.UpdateSchool(ctx, schoolID, req.Name, req.City, req.State, req.Board)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, school)
}

// DeleteSchool removes a school; member users keep their accounts
func (h *AdminHandler) DeleteSchool(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_delete_school")
	defer observability.FinishSpan(span, nil)

	schoolID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "school id must be an integer"))
		return
	}
	span.SetAttributes(attribute.Int("admin.school_id", schoolID))

	if err := h.adminService.DeleteSchool(ctx, schoolID); err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
