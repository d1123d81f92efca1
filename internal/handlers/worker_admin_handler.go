package handlers

import (
	"net/http"

	"learnapp/internal/config"
	"learnapp/internal/observability"
	"learnapp/internal/services"
	contextutils "learnapp/internal/utils"
	"learnapp/internal/worker"

	"github.com/gin-gonic/gin"
)

// WorkerAdminHandler handles worker administration endpoints
type WorkerAdminHandler struct {
	userService   services.UserServiceInterface
	workerService services.WorkerServiceInterface
	worker        *worker.Worker
	config        *config.Config
	logger        *observability.Logger
}

// NewWorkerAdminHandler creates a new WorkerAdminHandler. The worker instance
// is nil when this handler runs inside the API server process.
func NewWorkerAdminHandler(
	userService services.UserServiceInterface,
	workerService services.WorkerServiceInterface,
	w *worker.Worker,
	cfg *config.Config,
	logger *observability.Logger,
) *WorkerAdminHandler {
	return &WorkerAdminHandler{
		userService:   userService,
		workerService: workerService,
		worker:        w,
		config:        cfg,
		logger:        logger,
	}
}

// GetWorkerDetails returns detailed worker information
func (h *WorkerAdminHandler) GetWorkerDetails(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_worker_details")
	defer observability.FinishSpan(span, nil)

	var localStatus worker.Status
	var localHistory []worker.RunRecord
	if h.worker != nil {
		localStatus = h.worker.GetStatus()
		localHistory = h.worker.GetHistory()
	}

	globalPaused, err := h.workerService.IsGlobalPaused(ctx)
	if err != nil {
		h.logger.Warn(ctx, "Failed to get global pause status", map[string]interface{}{"error": err.Error()})
		globalPaused = false
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        localStatus,
		"history":       localHistory,
		"global_paused": globalPaused,
	})
}

// GetActivityLogs returns recent activity logs from the worker
func (h *WorkerAdminHandler) GetActivityLogs(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_activity_logs")
	defer observability.FinishSpan(span, nil)

	if h.worker == nil {
		HandleAppError(c, contextutils.ErrServiceUnavailable)
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": h.worker.GetActivityLogs()})
}

// PauseWorker pauses the worker globally
func (h *WorkerAdminHandler) PauseWorker(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "pause_worker")
	defer observability.FinishSpan(span, nil)

	if err := h.workerService.SetGlobalPause(ctx, true); err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to pause worker globally"))
		return
	}
	if h.worker != nil {
		h.worker.Pause(ctx)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Worker paused globally"})
}

// ResumeWorker resumes the worker globally
func (h *WorkerAdminHandler) ResumeWorker(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "resume_worker")
	defer observability.FinishSpan(span, nil)

	if err := h.workerService.SetGlobalPause(ctx, false); err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to resume worker globally"))
		return
	}
	if h.worker != nil {
		h.worker.Resume(ctx)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Worker resumed globally"})
}

// GetWorkerStatus returns the persisted status of one worker instance
func (h *WorkerAdminHandler) GetWorkerStatus(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_worker_status")
	defer observability.FinishSpan(span, nil)

	instance := c.DefaultQuery("instance", "default")
	status, err := h.workerService.GetWorkerStatus(ctx, instance)
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to get worker status"))
		return
	}

	c.JSON(http.StatusOK, status)
}

// TriggerWorkerRun triggers a manual worker run
func (h *WorkerAdminHandler) TriggerWorkerRun(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "trigger_worker_run")
	defer observability.FinishSpan(span, nil)

	if h.worker == nil {
		HandleAppError(c, contextutils.ErrServiceUnavailable)
		return
	}

	h.worker.TriggerManualRun()
	c.JSON(http.StatusOK, gin.H{"message": "Worker run triggered"})
}

// PauseWorkerUser pauses digest emails for a specific user
func (h *WorkerAdminHandler) PauseWorkerUser(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "pause_worker_user")
	defer observability.FinishSpan(span, nil)

	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}

	if err := h.workerService.SetUserPause(ctx, req.UserID, true); err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to pause user"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User paused"})
}

// ResumeWorkerUser resumes digest emails for a specific user
func (h *WorkerAdminHandler) ResumeWorkerUser(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "resume_worker_user")
	defer observability.FinishSpan(span, nil)

	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}

	if err := h.workerService.SetUserPause(ctx, req.UserID, false); err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to resume user"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User resumed"})
}

// GetWorkerUsers lists users with their digest pause state
func (h *WorkerAdminHandler) GetWorkerUsers(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_worker_users")
	defer observability.FinishSpan(span, nil)

	page, pageSize := ParsePagination(c, 1, 50, 200)
	users, total, err := h.userService.GetUsersPaginated(ctx, page, pageSize, "", "", "")
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to get users"))
		return
	}

	userList := make([]gin.H, 0, len(users))
	for _, user := range users {
		isPaused, _ := h.workerService.IsUserPaused(ctx, user.ID)
		userList = append(userList, gin.H{
			"id":        user.ID,
			"username":  user.Username,
			"is_paused": isPaused,
		})
	}

	WritePaginated(c, "users", userList, gin.H{
		"page":      page,
		"page_size": pageSize,
		"total":     total,
	}, nil)
}

// GetSystemHealth returns worker health across all instances
func (h *WorkerAdminHandler) GetSystemHealth(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_system_health")
	defer observability.FinishSpan(span, nil)

	health, err := h.workerService.GetWorkerHealth(ctx)
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to get system health"))
		return
	}

	c.JSON(http.StatusOK, health)
}

// GetIndexingBacklog returns content counts per index status
func (h *WorkerAdminHandler) GetIndexingBacklog(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_indexing_backlog")
	defer observability.FinishSpan(span, nil)

	backlog, err := h.workerService.GetIndexingBacklog(ctx)
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to get indexing backlog"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"backlog": backlog})
}

// GetNotificationStats returns digest email delivery statistics
func (h *WorkerAdminHandler) GetNotificationStats(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_notification_stats")
	defer observability.FinishSpan(span, nil)

	stats, err := h.workerService.GetNotificationStats(ctx)
	if err != nil {
		h.logger.Error(ctx, "Failed to get notification stats", err, nil)
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetSentNotifications returns the paginated email delivery log
func (h *WorkerAdminHandler) GetSentNotifications(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_sent_notifications")
	defer observability.FinishSpan(span, nil)

	page, pageSize := ParsePagination(c, 1, 20, 100)
	f := ParseFilters(c, "notification_type", "status")

	notifications, total, err := h.workerService.GetSentNotifications(ctx, page, pageSize, f["notification_type"], f["status"])
	if err != nil {
		h.logger.Error(ctx, "Failed to get sent notifications", err, nil)
		HandleAppError(c, err)
		return
	}

	WritePaginated(c, "notifications", notifications, gin.H{
		"page":      page,
		"page_size": pageSize,
		"total":     total,
	}, nil)
}

// GetConfigz returns the merged config as pretty-printed JSON
func (h *WorkerAdminHandler) GetConfigz(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_configz")
	defer observability.FinishSpan(span, nil)

	c.IndentedJSON(http.StatusOK, h.config)
}
