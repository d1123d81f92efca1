// Package worker contains the background worker responsible for indexing
// uploaded study material, expiring stale homework sessions, running
// database cleanup passes, and sending notification digest emails. The
// worker runs independently of HTTP request handling and reports its
// health through the worker_status table.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"learnapp/internal/config"
	"learnapp/internal/models"
	"learnapp/internal/observability"
	"learnapp/internal/serviceinterfaces"
	"learnapp/internal/services"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// staleHomeworkAge is how long an open homework session may sit idle
	// before the worker auto-expires it
	staleHomeworkAge = 7 * 24 * time.Hour

	// indexBatchSize caps how many pending content items one run indexes
	indexBatchSize = 10

	// digestCandidateLimit caps how many digest emails one run sends
	digestCandidateLimit = 100

	// runInterval is how often scheduled runs happen
	runInterval = 5 * time.Minute

	// digestDateSetting tracks the last calendar day a digest pass ran
	digestDateSetting = "digest_last_sent_date"
)

// Status represents the current state of the worker
type Status struct {
	IsRunning       bool      `json:"is_running"`
	IsPaused        bool      `json:"is_paused"`
	CurrentActivity string    `json:"current_activity,omitempty"`
	LastRunStart    time.Time `json:"last_run_start"`
	LastRunFinish   time.Time `json:"last_run_finish"`
	LastRunError    string    `json:"last_run_error,omitempty"`
	NextRun         time.Time `json:"next_run"`
}

// RunRecord tracks individual worker runs
type RunRecord struct {
	RunID     string        `json:"run_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"` // Success, Failure
	Details   string        `json:"details"`
}

// ActivityLog represents a single activity log entry
type ActivityLog struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // INFO, WARN, ERROR
	Message   string    `json:"message"`
	UserID    *int      `json:"user_id,omitempty"`
}

// Worker runs the background maintenance loop
type Worker struct {
	contentService      services.ContentServiceInterface
	homeworkService     services.HomeworkServiceInterface
	workerService       services.WorkerServiceInterface
	notificationService services.NotificationServiceInterface
	cleanupService      *services.CleanupService
	emailService        serviceinterfaces.EmailService

	instance     string
	status       Status
	history      []RunRecord
	activityLogs []ActivityLog
	mu           sync.RWMutex

	manualTrigger chan bool
	cfg           *config.Config
	logger        *observability.Logger

	// Time function for testing - defaults to time.Now
	timeNow func() time.Time
	cancel  context.CancelFunc
}

// NewWorker creates a new Worker
func NewWorker(
	contentService services.ContentServiceInterface,
	homeworkService services.HomeworkServiceInterface,
	workerService services.WorkerServiceInterface,
	notificationService services.NotificationServiceInterface,
	cleanupService *services.CleanupService,
	emailService serviceinterfaces.EmailService,
	instance string,
	cfg *config.Config,
	logger *observability.Logger,
) *Worker {
	if instance == "" {
		instance = "default"
	}
	return &Worker{
		contentService:      contentService,
		homeworkService:     homeworkService,
		workerService:       workerService,
		notificationService: notificationService,
		cleanupService:      cleanupService,
		emailService:        emailService,
		instance:            instance,
		manualTrigger:       make(chan bool, 1),
		cfg:                 cfg,
		logger:              logger,
		timeNow:             time.Now,
	}
}

// Start runs the worker loop until the context is cancelled
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.status.NextRun = w.timeNow().Add(runInterval)
	w.mu.Unlock()

	w.logger.Info(ctx, "Worker starting", map[string]interface{}{
		"instance":     w.instance,
		"run_interval": runInterval.String(),
	})

	go w.heartbeatLoop(ctx)

	ticker := time.NewTicker(config.WorkerCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "Worker stopping", map[string]interface{}{"instance": w.instance})
			return
		case <-w.manualTrigger:
			w.logActivity("INFO", "Manual run triggered", nil)
			w.runOnce(ctx)
		case <-ticker.C:
			w.mu.RLock()
			due := w.timeNow().After(w.status.NextRun) || w.timeNow().Equal(w.status.NextRun)
			w.mu.RUnlock()
			if due {
				w.runOnce(ctx)
			}
		}
	}
}

// Shutdown stops the worker loop
func (w *Worker) Shutdown() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// TriggerManualRun requests a run outside the normal schedule. A trigger
// already in flight is not queued twice.
func (w *Worker) TriggerManualRun() {
	select {
	case w.manualTrigger <- true:
	default:
	}
}

// Pause marks this worker instance paused. Scheduled runs are skipped
// until Resume.
func (w *Worker) Pause(ctx context.Context) {
	w.mu.Lock()
	w.status.IsPaused = true
	w.mu.Unlock()

	if err := w.workerService.PauseWorker(ctx, w.instance); err != nil {
		w.logger.Warn(ctx, "Failed to persist worker pause", map[string]interface{}{"error": err.Error()})
	}
	w.logActivity("INFO", "Worker paused", nil)
}

// Resume clears the paused state
func (w *Worker) Resume(ctx context.Context) {
	w.mu.Lock()
	w.status.IsPaused = false
	w.mu.Unlock()

	if err := w.workerService.ResumeWorker(ctx, w.instance); err != nil {
		w.logger.Warn(ctx, "Failed to persist worker resume", map[string]interface{}{"error": err.Error()})
	}
	w.logActivity("INFO", "Worker resumed", nil)
}

// GetStatus returns a snapshot of the worker status
func (w *Worker) GetStatus() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// GetHistory returns recent run records, newest first
func (w *Worker) GetHistory() []RunRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	history := make([]RunRecord, len(w.history))
	copy(history, w.history)
	return history
}

// GetActivityLogs returns recent activity log entries, newest first
func (w *Worker) GetActivityLogs() []ActivityLog {
	w.mu.RLock()
	defer w.mu.RUnlock()
	logs := make([]ActivityLog, len(w.activityLogs))
	copy(logs, w.activityLogs)
	return logs
}

// runOnce performs one full maintenance run
func (w *Worker) runOnce(ctx context.Context) {
	runID := uuid.NewString()
	ctx, span := otel.Tracer("worker").Start(ctx, "worker_run",
		trace.WithAttributes(
			attribute.String("worker.instance", w.instance),
			attribute.String("worker.run_id", runID),
		))
	defer span.End()

	paused, err := w.workerService.IsGlobalPaused(ctx)
	if err != nil {
		w.logger.Warn(ctx, "Failed to check global pause, assuming unpaused", map[string]interface{}{"error": err.Error()})
		paused = false
	}
	w.mu.RLock()
	paused = paused || w.status.IsPaused
	w.mu.RUnlock()

	if paused {
		w.mu.Lock()
		w.status.NextRun = w.timeNow().Add(runInterval)
		w.mu.Unlock()
		w.logActivity("INFO", "Run skipped: worker paused", nil)
		return
	}

	start := w.timeNow()
	w.setRunning(true, "starting run")
	defer w.setRunning(false, "")

	var runErr error
	details := ""

	indexed, err := w.indexPendingContent(ctx)
	if err != nil {
		runErr = err
	}
	details += fmt.Sprintf("indexed=%d", indexed)

	expired, err := w.expireStaleHomework(ctx)
	if err != nil && runErr == nil {
		runErr = err
	}
	details += fmt.Sprintf(" expired=%d", expired)

	if err := w.runCleanup(ctx); err != nil && runErr == nil {
		runErr = err
	}

	sent, err := w.sendDigests(ctx)
	if err != nil && runErr == nil {
		runErr = err
	}
	details += fmt.Sprintf(" digests=%d", sent)

	end := w.timeNow()
	record := RunRecord{
		RunID:     runID,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Status:    "Success",
		Details:   details,
	}
	errMsg := ""
	if runErr != nil {
		record.Status = "Failure"
		record.Details += " error=" + runErr.Error()
		errMsg = runErr.Error()
		span.RecordError(runErr)
	}

	w.mu.Lock()
	w.status.LastRunStart = start
	w.status.LastRunFinish = end
	w.status.LastRunError = errMsg
	w.status.NextRun = end.Add(runInterval)
	w.mu.Unlock()

	w.addRunRecord(record)
	w.persistStatus(ctx, indexed, int(expired))

	w.logger.Info(ctx, "Worker run finished", map[string]interface{}{
		"instance": w.instance,
		"duration": record.Duration.String(),
		"status":   record.Status,
		"details":  record.Details,
	})
}

// indexPendingContent embeds and indexes content items waiting in the queue
func (w *Worker) indexPendingContent(ctx context.Context) (int, error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "index_pending_content")
	defer span.End()

	w.setActivity("indexing content")
	indexed, err := w.contentService.IndexPending(ctx, indexBatchSize)
	if err != nil {
		w.logActivity("ERROR", "Content indexing failed: "+err.Error(), nil)
		return indexed, err
	}
	if indexed > 0 {
		w.logActivity("INFO", fmt.Sprintf("Indexed %d content items", indexed), nil)
	}
	span.SetAttributes(attribute.Int("worker.indexed", indexed))
	return indexed, nil
}

// expireStaleHomework closes homework sessions idle past the cutoff
func (w *Worker) expireStaleHomework(ctx context.Context) (int64, error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "expire_stale_homework")
	defer span.End()

	w.setActivity("expiring stale homework sessions")
	expired, err := w.homeworkService.ExpireStaleSessions(ctx, staleHomeworkAge)
	if err != nil {
		w.logActivity("ERROR", "Homework expiry failed: "+err.Error(), nil)
		return expired, err
	}
	if expired > 0 {
		w.logActivity("INFO", fmt.Sprintf("Expired %d stale homework sessions", expired), nil)
	}
	span.SetAttributes(attribute.Int64("worker.expired", expired))
	return expired, nil
}

// runCleanup runs the cache and retention cleanup passes
func (w *Worker) runCleanup(ctx context.Context) error {
	if w.cleanupService == nil {
		return nil
	}
	w.setActivity("running cleanup")
	if err := w.cleanupService.RunFullCleanup(ctx); err != nil {
		w.logActivity("ERROR", "Cleanup failed: "+err.Error(), nil)
		return err
	}
	return nil
}

// sendDigests emails unread-notification digests once per day during the
// configured hour
func (w *Worker) sendDigests(ctx context.Context) (int, error) {
	if w.emailService == nil || !w.emailService.IsEnabled() || !w.cfg.Email.Digest.Enabled {
		return 0, nil
	}

	now := w.timeNow()
	if now.Hour() != w.cfg.Email.Digest.Hour {
		return 0, nil
	}

	today := now.Format("2006-01-02")
	lastSent, err := w.workerService.GetSetting(ctx, digestDateSetting)
	if err == nil && lastSent == today {
		return 0, nil
	}

	ctx, span := observability.TraceWorkerFunction(ctx, "send_notification_digests")
	defer span.End()

	w.setActivity("sending notification digests")
	candidates, err := w.workerService.GetDigestCandidates(ctx, digestCandidateLimit)
	if err != nil {
		w.logActivity("ERROR", "Failed to load digest candidates: "+err.Error(), nil)
		return 0, err
	}

	sent := 0
	for i := range candidates {
		user := &candidates[i]

		paused, err := w.workerService.IsUserPaused(ctx, user.ID)
		if err == nil && paused {
			continue
		}

		unread := false
		notifications, err := w.notificationService.List(ctx, user.ID, &models.NotificationFilters{
			IsRead: &unread,
			Limit:  20,
		})
		if err != nil || len(notifications) == 0 {
			continue
		}

		if err := w.emailService.SendNotificationDigest(ctx, user, notifications); err != nil {
			w.logActivity("ERROR", "Digest send failed: "+err.Error(), &user.ID)
			continue
		}
		sent++
		w.logActivity("INFO", fmt.Sprintf("Sent digest with %d notifications", len(notifications)), &user.ID)
	}

	if err := w.workerService.SetSetting(ctx, digestDateSetting, today); err != nil {
		w.logger.Warn(ctx, "Failed to record digest date", map[string]interface{}{"error": err.Error()})
	}

	span.SetAttributes(attribute.Int("worker.digests_sent", sent))
	return sent, nil
}

// heartbeatLoop refreshes this instance's heartbeat so health checks can
// spot a wedged worker
func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(config.WorkerHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.workerService.UpdateHeartbeat(ctx, w.instance); err != nil {
				w.logger.Warn(ctx, "Heartbeat update failed", map[string]interface{}{
					"instance": w.instance,
					"error":    err.Error(),
				})
			}
		}
	}
}

// persistStatus writes the current status to the worker_status table
func (w *Worker) persistStatus(ctx context.Context, chunksIndexed, sessionsExpired int) {
	w.mu.RLock()
	status := w.status
	w.mu.RUnlock()

	persisted := &models.WorkerStatus{
		WorkerInstance:       w.instance,
		IsRunning:            status.IsRunning,
		IsPaused:             status.IsPaused,
		TotalChunksIndexed:   chunksIndexed,
		TotalSessionsExpired: sessionsExpired,
	}
	if status.CurrentActivity != "" {
		persisted.CurrentActivity.String = status.CurrentActivity
		persisted.CurrentActivity.Valid = true
	}
	if !status.LastRunStart.IsZero() {
		persisted.LastRunStart.Time = status.LastRunStart
		persisted.LastRunStart.Valid = true
	}
	if !status.LastRunFinish.IsZero() {
		persisted.LastRunFinish.Time = status.LastRunFinish
		persisted.LastRunFinish.Valid = true
	}
	if status.LastRunError != "" {
		persisted.LastRunError.String = status.LastRunError
		persisted.LastRunError.Valid = true
	}

	if err := w.workerService.UpdateWorkerStatus(ctx, w.instance, persisted); err != nil {
		w.logger.Warn(ctx, "Failed to persist worker status", map[string]interface{}{
			"instance": w.instance,
			"error":    err.Error(),
		})
	}
}

func (w *Worker) setRunning(running bool, activity string) {
	w.mu.Lock()
	w.status.IsRunning = running
	w.status.CurrentActivity = activity
	w.mu.Unlock()
}

func (w *Worker) setActivity(activity string) {
	w.mu.Lock()
	w.status.CurrentActivity = activity
	w.mu.Unlock()
}

// addRunRecord prepends a run record, trimming the history to the
// configured cap
func (w *Worker) addRunRecord(record RunRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()

	maxHistory := w.cfg.Server.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 50
	}
	w.history = append([]RunRecord{record}, w.history...)
	if len(w.history) > maxHistory {
		w.history = w.history[:maxHistory]
	}
}

// logActivity prepends an activity entry, trimming to the configured cap
func (w *Worker) logActivity(level, message string, userID *int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	maxLogs := w.cfg.Server.MaxActivityLogs
	if maxLogs <= 0 {
		maxLogs = 200
	}
	entry := ActivityLog{
		Timestamp: w.timeNow(),
		Level:     level,
		Message:   message,
		UserID:    userID,
	}
	w.activityLogs = append([]ActivityLog{entry}, w.activityLogs...)
	if len(w.activityLogs) > maxLogs {
		w.activityLogs = w.activityLogs[:maxLogs]
	}
}
