package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"learnapp/internal/models"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// ErrSettingNotFound is returned when a setting is not found in the database
var ErrSettingNotFound = errors.New("setting not found")

// WorkerServiceInterface defines the interface for worker management operations
type WorkerServiceInterface interface {
	// Settings management
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	IsGlobalPaused(ctx context.Context) (bool, error)
	SetGlobalPause(ctx context.Context, paused bool) error
	IsUserPaused(ctx context.Context, userID int) (bool, error)
	SetUserPause(ctx context.Context, userID int, paused bool) error

	// Status management
	UpdateWorkerStatus(ctx context.Context, instance string, status *models.WorkerStatus) error
	GetWorkerStatus(ctx context.Context, instance string) (*models.WorkerStatus, error)
	GetAllWorkerStatuses(ctx context.Context) ([]models.WorkerStatus, error)
	UpdateHeartbeat(ctx context.Context, instance string) error
	IsWorkerHealthy(ctx context.Context, instance string) (bool, error)

	// Control operations
	PauseWorker(ctx context.Context, instance string) error
	ResumeWorker(ctx context.Context, instance string) error
	GetWorkerHealth(ctx context.Context) (map[string]interface{}, error)

	// Reporting for the admin worker dashboard
	GetIndexingBacklog(ctx context.Context) (map[string]int, error)
	GetDigestCandidates(ctx context.Context, limit int) ([]models.User, error)
	GetNotificationStats(ctx context.Context) (map[string]interface{}, error)
	GetSentNotifications(ctx context.Context, page, pageSize int, notificationType, status string) ([]map[string]interface{}, int, error)
}

// WorkerService implements worker management operations
type WorkerService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewWorkerServiceWithLogger creates a new WorkerService instance with logger
func NewWorkerServiceWithLogger(db *sql.DB, logger *observability.Logger) *WorkerService {
	return &WorkerService{
		db:     db,
		logger: logger,
	}
}

// GetSetting retrieves a setting value by key
func (s *WorkerService) GetSetting(ctx context.Context, key string) (result0 string, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "get_setting", attribute.String("setting.key", key))
	defer observability.FinishSpan(span, &err)

	// Validate key
	if len(key) == 0 || len(strings.TrimSpace(key)) == 0 {
		return "", contextutils.WrapErrorf(errors.New("invalid setting key"), "setting key cannot be empty")
	}

	var value string
	err = s.db.QueryRowContext(ctx, `
		SELECT setting_value FROM worker_settings WHERE setting_key = $1
	`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Debug(ctx, "Setting not found", map[string]interface{}{"setting_key": key})
			return "", contextutils.WrapErrorf(ErrSettingNotFound, "%s", key)
		}
		s.logger.Error(ctx, "Failed to get setting", err, map[string]interface{}{"setting_key": key})
		return "", contextutils.WrapErrorf(err, "failed to get setting %s", key)
	}

	return value, nil
}

// SetSetting updates or creates a setting
func (s *WorkerService) SetSetting(ctx context.Context, key, value string) (err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "set_setting", attribute.String("setting.key", key))
	defer observability.FinishSpan(span, &err)

	// Validate key
	if len(key) == 0 || len(strings.TrimSpace(key)) == 0 {
		return contextutils.WrapErrorf(errors.New("invalid setting key"), "setting key cannot be empty")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO worker_settings (setting_key, setting_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (setting_key) DO UPDATE SET
			setting_value = EXCLUDED.setting_value,
			updated_at = EXCLUDED.updated_at
	`, key, value)
	if err != nil {
		s.logger.Error(ctx, "Failed to set setting", err, map[string]interface{}{"setting_key": key, "setting_value": value})
		return contextutils.WrapErrorf(err, "failed to set setting %s", key)
	}

	s.logger.Debug(ctx, "Setting updated", map[string]interface{}{"setting_key": key, "setting_value": value})
	return nil
}

// IsGlobalPaused checks if the worker is globally paused
func (s *WorkerService) IsGlobalPaused(ctx context.Context) (result0 bool, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "is_global_paused")
	defer observability.FinishSpan(span, &err)

	var value string
	value, err = s.GetSetting(ctx, "global_pause")
	if err != nil {
		// If setting doesn't exist, default to false (not paused)
		if errors.Is(err, ErrSettingNotFound) {
			// Initialize the setting with default value
			if setErr := s.SetSetting(ctx, "global_pause", "false"); setErr != nil {
				s.logger.Error(ctx, "Failed to initialize global_pause setting", setErr, map[string]interface{}{})
				return false, contextutils.WrapError(setErr, "failed to initialize global_pause setting")
			}
			return false, nil
		}
		s.logger.Error(ctx, "Failed to check global pause status", err, map[string]interface{}{})
		return false, err
	}

	paused := value == "true"
	s.logger.Debug(ctx, "Global pause status checked", map[string]interface{}{"global_paused": paused})
	return paused, nil
}

// SetGlobalPause sets the global pause state
func (s *WorkerService) SetGlobalPause(ctx context.Context, paused bool) (err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "set_global_pause", attribute.Bool("paused", paused))
	defer observability.FinishSpan(span, &err)

	value := "false"
	if paused {
		value = "true"
	}

	err = s.SetSetting(ctx, "global_pause", value)
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "Global pause state updated", map[string]interface{}{"global_paused": paused})
	return nil
}

// IsUserPaused checks if a specific user is paused
func (s *WorkerService) IsUserPaused(ctx context.Context, userID int) (result0 bool, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "is_user_paused", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	key := fmt.Sprintf("user_pause_%d", userID)
	var value string
	err = s.db.QueryRowContext(ctx, `
		SELECT setting_value FROM worker_settings WHERE setting_key = $1
	`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			// If setting doesn't exist, user is not paused (this is the default state)
			s.logger.Debug(ctx, "User pause setting not found, defaulting to not paused", map[string]interface{}{"user_id": userID})
			return false, nil
		}
		s.logger.Error(ctx, "Failed to check user pause status", err, map[string]interface{}{"user_id": userID})
		return false, contextutils.WrapErrorf(err, "failed to check user pause status for user %d", userID)
	}

	paused := value == "true"
	s.logger.Debug(ctx, "User pause status checked", map[string]interface{}{"user_id": userID, "user_paused": paused})
	return paused, nil
}

// SetUserPause sets the pause state for a specific user
func (s *WorkerService) SetUserPause(ctx context.Context, userID int, paused bool) (err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "set_user_pause", observability.AttributeUserID(userID), attribute.Bool("paused", paused))
	defer observability.FinishSpan(span, &err)

	key := fmt.Sprintf("user_pause_%d", userID)
	value := "false"
	if paused {
		value = "true"
	}

	err = s.SetSetting(ctx, key, value)
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "User pause state updated", map[string]interface{}{"user_id": userID, "user_paused": paused})
	return nil
}

// UpdateWorkerStatus updates the worker status in the database
func (s *WorkerService) UpdateWorkerStatus(ctx context.Context, instance string, status *models.WorkerStatus) (err error) {
	activity := ""
	if status.CurrentActivity.Valid {
		activity = status.CurrentActivity.String
	}

	ctx, span := observability.TraceWorkerFunction(ctx, "update_worker_status",
		attribute.String("worker.instance", instance),
		attribute.Bool("worker.is_running", status.IsRunning),
		attribute.Bool("worker.is_paused", status.IsPaused),
		attribute.String("worker.activity", activity),
	)
	defer observability.FinishSpan(span, &err)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO worker_status (
			worker_instance, is_running, is_paused, current_activity,
			last_heartbeat, last_run_start, last_run_finish, last_run_error,
			total_chunks_indexed, total_sessions_expired, total_runs, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (worker_instance) DO UPDATE SET
			is_running = EXCLUDED.is_running,
			is_paused = EXCLUDED.is_paused,
			current_activity = EXCLUDED.current_activity,
			last_heartbeat = EXCLUDED.last_heartbeat,
			last_run_start = EXCLUDED.last_run_start,
			last_run_finish = EXCLUDED.last_run_finish,
			last_run_error = EXCLUDED.last_run_error,
			total_chunks_indexed = EXCLUDED.total_chunks_indexed,
			total_sessions_expired = EXCLUDED.total_sessions_expired,
			total_runs = EXCLUDED.total_runs,
			updated_at = EXCLUDED.updated_at
	`, instance, status.IsRunning, status.IsPaused, status.CurrentActivity,
		status.LastHeartbeat, status.LastRunStart, status.LastRunFinish,
		status.LastRunError, status.TotalChunksIndexed, status.TotalSessionsExpired,
		status.TotalRuns)
	if err != nil {
		s.logger.Error(ctx, "Failed to update worker status", err, map[string]interface{}{
			"worker_instance": instance,
			"is_running":      status.IsRunning,
			"is_paused":       status.IsPaused,
			"activity":        activity,
		})
		err = contextutils.WrapErrorf(err, "failed to update worker status for instance %s", instance)
		return err
	}

	s.logger.Debug(ctx, "Worker status updated", map[string]interface{}{
		"worker_instance": instance,
		"is_running":      status.IsRunning,
		"is_paused":       status.IsPaused,
		"activity":        activity,
	})
	return nil
}

// GetWorkerStatus retrieves worker status by instance
func (s *WorkerService) GetWorkerStatus(ctx context.Context, instance string) (result0 *models.WorkerStatus, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "get_worker_status", attribute.String("worker.instance", instance))
	defer observability.FinishSpan(span, &err)

	var status models.WorkerStatus
	err = s.db.QueryRowContext(ctx, `
		SELECT id, worker_instance, is_running, is_paused, current_activity,
			   last_heartbeat, last_run_start, last_run_finish, last_run_error,
			   total_chunks_indexed, total_sessions_expired, total_runs, created_at, updated_at
		FROM worker_status WHERE worker_instance = $1
	`, instance).Scan(
		&status.ID, &status.WorkerInstance, &status.IsRunning, &status.IsPaused,
		&status.CurrentActivity, &status.LastHeartbeat, &status.LastRunStart,
		&status.LastRunFinish, &status.LastRunError, &status.TotalChunksIndexed,
		&status.TotalSessionsExpired, &status.TotalRuns, &status.CreatedAt, &status.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Debug(ctx, "Worker status not found", map[string]interface{}{"worker_instance": instance})
			return nil, contextutils.WrapErrorf(err, "worker status not found for instance %s", instance)
		}
		s.logger.Error(ctx, "Failed to get worker status", err, map[string]interface{}{"worker_instance": instance})
		return nil, contextutils.WrapErrorf(err, "failed to get worker status for instance %s", instance)
	}

	return &status, nil
}

// GetAllWorkerStatuses retrieves all worker statuses
func (s *WorkerService) GetAllWorkerStatuses(ctx context.Context) (result0 []models.WorkerStatus, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "get_all_worker_statuses")
	defer observability.FinishSpan(span, &err)

	var rows *sql.Rows
	rows, err = s.db.QueryContext(ctx, `
		SELECT id, worker_instance, is_running, is_paused, current_activity,
			   last_heartbeat, last_run_start, last_run_finish, last_run_error,
			   total_chunks_indexed, total_sessions_expired, total_runs, created_at, updated_at
		FROM worker_status ORDER BY worker_instance
	`)
	if err != nil {
		s.logger.Error(ctx, "Failed to get all worker statuses", err, map[string]interface{}{})
		return nil, contextutils.WrapError(err, "failed to get all worker statuses")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error(ctx, "Failed to close rows", err, map[string]interface{}{})
		}
	}()

	var statuses []models.WorkerStatus
	for rows.Next() {
		var status models.WorkerStatus
		err = rows.Scan(
			&status.ID, &status.WorkerInstance, &status.IsRunning, &status.IsPaused,
			&status.CurrentActivity, &status.LastHeartbeat, &status.LastRunStart,
			&status.LastRunFinish, &status.LastRunError, &status.TotalChunksIndexed,
			&status.TotalSessionsExpired, &status.TotalRuns, &status.CreatedAt, &status.UpdatedAt,
		)
		if err != nil {
			s.logger.Error(ctx, "Failed to scan worker status row", err, map[string]interface{}{})
			return nil, contextutils.WrapError(err, "failed to scan worker status row")
		}
		statuses = append(statuses, status)
	}

	if err := rows.Err(); err != nil {
		s.logger.Error(ctx, "Error iterating worker status rows", err, map[string]interface{}{})
		return nil, contextutils.WrapError(err, "error iterating worker status rows")
	}

	s.logger.Debug(ctx, "Retrieved all worker statuses", map[string]interface{}{"count": len(statuses)})
	return statuses, nil
}

// UpdateHeartbeat updates the heartbeat for a worker instance
func (s *WorkerService) UpdateHeartbeat(ctx context.Context, instance string) (err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "update_heartbeat", attribute.String("worker.instance", instance))
	defer observability.FinishSpan(span, &err)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO worker_status (worker_instance, last_heartbeat, updated_at)
		VALUES ($1, NOW(), NOW())
		ON CONFLICT (worker_instance) DO UPDATE SET
			last_heartbeat = EXCLUDED.last_heartbeat,
			updated_at = EXCLUDED.updated_at
	`, instance)
	if err != nil {
		s.logger.Error(ctx, "Failed to update heartbeat", err, map[string]interface{}{"worker_instance": instance})
		return contextutils.WrapErrorf(err, "failed to update heartbeat for instance %s", instance)
	}

	s.logger.Debug(ctx, "Heartbeat updated", map[string]interface{}{"worker_instance": instance})
	return nil
}

// IsWorkerHealthy checks if a worker instance is healthy based on recent heartbeat
func (s *WorkerService) IsWorkerHealthy(ctx context.Context, instance string) (result0 bool, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "is_worker_healthy", attribute.String("worker.instance", instance))
	defer observability.FinishSpan(span, &err)

	var lastHeartbeat sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT last_heartbeat FROM worker_status WHERE worker_instance = $1
	`, instance).Scan(&lastHeartbeat)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Debug(ctx, "Worker not found, considered unhealthy", map[string]interface{}{"worker_instance": instance})
			return false, nil
		}
		s.logger.Error(ctx, "Failed to check worker health", err, map[string]interface{}{"worker_instance": instance})
		return false, contextutils.WrapErrorf(err, "failed to check worker health for instance %s", instance)
	}

	if !lastHeartbeat.Valid {
		s.logger.Debug(ctx, "Worker has no heartbeat, considered unhealthy", map[string]interface{}{"worker_instance": instance})
		return false, nil
	}

	// Consider worker healthy if heartbeat is within the last 5 minutes
	healthy := time.Since(lastHeartbeat.Time) < 5*time.Minute
	s.logger.Debug(ctx, "Worker health checked", map[string]interface{}{
		"worker_instance": instance,
		"healthy":         healthy,
		"last_heartbeat":  lastHeartbeat.Time,
		"time_since":      time.Since(lastHeartbeat.Time).String(),
	})
	return healthy, nil
}

// PauseWorker pauses a specific worker instance
func (s *WorkerService) PauseWorker(ctx context.Context, instance string) (err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "pause_worker", attribute.String("worker.instance", instance))
	defer observability.FinishSpan(span, &err)

	_, err = s.db.ExecContext(ctx, `
		UPDATE worker_status SET is_paused = true, updated_at = NOW()
		WHERE worker_instance = $1
	`, instance)
	if err != nil {
		s.logger.Error(ctx, "Failed to pause worker", err, map[string]interface{}{"worker_instance": instance})
		return contextutils.WrapErrorf(err, "failed to pause worker instance %s", instance)
	}

	s.logger.Info(ctx, "Worker paused", map[string]interface{}{"worker_instance": instance})
	return nil
}

// ResumeWorker resumes a specific worker instance
func (s *WorkerService) ResumeWorker(ctx context.Context, instance string) (err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "resume_worker", attribute.String("worker.instance", instance))
	defer observability.FinishSpan(span, &err)

	_, err = s.db.ExecContext(ctx, `
		UPDATE worker_status SET is_paused = false, updated_at = NOW()
		WHERE worker_instance = $1
	`, instance)
	if err != nil {
		s.logger.Error(ctx, "Failed to resume worker", err, map[string]interface{}{"worker_instance": instance})
		return contextutils.WrapErrorf(err, "failed to resume worker instance %s", instance)
	}

	s.logger.Info(ctx, "Worker resumed", map[string]interface{}{"worker_instance": instance})
	return nil
}

// GetWorkerHealth returns a map of worker health information
func (s *WorkerService) GetWorkerHealth(ctx context.Context) (result0 map[string]interface{}, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "get_worker_health")
	defer observability.FinishSpan(span, &err)

	var statuses []models.WorkerStatus
	statuses, err = s.GetAllWorkerStatuses(ctx)
	if err != nil {
		return nil, err
	}

	var globalPaused bool
	globalPaused, err = s.IsGlobalPaused(ctx)
	if err != nil {
		s.logger.Error(ctx, "Failed to get global pause state", err, map[string]interface{}{})
		globalPaused = false // Default to false if we can't get the state
	}

	health := make(map[string]interface{})
	workerInstances := make([]map[string]interface{}, 0)
	healthyCount := 0
	totalCount := len(statuses)

	for _, status := range statuses {
		healthy, err := s.IsWorkerHealthy(ctx, status.WorkerInstance)
		if err != nil {
			s.logger.Error(ctx, "Failed to check health for worker", err, map[string]interface{}{"worker_instance": status.WorkerInstance})
			continue
		}

		if healthy {
			healthyCount++
		}

		// Convert sql.NullString to string for last_run_error
		var lastRunError string
		if status.LastRunError.Valid {
			lastRunError = status.LastRunError.String
		}

		workerInstance := map[string]interface{}{
			"worker_instance":        status.WorkerInstance,
			"healthy":                healthy,
			"is_running":             status.IsRunning,
			"is_paused":              status.IsPaused,
			"last_heartbeat":         status.LastHeartbeat,
			"last_run_error":         lastRunError,
			"total_chunks_indexed":   status.TotalChunksIndexed,
			"total_sessions_expired": status.TotalSessionsExpired,
			"total_runs":             status.TotalRuns,
		}
		workerInstances = append(workerInstances, workerInstance)
	}

	health["global_paused"] = globalPaused
	health["worker_instances"] = workerInstances
	health["total_count"] = totalCount
	health["healthy_count"] = healthyCount

	s.logger.Debug(ctx, "Worker health retrieved", map[string]interface{}{"worker_count": len(health)})
	return health, nil
}

// GetIndexingBacklog returns content item counts grouped by index status
func (s *WorkerService) GetIndexingBacklog(ctx context.Context) (result0 map[string]int, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "get_indexing_backlog")
	defer observability.FinishSpan(span, &err)

	var rows *sql.Rows
	rows, err = s.db.QueryContext(ctx, `
		SELECT index_status, COUNT(*) FROM content_items GROUP BY index_status
	`)
	if err != nil {
		s.logger.Error(ctx, "Failed to get indexing backlog", err, map[string]interface{}{})
		return nil, contextutils.WrapError(err, "failed to get indexing backlog")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error(ctx, "Failed to close rows", err, map[string]interface{}{})
		}
	}()

	backlog := map[string]int{
		string(models.IndexPending):  0,
		string(models.IndexIndexing): 0,
		string(models.IndexIndexed):  0,
		string(models.IndexFailed):   0,
	}
	for rows.Next() {
		var status string
		var count int
		if err = rows.Scan(&status, &count); err != nil {
			s.logger.Error(ctx, "Failed to scan indexing backlog row", err, map[string]interface{}{})
			return nil, contextutils.WrapError(err, "failed to scan indexing backlog row")
		}
		backlog[status] = count
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "error iterating indexing backlog rows")
	}

	return backlog, nil
}

// GetDigestCandidates returns users who have an email address and unread
// notifications, ordered by unread count so the busiest inboxes go first.
func (s *WorkerService) GetDigestCandidates(ctx context.Context, limit int) (result0 []models.User, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "get_digest_candidates", observability.AttributeLimit(limit))
	defer observability.FinishSpan(span, &err)

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var rows *sql.Rows
	rows, err = s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.email, COUNT(n.id) AS unread
		FROM users u
		JOIN notifications n ON n.user_id = u.id AND n.is_read = FALSE
		WHERE u.email IS NOT NULL AND u.email != ''
		GROUP BY u.id, u.username, u.email
		ORDER BY unread DESC, u.id
		LIMIT $1
	`, limit)
	if err != nil {
		s.logger.Error(ctx, "Failed to get digest candidates", err, map[string]interface{}{})
		return nil, contextutils.WrapError(err, "failed to get digest candidates")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error(ctx, "Failed to close rows", err, map[string]interface{}{})
		}
	}()

	var users []models.User
	for rows.Next() {
		var user models.User
		var unread int
		if err = rows.Scan(&user.ID, &user.Username, &user.Email, &unread); err != nil {
			s.logger.Error(ctx, "Failed to scan digest candidate row", err, map[string]interface{}{})
			return nil, contextutils.WrapError(err, "failed to scan digest candidate row")
		}
		users = append(users, user)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "error iterating digest candidate rows")
	}

	s.logger.Debug(ctx, "Digest candidates retrieved", map[string]interface{}{"count": len(users)})
	return users, nil
}

// GetNotificationStats returns summary statistics about notification delivery
func (s *WorkerService) GetNotificationStats(ctx context.Context) (result0 map[string]interface{}, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "get_notification_stats")
	defer observability.FinishSpan(span, &err)

	stats := make(map[string]interface{})

	var unreadTotal int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications WHERE is_read = FALSE
	`).Scan(&unreadTotal)
	if err != nil {
		s.logger.Error(ctx, "Failed to count unread notifications", err, map[string]interface{}{})
		return nil, contextutils.WrapError(err, "failed to count unread notifications")
	}
	stats["unread_total"] = unreadTotal

	var usersWithUnread int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_id) FROM notifications WHERE is_read = FALSE
	`).Scan(&usersWithUnread)
	if err != nil {
		s.logger.Error(ctx, "Failed to count users with unread notifications", err, map[string]interface{}{})
		return nil, contextutils.WrapError(err, "failed to count users with unread notifications")
	}
	stats["users_with_unread"] = usersWithUnread

	var sentToday, failedToday int
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM sent_notifications
		WHERE sent_at >= CURRENT_DATE
	`).Scan(&sentToday, &failedToday)
	if err != nil {
		s.logger.Error(ctx, "Failed to count sent notifications", err, map[string]interface{}{})
		return nil, contextutils.WrapError(err, "failed to count sent notifications")
	}
	stats["emails_sent_today"] = sentToday
	stats["emails_failed_today"] = failedToday

	var lastSent sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT MAX(sent_at) FROM sent_notifications WHERE status = 'sent'
	`).Scan(&lastSent)
	if err != nil {
		s.logger.Error(ctx, "Failed to get last sent time", err, map[string]interface{}{})
		return nil, contextutils.WrapError(err, "failed to get last sent time")
	}
	if lastSent.Valid {
		stats["last_email_sent_at"] = lastSent.Time
	} else {
		stats["last_email_sent_at"] = nil
	}

	return stats, nil
}

// GetSentNotifications returns a paginated view of the email delivery log,
// optionally filtered by notification type and delivery status.
func (s *WorkerService) GetSentNotifications(ctx context.Context, page, pageSize int, notificationType, status string) (result0 []map[string]interface{}, result1 int, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "get_sent_notifications",
		observability.AttributePage(page),
		observability.AttributePageSize(pageSize),
	)
	defer observability.FinishSpan(span, &err)

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	where := []string{}
	args := []interface{}{}
	if notificationType != "" {
		args = append(args, notificationType)
		where = append(where, "sn.notification_type = $"+strconv.Itoa(len(args)))
	}
	if status != "" {
		args = append(args, status)
		where = append(where, "sn.status = $"+strconv.Itoa(len(args)))
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM sent_notifications sn " + whereClause
	err = s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		s.logger.Error(ctx, "Failed to count sent notifications", err, map[string]interface{}{})
		return nil, 0, contextutils.WrapError(err, "failed to count sent notifications")
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(`
		SELECT sn.id, sn.user_id, u.username, sn.notification_type, sn.subject,
			   sn.template_name, sn.sent_at, sn.status, sn.error_message
		FROM sent_notifications sn
		LEFT JOIN users u ON u.id = sn.user_id
		%s
		ORDER BY sn.sent_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, len(args)-1, len(args))

	var rows *sql.Rows
	rows, err = s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error(ctx, "Failed to list sent notifications", err, map[string]interface{}{})
		return nil, 0, contextutils.WrapError(err, "failed to list sent notifications")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error(ctx, "Failed to close rows", err, map[string]interface{}{})
		}
	}()

	notifications := make([]map[string]interface{}, 0)
	for rows.Next() {
		var (
			id, userID                 int
			username, notifType        sql.NullString
			subject, templateName      sql.NullString
			sentAt                     time.Time
			deliveryStatus, errMessage sql.NullString
		)
		if err = rows.Scan(&id, &userID, &username, &notifType, &subject, &templateName, &sentAt, &deliveryStatus, &errMessage); err != nil {
			s.logger.Error(ctx, "Failed to scan sent notification row", err, map[string]interface{}{})
			return nil, 0, contextutils.WrapError(err, "failed to scan sent notification row")
		}
		notifications = append(notifications, map[string]interface{}{
			"id":                id,
			"user_id":           userID,
			"username":          username.String,
			"notification_type": notifType.String,
			"subject":           subject.String,
			"template_name":     templateName.String,
			"sent_at":           sentAt,
			"status":            deliveryStatus.String,
			"error_message":     errMessage.String,
		})
	}
	if err = rows.Err(); err != nil {
		return nil, 0, contextutils.WrapError(err, "error iterating sent notification rows")
	}

	return notifications, total, nil
}
