//go:build integration

package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"learnapp/internal/config"
	"learnapp/internal/models"
	"learnapp/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerService_NewWorkerService(t *testing.T) {
	db := SharedTestDBSetup(t)
	defer db.Close()

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	service := NewWorkerServiceWithLogger(db, logger)
	assert.NotNil(t, service)
	assert.Equal(t, db, service.db)
}

func TestWorkerService_Settings(t *testing.T) {
	db := SharedTestDBSetup(t)
	defer db.Close()

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	service := NewWorkerServiceWithLogger(db, logger)

	t.Run("Get non-existent setting", func(t *testing.T) {
		_, err := service.GetSetting(context.Background(), "non_existent_key")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "setting not found")
	})

	t.Run("Set and get setting", func(t *testing.T) {
		err := service.SetSetting(context.Background(), "test_key", "test_value")
		assert.NoError(t, err)

		val, err := service.GetSetting(context.Background(), "test_key")
		assert.NoError(t, err)
		assert.Equal(t, "test_value", val)
	})

	t.Run("Update existing setting", func(t *testing.T) {
		err := service.SetSetting(context.Background(), "test_key", "test_value2")
		assert.NoError(t, err)

		val, err := service.GetSetting(context.Background(), "test_key")
		assert.NoError(t, err)
		assert.Equal(t, "test_value2", val)
	})
}

func TestWorkerService_GlobalPause(t *testing.T) {
	db := SharedTestDBSetup(t)
	defer db.Close()

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	service := NewWorkerServiceWithLogger(db, logger)

	t.Run("Default global pause state", func(t *testing.T) {
		// Should be false by default from schema
		paused, err := service.IsGlobalPaused(context.Background())
		assert.NoError(t, err)
		assert.False(t, paused)
	})

	t.Run("Set global pause", func(t *testing.T) {
		err := service.SetGlobalPause(context.Background(), true)
		assert.NoError(t, err)

		paused, err := service.IsGlobalPaused(context.Background())
		assert.NoError(t, err)
		assert.True(t, paused)
	})

	t.Run("Unset global pause", func(t *testing.T) {
		err := service.SetGlobalPause(context.Background(), false)
		assert.NoError(t, err)

		paused, err := service.IsGlobalPaused(context.Background())
		assert.NoError(t, err)
		assert.False(t, paused)
	})
}

func TestWorkerService_UserPause(t *testing.T) {
	db := SharedTestDBSetup(t)
	defer db.Close()

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	service := NewWorkerServiceWithLogger(db, logger)
	userID := 123

	t.Run("User not paused by default", func(t *testing.T) {
		paused, err := service.IsUserPaused(context.Background(), userID)
		assert.NoError(t, err)
		assert.False(t, paused)
	})

	t.Run("Pause user", func(t *testing.T) {
		err := service.SetUserPause(context.Background(), userID, true)
		assert.NoError(t, err)

		paused, err := service.IsUserPaused(context.Background(), userID)
		assert.NoError(t, err)
		assert.True(t, paused)
	})

	t.Run("Resume user", func(t *testing.T) {
		err := service.SetUserPause(context.Background(), userID, false)
		assert.NoError(t, err)

		paused, err := service.IsUserPaused(context.Background(), userID)
		assert.NoError(t, err)
		assert.False(t, paused)
	})

	t.Run("Different users have separate pause states", func(t *testing.T) {
		userID1 := 456
		userID2 := 789

		// Pause user1 but not user2
		err := service.SetUserPause(context.Background(), userID1, true)
		assert.NoError(t, err)

		paused1, err := service.IsUserPaused(context.Background(), userID1)
		assert.NoError(t, err)
		assert.True(t, paused1)

		paused2, err := service.IsUserPaused(context.Background(), userID2)
		assert.NoError(t, err)
		assert.False(t, paused2)
	})
}

func TestWorkerService_WorkerStatus(t *testing.T) {
	db := SharedTestDBSetup(t)
	defer db.Close()

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	service := NewWorkerServiceWithLogger(db, logger)
	instance := "test_worker"

	t.Run("Get non-existent worker status", func(t *testing.T) {
		_, err := service.GetWorkerStatus(context.Background(), "non_existent")
		assert.Error(t, err)
	})

	t.Run("Update and get worker status", func(t *testing.T) {
		status := &models.WorkerStatus{
			WorkerInstance:       instance,
			IsRunning:            true,
			IsPaused:             false,
			CurrentActivity:      sql.NullString{String: "Testing", Valid: true},
			LastHeartbeat:        sql.NullTime{Time: time.Now(), Valid: true},
			LastRunStart:         sql.NullTime{Time: time.Now().Add(-5 * time.Minute), Valid: true},
			LastRunFinish:        sql.NullTime{Time: time.Now().Add(-2 * time.Minute), Valid: true},
			LastRunError:         sql.NullString{String: "", Valid: false},
			TotalChunksIndexed:   42,
			TotalSessionsExpired: 3,
			TotalRuns:            10,
		}

		err := service.UpdateWorkerStatus(context.Background(), instance, status)
		assert.NoError(t, err)

		retrieved, err := service.GetWorkerStatus(context.Background(), instance)
		assert.NoError(t, err)
		assert.Equal(t, instance, retrieved.WorkerInstance)
		assert.Equal(t, true, retrieved.IsRunning)
		assert.Equal(t, false, retrieved.IsPaused)
		assert.Equal(t, "Testing", retrieved.CurrentActivity.String)
		assert.Equal(t, 42, retrieved.TotalChunksIndexed)
		assert.Equal(t, 3, retrieved.TotalSessionsExpired)
		assert.Equal(t, 10, retrieved.TotalRuns)
	})

	t.Run("Update existing worker status", func(t *testing.T) {
		status := &models.WorkerStatus{
			WorkerInstance:       instance,
			IsRunning:            false,
			IsPaused:             true,
			CurrentActivity:      sql.NullString{String: "Updated", Valid: true},
			LastHeartbeat:        sql.NullTime{Time: time.Now(), Valid: true},
			LastRunStart:         sql.NullTime{Time: time.Now().Add(-10 * time.Minute), Valid: true},
			LastRunFinish:        sql.NullTime{Time: time.Now().Add(-8 * time.Minute), Valid: true},
			LastRunError:         sql.NullString{String: "Test error", Valid: true},
			TotalChunksIndexed:   50,
			TotalSessionsExpired: 4,
			TotalRuns:            12,
		}

		err := service.UpdateWorkerStatus(context.Background(), instance, status)
		assert.NoError(t, err)

		retrieved, err := service.GetWorkerStatus(context.Background(), instance)
		assert.NoError(t, err)
		assert.Equal(t, false, retrieved.IsRunning)
		assert.Equal(t, true, retrieved.IsPaused)
		assert.Equal(t, "Updated", retrieved.CurrentActivity.String)
		assert.Equal(t, "Test error", retrieved.LastRunError.String)
		assert.Equal(t, 50, retrieved.TotalChunksIndexed)
		assert.Equal(t, 4, retrieved.TotalSessionsExpired)
		assert.Equal(t, 12, retrieved.TotalRuns)
	})
}

func TestWorkerService_GetAllWorkerStatuses(t *testing.T) {
	db := SharedTestDBSetup(t)
	defer db.Close()
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	service := NewWorkerServiceWithLogger(db, logger)

	// Update the existing default worker status
	err := service.UpdateWorkerStatus(context.Background(), "default", &models.WorkerStatus{
		WorkerInstance: "default",
		IsRunning:      true,
		IsPaused:       true,
	})
	require.NoError(t, err)

	// Create a new worker status
	err = service.UpdateWorkerStatus(context.Background(), "instance2", &models.WorkerStatus{
		WorkerInstance: "instance2",
		IsRunning:      false,
		IsPaused:       false,
	})
	require.NoError(t, err)

	statuses, err := service.GetAllWorkerStatuses(context.Background())
	require.NoError(t, err)
	assert.Len(t, statuses, 2)

	var defaultFound, instance2Found bool
	for _, s := range statuses {
		if s.WorkerInstance == "default" {
			defaultFound = true
			assert.True(t, s.IsRunning, "default worker should be running")
			assert.True(t, s.IsPaused, "default worker should be paused")
		}
		if s.WorkerInstance == "instance2" {
			instance2Found = true
			assert.False(t, s.IsRunning, "instance2 should not be running")
			assert.False(t, s.IsPaused, "instance2 should not be paused")
		}
	}
	assert.True(t, defaultFound, "default worker status not found")
	assert.True(t, instance2Found, "instance2 worker status not found")
}

func TestWorkerService_Heartbeat(t *testing.T) {
	db := SharedTestDBSetup(t)
	defer db.Close()

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	service := NewWorkerServiceWithLogger(db, logger)
	instance := "heartbeat_test"

	t.Run("Update heartbeat", func(t *testing.T) {
		err := service.UpdateHeartbeat(context.Background(), instance)
		assert.NoError(t, err)

		status, err := service.GetWorkerStatus(context.Background(), instance)
		assert.NoError(t, err)
		assert.Equal(t, instance, status.WorkerInstance)

		// Heartbeat should be recent (within last 5 seconds)
		assert.True(t, time.Since(status.LastHeartbeat.Time) < 5*time.Second)
	})
}

func TestWorkerService_IsWorkerHealthy(t *testing.T) {
	db := SharedTestDBSetup(t)
	defer db.Close()

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	service := NewWorkerServiceWithLogger(db, logger)
	instance := "health_test"

	t.Run("Non-existent worker is not healthy", func(t *testing.T) {
		healthy, err := service.IsWorkerHealthy(context.Background(), "non_existent")
		assert.NoError(t, err)
		assert.False(t, healthy)
	})

	t.Run("Recent heartbeat is healthy", func(t *testing.T) {
		err := service.UpdateHeartbeat(context.Background(), instance)
		assert.NoError(t, err)

		healthy, err := service.IsWorkerHealthy(context.Background(), instance)
		assert.NoError(t, err)
		assert.True(t, healthy)
	})

	t.Run("Old heartbeat is unhealthy", func(t *testing.T) {
		// Update status with old heartbeat
		oldTime := time.Now().Add(-10 * time.Minute)
		status := &models.WorkerStatus{
			WorkerInstance: instance,
			IsRunning:      true,
			LastHeartbeat:  sql.NullTime{Time: oldTime, Valid: true},
		}

		err := service.UpdateWorkerStatus(context.Background(), instance, status)
		assert.NoError(t, err)

		healthy, err := service.IsWorkerHealthy(context.Background(), instance)
		assert.NoError(t, err)
		assert.False(t, healthy)
	})
}

func TestWorkerService_PauseResumeWorker(t *testing.T) {
	db := SharedTestDBSetup(t)
	defer db.Close()

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	service := NewWorkerServiceWithLogger(db, logger)
	instance := "pause_test"

	t.Run("Pause worker instance", func(t *testing.T) {
		// First create the worker status
		status := &models.WorkerStatus{
			WorkerInstance: instance,
			IsRunning:      true,
			IsPaused:       false,
		}
		err := service.UpdateWorkerStatus(context.Background(), instance, status)
		assert.NoError(t, err)

		// Now pause the worker
		err = service.PauseWorker(context.Background(), instance)
		assert.NoError(t, err)

		status, err = service.GetWorkerStatus(context.Background(), instance)
		assert.NoError(t, err)
		assert.True(t, status.IsPaused)
	})

	t.Run("Resume worker instance", func(t *testing.T) {
		// First create the worker status if it doesn't exist
		status := &models.WorkerStatus{
			WorkerInstance: instance,
			IsRunning:      true,
			IsPaused:       true,
		}
		err := service.UpdateWorkerStatus(context.Background(), instance, status)
		assert.NoError(t, err)

		// Now resume the worker
		err = service.ResumeWorker(context.Background(), instance)
		assert.NoError(t, err)

		status, err = service.GetWorkerStatus(context.Background(), instance)
		assert.NoError(t, err)
		assert.False(t, status.IsPaused)
	})
}

func TestWorkerService_GetWorkerHealth(t *testing.T) {
	db := SharedTestDBSetup(t)
	defer db.Close()

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	service := NewWorkerServiceWithLogger(db, logger)

	// Add some test workers
	instances := []string{"worker1", "worker2", "worker3"}
	for i, instance := range instances {
		status := &models.WorkerStatus{
			WorkerInstance:     instance,
			IsRunning:          i < 2,  // worker1 and worker2 running
			IsPaused:           i == 1, // worker2 paused
			LastHeartbeat:      sql.NullTime{Time: time.Now(), Valid: true},
			TotalChunksIndexed: i * 10,
			TotalRuns:          i * 5,
		}
		err := service.UpdateWorkerStatus(context.Background(), instance, status)
		assert.NoError(t, err)
	}

	health, err := service.GetWorkerHealth(context.Background())
	assert.NoError(t, err)

	// Should include global pause state
	globalPaused, exists := health["global_paused"]
	assert.True(t, exists)
	assert.False(t, globalPaused.(bool))

	// Should include worker instances
	instances_data, exists := health["worker_instances"]
	assert.True(t, exists)
	instancesList := instances_data.([]map[string]interface{})
	assert.True(t, len(instancesList) >= 3)

	// Should include counts
	totalCount, exists := health["total_count"]
	assert.True(t, exists)
	assert.True(t, totalCount.(int) >= 3)

	healthyCount, exists := health["healthy_count"]
	assert.True(t, exists)
	assert.IsType(t, 0, healthyCount)
}

func TestWorkerService_DBErrorHandling(t *testing.T) {
	db := SharedTestDBSetup(t)
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	service := NewWorkerServiceWithLogger(db, logger)
	_ = db.Close() // Simulate DB closed

	_, err := service.GetSetting(context.Background(), "any_key")
	assert.Error(t, err)
	err = service.SetSetting(context.Background(), "any_key", "val")
	assert.Error(t, err)
	err = service.SetGlobalPause(context.Background(), true)
	assert.Error(t, err)
}

func TestWorkerService_PauseResumeEdgeCases(t *testing.T) {
	db := SharedTestDBSetup(t)
	defer db.Close()
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	service := NewWorkerServiceWithLogger(db, logger)
	instance := "edge_worker"

	// Pause twice
	err := service.PauseWorker(context.Background(), instance)
	assert.NoError(t, err)
	err = service.PauseWorker(context.Background(), instance)
	assert.NoError(t, err)

	// Resume twice
	err = service.ResumeWorker(context.Background(), instance)
	assert.NoError(t, err)
	err = service.ResumeWorker(context.Background(), instance)
	assert.NoError(t, err)
}

func TestWorkerService_InvalidInput(t *testing.T) {
	db := SharedTestDBSetup(t)
	defer db.Close()
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	service := NewWorkerServiceWithLogger(db, logger)

	// Empty key
	_, err := service.GetSetting(context.Background(), "")
	assert.Error(t, err)
	err = service.SetSetting(context.Background(), "", "val")
	assert.Error(t, err)

	// Long key
	longKey := make([]byte, 300)
	for i := range longKey {
		longKey[i] = 'a'
	}
	_, err = service.GetSetting(context.Background(), string(longKey))
	assert.Error(t, err)
}

func TestWorkerService_GetIndexingBacklog(t *testing.T) {
	db := SharedTestDBSetup(t)
	defer db.Close()
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	service := NewWorkerServiceWithLogger(db, logger)

	var uploaderID int
	err := db.QueryRow(`
		INSERT INTO users (username, password_hash)
		VALUES ('content_uploader', 'hash') RETURNING id
	`).Scan(&uploaderID)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO content_items (uploaded_by, title, subject, body, index_status)
		VALUES
			($1, 'Electrostatics notes', 'Physics', 'Coulomb law summary', 'pending'),
			($1, 'Aldehydes and ketones', 'Chemistry', 'Named reactions', 'pending'),
			($1, 'Integrals cheat sheet', 'Maths', 'Standard forms', 'indexed')
	`, uploaderID)
	require.NoError(t, err)

	backlog, err := service.GetIndexingBacklog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, backlog["pending"])
	assert.Equal(t, 1, backlog["indexed"])
	assert.Equal(t, 0, backlog["failed"])
	assert.Contains(t, backlog, "indexing")
}

func TestWorkerService_GetDigestCandidates(t *testing.T) {
	db := SharedTestDBSetup(t)
	defer db.Close()
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	service := NewWorkerServiceWithLogger(db, logger)

	var withEmail, withoutEmail int
	err := db.QueryRow(`
		INSERT INTO users (username, email, password_hash)
		VALUES ('digest_user', 'digest@example.com', 'hash') RETURNING id
	`).Scan(&withEmail)
	require.NoError(t, err)
	err = db.QueryRow(`
		INSERT INTO users (username, password_hash)
		VALUES ('no_email_user', 'hash') RETURNING id
	`).Scan(&withoutEmail)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO notifications (user_id, title, message, type, priority, is_read)
		VALUES
			($1, 'Quiz graded', 'Your physics quiz was graded', 'quiz', 'normal', FALSE),
			($1, 'New message', 'Your teacher replied', 'message', 'normal', FALSE),
			($2, 'Quiz graded', 'Your maths quiz was graded', 'quiz', 'normal', FALSE)
	`, withEmail, withoutEmail)
	require.NoError(t, err)

	candidates, err := service.GetDigestCandidates(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, withEmail, candidates[0].ID)
	assert.Equal(t, "digest@example.com", candidates[0].Email.String)
}

func TestWorkerService_NotificationReporting(t *testing.T) {
	db := SharedTestDBSetup(t)
	defer db.Close()
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	service := NewWorkerServiceWithLogger(db, logger)

	var userID int
	err := db.QueryRow(`
		INSERT INTO users (username, email, password_hash)
		VALUES ('report_user', 'report@example.com', 'hash') RETURNING id
	`).Scan(&userID)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO notifications (user_id, title, message, type, priority, is_read)
		VALUES ($1, 'Reminder', 'Time to practice', 'system', 'normal', FALSE)
	`, userID)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO sent_notifications (user_id, notification_type, subject, template_name, sent_at, status, error_message)
		VALUES
			($1, 'digest', 'You have 1 unread notifications', 'notification_digest', NOW(), 'sent', ''),
			($1, 'reminder', 'Time to study!', 'study_reminder', NOW(), 'failed', 'smtp timeout')
	`, userID)
	require.NoError(t, err)

	t.Run("Stats", func(t *testing.T) {
		stats, err := service.GetNotificationStats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, stats["unread_total"])
		assert.Equal(t, 1, stats["users_with_unread"])
		assert.Equal(t, 1, stats["emails_sent_today"])
		assert.Equal(t, 1, stats["emails_failed_today"])
		assert.NotNil(t, stats["last_email_sent_at"])
	})

	t.Run("List all", func(t *testing.T) {
		sent, total, err := service.GetSentNotifications(context.Background(), 1, 20, "", "")
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, sent, 2)
		assert.Equal(t, "report_user", sent[0]["username"])
	})

	t.Run("Filter by status", func(t *testing.T) {
		sent, total, err := service.GetSentNotifications(context.Background(), 1, 20, "", "failed")
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, sent, 1)
		assert.Equal(t, "smtp timeout", sent[0]["error_message"])
	})

	t.Run("Filter by type", func(t *testing.T) {
		_, total, err := service.GetSentNotifications(context.Background(), 1, 20, "digest", "")
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})
}
