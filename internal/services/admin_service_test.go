package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"learnapp/internal/config"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockAdminService(t *testing.T) (*AdminService, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	service := NewAdminService(db, logger)

	cleanup := func() {
		mock.ExpectClose()
		require.NoError(t, db.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	}
	return service, mock, cleanup
}

func TestExportableEntities(t *testing.T) {
	service, _, cleanup := newMockAdminService(t)
	defer cleanup()

	names := service.ExportableEntities()
	assert.Len(t, names, len(exportableEntities))
	assert.Contains(t, names, "users")
	assert.Contains(t, names, "schools")
	assert.Contains(t, names, "quiz_templates")
	assert.Contains(t, names, "topic_progress")
}

func TestExportEntity_UnknownEntity(t *testing.T) {
	service, _, cleanup := newMockAdminService(t)
	defer cleanup()

	rows, err := service.ExportEntity(context.Background(), "password_hashes")
	require.Error(t, err)
	assert.Nil(t, rows)
	assert.ErrorIs(t, err, contextutils.ErrInvalidInput)
}

func TestExportEntity_Schools(t *testing.T) {
	service, mock, cleanup := newMockAdminService(t)
	defer cleanup()

	created := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, name, city, state, board, created_at, updated_at FROM schools").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "city", "state", "board", "created_at", "updated_at"}).
			AddRow(1, "Kendriya Vidyalaya No. 2", "Delhi", "Delhi", "CBSE", created, created))

	rows, err := service.ExportEntity(context.Background(), "schools")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Kendriya Vidyalaya No. 2", rows[0]["name"])
	assert.Equal(t, "CBSE", rows[0]["board"])
}

func TestExportEntity_ConvertsBytesToString(t *testing.T) {
	service, mock, cleanup := newMockAdminService(t)
	defer cleanup()

	created := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, user_id, subject, modality, question, answer, created_at FROM doubts").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "subject", "modality", "question", "answer", "created_at"}).
			AddRow(7, 2, []byte("physics"), []byte("text"), []byte("State Gauss's law"), []byte("The flux..."), created))

	rows, err := service.ExportEntity(context.Background(), "doubts")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "physics", rows[0]["subject"])
	assert.Equal(t, "State Gauss's law", rows[0]["question"])
}

func TestExportEntity_NormalizesName(t *testing.T) {
	service, mock, cleanup := newMockAdminService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, city, state, board, created_at, updated_at FROM schools").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "city", "state", "board", "created_at", "updated_at"}))

	rows, err := service.ExportEntity(context.Background(), "  Schools ")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCreateSchool(t *testing.T) {
	service, mock, cleanup := newMockAdminService(t)
	defer cleanup()

	created := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO schools").
		WithArgs("St. Xavier's", sql.NullString{String: "Kolkata", Valid: true}, sql.NullString{String: "West Bengal", Valid: true}, sql.NullString{String: "ISC", Valid: true}).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(3, created, created))

	school, err := service.CreateSchool(context.Background(), "St. Xavier's", "Kolkata", "West Bengal", "ISC")
	require.NoError(t, err)
	assert.Equal(t, 3, school.ID)
	assert.Equal(t, "St. Xavier's", school.Name)
	assert.True(t, school.Board.Valid)
	assert.Equal(t, "ISC", school.Board.String)
}

func TestCreateSchool_EmptyOptionalFieldsStoredAsNull(t *testing.T) {
	service, mock, cleanup := newMockAdminService(t)
	defer cleanup()

	created := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO schools").
		WithArgs("DAV Public School", sql.NullString{}, sql.NullString{}, sql.NullString{}).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(4, created, created))

	school, err := service.CreateSchool(context.Background(), "DAV Public School", "", "  ", "")
	require.NoError(t, err)
	assert.False(t, school.City.Valid)
	assert.False(t, school.State.Valid)
	assert.False(t, school.Board.Valid)
}

func TestCreateSchool_MissingName(t *testing.T) {
	service, _, cleanup := newMockAdminService(t)
	defer cleanup()

	school, err := service.CreateSchool(context.Background(), "   ", "Delhi", "Delhi", "CBSE")
	require.Error(t, err)
	assert.Nil(t, school)
	assert.ErrorIs(t, err, contextutils.ErrMissingRequired)
}

func TestListSchools(t *testing.T) {
	service, mock, cleanup := newMockAdminService(t)
	defer cleanup()

	created := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, name, city, state, board, created_at, updated_at\\s+FROM schools").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "city", "state", "board", "created_at", "updated_at"}).
			AddRow(2, "DAV Public School", "Chennai", "Tamil Nadu", "CBSE", created, created).
			AddRow(1, "Kendriya Vidyalaya No. 2", "Delhi", "Delhi", "CBSE", created, created))

	schools, err := service.ListSchools(context.Background())
	require.NoError(t, err)
	require.Len(t, schools, 2)
	assert.Equal(t, "DAV Public School", schools[0].Name)
	assert.Equal(t, "Kendriya Vidyalaya No. 2", schools[1].Name)
}

func TestUpdateSchool_NotFound(t *testing.T) {
	service, mock, cleanup := newMockAdminService(t)
	defer cleanup()

	mock.ExpectQuery("UPDATE schools").
		WithArgs(42, "Renamed School", sql.NullString{}, sql.NullString{}, sql.NullString{}).
		WillReturnError(sql.ErrNoRows)

	school, err := service.UpdateSchool(context.Background(), 42, "Renamed School", "", "", "")
	require.Error(t, err)
	assert.Nil(t, school)
	assert.ErrorIs(t, err, contextutils.ErrRecordNotFound)
}

func TestDeleteSchool(t *testing.T) {
	service, mock, cleanup := newMockAdminService(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET school_id = NULL WHERE school_id").
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectExec("DELETE FROM schools WHERE id").
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := service.DeleteSchool(context.Background(), 5)
	require.NoError(t, err)
}

func TestDeleteSchool_NotFound(t *testing.T) {
	service, mock, cleanup := newMockAdminService(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET school_id = NULL WHERE school_id").
		WithArgs(99).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM schools WHERE id").
		WithArgs(99).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := service.DeleteSchool(context.Background(), 99)
	require.Error(t, err)
	assert.ErrorIs(t, err, contextutils.ErrRecordNotFound)
}

func TestAssignUserToSchool(t *testing.T) {
	service, mock, cleanup := newMockAdminService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("UPDATE users SET school_id").
		WithArgs(10, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := service.AssignUserToSchool(context.Background(), 10, 2)
	require.NoError(t, err)
}

func TestAssignUserToSchool_SchoolNotFound(t *testing.T) {
	service, mock, cleanup := newMockAdminService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(77).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := service.AssignUserToSchool(context.Background(), 10, 77)
	require.Error(t, err)
	assert.ErrorIs(t, err, contextutils.ErrRecordNotFound)
}

func TestAssignUserToSchool_ClearsWithZeroID(t *testing.T) {
	service, mock, cleanup := newMockAdminService(t)
	defer cleanup()

	mock.ExpectExec("UPDATE users SET school_id").
		WithArgs(10, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := service.AssignUserToSchool(context.Background(), 10, 0)
	require.NoError(t, err)
}

func TestAssignUserToSchool_UserNotFound(t *testing.T) {
	service, mock, cleanup := newMockAdminService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("UPDATE users SET school_id").
		WithArgs(404, 2).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := service.AssignUserToSchool(context.Background(), 404, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, contextutils.ErrRecordNotFound)
}

func TestDashboardMetrics_QueryError(t *testing.T) {
	service, mock, cleanup := newMockAdminService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT r.name, COUNT").
		WillReturnError(errors.New("connection reset"))

	metrics, err := service.DashboardMetrics(context.Background())
	require.Error(t, err)
	assert.Nil(t, metrics)
	assert.Contains(t, err.Error(), "failed to count users by role")
}

func TestDashboardMetrics(t *testing.T) {
	service, mock, cleanup := newMockAdminService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT r.name, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"name", "count"}).
			AddRow("student", 38).
			AddRow("teacher", 3).
			AddRow("admin", 1))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(40))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users WHERE last_active").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM doubts").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(25))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM homework_sessions").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM quiz_sessions").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery("SELECT service, exhausted_until, updated_at FROM api_quota").
		WillReturnRows(sqlmock.NewRows([]string{"service", "exhausted_until", "updated_at"}).
			AddRow("youtube", time.Now().Add(2*time.Hour), time.Now()).
			AddRow("wolfram", nil, time.Now()))

	metrics, err := service.DashboardMetrics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 40, metrics["total_users"])
	assert.Equal(t, 12, metrics["active_today"])
	assert.Equal(t, 25, metrics["doubts_today"])
	assert.Equal(t, map[string]int{"homework": 6, "quiz": 4}, metrics["sessions_today"])

	byRole, ok := metrics["users_by_role"].(map[string]int)
	require.True(t, ok)
	assert.Equal(t, 38, byRole["student"])

	quota, ok := metrics["quota_states"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, quota, 2)
	assert.Equal(t, "youtube", quota[0]["service"])
	assert.Equal(t, true, quota[0]["exhausted"])
	assert.Equal(t, false, quota[1]["exhausted"])
}

func TestStudentDetail_NotFound(t *testing.T) {
	service, mock, cleanup := newMockAdminService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, username, email, timezone, password_hash").
		WithArgs(123).
		WillReturnError(sql.ErrNoRows)

	detail, err := service.StudentDetail(context.Background(), 123)
	require.Error(t, err)
	assert.Nil(t, detail)
	assert.ErrorIs(t, err, contextutils.ErrRecordNotFound)
}

func TestStudentDetail(t *testing.T) {
	service, mock, cleanup := newMockAdminService(t)
	defer cleanup()

	created := time.Date(2025, 11, 20, 7, 30, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, username, email, timezone, password_hash").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "username", "email", "timezone", "password_hash", "grade",
			"school_id", "preferences", "last_active", "created_at", "updated_at",
		}).AddRow(2, "ananya", "ananya@example.com", "Asia/Kolkata", "x", "12", 1, nil, created, created, created))

	mock.ExpectQuery("SELECT id, user_id, subject, topic, mastery_score").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "subject", "topic", "mastery_score", "attempts", "last_practiced", "created_at", "updated_at",
		}).AddRow(9, 2, "chemistry", "Electrochemistry", 0.82, 14, created, created, created))

	mock.ExpectQuery("SELECT id, subject, question, attempts, is_complete").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "subject", "question", "attempts", "is_complete", "solved_correctly", "created_at", "updated_at",
		}))

	mock.ExpectQuery("SELECT qs.id, qt.subject, qt.topic").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject", "topic", "started_at", "submitted_at"}))

	detail, err := service.StudentDetail(context.Background(), 2)
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Contains(t, detail, "user")
	assert.Contains(t, detail, "progress")
	assert.Contains(t, detail, "recent_homework")
	assert.Contains(t, detail, "recent_quizzes")
}

func TestNullableString(t *testing.T) {
	assert.False(t, nullableString("").Valid)
	assert.False(t, nullableString("   ").Valid)

	v := nullableString(" CBSE ")
	assert.True(t, v.Valid)
	assert.Equal(t, "CBSE", v.String)
}
