package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"learnapp/internal/models"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// exportableEntities maps export entity names to their backing tables.
// Column sets are dumped as-is; password hashes are excluded explicitly.
var exportableEntities = map[string]string{
	"users":             "SELECT id, username, email, timezone, grade, school_id, preferences, last_active, created_at, updated_at FROM users ORDER BY id",
	"schools":           "SELECT id, name, city, state, board, created_at, updated_at FROM schools ORDER BY id",
	"doubts":            "SELECT id, user_id, subject, modality, question, answer, created_at FROM doubts ORDER BY id",
	"homework_sessions": "SELECT id, user_id, subject, question, hints_revealed, attempts, is_complete, solved_correctly, solution_revealed, created_at, updated_at FROM homework_sessions ORDER BY id",
	"quiz_sessions":     "SELECT id, template_id, user_id, started_at, expires_at, submitted_at, auto_submitted FROM quiz_sessions ORDER BY id",
	"quiz_templates":    "SELECT id, created_by, subject, topic, title, total_marks, ai_generated, created_at FROM quiz_templates ORDER BY id",
	"notifications":     "SELECT id, user_id, title, message, type, priority, is_read, created_by, created_at FROM notifications ORDER BY id",
	"topic_progress":    "SELECT id, user_id, subject, topic, mastery_score, attempts, last_practiced FROM topic_progress ORDER BY id",
	"content_items":     "SELECT id, uploaded_by, subject, title, folder, index_status, chunk_count, created_at, updated_at FROM content_items ORDER BY id",
}

// AdminServiceInterface defines platform administration operations
type AdminServiceInterface interface {
	DashboardMetrics(ctx context.Context) (map[string]interface{}, error)
	StudentDetail(ctx context.Context, userID int) (map[string]interface{}, error)
	ExportEntity(ctx context.Context, entity string) ([]map[string]interface{}, error)
	ExportableEntities() []string
	CreateSchool(ctx context.Context, name, city, state, board string) (*models.School, error)
	ListSchools(ctx context.Context) ([]models.School, error)
	UpdateSchool(ctx context.Context, schoolID int, name, city, state, board string) (*models.School, error)
	DeleteSchool(ctx context.Context, schoolID int) error
	AssignUserToSchool(ctx context.Context, userID, schoolID int) error
}

// AdminService backs the admin dashboard, data export and school management
type AdminService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewAdminService creates a new AdminService
func NewAdminService(db *sql.DB, logger *observability.Logger) *AdminService {
	return &AdminService{
		db:     db,
		logger: logger,
	}
}

// DashboardMetrics aggregates platform-wide counts for the admin dashboard
func (s *AdminService) DashboardMetrics(ctx context.Context) (metrics map[string]interface{}, err error) {
	ctx, span := observability.TraceFunction(ctx, "admin_service", "dashboard_metrics")
	defer observability.FinishSpan(span, &err)

	metrics = map[string]interface{}{}

	usersByRole := map[string]int{}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.name, COUNT(DISTINCT ur.user_id)
		FROM roles r
		LEFT JOIN user_roles ur ON ur.role_id = r.id
		GROUP BY r.name
	`)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to count users by role")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var role string
		var count int
		if err = rows.Scan(&role, &count); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan role count")
		}
		usersByRole[role] = count
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate role counts")
	}
	metrics["users_by_role"] = usersByRole

	var totalUsers int
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&totalUsers); err != nil {
		return nil, contextutils.WrapError(err, "failed to count users")
	}
	metrics["total_users"] = totalUsers

	var activeToday int
	if err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE last_active >= CURRENT_DATE`,
	).Scan(&activeToday); err != nil {
		return nil, contextutils.WrapError(err, "failed to count active users")
	}
	metrics["active_today"] = activeToday

	var doubtsToday int
	if err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM doubts WHERE created_at >= CURRENT_DATE`,
	).Scan(&doubtsToday); err != nil {
		return nil, contextutils.WrapError(err, "failed to count doubts")
	}
	metrics["doubts_today"] = doubtsToday

	var homeworkToday, quizzesToday int
	if err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM homework_sessions WHERE created_at >= CURRENT_DATE`,
	).Scan(&homeworkToday); err != nil {
		return nil, contextutils.WrapError(err, "failed to count homework sessions")
	}
	if err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM quiz_sessions WHERE started_at >= CURRENT_DATE`,
	).Scan(&quizzesToday); err != nil {
		return nil, contextutils.WrapError(err, "failed to count quiz sessions")
	}
	metrics["sessions_today"] = map[string]int{
		"homework": homeworkToday,
		"quiz":     quizzesToday,
	}

	quotaStates := []map[string]interface{}{}
	quotaRows, err := s.db.QueryContext(ctx,
		`SELECT service, exhausted_until, updated_at FROM api_quota ORDER BY service`,
	)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load quota states")
	}
	defer func() { _ = quotaRows.Close() }()
	now := time.Now()
	for quotaRows.Next() {
		var service string
		var exhaustedUntil sql.NullTime
		var updatedAt time.Time
		if err = quotaRows.Scan(&service, &exhaustedUntil, &updatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan quota state")
		}
		state := map[string]interface{}{
			"service":    service,
			"exhausted":  exhaustedUntil.Valid && exhaustedUntil.Time.After(now),
			"updated_at": updatedAt,
		}
		if exhaustedUntil.Valid {
			state["exhausted_until"] = exhaustedUntil.Time
		}
		quotaStates = append(quotaStates, state)
	}
	if err = quotaRows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate quota states")
	}
	metrics["quota_states"] = quotaStates

	return metrics, nil
}

// StudentDetail returns one student's profile, mastery and recent sessions
func (s *AdminService) StudentDetail(ctx context.Context, userID int) (detail map[string]interface{}, err error) {
	ctx, span := observability.TraceFunction(ctx, "admin_service", "student_detail",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	var user models.User
	err = s.db.QueryRowContext(ctx, `
		SELECT id, username, email, timezone, password_hash, grade, school_id, preferences, last_active, created_at, updated_at
		FROM users WHERE id = $1
	`, userID).Scan(
		&user.ID, &user.Username, &user.Email, &user.Timezone, &user.PasswordHash,
		&user.Grade, &user.SchoolID, &user.Preferences, &user.LastActive,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, contextutils.WrapError(contextutils.ErrRecordNotFound, "user not found")
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load user")
	}

	progress := []models.TopicProgress{}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, subject, topic, mastery_score, attempts, last_practiced, created_at, updated_at
		FROM topic_progress
		WHERE user_id = $1
		ORDER BY mastery_score DESC
	`, userID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load progress")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var p models.TopicProgress
		if err = rows.Scan(&p.ID, &p.UserID, &p.Subject, &p.Topic, &p.MasteryScore, &p.Attempts, &p.LastPracticed, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan progress")
		}
		progress = append(progress, p)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate progress")
	}

	recentHomework, err := s.queryRowMaps(ctx, `
		SELECT id, subject, question, attempts, is_complete, solved_correctly, created_at, updated_at
		FROM homework_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 10
	`, userID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load homework sessions")
	}

	recentQuizzes, err := s.queryRowMaps(ctx, `
		SELECT qs.id, qt.subject, qt.topic, qs.started_at, qs.submitted_at
		FROM quiz_sessions qs
		JOIN quiz_templates qt ON qt.id = qs.template_id
		WHERE qs.user_id = $1
		ORDER BY qs.started_at DESC
		LIMIT 10
	`, userID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load quiz sessions")
	}

	return map[string]interface{}{
		"user":            user,
		"progress":        progress,
		"recent_homework": recentHomework,
		"recent_quizzes":  recentQuizzes,
	}, nil
}

// ExportableEntities lists the entity names ExportEntity accepts
func (s *AdminService) ExportableEntities() []string {
	names := make([]string, 0, len(exportableEntities))
	for name := range exportableEntities {
		names = append(names, name)
	}
	return names
}

// ExportEntity dumps one entity type as a list of rows
func (s *AdminService) ExportEntity(ctx context.Context, entity string) (rows []map[string]interface{}, err error) {
	ctx, span := observability.TraceFunction(ctx, "admin_service", "export_entity",
		attribute.String("admin.entity", entity),
	)
	defer observability.FinishSpan(span, &err)

	query, ok := exportableEntities[strings.ToLower(strings.TrimSpace(entity))]
	if !ok {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput,
			fmt.Sprintf("unknown export entity %q", entity))
	}

	return s.queryRowMaps(ctx, query)
}

// queryRowMaps runs a query and returns each row as a column name keyed map
func (s *AdminService) queryRowMaps(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, column := range columns {
			value := values[i]
			if b, ok := value.([]byte); ok {
				value = string(b)
			}
			row[column] = value
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// CreateSchool creates a school. Empty city, state and board are stored as NULL.
func (s *AdminService) CreateSchool(ctx context.Context, name, city, state, board string) (school *models.School, err error) {
	ctx, span := observability.TraceFunction(ctx, "admin_service", "create_school")
	defer observability.FinishSpan(span, &err)

	if strings.TrimSpace(name) == "" {
		return nil, contextutils.WrapError(contextutils.ErrMissingRequired, "school name is required")
	}

	school = &models.School{
		Name:  strings.TrimSpace(name),
		City:  nullableString(city),
		State: nullableString(state),
		Board: nullableString(board),
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO schools (name, city, state, board)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, school.Name, school.City, school.State, school.Board).
		Scan(&school.ID, &school.CreatedAt, &school.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, contextutils.WrapError(contextutils.ErrRecordExists, "school already exists")
		}
		return nil, contextutils.WrapError(err, "failed to create school")
	}

	return school, nil
}

// ListSchools lists all schools by name
func (s *AdminService) ListSchools(ctx context.Context) (schools []models.School, err error) {
	ctx, span := observability.TraceFunction(ctx, "admin_service", "list_schools")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, city, state, board, created_at, updated_at
		FROM schools
		ORDER BY name
	`)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to list schools")
	}
	defer func() { _ = rows.Close() }()

	schools = []models.School{}
	for rows.Next() {
		var school models.School
		if err = rows.Scan(&school.ID, &school.Name, &school.City, &school.State, &school.Board, &school.CreatedAt, &school.UpdatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan school")
		}
		schools = append(schools, school)
	}
	return schools, rows.Err()
}

// UpdateSchool updates a school's details
func (s *AdminService) UpdateSchool(ctx context.Context, schoolID int, name, city, state, board string) (school *models.School, err error) {
	ctx, span := observability.TraceFunction(ctx, "admin_service", "update_school",
		attribute.Int("admin.school_id", schoolID),
	)
	defer observability.FinishSpan(span, &err)

	if strings.TrimSpace(name) == "" {
		return nil, contextutils.WrapError(contextutils.ErrMissingRequired, "school name is required")
	}

	school = &models.School{
		ID:    schoolID,
		Name:  strings.TrimSpace(name),
		City:  nullableString(city),
		State: nullableString(state),
		Board: nullableString(board),
	}
	err = s.db.QueryRowContext(ctx, `
		UPDATE schools
		SET name = $2, city = $3, state = $4, board = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, school.ID, school.Name, school.City, school.State, school.Board).
		Scan(&school.CreatedAt, &school.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, contextutils.WrapError(contextutils.ErrRecordNotFound, "school not found")
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to update school")
	}

	return school, nil
}

// DeleteSchool removes a school. Member users keep their account with the
// school reference cleared.
func (s *AdminService) DeleteSchool(ctx context.Context, schoolID int) (err error) {
	ctx, span := observability.TraceFunction(ctx, "admin_service", "delete_school",
		attribute.Int("admin.school_id", schoolID),
	)
	defer observability.FinishSpan(span, &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, `UPDATE users SET school_id = NULL WHERE school_id = $1`, schoolID); err != nil {
		return contextutils.WrapError(err, "failed to detach users from school")
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM schools WHERE id = $1`, schoolID)
	if err != nil {
		return contextutils.WrapError(err, "failed to delete school")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to read delete result")
	}
	if affected == 0 {
		return contextutils.WrapError(contextutils.ErrRecordNotFound, "school not found")
	}

	if err = tx.Commit(); err != nil {
		return contextutils.WrapError(err, "failed to commit school delete")
	}
	return nil
}

// AssignUserToSchool sets a user's school. A zero schoolID clears it.
func (s *AdminService) AssignUserToSchool(ctx context.Context, userID, schoolID int) (err error) {
	ctx, span := observability.TraceFunction(ctx, "admin_service", "assign_user_to_school",
		observability.AttributeUserID(userID),
		attribute.Int("admin.school_id", schoolID),
	)
	defer observability.FinishSpan(span, &err)

	var value interface{}
	if schoolID > 0 {
		var exists bool
		if err = s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schools WHERE id = $1)`, schoolID).Scan(&exists); err != nil {
			return contextutils.WrapError(err, "failed to check school")
		}
		if !exists {
			return contextutils.WrapError(contextutils.ErrRecordNotFound, "school not found")
		}
		value = schoolID
	}

	result, err := s.db.ExecContext(ctx, `UPDATE users SET school_id = $2, updated_at = NOW() WHERE id = $1`, userID, value)
	if err != nil {
		return contextutils.WrapError(err, "failed to assign school")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to read assign result")
	}
	if affected == 0 {
		return contextutils.WrapError(contextutils.ErrRecordNotFound, "user not found")
	}
	return nil
}

func nullableString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
