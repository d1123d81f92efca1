package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"learnapp/internal/models"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"github.com/lib/pq"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

// UserServiceInterface defines the interface for user-related operations.
// This allows for easier mocking in tests.
type UserServiceInterface interface {
	CreateUser(ctx context.Context, req *models.SignupRequest) (*models.User, error)
	CreateUserWithRole(ctx context.Context, username, email, password string, role models.RoleName) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (*models.User, error)
	UpdateUserProfile(ctx context.Context, userID int, req *models.UpdateProfileRequest) error
	UpdateUserPassword(ctx context.Context, userID int, newPassword string) error
	UpdateLastActive(ctx context.Context, userID int) error
	GetUsersPaginated(ctx context.Context, page, pageSize int, search, role, grade string) ([]models.User, int, error)
	DeleteUser(ctx context.Context, userID int) error
	EnsureAdminUserExists(ctx context.Context, adminUsername, adminPassword string) error
	// Role management methods
	GetUserRoles(ctx context.Context, userID int) ([]models.Role, error)
	GetAllRoles(ctx context.Context) ([]models.Role, error)
	AssignRoleByName(ctx context.Context, userID int, roleName string) error
	RemoveRoleByName(ctx context.Context, userID int, roleName string) error
	HasRole(ctx context.Context, userID int, roleName string) (bool, error)
	IsAdmin(ctx context.Context, userID int) (bool, error)
	IsTeacher(ctx context.Context, userID int) (bool, error)
	GetDB() *sql.DB
}

// UserService provides methods for user management.
type UserService struct {
	db     *sql.DB
	logger *observability.Logger
}

// userSelectFields contains all user fields for SELECT queries
const userSelectFields = `id, username, email, timezone, password_hash, grade, school_id, preferences, last_active, created_at, updated_at`

// NewUserService creates a new UserService instance
func NewUserService(db *sql.DB, logger *observability.Logger) *UserService {
	return &UserService{
		db:     db,
		logger: logger,
	}
}

func scanUserFromRow(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.Timezone, &user.PasswordHash,
		&user.Grade, &user.SchoolID, &user.Preferences, &user.LastActive,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func scanUserFromRows(rows *sql.Rows) (*models.User, error) {
	user := &models.User{}
	err := rows.Scan(
		&user.ID, &user.Username, &user.Email, &user.Timezone, &user.PasswordHash,
		&user.Grade, &user.SchoolID, &user.Preferences, &user.LastActive,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// getUserByQuery is a shared method for getting a user by any query
func (s *UserService) getUserByQuery(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	user, err := scanUserFromRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found is not an error here
		}
		return nil, err
	}

	roles, err := s.GetUserRoles(ctx, user.ID)
	if err != nil {
		s.logger.Warn(ctx, "Failed to load user roles", map[string]interface{}{
			"user_id": user.ID,
			"error":   err.Error(),
		})
	} else {
		user.Roles = roles
	}
	return user, nil
}

// CreateUser creates a new student account
func (s *UserService) CreateUser(ctx context.Context, req *models.SignupRequest) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "create_user", attribute.String("user.username", req.Username))
	defer observability.FinishSpan(span, &err)

	user, err := s.insertUser(ctx, req.Username, req.Email, req.Password, req.Grade, req.SchoolID)
	if err != nil {
		return nil, err
	}

	if err := s.AssignRoleByName(ctx, user.ID, string(models.RoleStudent)); err != nil {
		// Role assignment can be repaired by an admin; the account itself is valid
		s.logger.Warn(ctx, "Failed to assign default student role", map[string]interface{}{
			"user_id": user.ID,
			"error":   err.Error(),
		})
	}
	return s.GetUserByID(ctx, user.ID)
}

// CreateUserWithRole creates a user carrying the given role. Used by the
// admin surface and the adm CLI.
func (s *UserService) CreateUserWithRole(ctx context.Context, username, email, password string, role models.RoleName) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "create_user_with_role",
		attribute.String("user.username", username),
		attribute.String("user.role", string(role)),
	)
	defer observability.FinishSpan(span, &err)

	user, err := s.insertUser(ctx, username, email, password, "", nil)
	if err != nil {
		return nil, err
	}
	if err := s.AssignRoleByName(ctx, user.ID, string(role)); err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, user.ID)
}

func (s *UserService) insertUser(ctx context.Context, username, email, password, grade string, schoolID *int32) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "username cannot be empty")
	}
	if password == "" {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "password cannot be empty")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to hash password")
	}

	emailValue := sql.NullString{}
	if email != "" {
		emailValue = sql.NullString{String: email, Valid: true}
	}
	gradeValue := sql.NullString{}
	if grade != "" {
		gradeValue = sql.NullString{String: grade, Valid: true}
	}
	schoolValue := sql.NullInt32{}
	if schoolID != nil {
		schoolValue = sql.NullInt32{Int32: *schoolID, Valid: true}
	}

	query := `
		INSERT INTO users (username, email, password_hash, grade, school_id, last_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), NOW())
		RETURNING id`
	var id int
	err = s.db.QueryRowContext(ctx, query, username, emailValue, string(hashedPassword), gradeValue, schoolValue).Scan(&id)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, contextutils.WrapErrorf(contextutils.ErrRecordExists, "username '%s' is already taken", username)
		}
		return nil, contextutils.WrapError(err, "failed to create user")
	}
	return &models.User{ID: id, Username: username}, nil
}

// AuthenticateUser verifies user credentials and returns the user if valid
func (s *UserService) AuthenticateUser(ctx context.Context, username, password string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "authenticate_user", attribute.String("user.username", username))
	defer observability.FinishSpan(span, &err)

	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.PasswordHash.Valid {
		return nil, contextutils.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash.String), []byte(password)); err != nil {
		return nil, contextutils.ErrInvalidCredentials
	}

	if err := s.UpdateLastActive(ctx, user.ID); err != nil {
		s.logger.Warn(ctx, "Failed to update last active on login", map[string]interface{}{
			"user_id": user.ID,
			"error":   err.Error(),
		})
	}
	return user, nil
}

// GetUserByID retrieves a user by their ID
func (s *UserService) GetUserByID(ctx context.Context, id int) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_id", observability.AttributeUserID(id))
	defer observability.FinishSpan(span, &err)

	query := `SELECT ` + userSelectFields + ` FROM users WHERE id = $1`
	return s.getUserByQuery(ctx, query, id)
}

// GetUserByUsername retrieves a user by their username. The lookup is
// case-insensitive to match the unique index on LOWER(username).
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_username", attribute.String("user.username", username))
	defer observability.FinishSpan(span, &err)

	query := `SELECT ` + userSelectFields + ` FROM users WHERE LOWER(username) = LOWER($1)`
	return s.getUserByQuery(ctx, query, username)
}

// GetUserByEmail retrieves a user by their email address
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_email")
	defer observability.FinishSpan(span, &err)

	query := `SELECT ` + userSelectFields + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return s.getUserByQuery(ctx, query, email)
}

// UpdateUserProfile updates the editable profile fields of a user
func (s *UserService) UpdateUserProfile(ctx context.Context, userID int, req *models.UpdateProfileRequest) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "update_user_profile", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	if req.Preferences != "" && !json.Valid([]byte(req.Preferences)) {
		return contextutils.WrapError(contextutils.ErrInvalidFormat, "preferences must be valid JSON")
	}

	emailValue := sql.NullString{}
	if req.Email != "" {
		emailValue = sql.NullString{String: req.Email, Valid: true}
	}
	timezoneValue := sql.NullString{}
	if req.Timezone != "" {
		if _, tzErr := time.LoadLocation(req.Timezone); tzErr != nil {
			return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid timezone: %s", req.Timezone)
		}
		timezoneValue = sql.NullString{String: req.Timezone, Valid: true}
	}
	gradeValue := sql.NullString{}
	if req.Grade != "" {
		gradeValue = sql.NullString{String: req.Grade, Valid: true}
	}
	schoolValue := sql.NullInt32{}
	if req.SchoolID != nil {
		schoolValue = sql.NullInt32{Int32: *req.SchoolID, Valid: true}
	}
	preferencesValue := sql.NullString{}
	if req.Preferences != "" {
		preferencesValue = sql.NullString{String: req.Preferences, Valid: true}
	}

	query := `
		UPDATE users
		SET email = $1, timezone = $2, grade = $3, school_id = $4, preferences = $5, updated_at = NOW()
		WHERE id = $6`
	result, err := s.db.ExecContext(ctx, query, emailValue, timezoneValue, gradeValue, schoolValue, preferencesValue, userID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return contextutils.WrapError(contextutils.ErrRecordExists, "email is already in use")
		}
		return contextutils.WrapError(err, "failed to update user profile")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to check update result")
	}
	if rows == 0 {
		return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %d not found", userID)
	}
	return nil
}

// UpdateUserPassword updates a user's password
func (s *UserService) UpdateUserPassword(ctx context.Context, userID int, newPassword string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "update_user_password", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	if newPassword == "" {
		return contextutils.WrapError(contextutils.ErrInvalidInput, "password cannot be empty")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return contextutils.WrapError(err, "failed to hash password")
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2",
		string(hashedPassword), userID,
	)
	if err != nil {
		return contextutils.WrapError(err, "failed to update password")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to check update result")
	}
	if rows == 0 {
		return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %d not found", userID)
	}
	return nil
}

// UpdateLastActive updates the user's last activity timestamp
func (s *UserService) UpdateLastActive(ctx context.Context, userID int) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "update_last_active", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	_, err = s.db.ExecContext(ctx, "UPDATE users SET last_active = NOW() WHERE id = $1", userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to update last active")
	}
	return nil
}

// GetUsersPaginated retrieves paginated users with filtering and search
func (s *UserService) GetUsersPaginated(ctx context.Context, page, pageSize int, search, role, grade string) (result0 []models.User, result1 int, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_users_paginated",
		observability.AttributePage(page),
		observability.AttributePageSize(pageSize),
	)
	defer observability.FinishSpan(span, &err)

	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	conditions := []string{}
	args := []interface{}{}

	if search != "" {
		args = append(args, "%"+search+"%")
		placeholder := "$" + strconv.Itoa(len(args))
		conditions = append(conditions, "(u.username ILIKE "+placeholder+" OR u.email ILIKE "+placeholder+")")
	}
	if grade != "" {
		args = append(args, grade)
		conditions = append(conditions, "u.grade = $"+strconv.Itoa(len(args)))
	}
	if role != "" {
		args = append(args, role)
		conditions = append(conditions,
			"EXISTS (SELECT 1 FROM user_roles ur JOIN roles r ON r.id = ur.role_id WHERE ur.user_id = u.id AND r.name = $"+strconv.Itoa(len(args))+")")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM users u" + whereClause
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, contextutils.WrapError(err, "failed to count users")
	}

	args = append(args, pageSize)
	limitClause := " ORDER BY u.created_at DESC LIMIT $" + strconv.Itoa(len(args))
	args = append(args, (page-1)*pageSize)
	limitClause += " OFFSET $" + strconv.Itoa(len(args))

	query := "SELECT " + userSelectFieldsAliased("u") + " FROM users u" + whereClause + limitClause
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, contextutils.WrapError(err, "failed to list users")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	users := []models.User{}
	for rows.Next() {
		user, scanErr := scanUserFromRows(rows)
		if scanErr != nil {
			return nil, 0, contextutils.WrapError(scanErr, "failed to scan user")
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, contextutils.WrapError(err, "error iterating users")
	}

	for i := range users {
		roles, rolesErr := s.GetUserRoles(ctx, users[i].ID)
		if rolesErr != nil {
			s.logger.Warn(ctx, "Failed to load user roles", map[string]interface{}{
				"user_id": users[i].ID,
				"error":   rolesErr.Error(),
			})
			continue
		}
		users[i].Roles = roles
	}
	return users, total, nil
}

func userSelectFieldsAliased(alias string) string {
	fields := strings.Split(userSelectFields, ", ")
	for i, field := range fields {
		fields[i] = alias + "." + field
	}
	return strings.Join(fields, ", ")
}

// DeleteUser removes a user and their associated data
func (s *UserService) DeleteUser(ctx context.Context, userID int) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "delete_user", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	result, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to delete user")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to check delete result")
	}
	if rows == 0 {
		return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %d not found", userID)
	}

	s.logger.Info(ctx, "User deleted", map[string]interface{}{"user_id": userID})
	return nil
}

// EnsureAdminUserExists creates the admin user if it doesn't exist
func (s *UserService) EnsureAdminUserExists(ctx context.Context, adminUsername, adminPassword string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "ensure_admin_user_exists")
	defer observability.FinishSpan(span, &err)

	if adminUsername == "" || adminPassword == "" {
		return contextutils.WrapError(contextutils.ErrInvalidInput, "admin username and password are required")
	}

	existing, err := s.GetUserByUsername(ctx, adminUsername)
	if err != nil {
		return err
	}
	if existing != nil {
		// Make sure the account still carries the admin role
		isAdmin, roleErr := s.IsAdmin(ctx, existing.ID)
		if roleErr != nil {
			return roleErr
		}
		if !isAdmin {
			return s.AssignRoleByName(ctx, existing.ID, string(models.RoleAdmin))
		}
		return nil
	}

	_, err = s.CreateUserWithRole(ctx, adminUsername, "", adminPassword, models.RoleAdmin)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "Created admin user", map[string]interface{}{"username": adminUsername})
	return nil
}

// GetUserRoles retrieves all roles for a user
func (s *UserService) GetUserRoles(ctx context.Context, userID int) (result0 []models.Role, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_roles", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT r.id, r.name, r.description, r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get user roles")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	roles := []models.Role{}
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan role")
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "error iterating roles")
	}
	return roles, nil
}

// GetAllRoles returns all available roles in the system
func (s *UserService) GetAllRoles(ctx context.Context) (result0 []models.Role, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_all_roles")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, description, created_at, updated_at FROM roles ORDER BY name")
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get roles")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	roles := []models.Role{}
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan role")
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "error iterating roles")
	}
	return roles, nil
}

// AssignRoleByName assigns a role to a user by role name
func (s *UserService) AssignRoleByName(ctx context.Context, userID int, roleName string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "assign_role_by_name",
		observability.AttributeUserID(userID),
		attribute.String("role.name", roleName),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		INSERT INTO user_roles (user_id, role_id, created_at)
		SELECT $1, r.id, NOW() FROM roles r WHERE r.name = $2
		ON CONFLICT (user_id, role_id) DO NOTHING`
	result, err := s.db.ExecContext(ctx, query, userID, roleName)
	if err != nil {
		return contextutils.WrapError(err, "failed to assign role")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to check assign result")
	}
	// Zero rows with no conflict possible means the role name does not exist
	if rows == 0 {
		has, hasErr := s.HasRole(ctx, userID, roleName)
		if hasErr != nil {
			return hasErr
		}
		if !has {
			return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "role '%s' not found", roleName)
		}
	}
	return nil
}

// RemoveRoleByName removes a role from a user by role name
func (s *UserService) RemoveRoleByName(ctx context.Context, userID int, roleName string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "remove_role_by_name",
		observability.AttributeUserID(userID),
		attribute.String("role.name", roleName),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		DELETE FROM user_roles
		WHERE user_id = $1 AND role_id = (SELECT id FROM roles WHERE name = $2)`
	_, err = s.db.ExecContext(ctx, query, userID, roleName)
	if err != nil {
		return contextutils.WrapError(err, "failed to remove role")
	}
	return nil
}

// HasRole checks if a user has a specific role by name
func (s *UserService) HasRole(ctx context.Context, userID int, roleName string) (result0 bool, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "has_role",
		observability.AttributeUserID(userID),
		attribute.String("role.name", roleName),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT EXISTS (
			SELECT 1 FROM user_roles ur
			JOIN roles r ON r.id = ur.role_id
			WHERE ur.user_id = $1 AND r.name = $2
		)`
	var has bool
	if err := s.db.QueryRowContext(ctx, query, userID, roleName).Scan(&has); err != nil {
		return false, contextutils.WrapError(err, "failed to check role")
	}
	return has, nil
}

// IsAdmin checks if a user has the admin role
func (s *UserService) IsAdmin(ctx context.Context, userID int) (bool, error) {
	return s.HasRole(ctx, userID, string(models.RoleAdmin))
}

// IsTeacher checks if a user may access teacher surfaces. Admins pass.
func (s *UserService) IsTeacher(ctx context.Context, userID int) (bool, error) {
	isTeacher, err := s.HasRole(ctx, userID, string(models.RoleTeacher))
	if err != nil {
		return false, err
	}
	if isTeacher {
		return true, nil
	}
	return s.IsAdmin(ctx, userID)
}

// GetDB returns the database connection
func (s *UserService) GetDB() *sql.DB {
	return s.db
}

// isDuplicateKeyError checks if the error is a duplicate key constraint violation
func isDuplicateKeyError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
