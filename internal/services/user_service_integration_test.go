//go:build integration

package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"learnapp/internal/config"
	"learnapp/internal/models"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIntegrationUserService(t *testing.T) (*UserService, func()) {
	t.Helper()
	db := SharedTestDBSetup(t)
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	return NewUserService(db, logger), func() { db.Close() }
}

func uniqueUsername() string {
	return fmt.Sprintf("testuser_%d", time.Now().UnixNano())
}

func TestUserService_CreateUser_Integration(t *testing.T) {
	service, cleanup := newIntegrationUserService(t)
	defer cleanup()

	username := uniqueUsername()
	user, err := service.CreateUser(context.Background(), &models.SignupRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
		Grade:    "12",
	})
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Greater(t, user.ID, 0)
	assert.Equal(t, username, user.Username)
	assert.True(t, user.Grade.Valid)
	assert.Equal(t, "12", user.Grade.String)
	assert.True(t, user.HasRole(models.RoleStudent))
}

func TestUserService_CreateUser_DuplicateUsername_Integration(t *testing.T) {
	service, cleanup := newIntegrationUserService(t)
	defer cleanup()

	username := uniqueUsername()
	req := &models.SignupRequest{Username: username, Password: "password123"}

	_, err := service.CreateUser(context.Background(), req)
	require.NoError(t, err)

	_, err = service.CreateUser(context.Background(), req)
	assert.ErrorIs(t, err, contextutils.ErrRecordExists)
}

func TestUserService_Authenticate_Integration(t *testing.T) {
	service, cleanup := newIntegrationUserService(t)
	defer cleanup()

	username := uniqueUsername()
	_, err := service.CreateUser(context.Background(), &models.SignupRequest{
		Username: username,
		Password: "password123",
	})
	require.NoError(t, err)

	user, err := service.AuthenticateUser(context.Background(), username, "password123")
	require.NoError(t, err)
	assert.Equal(t, username, user.Username)

	_, err = service.AuthenticateUser(context.Background(), username, "wrong-password")
	assert.ErrorIs(t, err, contextutils.ErrInvalidCredentials)

	_, err = service.AuthenticateUser(context.Background(), "no-such-user", "password123")
	assert.ErrorIs(t, err, contextutils.ErrInvalidCredentials)
}

func TestUserService_UsernameLookupIsCaseInsensitive_Integration(t *testing.T) {
	service, cleanup := newIntegrationUserService(t)
	defer cleanup()

	username := uniqueUsername()
	_, err := service.CreateUser(context.Background(), &models.SignupRequest{
		Username: username,
		Password: "password123",
	})
	require.NoError(t, err)

	user, err := service.GetUserByUsername(context.Background(), "TESTUSER"+username[8:])
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, username, user.Username)
}

func TestUserService_Roles_Integration(t *testing.T) {
	service, cleanup := newIntegrationUserService(t)
	defer cleanup()

	user, err := service.CreateUser(context.Background(), &models.SignupRequest{
		Username: uniqueUsername(),
		Password: "password123",
	})
	require.NoError(t, err)

	isTeacher, err := service.IsTeacher(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, isTeacher)

	require.NoError(t, service.AssignRoleByName(context.Background(), user.ID, string(models.RoleTeacher)))
	isTeacher, err = service.IsTeacher(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, isTeacher)

	require.NoError(t, service.RemoveRoleByName(context.Background(), user.ID, string(models.RoleTeacher)))
	isTeacher, err = service.IsTeacher(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, isTeacher)
}

func TestUserService_AdminsPassTeacherChecks_Integration(t *testing.T) {
	service, cleanup := newIntegrationUserService(t)
	defer cleanup()

	user, err := service.CreateUserWithRole(context.Background(),
		uniqueUsername(), "", "password123", models.RoleAdmin)
	require.NoError(t, err)

	isTeacher, err := service.IsTeacher(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, isTeacher)
}

func TestUserService_EnsureAdminUserExists_Integration(t *testing.T) {
	service, cleanup := newIntegrationUserService(t)
	defer cleanup()

	username := uniqueUsername()
	require.NoError(t, service.EnsureAdminUserExists(context.Background(), username, "adminpass123"))

	user, err := service.GetUserByUsername(context.Background(), username)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.True(t, user.HasRole(models.RoleAdmin))

	// Second call is a no-op
	require.NoError(t, service.EnsureAdminUserExists(context.Background(), username, "adminpass123"))
}

func TestUserService_UpdateProfileAndPassword_Integration(t *testing.T) {
	service, cleanup := newIntegrationUserService(t)
	defer cleanup()

	username := uniqueUsername()
	user, err := service.CreateUser(context.Background(), &models.SignupRequest{
		Username: username,
		Password: "password123",
	})
	require.NoError(t, err)

	err = service.UpdateUserProfile(context.Background(), user.ID, &models.UpdateProfileRequest{
		Email:    username + "@example.com",
		Timezone: "Asia/Kolkata",
		Grade:    "12",
	})
	require.NoError(t, err)

	updated, err := service.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", updated.Timezone.String)
	assert.Equal(t, "12", updated.Grade.String)

	require.NoError(t, service.UpdateUserPassword(context.Background(), user.ID, "newpassword123"))
	_, err = service.AuthenticateUser(context.Background(), username, "newpassword123")
	require.NoError(t, err)
}

func TestUserService_GetUsersPaginated_Integration(t *testing.T) {
	service, cleanup := newIntegrationUserService(t)
	defer cleanup()

	username := uniqueUsername()
	_, err := service.CreateUser(context.Background(), &models.SignupRequest{
		Username: username,
		Password: "password123",
		Grade:    "12",
	})
	require.NoError(t, err)

	users, total, err := service.GetUsersPaginated(context.Background(), 1, 10, username, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, username, users[0].Username)

	_, total, err = service.GetUsersPaginated(context.Background(), 1, 10, username, string(models.RoleTeacher), "")
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}
