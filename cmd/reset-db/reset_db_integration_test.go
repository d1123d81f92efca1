//go:build integration

package main

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"learnapp/internal/config"
	"learnapp/internal/database"
	"learnapp/internal/observability"
	"learnapp/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ResetDBIntegrationTestSuite exercises the reset-db CLI tool against a real database
type ResetDBIntegrationTestSuite struct {
	suite.Suite
	DB          *sql.DB
	DBManager   *database.Manager
	UserService *services.UserService
	Logger      *observability.Logger
}

func TestResetDBIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(ResetDBIntegrationTestSuite))
}

func (suite *ResetDBIntegrationTestSuite) SetupSuite() {
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	suite.Logger = logger

	dbManager := database.NewManager(logger)
	suite.DBManager = dbManager

	testDBURL := os.Getenv("TEST_DATABASE_URL")
	if testDBURL == "" {
		suite.T().Fatal("TEST_DATABASE_URL environment variable must be set for integration tests")
	}

	db, err := dbManager.InitDB(testDBURL)
	require.NoError(suite.T(), err)
	suite.DB = db

	suite.UserService = services.NewUserService(db, logger)
}

func (suite *ResetDBIntegrationTestSuite) TearDownSuite() {
	if suite.DB != nil {
		suite.DB.Close()
	}
}

func (suite *ResetDBIntegrationTestSuite) SetupTest() {
	services.CleanupTestDatabase(suite.DB, suite.T())
	suite.seedTestData()
}

func (suite *ResetDBIntegrationTestSuite) seedTestData() {
	_, err := suite.DB.Exec(`
		INSERT INTO users (username, password_hash, grade, created_at, updated_at)
		VALUES
			('reset_student', '$2a$10$test', '12', NOW(), NOW()),
			('reset_teacher', '$2a$10$test', NULL, NOW(), NOW())
	`)
	require.NoError(suite.T(), err)

	_, err = suite.DB.Exec(`
		INSERT INTO doubts (user_id, subject, modality, question, answer)
		SELECT id, 'physics', 'text', 'Why is the sky blue?', 'Rayleigh scattering.'
		FROM users WHERE username = 'reset_student'
	`)
	require.NoError(suite.T(), err)
}

// TestPerformReset verifies a reset drops every row and leaves a usable schema
func (suite *ResetDBIntegrationTestSuite) TestPerformReset() {
	ctx := context.Background()

	var userCount, doubtCount int64
	require.NoError(suite.T(), suite.DB.QueryRow("SELECT COUNT(*) FROM users").Scan(&userCount))
	require.NoError(suite.T(), suite.DB.QueryRow("SELECT COUNT(*) FROM doubts").Scan(&doubtCount))
	assert.Greater(suite.T(), userCount, int64(0))
	assert.Greater(suite.T(), doubtCount, int64(0))

	require.NoError(suite.T(), performReset(ctx, suite.DB, suite.DBManager))

	require.NoError(suite.T(), suite.DB.QueryRow("SELECT COUNT(*) FROM users").Scan(&userCount))
	require.NoError(suite.T(), suite.DB.QueryRow("SELECT COUNT(*) FROM doubts").Scan(&doubtCount))
	assert.Equal(suite.T(), int64(0), userCount, "all users should be deleted")
	assert.Equal(suite.T(), int64(0), doubtCount, "all doubts should be deleted")
}

// TestAdminRecreationAfterReset verifies the admin account comes back after a reset
func (suite *ResetDBIntegrationTestSuite) TestAdminRecreationAfterReset() {
	ctx := context.Background()

	require.NoError(suite.T(), performReset(ctx, suite.DB, suite.DBManager))

	require.NoError(suite.T(), suite.UserService.EnsureAdminUserExists(ctx, "admin", "adminpass"))

	adminUser, err := suite.UserService.GetUserByUsername(ctx, "admin")
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), adminUser)
	assert.Equal(suite.T(), "admin", adminUser.Username)

	isAdmin, err := suite.UserService.IsAdmin(ctx, adminUser.ID)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), isAdmin)
}

// TestPerformResetOnEmptyDatabase verifies a reset of an empty database succeeds
func (suite *ResetDBIntegrationTestSuite) TestPerformResetOnEmptyDatabase() {
	ctx := context.Background()

	services.CleanupTestDatabase(suite.DB, suite.T())

	require.NoError(suite.T(), performReset(ctx, suite.DB, suite.DBManager))

	var userCount int64
	require.NoError(suite.T(), suite.DB.QueryRow("SELECT COUNT(*) FROM users").Scan(&userCount))
	assert.Equal(suite.T(), int64(0), userCount)
}
