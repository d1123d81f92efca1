package services

import (
	"context"
	"errors"
	"testing"

	"learnapp/internal/config"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func newTestUserService() *UserService {
	logger := observability.NewLogger(&config.OpenTelemetryConfig{})
	return NewUserService(nil, logger)
}

func TestIsDuplicateKeyError(t *testing.T) {
	assert.True(t, isDuplicateKeyError(&pq.Error{Code: "23505"}))
	assert.False(t, isDuplicateKeyError(&pq.Error{Code: "23503"}))
	assert.False(t, isDuplicateKeyError(errors.New("connection refused")))
	assert.False(t, isDuplicateKeyError(nil))
}

func TestInsertUserValidation(t *testing.T) {
	service := newTestUserService()

	_, err := service.insertUser(context.Background(), "", "", "password123", "", nil)
	assert.ErrorIs(t, err, contextutils.ErrInvalidInput)

	_, err = service.insertUser(context.Background(), "   ", "", "password123", "", nil)
	assert.ErrorIs(t, err, contextutils.ErrInvalidInput)

	_, err = service.insertUser(context.Background(), "student1", "", "", "", nil)
	assert.ErrorIs(t, err, contextutils.ErrInvalidInput)
}

func TestUpdateUserPasswordValidation(t *testing.T) {
	service := newTestUserService()

	err := service.UpdateUserPassword(context.Background(), 1, "")
	assert.ErrorIs(t, err, contextutils.ErrInvalidInput)
}

func TestEnsureAdminUserExistsValidation(t *testing.T) {
	service := newTestUserService()

	err := service.EnsureAdminUserExists(context.Background(), "", "")
	assert.ErrorIs(t, err, contextutils.ErrInvalidInput)
}

func TestUserSelectFieldsAliased(t *testing.T) {
	aliased := userSelectFieldsAliased("u")
	assert.Contains(t, aliased, "u.id")
	assert.Contains(t, aliased, "u.password_hash")
	assert.NotContains(t, aliased, ", id")
}
