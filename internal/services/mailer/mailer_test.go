package mailer

import (
	"context"
	"testing"

	"learnapp/internal/models"

	"github.com/stretchr/testify/assert"
)

// MockMailer implements Mailer for testing
type MockMailer struct {
	SendStudyReminderCalled      bool
	SendDigestCalled             bool
	SendParentMessageCalled      bool
	SendEmailCalled              bool
	RecordSentNotificationCalled bool
	IsEnabledResult              bool
}

func (m *MockMailer) SendStudyReminder(_ context.Context, _ *models.User) error {
	m.SendStudyReminderCalled = true
	return nil
}

func (m *MockMailer) SendNotificationDigest(_ context.Context, _ *models.User, _ []models.Notification) error {
	m.SendDigestCalled = true
	return nil
}

func (m *MockMailer) SendParentMessage(_ context.Context, _, _, _ string) error {
	m.SendParentMessageCalled = true
	return nil
}

func (m *MockMailer) SendEmail(_ context.Context, _, _, _ string, _ map[string]interface{}) error {
	m.SendEmailCalled = true
	return nil
}

func (m *MockMailer) RecordSentNotification(_ context.Context, _ int, _, _, _, _, _ string) error {
	m.RecordSentNotificationCalled = true
	return nil
}

func (m *MockMailer) IsEnabled() bool {
	return m.IsEnabledResult
}

func TestMailerInterface_Implementation(t *testing.T) {
	var _ Mailer = (*MockMailer)(nil)

	mock := &MockMailer{}
	ctx := context.Background()
	user := &models.User{ID: 1, Username: "test"}

	err := mock.SendStudyReminder(ctx, user)
	assert.NoError(t, err)
	assert.True(t, mock.SendStudyReminderCalled)

	err = mock.SendNotificationDigest(ctx, user, nil)
	assert.NoError(t, err)
	assert.True(t, mock.SendDigestCalled)

	err = mock.SendParentMessage(ctx, "parent@example.com", "Progress update", "Hello")
	assert.NoError(t, err)
	assert.True(t, mock.SendParentMessageCalled)

	err = mock.SendEmail(ctx, "test@example.com", "Test Subject", "test_template", map[string]interface{}{})
	assert.NoError(t, err)
	assert.True(t, mock.SendEmailCalled)

	err = mock.RecordSentNotification(ctx, 1, "test_type", "Test Subject", "test_template", "sent", "")
	assert.NoError(t, err)
	assert.True(t, mock.RecordSentNotificationCalled)

	assert.False(t, mock.IsEnabled())
	mock.IsEnabledResult = true
	assert.True(t, mock.IsEnabled())
}
