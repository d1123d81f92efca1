package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"learnapp/internal/models"
	contextutils "learnapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupNotificationTest() (*MockNotificationService, *NotificationHandler) {
	mockNotifications := new(MockNotificationService)
	handler := NewNotificationHandler(mockNotifications, testLogger())
	return mockNotifications, handler
}

func TestNotificationHandler_List(t *testing.T) {
	mockNotifications, handler := setupNotificationTest()

	router := newSessionRouter()
	router.GET("/notifications", handler.List)

	notifications := []models.Notification{
		{ID: 5, UserID: 1, Title: "Quiz graded", Message: "Your physics quiz has been graded", Type: models.NotificationQuiz},
	}
	mockNotifications.On("List", mock.Anything, 1, mock.MatchedBy(func(f *models.NotificationFilters) bool {
		return f.Type == "" && f.IsRead == nil && f.Limit == 20 && f.Offset == 0
	})).Return(notifications, nil)

	req, _ := http.NewRequest("GET", "/notifications", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	items, ok := body["notifications"].([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 1)

	mockNotifications.AssertExpectations(t)
}

func TestNotificationHandler_List_UnreadFilter(t *testing.T) {
	mockNotifications, handler := setupNotificationTest()

	router := newSessionRouter()
	router.GET("/notifications", handler.List)

	mockNotifications.On("List", mock.Anything, 1, mock.MatchedBy(func(f *models.NotificationFilters) bool {
		return f.IsRead != nil && *f.IsRead == false && f.Type == models.NotificationAnnouncement
	})).Return([]models.Notification{}, nil)

	req, _ := http.NewRequest("GET", "/notifications?is_read=false&type=announcement", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockNotifications.AssertExpectations(t)
}

func TestNotificationHandler_List_InvalidIsRead(t *testing.T) {
	_, handler := setupNotificationTest()

	router := newSessionRouter()
	router.GET("/notifications", handler.List)

	req, _ := http.NewRequest("GET", "/notifications?is_read=maybe", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_INPUT", body["code"])
}

func TestNotificationHandler_UnreadCount(t *testing.T) {
	mockNotifications, handler := setupNotificationTest()

	router := newSessionRouter()
	router.GET("/notifications/unread", handler.UnreadCount)

	mockNotifications.On("UnreadCount", mock.Anything, 1).Return(4, nil)

	req, _ := http.NewRequest("GET", "/notifications/unread", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(4), body["unread"])

	mockNotifications.AssertExpectations(t)
}

func TestNotificationHandler_MarkRead(t *testing.T) {
	mockNotifications, handler := setupNotificationTest()

	router := newSessionRouter()
	router.POST("/notifications/:id/read", handler.MarkRead)

	mockNotifications.On("MarkRead", mock.Anything, 1, 5).Return(nil)

	req, _ := http.NewRequest("POST", "/notifications/5/read", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])

	mockNotifications.AssertExpectations(t)
}

func TestNotificationHandler_MarkRead_NotFound(t *testing.T) {
	mockNotifications, handler := setupNotificationTest()

	router := newSessionRouter()
	router.POST("/notifications/:id/read", handler.MarkRead)

	mockNotifications.On("MarkRead", mock.Anything, 1, 999).
		Return(contextutils.WrapError(contextutils.ErrRecordNotFound, "notification not found"))

	req, _ := http.NewRequest("POST", "/notifications/999/read", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockNotifications.AssertExpectations(t)
}

func TestNotificationHandler_MarkAllRead(t *testing.T) {
	mockNotifications, handler := setupNotificationTest()

	router := newSessionRouter()
	router.POST("/notifications/read-all", handler.MarkAllRead)

	mockNotifications.On("MarkAllRead", mock.Anything, 1).Return(int64(6), nil)

	req, _ := http.NewRequest("POST", "/notifications/read-all", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(6), body["marked_read"])

	mockNotifications.AssertExpectations(t)
}

func TestNotificationHandler_Dismiss(t *testing.T) {
	mockNotifications, handler := setupNotificationTest()

	router := newSessionRouter()
	router.DELETE("/notifications/:id", handler.Dismiss)

	mockNotifications.On("Dismiss", mock.Anything, 1, 5).Return(nil)

	req, _ := http.NewRequest("DELETE", "/notifications/5", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockNotifications.AssertExpectations(t)
}

func TestNotificationHandler_Create(t *testing.T) {
	mockNotifications, handler := setupNotificationTest()

	router := newSessionRouter()
	router.POST("/notifications", handler.Create)

	notification := &models.Notification{ID: 11, UserID: 4, Title: "Extra class", Message: "Doubt clearing session at 5pm"}
	mockNotifications.On("Create", mock.Anything, 2, mock.MatchedBy(func(req *models.CreateNotificationRequest) bool {
		return req.UserID == 4 && req.Title == "Extra class"
	})).Return(notification, nil)

	reqBody, _ := json.Marshal(models.CreateNotificationRequest{
		UserID:  4,
		Title:   "Extra class",
		Message: "Doubt clearing session at 5pm",
	})
	req, _ := http.NewRequest("POST", "/notifications", bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", authSessionCookie(t, 2))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(11), body["id"])

	mockNotifications.AssertExpectations(t)
}

func TestNotificationHandler_Create_MissingTitle(t *testing.T) {
	_, handler := setupNotificationTest()

	router := newSessionRouter()
	router.POST("/notifications", handler.Create)

	req, _ := http.NewRequest("POST", "/notifications", bytes.NewBufferString(`{"user_id": 4, "message": "hi"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", authSessionCookie(t, 2))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotificationHandler_Broadcast(t *testing.T) {
	mockNotifications, handler := setupNotificationTest()

	router := newSessionRouter()
	router.POST("/notifications/broadcast", handler.Broadcast)

	mockNotifications.On("Broadcast", mock.Anything, 2, []int{4, 5, 6}, mock.MatchedBy(func(req *models.CreateNotificationRequest) bool {
		return req.Title == "Syllabus update" && req.Type == models.NotificationAnnouncement
	})).Return(3, nil)

	payload := `{"user_ids": [4, 5, 6], "title": "Syllabus update", "message": "Unit 4 moved up", "type": "announcement"}`
	req, _ := http.NewRequest("POST", "/notifications/broadcast", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", authSessionCookie(t, 2))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(3), body["created"])

	mockNotifications.AssertExpectations(t)
}

func TestNotificationHandler_Broadcast_NoRecipients(t *testing.T) {
	_, handler := setupNotificationTest()

	router := newSessionRouter()
	router.POST("/notifications/broadcast", handler.Broadcast)

	payload := `{"user_ids": [], "title": "Syllabus update", "message": "Unit 4 moved up"}`
	req, _ := http.NewRequest("POST", "/notifications/broadcast", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", authSessionCookie(t, 2))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotificationHandler_ListCreated(t *testing.T) {
	mockNotifications, handler := setupNotificationTest()

	router := newSessionRouter()
	router.GET("/notifications/created", handler.ListCreated)

	notifications := []models.Notification{
		{ID: 11, UserID: 4, Title: "Extra class"},
	}
	mockNotifications.On("ListCreatedBy", mock.Anything, 2, 20, 0).Return(notifications, nil)

	req, _ := http.NewRequest("GET", "/notifications/created", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 2))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	items, ok := body["notifications"].([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 1)

	mockNotifications.AssertExpectations(t)
}
