package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"learnapp/internal/models"
	contextutils "learnapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupMessagesTest() (*MockMessagesService, *MessagesHandler) {
	mockMessages := new(MockMessagesService)
	handler := NewMessagesHandler(mockMessages, testLogger())
	return mockMessages, handler
}

func TestMessagesHandler_GetOrCreateConversation(t *testing.T) {
	mockMessages, handler := setupMessagesTest()

	router := newSessionRouter()
	router.POST("/conversations", handler.GetOrCreateConversation)

	conversation := &models.Conversation{ID: 7, ParticipantA: 1, ParticipantB: 4}
	mockMessages.On("GetOrCreateConversation", mock.Anything, 1, 4).Return(conversation, nil)

	req, _ := http.NewRequest("POST", "/conversations", bytes.NewBufferString(`{"user_id": 4}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(7), body["id"])
	assert.Nil(t, body["last_message_at"])

	mockMessages.AssertExpectations(t)
}

func TestMessagesHandler_GetOrCreateConversation_MissingUserID(t *testing.T) {
	_, handler := setupMessagesTest()

	router := newSessionRouter()
	router.POST("/conversations", handler.GetOrCreateConversation)

	req, _ := http.NewRequest("POST", "/conversations", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_INPUT", body["code"])
}

func TestMessagesHandler_ListConversations(t *testing.T) {
	mockMessages, handler := setupMessagesTest()

	router := newSessionRouter()
	router.GET("/conversations", handler.ListConversations)

	lastAt := time.Now()
	conversations := []models.Conversation{
		{ID: 7, ParticipantA: 1, ParticipantB: 4, LastMessageAt: sql.NullTime{Time: lastAt, Valid: true}},
	}
	mockMessages.On("ListConversations", mock.Anything, 1, 50, 0).Return(conversations, nil)

	req, _ := http.NewRequest("GET", "/conversations", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	items, ok := body["conversations"].([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 1)

	mockMessages.AssertExpectations(t)
}

func TestMessagesHandler_ListConversations_Pagination(t *testing.T) {
	mockMessages, handler := setupMessagesTest()

	router := newSessionRouter()
	router.GET("/conversations", handler.ListConversations)

	mockMessages.On("ListConversations", mock.Anything, 1, 10, 20).Return([]models.Conversation{}, nil)

	req, _ := http.NewRequest("GET", "/conversations?page=3&page_size=10", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	pagination, ok := body["pagination"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), pagination["page"])
	assert.Equal(t, float64(10), pagination["page_size"])

	mockMessages.AssertExpectations(t)
}

func TestMessagesHandler_SendMessage(t *testing.T) {
	mockMessages, handler := setupMessagesTest()

	router := newSessionRouter()
	router.POST("/messages", handler.SendMessage)

	message := &models.Message{ID: 21, ConversationID: 7, SenderID: 1, Body: "Did you finish the optics worksheet?"}
	mockMessages.On("SendMessage", mock.Anything, 1, mock.MatchedBy(func(req *models.SendMessageRequest) bool {
		return req.RecipientID == 4 && req.Body == "Did you finish the optics worksheet?"
	})).Return(message, nil)

	reqBody, _ := json.Marshal(models.SendMessageRequest{RecipientID: 4, Body: "Did you finish the optics worksheet?"})
	req, _ := http.NewRequest("POST", "/messages", bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(21), body["id"])
	assert.Nil(t, body["read_at"])

	mockMessages.AssertExpectations(t)
}

func TestMessagesHandler_SendMessage_MissingBody(t *testing.T) {
	_, handler := setupMessagesTest()

	router := newSessionRouter()
	router.POST("/messages", handler.SendMessage)

	req, _ := http.NewRequest("POST", "/messages", bytes.NewBufferString(`{"recipient_id": 4}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMessagesHandler_ListMessages(t *testing.T) {
	mockMessages, handler := setupMessagesTest()

	router := newSessionRouter()
	router.GET("/conversations/:id/messages", handler.ListMessages)

	messages := []models.Message{
		{ID: 21, ConversationID: 7, SenderID: 4, Body: "Almost done"},
	}
	mockMessages.On("ListMessages", mock.Anything, 1, 7, 50, 0).Return(messages, nil)

	req, _ := http.NewRequest("GET", "/conversations/7/messages", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	items, ok := body["messages"].([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 1)

	pagination, ok := body["pagination"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(50), pagination["page_size"])

	mockMessages.AssertExpectations(t)
}

func TestMessagesHandler_ListMessages_InvalidConversationID(t *testing.T) {
	_, handler := setupMessagesTest()

	router := newSessionRouter()
	router.GET("/conversations/:id/messages", handler.ListMessages)

	req, _ := http.NewRequest("GET", "/conversations/abc/messages", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMessagesHandler_ListMessages_Forbidden(t *testing.T) {
	mockMessages, handler := setupMessagesTest()

	router := newSessionRouter()
	router.GET("/conversations/:id/messages", handler.ListMessages)

	mockMessages.On("ListMessages", mock.Anything, 1, 9, 50, 0).
		Return(nil, contextutils.WrapError(contextutils.ErrForbidden, "not a participant"))

	req, _ := http.NewRequest("GET", "/conversations/9/messages", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "FORBIDDEN", body["code"])

	mockMessages.AssertExpectations(t)
}

func TestMessagesHandler_MarkRead(t *testing.T) {
	mockMessages, handler := setupMessagesTest()

	router := newSessionRouter()
	router.POST("/conversations/:id/read", handler.MarkRead)

	mockMessages.On("MarkRead", mock.Anything, 1, 7).Return(int64(3), nil)

	req, _ := http.NewRequest("POST", "/conversations/7/read", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(3), body["marked_read"])

	mockMessages.AssertExpectations(t)
}

func TestMessagesHandler_Improve(t *testing.T) {
	mockMessages, handler := setupMessagesTest()

	router := newSessionRouter()
	router.POST("/messages/improve", handler.Improve)

	mockMessages.On("ImproveMessage", mock.Anything, mock.MatchedBy(func(req *models.ImproveMessageRequest) bool {
		return req.Draft == "hey did u do hw" && req.Tone == "polite"
	})).Return("Hi, have you had a chance to finish the homework?", nil)

	reqBody, _ := json.Marshal(models.ImproveMessageRequest{Draft: "hey did u do hw", Tone: "polite"})
	req, _ := http.NewRequest("POST", "/messages/improve", bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Hi, have you had a chance to finish the homework?", body["improved"])

	mockMessages.AssertExpectations(t)
}

func TestMessagesHandler_Suggestions(t *testing.T) {
	mockMessages, handler := setupMessagesTest()

	router := newSessionRouter()
	router.POST("/messages/suggestions", handler.Suggestions)

	suggestions := []string{"Yes, finished it last night.", "Not yet, can we go over it?", "Which questions are you stuck on?"}
	mockMessages.On("SuggestReplies", mock.Anything, 1, 7).Return(suggestions, nil)

	req, _ := http.NewRequest("POST", "/messages/suggestions", bytes.NewBufferString(`{"conversation_id": 7}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	items, ok := body["suggestions"].([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 3)

	mockMessages.AssertExpectations(t)
}

func TestMessagesHandler_Unauthenticated(t *testing.T) {
	_, handler := setupMessagesTest()

	router := newSessionRouter()
	router.GET("/conversations", handler.ListConversations)

	req, _ := http.NewRequest("GET", "/conversations", nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
