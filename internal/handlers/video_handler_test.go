package handlers

import (
	"bytes"
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

func TestVideoHandler_Search_Get(t *testing.T) {
	mockYouTube := new(MockYouTubeService)
	handler := NewVideoHandler(mockYouTube, testLogger())

	router := newSessionRouter()
	router.GET("/videos/search", handler.Search)

	response := &models.VideoSearchResponse{
		Query: "projectile motion",
		Videos: []models.VideoResult{
			{VideoID: "abc123", Title: "Projectile Motion Explained", Duration: 9 * time.Minute},
		},
	}
	mockYouTube.On("SearchVideos", mock.Anything, mock.MatchedBy(func(req *models.VideoSearchRequest) bool {
		return req.Query == "projectile motion" && req.Subject == "physics"
	})).Return(response, nil)

	req, _ := http.NewRequest("GET", "/videos/search?query=projectile+motion&subject=physics", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	videos, ok := body["videos"].([]interface{})
	require.True(t, ok)
	require.Len(t, videos, 1)

	first, ok := videos[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "abc123", first["video_id"])
	assert.Equal(t, float64(540), first["duration_seconds"])

	mockYouTube.AssertExpectations(t)
}

func TestVideoHandler_Search_Post(t *testing.T) {
	mockYouTube := new(MockYouTubeService)
	handler := NewVideoHandler(mockYouTube, testLogger())

	router := newSessionRouter()
	router.POST("/videos/search", handler.Search)

	response := &models.VideoSearchResponse{Query: "organic chemistry", Videos: []models.VideoResult{}}
	mockYouTube.On("SearchVideos", mock.Anything, mock.MatchedBy(func(req *models.VideoSearchRequest) bool {
		return req.Query == "organic chemistry" && req.MaxResults == 5
	})).Return(response, nil)

	reqBody, _ := json.Marshal(models.VideoSearchRequest{Query: "organic chemistry", MaxResults: 5})
	req, _ := http.NewRequest("POST", "/videos/search", bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockYouTube.AssertExpectations(t)
}

func TestVideoHandler_Search_MissingQuery(t *testing.T) {
	mockYouTube := new(MockYouTubeService)
	handler := NewVideoHandler(mockYouTube, testLogger())

	router := newSessionRouter()
	router.GET("/videos/search", handler.Search)

	req, _ := http.NewRequest("GET", "/videos/search", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_INPUT", body["code"])
}

func TestVideoHandler_Search_QuotaExhausted(t *testing.T) {
	mockYouTube := new(MockYouTubeService)
	handler := NewVideoHandler(mockYouTube, testLogger())

	router := newSessionRouter()
	router.GET("/videos/search", handler.Search)

	mockYouTube.On("SearchVideos", mock.Anything, mock.Anything).
		Return(nil, contextutils.ErrQuotaExceeded)

	req, _ := http.NewRequest("GET", "/videos/search?query=gravity", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "QUOTA_EXCEEDED", body["code"])

	mockYouTube.AssertExpectations(t)
}

func TestVideoHandler_Quota(t *testing.T) {
	mockYouTube := new(MockYouTubeService)
	handler := NewVideoHandler(mockYouTube, testLogger())

	router := newSessionRouter()
	router.GET("/videos/quota", handler.Quota)

	resetAt := time.Now().Add(6 * time.Hour)
	mockYouTube.On("QuotaExhausted").Return(true, resetAt)

	req, _ := http.NewRequest("GET", "/videos/quota", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["exhausted"])
	assert.Contains(t, body, "reset_at")

	mockYouTube.AssertExpectations(t)
}

func TestVideoHandler_Quota_Available(t *testing.T) {
	mockYouTube := new(MockYouTubeService)
	handler := NewVideoHandler(mockYouTube, testLogger())

	router := newSessionRouter()
	router.GET("/videos/quota", handler.Quota)

	mockYouTube.On("QuotaExhausted").Return(false, time.Time{})

	req, _ := http.NewRequest("GET", "/videos/quota", nil)
	req.Header.Set("Cookie", authSessionCookie(t, 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["exhausted"])
	assert.NotContains(t, body, "reset_at")

	mockYouTube.AssertExpectations(t)
}
