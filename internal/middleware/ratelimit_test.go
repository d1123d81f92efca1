package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimit_AllowsWithinBurst(t *testing.T) {
	router := newTestRouter()
	router.GET("/limited", RateLimit(60, 3), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/limited", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should be allowed", i+1)
	}
}

func TestRateLimit_RejectsOverBurst(t *testing.T) {
	router := newTestRouter()
	router.GET("/limited", RateLimit(1, 1), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/limited", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/limited", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
}

func TestRateLimit_SeparateBucketsPerUser(t *testing.T) {
	router := newTestRouter()
	limiter := NewRateLimiter(1, 1)
	router.GET("/limited", limiter.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	userA := setSessionCookie(t, router, map[string]interface{}{
		UserIDKey: 1, UsernameKey: "alice",
	})
	userB := setSessionCookie(t, router, map[string]interface{}{
		UserIDKey: 2, UsernameKey: "bob",
	})

	send := func(cookie *http.Cookie) int {
		req := httptest.NewRequest("GET", "/limited", nil)
		req.AddCookie(cookie)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send(userA))
	assert.Equal(t, http.StatusTooManyRequests, send(userA))
	// A separate user has their own bucket
	assert.Equal(t, http.StatusOK, send(userB))
}

func TestRateLimiter_Prune(t *testing.T) {
	limiter := NewRateLimiter(60, 1)
	limiter.allow("user:1")
	limiter.allow("user:2")

	limiter.mu.Lock()
	limiter.clients["user:1"].lastSeen = time.Now().Add(-time.Hour)
	limiter.mu.Unlock()

	limiter.prune(5 * time.Minute)

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.NotContains(t, limiter.clients, "user:1")
	assert.Contains(t, limiter.clients, "user:2")
}

func TestRateLimiter_Stop(t *testing.T) {
	limiter := NewRateLimiter(60, 1)
	limiter.Stop()
	// Repeated stops must not panic
	limiter.Stop()

	select {
	case <-limiter.stop:
	default:
		t.Fatal("stop channel should be closed")
	}
}

func TestClientKey_Float64SessionUserID(t *testing.T) {
	router := newTestRouter()
	var key string
	router.GET("/key", func(c *gin.Context) {
		key = clientKey(c)
		c.Status(http.StatusOK)
	})

	cookie := setSessionCookie(t, router, map[string]interface{}{
		UserIDKey: float64(7), UsernameKey: "asha",
	})

	req := httptest.NewRequest("GET", "/key", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "user:7", key)
}

func TestClientKey_FallsBackToIP(t *testing.T) {
	router := newTestRouter()
	var key string
	router.GET("/key", func(c *gin.Context) {
		key = clientKey(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/key", nil)
	req.RemoteAddr = "203.0.113.9:4567"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "ip:203.0.113.9", key)
}
