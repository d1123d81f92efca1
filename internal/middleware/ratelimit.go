package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// clientLimiter tracks a token bucket per client along with the last time
// the client was seen, so idle entries can be pruned.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out per-client token buckets. Clients are keyed by
// session user ID when authenticated, falling back to the remote IP.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	rate     rate.Limit
	burst    int
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a limiter allowing perMinute requests per client
// with the given burst. Burst values below 1 are raised to 1. Stop releases
// the background prune goroutine.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		clients: make(map[string]*clientLimiter),
		rate:    rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		stop:    make(chan struct{}),
	}
	go rl.pruneLoop(5 * time.Minute)
	return rl
}

// Stop terminates the prune goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	client, ok := rl.clients[key]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.clients[key] = client
	}
	client.lastSeen = time.Now()
	return client.limiter.Allow()
}

func (rl *RateLimiter) pruneLoop(maxIdle time.Duration) {
	ticker := time.NewTicker(maxIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.prune(maxIdle)
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) prune(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	for key, client := range rl.clients {
		if client.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}

// clientKey identifies the caller. Authenticated requests are limited per
// user so shared NATs do not starve each other; anonymous requests fall
// back to the client IP.
func clientKey(c *gin.Context) string {
	session := sessions.Default(c)
	if userID := session.Get(UserIDKey); userID != nil {
		if id, ok := userID.(int); ok {
			return "user:" + strconv.Itoa(id)
		}
		// JSON numbers are often stored as float64
		if idFloat, ok := userID.(float64); ok {
			return "user:" + strconv.Itoa(int(idFloat))
		}
	}
	return "ip:" + c.ClientIP()
}

// Middleware returns a gin handler that rejects requests over the limit
// with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(clientKey(c)) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests",
				"code":  "RATE_LIMITED",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RateLimit is a convenience wrapper for route groups that do not need to
// share a limiter instance.
func RateLimit(perMinute, burst int) gin.HandlerFunc {
	return NewRateLimiter(perMinute, burst).Middleware()
}
