package services

import (
	"context"
	"testing"

	"learnapp/internal/config"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain json untouched",
			input: `{"answer": "42"}`,
			want:  `{"answer": "42"}`,
		},
		{
			name:  "json fence",
			input: "```json\n{\"answer\": \"42\"}\n```",
			want:  `{"answer": "42"}`,
		},
		{
			name:  "bare fence",
			input: "```\n{\"answer\": \"42\"}\n```",
			want:  `{"answer": "42"}`,
		},
		{
			name:  "surrounding whitespace",
			input: "  ```json\n[1, 2, 3]\n```  ",
			want:  "[1, 2, 3]",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.input))
		})
	}
}

func TestTruncateForLog(t *testing.T) {
	assert.Equal(t, "short", truncateForLog("short", 10))
	assert.Equal(t, "abcde...", truncateForLog("abcdefghij", 5))
}

func newConcurrencyTestService(t *testing.T, maxConcurrent, maxPerUser int) *GeminiService {
	t.Helper()
	logger := observability.NewLogger(&config.OpenTelemetryConfig{})

	return &GeminiService{
		cfg:              &config.Config{},
		globalSemaphore:  make(chan struct{}, maxConcurrent),
		maxConcurrent:    maxConcurrent,
		maxPerUser:       maxPerUser,
		userRequestCount: make(map[int]int),
		logger:           logger,
	}
}

func TestAcquireSlotPerUserLimit(t *testing.T) {
	svc := newConcurrencyTestService(t, 10, 2)
	ctx := contextutils.WithUserID(context.Background(), 7)

	release1, err := svc.acquireSlot(ctx)
	require.NoError(t, err)
	release2, err := svc.acquireSlot(ctx)
	require.NoError(t, err)

	_, err = svc.acquireSlot(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "too many concurrent AI requests")

	stats := svc.GetConcurrencyStats()
	assert.Equal(t, 2, stats.ActiveRequests)
	assert.Equal(t, 2, stats.UserActiveCount[7])

	release1()
	release2()

	stats = svc.GetConcurrencyStats()
	assert.Equal(t, 0, stats.ActiveRequests)
	assert.Empty(t, stats.UserActiveCount)
	assert.Equal(t, int64(2), stats.TotalRequests)
}

func TestAcquireSlotReleaseIsIdempotent(t *testing.T) {
	svc := newConcurrencyTestService(t, 4, 4)
	ctx := contextutils.WithUserID(context.Background(), 3)

	release, err := svc.acquireSlot(ctx)
	require.NoError(t, err)

	release()
	release()

	stats := svc.GetConcurrencyStats()
	assert.Equal(t, 0, stats.ActiveRequests)
}

func TestShutdownWithNoActiveRequests(t *testing.T) {
	svc := newConcurrencyTestService(t, 2, 2)
	assert.NoError(t, svc.Shutdown(context.Background()))
}
