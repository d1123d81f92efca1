package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"learnapp/internal/config"
	"learnapp/internal/models"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// educationCategoryID is the YouTube video category for education
const educationCategoryID = "27"

// youtubeQuotaService is the api_quota row key for the YouTube Data API
const youtubeQuotaService = "youtube"

// YouTubeServiceInterface defines educational video search operations
type YouTubeServiceInterface interface {
	SearchVideos(ctx context.Context, req *models.VideoSearchRequest) (*models.VideoSearchResponse, error)
	QuotaExhausted() (bool, time.Time)
}

// YouTubeService searches the YouTube Data API for educational videos.
// When the daily quota runs out the service latches until the quota reset
// at midnight Pacific time and short-circuits further searches.
type YouTubeService struct {
	cfg        *config.Config
	db         *sql.DB
	httpClient *http.Client
	logger     *observability.Logger

	mu                  sync.Mutex
	quotaExhaustedUntil time.Time
}

// NewYouTubeService creates a new YouTube service instance
func NewYouTubeService(cfg *config.Config, db *sql.DB, logger *observability.Logger) *YouTubeService {
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
		),
	}

	s := &YouTubeService{
		cfg:        cfg,
		db:         db,
		httpClient: httpClient,
		logger:     logger,
	}
	s.loadQuotaState(context.Background())
	return s
}

// loadQuotaState restores a persisted quota latch after a restart
func (s *YouTubeService) loadQuotaState(ctx context.Context) {
	if s.db == nil {
		return
	}

	var exhaustedUntil time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT exhausted_until FROM api_quota WHERE service = $1`, youtubeQuotaService,
	).Scan(&exhaustedUntil)
	if err == sql.ErrNoRows {
		return
	}
	if err != nil {
		s.logger.Warn(ctx, "Failed to load YouTube quota state", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if exhaustedUntil.After(time.Now()) {
		s.mu.Lock()
		s.quotaExhaustedUntil = exhaustedUntil
		s.mu.Unlock()
		s.logger.Info(ctx, "Restored YouTube quota latch", map[string]interface{}{
			"exhausted_until": exhaustedUntil,
		})
	}
}

// QuotaExhausted reports whether searches are currently short-circuited and
// until when
func (s *YouTubeService) QuotaExhausted() (bool, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quotaExhaustedUntil.IsZero() || time.Now().After(s.quotaExhaustedUntil) {
		return false, time.Time{}
	}
	return true, s.quotaExhaustedUntil
}

// nextQuotaReset returns the next YouTube quota reset, midnight Pacific time
func nextQuotaReset(now time.Time) time.Time {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		return now.Add(24 * time.Hour)
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}

// markQuotaExhausted latches the quota-down state and persists it
func (s *YouTubeService) markQuotaExhausted(ctx context.Context) time.Time {
	resetAt := nextQuotaReset(time.Now())

	s.mu.Lock()
	s.quotaExhaustedUntil = resetAt
	s.mu.Unlock()

	if s.db != nil {
		query := `
			INSERT INTO api_quota (service, exhausted_until, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (service) DO UPDATE SET exhausted_until = EXCLUDED.exhausted_until, updated_at = NOW()
		`
		if _, err := s.db.ExecContext(ctx, query, youtubeQuotaService, resetAt); err != nil {
			s.logger.Warn(ctx, "Failed to persist YouTube quota state", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	s.logger.Warn(ctx, "YouTube quota exhausted, searches paused", map[string]interface{}{
		"reset_at": resetAt,
	})
	return resetAt
}

// videoExcludeKeywords filter out entertainment results that slip past the
// education category
var videoExcludeKeywords = []string{"song", "trailer", "prank", "funny", "vlog", "reaction"}

func isEducationalResult(title, description string) bool {
	haystack := strings.ToLower(title + " " + description)
	for _, keyword := range videoExcludeKeywords {
		if strings.Contains(haystack, keyword) {
			return false
		}
	}
	return true
}

// youtubeErrorEnvelope mirrors the Data API error response
type youtubeErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

type youtubeSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type youtubeVideosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string    `json:"title"`
			Description  string    `json:"description"`
			ChannelTitle string    `json:"channelTitle"`
			PublishedAt  time.Time `json:"publishedAt"`
			Thumbnails   struct {
				Medium struct {
					URL string `json:"url"`
				} `json:"medium"`
				Default struct {
					URL string `json:"url"`
				} `json:"default"`
			} `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

var iso8601DurationPattern = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// parseISO8601Duration parses a Data API duration like PT1H2M30S into seconds
func parseISO8601Duration(duration string) (int, error) {
	if duration == "" || duration == "P0D" {
		return 0, nil
	}
	matches := iso8601DurationPattern.FindStringSubmatch(duration)
	if matches == nil {
		return 0, contextutils.WrapErrorf(contextutils.ErrInvalidFormat, "cannot parse duration %q", duration)
	}
	seconds := 0
	for i, multiplier := range []int{3600, 60, 1} {
		if matches[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(matches[i+1])
		if err != nil {
			return 0, contextutils.WrapErrorf(contextutils.ErrInvalidFormat, "cannot parse duration %q", duration)
		}
		seconds += n * multiplier
	}
	return seconds, nil
}

// SearchVideos searches for embeddable educational videos matching the query
func (s *YouTubeService) SearchVideos(ctx context.Context, req *models.VideoSearchRequest) (response *models.VideoSearchResponse, err error) {
	ctx, span := observability.TraceVideoFunction(ctx, "search_videos",
		observability.AttributeSearch(req.Query),
		observability.AttributeSubject(req.Subject),
	)
	defer observability.FinishSpan(span, &err)

	if s.cfg.YouTube.APIKey == "" {
		return nil, contextutils.WrapError(contextutils.ErrAPIKeyInvalid, "youtube api key is not configured")
	}

	if exhausted, resetAt := s.QuotaExhausted(); exhausted {
		span.SetAttributes(attribute.Bool("video.quota_exhausted", true))
		return nil, contextutils.WrapErrorf(contextutils.ErrQuotaExceeded, "youtube quota exhausted until %s", resetAt.Format(time.RFC3339))
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "search query cannot be empty")
	}
	searchTerms := query + " class 12"
	if req.Subject != "" {
		searchTerms = req.Subject + " " + searchTerms
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = s.cfg.YouTube.MaxResults
	}
	if maxResults > 25 {
		maxResults = 25
	}

	videoIDs, err := s.search(ctx, searchTerms, maxResults)
	if err != nil {
		return nil, err
	}
	if len(videoIDs) == 0 {
		return &models.VideoSearchResponse{Query: query, Videos: []models.VideoResult{}}, nil
	}

	videos, err := s.fetchVideoDetails(ctx, videoIDs)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("video.result_count", len(videos)))
	return &models.VideoSearchResponse{Query: query, Videos: videos}, nil
}

// search runs the search endpoint and returns matching video ids
func (s *YouTubeService) search(ctx context.Context, terms string, maxResults int) ([]string, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", terms)
	params.Set("type", "video")
	params.Set("videoCategoryId", educationCategoryID)
	params.Set("videoEmbeddable", "true")
	params.Set("safeSearch", "moderate")
	params.Set("regionCode", s.cfg.YouTube.Region)
	params.Set("maxResults", strconv.Itoa(maxResults))
	params.Set("key", s.cfg.YouTube.APIKey)

	body, err := s.doRequest(ctx, "/search", params)
	if err != nil {
		return nil, err
	}

	var parsed youtubeSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, contextutils.WrapError(err, "failed to decode youtube search response")
	}

	ids := make([]string, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	return ids, nil
}

// fetchVideoDetails resolves durations and metadata for the matched ids and
// applies the keyword filter
func (s *YouTubeService) fetchVideoDetails(ctx context.Context, videoIDs []string) ([]models.VideoResult, error) {
	params := url.Values{}
	params.Set("part", "snippet,contentDetails")
	params.Set("id", strings.Join(videoIDs, ","))
	params.Set("key", s.cfg.YouTube.APIKey)

	body, err := s.doRequest(ctx, "/videos", params)
	if err != nil {
		return nil, err
	}

	var parsed youtubeVideosResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, contextutils.WrapError(err, "failed to decode youtube videos response")
	}

	videos := make([]models.VideoResult, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if !isEducationalResult(item.Snippet.Title, item.Snippet.Description) {
			continue
		}

		seconds, parseErr := parseISO8601Duration(item.ContentDetails.Duration)
		if parseErr != nil {
			s.logger.Warn(ctx, "Skipping video with unparseable duration", map[string]interface{}{
				"video_id": item.ID,
				"duration": item.ContentDetails.Duration,
			})
			continue
		}

		thumbnail := item.Snippet.Thumbnails.Medium.URL
		if thumbnail == "" {
			thumbnail = item.Snippet.Thumbnails.Default.URL
		}

		videos = append(videos, models.VideoResult{
			VideoID:      item.ID,
			Title:        item.Snippet.Title,
			Description:  item.Snippet.Description,
			ChannelTitle: item.Snippet.ChannelTitle,
			Thumbnail:    thumbnail,
			Duration:     time.Duration(seconds) * time.Second,
			PublishedAt:  item.Snippet.PublishedAt,
			URL:          "https://www.youtube.com/watch?v=" + item.ID,
		})
	}
	return videos, nil
}

// doRequest calls one Data API endpoint and maps API error reasons onto
// the service error taxonomy
func (s *YouTubeService) doRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	requestURL := s.cfg.YouTube.BaseURL + endpoint + "?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to build youtube request")
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, contextutils.WrapError(contextutils.ErrServiceUnavailable, "youtube request failed: "+err.Error())
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close youtube response body", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to read youtube response")
	}

	if resp.StatusCode == http.StatusOK {
		return body, nil
	}

	var apiErr youtubeErrorEnvelope
	if unmarshalErr := json.Unmarshal(body, &apiErr); unmarshalErr == nil {
		for _, e := range apiErr.Error.Errors {
			if e.Reason == "quotaExceeded" || e.Reason == "dailyLimitExceeded" {
				resetAt := s.markQuotaExhausted(ctx)
				return nil, contextutils.WrapErrorf(contextutils.ErrQuotaExceeded, "youtube quota exhausted until %s", resetAt.Format(time.RFC3339))
			}
		}
		message := apiErr.Error.Message
		if strings.Contains(message, "API key expired") || strings.Contains(message, "API key not valid") {
			return nil, contextutils.WrapError(contextutils.ErrAPIKeyInvalid, "youtube api key rejected: "+message)
		}
		if message != "" {
			return nil, contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "youtube api error %d: %s", apiErr.Error.Code, message)
		}
	}
	return nil, contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "youtube api returned status %d", resp.StatusCode)
}
