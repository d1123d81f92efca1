package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"learnapp/internal/config"
	"learnapp/internal/models"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// WolframRetryBackoffBase is the base delay for retrying timed-out Wolfram
// requests. Attempt n waits base * 2^(n-1), so 2s then 4s.
const WolframRetryBackoffBase = 2 * time.Second

// NumericTolerance is the relative tolerance used when comparing numeric
// answers during verification.
const NumericTolerance = 0.01

// WolframServiceInterface defines Wolfram Alpha query and verification operations
type WolframServiceInterface interface {
	Query(ctx context.Context, query string) (*models.WolframResult, error)
	VerifyAnswer(ctx context.Context, question, expected, actual string) (*models.WolframVerification, error)
	IsMathQuery(query string) bool
}

// WolframService calls the Wolfram Alpha full results API and caches parsed
// results in the database.
type WolframService struct {
	cfg        *config.Config
	httpClient *http.Client
	cache      WolframCacheRepository
	logger     *observability.Logger
}

// NewWolframService creates a new Wolfram service instance
func NewWolframService(cfg *config.Config, cache WolframCacheRepository, logger *observability.Logger) *WolframService {
	httpClient := &http.Client{
		Timeout: cfg.Wolfram.ConnectTimeout + cfg.Wolfram.ReadTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
		),
	}

	return &WolframService{
		cfg:        cfg,
		httpClient: httpClient,
		cache:      cache,
		logger:     logger,
	}
}

var (
	mathOperatorPattern = regexp.MustCompile(`\d+\s*[-+*/^=]\s*\d+`)
	equationPattern     = regexp.MustCompile(`(?i)\b[a-z]\s*[-+*/^]?\s*=|=\s*[a-z\d]`)
	mathKeywordPattern  = regexp.MustCompile(`(?i)\b(solve|integrate|integral|differentiate|derivative|limit|factor|simplify|evaluate|equation|matrix|determinant|eigenvalue|polynomial|quadratic|logarithm|trigonometr|sin|cos|tan|sqrt|calculate)\b`)
)

// IsMathQuery reports whether a doubt looks mathematical enough to route
// through Wolfram verification.
func (s *WolframService) IsMathQuery(query string) bool {
	if mathOperatorPattern.MatchString(query) {
		return true
	}
	if equationPattern.MatchString(query) {
		return true
	}
	return mathKeywordPattern.MatchString(query)
}

// queryResultEnvelope mirrors the relevant subset of the Wolfram Alpha full
// results API response (output=json).
type queryResultEnvelope struct {
	QueryResult struct {
		Success bool         `json:"success"`
		Error   bool         `json:"error"`
		Pods    []wolframPod `json:"pods"`
	} `json:"queryresult"`
}

type wolframPod struct {
	Title   string          `json:"title"`
	ID      string          `json:"id"`
	Primary bool            `json:"primary"`
	Subpods []wolframSubpod `json:"subpods"`
}

type wolframSubpod struct {
	Plaintext string `json:"plaintext"`
	Img       struct {
		Src string `json:"src"`
		Alt string `json:"alt"`
	} `json:"img"`
}

// Query runs a Wolfram Alpha query, serving from the cache when possible
func (s *WolframService) Query(ctx context.Context, query string) (result *models.WolframResult, err error) {
	ctx, span := observability.TraceWolframFunction(ctx, "query",
		attribute.Int("wolfram.query_length", len(query)),
	)
	defer observability.FinishSpan(span, &err)

	if s.cfg.Wolfram.AppID == "" {
		return nil, contextutils.WrapError(contextutils.ErrServiceUnavailable, "wolfram app id is not configured")
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "query cannot be empty")
	}

	cacheKey := WolframCacheKey(query)
	if entry, cacheErr := s.cache.GetCachedResult(ctx, cacheKey); cacheErr != nil {
		s.logger.Warn(ctx, "Wolfram cache lookup failed", map[string]interface{}{
			"error": cacheErr.Error(),
		})
	} else if entry != nil {
		cached := &models.WolframResult{}
		if unmarshalErr := json.Unmarshal([]byte(entry.Payload), cached); unmarshalErr == nil {
			cached.FromCache = true
			span.SetAttributes(attribute.Bool("wolfram.from_cache", true))
			return cached, nil
		}
		s.logger.Warn(ctx, "Discarding corrupt wolfram cache entry", map[string]interface{}{
			"cache_key": cacheKey,
		})
	}

	envelope, err := s.callAPI(ctx, query)
	if err != nil {
		return nil, err
	}

	result = s.parseResult(query, envelope)

	if payload, marshalErr := json.Marshal(result); marshalErr == nil {
		if saveErr := s.cache.SaveResult(ctx, cacheKey, string(payload), s.cfg.Wolfram.CacheTTL); saveErr != nil {
			s.logger.Warn(ctx, "Failed to cache wolfram result", map[string]interface{}{
				"error": saveErr.Error(),
			})
		}
	}

	span.SetAttributes(
		attribute.Bool("wolfram.from_cache", false),
		attribute.Int("wolfram.step_count", len(result.Steps)),
		attribute.Int("wolfram.visualization_count", len(result.Visualizations)),
	)
	return result, nil
}

// callAPI performs the HTTP request with timeout retry. Only timeouts are
// retried; anything else fails fast.
func (s *WolframService) callAPI(ctx context.Context, query string) (*queryResultEnvelope, error) {
	maxRetries := s.cfg.Wolfram.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := WolframRetryBackoffBase * time.Duration(1<<uint(attempt-1))
			s.logger.Info(ctx, "Retrying wolfram request after timeout", map[string]interface{}{
				"attempt":    attempt,
				"backoff_ms": backoff.Milliseconds(),
			})
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		envelope, err := s.doRequest(ctx, query)
		if err == nil {
			return envelope, nil
		}

		lastErr = err
		if !contextutils.IsRetryable(err) {
			return nil, err
		}
	}

	return nil, contextutils.WrapError(lastErr, "wolfram request failed after retries")
}

func (s *WolframService) doRequest(ctx context.Context, query string) (*queryResultEnvelope, error) {
	params := url.Values{}
	params.Set("appid", s.cfg.Wolfram.AppID)
	params.Set("input", query)
	params.Set("format", "plaintext,image")
	params.Set("output", "json")
	params.Set("podstate", "Step-by-step solution")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Wolfram.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to create wolfram request")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if isTimeoutError(err) {
			return nil, contextutils.WrapError(contextutils.ErrTimeout, "wolfram request timed out")
		}
		return nil, contextutils.WrapError(err, "wolfram request failed")
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close wolfram response body", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, contextutils.ErrorWithContextf("wolfram API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to read wolfram response")
	}

	envelope := &queryResultEnvelope{}
	if err := json.Unmarshal(body, envelope); err != nil {
		return nil, contextutils.WrapError(err, "failed to parse wolfram response")
	}

	if envelope.QueryResult.Error {
		return nil, contextutils.ErrorWithContextf("wolfram reported a query error")
	}
	if !envelope.QueryResult.Success {
		return nil, contextutils.WrapError(contextutils.ErrRecordNotFound, "wolfram could not interpret the query")
	}

	return envelope, nil
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

var resultPodTitlePattern = regexp.MustCompile(`(?i)result|solution|answer|value`)

// parseResult extracts the answer, steps and visualizations from the pod list
func (s *WolframService) parseResult(query string, envelope *queryResultEnvelope) *models.WolframResult {
	result := &models.WolframResult{Query: query}

	pods := envelope.QueryResult.Pods

	// Primary pod wins, then title-matched result pods
	for _, pod := range pods {
		if !pod.Primary {
			continue
		}
		if text := firstPlaintext(pod.Subpods); text != "" {
			result.Result = text
			break
		}
	}
	if result.Result == "" {
		for _, pod := range pods {
			if !resultPodTitlePattern.MatchString(pod.Title) {
				continue
			}
			if text := firstPlaintext(pod.Subpods); text != "" {
				result.Result = text
				break
			}
		}
	}

	var rawSteps []string
	for _, pod := range pods {
		isStepPod := strings.Contains(strings.ToLower(pod.Title), "step-by-step") ||
			strings.Contains(strings.ToLower(pod.ID), "step")
		for _, subpod := range pod.Subpods {
			if isStepPod && subpod.Plaintext != "" {
				rawSteps = append(rawSteps, subpod.Plaintext)
			}
			if subpod.Img.Src != "" && subpod.Plaintext == "" {
				result.Visualizations = append(result.Visualizations, models.WolframVisualization{
					Type:  classifyVisualization(pod.Title),
					Title: pod.Title,
					URL:   subpod.Img.Src,
					Alt:   subpod.Img.Alt,
				})
			}
		}
	}
	result.Steps = formatSteps(query, result.Result, rawSteps)

	// Last resort: the first pod's plaintext
	if result.Result == "" && len(pods) > 0 {
		result.Result = firstPlaintext(pods[0].Subpods)
	}

	return result
}

func firstPlaintext(subpods []wolframSubpod) string {
	for _, subpod := range subpods {
		if text := strings.TrimSpace(subpod.Plaintext); text != "" {
			return text
		}
	}
	return ""
}

// classifyVisualization maps a pod title to a visualization type
func classifyVisualization(title string) models.VisualizationType {
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "3d"):
		return models.Viz3DPlot
	case strings.Contains(lower, "contour"):
		return models.VizContourPlot
	case strings.Contains(lower, "surface"):
		return models.VizSurfacePlot
	case strings.Contains(lower, "table"):
		return models.VizTable
	case strings.Contains(lower, "graph") || strings.Contains(lower, "plot"):
		return models.VizGraph
	case strings.Contains(lower, "geometr") || strings.Contains(lower, "figure") || strings.Contains(lower, "diagram"):
		return models.VizGeometry
	case strings.Contains(lower, "vector field"):
		return models.VizVectorField
	case strings.Contains(lower, "polar"):
		return models.VizPolarPlot
	default:
		return models.VizGenericImage
	}
}

// formatSteps reshapes raw step text into titled steps bracketed by a problem
// statement and the final answer.
func formatSteps(query, finalAnswer string, rawSteps []string) []models.WolframStep {
	if len(rawSteps) == 0 {
		return nil
	}

	steps := []models.WolframStep{
		{Title: "Problem Understanding", Text: query},
	}

	stepNumber := 1
	for _, raw := range rawSteps {
		for _, line := range strings.Split(raw, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			steps = append(steps, models.WolframStep{
				Title: "Step " + strconv.Itoa(stepNumber),
				Text:  line,
			})
			stepNumber++
		}
	}

	if finalAnswer != "" {
		steps = append(steps, models.WolframStep{Title: "Final Answer", Text: finalAnswer})
	}
	return steps
}

var numericTokenPattern = regexp.MustCompile(`-?\d+\.?\d*`)

// extractNumericToken pulls the first numeric token out of an answer string
func extractNumericToken(s string) (float64, bool) {
	match := numericTokenPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// normalizeAnswer lowercases and collapses whitespace for string comparison
func normalizeAnswer(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// CompareNumericAnswers compares two answers numerically when both contain a
// numeric token, falling back to a normalized string compare. The tolerance
// is relative when the expected value is nonzero and absolute otherwise.
func CompareNumericAnswers(expected, actual string) *models.WolframVerification {
	verification := &models.WolframVerification{
		Expected: expected,
		Actual:   actual,
	}

	expectedVal, expectedOK := extractNumericToken(expected)
	actualVal, actualOK := extractNumericToken(actual)

	if expectedOK && actualOK {
		verification.Numeric = true
		verification.ExpectedValue = expectedVal
		verification.ActualValue = actualVal

		if expectedVal != 0 {
			verification.IsCorrect = math.Abs(actualVal-expectedVal)/math.Abs(expectedVal) <= NumericTolerance
		} else {
			verification.IsCorrect = math.Abs(actualVal) <= NumericTolerance
		}
		return verification
	}

	verification.IsCorrect = normalizeAnswer(expected) == normalizeAnswer(actual)
	return verification
}

// VerifyAnswer checks a student's answer against the expected one, asking
// Wolfram for the expected value when none is supplied.
func (s *WolframService) VerifyAnswer(ctx context.Context, question, expected, actual string) (verification *models.WolframVerification, err error) {
	ctx, span := observability.TraceWolframFunction(ctx, "verify_answer")
	defer observability.FinishSpan(span, &err)

	if expected == "" {
		result, queryErr := s.Query(ctx, question)
		if queryErr != nil {
			return nil, contextutils.WrapError(queryErr, "failed to derive expected answer from wolfram")
		}
		expected = result.Result
	}

	verification = CompareNumericAnswers(expected, actual)
	span.SetAttributes(
		attribute.Bool("wolfram.verification_correct", verification.IsCorrect),
		attribute.Bool("wolfram.verification_numeric", verification.Numeric),
	)
	return verification, nil
}
