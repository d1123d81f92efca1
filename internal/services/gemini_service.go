// Package services provides business logic services for the learning platform.
package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"learnapp/internal/config"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"
)

// GeminiServiceInterface defines the AI generation operations used across the
// platform: plain text, structured JSON, vision, transcription and embeddings.
type GeminiServiceInterface interface {
	GenerateText(ctx context.Context, tier, systemPrompt, userPrompt string) (string, error)
	GenerateJSON(ctx context.Context, tier, systemPrompt, userPrompt string, out interface{}) error
	AnalyzeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
	TranscribeAudio(ctx context.Context, audio []byte, mimeType string) (string, error)
	EmbedTexts(ctx context.Context, texts []string, taskType string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	GetConcurrencyStats() ConcurrencyStats
	Shutdown(ctx context.Context) error
}

// ConcurrencyStats provides metrics about AI request concurrency
type ConcurrencyStats struct {
	ActiveRequests  int         `json:"active_requests"`
	MaxConcurrent   int         `json:"max_concurrent"`
	TotalRequests   int64       `json:"total_requests"`
	UserActiveCount map[int]int `json:"user_active_count"`
	MaxPerUser      int         `json:"max_per_user"`
}

// GeminiService talks to the Gemini API for every AI concern. Generation
// requests walk a configured model fallback chain so a single model outage
// degrades quality instead of failing the request.
type GeminiService struct {
	client *genai.Client
	cfg    *config.Config

	// Concurrency control
	globalSemaphore chan struct{}
	maxConcurrent   int
	maxPerUser      int

	userRequestCount map[int]int
	concurrencyMu    sync.RWMutex

	totalRequests  int64
	activeRequests int
	statsMu        sync.RWMutex

	logger *observability.Logger
}

// NewGeminiService creates a new Gemini service instance
func NewGeminiService(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*GeminiService, error) {
	if cfg.AI.GeminiAPIKey == "" {
		return nil, contextutils.ErrorWithContextf("gemini api key is not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.AI.GeminiAPIKey,
	})
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to create gemini client")
	}

	maxConcurrent := cfg.Server.MaxAIConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	maxPerUser := cfg.Server.MaxAIPerUser
	if maxPerUser <= 0 {
		maxPerUser = 3
	}

	return &GeminiService{
		client:           client,
		cfg:              cfg,
		globalSemaphore:  make(chan struct{}, maxConcurrent),
		maxConcurrent:    maxConcurrent,
		maxPerUser:       maxPerUser,
		userRequestCount: make(map[int]int),
		logger:           logger,
	}, nil
}

// acquireSlot reserves a concurrency slot for the calling user. Returns a
// release func, or an error when the per-user limit is hit.
func (s *GeminiService) acquireSlot(ctx context.Context) (func(), error) {
	userID := contextutils.GetUserIDFromContext(ctx)

	s.concurrencyMu.Lock()
	if userID > 0 && s.userRequestCount[userID] >= s.maxPerUser {
		s.concurrencyMu.Unlock()
		return nil, contextutils.ErrorWithContextf("too many concurrent AI requests for user %d", userID)
	}
	if userID > 0 {
		s.userRequestCount[userID]++
	}
	s.concurrencyMu.Unlock()

	select {
	case s.globalSemaphore <- struct{}{}:
	case <-ctx.Done():
		s.releaseUser(userID)
		return nil, ctx.Err()
	}

	s.statsMu.Lock()
	s.activeRequests++
	s.totalRequests++
	s.statsMu.Unlock()

	released := false
	return func() {
		if released {
			return
		}
		released = true
		<-s.globalSemaphore
		s.releaseUser(userID)
		s.statsMu.Lock()
		s.activeRequests--
		s.statsMu.Unlock()
	}, nil
}

func (s *GeminiService) releaseUser(userID int) {
	if userID <= 0 {
		return
	}
	s.concurrencyMu.Lock()
	s.userRequestCount[userID]--
	if s.userRequestCount[userID] <= 0 {
		delete(s.userRequestCount, userID)
	}
	s.concurrencyMu.Unlock()
}

// generationConfig builds the shared GenerateContentConfig for a request
func (s *GeminiService) generationConfig(systemPrompt string, jsonMode bool) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.7),
	}
	if s.cfg.AI.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(s.cfg.AI.MaxOutputTokens)
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if jsonMode {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

// generateWithFallback tries the primary model for the tier, then each
// configured fallback in order. The last error is returned when the whole
// chain fails.
func (s *GeminiService) generateWithFallback(ctx context.Context, tier string, contents []*genai.Content, genCfg *genai.GenerateContentConfig) (result0 string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "generate_with_fallback",
		attribute.String("ai.tier", tier),
	)
	defer observability.FinishSpan(span, &err)

	release, err := s.acquireSlot(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	if s.cfg.AI.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.AI.RequestTimeout)
		defer cancel()
	}

	primary := s.cfg.AI.ModelFor(tier)
	candidates := append([]string{primary}, s.cfg.AI.FallbacksFor(primary)...)

	var lastErr error
	for i, model := range candidates {
		start := time.Now()
		resp, genErr := s.client.Models.GenerateContent(ctx, model, contents, genCfg)
		if genErr != nil {
			lastErr = genErr
			s.logger.Warn(ctx, "Gemini generation failed, trying fallback", map[string]interface{}{
				"model":     model,
				"attempt":   i + 1,
				"remaining": len(candidates) - i - 1,
				"error":     genErr.Error(),
			})
			if ctx.Err() != nil {
				break
			}
			continue
		}

		text := strings.TrimSpace(resp.Text())
		if text == "" {
			lastErr = contextutils.ErrorWithContextf("model %s returned an empty response", model)
			continue
		}

		span.SetAttributes(observability.AttributeModel(model))
		s.logger.Debug(ctx, "Gemini generation completed", map[string]interface{}{
			"model":       model,
			"duration_ms": time.Since(start).Milliseconds(),
			"output_len":  len(text),
		})
		return text, nil
	}

	return "", contextutils.WrapError(lastErr, "all models in the fallback chain failed")
}

// GenerateText sends a prompt and returns the model's plain text response
func (s *GeminiService) GenerateText(ctx context.Context, tier, systemPrompt, userPrompt string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)}
	return s.generateWithFallback(ctx, tier, contents, s.generationConfig(systemPrompt, false))
}

// GenerateJSON sends a prompt in JSON mode and decodes the response into out.
// Models occasionally wrap JSON output in markdown code fences even in JSON
// mode, so fences are stripped before decoding.
func (s *GeminiService) GenerateJSON(ctx context.Context, tier, systemPrompt, userPrompt string, out interface{}) (err error) {
	ctx, span := observability.TraceAIFunction(ctx, "generate_json",
		attribute.String("ai.tier", tier),
	)
	defer observability.FinishSpan(span, &err)

	contents := []*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)}
	raw, err := s.generateWithFallback(ctx, tier, contents, s.generationConfig(systemPrompt, true))
	if err != nil {
		return err
	}

	cleaned := StripCodeFences(raw)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return contextutils.WrapErrorf(err, "failed to decode model JSON response: %s", truncateForLog(cleaned, 200))
	}
	return nil
}

// AnalyzeImage answers a prompt about an uploaded image
func (s *GeminiService) AnalyzeImage(ctx context.Context, prompt string, image []byte, mimeType string) (result0 string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "analyze_image",
		attribute.String("image.mime_type", mimeType),
		attribute.Int("image.size_bytes", len(image)),
	)
	defer observability.FinishSpan(span, &err)

	if len(image) == 0 {
		return "", contextutils.ErrorWithContextf("image data is empty")
	}

	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(image, mimeType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	return s.generateWithFallback(ctx, "standard", contents, s.generationConfig("", false))
}

const transcriptionPrompt = "Transcribe this audio recording exactly as spoken. " +
	"Return only the transcript text with no commentary."

// TranscribeAudio converts an uploaded voice recording into text
func (s *GeminiService) TranscribeAudio(ctx context.Context, audio []byte, mimeType string) (result0 string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "transcribe_audio",
		attribute.String("audio.mime_type", mimeType),
		attribute.Int("audio.size_bytes", len(audio)),
	)
	defer observability.FinishSpan(span, &err)

	if len(audio) == 0 {
		return "", contextutils.ErrorWithContextf("audio data is empty")
	}

	parts := []*genai.Part{
		genai.NewPartFromText(transcriptionPrompt),
		genai.NewPartFromBytes(audio, mimeType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	return s.generateWithFallback(ctx, "fast", contents, s.generationConfig("", false))
}

// EmbedTexts generates embeddings for the given texts in batches
func (s *GeminiService) EmbedTexts(ctx context.Context, texts []string, taskType string) (result0 [][]float32, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "embed_texts",
		attribute.Int("embedding.text_count", len(texts)),
		attribute.String("embedding.task_type", taskType),
	)
	defer observability.FinishSpan(span, &err)

	if len(texts) == 0 {
		return nil, nil
	}

	model := s.cfg.Embedding.Model
	if model == "" {
		model = "gemini-embedding-001"
	}
	batchSize := s.cfg.Embedding.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	embeddings := make([][]float32, 0, len(texts))
	for _, batch := range lo.Chunk(texts, batchSize) {
		contents := make([]*genai.Content, len(batch))
		for i, text := range batch {
			contents[i] = genai.NewContentFromText(text, genai.RoleUser)
		}

		result, embedErr := s.client.Models.EmbedContent(ctx, model, contents, &genai.EmbedContentConfig{
			TaskType: taskType,
		})
		if embedErr != nil {
			return nil, contextutils.WrapErrorf(embedErr, "embedding batch of %d texts failed", len(batch))
		}
		if len(result.Embeddings) != len(batch) {
			return nil, contextutils.ErrorWithContextf("embedding count mismatch: got %d want %d", len(result.Embeddings), len(batch))
		}

		for _, emb := range result.Embeddings {
			embeddings = append(embeddings, emb.Values)
		}
	}

	return embeddings, nil
}

// EmbedQuery generates a single retrieval-query embedding
func (s *GeminiService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.EmbedTexts(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, contextutils.ErrorWithContextf("no embedding returned for query")
	}
	return embeddings[0], nil
}

// GetConcurrencyStats returns current concurrency metrics
func (s *GeminiService) GetConcurrencyStats() ConcurrencyStats {
	s.statsMu.RLock()
	active := s.activeRequests
	total := s.totalRequests
	s.statsMu.RUnlock()

	s.concurrencyMu.RLock()
	userCounts := make(map[int]int, len(s.userRequestCount))
	for userID, count := range s.userRequestCount {
		userCounts[userID] = count
	}
	s.concurrencyMu.RUnlock()

	return ConcurrencyStats{
		ActiveRequests:  active,
		MaxConcurrent:   s.maxConcurrent,
		TotalRequests:   total,
		UserActiveCount: userCounts,
		MaxPerUser:      s.maxPerUser,
	}
}

// Shutdown waits for in-flight requests to finish, bounded by ctx
func (s *GeminiService) Shutdown(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		s.statsMu.RLock()
		active := s.activeRequests
		s.statsMu.RUnlock()

		if active == 0 {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// StripCodeFences removes a leading/trailing markdown code fence from a model
// response so the body can be decoded as JSON.
func StripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	// Drop the optional language tag on the opening fence
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		firstLine := strings.TrimSpace(trimmed[:idx])
		if firstLine == "json" || firstLine == "" {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
