package services

import (
	"context"
	"encoding/json"
	"testing"

	"learnapp/internal/config"
	"learnapp/internal/models"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"github.com/stretchr/testify/assert"
)

// stubGemini returns canned responses for unit tests
type stubGemini struct {
	textResponse   string
	textErr        error
	imageResponse  string
	transcript     string
	transcriptErr  error
	jsonPayload    string
	jsonErr        error
	lastUserPrompt string
	lastSystem     string
}

func (s *stubGemini) GenerateText(_ context.Context, _, systemPrompt, userPrompt string) (string, error) {
	s.lastSystem = systemPrompt
	s.lastUserPrompt = userPrompt
	return s.textResponse, s.textErr
}

func (s *stubGemini) GenerateJSON(_ context.Context, _, systemPrompt, userPrompt string, out interface{}) error {
	s.lastSystem = systemPrompt
	s.lastUserPrompt = userPrompt
	if s.jsonErr != nil {
		return s.jsonErr
	}
	if s.jsonPayload == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.jsonPayload), out)
}

func (s *stubGemini) AnalyzeImage(_ context.Context, prompt string, _ []byte, _ string) (string, error) {
	s.lastUserPrompt = prompt
	return s.imageResponse, nil
}

func (s *stubGemini) TranscribeAudio(_ context.Context, _ []byte, _ string) (string, error) {
	return s.transcript, s.transcriptErr
}

func (s *stubGemini) EmbedTexts(_ context.Context, texts []string, _ string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func (s *stubGemini) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return []float32{0}, nil
}

func (s *stubGemini) GetConcurrencyStats() ConcurrencyStats { return ConcurrencyStats{} }
func (s *stubGemini) Shutdown(_ context.Context) error      { return nil }

// stubWolfram returns canned Wolfram results for unit tests
type stubWolfram struct {
	isMath  bool
	result  *models.WolframResult
	err     error
	queries []string
}

func (s *stubWolfram) Query(_ context.Context, query string) (*models.WolframResult, error) {
	s.queries = append(s.queries, query)
	return s.result, s.err
}

func (s *stubWolfram) VerifyAnswer(_ context.Context, _, expected, actual string) (*models.WolframVerification, error) {
	if s.err != nil {
		return nil, s.err
	}
	return CompareNumericAnswers(expected, actual), nil
}

func (s *stubWolfram) IsMathQuery(_ string) bool { return s.isMath }

func newTestDoubtService(gemini GeminiServiceInterface, wolfram WolframServiceInterface) *DoubtService {
	logger := observability.NewLogger(&config.OpenTelemetryConfig{})
	return NewDoubtService(nil, gemini, wolfram, logger)
}

func TestSystemPromptForSubject(t *testing.T) {
	assert.Contains(t, SystemPromptForSubject("physics"), "physics tutor")
	assert.Contains(t, SystemPromptForSubject("  Maths "), "mathematics tutor")
	assert.Equal(t, defaultSubjectPrompt, SystemPromptForSubject("sanskrit"))
	assert.Equal(t, defaultSubjectPrompt, SystemPromptForSubject(""))
}

func TestWolframChatSuccess(t *testing.T) {
	wolfram := &stubWolfram{
		result: &models.WolframResult{Query: "2+2", Result: "4"},
	}
	svc := newTestDoubtService(&stubGemini{}, wolfram)

	resp := svc.WolframChat(context.Background(), "2+2")
	assert.True(t, resp.Success)
	assert.Equal(t, "2+2", resp.Query)
	assert.Equal(t, "4", resp.Result.Result)
	assert.Empty(t, resp.Error)
}

func TestWolframChatError(t *testing.T) {
	wolfram := &stubWolfram{err: contextutils.ErrServiceUnavailable}
	svc := newTestDoubtService(&stubGemini{}, wolfram)

	resp := svc.WolframChat(context.Background(), "2+2")
	assert.False(t, resp.Success)
	assert.Nil(t, resp.Result)
	assert.NotEmpty(t, resp.Error)
}

func TestAskTextGenerationFailure(t *testing.T) {
	gemini := &stubGemini{textErr: contextutils.ErrServiceUnavailable}
	svc := newTestDoubtService(gemini, &stubWolfram{})

	_, err := svc.AskText(context.Background(), 1, &models.TextDoubtRequest{
		Subject:  "physics",
		Question: "why is the sky blue",
	})
	assert.Error(t, err)
}

func TestAskTextIncludesContextInPrompt(t *testing.T) {
	gemini := &stubGemini{textErr: contextutils.ErrServiceUnavailable}
	svc := newTestDoubtService(gemini, &stubWolfram{})

	_, _ = svc.AskText(context.Background(), 1, &models.TextDoubtRequest{
		Subject:  "chemistry",
		Question: "why",
		Context:  "chapter on equilibrium",
	})

	assert.Contains(t, gemini.lastUserPrompt, "Context: chapter on equilibrium")
	assert.Contains(t, gemini.lastUserPrompt, "Question: why")
	assert.Contains(t, gemini.lastSystem, "chemistry tutor")
}

func TestAskVoiceEmptyTranscript(t *testing.T) {
	gemini := &stubGemini{transcript: "   "}
	svc := newTestDoubtService(gemini, &stubWolfram{})

	_, err := svc.AskVoice(context.Background(), 1, "maths", []byte{1}, "audio/webm")
	assert.Error(t, err)
}
