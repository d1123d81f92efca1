package services

import (
	"context"
	"testing"

	"learnapp/internal/config"
	"learnapp/internal/models"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTeacherService(gemini GeminiServiceInterface) *TeacherService {
	logger := observability.NewLogger(&config.OpenTelemetryConfig{})
	return NewTeacherService(nil, gemini, nil, logger)
}

func TestLessonPlanPrompt(t *testing.T) {
	req := &models.GenerateLessonPlanRequest{
		Subject:    "chemistry",
		Topic:      "electrochemistry",
		Objectives: []string{"explain Nernst equation", "solve cell potential problems"},
	}
	prompt := lessonPlanPrompt(req, "12", 60)

	assert.Contains(t, prompt, "60 minute chemistry lesson")
	assert.Contains(t, prompt, `"electrochemistry"`)
	assert.Contains(t, prompt, "grade 12")
	assert.Contains(t, prompt, "Nernst equation")
}

func TestAssessmentPrompt(t *testing.T) {
	prompt := assessmentPrompt(&models.GenerateAssessmentRequest{Subject: "biology", Topic: "genetics"}, 6)
	assert.Contains(t, prompt, "Class 12 biology")
	assert.Contains(t, prompt, "6 questions")
	assert.Contains(t, prompt, "a mix of easy, medium and hard")

	withMix := assessmentPrompt(&models.GenerateAssessmentRequest{Subject: "biology", Topic: "genetics", DifficultyMix: "mostly hard"}, 4)
	assert.Contains(t, withMix, "mostly hard")
}

func TestParentMessagePrompt(t *testing.T) {
	req := &models.GenerateParentMessageRequest{
		MessageType: models.ParentMsgConcern,
		Subject:     "maths",
		Context:     "missed three homework sessions",
	}
	prompt := parentMessagePrompt(req, parentMessageIntents[req.MessageType])

	assert.Contains(t, prompt, "needs the parent's attention")
	assert.Contains(t, prompt, "Subject concerned: maths")
	assert.Contains(t, prompt, "missed three homework sessions")
}

func TestGenerateParentMessageUnknownType(t *testing.T) {
	s := newTestTeacherService(&stubGemini{})
	_, err := s.GenerateParentMessage(context.Background(), 1, &models.GenerateParentMessageRequest{
		StudentID:   2,
		MessageType: "gossip",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, contextutils.ErrInvalidInput)
}

func TestGenerateLessonPlanRejectsEmptyPlan(t *testing.T) {
	gemini := &stubGemini{jsonPayload: `{"objectives": [], "main_content": []}`}
	s := newTestTeacherService(gemini)

	_, err := s.GenerateLessonPlan(context.Background(), 1, &models.GenerateLessonPlanRequest{
		Subject: "physics",
		Topic:   "optics",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, contextutils.ErrAIResponseInvalid)
}

func TestGenerateAssessmentRejectsEmptyQuestions(t *testing.T) {
	gemini := &stubGemini{jsonPayload: `{"questions": []}`}
	s := newTestTeacherService(gemini)

	_, err := s.GenerateAssessment(context.Background(), 1, &models.GenerateAssessmentRequest{
		Subject: "physics",
		Topic:   "optics",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, contextutils.ErrAIResponseInvalid)
}
