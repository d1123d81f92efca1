package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"learnapp/internal/models"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// DoubtServiceInterface defines doubt solving operations
type DoubtServiceInterface interface {
	AskText(ctx context.Context, userID int, req *models.TextDoubtRequest) (*models.DoubtAnswer, error)
	AskImage(ctx context.Context, userID int, subject, prompt string, image []byte, mimeType string) (*models.DoubtAnswer, error)
	AskVoice(ctx context.Context, userID int, subject string, audio []byte, mimeType string) (*models.DoubtAnswer, error)
	History(ctx context.Context, userID, limit, offset int) ([]models.Doubt, error)
	WolframChat(ctx context.Context, query string) *models.WolframChatResponse
}

// DoubtService answers student doubts with Gemini and routes math-looking
// questions through Wolfram verification.
type DoubtService struct {
	db      *sql.DB
	gemini  GeminiServiceInterface
	wolfram WolframServiceInterface
	logger  *observability.Logger
}

// NewDoubtService creates a new doubt service
func NewDoubtService(db *sql.DB, gemini GeminiServiceInterface, wolfram WolframServiceInterface, logger *observability.Logger) *DoubtService {
	return &DoubtService{
		db:      db,
		gemini:  gemini,
		wolfram: wolfram,
		logger:  logger,
	}
}

// subjectSystemPrompts tunes the tutor persona per subject. The default
// covers subjects without a dedicated prompt.
var subjectSystemPrompts = map[string]string{
	"physics": "You are an expert Class 12 physics tutor following the CBSE syllabus. " +
		"Explain concepts step by step with formulas, SI units and a worked example where it helps. " +
		"Keep derivations rigorous but accessible.",
	"chemistry": "You are an expert Class 12 chemistry tutor following the CBSE syllabus. " +
		"Explain reactions with balanced equations and mechanisms, and connect concepts to NCERT chapters.",
	"maths": "You are an expert Class 12 mathematics tutor following the CBSE syllabus. " +
		"Solve problems step by step, state theorems you use, and show every algebraic manipulation.",
	"biology": "You are an expert Class 12 biology tutor following the CBSE syllabus. " +
		"Explain processes with correct terminology and describe diagrams in words where relevant.",
	"english": "You are an expert Class 12 English tutor. Help with literature analysis, " +
		"grammar and writing skills, quoting texts where appropriate.",
}

const defaultSubjectPrompt = "You are a patient tutor for Class 12 students. " +
	"Answer clearly, step by step, at a level appropriate for a school leaving exam."

// SystemPromptForSubject returns the tutor persona for a subject
func SystemPromptForSubject(subject string) string {
	if prompt, ok := subjectSystemPrompts[strings.ToLower(strings.TrimSpace(subject))]; ok {
		return prompt
	}
	return defaultSubjectPrompt
}

// AskText answers a text doubt
func (s *DoubtService) AskText(ctx context.Context, userID int, req *models.TextDoubtRequest) (answer *models.DoubtAnswer, err error) {
	ctx, span := observability.TraceDoubtFunction(ctx, "ask_text",
		observability.AttributeUserID(userID),
		observability.AttributeSubject(req.Subject),
	)
	defer observability.FinishSpan(span, &err)

	prompt := req.Question
	if req.Context != "" {
		prompt = "Context: " + req.Context + "\n\nQuestion: " + req.Question
	}

	answerText, err := s.gemini.GenerateText(ctx, "standard", SystemPromptForSubject(req.Subject), prompt)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to generate doubt answer")
	}

	var wolframResult *models.WolframResult
	if s.wolfram.IsMathQuery(req.Question) {
		result, wolframErr := s.wolfram.Query(ctx, req.Question)
		if wolframErr != nil {
			// Verification is best effort; the Gemini answer still stands
			s.logger.Warn(ctx, "Wolfram verification failed for math doubt", map[string]interface{}{
				"user_id": userID,
				"error":   wolframErr.Error(),
			})
		} else {
			wolframResult = result
		}
	}
	span.SetAttributes(attribute.Bool("doubt.wolfram_attached", wolframResult != nil))

	doubtID, err := s.saveDoubt(ctx, &models.Doubt{
		UserID:   userID,
		Subject:  req.Subject,
		Modality: models.DoubtText,
		Question: req.Question,
		Answer:   answerText,
	}, "", wolframResult)
	if err != nil {
		return nil, err
	}

	return &models.DoubtAnswer{
		DoubtID:  doubtID,
		Subject:  req.Subject,
		Modality: models.DoubtText,
		Answer:   answerText,
		Wolfram:  wolframResult,
	}, nil
}

// AskImage answers a doubt photographed by the student
func (s *DoubtService) AskImage(ctx context.Context, userID int, subject, prompt string, image []byte, mimeType string) (answer *models.DoubtAnswer, err error) {
	ctx, span := observability.TraceDoubtFunction(ctx, "ask_image",
		observability.AttributeUserID(userID),
		observability.AttributeSubject(subject),
	)
	defer observability.FinishSpan(span, &err)

	if prompt == "" {
		prompt = "Solve the problem shown in this image step by step. " +
			"If it is not a problem, explain what the image shows."
	}
	fullPrompt := SystemPromptForSubject(subject) + "\n\n" + prompt

	answerText, err := s.gemini.AnalyzeImage(ctx, fullPrompt, image, mimeType)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to analyze image doubt")
	}

	doubtID, err := s.saveDoubt(ctx, &models.Doubt{
		UserID:   userID,
		Subject:  subject,
		Modality: models.DoubtImage,
		Question: prompt,
		Answer:   answerText,
	}, "", nil)
	if err != nil {
		return nil, err
	}

	return &models.DoubtAnswer{
		DoubtID:  doubtID,
		Subject:  subject,
		Modality: models.DoubtImage,
		Answer:   answerText,
	}, nil
}

// AskVoice transcribes a spoken doubt and answers the transcript as text
func (s *DoubtService) AskVoice(ctx context.Context, userID int, subject string, audio []byte, mimeType string) (answer *models.DoubtAnswer, err error) {
	ctx, span := observability.TraceDoubtFunction(ctx, "ask_voice",
		observability.AttributeUserID(userID),
		observability.AttributeSubject(subject),
	)
	defer observability.FinishSpan(span, &err)

	transcript, err := s.gemini.TranscribeAudio(ctx, audio, mimeType)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to transcribe voice doubt")
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "no speech detected in the audio")
	}

	answerText, err := s.gemini.GenerateText(ctx, "standard", SystemPromptForSubject(subject), transcript)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to answer transcribed doubt")
	}

	var wolframResult *models.WolframResult
	if s.wolfram.IsMathQuery(transcript) {
		result, wolframErr := s.wolfram.Query(ctx, transcript)
		if wolframErr != nil {
			s.logger.Warn(ctx, "Wolfram verification failed for voice doubt", map[string]interface{}{
				"user_id": userID,
				"error":   wolframErr.Error(),
			})
		} else {
			wolframResult = result
		}
	}

	doubtID, err := s.saveDoubt(ctx, &models.Doubt{
		UserID:   userID,
		Subject:  subject,
		Modality: models.DoubtVoice,
		Question: transcript,
		Answer:   answerText,
	}, transcript, wolframResult)
	if err != nil {
		return nil, err
	}

	return &models.DoubtAnswer{
		DoubtID:    doubtID,
		Subject:    subject,
		Modality:   models.DoubtVoice,
		Answer:     answerText,
		Transcript: transcript,
		Wolfram:    wolframResult,
	}, nil
}

// saveDoubt persists an answered doubt and returns its id
func (s *DoubtService) saveDoubt(ctx context.Context, doubt *models.Doubt, transcript string, wolframResult *models.WolframResult) (doubtID int, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "save_doubt",
		observability.AttributeUserID(doubt.UserID),
	)
	defer observability.FinishSpan(span, &err)

	var wolframJSON sql.NullString
	if wolframResult != nil {
		payload, marshalErr := json.Marshal(wolframResult)
		if marshalErr != nil {
			return 0, contextutils.WrapError(marshalErr, "failed to marshal wolfram attachment")
		}
		wolframJSON = sql.NullString{String: string(payload), Valid: true}
	}

	var transcriptValue sql.NullString
	if transcript != "" {
		transcriptValue = sql.NullString{String: transcript, Valid: true}
	}

	query := `
		INSERT INTO doubts (user_id, subject, modality, question, answer, transcript, wolfram)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err = s.db.QueryRowContext(ctx, query,
		doubt.UserID,
		doubt.Subject,
		doubt.Modality,
		doubt.Question,
		doubt.Answer,
		transcriptValue,
		wolframJSON,
	).Scan(&doubtID)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to save doubt")
	}

	return doubtID, nil
}

// History returns a user's answered doubts, newest first
func (s *DoubtService) History(ctx context.Context, userID, limit, offset int) (doubts []models.Doubt, err error) {
	ctx, span := observability.TraceDoubtFunction(ctx, "history",
		observability.AttributeUserID(userID),
		observability.AttributeLimit(limit),
	)
	defer observability.FinishSpan(span, &err)

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, user_id, subject, modality, question, answer, transcript, wolfram, created_at
		FROM doubts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query doubt history")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close doubt history rows", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	doubts = []models.Doubt{}
	for rows.Next() {
		var doubt models.Doubt
		if scanErr := rows.Scan(
			&doubt.ID,
			&doubt.UserID,
			&doubt.Subject,
			&doubt.Modality,
			&doubt.Question,
			&doubt.Answer,
			&doubt.Transcript,
			&doubt.Wolfram,
			&doubt.CreatedAt,
		); scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan doubt row")
		}
		doubts = append(doubts, doubt)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate doubt rows")
	}

	return doubts, nil
}

// WolframChat runs a direct Wolfram query and shapes the response for the API
func (s *DoubtService) WolframChat(ctx context.Context, query string) *models.WolframChatResponse {
	result, err := s.wolfram.Query(ctx, query)
	if err != nil {
		return &models.WolframChatResponse{
			Success: false,
			Query:   query,
			Error:   contextutils.GetErrorLocalizedMessage(err, string(contextutils.LocaleEnglish)),
		}
	}
	return &models.WolframChatResponse{
		Success: true,
		Query:   query,
		Result:  result,
	}
}
