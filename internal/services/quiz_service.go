package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"learnapp/internal/config"
	"learnapp/internal/models"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// QuizServiceInterface defines quiz template and session operations
type QuizServiceInterface interface {
	CreateTemplate(ctx context.Context, teacherID int, req *models.CreateQuizTemplateRequest) (*models.QuizTemplate, error)
	GenerateTemplate(ctx context.Context, teacherID int, req *models.GenerateQuizRequest) (*models.QuizTemplate, error)
	ListTemplates(ctx context.Context, subject string, limit, offset int) ([]models.QuizTemplate, error)
	GetTemplate(ctx context.Context, templateID int) (*models.QuizTemplate, error)
	StartSession(ctx context.Context, userID, templateID int) (*models.QuizSession, error)
	SaveAnswer(ctx context.Context, userID int, req *models.QuizAnswerRequest) (*models.QuizSession, error)
	Submit(ctx context.Context, userID, sessionID int) (*models.QuizResult, error)
	GetSession(ctx context.Context, userID, sessionID int) (*models.QuizSession, error)
	ListTemplateSessions(ctx context.Context, templateID, limit, offset int) ([]models.QuizSession, error)
}

// QuizService manages quiz templates and timed student sessions. A session
// gets a fixed time budget when it starts and is scored exactly once; a
// second submit returns the stored result unchanged.
type QuizService struct {
	db     *sql.DB
	gemini GeminiServiceInterface
	cfg    *config.QuizConfig
	logger *observability.Logger
}

// NewQuizService creates a new quiz service
func NewQuizService(db *sql.DB, gemini GeminiServiceInterface, cfg *config.QuizConfig, logger *observability.Logger) *QuizService {
	return &QuizService{
		db:     db,
		gemini: gemini,
		cfg:    cfg,
		logger: logger,
	}
}

func (s *QuizService) secondsPerQuestion() int {
	if s.cfg != nil && s.cfg.SecondsPerQuestion > 0 {
		return s.cfg.SecondsPerQuestion
	}
	return 120
}

func (s *QuizService) defaultMarks() int {
	if s.cfg != nil && s.cfg.DefaultMarks > 0 {
		return s.cfg.DefaultMarks
	}
	return 1
}

// normalizeQuestions validates and renumbers a question list so that numbers
// are sequential from 1 and every question is answerable.
func normalizeQuestions(questions []models.QuizQuestion, defaultMarks int) ([]models.QuizQuestion, error) {
	if len(questions) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "a quiz needs at least one question")
	}
	normalized := make([]models.QuizQuestion, len(questions))
	for i, q := range questions {
		if q.Text == "" {
			return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "question %d has no text", i+1)
		}
		if len(q.Options) < 2 {
			return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "question %d needs at least two options", i+1)
		}
		if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
			return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "question %d has an out-of-range correct option", i+1)
		}
		if q.Marks <= 0 {
			q.Marks = defaultMarks
		}
		q.Number = i + 1
		normalized[i] = q
	}
	return normalized, nil
}

// CreateTemplate stores a hand-written quiz template
func (s *QuizService) CreateTemplate(ctx context.Context, teacherID int, req *models.CreateQuizTemplateRequest) (template *models.QuizTemplate, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "create_template",
		observability.AttributeUserID(teacherID),
		observability.AttributeSubject(req.Subject),
		observability.AttributeTopic(req.Topic),
	)
	defer observability.FinishSpan(span, &err)

	questions, err := normalizeQuestions(req.Questions, s.defaultMarks())
	if err != nil {
		return nil, err
	}

	template = &models.QuizTemplate{
		CreatedBy:   teacherID,
		Subject:     req.Subject,
		Topic:       req.Topic,
		Title:       req.Title,
		Questions:   questions,
		AIGenerated: false,
	}
	template.TotalMarks = template.ComputeTotalMarks()

	return s.insertTemplate(ctx, template)
}

// generatedQuiz is the JSON shape requested from the model
type generatedQuiz struct {
	Title     string                `json:"title"`
	Questions []models.QuizQuestion `json:"questions"`
}

const quizGenerationSystemPrompt = "You are writing multiple-choice quizzes for CBSE Class 12 students. " +
	"Every question must have exactly one correct option. Respond with JSON only."

func quizGenerationPrompt(req *models.GenerateQuizRequest, count, marksEach int) string {
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = "mixed"
	}
	return fmt.Sprintf(`Write a %s quiz for Class 12 %s on the topic "%s" with exactly %d questions worth %d marks each.

Respond as JSON:
{
  "title": "a short quiz title",
  "questions": [
    {"number": 1, "text": "...", "options": ["...", "...", "...", "..."], "correct_option": 0, "marks": %d, "explanation": "why the correct option is right"}
  ]
}
correct_option is the zero-based index into options.`, difficulty, req.Subject, req.Topic, count, marksEach, marksEach)
}

// GenerateTemplate asks the model for a quiz and stores it as a template
func (s *QuizService) GenerateTemplate(ctx context.Context, teacherID int, req *models.GenerateQuizRequest) (template *models.QuizTemplate, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "generate_template",
		observability.AttributeUserID(teacherID),
		observability.AttributeSubject(req.Subject),
		observability.AttributeTopic(req.Topic),
	)
	defer observability.FinishSpan(span, &err)

	count := req.QuestionCount
	if count <= 0 {
		count = 5
	}
	if count > 20 {
		count = 20
	}
	marksEach := req.MarksEach
	if marksEach <= 0 {
		marksEach = s.defaultMarks()
	}

	var generated generatedQuiz
	if err = s.gemini.GenerateJSON(ctx, "standard", quizGenerationSystemPrompt, quizGenerationPrompt(req, count, marksEach), &generated); err != nil {
		return nil, contextutils.WrapError(err, "failed to generate quiz questions")
	}

	questions, err := normalizeQuestions(generated.Questions, marksEach)
	if err != nil {
		return nil, contextutils.WrapError(err, "generated quiz failed validation")
	}

	title := generated.Title
	if title == "" {
		title = fmt.Sprintf("%s: %s", req.Subject, req.Topic)
	}

	template = &models.QuizTemplate{
		CreatedBy:   teacherID,
		Subject:     req.Subject,
		Topic:       req.Topic,
		Title:       title,
		Questions:   questions,
		AIGenerated: true,
	}
	template.TotalMarks = template.ComputeTotalMarks()

	span.SetAttributes(attribute.Int("quiz.question_count", len(questions)))
	return s.insertTemplate(ctx, template)
}

func (s *QuizService) insertTemplate(ctx context.Context, template *models.QuizTemplate) (*models.QuizTemplate, error) {
	questionsJSON, err := json.Marshal(template.Questions)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to marshal quiz questions")
	}

	query := `
		INSERT INTO quiz_templates (created_by, subject, topic, title, questions, total_marks, ai_generated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query,
		template.CreatedBy, template.Subject, template.Topic, template.Title,
		questionsJSON, template.TotalMarks, template.AIGenerated,
	).Scan(&template.ID, &template.CreatedAt, &template.UpdatedAt)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to create quiz template")
	}
	return template, nil
}

// ListTemplates returns templates, optionally filtered by subject, newest first
func (s *QuizService) ListTemplates(ctx context.Context, subject string, limit, offset int) (templates []models.QuizTemplate, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "list_templates",
		observability.AttributeSubject(subject),
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
		SELECT id, created_by, subject, topic, title, questions, total_marks, ai_generated, created_at, updated_at
		FROM quiz_templates
		WHERE ($1 = '' OR subject = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, subject, limit, offset)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query quiz templates")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close quiz template rows", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	templates = []models.QuizTemplate{}
	for rows.Next() {
		var template models.QuizTemplate
		var questionsJSON []byte
		if scanErr := rows.Scan(
			&template.ID,
			&template.CreatedBy,
			&template.Subject,
			&template.Topic,
			&template.Title,
			&questionsJSON,
			&template.TotalMarks,
			&template.AIGenerated,
			&template.CreatedAt,
			&template.UpdatedAt,
		); scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan quiz template row")
		}
		if unmarshalErr := json.Unmarshal(questionsJSON, &template.Questions); unmarshalErr != nil {
			return nil, contextutils.WrapError(unmarshalErr, "failed to decode template questions")
		}
		templates = append(templates, template)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate quiz template rows")
	}

	return templates, nil
}

// GetTemplate returns a single template by id
func (s *QuizService) GetTemplate(ctx context.Context, templateID int) (template *models.QuizTemplate, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "get_template",
		attribute.Int("quiz.template_id", templateID),
	)
	defer observability.FinishSpan(span, &err)

	return s.loadTemplate(ctx, templateID)
}

func (s *QuizService) loadTemplate(ctx context.Context, templateID int) (*models.QuizTemplate, error) {
	query := `
		SELECT id, created_by, subject, topic, title, questions, total_marks, ai_generated, created_at, updated_at
		FROM quiz_templates
		WHERE id = $1
	`

	template := &models.QuizTemplate{}
	var questionsJSON []byte
	err := s.db.QueryRowContext(ctx, query, templateID).Scan(
		&template.ID,
		&template.CreatedBy,
		&template.Subject,
		&template.Topic,
		&template.Title,
		&questionsJSON,
		&template.TotalMarks,
		&template.AIGenerated,
		&template.CreatedAt,
		&template.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "quiz template %d not found", templateID)
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load quiz template")
	}
	if err := json.Unmarshal(questionsJSON, &template.Questions); err != nil {
		return nil, contextutils.WrapError(err, "failed to decode template questions")
	}
	return template, nil
}

// StartSession starts a timed session from a template. The time budget is
// seconds-per-question times the number of questions.
func (s *QuizService) StartSession(ctx context.Context, userID, templateID int) (session *models.QuizSession, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "start_session",
		observability.AttributeUserID(userID),
		attribute.Int("quiz.template_id", templateID),
	)
	defer observability.FinishSpan(span, &err)

	template, err := s.loadTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	duration := time.Duration(s.secondsPerQuestion()*len(template.Questions)) * time.Second

	session = &models.QuizSession{
		TemplateID: templateID,
		UserID:     userID,
		Answers:    map[int]int{},
		StartedAt:  now,
		ExpiresAt:  now.Add(duration),
	}

	query := `
		INSERT INTO quiz_sessions (template_id, user_id, answers, started_at, expires_at)
		VALUES ($1, $2, '{}'::jsonb, $3, $4)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query, templateID, userID, session.StartedAt, session.ExpiresAt).Scan(&session.ID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to create quiz session")
	}

	span.SetAttributes(
		observability.AttributeSessionID(session.ID),
		attribute.Int("quiz.duration_seconds", int(duration.Seconds())),
	)
	return session, nil
}

func (s *QuizService) loadSessionForUser(ctx context.Context, userID, sessionID int) (*models.QuizSession, error) {
	query := `
		SELECT id, template_id, user_id, answers, started_at, expires_at, submitted_at, result, auto_submitted
		FROM quiz_sessions
		WHERE id = $1 AND user_id = $2
	`

	session := &models.QuizSession{}
	var answersJSON []byte
	var resultJSON sql.NullString
	err := s.db.QueryRowContext(ctx, query, sessionID, userID).Scan(
		&session.ID,
		&session.TemplateID,
		&session.UserID,
		&answersJSON,
		&session.StartedAt,
		&session.ExpiresAt,
		&session.SubmittedAt,
		&resultJSON,
		&session.AutoSubmit,
	)
	if err == sql.ErrNoRows {
		return nil, contextutils.ErrSessionNotFound
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load quiz session")
	}

	if err := json.Unmarshal(answersJSON, &session.Answers); err != nil {
		return nil, contextutils.WrapError(err, "failed to decode session answers")
	}
	if resultJSON.Valid {
		session.Result = &models.QuizResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), session.Result); err != nil {
			return nil, contextutils.WrapError(err, "failed to decode session result")
		}
	}
	return session, nil
}

// SaveAnswer records one answer in a running session. A session past its
// time limit is auto-submitted and the answer is rejected.
func (s *QuizService) SaveAnswer(ctx context.Context, userID int, req *models.QuizAnswerRequest) (session *models.QuizSession, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "save_answer",
		observability.AttributeUserID(userID),
		observability.AttributeSessionID(req.SessionID),
		attribute.Int("quiz.question_number", req.QuestionNumber),
	)
	defer observability.FinishSpan(span, &err)

	session, err = s.loadSessionForUser(ctx, userID, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Submitted() {
		return nil, contextutils.WrapError(contextutils.ErrQuizAlreadySubmitted, "session already submitted")
	}
	if session.TimeExpired(time.Now().UTC()) {
		if _, finalizeErr := s.finalize(ctx, session, true); finalizeErr != nil {
			return nil, finalizeErr
		}
		return nil, contextutils.WrapError(contextutils.ErrQuizExpired, "time limit passed, session auto-submitted")
	}

	template, err := s.loadTemplate(ctx, session.TemplateID)
	if err != nil {
		return nil, err
	}

	var question *models.QuizQuestion
	for i := range template.Questions {
		if template.Questions[i].Number == req.QuestionNumber {
			question = &template.Questions[i]
			break
		}
	}
	if question == nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "question %d is not part of this quiz", req.QuestionNumber)
	}
	if req.ChosenOption < 0 || req.ChosenOption >= len(question.Options) {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "option %d is out of range for question %d", req.ChosenOption, req.QuestionNumber)
	}

	session.Answers[req.QuestionNumber] = req.ChosenOption
	answersJSON, err := json.Marshal(session.Answers)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to marshal answers")
	}

	query := `
		UPDATE quiz_sessions
		SET answers = $1
		WHERE id = $2 AND user_id = $3 AND submitted_at IS NULL
	`
	if _, err = s.db.ExecContext(ctx, query, answersJSON, session.ID, userID); err != nil {
		return nil, contextutils.WrapError(err, "failed to save answer")
	}

	return session, nil
}

// scoreSession scores a set of answers against a template
func scoreSession(template *models.QuizTemplate, answers map[int]int) *models.QuizResult {
	result := &models.QuizResult{
		TotalMarks: template.ComputeTotalMarks(),
		Questions:  make([]models.QuestionResult, 0, len(template.Questions)),
	}

	for _, q := range template.Questions {
		qr := models.QuestionResult{
			Number:        q.Number,
			CorrectOption: q.CorrectOption,
			ChosenOption:  -1,
			MarksPossible: q.Marks,
		}
		if chosen, ok := answers[q.Number]; ok {
			qr.Answered = true
			qr.ChosenOption = chosen
			if chosen == q.CorrectOption {
				qr.IsCorrect = true
				qr.MarksAwarded = q.Marks
				result.Correct++
				result.Score += q.Marks
			} else {
				result.Incorrect++
			}
		} else {
			result.Unanswered++
		}
		result.Questions = append(result.Questions, qr)
	}

	if result.TotalMarks > 0 {
		result.Percentage = float64(result.Score) / float64(result.TotalMarks) * 100
	}
	return result
}

// finalize scores a session exactly once and stores the result
func (s *QuizService) finalize(ctx context.Context, session *models.QuizSession, autoSubmit bool) (*models.QuizResult, error) {
	template, err := s.loadTemplate(ctx, session.TemplateID)
	if err != nil {
		return nil, err
	}

	result := scoreSession(template, session.Answers)
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to marshal quiz result")
	}

	query := `
		UPDATE quiz_sessions
		SET submitted_at = NOW(), result = $1, auto_submitted = $2
		WHERE id = $3 AND submitted_at IS NULL
	`
	if _, err = s.db.ExecContext(ctx, query, resultJSON, autoSubmit, session.ID); err != nil {
		return nil, contextutils.WrapError(err, "failed to store quiz result")
	}

	session.Result = result
	session.AutoSubmit = autoSubmit
	session.SubmittedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	s.logger.Info(ctx, "Quiz session scored", map[string]interface{}{
		"session_id":     session.ID,
		"score":          result.Score,
		"total_marks":    result.TotalMarks,
		"auto_submitted": autoSubmit,
	})
	return result, nil
}

// Submit scores a session. A second submit returns the stored result.
func (s *QuizService) Submit(ctx context.Context, userID, sessionID int) (result *models.QuizResult, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "submit",
		observability.AttributeUserID(userID),
		observability.AttributeSessionID(sessionID),
	)
	defer observability.FinishSpan(span, &err)

	session, err := s.loadSessionForUser(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Submitted() {
		span.SetAttributes(attribute.Bool("quiz.already_submitted", true))
		return session.Result, nil
	}

	autoSubmit := session.TimeExpired(time.Now().UTC())
	return s.finalize(ctx, session, autoSubmit)
}

// GetSession returns a session owned by the user
func (s *QuizService) GetSession(ctx context.Context, userID, sessionID int) (session *models.QuizSession, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "get_session",
		observability.AttributeUserID(userID),
		observability.AttributeSessionID(sessionID),
	)
	defer observability.FinishSpan(span, &err)

	return s.loadSessionForUser(ctx, userID, sessionID)
}

// ListTemplateSessions returns the sessions taken against a template, for
// the teacher who owns it
func (s *QuizService) ListTemplateSessions(ctx context.Context, templateID, limit, offset int) (sessions []models.QuizSession, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "list_template_sessions",
		attribute.Int("quiz.template_id", templateID),
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
		SELECT id, template_id, user_id, answers, started_at, expires_at, submitted_at, result, auto_submitted
		FROM quiz_sessions
		WHERE template_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, templateID, limit, offset)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query quiz sessions")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close quiz session rows", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	sessions = []models.QuizSession{}
	for rows.Next() {
		var session models.QuizSession
		var answersJSON []byte
		var resultJSON sql.NullString
		if scanErr := rows.Scan(
			&session.ID,
			&session.TemplateID,
			&session.UserID,
			&answersJSON,
			&session.StartedAt,
			&session.ExpiresAt,
			&session.SubmittedAt,
			&resultJSON,
			&session.AutoSubmit,
		); scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan quiz session row")
		}
		if unmarshalErr := json.Unmarshal(answersJSON, &session.Answers); unmarshalErr != nil {
			return nil, contextutils.WrapError(unmarshalErr, "failed to decode session answers")
		}
		if resultJSON.Valid {
			session.Result = &models.QuizResult{}
			if unmarshalErr := json.Unmarshal([]byte(resultJSON.String), session.Result); unmarshalErr != nil {
				return nil, contextutils.WrapError(unmarshalErr, "failed to decode session result")
			}
		}
		sessions = append(sessions, session)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate quiz session rows")
	}

	return sessions, nil
}
