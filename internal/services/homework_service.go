package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"learnapp/internal/models"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// HomeworkServiceInterface defines homework help operations
type HomeworkServiceInterface interface {
	StartSession(ctx context.Context, userID int, req *models.StartHomeworkRequest) (*models.HomeworkSession, error)
	RevealHint(ctx context.Context, userID, sessionID, level int) (*models.HomeworkHint, error)
	SubmitAttempt(ctx context.Context, userID, sessionID int, answer string) (*models.AttemptEvaluation, error)
	GetSession(ctx context.Context, userID, sessionID int) (*models.HomeworkSession, error)
	ListSessions(ctx context.Context, userID, limit, offset int) ([]models.HomeworkSession, error)
	ExpireStaleSessions(ctx context.Context, abandonedAfter time.Duration) (int64, error)
}

// HomeworkService runs graduated-hint homework sessions. Hints for all three
// levels are generated up front and revealed one at a time; the full solution
// stays hidden until level 3 or session completion.
type HomeworkService struct {
	db      *sql.DB
	gemini  GeminiServiceInterface
	wolfram WolframServiceInterface
	logger  *observability.Logger
}

// NewHomeworkService creates a new homework service
func NewHomeworkService(db *sql.DB, gemini GeminiServiceInterface, wolfram WolframServiceInterface, logger *observability.Logger) *HomeworkService {
	return &HomeworkService{
		db:      db,
		gemini:  gemini,
		wolfram: wolfram,
		logger:  logger,
	}
}

// hintGeneration is the JSON shape requested from the model when a session starts
type hintGeneration struct {
	BasicHint    string `json:"basic_hint"`
	DetailedHint string `json:"detailed_hint"`
	FullSolution string `json:"full_solution"`
}

const hintSystemPrompt = "You are a tutor who helps Class 12 students solve homework " +
	"without giving the answer away too early. Respond with JSON only."

func hintPrompt(subject, question string) string {
	return fmt.Sprintf(`Subject: %s
Problem: %s

Produce three levels of help as JSON:
{
  "basic_hint": "a nudge about the relevant concept, no working",
  "detailed_hint": "the method and the first step of the working",
  "full_solution": "the complete worked solution ending with the final answer"
}`, subject, question)
}

// StartSession creates a homework session with pre-generated hints
func (s *HomeworkService) StartSession(ctx context.Context, userID int, req *models.StartHomeworkRequest) (session *models.HomeworkSession, err error) {
	ctx, span := observability.TraceHomeworkFunction(ctx, "start_session",
		observability.AttributeUserID(userID),
		observability.AttributeSubject(req.Subject),
	)
	defer observability.FinishSpan(span, &err)

	var generated hintGeneration
	if err = s.gemini.GenerateJSON(ctx, "standard", hintSystemPrompt, hintPrompt(req.Subject, req.Question), &generated); err != nil {
		return nil, contextutils.WrapError(err, "failed to generate homework hints")
	}

	hints := []models.HomeworkHint{
		{Level: models.HintLevelBasic, Text: generated.BasicHint},
		{Level: models.HintLevelDetailed, Text: generated.DetailedHint},
		{Level: models.HintLevelSolution, Text: generated.FullSolution},
	}
	hintsJSON, err := json.Marshal(hints)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to marshal hints")
	}

	var correctAnswer sql.NullString
	if req.CorrectAnswer != "" {
		correctAnswer = sql.NullString{String: req.CorrectAnswer, Valid: true}
	}

	query := `
		INSERT INTO homework_sessions (user_id, subject, question, correct_answer, hints, attempts)
		VALUES ($1, $2, $3, $4, $5, '[]'::jsonb)
		RETURNING id, created_at, updated_at
	`

	session = &models.HomeworkSession{
		UserID:        userID,
		Subject:       req.Subject,
		Question:      req.Question,
		CorrectAnswer: correctAnswer,
		Hints:         hints,
		Attempts:      []models.HomeworkAttempt{},
	}
	err = s.db.QueryRowContext(ctx, query, userID, req.Subject, req.Question, correctAnswer, hintsJSON).
		Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to create homework session")
	}

	span.SetAttributes(observability.AttributeSessionID(session.ID))
	return session, nil
}

// loadSession fetches a session owned by the user
func (s *HomeworkService) loadSession(ctx context.Context, userID, sessionID int) (*models.HomeworkSession, error) {
	query := `
		SELECT id, user_id, subject, question, correct_answer, hints, hints_revealed,
		       attempts, is_complete, solved_correctly, solution_revealed, created_at, updated_at
		FROM homework_sessions
		WHERE id = $1 AND user_id = $2
	`

	session := &models.HomeworkSession{}
	var hintsJSON, attemptsJSON []byte
	err := s.db.QueryRowContext(ctx, query, sessionID, userID).Scan(
		&session.ID,
		&session.UserID,
		&session.Subject,
		&session.Question,
		&session.CorrectAnswer,
		&hintsJSON,
		&session.HintsRevealed,
		&attemptsJSON,
		&session.IsComplete,
		&session.SolvedCorrectly,
		&session.SolutionRevealed,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, contextutils.ErrSessionNotFound
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load homework session")
	}

	if err := json.Unmarshal(hintsJSON, &session.Hints); err != nil {
		return nil, contextutils.WrapError(err, "failed to decode session hints")
	}
	if err := json.Unmarshal(attemptsJSON, &session.Attempts); err != nil {
		return nil, contextutils.WrapError(err, "failed to decode session attempts")
	}

	return session, nil
}

// RevealHint reveals the next hint level for a session
func (s *HomeworkService) RevealHint(ctx context.Context, userID, sessionID, level int) (hint *models.HomeworkHint, err error) {
	ctx, span := observability.TraceHomeworkFunction(ctx, "reveal_hint",
		observability.AttributeUserID(userID),
		observability.AttributeSessionID(sessionID),
		attribute.Int("homework.hint_level", level),
	)
	defer observability.FinishSpan(span, &err)

	session, err := s.loadSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	if session.IsComplete {
		return nil, contextutils.WrapError(contextutils.ErrSessionComplete, "cannot reveal hints on a completed session")
	}
	// A zero level means "the next one"
	if level == 0 {
		level = session.HintsRevealed + 1
	}
	if level < models.HintLevelBasic || level > models.HintLevelSolution {
		return nil, contextutils.WrapErrorf(contextutils.ErrHintUnavailable, "hint level %d does not exist", level)
	}
	if level <= session.HintsRevealed {
		return nil, contextutils.WrapErrorf(contextutils.ErrHintUnavailable, "hint level %d has already been revealed", level)
	}
	if level != session.HintsRevealed+1 {
		return nil, contextutils.WrapErrorf(contextutils.ErrHintUnavailable, "hint level %d must be revealed next", session.HintsRevealed+1)
	}

	solutionRevealed := session.SolutionRevealed || level == models.HintLevelSolution

	query := `
		UPDATE homework_sessions
		SET hints_revealed = $1, solution_revealed = $2, updated_at = NOW()
		WHERE id = $3 AND user_id = $4
	`
	if _, err = s.db.ExecContext(ctx, query, level, solutionRevealed, sessionID, userID); err != nil {
		return nil, contextutils.WrapError(err, "failed to update hint state")
	}

	for i := range session.Hints {
		if session.Hints[i].Level == level {
			return &session.Hints[i], nil
		}
	}
	return nil, contextutils.WrapErrorf(contextutils.ErrHintUnavailable, "hint level %d is missing from the session", level)
}

// attemptEvaluationResponse is the JSON shape requested from the model when
// an attempt cannot be verified numerically
type attemptEvaluationResponse struct {
	IsCorrect bool   `json:"is_correct"`
	Feedback  string `json:"feedback"`
}

const evaluationSystemPrompt = "You are grading a Class 12 student's homework attempt. " +
	"Be encouraging but accurate. Respond with JSON only."

func evaluationPrompt(question, answer string) string {
	return fmt.Sprintf(`Problem: %s
Student's answer: %s

Respond as JSON:
{"is_correct": true or false, "feedback": "one or two sentences of feedback without revealing the full solution"}`, question, answer)
}

// SubmitAttempt evaluates an answer and advances the session state machine
func (s *HomeworkService) SubmitAttempt(ctx context.Context, userID, sessionID int, answer string) (evaluation *models.AttemptEvaluation, err error) {
	ctx, span := observability.TraceHomeworkFunction(ctx, "submit_attempt",
		observability.AttributeUserID(userID),
		observability.AttributeSessionID(sessionID),
	)
	defer observability.FinishSpan(span, &err)

	session, err := s.loadSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	if session.IsComplete {
		return nil, contextutils.WrapError(contextutils.ErrSessionComplete, "session already has a final result")
	}
	if session.AttemptCount() >= models.MaxHomeworkAttempts {
		return nil, contextutils.WrapErrorf(contextutils.ErrSessionComplete, "all %d attempts have been used", models.MaxHomeworkAttempts)
	}

	isCorrect, feedback, err := s.evaluateAnswer(ctx, session, answer)
	if err != nil {
		return nil, err
	}

	attempt := models.HomeworkAttempt{
		Number:      session.AttemptCount() + 1,
		Answer:      answer,
		IsCorrect:   isCorrect,
		Feedback:    feedback,
		AttemptedAt: time.Now().UTC(),
	}
	session.Attempts = append(session.Attempts, attempt)

	complete := isCorrect || len(session.Attempts) >= models.MaxHomeworkAttempts
	solutionRevealed := session.SolutionRevealed || complete

	attemptsJSON, err := json.Marshal(session.Attempts)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to marshal attempts")
	}

	query := `
		UPDATE homework_sessions
		SET attempts = $1, is_complete = $2, solved_correctly = $3, solution_revealed = $4, updated_at = NOW()
		WHERE id = $5 AND user_id = $6
	`
	if _, err = s.db.ExecContext(ctx, query, attemptsJSON, complete, isCorrect, solutionRevealed, sessionID, userID); err != nil {
		return nil, contextutils.WrapError(err, "failed to record attempt")
	}

	evaluation = &models.AttemptEvaluation{
		IsCorrect:       isCorrect,
		Feedback:        feedback,
		AttemptsUsed:    len(session.Attempts),
		AttemptsLeft:    models.MaxHomeworkAttempts - len(session.Attempts),
		SessionComplete: complete,
	}
	// The full solution is withheld until the session is over
	if complete {
		evaluation.AttemptsLeft = 0
		for _, hint := range session.Hints {
			if hint.Level == models.HintLevelSolution {
				evaluation.Solution = hint.Text
			}
		}
	}

	span.SetAttributes(
		attribute.Bool("homework.attempt_correct", isCorrect),
		attribute.Bool("homework.session_complete", complete),
	)
	return evaluation, nil
}

// evaluateAnswer verifies numerically via Wolfram when possible and falls
// back to a Gemini JSON evaluation.
func (s *HomeworkService) evaluateAnswer(ctx context.Context, session *models.HomeworkSession, answer string) (bool, string, error) {
	if session.CorrectAnswer.Valid && s.wolfram.IsMathQuery(session.Question) {
		verification, err := s.wolfram.VerifyAnswer(ctx, session.Question, session.CorrectAnswer.String, answer)
		if err == nil && verification.Numeric {
			feedback := "That is not quite right. Check your working and try again."
			if verification.IsCorrect {
				feedback = "Correct, well done."
			}
			return verification.IsCorrect, feedback, nil
		}
		if err != nil {
			s.logger.Warn(ctx, "Wolfram attempt verification failed, falling back to AI evaluation", map[string]interface{}{
				"session_id": session.ID,
				"error":      err.Error(),
			})
		}
	}

	var response attemptEvaluationResponse
	if err := s.gemini.GenerateJSON(ctx, "standard", evaluationSystemPrompt, evaluationPrompt(session.Question, answer), &response); err != nil {
		return false, "", contextutils.WrapError(err, "failed to evaluate attempt")
	}
	return response.IsCorrect, response.Feedback, nil
}

// GetSession returns a session owned by the user
func (s *HomeworkService) GetSession(ctx context.Context, userID, sessionID int) (session *models.HomeworkSession, err error) {
	ctx, span := observability.TraceHomeworkFunction(ctx, "get_session",
		observability.AttributeUserID(userID),
		observability.AttributeSessionID(sessionID),
	)
	defer observability.FinishSpan(span, &err)

	return s.loadSession(ctx, userID, sessionID)
}

// ListSessions returns a user's homework sessions, newest first
func (s *HomeworkService) ListSessions(ctx context.Context, userID, limit, offset int) (sessions []models.HomeworkSession, err error) {
	ctx, span := observability.TraceHomeworkFunction(ctx, "list_sessions",
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
		SELECT id, user_id, subject, question, correct_answer, hints, hints_revealed,
		       attempts, is_complete, solved_correctly, solution_revealed, created_at, updated_at
		FROM homework_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query homework sessions")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close homework session rows", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	sessions = []models.HomeworkSession{}
	for rows.Next() {
		var session models.HomeworkSession
		var hintsJSON, attemptsJSON []byte
		if scanErr := rows.Scan(
			&session.ID,
			&session.UserID,
			&session.Subject,
			&session.Question,
			&session.CorrectAnswer,
			&hintsJSON,
			&session.HintsRevealed,
			&attemptsJSON,
			&session.IsComplete,
			&session.SolvedCorrectly,
			&session.SolutionRevealed,
			&session.CreatedAt,
			&session.UpdatedAt,
		); scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan homework session row")
		}
		if unmarshalErr := json.Unmarshal(hintsJSON, &session.Hints); unmarshalErr != nil {
			return nil, contextutils.WrapError(unmarshalErr, "failed to decode session hints")
		}
		if unmarshalErr := json.Unmarshal(attemptsJSON, &session.Attempts); unmarshalErr != nil {
			return nil, contextutils.WrapError(unmarshalErr, "failed to decode session attempts")
		}
		sessions = append(sessions, session)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate homework session rows")
	}

	return sessions, nil
}

// ExpireStaleSessions completes sessions abandoned for longer than the cutoff
func (s *HomeworkService) ExpireStaleSessions(ctx context.Context, abandonedAfter time.Duration) (count int64, err error) {
	ctx, span := observability.TraceHomeworkFunction(ctx, "expire_stale_sessions")
	defer observability.FinishSpan(span, &err)

	if abandonedAfter <= 0 {
		abandonedAfter = 7 * 24 * time.Hour
	}

	query := `
		UPDATE homework_sessions
		SET is_complete = TRUE, updated_at = NOW()
		WHERE is_complete = FALSE AND updated_at < NOW() - $1::interval
	`

	result, err := s.db.ExecContext(ctx, query, fmt.Sprintf("%d seconds", int(abandonedAfter.Seconds())))
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to expire stale homework sessions")
	}

	count, err = result.RowsAffected()
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to get rows affected")
	}

	if count > 0 {
		s.logger.Info(ctx, "Expired stale homework sessions", map[string]interface{}{
			"count": count,
		})
	}
	span.SetAttributes(attribute.Int64("homework.expired_count", count))
	return count, nil
}
