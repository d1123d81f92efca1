package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"learnapp/internal/models"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// Teacher artifact kinds stored in teacher_artifacts
const (
	ArtifactLessonPlan    = "lesson_plan"
	ArtifactAssessment    = "assessment"
	ArtifactParentMessage = "parent_message"
)

// ParentEmailSender delivers a generated parent message by email
type ParentEmailSender interface {
	SendParentMessage(ctx context.Context, to, subjectLine, body string) error
}

// TeacherArtifact is one stored generation artifact
type TeacherArtifact struct {
	ID        int             `json:"id"`
	TeacherID int             `json:"teacher_id"`
	Kind      string          `json:"kind"`
	Subject   string          `json:"subject"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"created_at"`
}

// TeacherServiceInterface defines AI-backed teacher tools
type TeacherServiceInterface interface {
	GenerateLessonPlan(ctx context.Context, teacherID int, req *models.GenerateLessonPlanRequest) (*models.LessonPlan, error)
	GenerateAssessment(ctx context.Context, teacherID int, req *models.GenerateAssessmentRequest) (*models.FormativeAssessment, error)
	GenerateParentMessage(ctx context.Context, teacherID int, req *models.GenerateParentMessageRequest) (*models.ParentMessage, error)
	ListArtifacts(ctx context.Context, teacherID int, kind string, limit, offset int) ([]TeacherArtifact, error)
	StudentRoster(ctx context.Context, teacherID int) ([]models.StudentPerformance, error)
}

// TeacherService generates lesson plans, assessments and parent messages
// and persists each artifact for later reuse.
type TeacherService struct {
	db     *sql.DB
	gemini GeminiServiceInterface
	email  ParentEmailSender
	logger *observability.Logger
}

// NewTeacherService creates a new teacher tools service. The email sender
// may be nil when email delivery is disabled.
func NewTeacherService(db *sql.DB, gemini GeminiServiceInterface, email ParentEmailSender, logger *observability.Logger) *TeacherService {
	return &TeacherService{
		db:     db,
		gemini: gemini,
		email:  email,
		logger: logger,
	}
}

// saveArtifact persists one generated artifact and returns its id
func (s *TeacherService) saveArtifact(ctx context.Context, teacherID int, kind, subject, topic string, payload interface{}) (int, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to marshal artifact")
	}

	var id int
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO teacher_artifacts (teacher_id, kind, subject, topic, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, teacherID, kind, subject, topic, payloadJSON).Scan(&id)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to save artifact")
	}
	return id, nil
}

const lessonPlanSystemPrompt = "You are an experienced CBSE Class 12 teacher planning lessons. " +
	"Respond with JSON only."

// lessonPlanGeneration is the JSON shape requested from the model
type lessonPlanGeneration struct {
	Objectives      []string                   `json:"objectives"`
	IntroHook       string                     `json:"intro_hook"`
	MainContent     []models.LessonPlanSegment `json:"main_content"`
	Activities      []string                   `json:"activities"`
	Assessments     []string                   `json:"assessments"`
	Differentiation string                     `json:"differentiation"`
}

func lessonPlanPrompt(req *models.GenerateLessonPlanRequest, grade string, duration int) string {
	var objectives string
	if len(req.Objectives) > 0 {
		objectives = "\nThe teacher wants these objectives covered: " + strings.Join(req.Objectives, "; ")
	}
	return fmt.Sprintf(`Plan a %d minute %s lesson on "%s" for grade %s.%s

Respond as JSON:
{
  "objectives": ["..."],
  "intro_hook": "an opening that grabs attention",
  "main_content": [{"title": "...", "minutes": 10, "activity": "what happens in this block"}],
  "activities": ["..."],
  "assessments": ["formative checks during the lesson"],
  "differentiation": "how to support weaker and stretch stronger students"
}
The main_content minutes must sum to roughly the lesson duration.`, duration, req.Subject, req.Topic, grade, objectives)
}

// GenerateLessonPlan produces and stores a structured lesson plan
func (s *TeacherService) GenerateLessonPlan(ctx context.Context, teacherID int, req *models.GenerateLessonPlanRequest) (plan *models.LessonPlan, err error) {
	ctx, span := observability.TraceTeacherFunction(ctx, "generate_lesson_plan",
		observability.AttributeUserID(teacherID),
		observability.AttributeSubject(req.Subject),
		observability.AttributeTopic(req.Topic),
	)
	defer observability.FinishSpan(span, &err)

	grade := req.Grade
	if grade == "" {
		grade = "12"
	}
	duration := req.DurationMinutes
	if duration <= 0 {
		duration = 45
	}

	var generated lessonPlanGeneration
	if err = s.gemini.GenerateJSON(ctx, "quality", lessonPlanSystemPrompt, lessonPlanPrompt(req, grade, duration), &generated); err != nil {
		return nil, contextutils.WrapError(err, "failed to generate lesson plan")
	}
	if len(generated.Objectives) == 0 || len(generated.MainContent) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrAIResponseInvalid, "lesson plan is missing objectives or content")
	}

	plan = &models.LessonPlan{
		TeacherID:       teacherID,
		Subject:         req.Subject,
		Topic:           req.Topic,
		Grade:           grade,
		DurationMinutes: duration,
		Objectives:      generated.Objectives,
		IntroHook:       generated.IntroHook,
		MainContent:     generated.MainContent,
		Activities:      generated.Activities,
		Assessments:     generated.Assessments,
		Differentiation: generated.Differentiation,
	}

	plan.ID, err = s.saveArtifact(ctx, teacherID, ArtifactLessonPlan, req.Subject, req.Topic, plan)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

const assessmentSystemPrompt = "You write formative assessments for CBSE Class 12 with clear rubrics " +
	"and answer keys. Respond with JSON only."

type assessmentGeneration struct {
	Questions []models.AssessmentQuestion `json:"questions"`
}

func assessmentPrompt(req *models.GenerateAssessmentRequest, count int) string {
	mix := req.DifficultyMix
	if mix == "" {
		mix = "a mix of easy, medium and hard"
	}
	return fmt.Sprintf(`Write a formative assessment for Class 12 %s on "%s": %d questions, %s.

Respond as JSON:
{
  "questions": [
    {"number": 1, "text": "...", "difficulty": "easy|medium|hard", "answer_key": "the expected answer", "rubric": "how to award marks"}
  ]
}`, req.Subject, req.Topic, count, mix)
}

// GenerateAssessment produces and stores a formative assessment
func (s *TeacherService) GenerateAssessment(ctx context.Context, teacherID int, req *models.GenerateAssessmentRequest) (assessment *models.FormativeAssessment, err error) {
	ctx, span := observability.TraceTeacherFunction(ctx, "generate_assessment",
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

	var generated assessmentGeneration
	if err = s.gemini.GenerateJSON(ctx, "standard", assessmentSystemPrompt, assessmentPrompt(req, count), &generated); err != nil {
		return nil, contextutils.WrapError(err, "failed to generate assessment")
	}
	if len(generated.Questions) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrAIResponseInvalid, "assessment has no questions")
	}
	for i := range generated.Questions {
		generated.Questions[i].Number = i + 1
	}

	assessment = &models.FormativeAssessment{
		TeacherID: teacherID,
		Subject:   req.Subject,
		Topic:     req.Topic,
		Questions: generated.Questions,
	}

	assessment.ID, err = s.saveArtifact(ctx, teacherID, ArtifactAssessment, req.Subject, req.Topic, assessment)
	if err != nil {
		return nil, err
	}
	return assessment, nil
}

const parentMessageSystemPrompt = "You draft warm, professional messages from a teacher to a parent " +
	"of a Class 12 student. Respond with JSON only."

type parentMessageGeneration struct {
	SubjectLine string   `json:"subject_line"`
	Greeting    string   `json:"greeting"`
	Body        string   `json:"body"`
	KeyPoints   []string `json:"key_points"`
	ActionItems []string `json:"action_items"`
}

var parentMessageIntents = map[models.ParentMessageType]string{
	models.ParentMsgProgressUpdate: "a routine progress update",
	models.ParentMsgConcern:        "a concern that needs the parent's attention, raised kindly",
	models.ParentMsgAchievement:    "celebrating a recent achievement",
	models.ParentMsgGeneral:        "a general communication",
}

func parentMessagePrompt(req *models.GenerateParentMessageRequest, intent string) string {
	var details strings.Builder
	if req.Subject != "" {
		fmt.Fprintf(&details, "\nSubject concerned: %s.", req.Subject)
	}
	if req.Context != "" {
		fmt.Fprintf(&details, "\nRecent context: %s", req.Context)
	}
	return fmt.Sprintf(`Draft %s about a student.%s

Respond as JSON:
{
  "subject_line": "...",
  "greeting": "...",
  "body": "two or three short paragraphs",
  "key_points": ["..."],
  "action_items": ["concrete things the parent can do"]
}`, intent, details.String())
}

// GenerateParentMessage drafts a parent communication and optionally sends it
func (s *TeacherService) GenerateParentMessage(ctx context.Context, teacherID int, req *models.GenerateParentMessageRequest) (message *models.ParentMessage, err error) {
	ctx, span := observability.TraceTeacherFunction(ctx, "generate_parent_message",
		observability.AttributeUserID(teacherID),
		attribute.String("teacher.message_type", string(req.MessageType)),
	)
	defer observability.FinishSpan(span, &err)

	intent, ok := parentMessageIntents[req.MessageType]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown message type %q", req.MessageType)
	}

	var generated parentMessageGeneration
	if err = s.gemini.GenerateJSON(ctx, "standard", parentMessageSystemPrompt, parentMessagePrompt(req, intent), &generated); err != nil {
		return nil, contextutils.WrapError(err, "failed to generate parent message")
	}
	if generated.Body == "" {
		return nil, contextutils.WrapError(contextutils.ErrAIResponseInvalid, "parent message has no body")
	}

	message = &models.ParentMessage{
		TeacherID:   teacherID,
		StudentID:   req.StudentID,
		MessageType: req.MessageType,
		SubjectLine: generated.SubjectLine,
		Greeting:    generated.Greeting,
		Body:        generated.Body,
		KeyPoints:   generated.KeyPoints,
		ActionItems: generated.ActionItems,
	}

	if req.SendEmail && req.ParentEmail != "" && s.email != nil {
		emailBody := generated.Greeting + "\n\n" + generated.Body
		if sendErr := s.email.SendParentMessage(ctx, req.ParentEmail, generated.SubjectLine, emailBody); sendErr != nil {
			s.logger.Warn(ctx, "Failed to send parent message email", map[string]interface{}{
				"error": sendErr.Error(),
			})
		} else {
			message.EmailSent = true
		}
	}

	message.ID, err = s.saveArtifact(ctx, teacherID, ArtifactParentMessage, req.Subject, "", message)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Bool("teacher.email_sent", message.EmailSent))
	return message, nil
}

// ListArtifacts returns a teacher's stored artifacts, optionally filtered by kind
func (s *TeacherService) ListArtifacts(ctx context.Context, teacherID int, kind string, limit, offset int) (artifacts []TeacherArtifact, err error) {
	ctx, span := observability.TraceTeacherFunction(ctx, "list_artifacts",
		observability.AttributeUserID(teacherID),
		observability.AttributeTypeFilter(kind),
	)
	defer observability.FinishSpan(span, &err)

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, teacher_id, kind, subject, topic, payload, created_at
		FROM teacher_artifacts
		WHERE teacher_id = $1 AND ($2 = '' OR kind = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := s.db.QueryContext(ctx, query, teacherID, kind, limit, offset)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query artifacts")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close artifact rows", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	artifacts = []TeacherArtifact{}
	for rows.Next() {
		var artifact TeacherArtifact
		var payload []byte
		if scanErr := rows.Scan(
			&artifact.ID,
			&artifact.TeacherID,
			&artifact.Kind,
			&artifact.Subject,
			&artifact.Topic,
			&payload,
			&artifact.CreatedAt,
		); scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan artifact row")
		}
		artifact.Payload = json.RawMessage(payload)
		artifacts = append(artifacts, artifact)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate artifact rows")
	}

	return artifacts, nil
}

// StudentRoster summarizes student performance for the teacher dashboard
func (s *TeacherService) StudentRoster(ctx context.Context, teacherID int) (roster []models.StudentPerformance, err error) {
	ctx, span := observability.TraceTeacherFunction(ctx, "student_roster",
		observability.AttributeUserID(teacherID),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT u.id, u.username, COALESCE(u.grade, ''),
		       COALESCE((SELECT AVG((result->>'percentage')::float) FROM quiz_sessions WHERE user_id = u.id AND submitted_at IS NOT NULL), 0),
		       (SELECT COUNT(*) FROM quiz_sessions WHERE user_id = u.id AND submitted_at IS NOT NULL),
		       (SELECT COUNT(*) FROM homework_sessions WHERE user_id = u.id AND is_complete = TRUE),
		       (SELECT COUNT(*) FROM homework_sessions WHERE user_id = u.id AND is_complete = FALSE),
		       u.last_active
		FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		JOIN roles r ON r.id = ur.role_id AND r.name = 'student'
		ORDER BY u.username
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query student roster")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close roster rows", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	roster = []models.StudentPerformance{}
	for rows.Next() {
		var student models.StudentPerformance
		var lastActive sql.NullTime
		if scanErr := rows.Scan(
			&student.UserID,
			&student.Username,
			&student.Grade,
			&student.QuizAverage,
			&student.QuizzesTaken,
			&student.HomeworkCompleted,
			&student.HomeworkInProgress,
			&lastActive,
		); scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan roster row")
		}
		if lastActive.Valid {
			t := lastActive.Time
			student.LastActive = &t
		}
		roster = append(roster, student)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate roster rows")
	}

	span.SetAttributes(attribute.Int("teacher.student_count", len(roster)))
	return roster, nil
}
