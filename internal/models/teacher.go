package models

import "time"

// LessonPlanSegment is one timed block of a lesson plan
type LessonPlanSegment struct {
	Title    string `json:"title"`
	Minutes  int    `json:"minutes"`
	Activity string `json:"activity"`
}

// LessonPlan is an AI-generated lesson plan artifact
type LessonPlan struct {
	ID              int                 `json:"id" db:"id"`
	TeacherID       int                 `json:"teacher_id" db:"teacher_id"`
	Subject         string              `json:"subject" db:"subject"`
	Topic           string              `json:"topic" db:"topic"`
	Grade           string              `json:"grade" db:"grade"`
	DurationMinutes int                 `json:"duration_minutes" db:"duration_minutes"`
	Objectives      []string            `json:"objectives" db:"objectives"`
	IntroHook       string              `json:"intro_hook" db:"intro_hook"`
	MainContent     []LessonPlanSegment `json:"main_content" db:"main_content"`
	Activities      []string            `json:"activities" db:"activities"`
	Assessments     []string            `json:"assessments" db:"assessments"`
	Differentiation string              `json:"differentiation" db:"differentiation"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
}

// AssessmentQuestion is one question of a formative assessment
type AssessmentQuestion struct {
	Number     int    `json:"number"`
	Text       string `json:"text"`
	Difficulty string `json:"difficulty"`
	AnswerKey  string `json:"answer_key"`
	Rubric     string `json:"rubric"`
}

// FormativeAssessment is an AI-generated assessment artifact
type FormativeAssessment struct {
	ID        int                  `json:"id" db:"id"`
	TeacherID int                  `json:"teacher_id" db:"teacher_id"`
	Subject   string               `json:"subject" db:"subject"`
	Topic     string               `json:"topic" db:"topic"`
	Questions []AssessmentQuestion `json:"questions" db:"questions"`
	CreatedAt time.Time            `json:"created_at" db:"created_at"`
}

// ParentMessageType categorizes a generated parent communication
type ParentMessageType string

// Parent message types
const (
	ParentMsgProgressUpdate ParentMessageType = "progress_update"
	ParentMsgConcern        ParentMessageType = "concern"
	ParentMsgAchievement    ParentMessageType = "achievement"
	ParentMsgGeneral        ParentMessageType = "general"
)

// ParentMessage is an AI-drafted communication to a parent
type ParentMessage struct {
	ID          int               `json:"id" db:"id"`
	TeacherID   int               `json:"teacher_id" db:"teacher_id"`
	StudentID   int               `json:"student_id" db:"student_id"`
	MessageType ParentMessageType `json:"message_type" db:"message_type"`
	SubjectLine string            `json:"subject_line" db:"subject_line"`
	Greeting    string            `json:"greeting" db:"greeting"`
	Body        string            `json:"body" db:"body"`
	KeyPoints   []string          `json:"key_points" db:"key_points"`
	ActionItems []string          `json:"action_items" db:"action_items"`
	EmailSent   bool              `json:"email_sent" db:"email_sent"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
}

// GenerateLessonPlanRequest asks for a lesson plan
type GenerateLessonPlanRequest struct {
	Subject         string   `json:"subject" binding:"required"`
	Topic           string   `json:"topic" binding:"required"`
	Grade           string   `json:"grade"`
	DurationMinutes int      `json:"duration_minutes"`
	Objectives      []string `json:"objectives,omitempty"`
}

// GenerateAssessmentRequest asks for a formative assessment
type GenerateAssessmentRequest struct {
	Subject       string `json:"subject" binding:"required"`
	Topic         string `json:"topic" binding:"required"`
	QuestionCount int    `json:"question_count"`
	DifficultyMix string `json:"difficulty_mix,omitempty"`
}

// GenerateParentMessageRequest asks for a parent communication draft
type GenerateParentMessageRequest struct {
	StudentID   int               `json:"student_id" binding:"required"`
	MessageType ParentMessageType `json:"message_type" binding:"required"`
	Subject     string            `json:"subject,omitempty"`
	Context     string            `json:"context,omitempty"`
	SendEmail   bool              `json:"send_email,omitempty"`
	ParentEmail string            `json:"parent_email,omitempty"`
}

// StudentPerformance summarizes one student for the teacher dashboard
type StudentPerformance struct {
	UserID              int        `json:"user_id"`
	Username            string     `json:"username"`
	Grade               string     `json:"grade,omitempty"`
	QuizAverage         float64    `json:"quiz_average"`
	QuizzesTaken        int        `json:"quizzes_taken"`
	HomeworkCompleted   int        `json:"homework_completed"`
	HomeworkInProgress  int        `json:"homework_in_progress"`
	LastActive          *time.Time `json:"last_active,omitempty"`
}
