package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// QuizQuestion is one question inside a quiz template
type QuizQuestion struct {
	Number        int      `json:"number"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	Marks         int      `json:"marks"`
	Explanation   string   `json:"explanation,omitempty"`
}

// QuizTemplate is a reusable quiz definition created by a teacher
// or generated by the AI
type QuizTemplate struct {
	ID          int            `json:"id" db:"id"`
	CreatedBy   int            `json:"created_by" db:"created_by"`
	Subject     string         `json:"subject" db:"subject"`
	Topic       string         `json:"topic" db:"topic"`
	Title       string         `json:"title" db:"title"`
	Questions   []QuizQuestion `json:"questions" db:"questions"`
	TotalMarks  int            `json:"total_marks" db:"total_marks"`
	AIGenerated bool           `json:"ai_generated" db:"ai_generated"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// ComputeTotalMarks returns the sum of per-question marks
func (t *QuizTemplate) ComputeTotalMarks() int {
	total := 0
	for _, q := range t.Questions {
		total += q.Marks
	}
	return total
}

// QuizSession is one student's run through a quiz template
type QuizSession struct {
	ID          int            `json:"id" db:"id"`
	TemplateID  int            `json:"template_id" db:"template_id"`
	UserID      int            `json:"user_id" db:"user_id"`
	Answers     map[int]int    `json:"answers" db:"answers"` // question number -> chosen option
	StartedAt   time.Time      `json:"started_at" db:"started_at"`
	ExpiresAt   time.Time      `json:"expires_at" db:"expires_at"`
	SubmittedAt sql.NullTime   `json:"submitted_at" db:"submitted_at"`
	Result      *QuizResult    `json:"result,omitempty" db:"result"`
	AutoSubmit  bool           `json:"auto_submitted" db:"auto_submitted"`
}

// Submitted reports whether the session has been scored
func (s *QuizSession) Submitted() bool {
	return s.SubmittedAt.Valid
}

// TimeExpired reports whether the session is past its time limit
func (s *QuizSession) TimeExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// MarshalJSON customizes JSON marshaling for QuizSession to handle sql.NullTime properly
func (s QuizSession) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID          int         `json:"id"`
		TemplateID  int         `json:"template_id"`
		UserID      int         `json:"user_id"`
		Answers     map[int]int `json:"answers"`
		StartedAt   time.Time   `json:"started_at"`
		ExpiresAt   time.Time   `json:"expires_at"`
		SubmittedAt *time.Time  `json:"submitted_at"`
		Result      *QuizResult `json:"result,omitempty"`
		AutoSubmit  bool        `json:"auto_submitted"`
	}{
		ID:          s.ID,
		TemplateID:  s.TemplateID,
		UserID:      s.UserID,
		Answers:     s.Answers,
		StartedAt:   s.StartedAt,
		ExpiresAt:   s.ExpiresAt,
		SubmittedAt: nullTimeToPointer(s.SubmittedAt),
		Result:      s.Result,
		AutoSubmit:  s.AutoSubmit,
	})
}

// QuestionResult is the scored outcome of one question
type QuestionResult struct {
	Number        int  `json:"number"`
	Answered      bool `json:"answered"`
	ChosenOption  int  `json:"chosen_option"`
	CorrectOption int  `json:"correct_option"`
	IsCorrect     bool `json:"is_correct"`
	MarksAwarded  int  `json:"marks_awarded"`
	MarksPossible int  `json:"marks_possible"`
}

// QuizResult is the scored outcome of a submitted session
type QuizResult struct {
	Score      int              `json:"score"`
	TotalMarks int              `json:"total_marks"`
	Percentage float64          `json:"percentage"`
	Correct    int              `json:"correct"`
	Incorrect  int              `json:"incorrect"`
	Unanswered int              `json:"unanswered"`
	Questions  []QuestionResult `json:"questions"`
}

// CreateQuizTemplateRequest creates a quiz template by hand
type CreateQuizTemplateRequest struct {
	Subject   string         `json:"subject" binding:"required"`
	Topic     string         `json:"topic" binding:"required"`
	Title     string         `json:"title" binding:"required"`
	Questions []QuizQuestion `json:"questions" binding:"required,min=1"`
}

// GenerateQuizRequest asks the AI to generate a quiz template
type GenerateQuizRequest struct {
	Subject       string `json:"subject" binding:"required"`
	Topic         string `json:"topic" binding:"required"`
	QuestionCount int    `json:"question_count"`
	Difficulty    string `json:"difficulty,omitempty"`
	MarksEach     int    `json:"marks_each,omitempty"`
}

// StartQuizRequest starts a session from a template
type StartQuizRequest struct {
	TemplateID int `json:"template_id" binding:"required"`
}

// QuizAnswerRequest saves one answer within a running session
type QuizAnswerRequest struct {
	SessionID      int `json:"session_id" binding:"required"`
	QuestionNumber int `json:"question_number" binding:"required"`
	ChosenOption   int `json:"chosen_option"`
}
