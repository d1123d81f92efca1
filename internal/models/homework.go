package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Graduated hint levels for homework sessions
const (
	// HintLevelBasic nudges the student toward the right concept
	HintLevelBasic = 1
	// HintLevelDetailed walks through the approach without solving
	HintLevelDetailed = 2
	// HintLevelSolution reveals the complete worked solution
	HintLevelSolution = 3

	// MaxHomeworkAttempts is the attempt count at which a session
	// completes regardless of correctness
	MaxHomeworkAttempts = 3
)

// HomeworkHint is a single pre-generated hint at one level
type HomeworkHint struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// HomeworkAttempt is one evaluated answer within a session
type HomeworkAttempt struct {
	Number      int       `json:"number"`
	Answer      string    `json:"answer"`
	IsCorrect   bool      `json:"is_correct"`
	Feedback    string    `json:"feedback,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// HomeworkSession tracks a student working through one question with
// graduated hints
type HomeworkSession struct {
	ID               int               `json:"id" db:"id"`
	UserID           int               `json:"user_id" db:"user_id"`
	Subject          string            `json:"subject" db:"subject"`
	Question         string            `json:"question" db:"question"`
	CorrectAnswer    sql.NullString    `json:"-" db:"correct_answer"`
	Hints            []HomeworkHint    `json:"-" db:"hints"`
	HintsRevealed    int               `json:"hints_revealed" db:"hints_revealed"`
	Attempts         []HomeworkAttempt `json:"attempts" db:"attempts"`
	IsComplete       bool              `json:"is_complete" db:"is_complete"`
	SolvedCorrectly  bool              `json:"solved_correctly" db:"solved_correctly"`
	SolutionRevealed bool              `json:"solution_revealed" db:"solution_revealed"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// RevealedHints returns the hints the student has already unlocked,
// in level order. Unrevealed hint text never leaves the server.
func (s *HomeworkSession) RevealedHints() []HomeworkHint {
	revealed := make([]HomeworkHint, 0, s.HintsRevealed)
	for _, h := range s.Hints {
		if h.Level <= s.HintsRevealed {
			revealed = append(revealed, h)
		}
	}
	return revealed
}

// AttemptCount returns the number of attempts made so far
func (s *HomeworkSession) AttemptCount() int {
	return len(s.Attempts)
}

// MarshalJSON customizes JSON marshaling for HomeworkSession so only
// revealed hints are serialized
func (s HomeworkSession) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID               int               `json:"id"`
		UserID           int               `json:"user_id"`
		Subject          string            `json:"subject"`
		Question         string            `json:"question"`
		Hints            []HomeworkHint    `json:"hints"`
		HintsRevealed    int               `json:"hints_revealed"`
		Attempts         []HomeworkAttempt `json:"attempts"`
		IsComplete       bool              `json:"is_complete"`
		SolvedCorrectly  bool              `json:"solved_correctly"`
		SolutionRevealed bool              `json:"solution_revealed"`
		CreatedAt        time.Time         `json:"created_at"`
		UpdatedAt        time.Time         `json:"updated_at"`
	}{
		ID:               s.ID,
		UserID:           s.UserID,
		Subject:          s.Subject,
		Question:         s.Question,
		Hints:            s.RevealedHints(),
		HintsRevealed:    s.HintsRevealed,
		Attempts:         s.Attempts,
		IsComplete:       s.IsComplete,
		SolvedCorrectly:  s.SolvedCorrectly,
		SolutionRevealed: s.SolutionRevealed,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	})
}

// StartHomeworkRequest starts a new homework session
type StartHomeworkRequest struct {
	Subject       string `json:"subject" binding:"required"`
	Question      string `json:"question" binding:"required"`
	CorrectAnswer string `json:"correct_answer,omitempty"`
}

// HomeworkHintRequest asks for the next hint of a session
type HomeworkHintRequest struct {
	SessionID int `json:"session_id" binding:"required"`
}

// HomeworkAttemptRequest submits an answer for evaluation
type HomeworkAttemptRequest struct {
	SessionID int    `json:"session_id" binding:"required"`
	Answer    string `json:"answer" binding:"required"`
}

// AttemptEvaluation is the result of evaluating a homework attempt
type AttemptEvaluation struct {
	IsCorrect       bool   `json:"is_correct"`
	Feedback        string `json:"feedback"`
	AttemptsUsed    int    `json:"attempts_used"`
	AttemptsLeft    int    `json:"attempts_left"`
	SessionComplete bool   `json:"session_complete"`
	Solution        string `json:"solution,omitempty"`
}
