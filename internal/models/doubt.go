package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// DoubtModality represents how the doubt was asked
type DoubtModality string

const (
	// DoubtText is a plain text question
	DoubtText DoubtModality = "text"
	// DoubtImage is a photographed question answered via vision
	DoubtImage DoubtModality = "image"
	// DoubtVoice is a spoken question answered after transcription
	DoubtVoice DoubtModality = "voice"
)

// Doubt represents a student question and its answer
type Doubt struct {
	ID         int            `json:"id" db:"id"`
	UserID     int            `json:"user_id" db:"user_id"`
	Subject    string         `json:"subject" db:"subject"`
	Modality   DoubtModality  `json:"modality" db:"modality"`
	Question   string         `json:"question" db:"question"`
	Answer     string         `json:"answer" db:"answer"`
	Transcript sql.NullString `json:"transcript" db:"transcript"`
	// Wolfram holds the verification attachment as JSON when the doubt
	// was math-routed, NULL otherwise
	Wolfram   sql.NullString `json:"wolfram" db:"wolfram"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// MarshalJSON customizes JSON marshaling for Doubt to handle sql.NullString properly
func (d Doubt) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID         int             `json:"id"`
		UserID     int             `json:"user_id"`
		Subject    string          `json:"subject"`
		Modality   DoubtModality   `json:"modality"`
		Question   string          `json:"question"`
		Answer     string          `json:"answer"`
		Transcript *string         `json:"transcript,omitempty"`
		Wolfram    json.RawMessage `json:"wolfram,omitempty"`
		CreatedAt  time.Time       `json:"created_at"`
	}{
		ID:         d.ID,
		UserID:     d.UserID,
		Subject:    d.Subject,
		Modality:   d.Modality,
		Question:   d.Question,
		Answer:     d.Answer,
		Transcript: nullStringToPointer(d.Transcript),
		Wolfram:    nullStringToRawJSON(d.Wolfram),
		CreatedAt:  d.CreatedAt,
	})
}

// TextDoubtRequest represents a text doubt submission
type TextDoubtRequest struct {
	Subject  string `json:"subject" binding:"required"`
	Question string `json:"question" binding:"required"`
	Context  string `json:"context,omitempty"`
}

// DoubtAnswer represents the answer returned for a doubt
type DoubtAnswer struct {
	DoubtID    int            `json:"doubt_id"`
	Subject    string         `json:"subject"`
	Modality   DoubtModality  `json:"modality"`
	Answer     string         `json:"answer"`
	Transcript string         `json:"transcript,omitempty"`
	Wolfram    *WolframResult `json:"wolfram,omitempty"`
}

// WolframChatResponse is the response shape of the direct Wolfram endpoint
type WolframChatResponse struct {
	Success bool           `json:"success"`
	Query   string         `json:"query"`
	Result  *WolframResult `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}
