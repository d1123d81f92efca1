package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Conversation is a two-party thread between a student and a teacher.
// Participant order is normalized on creation so (a,b) and (b,a)
// resolve to the same row.
type Conversation struct {
	ID            int          `json:"id" db:"id"`
	ParticipantA  int          `json:"participant_a" db:"participant_a"`
	ParticipantB  int          `json:"participant_b" db:"participant_b"`
	LastMessageAt sql.NullTime `json:"last_message_at" db:"last_message_at"`
	UnreadA       int          `json:"unread_a" db:"unread_a"`
	UnreadB       int          `json:"unread_b" db:"unread_b"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

// Other returns the participant that is not userID
func (c *Conversation) Other(userID int) int {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// UnreadFor returns the unread counter for the given participant
func (c *Conversation) UnreadFor(userID int) int {
	if c.ParticipantA == userID {
		return c.UnreadA
	}
	return c.UnreadB
}

// MarshalJSON customizes JSON marshaling for Conversation to handle sql.NullTime properly
func (c Conversation) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID            int        `json:"id"`
		ParticipantA  int        `json:"participant_a"`
		ParticipantB  int        `json:"participant_b"`
		LastMessageAt *time.Time `json:"last_message_at"`
		UnreadA       int        `json:"unread_a"`
		UnreadB       int        `json:"unread_b"`
		CreatedAt     time.Time  `json:"created_at"`
	}{
		ID:            c.ID,
		ParticipantA:  c.ParticipantA,
		ParticipantB:  c.ParticipantB,
		LastMessageAt: nullTimeToPointer(c.LastMessageAt),
		UnreadA:       c.UnreadA,
		UnreadB:       c.UnreadB,
		CreatedAt:     c.CreatedAt,
	})
}

// Message is one message inside a conversation
type Message struct {
	ID             int          `json:"id" db:"id"`
	ConversationID int          `json:"conversation_id" db:"conversation_id"`
	SenderID       int          `json:"sender_id" db:"sender_id"`
	Body           string       `json:"body" db:"body"`
	IsRead         bool         `json:"is_read" db:"is_read"`
	ReadAt         sql.NullTime `json:"read_at" db:"read_at"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}

// MarshalJSON customizes JSON marshaling for Message to handle sql.NullTime properly
func (m Message) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID             int        `json:"id"`
		ConversationID int        `json:"conversation_id"`
		SenderID       int        `json:"sender_id"`
		Body           string     `json:"body"`
		IsRead         bool       `json:"is_read"`
		ReadAt         *time.Time `json:"read_at"`
		CreatedAt      time.Time  `json:"created_at"`
	}{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		IsRead:         m.IsRead,
		ReadAt:         nullTimeToPointer(m.ReadAt),
		CreatedAt:      m.CreatedAt,
	})
}

// SendMessageRequest sends a message to another user
type SendMessageRequest struct {
	RecipientID int    `json:"recipient_id" binding:"required"`
	Body        string `json:"body" binding:"required"`
}

// ImproveMessageRequest asks the AI to rewrite a draft message
type ImproveMessageRequest struct {
	Draft string `json:"draft" binding:"required"`
	Tone  string `json:"tone,omitempty"`
}

// MessageSuggestionsRequest asks the AI for suggested replies
type MessageSuggestionsRequest struct {
	ConversationID int `json:"conversation_id" binding:"required"`
}
