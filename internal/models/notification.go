package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// NotificationType categorizes a notification
type NotificationType string

// Notification types used by the platform
const (
	NotificationAnnouncement NotificationType = "announcement"
	NotificationAssignment   NotificationType = "assignment"
	NotificationQuiz         NotificationType = "quiz"
	NotificationMessage      NotificationType = "message"
	NotificationAchievement  NotificationType = "achievement"
	NotificationSystem       NotificationType = "system"
)

// NotificationPriority orders notifications in the UI
type NotificationPriority string

// Notification priorities
const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

// Notification is a single in-app notification for a user
type Notification struct {
	ID        int                  `json:"id" db:"id"`
	UserID    int                  `json:"user_id" db:"user_id"`
	Title     string               `json:"title" db:"title"`
	Message   string               `json:"message" db:"message"`
	Type      NotificationType     `json:"type" db:"type"`
	Priority  NotificationPriority `json:"priority" db:"priority"`
	ActionURL sql.NullString       `json:"action_url" db:"action_url"`
	Metadata  sql.NullString       `json:"metadata" db:"metadata"` // JSON blob
	CreatedBy sql.NullInt32        `json:"created_by" db:"created_by"`
	IsRead    bool                 `json:"is_read" db:"is_read"`
	ReadAt    sql.NullTime         `json:"read_at" db:"read_at"`
	CreatedAt time.Time            `json:"created_at" db:"created_at"`
}

// MarshalJSON customizes JSON marshaling for Notification to handle sql.Null types properly
func (n Notification) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID        int                  `json:"id"`
		UserID    int                  `json:"user_id"`
		Title     string               `json:"title"`
		Message   string               `json:"message"`
		Type      NotificationType     `json:"type"`
		Priority  NotificationPriority `json:"priority"`
		ActionURL *string              `json:"action_url"`
		Metadata  json.RawMessage      `json:"metadata,omitempty"`
		CreatedBy *int32               `json:"created_by"`
		IsRead    bool                 `json:"is_read"`
		ReadAt    *time.Time           `json:"read_at"`
		CreatedAt time.Time            `json:"created_at"`
	}{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		Priority:  n.Priority,
		ActionURL: nullStringToPointer(n.ActionURL),
		Metadata:  nullStringToRawJSON(n.Metadata),
		CreatedBy: nullInt32ToPointer(n.CreatedBy),
		IsRead:    n.IsRead,
		ReadAt:    nullTimeToPointer(n.ReadAt),
		CreatedAt: n.CreatedAt,
	})
}

// CreateNotificationRequest creates a notification for a user
type CreateNotificationRequest struct {
	UserID    int                  `json:"user_id" binding:"required"`
	Title     string               `json:"title" binding:"required"`
	Message   string               `json:"message" binding:"required"`
	Type      NotificationType     `json:"type"`
	Priority  NotificationPriority `json:"priority"`
	ActionURL string               `json:"action_url,omitempty"`
	Metadata  string               `json:"metadata,omitempty"`
}

// NotificationFilters narrows a notification listing
type NotificationFilters struct {
	IsRead *bool
	Type   NotificationType
	Limit  int
	Offset int
}
