// Package models defines data structures used throughout the learning platform.
package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// RoleName identifies one of the platform roles
type RoleName string

const (
	// RoleStudent is the default role for signups
	RoleStudent RoleName = "student"
	// RoleTeacher grants access to teacher tools and dashboards
	RoleTeacher RoleName = "teacher"
	// RoleAdmin grants full administrative access
	RoleAdmin RoleName = "admin"
)

// User represents a user in the system
type User struct {
	ID           int            `json:"id" yaml:"id"`
	Username     string         `json:"username" yaml:"username"`
	Email        sql.NullString `json:"email" yaml:"email"`
	Timezone     sql.NullString `json:"timezone" yaml:"timezone"`
	PasswordHash sql.NullString `json:"-" yaml:"-"` // Omit from JSON responses
	Grade        sql.NullString `json:"grade" yaml:"grade"`
	SchoolID     sql.NullInt32  `json:"school_id" yaml:"school_id"`
	Preferences  sql.NullString `json:"preferences" yaml:"preferences"` // JSON blob
	LastActive   sql.NullTime   `json:"last_active" yaml:"last_active"`
	CreatedAt    time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" yaml:"updated_at"`
	Roles        []Role         `json:"roles,omitempty" yaml:"roles,omitempty"`
}

// Role represents a role in the system
type Role struct {
	ID          int       `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// UserRole represents the mapping between users and roles
type UserRole struct {
	ID        int       `json:"id" yaml:"id"`
	UserID    int       `json:"user_id" yaml:"user_id"`
	RoleID    int       `json:"role_id" yaml:"role_id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// HasRole reports whether the user carries the named role
func (u *User) HasRole(name RoleName) bool {
	for _, r := range u.Roles {
		if r.Name == string(name) {
			return true
		}
	}
	return false
}

// IsTeacher reports whether the user may access teacher surfaces.
// Admins pass teacher checks.
func (u *User) IsTeacher() bool {
	return u.HasRole(RoleTeacher) || u.HasRole(RoleAdmin)
}

// MarshalJSON customizes JSON marshaling for User to handle sql.NullString and sql.NullTime properly
func (u User) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID          int             `json:"id"`
		Username    string          `json:"username"`
		Email       *string         `json:"email"`
		Timezone    *string         `json:"timezone"`
		Grade       *string         `json:"grade"`
		SchoolID    *int32          `json:"school_id"`
		Preferences json.RawMessage `json:"preferences,omitempty"`
		LastActive  *time.Time      `json:"last_active"`
		CreatedAt   time.Time       `json:"created_at"`
		UpdatedAt   time.Time       `json:"updated_at"`
		Roles       []Role          `json:"roles,omitempty"`
	}{
		ID:          u.ID,
		Username:    u.Username,
		Email:       nullStringToPointer(u.Email),
		Timezone:    nullStringToPointer(u.Timezone),
		Grade:       nullStringToPointer(u.Grade),
		SchoolID:    nullInt32ToPointer(u.SchoolID),
		Preferences: nullStringToRawJSON(u.Preferences),
		LastActive:  nullTimeToPointer(u.LastActive),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
		Roles:       u.Roles,
	})
}

// Helper functions for converting sql.Null types to pointers
func nullStringToPointer(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func nullTimeToPointer(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

func nullBoolToPointer(nb sql.NullBool) *bool {
	if nb.Valid {
		return &nb.Bool
	}
	return nil
}

func nullInt32ToPointer(ni sql.NullInt32) *int32 {
	if ni.Valid {
		return &ni.Int32
	}
	return nil
}

func nullFloat64ToPointer(nf sql.NullFloat64) *float64 {
	if nf.Valid {
		return &nf.Float64
	}
	return nil
}

// nullStringToRawJSON treats a valid NullString as pre-encoded JSON.
// Invalid JSON is re-encoded as a JSON string so marshaling never fails.
func nullStringToRawJSON(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	if json.Valid([]byte(ns.String)) {
		return json.RawMessage(ns.String)
	}
	encoded, _ := json.Marshal(ns.String)
	return encoded
}

// School represents a school that users belong to
type School struct {
	ID        int            `json:"id" db:"id"`
	Name      string         `json:"name" db:"name"`
	City      sql.NullString `json:"city" db:"city"`
	State     sql.NullString `json:"state" db:"state"`
	Board     sql.NullString `json:"board" db:"board"` // e.g. CBSE, ICSE
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// MarshalJSON customizes JSON marshaling for School to handle sql.NullString properly
func (s School) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID        int       `json:"id"`
		Name      string    `json:"name"`
		City      *string   `json:"city"`
		State     *string   `json:"state"`
		Board     *string   `json:"board"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}{
		ID:        s.ID,
		Name:      s.Name,
		City:      nullStringToPointer(s.City),
		State:     nullStringToPointer(s.State),
		Board:     nullStringToPointer(s.Board),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	})
}

// WorkerSettings represents worker configuration settings stored in database
type WorkerSettings struct {
	ID           int       `json:"id" db:"id"`
	SettingKey   string    `json:"setting_key" db:"setting_key"`
	SettingValue string    `json:"setting_value" db:"setting_value"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// WorkerStatus represents worker health and activity status
type WorkerStatus struct {
	ID                   int            `json:"id" db:"id"`
	WorkerInstance       string         `json:"worker_instance" db:"worker_instance"`
	IsRunning            bool           `json:"is_running" db:"is_running"`
	IsPaused             bool           `json:"is_paused" db:"is_paused"`
	CurrentActivity      sql.NullString `json:"current_activity" db:"current_activity"`
	LastHeartbeat        sql.NullTime   `json:"last_heartbeat" db:"last_heartbeat"`
	LastRunStart         sql.NullTime   `json:"last_run_start" db:"last_run_start"`
	LastRunFinish        sql.NullTime   `json:"last_run_finish" db:"last_run_finish"`
	LastRunError         sql.NullString `json:"last_run_error" db:"last_run_error"`
	TotalChunksIndexed   int            `json:"total_chunks_indexed" db:"total_chunks_indexed"`
	TotalSessionsExpired int            `json:"total_sessions_expired" db:"total_sessions_expired"`
	TotalRuns            int            `json:"total_runs" db:"total_runs"`
	CreatedAt            time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at" db:"updated_at"`
}

// MarshalJSON customizes JSON marshaling for WorkerStatus to handle sql.NullString and sql.NullTime properly
func (ws WorkerStatus) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID                   int        `json:"id"`
		WorkerInstance       string     `json:"worker_instance"`
		IsRunning            bool       `json:"is_running"`
		IsPaused             bool       `json:"is_paused"`
		CurrentActivity      *string    `json:"current_activity"`
		LastHeartbeat        *time.Time `json:"last_heartbeat"`
		LastRunStart         *time.Time `json:"last_run_start"`
		LastRunFinish        *time.Time `json:"last_run_finish"`
		LastRunError         *string    `json:"last_run_error"`
		TotalChunksIndexed   int        `json:"total_chunks_indexed"`
		TotalSessionsExpired int        `json:"total_sessions_expired"`
		TotalRuns            int        `json:"total_runs"`
		CreatedAt            time.Time  `json:"created_at"`
		UpdatedAt            time.Time  `json:"updated_at"`
	}{
		ID:                   ws.ID,
		WorkerInstance:       ws.WorkerInstance,
		IsRunning:            ws.IsRunning,
		IsPaused:             ws.IsPaused,
		CurrentActivity:      nullStringToPointer(ws.CurrentActivity),
		LastHeartbeat:        nullTimeToPointer(ws.LastHeartbeat),
		LastRunStart:         nullTimeToPointer(ws.LastRunStart),
		LastRunFinish:        nullTimeToPointer(ws.LastRunFinish),
		LastRunError:         nullStringToPointer(ws.LastRunError),
		TotalChunksIndexed:   ws.TotalChunksIndexed,
		TotalSessionsExpired: ws.TotalSessionsExpired,
		TotalRuns:            ws.TotalRuns,
		CreatedAt:            ws.CreatedAt,
		UpdatedAt:            ws.UpdatedAt,
	})
}
