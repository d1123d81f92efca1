package models

// SignupRequest creates a new student account
type SignupRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password" binding:"required,min=8"`
	Grade    string `json:"grade,omitempty"`
	SchoolID *int32 `json:"school_id,omitempty"`
}

// LoginRequest authenticates a user
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest updates the caller's profile
type UpdateProfileRequest struct {
	Email       string `json:"email" binding:"omitempty,email"`
	Timezone    string `json:"timezone,omitempty"`
	Grade       string `json:"grade,omitempty"`
	SchoolID    *int32 `json:"school_id,omitempty"`
	Preferences string `json:"preferences,omitempty"`
}

// ChangePasswordRequest changes the caller's password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}
