package handlers

import (
	"net/http"

	"learnapp/internal/config"
	"learnapp/internal/middleware"
	"learnapp/internal/models"
	"learnapp/internal/observability"
	"learnapp/internal/services"
	contextutils "learnapp/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// AuthHandler handles authentication related HTTP requests
type AuthHandler struct {
	userService services.UserServiceInterface
	config      *config.Config
	logger      *observability.Logger
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(userService services.UserServiceInterface, cfg *config.Config, logger *observability.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		config:      cfg,
		logger:      logger,
	}
}

// Signup registers a new student account and logs them in
func (h *AuthHandler) Signup(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "signup")
	defer observability.FinishSpan(span, nil)

	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}

	user, err := h.userService.CreateUser(ctx, &req)
	if err != nil {
		h.logger.Warn(ctx, "Signup failed", map[string]interface{}{
			"username": req.Username,
			"error":    err.Error(),
		})
		HandleAppError(c, err)
		return
	}

	span.SetAttributes(observability.AttributeUserID(user.ID))

	if err := h.saveSession(c, user); err != nil {
		h.logger.Error(ctx, "Failed to save session after signup", err, map[string]interface{}{
			"user_id": user.ID,
		})
		HandleAppError(c, contextutils.WrapError(err, "failed to establish session"))
		return
	}

	h.logger.Info(ctx, "User signed up", map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
	})
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Login authenticates a user and establishes a cookie session
func (h *AuthHandler) Login(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "login")
	defer observability.FinishSpan(span, nil)

	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}

	span.SetAttributes(attribute.String("auth.username", req.Username))

	user, err := h.userService.AuthenticateUser(ctx, req.Username, req.Password)
	if err != nil {
		h.logger.Warn(ctx, "Login failed", map[string]interface{}{
			"username": req.Username,
		})
		HandleAppError(c, err)
		return
	}

	if err := h.saveSession(c, user); err != nil {
		h.logger.Error(ctx, "Failed to save session", err, map[string]interface{}{
			"user_id": user.ID,
		})
		HandleAppError(c, contextutils.WrapError(err, "failed to establish session"))
		return
	}

	h.logger.Info(ctx, "User logged in", map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
	})
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Logout clears the current session
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "logout")
	defer observability.FinishSpan(span, nil)

	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{MaxAge: -1, Path: "/"})
	if err := session.Save(); err != nil {
		h.logger.Error(ctx, "Failed to clear session", err, map[string]interface{}{})
		HandleAppError(c, contextutils.WrapError(err, "failed to clear session"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns the current authenticated user's profile
func (h *AuthHandler) Me(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "me")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	user, err := h.userService.GetUserByID(ctx, userID)
	if err != nil {
		h.logger.Error(ctx, "Failed to load current user", err, map[string]interface{}{
			"user_id": userID,
		})
		HandleAppError(c, contextutils.WrapError(err, "failed to load user"))
		return
	}
	if user == nil {
		HandleAppError(c, contextutils.ErrRecordNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateProfile updates the current user's profile fields
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "update_profile")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}

	if err := h.userService.UpdateUserProfile(ctx, userID, &req); err != nil {
		h.logger.Error(ctx, "Failed to update profile", err, map[string]interface{}{
			"user_id": userID,
		})
		HandleAppError(c, err)
		return
	}

	user, err := h.userService.GetUserByID(ctx, userID)
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to load updated user"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// ChangePassword verifies the current password and sets a new one
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "change_password")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}

	user, err := h.userService.GetUserByID(ctx, userID)
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to load user"))
		return
	}
	if user == nil {
		HandleAppError(c, contextutils.ErrRecordNotFound)
		return
	}

	if _, err := h.userService.AuthenticateUser(ctx, user.Username, req.CurrentPassword); err != nil {
		HandleAppError(c, contextutils.ErrInvalidCredentials)
		return
	}

	if err := h.userService.UpdateUserPassword(ctx, userID, req.NewPassword); err != nil {
		h.logger.Error(ctx, "Failed to change password", err, map[string]interface{}{
			"user_id": userID,
		})
		HandleAppError(c, err)
		return
	}

	h.logger.Info(ctx, "Password changed", map[string]interface{}{"user_id": userID})
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// saveSession writes the user's identity into the cookie session
func (h *AuthHandler) saveSession(c *gin.Context, user *models.User) error {
	session := sessions.Default(c)
	session.Set(middleware.UserIDKey, user.ID)
	session.Set(middleware.UsernameKey, user.Username)
	return session.Save()
}
