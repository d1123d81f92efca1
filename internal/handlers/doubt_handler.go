package handlers

import (
	"io"
	"net/http"
	"strings"

	"learnapp/internal/models"
	"learnapp/internal/observability"
	"learnapp/internal/services"
	contextutils "learnapp/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// Upload size ceilings for multipart doubt submissions.
const (
	maxDoubtImageBytes = 8 << 20
	maxDoubtAudioBytes = 16 << 20
)

// DoubtHandler handles doubt-solving HTTP requests
type DoubtHandler struct {
	doubtService services.DoubtServiceInterface
	logger       *observability.Logger
}

// NewDoubtHandler creates a new DoubtHandler
func NewDoubtHandler(doubtService services.DoubtServiceInterface, logger *observability.Logger) *DoubtHandler {
	return &DoubtHandler{
		doubtService: doubtService,
		logger:       logger,
	}
}

// AskText answers a text doubt
func (h *DoubtHandler) AskText(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "doubt_text")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	var req models.TextDoubtRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	span.SetAttributes(observability.AttributeSubject(req.Subject))

	answer, err := h.doubtService.AskText(ctx, userID, &req)
	if err != nil {
		h.logger.Error(ctx, "Text doubt failed", err, map[string]interface{}{
			"user_id": userID,
			"subject": req.Subject,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, answer)
}

// AskImage answers a doubt submitted as an image
func (h *DoubtHandler) AskImage(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "doubt_image")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	subject := strings.TrimSpace(c.PostForm("subject"))
	prompt := strings.TrimSpace(c.PostForm("prompt"))

	image, mimeType, err := readUploadedFile(c, "image", maxDoubtImageBytes)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	span.SetAttributes(attribute.Int("doubt.image_bytes", len(image)))

	answer, err := h.doubtService.AskImage(ctx, userID, subject, prompt, image, mimeType)
	if err != nil {
		h.logger.Error(ctx, "Image doubt failed", err, map[string]interface{}{
			"user_id": userID,
			"subject": subject,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, answer)
}

// AskVoice answers a doubt submitted as an audio recording
func (h *DoubtHandler) AskVoice(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "doubt_voice")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	subject := strings.TrimSpace(c.PostForm("subject"))

	audio, mimeType, err := readUploadedFile(c, "audio", maxDoubtAudioBytes)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	span.SetAttributes(attribute.Int("doubt.audio_bytes", len(audio)))

	answer, err := h.doubtService.AskVoice(ctx, userID, subject, audio, mimeType)
	if err != nil {
		h.logger.Error(ctx, "Voice doubt failed", err, map[string]interface{}{
			"user_id": userID,
			"subject": subject,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, answer)
}

// History lists the user's answered doubts, newest first
func (h *DoubtHandler) History(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "doubt_history")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	page, pageSize := ParsePagination(c, 1, 20, 100)
	offset := (page - 1) * pageSize

	doubts, err := h.doubtService.History(ctx, userID, pageSize, offset)
	if err != nil {
		h.logger.Error(ctx, "Failed to load doubt history", err, map[string]interface{}{
			"user_id": userID,
		})
		HandleAppError(c, err)
		return
	}

	WritePaginated(c, "doubts", doubts, gin.H{"page": page, "page_size": pageSize}, nil)
}

// WolframChat runs a direct Wolfram Alpha query
func (h *DoubtHandler) WolframChat(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "wolfram_chat")
	defer observability.FinishSpan(span, nil)

	if _, exists := GetUserIDFromSession(c); !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	var req struct {
		Query string `json:"query" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}

	resp := h.doubtService.WolframChat(ctx, req.Query)
	c.JSON(http.StatusOK, resp)
}

// readUploadedFile reads a multipart form file with a size cap and returns
// its bytes and declared content type.
func readUploadedFile(c *gin.Context, field string, maxBytes int64) ([]byte, string, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, "", contextutils.WrapErrorf(contextutils.ErrInvalidInput, "missing %s upload", field)
	}
	if header.Size > maxBytes {
		return nil, "", contextutils.WrapErrorf(contextutils.ErrInvalidInput, "%s upload exceeds %d bytes", field, maxBytes)
	}

	file, err := header.Open()
	if err != nil {
		return nil, "", contextutils.WrapError(err, "failed to open upload")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, "", contextutils.WrapError(err, "failed to read upload")
	}
	if int64(len(data)) > maxBytes {
		return nil, "", contextutils.WrapErrorf(contextutils.ErrInvalidInput, "%s upload exceeds %d bytes", field, maxBytes)
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}
