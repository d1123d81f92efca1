package handlers

import (
	"net/http"
	"strconv"

	"learnapp/internal/models"
	"learnapp/internal/observability"
	"learnapp/internal/services"
	contextutils "learnapp/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// MessagesHandler handles direct messaging HTTP requests
type MessagesHandler struct {
	messagesService services.MessagesServiceInterface
	logger          *observability.Logger
}

// NewMessagesHandler creates a new MessagesHandler
func NewMessagesHandler(messagesService services.MessagesServiceInterface, logger *observability.Logger) *MessagesHandler {
	return &MessagesHandler{
		messagesService: messagesService,
		logger:          logger,
	}
}

// GetOrCreateConversation opens (or finds) a conversation with another user
func (h *MessagesHandler) GetOrCreateConversation(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "messages_get_or_create_conversation")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}

	conversation, err := h.messagesService.GetOrCreateConversation(ctx, userID, req.UserID)
	if err != nil {
		h.logger.Error(ctx, "Failed to open conversation", err, map[string]interface{}{
			"user_id":  userID,
			"other_id": req.UserID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// ListConversations lists the user's conversations, most recent first
func (h *MessagesHandler) ListConversations(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "messages_list_conversations")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	page, pageSize := ParsePagination(c, 1, 50, 200)
	offset := (page - 1) * pageSize

	conversations, err := h.messagesService.ListConversations(ctx, userID, pageSize, offset)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	WritePaginated(c, "conversations", conversations, gin.H{"page": page, "page_size": pageSize}, nil)
}

// SendMessage sends a message to another user
func (h *MessagesHandler) SendMessage(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "messages_send")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	span.SetAttributes(attribute.Int("message.recipient_id", req.RecipientID))

	message, err := h.messagesService.SendMessage(ctx, userID, &req)
	if err != nil {
		h.logger.Error(ctx, "Failed to send message", err, map[string]interface{}{
			"sender_id":    userID,
			"recipient_id": req.RecipientID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

// ListMessages returns messages of one conversation the user participates in
func (h *MessagesHandler) ListMessages(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "messages_list")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	conversationID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "conversation id must be an integer"))
		return
	}

	page, pageSize := ParsePagination(c, 1, 50, 200)
	offset := (page - 1) * pageSize

	messages, err := h.messagesService.ListMessages(ctx, userID, conversationID, pageSize, offset)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	WritePaginated(c, "messages", messages, gin.H{"page": page, "page_size": pageSize}, nil)
}

// MarkRead marks all messages in a conversation as read
func (h *MessagesHandler) MarkRead(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "messages_mark_read")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	conversationID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "conversation id must be an integer"))
		return
	}

	updated, err := h.messagesService.MarkRead(ctx, userID, conversationID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"marked_read": updated})
}

// Improve rewrites a draft message for clarity and tone
func (h *MessagesHandler) Improve(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "messages_improve")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	var req models.ImproveMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}

	improved, err := h.messagesService.ImproveMessage(ctx, &req)
	if err != nil {
		h.logger.Error(ctx, "Message improvement failed", err, map[string]interface{}{
			"user_id": userID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"improved": improved})
}

// Suggestions proposes short replies for the latest messages in a conversation
func (h *MessagesHandler) Suggestions(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "messages_suggestions")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	var req models.MessageSuggestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	span.SetAttributes(attribute.Int("message.conversation_id", req.ConversationID))

	suggestions, err := h.messagesService.SuggestReplies(ctx, userID, req.ConversationID)
	if err != nil {
		h.logger.Error(ctx, "Reply suggestions failed", err, map[string]interface{}{
			"user_id":         userID,
			"conversation_id": req.ConversationID,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}
