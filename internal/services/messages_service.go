package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"learnapp/internal/models"
	"learnapp/internal/observability"
	contextutils "learnapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// MessagesServiceInterface defines student and teacher messaging operations
type MessagesServiceInterface interface {
	GetOrCreateConversation(ctx context.Context, userID, otherID int) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID, limit, offset int) ([]models.Conversation, error)
	SendMessage(ctx context.Context, senderID int, req *models.SendMessageRequest) (*models.Message, error)
	ListMessages(ctx context.Context, userID, conversationID, limit, offset int) ([]models.Message, error)
	MarkRead(ctx context.Context, userID, conversationID int) (int64, error)
	ImproveMessage(ctx context.Context, req *models.ImproveMessageRequest) (string, error)
	SuggestReplies(ctx context.Context, userID, conversationID int) ([]string, error)
}

// MessagesService handles student and teacher conversations. Participant
// pairs are normalized so the same two users always share one thread.
type MessagesService struct {
	db     *sql.DB
	gemini GeminiServiceInterface
	logger *observability.Logger
}

// NewMessagesService creates a new messages service
func NewMessagesService(db *sql.DB, gemini GeminiServiceInterface, logger *observability.Logger) *MessagesService {
	return &MessagesService{
		db:     db,
		gemini: gemini,
		logger: logger,
	}
}

// normalizeParticipants orders a participant pair so (a,b) and (b,a) map to
// the same conversation row
func normalizeParticipants(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

// GetOrCreateConversation returns the conversation between two users,
// creating it on first contact
func (s *MessagesService) GetOrCreateConversation(ctx context.Context, userID, otherID int) (conversation *models.Conversation, err error) {
	ctx, span := observability.TraceMessagingFunction(ctx, "get_or_create_conversation",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	if userID == otherID {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "cannot start a conversation with yourself")
	}

	a, b := normalizeParticipants(userID, otherID)

	// the no-op update makes RETURNING yield the existing row on conflict
	query := `
		INSERT INTO conversations (participant_a, participant_b)
		VALUES ($1, $2)
		ON CONFLICT (participant_a, participant_b) DO UPDATE SET participant_a = EXCLUDED.participant_a
		RETURNING id, participant_a, participant_b, last_message_at, unread_a, unread_b, created_at
	`

	conversation = &models.Conversation{}
	err = s.db.QueryRowContext(ctx, query, a, b).Scan(
		&conversation.ID,
		&conversation.ParticipantA,
		&conversation.ParticipantB,
		&conversation.LastMessageAt,
		&conversation.UnreadA,
		&conversation.UnreadB,
		&conversation.CreatedAt,
	)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get or create conversation")
	}

	return conversation, nil
}

// loadConversationForUser fetches a conversation the user participates in
func (s *MessagesService) loadConversationForUser(ctx context.Context, userID, conversationID int) (*models.Conversation, error) {
	query := `
		SELECT id, participant_a, participant_b, last_message_at, unread_a, unread_b, created_at
		FROM conversations
		WHERE id = $1 AND (participant_a = $2 OR participant_b = $2)
	`

	conversation := &models.Conversation{}
	err := s.db.QueryRowContext(ctx, query, conversationID, userID).Scan(
		&conversation.ID,
		&conversation.ParticipantA,
		&conversation.ParticipantB,
		&conversation.LastMessageAt,
		&conversation.UnreadA,
		&conversation.UnreadB,
		&conversation.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "conversation %d not found", conversationID)
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load conversation")
	}
	return conversation, nil
}

// ListConversations returns a user's conversations, most recently active first
func (s *MessagesService) ListConversations(ctx context.Context, userID, limit, offset int) (conversations []models.Conversation, err error) {
	ctx, span := observability.TraceMessagingFunction(ctx, "list_conversations",
		observability.AttributeUserID(userID),
		observability.AttributeLimit(limit),
	)
	defer observability.FinishSpan(span, &err)

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, participant_a, participant_b, last_message_at, unread_a, unread_b, created_at
		FROM conversations
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query conversations")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close conversation rows", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	conversations = []models.Conversation{}
	for rows.Next() {
		var conversation models.Conversation
		if scanErr := rows.Scan(
			&conversation.ID,
			&conversation.ParticipantA,
			&conversation.ParticipantB,
			&conversation.LastMessageAt,
			&conversation.UnreadA,
			&conversation.UnreadB,
			&conversation.CreatedAt,
		); scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan conversation row")
		}
		conversations = append(conversations, conversation)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate conversation rows")
	}

	return conversations, nil
}

// SendMessage delivers a message, bumping the conversation's last-message
// time and the recipient's unread counter in one transaction
func (s *MessagesService) SendMessage(ctx context.Context, senderID int, req *models.SendMessageRequest) (message *models.Message, err error) {
	ctx, span := observability.TraceMessagingFunction(ctx, "send_message",
		observability.AttributeUserID(senderID),
	)
	defer observability.FinishSpan(span, &err)

	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "message body cannot be empty")
	}

	conversation, err := s.GetOrCreateConversation(ctx, senderID, req.RecipientID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				s.logger.Warn(ctx, "Failed to roll back send transaction", map[string]interface{}{
					"error": rbErr.Error(),
				})
			}
		}
	}()

	message = &models.Message{
		ConversationID: conversation.ID,
		SenderID:       senderID,
		Body:           body,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, conversation.ID, senderID, body).Scan(&message.ID, &message.CreatedAt)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to insert message")
	}

	unreadColumn := "unread_b"
	if req.RecipientID == conversation.ParticipantA {
		unreadColumn = "unread_a"
	}
	update := fmt.Sprintf(`
		UPDATE conversations
		SET last_message_at = NOW(), %s = %s + 1
		WHERE id = $1
	`, unreadColumn, unreadColumn)
	if _, err = tx.ExecContext(ctx, update, conversation.ID); err != nil {
		return nil, contextutils.WrapError(err, "failed to update conversation counters")
	}

	if err = tx.Commit(); err != nil {
		return nil, contextutils.WrapError(err, "failed to commit message")
	}

	span.SetAttributes(attribute.Int("messaging.conversation_id", conversation.ID))
	return message, nil
}

// ListMessages returns a conversation's messages in chronological order
func (s *MessagesService) ListMessages(ctx context.Context, userID, conversationID, limit, offset int) (messages []models.Message, err error) {
	ctx, span := observability.TraceMessagingFunction(ctx, "list_messages",
		observability.AttributeUserID(userID),
		attribute.Int("messaging.conversation_id", conversationID),
	)
	defer observability.FinishSpan(span, &err)

	if _, err = s.loadConversationForUser(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, conversation_id, sender_id, body, is_read, read_at, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query messages")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close message rows", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	messages = []models.Message{}
	for rows.Next() {
		var message models.Message
		if scanErr := rows.Scan(
			&message.ID,
			&message.ConversationID,
			&message.SenderID,
			&message.Body,
			&message.IsRead,
			&message.ReadAt,
			&message.CreatedAt,
		); scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan message row")
		}
		messages = append(messages, message)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate message rows")
	}

	return messages, nil
}

// MarkRead marks the other party's messages as read and clears the user's
// unread counter. Returns how many messages were marked.
func (s *MessagesService) MarkRead(ctx context.Context, userID, conversationID int) (count int64, err error) {
	ctx, span := observability.TraceMessagingFunction(ctx, "mark_read",
		observability.AttributeUserID(userID),
		attribute.Int("messaging.conversation_id", conversationID),
	)
	defer observability.FinishSpan(span, &err)

	conversation, err := s.loadConversationForUser(ctx, userID, conversationID)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				s.logger.Warn(ctx, "Failed to roll back mark-read transaction", map[string]interface{}{
					"error": rbErr.Error(),
				})
			}
		}
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE messages
		SET is_read = TRUE, read_at = NOW()
		WHERE conversation_id = $1 AND sender_id != $2 AND is_read = FALSE
	`, conversationID, userID)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to mark messages read")
	}
	count, err = result.RowsAffected()
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to get rows affected")
	}

	unreadColumn := "unread_b"
	if userID == conversation.ParticipantA {
		unreadColumn = "unread_a"
	}
	if _, err = tx.ExecContext(ctx, fmt.Sprintf(`UPDATE conversations SET %s = 0 WHERE id = $1`, unreadColumn), conversationID); err != nil {
		return 0, contextutils.WrapError(err, "failed to reset unread counter")
	}

	if err = tx.Commit(); err != nil {
		return 0, contextutils.WrapError(err, "failed to commit mark-read")
	}

	span.SetAttributes(attribute.Int64("messaging.marked_read", count))
	return count, nil
}

const improveSystemPrompt = "You polish short messages between students and teachers. " +
	"Keep the meaning, fix grammar, and make the tone clear and polite. " +
	"Reply with the improved message only, no commentary."

// ImproveMessage rewrites a draft for clarity and politeness
func (s *MessagesService) ImproveMessage(ctx context.Context, req *models.ImproveMessageRequest) (improved string, err error) {
	ctx, span := observability.TraceMessagingFunction(ctx, "improve_message")
	defer observability.FinishSpan(span, &err)

	draft := strings.TrimSpace(req.Draft)
	if draft == "" {
		return "", contextutils.WrapError(contextutils.ErrInvalidInput, "draft cannot be empty")
	}

	prompt := "Improve this message:\n\n" + draft
	if req.Tone != "" {
		prompt = fmt.Sprintf("Improve this message with a %s tone:\n\n%s", req.Tone, draft)
	}

	improved, err = s.gemini.GenerateText(ctx, "fast", improveSystemPrompt, prompt)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to improve message")
	}
	return strings.TrimSpace(improved), nil
}

// replySuggestions is the JSON shape requested from the model
type replySuggestions struct {
	Suggestions []string `json:"suggestions"`
}

const suggestionsSystemPrompt = "You suggest short replies for a conversation between a student " +
	"and a teacher on a Class 12 learning platform. Respond with JSON only."

// SuggestReplies proposes three replies based on recent conversation context
func (s *MessagesService) SuggestReplies(ctx context.Context, userID, conversationID int) (suggestions []string, err error) {
	ctx, span := observability.TraceMessagingFunction(ctx, "suggest_replies",
		observability.AttributeUserID(userID),
		attribute.Int("messaging.conversation_id", conversationID),
	)
	defer observability.FinishSpan(span, &err)

	messages, err := s.ListMessages(ctx, userID, conversationID, 10, 0)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "conversation has no messages to reply to")
	}

	var transcript strings.Builder
	for _, message := range messages {
		role := "Them"
		if message.SenderID == userID {
			role = "Me"
		}
		fmt.Fprintf(&transcript, "%s: %s\n", role, message.Body)
	}

	prompt := fmt.Sprintf(`Conversation so far:
%s
Suggest 3 short replies I could send next.

Respond as JSON:
{"suggestions": ["...", "...", "..."]}`, transcript.String())

	var parsed replySuggestions
	if err = s.gemini.GenerateJSON(ctx, "fast", suggestionsSystemPrompt, prompt, &parsed); err != nil {
		return nil, contextutils.WrapError(err, "failed to generate reply suggestions")
	}
	if len(parsed.Suggestions) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrAIResponseInvalid, "model returned no suggestions")
	}
	if len(parsed.Suggestions) > 3 {
		parsed.Suggestions = parsed.Suggestions[:3]
	}
	return parsed.Suggestions, nil
}
